package audits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"auditoria.org/internal/dbtx"
	"auditoria.org/internal/ids"
	"auditoria.org/internal/obs"
)

type Store struct {
	db dbtx.DBTX
}

func NewStore(db dbtx.DBTX) *Store {
	return &Store{db: db}
}

const auditColumns = `id, owner_id, audit_type, coalesce(file_path, ''), status, version, created_at, updated_at`

// Insert creates a new request in the initial status.
func (s *Store) Insert(ctx context.Context, ownerID, auditType, filePath string) (Audit, error) {
	var a Audit
	row := s.db.QueryRowContext(ctx, `
		insert into audit_requests (id, owner_id, audit_type, file_path, status, version)
		values ($1, $2, $3, nullif($4, ''), $5, 0)
		returning `+auditColumns, ids.New(), ownerID, auditType, filePath, StatusEnviada)
	if err := scanAudit(row, &a); err != nil {
		return Audit{}, err
	}
	return a, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (Audit, error) {
	var a Audit
	row := s.db.QueryRowContext(ctx, `select `+auditColumns+` from audit_requests where id = $1`, id)
	if err := scanAudit(row, &a); err != nil {
		return Audit{}, err
	}
	return a, nil
}

// ListFilter narrows List. Zero values mean no filtering on that column.
type ListFilter struct {
	OwnerID string
	Status  string
}

// List returns matching requests, newest first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]Audit, error) {
	query := `select ` + auditColumns + ` from audit_requests`
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}
	query += " order by created_at desc"
	return s.list(ctx, query, args...)
}

// UpdateStatus moves the request to a new status iff the caller still holds
// the current version. Zero rows with an existing id is a lost optimistic
// race and maps to ErrVersionConflict; the caller decides whether to re-read
// and retry, the store never does.
func (s *Store) UpdateStatus(ctx context.Context, id, status string, expectedVersion int64) (Audit, error) {
	var a Audit
	row := s.db.QueryRowContext(ctx, `
		update audit_requests
		set status = $1, version = version + 1, updated_at = now()
		where id = $2 and version = $3
		returning `+auditColumns, status, id, expectedVersion)
	err := scanAudit(row, &a)
	if errors.Is(err, ErrNotFound) {
		var exists bool
		if checkErr := s.db.QueryRowContext(ctx,
			`select exists(select 1 from audit_requests where id = $1)`, id).Scan(&exists); checkErr != nil {
			return Audit{}, checkErr
		}
		if exists {
			obs.ObserveVersionConflict("audit_request")
			return Audit{}, ErrVersionConflict
		}
		return Audit{}, ErrNotFound
	}
	if err != nil {
		return Audit{}, err
	}
	return a, nil
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]Audit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var audits []Audit
	for rows.Next() {
		var a Audit
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.AuditType, &a.FilePath, &a.Status, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		audits = append(audits, a)
	}
	return audits, rows.Err()
}

func scanAudit(row *sql.Row, a *Audit) error {
	err := row.Scan(&a.ID, &a.OwnerID, &a.AuditType, &a.FilePath, &a.Status, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

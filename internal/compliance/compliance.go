// Package compliance keeps the compliance-check log: reviewers record checks
// and see the recent history, clients see only the latest overall state.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auditoria.org/internal/dbtx"
	"auditoria.org/internal/ids"
	"auditoria.org/internal/rbac"
)

var (
	ErrForbidden    = errors.New("compliance: forbidden")
	ErrInvalidInput = errors.New("compliance: invalid input")
)

// recentLimit bounds the history returned to reviewers.
const recentLimit = 10

type Log struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CheckedAt   time.Time `json:"checked_at"`
}

// Summary is the role-shaped view of the log. View names which shape was
// served; the client shape carries at most the latest entry.
type Summary struct {
	View    string `json:"view"`
	Entries []Log  `json:"entries"`
}

const (
	ViewFull   = "full"
	ViewClient = "client"
)

type Store struct {
	db dbtx.DBTX
}

func NewStore(db dbtx.DBTX) *Store {
	return &Store{db: db}
}

// Insert records a compliance check.
func (s *Store) Insert(ctx context.Context, description, status string) (Log, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Log{}, fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	var l Log
	row := s.db.QueryRowContext(ctx, `
		insert into compliance_logs (id, description, status)
		values ($1, $2, $3)
		returning id, description, status, checked_at
	`, ids.New(), description, status)
	if err := row.Scan(&l.ID, &l.Description, &l.Status, &l.CheckedAt); err != nil {
		return Log{}, err
	}
	return l, nil
}

// ListRecent returns the latest entries, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Log, error) {
	if limit <= 0 {
		limit = recentLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, description, status, checked_at
		from compliance_logs
		order by checked_at desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Log
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.ID, &l.Description, &l.Status, &l.CheckedAt); err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

type Service struct {
	runner *dbtx.Runner
}

func NewService(runner *dbtx.Runner) *Service {
	return &Service{runner: runner}
}

// RecordInput is a new compliance check entry.
type RecordInput struct {
	Description string `json:"description"`
	Status      string `json:"status"`
}

// Record appends a compliance check. The same roles that read the full
// history record new checks.
func (s *Service) Record(ctx context.Context, actor rbac.Principal, in RecordInput) (Log, error) {
	if !rbac.CanReadCompliance(actor) {
		return Log{}, ErrForbidden
	}
	in.Status = strings.TrimSpace(strings.ToLower(in.Status))
	if in.Status == "" {
		return Log{}, fmt.Errorf("%w: status is required", ErrInvalidInput)
	}

	var logged Log
	err := s.runner.Transactional(ctx, func(ctx context.Context, tx dbtx.DBTX) error {
		var err error
		logged, err = NewStore(tx).Insert(ctx, in.Description, in.Status)
		return err
	})
	if err != nil {
		return Log{}, err
	}
	return logged, nil
}

// Summary returns the compliance view the actor is entitled to: the recent
// history for reviewers, the latest entry for clients, forbidden otherwise.
func (s *Service) Summary(ctx context.Context, actor rbac.Principal) (Summary, error) {
	switch {
	case rbac.CanReadCompliance(actor):
		entries, err := NewStore(s.runner.DB()).ListRecent(ctx, recentLimit)
		if err != nil {
			return Summary{}, err
		}
		return Summary{View: ViewFull, Entries: entries}, nil
	case rbac.CanReadComplianceAsClient(actor):
		entries, err := NewStore(s.runner.DB()).ListRecent(ctx, 1)
		if err != nil {
			return Summary{}, err
		}
		return Summary{View: ViewClient, Entries: entries}, nil
	default:
		return Summary{}, ErrForbidden
	}
}

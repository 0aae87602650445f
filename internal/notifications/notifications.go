// Package notifications stores per-user in-app notifications. Other modules
// create them inside their own transactions; users list and acknowledge them
// through the API.
package notifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"auditoria.org/internal/dbtx"
	"auditoria.org/internal/ids"
	"auditoria.org/internal/obs"
)

var (
	ErrNotFound        = errors.New("notifications: not found")
	ErrForbidden       = errors.New("notifications: forbidden")
	ErrInvalidInput    = errors.New("notifications: invalid input")
	ErrVersionConflict = errors.New("notifications: version conflict")
)

// Notification kinds, mirroring the events that produce them.
const (
	KindStatusChange = "status_change"
	KindSystem       = "system"
)

type Notification struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Kind      string    `json:"kind"`
	Read      bool      `json:"read"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store struct {
	db dbtx.DBTX
}

func NewStore(db dbtx.DBTX) *Store {
	return &Store{db: db}
}

const notificationColumns = `id, owner_id, title, message, kind, read, version, created_at, updated_at`

// Create inserts an unread notification for the owner.
func (s *Store) Create(ctx context.Context, ownerID, title, message, kind string) (Notification, error) {
	title = strings.TrimSpace(title)
	message = strings.TrimSpace(message)
	if title == "" || message == "" {
		return Notification{}, fmt.Errorf("%w: title and message are required", ErrInvalidInput)
	}
	if kind == "" {
		kind = KindSystem
	}
	var n Notification
	row := s.db.QueryRowContext(ctx, `
		insert into notifications (id, owner_id, title, message, kind, read, version)
		values ($1, $2, $3, $4, $5, false, 0)
		returning `+notificationColumns, ids.New(), ownerID, title, message, kind)
	if err := scanNotification(row, &n); err != nil {
		return Notification{}, err
	}
	return n, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (Notification, error) {
	var n Notification
	row := s.db.QueryRowContext(ctx,
		`select `+notificationColumns+` from notifications where id = $1`, id)
	if err := scanNotification(row, &n); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// ListByOwner returns the owner's notifications, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+notificationColumns+`
		from notifications
		where owner_id = $1
		order by created_at desc
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Message, &n.Kind, &n.Read, &n.Version, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// MarkRead acknowledges a notification. Ownership is checked before the
// versioned update, so a foreign notification reports forbidden and only a
// genuinely stale version reports conflict.
func (s *Store) MarkRead(ctx context.Context, id, ownerID string, version int64) (Notification, error) {
	current, err := s.FindByID(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if current.OwnerID != ownerID {
		return Notification{}, ErrForbidden
	}

	var n Notification
	row := s.db.QueryRowContext(ctx, `
		update notifications
		set read = true, version = version + 1, updated_at = now()
		where id = $1 and version = $2
		returning `+notificationColumns, id, version)
	err = scanNotification(row, &n)
	if errors.Is(err, ErrNotFound) {
		obs.ObserveVersionConflict("notification")
		return Notification{}, ErrVersionConflict
	}
	if err != nil {
		return Notification{}, err
	}
	return n, nil
}

// Service wraps acknowledgements in the transactional envelope so the
// ownership read and the versioned update are atomic.
type Service struct {
	runner *dbtx.Runner
}

func NewService(runner *dbtx.Runner) *Service {
	return &Service{runner: runner}
}

func (s *Service) List(ctx context.Context, ownerID string) ([]Notification, error) {
	return NewStore(s.runner.DB()).ListByOwner(ctx, ownerID)
}

func (s *Service) MarkRead(ctx context.Context, ownerID, id string, version int64) (Notification, error) {
	var n Notification
	err := s.runner.Transactional(ctx, func(ctx context.Context, tx dbtx.DBTX) error {
		var err error
		n, err = NewStore(tx).MarkRead(ctx, id, ownerID, version)
		return err
	})
	if err != nil {
		return Notification{}, err
	}
	return n, nil
}

func scanNotification(row *sql.Row, n *Notification) error {
	err := row.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Message, &n.Kind, &n.Read, &n.Version, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

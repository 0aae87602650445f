// Package meetings schedules follow-up meetings between clients and
// auditors. The one business rule is no double-booking: an owner cannot hold
// two meetings within thirty minutes of each other.
package meetings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auditoria.org/internal/dbtx"
	"auditoria.org/internal/ids"
)

var (
	ErrNotFound     = errors.New("meetings: not found")
	ErrInvalidInput = errors.New("meetings: invalid input")
	ErrTimeConflict = errors.New("meetings: time conflict")
)

// ConflictWindow is the exclusion radius around an existing meeting.
const ConflictWindow = 30 * time.Minute

type Meeting struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Notes       string    `json:"notes"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Store struct {
	db dbtx.DBTX
}

func NewStore(db dbtx.DBTX) *Store {
	return &Store{db: db}
}

// Insert books a meeting after scanning the owner's window for collisions.
// The FOR UPDATE scan locks any row inside the window, so two concurrent
// bookings in the same window serialize: the second sees the first's row (or
// deadlocks and is retried by the runner) instead of both committing.
// Must run inside a transaction for the locks to mean anything.
func (s *Store) Insert(ctx context.Context, ownerID, notes string, scheduledAt time.Time) (Meeting, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id from meetings
		where owner_id = $1
		  and scheduled_at between $2::timestamptz - interval '30 minutes'
		                       and $2::timestamptz + interval '30 minutes'
		for update
	`, ownerID, scheduledAt)
	if err != nil {
		return Meeting{}, err
	}
	conflict := rows.Next()
	if closeErr := rows.Close(); closeErr != nil {
		return Meeting{}, closeErr
	}
	if err := rows.Err(); err != nil {
		return Meeting{}, err
	}
	if conflict {
		return Meeting{}, ErrTimeConflict
	}

	var m Meeting
	row := s.db.QueryRowContext(ctx, `
		insert into meetings (id, owner_id, notes, scheduled_at, version)
		values ($1, $2, nullif($3, ''), $4, 0)
		returning id, owner_id, coalesce(notes, ''), scheduled_at, version, created_at, updated_at
	`, ids.New(), ownerID, notes, scheduledAt)
	if err := row.Scan(&m.ID, &m.OwnerID, &m.Notes, &m.ScheduledAt, &m.Version, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return Meeting{}, err
	}
	return m, nil
}

// ListByOwner returns the owner's meetings in chronological order.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]Meeting, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, owner_id, coalesce(notes, ''), scheduled_at, version, created_at, updated_at
		from meetings
		where owner_id = $1
		order by scheduled_at asc
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Meeting
	for rows.Next() {
		var m Meeting
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.Notes, &m.ScheduledAt, &m.Version, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// ScheduleInput is the booking request. Notes are optional.
type ScheduleInput struct {
	Notes       string    `json:"notes"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

func (in *ScheduleInput) validate() error {
	in.Notes = strings.TrimSpace(in.Notes)
	if in.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduled_at is required", ErrInvalidInput)
	}
	return nil
}

// Service wraps bookings in the transactional envelope so the conflict scan
// and the insert are atomic.
type Service struct {
	runner *dbtx.Runner
}

func NewService(runner *dbtx.Runner) *Service {
	return &Service{runner: runner}
}

// Schedule books a meeting for the owner, rejecting any slot within thirty
// minutes of an existing one.
func (s *Service) Schedule(ctx context.Context, ownerID string, in ScheduleInput) (Meeting, error) {
	if err := in.validate(); err != nil {
		return Meeting{}, err
	}
	var booked Meeting
	err := s.runner.Transactional(ctx, func(ctx context.Context, tx dbtx.DBTX) error {
		var err error
		booked, err = NewStore(tx).Insert(ctx, ownerID, in.Notes, in.ScheduledAt.UTC())
		return err
	})
	if err != nil {
		return Meeting{}, err
	}
	return booked, nil
}

// List returns the caller's meetings.
func (s *Service) List(ctx context.Context, ownerID string) ([]Meeting, error) {
	return NewStore(s.runner.DB()).ListByOwner(ctx, ownerID)
}

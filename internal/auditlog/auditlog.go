// Package auditlog is the append-only trail of state changes. Entries are
// written in the same transaction as the change they describe, so the trail
// never records a change that was rolled back.
package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"auditoria.org/internal/dbtx"
	"auditoria.org/internal/ids"
)

// Entry is one recorded change. Before and After are JSON snapshots of the
// entity around the change; either may be null (creation has no before).
type Entry struct {
	ID        string          `json:"id"`
	ActorID   string          `json:"actor_id"`
	Action    string          `json:"action"`
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entity_id"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type Store struct {
	db dbtx.DBTX
}

func NewStore(db dbtx.DBTX) *Store {
	return &Store{db: db}
}

// Append records a change. The table has no update or delete path; rows only
// accumulate.
func (s *Store) Append(ctx context.Context, actorID, action, entity, entityID string, before, after any) error {
	beforeJSON, err := marshalSnapshot(before)
	if err != nil {
		return fmt.Errorf("auditlog: marshal before: %w", err)
	}
	afterJSON, err := marshalSnapshot(after)
	if err != nil {
		return fmt.Errorf("auditlog: marshal after: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_log (id, actor_id, action, entity, entity_id, before_state, after_state)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, ids.New(), actorID, action, entity, entityID, beforeJSON, afterJSON)
	return err
}

// ListByEntity returns the trail of one entity, oldest first.
func (s *Store) ListByEntity(ctx context.Context, entity, entityID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, actor_id, action, entity, entity_id, before_state, after_state, created_at
		from audit_log
		where entity = $1 and entity_id = $2
		order by created_at asc
	`, entity, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &e.Before, &e.After, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func marshalSnapshot(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

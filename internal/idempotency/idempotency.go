// Package idempotency persists responses of mutating endpoints keyed by a
// client-chosen Idempotency-Key, so a retried request replays the stored
// outcome instead of re-executing the side effect.
package idempotency

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"auditoria.org/internal/dbtx"
	"auditoria.org/internal/ids"
)

// DefaultMaxBody caps how much of a response body the ledger retains.
// Replayed bodies beyond the cap are truncated at persist time.
const DefaultMaxBody = 4096

// Record is a stored response: enough to replay the original outcome.
type Record struct {
	StatusCode int
	Body       json.RawMessage
	CreatedAt  time.Time
}

// Store is the idempotency ledger. Keys are scoped per user and endpoint, so
// the same client key on two endpoints never collides. Constructed over the
// transaction of the request being served: lookups and persists join that
// transaction, which is what makes replay detection race-free.
type Store struct {
	db      dbtx.DBTX
	maxBody int
}

func NewStore(db dbtx.DBTX, maxBody int) *Store {
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	return &Store{db: db, maxBody: maxBody}
}

// Digest collapses the scoping triple into the fixed-width hash the ledger
// indexes on. Hashing keeps arbitrarily long client keys out of the unique
// index.
func Digest(userID, endpoint, clientKey string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", userID, endpoint, clientKey)))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the stored record for the key, or found=false when the key
// has not been seen. An empty key means the client opted out of idempotency:
// there is never a prior record and storage is not consulted.
func (s *Store) Lookup(ctx context.Context, userID, endpoint, clientKey string) (Record, bool, error) {
	if clientKey == "" {
		return Record{}, false, nil
	}
	var rec Record
	row := s.db.QueryRowContext(ctx, `
		select status_code, response_body, created_at
		from idempotency_keys
		where user_id = $1 and endpoint = $2 and key_hash = $3
	`, userID, endpoint, Digest(userID, endpoint, clientKey))
	if err := row.Scan(&rec.StatusCode, &rec.Body, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

// Persist stores the response for the key; an empty key is a no-op. On a
// duplicate key the stored record is overwritten (last write wins); the
// handler only calls Persist for successful outcomes, so failures never
// poison a key.
func (s *Store) Persist(ctx context.Context, userID, endpoint, clientKey string, statusCode int, body []byte) error {
	if clientKey == "" {
		return nil
	}
	if len(body) > s.maxBody {
		body = body[:s.maxBody]
	}
	_, err := s.db.ExecContext(ctx, `
		insert into idempotency_keys (id, user_id, endpoint, key_hash, status_code, response_body)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (user_id, endpoint, key_hash)
		do update set status_code = excluded.status_code,
		              response_body = excluded.response_body
	`, ids.New(), userID, endpoint, Digest(userID, endpoint, clientKey), statusCode, body)
	return err
}

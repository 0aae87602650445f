// Package audits implements the audit-request workflow: clients file
// requests, reviewers move them through statuses, and every transition leaves
// a notification and an audit-trail entry behind.
package audits

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("audits: not found")
	ErrForbidden       = errors.New("audits: forbidden")
	ErrInvalidInput    = errors.New("audits: invalid input")
	ErrVersionConflict = errors.New("audits: version conflict")
)

// Statuses of an audit request. New requests start as enviada. Transitions
// are not constrained to a graph: a reviewer may move a request between any
// two statuses, including reopening a completed one.
const (
	StatusEnviada    = "enviada"
	StatusEnRevision = "en_revision"
	StatusEnProceso  = "en_proceso"
	StatusCompletada = "completada"
	StatusRechazada  = "rechazada"
)

var validStatuses = map[string]struct{}{
	StatusEnviada:    {},
	StatusEnRevision: {},
	StatusEnProceso:  {},
	StatusCompletada: {},
	StatusRechazada:  {},
}

// ValidStatus reports whether the status is one of the workflow statuses.
func ValidStatus(s string) bool {
	_, ok := validStatuses[s]
	return ok
}

// Audit types supported by the request form.
const (
	TypeInterna = "interna"
	TypeExterna = "externa"
	TypeTI      = "ti"
)

var validTypes = map[string]struct{}{
	TypeInterna: {},
	TypeExterna: {},
	TypeTI:      {},
}

// ValidType reports whether the audit type is supported.
func ValidType(t string) bool {
	_, ok := validTypes[t]
	return ok
}

// Audit is one audit request. Version is the optimistic-lock counter: status
// updates name the version they read, and a mismatch rejects the write.
type Audit struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	AuditType string    `json:"audit_type"`
	FilePath  string    `json:"file_path,omitempty"`
	Status    string    `json:"status"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

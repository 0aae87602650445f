package audits

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"auditoria.org/internal/auditlog"
	"auditoria.org/internal/dbtx"
	"auditoria.org/internal/idempotency"
	"auditoria.org/internal/notifications"
	"auditoria.org/internal/rbac"
)

// createEndpoint scopes idempotency keys: the same client key on another
// endpoint is a different ledger entry.
const createEndpoint = "POST /api/audits"

// Service runs the workflow operations. Each mutating operation is one
// transaction through the runner, which also owns transient-failure retries.
type Service struct {
	runner  *dbtx.Runner
	maxBody int
}

func NewService(runner *dbtx.Runner, idempotencyMaxBody int) *Service {
	return &Service{runner: runner, maxBody: idempotencyMaxBody}
}

type CreateInput struct {
	AuditType string `json:"audit_type"`
	FilePath  string `json:"file_path"`
}

// CreateResult carries the response to serve. For a replayed request Body
// and Status are the stored originals, not a re-execution.
type CreateResult struct {
	Status   int
	Body     json.RawMessage
	Replayed bool
}

// Create files a new audit request. When the caller supplies an idempotency
// key and the key was already used, the stored response is returned and no
// new request is created. The ledger lookup runs inside the same transaction
// as the insert, so a concurrent duplicate either sees the stored response or
// serializes behind the first writer.
func (s *Service) Create(ctx context.Context, actor rbac.Principal, in CreateInput, idempotencyKey string) (CreateResult, error) {
	if !rbac.CanCreateAudit(actor) {
		return CreateResult{}, ErrForbidden
	}
	in.AuditType = strings.TrimSpace(strings.ToLower(in.AuditType))
	if !ValidType(in.AuditType) {
		return CreateResult{}, fmt.Errorf("%w: audit_type must be one of interna, externa, ti", ErrInvalidInput)
	}
	in.FilePath = strings.TrimSpace(in.FilePath)

	var result CreateResult
	err := s.runner.Transactional(ctx, func(ctx context.Context, tx dbtx.DBTX) error {
		ledger := idempotency.NewStore(tx, s.maxBody)
		rec, found, err := ledger.Lookup(ctx, actor.User.ID, createEndpoint, idempotencyKey)
		if err != nil {
			return err
		}
		if found {
			result = CreateResult{Status: rec.StatusCode, Body: rec.Body, Replayed: true}
			return nil
		}

		audit, err := NewStore(tx).Insert(ctx, actor.User.ID, in.AuditType, in.FilePath)
		if err != nil {
			return err
		}
		if err := auditlog.NewStore(tx).Append(ctx, actor.User.ID, "audit.created", "audit_request", audit.ID, nil, audit); err != nil {
			return err
		}
		if _, err := notifications.NewStore(tx).Create(ctx, actor.User.ID,
			"Solicitud de auditoría registrada", "Su solicitud fue recibida y está en revisión.", notifications.KindSystem); err != nil {
			return err
		}

		body, err := json.Marshal(audit)
		if err != nil {
			return err
		}
		if err := ledger.Persist(ctx, actor.User.ID, createEndpoint, idempotencyKey, http.StatusCreated, body); err != nil {
			return err
		}
		result = CreateResult{Status: http.StatusCreated, Body: body}
		return nil
	})
	if err != nil {
		return CreateResult{}, err
	}
	return result, nil
}

// List returns the requests the actor may see: reviewers see everything and
// may narrow by owner, everyone else sees their own. Unknown status values
// are ignored rather than rejected.
func (s *Service) List(ctx context.Context, actor rbac.Principal, f ListFilter) ([]Audit, error) {
	if !ValidStatus(f.Status) {
		f.Status = ""
	}
	if !rbac.CanViewAllAudits(actor) {
		f.OwnerID = actor.User.ID
	}
	return NewStore(s.runner.DB()).List(ctx, f)
}

// Get returns one request. A request owned by someone else reads as missing
// for non-reviewers, so ids cannot be probed.
func (s *Service) Get(ctx context.Context, actor rbac.Principal, id string) (Audit, error) {
	audit, err := NewStore(s.runner.DB()).FindByID(ctx, id)
	if err != nil {
		return Audit{}, err
	}
	if !rbac.CanViewAllAudits(actor) && audit.OwnerID != actor.User.ID {
		return Audit{}, ErrNotFound
	}
	return audit, nil
}

type UpdateStatusInput struct {
	Status  string `json:"status"`
	Version int64  `json:"version"`
}

// UpdateStatus moves a request to a new status under optimistic locking, and
// in the same transaction notifies the owner and appends the trail entry. A
// version conflict is reported to the caller, never resolved by retrying.
func (s *Service) UpdateStatus(ctx context.Context, actor rbac.Principal, id string, in UpdateStatusInput) (Audit, error) {
	if !rbac.CanReviewAudit(actor) {
		return Audit{}, ErrForbidden
	}
	in.Status = strings.TrimSpace(strings.ToLower(in.Status))
	if !ValidStatus(in.Status) {
		return Audit{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, in.Status)
	}

	var updated Audit
	err := s.runner.Transactional(ctx, func(ctx context.Context, tx dbtx.DBTX) error {
		store := NewStore(tx)
		before, err := store.FindByID(ctx, id)
		if err != nil {
			return err
		}
		updated, err = store.UpdateStatus(ctx, id, in.Status, in.Version)
		if err != nil {
			return err
		}
		if err := auditlog.NewStore(tx).Append(ctx, actor.User.ID, "audit.status_changed", "audit_request", id, before, updated); err != nil {
			return err
		}
		message := fmt.Sprintf("Su auditoría %s cambió a estado %s", id, updated.Status)
		if _, err := notifications.NewStore(tx).Create(ctx, before.OwnerID,
			"Estado de auditoría actualizado", message, notifications.KindStatusChange); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return Audit{}, err
	}
	return updated, nil
}

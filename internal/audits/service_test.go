package audits

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"auditoria.org/internal/dbtx"
	"auditoria.org/internal/idempotency"
	"auditoria.org/internal/rbac"
)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	runner := dbtx.NewRunner(db, dbtx.RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond})
	return NewService(runner, idempotency.DefaultMaxBody), mock, db
}

func principal(id string, roles ...rbac.Role) rbac.Principal {
	return rbac.Principal{User: rbac.User{ID: id}, Roles: roles}
}

func auditColumnNames() []string {
	return []string{"id", "owner_id", "audit_type", "file_path", "status", "version", "created_at", "updated_at"}
}

func TestCreateRejectsUnauthorizedRole(t *testing.T) {
	svc, _, _ := newMockService(t)
	_, err := svc.Create(context.Background(), principal("u1", rbac.RoleSoporte),
		CreateInput{AuditType: TypeInterna}, "")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
}

func TestCreateRejectsUnknownType(t *testing.T) {
	svc, _, _ := newMockService(t)
	_, err := svc.Create(context.Background(), principal("u1", rbac.RoleCliente),
		CreateInput{AuditType: "forense"}, "")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

func TestCreateWithIdempotencyKey(t *testing.T) {
	svc, mock, _ := newMockService(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`select status_code, response_body, created_at`).
		WillReturnRows(sqlmock.NewRows([]string{"status_code", "response_body", "created_at"}))
	mock.ExpectQuery(`insert into audit_requests`).
		WithArgs(sqlmock.AnyArg(), "u1", TypeInterna, "docs/balance.pdf", StatusEnviada).
		WillReturnRows(sqlmock.NewRows(auditColumnNames()).
			AddRow("a1", "u1", TypeInterna, "docs/balance.pdf", StatusEnviada, int64(0), now, now))
	mock.ExpectExec(`insert into audit_log`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`insert into notifications`).
		WithArgs(sqlmock.AnyArg(), "u1", "Solicitud de auditoría registrada",
			"Su solicitud fue recibida y está en revisión.", "system").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "title", "message", "kind", "read", "version", "created_at", "updated_at"}).
			AddRow("n1", "u1", "Solicitud de auditoría registrada",
				"Su solicitud fue recibida y está en revisión.", "system", false, int64(0), now, now))
	mock.ExpectExec(`insert into idempotency_keys`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := svc.Create(context.Background(), principal("u1", rbac.RoleCliente),
		CreateInput{AuditType: "Interna", FilePath: " docs/balance.pdf "}, "key-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Replayed || res.Status != http.StatusCreated {
		t.Fatalf("unexpected result %+v", res)
	}
	var created Audit
	if err := json.Unmarshal(res.Body, &created); err != nil {
		t.Fatalf("body: %v", err)
	}
	if created.ID != "a1" || created.Status != StatusEnviada {
		t.Fatalf("unexpected audit %+v", created)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateReplaysStoredResponse(t *testing.T) {
	svc, mock, _ := newMockService(t)
	stored := []byte(`{"id":"a1","status":"enviada"}`)

	mock.ExpectBegin()
	mock.ExpectQuery(`select status_code, response_body, created_at`).
		WillReturnRows(sqlmock.NewRows([]string{"status_code", "response_body", "created_at"}).
			AddRow(http.StatusCreated, stored, time.Now()))
	mock.ExpectCommit()

	res, err := svc.Create(context.Background(), principal("u1", rbac.RoleCliente),
		CreateInput{AuditType: TypeInterna}, "key-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !res.Replayed || res.Status != http.StatusCreated || string(res.Body) != string(stored) {
		t.Fatalf("unexpected replay %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateStatusHappyPath(t *testing.T) {
	svc, mock, _ := newMockService(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`select .+ from audit_requests where id =`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(auditColumnNames()).
			AddRow("a1", "owner-1", TypeInterna, "", StatusEnviada, int64(0), now, now))
	mock.ExpectQuery(`update audit_requests`).
		WithArgs(StatusEnRevision, "a1", int64(0)).
		WillReturnRows(sqlmock.NewRows(auditColumnNames()).
			AddRow("a1", "owner-1", TypeInterna, "", StatusEnRevision, int64(1), now, now))
	mock.ExpectExec(`insert into audit_log`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`insert into notifications`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "title", "message", "kind", "read", "version", "created_at", "updated_at"}).
			AddRow("n1", "owner-1", "Estado de auditoría actualizado",
				"Su auditoría a1 cambió a estado en_revision", "status_change", false, int64(0), now, now))
	mock.ExpectCommit()

	updated, err := svc.UpdateStatus(context.Background(), principal("rev", rbac.RoleAuditor),
		"a1", UpdateStatusInput{Status: StatusEnRevision, Version: 0})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.Status != StatusEnRevision || updated.Version != 1 {
		t.Fatalf("unexpected audit %+v", updated)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateStatusVersionConflictIsNotRetried(t *testing.T) {
	svc, mock, _ := newMockService(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`select .+ from audit_requests where id =`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(auditColumnNames()).
			AddRow("a1", "owner-1", TypeInterna, "", StatusEnRevision, int64(3), now, now))
	mock.ExpectQuery(`update audit_requests`).
		WithArgs(StatusEnProceso, "a1", int64(2)).
		WillReturnRows(sqlmock.NewRows(auditColumnNames()))
	mock.ExpectQuery(`select exists`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := svc.UpdateStatus(context.Background(), principal("rev", rbac.RoleAdmin),
		"a1", UpdateStatusInput{Status: StatusEnProceso, Version: 2})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("want ErrVersionConflict, got %v", err)
	}
	// A second Begin would fail ExpectationsWereMet: the conflict must reach
	// the caller after a single attempt.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateStatusForbiddenForClients(t *testing.T) {
	svc, _, _ := newMockService(t)
	_, err := svc.UpdateStatus(context.Background(), principal("u1", rbac.RoleCliente),
		"a1", UpdateStatusInput{Status: StatusCompletada})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
}

func TestGetHidesForeignAuditFromOwnerRoles(t *testing.T) {
	svc, mock, _ := newMockService(t)
	now := time.Now()

	mock.ExpectQuery(`select .+ from audit_requests where id =`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(auditColumnNames()).
			AddRow("a1", "owner-1", TypeInterna, "", StatusEnviada, int64(0), now, now))

	_, err := svc.Get(context.Background(), principal("other", rbac.RoleCliente), "a1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListScopesByRole(t *testing.T) {
	svc, mock, _ := newMockService(t)
	now := time.Now()

	mock.ExpectQuery(`select .+ from audit_requests order by created_at desc`).
		WillReturnRows(sqlmock.NewRows(auditColumnNames()).
			AddRow("a1", "owner-1", TypeInterna, "", StatusEnviada, int64(0), now, now).
			AddRow("a2", "owner-2", TypeExterna, "", StatusEnProceso, int64(1), now, now))

	all, err := svc.List(context.Background(), principal("rev", rbac.RoleAuditor), ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("reviewer should see all, got %d", len(all))
	}

	mock.ExpectQuery(`select .+ from audit_requests where owner_id =`).
		WithArgs("owner-1").
		WillReturnRows(sqlmock.NewRows(auditColumnNames()).
			AddRow("a1", "owner-1", TypeInterna, "", StatusEnviada, int64(0), now, now))

	// A client's owner filter is overridden with their own id.
	own, err := svc.List(context.Background(), principal("owner-1", rbac.RoleCliente), ListFilter{OwnerID: "owner-2"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(own) != 1 || own[0].OwnerID != "owner-1" {
		t.Fatalf("client should only see own requests, got %+v", own)
	}
}

func TestListStatusFilter(t *testing.T) {
	svc, mock, _ := newMockService(t)
	now := time.Now()

	mock.ExpectQuery(`select .+ from audit_requests where status = \$1 and owner_id = \$2`).
		WithArgs(StatusEnviada, "owner-1").
		WillReturnRows(sqlmock.NewRows(auditColumnNames()).
			AddRow("a1", "owner-1", TypeInterna, "", StatusEnviada, int64(0), now, now))

	list, err := svc.List(context.Background(), principal("owner-1", rbac.RoleCliente), ListFilter{Status: StatusEnviada})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("want 1 row, got %d", len(list))
	}

	// Unknown status values are dropped, not rejected.
	mock.ExpectQuery(`select .+ from audit_requests where owner_id = \$1`).
		WithArgs("owner-1").
		WillReturnRows(sqlmock.NewRows(auditColumnNames()))

	if _, err := svc.List(context.Background(), principal("owner-1", rbac.RoleCliente), ListFilter{Status: "forense"}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

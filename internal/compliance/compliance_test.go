package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"auditoria.org/internal/dbtx"
	"auditoria.org/internal/rbac"
)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewService(dbtx.NewRunner(db, dbtx.DefaultRetryPolicy())), mock
}

func principal(roles ...rbac.Role) rbac.Principal {
	return rbac.Principal{User: rbac.User{ID: "u1"}, Roles: roles}
}

func logRows(n int) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "description", "status", "checked_at"})
	for i := 0; i < n; i++ {
		rows.AddRow("c1", "Revisión ISO 27001", "ok", time.Now())
	}
	return rows
}

func TestSummaryFullViewForReviewers(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectQuery(`select id, description, status, checked_at`).
		WithArgs(10).
		WillReturnRows(logRows(3))

	sum, err := svc.Summary(context.Background(), principal(rbac.RoleAuditor))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.View != ViewFull || len(sum.Entries) != 3 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestSummaryClientViewIsSingleEntry(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectQuery(`select id, description, status, checked_at`).
		WithArgs(1).
		WillReturnRows(logRows(1))

	sum, err := svc.Summary(context.Background(), principal(rbac.RoleCliente))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.View != ViewClient || len(sum.Entries) != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestSummaryForbiddenForSupport(t *testing.T) {
	svc, _ := newMockService(t)
	_, err := svc.Summary(context.Background(), principal(rbac.RoleSoporte))
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
}

func TestRecordAppendsCheck(t *testing.T) {
	svc, mock := newMockService(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`insert into compliance_logs`).
		WithArgs(sqlmock.AnyArg(), "Revisión ISO 27001", "ok").
		WillReturnRows(sqlmock.NewRows([]string{"id", "description", "status", "checked_at"}).
			AddRow("c9", "Revisión ISO 27001", "ok", now))
	mock.ExpectCommit()

	logged, err := svc.Record(context.Background(), principal(rbac.RoleAdmin),
		RecordInput{Description: "Revisión ISO 27001", Status: " OK "})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if logged.ID != "c9" || logged.Status != "ok" {
		t.Fatalf("unexpected log %+v", logged)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRecordForbiddenForClients(t *testing.T) {
	svc, _ := newMockService(t)
	_, err := svc.Record(context.Background(), principal(rbac.RoleCliente),
		RecordInput{Description: "Revisión", Status: "ok"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
}

func TestRecordValidation(t *testing.T) {
	svc, _ := newMockService(t)
	_, err := svc.Record(context.Background(), principal(rbac.RoleAuditor),
		RecordInput{Description: "Revisión", Status: "  "})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

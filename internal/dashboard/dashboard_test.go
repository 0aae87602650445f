package dashboard

import (
	"context"
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
	runner := dbtx.NewRunner(db, dbtx.RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond})
	return NewService(runner), mock
}

func principal(id string, roles ...rbac.Role) rbac.Principal {
	return rbac.Principal{User: rbac.User{ID: id}, Roles: roles}
}

func TestSummaryForReviewer(t *testing.T) {
	svc, mock := newMockService(t)
	now := time.Now()

	// Reviewer counts span all owners and include the compliance line.
	mock.ExpectQuery(`select status, count\(\*\) from audit_requests group by status`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("enviada", int64(3)).AddRow("completada", int64(1)))
	mock.ExpectQuery(`select count\(\*\) from notifications`).
		WithArgs("rev").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectQuery(`select count\(\*\) from meetings`).
		WithArgs("rev").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(`select status, checked_at from compliance_logs`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "checked_at"}).
			AddRow("cumple", now))

	sum, err := svc.Summary(context.Background(), principal("rev", rbac.RoleAuditor))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(sum.Audits) != 2 || sum.UnreadNotifications != 2 || sum.UpcomingMeetings != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.Compliance == nil || sum.Compliance.Status != "cumple" {
		t.Fatalf("reviewer must see the latest compliance check, got %+v", sum.Compliance)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSummaryForClient(t *testing.T) {
	svc, mock := newMockService(t)

	// Client counts are owner-scoped and skip the compliance query.
	mock.ExpectQuery(`select status, count\(\*\) from audit_requests where owner_id = \$1 group by status`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).AddRow("enviada", int64(1)))
	mock.ExpectQuery(`select count\(\*\) from notifications`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery(`select count\(\*\) from meetings`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))

	sum, err := svc.Summary(context.Background(), principal("u1", rbac.RoleCliente))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(sum.Audits) != 1 || sum.Audits[0].Status != "enviada" {
		t.Fatalf("unexpected audit counts %+v", sum.Audits)
	}
	if sum.Compliance != nil {
		t.Fatalf("client must not see compliance, got %+v", sum.Compliance)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSummaryEmptyComplianceLog(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery(`select status, count\(\*\) from audit_requests group by status`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}))
	mock.ExpectQuery(`select count\(\*\) from notifications`).
		WithArgs("adm").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery(`select count\(\*\) from meetings`).
		WithArgs("adm").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery(`select status, checked_at from compliance_logs`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "checked_at"}))

	sum, err := svc.Summary(context.Background(), principal("adm", rbac.RoleAdmin))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Compliance != nil {
		t.Fatalf("empty log must yield nil compliance, got %+v", sum.Compliance)
	}
	if sum.Audits == nil || len(sum.Audits) != 0 {
		t.Fatalf("audits must serialize as an empty list, got %+v", sum.Audits)
	}
}

// Package dashboard aggregates the landing-page counters: audit requests by
// status, unread notifications, upcoming meetings, and for reviewers the
// latest compliance check.
package dashboard

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"auditoria.org/internal/dbtx"
	"auditoria.org/internal/rbac"
)

// StatusCount is one row of the per-status audit breakdown. Statuses with no
// requests are absent, matching a plain GROUP BY.
type StatusCount struct {
	Status string `json:"status"`
	Total  int64  `json:"total"`
}

// ComplianceCheck is the latest compliance entry, reviewer view only.
type ComplianceCheck struct {
	Status    string    `json:"status"`
	CheckedAt time.Time `json:"checked_at"`
}

// Summary is the aggregated dashboard payload. Compliance is nil for callers
// without compliance read access and when the log is empty.
type Summary struct {
	Audits              []StatusCount    `json:"audits"`
	UnreadNotifications int64            `json:"unread_notifications"`
	UpcomingMeetings    int64            `json:"upcoming_meetings"`
	Compliance          *ComplianceCheck `json:"compliance"`
}

type Store struct {
	db dbtx.DBTX
}

func NewStore(db dbtx.DBTX) *Store {
	return &Store{db: db}
}

// CountAuditsByStatus breaks down audit requests per status. An empty ownerID
// counts across all owners; otherwise only the owner's requests.
func (s *Store) CountAuditsByStatus(ctx context.Context, ownerID string) ([]StatusCount, error) {
	query := `select status, count(*) from audit_requests`
	args := []any{}
	if ownerID != "" {
		query += ` where owner_id = $1`
		args = append(args, ownerID)
	}
	query += ` group by status`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []StatusCount
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Status, &c.Total); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// CountUnreadNotifications returns the owner's unread notification count.
func (s *Store) CountUnreadNotifications(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`select count(*) from notifications where owner_id = $1 and read = false`, ownerID).Scan(&n)
	return n, err
}

// CountUpcomingMeetings returns how many of the owner's meetings are still
// ahead.
func (s *Store) CountUpcomingMeetings(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`select count(*) from meetings where owner_id = $1 and scheduled_at >= now()`, ownerID).Scan(&n)
	return n, err
}

// LatestComplianceCheck returns the most recent compliance entry, or nil when
// the log is empty.
func (s *Store) LatestComplianceCheck(ctx context.Context) (*ComplianceCheck, error) {
	var c ComplianceCheck
	err := s.db.QueryRowContext(ctx,
		`select status, checked_at from compliance_logs order by checked_at desc limit 1`).
		Scan(&c.Status, &c.CheckedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type Service struct {
	runner *dbtx.Runner
}

func NewService(runner *dbtx.Runner) *Service {
	return &Service{runner: runner}
}

// Summary assembles the dashboard for the actor: reviewers count every audit
// request, everyone else only their own; notification and meeting counts are
// always the actor's; the compliance line needs compliance read access.
func (s *Service) Summary(ctx context.Context, actor rbac.Principal) (Summary, error) {
	store := NewStore(s.runner.DB())

	auditOwner := actor.User.ID
	if rbac.CanViewAllAudits(actor) {
		auditOwner = ""
	}

	audits, err := store.CountAuditsByStatus(ctx, auditOwner)
	if err != nil {
		return Summary{}, err
	}
	if audits == nil {
		audits = []StatusCount{}
	}
	unread, err := store.CountUnreadNotifications(ctx, actor.User.ID)
	if err != nil {
		return Summary{}, err
	}
	upcoming, err := store.CountUpcomingMeetings(ctx, actor.User.ID)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		Audits:              audits,
		UnreadNotifications: unread,
		UpcomingMeetings:    upcoming,
	}
	if rbac.CanReadCompliance(actor) {
		sum.Compliance, err = store.LatestComplianceCheck(ctx)
		if err != nil {
			return Summary{}, err
		}
	}
	return sum, nil
}

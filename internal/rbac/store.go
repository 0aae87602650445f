package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"auditoria.org/internal/dbtx"
	"auditoria.org/internal/ids"
)

const pgErrUniqueViolation = "23505"

// Store runs RBAC queries against the handle it was constructed with. Passing
// an open transaction makes every call join that transaction; passing the
// pool runs each call standalone.
type Store struct {
	db dbtx.DBTX
}

func NewStore(db dbtx.DBTX) *Store {
	return &Store{db: db}
}

// Provision idempotently ensures the role catalog, the permission catalog and
// the role to permission associations exist. Repeated calls are no-ops; only
// unrecoverable storage errors propagate.
func (s *Store) Provision(ctx context.Context) error {
	for _, role := range Roles {
		if _, err := s.db.ExecContext(ctx, `
			insert into roles (id, name) values ($1, $2)
			on conflict (name) do nothing
		`, ids.New(), string(role)); err != nil {
			return fmt.Errorf("provision role %s: %w", role, err)
		}
	}
	for _, perm := range PermissionCatalog {
		if _, err := s.db.ExecContext(ctx, `
			insert into permissions (id, permission_key) values ($1, $2)
			on conflict (permission_key) do nothing
		`, ids.New(), string(perm)); err != nil {
			return fmt.Errorf("provision permission %s: %w", perm, err)
		}
	}
	for _, role := range Roles {
		for _, perm := range RolePermissions[role] {
			if _, err := s.db.ExecContext(ctx, `
				insert into role_permissions (role_id, permission_id)
				select r.id, p.id from roles r, permissions p
				where r.name = $1 and p.permission_key = $2
				on conflict do nothing
			`, string(role), string(perm)); err != nil {
				return fmt.Errorf("provision role permission %s/%s: %w", role, perm, err)
			}
		}
	}
	return nil
}

// EnsureDefaultAdmin seeds the bootstrap administrator account when no user
// with the given email exists.
func (s *Store) EnsureDefaultAdmin(ctx context.Context, email, passwordHash string) error {
	email = normalizeEmail(email)
	var existing string
	err := s.db.QueryRowContext(ctx, `select id from users where email = $1`, email).Scan(&existing)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	user, err := s.CreateUser(ctx, email, passwordHash, UserStatusActive)
	if err != nil {
		return err
	}
	return s.AssignRole(ctx, user.ID, RoleAdmin)
}

// CreateUser inserts a new active or disabled account. A duplicate email maps
// to ErrConflict.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash, status string) (User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if passwordHash == "" {
		return User{}, fmt.Errorf("%w: password hash is required", ErrInvalidInput)
	}
	if status != UserStatusActive && status != UserStatusDisabled {
		return User{}, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}

	var u User
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, password_hash, status, version)
		values ($1, $2, $3, $4, 0)
		returning id, email, password_hash, status, version, created_at, updated_at
	`, ids.New(), email, passwordHash, status)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Status, &u.Version, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return User{}, ErrConflict
		}
		return User{}, err
	}
	return u, nil
}

// FindUserByEmail returns the account for a login attempt.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (User, error) {
	return s.findUser(ctx, `where email = $1`, normalizeEmail(email))
}

// FindUserByID returns the account core fields.
func (s *Store) FindUserByID(ctx context.Context, userID string) (User, error) {
	return s.findUser(ctx, `where id = $1`, userID)
}

func (s *Store) findUser(ctx context.Context, where string, arg any) (User, error) {
	var u User
	row := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, status, version, created_at, updated_at
		from users `+where, arg)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Status, &u.Version, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// UpdatePasswordHash replaces the credential and bumps the optimistic-lock
// version so concurrent credential changes are detectable in the audit trail.
func (s *Store) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set password_hash = $1, version = version + 1, updated_at = now()
		where id = $2
	`, passwordHash, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ResolvePrincipal loads the user plus derived role names and the
// deduplicated union of permission keys across all assigned roles.
func (s *Store) ResolvePrincipal(ctx context.Context, userID string) (Principal, error) {
	user, err := s.FindUserByID(ctx, userID)
	if err != nil {
		return Principal{}, err
	}

	roles, err := s.userRoles(ctx, userID)
	if err != nil {
		return Principal{}, err
	}

	perms := make(map[Permission]struct{})
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.permission_key
		from user_roles ur
		join role_permissions rp on rp.role_id = ur.role_id
		join permissions p on p.id = rp.permission_id
		where ur.user_id = $1
	`, userID)
	if err != nil {
		return Principal{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return Principal{}, err
		}
		perms[Permission(key)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return Principal{}, err
	}

	return Principal{User: user, Roles: roles, Permissions: perms}, nil
}

// AssignRole idempotently associates the role with the user.
func (s *Store) AssignRole(ctx context.Context, userID string, role Role) error {
	res, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		select $1, id from roles where name = $2
		on conflict do nothing
	`, userID, string(role))
	if err != nil {
		return err
	}
	// A zero-row insert with no conflict means the role name did not resolve,
	// which only happens when provisioning was skipped.
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`select exists(select 1 from roles where name = $1)`, string(role)).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: role %s is not provisioned", ErrNotFound, role)
		}
	}
	return nil
}

// ReplaceRoles clears every existing association and re-inserts the given
// set. Destructive replace: callers that want to add a single role use
// AssignRole. Runs statement by statement, so it must be called inside a
// transaction to stay atomic.
func (s *Store) ReplaceRoles(ctx context.Context, userID string, roles []Role) error {
	if _, err := s.db.ExecContext(ctx, `delete from user_roles where user_id = $1`, userID); err != nil {
		return err
	}
	for _, role := range roles {
		if err := s.AssignRole(ctx, userID, role); err != nil {
			return err
		}
	}
	return nil
}

// UserSummary is the admin listing row: account fields plus role names.
type UserSummary struct {
	User
	Roles []Role `json:"roles"`
}

// ListUsersWithRoles returns every account with its role names, newest first.
func (s *Store) ListUsersWithRoles(ctx context.Context) ([]UserSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		select u.id, u.email, u.password_hash, u.status, u.version, u.created_at, u.updated_at,
		       coalesce(string_agg(r.name, ',' order by r.name), '')
		from users u
		left join user_roles ur on ur.user_id = u.id
		left join roles r on r.id = ur.role_id
		group by u.id
		order by u.created_at desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []UserSummary
	for rows.Next() {
		var (
			summary UserSummary
			names   string
		)
		u := &summary.User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Status, &u.Version, &u.CreatedAt, &u.UpdatedAt, &names); err != nil {
			return nil, err
		}
		if names != "" {
			for _, name := range strings.Split(names, ",") {
				if role, ok := ParseRole(name); ok {
					summary.Roles = append(summary.Roles, role)
				}
			}
		}
		result = append(result, summary)
	}
	return result, rows.Err()
}

func (s *Store) userRoles(ctx context.Context, userID string) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.name
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if role, ok := ParseRole(name); ok {
			roles = append(roles, role)
		}
	}
	return roles, rows.Err()
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

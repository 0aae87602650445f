package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"auditoria.org/internal/auditlog"
	"auditoria.org/internal/dbtx"
	"auditoria.org/internal/ids"
	"auditoria.org/internal/rbac"
)

// resetTokenTTL bounds how long a recovery link stays usable.
const resetTokenTTL = time.Hour

// Service implements registration, login and password recovery on top of the
// RBAC store.
type Service struct {
	runner *dbtx.Runner
	issuer *TokenIssuer
	mailer Mailer
	appURL string
}

func NewService(runner *dbtx.Runner, issuer *TokenIssuer, mailer Mailer, appURL string) *Service {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Service{runner: runner, issuer: issuer, mailer: mailer, appURL: appURL}
}

// Register creates an account with the default client role. User creation
// and role assignment happen in one transaction so no account ever exists
// without a role.
func (s *Service) Register(ctx context.Context, email, password string) (rbac.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return rbac.User{}, err
	}
	var user rbac.User
	err = s.runner.Transactional(ctx, func(ctx context.Context, tx dbtx.DBTX) error {
		store := rbac.NewStore(tx)
		var err error
		user, err = store.CreateUser(ctx, email, hash, rbac.UserStatusActive)
		if err != nil {
			return err
		}
		if err := store.AssignRole(ctx, user.ID, rbac.RoleCliente); err != nil {
			return err
		}
		return auditlog.NewStore(tx).Append(ctx, user.ID, "user.registered", "user", user.ID, nil, user)
	})
	if err != nil {
		return rbac.User{}, err
	}
	return user, nil
}

// Login verifies the credentials and issues a session token. Unknown emails
// and wrong passwords are indistinguishable to the caller; a disabled
// account is reported as such only after the password checks out.
func (s *Service) Login(ctx context.Context, email, password string) (string, rbac.Principal, error) {
	store := rbac.NewStore(s.runner.DB())
	user, err := store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return "", rbac.Principal{}, ErrInvalidCredentials
		}
		return "", rbac.Principal{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return "", rbac.Principal{}, err
	}
	if user.Status != rbac.UserStatusActive {
		return "", rbac.Principal{}, ErrAccountDisabled
	}
	principal, err := store.ResolvePrincipal(ctx, user.ID)
	if err != nil {
		return "", rbac.Principal{}, err
	}
	token, err := s.issuer.Issue(user.ID, principal.Roles)
	if err != nil {
		return "", rbac.Principal{}, err
	}
	return token, principal, nil
}

// Me resolves the full principal for an authenticated user id.
func (s *Service) Me(ctx context.Context, userID string) (rbac.Principal, error) {
	return rbac.NewStore(s.runner.DB()).ResolvePrincipal(ctx, userID)
}

// RecoverPassword starts the reset flow. The response is identical whether
// or not the email exists, so the endpoint cannot be used to enumerate
// accounts. Only the sha256 of the token is persisted; the cleartext goes
// out in the mail and is never stored.
func (s *Service) RecoverPassword(ctx context.Context, email string) error {
	store := rbac.NewStore(s.runner.DB())
	user, err := store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return nil
		}
		return err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return err
	}
	token := hex.EncodeToString(raw)

	err = s.runner.Transactional(ctx, func(ctx context.Context, tx dbtx.DBTX) error {
		_, err := tx.ExecContext(ctx, `
			insert into password_resets (id, user_id, token_hash, expires_at)
			values ($1, $2, $3, $4)
		`, ids.New(), user.ID, hashToken(token), time.Now().UTC().Add(resetTokenTTL))
		return err
	})
	if err != nil {
		return err
	}
	return s.mailer.SendPasswordReset(ctx, user.Email, s.appURL+"/reset-password?token="+token)
}

// ResetPassword consumes a recovery token and replaces the credential. The
// token row is locked, checked for expiry and single use, and marked used in
// the same transaction as the credential update.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.runner.Transactional(ctx, func(ctx context.Context, tx dbtx.DBTX) error {
		var resetID, userID string
		err := tx.QueryRowContext(ctx, `
			select id, user_id from password_resets
			where token_hash = $1 and used_at is null and expires_at > now()
			for update
		`, hashToken(token)).Scan(&resetID, &userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrInvalidToken
			}
			return err
		}
		store := rbac.NewStore(tx)
		if err := store.UpdatePasswordHash(ctx, userID, hash); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`update password_resets set used_at = now() where id = $1`, resetID); err != nil {
			return err
		}
		return auditlog.NewStore(tx).Append(ctx, userID, "user.password_reset", "user", userID, nil, nil)
	})
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

package auth

import (
	"context"

	"auditoria.org/internal/obs"
)

// Mailer delivers the password-recovery message. Delivery is out of process
// concern for this service; implementations range from a real SMTP sender to
// the log-only development mailer below.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, resetURL string) error
}

// LogMailer writes the reset link to the application log instead of sending
// mail. Default in development and tests.
type LogMailer struct{}

func (LogMailer) SendPasswordReset(_ context.Context, email, resetURL string) error {
	obs.Event("password_reset_requested", map[string]any{
		"email":     email,
		"reset_url": resetURL,
	})
	return nil
}

// Package httpapi is the HTTP layer: routing, authentication middleware and
// the translation of service sentinel errors into the wire error taxonomy.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"auditoria.org/internal/audits"
	"auditoria.org/internal/auth"
	"auditoria.org/internal/compliance"
	"auditoria.org/internal/dashboard"
	"auditoria.org/internal/dbtx"
	"auditoria.org/internal/meetings"
	"auditoria.org/internal/notifications"
	"auditoria.org/internal/obs"
	"auditoria.org/internal/rbac"
)

// idempotencyHeader carries the client-chosen key for replay-safe mutations.
const idempotencyHeader = "Idempotency-Key"

// Wire error codes. Clients branch on these, not on the human message.
const (
	codeUnauthenticated = "UNAUTHENTICATED"
	codeForbidden       = "FORBIDDEN"
	codeValidation      = "VALIDATION_ERROR"
	codeNotFound        = "NOT_FOUND"
	codeConflict        = "CONFLICT"
	codeVersionConflict = "VERSION_CONFLICT"
	codeTimeConflict    = "TIME_CONFLICT"
	codeInternal        = "INTERNAL"
)

// ReadyProbe reports whether the service can take traffic.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Services bundles the domain services the API exposes.
type Services struct {
	Auth          *auth.Service
	Audits        *audits.Service
	Meetings      *meetings.Service
	Notifications *notifications.Service
	Compliance    *compliance.Service
	Dashboard     *dashboard.Service
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	issuer *auth.TokenIssuer
	runner *dbtx.Runner
	svc    Services

	maxBodyBytes int64
	rateLimit    int
	rateBurst    int
}

// Options tunes the outer middleware.
type Options struct {
	MaxBodyBytes int64
	RatePerSec   int
	RateBurst    int
}

func New(rp ReadyProbe, version string, issuer *auth.TokenIssuer, runner *dbtx.Runner, svc Services, opts Options) *API {
	a := &API{
		mux:          http.NewServeMux(),
		readyProbe:   rp,
		version:      version,
		issuer:       issuer,
		runner:       runner,
		svc:          svc,
		maxBodyBytes: opts.MaxBodyBytes,
		rateLimit:    opts.RatePerSec,
		rateBurst:    opts.RateBurst,
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}
	if a.rateLimit <= 0 {
		a.rateLimit = 20
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 40
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/api/auth/register", a.handleRegister)
	a.mux.HandleFunc("/api/auth/login", a.handleLogin)
	a.mux.HandleFunc("/api/auth/me", a.handleMe)
	a.mux.HandleFunc("/api/auth/recover", a.handleRecover)
	a.mux.HandleFunc("/api/auth/reset-password", a.handleReset)

	a.mux.HandleFunc("/api/audits", a.handleAudits)
	a.mux.HandleFunc("/api/audits/", a.handleAuditResource)

	a.mux.HandleFunc("/api/meetings", a.handleMeetings)

	a.mux.HandleFunc("/api/notifications", a.handleNotifications)
	a.mux.HandleFunc("/api/notifications/", a.handleNotificationResource)

	a.mux.HandleFunc("/api/admin/users", a.handleAdminUsers)
	a.mux.HandleFunc("/api/admin/users/", a.handleAdminUserResource)

	a.mux.HandleFunc("/api/compliance/summary", a.handleComplianceSummary)
	a.mux.HandleFunc("/api/compliance/checks", a.handleComplianceChecks)

	a.mux.HandleFunc("/api/dashboard/summary", a.handleDashboardSummary)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = obs.Instrument(h)
	h = Logging(h)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.rateLimit)
	h = CORS(h)
	h = SecurityHeaders(h)
	return h
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "auditoria-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
		"code":  code,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
}

// handleServiceError maps the sentinel errors of every domain package onto
// the wire taxonomy. Unknown errors become an opaque 500; the message never
// leaks internals.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "invalid credentials")
	case errors.Is(err, auth.ErrAccountDisabled):
		writeError(w, http.StatusForbidden, codeForbidden, "account disabled")
	case errors.Is(err, audits.ErrForbidden),
		errors.Is(err, notifications.ErrForbidden),
		errors.Is(err, compliance.ErrForbidden):
		writeError(w, http.StatusForbidden, codeForbidden, "insufficient permissions")
	case errors.Is(err, audits.ErrVersionConflict), errors.Is(err, notifications.ErrVersionConflict):
		writeError(w, http.StatusConflict, codeVersionConflict, "the resource was modified concurrently; re-read and retry")
	case errors.Is(err, meetings.ErrTimeConflict):
		writeError(w, http.StatusConflict, codeTimeConflict, "another meeting is scheduled within 30 minutes of this slot")
	case errors.Is(err, rbac.ErrConflict):
		writeError(w, http.StatusConflict, codeConflict, "resource already exists")
	case errors.Is(err, audits.ErrNotFound),
		errors.Is(err, notifications.ErrNotFound),
		errors.Is(err, meetings.ErrNotFound),
		errors.Is(err, rbac.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "resource not found")
	case errors.Is(err, audits.ErrInvalidInput),
		errors.Is(err, notifications.ErrInvalidInput),
		errors.Is(err, meetings.ErrInvalidInput),
		errors.Is(err, compliance.ErrInvalidInput),
		errors.Is(err, rbac.ErrInvalidInput),
		errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusUnprocessableEntity, codeValidation, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

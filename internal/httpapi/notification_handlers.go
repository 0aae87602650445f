package httpapi

import (
	"net/http"
	"strings"

	"auditoria.org/internal/notifications"
)

type markReadRequest struct {
	Version int64 `json:"version"`
}

func (a *API) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	list, err := a.svc.Notifications.List(r.Context(), p.User.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if list == nil {
		list = []notifications.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

// handleNotificationResource routes /api/notifications/{id}/read.
func (a *API) handleNotificationResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/notifications/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "read" {
		writeError(w, http.StatusNotFound, codeNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, http.MethodPatch)
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req markReadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	n, err := a.svc.Notifications.MarkRead(r.Context(), p.User.ID, parts[0], req.Version)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

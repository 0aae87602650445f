package httpapi

import (
	"net/http"

	"auditoria.org/internal/meetings"
	"auditoria.org/internal/rbac"
)

func (a *API) handleMeetings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listMeetings(w, r)
	case http.MethodPost:
		a.scheduleMeeting(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listMeetings(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if !rbac.CanManageMeetings(p) {
		writeError(w, http.StatusForbidden, codeForbidden, "insufficient permissions")
		return
	}
	list, err := a.svc.Meetings.List(r.Context(), p.User.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if list == nil {
		list = []meetings.Meeting{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"meetings": list})
}

func (a *API) scheduleMeeting(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if !rbac.CanManageMeetings(p) {
		writeError(w, http.StatusForbidden, codeForbidden, "insufficient permissions")
		return
	}
	var in meetings.ScheduleInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	m, err := a.svc.Meetings.Schedule(r.Context(), p.User.ID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

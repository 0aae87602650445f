package httpapi

import (
	"net/http"
	"strings"

	"auditoria.org/internal/audits"
)

func (a *API) handleAudits(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listAudits(w, r)
	case http.MethodPost:
		a.createAudit(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listAudits(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := audits.ListFilter{
		Status:  strings.TrimSpace(q.Get("status")),
		OwnerID: strings.TrimSpace(q.Get("ownerId")),
	}
	list, err := a.svc.Audits.List(r.Context(), p, filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if list == nil {
		list = []audits.Audit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"audits": list})
}

func (a *API) createAudit(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in audits.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	res, err := a.svc.Audits.Create(r.Context(), p, in, strings.TrimSpace(r.Header.Get(idempotencyHeader)))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if res.Replayed {
		w.Header().Set("Idempotency-Replayed", "true")
	}
	writeRaw(w, res.Status, res.Body)
}

// handleAuditResource routes /api/audits/{id} and /api/audits/{id}/status.
func (a *API) handleAuditResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/audits/"), "/")
	if path == "" {
		writeError(w, http.StatusNotFound, codeNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		a.getAudit(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "status":
		if r.Method != http.MethodPatch {
			methodNotAllowed(w, http.MethodPatch)
			return
		}
		a.updateAuditStatus(w, r, parts[0])
	default:
		writeError(w, http.StatusNotFound, codeNotFound, "resource not found")
	}
}

func (a *API) getAudit(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	audit, err := a.svc.Audits.Get(r.Context(), p, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, audit)
}

func (a *API) updateAuditStatus(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in audits.UpdateStatusInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	updated, err := a.svc.Audits.UpdateStatus(r.Context(), p, id, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

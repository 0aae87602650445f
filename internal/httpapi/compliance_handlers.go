package httpapi

import (
	"net/http"

	"auditoria.org/internal/compliance"
)

func (a *API) handleComplianceSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	sum, err := a.svc.Compliance.Summary(r.Context(), p)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (a *API) handleComplianceChecks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in compliance.RecordInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	logged, err := a.svc.Compliance.Record(r.Context(), p, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, logged)
}

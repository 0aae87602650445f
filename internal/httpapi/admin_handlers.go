package httpapi

import (
	"context"
	"net/http"
	"strings"

	"auditoria.org/internal/dbtx"
	"auditoria.org/internal/rbac"
)

type replaceRolesRequest struct {
	Roles []string `json:"roles"`
}

func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if !rbac.CanManageUsers(p) {
		writeError(w, http.StatusForbidden, codeForbidden, "insufficient permissions")
		return
	}
	users, err := rbac.NewStore(a.runner.DB()).ListUsersWithRoles(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if users == nil {
		users = []rbac.UserSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// handleAdminUserResource routes /api/admin/users/{id}/roles.
func (a *API) handleAdminUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/admin/users/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "roles" {
		writeError(w, http.StatusNotFound, codeNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, http.MethodPut)
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if !rbac.CanManageUsers(p) {
		writeError(w, http.StatusForbidden, codeForbidden, "insufficient permissions")
		return
	}
	var req replaceRolesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	roles := make([]rbac.Role, 0, len(req.Roles))
	for _, name := range req.Roles {
		role, ok := rbac.ParseRole(strings.TrimSpace(name))
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, codeValidation, "unknown role "+name)
			return
		}
		roles = append(roles, role)
	}

	userID := parts[0]
	err := a.runner.Transactional(r.Context(), func(ctx context.Context, tx dbtx.DBTX) error {
		store := rbac.NewStore(tx)
		if _, err := store.FindUserByID(ctx, userID); err != nil {
			return err
		}
		return store.ReplaceRoles(ctx, userID, roles)
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"roles":   req.Roles,
	})
}

package handlers

import (
	"net/http"
	"strconv"

	"tangled.org/agora.social/agora/internal/moderation"
)

type meResponse struct {
	ID          string                  `json:"id"`
	Role        moderation.Role         `json:"role"`
	Permissions []moderation.Permission `json:"permissions"`
}

// HandleMe handles GET /api/me
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := principal(w, r)
	if !ok {
		return
	}
	role := h.roles.CheckRole(r.Context(), id)
	perms := role.Permissions()
	if perms == nil {
		perms = []moderation.Permission{}
	}
	writeJSON(w, meResponse{ID: id, Role: role, Permissions: perms})
}

type roleResponse struct {
	ID   string          `json:"id"`
	Role moderation.Role `json:"role"`
}

// HandleGetRole handles GET /api/roles/{id}
func (h *Handler) HandleGetRole(w http.ResponseWriter, r *http.Request) {
	if _, ok := principal(w, r); !ok {
		return
	}
	id := r.PathValue("id")
	writeJSON(w, roleResponse{ID: id, Role: h.roles.CheckRole(r.Context(), id)})
}

// HandleRoleHistory handles GET /api/audit/roles/{id}
func (h *Handler) HandleRoleHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.roles.RoleHistory(r.Context(), actor, r.PathValue("id"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []moderation.RoleChangeRecord{}
	}
	writeJSON(w, map[string]any{"records": records})
}

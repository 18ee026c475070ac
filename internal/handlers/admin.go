package handlers

import (
	"net/http"

	"tangled.org/agora.social/agora/internal/moderation"
)

// HandleAdmin handles POST /api/admin. The body names the action; the
// caller's admin role is checked before the action runs.
func (h *Handler) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req moderation.AdminRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	out, err := h.admin.Dispatch(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, out)
}

package handlers

import (
	"net/http"

	"tangled.org/agora.social/agora/internal/moderation"
)

// HandleListBlocks handles GET /api/blocks
func (h *Handler) HandleListBlocks(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	blocks, err := h.blocks.ListBlocked(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if blocks == nil {
		blocks = []moderation.Block{}
	}
	writeJSON(w, map[string]any{"blocks": blocks})
}

// HandleBlock handles PUT /api/blocks/{id}
func (h *Handler) HandleBlock(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.blocks.Block(r.Context(), actor, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnblock handles DELETE /api/blocks/{id}
func (h *Handler) HandleUnblock(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.blocks.Unblock(r.Context(), actor, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

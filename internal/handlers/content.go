package handlers

import (
	"net/http"

	"tangled.org/agora.social/agora/internal/feed"
	"tangled.org/agora.social/agora/internal/moderation"
)

// HandleFeed handles GET /api/feed
func (h *Handler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	viewer, ok := principal(w, r)
	if !ok {
		return
	}
	q, err := feed.ParseQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := h.feed.ListPosts(r.Context(), viewer, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, page)
}

// HandleListComments handles GET /api/posts/{id}/comments
func (h *Handler) HandleListComments(w http.ResponseWriter, r *http.Request) {
	viewer, ok := principal(w, r)
	if !ok {
		return
	}
	comments, err := h.feed.ListComments(r.Context(), viewer, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"comments": comments})
}

// HandleDeletePost handles DELETE /api/posts/{id}
func (h *Handler) HandleDeletePost(w http.ResponseWriter, r *http.Request) {
	h.deleteContent(w, r, moderation.ContentPost)
}

// HandleDeleteComment handles DELETE /api/comments/{id}
func (h *Handler) HandleDeleteComment(w http.ResponseWriter, r *http.Request) {
	h.deleteContent(w, r, moderation.ContentComment)
}

func (h *Handler) deleteContent(w http.ResponseWriter, r *http.Request, kind moderation.ContentKind) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	res, err := h.mod.DeleteContent(r.Context(), actor, moderation.ContentRef{Kind: kind, ID: r.PathValue("id")})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, res)
}

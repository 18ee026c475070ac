package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"tangled.org/agora.social/agora/internal/feed"
	"tangled.org/agora.social/agora/internal/middleware"
	"tangled.org/agora.social/agora/internal/moderation"

	"github.com/rs/zerolog/log"
)

// Handler contains all HTTP handler methods and their dependencies.
// Dependencies are injected via the constructor for better testability.
type Handler struct {
	roles  *moderation.RoleService
	mod    *moderation.ModerationService
	blocks *moderation.BlockService
	admin  *moderation.AdminService
	feed   *feed.Service

	// health reports whether the backing store is reachable (optional)
	health func(context.Context) error
	// notifier is told about new reports (optional)
	notifier ReportNotifier
}

// ReportNotifier is told about every successfully filed report
type ReportNotifier interface {
	NotifyReport(r moderation.Report) error
}

// NewHandler creates a new Handler with all required dependencies.
func NewHandler(
	roles *moderation.RoleService,
	mod *moderation.ModerationService,
	blocks *moderation.BlockService,
	admin *moderation.AdminService,
	feedService *feed.Service,
) *Handler {
	return &Handler{
		roles:  roles,
		mod:    mod,
		blocks: blocks,
		admin:  admin,
		feed:   feedService,
	}
}

// SetHealthCheck configures the check behind /healthz
func (h *Handler) SetHealthCheck(fn func(context.Context) error) {
	h.health = fn
}

// SetReportNotifier configures where new reports are announced
func (h *Handler) SetReportNotifier(n ReportNotifier) {
	h.notifier = n
}

// errorResponse is the body of every error response. Error is a stable
// kind that clients map to localized messages.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor maps a service error to its HTTP status
func statusFor(err error) int {
	switch moderation.Kind(err) {
	case "forbidden":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "invalid_role", "invalid_target", "validation_error", "self_block":
		return http.StatusBadRequest
	case "already_default", "conflict":
		return http.StatusConflict
	case "rate_limited":
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error body. Storage failures are logged
// and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: moderation.Kind(err), Message: err.Error()}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		resp.Message = "internal error"
	}
	writeJSONStatus(w, status, resp)
}

func writeUnauthenticated(w http.ResponseWriter) {
	writeJSONStatus(w, http.StatusUnauthorized, errorResponse{
		Error:   "unauthenticated",
		Message: "authentication required",
	})
}

// writeJSON encodes and writes a 200 JSON response
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// principal returns the authenticated account id, writing a 401 when the
// request carries none.
func principal(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeUnauthenticated(w)
	}
	return id, ok
}

// decodeJSON decodes the request body into v, writing a 400 on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONStatus(w, http.StatusRequestEntityTooLarge, errorResponse{
				Error:   "validation_error",
				Message: "request body too large",
			})
			return false
		}
		writeJSONStatus(w, http.StatusBadRequest, errorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return false
	}
	return true
}

// HandleHealth handles GET /healthz
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			log.Error().Err(err).Msg("health check failed")
			writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

package handlers

import (
	"net/http"
	"strconv"
	"time"

	"tangled.org/agora.social/agora/internal/moderation"

	"github.com/rs/zerolog/log"
)

// ReportQuotaHeader carries the reports the caller may still file in the
// current window
const ReportQuotaHeader = "X-Report-Quota-Remaining"

// ReportRequest is the body of POST /api/reports
type ReportRequest struct {
	Target      moderation.ReportTarget `json:"target"`
	Reason      string                  `json:"reason"`
	Description string                  `json:"description,omitempty"`
}

// ReportResponse is returned after a report is filed
type ReportResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// HandleFileReport handles POST /api/reports
func (h *Handler) HandleFileReport(w http.ResponseWriter, r *http.Request) {
	reporter, ok := principal(w, r)
	if !ok {
		return
	}
	var req ReportRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, err := h.mod.FileReport(r.Context(), reporter, req.Target, req.Reason, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Notify admins (non-blocking)
	if h.notifier != nil {
		report := moderation.Report{
			ID:          id,
			ReporterID:  reporter,
			Target:      req.Target,
			Reason:      req.Reason,
			Description: req.Description,
			Status:      moderation.ReportStatusOpen,
			CreatedAt:   time.Now(),
		}
		go func() {
			if err := h.notifier.NotifyReport(report); err != nil {
				log.Error().Err(err).Str("report", id).Msg("Failed to send report notification")
			}
		}()
	}

	if remaining, limited, err := h.mod.ReportQuota(r.Context(), reporter); err != nil {
		log.Warn().Err(err).Str("reporter", reporter).Msg("Failed to read report quota")
	} else if limited {
		w.Header().Set(ReportQuotaHeader, strconv.Itoa(remaining))
	}

	writeJSONStatus(w, http.StatusCreated, ReportResponse{ID: id, Status: string(moderation.ReportStatusOpen)})
}

// HandleListReports handles GET /api/reports
func (h *Handler) HandleListReports(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	reports, err := h.mod.ListReports(r.Context(), actor, moderation.ReportStatus(q.Get("status")), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if reports == nil {
		reports = []moderation.Report{}
	}
	writeJSON(w, map[string]any{"reports": reports})
}

// HandleResolveReport handles POST /api/reports/{id}/resolve
func (h *Handler) HandleResolveReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.mod.ResolveReport(r.Context(), actor, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, ReportResponse{ID: r.PathValue("id"), Status: string(moderation.ReportStatusResolved)})
}

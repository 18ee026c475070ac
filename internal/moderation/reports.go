package moderation

import (
	"context"
	"strings"
	"unicode/utf8"

	"tangled.org/agora.social/agora/internal/metrics"
	"tangled.org/agora.social/agora/internal/tracing"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// MaxReportReasonLength is the maximum length of a report reason
	MaxReportReasonLength = 200
	// MaxReportDescriptionLength is the maximum length of a report description
	MaxReportDescriptionLength = 1000
	// DefaultReportListLimit caps ListReports when no limit is given
	DefaultReportListLimit = 100
)

// OtherReason is the catch-all report category. Reports filed under it must
// carry a description.
const OtherReason = "Outro motivo"

// IsOtherReason reports whether reason names the catch-all category
func IsOtherReason(reason string) bool {
	r := strings.TrimSpace(reason)
	return strings.EqualFold(r, OtherReason) || strings.EqualFold(r, "other")
}

// FileReport records a report by reporterID against exactly one account,
// post or comment, and returns the new report's id.
func (s *ModerationService) FileReport(ctx context.Context, reporterID string, target ReportTarget, reason, description string) (id string, err error) {
	ctx, span := tracing.ServiceSpan(ctx, "FileReport", reporterID)
	defer func() {
		tracing.EndWithError(span, err)
		span.End()
		if err != nil {
			metrics.ReportsTotal.WithLabelValues("rejected").Inc()
		}
	}()

	if reporterID == "" {
		return "", ErrForbidden
	}
	if target.count() != 1 {
		return "", ErrInvalidTarget
	}
	target = ReportTarget{
		AccountID: strings.TrimSpace(target.AccountID),
		PostID:    strings.TrimSpace(target.PostID),
		CommentID: strings.TrimSpace(target.CommentID),
	}
	if target.AccountID == reporterID {
		return "", ErrInvalidTarget
	}

	reason = strings.TrimSpace(reason)
	description = strings.TrimSpace(description)
	if reason == "" {
		return "", invalid("reason", "is required")
	}
	if utf8.RuneCountInString(reason) > MaxReportReasonLength {
		return "", invalid("reason", "must be at most 200 characters")
	}
	if IsOtherReason(reason) && description == "" {
		return "", invalid("description", "is required when reason is "+OtherReason)
	}
	if utf8.RuneCountInString(description) > MaxReportDescriptionLength {
		return "", invalid("description", "must be at most 1000 characters")
	}

	if err := s.targetExists(ctx, target); err != nil {
		return "", err
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, reporterID)
		if err != nil {
			return "", storageErr("report limiter", err)
		}
		if !allowed {
			log.Warn().Str("reporter", reporterID).Msg("moderation: report rate limit exceeded")
			return "", ErrRateLimited
		}
	}

	report := Report{
		ID:          uuid.NewString(),
		ReporterID:  reporterID,
		Target:      target,
		Reason:      reason,
		Description: description,
		Status:      ReportStatusOpen,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateReport(ctx, report); err != nil {
		if s.limiter != nil {
			if rerr := s.limiter.Release(ctx, reporterID); rerr != nil {
				log.Warn().Err(rerr).Str("reporter", reporterID).Msg("moderation: report quota not released")
			}
		}
		return "", storageErr("create report", err)
	}

	metrics.ReportsTotal.WithLabelValues("filed").Inc()
	log.Info().
		Str("report_id", report.ID).
		Str("reporter", reporterID).
		Str("target_account", target.AccountID).
		Str("target_post", target.PostID).
		Str("target_comment", target.CommentID).
		Str("reason", reason).
		Msg("moderation: report created")
	return report.ID, nil
}

// ReportQuota returns how many more reports reporterID may file in the
// current window. ok is false when no limiter is configured.
func (s *ModerationService) ReportQuota(ctx context.Context, reporterID string) (remaining int, ok bool, err error) {
	if s.limiter == nil {
		return 0, false, nil
	}
	n, err := s.limiter.Remaining(ctx, reporterID)
	if err != nil {
		return 0, false, storageErr("report quota", err)
	}
	return n, true, nil
}

func (s *ModerationService) targetExists(ctx context.Context, t ReportTarget) error {
	var found bool
	switch {
	case t.AccountID != "":
		acct, err := s.store.GetAccount(ctx, t.AccountID)
		if err != nil {
			return storageErr("get account", err)
		}
		found = acct != nil
	case t.PostID != "":
		_, ok, err := s.store.ContentAuthor(ctx, ContentRef{Kind: ContentPost, ID: t.PostID})
		if err != nil {
			return storageErr("content author", err)
		}
		found = ok
	default:
		_, ok, err := s.store.ContentAuthor(ctx, ContentRef{Kind: ContentComment, ID: t.CommentID})
		if err != nil {
			return storageErr("content author", err)
		}
		found = ok
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// ListReports returns reports with the given status, newest first. An empty
// status lists all reports. Moderators and admins only.
func (s *ModerationService) ListReports(ctx context.Context, actorID string, status ReportStatus, limit int) ([]Report, error) {
	if _, err := s.roles.require(ctx, actorID, PermissionViewReports, "list_reports"); err != nil {
		return nil, err
	}
	switch status {
	case "", ReportStatusOpen, ReportStatusResolved:
	default:
		return nil, invalid("status", "must be open or resolved")
	}
	if limit <= 0 || limit > DefaultReportListLimit {
		limit = DefaultReportListLimit
	}
	reports, err := s.store.ListReports(ctx, status, limit)
	if err != nil {
		return nil, storageErr("list reports", err)
	}
	return reports, nil
}

// ResolveReport marks a report resolved. Resolving an already resolved
// report fails with ErrConflict.
func (s *ModerationService) ResolveReport(ctx context.Context, actorID, reportID string) (err error) {
	ctx, span := tracing.ServiceSpan(ctx, "ResolveReport", actorID)
	defer func() {
		tracing.EndWithError(span, err)
		span.End()
	}()

	if _, err := s.roles.require(ctx, actorID, PermissionResolveReport, "resolve_report"); err != nil {
		return err
	}
	if err := s.store.ResolveReport(ctx, reportID, actorID, s.now().UTC()); err != nil {
		return storageErr("resolve report", err)
	}

	metrics.ReportsTotal.WithLabelValues("resolved").Inc()
	log.Info().
		Str("report_id", reportID).
		Str("actor", actorID).
		Msg("moderation: report resolved")
	return nil
}

// CountOpenReports returns the number of unresolved reports
func (s *ModerationService) CountOpenReports(ctx context.Context) (int, error) {
	n, err := s.store.CountOpenReports(ctx)
	if err != nil {
		return 0, storageErr("count open reports", err)
	}
	return n, nil
}

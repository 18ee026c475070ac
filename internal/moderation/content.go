package moderation

import (
	"context"
	"strconv"
	"time"

	"tangled.org/agora.social/agora/internal/metrics"
	"tangled.org/agora.social/agora/internal/tracing"

	"github.com/rs/zerolog/log"
)

// ModerationService handles content takedown and the report workflow
type ModerationService struct {
	store   Store
	roles   *RoleService
	limiter ReportLimiter
	now     func() time.Time
}

// NewModerationService creates a moderation service. Roles are resolved
// through roles on every call.
func NewModerationService(store Store, roles *RoleService) *ModerationService {
	return &ModerationService{store: store, roles: roles, now: time.Now}
}

// SetReportLimiter configures the abuse limiter consulted by FileReport.
// A nil limiter disables limiting.
func (s *ModerationService) SetReportLimiter(l ReportLimiter) {
	s.limiter = l
}

// DeleteContent removes a post or comment along with its dependents.
// Authors may delete their own content; moderators and admins may delete
// anything.
func (s *ModerationService) DeleteContent(ctx context.Context, actorID string, ref ContentRef) (res *DeletionResult, err error) {
	ctx, span := tracing.ServiceSpan(ctx, "DeleteContent", actorID)
	defer func() {
		tracing.EndWithError(span, err)
		span.End()
	}()

	if ref.Kind != ContentPost && ref.Kind != ContentComment {
		return nil, invalid("kind", "must be post or comment")
	}
	if ref.ID == "" {
		return nil, ErrNotFound
	}

	authorID, ok, err := s.store.ContentAuthor(ctx, ref)
	if err != nil {
		return nil, storageErr("content author", err)
	}
	if !ok {
		return nil, ErrNotFound
	}

	privileged := false
	if actorID == "" || actorID != authorID {
		if _, err := s.roles.require(ctx, actorID, PermissionDeleteContent, "delete_"+string(ref.Kind)); err != nil {
			return nil, err
		}
		privileged = true
	}

	res, err = s.store.DeleteContent(ctx, ref, actorID, s.now().UTC())
	if err != nil {
		return nil, storageErr("delete content", err)
	}

	metrics.ContentDeletionsTotal.WithLabelValues(string(ref.Kind), strconv.FormatBool(privileged)).Inc()
	event := log.Info()
	if privileged {
		event = log.Warn()
	}
	event.
		Str("actor", actorID).
		Str("author", authorID).
		Str("content", ref.String()).
		Bool("privileged", privileged).
		Int("comments", res.Comments).
		Int("reactions", res.Reactions).
		Int("resolved_reports", res.ResolvedReports).
		Msg("moderation: content deleted")
	return res, nil
}

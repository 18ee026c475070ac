package moderation

import (
	"context"
	"strings"
	"time"

	"tangled.org/agora.social/agora/internal/metrics"
	"tangled.org/agora.social/agora/internal/tracing"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MaxRoleReasonLength bounds the free-text reason stored in the audit log
const MaxRoleReasonLength = 500

// DefaultHistoryLimit is used when RoleHistory is called without a limit
const DefaultHistoryLimit = 50

// RoleService manages role assignment and answers role queries.
// Roles are always read from the store; nothing is cached in process.
type RoleService struct {
	store Store
	now   func() time.Time
}

// NewRoleService creates a role service backed by store
func NewRoleService(store Store) *RoleService {
	return &RoleService{store: store, now: time.Now}
}

// CheckRole returns the current role of accountID. It never fails: unknown
// accounts and store errors both yield the default role.
func (s *RoleService) CheckRole(ctx context.Context, accountID string) Role {
	if accountID == "" {
		return DefaultRole
	}
	role, ok, err := s.store.GetRole(ctx, accountID)
	if err != nil {
		log.Error().Err(err).Str("account", accountID).Msg("moderation: role lookup failed, using default role")
		return DefaultRole
	}
	if !ok {
		return DefaultRole
	}
	return role
}

// HasPermission reports whether accountID's current role grants perm
func (s *RoleService) HasPermission(ctx context.Context, accountID string, perm Permission) bool {
	return s.CheckRole(ctx, accountID).HasPermission(perm)
}

// roleOf is the strict variant of CheckRole used by authorization gates so
// that storage failures surface instead of masquerading as a denial.
func (s *RoleService) roleOf(ctx context.Context, accountID string) (Role, error) {
	if accountID == "" {
		return DefaultRole, nil
	}
	role, ok, err := s.store.GetRole(ctx, accountID)
	if err != nil {
		return "", storageErr("get role", err)
	}
	if !ok {
		return DefaultRole, nil
	}
	return role, nil
}

// require fails with ErrForbidden unless actorID's role grants perm
func (s *RoleService) require(ctx context.Context, actorID string, perm Permission, op string) (Role, error) {
	role, err := s.roleOf(ctx, actorID)
	if err != nil {
		return "", err
	}
	if !role.HasPermission(perm) {
		metrics.AuthzDeniedTotal.WithLabelValues(op).Inc()
		log.Warn().
			Str("actor", actorID).
			Str("role", string(role)).
			Str("operation", op).
			Msg("moderation: permission denied")
		return role, ErrForbidden
	}
	return role, nil
}

// AssignRole sets targetID's role. Only admins may assign roles.
func (s *RoleService) AssignRole(ctx context.Context, actorID, targetID, role, reason string) (rec *RoleChangeRecord, err error) {
	ctx, span := tracing.ServiceSpan(ctx, "AssignRole", actorID)
	defer func() {
		tracing.EndWithError(span, err)
		span.End()
	}()

	if _, err := s.require(ctx, actorID, PermissionManageRoles, "assign_role"); err != nil {
		return nil, err
	}
	newRole, err := ParseRole(role)
	if err != nil {
		return nil, err
	}
	reason, err = cleanRoleReason(reason)
	if err != nil {
		return nil, err
	}

	return s.apply(ctx, RoleChange{
		ActorID:   actorID,
		AccountID: targetID,
		NewRole:   newRole,
		Reason:    reason,
	})
}

// RemoveRole returns targetID to the default role. Fails with
// ErrAlreadyDefault when the target holds no elevated role.
func (s *RoleService) RemoveRole(ctx context.Context, actorID, targetID, reason string) (rec *RoleChangeRecord, err error) {
	ctx, span := tracing.ServiceSpan(ctx, "RemoveRole", actorID)
	defer func() {
		tracing.EndWithError(span, err)
		span.End()
	}()

	if _, err := s.require(ctx, actorID, PermissionManageRoles, "remove_role"); err != nil {
		return nil, err
	}
	reason, err = cleanRoleReason(reason)
	if err != nil {
		return nil, err
	}

	return s.apply(ctx, RoleChange{
		ActorID:         actorID,
		AccountID:       targetID,
		NewRole:         DefaultRole,
		Reason:          reason,
		RequireElevated: true,
	})
}

func (s *RoleService) apply(ctx context.Context, change RoleChange) (*RoleChangeRecord, error) {
	if strings.TrimSpace(change.AccountID) == "" {
		return nil, ErrNotFound
	}
	change.ID = uuid.NewString()
	change.At = s.now().UTC()

	rec, err := s.store.ApplyRoleChange(ctx, change)
	if err != nil {
		return nil, storageErr("apply role change", err)
	}

	metrics.RoleChangesTotal.WithLabelValues(string(rec.NewRole)).Inc()
	old := "none"
	if rec.OldRole != nil {
		old = string(*rec.OldRole)
	}
	log.Info().
		Str("actor", rec.ChangedBy).
		Str("target", rec.AccountID).
		Str("old_role", old).
		Str("role", string(rec.NewRole)).
		Str("reason", rec.Reason).
		Msg("moderation: role changed")
	return rec, nil
}

// RoleHistory returns the audit records for accountID, newest first.
// Only admins may read the role audit log.
func (s *RoleService) RoleHistory(ctx context.Context, actorID, accountID string, limit int) ([]RoleChangeRecord, error) {
	if _, err := s.require(ctx, actorID, PermissionViewAuditLog, "role_history"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	records, err := s.store.ListRoleChanges(ctx, accountID, limit)
	if err != nil {
		return nil, storageErr("list role changes", err)
	}
	return records, nil
}

// CountByRole returns the number of accounts holding each stored role
func (s *RoleService) CountByRole(ctx context.Context) (map[Role]int, error) {
	counts, err := s.store.CountByRole(ctx)
	if err != nil {
		return nil, storageErr("count roles", err)
	}
	return counts, nil
}

func cleanRoleReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > MaxRoleReasonLength {
		return "", invalid("reason", "must be at most 500 characters")
	}
	return reason, nil
}

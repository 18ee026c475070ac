package moderation

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Admin actions accepted by AdminService.Dispatch
const (
	ActionGetUsers       = "get_users"
	ActionGetUserDetails = "get_user_details"
	ActionAssignRole     = "assign_role"
	ActionRemoveRole     = "remove_role"
	ActionDeletePost     = "delete_post"
)

const (
	DefaultUsersPageSize = 50
	MaxUsersPageSize     = 200
)

// AdminRequest is one administrative request. Which fields are read depends
// on Action.
type AdminRequest struct {
	Action string `json:"action"`
	UserID string `json:"user_id,omitempty"`
	PostID string `json:"post_id,omitempty"`
	Role   string `json:"role,omitempty"`
	Reason string `json:"reason,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// UserPage is a page of accounts with their current roles
type UserPage struct {
	Users  []AccountWithRole `json:"users"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// UserDetails is the administrative view of a single account
type UserDetails struct {
	Account      Account            `json:"account"`
	Role         Role               `json:"role"`
	RoleHistory  []RoleChangeRecord `json:"role_history"`
	PostCount    int                `json:"post_count"`
	ReportsFiled int                `json:"reports_filed"`
}

// AdminService serves the administrative request surface. Every request
// re-reads the caller's role before doing anything else.
type AdminService struct {
	store Store
	roles *RoleService
	mod   *ModerationService
}

// NewAdminService creates an admin service over the role and moderation
// services
func NewAdminService(store Store, roles *RoleService, mod *ModerationService) *AdminService {
	return &AdminService{store: store, roles: roles, mod: mod}
}

// Dispatch verifies that actorID is an admin and runs req. The result is
// ready to be encoded as the response body.
func (s *AdminService) Dispatch(ctx context.Context, actorID string, req AdminRequest) (any, error) {
	action := strings.TrimSpace(req.Action)
	if _, err := s.roles.require(ctx, actorID, PermissionManageRoles, adminOp(action)); err != nil {
		return nil, err
	}

	log.Debug().Str("actor", actorID).Str("action", action).Msg("moderation: admin request")

	switch action {
	case ActionGetUsers:
		return s.ListUsers(ctx, actorID, req.Limit, req.Offset)
	case ActionGetUserDetails:
		return s.UserDetails(ctx, actorID, req.UserID)
	case ActionAssignRole:
		return s.roles.AssignRole(ctx, actorID, req.UserID, req.Role, req.Reason)
	case ActionRemoveRole:
		return s.roles.RemoveRole(ctx, actorID, req.UserID, req.Reason)
	case ActionDeletePost:
		return s.mod.DeleteContent(ctx, actorID, ContentRef{Kind: ContentPost, ID: req.PostID})
	default:
		return nil, invalid("action", "unknown action "+action)
	}
}

// adminOp is the metric label for action. Unknown actions share one label so
// request bodies cannot grow the series count.
func adminOp(action string) string {
	switch action {
	case ActionGetUsers, ActionGetUserDetails, ActionAssignRole, ActionRemoveRole, ActionDeletePost:
		return "admin_" + action
	default:
		return "admin_unknown"
	}
}

// ListUsers returns a page of accounts with their roles. Admins only.
func (s *AdminService) ListUsers(ctx context.Context, actorID string, limit, offset int) (*UserPage, error) {
	if _, err := s.roles.require(ctx, actorID, PermissionListAccounts, ActionGetUsers); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultUsersPageSize
	}
	if limit > MaxUsersPageSize {
		limit = MaxUsersPageSize
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.store.ListAccounts(ctx, limit, offset)
	if err != nil {
		return nil, storageErr("list accounts", err)
	}
	total, err := s.store.CountAccounts(ctx)
	if err != nil {
		return nil, storageErr("count accounts", err)
	}
	if users == nil {
		users = []AccountWithRole{}
	}
	return &UserPage{Users: users, Total: total, Limit: limit, Offset: offset}, nil
}

// UserDetails loads an account with its role, role history and activity
// counts. The parts are fetched concurrently. Admins only.
func (s *AdminService) UserDetails(ctx context.Context, actorID, userID string) (*UserDetails, error) {
	if _, err := s.roles.require(ctx, actorID, PermissionListAccounts, ActionGetUserDetails); err != nil {
		return nil, err
	}
	acct, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, storageErr("get account", err)
	}
	if acct == nil {
		return nil, ErrNotFound
	}

	details := &UserDetails{Account: *acct}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		role, err := s.roles.roleOf(gctx, userID)
		details.Role = role
		return err
	})
	g.Go(func() error {
		history, err := s.store.ListRoleChanges(gctx, userID, DefaultHistoryLimit)
		details.RoleHistory = history
		return storageErr("list role changes", err)
	})
	g.Go(func() error {
		n, err := s.store.CountPostsByAuthor(gctx, userID)
		details.PostCount = n
		return storageErr("count posts", err)
	})
	g.Go(func() error {
		n, err := s.store.CountReportsByReporter(gctx, userID)
		details.ReportsFiled = n
		return storageErr("count reports", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if details.RoleHistory == nil {
		details.RoleHistory = []RoleChangeRecord{}
	}
	return details, nil
}

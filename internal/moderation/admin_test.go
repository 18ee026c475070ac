package moderation_test

import (
	"context"
	"fmt"
	"testing"

	"tangled.org/agora.social/agora/internal/metrics"
	"tangled.org/agora.social/agora/internal/moderation"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_RequiresAdmin(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	for _, actor := range []string{"", "alice", "mod"} {
		_, err := e.admin.Dispatch(ctx, actor, moderation.AdminRequest{Action: moderation.ActionGetUsers})
		assert.ErrorIs(t, err, moderation.ErrForbidden, "actor %q", actor)
	}
}

func TestDispatch_RechecksRoleEveryRequest(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.admin.Dispatch(ctx, "alice", moderation.AdminRequest{Action: moderation.ActionGetUsers})
	require.ErrorIs(t, err, moderation.ErrForbidden)

	_, err = e.roles.AssignRole(ctx, "admin", "alice", "admin", "")
	require.NoError(t, err)
	_, err = e.admin.Dispatch(ctx, "alice", moderation.AdminRequest{Action: moderation.ActionGetUsers})
	require.NoError(t, err)

	_, err = e.roles.RemoveRole(ctx, "admin", "alice", "")
	require.NoError(t, err)
	_, err = e.admin.Dispatch(ctx, "alice", moderation.AdminRequest{Action: moderation.ActionGetUsers})
	assert.ErrorIs(t, err, moderation.ErrForbidden)
}

func TestDispatch_GetUsers(t *testing.T) {
	e := setup(t)

	out, err := e.admin.Dispatch(context.Background(), "admin", moderation.AdminRequest{Action: moderation.ActionGetUsers, Limit: 2})
	require.NoError(t, err)
	page, ok := out.(*moderation.UserPage)
	require.True(t, ok)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 2, page.Limit)
	assert.Len(t, page.Users, 2)

	out, err = e.admin.Dispatch(context.Background(), "admin", moderation.AdminRequest{Action: moderation.ActionGetUsers, Limit: 1000, Offset: 3})
	require.NoError(t, err)
	page = out.(*moderation.UserPage)
	assert.Equal(t, moderation.MaxUsersPageSize, page.Limit)
	assert.Len(t, page.Users, 1)

	roles := map[string]moderation.Role{}
	all, err := e.admin.ListUsers(context.Background(), "admin", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, moderation.DefaultUsersPageSize, all.Limit)
	for _, u := range all.Users {
		roles[u.ID] = u.Role
	}
	assert.Equal(t, map[string]moderation.Role{
		"admin": moderation.RoleAdmin,
		"mod":   moderation.RoleModerator,
		"alice": moderation.RoleUser,
		"bob":   moderation.RoleUser,
	}, roles)
}

func TestDispatch_GetUserDetails(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.fx.Post("p1", "alice", false)
	e.fx.Post("p2", "alice", true)
	_, err := e.mod.FileReport(ctx, "alice", moderation.ReportTarget{AccountID: "bob"}, "Spam", "")
	require.NoError(t, err)
	_, err = e.roles.AssignRole(ctx, "admin", "alice", "moderator", "")
	require.NoError(t, err)

	out, err := e.admin.Dispatch(ctx, "admin", moderation.AdminRequest{Action: moderation.ActionGetUserDetails, UserID: "alice"})
	require.NoError(t, err)
	details := out.(*moderation.UserDetails)
	assert.Equal(t, "alice", details.Account.ID)
	assert.Equal(t, moderation.RoleModerator, details.Role)
	assert.Len(t, details.RoleHistory, 1)
	assert.Equal(t, 2, details.PostCount)
	assert.Equal(t, 1, details.ReportsFiled)

	_, err = e.admin.Dispatch(ctx, "admin", moderation.AdminRequest{Action: moderation.ActionGetUserDetails, UserID: "ghost"})
	assert.ErrorIs(t, err, moderation.ErrNotFound)
}

func TestDispatch_RoleActions(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	out, err := e.admin.Dispatch(ctx, "admin", moderation.AdminRequest{Action: moderation.ActionAssignRole, UserID: "bob", Role: "moderator", Reason: "helpful"})
	require.NoError(t, err)
	rec := out.(*moderation.RoleChangeRecord)
	assert.Equal(t, moderation.RoleModerator, rec.NewRole)

	_, err = e.admin.Dispatch(ctx, "admin", moderation.AdminRequest{Action: moderation.ActionAssignRole, UserID: "bob", Role: "owner"})
	assert.ErrorIs(t, err, moderation.ErrInvalidRole)

	_, err = e.admin.Dispatch(ctx, "admin", moderation.AdminRequest{Action: moderation.ActionRemoveRole, UserID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, moderation.RoleUser, e.roles.CheckRole(ctx, "bob"))
	assert.Len(t, e.history(t, "bob"), 2)
}

func TestDispatch_DeletePost(t *testing.T) {
	e := setup(t)
	seedThread(e)

	out, err := e.admin.Dispatch(context.Background(), "admin", moderation.AdminRequest{Action: moderation.ActionDeletePost, PostID: "p1"})
	require.NoError(t, err)
	res := out.(*moderation.DeletionResult)
	assert.Equal(t, 4, res.Comments)
	assert.False(t, postExists(t, e, "p1"))
}

func TestDispatch_UnknownAction(t *testing.T) {
	e := setup(t)
	_, err := e.admin.Dispatch(context.Background(), "admin", moderation.AdminRequest{Action: "drop_tables"})
	assert.ErrorIs(t, err, moderation.ErrValidation)
}

func TestDispatch_DeniedActionLabelsAreBounded(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	for i := range 20 {
		_, err := e.admin.Dispatch(ctx, "alice", moderation.AdminRequest{Action: fmt.Sprintf("junk-%d", i)})
		require.ErrorIs(t, err, moderation.ErrForbidden)
	}
	series := testutil.CollectAndCount(metrics.AuthzDeniedTotal)
	unknown := testutil.ToFloat64(metrics.AuthzDeniedTotal.WithLabelValues("admin_unknown"))

	for i := range 20 {
		_, err := e.admin.Dispatch(ctx, "alice", moderation.AdminRequest{Action: fmt.Sprintf("other-%d", i)})
		require.ErrorIs(t, err, moderation.ErrForbidden)
	}
	assert.Equal(t, series, testutil.CollectAndCount(metrics.AuthzDeniedTotal))
	assert.Equal(t, unknown+20, testutil.ToFloat64(metrics.AuthzDeniedTotal.WithLabelValues("admin_unknown")))
}

// Package database holds storage test doubles shared across packages.
// The concrete adapters live in its subpackages.
package database

import (
	"context"
	"time"

	"tangled.org/agora.social/agora/internal/moderation"
)

// MockStore is a mock implementation of moderation.Store for testing.
// Uses function fields to allow tests to inject custom behavior. Unset
// functions return zero values, which the services read as "not found".
type MockStore struct {
	// Account operations
	UpsertAccountFunc func(ctx context.Context, acct moderation.Account) error
	GetAccountFunc    func(ctx context.Context, id string) (*moderation.Account, error)
	ListAccountsFunc  func(ctx context.Context, limit, offset int) ([]moderation.AccountWithRole, error)
	CountAccountsFunc func(ctx context.Context) (int, error)

	// Role operations
	GetRoleFunc         func(ctx context.Context, accountID string) (moderation.Role, bool, error)
	ApplyRoleChangeFunc func(ctx context.Context, change moderation.RoleChange) (*moderation.RoleChangeRecord, error)
	ListRoleChangesFunc func(ctx context.Context, accountID string, limit int) ([]moderation.RoleChangeRecord, error)
	CountByRoleFunc     func(ctx context.Context) (map[moderation.Role]int, error)

	// Content operations
	CreatePostFunc          func(ctx context.Context, p moderation.Post) error
	CreateCommentFunc       func(ctx context.Context, c moderation.Comment) error
	CreateReactionFunc      func(ctx context.Context, r moderation.Reaction) error
	GetPostFunc             func(ctx context.Context, id string) (*moderation.Post, error)
	GetCommentFunc          func(ctx context.Context, id string) (*moderation.Comment, error)
	ContentAuthorFunc       func(ctx context.Context, ref moderation.ContentRef) (string, bool, error)
	DeleteContentFunc       func(ctx context.Context, ref moderation.ContentRef, resolvedBy string, at time.Time) (*moderation.DeletionResult, error)
	CountPostsByAuthorFunc  func(ctx context.Context, authorID string) (int, error)
	ListVisiblePostsFunc    func(ctx context.Context, viewerID string, before time.Time, beforeID string, limit int) ([]moderation.PostSummary, error)
	ListVisibleCommentsFunc func(ctx context.Context, viewerID, postID string) ([]moderation.Comment, error)

	// Report operations
	CreateReportFunc              func(ctx context.Context, report moderation.Report) error
	GetReportFunc                 func(ctx context.Context, id string) (*moderation.Report, error)
	ListReportsFunc               func(ctx context.Context, status moderation.ReportStatus, limit int) ([]moderation.Report, error)
	ResolveReportFunc             func(ctx context.Context, id, resolvedBy string, at time.Time) error
	CountReportsFromUserSinceFunc func(ctx context.Context, reporterID string, since time.Time) (int, error)
	CountReportsByReporterFunc    func(ctx context.Context, reporterID string) (int, error)
	CountOpenReportsFunc          func(ctx context.Context) (int, error)

	// Block operations
	InsertBlockFunc    func(ctx context.Context, b moderation.Block) error
	DeleteBlockFunc    func(ctx context.Context, blockerID, blockedID string) error
	HasBlockEitherFunc func(ctx context.Context, a, b string) (bool, error)
	ListBlockedFunc    func(ctx context.Context, blockerID string) ([]moderation.Block, error)
}

var _ moderation.Store = (*MockStore)(nil)

func (m *MockStore) UpsertAccount(ctx context.Context, acct moderation.Account) error {
	if m.UpsertAccountFunc != nil {
		return m.UpsertAccountFunc(ctx, acct)
	}
	return nil
}

func (m *MockStore) GetAccount(ctx context.Context, id string) (*moderation.Account, error) {
	if m.GetAccountFunc != nil {
		return m.GetAccountFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockStore) ListAccounts(ctx context.Context, limit, offset int) ([]moderation.AccountWithRole, error) {
	if m.ListAccountsFunc != nil {
		return m.ListAccountsFunc(ctx, limit, offset)
	}
	return nil, nil
}

func (m *MockStore) CountAccounts(ctx context.Context) (int, error) {
	if m.CountAccountsFunc != nil {
		return m.CountAccountsFunc(ctx)
	}
	return 0, nil
}

func (m *MockStore) GetRole(ctx context.Context, accountID string) (moderation.Role, bool, error) {
	if m.GetRoleFunc != nil {
		return m.GetRoleFunc(ctx, accountID)
	}
	return "", false, nil
}

func (m *MockStore) ApplyRoleChange(ctx context.Context, change moderation.RoleChange) (*moderation.RoleChangeRecord, error) {
	if m.ApplyRoleChangeFunc != nil {
		return m.ApplyRoleChangeFunc(ctx, change)
	}
	return nil, nil
}

func (m *MockStore) ListRoleChanges(ctx context.Context, accountID string, limit int) ([]moderation.RoleChangeRecord, error) {
	if m.ListRoleChangesFunc != nil {
		return m.ListRoleChangesFunc(ctx, accountID, limit)
	}
	return nil, nil
}

func (m *MockStore) CountByRole(ctx context.Context) (map[moderation.Role]int, error) {
	if m.CountByRoleFunc != nil {
		return m.CountByRoleFunc(ctx)
	}
	return nil, nil
}

func (m *MockStore) CreatePost(ctx context.Context, p moderation.Post) error {
	if m.CreatePostFunc != nil {
		return m.CreatePostFunc(ctx, p)
	}
	return nil
}

func (m *MockStore) CreateComment(ctx context.Context, c moderation.Comment) error {
	if m.CreateCommentFunc != nil {
		return m.CreateCommentFunc(ctx, c)
	}
	return nil
}

func (m *MockStore) CreateReaction(ctx context.Context, r moderation.Reaction) error {
	if m.CreateReactionFunc != nil {
		return m.CreateReactionFunc(ctx, r)
	}
	return nil
}

func (m *MockStore) GetPost(ctx context.Context, id string) (*moderation.Post, error) {
	if m.GetPostFunc != nil {
		return m.GetPostFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockStore) GetComment(ctx context.Context, id string) (*moderation.Comment, error) {
	if m.GetCommentFunc != nil {
		return m.GetCommentFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockStore) ContentAuthor(ctx context.Context, ref moderation.ContentRef) (string, bool, error) {
	if m.ContentAuthorFunc != nil {
		return m.ContentAuthorFunc(ctx, ref)
	}
	return "", false, nil
}

func (m *MockStore) DeleteContent(ctx context.Context, ref moderation.ContentRef, resolvedBy string, at time.Time) (*moderation.DeletionResult, error) {
	if m.DeleteContentFunc != nil {
		return m.DeleteContentFunc(ctx, ref, resolvedBy, at)
	}
	return nil, nil
}

func (m *MockStore) CountPostsByAuthor(ctx context.Context, authorID string) (int, error) {
	if m.CountPostsByAuthorFunc != nil {
		return m.CountPostsByAuthorFunc(ctx, authorID)
	}
	return 0, nil
}

func (m *MockStore) ListVisiblePosts(ctx context.Context, viewerID string, before time.Time, beforeID string, limit int) ([]moderation.PostSummary, error) {
	if m.ListVisiblePostsFunc != nil {
		return m.ListVisiblePostsFunc(ctx, viewerID, before, beforeID, limit)
	}
	return nil, nil
}

func (m *MockStore) ListVisibleComments(ctx context.Context, viewerID, postID string) ([]moderation.Comment, error) {
	if m.ListVisibleCommentsFunc != nil {
		return m.ListVisibleCommentsFunc(ctx, viewerID, postID)
	}
	return nil, nil
}

func (m *MockStore) CreateReport(ctx context.Context, report moderation.Report) error {
	if m.CreateReportFunc != nil {
		return m.CreateReportFunc(ctx, report)
	}
	return nil
}

func (m *MockStore) GetReport(ctx context.Context, id string) (*moderation.Report, error) {
	if m.GetReportFunc != nil {
		return m.GetReportFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockStore) ListReports(ctx context.Context, status moderation.ReportStatus, limit int) ([]moderation.Report, error) {
	if m.ListReportsFunc != nil {
		return m.ListReportsFunc(ctx, status, limit)
	}
	return nil, nil
}

func (m *MockStore) ResolveReport(ctx context.Context, id, resolvedBy string, at time.Time) error {
	if m.ResolveReportFunc != nil {
		return m.ResolveReportFunc(ctx, id, resolvedBy, at)
	}
	return nil
}

func (m *MockStore) CountReportsFromUserSince(ctx context.Context, reporterID string, since time.Time) (int, error) {
	if m.CountReportsFromUserSinceFunc != nil {
		return m.CountReportsFromUserSinceFunc(ctx, reporterID, since)
	}
	return 0, nil
}

func (m *MockStore) CountReportsByReporter(ctx context.Context, reporterID string) (int, error) {
	if m.CountReportsByReporterFunc != nil {
		return m.CountReportsByReporterFunc(ctx, reporterID)
	}
	return 0, nil
}

func (m *MockStore) CountOpenReports(ctx context.Context) (int, error) {
	if m.CountOpenReportsFunc != nil {
		return m.CountOpenReportsFunc(ctx)
	}
	return 0, nil
}

func (m *MockStore) InsertBlock(ctx context.Context, b moderation.Block) error {
	if m.InsertBlockFunc != nil {
		return m.InsertBlockFunc(ctx, b)
	}
	return nil
}

func (m *MockStore) DeleteBlock(ctx context.Context, blockerID, blockedID string) error {
	if m.DeleteBlockFunc != nil {
		return m.DeleteBlockFunc(ctx, blockerID, blockedID)
	}
	return nil
}

func (m *MockStore) HasBlockEither(ctx context.Context, a, b string) (bool, error) {
	if m.HasBlockEitherFunc != nil {
		return m.HasBlockEitherFunc(ctx, a, b)
	}
	return false, nil
}

func (m *MockStore) ListBlocked(ctx context.Context, blockerID string) ([]moderation.Block, error) {
	if m.ListBlockedFunc != nil {
		return m.ListBlockedFunc(ctx, blockerID)
	}
	return nil, nil
}

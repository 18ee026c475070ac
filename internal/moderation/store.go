package moderation

import (
	"context"
	"time"
)

// Store defines the persistence interface for authorization and moderation
// data. Implementations must be safe for concurrent use.
//
// Lookups of single rows return (nil, nil) when the row does not exist.
type Store interface {
	AccountStore
	RoleStore
	ContentStore
	ReportStore
	BlockStore
}

// AccountStore reads account profiles. Accounts are owned by the identity
// provider; UpsertAccount exists for provisioning and seeding.
type AccountStore interface {
	UpsertAccount(ctx context.Context, acct Account) error
	GetAccount(ctx context.Context, id string) (*Account, error)
	ListAccounts(ctx context.Context, limit, offset int) ([]AccountWithRole, error)
	CountAccounts(ctx context.Context) (int, error)
}

// RoleStore is the only writer of roles and the role audit log
type RoleStore interface {
	// GetRole returns the stored role; ok is false when no row exists
	GetRole(ctx context.Context, accountID string) (role Role, ok bool, err error)

	// ApplyRoleChange upserts the target's role and appends one audit record
	// in a single transaction. It re-checks inside the transaction that the
	// actor is an admin (ErrForbidden) and that the target exists
	// (ErrNotFound). With RequireElevated it fails with ErrAlreadyDefault
	// when the target already holds the default role.
	ApplyRoleChange(ctx context.Context, change RoleChange) (*RoleChangeRecord, error)

	// ListRoleChanges returns audit records for an account, newest first
	ListRoleChanges(ctx context.Context, accountID string, limit int) ([]RoleChangeRecord, error)
	CountByRole(ctx context.Context) (map[Role]int, error)
}

// ContentStore covers the moderation-relevant side of posts and comments
type ContentStore interface {
	CreatePost(ctx context.Context, p Post) error
	CreateComment(ctx context.Context, c Comment) error
	CreateReaction(ctx context.Context, r Reaction) error
	GetPost(ctx context.Context, id string) (*Post, error)
	GetComment(ctx context.Context, id string) (*Comment, error)

	// ContentAuthor returns the author of the referenced content; ok is
	// false when it does not exist
	ContentAuthor(ctx context.Context, ref ContentRef) (authorID string, ok bool, err error)

	// DeleteContent removes the content and everything that depends on it
	// in one transaction, and resolves open reports on the removed rows in
	// the name of resolvedBy. Returns ErrNotFound if the row is gone.
	DeleteContent(ctx context.Context, ref ContentRef, resolvedBy string, at time.Time) (*DeletionResult, error)

	CountPostsByAuthor(ctx context.Context, authorID string) (int, error)
}

// ReportStore persists user reports
type ReportStore interface {
	CreateReport(ctx context.Context, report Report) error
	GetReport(ctx context.Context, id string) (*Report, error)
	ListReports(ctx context.Context, status ReportStatus, limit int) ([]Report, error)

	// ResolveReport returns ErrNotFound for unknown ids and ErrConflict when
	// the report is already resolved
	ResolveReport(ctx context.Context, id, resolvedBy string, at time.Time) error

	CountReportsFromUserSince(ctx context.Context, reporterID string, since time.Time) (int, error)
	CountReportsByReporter(ctx context.Context, reporterID string) (int, error)
	CountOpenReports(ctx context.Context) (int, error)
}

// BlockStore persists the directed block relation
type BlockStore interface {
	// InsertBlock is idempotent for an existing pair
	InsertBlock(ctx context.Context, b Block) error
	// DeleteBlock is a no-op when the pair does not exist
	DeleteBlock(ctx context.Context, blockerID, blockedID string) error
	// HasBlockEither reports whether a blocks b or b blocks a
	HasBlockEither(ctx context.Context, a, b string) (bool, error)
	ListBlocked(ctx context.Context, blockerID string) ([]Block, error)
}

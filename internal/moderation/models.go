package moderation

import (
	"slices"
	"strings"
	"time"
)

// Role is the authorization level of an account
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// DefaultRole is the role of any account with no stored role row
const DefaultRole = RoleUser

// AllRoles returns every assignable role, lowest privilege first
func AllRoles() []Role {
	return []Role{RoleUser, RoleModerator, RoleAdmin}
}

// ParseRole validates a role name received from a caller
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(AllRoles(), r) {
		return "", ErrInvalidRole
	}
	return r, nil
}

// IsElevated reports whether the role carries moderation privileges
func (r Role) IsElevated() bool {
	return r == RoleModerator || r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}

// Permission represents an action gated by role
type Permission string

const (
	PermissionDeleteContent Permission = "delete_content"
	PermissionViewReports   Permission = "view_reports"
	PermissionResolveReport Permission = "resolve_report"
	PermissionManageRoles   Permission = "manage_roles"
	PermissionViewAuditLog  Permission = "view_audit_log"
	PermissionListAccounts  Permission = "list_accounts"
)

// AllPermissions returns all available permissions
func AllPermissions() []Permission {
	return []Permission{
		PermissionDeleteContent,
		PermissionViewReports,
		PermissionResolveReport,
		PermissionManageRoles,
		PermissionViewAuditLog,
		PermissionListAccounts,
	}
}

var moderatorPermissions = []Permission{
	PermissionDeleteContent,
	PermissionViewReports,
	PermissionResolveReport,
}

// Permissions returns the permissions granted to the role.
// Admins hold every permission; plain users hold none.
func (r Role) Permissions() []Permission {
	switch r {
	case RoleAdmin:
		return AllPermissions()
	case RoleModerator:
		out := make([]Permission, len(moderatorPermissions))
		copy(out, moderatorPermissions)
		return out
	default:
		return nil
	}
}

// HasPermission checks if this role has the given permission
func (r Role) HasPermission(perm Permission) bool {
	for _, p := range r.Permissions() {
		if p == perm {
			return true
		}
	}
	return false
}

// Account is a member profile. Accounts are never hard-deleted; Disabled is
// the soft-close flag.
type Account struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Bio         string    `json:"bio,omitempty"`
	AvatarRef   string    `json:"avatar_ref,omitempty"`
	IsPrivate   bool      `json:"is_private"`
	ShowEmail   bool      `json:"show_email"`
	ShowPhone   bool      `json:"show_phone"`
	IsVerified  bool      `json:"is_verified"`
	Disabled    bool      `json:"disabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// AccountWithRole pairs an account with its current role
type AccountWithRole struct {
	Account
	Role Role `json:"role"`
}

// RoleChange is a requested role mutation handed to the store.
// ActorID must hold the admin role at commit time unless it is SystemActor.
// When RequireElevated is set the target must currently hold a non-default
// role.
type RoleChange struct {
	ID              string
	ActorID         string
	AccountID       string
	NewRole         Role
	Reason          string
	RequireElevated bool
	At              time.Time
}

// RoleChangeRecord is one entry of the append-only role audit log
type RoleChangeRecord struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	AccountID string    `json:"account_id"`
	OldRole   *Role     `json:"old_role"` // nil when no role row existed
	NewRole   Role      `json:"new_role"`
	ChangedBy string    `json:"changed_by"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SystemActor is recorded as ChangedBy for bootstrap grants
const SystemActor = "system"

// ContentKind identifies the kind of deletable content
type ContentKind string

const (
	ContentPost    ContentKind = "post"
	ContentComment ContentKind = "comment"
)

// ContentRef addresses a post or comment
type ContentRef struct {
	Kind ContentKind `json:"kind"`
	ID   string      `json:"id"`
}

func (c ContentRef) String() string {
	return string(c.Kind) + ":" + c.ID
}

// Post is a top-level piece of user content
type Post struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"author_id"`
	Body        string    `json:"body"`
	IsAnonymous bool      `json:"is_anonymous"`
	CreatedAt   time.Time `json:"created_at"`
}

// Comment is a reply to a post or to another comment
type Comment struct {
	ID          string    `json:"id"`
	PostID      string    `json:"post_id"`
	ParentID    string    `json:"parent_id,omitempty"` // empty for top-level comments
	AuthorID    string    `json:"author_id"`
	Body        string    `json:"body"`
	IsAnonymous bool      `json:"is_anonymous"`
	CreatedAt   time.Time `json:"created_at"`
}

// Reaction attaches to exactly one post or comment
type Reaction struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	PostID    string    `json:"post_id,omitempty"`
	CommentID string    `json:"comment_id,omitempty"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// PostSummary is a post with its engagement counts, as listed in feeds
type PostSummary struct {
	Post
	CommentCount  int `json:"comment_count"`
	ReactionCount int `json:"reaction_count"`
}

// DeletionResult summarizes what a cascading delete removed
type DeletionResult struct {
	Comments        int `json:"comments"`
	Reactions       int `json:"reactions"`
	ResolvedReports int `json:"resolved_reports"`
}

// ReportStatus represents the status of a user report
type ReportStatus string

const (
	ReportStatusOpen     ReportStatus = "open"
	ReportStatusResolved ReportStatus = "resolved"
)

// ReportTarget names what a report is about. Exactly one field must be set.
type ReportTarget struct {
	AccountID string `json:"account_id,omitempty"`
	PostID    string `json:"post_id,omitempty"`
	CommentID string `json:"comment_id,omitempty"`
}

func (t ReportTarget) count() int {
	n := 0
	for _, v := range []string{t.AccountID, t.PostID, t.CommentID} {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

// Report represents a user report on an account, post or comment
type Report struct {
	ID          string       `json:"id"`
	ReporterID  string       `json:"reporter_id"`
	Target      ReportTarget `json:"target"`
	Reason      string       `json:"reason"`
	Description string       `json:"description,omitempty"`
	Status      ReportStatus `json:"status"`
	ResolvedBy  string       `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time   `json:"resolved_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Block is a directed relation: BlockerID hides BlockedID
type Block struct {
	BlockerID string    `json:"blocker_id"`
	BlockedID string    `json:"blocked_id"`
	CreatedAt time.Time `json:"created_at"`
}

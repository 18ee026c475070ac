package gormstore

import (
	"time"

	"tangled.org/agora.social/agora/internal/moderation"
)

type accountModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	DisplayName string    `gorm:"column:display_name"`
	Bio         string    `gorm:"column:bio"`
	AvatarRef   string    `gorm:"column:avatar_ref"`
	IsPrivate   bool      `gorm:"column:is_private"`
	ShowEmail   bool      `gorm:"column:show_email"`
	ShowPhone   bool      `gorm:"column:show_phone"`
	IsVerified  bool      `gorm:"column:is_verified"`
	Disabled    bool      `gorm:"column:disabled"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (accountModel) TableName() string { return "accounts" }

func (m accountModel) toDomain() moderation.Account {
	return moderation.Account{
		ID:          m.ID,
		DisplayName: m.DisplayName,
		Bio:         m.Bio,
		AvatarRef:   m.AvatarRef,
		IsPrivate:   m.IsPrivate,
		ShowEmail:   m.ShowEmail,
		ShowPhone:   m.ShowPhone,
		IsVerified:  m.IsVerified,
		Disabled:    m.Disabled,
		CreatedAt:   m.CreatedAt,
	}
}

// accountRoleRow is the joined shape read by ListAccounts
type accountRoleRow struct {
	Account accountModel `gorm:"embedded"`
	Role    string       `gorm:"column:role"`
}

type roleModel struct {
	AccountID string    `gorm:"column:account_id;primaryKey"`
	Role      string    `gorm:"column:role"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (roleModel) TableName() string { return "account_roles" }

type roleChangeModel struct {
	Seq       int64     `gorm:"column:seq;primaryKey;autoIncrement"`
	ChangeID  string    `gorm:"column:change_id"`
	AccountID string    `gorm:"column:account_id"`
	OldRole   *string   `gorm:"column:old_role"`
	NewRole   string    `gorm:"column:new_role"`
	ChangedBy string    `gorm:"column:changed_by"`
	Reason    string    `gorm:"column:reason"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (roleChangeModel) TableName() string { return "role_changes" }

func (m roleChangeModel) toDomain() moderation.RoleChangeRecord {
	rec := moderation.RoleChangeRecord{
		ID:        m.ChangeID,
		Seq:       m.Seq,
		AccountID: m.AccountID,
		NewRole:   moderation.Role(m.NewRole),
		ChangedBy: m.ChangedBy,
		Reason:    m.Reason,
		Timestamp: m.CreatedAt,
	}
	if m.OldRole != nil {
		old := moderation.Role(*m.OldRole)
		rec.OldRole = &old
	}
	return rec
}

type postModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	AuthorID    string    `gorm:"column:author_id"`
	Body        string    `gorm:"column:body"`
	IsAnonymous bool      `gorm:"column:is_anonymous"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (postModel) TableName() string { return "posts" }

func (m postModel) toDomain() moderation.Post {
	return moderation.Post{
		ID:          m.ID,
		AuthorID:    m.AuthorID,
		Body:        m.Body,
		IsAnonymous: m.IsAnonymous,
		CreatedAt:   m.CreatedAt,
	}
}

// postSummaryRow is the shape read by ListVisiblePosts
type postSummaryRow struct {
	Post          postModel `gorm:"embedded"`
	CommentCount  int       `gorm:"column:comment_count"`
	ReactionCount int       `gorm:"column:reaction_count"`
}

type commentModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	PostID      string    `gorm:"column:post_id"`
	ParentID    *string   `gorm:"column:parent_id"`
	AuthorID    string    `gorm:"column:author_id"`
	Body        string    `gorm:"column:body"`
	IsAnonymous bool      `gorm:"column:is_anonymous"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (commentModel) TableName() string { return "comments" }

func (m commentModel) toDomain() moderation.Comment {
	c := moderation.Comment{
		ID:          m.ID,
		PostID:      m.PostID,
		AuthorID:    m.AuthorID,
		Body:        m.Body,
		IsAnonymous: m.IsAnonymous,
		CreatedAt:   m.CreatedAt,
	}
	if m.ParentID != nil {
		c.ParentID = *m.ParentID
	}
	return c
}

type reactionModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	AuthorID  string    `gorm:"column:author_id"`
	PostID    *string   `gorm:"column:post_id"`
	CommentID *string   `gorm:"column:comment_id"`
	Kind      string    `gorm:"column:kind"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (reactionModel) TableName() string { return "reactions" }

type reportModel struct {
	ID              string     `gorm:"column:id;primaryKey"`
	ReporterID      string     `gorm:"column:reporter_id"`
	TargetAccountID *string    `gorm:"column:target_account_id"`
	TargetPostID    *string    `gorm:"column:target_post_id"`
	TargetCommentID *string    `gorm:"column:target_comment_id"`
	Reason          string     `gorm:"column:reason"`
	Description     string     `gorm:"column:description"`
	Status          string     `gorm:"column:status"`
	ResolvedBy      string     `gorm:"column:resolved_by"`
	ResolvedAt      *time.Time `gorm:"column:resolved_at"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
}

func (reportModel) TableName() string { return "reports" }

func (m reportModel) toDomain() moderation.Report {
	return moderation.Report{
		ID:         m.ID,
		ReporterID: m.ReporterID,
		Target: moderation.ReportTarget{
			AccountID: deref(m.TargetAccountID),
			PostID:    deref(m.TargetPostID),
			CommentID: deref(m.TargetCommentID),
		},
		Reason:      m.Reason,
		Description: m.Description,
		Status:      moderation.ReportStatus(m.Status),
		ResolvedBy:  m.ResolvedBy,
		ResolvedAt:  m.ResolvedAt,
		CreatedAt:   m.CreatedAt,
	}
}

type blockModel struct {
	BlockerID string    `gorm:"column:blocker_id;primaryKey"`
	BlockedID string    `gorm:"column:blocked_id;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (blockModel) TableName() string { return "blocks" }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package domain

import (
	"time"
)

// AccountModel is the GORM model for the accounts table.
type AccountModel struct {
	ID               string     `gorm:"type:varchar(36);primaryKey"`
	Name             string     `gorm:"type:varchar(50);not null"`
	Email            string     `gorm:"type:varchar(255);uniqueIndex:uidx_accounts_email;not null"`
	PasswordDigest   string     `gorm:"type:varchar(255);not null"`
	RememberDigest   *string    `gorm:"type:varchar(255)"`
	ActivationDigest string     `gorm:"type:varchar(255);not null"`
	Activated        bool       `gorm:"not null;default:false"`
	ActivatedAt      *time.Time `gorm:"column:activated_at"`
	ResetDigest      *string    `gorm:"type:varchar(255)"`
	ResetSentAt      *time.Time `gorm:"column:reset_sent_at"`
	CreatedAt        time.Time  `gorm:"autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime"`
}

func (AccountModel) TableName() string { return "accounts" }

// ToDomain converts the row into an Account without plaintext tokens.
func (m *AccountModel) ToDomain() *Account {
	return &Account{
		ID:               m.ID,
		Name:             m.Name,
		Email:            m.Email,
		PasswordDigest:   m.PasswordDigest,
		RememberDigest:   m.RememberDigest,
		ActivationDigest: m.ActivationDigest,
		Activated:        m.Activated,
		ActivatedAt:      m.ActivatedAt,
		ResetDigest:      m.ResetDigest,
		ResetSentAt:      m.ResetSentAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// AccountToModel converts a domain Account to its row. Plaintext tokens are dropped.
func AccountToModel(a *Account) *AccountModel {
	return &AccountModel{
		ID:               a.ID,
		Name:             a.Name,
		Email:            a.Email,
		PasswordDigest:   a.PasswordDigest,
		RememberDigest:   a.RememberDigest,
		ActivationDigest: a.ActivationDigest,
		Activated:        a.Activated,
		ActivatedAt:      a.ActivatedAt,
		ResetDigest:      a.ResetDigest,
		ResetSentAt:      a.ResetSentAt,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

// RelationshipModel is the GORM model for the relationships table.
// The (follower_id, followed_id) unique index is the only guard against
// duplicate edges; rows are hard-deleted on unfollow. Both ends reference
// accounts, so deleting an account removes its edges and no edge can be
// inserted for an account that does not exist.
type RelationshipModel struct {
	ID         uint          `gorm:"primaryKey;autoIncrement"`
	FollowerID string        `gorm:"column:follower_id;type:varchar(36);not null;uniqueIndex:uidx_relationships_pair,priority:1"`
	FollowedID string        `gorm:"column:followed_id;type:varchar(36);not null;uniqueIndex:uidx_relationships_pair,priority:2;index:idx_relationships_followed"`
	CreatedAt  time.Time     `gorm:"autoCreateTime"`
	Follower   *AccountModel `gorm:"foreignKey:FollowerID;constraint:OnDelete:CASCADE"`
	Followed   *AccountModel `gorm:"foreignKey:FollowedID;constraint:OnDelete:CASCADE"`
}

func (RelationshipModel) TableName() string { return "relationships" }

func (m *RelationshipModel) ToDomain() Relationship {
	return Relationship{
		FollowerID: m.FollowerID,
		FollowedID: m.FollowedID,
		CreatedAt:  m.CreatedAt,
	}
}

// PostModel is the GORM model for the posts table. Posts are removed
// together with their author.
type PostModel struct {
	ID         string        `gorm:"type:varchar(26);primaryKey"`
	AuthorID   string        `gorm:"type:varchar(36);not null;index:idx_posts_author_created,priority:1"`
	Content    string        `gorm:"type:varchar(140);not null"`
	PictureKey string        `gorm:"type:varchar(255)"`
	CreatedAt  time.Time     `gorm:"not null;index:idx_posts_author_created,priority:2;index:idx_posts_created"`
	Author     *AccountModel `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
}

func (PostModel) TableName() string { return "posts" }

func (m *PostModel) ToDomain() Post {
	return Post{
		ID:         m.ID,
		AuthorID:   m.AuthorID,
		Content:    m.Content,
		PictureKey: m.PictureKey,
		CreatedAt:  m.CreatedAt,
	}
}

func PostToModel(p *Post) *PostModel {
	return &PostModel{
		ID:         p.ID,
		AuthorID:   p.AuthorID,
		Content:    p.Content,
		PictureKey: p.PictureKey,
		CreatedAt:  p.CreatedAt,
	}
}

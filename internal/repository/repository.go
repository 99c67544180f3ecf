package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-feed/internal/domain"
)

// AccountRepository persists accounts. Lookups return domain.ErrNotFound
// for missing rows; every other failure is a *domain.StorageError.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	// UpdateProfile writes name, email and password digest.
	UpdateProfile(ctx context.Context, account *domain.Account) error
	UpdateRememberDigest(ctx context.Context, id string, digest *string) error
	UpdateActivation(ctx context.Context, id string, activated bool, at *time.Time) error
	UpdateResetDigest(ctx context.Context, id string, digest *string, sentAt *time.Time) error
	// ResetPassword writes the new password digest and clears the reset state.
	ResetPassword(ctx context.Context, id, passwordDigest string) error
	// Delete removes the account with its posts and every edge it is part of.
	Delete(ctx context.Context, id string) error
}

// RelationshipRepository persists follow edges.
type RelationshipRepository interface {
	// Follow inserts the edge unless present and reports whether it did.
	Follow(ctx context.Context, followerID, followedID string) (bool, error)
	// Unfollow deletes the edge if present and reports whether it did.
	Unfollow(ctx context.Context, followerID, followedID string) (bool, error)
	IsFollowing(ctx context.Context, followerID, followedID string) (bool, error)
	BatchIsFollowing(ctx context.Context, followerID string, targetIDs []string) (map[string]bool, error)
	FollowingIDs(ctx context.Context, accountID string) ([]string, error)
	FollowerIDs(ctx context.Context, accountID string) ([]string, error)
	Count(ctx context.Context, accountID string, kind domain.CountKind) (int64, error)
}

// PostRepository persists posts and answers feed queries.
type PostRepository interface {
	Create(ctx context.Context, post *domain.Post) error
	GetByID(ctx context.Context, id string) (*domain.Post, error)
	Delete(ctx context.Context, id string) error
	// ListByAuthor returns up to limit posts of authorID after cursor, newest first.
	ListByAuthor(ctx context.Context, authorID string, cursor *domain.FeedCursor, limit int) ([]domain.Post, error)
	// Feed returns up to limit posts authored by accountID or by accounts
	// it follows, after cursor, newest first.
	Feed(ctx context.Context, accountID string, cursor *domain.FeedCursor, limit int) ([]domain.Post, error)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func storageErr(op string, err error) error {
	return domain.NewStorageError(op, err)
}

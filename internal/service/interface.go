package service

import (
	"context"
	"iter"

	"github.com/weiawesome/wes-io-feed/internal/consumer"
	"github.com/weiawesome/wes-io-feed/internal/domain"
)

// AccountService manages accounts and their credentials.
type AccountService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AccountProfile, error)
	Activate(ctx context.Context, email, token string) (*domain.AccountProfile, error)
	// Login checks email and password of an activated account.
	Login(ctx context.Context, email, password string) (*domain.AccountProfile, error)
	// Remember issues a new remember token for the account and returns it.
	Remember(ctx context.Context, accountID string) (string, error)
	Forget(ctx context.Context, accountID string) error
	AuthenticateRemember(ctx context.Context, accountID, token string) (*domain.AccountProfile, error)
	UpdateProfile(ctx context.Context, accountID string, req *domain.UpdateAccountRequest) (*domain.AccountProfile, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, token, password string) (*domain.AccountProfile, error)
	CheckResetToken(ctx context.Context, email, token string) error
	GetProfile(ctx context.Context, accountID string) (*domain.AccountProfile, error)
	DeleteAccount(ctx context.Context, accountID string) error
}

// GraphService manages follow edges and their counts.
type GraphService interface {
	Follow(ctx context.Context, followerID, followedID string) (bool, error)
	Unfollow(ctx context.Context, followerID, followedID string) (bool, error)
	IsFollowing(ctx context.Context, followerID, followedID string) (bool, error)
	BatchIsFollowing(ctx context.Context, followerID string, targetIDs []string) (map[string]bool, error)
	FollowingIDs(ctx context.Context, accountID string) ([]string, error)
	FollowerIDs(ctx context.Context, accountID string) ([]string, error)
	Stats(ctx context.Context, accountID string) (*domain.FollowStats, error)
	HandleCDCEvent(ctx context.Context, event *consumer.DebeziumMessage) error
}

// FeedService manages posts and assembles feeds.
type FeedService interface {
	CreatePost(ctx context.Context, authorID string, req *domain.CreatePostRequest) (*domain.Post, error)
	DeletePost(ctx context.Context, authorID, postID string) error
	ListPosts(ctx context.Context, authorID string, cursor *domain.FeedCursor, limit int) (*domain.FeedPage, error)
	FeedPage(ctx context.Context, accountID string, cursor *domain.FeedCursor, limit int) (*domain.FeedPage, error)
	// Feed yields the whole feed newest first, fetching one page at a
	// time as the sequence is consumed.
	Feed(ctx context.Context, accountID string) iter.Seq2[domain.Post, error]
}

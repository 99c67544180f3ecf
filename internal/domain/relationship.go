package domain

import "time"

// Relationship is a directed follow edge.
type Relationship struct {
	FollowerID string    `json:"follower_id"`
	FollowedID string    `json:"followed_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// CountKind selects one of the two per-account edge counts.
type CountKind string

const (
	CountFollowers CountKind = "followers"
	CountFollowing CountKind = "following"
)

// FollowStats are the edge counts of one account.
type FollowStats struct {
	AccountID string `json:"account_id"`
	Followers int64  `json:"followers"`
	Following int64  `json:"following"`
}

// FollowStatusRequest asks which of AccountIDs the caller follows.
type FollowStatusRequest struct {
	AccountIDs []string `json:"account_ids" binding:"required,max=100"`
}

type FollowStatusResponse struct {
	Following map[string]bool `json:"following"`
}

type IDListResponse struct {
	AccountIDs []string `json:"account_ids"`
}

type FollowResponse struct {
	FollowerID string `json:"follower_id"`
	FollowedID string `json:"followed_id"`
	Following  bool   `json:"following"`
	Changed    bool   `json:"changed"`
}

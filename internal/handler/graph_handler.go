package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-feed/internal/domain"
	pkglog "github.com/weiawesome/wes-io-feed/pkg/log"
	"github.com/weiawesome/wes-io-feed/pkg/middleware"
	"github.com/weiawesome/wes-io-feed/pkg/response"
)

// Follow handles POST /api/v1/accounts/:account_id/follow.
// The authenticated account follows the target account.
func (h *Handler) Follow(c *gin.Context) {
	followerID := middleware.GetAccountID(c)
	targetID := c.Param("account_id")

	changed, err := h.graph.Follow(c.Request.Context(), followerID, targetID)
	if err != nil {
		fail(c, err, "follow account")
		return
	}

	response.Success(c, &domain.FollowResponse{
		FollowerID: followerID,
		FollowedID: targetID,
		Following:  true,
		Changed:    changed,
	})
}

// Unfollow handles DELETE /api/v1/accounts/:account_id/follow.
func (h *Handler) Unfollow(c *gin.Context) {
	followerID := middleware.GetAccountID(c)
	targetID := c.Param("account_id")

	changed, err := h.graph.Unfollow(c.Request.Context(), followerID, targetID)
	if err != nil {
		fail(c, err, "unfollow account")
		return
	}

	response.Success(c, &domain.FollowResponse{
		FollowerID: followerID,
		FollowedID: targetID,
		Following:  false,
		Changed:    changed,
	})
}

// Following handles GET /api/v1/accounts/:account_id/following.
func (h *Handler) Following(c *gin.Context) {
	ids, err := h.graph.FollowingIDs(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		fail(c, err, "list following")
		return
	}
	response.Success(c, &domain.IDListResponse{AccountIDs: ids})
}

// Followers handles GET /api/v1/accounts/:account_id/followers.
func (h *Handler) Followers(c *gin.Context) {
	ids, err := h.graph.FollowerIDs(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		fail(c, err, "list followers")
		return
	}
	response.Success(c, &domain.IDListResponse{AccountIDs: ids})
}

// Stats handles GET /api/v1/accounts/:account_id/stats.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.graph.Stats(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		fail(c, err, "get follow stats")
		return
	}
	response.Success(c, stats)
}

// FollowingStatus handles POST /api/v1/accounts/:account_id/following/status.
func (h *Handler) FollowingStatus(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.FollowStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Msg("invalid following status request")
		response.BadRequest(c, err.Error())
		return
	}

	results, err := h.graph.BatchIsFollowing(ctx, c.Param("account_id"), req.AccountIDs)
	if err != nil {
		fail(c, err, "check following status")
		return
	}
	response.Success(c, &domain.FollowStatusResponse{Following: results})
}

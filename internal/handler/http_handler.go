package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-feed/internal/domain"
	"github.com/weiawesome/wes-io-feed/internal/service"
	pkglog "github.com/weiawesome/wes-io-feed/pkg/log"
	"github.com/weiawesome/wes-io-feed/pkg/middleware"
	"github.com/weiawesome/wes-io-feed/pkg/response"
)

const (
	cookieRememberToken = "remember_token"
	cookieAccountID     = "account_id"
)

// TokenIssuer issues and revokes access tokens. Implemented by *jwt.Manager.
type TokenIssuer interface {
	GenerateAccessToken(accountID, email string) (token string, expiresAt int64, err error)
	RevokeAccountTokens(accountID string)
}

// Options tune the HTTP edge.
type Options struct {
	RememberCookieTTL time.Duration
	SecureCookies     bool
}

// Handler handles HTTP requests for accounts, the follow graph and posts.
type Handler struct {
	accounts       service.AccountService
	graph          service.GraphService
	feed           service.FeedService
	tokens         TokenIssuer
	authMiddleware *middleware.AuthMiddleware
	opts           Options
}

// NewHandler creates a new HTTP handler.
func NewHandler(
	accounts service.AccountService,
	graph service.GraphService,
	feed service.FeedService,
	tokens TokenIssuer,
	authMiddleware *middleware.AuthMiddleware,
	opts Options,
) *Handler {
	if opts.RememberCookieTTL <= 0 {
		opts.RememberCookieTTL = 20 * 24 * time.Hour
	}
	return &Handler{
		accounts:       accounts,
		graph:          graph,
		feed:           feed,
		tokens:         tokens,
		authMiddleware: authMiddleware,
		opts:           opts,
	}
}

// RegisterRoutes registers all routes onto the Gin engine.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	auth := h.authMiddleware.RequireAuth()
	{
		accounts := api.Group("/accounts")
		{
			accounts.POST("", h.Register)
			accounts.POST("/activate", h.Activate)
			accounts.GET("/activate", h.Activate)
			accounts.PATCH("/me", auth, h.UpdateMe)
			accounts.DELETE("/me", auth, h.DeleteMe)
			accounts.GET("/:account_id", h.GetAccount)

			accounts.POST("/:account_id/follow", auth, h.Follow)
			accounts.DELETE("/:account_id/follow", auth, h.Unfollow)
			accounts.GET("/:account_id/following", h.Following)
			accounts.GET("/:account_id/followers", h.Followers)
			accounts.GET("/:account_id/stats", h.Stats)
			accounts.POST("/:account_id/following/status", h.FollowingStatus)

			accounts.GET("/:account_id/posts", h.ListPosts)
		}

		sessions := api.Group("/sessions")
		{
			sessions.POST("", h.Login)
			sessions.POST("/remember", h.LoginWithRemember)
			sessions.DELETE("", auth, h.Logout)
		}

		resets := api.Group("/password_resets")
		{
			resets.POST("", h.RequestPasswordReset)
			resets.GET("/edit", h.CheckPasswordReset)
			resets.PUT("", h.ResetPassword)
		}

		posts := api.Group("/posts")
		posts.Use(auth)
		{
			posts.POST("", h.CreatePost)
			posts.DELETE("/:post_id", h.DeletePost)
		}

		api.GET("/feed", auth, h.Feed)
	}
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail maps a service error onto the response envelope.
func fail(c *gin.Context, err error, action string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		response.ValidationFailed(c, verr.Fields)
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(c, "not found")
	case errors.Is(err, domain.ErrForbidden):
		response.Forbidden(c, "not allowed")
	case errors.Is(err, domain.ErrEmailTaken):
		response.Conflict(c, "email has already been taken")
	case errors.Is(err, domain.ErrSelfFollow):
		response.BadRequest(c, "cannot follow yourself")
	case errors.Is(err, domain.ErrInvalidCredentials):
		response.Unauthorized(c, "invalid email/password combination")
	case errors.Is(err, domain.ErrNotActivated):
		response.Forbidden(c, "account not activated, check your email for the activation link")
	case errors.Is(err, domain.ErrActivationInvalid):
		response.BadRequest(c, "invalid activation link")
	case errors.Is(err, domain.ErrResetTokenInvalid):
		response.BadRequest(c, "invalid password reset link")
	case errors.Is(err, domain.ErrResetTokenExpired):
		response.BadRequest(c, "password reset has expired")
	case errors.Is(err, domain.ErrStorage):
		l := pkglog.Ctx(c.Request.Context())
		l.Error().Err(err).Msg(action + " failed")
		response.ServiceUnavailable(c, "storage temporarily unavailable")
	default:
		l := pkglog.Ctx(c.Request.Context())
		l.Error().Err(err).Msg(action + " failed")
		response.InternalError(c, "failed to "+action)
	}
}

// pageParams reads the cursor and limit query parameters.
func pageParams(c *gin.Context) (*domain.FeedCursor, int, bool) {
	cursor, err := domain.ParseFeedCursor(c.Query("cursor"))
	if err != nil {
		fail(c, err, "parse cursor")
		return nil, 0, false
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			response.BadRequest(c, "limit must be a positive integer")
			return nil, 0, false
		}
	}
	return cursor, limit, true
}

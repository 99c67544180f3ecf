package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-feed/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-feed/pkg/log"
	"github.com/weiawesome/wes-io-feed/pkg/response"
)

const (
	AccountIDKey  = pkglog.FieldAccountID
	EmailKey      = pkglog.FieldEmail
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenValidator validates access tokens. Implemented by *jwt.Manager.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// AuthMiddleware validates bearer access tokens in-process.
type AuthMiddleware struct {
	validator TokenValidator
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// RequireAuth aborts with 401 unless the request carries a valid bearer token.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.Unauthorized(c, "invalid authorization format")
			c.Abort()
			return
		}

		claims, err := m.validator.ValidateToken(strings.TrimPrefix(authHeader, BearerPrefix))
		if err != nil {
			msg := "invalid token"
			switch {
			case errors.Is(err, jwt.ErrExpiredToken):
				msg = "token has expired"
			case errors.Is(err, jwt.ErrRevokedToken):
				msg = "token has been revoked"
			}
			response.Unauthorized(c, msg)
			c.Abort()
			return
		}

		c.Set(AccountIDKey, claims.AccountID)
		c.Set(EmailKey, claims.Email)

		c.Next()
	}
}

// GetAccountID returns the authenticated account id, or "".
func GetAccountID(c *gin.Context) string {
	return c.GetString(AccountIDKey)
}

// GetEmail returns the authenticated account email, or "".
func GetEmail(c *gin.Context) string {
	return c.GetString(EmailKey)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-feed/internal/domain"
	pkglog "github.com/weiawesome/wes-io-feed/pkg/log"
	"github.com/weiawesome/wes-io-feed/pkg/middleware"
	"github.com/weiawesome/wes-io-feed/pkg/response"
)

// Register handles POST /api/v1/accounts.
func (h *Handler) Register(c *gin.Context) {
	ctx := c.Request.Context()
	l := pkglog.Ctx(ctx)

	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid register request")
		response.BadRequest(c, err.Error())
		return
	}

	profile, err := h.accounts.Register(ctx, &req)
	if err != nil {
		fail(c, err, "register account")
		return
	}

	response.Created(c, gin.H{
		"account": profile,
		"message": "please check your email to activate your account",
	})
}

// Activate handles POST /api/v1/accounts/activate and logs the account in.
func (h *Handler) Activate(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.ActivateRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	profile, err := h.accounts.Activate(ctx, req.Email, req.Token)
	if err != nil {
		fail(c, err, "activate account")
		return
	}

	h.startSession(c, profile, "")
}

// GetAccount handles GET /api/v1/accounts/:account_id.
func (h *Handler) GetAccount(c *gin.Context) {
	profile, err := h.accounts.GetProfile(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		fail(c, err, "get account")
		return
	}
	response.Success(c, profile)
}

// UpdateMe handles PATCH /api/v1/accounts/me.
func (h *Handler) UpdateMe(c *gin.Context) {
	ctx := c.Request.Context()
	accountID := middleware.GetAccountID(c)

	var req domain.UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	profile, err := h.accounts.UpdateProfile(ctx, accountID, &req)
	if err != nil {
		fail(c, err, "update account")
		return
	}
	response.Success(c, profile)
}

// DeleteMe handles DELETE /api/v1/accounts/me.
func (h *Handler) DeleteMe(c *gin.Context) {
	ctx := c.Request.Context()
	accountID := middleware.GetAccountID(c)

	if err := h.accounts.DeleteAccount(ctx, accountID); err != nil {
		fail(c, err, "delete account")
		return
	}

	h.tokens.RevokeAccountTokens(accountID)
	h.clearRememberCookies(c)
	response.NoContent(c)
}

// Login handles POST /api/v1/sessions.
func (h *Handler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	l := pkglog.Ctx(ctx)

	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid login request")
		response.BadRequest(c, err.Error())
		return
	}

	profile, err := h.accounts.Login(ctx, req.Email, req.Password)
	if err != nil {
		fail(c, err, "log in")
		return
	}

	var remember string
	if req.RememberMe {
		remember, err = h.accounts.Remember(ctx, profile.ID)
		if err != nil {
			fail(c, err, "remember account")
			return
		}
	}

	h.startSession(c, profile, remember)
}

// LoginWithRemember handles POST /api/v1/sessions/remember. Credentials
// come from the body or, when absent, from the remember cookies.
func (h *Handler) LoginWithRemember(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.RememberLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.AccountID, _ = c.Cookie(cookieAccountID)
		req.RememberToken, _ = c.Cookie(cookieRememberToken)
	}
	if req.AccountID == "" || req.RememberToken == "" {
		response.BadRequest(c, "account_id and remember_token are required")
		return
	}

	profile, err := h.accounts.AuthenticateRemember(ctx, req.AccountID, req.RememberToken)
	if err != nil {
		fail(c, err, "log in")
		return
	}

	h.startSession(c, profile, "")
}

// Logout handles DELETE /api/v1/sessions. It forgets the remember token
// and revokes every access token issued so far.
func (h *Handler) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	accountID := middleware.GetAccountID(c)

	if err := h.accounts.Forget(ctx, accountID); err != nil {
		fail(c, err, "log out")
		return
	}

	h.tokens.RevokeAccountTokens(accountID)
	h.clearRememberCookies(c)
	response.NoContent(c)
}

// RequestPasswordReset handles POST /api/v1/password_resets.
func (h *Handler) RequestPasswordReset(c *gin.Context) {
	var req domain.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.accounts.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		fail(c, err, "request password reset")
		return
	}

	c.JSON(http.StatusAccepted, response.Response{
		Success: true,
		Data:    gin.H{"message": "email sent with password reset instructions"},
	})
}

// CheckPasswordReset handles GET /api/v1/password_resets/edit, the link in
// the reset email. It only checks the token; the new password is sent with
// ResetPassword.
func (h *Handler) CheckPasswordReset(c *gin.Context) {
	var req domain.CheckResetRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.accounts.CheckResetToken(c.Request.Context(), req.Email, req.Token); err != nil {
		fail(c, err, "check password reset")
		return
	}
	response.Success(c, gin.H{"email": domain.NormalizeEmail(req.Email), "token": req.Token})
}

// ResetPassword handles PUT /api/v1/password_resets and logs the account in.
func (h *Handler) ResetPassword(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if msg := domain.ConfirmPassword(req.Password, req.PasswordConfirmation); msg != "" {
		fail(c, domain.NewValidationError(map[string]string{"password_confirmation": msg}), "reset password")
		return
	}

	profile, err := h.accounts.ResetPassword(ctx, req.Email, req.Token, req.Password)
	if err != nil {
		fail(c, err, "reset password")
		return
	}

	h.tokens.RevokeAccountTokens(profile.ID)
	h.startSession(c, profile, "")
}

// startSession issues an access token for profile. A non-empty remember
// token is returned and set as a cookie.
func (h *Handler) startSession(c *gin.Context, profile *domain.AccountProfile, remember string) {
	token, expiresAt, err := h.tokens.GenerateAccessToken(profile.ID, profile.Email)
	if err != nil {
		fail(c, err, "issue access token")
		return
	}

	if remember != "" {
		maxAge := int(h.opts.RememberCookieTTL.Seconds())
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cookieAccountID, profile.ID, maxAge, "/", "", h.opts.SecureCookies, true)
		c.SetCookie(cookieRememberToken, remember, maxAge, "/", "", h.opts.SecureCookies, true)
	}

	c.Set(middleware.AccountIDKey, profile.ID)
	response.Success(c, &domain.SessionResponse{
		Account:       profile,
		AccessToken:   token,
		ExpiresAt:     expiresAt,
		RememberToken: remember,
	})
}

func (h *Handler) clearRememberCookies(c *gin.Context) {
	c.SetCookie(cookieAccountID, "", -1, "/", "", h.opts.SecureCookies, true)
	c.SetCookie(cookieRememberToken, "", -1, "/", "", h.opts.SecureCookies, true)
}

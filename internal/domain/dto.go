package domain

import "time"

// AccountProfile is the public, cacheable view of an account.
type AccountProfile struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Activated   bool       `json:"activated"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// RegisterRequest is validated by the Account entity so every missing
// field is reported at once.
type RegisterRequest struct {
	Name                 string  `json:"name"`
	Email                string  `json:"email"`
	Password             string  `json:"password"`
	PasswordConfirmation *string `json:"password_confirmation"`
}

// ActivateRequest arrives as a JSON body, or as the query of the link in
// the activation email.
type ActivateRequest struct {
	Email string `json:"email" form:"email" binding:"required"`
	Token string `json:"token" form:"token" binding:"required"`
}

type CheckResetRequest struct {
	Email string `form:"email" binding:"required"`
	Token string `form:"token" binding:"required"`
}

type LoginRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"remember_me"`
}

// RememberLoginRequest exchanges a remember token for an access token.
type RememberLoginRequest struct {
	AccountID     string `json:"account_id" binding:"required"`
	RememberToken string `json:"remember_token" binding:"required"`
}

// UpdateAccountRequest changes profile fields. Nil fields and a blank
// password are left unchanged.
type UpdateAccountRequest struct {
	Name                 *string `json:"name"`
	Email                *string `json:"email"`
	Password             string  `json:"password"`
	PasswordConfirmation *string `json:"password_confirmation"`
}

type PasswordResetRequest struct {
	Email string `json:"email" binding:"required"`
}

type ResetPasswordRequest struct {
	Email                string  `json:"email" binding:"required"`
	Token                string  `json:"token" binding:"required"`
	Password             string  `json:"password"`
	PasswordConfirmation *string `json:"password_confirmation"`
}

// SessionResponse is returned by the login endpoints.
type SessionResponse struct {
	Account       *AccountProfile `json:"account"`
	AccessToken   string          `json:"access_token"`
	ExpiresAt     int64           `json:"expires_at"`
	RememberToken string          `json:"remember_token,omitempty"`
}

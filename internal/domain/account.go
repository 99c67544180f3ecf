package domain

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	NameMaxLength     = 50
	EmailMaxLength    = 255
	PasswordMinLength = 6
	// bcrypt ignores everything past 72 bytes and newer versions refuse it.
	PasswordMaxBytes = 72

	// ResetWindow is how long a password reset token stays usable.
	ResetWindow = 2 * time.Hour
)

var emailPattern = regexp.MustCompile(`(?i)^[\w+\-.]+@[a-z\d\-]+(\.[a-z\d\-]+)*\.[a-z]+$`)

// TokenKind names one of the token digests an account holds.
type TokenKind string

const (
	TokenRemember   TokenKind = "remember"
	TokenActivation TokenKind = "activation"
	TokenReset      TokenKind = "reset"
)

// Hasher digests and verifies secrets. Implemented by digest.Bcrypt.
type Hasher interface {
	Digest(secret string) (string, error)
	Verify(digest, candidate string) bool
}

// Credentials bundles what the account needs to issue and check secrets.
type Credentials struct {
	Hasher   Hasher
	NewToken func() (string, error)
}

// Account is an application user together with its credential state.
// Only digests are persisted. The *Token fields hold plaintext tokens
// between their creation and their hand-off to a cookie or notification.
type Account struct {
	ID               string
	Name             string
	Email            string
	PasswordDigest   string
	RememberDigest   *string
	ActivationDigest string
	Activated        bool
	ActivatedAt      *time.Time
	ResetDigest      *string
	ResetSentAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time

	RememberToken   string
	ActivationToken string
	ResetToken      string
}

// NewAccount builds an unconfirmed account ready for its first insert:
// normalised and validated fields, password digest, then a fresh
// activation token and digest.
func NewAccount(id, name, email, password string, creds Credentials) (*Account, error) {
	a := &Account{ID: id}

	fields := map[string]string{}
	if msg := a.SetName(name); msg != "" {
		fields["name"] = msg
	}
	if msg := a.SetEmail(email); msg != "" {
		fields["email"] = msg
	}
	if strings.TrimSpace(password) == "" {
		fields["password"] = "can't be blank"
	} else if msg := validatePassword(password); msg != "" {
		fields["password"] = msg
	}
	if len(fields) > 0 {
		return nil, NewValidationError(fields)
	}

	if _, err := a.SetPassword(password, creds.Hasher); err != nil {
		return nil, err
	}
	if err := a.CreateActivationDigest(creds); err != nil {
		return nil, err
	}
	return a, nil
}

// SetName trims and stores name. It returns a validation message, or "".
func (a *Account) SetName(name string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "can't be blank"
	case utf8.RuneCountInString(name) > NameMaxLength:
		return "is too long (maximum is 50 characters)"
	}
	a.Name = name
	return ""
}

// SetEmail stores email trimmed and lower-cased. It returns a validation
// message, or "".
func (a *Account) SetEmail(email string) string {
	email = NormalizeEmail(email)
	switch {
	case email == "":
		return "can't be blank"
	case len(email) > EmailMaxLength:
		return "is too long (maximum is 255 characters)"
	case !emailPattern.MatchString(email):
		return "is invalid"
	}
	a.Email = email
	return ""
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SetPassword replaces the password digest. A blank plaintext leaves the
// password unchanged and reports changed=false.
func (a *Account) SetPassword(plaintext string, h Hasher) (changed bool, err error) {
	if strings.TrimSpace(plaintext) == "" {
		return false, nil
	}
	if msg := validatePassword(plaintext); msg != "" {
		return false, NewValidationError(map[string]string{"password": msg})
	}
	d, err := h.Digest(plaintext)
	if err != nil {
		return false, err
	}
	a.PasswordDigest = d
	return true, nil
}

// ConfirmPassword checks an optional confirmation against password. An
// absent confirmation is not checked. It returns a validation message, or "".
func ConfirmPassword(password string, confirmation *string) string {
	if confirmation != nil && *confirmation != password {
		return "doesn't match Password"
	}
	return ""
}

func validatePassword(p string) string {
	switch {
	case utf8.RuneCountInString(p) < PasswordMinLength:
		return "is too short (minimum is 6 characters)"
	case len(p) > PasswordMaxBytes:
		return "is too long (maximum is 72 bytes)"
	}
	return ""
}

// Authenticate reports whether password is the account's password.
func (a *Account) Authenticate(password string, h Hasher) bool {
	return h.Verify(a.PasswordDigest, password)
}

// Remember issues a new remember token, replacing any previous one.
func (a *Account) Remember(creds Credentials) (string, error) {
	tok, d, err := issue(creds)
	if err != nil {
		return "", err
	}
	a.RememberToken = tok
	a.RememberDigest = &d
	return tok, nil
}

// Forget invalidates the remember token.
func (a *Account) Forget() {
	a.RememberToken = ""
	a.RememberDigest = nil
}

// Authenticated reports whether token matches the stored digest of kind.
// A missing digest or an unknown kind never matches.
func (a *Account) Authenticated(kind TokenKind, token string, h Hasher) bool {
	var d string
	switch kind {
	case TokenRemember:
		if a.RememberDigest != nil {
			d = *a.RememberDigest
		}
	case TokenActivation:
		d = a.ActivationDigest
	case TokenReset:
		if a.ResetDigest != nil {
			d = *a.ResetDigest
		}
	}
	if d == "" {
		return false
	}
	return h.Verify(d, token)
}

// CreateActivationDigest issues the activation token.
func (a *Account) CreateActivationDigest(creds Credentials) error {
	tok, d, err := issue(creds)
	if err != nil {
		return err
	}
	a.ActivationToken = tok
	a.ActivationDigest = d
	return nil
}

// Activate confirms the account. It reports false when the account was
// already active, in which case nothing changes.
func (a *Account) Activate(now time.Time) bool {
	if a.Activated {
		return false
	}
	a.Activated = true
	a.ActivatedAt = &now
	return true
}

// CreateResetDigest issues a reset token, invalidating the previous one.
func (a *Account) CreateResetDigest(creds Credentials, now time.Time) error {
	tok, d, err := issue(creds)
	if err != nil {
		return err
	}
	a.ResetToken = tok
	a.ResetDigest = &d
	a.ResetSentAt = &now
	return nil
}

// IsResetExpired reports whether the reset token was sent more than
// ResetWindow before now. An account without a pending reset is expired.
func (a *Account) IsResetExpired(now time.Time) bool {
	if a.ResetSentAt == nil {
		return true
	}
	return now.Sub(*a.ResetSentAt) > ResetWindow
}

// ClearReset drops the reset state once the token has been used.
func (a *Account) ClearReset() {
	a.ResetToken = ""
	a.ResetDigest = nil
	a.ResetSentAt = nil
}

// Profile is the public view of the account.
func (a *Account) Profile() *AccountProfile {
	return &AccountProfile{
		ID:          a.ID,
		Name:        a.Name,
		Email:       a.Email,
		Activated:   a.Activated,
		ActivatedAt: a.ActivatedAt,
		CreatedAt:   a.CreatedAt,
	}
}

func issue(creds Credentials) (token, digest string, err error) {
	token, err = creds.NewToken()
	if err != nil {
		return "", "", err
	}
	digest, err = creds.Hasher.Digest(token)
	if err != nil {
		return "", "", err
	}
	return token, digest, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-io-feed/internal/audit"
	"github.com/weiawesome/wes-io-feed/internal/cache"
	"github.com/weiawesome/wes-io-feed/internal/domain"
	"github.com/weiawesome/wes-io-feed/internal/metrics"
	"github.com/weiawesome/wes-io-feed/internal/notifier"
	"github.com/weiawesome/wes-io-feed/internal/repository"
	"github.com/weiawesome/wes-io-feed/internal/store"
	"github.com/weiawesome/wes-io-feed/pkg/log"
	"github.com/weiawesome/wes-io-feed/pkg/storage"
)

// AccountDeps are the collaborators of the account service. Cache,
// Counters and Pictures are optional.
type AccountDeps struct {
	Accounts  repository.AccountRepository
	Relations repository.RelationshipRepository
	Cache     cache.AccountCache
	CacheTTL  time.Duration
	Counters  store.FollowStore
	Pictures  storage.Storage
	Creds     domain.Credentials
	Notifier  notifier.Notifier
	Now       func() time.Time
}

type accountService struct {
	repo      repository.AccountRepository
	relations repository.RelationshipRepository
	cache     cache.AccountCache
	cacheTTL  time.Duration
	counters  store.FollowStore
	pictures  storage.Storage
	creds     domain.Credentials
	notifier  notifier.Notifier
	now       func() time.Time
	sf        singleflight.Group

	// dispatch runs notification sends. Tests replace it to run inline.
	dispatch func(ctx context.Context, fn func(context.Context))
}

// NewAccountService creates a new account service.
func NewAccountService(deps AccountDeps) AccountService {
	s := &accountService{
		repo:      deps.Accounts,
		relations: deps.Relations,
		cache:     deps.Cache,
		cacheTTL:  deps.CacheTTL,
		counters:  deps.Counters,
		pictures:  deps.Pictures,
		creds:     deps.Creds,
		notifier:  deps.Notifier,
		now:       deps.Now,
		dispatch:  dispatchAsync,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = 10 * time.Minute
	}
	if s.notifier == nil {
		s.notifier = notifier.NewLogNotifier()
	}
	return s
}

// dispatchAsync runs fn on its own goroutine with a context that outlives
// the request.
func dispatchAsync(ctx context.Context, fn func(context.Context)) {
	go fn(context.WithoutCancel(ctx))
}

func (s *accountService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AccountProfile, error) {
	l := log.Ctx(ctx)

	if msg := domain.ConfirmPassword(req.Password, req.PasswordConfirmation); msg != "" {
		return nil, domain.NewValidationError(map[string]string{"password_confirmation": msg})
	}

	account, err := domain.NewAccount(uuid.NewString(), req.Name, req.Email, req.Password, s.creds)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return nil, err
		}
		l.Error().Err(err).Msg("failed to build account")
		return nil, err
	}

	if err := s.repo.Create(ctx, account); err != nil {
		if !errors.Is(err, domain.ErrEmailTaken) {
			l.Error().Err(err).Msg("failed to create account")
		}
		return nil, err
	}

	audit.Log(ctx, audit.ActionRegister, account.ID, "account registered")

	snapshot, tok := *account, account.ActivationToken
	s.dispatch(ctx, func(ctx context.Context) {
		s.notifier.SendActivation(ctx, snapshot, tok)
	})

	return account.Profile(), nil
}

// Activate confirms the account registered under email. An unknown email,
// a token that does not verify or an account that is already active all
// report ErrActivationInvalid.
func (s *accountService) Activate(ctx context.Context, email, token string) (*domain.AccountProfile, error) {
	l := log.Ctx(ctx)

	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrActivationInvalid
		}
		l.Error().Err(err).Msg("failed to get account by email")
		return nil, err
	}

	ok := account.Authenticated(domain.TokenActivation, token, s.creds.Hasher)
	metrics.CredentialCheck(string(domain.TokenActivation), ok)
	if !ok || !account.Activate(s.now().UTC()) {
		return nil, domain.ErrActivationInvalid
	}

	if err := s.repo.UpdateActivation(ctx, account.ID, true, account.ActivatedAt); err != nil {
		l.Error().Err(err).Str(log.FieldAccountID, account.ID).Msg("failed to activate account")
		return nil, err
	}
	s.invalidate(ctx, account.ID)

	audit.Log(ctx, audit.ActionActivate, account.ID, "account activated")
	return account.Profile(), nil
}

func (s *accountService) Login(ctx context.Context, email, password string) (*domain.AccountProfile, error) {
	l := log.Ctx(ctx)

	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			audit.LogWithDetail(ctx, audit.ActionLoginFailed, "", domain.NormalizeEmail(email), "login failed: account not found")
			return nil, domain.ErrInvalidCredentials
		}
		l.Error().Err(err).Msg("failed to get account by email")
		return nil, err
	}

	ok := account.Authenticate(password, s.creds.Hasher)
	metrics.CredentialCheck("password", ok)
	if !ok {
		audit.LogWithDetail(ctx, audit.ActionLoginFailed, account.ID, account.Email, "login failed: wrong password")
		return nil, domain.ErrInvalidCredentials
	}
	if !account.Activated {
		audit.LogWithDetail(ctx, audit.ActionLoginFailed, account.ID, account.Email, "login failed: account not activated")
		return nil, domain.ErrNotActivated
	}

	audit.Log(ctx, audit.ActionLogin, account.ID, "account logged in")
	return account.Profile(), nil
}

func (s *accountService) Remember(ctx context.Context, accountID string) (string, error) {
	l := log.Ctx(ctx)

	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}

	tok, err := account.Remember(s.creds)
	if err != nil {
		l.Error().Err(err).Str(log.FieldAccountID, accountID).Msg("failed to issue remember token")
		return "", err
	}
	if err := s.repo.UpdateRememberDigest(ctx, accountID, account.RememberDigest); err != nil {
		l.Error().Err(err).Str(log.FieldAccountID, accountID).Msg("failed to store remember digest")
		return "", err
	}

	audit.Log(ctx, audit.ActionRemember, accountID, "remember token issued")
	return tok, nil
}

func (s *accountService) Forget(ctx context.Context, accountID string) error {
	if err := s.repo.UpdateRememberDigest(ctx, accountID, nil); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			l := log.Ctx(ctx)
			l.Error().Err(err).Str(log.FieldAccountID, accountID).Msg("failed to clear remember digest")
		}
		return err
	}

	audit.Log(ctx, audit.ActionForget, accountID, "remember token cleared")
	return nil
}

func (s *accountService) AuthenticateRemember(ctx context.Context, accountID, token string) (*domain.AccountProfile, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldAccountID, accountID).Msg("failed to get account")
		return nil, err
	}

	ok := account.Authenticated(domain.TokenRemember, token, s.creds.Hasher)
	metrics.CredentialCheck(string(domain.TokenRemember), ok)
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	if !account.Activated {
		return nil, domain.ErrNotActivated
	}

	audit.Log(ctx, audit.ActionLogin, account.ID, "account logged in with remember token")
	return account.Profile(), nil
}

func (s *accountService) UpdateProfile(ctx context.Context, accountID string, req *domain.UpdateAccountRequest) (*domain.AccountProfile, error) {
	l := log.Ctx(ctx)

	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	if req.Name != nil {
		if msg := account.SetName(*req.Name); msg != "" {
			fields["name"] = msg
		}
	}
	if req.Email != nil {
		if msg := account.SetEmail(*req.Email); msg != "" {
			fields["email"] = msg
		}
	}
	if msg := domain.ConfirmPassword(req.Password, req.PasswordConfirmation); msg != "" {
		fields["password_confirmation"] = msg
	}
	if len(fields) > 0 {
		return nil, domain.NewValidationError(fields)
	}
	if _, err := account.SetPassword(req.Password, s.creds.Hasher); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateProfile(ctx, account); err != nil {
		if !errors.Is(err, domain.ErrEmailTaken) {
			l.Error().Err(err).Str(log.FieldAccountID, accountID).Msg("failed to update account")
		}
		return nil, err
	}
	s.invalidate(ctx, accountID)

	audit.Log(ctx, audit.ActionUpdateProfile, accountID, "profile updated")
	return account.Profile(), nil
}

func (s *accountService) RequestPasswordReset(ctx context.Context, email string) error {
	l := log.Ctx(ctx)

	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			l.Error().Err(err).Msg("failed to get account by email")
		}
		return err
	}

	if err := account.CreateResetDigest(s.creds, s.now().UTC()); err != nil {
		l.Error().Err(err).Str(log.FieldAccountID, account.ID).Msg("failed to issue reset token")
		return err
	}
	if err := s.repo.UpdateResetDigest(ctx, account.ID, account.ResetDigest, account.ResetSentAt); err != nil {
		l.Error().Err(err).Str(log.FieldAccountID, account.ID).Msg("failed to store reset digest")
		return err
	}

	audit.Log(ctx, audit.ActionPasswordResetRequest, account.ID, "password reset requested")

	snapshot, tok := *account, account.ResetToken
	s.dispatch(ctx, func(ctx context.Context) {
		s.notifier.SendPasswordReset(ctx, snapshot, tok)
	})
	return nil
}

// ResetPassword sets a new password with a reset token. Unknown emails,
// inactive accounts and tokens that do not verify all report
// ErrResetTokenInvalid.
func (s *accountService) ResetPassword(ctx context.Context, email, token, password string) (*domain.AccountProfile, error) {
	l := log.Ctx(ctx)

	account, err := s.resetAccount(ctx, email, token)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(password) == "" {
		return nil, domain.NewValidationError(map[string]string{"password": "can't be empty"})
	}
	if _, err := account.SetPassword(password, s.creds.Hasher); err != nil {
		return nil, err
	}

	if err := s.repo.ResetPassword(ctx, account.ID, account.PasswordDigest); err != nil {
		l.Error().Err(err).Str(log.FieldAccountID, account.ID).Msg("failed to reset password")
		return nil, err
	}
	account.ClearReset()
	s.invalidate(ctx, account.ID)

	audit.Log(ctx, audit.ActionPasswordReset, account.ID, "password reset")
	return account.Profile(), nil
}

// CheckResetToken reports whether a password reset link is still usable,
// with the same errors ResetPassword would return for it.
func (s *accountService) CheckResetToken(ctx context.Context, email, token string) error {
	_, err := s.resetAccount(ctx, email, token)
	return err
}

func (s *accountService) resetAccount(ctx context.Context, email, token string) (*domain.Account, error) {
	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrResetTokenInvalid
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to get account by email")
		return nil, err
	}

	ok := account.Activated && account.Authenticated(domain.TokenReset, token, s.creds.Hasher)
	metrics.CredentialCheck(string(domain.TokenReset), ok)
	if !ok {
		return nil, domain.ErrResetTokenInvalid
	}
	if account.IsResetExpired(s.now()) {
		return nil, domain.ErrResetTokenExpired
	}
	return account, nil
}

// GetProfile reads through the profile cache. Concurrent misses for the
// same account share one database read.
func (s *accountService) GetProfile(ctx context.Context, accountID string) (*domain.AccountProfile, error) {
	l := log.Ctx(ctx)

	var key string
	if s.cache != nil {
		key = s.cache.BuildKeyByID(accountID)
		profile, err := s.cache.Get(ctx, key)
		if err == nil {
			return profile, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			l.Warn().Err(err).Str(log.FieldAccountID, accountID).Msg("profile cache get failed, falling back to db")
		}
	}

	v, err, _ := s.sf.Do("profile:"+accountID, func() (interface{}, error) {
		account, err := s.repo.GetByID(ctx, accountID)
		if err != nil {
			return nil, err
		}
		profile := account.Profile()
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, profile, s.cacheTTL); err != nil {
				l.Warn().Err(err).Str(log.FieldAccountID, accountID).Msg("failed to cache profile")
			}
		}
		return profile, nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			l.Error().Err(err).Str(log.FieldAccountID, accountID).Msg("failed to get account")
		}
		return nil, err
	}

	profile, ok := v.(*domain.AccountProfile)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return profile, nil
}

// DeleteAccount removes the account with its posts and edges, then drops
// what other stores hold about it.
func (s *accountService) DeleteAccount(ctx context.Context, accountID string) error {
	l := log.Ctx(ctx)

	var neighbours []string
	if s.counters != nil && s.relations != nil {
		following, err := s.relations.FollowingIDs(ctx, accountID)
		if err != nil {
			return err
		}
		followers, err := s.relations.FollowerIDs(ctx, accountID)
		if err != nil {
			return err
		}
		neighbours = append(following, followers...)
	}

	if err := s.repo.Delete(ctx, accountID); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			l.Error().Err(err).Str(log.FieldAccountID, accountID).Msg("failed to delete account")
		}
		return err
	}
	s.invalidate(ctx, accountID)

	if s.counters != nil {
		for _, id := range append(neighbours, accountID) {
			if err := s.counters.Invalidate(ctx, id); err != nil {
				l.Warn().Err(err).Str(log.FieldAccountID, id).Msg("failed to invalidate follow counts")
			}
		}
	}

	if s.pictures != nil {
		if err := s.pictures.DeletePrefix(ctx, PicturePrefix(accountID)); err != nil {
			l.Warn().Err(err).Str(log.FieldAccountID, accountID).Msg("failed to delete post pictures")
		}
	}

	audit.Log(ctx, audit.ActionDeleteAccount, accountID, "account deleted")
	return nil
}

func (s *accountService) invalidate(ctx context.Context, accountID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.cache.BuildKeyByID(accountID)); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldAccountID, accountID).Msg("failed to invalidate profile cache")
	}
}

var _ AccountService = (*accountService)(nil)

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-feed/internal/cache"
	"github.com/weiawesome/wes-io-feed/internal/digest"
	"github.com/weiawesome/wes-io-feed/internal/domain"
	"github.com/weiawesome/wes-io-feed/internal/repository"
	"github.com/weiawesome/wes-io-feed/internal/store"
	"github.com/weiawesome/wes-io-feed/internal/token"
	"github.com/weiawesome/wes-io-feed/pkg/database"
	"github.com/weiawesome/wes-io-feed/pkg/storage"
)

var testCreds = domain.Credentials{Hasher: digest.New(true), NewToken: token.New}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentToken struct {
	kind      string
	accountID string
	email     string
	token     string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentToken
}

func (n *recordingNotifier) SendActivation(_ context.Context, account domain.Account, tok string) {
	n.record("activation", account, tok)
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, account domain.Account, tok string) {
	n.record("reset", account, tok)
}

func (n *recordingNotifier) record(kind string, account domain.Account, tok string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentToken{kind: kind, accountID: account.ID, email: account.Email, token: tok})
}

func (n *recordingNotifier) Sent() []sentToken {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentToken(nil), n.sent...)
}

type testEnv struct {
	db        *gorm.DB
	mr        *miniredis.Miniredis
	accounts  *repository.GormAccountRepository
	relations *repository.GormRelationshipRepository
	posts     *repository.GormPostRepository
	counters  *store.RedisFollowStore
	pictures  *storage.LocalStorage
	notifier  *recordingNotifier
	clock     *fakeClock
	svc       *accountService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db,
		&domain.AccountModel{}, &domain.RelationshipModel{}, &domain.PostModel{}))
	t.Cleanup(func() { _ = database.Close(db) })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	pictures, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir(), PublicURL: "/media"})
	require.NoError(t, err)

	env := &testEnv{
		db:        db,
		mr:        mr,
		accounts:  repository.NewGormAccountRepository(db),
		relations: repository.NewGormRelationshipRepository(db),
		posts:     repository.NewGormPostRepository(db),
		counters:  store.NewRedisFollowStore(client, "graph"),
		pictures:  pictures,
		notifier:  &recordingNotifier{},
		clock:     newFakeClock(),
	}

	env.svc = NewAccountService(AccountDeps{
		Accounts:  env.accounts,
		Relations: env.relations,
		Cache:     cache.NewRedisAccountCache(client, "account"),
		CacheTTL:  time.Minute,
		Counters:  env.counters,
		Pictures:  env.pictures,
		Creds:     testCreds,
		Notifier:  env.notifier,
		Now:       env.clock.Now,
	}).(*accountService)
	env.svc.dispatch = func(ctx context.Context, fn func(context.Context)) { fn(ctx) }

	return env
}

// registerActive registers an account and activates it with the token
// the notifier received.
func (e *testEnv) registerActive(t *testing.T, name, email, password string) *domain.AccountProfile {
	t.Helper()
	ctx := t.Context()

	profile, err := e.svc.Register(ctx, &domain.RegisterRequest{Name: name, Email: email, Password: password})
	require.NoError(t, err)

	tok := e.lastToken(t, "activation", profile.ID)
	activated, err := e.svc.Activate(ctx, email, tok)
	require.NoError(t, err)
	return activated
}

func (e *testEnv) lastToken(t *testing.T, kind, accountID string) string {
	t.Helper()
	sent := e.notifier.Sent()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].kind == kind && sent[i].accountID == accountID {
			return sent[i].token
		}
	}
	t.Fatalf("no %s token sent to %s", kind, accountID)
	return ""
}

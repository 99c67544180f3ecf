package reconciler

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-feed/internal/domain"
	"github.com/weiawesome/wes-io-feed/internal/repository"
	"github.com/weiawesome/wes-io-feed/internal/store"
	pkglog "github.com/weiawesome/wes-io-feed/pkg/log"
)

// Config controls how often and how widely counts are reconciled.
type Config struct {
	Interval time.Duration `mapstructure:"interval"`
	TopN     int           `mapstructure:"top_n"`
}

// Reconciler periodically rewrites the cached edge counts of the most
// read accounts from the database.
type Reconciler struct {
	store  store.FollowStore
	repo   repository.RelationshipRepository
	cfg    Config
	quit   chan struct{}
	doneCh chan struct{}
}

// New creates a new Reconciler.
func New(store store.FollowStore, repo repository.RelationshipRepository, cfg Config) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 100
	}
	return &Reconciler{
		store:  store,
		repo:   repo,
		cfg:    cfg,
		quit:   make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the reconciler in a background goroutine.
func (r *Reconciler) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop signals the reconciler to stop and returns immediately.
// Call Done() to wait for it to exit.
func (r *Reconciler) Stop() {
	close(r.quit)
}

// Done returns a channel that is closed when the reconciler has fully stopped.
func (r *Reconciler) Done() <-chan struct{} {
	return r.doneCh
}

func (r *Reconciler) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reconcile(ctx)
		}
	}
}

// Reconcile runs one pass and returns the number of accounts refreshed.
func (r *Reconciler) Reconcile(ctx context.Context) int {
	l := pkglog.L()
	l.Debug().Msg("reconciler: starting hot-key reconciliation")

	accountIDs, err := r.store.GetTopHotKeys(ctx, int64(r.cfg.TopN))
	if err != nil {
		l.Error().Err(err).Msg("reconciler: failed to get top hot keys")
		return 0
	}
	if len(accountIDs) == 0 {
		return 0
	}

	refreshed := 0
	for _, id := range accountIDs {
		if r.refresh(ctx, id) {
			refreshed++
		}
	}

	if err := r.store.ResetHotKeyScores(ctx); err != nil {
		l.Error().Err(err).Msg("reconciler: failed to reset hot key scores")
	}

	l.Info().Int("count", refreshed).Msg("reconciler: hot-key reconciliation complete")
	return refreshed
}

func (r *Reconciler) refresh(ctx context.Context, accountID string) bool {
	l := pkglog.L()
	ok := true
	for _, kind := range []domain.CountKind{domain.CountFollowers, domain.CountFollowing} {
		n, err := r.repo.Count(ctx, accountID, kind)
		if err != nil {
			l.Error().Err(err).Str(pkglog.FieldAccountID, accountID).Str("kind", string(kind)).Msg("reconciler: failed to count edges")
			ok = false
			continue
		}
		if err := r.store.SetCount(ctx, accountID, kind, n); err != nil {
			l.Error().Err(err).Str(pkglog.FieldAccountID, accountID).Str("kind", string(kind)).Msg("reconciler: failed to set count in redis")
			ok = false
		}
	}
	return ok
}

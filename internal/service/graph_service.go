package service

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-io-feed/internal/audit"
	"github.com/weiawesome/wes-io-feed/internal/consumer"
	"github.com/weiawesome/wes-io-feed/internal/domain"
	"github.com/weiawesome/wes-io-feed/internal/metrics"
	"github.com/weiawesome/wes-io-feed/internal/repository"
	"github.com/weiawesome/wes-io-feed/internal/store"
	pkglog "github.com/weiawesome/wes-io-feed/pkg/log"
)

// GraphOptions tune the graph service.
type GraphOptions struct {
	// AllowSelfFollow lets an account follow itself.
	AllowSelfFollow bool
	// CountersViaCDC leaves cached counter updates to HandleCDCEvent.
	CountersViaCDC bool
}

type graphService struct {
	accounts repository.AccountRepository
	repo     repository.RelationshipRepository
	store    store.FollowStore
	opts     GraphOptions
}

// NewGraphService creates a new graph service. followStore may be nil, in
// which case counts always come from the database.
func NewGraphService(accounts repository.AccountRepository, repo repository.RelationshipRepository, followStore store.FollowStore, opts GraphOptions) GraphService {
	return &graphService{
		accounts: accounts,
		repo:     repo,
		store:    followStore,
		opts:     opts,
	}
}

// Follow adds the edge followerID -> followedID. Following twice is a
// no-op reported as changed=false.
func (s *graphService) Follow(ctx context.Context, followerID, followedID string) (bool, error) {
	l := pkglog.Ctx(ctx)

	if followerID == followedID && !s.opts.AllowSelfFollow {
		return false, domain.ErrSelfFollow
	}
	if _, err := s.accounts.GetByID(ctx, followedID); err != nil {
		return false, err
	}

	changed, err := s.repo.Follow(ctx, followerID, followedID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, err
	}
	if err != nil {
		l.Error().Err(err).
			Str(pkglog.FieldFollowerID, followerID).
			Str(pkglog.FieldFollowedID, followedID).
			Msg("failed to follow account")
		return false, err
	}
	metrics.EdgeChange("follow", changed)

	if changed {
		s.adjustCounts(ctx, followerID, followedID, true)
		audit.LogTarget(ctx, audit.ActionFollow, followerID, followedID, "account followed")
	}
	return changed, nil
}

// Unfollow removes the edge followerID -> followedID. Removing a missing
// edge is a no-op reported as changed=false.
func (s *graphService) Unfollow(ctx context.Context, followerID, followedID string) (bool, error) {
	l := pkglog.Ctx(ctx)

	changed, err := s.repo.Unfollow(ctx, followerID, followedID)
	if err != nil {
		l.Error().Err(err).
			Str(pkglog.FieldFollowerID, followerID).
			Str(pkglog.FieldFollowedID, followedID).
			Msg("failed to unfollow account")
		return false, err
	}
	metrics.EdgeChange("unfollow", changed)

	if changed {
		s.adjustCounts(ctx, followerID, followedID, false)
		audit.LogTarget(ctx, audit.ActionUnfollow, followerID, followedID, "account unfollowed")
	}
	return changed, nil
}

func (s *graphService) adjustCounts(ctx context.Context, followerID, followedID string, incr bool) {
	if s.store == nil || s.opts.CountersViaCDC {
		return
	}
	s.applyEdge(ctx, followerID, followedID, incr)
}

// applyEdge moves the cached counts of both ends of an edge. Failures are
// logged; the reconciler repairs drift on hot accounts.
func (s *graphService) applyEdge(ctx context.Context, followerID, followedID string, incr bool) {
	l := pkglog.Ctx(ctx)

	apply := s.store.CondDecr
	if incr {
		apply = s.store.CondIncr
	}
	if err := apply(ctx, followedID, domain.CountFollowers); err != nil {
		l.Warn().Err(err).Str(pkglog.FieldAccountID, followedID).Msg("failed to adjust followers count")
	}
	if err := apply(ctx, followerID, domain.CountFollowing); err != nil {
		l.Warn().Err(err).Str(pkglog.FieldAccountID, followerID).Msg("failed to adjust following count")
	}
}

func (s *graphService) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	return s.repo.IsFollowing(ctx, followerID, followedID)
}

func (s *graphService) BatchIsFollowing(ctx context.Context, followerID string, targetIDs []string) (map[string]bool, error) {
	return s.repo.BatchIsFollowing(ctx, followerID, targetIDs)
}

func (s *graphService) FollowingIDs(ctx context.Context, accountID string) ([]string, error) {
	return s.repo.FollowingIDs(ctx, accountID)
}

func (s *graphService) FollowerIDs(ctx context.Context, accountID string) ([]string, error) {
	return s.repo.FollowerIDs(ctx, accountID)
}

// Stats returns both edge counts of accountID, reading them in parallel.
func (s *graphService) Stats(ctx context.Context, accountID string) (*domain.FollowStats, error) {
	l := pkglog.Ctx(ctx)

	if s.store != nil {
		if err := s.store.RecordAccess(ctx, accountID); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldAccountID, accountID).Msg("failed to record hot key access")
		}
	}

	stats := &domain.FollowStats{AccountID: accountID}
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.count(gCtx, accountID, domain.CountFollowers)
		stats.Followers = n
		return err
	})
	g.Go(func() error {
		n, err := s.count(gCtx, accountID, domain.CountFollowing)
		stats.Following = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

// count reads one counter from Redis, falling back to the database and
// populating Redis on a miss.
func (s *graphService) count(ctx context.Context, accountID string, kind domain.CountKind) (int64, error) {
	l := pkglog.Ctx(ctx)

	if s.store != nil {
		n, found, err := s.store.GetCount(ctx, accountID, kind)
		if err != nil {
			l.Warn().Err(err).Str(pkglog.FieldAccountID, accountID).Str("kind", string(kind)).Msg("redis get count failed, falling back to db")
		}
		if found {
			return n, nil
		}
	}

	n, err := s.repo.Count(ctx, accountID, kind)
	if err != nil {
		l.Error().Err(err).Str(pkglog.FieldAccountID, accountID).Str("kind", string(kind)).Msg("failed to count edges")
		return 0, err
	}

	if s.store != nil {
		if err := s.store.SetCount(ctx, accountID, kind, n); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldAccountID, accountID).Str("kind", string(kind)).Msg("failed to set count in redis")
		}
	}
	return n, nil
}

// HandleCDCEvent applies a Debezium relationships event to the cached
// counters. Snapshot reads and updates do not change the edge set.
func (s *graphService) HandleCDCEvent(ctx context.Context, event *consumer.DebeziumMessage) error {
	l := pkglog.Ctx(ctx)

	if s.store == nil {
		return nil
	}

	switch event.Payload.Op {
	case consumer.OpSnapshot, consumer.OpUpdate:
		return nil

	case consumer.OpCreate:
		rec := event.Payload.After
		if rec == nil {
			l.Warn().Msg("CDC create event missing 'after' field")
			return nil
		}
		s.applyEdge(ctx, rec.FollowerID, rec.FollowedID, true)

	case consumer.OpDelete:
		rec := event.Payload.Before
		if rec == nil {
			l.Warn().Msg("CDC delete event missing 'before' field")
			return nil
		}
		s.applyEdge(ctx, rec.FollowerID, rec.FollowedID, false)

	default:
		l.Warn().Str("op", event.Payload.Op).Msg("unknown CDC operation")
	}

	return nil
}

var _ GraphService = (*graphService)(nil)
var _ consumer.CDCEventHandler = (*graphService)(nil)

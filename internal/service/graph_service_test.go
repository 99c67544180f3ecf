package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-feed/internal/consumer"
	"github.com/weiawesome/wes-io-feed/internal/domain"
)

func newGraph(env *testEnv, opts GraphOptions) GraphService {
	return NewGraphService(env.accounts, env.relations, env.counters, opts)
}

func TestGraphService_FollowUnfollow(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	a := env.registerActive(t, "A", "a@example.com", "foobar")
	b := env.registerActive(t, "B", "b@example.com", "foobar")
	g := newGraph(env, GraphOptions{AllowSelfFollow: true})

	following, err := g.IsFollowing(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, following)

	changed, err := g.Follow(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = g.Follow(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	following, err = g.IsFollowing(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, following)

	following, err = g.IsFollowing(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, following)

	ids, err := g.FollowingIDs(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids)
	ids, err = g.FollowerIDs(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids)

	changed, err = g.Unfollow(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = g.Unfollow(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	following, err = g.IsFollowing(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, following)
}

func TestGraphService_FollowMissingAccount(t *testing.T) {
	env := newTestEnv(t)
	a := env.registerActive(t, "A", "a@example.com", "foobar")
	g := newGraph(env, GraphOptions{})

	_, err := g.Follow(t.Context(), a.ID, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGraphService_FollowFromDeletedAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	a := env.registerActive(t, "A", "a@example.com", "foobar")
	b := env.registerActive(t, "B", "b@example.com", "foobar")
	g := newGraph(env, GraphOptions{})

	require.NoError(t, env.accounts.Delete(ctx, a.ID))

	_, err := g.Follow(ctx, a.ID, b.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ids, err := g.FollowerIDs(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestGraphService_SelfFollow(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	a := env.registerActive(t, "A", "a@example.com", "foobar")

	_, err := newGraph(env, GraphOptions{}).Follow(ctx, a.ID, a.ID)
	assert.ErrorIs(t, err, domain.ErrSelfFollow)

	changed, err := newGraph(env, GraphOptions{AllowSelfFollow: true}).Follow(ctx, a.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestGraphService_ConcurrentFollowCreatesOneEdge(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	a := env.registerActive(t, "A", "a@example.com", "foobar")
	b := env.registerActive(t, "B", "b@example.com", "foobar")
	g := newGraph(env, GraphOptions{})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changes int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed, err := g.Follow(ctx, a.ID, b.ID)
			assert.NoError(t, err)
			if changed {
				mu.Lock()
				changes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, changes)
	stats, err := g.Stats(ctx, b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Followers)
}

func TestGraphService_Stats(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	a := env.registerActive(t, "A", "a@example.com", "foobar")
	b := env.registerActive(t, "B", "b@example.com", "foobar")
	c := env.registerActive(t, "C", "c@example.com", "foobar")
	g := newGraph(env, GraphOptions{})

	for _, id := range []string{b.ID, c.ID} {
		_, err := g.Follow(ctx, a.ID, id)
		require.NoError(t, err)
	}
	_, err := g.Follow(ctx, b.ID, a.ID)
	require.NoError(t, err)

	stats, err := g.Stats(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, &domain.FollowStats{AccountID: a.ID, Followers: 1, Following: 2}, stats)

	// The miss populated Redis and recorded the access.
	assert.True(t, env.mr.Exists("graph:followers:"+a.ID))
	assert.True(t, env.mr.Exists("graph:following:"+a.ID))
	hot, err := env.counters.GetTopHotKeys(ctx, 10)
	require.NoError(t, err)
	assert.Contains(t, hot, a.ID)

	// Cached counts move with the edges.
	_, err = g.Follow(ctx, c.ID, a.ID)
	require.NoError(t, err)
	_, err = g.Unfollow(ctx, a.ID, b.ID)
	require.NoError(t, err)

	stats, err = g.Stats(ctx, a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Followers)
	assert.EqualValues(t, 1, stats.Following)
}

func TestGraphService_CountersViaCDC(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	a := env.registerActive(t, "A", "a@example.com", "foobar")
	b := env.registerActive(t, "B", "b@example.com", "foobar")
	g := newGraph(env, GraphOptions{CountersViaCDC: true})

	_, err := g.Stats(ctx, b.ID)
	require.NoError(t, err)

	_, err = g.Follow(ctx, a.ID, b.ID)
	require.NoError(t, err)

	// The service leaves the cached count alone.
	n, _, err := env.counters.GetCount(ctx, b.ID, domain.CountFollowers)
	require.NoError(t, err)
	assert.Zero(t, n)

	edge := &consumer.DebeziumRelationshipRecord{FollowerID: a.ID, FollowedID: b.ID}

	require.NoError(t, g.HandleCDCEvent(ctx, &consumer.DebeziumMessage{Payload: consumer.DebeziumPayload{Op: consumer.OpSnapshot, After: edge}}))
	require.NoError(t, g.HandleCDCEvent(ctx, &consumer.DebeziumMessage{Payload: consumer.DebeziumPayload{Op: consumer.OpCreate, After: edge}}))
	n, _, err = env.counters.GetCount(ctx, b.ID, domain.CountFollowers)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// a's counts were never cached, so they stay uncached.
	_, found, err := env.counters.GetCount(ctx, a.ID, domain.CountFollowing)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, g.HandleCDCEvent(ctx, &consumer.DebeziumMessage{Payload: consumer.DebeziumPayload{Op: consumer.OpUpdate, Before: edge, After: edge}}))
	require.NoError(t, g.HandleCDCEvent(ctx, &consumer.DebeziumMessage{Payload: consumer.DebeziumPayload{Op: consumer.OpDelete, Before: edge}}))
	n, _, err = env.counters.GetCount(ctx, b.ID, domain.CountFollowers)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Malformed events are skipped.
	require.NoError(t, g.HandleCDCEvent(ctx, &consumer.DebeziumMessage{Payload: consumer.DebeziumPayload{Op: consumer.OpCreate}}))
	require.NoError(t, g.HandleCDCEvent(ctx, &consumer.DebeziumMessage{Payload: consumer.DebeziumPayload{Op: consumer.OpDelete}}))
}

func TestGraphService_WithoutStore(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	a := env.registerActive(t, "A", "a@example.com", "foobar")
	b := env.registerActive(t, "B", "b@example.com", "foobar")
	g := NewGraphService(env.accounts, env.relations, nil, GraphOptions{})

	_, err := g.Follow(ctx, a.ID, b.ID)
	require.NoError(t, err)

	stats, err := g.Stats(ctx, b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Followers)
	assert.False(t, env.mr.Exists("graph:followers:"+b.ID))

	status, err := g.BatchIsFollowing(ctx, a.ID, []string{b.ID, "missing"})
	require.NoError(t, err)
	assert.True(t, status[b.ID])
	assert.False(t, status["missing"])

	require.NoError(t, g.HandleCDCEvent(ctx, &consumer.DebeziumMessage{Payload: consumer.DebeziumPayload{Op: consumer.OpCreate}}))
}

package redisclient

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-service/internal/cache"
	"pos-service/internal/models"
)

var (
	_ cache.SummaryCache = (*Client)(nil)
	_ cache.CommitGuard  = (*Client)(nil)
)

// newMiniClient runs against an in-process miniredis, which also evaluates
// the embedded Lua scripts
func newMiniClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := newClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { c.Close() })
	return c, mr
}

// newTestClient prefers a real server when POS_TEST_REDIS_ADDR is set
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("POS_TEST_REDIS_ADDR")
	if addr == "" {
		c, _ := newMiniClient(t)
		return c
	}
	c, err := NewClient(addr, "", 15)
	require.NoError(t, err)
	t.Cleanup(func() {
		c.GetClient().FlushDB(context.Background())
		c.Close()
	})
	return c
}

func TestCommitLock(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	release, ok, err := c.Acquire(ctx, "commit:terminal-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = c.Acquire(ctx, "commit:terminal-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, release(ctx))
	_, ok, err = c.Acquire(ctx, "commit:terminal-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpiredLockReleaseKeepsNewOwner(t *testing.T) {
	c, mr := newMiniClient(t)
	ctx := context.Background()

	staleRelease, ok, err := c.Acquire(ctx, "commit:terminal-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	first, err := mr.Get("lock:commit:terminal-1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	require.False(t, mr.Exists("lock:commit:terminal-1"))

	release, ok, err := c.Acquire(ctx, "commit:terminal-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	second, err := mr.Get("lock:commit:terminal-1")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	require.NoError(t, staleRelease(ctx))
	held, err := mr.Get("lock:commit:terminal-1")
	require.NoError(t, err)
	assert.Equal(t, second, held)

	_, ok, err = c.Acquire(ctx, "commit:terminal-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("lock:commit:terminal-1"))
}

func TestSummaryCache(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "2026-03-05:7")
	require.NoError(t, err)
	assert.False(t, ok)

	gen, err := c.Generation(ctx)
	require.NoError(t, err)

	summary := &models.SalesSummary{From: "2026-02-27", To: "2026-03-05", GrandTotal: decimal.NewFromInt(2250), Transactions: 1}
	current, err := c.Set(ctx, "2026-03-05:7", summary, time.Minute, gen)
	require.NoError(t, err)
	assert.True(t, current)

	got, ok, err := c.Get(ctx, "2026-03-05:7")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.GrandTotal.Equal(decimal.NewFromInt(2250)))

	require.NoError(t, c.Invalidate(ctx))
	_, ok, err = c.Get(ctx, "2026-03-05:7")
	require.NoError(t, err)
	assert.False(t, ok)

	next, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, gen+1, next)
}

func TestSummaryCacheRejectsStaleGeneration(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	gen, err := c.Generation(ctx)
	require.NoError(t, err)

	// a sale commits while the summary is being computed
	require.NoError(t, c.Invalidate(ctx))

	stale := &models.SalesSummary{From: "2026-02-27", To: "2026-03-05", Transactions: 0}
	current, err := c.Set(ctx, "2026-03-05:7", stale, time.Minute, gen)
	require.NoError(t, err)
	assert.False(t, current)

	_, ok, err := c.Get(ctx, "2026-03-05:7")
	require.NoError(t, err)
	assert.False(t, ok)

	gen, err = c.Generation(ctx)
	require.NoError(t, err)
	fresh := &models.SalesSummary{From: "2026-02-27", To: "2026-03-05", Transactions: 1}
	current, err = c.Set(ctx, "2026-03-05:7", fresh, time.Minute, gen)
	require.NoError(t, err)
	assert.True(t, current)

	got, ok, err := c.Get(ctx, "2026-03-05:7")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, got.Transactions)
}

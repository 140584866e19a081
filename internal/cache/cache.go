package cache

import (
	"context"
	"sync"
	"time"

	"pos-service/internal/models"
)

// SummaryCache stores computed sales summaries. Every Invalidate bumps a
// generation; Set only stores a summary computed under the current one, so a
// summary read before an invalidation is never cached after it. Set reports
// current=false when it dropped the value for that reason.
type SummaryCache interface {
	Get(ctx context.Context, key string) (*models.SalesSummary, bool, error)
	Generation(ctx context.Context) (int64, error)
	Set(ctx context.Context, key string, value *models.SalesSummary, ttl time.Duration, generation int64) (current bool, err error)
	Invalidate(ctx context.Context) error
}

// CommitGuard hands out per-terminal commit locks. ok is false when the
// lock is already held.
type CommitGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ string) (*models.SalesSummary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) Generation(_ context.Context) (int64, error) {
	return 0, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ string, _ *models.SalesSummary, _ time.Duration, _ int64) (bool, error) {
	return true, nil
}

func (NoopSummaryCache) Invalidate(_ context.Context) error {
	return nil
}

// LocalCommitGuard is an in-process CommitGuard for single-instance setups
type LocalCommitGuard struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalCommitGuard() *LocalCommitGuard {
	return &LocalCommitGuard{held: make(map[string]time.Time), now: time.Now}
}

func (g *LocalCommitGuard) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if expires, ok := g.held[key]; ok && now.Before(expires) {
		return nil, false, nil
	}
	expires := now.Add(ttl)
	g.held[key] = expires

	release := func(context.Context) error {
		g.mu.Lock()
		defer g.mu.Unlock()
		// a lock that expired and was taken by someone else is not ours to drop
		if g.held[key].Equal(expires) {
			delete(g.held, key)
		}
		return nil
	}
	return release, true, nil
}

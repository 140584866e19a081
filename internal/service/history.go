package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pos-service/internal/cache"
	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"
)

// History serves the sales dashboard from the ledger
type History struct {
	store      store.DocumentStore
	cache      cache.SummaryCache
	aggregator *Aggregator
	ttl        time.Duration
	logger     *zap.Logger
}

func NewHistory(st store.DocumentStore, c cache.SummaryCache, aggregator *Aggregator, ttl time.Duration) *History {
	if c == nil {
		c = cache.NoopSummaryCache{}
	}
	return &History{
		store:      st,
		cache:      c,
		aggregator: aggregator,
		ttl:        ttl,
		logger:     util.GetLogger(),
	}
}

// Summary aggregates the ledger over the trailing window. Cached summaries
// are keyed by the current day so they roll over at midnight.
func (h *History) Summary(ctx context.Context, windowDays int) (*models.SalesSummary, error) {
	ctx, span := util.StartSpan(ctx, "History.Summary")
	defer span.End()

	windowDays = h.aggregator.window(windowDays)
	key := fmt.Sprintf("%s:%d", h.aggregator.now().In(h.aggregator.loc).Format(store.DayLayout), windowDays)

	cacheable := h.ttl > 0
	var generation int64
	if cacheable {
		cached, ok, err := h.cache.Get(ctx, key)
		if err != nil {
			h.logger.Warn("Summary cache read failed", zap.Error(err))
		}
		if ok {
			util.SummaryCacheTotal.WithLabelValues("hit").Inc()
			return cached, nil
		}
		util.SummaryCacheTotal.WithLabelValues("miss").Inc()

		// read before the ledger query so a commit landing during it
		// keeps this summary out of the cache
		if generation, err = h.cache.Generation(ctx); err != nil {
			h.logger.Warn("Summary cache generation read failed", zap.Error(err))
			cacheable = false
		}
	}

	docs, err := h.store.List(ctx, store.SalesCollection,
		store.WhereGTE(store.FieldTimestamp, h.aggregator.WindowStart(windowDays)),
		store.OrderByDesc(store.FieldTimestamp))
	if err != nil {
		util.RecordError(span, err)
		return nil, &StoreUnavailableError{Op: "query sales", Err: err}
	}

	summary := h.aggregator.Aggregate(docs, windowDays)

	if cacheable {
		current, err := h.cache.Set(ctx, key, &summary, h.ttl, generation)
		if err != nil {
			h.logger.Warn("Summary cache write failed", zap.Error(err))
		} else if !current {
			util.SummaryCacheTotal.WithLabelValues("stale").Inc()
		}
	}
	return &summary, nil
}

// MaxWindowDays is the largest window Summary serves
func (h *History) MaxWindowDays() int {
	return h.aggregator.MaxWindowDays()
}

// Invalidate drops every cached summary
func (h *History) Invalidate(ctx context.Context) error {
	if err := h.cache.Invalidate(ctx); err != nil {
		return fmt.Errorf("failed to invalidate sales summaries: %w", err)
	}
	return nil
}

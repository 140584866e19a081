package service

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"
)

const (
	DefaultWindowDays    = 7
	DefaultTopProducts   = 5
	DefaultMaxWindowDays = 31
)

// Aggregator buckets ledger records into calendar days of its location
type Aggregator struct {
	loc     *time.Location
	now     func() time.Time
	topN    int
	maxDays int
	logger  *zap.Logger
}

func NewAggregator(loc *time.Location, topN, maxWindowDays int) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	if topN < 1 {
		topN = DefaultTopProducts
	}
	if maxWindowDays < 1 {
		maxWindowDays = DefaultMaxWindowDays
	}
	return &Aggregator{loc: loc, now: time.Now, topN: topN, maxDays: maxWindowDays, logger: util.GetLogger()}
}

// MaxWindowDays is the largest window Aggregate will build
func (a *Aggregator) MaxWindowDays() int {
	return a.maxDays
}

// window resolves a requested window: below one means the default, above
// the maximum is clamped.
func (a *Aggregator) window(windowDays int) int {
	if windowDays < 1 {
		windowDays = DefaultWindowDays
	}
	if windowDays > a.maxDays {
		return a.maxDays
	}
	return windowDays
}

// WindowStart is the earliest timestamp the ledger query has to cover:
// midnight windowDays days before today.
func (a *Aggregator) WindowStart(windowDays int) time.Time {
	windowDays = a.window(windowDays)
	today := a.now().In(a.loc)
	midnight := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, a.loc)
	return midnight.AddDate(0, 0, -windowDays)
}

// Aggregate builds windowDays zero-filled buckets ending today. Records for
// days outside the buckets are dropped; malformed records are logged and
// skipped one by one.
func (a *Aggregator) Aggregate(docs []store.Document, windowDays int) models.SalesSummary {
	windowDays = a.window(windowDays)

	today := a.now().In(a.loc)
	summary := models.SalesSummary{
		Days:       make([]models.DaySummary, windowDays),
		GrandTotal: decimal.Zero,
	}
	buckets := make(map[string]int, windowDays)
	for i := 0; i < windowDays; i++ {
		day := today.AddDate(0, 0, i-windowDays+1).Format(store.DayLayout)
		summary.Days[i] = models.DaySummary{Day: day, Total: decimal.Zero, Records: []models.SaleRecord{}}
		buckets[day] = i
	}
	summary.From = summary.Days[0].Day
	summary.To = summary.Days[windowDays-1].Day

	quantities := map[string]int{}
	var order []string

	for _, doc := range docs {
		rec, err := store.SaleRecordFromDocument(doc)
		if err != nil {
			summary.Skipped++
			util.MalformedRecordsTotal.Inc()
			a.logger.Warn("Skipping ledger record",
				zap.Error(&MalformedLedgerRecordError{RecordID: doc.ID, Err: err}))
			continue
		}

		i, ok := buckets[rec.Day]
		if !ok {
			continue
		}
		bucket := &summary.Days[i]
		bucket.Total = bucket.Total.Add(rec.Totals.FinalTotal)
		bucket.Count++
		bucket.Records = append(bucket.Records, rec)

		summary.GrandTotal = summary.GrandTotal.Add(rec.Totals.FinalTotal)
		summary.Transactions++

		for _, item := range rec.Items {
			if _, seen := quantities[item.Name]; !seen {
				order = append(order, item.Name)
			}
			quantities[item.Name] += item.Quantity
		}
	}

	ranks := make([]models.ProductRank, 0, len(order))
	for _, name := range order {
		ranks = append(ranks, models.ProductRank{Name: name, Quantity: quantities[name]})
	}
	sort.SliceStable(ranks, func(i, j int) bool {
		return ranks[i].Quantity > ranks[j].Quantity
	})
	if len(ranks) > a.topN {
		ranks = ranks[:a.topN]
	}
	summary.TopProducts = ranks

	return summary
}

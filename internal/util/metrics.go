package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesCommittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_sales_committed_total",
		Help: "Total number of sales written to the ledger",
	})

	SalesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_sales_failed_total",
		Help: "Total number of failed sale commits",
	}, []string{"reason"})

	SaleAmountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_sale_amount_total",
		Help: "Sum of final totals of committed sales",
	})

	CommitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pos_commit_latency_seconds",
		Help:    "Latency of the stock decrement and ledger write transaction",
		Buckets: prometheus.DefBuckets,
	})

	CatalogLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_catalog_loads_total",
		Help: "Total number of catalog loads",
	}, []string{"result"})

	CatalogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pos_catalog_products",
		Help: "Number of products in the most recently loaded catalog",
	})

	MatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_matches_total",
		Help: "Total number of product searches by matching phase",
	}, []string{"phase"})

	LinesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_lines_rejected_total",
		Help: "Total number of sale line additions rejected",
	}, []string{"reason"})

	MalformedRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_malformed_ledger_records_total",
		Help: "Total number of ledger records skipped during aggregation",
	})

	SummaryCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_summary_cache_total",
		Help: "Sales summary cache lookups",
	}, []string{"result"})

	StockAdjustmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_stock_adjustments_total",
		Help: "Total number of back-office stock writes",
	}, []string{"kind"})

	SoldOutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_products_sold_out_total",
		Help: "Total number of stock writes that left a product at zero",
	}, []string{"source"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pos_active_sessions",
		Help: "Number of open terminal sessions",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

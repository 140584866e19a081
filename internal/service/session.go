package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pos-service/internal/cache"
	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"
)

// EventPublisher delivers domain events after the store write succeeded
type EventPublisher interface {
	PublishSaleCommitted(ctx context.Context, event *models.SaleCommittedEvent) error
	PublishStockAdjusted(ctx context.Context, event *models.StockAdjustedEvent) error
}

// SessionConfig holds terminal behaviour settings
type SessionConfig struct {
	SuggestionLimit int
	MinQueryChars   int
	CommitLockTTL   time.Duration
	Location        *time.Location
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SuggestionLimit: 8,
		MinQueryChars:   2,
		CommitLockTTL:   30 * time.Second,
		Location:        time.Local,
	}
}

// Dependencies are shared by every session of a registry
type Dependencies struct {
	Store     store.DocumentStore
	Guard     cache.CommitGuard
	Publisher EventPublisher
	History   *History
}

// SaleView is what a terminal renders after each command
type SaleView struct {
	TerminalID      string            `json:"terminal_id"`
	Lines           []models.SaleLine `json:"lines"`
	Totals          models.SaleTotals `json:"totals"`
	CatalogSize     int               `json:"catalog_size"`
	CatalogLoadedAt time.Time         `json:"catalog_loaded_at"`
}

// SearchResult carries either the line added by a barcode scan or the
// keyword suggestions.
type SearchResult struct {
	Query       string           `json:"query"`
	ByBarcode   bool             `json:"by_barcode"`
	Added       *models.SaleLine `json:"added,omitempty"`
	Suggestions []models.Product `json:"suggestions"`
	Matches     int              `json:"matches"`
	Sale        *SaleView        `json:"sale"`
}

// CommitResult is returned by a successful commit
type CommitResult struct {
	Record *models.SaleRecord   `json:"record"`
	Stock  []models.StockChange `json:"stock"`
	Sale   *SaleView            `json:"sale"`
}

// Session is one POS terminal: its catalog, its active sale and the
// commands that act on them. Commands of a session run one at a time.
type Session struct {
	mu         sync.Mutex
	id         string
	catalog    *Catalog
	sale       *ActiveSale
	committer  *Committer
	deps       Dependencies
	cfg        SessionConfig
	logger     *zap.Logger
	now        func() time.Time
	lastActive time.Time
}

func NewSession(terminalID string, deps Dependencies, cfg SessionConfig) *Session {
	if deps.Guard == nil {
		deps.Guard = cache.NewLocalCommitGuard()
	}
	s := &Session{
		id:        terminalID,
		catalog:   NewCatalog(deps.Store),
		sale:      NewActiveSale(),
		committer: NewCommitter(deps.Store, cfg.Location),
		deps:      deps,
		cfg:       cfg,
		logger:    util.GetLogger().With(zap.String("terminal_id", terminalID)),
		now:       time.Now,
	}
	s.lastActive = s.now()
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) touch() {
	s.lastActive = s.now()
}

// Open loads the catalog and starts with an empty sale
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if err := s.catalog.Load(ctx); err != nil {
		return err
	}
	s.sale.Clear()
	return nil
}

// Search matches the query against the catalog. Queries shorter than the
// configured minimum return nothing. A unique barcode hit is added to the
// sale directly.
func (s *Session) Search(ctx context.Context, query string) (*SearchResult, error) {
	_, span := util.StartSpan(ctx, "Session.Search")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	result := &SearchResult{Query: query, Suggestions: []models.Product{}}
	if utf8.RuneCountInString(strings.TrimSpace(query)) < s.cfg.MinQueryChars {
		result.Sale = s.view()
		return result, nil
	}

	match := Resolve(s.catalog.Products(), query)
	result.Matches = len(match.Products)

	if match.ByBarcode {
		util.MatchesTotal.WithLabelValues("barcode").Inc()
		result.ByBarcode = true
		p := match.Products[0]
		if err := s.addLine(p); err != nil {
			result.Suggestions = match.Products
			result.Sale = s.view()
			return result, err
		}
		line := s.lineFor(p.ID)
		result.Added = &line
		result.Sale = s.view()
		return result, nil
	}

	util.MatchesTotal.WithLabelValues("keyword").Inc()
	suggestions := match.Products
	if s.cfg.SuggestionLimit > 0 && len(suggestions) > s.cfg.SuggestionLimit {
		suggestions = suggestions[:s.cfg.SuggestionLimit]
	}
	if suggestions != nil {
		result.Suggestions = suggestions
	}
	result.Sale = s.view()
	return result, nil
}

// AddProduct adds one unit of a catalog product
func (s *Session) AddProduct(productID string) (*SaleView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	p, ok := s.catalog.FindByID(productID)
	if !ok {
		return s.view(), fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if err := s.addLine(p); err != nil {
		return s.view(), err
	}
	return s.view(), nil
}

func (s *Session) addLine(p models.Product) error {
	if err := s.sale.AddLine(p); err != nil {
		util.LinesRejectedTotal.WithLabelValues("insufficient_stock").Inc()
		return err
	}
	return nil
}

func (s *Session) lineFor(productID string) models.SaleLine {
	for _, l := range s.sale.Lines() {
		if l.ProductID == productID {
			return l
		}
	}
	return models.SaleLine{}
}

// RemoveLine drops a line from the sale
func (s *Session) RemoveLine(productID string) (*SaleView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if !s.sale.RemoveLine(productID) {
		return s.view(), fmt.Errorf("%w: no line for %s", ErrProductNotFound, productID)
	}
	return s.view(), nil
}

// SetDiscountPercent applies a clamped discount. The view reflects the
// applied value even when an *InvalidDiscountError is returned.
func (s *Session) SetDiscountPercent(p float64) (*SaleView, decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	applied, err := s.sale.SetDiscountPercent(p)
	return s.view(), applied, err
}

// Clear abandons the sale without touching the store
func (s *Session) Clear() *SaleView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	s.sale.Clear()
	return s.view()
}

func (s *Session) View() *SaleView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.view()
}

// RefreshCatalog reloads products; the sale is kept
func (s *Session) RefreshCatalog(ctx context.Context) (*SaleView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if err := s.catalog.Load(ctx); err != nil {
		return s.view(), err
	}
	return s.view(), nil
}

// Commit writes the sale. On success the catalog is patched with the stock
// values written and the sale is cleared; on failure the sale is untouched.
func (s *Session) Commit(ctx context.Context) (*CommitResult, error) {
	ctx, span := util.StartSpan(ctx, "Session.Commit")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.sale.IsEmpty() {
		return nil, ErrEmptySale
	}

	release, ok, err := s.deps.Guard.Acquire(ctx, "commit:"+s.id, s.cfg.CommitLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire commit lock: %w", err)
	}
	if !ok {
		util.SalesFailedTotal.WithLabelValues("in_progress").Inc()
		return nil, ErrCommitInProgress
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			s.logger.Warn("Failed to release commit lock", zap.Error(err))
		}
	}()

	record, changes, err := s.committer.Commit(ctx, s.sale)
	if err != nil {
		var stock *InsufficientStockError
		if errors.As(err, &stock) {
			s.logger.Info("Commit rejected",
				zap.String("product", stock.Name),
				zap.Int("available", stock.Available),
				zap.Int("requested", stock.Requested))
		} else {
			s.logger.Error("Commit failed", zap.Error(err))
		}
		return nil, err
	}

	for _, ch := range changes {
		s.catalog.ApplyStock(ch.ProductID, ch.Stock)
	}
	s.sale.Clear()

	s.publishCommitted(ctx, record, changes)
	if s.deps.History != nil {
		if err := s.deps.History.Invalidate(ctx); err != nil {
			s.logger.Warn("Failed to invalidate sales summaries", zap.Error(err))
		}
	}

	return &CommitResult{Record: record, Stock: changes, Sale: s.view()}, nil
}

func (s *Session) publishCommitted(ctx context.Context, record *models.SaleRecord, changes []models.StockChange) {
	if s.deps.Publisher == nil {
		return
	}
	event := &models.SaleCommittedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSaleCommitted,
			Timestamp: record.Timestamp,
		},
		TerminalID: s.id,
		SaleID:     record.ID,
		Day:        record.Day,
		FinalTotal: record.Totals.FinalTotal.String(),
		Items:      record.Items,
		Stock:      changes,
	}
	if err := s.deps.Publisher.PublishSaleCommitted(ctx, event); err != nil {
		s.logger.Error("Failed to publish SaleCommitted event", zap.Error(err))
	}
}

// idleSince reports the last command time; ok is false while a command runs
func (s *Session) idleSince() (time.Time, bool) {
	if !s.mu.TryLock() {
		return time.Time{}, false
	}
	defer s.mu.Unlock()
	return s.lastActive, true
}

func (s *Session) view() *SaleView {
	return &SaleView{
		TerminalID:      s.id,
		Lines:           s.sale.Lines(),
		Totals:          s.sale.Totals(),
		CatalogSize:     s.catalog.Len(),
		CatalogLoadedAt: s.catalog.LoadedAt(),
	}
}

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"pos-service/internal/util"
)

// Registry keeps the open terminal sessions
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	deps     Dependencies
	cfg      SessionConfig
	logger   *zap.Logger
	now      func() time.Time
}

func NewRegistry(deps Dependencies, cfg SessionConfig) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		deps:     deps,
		cfg:      cfg,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// Open returns the terminal's session with a freshly loaded catalog and an
// empty sale, creating the session on first use.
func (r *Registry) Open(ctx context.Context, terminalID string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[terminalID]
	r.mu.Unlock()

	if !ok {
		s = NewSession(terminalID, r.deps, r.cfg)
		s.now = r.now
	}
	if err := s.Open(ctx); err != nil {
		return nil, err
	}

	if !ok {
		r.mu.Lock()
		if existing, raced := r.sessions[terminalID]; raced {
			s = existing
		} else {
			r.sessions[terminalID] = s
			util.ActiveSessions.Inc()
			r.logger.Info("Terminal session opened", zap.String("terminal_id", terminalID))
		}
		r.mu.Unlock()
	}
	return s, nil
}

func (r *Registry) Get(terminalID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[terminalID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, terminalID)
	}
	return s, nil
}

// Close discards the session and its active sale
func (r *Registry) Close(terminalID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[terminalID]; !ok {
		return false
	}
	delete(r.sessions, terminalID)
	util.ActiveSessions.Dec()
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than idle. Busy sessions are kept.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()

	closed := 0
	for id, s := range r.sessions {
		last, ok := s.idleSince()
		if !ok || last.After(cutoff) {
			continue
		}
		delete(r.sessions, id)
		util.ActiveSessions.Dec()
		closed++
		r.logger.Info("Closed idle terminal session",
			zap.String("terminal_id", id),
			zap.Time("last_active", last))
	}
	return closed
}

// StartSweeper runs Sweep on a cron schedule until the returned cron is stopped
func (r *Registry) StartSweeper(schedule string, idle time.Duration) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { r.Sweep(idle) }); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	return c, nil
}

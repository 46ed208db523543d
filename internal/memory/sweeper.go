package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically purges memories past the retention period.
type Sweeper struct {
	m        *Manager
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Sweeper returns a sweeper using the configured retention interval.
func (m *Manager) Sweeper() *Sweeper {
	return &Sweeper{
		m:        m,
		interval: m.cfg.RetentionInterval,
		logger:   m.logger.Named("sweeper"),
	}
}

// Start sweeps once immediately, then on every tick, in a background
// goroutine. It does nothing when retention is disabled or the sweeper is
// already running.
func (s *Sweeper) Start(ctx context.Context) {
	if s.m.cfg.RetentionDays <= 0 {
		s.logger.Debug("retention disabled, sweeper not started")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.logger.Info("retention sweeper started",
		zap.Int("retention_days", s.m.cfg.RetentionDays),
		zap.Duration("interval", s.interval))
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("retention sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.m.PurgeExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("retention sweep failed", zap.Error(err))
		}
		return
	}
	s.logger.Debug("retention sweep", zap.Int("purged", n))
}

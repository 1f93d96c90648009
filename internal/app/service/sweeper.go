package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically runs the full reconciliation pass: monthly reset
// check, a walk over every live link, and the retention delete. It is
// the at-least-once backstop for every dropped fast-path signal.
type Sweeper struct {
	logger   *zap.Logger
	sync     *Synchronizer
	interval time.Duration
	stopChan chan struct{}
}

// NewSweeper creates a sweeper over the given synchronizer.
func NewSweeper(logger *zap.Logger, sync *Synchronizer, interval time.Duration) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		logger:   logger,
		sync:     sync,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic sweep.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop stops the periodic sweep.
func (s *Sweeper) Stop() {
	close(s.stopChan)
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopChan:
			s.logger.Info("aggregate sweeper stopped")
			return
		}
	}
}

func (s *Sweeper) sweep() {
	ctx := context.Background()

	if err := s.sync.ResetMonthlyIfRolled(ctx); err != nil {
		s.logger.Error("monthly reset failed", zap.Error(err))
	}

	if err := s.sync.ReconcileAll(ctx); err != nil {
		s.logger.Error("full reconcile sweep failed", zap.Error(err))
	}

	if err := s.sync.SweepRetention(ctx); err != nil {
		s.logger.Error("retention sweep failed", zap.Error(err))
	}
}

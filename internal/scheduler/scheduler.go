// Package scheduler runs the periodic cache sweep.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kailas-cloud/jobfed/internal/logger"
)

// DefaultSpec sweeps every ten minutes.
const DefaultSpec = "@every 10m"

// Sweeper deletes expired cache entries.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Scheduler wraps robfig/cron and owns the sweep job.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	spec    string
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
}

// New creates a scheduler. An empty spec selects DefaultSpec.
func New(sweeper Sweeper, spec string, l *zap.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultSpec
	}
	return &Scheduler{
		cron:    cron.New(),
		sweeper: sweeper,
		spec:    spec,
		logger:  logger.OrNop(l),
	}
}

// Start registers the sweep and starts the cron loop. One sweep also runs right away
// so a restarted node does not serve entries left over from before.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info("Cache sweep scheduled", zap.String("spec", s.spec))

	go s.RunOnce(ctx)
	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Cache sweep stopped")
}

// RunOnce performs one sweep. Overlapping runs are skipped.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug("Cache sweep already running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	deleted, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Warn("Cache sweep failed", zap.Error(err))
		return
	}
	s.logger.Debug("Cache sweep done", zap.Int("deleted", deleted))
}

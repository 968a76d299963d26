package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs the pipeline on a fixed interval
type Scheduler struct {
	runner     *Runner
	interval   time.Duration
	runOnStart bool
	logger     *zap.Logger
	stopCh     chan struct{}
}

// NewScheduler creates a scheduler for the runner
func NewScheduler(runner *Runner, interval time.Duration, runOnStart bool, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runOnStart: runOnStart,
		logger:     logger.Named("scheduler"),
		stopCh:     make(chan struct{}),
	}
}

// Start blocks until the context is cancelled or Stop is called
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))

	if s.runOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) tick(ctx context.Context) {
	result, err := s.runner.Run(ctx)
	if err != nil {
		// a manual run is in progress
		s.logger.Warn("skipping scheduled pipeline run", zap.Error(err))
		return
	}
	if !result.Success {
		s.logger.Warn("scheduled pipeline run failed",
			zap.String("step", result.FailedStep),
			zap.String("error", result.Error),
		)
	}
}

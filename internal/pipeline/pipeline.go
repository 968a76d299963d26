package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gym-retention/platform/internal/action"
	"github.com/gym-retention/platform/internal/risk"
	"github.com/gym-retention/platform/internal/shared/batch"
	"github.com/gym-retention/platform/internal/shared/errors"
	"github.com/gym-retention/platform/internal/shared/metrics"
	"github.com/gym-retention/platform/internal/syncjob"
)

// StatsRefresher recomputes member activity aggregates
type StatsRefresher interface {
	Run(ctx context.Context, req syncjob.Request) (*syncjob.Result, error)
}

// Scorer runs the risk scoring batch
type Scorer interface {
	CalculateAll(ctx context.Context) (*risk.BatchResult, error)
}

// ActionGenerator runs the action generation batch
type ActionGenerator interface {
	GenerateAll(ctx context.Context) (*action.BatchResult, error)
}

// Result reports every stage that ran. Stages after a failed one are nil.
type Result struct {
	Success    bool                `json:"success"`
	Stats      *syncjob.Result     `json:"stats,omitempty"`
	Risk       *risk.BatchResult   `json:"risk,omitempty"`
	Actions    *action.BatchResult `json:"actions,omitempty"`
	FailedStep string              `json:"failed_step,omitempty"`
	Error      string              `json:"error,omitempty"`
	DurationMS int64               `json:"duration_ms"`
}

// Runner chains stats, scoring and action generation
type Runner struct {
	stats   StatsRefresher
	scorer  Scorer
	actions ActionGenerator
	logger  *zap.Logger
	guard   *batch.Guard
}

// NewRunner creates a pipeline runner
func NewRunner(stats StatsRefresher, scorer Scorer, actions ActionGenerator, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		stats:   stats,
		scorer:  scorer,
		actions: actions,
		logger:  logger.Named("pipeline"),
		guard:   batch.NewGuard("pipeline"),
	}
}

// Run executes the three stages in order and stops at the first stage that
// fails as a whole. Per-member failures inside a stage do not stop it.
// The returned error is non-nil only for an overlapping run.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	var result *Result
	err := r.guard.Run(ctx, func(ctx context.Context) error {
		result = r.run(ctx)
		return nil
	})
	return result, err
}

func (r *Runner) run(ctx context.Context) *Result {
	start := time.Now()
	result := &Result{}

	fail := func(step string, err error) *Result {
		result.FailedStep = step
		result.Error = err.Error()
		if appErr, ok := errors.As(err); ok {
			result.Error = appErr.Message
		}
		result.DurationMS = time.Since(start).Milliseconds()
		metrics.RecordBatchRun("pipeline", false, time.Since(start))
		r.logger.Error("pipeline stage failed", zap.String("step", step), zap.Error(err))
		return result
	}

	stats, err := r.stats.Run(ctx, syncjob.Request{Type: syncjob.TypeStats})
	if err != nil {
		return fail("stats", err)
	}
	result.Stats = stats

	scores, err := r.scorer.CalculateAll(ctx)
	if err != nil {
		return fail("risk", err)
	}
	result.Risk = scores

	actions, err := r.actions.GenerateAll(ctx)
	if err != nil {
		return fail("actions", err)
	}
	result.Actions = actions

	result.Success = true
	result.DurationMS = time.Since(start).Milliseconds()
	metrics.RecordBatchRun("pipeline", true, time.Since(start))
	r.logger.Info("pipeline finished",
		zap.Int("stats_processed", stats.Processed),
		zap.Int("members_scored", scores.Updated),
		zap.Int("actions_created", actions.Created),
		zap.Int64("duration_ms", result.DurationMS),
	)
	return result
}

package action

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gym-retention/platform/internal/settings"
	"github.com/gym-retention/platform/internal/shared/batch"
	"github.com/gym-retention/platform/internal/shared/errors"
	"github.com/gym-retention/platform/internal/shared/events"
	"github.com/gym-retention/platform/internal/shared/metrics"
	"github.com/gym-retention/platform/internal/shared/types"
)

// Store is the persistence the generator needs
type Store interface {
	ListCandidates(ctx context.Context, minScore float64) ([]Candidate, error)
	LatestOpen(ctx context.Context, memberID types.ID) (*ActionItem, error)
	Create(ctx context.Context, a *ActionItem) error
}

// ThresholdSource provides the tier cutoffs for a batch
type ThresholdSource interface {
	ActionThresholds(ctx context.Context) (settings.ActionThresholds, error)
}

// BatchResult reports one generation run
type BatchResult struct {
	Success    bool            `json:"success"`
	Processed  int             `json:"processed"`
	Created    int             `json:"created"`
	Suppressed int             `json:"suppressed"`
	Message    string          `json:"message"`
	Failures   []batch.Failure `json:"failures,omitempty"`
}

// Generator creates follow-up actions for at-risk members
type Generator struct {
	store      Store
	thresholds ThresholdSource
	publisher  events.Publisher
	logger     *zap.Logger
	guard      *batch.Guard
	now        func() time.Time
}

// NewGenerator creates an action generator
func NewGenerator(store Store, thresholds ThresholdSource, publisher events.Publisher, logger *zap.Logger) *Generator {
	if publisher == nil {
		publisher = events.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		store:      store,
		thresholds: thresholds,
		publisher:  publisher,
		logger:     logger.Named("actions"),
		guard:      batch.NewGuard("action generation"),
		now:        time.Now,
	}
}

// GenerateAll runs one generation pass over every candidate. It returns an
// error only when the batch could not run at all; per-member failures are
// listed in the result.
func (g *Generator) GenerateAll(ctx context.Context) (*BatchResult, error) {
	var result *BatchResult
	err := g.guard.Run(ctx, func(ctx context.Context) error {
		var err error
		result, err = g.generate(ctx)
		return err
	})
	return result, err
}

func (g *Generator) generate(ctx context.Context) (*BatchResult, error) {
	start := time.Now()

	thresholds, err := g.thresholds.ActionThresholds(ctx)
	if err != nil {
		metrics.RecordBatchRun("actions", false, time.Since(start))
		return nil, err
	}

	candidates, err := g.store.ListCandidates(ctx, thresholds.N1)
	if err != nil {
		metrics.RecordBatchRun("actions", false, time.Since(start))
		return nil, errors.Wrap(err, "failed to load action candidates")
	}

	result := &BatchResult{Success: true}
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			metrics.RecordBatchRun("actions", false, time.Since(start))
			return nil, err
		}

		result.Processed++
		created, err := g.generateFor(ctx, c, thresholds)
		if err != nil {
			g.logger.Error("failed to generate action",
				zap.String("member_id", c.MemberID.String()),
				zap.Error(err),
			)
			metrics.RecordBatchItemFailure("actions")
			result.Failures = append(result.Failures, batch.Failure{ID: c.MemberID.String(), Error: err.Error()})
			continue
		}
		if created {
			result.Created++
		} else {
			result.Suppressed++
		}
	}

	result.Message = fmt.Sprintf("%d actions created for %d members", result.Created, result.Processed)
	if len(result.Failures) > 0 {
		result.Message += fmt.Sprintf(", %d failed", len(result.Failures))
	}

	metrics.RecordBatchRun("actions", true, time.Since(start))
	g.logger.Info("action generation finished",
		zap.Int("processed", result.Processed),
		zap.Int("created", result.Created),
		zap.Int("suppressed", result.Suppressed),
		zap.Int("failed", len(result.Failures)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// generateFor creates at most one action for c. It reports false when the
// score maps to no tier or an equal or higher tier is already open.
func (g *Generator) generateFor(ctx context.Context, c Candidate, thresholds settings.ActionThresholds) (bool, error) {
	tier, ok := TierFor(c.RiskScore, thresholds)
	if !ok {
		return false, nil
	}

	existing, err := g.store.LatestOpen(ctx, c.MemberID)
	if err != nil {
		return false, err
	}
	if !Supersedes(tier, existing) {
		g.logger.Debug("open action already covers member",
			zap.String("member_id", c.MemberID.String()),
			zap.String("existing_type", string(existing.Type)),
			zap.String("new_type", string(tier)),
		)
		metrics.RecordActionSuppressed()
		return false, nil
	}

	item := New(tier, c, g.now())
	if err := g.store.Create(ctx, item); err != nil {
		return false, err
	}
	metrics.RecordActionCreated(string(tier))

	event := events.NewEvent(events.TypeActionCreated, "actions", map[string]any{
		"action_id":  item.ID,
		"member_id":  item.MemberID,
		"type":       item.Type,
		"priority":   item.Priority,
		"due_date":   item.DueDate,
		"risk_score": c.RiskScore,
	})
	if err := g.publisher.Publish(ctx, event); err != nil {
		g.logger.Warn("failed to publish action event", zap.String("action_id", item.ID.String()), zap.Error(err))
	}

	g.logger.Info("action created",
		zap.String("member_id", c.MemberID.String()),
		zap.String("type", string(tier)),
		zap.Int("risk_score", c.RiskScore),
	)
	return true, nil
}

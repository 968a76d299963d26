package risk

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gym-retention/platform/internal/member"
	"github.com/gym-retention/platform/internal/settings"
	"github.com/gym-retention/platform/internal/shared/batch"
	"github.com/gym-retention/platform/internal/shared/errors"
	"github.com/gym-retention/platform/internal/shared/events"
	"github.com/gym-retention/platform/internal/shared/metrics"
	"github.com/gym-retention/platform/internal/shared/types"
)

// Members is the member persistence the calculator needs
type Members interface {
	ListActive(ctx context.Context) ([]member.Member, error)
	PlanChangesSince(ctx context.Context, memberID types.ID, since time.Time) ([]member.PlanChange, error)
	ActivePauses(ctx context.Context, memberID types.ID) ([]member.PauseRequest, error)
	UpdateRisk(ctx context.Context, id types.ID, u member.RiskUpdate) error
}

// SettingsSource provides the weights and thresholds for a batch
type SettingsSource interface {
	RiskSnapshot(ctx context.Context) (settings.RiskSnapshot, error)
}

// BatchResult reports one scoring run
type BatchResult struct {
	Success         bool            `json:"success"`
	Processed       int             `json:"processed"`
	Updated         int             `json:"updated"`
	Message         string          `json:"message"`
	DefaultsApplied bool            `json:"defaults_applied,omitempty"`
	Failures        []batch.Failure `json:"failures,omitempty"`
}

// Calculator scores every active member
type Calculator struct {
	members   Members
	settings  SettingsSource
	publisher events.Publisher
	logger    *zap.Logger
	guard     *batch.Guard
	now       func() time.Time
}

// NewCalculator creates a risk calculator
func NewCalculator(members Members, source SettingsSource, publisher events.Publisher, logger *zap.Logger) *Calculator {
	if publisher == nil {
		publisher = events.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{
		members:   members,
		settings:  source,
		publisher: publisher,
		logger:    logger.Named("risk"),
		guard:     batch.NewGuard("risk scoring"),
		now:       time.Now,
	}
}

// CalculateAll scores all active members with settings read once up front.
// Missing configuration or a failed member listing aborts the batch; a
// failure on one member is recorded and that member keeps its previous score.
func (c *Calculator) CalculateAll(ctx context.Context) (*BatchResult, error) {
	var result *BatchResult
	err := c.guard.Run(ctx, func(ctx context.Context) error {
		var err error
		result, err = c.calculate(ctx)
		return err
	})
	return result, err
}

func (c *Calculator) calculate(ctx context.Context) (*BatchResult, error) {
	start := time.Now()

	snap, err := c.settings.RiskSnapshot(ctx)
	if err != nil {
		metrics.RecordBatchRun("risk", false, time.Since(start))
		return nil, err
	}

	members, err := c.members.ListActive(ctx)
	if err != nil {
		metrics.RecordBatchRun("risk", false, time.Since(start))
		return nil, errors.Wrap(err, "failed to load active members")
	}

	now := c.now()
	result := &BatchResult{Success: true, DefaultsApplied: snap.Defaulted}
	for i := range members {
		if err := ctx.Err(); err != nil {
			metrics.RecordBatchRun("risk", false, time.Since(start))
			return nil, err
		}

		m := &members[i]
		result.Processed++
		if err := c.scoreMember(ctx, m, snap, now); err != nil {
			c.logger.Error("failed to score member",
				zap.String("member_id", m.ID.String()),
				zap.Error(err),
			)
			metrics.RecordBatchItemFailure("risk")
			result.Failures = append(result.Failures, batch.Failure{ID: m.ID.String(), Error: err.Error()})
			continue
		}
		result.Updated++
	}

	result.Message = fmt.Sprintf("Risk scores calculated for %d members", result.Updated)
	if len(result.Failures) > 0 {
		result.Message += fmt.Sprintf(", %d failed", len(result.Failures))
	}

	metrics.RecordBatchRun("risk", true, time.Since(start))
	c.logger.Info("risk scoring finished",
		zap.Int("processed", result.Processed),
		zap.Int("updated", result.Updated),
		zap.Int("failed", len(result.Failures)),
		zap.Bool("defaults_applied", snap.Defaulted),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (c *Calculator) scoreMember(ctx context.Context, m *member.Member, snap settings.RiskSnapshot, now time.Time) error {
	changes, err := c.members.PlanChangesSince(ctx, m.ID, now.Add(-DowngradeWindow))
	if err != nil {
		return err
	}
	pauses, err := c.members.ActivePauses(ctx, m.ID)
	if err != nil {
		return err
	}

	res := Score(InputFor(m, changes, pauses), snap.Weights, now)
	level := LevelFor(res.Score, snap.Thresholds)

	if err := c.members.UpdateRisk(ctx, m.ID, member.RiskUpdate{
		Score:    res.Score,
		Level:    level,
		Reasons:  res.Reasons,
		ScoredAt: now,
	}); err != nil {
		return err
	}
	metrics.RecordRiskScoreUpdated(string(level))

	if level != m.RiskLevel || res.Score != m.RiskScore {
		c.logger.Debug("member risk changed",
			zap.String("member_id", m.ID.String()),
			zap.Int("from_score", m.RiskScore),
			zap.Int("to_score", res.Score),
			zap.String("level", string(level)),
		)
	}

	event := events.NewEvent(events.TypeMemberRiskScored, "risk", map[string]any{
		"member_id":      m.ID,
		"risk_score":     res.Score,
		"risk_level":     level,
		"risk_reasons":   res.Reasons,
		"previous_score": m.RiskScore,
		"previous_level": m.RiskLevel,
	})
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Warn("failed to publish risk event", zap.String("member_id", m.ID.String()), zap.Error(err))
	}
	return nil
}

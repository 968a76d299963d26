package syncjob

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gym-retention/platform/internal/member"
	"github.com/gym-retention/platform/internal/shared/batch"
	"github.com/gym-retention/platform/internal/shared/config"
	"github.com/gym-retention/platform/internal/shared/errors"
	"github.com/gym-retention/platform/internal/shared/events"
	"github.com/gym-retention/platform/internal/shared/metrics"
	"github.com/gym-retention/platform/internal/shared/types"
	"github.com/gym-retention/platform/internal/syncjob/pacto"
)

// Upstream is the gym-management API the sync reads from
type Upstream interface {
	Members(ctx context.Context, matricula string) ([]pacto.Aluno, error)
	Checkins(ctx context.Context, fichaID string, from, to types.Date) ([]pacto.Checkin, error)
}

// Members is the member persistence the sync writes to
type Members interface {
	Upsert(ctx context.Context, m *member.Member) error
	ListByMatricula(ctx context.Context, matricula string) ([]member.Member, error)
	UpsertCheckin(ctx context.Context, c *member.Checkin) error
	ListIDs(ctx context.Context) ([]types.ID, error)
	CheckinDates(ctx context.Context, memberID types.ID) ([]time.Time, error)
	UpdateActivity(ctx context.Context, id types.ID, a member.Activity) error
}

// Logs records sync runs
type Logs interface {
	Start(ctx context.Context, l *Log) error
	Finish(ctx context.Context, l *Log) error
}

// Syncer pulls upstream data into the local store and refreshes the
// activity aggregates the risk scorer reads.
type Syncer struct {
	upstream  Upstream
	members   Members
	logs      Logs
	publisher events.Publisher
	logger    *zap.Logger
	config    config.PactoConfig
	guard     *batch.Guard
	now       func() time.Time
}

// NewSyncer creates a syncer
func NewSyncer(upstream Upstream, members Members, logs Logs, publisher events.Publisher, cfg config.PactoConfig, logger *zap.Logger) *Syncer {
	if publisher == nil {
		publisher = events.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		upstream:  upstream,
		members:   members,
		logs:      logs,
		publisher: publisher,
		logger:    logger.Named("sync"),
		config:    cfg,
		guard:     batch.NewGuard("sync"),
		now:       time.Now,
	}
}

// Run executes one sync. Upstream or listing failures that prevent the run
// are returned as errors; individual records that fail are listed in the result.
func (s *Syncer) Run(ctx context.Context, req Request) (*Result, error) {
	if !req.Type.Valid() {
		return nil, errors.Validation("validation failed", map[string]string{
			"sync_type": fmt.Sprintf("invalid sync type %q, expected members, checkins or stats", req.Type),
		})
	}
	if req.Matricula == "" {
		req.Matricula = s.config.DefaultMatricula
	}

	var result *Result
	err := s.guard.Run(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.run(ctx, req)
		return err
	})
	return result, err
}

func (s *Syncer) run(ctx context.Context, req Request) (*Result, error) {
	start := s.now()
	entry := &Log{SyncType: req.Type, Status: LogRunning, StartedAt: start}
	if err := s.logs.Start(ctx, entry); err != nil {
		s.logger.Warn("failed to record sync start", zap.Error(err))
	}

	var (
		result *Result
		err    error
	)
	switch req.Type {
	case TypeMembers:
		result, err = s.syncMembers(ctx, req.Matricula)
	case TypeCheckins:
		result, err = s.syncCheckins(ctx, req.Matricula)
	case TypeStats:
		result, err = s.updateStats(ctx)
	}

	finished := s.now()
	entry.CompletedAt = &finished
	entry.DurationMS = finished.Sub(start).Milliseconds()
	if err != nil {
		entry.Status = LogError
		entry.ErrorMessage = err.Error()
	} else {
		entry.Status = LogSuccess
		entry.RecordsProcessed = result.Processed
	}
	if ferr := s.logs.Finish(ctx, entry); ferr != nil {
		s.logger.Warn("failed to record sync result", zap.Error(ferr))
	}

	batchName := "sync_" + string(req.Type)
	if err != nil {
		metrics.RecordBatchRun(batchName, false, finished.Sub(start))
		s.logger.Error("sync failed", zap.String("sync_type", string(req.Type)), zap.Error(err))
		return nil, err
	}

	result.Success = true
	result.SyncType = req.Type
	if len(result.Failures) > 0 {
		result.Message += fmt.Sprintf(", %d failed", len(result.Failures))
	}
	metrics.RecordBatchRun(batchName, true, finished.Sub(start))
	metrics.RecordSyncRecords(string(req.Type), result.Processed)

	event := events.NewEvent(events.TypeSyncCompleted, "sync", map[string]any{
		"sync_type":   req.Type,
		"matricula":   req.Matricula,
		"processed":   result.Processed,
		"failed":      len(result.Failures),
		"duration_ms": entry.DurationMS,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish sync event", zap.Error(err))
	}

	s.logger.Info("sync finished",
		zap.String("sync_type", string(req.Type)),
		zap.String("matricula", req.Matricula),
		zap.Int("processed", result.Processed),
		zap.Int("failed", len(result.Failures)),
		zap.Int64("duration_ms", entry.DurationMS),
	)
	return result, nil
}

func (s *Syncer) syncMembers(ctx context.Context, matricula string) (*Result, error) {
	alunos, err := s.upstream.Members(ctx, matricula)
	if err != nil {
		return nil, errors.Unavailable("pacto", err)
	}
	if len(alunos) == 0 {
		return nil, errors.Unavailable("pacto", fmt.Errorf("no members returned for matricula %s", matricula))
	}

	today := types.DateOf(s.now())
	result := &Result{}
	for _, a := range alunos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m, err := mapMember(a, matricula, today)
		if err == nil {
			err = s.members.Upsert(ctx, m)
		}
		if err != nil {
			s.recordFailure(result, matricula+"_"+alunoID(a), err)
			continue
		}
		result.Processed++
	}

	result.Message = fmt.Sprintf("%d members synced for %s", result.Processed, matricula)
	return result, nil
}

func (s *Syncer) syncCheckins(ctx context.Context, matricula string) (*Result, error) {
	members, err := s.members.ListByMatricula(ctx, matricula)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load members for checkin sync")
	}

	to := types.DateOf(s.now())
	from := to.AddDays(-s.config.CheckinWindowDays)

	result := &Result{}
	for i := range members {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m := &members[i]
		fichaID := m.PactoFichaID
		if fichaID == "" {
			fichaID = "F" + m.PactoAlunoID
		}

		checkins, err := s.upstream.Checkins(ctx, fichaID, from, to)
		if err != nil {
			s.recordFailure(result, m.ID.String(), errors.Unavailable("pacto", err))
			continue
		}

		for _, raw := range checkins {
			c, err := mapCheckin(raw, m)
			if err == nil {
				err = s.members.UpsertCheckin(ctx, c)
			}
			if err != nil {
				s.recordFailure(result, m.ID.String(), err)
				continue
			}
			result.Processed++
		}
	}

	result.Message = fmt.Sprintf("%d checkins synced for %d members", result.Processed, len(members))
	return result, nil
}

// updateStats recomputes the activity aggregates of every member from the
// stored check-ins.
func (s *Syncer) updateStats(ctx context.Context) (*Result, error) {
	ids, err := s.members.ListIDs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load members for stats")
	}

	now := s.now()
	result := &Result{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dates, err := s.members.CheckinDates(ctx, id)
		if err == nil {
			err = s.members.UpdateActivity(ctx, id, member.ComputeActivity(dates, now))
		}
		if err != nil {
			s.recordFailure(result, id.String(), err)
			continue
		}
		result.Processed++
	}

	result.Message = fmt.Sprintf("activity stats updated for %d members", result.Processed)
	return result, nil
}

func (s *Syncer) recordFailure(result *Result, id string, err error) {
	s.logger.Error("sync record failed", zap.String("id", id), zap.Error(err))
	metrics.RecordBatchItemFailure("sync")
	result.Failures = append(result.Failures, batch.Failure{ID: id, Error: err.Error()})
}

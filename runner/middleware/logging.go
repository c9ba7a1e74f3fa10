package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/runner"
)

var _ runner.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    runner.Service
}

func Logging(logger *slog.Logger, svc runner.Service) runner.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) StartRun(ctx context.Context, cfg fl.RunConfig) (rec fl.RunRecord, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", rec.ID),
				slog.String("name", rec.Name),
				slog.String("model", cfg.Model),
				slog.String("aggregation", string(cfg.Aggregation)),
				slog.String("technique", string(cfg.Privacy.Technique)),
				slog.Int("participants", cfg.Participants),
				slog.Int("rounds", cfg.Rounds),
			),
			slog.Group("budget",
				slog.Float64("total_epsilon", rec.Budget.TotalEpsilon),
				slog.Float64("total_delta", rec.Budget.TotalDelta),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Start run failed", args...)

			return
		}
		lm.logger.Info("Start run completed successfully", args...)
	}(time.Now())

	return lm.svc.StartRun(ctx, cfg)
}

func (lm *loggingMiddleware) GetRun(ctx context.Context, id string) (rec fl.RunRecord, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", id),
				slog.String("status", string(rec.Status)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get run failed", args...)

			return
		}
		lm.logger.Info("Get run completed successfully", args...)
	}(time.Now())

	return lm.svc.GetRun(ctx, id)
}

func (lm *loggingMiddleware) ListRuns(ctx context.Context, offset, limit uint64) (page runner.RunPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("page",
				slog.Uint64("offset", offset),
				slog.Uint64("limit", limit),
				slog.Uint64("total", page.Total),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List runs failed", args...)

			return
		}
		lm.logger.Info("List runs completed successfully", args...)
	}(time.Now())

	return lm.svc.ListRuns(ctx, offset, limit)
}

func (lm *loggingMiddleware) ListRounds(ctx context.Context, id string, phase fl.Phase) (rounds []fl.RoundMetrics, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("run_id", id),
			slog.String("phase", string(phase)),
			slog.Int("rounds", len(rounds)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List rounds failed", args...)

			return
		}
		lm.logger.Info("List rounds completed successfully", args...)
	}(time.Now())

	return lm.svc.ListRounds(ctx, id, phase)
}

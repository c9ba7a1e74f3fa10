package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/fedround/coordinator"
	"github.com/absmach/fedround/participant"
	"github.com/absmach/fedround/pkg/dataset"
	pkgerrors "github.com/absmach/fedround/pkg/errors"
	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/pkg/model"
	"github.com/absmach/fedround/pkg/monitor"
	"github.com/absmach/fedround/pkg/storage"
	"github.com/google/uuid"
)

type RunPage struct {
	Offset uint64         `json:"offset"`
	Limit  uint64         `json:"limit"`
	Total  uint64         `json:"total"`
	Runs   []fl.RunRecord `json:"runs"`
}

type Service interface {
	// StartRun executes a whole run synchronously. The returned record is
	// also returned, with status failed, alongside a run error.
	StartRun(ctx context.Context, cfg fl.RunConfig) (fl.RunRecord, error)
	GetRun(ctx context.Context, id string) (fl.RunRecord, error)
	ListRuns(ctx context.Context, offset, limit uint64) (RunPage, error)
	// ListRounds returns the history of a run, limited to one phase unless
	// phase is empty.
	ListRounds(ctx context.Context, id string, phase fl.Phase) ([]fl.RoundMetrics, error)
}

type SourceFactory func(fl.DatasetConfig) (dataset.Source, error)

type service struct {
	runs        storage.RunRepository
	notifier    Notifier
	instruments Instruments
	wrap        func(coordinator.Strategy) coordinator.Strategy
	sources     SourceFactory
	monitor     *monitor.ProcessMonitor
	namegen     namegenerator.NameGenerator
	logger      *slog.Logger
}

type Option func(*service)

func WithNotifier(n Notifier) Option {
	return func(s *service) {
		s.notifier = n
	}
}

func WithInstruments(in Instruments) Option {
	return func(s *service) {
		s.instruments = in
	}
}

// WithStrategyMiddleware decorates the coordinator of every run, typically
// with logging, metrics and tracing.
func WithStrategyMiddleware(wrap func(coordinator.Strategy) coordinator.Strategy) Option {
	return func(s *service) {
		s.wrap = wrap
	}
}

func WithSourceFactory(f SourceFactory) Option {
	return func(s *service) {
		s.sources = f
	}
}

// WithResourceMonitor records the process resource usage of every run in
// its Resources field.
func WithResourceMonitor(m *monitor.ProcessMonitor) Option {
	return func(s *service) {
		s.monitor = m
	}
}

func NewService(runs storage.RunRepository, logger *slog.Logger, opts ...Option) Service {
	s := &service{
		runs:     runs,
		notifier: NopNotifier{},
		wrap:     func(st coordinator.Strategy) coordinator.Strategy { return st },
		sources:  dataset.NewSource,
		namegen:  namegenerator.NewGenerator(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *service) StartRun(ctx context.Context, cfg fl.RunConfig) (fl.RunRecord, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return fl.RunRecord{}, err
	}
	kind, err := model.ParseKind(cfg.Model)
	if err != nil {
		return fl.RunRecord{}, err
	}
	cfg.Model = string(kind)

	src, err := s.sources(cfg.Dataset)
	if err != nil {
		return fl.RunRecord{}, err
	}
	fed, err := participant.Build(ctx, cfg, src, s.logger)
	if err != nil {
		return fl.RunRecord{}, err
	}
	strategy, err := coordinator.NewStrategy(cfg, model.InitialParameters(fed.Features))
	if err != nil {
		return fl.RunRecord{}, err
	}
	strategy = s.wrap(strategy)

	rec := fl.RunRecord{
		ID:        uuid.NewString(),
		Name:      s.namegen.Generate(),
		Status:    fl.RunRunning,
		Config:    cfg,
		Privacy:   cfg.Privacy.Describe(),
		StartedAt: time.Now().UTC(),
	}
	if err := s.runs.Save(ctx, rec); err != nil {
		return fl.RunRecord{}, fmt.Errorf("save run %s: %w", rec.ID, err)
	}

	if cfg.Baseline {
		baseline, err := Baseline(kind, cfg.LocalEpochs, fed.Splits)
		if err != nil {
			s.logger.Warn("Centralised baseline failed", slog.String("run_id", rec.ID), slog.Any("error", err))
		}
		rec.Baseline = baseline
	}

	clients := make([]Client, len(fed.Participants))
	for i, p := range fed.Participants {
		clients[i] = p
	}
	var session *monitor.Session
	if s.monitor != nil {
		session = s.monitor.Start(ctx)
	}
	driver := NewDriver(rec.ID, cfg, strategy, clients, s.notifier, s.instruments, s.logger)
	out, runErr := driver.Run(ctx)
	if session != nil {
		rec.Resources = session.Stop()
	}

	rec.History = out.History
	rec.Budget = out.Budget
	rec.FinalParameters = out.Final
	rec.FinishedAt = time.Now().UTC()
	rec.Status = fl.RunCompleted
	if runErr != nil {
		rec.Status = fl.RunFailed
		rec.Error = runErr.Error()
	}

	// The record is stored even when ctx was canceled mid-run.
	saveCtx := context.WithoutCancel(ctx)
	if err := s.runs.Save(saveCtx, rec); err != nil {
		return rec, fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	if err := s.notifier.RunCompleted(saveCtx, rec); err != nil {
		s.logger.Warn("Failed to publish run completion", slog.String("run_id", rec.ID), slog.Any("error", err))
	}

	return rec, runErr
}

func (s *service) GetRun(ctx context.Context, id string) (fl.RunRecord, error) {
	if id == "" {
		return fl.RunRecord{}, pkgerrors.ErrEmptyKey
	}

	return s.runs.Get(ctx, id)
}

func (s *service) ListRuns(ctx context.Context, offset, limit uint64) (RunPage, error) {
	runs, total, err := s.runs.List(ctx, offset, limit)
	if err != nil {
		return RunPage{}, err
	}

	return RunPage{
		Offset: offset,
		Limit:  limit,
		Total:  total,
		Runs:   runs,
	}, nil
}

func (s *service) ListRounds(ctx context.Context, id string, phase fl.Phase) ([]fl.RoundMetrics, error) {
	rec, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	switch phase {
	case "":
		if rec.History == nil {
			return []fl.RoundMetrics{}, nil
		}

		return rec.History, nil
	case fl.PhaseFit, fl.PhaseEvaluate:
		rounds := rec.RoundsOf(phase)
		if rounds == nil {
			return []fl.RoundMetrics{}, nil
		}

		return rounds, nil
	default:
		return nil, fmt.Errorf("%w: unknown phase %q", pkgerrors.ErrInvalidData, phase)
	}
}

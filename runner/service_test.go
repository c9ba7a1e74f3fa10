package runner_test

import (
	"context"
	"log/slog"
	"testing"

	pkgerrors "github.com/absmach/fedround/pkg/errors"
	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/pkg/monitor"
	"github.com/absmach/fedround/pkg/mqtt/mocks"
	"github.com/absmach/fedround/pkg/storage"
	"github.com/absmach/fedround/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func smallConfig() fl.RunConfig {
	cfg := fl.DefaultRunConfig()
	cfg.Participants = 2
	cfg.Rounds = 2
	cfg.Dataset.Samples = []int{40, 60}
	cfg.Dataset.Features = 3

	return cfg
}

func newService(opts ...runner.Option) (runner.Service, storage.RunRepository) {
	repo := storage.NewMemoryRunRepository(storage.NewInMemoryStorage())

	return runner.NewService(repo, slog.Default(), opts...), repo
}

func TestStartRun(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService()

	rec, err := svc.StartRun(ctx, smallConfig())
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.NotEmpty(t, rec.Name)
	assert.Equal(t, fl.RunCompleted, rec.Status)
	assert.Empty(t, rec.Error)
	assert.Len(t, rec.History, 4)
	assert.Len(t, rec.RoundsOf(fl.PhaseFit), 2)
	assert.Equal(t, "ridge", rec.Config.Model)
	assert.Equal(t, "none", rec.Privacy["technique"])
	require.Len(t, rec.FinalParameters, 2)
	assert.Equal(t, []int{3}, rec.FinalParameters[0].Shape)
	assert.Equal(t, 100.0, rec.Baseline["samples"])
	assert.Greater(t, rec.Baseline["r2"], 0.9)
	assert.False(t, rec.FinishedAt.Before(rec.StartedAt))

	stored, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, fl.RunCompleted, stored.Status)
	assert.Len(t, stored.History, 4)
}

func TestStartRunRejectsConfig(t *testing.T) {
	cases := []struct {
		desc   string
		mutate func(*fl.RunConfig)
	}{
		{desc: "zero rounds", mutate: func(c *fl.RunConfig) { c.Rounds = 0 }},
		{desc: "unknown aggregation", mutate: func(c *fl.RunConfig) { c.Aggregation = "fedprox" }},
		{desc: "unknown model", mutate: func(c *fl.RunConfig) { c.Model = "xgboost" }},
		{desc: "unknown technique", mutate: func(c *fl.RunConfig) { c.Privacy.Technique = "secure-agg" }},
		{desc: "unknown dataset source", mutate: func(c *fl.RunConfig) { c.Dataset.Source = "parquet" }},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ctx := context.Background()
			svc, _ := newService()

			cfg := smallConfig()
			tc.mutate(&cfg)
			rec, err := svc.StartRun(ctx, cfg)
			require.ErrorIs(t, err, fl.ErrConfiguration)
			assert.Empty(t, rec.ID)

			page, err := svc.ListRuns(ctx, 0, 10)
			require.NoError(t, err)
			assert.Zero(t, page.Total)
		})
	}
}

func TestStartRunWithPrivacy(t *testing.T) {
	cfg := smallConfig()
	cfg.Baseline = false
	cfg.Privacy.Technique = fl.TechniqueClippingNoising
	cfg.Privacy.Epsilon = 0.5
	cfg.Privacy.Delta = 1e-5

	svc, _ := newService()
	rec, err := svc.StartRun(context.Background(), cfg)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, rec.Budget.TotalEpsilon, 1e-12)
	assert.InDelta(t, 2e-5, rec.Budget.TotalDelta, 1e-18)
	assert.Nil(t, rec.Baseline)
}

func TestStartRunRecordsResources(t *testing.T) {
	ctx := context.Background()
	mon, err := monitor.New(0, slog.Default())
	require.NoError(t, err)
	svc, repo := newService(runner.WithResourceMonitor(mon))

	rec, err := svc.StartRun(ctx, smallConfig())
	require.NoError(t, err)
	require.NotNil(t, rec.Resources)
	assert.GreaterOrEqual(t, rec.Resources["samples"], 1.0)
	assert.Positive(t, rec.Resources["max_memory_bytes"])

	stored, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Resources, stored.Resources)
}

func TestStartRunPublishesCompletion(t *testing.T) {
	ps := new(mocks.MockPubSub)
	ps.On("Publish", mock.Anything, runner.RoundsTopic("fedround"), mock.Anything).Return(nil)
	ps.On("Publish", mock.Anything, runner.RunsTopic("fedround"), mock.MatchedBy(func(msg map[string]any) bool {
		return msg["status"] == "completed" && msg["rounds"] == 2
	})).Return(nil).Once()

	svc, _ := newService(runner.WithNotifier(runner.NewMQTTNotifier(ps, "fedround")))
	_, err := svc.StartRun(context.Background(), smallConfig())
	require.NoError(t, err)

	ps.AssertNumberOfCalls(t, "Publish", 5)
	ps.AssertExpectations(t)
}

func TestRunQueries(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()

	var ids []string
	for range 3 {
		cfg := smallConfig()
		cfg.Rounds = 1
		cfg.Baseline = false
		rec, err := svc.StartRun(ctx, cfg)
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	t.Run("list runs", func(t *testing.T) {
		cases := []struct {
			desc   string
			offset uint64
			limit  uint64
			size   int
		}{
			{desc: "whole page", offset: 0, limit: 10, size: 3},
			{desc: "partial page", offset: 1, limit: 1, size: 1},
			{desc: "past the end", offset: 5, limit: 10, size: 0},
		}
		for _, tc := range cases {
			t.Run(tc.desc, func(t *testing.T) {
				page, err := svc.ListRuns(ctx, tc.offset, tc.limit)
				require.NoError(t, err)
				assert.Equal(t, uint64(3), page.Total)
				assert.Equal(t, tc.offset, page.Offset)
				assert.Equal(t, tc.limit, page.Limit)
				assert.Len(t, page.Runs, tc.size)
			})
		}
	})

	t.Run("get run", func(t *testing.T) {
		cases := []struct {
			desc string
			id   string
			err  error
		}{
			{desc: "existing run", id: ids[1]},
			{desc: "missing run", id: "nope", err: pkgerrors.ErrNotFound},
			{desc: "empty id", id: "", err: pkgerrors.ErrEmptyKey},
		}
		for _, tc := range cases {
			t.Run(tc.desc, func(t *testing.T) {
				rec, err := svc.GetRun(ctx, tc.id)
				if tc.err != nil {
					assert.ErrorIs(t, err, tc.err)

					return
				}
				require.NoError(t, err)
				assert.Equal(t, tc.id, rec.ID)
			})
		}
	})

	t.Run("list rounds", func(t *testing.T) {
		cases := []struct {
			desc  string
			phase fl.Phase
			size  int
			err   error
		}{
			{desc: "all phases", phase: "", size: 2},
			{desc: "fit only", phase: fl.PhaseFit, size: 1},
			{desc: "evaluate only", phase: fl.PhaseEvaluate, size: 1},
			{desc: "unknown phase", phase: "train", err: pkgerrors.ErrInvalidData},
		}
		for _, tc := range cases {
			t.Run(tc.desc, func(t *testing.T) {
				rounds, err := svc.ListRounds(ctx, ids[0], tc.phase)
				if tc.err != nil {
					assert.ErrorIs(t, err, tc.err)

					return
				}
				require.NoError(t, err)
				assert.Len(t, rounds, tc.size)
				for _, rm := range rounds {
					if tc.phase != "" {
						assert.Equal(t, tc.phase, rm.Phase)
					}
				}
			})
		}
	})
}

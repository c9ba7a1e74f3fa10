package coordinator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/absmach/fedround/coordinator"
	"github.com/absmach/fedround/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ids = []string{"participant-0", "participant-1", "participant-2"}

func runConfig(agg fl.Strategy, rounds int) fl.RunConfig {
	cfg := fl.DefaultRunConfig()
	cfg.Aggregation = agg
	cfg.Rounds = rounds

	return cfg
}

func newStrategy(t *testing.T, cfg fl.RunConfig, initial fl.ParameterVector) coordinator.Strategy {
	t.Helper()

	s, err := coordinator.NewStrategy(cfg, initial)
	require.NoError(t, err)
	_, err = s.InitializeParameters(context.Background())
	require.NoError(t, err)

	return s
}

func fitReply(id string, n int, values ...float64) fl.FitReply {
	return fl.FitReply{
		ParticipantID: id,
		Result: fl.FitResult{
			Parameters:  fl.ParameterVector{fl.Vector(values...)},
			SampleCount: n,
			Metrics:     fl.Metrics{"test_mse": float64(n) / 100},
		},
	}
}

func TestAggregateFitScenarios(t *testing.T) {
	replies := []fl.FitReply{
		fitReply(ids[0], 100, 1.0),
		fitReply(ids[1], 200, 2.0),
		fitReply(ids[2], 300, 3.0),
	}

	cases := []struct {
		desc string
		agg  fl.Strategy
		want float64
	}{
		{desc: "fedavg weights by sample count", agg: fl.FedAvg, want: (100*1.0 + 200*2.0 + 300*3.0) / 600},
		{desc: "fedmed takes the median", agg: fl.FedMed, want: 2.0},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ctx := context.Background()
			s := newStrategy(t, runConfig(tc.agg, 1), fl.ParameterVector{fl.Vector(0)})

			_, err := s.ConfigureFit(ctx, 1, ids)
			require.NoError(t, err)

			global, rm, err := s.AggregateFit(ctx, 1, replies, nil)
			require.NoError(t, err)
			require.Len(t, global, 1)
			assert.InDelta(t, tc.want, global[0].Data[0], 1e-12)

			assert.Equal(t, 1, rm.RoundIndex)
			assert.Equal(t, fl.PhaseFit, rm.Phase)
			assert.Equal(t, 3, rm.NumParticipants)
			assert.Empty(t, rm.AggregationError)
			assert.Equal(t, 600.0, rm.Values[fl.TotalSamplesKey])
			assert.Equal(t, 3.0, rm.Values[fl.NumParticipantsKey])
			assert.InDelta(t, (100*1.0+200*2.0+300*3.0)/600, rm.Values["avg_test_mse"], 1e-12)
			assert.Equal(t, global, s.Global(ctx))
		})
	}
}

func TestAggregateFitEmptyResults(t *testing.T) {
	ctx := context.Background()
	initial := fl.ParameterVector{fl.Vector(0.5, -0.5)}
	s := newStrategy(t, runConfig(fl.FedAvg, 3), initial)

	_, err := s.ConfigureFit(ctx, 1, ids)
	require.NoError(t, err)

	failures := []error{&fl.ParticipantFailure{ParticipantID: ids[0], Phase: fl.PhaseFit, Round: 1, Err: context.DeadlineExceeded}}
	global, rm, err := s.AggregateFit(ctx, 1, nil, failures)
	require.NoError(t, err)

	assert.Equal(t, initial, global)
	assert.Empty(t, rm.Values)
	assert.Equal(t, 0, rm.NumParticipants)
	assert.Equal(t, 1, rm.NumFailures)
	assert.Len(t, s.History(ctx), 1)
	assert.Equal(t, coordinator.ConfiguringEvaluate, s.State(ctx))
}

func TestAggregateFitFallback(t *testing.T) {
	cases := []struct {
		desc    string
		replies []fl.FitReply
		want    []float64
	}{
		{
			desc: "shape mismatch adopts first compatible reply",
			replies: []fl.FitReply{
				fitReply(ids[0], 10, 1, 2, 3),
				fitReply(ids[1], 10, 7, 8),
				fitReply(ids[2], 10, 9, 9),
			},
			want: []float64{7, 8},
		},
		{
			desc: "invalid weight adopts first reply",
			replies: []fl.FitReply{
				fitReply(ids[0], 0, 4, 5),
				fitReply(ids[1], 10, 6, 7),
			},
			want: []float64{4, 5},
		},
		{
			desc: "nothing compatible keeps previous global",
			replies: []fl.FitReply{
				fitReply(ids[0], 10, 1),
			},
			want: []float64{0, 0},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ctx := context.Background()
			s := newStrategy(t, runConfig(fl.FedAvg, 1), fl.ParameterVector{fl.Vector(0, 0)})
			_, err := s.ConfigureFit(ctx, 1, ids)
			require.NoError(t, err)

			global, rm, err := s.AggregateFit(ctx, 1, tc.replies, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, global[0].Data)
			assert.NotEmpty(t, rm.AggregationError)
			assert.Equal(t, len(tc.replies), rm.NumParticipants)
		})
	}
}

func TestAggregateFitCountsDegraded(t *testing.T) {
	ctx := context.Background()
	s := newStrategy(t, runConfig(fl.FedAvg, 1), fl.ParameterVector{fl.Vector(0)})
	_, err := s.ConfigureFit(ctx, 1, ids)
	require.NoError(t, err)

	degraded := fl.FitReply{
		ParticipantID: ids[2],
		Result: fl.FitResult{
			Parameters:  fl.ParameterVector{fl.Vector(0)},
			SampleCount: 1,
			Metrics:     fl.Metrics{fl.ErrorKey: "singular matrix"},
		},
	}
	global, rm, err := s.AggregateFit(ctx, 1, []fl.FitReply{fitReply(ids[0], 99, 2), degraded}, nil)
	require.NoError(t, err)

	assert.InDelta(t, 99*2.0/100, global[0].Data[0], 1e-12)
	assert.Equal(t, 1, rm.NumDegraded)
	assert.Equal(t, 2.0, rm.Values[fl.NumParticipantsKey])
	assert.InDelta(t, 0.99, rm.Values["avg_test_mse"], 1e-12)
}

func TestAggregateEvaluate(t *testing.T) {
	ctx := context.Background()
	s := newStrategy(t, runConfig(fl.FedAvg, 1), fl.ParameterVector{fl.Vector(0)})
	_, err := s.ConfigureFit(ctx, 1, ids)
	require.NoError(t, err)
	_, _, err = s.AggregateFit(ctx, 1, []fl.FitReply{fitReply(ids[0], 1, 1)}, nil)
	require.NoError(t, err)
	_, err = s.ConfigureEvaluate(ctx, 1, ids)
	require.NoError(t, err)

	replies := []fl.EvaluateReply{
		{ParticipantID: ids[0], Result: fl.EvaluateResult{Loss: 1, SampleCount: 1, Metrics: fl.Metrics{"mse": 1.0, "r2": 0.5}}},
		{ParticipantID: ids[1], Result: fl.EvaluateResult{Loss: 2, SampleCount: 3, Metrics: fl.Metrics{"mse": 2.0}}},
	}
	rm, err := s.AggregateEvaluate(ctx, 1, replies, []error{errors.New("timeout")})
	require.NoError(t, err)

	assert.Equal(t, fl.PhaseEvaluate, rm.Phase)
	assert.InDelta(t, 1.75, rm.Values[fl.AggregatedLossKey], 1e-12)
	assert.InDelta(t, 1.75, rm.Values["avg_mse"], 1e-12)
	assert.InDelta(t, 0.5, rm.Values["avg_r2"], 1e-12)
	assert.Equal(t, 4.0, rm.Values[fl.TotalSamplesKey])
	assert.Equal(t, 1, rm.NumFailures)
	assert.Equal(t, coordinator.Terminated, s.State(ctx))

	history := s.History(ctx)
	require.Len(t, history, 2)
	assert.Equal(t, fl.PhaseFit, history[0].Phase)
	assert.Equal(t, fl.PhaseEvaluate, history[1].Phase)
}

func TestAggregateEvaluateSkipsDegradedLoss(t *testing.T) {
	ctx := context.Background()
	s := newStrategy(t, runConfig(fl.FedAvg, 1), fl.ParameterVector{fl.Vector(0)})
	_, err := s.ConfigureFit(ctx, 1, ids)
	require.NoError(t, err)
	_, _, err = s.AggregateFit(ctx, 1, []fl.FitReply{fitReply(ids[0], 1, 1)}, nil)
	require.NoError(t, err)
	_, err = s.ConfigureEvaluate(ctx, 1, ids)
	require.NoError(t, err)

	replies := []fl.EvaluateReply{
		{ParticipantID: ids[0], Result: fl.EvaluateResult{Loss: 0.01, SampleCount: 60, Metrics: fl.Metrics{"mse": 0.01}}},
		{ParticipantID: ids[1], Result: fl.EvaluateResult{Loss: 1000, SampleCount: 1, Metrics: fl.Metrics{fl.ErrorKey: "singular matrix"}}},
	}
	rm, err := s.AggregateEvaluate(ctx, 1, replies, nil)
	require.NoError(t, err)

	assert.InDelta(t, 0.01, rm.Values[fl.AggregatedLossKey], 1e-12)
	assert.Equal(t, 2, rm.NumParticipants)
	assert.Equal(t, 1, rm.NumDegraded)
	assert.Equal(t, 61.0, rm.Values[fl.TotalSamplesKey])
}

func TestConfigureFitCopiesState(t *testing.T) {
	ctx := context.Background()
	cfg := runConfig(fl.FedAvg, 2)
	cfg.LocalEpochs = 3
	s := newStrategy(t, cfg, fl.ParameterVector{fl.Vector(1, 2)})

	ins, err := s.ConfigureFit(ctx, 1, ids)
	require.NoError(t, err)
	require.Len(t, ins, 3)

	for i, in := range ins {
		assert.Equal(t, ids[i], in.ParticipantID)
		assert.Equal(t, 1, in.Config.RoundIndex)
		assert.Equal(t, 3, in.Config.LocalEpochs)
		assert.Equal(t, "ridge", in.Config.Options["model"])
	}

	ins[0].Parameters[0].Data[0] = 99
	ins[0].Config.Options["model"] = "ols"
	assert.Equal(t, 1.0, ins[1].Parameters[0].Data[0])
	assert.Equal(t, "ridge", ins[1].Config.Options["model"])
	assert.Equal(t, 1.0, s.Global(ctx)[0].Data[0])
}

func TestRoundOrder(t *testing.T) {
	ctx := context.Background()
	initial := fl.ParameterVector{fl.Vector(0)}

	t.Run("not initialized", func(t *testing.T) {
		s, err := coordinator.NewStrategy(runConfig(fl.FedAvg, 1), initial)
		require.NoError(t, err)
		assert.Equal(t, coordinator.Uninitialized, s.State(ctx))
		_, err = s.ConfigureFit(ctx, 1, ids)
		assert.ErrorIs(t, err, coordinator.ErrNotInitialized)
	})

	t.Run("initialized twice", func(t *testing.T) {
		s := newStrategy(t, runConfig(fl.FedAvg, 1), initial)
		_, err := s.InitializeParameters(ctx)
		assert.ErrorIs(t, err, coordinator.ErrInvalidState)
	})

	t.Run("aggregate before configure", func(t *testing.T) {
		s := newStrategy(t, runConfig(fl.FedAvg, 1), initial)
		_, _, err := s.AggregateFit(ctx, 1, nil, nil)
		assert.ErrorIs(t, err, coordinator.ErrInvalidState)
	})

	t.Run("skipped round", func(t *testing.T) {
		s := newStrategy(t, runConfig(fl.FedAvg, 3), initial)
		_, err := s.ConfigureFit(ctx, 2, ids)
		assert.ErrorIs(t, err, coordinator.ErrInvalidRound)
	})

	t.Run("evaluate before fit aggregated", func(t *testing.T) {
		s := newStrategy(t, runConfig(fl.FedAvg, 1), initial)
		_, err := s.ConfigureFit(ctx, 1, ids)
		require.NoError(t, err)
		_, err = s.ConfigureEvaluate(ctx, 1, ids)
		assert.ErrorIs(t, err, coordinator.ErrInvalidState)
	})

	t.Run("terminated after last round", func(t *testing.T) {
		s := newStrategy(t, runConfig(fl.FedAvg, 1), initial)
		playRound(t, s, 1)
		assert.Equal(t, coordinator.Terminated, s.State(ctx))
		_, err := s.ConfigureFit(ctx, 2, ids)
		assert.ErrorIs(t, err, coordinator.ErrInvalidState)
	})
}

func playRound(t *testing.T, s coordinator.Strategy, round int) {
	t.Helper()

	ctx := context.Background()
	_, err := s.ConfigureFit(ctx, round, ids)
	require.NoError(t, err)
	_, _, err = s.AggregateFit(ctx, round, []fl.FitReply{fitReply(ids[0], 10, float64(round))}, nil)
	require.NoError(t, err)
	_, err = s.ConfigureEvaluate(ctx, round, ids)
	require.NoError(t, err)
	_, err = s.AggregateEvaluate(ctx, round, nil, nil)
	require.NoError(t, err)
}

func TestPrivacyBudgetGrowsWithRounds(t *testing.T) {
	ctx := context.Background()
	cfg := runConfig(fl.FedAvg, 3)
	cfg.Privacy.Technique = fl.TechniqueNoising
	cfg.Privacy.Epsilon = 0.5
	cfg.Privacy.Delta = 1e-5
	s := newStrategy(t, cfg, fl.ParameterVector{fl.Vector(0)})

	assert.Equal(t, fl.PrivacyBudget{}, s.PrivacyBudget(ctx))
	prev := 0.0
	for round := 1; round <= 3; round++ {
		playRound(t, s, round)
		b := s.PrivacyBudget(ctx)
		assert.InDelta(t, 0.5*float64(round), b.TotalEpsilon, 1e-12)
		assert.InDelta(t, 1e-5*float64(round), b.TotalDelta, 1e-18)
		assert.GreaterOrEqual(t, b.TotalEpsilon, prev)
		prev = b.TotalEpsilon
	}
	assert.Len(t, s.History(ctx), 6)
}

func TestHistoryIsImmutable(t *testing.T) {
	ctx := context.Background()
	s := newStrategy(t, runConfig(fl.FedAvg, 1), fl.ParameterVector{fl.Vector(0)})
	playRound(t, s, 1)

	h := s.History(ctx)
	h[0].Values[fl.TotalSamplesKey] = -1
	h[0].RoundIndex = 42

	again := s.History(ctx)
	assert.Equal(t, 10.0, again[0].Values[fl.TotalSamplesKey])
	assert.Equal(t, 1, again[0].RoundIndex)
}

func TestNewStrategyFailsFast(t *testing.T) {
	cases := []struct {
		desc    string
		mutate  func(*fl.RunConfig)
		initial fl.ParameterVector
	}{
		{desc: "unknown aggregation", mutate: func(c *fl.RunConfig) { c.Aggregation = "fedprox" }, initial: fl.ParameterVector{fl.Vector(0)}},
		{desc: "unknown technique", mutate: func(c *fl.RunConfig) { c.Privacy.Technique = "laplace" }, initial: fl.ParameterVector{fl.Vector(0)}},
		{desc: "unknown model", mutate: func(c *fl.RunConfig) { c.Model = "xgboost" }, initial: fl.ParameterVector{fl.Vector(0)}},
		{desc: "zero rounds", mutate: func(c *fl.RunConfig) { c.Rounds = 0 }, initial: fl.ParameterVector{fl.Vector(0)}},
		{desc: "empty initial parameters", mutate: func(*fl.RunConfig) {}, initial: nil},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg := fl.DefaultRunConfig()
			tc.mutate(&cfg)
			_, err := coordinator.NewStrategy(cfg, tc.initial)
			assert.ErrorIs(t, err, fl.ErrConfiguration)
		})
	}
}

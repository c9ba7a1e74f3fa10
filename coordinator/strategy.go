// Package coordinator implements the server side of the round protocol: it
// owns the global parameter vector, fans round configuration out to
// participants, aggregates their replies and keeps the run history.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/pkg/model"
)

var (
	ErrNotInitialized = errors.New("strategy parameters are not initialized")
	ErrInvalidState   = errors.New("operation not allowed in current strategy state")
	ErrInvalidRound   = errors.New("unexpected round index")
)

type State string

const (
	Uninitialized       State = "uninitialized"
	ConfiguringFit      State = "configuring_fit"
	AwaitingFit         State = "awaiting_fit"
	ConfiguringEvaluate State = "configuring_evaluate"
	AwaitingEvaluate    State = "awaiting_evaluate"
	Terminated          State = "terminated"
)

// Strategy drives one run. Calls must follow the round order
// InitializeParameters, then per round ConfigureFit, AggregateFit,
// ConfigureEvaluate and AggregateEvaluate.
type Strategy interface {
	InitializeParameters(ctx context.Context) (fl.ParameterVector, error)
	ConfigureFit(ctx context.Context, round int, participants []string) ([]fl.Instruction, error)
	AggregateFit(ctx context.Context, round int, replies []fl.FitReply, failures []error) (fl.ParameterVector, fl.RoundMetrics, error)
	ConfigureEvaluate(ctx context.Context, round int, participants []string) ([]fl.Instruction, error)
	AggregateEvaluate(ctx context.Context, round int, replies []fl.EvaluateReply, failures []error) (fl.RoundMetrics, error)
	History(ctx context.Context) []fl.RoundMetrics
	PrivacyBudget(ctx context.Context) fl.PrivacyBudget
	Global(ctx context.Context) fl.ParameterVector
	State(ctx context.Context) State
}

type strategy struct {
	cfg        fl.RunConfig
	initial    fl.ParameterVector
	aggregator fl.Aggregator
	fitReducer fl.Reducer
	evReducer  fl.Reducer

	mu      sync.Mutex
	state   State
	round   int
	elapsed int
	global  fl.ParameterVector
	history []fl.RoundMetrics
}

// NewStrategy validates cfg and fails before any round starts on an unknown
// strategy, privacy technique or model. initial is the seed global state,
// normally model.InitialParameters for the run's feature count.
func NewStrategy(cfg fl.RunConfig, initial fl.ParameterVector) (Strategy, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	if _, err := model.ParseKind(cfg.Model); err != nil {
		return nil, err
	}
	if len(initial) == 0 {
		return nil, fmt.Errorf("%w: empty initial parameters", fl.ErrConfiguration)
	}
	agg, err := fl.NewAggregator(cfg.Aggregation)
	if err != nil {
		return nil, err
	}

	return &strategy{
		cfg:        cfg,
		initial:    initial.Clone(),
		aggregator: agg,
		fitReducer: fl.NewReducer(fl.FitMetricKeys...),
		evReducer:  fl.NewReducer(fl.EvaluateMetricKeys...),
		state:      Uninitialized,
	}, nil
}

func (s *strategy) InitializeParameters(_ context.Context) (fl.ParameterVector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Uninitialized {
		return nil, fmt.Errorf("%w: initialize in state %s", ErrInvalidState, s.state)
	}
	s.global = s.initial.Clone()
	s.state = ConfiguringFit

	return s.global.Clone(), nil
}

func (s *strategy) ConfigureFit(_ context.Context, round int, participants []string) ([]fl.Instruction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(ConfiguringFit, round, s.round+1); err != nil {
		return nil, err
	}
	s.round = round
	s.state = AwaitingFit

	return s.instructions(round, participants), nil
}

// AggregateFit replaces the global parameters with the aggregate of the
// replies. With no replies the previous global persists. If aggregation
// fails the first reply compatible with the current global is adopted
// instead and the error is recorded on the round.
func (s *strategy) AggregateFit(_ context.Context, round int, replies []fl.FitReply, failures []error) (fl.ParameterVector, fl.RoundMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(AwaitingFit, round, s.round); err != nil {
		return nil, fl.RoundMetrics{}, err
	}

	rm := fl.RoundMetrics{
		RoundIndex:      round,
		Phase:           fl.PhaseFit,
		NumParticipants: len(replies),
		NumFailures:     len(failures),
		Values:          map[string]float64{},
	}

	if len(replies) > 0 {
		vectors := make([]fl.ParameterVector, len(replies))
		weights := make([]int, len(replies))
		metrics := make([]fl.Metrics, len(replies))
		for k, r := range replies {
			vectors[k] = r.Result.Parameters
			weights[k] = r.Result.SampleCount
			metrics[k] = r.Result.Metrics
			if r.Result.Degraded() {
				rm.NumDegraded++
			}
		}

		next, err := s.aggregate(vectors, weights)
		if err != nil {
			rm.AggregationError = err.Error()
			next = s.fallback(vectors)
		}
		s.global = next
		rm.Values = s.fitReducer.Reduce(metrics, weights)
	}

	s.elapsed = round
	s.state = ConfiguringEvaluate
	rm.CompletedAt = time.Now().UTC()
	s.history = append(s.history, rm)

	return s.global.Clone(), rm.Clone(), nil
}

func (s *strategy) aggregate(vectors []fl.ParameterVector, weights []int) (fl.ParameterVector, error) {
	var errs []error
	for k, v := range vectors {
		if err := s.global.Compatible(v); err != nil {
			errs = append(errs, fmt.Errorf("reply %d: %w", k, err))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return s.aggregator.Aggregate(vectors, weights)
}

func (s *strategy) fallback(vectors []fl.ParameterVector) fl.ParameterVector {
	for _, v := range vectors {
		if s.global.Compatible(v) == nil {
			return v.Clone()
		}
	}

	return s.global
}

func (s *strategy) ConfigureEvaluate(_ context.Context, round int, participants []string) ([]fl.Instruction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(ConfiguringEvaluate, round, s.round); err != nil {
		return nil, err
	}
	s.state = AwaitingEvaluate

	return s.instructions(round, participants), nil
}

// AggregateEvaluate records the sample-weighted mean loss under
// aggregated_loss together with the reduced evaluate metrics.
func (s *strategy) AggregateEvaluate(_ context.Context, round int, replies []fl.EvaluateReply, failures []error) (fl.RoundMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(AwaitingEvaluate, round, s.round); err != nil {
		return fl.RoundMetrics{}, err
	}

	rm := fl.RoundMetrics{
		RoundIndex:      round,
		Phase:           fl.PhaseEvaluate,
		NumParticipants: len(replies),
		NumFailures:     len(failures),
		Values:          map[string]float64{},
	}

	if len(replies) > 0 {
		weights := make([]int, len(replies))
		metrics := make([]fl.Metrics, len(replies))
		var lossSum, n float64
		for k, r := range replies {
			weights[k] = r.Result.SampleCount
			metrics[k] = r.Result.Metrics
			if r.Result.Degraded() {
				// Degraded losses are placeholders.
				rm.NumDegraded++
				continue
			}
			lossSum += r.Result.Loss * float64(r.Result.SampleCount)
			n += float64(r.Result.SampleCount)
		}
		rm.Values = s.evReducer.Reduce(metrics, weights)
		if n > 0 {
			rm.Values[fl.AggregatedLossKey] = lossSum / n
		}
	}

	s.state = ConfiguringFit
	if round >= s.cfg.Rounds {
		s.state = Terminated
	}
	rm.CompletedAt = time.Now().UTC()
	s.history = append(s.history, rm)

	return rm.Clone(), nil
}

func (s *strategy) History(_ context.Context) []fl.RoundMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]fl.RoundMetrics, len(s.history))
	for i, m := range s.history {
		out[i] = m.Clone()
	}

	return out
}

// PrivacyBudget is recomputed from the number of aggregated fit rounds.
func (s *strategy) PrivacyBudget(_ context.Context) fl.PrivacyBudget {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cfg.Privacy.Budget(s.elapsed)
}

func (s *strategy) Global(_ context.Context) fl.ParameterVector {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.global.Clone()
}

func (s *strategy) State(_ context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *strategy) expect(state State, round, want int) error {
	switch {
	case s.state == Uninitialized:
		return ErrNotInitialized
	case s.state != state:
		return fmt.Errorf("%w: %s, expected %s", ErrInvalidState, s.state, state)
	case round != want:
		return fmt.Errorf("%w: got %d, expected %d", ErrInvalidRound, round, want)
	}

	return nil
}

// instructions gives every participant its own copy of the round config
// and of the global parameters.
func (s *strategy) instructions(round int, participants []string) []fl.Instruction {
	cfg := fl.RoundConfig{
		RoundIndex:  round,
		LocalEpochs: s.cfg.LocalEpochs,
		Options: map[string]any{
			"model":       s.cfg.Model,
			"aggregation": string(s.cfg.Aggregation),
			"privacy":     string(s.cfg.Privacy.Technique),
		},
	}

	out := make([]fl.Instruction, len(participants))
	for i, id := range participants {
		out[i] = fl.Instruction{
			ParticipantID: id,
			Config:        cfg.Clone(),
			Parameters:    s.global.Clone(),
		}
	}

	return out
}

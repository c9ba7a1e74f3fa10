// Package participant holds one data owner's local partition and model and
// executes its side of each round.
package participant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/absmach/fedround/pkg/dataset"
	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/pkg/model"
)

type State string

const (
	Idle       State = "idle"
	Fitting    State = "fitting"
	Evaluating State = "evaluating"
)

// DegradedLoss is reported by an evaluate call that failed locally.
const DegradedLoss = 1000.0

var ErrPanic = errors.New("participant panicked")

// Participant never initiates contact. Calls on the same participant are
// serialised; distinct participants share no mutable state.
type Participant struct {
	id        string
	model     model.Model
	split     dataset.Split
	transform *fl.Transform
	logger    *slog.Logger

	mu    sync.Mutex
	state State
}

func New(id string, m model.Model, split dataset.Split, tr *fl.Transform, logger *slog.Logger) *Participant {
	return &Participant{
		id:        id,
		model:     m,
		split:     split,
		transform: tr,
		logger:    logger,
		state:     Idle,
	}
}

func (p *Participant) ID() string {
	return p.id
}

func (p *Participant) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

func (p *Participant) Samples() (train, test int) {
	return p.split.TrainSamples(), p.split.TestSamples()
}

// Fit loads global into the local model, trains for the configured local
// epochs and returns the privacy-transformed parameters. A local failure
// yields a degraded result rather than an error; the error return is only
// used when ctx is already done.
func (p *Participant) Fit(ctx context.Context, global fl.ParameterVector, cfg fl.RoundConfig) (fl.FitResult, error) {
	if err := ctx.Err(); err != nil {
		return fl.FitResult{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = Fitting
	defer func() { p.state = Idle }()

	res, err := p.fit(global, cfg)
	if err != nil {
		p.logger.Warn("Local fit failed, reporting degraded result",
			slog.String("participant_id", p.id),
			slog.Int("round", cfg.RoundIndex),
			slog.String("phase", string(fl.PhaseFit)),
			slog.Any("error", err),
		)

		return degradedFit(global, err), nil
	}

	return res, nil
}

func (p *Participant) fit(global fl.ParameterVector, cfg fl.RoundConfig) (res fl.FitResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	if err := p.model.SetParameters(global.Clone()); err != nil {
		return fl.FitResult{}, fmt.Errorf("load global parameters: %w", err)
	}
	if err := p.model.Fit(p.split.XTrain, p.split.YTrain, cfg.LocalEpochs); err != nil {
		return fl.FitResult{}, err
	}

	train, err := p.model.Evaluate(p.split.XTrain, p.split.YTrain)
	if err != nil {
		return fl.FitResult{}, fmt.Errorf("evaluate train split: %w", err)
	}
	test, err := p.model.Evaluate(p.split.XTest, p.split.YTest)
	if err != nil {
		return fl.FitResult{}, fmt.Errorf("evaluate test split: %w", err)
	}

	metrics := fl.Metrics{
		"training_time":  test["training_time"],
		"inference_time": test["inference_time"],
	}
	for _, k := range []string{"mae", "mse", "r2"} {
		metrics["train_"+k] = train[k]
		metrics["test_"+k] = test[k]
	}

	return fl.FitResult{
		Parameters:  p.transform.Apply(p.model.Parameters()),
		SampleCount: p.split.TrainSamples(),
		Metrics:     metrics,
	}, nil
}

// Evaluate runs inference with global against the held-out split. The loss
// is the test mean squared error.
func (p *Participant) Evaluate(ctx context.Context, global fl.ParameterVector, cfg fl.RoundConfig) (fl.EvaluateResult, error) {
	if err := ctx.Err(); err != nil {
		return fl.EvaluateResult{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = Evaluating
	defer func() { p.state = Idle }()

	res, err := p.evaluate(global)
	if err != nil {
		p.logger.Warn("Local evaluate failed, reporting degraded result",
			slog.String("participant_id", p.id),
			slog.Int("round", cfg.RoundIndex),
			slog.String("phase", string(fl.PhaseEvaluate)),
			slog.Any("error", err),
		)

		return degradedEvaluate(err), nil
	}

	return res, nil
}

func (p *Participant) evaluate(global fl.ParameterVector) (res fl.EvaluateResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	if err := p.model.SetParameters(global.Clone()); err != nil {
		return fl.EvaluateResult{}, fmt.Errorf("load global parameters: %w", err)
	}
	m, err := p.model.Evaluate(p.split.XTest, p.split.YTest)
	if err != nil {
		return fl.EvaluateResult{}, err
	}
	loss, _ := m["mse"].(float64)
	m["loss"] = loss
	delete(m, "training_time")

	return fl.EvaluateResult{
		Loss:        loss,
		SampleCount: p.split.TestSamples(),
		Metrics:     m,
	}, nil
}

// degradedFit echoes the global parameters back with a weight of one so the
// round keeps its shape; the error stays visible under fl.ErrorKey.
func degradedFit(global fl.ParameterVector, err error) fl.FitResult {
	params := global.Clone()
	if len(params) == 0 {
		params = fl.ParameterVector{fl.Vector(1.0)}
	}

	return fl.FitResult{
		Parameters:  params,
		SampleCount: 1,
		Metrics:     fl.Metrics{fl.ErrorKey: err.Error()},
	}
}

func degradedEvaluate(err error) fl.EvaluateResult {
	return fl.EvaluateResult{
		Loss:        DegradedLoss,
		SampleCount: 1,
		Metrics:     fl.Metrics{fl.ErrorKey: err.Error()},
	}
}

// Package runner drives runs end to end: it sequences the coordinator and
// the participants for the configured number of rounds, persists the run
// record and publishes round events.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/fedround/coordinator"
	"github.com/absmach/fedround/pkg/fl"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"golang.org/x/sync/errgroup"
)

var ErrUnknownParticipant = errors.New("no client for participant")

// Client is the coordinator's handle on one participant. A non-nil error
// means the call produced no result at all; local training failures are
// reported as degraded results instead.
type Client interface {
	ID() string
	Fit(ctx context.Context, params fl.ParameterVector, cfg fl.RoundConfig) (fl.FitResult, error)
	Evaluate(ctx context.Context, params fl.ParameterVector, cfg fl.RoundConfig) (fl.EvaluateResult, error)
}

// Instruments records round outcomes. Zero fields are replaced by discard
// metrics.
type Instruments struct {
	Rounds   metrics.Counter
	Failures metrics.Counter
	Degraded metrics.Counter
	Loss     metrics.Gauge
}

func (in Instruments) orDiscard() Instruments {
	if in.Rounds == nil {
		in.Rounds = discard.NewCounter()
	}
	if in.Failures == nil {
		in.Failures = discard.NewCounter()
	}
	if in.Degraded == nil {
		in.Degraded = discard.NewCounter()
	}
	if in.Loss == nil {
		in.Loss = discard.NewGauge()
	}

	return in
}

// Outcome is what a finished run leaves behind.
type Outcome struct {
	History []fl.RoundMetrics
	Budget  fl.PrivacyBudget
	Final   fl.ParameterVector
}

type Driver struct {
	runID       string
	cfg         fl.RunConfig
	strategy    coordinator.Strategy
	clients     map[string]Client
	ids         []string
	notifier    Notifier
	instruments Instruments
	logger      *slog.Logger
}

func NewDriver(runID string, cfg fl.RunConfig, strategy coordinator.Strategy, clients []Client, notifier Notifier, instruments Instruments, logger *slog.Logger) *Driver {
	d := &Driver{
		runID:       runID,
		cfg:         cfg,
		strategy:    strategy,
		clients:     make(map[string]Client, len(clients)),
		ids:         make([]string, 0, len(clients)),
		notifier:    notifier,
		instruments: instruments.orDiscard(),
		logger:      logger,
	}
	if d.notifier == nil {
		d.notifier = NopNotifier{}
	}
	for _, c := range clients {
		d.clients[c.ID()] = c
		d.ids = append(d.ids, c.ID())
	}

	return d
}

// Run plays every configured round. Participant failures never abort the
// run; only coordinator errors and cancellation of ctx do.
func (d *Driver) Run(ctx context.Context) (Outcome, error) {
	if _, err := d.strategy.InitializeParameters(ctx); err != nil {
		return Outcome{}, err
	}

	for round := 1; round <= d.cfg.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return d.outcome(ctx), fmt.Errorf("run stopped before round %d: %w", round, err)
		}
		if err := d.round(ctx, round); err != nil {
			return d.outcome(ctx), fmt.Errorf("round %d: %w", round, err)
		}
	}

	return d.outcome(ctx), nil
}

func (d *Driver) round(ctx context.Context, round int) error {
	ins, err := d.strategy.ConfigureFit(ctx, round, d.ids)
	if err != nil {
		return err
	}
	fitReplies, fitFailures := fanOut(ctx, d, ins, fl.PhaseFit, round, func(ctx context.Context, c Client, in fl.Instruction) (fl.FitReply, error) {
		res, err := c.Fit(ctx, in.Parameters, in.Config)

		return fl.FitReply{ParticipantID: c.ID(), Result: res}, err
	})
	_, fitMetrics, err := d.strategy.AggregateFit(ctx, round, fitReplies, fitFailures)
	if err != nil {
		return err
	}
	d.observe(ctx, fitMetrics)

	ins, err = d.strategy.ConfigureEvaluate(ctx, round, d.ids)
	if err != nil {
		return err
	}
	evReplies, evFailures := fanOut(ctx, d, ins, fl.PhaseEvaluate, round, func(ctx context.Context, c Client, in fl.Instruction) (fl.EvaluateReply, error) {
		res, err := c.Evaluate(ctx, in.Parameters, in.Config)

		return fl.EvaluateReply{ParticipantID: c.ID(), Result: res}, err
	})
	evMetrics, err := d.strategy.AggregateEvaluate(ctx, round, evReplies, evFailures)
	if err != nil {
		return err
	}
	d.observe(ctx, evMetrics)

	return nil
}

func (d *Driver) observe(ctx context.Context, rm fl.RoundMetrics) {
	phase := string(rm.Phase)
	d.instruments.Rounds.With("phase", phase, "aggregation", string(d.cfg.Aggregation)).Add(1)
	d.instruments.Failures.With("phase", phase).Add(float64(rm.NumFailures))
	d.instruments.Degraded.With("phase", phase).Add(float64(rm.NumDegraded))
	if loss, ok := rm.Values[fl.AggregatedLossKey]; ok {
		d.instruments.Loss.With("aggregation", string(d.cfg.Aggregation)).Set(loss)
	}

	ev := RoundEvent{
		RunID:   d.runID,
		Metrics: rm,
		Budget:  d.strategy.PrivacyBudget(ctx),
	}
	if err := d.notifier.RoundCompleted(ctx, ev); err != nil {
		d.logger.Warn("Failed to publish round event",
			slog.String("run_id", d.runID),
			slog.Int("round", rm.RoundIndex),
			slog.String("phase", phase),
			slog.Any("error", err),
		)
	}
}

func (d *Driver) outcome(ctx context.Context) Outcome {
	return Outcome{
		History: d.strategy.History(ctx),
		Budget:  d.strategy.PrivacyBudget(ctx),
		Final:   d.strategy.Global(ctx),
	}
}

// fanOut calls every instructed participant concurrently, at most
// cfg.Parallelism at a time when it is positive. Each call is bounded by the
// participant timeout; a call that errors or does not return in time
// becomes a ParticipantFailure. Replies keep the instruction order.
func fanOut[R any](ctx context.Context, d *Driver, ins []fl.Instruction, phase fl.Phase, round int, call func(context.Context, Client, fl.Instruction) (R, error)) ([]R, []error) {
	var (
		mu       sync.Mutex
		slots    = make([]*R, len(ins))
		failures []error
	)
	fail := func(id string, err error) {
		f := &fl.ParticipantFailure{ParticipantID: id, Phase: phase, Round: round, Err: err}
		d.logger.Warn("Participant call failed",
			slog.String("participant_id", id),
			slog.Int("round", round),
			slog.String("phase", string(phase)),
			slog.Any("error", err),
		)
		mu.Lock()
		failures = append(failures, f)
		mu.Unlock()
	}

	var g errgroup.Group
	if d.cfg.Parallelism > 0 {
		g.SetLimit(d.cfg.Parallelism)
	}
	for i, in := range ins {
		client, ok := d.clients[in.ParticipantID]
		if !ok {
			fail(in.ParticipantID, ErrUnknownParticipant)
			continue
		}
		g.Go(func() error {
			res, err := callWithTimeout(ctx, d.cfg.Timeout(), client, in, call)
			if err != nil {
				fail(in.ParticipantID, err)
				return nil
			}
			slots[i] = &res

			return nil
		})
	}
	_ = g.Wait()

	replies := make([]R, 0, len(ins))
	for _, r := range slots {
		if r != nil {
			replies = append(replies, *r)
		}
	}

	return replies, failures
}

type callResult[R any] struct {
	res R
	err error
}

// callWithTimeout does not wait for a participant that ignores its context.
func callWithTimeout[R any](ctx context.Context, timeout time.Duration, c Client, in fl.Instruction, call func(context.Context, Client, fl.Instruction) (R, error)) (R, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan callResult[R], 1)
	go func() {
		res, err := call(ctx, c, in)
		done <- callResult[R]{res: res, err: err}
	}()

	select {
	case r := <-done:
		return r.res, r.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

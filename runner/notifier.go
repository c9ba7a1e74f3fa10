package runner

import (
	"context"
	"time"

	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/pkg/mqtt"
)

const (
	roundsTopic = "/fl/rounds/next"
	runsTopic   = "/fl/runs/completed"
)

type RoundEvent struct {
	RunID   string
	Metrics fl.RoundMetrics
	Budget  fl.PrivacyBudget
}

// Notifier publishes progress. Errors are logged by the caller and never
// fail a run.
type Notifier interface {
	RoundCompleted(ctx context.Context, ev RoundEvent) error
	RunCompleted(ctx context.Context, rec fl.RunRecord) error
}

type NopNotifier struct{}

func (NopNotifier) RoundCompleted(context.Context, RoundEvent) error {
	return nil
}

func (NopNotifier) RunCompleted(context.Context, fl.RunRecord) error {
	return nil
}

type mqttNotifier struct {
	pubsub    mqtt.PubSub
	baseTopic string
}

// NewMQTTNotifier publishes JSON round events to <baseTopic>/fl/rounds/next
// and run summaries to <baseTopic>/fl/runs/completed.
func NewMQTTNotifier(pubsub mqtt.PubSub, baseTopic string) Notifier {
	return &mqttNotifier{
		pubsub:    pubsub,
		baseTopic: baseTopic,
	}
}

func RoundsTopic(baseTopic string) string {
	return baseTopic + roundsTopic
}

func RunsTopic(baseTopic string) string {
	return baseTopic + runsTopic
}

func (n *mqttNotifier) RoundCompleted(ctx context.Context, ev RoundEvent) error {
	msg := map[string]any{
		"run_id":            ev.RunID,
		"round":             ev.Metrics.RoundIndex,
		"phase":             string(ev.Metrics.Phase),
		"num_participants":  ev.Metrics.NumParticipants,
		"num_failures":      ev.Metrics.NumFailures,
		"num_degraded":      ev.Metrics.NumDegraded,
		"metrics":           ev.Metrics.Values,
		"total_epsilon":     ev.Budget.TotalEpsilon,
		"total_delta":       ev.Budget.TotalDelta,
		"aggregation_error": ev.Metrics.AggregationError,
		"completed_at":      ev.Metrics.CompletedAt.Format(time.RFC3339Nano),
	}

	return n.pubsub.Publish(ctx, RoundsTopic(n.baseTopic), msg)
}

func (n *mqttNotifier) RunCompleted(ctx context.Context, rec fl.RunRecord) error {
	msg := map[string]any{
		"run_id":        rec.ID,
		"name":          rec.Name,
		"status":        string(rec.Status),
		"error":         rec.Error,
		"rounds":        len(rec.RoundsOf(fl.PhaseFit)),
		"total_epsilon": rec.Budget.TotalEpsilon,
		"total_delta":   rec.Budget.TotalDelta,
		"finished_at":   rec.FinishedAt.Format(time.RFC3339Nano),
	}

	return n.pubsub.Publish(ctx, RunsTopic(n.baseTopic), msg)
}

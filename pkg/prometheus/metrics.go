package prometheus

import (
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MakeMetrics returns the request counter and latency summary used by the
// service metrics middleware. Both are registered with the default
// registry, so call it once per namespace and subsystem.
func MakeMetrics(namespace, subsystem string) (*kitprometheus.Counter, *kitprometheus.Summary) {
	counter := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_count",
		Help:      "Number of requests received.",
	}, []string{"method"})
	latency := kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_latency_seconds",
		Help:      "Total duration of requests in seconds.",
	}, []string{"method"})

	return counter, latency
}

// RunMetrics tracks round outcomes across runs.
type RunMetrics struct {
	Rounds   *kitprometheus.Counter
	Failures *kitprometheus.Counter
	Degraded *kitprometheus.Counter
	Loss     *kitprometheus.Gauge
}

func MakeRunMetrics(namespace string) RunMetrics {
	return RunMetrics{
		Rounds: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rounds",
			Name:      "completed_total",
			Help:      "Number of completed round phases.",
		}, []string{"phase", "aggregation"}),
		Failures: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rounds",
			Name:      "participant_failures_total",
			Help:      "Participants that timed out or could not be reached.",
		}, []string{"phase"}),
		Degraded: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rounds",
			Name:      "degraded_results_total",
			Help:      "Participants that reported a degraded result.",
		}, []string{"phase"}),
		Loss: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rounds",
			Name:      "aggregated_loss",
			Help:      "Sample-weighted evaluate loss of the latest round.",
		}, []string{"aggregation"}),
	}
}

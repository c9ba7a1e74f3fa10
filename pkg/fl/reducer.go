package fl

import "math"

const (
	TotalSamplesKey    = "total_samples"
	NumParticipantsKey = "num_participants"
	AggregatedLossKey  = "aggregated_loss"

	avgPrefix = "avg_"
)

var (
	FitMetricKeys = []string{
		"train_mae", "train_mse", "train_r2",
		"test_mae", "test_mse", "test_r2",
		"training_time", "inference_time",
	}
	EvaluateMetricKeys = []string{"mae", "mse", "r2", "loss", "inference_time"}
)

// Reducer averages a fixed set of numeric keys across participants,
// weighting each participant by its sample count.
type Reducer struct {
	keys []string
}

func NewReducer(keys ...string) Reducer {
	return Reducer{keys: keys}
}

// Reduce emits avg_<key> for every key reported by at least one
// participant, plus total_samples and num_participants, which are emitted
// as zero for empty input. A participant that
// is missing a key, or reports a non-numeric value for it, is left out of
// that key's average only.
func (r Reducer) Reduce(metrics []Metrics, weights []int) map[string]float64 {
	out := make(map[string]float64, len(r.keys)+2)
	for _, key := range r.keys {
		var sum, wsum float64
		for k, m := range metrics {
			if k >= len(weights) {
				break
			}
			v, ok := numeric(m[key])
			if !ok {
				continue
			}
			w := float64(weights[k])
			sum += v * w
			wsum += w
		}
		if wsum > 0 {
			out[avgPrefix+key] = sum / wsum
		}
	}

	var total int64
	for _, w := range weights {
		total += int64(w)
	}
	out[TotalSamplesKey] = float64(total)
	out[NumParticipantsKey] = float64(len(metrics))

	return out
}

// numeric accepts Go number kinds. NaN and infinities are treated as
// non-numeric so a single broken participant cannot poison an average.
func numeric(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	return f, true
}

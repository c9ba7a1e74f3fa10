package fl_test

import (
	"math"
	"testing"

	"github.com/absmach/fedround/pkg/fl"
	"github.com/stretchr/testify/assert"
)

func TestReducerReduce(t *testing.T) {
	cases := []struct {
		desc    string
		keys    []string
		metrics []fl.Metrics
		weights []int
		want    map[string]float64
	}{
		{
			desc: "weighted average",
			keys: []string{"test_mse"},
			metrics: []fl.Metrics{
				{"test_mse": 1.0},
				{"test_mse": 4.0},
			},
			weights: []int{100, 300},
			want: map[string]float64{
				"avg_test_mse":     (100*1.0 + 300*4.0) / 400,
				"total_samples":    400,
				"num_participants": 2,
			},
		},
		{
			desc: "missing and non-numeric values excluded per key",
			keys: []string{"train_mae", "test_r2"},
			metrics: []fl.Metrics{
				{"train_mae": 2.0, "test_r2": "n/a"},
				{"train_mae": 4.0, "test_r2": 0.5},
				{"test_r2": 0.9},
			},
			weights: []int{1, 1, 2},
			want: map[string]float64{
				"avg_train_mae":    3.0,
				"avg_test_r2":      (0.5*1 + 0.9*2) / 3,
				"total_samples":    4,
				"num_participants": 3,
			},
		},
		{
			desc: "integer values count as numeric",
			keys: []string{"epochs"},
			metrics: []fl.Metrics{
				{"epochs": 2},
				{"epochs": int64(4)},
			},
			weights: []int{1, 1},
			want: map[string]float64{
				"avg_epochs":       3,
				"total_samples":    2,
				"num_participants": 2,
			},
		},
		{
			desc: "nan excluded",
			keys: []string{"test_r2"},
			metrics: []fl.Metrics{
				{"test_r2": math.NaN()},
				{"test_r2": 0.25},
			},
			weights: []int{10, 30},
			want: map[string]float64{
				"avg_test_r2":      0.25,
				"total_samples":    40,
				"num_participants": 2,
			},
		},
		{
			desc: "degraded participant keeps counts",
			keys: fl.FitMetricKeys,
			metrics: []fl.Metrics{
				{"error": "boom"},
				{"test_mse": 2.0},
			},
			weights: []int{1, 99},
			want: map[string]float64{
				"avg_test_mse":     2.0,
				"total_samples":    100,
				"num_participants": 2,
			},
		},
		{
			desc: "no key present",
			keys: []string{"test_mse"},
			metrics: []fl.Metrics{
				{"other": 1.0},
			},
			weights: []int{5},
			want: map[string]float64{
				"total_samples":    5,
				"num_participants": 1,
			},
		},
		{
			desc:    "empty input",
			keys:    fl.FitMetricKeys,
			metrics: nil,
			weights: nil,
			want: map[string]float64{
				"total_samples":    0,
				"num_participants": 0,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got := fl.NewReducer(tc.keys...).Reduce(tc.metrics, tc.weights)
			assert.Len(t, got, len(tc.want))
			for k, v := range tc.want {
				assert.InDelta(t, v, got[k], 1e-12, k)
			}
		})
	}
}

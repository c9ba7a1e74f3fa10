package runner

import (
	"fmt"

	"github.com/absmach/fedround/pkg/dataset"
	"github.com/absmach/fedround/pkg/model"
)

// Baseline trains one centralised model on the pooled rows of every split
// and scores it on the same rows, as a reference for the federated result.
func Baseline(kind model.Kind, epochs int, splits []dataset.Split) (map[string]float64, error) {
	X, y, err := dataset.Pool(splits...)
	if err != nil {
		return nil, err
	}
	_, features := X.Dims()

	m, err := model.New(kind, features)
	if err != nil {
		return nil, err
	}
	if err := m.Fit(X, y, epochs); err != nil {
		return nil, fmt.Errorf("fit centralised %s: %w", kind, err)
	}
	metrics, err := m.Evaluate(X, y)
	if err != nil {
		return nil, fmt.Errorf("evaluate centralised %s: %w", kind, err)
	}

	out := make(map[string]float64, len(metrics)+1)
	for k, v := range metrics {
		if f, ok := v.(float64); ok {
			out[k] = f
		}
	}
	out["samples"] = float64(len(y))

	return out, nil
}

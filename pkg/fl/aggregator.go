package fl

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

type Aggregator interface {
	Aggregate(vectors []ParameterVector, weights []int) (ParameterVector, error)
	Strategy() Strategy
}

func NewAggregator(s Strategy) (Aggregator, error) {
	switch s {
	case FedAvg:
		return NewFedAvgAggregator(), nil
	case FedMed:
		return NewFedMedAggregator(), nil
	default:
		return nil, configError("unsupported aggregation strategy %q", s)
	}
}

// validate checks the structural contract shared by every strategy and
// returns the total weight.
func validate(vectors []ParameterVector, weights []int) (int64, error) {
	if len(vectors) == 0 {
		return 0, ErrEmptyInput
	}
	if len(weights) != len(vectors) {
		return 0, fmt.Errorf("%w: %d weights for %d vectors", ErrShapeMismatch, len(weights), len(vectors))
	}
	for k, v := range vectors {
		for i, t := range v {
			if err := t.Validate(); err != nil {
				return 0, fmt.Errorf("vector %d tensor %d: %w", k, i, err)
			}
		}
	}
	for k := 1; k < len(vectors); k++ {
		if err := vectors[0].Compatible(vectors[k]); err != nil {
			return 0, fmt.Errorf("vector %d: %w", k, err)
		}
	}

	var total int64
	for k, w := range weights {
		if w <= 0 {
			return 0, fmt.Errorf("%w: weight %d is %d", ErrInvalidWeights, k, w)
		}
		if total > math.MaxInt64-int64(w) {
			return 0, ErrOverflow
		}
		total += int64(w)
	}

	return total, nil
}

type FedAvgAggregator struct{}

func NewFedAvgAggregator() Aggregator {
	return &FedAvgAggregator{}
}

func (f *FedAvgAggregator) Strategy() Strategy {
	return FedAvg
}

// Aggregate computes the sample-weighted mean of every tensor.
func (f *FedAvgAggregator) Aggregate(vectors []ParameterVector, weights []int) (ParameterVector, error) {
	total, err := validate(vectors, weights)
	if err != nil {
		return nil, err
	}

	norm := float64(total)
	out := make(ParameterVector, len(vectors[0]))
	for i, t := range vectors[0] {
		acc := Zeros(t.Shape...)
		for k, v := range vectors {
			floats.AddScaled(acc.Data, float64(weights[k])/norm, v[i].Data)
		}
		out[i] = acc
	}

	return out, nil
}

type FedMedAggregator struct{}

func NewFedMedAggregator() Aggregator {
	return &FedMedAggregator{}
}

func (f *FedMedAggregator) Strategy() Strategy {
	return FedMed
}

// Aggregate takes the element-wise median of every tensor. Weights are
// validated but do not influence the result.
func (f *FedMedAggregator) Aggregate(vectors []ParameterVector, weights []int) (ParameterVector, error) {
	if _, err := validate(vectors, weights); err != nil {
		return nil, err
	}

	column := make([]float64, len(vectors))
	out := make(ParameterVector, len(vectors[0]))
	for i, t := range vectors[0] {
		med := Zeros(t.Shape...)
		for j := range med.Data {
			for k, v := range vectors {
				column[k] = v[i].Data[j]
			}
			med.Data[j] = median(column)
		}
		out[i] = med
	}

	return out, nil
}

// median sorts xs in place. Even counts average the two middle values.
func median(xs []float64) float64 {
	slices.Sort(xs)
	n := len(xs)
	if n%2 == 1 {
		return xs[n/2]
	}

	return (xs[n/2-1] + xs[n/2]) / 2
}

package dataset

import (
	"context"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// SyntheticSource generates y = X·w + b + noise with standard normal
// features. The true w and b are shared by every participant so that the
// federation has a common target; rows are drawn from a per-participant
// stream, so each index is reproducible on its own.
type SyntheticSource struct {
	// Samples holds the row count per participant. Indices past the end
	// reuse the last entry.
	Samples      []int
	Features     int
	Noise        float64
	TestFraction float64
	Seed         uint64
}

func (s *SyntheticSource) Load(ctx context.Context, index int) (Split, error) {
	if err := ctx.Err(); err != nil {
		return Split{}, err
	}
	if index < 0 {
		return Split{}, fmt.Errorf("%w: negative participant index %d", ErrInvalidData, index)
	}
	if s.Features < 1 {
		return Split{}, fmt.Errorf("%w: %d features", ErrInvalidData, s.Features)
	}
	if len(s.Samples) == 0 {
		return Split{}, fmt.Errorf("%w: no sample counts", ErrNoData)
	}

	n := s.Samples[min(index, len(s.Samples)-1)]
	coef, intercept := s.Truth()

	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(s.Seed, uint64(index)+1)}
	x := make([][]float64, n)
	y := make([]float64, n)
	for r := range n {
		row := make([]float64, s.Features)
		target := intercept
		for c := range row {
			row[c] = norm.Rand()
			target += coef[c] * row[c]
		}
		x[r] = row
		y[r] = target + s.Noise*norm.Rand()
	}

	return splitRows(x, y, s.featureNames(), s.TestFraction, s.Seed)
}

// Truth returns the coefficients and intercept the data is generated from.
func (s *SyntheticSource) Truth() ([]float64, float64) {
	u := distuv.Uniform{Min: -2, Max: 2, Src: rand.NewPCG(s.Seed, 0)}
	coef := make([]float64, s.Features)
	for i := range coef {
		coef[i] = u.Rand()
	}

	return coef, u.Rand()
}

func (s *SyntheticSource) featureNames() []string {
	names := make([]string, s.Features)
	for i := range names {
		names[i] = fmt.Sprintf("x%d", i)
	}

	return names
}

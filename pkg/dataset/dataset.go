// Package dataset supplies each participant with a fixed local train/test
// split. Sources are deterministic: loading the same index twice yields the
// same split.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/absmach/fedround/pkg/fl"
	"gonum.org/v1/gonum/mat"
)

const (
	SourceSynthetic = "synthetic"
	SourceCSV       = "csv"
)

var (
	ErrInvalidData = errors.New("invalid dataset")
	ErrNoData      = errors.New("dataset has too few rows to split")
)

// Split is one participant's local partition.
type Split struct {
	Features []string
	XTrain   *mat.Dense
	YTrain   []float64
	XTest    *mat.Dense
	YTest    []float64
}

func (s Split) TrainSamples() int {
	return len(s.YTrain)
}

func (s Split) TestSamples() int {
	return len(s.YTest)
}

func (s Split) NumFeatures() int {
	if s.XTrain == nil {
		return 0
	}
	_, c := s.XTrain.Dims()

	return c
}

// All stacks the train and test rows into one matrix.
func (s Split) All() (*mat.Dense, []float64) {
	return stack([]*mat.Dense{s.XTrain, s.XTest}, [][]float64{s.YTrain, s.YTest})
}

// Source loads the partition of the participant at a zero-based index.
type Source interface {
	Load(ctx context.Context, index int) (Split, error)
}

func NewSource(cfg fl.DatasetConfig) (Source, error) {
	switch cfg.Source {
	case SourceSynthetic, "":
		return &SyntheticSource{
			Samples:      cfg.Samples,
			Features:     cfg.Features,
			Noise:        cfg.Noise,
			TestFraction: cfg.TestFraction,
			Seed:         cfg.Seed,
		}, nil
	case SourceCSV:
		return &CSVSource{
			Dir:          cfg.Dir,
			Pattern:      cfg.Pattern,
			Target:       cfg.Target,
			TestFraction: cfg.TestFraction,
			Seed:         cfg.Seed,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported dataset source %q", fl.ErrConfiguration, cfg.Source)
	}
}

// Pool concatenates every split into one matrix of all rows, used to train
// the centralised baseline.
func Pool(splits ...Split) (*mat.Dense, []float64, error) {
	if len(splits) == 0 {
		return nil, nil, ErrNoData
	}

	features := splits[0].NumFeatures()
	xs := make([]*mat.Dense, 0, 2*len(splits))
	ys := make([][]float64, 0, 2*len(splits))
	for i, s := range splits {
		if s.NumFeatures() != features {
			return nil, nil, fmt.Errorf("%w: split %d has %d features, want %d", ErrInvalidData, i, s.NumFeatures(), features)
		}
		xs = append(xs, s.XTrain, s.XTest)
		ys = append(ys, s.YTrain, s.YTest)
	}
	X, y := stack(xs, ys)

	return X, y, nil
}

func stack(xs []*mat.Dense, ys [][]float64) (*mat.Dense, []float64) {
	rows, cols := 0, 0
	for _, x := range xs {
		if x == nil {
			continue
		}
		r, c := x.Dims()
		rows += r
		cols = c
	}

	y := make([]float64, 0, rows)
	if rows == 0 || cols == 0 {
		return &mat.Dense{}, y
	}

	X := mat.NewDense(rows, cols, nil)
	at := 0
	for i, x := range xs {
		if x == nil {
			continue
		}
		r, _ := x.Dims()
		X.Slice(at, at+r, 0, cols).(*mat.Dense).Copy(x)
		at += r
		y = append(y, ys[i]...)
	}

	return X, y
}

// splitRows shuffles row indices with a seeded generator and holds out
// ceil(n*testFraction) rows for test, keeping at least one row on each side.
func splitRows(x [][]float64, y []float64, features []string, testFraction float64, seed uint64) (Split, error) {
	n := len(y)
	if n < 2 {
		return Split{}, fmt.Errorf("%w: %d rows", ErrNoData, n)
	}

	nTest := int(math.Ceil(float64(n) * testFraction))
	nTest = min(max(nTest, 1), n-1)

	rng := rand.New(rand.NewPCG(seed, seed))
	perm := rng.Perm(n)

	test, train := perm[:nTest], perm[nTest:]

	return Split{
		Features: features,
		XTrain:   gather(x, train, len(features)),
		YTrain:   gatherY(y, train),
		XTest:    gather(x, test, len(features)),
		YTest:    gatherY(y, test),
	}, nil
}

func gather(x [][]float64, idx []int, cols int) *mat.Dense {
	m := mat.NewDense(len(idx), cols, nil)
	for r, i := range idx {
		m.SetRow(r, x[i])
	}

	return m
}

func gatherY(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for r, i := range idx {
		out[r] = y[i]
	}

	return out
}

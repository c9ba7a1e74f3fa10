package model_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var (
	trueCoef      = []float64{2, -1, 0.5}
	trueIntercept = 3.0
)

func linearData(n int, noise float64, seed uint64) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	X := mat.NewDense(n, len(trueCoef), nil)
	y := make([]float64, n)
	for i := range n {
		y[i] = trueIntercept
		for j, c := range trueCoef {
			v := rng.NormFloat64()
			X.Set(i, j, v)
			y[i] += c * v
		}
		y[i] += noise * rng.NormFloat64()
	}

	return X, y
}

func TestParseKind(t *testing.T) {
	cases := []struct {
		desc string
		in   string
		want model.Kind
		err  error
	}{
		{desc: "ols", in: "ols", want: model.OLS},
		{desc: "mixed case ridge", in: " Ridge ", want: model.Ridge},
		{desc: "lasso", in: "lasso", want: model.Lasso},
		{desc: "sgd", in: "sgd", want: model.SGD},
		{desc: "unsupported", in: "random_forest", err: fl.ErrConfiguration},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := model.ParseKind(tc.in)
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNewRejectsBadConfiguration(t *testing.T) {
	_, err := model.New("knn", 3)
	assert.ErrorIs(t, err, fl.ErrConfiguration)

	_, err = model.New(model.Ridge, 0)
	assert.ErrorIs(t, err, fl.ErrConfiguration)
}

func TestFitRecoversCoefficients(t *testing.T) {
	X, y := linearData(400, 0, 1)

	cases := []struct {
		desc   string
		kind   model.Kind
		epochs int
		tol    float64
	}{
		{desc: "ols is exact on noiseless data", kind: model.OLS, epochs: 1, tol: 1e-9},
		{desc: "ridge shrinks slightly", kind: model.Ridge, epochs: 1, tol: 0.02},
		{desc: "sgd converges with enough epochs", kind: model.SGD, epochs: 30, tol: 1e-3},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			m, err := model.New(tc.kind, len(trueCoef))
			require.NoError(t, err)
			require.NoError(t, m.Fit(X, y, tc.epochs))

			p := m.Parameters()
			require.Len(t, p, 2)
			assert.Equal(t, []int{3}, p[0].Shape)
			assert.Equal(t, []int{1}, p[1].Shape)
			assert.InDeltaSlice(t, trueCoef, p[0].Data, tc.tol)
			assert.InDelta(t, trueIntercept, p[1].Data[0], tc.tol)
		})
	}
}

func TestLassoWithSmallPenaltyApproachesOLS(t *testing.T) {
	X, y := linearData(400, 0, 1)
	opts := model.DefaultOptions()
	opts.Alpha = 0.01
	m, err := model.NewWithOptions(model.Lasso, 3, opts)
	require.NoError(t, err)
	require.NoError(t, m.Fit(X, y, 1))

	assert.InDeltaSlice(t, trueCoef, m.Parameters()[0].Data, 0.05)
	assert.InDelta(t, trueIntercept, m.Parameters()[1].Data[0], 0.05)
}

func TestLassoZeroesWeakFeatures(t *testing.T) {
	X, y := linearData(400, 0, 2)
	m, err := model.NewWithOptions(model.Lasso, 3, model.Options{Alpha: 0.75, MaxIter: 1000, Tol: 1e-9})
	require.NoError(t, err)
	require.NoError(t, m.Fit(X, y, 1))

	coef := m.Parameters()[0].Data
	assert.Zero(t, coef[2], "the 0.5 coefficient is below the penalty")
	assert.NotZero(t, coef[0])
}

func TestSGDContinuesFromLoadedParameters(t *testing.T) {
	X, y := linearData(200, 0, 3)

	cold, err := model.New(model.SGD, 3)
	require.NoError(t, err)
	require.NoError(t, cold.Fit(X, y, 1))

	warm, err := model.New(model.SGD, 3)
	require.NoError(t, err)
	require.NoError(t, warm.SetParameters(fl.ParameterVector{fl.Vector(trueCoef...), fl.Vector(trueIntercept)}))
	require.NoError(t, warm.Fit(X, y, 1))

	coldMetrics, err := cold.Evaluate(X, y)
	require.NoError(t, err)
	warmMetrics, err := warm.Evaluate(X, y)
	require.NoError(t, err)
	assert.Less(t, warmMetrics["mse"].(float64), coldMetrics["mse"].(float64))
}

func TestSGDIsStableOnUnscaledFeatures(t *testing.T) {
	X, y := linearData(100, 0.1, 4)
	X.Scale(1000, X)

	m, err := model.New(model.SGD, 3)
	require.NoError(t, err)
	require.NoError(t, m.Fit(X, y, 5))
}

func TestSetParameters(t *testing.T) {
	m, err := model.New(model.Ridge, 3)
	require.NoError(t, err)

	cases := []struct {
		desc   string
		params fl.ParameterVector
		err    error
	}{
		{desc: "matching layout", params: fl.ParameterVector{fl.Vector(1, 2, 3), fl.Vector(4)}},
		{desc: "missing intercept", params: fl.ParameterVector{fl.Vector(1, 2, 3)}, err: fl.ErrShapeMismatch},
		{desc: "wrong feature count", params: fl.ParameterVector{fl.Vector(1, 2), fl.Vector(4)}, err: fl.ErrShapeMismatch},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := m.SetParameters(tc.params)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	pred, err := m.Predict(mat.NewDense(1, 3, []float64{1, 1, 1}))
	require.NoError(t, err)
	assert.InDelta(t, 10.0, pred[0], 1e-12)

	params := m.Parameters()
	params[0].Data[0] = 100
	assert.Equal(t, 1.0, m.Parameters()[0].Data[0], "parameters are returned by copy")
}

func TestEvaluate(t *testing.T) {
	m, err := model.New(model.OLS, 3)
	require.NoError(t, err)
	require.NoError(t, m.SetParameters(fl.ParameterVector{fl.Vector(trueCoef...), fl.Vector(trueIntercept)}))

	X, y := linearData(50, 0, 5)
	got, err := m.Evaluate(X, y)
	require.NoError(t, err)
	for _, key := range []string{"mae", "mse", "r2", "training_time", "inference_time"} {
		assert.Contains(t, got, key)
	}
	assert.InDelta(t, 0, got["mse"], 1e-18)
	assert.InDelta(t, 1, got["r2"], 1e-12)

	y[0] += 2
	got, err = m.Evaluate(X, y)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/50, got["mae"], 1e-12)
	assert.InDelta(t, 4.0/50, got["mse"], 1e-12)
}

func TestFitRejectsBadData(t *testing.T) {
	m, err := model.New(model.Ridge, 3)
	require.NoError(t, err)

	X, y := linearData(10, 0, 6)
	cases := []struct {
		desc string
		X    mat.Matrix
		y    []float64
		err  error
	}{
		{desc: "target length", X: X, y: y[:5], err: model.ErrInvalidData},
		{desc: "feature count", X: mat.NewDense(2, 2, nil), y: []float64{1, 2}, err: fl.ErrShapeMismatch},
		{desc: "nan target", X: mat.NewDense(1, 3, nil), y: []float64{math.NaN()}, err: model.ErrInvalidData},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.ErrorIs(t, m.Fit(tc.X, tc.y, 1), tc.err)
		})
	}
}

func TestInitialParameters(t *testing.T) {
	p := model.InitialParameters(4)
	assert.Equal(t, [][]int{{4}, {1}}, p.Shapes())
	assert.Equal(t, []float64{0, 0, 0, 0}, p[0].Data)
}

// Package model provides the linear regression families a participant can
// train. Every variant exchanges the same parameter layout: a coefficient
// tensor of shape [features] followed by an intercept tensor of shape [1].
package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/absmach/fedround/pkg/fl"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrInvalidData = errors.New("invalid training data")
	ErrNumerical   = errors.New("numerical failure")
)

type Kind string

const (
	OLS   Kind = "ols"
	Ridge Kind = "ridge"
	Lasso Kind = "lasso"
	SGD   Kind = "sgd"
)

var Kinds = []Kind{OLS, Ridge, Lasso, SGD}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}

	return "", fmt.Errorf("%w: unsupported model %q", fl.ErrConfiguration, s)
}

// Model is the trainable capability a participant drives.
type Model interface {
	Kind() Kind
	// Fit trains on X and y. Closed-form variants ignore epochs and the
	// current parameters; SGD continues from the current parameters.
	Fit(X mat.Matrix, y []float64, epochs int) error
	Predict(X mat.Matrix) ([]float64, error)
	Parameters() fl.ParameterVector
	SetParameters(p fl.ParameterVector) error
	Evaluate(X mat.Matrix, y []float64) (fl.Metrics, error)
}

type Options struct {
	// Alpha is the regularisation strength of ridge and lasso.
	Alpha float64
	// LearningRate is the SGD step size before the stability cap.
	LearningRate float64
	// StepsPerEpoch is the number of full-batch SGD steps per local epoch.
	StepsPerEpoch int
	// MaxIter bounds lasso coordinate descent sweeps.
	MaxIter int
	Tol     float64
}

func DefaultOptions() Options {
	return Options{
		Alpha:         1.0,
		LearningRate:  0.01,
		StepsPerEpoch: 100,
		MaxIter:       1000,
		Tol:           1e-6,
	}
}

func New(kind Kind, features int) (Model, error) {
	return NewWithOptions(kind, features, DefaultOptions())
}

func NewWithOptions(kind Kind, features int, opts Options) (Model, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if features < 1 {
		return nil, fmt.Errorf("%w: features must be at least 1, got %d", fl.ErrConfiguration, features)
	}

	return &linear{
		kind: kind,
		opts: opts,
		coef: make([]float64, features),
	}, nil
}

// InitialParameters is the seed global state for every kind.
func InitialParameters(features int) fl.ParameterVector {
	return fl.ParameterVector{fl.Zeros(features), fl.Zeros(1)}
}

type linear struct {
	kind      Kind
	opts      Options
	coef      []float64
	intercept float64

	trainingTime  time.Duration
	inferenceTime time.Duration
}

func (m *linear) Kind() Kind {
	return m.kind
}

func (m *linear) Parameters() fl.ParameterVector {
	return fl.ParameterVector{fl.Vector(m.coef...), fl.Vector(m.intercept)}
}

func (m *linear) SetParameters(p fl.ParameterVector) error {
	if err := InitialParameters(len(m.coef)).Compatible(p); err != nil {
		return err
	}
	copy(m.coef, p[0].Data)
	m.intercept = p[1].Data[0]

	return nil
}

func (m *linear) Fit(X mat.Matrix, y []float64, epochs int) error {
	if err := m.check(X, y); err != nil {
		return err
	}

	start := time.Now()
	var err error
	switch m.kind {
	case OLS:
		err = m.fitLeastSquares(X, y, 0)
	case Ridge:
		err = m.fitLeastSquares(X, y, m.opts.Alpha)
	case Lasso:
		m.fitLasso(X, y)
	case SGD:
		m.fitSGD(X, y, max(epochs, 1))
	}
	m.trainingTime = time.Since(start)
	if err != nil {
		return err
	}
	if !finite(m.coef) || !finite([]float64{m.intercept}) {
		return fmt.Errorf("%w: %s produced non-finite parameters", ErrNumerical, m.kind)
	}

	return nil
}

func (m *linear) Predict(X mat.Matrix) ([]float64, error) {
	if _, c := X.Dims(); c != len(m.coef) {
		return nil, fmt.Errorf("%w: expected %d features, got %d", fl.ErrShapeMismatch, len(m.coef), c)
	}

	start := time.Now()
	pred := m.predict(X)
	m.inferenceTime = time.Since(start)

	return pred, nil
}

func (m *linear) predict(X mat.Matrix) []float64 {
	r, _ := X.Dims()
	out := mat.NewVecDense(r, nil)
	out.MulVec(X, mat.NewVecDense(len(m.coef), m.coef))
	pred := out.RawVector().Data
	for i := range pred {
		pred[i] += m.intercept
	}

	return pred
}

func (m *linear) Evaluate(X mat.Matrix, y []float64) (fl.Metrics, error) {
	if err := m.check(X, y); err != nil {
		return nil, err
	}
	pred, err := m.Predict(X)
	if err != nil {
		return nil, err
	}

	var absSum, sqSum float64
	for i, p := range pred {
		d := y[i] - p
		absSum += math.Abs(d)
		sqSum += d * d
	}
	n := float64(len(y))

	return fl.Metrics{
		"mae":            absSum / n,
		"mse":            sqSum / n,
		"r2":             stat.RSquaredFrom(pred, y, nil),
		"training_time":  m.trainingTime.Seconds(),
		"inference_time": m.inferenceTime.Seconds(),
	}, nil
}

func (m *linear) check(X mat.Matrix, y []float64) error {
	r, c := X.Dims()
	switch {
	case r == 0:
		return fmt.Errorf("%w: no samples", ErrInvalidData)
	case r != len(y):
		return fmt.Errorf("%w: %d rows but %d targets", ErrInvalidData, r, len(y))
	case c != len(m.coef):
		return fmt.Errorf("%w: expected %d features, got %d", fl.ErrShapeMismatch, len(m.coef), c)
	case !finite(y):
		return fmt.Errorf("%w: non-finite target", ErrInvalidData)
	}

	return nil
}

// center returns X and y with column means removed, plus those means. The
// intercept is recovered from the means so it is never penalised.
func center(X mat.Matrix, y []float64) (*mat.Dense, []float64, []float64, float64) {
	r, c := X.Dims()
	xc := mat.DenseCopyOf(X)
	means := make([]float64, c)
	col := make([]float64, r)
	for j := range c {
		mat.Col(col, j, xc)
		means[j] = stat.Mean(col, nil)
		floats.AddConst(-means[j], col)
		xc.SetCol(j, col)
	}
	ymean := stat.Mean(y, nil)
	yc := make([]float64, len(y))
	copy(yc, y)
	floats.AddConst(-ymean, yc)

	return xc, yc, means, ymean
}

// fitLeastSquares solves (XᵀX + alpha·I)·w = Xᵀy on centred data. OLS goes
// through QR; ridge through the Cholesky factor of the regularised Gram
// matrix.
func (m *linear) fitLeastSquares(X mat.Matrix, y []float64, alpha float64) error {
	xc, yc, means, ymean := center(X, y)
	c := len(m.coef)
	w := mat.NewVecDense(c, nil)

	if alpha == 0 {
		if err := w.SolveVec(xc, mat.NewVecDense(len(yc), yc)); err != nil {
			return fmt.Errorf("%w: least squares: %w", ErrNumerical, err)
		}
	} else {
		var gram mat.SymDense
		gram.SymOuterK(1, xc.T())
		for j := range c {
			gram.SetSym(j, j, gram.At(j, j)+alpha)
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(&gram); !ok {
			return fmt.Errorf("%w: ridge system is not positive definite", ErrNumerical)
		}
		var xty mat.VecDense
		xty.MulVec(xc.T(), mat.NewVecDense(len(yc), yc))
		if err := chol.SolveVecTo(w, &xty); err != nil {
			return fmt.Errorf("%w: ridge solve: %w", ErrNumerical, err)
		}
	}

	copy(m.coef, w.RawVector().Data)
	m.intercept = ymean - floats.Dot(means, m.coef)

	return nil
}

// fitLasso minimises (1/2n)·‖y − Xw‖² + alpha·‖w‖₁ by cyclic coordinate
// descent on centred data.
func (m *linear) fitLasso(X mat.Matrix, y []float64) {
	xc, yc, means, ymean := center(X, y)
	n, c := xc.Dims()
	nf := float64(n)

	cols := make([][]float64, c)
	norms := make([]float64, c)
	for j := range c {
		cols[j] = mat.Col(nil, j, xc)
		norms[j] = floats.Dot(cols[j], cols[j]) / nf
	}

	w := make([]float64, c)
	resid := make([]float64, n)
	copy(resid, yc)
	for range m.opts.MaxIter {
		var maxDelta float64
		for j := range c {
			if norms[j] == 0 {
				continue
			}
			old := w[j]
			rho := floats.Dot(cols[j], resid)/nf + norms[j]*old
			w[j] = softThreshold(rho, m.opts.Alpha) / norms[j]
			if d := w[j] - old; d != 0 {
				floats.AddScaled(resid, -d, cols[j])
				maxDelta = max(maxDelta, math.Abs(d))
			}
		}
		if maxDelta < m.opts.Tol {
			break
		}
	}

	copy(m.coef, w)
	m.intercept = ymean - floats.Dot(means, m.coef)
}

func softThreshold(x, t float64) float64 {
	switch {
	case x > t:
		return x - t
	case x < -t:
		return x + t
	default:
		return 0
	}
}

// fitSGD runs full-batch gradient descent on the mean squared error,
// continuing from the current parameters. The step is capped at 1/trace(H)
// of the loss Hessian, which bounds its largest eigenvalue, so unscaled
// features cannot make it diverge.
func (m *linear) fitSGD(X mat.Matrix, y []float64, epochs int) {
	n, c := X.Dims()
	nf := float64(n)

	var trace float64
	for i := range n {
		for j := range c {
			v := X.At(i, j)
			trace += v * v
		}
	}
	trace = 2 * (trace + nf) / nf
	lr := min(m.opts.LearningRate, 1/trace)

	grad := mat.NewVecDense(c, nil)
	for range epochs * m.opts.StepsPerEpoch {
		resid := m.predict(X)
		floats.Sub(resid, y)
		grad.MulVec(X.T(), mat.NewVecDense(n, resid))
		floats.AddScaled(m.coef, -lr*2/nf, grad.RawVector().Data)
		m.intercept -= lr * 2 / nf * floats.Sum(resid)
	}
}

func finite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}

	return true
}

package lm

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// line is y = a + b·t.
type line struct{}

func (line) NumParams() int                      { return 2 }
func (line) Eval(t float64, p []float64) float64 { return p[0] + p[1]*t }
func (line) Grad(t float64, p []float64, dst []float64) {
	dst[0] = 1
	dst[1] = t
}

// expo is y = c·exp(−t/τ) with τ restricted to be positive.
type expo struct{}

func (expo) NumParams() int { return 2 }
func (expo) Eval(t float64, p []float64) float64 {
	return p[0] * math.Exp(-t/p[1])
}
func (expo) Grad(t float64, p []float64, dst []float64) {
	e := math.Exp(-t / p[1])
	dst[0] = e
	dst[1] = p[0] * e * t / (p[1] * p[1])
}
func (expo) Valid(p []float64) bool { return p[1] > 1e-9 }

// flat ignores its second parameter, so JᵀJ is always rank deficient.
type flat struct{}

func (flat) NumParams() int                      { return 2 }
func (flat) Eval(t float64, p []float64) float64 { return p[0] }
func (flat) Grad(t float64, p []float64, dst []float64) {
	dst[0] = 0
	dst[1] = 0
}

func linspace(a, b float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = a + (b-a)*float64(i)/float64(n-1)
	}
	return out
}

func TestFit_LinearExact(t *testing.T) {
	ts := linspace(0, 10, 20)
	ys := make([]float64, len(ts))
	for i, x := range ts {
		ys[i] = 1.5 + 0.25*x
	}

	res, err := New(Settings{}).Fit(line{}, ts, ys, []float64{0, 0})
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.InDelta(t, 1.5, res.Params[0], 1e-6)
	assert.InDelta(t, 0.25, res.Params[1], 1e-6)
	assert.InDelta(t, 1.0, res.RSquared, 1e-9)
}

func TestFit_ExponentialRecoversParameters(t *testing.T) {
	ts := linspace(0, 20, 40)
	ys := make([]float64, len(ts))
	for i, x := range ts {
		ys[i] = 3 * math.Exp(-x/4)
	}

	res, err := New(DefaultSettings()).Fit(expo{}, ts, ys, []float64{2, 5})
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.InEpsilon(t, 3.0, res.Params[0], 1e-6)
	assert.InEpsilon(t, 4.0, res.Params[1], 1e-6)
	assert.Greater(t, res.RSquared, 0.999999)
	assert.Greater(t, res.Iterations, 0)
	assert.LessOrEqual(t, res.Iterations, 200)
}

func TestFit_StandardErrorsWithNoise(t *testing.T) {
	ts := linspace(0, 10, 30)
	ys := make([]float64, len(ts))
	for i, x := range ts {
		noise := 0.05
		if i%2 == 0 {
			noise = -noise
		}
		ys[i] = 2 + 0.5*x + noise
	}

	res, err := New(Settings{}).Fit(line{}, ts, ys, []float64{1, 1})
	require.NoError(t, err)
	require.True(t, res.StdErrKnown)
	assert.Greater(t, res.StdErr[0], 0.0)
	assert.Greater(t, res.StdErr[1], 0.0)
	assert.Less(t, res.StdErr[1], 0.05)
	assert.Less(t, res.RSquared, 1.0)
}

func TestFit_SingularNormalEquations(t *testing.T) {
	ts := linspace(0, 1, 10)
	ys := make([]float64, len(ts))
	for i := range ys {
		ys[i] = 1
	}

	// Zero gradient everywhere: the damped system is still solvable (diagonal
	// replaced by 1) but never improves, so the fit stalls at the start.
	res, err := New(Settings{}).Fit(flat{}, ts, ys, []float64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, StopStalled, res.Reason)
	assert.False(t, res.StdErrKnown)
}

type nanGrad struct{ flat }

func (nanGrad) Grad(t float64, p []float64, dst []float64) {
	dst[0] = math.NaN()
	dst[1] = math.NaN()
}

func TestFit_NeverSolvableIsSingular(t *testing.T) {
	ts := linspace(0, 1, 10)
	ys := make([]float64, len(ts))
	for i := range ys {
		ys[i] = 1
	}

	_, err := New(Settings{}).Fit(nanGrad{}, ts, ys, []float64{0, 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSingular))
}

func TestFit_IterationCapIsNotAnError(t *testing.T) {
	ts := linspace(0, 20, 40)
	ys := make([]float64, len(ts))
	for i, x := range ts {
		ys[i] = 3 * math.Exp(-x/4)
	}

	res, err := New(Settings{MaxIterations: 1}).Fit(expo{}, ts, ys, []float64{10, 50})
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, StopIterations, res.Reason)
	assert.Equal(t, 1, res.Iterations)
}

func TestFit_Timeout(t *testing.T) {
	ts := linspace(0, 20, 40)
	ys := make([]float64, len(ts))
	for i, x := range ts {
		ys[i] = 3 * math.Exp(-x/4)
	}

	s := New(Settings{Timeout: time.Second})
	clock := time.Unix(0, 0)
	s.now = func() time.Time {
		clock = clock.Add(2 * time.Second)
		return clock
	}

	res, err := s.Fit(expo{}, ts, ys, []float64{10, 50})
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, StopTimeout, res.Reason)
	assert.Equal(t, 0, res.Iterations)
}

func TestFit_InvalidInput(t *testing.T) {
	s := New(Settings{})

	_, err := s.Fit(line{}, nil, nil, []float64{0, 0})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Fit(line{}, []float64{1, 2}, []float64{1}, []float64{0, 0})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Fit(line{}, []float64{1, 2}, []float64{1, 2}, []float64{0})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Fit(expo{}, []float64{1, 2}, []float64{1, 2}, []float64{1, 0})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFit_ExactStartNeedsNoIterations(t *testing.T) {
	ts := linspace(0, 5, 6)
	ys := make([]float64, len(ts))
	for i, x := range ts {
		ys[i] = 1 + 2*x
	}

	res, err := New(Settings{}).Fit(line{}, ts, ys, []float64{1, 2})
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, StopExactFit, res.Reason)
	assert.Equal(t, 0, res.Iterations)
	assert.Equal(t, 1.0, res.RSquared)
}

func TestNumericGradMatchesAnalytic(t *testing.T) {
	p := []float64{3, 4}
	analytic := make([]float64, 2)
	numeric := make([]float64, 2)
	for _, x := range []float64{0, 1, 5, 12} {
		expo{}.Grad(x, p, analytic)
		NumericGrad(expo{}.Eval, x, p, numeric)
		assert.InDelta(t, analytic[0], numeric[0], 1e-6)
		assert.InDelta(t, analytic[1], numeric[1], 1e-6)
	}
}

func TestFunc_FitsWithNumericGradient(t *testing.T) {
	ts := linspace(0, 10, 25)
	ys := make([]float64, len(ts))
	for i, x := range ts {
		ys[i] = 0.5 + 0.1*x*x
	}
	quad := Func{N: 2, F: func(t float64, p []float64) float64 { return p[0] + p[1]*t*t }}

	res, err := New(Settings{}).Fit(quad, ts, ys, []float64{0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.Params[0], 1e-5)
	assert.InDelta(t, 0.1, res.Params[1], 1e-6)
}

// Package lm implements Levenberg–Marquardt nonlinear least squares for
// single-variable models y = f(t; p).
//
// A Solver is stateless between calls; every Fit owns its working arrays, so a
// single Solver may be shared by concurrent goroutines.
package lm

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrSingular is returned when the damped normal equations could not be
	// factorized at any damping level within the iteration budget.
	ErrSingular = errors.New("lm: normal equations are singular")

	// ErrInvalidInput is returned for mismatched data/parameter shapes or a
	// starting point the model rejects.
	ErrInvalidInput = errors.New("lm: invalid input")
)

// Model is a parametrized scalar function with analytic partial derivatives.
type Model interface {
	NumParams() int
	Eval(t float64, p []float64) float64
	// Grad writes ∂f/∂p_j at t into dst (len(dst) == NumParams()).
	Grad(t float64, p []float64, dst []float64)
}

// Validator is implemented by models that restrict the parameter domain.
// Steps landing outside the domain are treated as non-improving.
type Validator interface {
	Valid(p []float64) bool
}

// StopReason tells why the iteration loop ended.
type StopReason string

const (
	StopSSR        StopReason = "ssr_tolerance"
	StopStep       StopReason = "step_tolerance"
	StopExactFit   StopReason = "exact_fit"
	StopStalled    StopReason = "stalled"
	StopIterations StopReason = "max_iterations"
	StopTimeout    StopReason = "timeout"
)

// Settings controls the iteration. Zero fields fall back to DefaultSettings.
type Settings struct {
	MaxIterations  int
	Tolerance      float64 // relative SSR reduction
	StepTolerance  float64 // relative step norm
	InitialDamping float64
	DampingFactor  float64
	MaxDamping     float64
	Timeout        time.Duration // wall clock cap per Fit; 0 = none
}

func DefaultSettings() Settings {
	return Settings{
		MaxIterations:  200,
		Tolerance:      1e-6,
		StepTolerance:  1e-9,
		InitialDamping: 1e-3,
		DampingFactor:  10,
		MaxDamping:     1e12,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MaxIterations <= 0 {
		s.MaxIterations = d.MaxIterations
	}
	if s.Tolerance <= 0 {
		s.Tolerance = d.Tolerance
	}
	if s.StepTolerance <= 0 {
		s.StepTolerance = d.StepTolerance
	}
	if s.InitialDamping <= 0 {
		s.InitialDamping = d.InitialDamping
	}
	if s.DampingFactor <= 1 {
		s.DampingFactor = d.DampingFactor
	}
	if s.MaxDamping <= 0 {
		s.MaxDamping = d.MaxDamping
	}
	return s
}

// Result of a Fit. When Converged is false the parameters are the best point
// reached before the iteration or time cap.
type Result struct {
	Params []float64
	StdErr []float64
	// StdErrKnown is false when JᵀJ at the solution is not positive definite
	// or there are no residual degrees of freedom.
	StdErrKnown bool

	SSR        float64
	SST        float64
	RSquared   float64
	Iterations int
	Converged  bool
	Reason     StopReason
}

type Solver struct {
	settings Settings
	now      func() time.Time
}

func New(settings Settings) *Solver {
	return &Solver{settings: settings.withDefaults(), now: time.Now}
}

func (s *Solver) Settings() Settings { return s.settings }

// Fit minimizes Σ (y_i − f(t_i; p))² starting from p0.
func (s *Solver) Fit(m Model, t, y, p0 []float64) (*Result, error) {
	k := m.NumParams()
	n := len(t)
	if n == 0 || len(y) != n {
		return nil, fmt.Errorf("%w: %d times, %d values", ErrInvalidInput, n, len(y))
	}
	if len(p0) != k {
		return nil, fmt.Errorf("%w: model has %d parameters, got %d", ErrInvalidInput, k, len(p0))
	}
	if !valid(m, p0) {
		return nil, fmt.Errorf("%w: starting point %v outside model domain", ErrInvalidInput, p0)
	}

	cfg := s.settings
	w := newWorkspace(n, k)
	p := append([]float64(nil), p0...)
	ssr := w.residuals(m, t, y, p, w.r)
	if !isFinite(ssr) {
		return nil, fmt.Errorf("%w: starting point gives non-finite residuals", ErrInvalidInput)
	}

	var deadline time.Time
	if cfg.Timeout > 0 {
		deadline = s.now().Add(cfg.Timeout)
	}

	lambda := cfg.InitialDamping
	everSolved := false
	res := &Result{}
	if ssr == 0 {
		res.Converged = true
		res.Reason = StopExactFit
	}

	for !res.Converged && res.Iterations < cfg.MaxIterations {
		if !deadline.IsZero() && s.now().After(deadline) {
			res.Reason = StopTimeout
			break
		}
		res.Iterations++
		w.normalEquations(m, t, p)

		for {
			delta, ok := w.dampedStep(lambda)
			if ok {
				everSolved = true
				for j := range p {
					w.pNew[j] = p[j] + delta[j]
				}
				if valid(m, w.pNew) {
					ssrNew := w.residuals(m, t, y, w.pNew, w.rNew)
					if isFinite(ssrNew) && ssrNew < ssr {
						rel := (ssr - ssrNew) / ssr
						step := norm(delta) / (norm(p) + math.SmallestNonzeroFloat64)
						copy(p, w.pNew)
						w.r, w.rNew = w.rNew, w.r
						ssr = ssrNew
						lambda = math.Max(lambda/cfg.DampingFactor, 1e-15)
						switch {
						case ssr == 0:
							res.Converged, res.Reason = true, StopExactFit
						case rel < cfg.Tolerance:
							res.Converged, res.Reason = true, StopSSR
						case step < cfg.StepTolerance:
							res.Converged, res.Reason = true, StopStep
						}
						break
					}
				}
			}
			lambda *= cfg.DampingFactor
			if lambda > cfg.MaxDamping {
				if !everSolved {
					return nil, ErrSingular
				}
				// No damping level improves on the current point.
				res.Converged, res.Reason = true, StopStalled
				break
			}
		}
	}
	if !res.Converged && res.Reason == "" {
		res.Reason = StopIterations
	}

	res.Params = p
	res.SSR = ssr
	res.SST = totalSumOfSquares(y)
	res.RSquared = rSquared(ssr, res.SST)
	res.StdErr, res.StdErrKnown = w.standardErrors(m, t, p, ssr)
	return res, nil
}

func valid(m Model, p []float64) bool {
	for _, v := range p {
		if !isFinite(v) {
			return false
		}
	}
	if v, ok := m.(Validator); ok {
		return v.Valid(p)
	}
	return true
}

type workspace struct {
	n, k  int
	r     []float64
	rNew  []float64
	pNew  []float64
	grad  []float64
	jtj   []float64 // k×k row major
	jtr   []float64
	a     []float64
	delta []float64
}

func newWorkspace(n, k int) *workspace {
	return &workspace{
		n:     n,
		k:     k,
		r:     make([]float64, n),
		rNew:  make([]float64, n),
		pNew:  make([]float64, k),
		grad:  make([]float64, k),
		jtj:   make([]float64, k*k),
		jtr:   make([]float64, k),
		a:     make([]float64, k*k),
		delta: make([]float64, k),
	}
}

// residuals fills dst with y − f(t; p) and returns the sum of squares.
func (w *workspace) residuals(m Model, t, y, p, dst []float64) float64 {
	ssr := 0.0
	for i := range t {
		d := y[i] - m.Eval(t[i], p)
		dst[i] = d
		ssr += d * d
	}
	return ssr
}

// normalEquations accumulates JᵀJ and Jᵀr at p using the current residuals.
func (w *workspace) normalEquations(m Model, t, p []float64) {
	for i := range w.jtj {
		w.jtj[i] = 0
	}
	for i := range w.jtr {
		w.jtr[i] = 0
	}
	k := w.k
	for i := range t {
		m.Grad(t[i], p, w.grad)
		for a := 0; a < k; a++ {
			ga := w.grad[a]
			w.jtr[a] += ga * w.r[i]
			for b := a; b < k; b++ {
				w.jtj[a*k+b] += ga * w.grad[b]
			}
		}
	}
	for a := 0; a < k; a++ {
		for b := 0; b < a; b++ {
			w.jtj[a*k+b] = w.jtj[b*k+a]
		}
	}
}

// dampedStep solves (JᵀJ + λ·diag(JᵀJ)) δ = Jᵀr.
func (w *workspace) dampedStep(lambda float64) ([]float64, bool) {
	k := w.k
	copy(w.a, w.jtj)
	for j := 0; j < k; j++ {
		d := w.jtj[j*k+j]
		if d <= 0 {
			d = 1
		}
		w.a[j*k+j] += lambda * d
	}
	var chol mat.Cholesky
	if !chol.Factorize(mat.NewSymDense(k, w.a)) {
		return nil, false
	}
	x := mat.NewVecDense(k, w.delta)
	if err := chol.SolveVecTo(x, mat.NewVecDense(k, w.jtr)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, false
		}
	}
	for j := 0; j < k; j++ {
		if !isFinite(w.delta[j]) {
			return nil, false
		}
	}
	return w.delta, true
}

// standardErrors returns sqrt(diag(s²·(JᵀJ)⁻¹)) at p.
func (w *workspace) standardErrors(m Model, t, p []float64, ssr float64) ([]float64, bool) {
	k := w.k
	se := make([]float64, k)
	dof := w.n - k
	if dof <= 0 {
		return se, false
	}
	w.normalEquations(m, t, p)
	var chol mat.Cholesky
	if !chol.Factorize(mat.NewSymDense(k, append([]float64(nil), w.jtj...))) {
		return se, false
	}
	if chol.Cond() > 1e15 {
		return se, false
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return se, false
	}
	s2 := ssr / float64(dof)
	for j := 0; j < k; j++ {
		v := s2 * inv.At(j, j)
		if v < 0 || !isFinite(v) {
			return make([]float64, k), false
		}
		se[j] = math.Sqrt(v)
	}
	return se, true
}

func totalSumOfSquares(y []float64) float64 {
	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))
	sst := 0.0
	for _, v := range y {
		d := v - mean
		sst += d * d
	}
	return sst
}

func rSquared(ssr, sst float64) float64 {
	if sst == 0 {
		if ssr == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssr/sst
}

func norm(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

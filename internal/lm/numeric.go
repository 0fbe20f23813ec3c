package lm

import "math"

// Func adapts a plain function into a Model, estimating partial derivatives by
// central differences. Prefer analytic gradients where they are available.
type Func struct {
	N int
	F func(t float64, p []float64) float64
}

func (f Func) NumParams() int                      { return f.N }
func (f Func) Eval(t float64, p []float64) float64 { return f.F(t, p) }

func (f Func) Grad(t float64, p []float64, dst []float64) {
	NumericGrad(f.F, t, p, dst)
}

// NumericGrad writes central-difference partials of fn at (t, p) into dst.
func NumericGrad(fn func(t float64, p []float64) float64, t float64, p []float64, dst []float64) {
	q := append([]float64(nil), p...)
	for j := range p {
		h := 1e-6 * math.Max(1, math.Abs(p[j]))
		q[j] = p[j] + h
		up := fn(t, q)
		q[j] = p[j] - h
		down := fn(t, q)
		q[j] = p[j]
		dst[j] = (up - down) / (2 * h)
	}
}

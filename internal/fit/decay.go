package fit

import (
	"math"

	"decay-fit/internal/lm"
	"decay-fit/internal/model"
)

// MinDecayTime is the smallest |decay time| the solver may step to.
const MinDecayTime = 1e-9

// DecayModel is value(t) = baseline + amplitude·exp(−(t − Offset)/decayTime).
//
// Parameter layout is [baseline, amplitude, decayTime] in FreeBaseline mode and
// [amplitude, decayTime] in FixedBaseline mode, where baseline is held at 0 and
// has no Jacobian column.
type DecayModel struct {
	Mode   model.FitMode
	Offset float64
}

var (
	_ lm.Model     = DecayModel{}
	_ lm.Validator = DecayModel{}
)

func (d DecayModel) NumParams() int {
	if d.Mode == model.FixedBaseline {
		return 2
	}
	return 3
}

func (d DecayModel) split(p []float64) (baseline, amplitude, tau float64) {
	if d.Mode == model.FixedBaseline {
		return model.FixedBaselineValue, p[0], p[1]
	}
	return p[0], p[1], p[2]
}

func (d DecayModel) Eval(t float64, p []float64) float64 {
	y0, a, tau := d.split(p)
	return y0 + a*math.Exp(-(t-d.Offset)/tau)
}

func (d DecayModel) Grad(t float64, p []float64, dst []float64) {
	_, a, tau := d.split(p)
	dt := t - d.Offset
	e := math.Exp(-dt / tau)
	dTau := a * e * dt / (tau * tau)
	if d.Mode == model.FixedBaseline {
		dst[0] = e
		dst[1] = dTau
		return
	}
	dst[0] = 1
	dst[1] = e
	dst[2] = dTau
}

// Valid rejects decay times that collapse toward zero.
func (d DecayModel) Valid(p []float64) bool {
	_, _, tau := d.split(p)
	return math.Abs(tau) >= MinDecayTime
}

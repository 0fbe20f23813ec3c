package fit

import (
	"fmt"
	"math"

	"decay-fit/internal/model"
)

// DefaultDecayTimeGuess is the starting decay time in seconds.
const DefaultDecayTimeGuess = 5.0

// Guess holds starting values for the solver.
type Guess struct {
	Baseline  float64
	Amplitude float64
	DecayTime float64
}

// InitialGuess derives starting values from the two boundary samples.
//
// FreeBaseline: baseline = last value, amplitude = first − last.
// FixedBaseline: baseline = 0, amplitude = first.
// Decay time is decayGuess in both modes (DefaultDecayTimeGuess when zero).
func InitialGuess(s model.SampleSeries, mode model.FitMode, decayGuess float64) (Guess, error) {
	first, ok := s.First()
	if !ok {
		return Guess{}, fmt.Errorf("%w: %s: empty series", model.ErrInsufficientData, s.Source)
	}
	last, _ := s.Last()
	if decayGuess == 0 {
		decayGuess = DefaultDecayTimeGuess
	}

	g := Guess{DecayTime: decayGuess}
	switch mode {
	case model.FixedBaseline:
		g.Baseline = model.FixedBaselineValue
		g.Amplitude = first.V - model.FixedBaselineValue
	default:
		g.Baseline = last.V
		g.Amplitude = first.V - last.V
	}
	return g, nil
}

// AtOrigin moves the amplitude, taken at the first sample, back by elapsed
// time units so the starting curve still passes through that sample.
// The guess is returned unchanged when the shift overflows.
func (g Guess) AtOrigin(elapsed float64) Guess {
	if elapsed == 0 || g.DecayTime == 0 {
		return g
	}
	a := g.Amplitude * math.Exp(elapsed/g.DecayTime)
	if math.IsInf(a, 0) || math.IsNaN(a) {
		return g
	}
	g.Amplitude = a
	return g
}

// Vector lays the guess out in DecayModel parameter order for mode.
func (g Guess) Vector(mode model.FitMode) []float64 {
	if mode == model.FixedBaseline {
		return []float64{g.Amplitude, g.DecayTime}
	}
	return []float64{g.Baseline, g.Amplitude, g.DecayTime}
}

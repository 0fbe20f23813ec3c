package model

import "math"

// ParamEstimate is the fitted value of one parameter.
// StdErrKnown is false when the covariance could not be estimated
// (singular normal matrix, or no residual degrees of freedom).
type ParamEstimate struct {
	Role        Role
	Name        string
	Value       float64
	StdErr      float64
	StdErrKnown bool
}

// FitResult is the outcome of one successful solver run for a source.
type FitResult struct {
	Mode FitMode

	// Baseline is nil in FixedBaseline mode.
	Baseline  *ParamEstimate
	Amplitude ParamEstimate
	DecayTime ParamEstimate

	RSquared   float64
	SSR        float64
	Iterations int

	// Converged is false when the solver stopped at its iteration or time cap.
	// The estimates are then the best point reached.
	Converged bool
}

// BaselineValue returns the fitted baseline, or the clamp value in fixed mode.
func (r FitResult) BaselineValue() float64 {
	if r.Baseline == nil {
		return FixedBaselineValue
	}
	return r.Baseline.Value
}

// Predict evaluates the fitted curve at elapsed time dt since the window start.
func (r FitResult) Predict(dt float64) float64 {
	return r.BaselineValue() + r.Amplitude.Value*math.Exp(-dt/r.DecayTime.Value)
}

// Record flags.
const (
	FlagNone         = ""
	FlagNotConverged = "not_converged"
)

// BatchRecord is one row of the result table.
// Records are created once per recorded source and never mutated after being
// appended to a table.
type BatchRecord struct {
	Source string
	Result FitResult
	Flag   string
}

func (b BatchRecord) Marker() string { return b.Result.Mode.Marker() }

// ResultTable is the ordered set of records for one batch run.
type ResultTable struct {
	Mode    FitMode
	Records []BatchRecord
}

func (t ResultTable) Len() int { return len(t.Records) }

// HasFlags reports whether any record carries a flag.
func (t ResultTable) HasFlags() bool {
	for _, r := range t.Records {
		if r.Flag != FlagNone {
			return true
		}
	}
	return false
}

package fit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"decay-fit/internal/model"
)

// Attempt is one (amplitude alias, initial guess) pairing submitted to a Fitter.
type Attempt struct {
	Alias  string
	Mode   model.FitMode
	Spec   model.ParameterSpec
	Guess  Guess
	Series model.SampleSeries
}

// Fitter runs the solver for one attempt.
type Fitter interface {
	Fit(ctx context.Context, a Attempt) (model.FitResult, error)
}

// AliasAgnostic is implemented by fitters whose result does not depend on the
// alias. When the first alias does not converge, the others would repeat the
// same solve, so Resolve stops there.
type AliasAgnostic interface {
	AliasAgnostic() bool
}

// AttemptError records why an alias was rejected.
type AttemptError struct {
	Alias string
	Err   error
}

func (e AttemptError) Error() string { return fmt.Sprintf("%s: %v", e.Alias, e.Err) }
func (e AttemptError) Unwrap() error { return e.Err }

// errNotConverged marks an attempt whose solver run hit its cap.
var errNotConverged = errors.New("solver did not converge")

// Resolution is the outcome of Resolve.
type Resolution struct {
	Alias  string
	Result model.FitResult
	// NonConvergence is set when no alias converged and Result is the best
	// effort estimate of the first alias that produced one.
	NonConvergence bool
	// Failed lists the aliases tried before the chosen one, in order.
	Failed []AttemptError
}

// Resolver tries the amplitude aliases of a ParameterSpec in order and keeps
// the first one whose fit converges.
type Resolver struct {
	Fitter Fitter
}

func NewResolver(f Fitter) *Resolver { return &Resolver{Fitter: f} }

// Resolve returns model.ErrNoViableParameterization when every alias failed
// without producing even a best-effort estimate.
func (r *Resolver) Resolve(ctx context.Context, s model.SampleSeries, mode model.FitMode, spec model.ParameterSpec, g Guess) (Resolution, error) {
	aliases := spec.Aliases(model.RoleAmplitude)
	if len(aliases) == 0 {
		return Resolution{}, fmt.Errorf("%w: no amplitude aliases configured", model.ErrNoViableParameterization)
	}

	var (
		failed   []AttemptError
		fallback *Resolution
	)
	agnostic := false
	if a, ok := r.Fitter.(AliasAgnostic); ok {
		agnostic = a.AliasAgnostic()
	}
	for _, alias := range aliases {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}
		res, err := r.Fitter.Fit(ctx, Attempt{
			Alias:  alias,
			Mode:   mode,
			Spec:   spec,
			Guess:  g,
			Series: s,
		})
		if err != nil {
			if ctx.Err() != nil {
				return Resolution{}, ctx.Err()
			}
			failed = append(failed, AttemptError{Alias: alias, Err: err})
			continue
		}
		if !res.Converged {
			if fallback == nil {
				fallback = &Resolution{Alias: alias, Result: res, NonConvergence: true}
			}
			failed = append(failed, AttemptError{Alias: alias, Err: errNotConverged})
			if agnostic {
				break
			}
			continue
		}
		return Resolution{Alias: alias, Result: res, Failed: failed}, nil
	}

	if fallback != nil {
		fallback.Failed = failed
		return *fallback, nil
	}
	return Resolution{Failed: failed}, &ExhaustedError{Source: s.Source, Attempts: failed}
}

// ExhaustedError reports that every alias failed. It matches
// model.ErrNoViableParameterization and, when all attempts failed for the
// same reason, that reason too (e.g. model.ErrSingularJacobian).
type ExhaustedError struct {
	Source   string
	Attempts []AttemptError
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Error()
	}
	return fmt.Sprintf("%v for %s (tried %s)", model.ErrNoViableParameterization, e.Source, strings.Join(parts, "; "))
}

func (e *ExhaustedError) Is(target error) bool {
	return target == model.ErrNoViableParameterization
}

func (e *ExhaustedError) Unwrap() []error {
	out := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		out[i] = a.Err
	}
	return out
}

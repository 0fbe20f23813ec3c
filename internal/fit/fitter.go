package fit

import (
	"context"
	"errors"
	"fmt"

	"decay-fit/internal/lm"
	"decay-fit/internal/model"
)

// DecayFitter fits DecayModel with the Levenberg–Marquardt solver.
// Aliases are surface names only: every alias declared for the amplitude role
// maps onto the same model parameter.
type DecayFitter struct {
	Solver *lm.Solver
	// Origin is the time the amplitude refers to. The zero value means t = 0.
	Origin model.TimeOrigin
}

func NewDecayFitter(solver *lm.Solver) *DecayFitter {
	if solver == nil {
		solver = lm.New(lm.DefaultSettings())
	}
	return &DecayFitter{Solver: solver}
}

var (
	_ Fitter        = (*DecayFitter)(nil)
	_ AliasAgnostic = (*DecayFitter)(nil)
)

// AliasAgnostic reports true: the alias only names the estimate.
func (f *DecayFitter) AliasAgnostic() bool { return true }

func (f *DecayFitter) Fit(ctx context.Context, a Attempt) (model.FitResult, error) {
	if err := ctx.Err(); err != nil {
		return model.FitResult{}, err
	}
	if !a.Spec.Has(model.RoleAmplitude, a.Alias) {
		return model.FitResult{}, fmt.Errorf("%w: %q", model.ErrUnknownAlias, a.Alias)
	}

	start := a.Series.MinTime()
	m := DecayModel{Mode: a.Mode, Offset: f.Origin.Offset(start)}
	res, err := f.Solver.Fit(m, a.Series.Times(), a.Series.Values(), a.Guess.AtOrigin(start-m.Offset).Vector(a.Mode))
	if err != nil {
		if errors.Is(err, lm.ErrSingular) {
			return model.FitResult{}, fmt.Errorf("%w: %w", model.ErrSingularJacobian, err)
		}
		return model.FitResult{}, err
	}

	est := func(role model.Role, name string, idx int) model.ParamEstimate {
		return model.ParamEstimate{
			Role:        role,
			Name:        name,
			Value:       res.Params[idx],
			StdErr:      res.StdErr[idx],
			StdErrKnown: res.StdErrKnown,
		}
	}

	out := model.FitResult{
		Mode:       a.Mode,
		RSquared:   res.RSquared,
		SSR:        res.SSR,
		Iterations: res.Iterations,
		Converged:  res.Converged,
	}
	decayName := a.Spec.Canonical(model.RoleDecayTime)
	if a.Mode == model.FixedBaseline {
		out.Amplitude = est(model.RoleAmplitude, a.Alias, 0)
		out.DecayTime = est(model.RoleDecayTime, decayName, 1)
	} else {
		b := est(model.RoleBaseline, a.Spec.Canonical(model.RoleBaseline), 0)
		out.Baseline = &b
		out.Amplitude = est(model.RoleAmplitude, a.Alias, 1)
		out.DecayTime = est(model.RoleDecayTime, decayName, 2)
	}
	return out, nil
}

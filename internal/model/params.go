package model

import (
	"errors"
	"fmt"
)

// Role is the canonical identity of a model parameter, independent of how a
// particular fitting configuration names it.
type Role string

const (
	RoleBaseline  Role = "baseline"
	RoleAmplitude Role = "amplitude"
	RoleDecayTime Role = "decayTime"
)

// ParameterSpec maps each role to its ordered list of accepted surface names.
// Only the amplitude role carries more than one alias for fitting; decay time
// aliases are kept so results produced under either name can be looked up.
type ParameterSpec map[Role][]string

// DefaultParameterSpec returns the alias lists historically used by the
// ExpDecay1 fitting function.
func DefaultParameterSpec() ParameterSpec {
	return ParameterSpec{
		RoleBaseline:  {"y0"},
		RoleAmplitude: {"A", "A1", "amplitude"},
		RoleDecayTime: {"t1", "tau1"},
	}
}

// Aliases returns the alias list for a role (nil when absent).
func (p ParameterSpec) Aliases(r Role) []string {
	return p[r]
}

// Canonical returns the first alias for a role, or the role name itself.
func (p ParameterSpec) Canonical(r Role) string {
	if a := p[r]; len(a) > 0 {
		return a[0]
	}
	return string(r)
}

// Has reports whether name is one of the aliases declared for r.
func (p ParameterSpec) Has(r Role, name string) bool {
	for _, a := range p[r] {
		if a == name {
			return true
		}
	}
	return false
}

// Validate checks that every role used by mode has at least one non-empty alias.
func (p ParameterSpec) Validate(mode FitMode) error {
	if p == nil {
		return errors.New("parameter spec is nil")
	}
	for _, r := range mode.Roles() {
		aliases := p[r]
		if len(aliases) == 0 {
			return fmt.Errorf("parameter %s: alias list must not be empty", r)
		}
		for i, a := range aliases {
			if a == "" {
				return fmt.Errorf("parameter %s: alias %d is empty", r, i)
			}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (p ParameterSpec) Clone() ParameterSpec {
	out := make(ParameterSpec, len(p))
	for r, a := range p {
		out[r] = append([]string(nil), a...)
	}
	return out
}

package model

import (
	"fmt"
	"strings"
)

// FitMode selects which parameters the solver adjusts.
// Keep these values stable; they are used in config files, CSV output and the API.
type FitMode string

const (
	// FreeBaseline fits baseline, amplitude and decay time.
	FreeBaseline FitMode = "free"
	// FixedBaseline clamps the baseline to 0 and fits amplitude and decay time.
	FixedBaseline FitMode = "fixed"
)

// FixedBaselineValue is the value the baseline is clamped to in FixedBaseline mode.
const FixedBaselineValue = 0.0

func ParseFitMode(s string) (FitMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "free", "free_baseline", "freebaseline":
		return FreeBaseline, nil
	case "fixed", "fixed_baseline", "fixedbaseline", "fixed_y0":
		return FixedBaseline, nil
	default:
		return "", fmt.Errorf("unsupported fit mode: %q", s)
	}
}

// Roles returns the parameter roles the solver adjusts in this mode, in solver order.
func (m FitMode) Roles() []Role {
	if m == FixedBaseline {
		return []Role{RoleAmplitude, RoleDecayTime}
	}
	return []Role{RoleBaseline, RoleAmplitude, RoleDecayTime}
}

// Marker is the human readable note attached to records of this mode.
func (m FitMode) Marker() string {
	if m == FixedBaseline {
		return "Fixed_y0 = 0"
	}
	return ""
}

// TimeOrigin is the time at which the amplitude is measured.
type TimeOrigin string

const (
	// OriginZero evaluates the decay on absolute time, so the amplitude is the
	// excess over baseline at t = 0.
	OriginZero TimeOrigin = "zero"
	// OriginWindowStart measures time from the first windowed sample.
	OriginWindowStart TimeOrigin = "window_start"
)

func ParseTimeOrigin(s string) (TimeOrigin, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zero", "absolute":
		return OriginZero, nil
	case "window_start", "window", "start":
		return OriginWindowStart, nil
	default:
		return "", fmt.Errorf("unsupported time offset: %q", s)
	}
}

// Offset returns the value subtracted from sample times, given the first
// windowed time.
func (o TimeOrigin) Offset(windowStart float64) float64 {
	if o == OriginWindowStart {
		return windowStart
	}
	return 0
}

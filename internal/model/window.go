package model

import (
	"fmt"
	"strconv"
)

// TimeWindow is a closed interval [Min, Max] on the time axis.
// A nil Max means the window is unbounded above.
type TimeWindow struct {
	Min float64
	Max *float64
}

// Bounded returns the window [min, max].
func Bounded(min, max float64) TimeWindow {
	return TimeWindow{Min: min, Max: &max}
}

// From returns the window [min, ∞).
func From(min float64) TimeWindow {
	return TimeWindow{Min: min}
}

func (w TimeWindow) Unbounded() bool { return w.Max == nil }

func (w TimeWindow) Contains(t float64) bool {
	if t < w.Min {
		return false
	}
	return w.Max == nil || t <= *w.Max
}

func (w TimeWindow) Validate() error {
	if w.Max != nil && *w.Max < w.Min {
		return fmt.Errorf("time window max %g is below min %g", *w.Max, w.Min)
	}
	return nil
}

func (w TimeWindow) String() string {
	max := "inf"
	if w.Max != nil {
		max = strconv.FormatFloat(*w.Max, 'g', -1, 64)
	}
	return fmt.Sprintf("[%s, %s]", strconv.FormatFloat(w.Min, 'g', -1, 64), max)
}

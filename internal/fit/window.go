package fit

import (
	"fmt"

	"decay-fit/internal/model"
)

// DefaultMinPoints is the smallest number of samples a window must retain.
const DefaultMinPoints = 10

// ValidateSchema checks that a series names its time and value columns and
// that its time axis never decreases.
func ValidateSchema(s model.SampleSeries) error {
	if s.TimeColumn == "" {
		return fmt.Errorf("%w: %s: missing time column", model.ErrSchema, s.Source)
	}
	if s.ValueColumn == "" {
		return fmt.Errorf("%w: %s: missing value column", model.ErrSchema, s.Source)
	}
	for i := 1; i < len(s.Samples); i++ {
		if s.Samples[i].T < s.Samples[i-1].T {
			return fmt.Errorf("%w: %s: time axis decreases at row %d (%g after %g)",
				model.ErrSchema, s.Source, i, s.Samples[i].T, s.Samples[i-1].T)
		}
	}
	return nil
}

// Window returns the samples of s whose time lies in w, in their original order.
// It fails with model.ErrInsufficientData when fewer than minPoints remain
// (minPoints <= 0 selects DefaultMinPoints).
func Window(s model.SampleSeries, w model.TimeWindow, minPoints int) (model.SampleSeries, error) {
	if minPoints <= 0 {
		minPoints = DefaultMinPoints
	}
	kept := make([]model.Sample, 0, len(s.Samples))
	for _, p := range s.Samples {
		if w.Contains(p.T) {
			kept = append(kept, p)
		}
	}
	if len(kept) < minPoints {
		return model.SampleSeries{}, fmt.Errorf("%w: %s: %d points in %s, need %d",
			model.ErrInsufficientData, s.Source, len(kept), w, minPoints)
	}
	return s.WithSamples(kept), nil
}

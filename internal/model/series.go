package model

import "math"

// Sample is one (time, value) observation.
// Time is in seconds; the value unit is whatever the source column measures.
type Sample struct {
	T float64
	V float64
}

// SampleSeries holds the observations read from one source (typically one CSV file).
//
// Series are treated as immutable: filtering produces a new series and leaves the
// receiver untouched.
type SampleSeries struct {
	Source      string
	TimeColumn  string
	ValueColumn string
	Samples     []Sample
}

func (s SampleSeries) Len() int { return len(s.Samples) }

// First returns the first sample. ok is false on an empty series.
func (s SampleSeries) First() (Sample, bool) {
	if len(s.Samples) == 0 {
		return Sample{}, false
	}
	return s.Samples[0], true
}

// Last returns the last sample. ok is false on an empty series.
func (s SampleSeries) Last() (Sample, bool) {
	if len(s.Samples) == 0 {
		return Sample{}, false
	}
	return s.Samples[len(s.Samples)-1], true
}

// MinTime returns the smallest time value, or NaN for an empty series.
func (s SampleSeries) MinTime() float64 {
	if len(s.Samples) == 0 {
		return math.NaN()
	}
	m := s.Samples[0].T
	for _, p := range s.Samples[1:] {
		if p.T < m {
			m = p.T
		}
	}
	return m
}

// Times returns a copy of the time column.
func (s SampleSeries) Times() []float64 {
	out := make([]float64, len(s.Samples))
	for i, p := range s.Samples {
		out[i] = p.T
	}
	return out
}

// Values returns a copy of the value column.
func (s SampleSeries) Values() []float64 {
	out := make([]float64, len(s.Samples))
	for i, p := range s.Samples {
		out[i] = p.V
	}
	return out
}

// WithSamples returns a copy of s carrying the given samples.
func (s SampleSeries) WithSamples(samples []Sample) SampleSeries {
	out := s
	out.Samples = samples
	return out
}

// NewSeries builds a series from parallel time/value slices.
// The shorter slice bounds the number of samples.
func NewSeries(source string, times, values []float64) SampleSeries {
	n := len(times)
	if len(values) < n {
		n = len(values)
	}
	samples := make([]Sample, n)
	for i := 0; i < n; i++ {
		samples[i] = Sample{T: times[i], V: values[i]}
	}
	return SampleSeries{
		Source:      source,
		TimeColumn:  DefaultTimeColumn,
		ValueColumn: "value",
		Samples:     samples,
	}
}

// DefaultTimeColumn is the header name the instrument exports use for the time axis.
const DefaultTimeColumn = "Time (s)"

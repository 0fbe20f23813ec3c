package analysis

import (
	"math"
	"sort"

	"decay-fit/internal/model"
)

// Stat is a distribution summary of one fitted quantity across a batch.
type Stat struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
	P05    float64
	Median float64
	P95    float64
}

// Summary describes a result table as a whole. It does not depend on the
// order of records.
type Summary struct {
	Mode         model.FitMode
	Count        int
	NotConverged int

	DecayTime Stat
	Amplitude Stat
	// Baseline is empty (Count == 0) in fixed-baseline mode.
	Baseline Stat
	RSquared Stat

	// Iterations is the mean solver iteration count.
	Iterations float64
}

func Summarize(table model.ResultTable) Summary {
	s := Summary{Mode: table.Mode, Count: len(table.Records)}
	if s.Count == 0 {
		return s
	}

	var tau, amp, base, r2 []float64
	iters := 0
	for _, r := range table.Records {
		if r.Flag == model.FlagNotConverged {
			s.NotConverged++
		}
		tau = append(tau, r.Result.DecayTime.Value)
		amp = append(amp, r.Result.Amplitude.Value)
		if r.Result.Baseline != nil {
			base = append(base, r.Result.Baseline.Value)
		}
		r2 = append(r2, r.Result.RSquared)
		iters += r.Result.Iterations
	}
	s.DecayTime = computeStat(tau)
	s.Amplitude = computeStat(amp)
	s.Baseline = computeStat(base)
	s.RSquared = computeStat(r2)
	s.Iterations = float64(iters) / float64(s.Count)
	return s
}

func computeStat(vals []float64) Stat {
	st := Stat{Count: len(vals)}
	if len(vals) == 0 {
		return st
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	st.Min = sorted[0]
	st.Max = sorted[len(sorted)-1]
	st.Mean = sum / float64(len(sorted))

	if len(sorted) > 1 {
		ss := 0.0
		for _, v := range sorted {
			d := v - st.Mean
			ss += d * d
		}
		st.StdDev = math.Sqrt(ss / float64(len(sorted)-1))
	}

	st.P05 = percentileSorted(sorted, 0.05)
	st.Median = percentileSorted(sorted, 0.5)
	st.P95 = percentileSorted(sorted, 0.95)
	return st
}

func percentileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	// Linear interpolation between order stats.
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

package volatility

import (
	"sort"

	"VolPulse/internal/domain/models"
)

// Analyzer turns a raw volatility-index stream into percentile, range-rank
// and trend-slope metrics. It owns a time-bounded sample window and a
// length-bounded historical series; both are replaced or trimmed by the
// caller's cycle, never shared across goroutines.
type Analyzer struct {
	lookback      int     // historical series cap, entries
	windowSeconds float64 // sliding window retention

	window  []models.TimedSample
	history []float64
}

// NewAnalyzer creates an Analyzer with the given history cap and window
// retention in hours.
func NewAnalyzer(lookbackDays, windowHours int) *Analyzer {
	return &Analyzer{
		lookback:      lookbackDays,
		windowSeconds: float64(windowHours) * 3600,
	}
}

// SetHistory replaces the historical series wholesale, keeping only the
// last lookback entries.
func (a *Analyzer) SetHistory(values []float64) {
	if len(values) > a.lookback {
		values = values[len(values)-a.lookback:]
	}
	a.history = append(a.history[:0], values...)
}

// AddSample appends one (timestamp, value) observation and trims samples
// older than the retention bound. Timestamps are epoch seconds, assumed
// monotonic non-decreasing.
func (a *Analyzer) AddSample(ts, value float64) {
	a.window = append(a.window, models.TimedSample{TS: ts, Value: value})
	cutoff := ts - a.windowSeconds
	i := 0
	for i < len(a.window) && a.window[i].TS < cutoff {
		i++
	}
	if i > 0 {
		a.window = a.window[i:]
	}
}

// WindowLen reports the current number of windowed samples.
func (a *Analyzer) WindowLen() int {
	return len(a.window)
}

// ComputeMetrics derives IVR, IVP and slope for current. When current is
// nil the latest windowed sample is used; with no sample at all every
// output is undefined.
func (a *Analyzer) ComputeMetrics(current *float64) models.IVMetrics {
	if current == nil && len(a.window) > 0 {
		v := a.window[len(a.window)-1].Value
		current = &v
	}
	return models.IVMetrics{
		IVR:   a.rangeRank(current),
		IVP:   a.percentileRank(current),
		Slope: a.slope(),
	}
}

// rangeRank positions current within the historical min-max range as a
// percentage, clamped to [0,100]. A flat history yields 0 rather than a
// division by zero.
func (a *Analyzer) rangeRank(current *float64) *float64 {
	if current == nil || len(a.history) == 0 {
		return nil
	}
	lo, hi := a.history[0], a.history[0]
	for _, v := range a.history[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	var ivr float64
	if hi == lo {
		ivr = 0
	} else {
		ivr = (*current - lo) / (hi - lo) * 100
		if ivr < 0 {
			ivr = 0
		}
		if ivr > 100 {
			ivr = 100
		}
	}
	return &ivr
}

// percentileRank ranks current within the sorted history with mid-rank
// tie handling: ties at the exact value average the exclusive and
// inclusive ranks.
func (a *Analyzer) percentileRank(current *float64) *float64 {
	if current == nil || len(a.history) == 0 {
		return nil
	}
	sorted := append([]float64(nil), a.history...)
	sort.Float64s(sorted)

	left := sort.SearchFloat64s(sorted, *current)
	right := sort.Search(len(sorted), func(i int) bool { return sorted[i] > *current })

	var rank float64
	if left == right {
		rank = float64(right)
	} else {
		rank = float64(left+1+right) / 2
	}
	ivp := rank / float64(len(sorted)) * 100
	return &ivp
}

// slope is the OLS linear fit of windowed values against seconds elapsed
// since the first sample. Nil under two samples, 0 on a degenerate
// x-range.
func (a *Analyzer) slope() *float64 {
	n := len(a.window)
	if n < 2 {
		return nil
	}
	t0 := a.window[0].TS
	if a.window[n-1].TS == t0 {
		zero := 0.0
		return &zero
	}

	var sumX, sumY, sumXY, sumXX float64
	for _, s := range a.window {
		x := s.TS - t0
		sumX += x
		sumY += s.Value
		sumXY += x * s.Value
		sumXX += x * x
	}
	fn := float64(n)
	slope := (fn*sumXY - sumX*sumY) / (fn*sumXX - sumX*sumX)
	return &slope
}

package backtest

import (
	"errors"
	"math"
)

// Config parameterizes the offline panic+pulse backtest.
type Config struct {
	PriceDropThreshold1h float64 // entry when 1h spot change <= this
	DVOLPulseThreshold1h float64 // and 1h DVOL change >= this
	HoldHours            int
	FeeBpsRoundTrip      float64
}

// DefaultConfig mirrors the live entry rule.
func DefaultConfig() Config {
	return Config{
		PriceDropThreshold1h: -0.03,
		DVOLPulseThreshold1h: 0.10,
		HoldHours:            24,
		FeeBpsRoundTrip:      10,
	}
}

// Bar is one hourly observation.
type Bar struct {
	Spot float64
	DVOL float64
}

// Result summarizes the simulated trades.
type Result struct {
	Trades           int
	WinRate          float64
	AvgReturn        float64
	CumulativeReturn float64
}

// ErrMissingSeries is returned when the input series is unusable.
var ErrMissingSeries = errors.New("backtest: series needs spot and dvol bars")

// GenerateSignal marks hours where the panic+pulse entry condition holds:
// a one-hour spot drop through the threshold with a simultaneous DVOL
// expansion. The first bar has no lag and never signals.
func GenerateSignal(bars []Bar, cfg Config) []bool {
	signal := make([]bool, len(bars))
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1]
		if prev.Spot == 0 || prev.DVOL == 0 {
			continue
		}
		spotChg := (bars[i].Spot - prev.Spot) / prev.Spot
		dvolChg := (bars[i].DVOL - prev.DVOL) / prev.DVOL
		signal[i] = spotChg <= cfg.PriceDropThreshold1h && dvolChg >= cfg.DVOLPulseThreshold1h
	}
	return signal
}

// Run simulates entering at each signal bar and holding HoldHours, net of
// a crude round-trip fee. Signals without a complete forward window are
// discarded.
func Run(bars []Bar, cfg Config) (Result, error) {
	if len(bars) == 0 {
		return Result{}, ErrMissingSeries
	}

	signal := GenerateSignal(bars, cfg)
	cost := cfg.FeeBpsRoundTrip / 10000.0

	var tradeRets []float64
	for i, fire := range signal {
		if !fire || i+cfg.HoldHours >= len(bars) {
			continue
		}
		entry := bars[i].Spot
		if entry == 0 {
			continue
		}
		exit := bars[i+cfg.HoldHours].Spot
		tradeRets = append(tradeRets, (exit-entry)/entry-cost)
	}

	if len(tradeRets) == 0 {
		return Result{}, nil
	}

	wins := 0
	sum := 0.0
	cumulative := 1.0
	for _, r := range tradeRets {
		if r > 0 {
			wins++
		}
		sum += r
		cumulative *= 1 + r
	}
	return Result{
		Trades:           len(tradeRets),
		WinRate:          float64(wins) / float64(len(tradeRets)),
		AvgReturn:        sum / float64(len(tradeRets)),
		CumulativeReturn: cumulative - 1,
	}, nil
}

// Sharpe-free sanity metric used in reports: max drawdown of the equity
// curve implied by the trade sequence.
func MaxDrawdown(tradeReturns []float64) float64 {
	equity := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range tradeReturns {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if dd := equity/peak - 1; dd < maxDD {
			maxDD = dd
		}
	}
	return math.Abs(maxDD)
}

package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestEngine() *Engine {
	return NewEngine(22000, Limits{MaxSingleBTC: 0.10, MaxTotalBTC: 0.20})
}

func TestMaxContractsAllowed(t *testing.T) {
	e := newTestEngine()

	tests := []struct {
		name string
		open float64
		want float64
	}{
		{"no open positions", 0, 0.10},
		{"headroom above single cap", 0.05, 0.10},
		{"headroom below single cap", 0.15, 0.05},
		{"aggregate cap reached", 0.20, 0},
		{"aggregate cap exceeded", 0.25, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, e.MaxContractsAllowed(tt.open), 1e-9)
		})
	}
}

func TestEstimateMarginAndDrawdownOTM(t *testing.T) {
	e := newTestEngine()

	// Strike below spot: no intrinsic buffer.
	// riskFactor = 0.12 + 0.4*0.75 = 0.42
	// marginPerBTC = 70000*0.42 + 0.013*70000 = 30310
	report := e.EstimateMarginAndDrawdown(70000, 60000, 0.013, 0.75, 0.10)

	assert.InDelta(t, 0.10, report.MaxContracts, 1e-9)
	assert.InDelta(t, 3031, report.EstMarginBase, 1e-6)
	// Shock iv 0.90: riskFactor 0.48 -> 34510 per BTC.
	assert.InDelta(t, 3451, report.EstMarginShock, 1e-6)
	// Premium collected: 0.013*70000*0.10 = 91 USD.
	assert.InDelta(t, 3031-91, report.EstDrawdownUSD, 1e-6)
}

func TestEstimateMarginITMBuffer(t *testing.T) {
	e := newTestEngine()

	// Strike above spot adds (strike-spot)/spot to the risk factor.
	otm := e.EstimateMarginAndDrawdown(70000, 60000, 0.013, 0.75, 0.10)
	itm := e.EstimateMarginAndDrawdown(70000, 77000, 0.013, 0.75, 0.10)

	// Buffer 0.10 adds 70000*0.10*0.10 = 700 USD of margin.
	assert.InDelta(t, otm.EstMarginBase+700, itm.EstMarginBase, 1e-6)
}

func TestEstimateDrawdownCappedAtBalance(t *testing.T) {
	e := NewEngine(1000, Limits{MaxSingleBTC: 0.10, MaxTotalBTC: 0.20})

	report := e.EstimateMarginAndDrawdown(70000, 60000, 0.013, 0.75, 0.10)
	assert.InDelta(t, 1000, report.EstDrawdownUSD, 1e-9)
}

func TestMarginUtilization(t *testing.T) {
	e := newTestEngine()
	assert.InDelta(t, 0.5, e.MarginUtilization(11000), 1e-9)

	empty := NewEngine(0, Limits{})
	assert.Zero(t, empty.MarginUtilization(5000))
}

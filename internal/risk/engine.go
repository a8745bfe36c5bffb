package risk

// Limits defines static position-size configuration.
type Limits struct {
	MaxSingleBTC float64 // max size of one position, BTC notional
	MaxTotalBTC  float64 // max aggregate size across positions
}

// Report is the derived sizing and margin estimate for one candidate.
type Report struct {
	MaxContracts   float64 // allowed size, BTC notional
	EstMarginBase  float64 // maintenance margin estimate, USD
	EstMarginShock float64 // same formula under a 1.2x IV spike
	EstDrawdownUSD float64 // capped at account balance
}

// Engine derives position-size caps and margin/drawdown estimates.
// Stateless; every output is recomputed from its inputs.
type Engine struct {
	accountBalance float64
	limits         Limits
}

// NewEngine creates an Engine.
func NewEngine(accountBalanceUSD float64, limits Limits) *Engine {
	return &Engine{accountBalance: accountBalanceUSD, limits: limits}
}

// MaxContractsAllowed caps a new position by the per-position limit and
// by what remains of the aggregate limit, floored at zero.
func (e *Engine) MaxContractsAllowed(openContractsBTC float64) float64 {
	remaining := e.limits.MaxTotalBTC - openContractsBTC
	if remaining < 0 {
		remaining = 0
	}
	allowed := e.limits.MaxSingleBTC
	if remaining < allowed {
		allowed = remaining
	}
	if allowed < 0 {
		return 0
	}
	return allowed
}

// EstimateMarginAndDrawdown estimates maintenance margin for a short put
// of the given size, the same margin under a 1.2x IV shock, and the
// drawdown net of collected premium, capped at the account balance.
func (e *Engine) EstimateMarginAndDrawdown(spot, strike, premiumBTC, iv, contractsBTC float64) Report {
	premiumUSD := premiumBTC * spot * contractsBTC
	base := maintenanceMargin(spot, strike, premiumBTC, iv, contractsBTC)
	shock := maintenanceMargin(spot, strike, premiumBTC, iv*1.2, contractsBTC)

	drawdown := base - premiumUSD
	if drawdown > e.accountBalance {
		drawdown = e.accountBalance
	}
	return Report{
		MaxContracts:   contractsBTC,
		EstMarginBase:  base,
		EstMarginShock: shock,
		EstDrawdownUSD: drawdown,
	}
}

// MarginUtilization relates a margin requirement to the account balance.
func (e *Engine) MarginUtilization(marginUSD float64) float64 {
	if e.accountBalance <= 0 {
		return 0
	}
	return marginUSD / e.accountBalance
}

// maintenanceMargin approximates the exchange formula: a 12% floor plus an
// IV-scaled component plus the in-the-money buffer, plus the premium.
func maintenanceMargin(spot, strike, premiumBTC, iv, contractsBTC float64) float64 {
	intrinsicBuffer := 0.0
	if strike > spot {
		intrinsicBuffer = (strike - spot) / spot
	}
	riskFactor := 0.12 + 0.4*iv + intrinsicBuffer
	marginPerBTC := spot*riskFactor + premiumBTC*spot
	return marginPerBTC * contractsBTC
}

package models

// IVMetrics holds the on-demand outputs of the rolling statistics engine.
// Nil means the metric is undefined for the current state (no history,
// fewer than two windowed samples, and so on).
type IVMetrics struct {
	IVR   *float64 // min-max range rank, percent in [0,100]
	IVP   *float64 // percentile rank, percent in [0,100]
	Slope *float64 // DVOL points per second over the window
}

// OptionCandidate is a scanner survivor enriched with derived context.
// Value object, recomputed every cycle, never persisted.
type OptionCandidate struct {
	InstrumentName  string
	Strike          float64
	ExpirationTS    float64 // epoch seconds
	Delta           float64
	MarkIV          float64
	Bid             float64
	Ask             float64
	DTEDays         float64
	PremiumBTC      float64 // mid price
	AnnualizedYield float64
	SafetyMargin    float64 // (spot - strike) / spot
	VRP             float64 // mark IV minus realized vol
}

// Skew signal classifications.
const (
	SkewSignalBearishPutPremium = "bearish_put_premium"
	SkewSignalCallsRich         = "fomo_calls_rich"
	SkewSignalNeutral           = "neutral"
	SignalInsufficientData      = "insufficient_data"
)

// SkewReport is the put-call skew analysis for one expiry.
type SkewReport struct {
	Skew         *float64
	Signal       string
	PricingError bool
	SkewZ        *float64
}

// Term-structure signal classifications.
const (
	TermSignalNearTermPulse = "near_term_pulse"
	TermSignalNormalCarry   = "normal_carry"
)

// TermStructureReport compares implied vol at a near and a far expiry.
type TermStructureReport struct {
	IVSpread *float64 // near minus far
	Signal   string
	NearIV   *float64
	FarIV    *float64
}

package models

// OptionType distinguishes puts from calls.
type OptionType string

const (
	OptionPut  OptionType = "put"
	OptionCall OptionType = "call"
)

// OptionQuote is a single live option quote as returned by the exchange.
// Delta and MarkIV may be absent from the payload; absence is represented
// as nil, never as a zero that looks like real data.
type OptionQuote struct {
	InstrumentName string
	Strike         float64
	OptionType     OptionType
	ExpirationTS   int64 // epoch milliseconds
	Delta          *float64
	MarkIV         *float64 // fraction, e.g. 0.75
	Bid            float64  // quote-currency units (BTC)
	Ask            float64
}

// MarketSnapshot is the per-cycle view of the market. Produced once per
// monitor cycle and owned solely by that cycle.
type MarketSnapshot struct {
	Timestamp      float64 // epoch seconds
	SpotPrice      float64 // USD
	DVOL           float64 // annualized percentage points
	RealizedVol24h float64 // fraction
	Options        []OptionQuote
}

// TimedSample is one (timestamp, value) observation in a sliding window.
// Timestamps are epoch seconds and assumed monotonic non-decreasing.
type TimedSample struct {
	TS    float64
	Value float64
}

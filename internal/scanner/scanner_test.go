package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolPulse/internal/domain/models"
)

func fptr(v float64) *float64 { return &v }

func defaultScanner() *Scanner {
	return New(Config{DeltaMin: 0.15, DeltaMax: 0.20, DTEMinDays: 14, DTEMaxDays: 30})
}

// expMS converts days-from-now to an expiration timestamp in epoch ms,
// anchored at nowTS=0 for readability.
func expMS(days float64) int64 {
	return int64(days * 86400 * 1000)
}

func putQuote(name string, strike, delta, iv, bid, ask float64, dteDays float64) models.OptionQuote {
	return models.OptionQuote{
		InstrumentName: name,
		Strike:         strike,
		OptionType:     models.OptionPut,
		ExpirationTS:   expMS(dteDays),
		Delta:          fptr(delta),
		MarkIV:         fptr(iv),
		Bid:            bid,
		Ask:            ask,
	}
}

func TestScanFilters(t *testing.T) {
	s := defaultScanner()
	quotes := []models.OptionQuote{
		putQuote("KEEP", 60000, -0.18, 0.75, 0.015, 0.017, 21),
		putQuote("DELTA-LOW", 50000, -0.10, 0.75, 0.015, 0.017, 21),
		putQuote("DELTA-HIGH", 65000, -0.30, 0.75, 0.015, 0.017, 21),
		putQuote("DTE-SHORT", 60000, -0.18, 0.75, 0.015, 0.017, 10),
		putQuote("DTE-LONG", 60000, -0.18, 0.75, 0.015, 0.017, 45),
		putQuote("NO-MID", 60000, -0.18, 0.75, 0, 0, 21),
		{
			InstrumentName: "CALL",
			OptionType:     models.OptionCall,
			ExpirationTS:   expMS(21),
			Delta:          fptr(0.18),
			MarkIV:         fptr(0.75),
			Bid:            0.015, Ask: 0.017,
		},
		{
			InstrumentName: "NO-GREEKS",
			OptionType:     models.OptionPut,
			ExpirationTS:   expMS(21),
			Bid:            0.015, Ask: 0.017,
		},
	}

	got := s.Scan(quotes, 70000, 0.5, 0)
	require.Len(t, got, 1)
	assert.Equal(t, "KEEP", got[0].InstrumentName)
}

func TestScanDeltaBandInclusive(t *testing.T) {
	s := defaultScanner()
	quotes := []models.OptionQuote{
		putQuote("LO", 60000, -0.15, 0.75, 0.01, 0.012, 21),
		putQuote("HI", 62000, -0.20, 0.75, 0.01, 0.012, 21),
	}
	assert.Len(t, s.Scan(quotes, 70000, 0.5, 0), 2)
}

func TestScanDerivedFields(t *testing.T) {
	s := defaultScanner()
	quotes := []models.OptionQuote{
		putQuote("X", 60000, -0.18, 0.75, 0.012, 0.014, 20),
	}

	got := s.Scan(quotes, 70000, 0.5, 0)
	require.Len(t, got, 1)
	c := got[0]

	assert.InDelta(t, 0.013, c.PremiumBTC, 1e-9)
	assert.InDelta(t, 20, c.DTEDays, 1e-9)
	assert.InDelta(t, 0.013*365/20, c.AnnualizedYield, 1e-9)
	assert.InDelta(t, (70000.0-60000.0)/70000.0, c.SafetyMargin, 1e-9)
	assert.InDelta(t, 0.75-0.5, c.VRP, 1e-9)
}

func TestScanOneSidedQuoteUsesBetterSide(t *testing.T) {
	s := defaultScanner()
	quotes := []models.OptionQuote{
		putQuote("ASK-ONLY", 60000, -0.18, 0.75, 0, 0.014, 20),
	}

	got := s.Scan(quotes, 70000, 0.5, 0)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.014, got[0].PremiumBTC, 1e-9)
}

func TestRankYieldThenSafety(t *testing.T) {
	candidates := []models.OptionCandidate{
		{InstrumentName: "A", AnnualizedYield: 0.20, SafetyMargin: 0.10},
		{InstrumentName: "B", AnnualizedYield: 0.25, SafetyMargin: 0.05},
		{InstrumentName: "C", AnnualizedYield: 0.20, SafetyMargin: 0.15},
	}
	Rank(candidates)

	assert.Equal(t, "B", candidates[0].InstrumentName)
	assert.Equal(t, "C", candidates[1].InstrumentName)
	assert.Equal(t, "A", candidates[2].InstrumentName)
}

func skewPair(putIV, callIV float64, dteDays float64) []models.OptionQuote {
	return []models.OptionQuote{
		putQuote("P", 60000, -0.20, putIV, 0.01, 0.012, dteDays),
		{
			InstrumentName: "C",
			OptionType:     models.OptionCall,
			ExpirationTS:   expMS(dteDays),
			Delta:          fptr(0.20),
			MarkIV:         fptr(callIV),
		},
	}
}

func TestAnalyzeSkewSignals(t *testing.T) {
	s := defaultScanner()

	tests := []struct {
		name   string
		putIV  float64
		callIV float64
		skew   float64
		signal string
	}{
		{"bearish put premium", 0.80, 0.60, 0.20, models.SkewSignalBearishPutPremium},
		{"calls rich", 0.60, 0.70, -0.10, models.SkewSignalCallsRich},
		{"neutral", 0.70, 0.60, 0.10, models.SkewSignalNeutral},
		{"boundary stays neutral", 0.75, 0.60, 0.15, models.SkewSignalNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := s.AnalyzeSkew(skewPair(tt.putIV, tt.callIV, 21), 0.20, nil)
			require.NotNil(t, report.Skew)
			assert.InDelta(t, tt.skew, *report.Skew, 1e-9)
			assert.Equal(t, tt.signal, report.Signal)
			assert.False(t, report.PricingError)
		})
	}
}

func TestAnalyzeSkewMissingSide(t *testing.T) {
	s := defaultScanner()
	report := s.AnalyzeSkew([]models.OptionQuote{
		putQuote("P", 60000, -0.20, 0.75, 0.01, 0.012, 21),
	}, 0.20, nil)

	assert.Nil(t, report.Skew)
	assert.Equal(t, models.SignalInsufficientData, report.Signal)
}

func TestAnalyzeSkewZScoreFlagsPricingError(t *testing.T) {
	s := defaultScanner()
	history := []float64{0.05, 0.06, 0.04, 0.05, 0.07}

	report := s.AnalyzeSkew(skewPair(0.80, 0.60, 21), 0.20, history)
	require.NotNil(t, report.Skew)
	require.NotNil(t, report.SkewZ)
	assert.Greater(t, *report.SkewZ, 2.0)
	assert.True(t, report.PricingError)
}

func TestAnalyzeSkewZScoreNeedsFiveSamples(t *testing.T) {
	s := defaultScanner()
	report := s.AnalyzeSkew(skewPair(0.80, 0.60, 21), 0.20, []float64{0.05, 0.06, 0.04, 0.05})

	assert.Nil(t, report.SkewZ)
	assert.False(t, report.PricingError)
}

func TestAnalyzeSkewPicksNearestExpiry(t *testing.T) {
	s := defaultScanner()
	quotes := append(skewPair(0.90, 0.60, 14), skewPair(0.70, 0.60, 28)...)

	report := s.AnalyzeSkew(quotes, 0.20, nil)
	require.NotNil(t, report.Skew)
	// The 14d pair wins regardless of input order.
	assert.InDelta(t, 0.30, *report.Skew, 1e-9)

	reversed := append(skewPair(0.70, 0.60, 28), skewPair(0.90, 0.60, 14)...)
	again := s.AnalyzeSkew(reversed, 0.20, nil)
	require.NotNil(t, again.Skew)
	assert.InDelta(t, 0.30, *again.Skew, 1e-9)
}

func TestAnalyzeSkewNearestDeltaPerSide(t *testing.T) {
	s := defaultScanner()
	quotes := []models.OptionQuote{
		putQuote("FAR", 50000, -0.35, 0.95, 0.01, 0.012, 21),
		putQuote("NEAR", 60000, -0.21, 0.80, 0.01, 0.012, 21),
		{
			InstrumentName: "C",
			OptionType:     models.OptionCall,
			ExpirationTS:   expMS(21),
			Delta:          fptr(0.19),
			MarkIV:         fptr(0.60),
		},
	}

	report := s.AnalyzeSkew(quotes, 0.20, nil)
	require.NotNil(t, report.Skew)
	assert.InDelta(t, 0.20, *report.Skew, 1e-9)
}

func termQuote(iv, dteDays float64) models.OptionQuote {
	return models.OptionQuote{
		InstrumentName: "T",
		OptionType:     models.OptionPut,
		ExpirationTS:   expMS(dteDays),
		MarkIV:         fptr(iv),
	}
}

func TestAnalyzeTermStructureNearTermPulse(t *testing.T) {
	s := defaultScanner()
	quotes := []models.OptionQuote{
		termQuote(0.90, 7),
		termQuote(0.80, 8),
		termQuote(0.60, 30),
	}

	report := s.AnalyzeTermStructure(quotes, 7, 30, 0)
	require.NotNil(t, report.IVSpread)
	assert.InDelta(t, 0.85-0.60, *report.IVSpread, 1e-9)
	assert.Equal(t, models.TermSignalNearTermPulse, report.Signal)
}

func TestAnalyzeTermStructureNormalCarry(t *testing.T) {
	s := defaultScanner()
	quotes := []models.OptionQuote{
		termQuote(0.55, 7),
		termQuote(0.70, 30),
	}

	report := s.AnalyzeTermStructure(quotes, 7, 30, 0)
	require.NotNil(t, report.IVSpread)
	assert.Equal(t, models.TermSignalNormalCarry, report.Signal)
}

func TestAnalyzeTermStructureMissingBucket(t *testing.T) {
	s := defaultScanner()
	quotes := []models.OptionQuote{
		termQuote(0.70, 30), // nothing near 7d
	}

	report := s.AnalyzeTermStructure(quotes, 7, 30, 0)
	assert.Nil(t, report.IVSpread)
	assert.Equal(t, models.SignalInsufficientData, report.Signal)
	assert.Nil(t, report.NearIV)
	assert.NotNil(t, report.FarIV)
}

func TestAnalyzeTermStructureBucketWindows(t *testing.T) {
	s := defaultScanner()
	quotes := []models.OptionQuote{
		termQuote(0.90, 9),    // inside 7±2
		termQuote(0.99, 9.5),  // outside 7±2
		termQuote(0.60, 33),   // inside 30±3
		termQuote(0.10, 33.5), // outside 30±3
	}

	report := s.AnalyzeTermStructure(quotes, 7, 30, 0)
	require.NotNil(t, report.NearIV)
	require.NotNil(t, report.FarIV)
	assert.InDelta(t, 0.90, *report.NearIV, 1e-9)
	assert.InDelta(t, 0.60, *report.FarIV, 1e-9)
}

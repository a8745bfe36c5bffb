package scanner

import (
	"math"
	"sort"

	"VolPulse/internal/domain/models"
)

// Config bounds the scan universe.
type Config struct {
	DeltaMin   float64 // |delta| band, inclusive
	DeltaMax   float64
	DTEMinDays float64
	DTEMaxDays float64
}

// Scanner filters and scores put-option candidates and derives skew and
// term-structure signals from the same chain. All methods are pure; state
// such as the skew history is owned by the caller.
type Scanner struct {
	cfg Config
}

// New creates a Scanner.
func New(cfg Config) *Scanner {
	return &Scanner{cfg: cfg}
}

// Scan retains put quotes with present delta and IV, |delta| inside the
// band, DTE inside the window and a positive mid premium, and enriches
// each survivor with yield, safety margin and VRP context.
func (s *Scanner) Scan(quotes []models.OptionQuote, spot, realizedVol, nowTS float64) []models.OptionCandidate {
	var candidates []models.OptionCandidate
	for _, q := range quotes {
		if q.OptionType != models.OptionPut {
			continue
		}
		if q.Delta == nil || q.MarkIV == nil {
			continue
		}
		absDelta := math.Abs(*q.Delta)
		if absDelta < s.cfg.DeltaMin || absDelta > s.cfg.DeltaMax {
			continue
		}
		expTS := float64(q.ExpirationTS) / 1000.0
		dteDays := (expTS - nowTS) / 86400.0
		if dteDays < s.cfg.DTEMinDays || dteDays > s.cfg.DTEMaxDays {
			continue
		}
		premium := midPrice(q.Bid, q.Ask)
		if premium <= 0 {
			continue
		}

		candidates = append(candidates, models.OptionCandidate{
			InstrumentName:  q.InstrumentName,
			Strike:          q.Strike,
			ExpirationTS:    expTS,
			Delta:           *q.Delta,
			MarkIV:          *q.MarkIV,
			Bid:             q.Bid,
			Ask:             q.Ask,
			DTEDays:         dteDays,
			PremiumBTC:      premium,
			AnnualizedYield: premium * 365.0 / math.Max(dteDays, 1e-6),
			SafetyMargin:    (spot - q.Strike) / spot,
			VRP:             *q.MarkIV - realizedVol,
		})
	}
	return candidates
}

// Rank orders candidates best-first: by annualized yield, then safety
// margin, both descending.
func Rank(candidates []models.OptionCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].AnnualizedYield != candidates[j].AnnualizedYield {
			return candidates[i].AnnualizedYield > candidates[j].AnnualizedYield
		}
		return candidates[i].SafetyMargin > candidates[j].SafetyMargin
	})
}

// AnalyzeSkew pairs the nearest-delta put and call per expiry and reports
// put IV minus call IV for the nearest expiry carrying both sides. With
// five or more prior skew values a Bessel-corrected z-score is computed
// and z >= 2 flags a pricing error.
func (s *Scanner) AnalyzeSkew(quotes []models.OptionQuote, targetDelta float64, skewHistory []float64) models.SkewReport {
	putIV, callIV, ok := nearestExpiryPair(quotes, targetDelta)
	if !ok {
		return models.SkewReport{Signal: models.SignalInsufficientData}
	}

	skew := putIV - callIV
	signal := models.SkewSignalNeutral
	switch {
	case skew > 0.15:
		signal = models.SkewSignalBearishPutPremium
	case skew < 0:
		signal = models.SkewSignalCallsRich
	}

	report := models.SkewReport{Skew: &skew, Signal: signal}
	if len(skewHistory) >= 5 {
		mean := 0.0
		for _, v := range skewHistory {
			mean += v
		}
		mean /= float64(len(skewHistory))
		variance := 0.0
		for _, v := range skewHistory {
			d := v - mean
			variance += d * d
		}
		variance /= float64(len(skewHistory) - 1)
		if std := math.Sqrt(variance); std > 0 {
			z := (skew - mean) / std
			report.SkewZ = &z
			report.PricingError = z >= 2.0
		}
	}
	return report
}

// sideBest tracks the closest-to-target quote for one (expiry, type) key.
type sideBest struct {
	distance float64
	markIV   float64
}

// nearestExpiryPair finds, per (expiry, option type), the quote whose
// delta is closest to the signed target, then returns the put/call IV
// pair for the earliest expiry where both sides matched.
func nearestExpiryPair(quotes []models.OptionQuote, targetDelta float64) (putIV, callIV float64, ok bool) {
	puts := map[int64]sideBest{}
	calls := map[int64]sideBest{}

	for _, q := range quotes {
		if q.Delta == nil || q.MarkIV == nil {
			continue
		}
		var target float64
		var side map[int64]sideBest
		switch q.OptionType {
		case models.OptionPut:
			target = -math.Abs(targetDelta)
			side = puts
		case models.OptionCall:
			target = math.Abs(targetDelta)
			side = calls
		default:
			continue
		}
		distance := math.Abs(*q.Delta - target)
		if best, exists := side[q.ExpirationTS]; !exists || distance < best.distance {
			side[q.ExpirationTS] = sideBest{distance: distance, markIV: *q.MarkIV}
		}
	}

	// Earliest expiry with both sides, deterministically.
	var bestExpiry int64 = -1
	for expiry := range puts {
		if _, both := calls[expiry]; !both {
			continue
		}
		if bestExpiry < 0 || expiry < bestExpiry {
			bestExpiry = expiry
		}
	}
	if bestExpiry < 0 {
		return 0, 0, false
	}
	return puts[bestExpiry].markIV, calls[bestExpiry].markIV, true
}

// AnalyzeTermStructure compares the median implied vol near a short-dated
// and a long-dated target expiry. Either side missing yields an
// insufficient-data report with no spread.
func (s *Scanner) AnalyzeTermStructure(quotes []models.OptionQuote, nearDays, farDays, nowTS float64) models.TermStructureReport {
	nearIV := medianIVByDTE(quotes, nearDays, 2, nowTS)
	farIV := medianIVByDTE(quotes, farDays, 3, nowTS)
	if nearIV == nil || farIV == nil {
		return models.TermStructureReport{
			Signal: models.SignalInsufficientData,
			NearIV: nearIV,
			FarIV:  farIV,
		}
	}

	spread := *nearIV - *farIV
	signal := models.TermSignalNormalCarry
	if spread > 0 {
		signal = models.TermSignalNearTermPulse
	}
	return models.TermStructureReport{
		IVSpread: &spread,
		Signal:   signal,
		NearIV:   nearIV,
		FarIV:    farIV,
	}
}

// medianIVByDTE takes the median mark IV among quotes whose DTE falls
// within windowDays of targetDays.
func medianIVByDTE(quotes []models.OptionQuote, targetDays, windowDays, nowTS float64) *float64 {
	var values []float64
	for _, q := range quotes {
		if q.MarkIV == nil {
			continue
		}
		dteDays := (float64(q.ExpirationTS)/1000.0 - nowTS) / 86400.0
		if math.Abs(dteDays-targetDays) <= windowDays {
			values = append(values, *q.MarkIV)
		}
	}
	if len(values) == 0 {
		return nil
	}
	sort.Float64s(values)
	mid := len(values) / 2
	var median float64
	if len(values)%2 == 1 {
		median = values[mid]
	} else {
		median = (values[mid-1] + values[mid]) / 2
	}
	return &median
}

// midPrice averages bid and ask when both sides are live, otherwise takes
// the better of the two.
func midPrice(bid, ask float64) float64 {
	if bid > 0 && ask > 0 {
		return (bid + ask) / 2
	}
	return math.Max(bid, ask)
}

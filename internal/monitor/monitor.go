package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"VolPulse/internal/deribit"
	"VolPulse/internal/domain/models"
	"VolPulse/internal/hedge"
	"VolPulse/internal/metrics"
	"VolPulse/internal/risk"
	"VolPulse/internal/scanner"
	"VolPulse/internal/volatility"
	"VolPulse/pkg/logger"
)

// Source produces the per-cycle market view.
type Source interface {
	Snapshot(ctx context.Context) (*models.MarketSnapshot, error)
}

// Alerter delivers composed alert payloads. Delivery is best effort and
// owned by the dispatcher, not the loop.
type Alerter interface {
	Send(kind string, msg models.AlertMessage)
}

// Config parameterizes the decide-and-alert cycle.
type Config struct {
	PollInterval time.Duration
	Once         bool
	Verbose      bool

	EntryPriceDrop1h  float64 // entry when 1h price change <= this
	MinDVOLPulse1h    float64 // and 1h DVOL change >= this
	EntryIVPThreshold float64 // and IVP > this ...
	EntryIVRThreshold float64 // ... or IVR > this

	BleedPriceDrop1h float64 // slow bleed when 1h price change <= this
	BleedDVOLMax1h   float64 // and 1h DVOL change <= this

	SkewTargetDelta float64
	TermNearDays    float64
	TermFarDays     float64

	SkewHistoryCap      int     // FIFO cap on retained skew values
	PairWindowRetention float64 // price/DVOL window retention, seconds
	ChangeWindow        float64 // lookback for the 1h change rule, seconds
}

// DefaultConfig returns the production rule set.
func DefaultConfig() Config {
	return Config{
		PollInterval:        30 * time.Second,
		EntryPriceDrop1h:    -0.03,
		MinDVOLPulse1h:      0.10,
		EntryIVPThreshold:   70,
		EntryIVRThreshold:   50,
		BleedPriceDrop1h:    -0.02,
		BleedDVOLMax1h:      0,
		SkewTargetDelta:     0.20,
		TermNearDays:        7,
		TermFarDays:         30,
		SkewHistoryCap:      120,
		PairWindowRetention: 7200,
		ChangeWindow:        3600,
	}
}

// Status is the latest cycle's view, published for the status server.
type Status struct {
	Timestamp     float64  `json:"timestamp"`
	SpotPrice     float64  `json:"spot_price"`
	DVOL          float64  `json:"dvol"`
	IVP           *float64 `json:"ivp"`
	IVR           *float64 `json:"ivr"`
	PriceChange1h *float64 `json:"price_change_1h"`
	DVOLChange1h  *float64 `json:"dvol_change_1h"`
	EntrySignal   bool     `json:"entry_signal"`
	SlowBleed     bool     `json:"slow_bleed"`
	LastAlert     string   `json:"last_alert,omitempty"`
	Cycles        uint64   `json:"cycles"`
}

// Monitor sequences FETCH, UPDATE, EVALUATE, ACT and SLEEP into a
// repeating cycle. All mutable state is owned by the single run loop.
type Monitor struct {
	cfg      Config
	source   Source
	analyzer *volatility.Analyzer
	scanner  *scanner.Scanner
	risk     *risk.Engine
	alerts   Alerter
	log      *logger.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	priceWindow *sampleWindow
	dvolWindow  *sampleWindow
	skewHistory []float64

	mu     sync.RWMutex
	status Status
}

// New creates a Monitor.
func New(cfg Config, source Source, analyzer *volatility.Analyzer, sc *scanner.Scanner, riskEng *risk.Engine, alerts Alerter, log *logger.Logger) *Monitor {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.SkewHistoryCap <= 0 {
		cfg.SkewHistoryCap = 120
	}
	if cfg.PairWindowRetention <= 0 {
		cfg.PairWindowRetention = 7200
	}
	if cfg.ChangeWindow <= 0 {
		cfg.ChangeWindow = 3600
	}
	return &Monitor{
		cfg:         cfg,
		source:      source,
		analyzer:    analyzer,
		scanner:     sc,
		risk:        riskEng,
		alerts:      alerts,
		log:         log,
		now:         time.Now,
		sleep:       sleepCtx,
		priceWindow: newSampleWindow(cfg.PairWindowRetention),
		dvolWindow:  newSampleWindow(cfg.PairWindowRetention),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// SeedWindows pre-loads the price and DVOL windows, used by mock mode so
// the first cycle already spans the change-rule lookback.
func (m *Monitor) SeedWindows(ts, spot, dvol float64) {
	m.priceWindow.add(ts, spot)
	m.dvolWindow.add(ts, dvol)
}

// Status returns the latest published cycle view.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Run cycles until ctx is cancelled, or once in single-shot mode. A cycle
// that fails to fetch logs and sleeps; nothing here is fatal.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		m.RunCycle(ctx)

		if m.cfg.Once {
			return nil
		}
		if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// RunCycle executes one FETCH → UPDATE → EVALUATE → ACT pass.
func (m *Monitor) RunCycle(ctx context.Context) {
	snap, err := m.source.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, deribit.ErrNoData) {
			m.log.Warn("no market data this cycle", logger.Error(err))
		} else {
			m.log.Error("fetch failed", logger.Error(err))
		}
		metrics.PollCycles.WithLabelValues("fetch_error").Inc()
		return
	}

	nowTS := float64(m.now().UnixNano()) / 1e9

	// UPDATE
	m.priceWindow.add(nowTS, snap.SpotPrice)
	m.dvolWindow.add(nowTS, snap.DVOL)
	m.analyzer.AddSample(nowTS, snap.DVOL)

	// EVALUATE
	priceChange := m.priceWindow.changeOver(nowTS, m.cfg.ChangeWindow)
	dvolChange := m.dvolWindow.changeOver(nowTS, m.cfg.ChangeWindow)
	ivm := m.analyzer.ComputeMetrics(&snap.DVOL)

	entry := priceChange != nil && dvolChange != nil &&
		*priceChange <= m.cfg.EntryPriceDrop1h &&
		*dvolChange >= m.cfg.MinDVOLPulse1h &&
		(deref(ivm.IVP) > m.cfg.EntryIVPThreshold || deref(ivm.IVR) > m.cfg.EntryIVRThreshold)

	slowBleed := priceChange != nil && dvolChange != nil &&
		*priceChange <= m.cfg.BleedPriceDrop1h &&
		*dvolChange <= m.cfg.BleedDVOLMax1h

	if m.cfg.Verbose {
		m.log.Info("cycle",
			logger.Float("spot", snap.SpotPrice),
			logger.Float("dvol", snap.DVOL),
			logger.Float("ivp", deref(ivm.IVP)),
			logger.Float("ivr", deref(ivm.IVR)),
			logger.Float("price_chg_1h", deref(priceChange)),
			logger.Float("dvol_chg_1h", deref(dvolChange)),
			logger.Bool("entry", entry),
			logger.Bool("slow_bleed", slowBleed),
		)
	}

	// ACT
	lastAlert := ""
	switch {
	case slowBleed:
		// The trap rule wins outright: no scanning this cycle.
		m.alerts.Send("slow_bleed", models.AlertMessage{
			Title: "Slow Bleed Trap",
			Body: fmt.Sprintf(
				"Price down %.2f%% with DVOL %.2f%% (flat/down). Block short-put scanning for this cycle.",
				deref(priceChange)*100, deref(dvolChange)*100,
			),
		})
		lastAlert = "slow_bleed"
		metrics.PollCycles.WithLabelValues("slow_bleed").Inc()
	case entry:
		if m.actOnEntry(snap, ivm, nowTS) {
			lastAlert = "entry"
			metrics.PollCycles.WithLabelValues("entry").Inc()
		} else {
			metrics.PollCycles.WithLabelValues("entry_no_candidates").Inc()
		}
	default:
		metrics.PollCycles.WithLabelValues("quiet").Inc()
	}

	m.mu.Lock()
	m.status = Status{
		Timestamp:     nowTS,
		SpotPrice:     snap.SpotPrice,
		DVOL:          snap.DVOL,
		IVP:           ivm.IVP,
		IVR:           ivm.IVR,
		PriceChange1h: priceChange,
		DVOLChange1h:  dvolChange,
		EntrySignal:   entry,
		SlowBleed:     slowBleed,
		LastAlert:     lastAlert,
		Cycles:        m.status.Cycles + 1,
	}
	m.mu.Unlock()
}

// actOnEntry scans the chain, sizes the best candidate and emits the
// composite entry alert. Returns false when no candidate survives.
func (m *Monitor) actOnEntry(snap *models.MarketSnapshot, ivm models.IVMetrics, nowTS float64) bool {
	candidates := m.scanner.Scan(snap.Options, snap.SpotPrice, snap.RealizedVol24h, nowTS)
	if len(candidates) == 0 {
		m.log.Info("entry triggered but no candidates in the scan window")
		return false
	}
	scanner.Rank(candidates)
	top := candidates[0]

	maxContracts := m.risk.MaxContractsAllowed(0)
	report := m.risk.EstimateMarginAndDrawdown(snap.SpotPrice, top.Strike, top.PremiumBTC, top.MarkIV, maxContracts)

	skewReport := m.scanner.AnalyzeSkew(snap.Options, m.cfg.SkewTargetDelta, m.skewHistory)
	if skewReport.Skew != nil {
		m.skewHistory = append(m.skewHistory, *skewReport.Skew)
		if len(m.skewHistory) > m.cfg.SkewHistoryCap {
			m.skewHistory = m.skewHistory[1:]
		}
	}
	termReport := m.scanner.AnalyzeTermStructure(snap.Options, m.cfg.TermNearDays, m.cfg.TermFarDays, nowTS)
	termHint := fmt.Sprintf("%.0f-%.0fd", m.cfg.TermNearDays*2, m.cfg.TermFarDays)
	if termReport.Signal == models.TermSignalNearTermPulse {
		termHint = fmt.Sprintf("%.0fd", m.cfg.TermNearDays)
	}

	plan := hedge.DynamicRatio(snap.DVOL, skewReport.SkewZ, 0)
	interrupt := hedge.CheckInterrupt(0, snap.DVOL, m.risk.MarginUtilization(report.EstMarginShock))

	body := fmt.Sprintf(
		"Spot %.0f, DVOL %.1f, IVP %.1f, IVR %.1f\n"+
			"Suggested: Sell %s (delta %.2f, DTE %.1f)\n"+
			"Yield %.2f%%, Safety %.2f%%, VRP %.2f\n"+
			"Max contracts %.2f BTC, Margin shock %.0f USD\n"+
			"Skew %.2f%% (%s), PricingError %t\n"+
			"TermSpread %.2f%% (%s), Prefer %s\n"+
			"Hedge ratio %.1f (%s)",
		snap.SpotPrice, snap.DVOL, deref(ivm.IVP), deref(ivm.IVR),
		top.InstrumentName, top.Delta, top.DTEDays,
		top.AnnualizedYield*100, top.SafetyMargin*100, top.VRP,
		report.MaxContracts, report.EstMarginShock,
		deref(skewReport.Skew)*100, skewReport.Signal, skewReport.PricingError,
		deref(termReport.IVSpread)*100, termReport.Signal, termHint,
		plan.Ratio, plan.Reason,
	)
	if interrupt.Triggered {
		body += "\n" + interrupt.Reason
	}

	m.alerts.Send("entry", models.AlertMessage{Title: "IV Pulse Entry", Body: body})
	return true
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

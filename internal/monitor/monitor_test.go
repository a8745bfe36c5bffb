package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolPulse/internal/deribit"
	"VolPulse/internal/domain/models"
	"VolPulse/internal/mockdata"
	"VolPulse/internal/risk"
	"VolPulse/internal/scanner"
	"VolPulse/internal/volatility"
)

func fptr(v float64) *float64 { return &v }

type fakeSource struct {
	snap *models.MarketSnapshot
	err  error
}

func (f *fakeSource) Snapshot(context.Context) (*models.MarketSnapshot, error) {
	return f.snap, f.err
}

type recordedAlert struct {
	kind string
	msg  models.AlertMessage
}

type recorder struct {
	alerts []recordedAlert
}

func (r *recorder) Send(kind string, msg models.AlertMessage) {
	r.alerts = append(r.alerts, recordedAlert{kind: kind, msg: msg})
}

const fixedUnix = 1_700_000_000

// panicChain returns one in-window put and a paired call, expiring 21
// days after the fixed test clock.
func panicChain() []models.OptionQuote {
	expTS := int64(fixedUnix+21*86400) * 1000
	return []models.OptionQuote{
		{
			InstrumentName: "BTC-85000-P",
			Strike:         85000,
			OptionType:     models.OptionPut,
			ExpirationTS:   expTS,
			Delta:          fptr(-0.18),
			MarkIV:         fptr(0.75),
			Bid:            0.015,
			Ask:            0.017,
		},
		{
			InstrumentName: "BTC-105000-C",
			Strike:         105000,
			OptionType:     models.OptionCall,
			ExpirationTS:   expTS,
			Delta:          fptr(0.18),
			MarkIV:         fptr(0.60),
		},
	}
}

// rankedHistory is 1..100, so a current value of 80.5 ranks at the 80th
// percentile with no ties.
func rankedHistory() []float64 {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i + 1)
	}
	return values
}

func newTestMonitor(src Source, rec *recorder) *Monitor {
	analyzer := volatility.NewAnalyzer(365, 24)
	analyzer.SetHistory(rankedHistory())

	sc := scanner.New(scanner.Config{DeltaMin: 0.15, DeltaMax: 0.20, DTEMinDays: 14, DTEMaxDays: 30})
	riskEng := risk.NewEngine(22000, risk.Limits{MaxSingleBTC: 0.10, MaxTotalBTC: 0.20})

	m := New(DefaultConfig(), src, analyzer, sc, riskEng, rec, nil)
	m.now = func() time.Time { return time.Unix(fixedUnix, 0) }
	return m
}

func TestRunCycleEntryAlert(t *testing.T) {
	src := &fakeSource{snap: &models.MarketSnapshot{
		Timestamp:      fixedUnix,
		SpotPrice:      96000, // -4% against the seeded 100000
		DVOL:           80.5,  // +12% against the seeded 71.875, IVP 80
		RealizedVol24h: 0.5,
		Options:        panicChain(),
	}}
	rec := &recorder{}
	m := newTestMonitor(src, rec)
	m.SeedWindows(fixedUnix-3500, 100000, 71.875)

	m.RunCycle(context.Background())

	require.Len(t, rec.alerts, 1)
	assert.Equal(t, "entry", rec.alerts[0].kind)
	assert.Equal(t, "IV Pulse Entry", rec.alerts[0].msg.Title)
	assert.Contains(t, rec.alerts[0].msg.Body, "BTC-85000-P")
	assert.Contains(t, rec.alerts[0].msg.Body, "Skew")
	assert.Contains(t, rec.alerts[0].msg.Body, "Hedge ratio")

	status := m.Status()
	assert.True(t, status.EntrySignal)
	assert.False(t, status.SlowBleed)
	assert.Equal(t, "entry", status.LastAlert)
	assert.Equal(t, uint64(1), status.Cycles)
	require.NotNil(t, status.PriceChange1h)
	assert.InDelta(t, -0.04, *status.PriceChange1h, 1e-9)
	require.NotNil(t, status.IVP)
	assert.InDelta(t, 80, *status.IVP, 1e-9)

	// The cycle's skew observation lands in the FIFO history.
	require.Len(t, m.skewHistory, 1)
	assert.InDelta(t, 0.15, m.skewHistory[0], 1e-9)
}

func TestRunCycleSlowBleedSuppressesScanning(t *testing.T) {
	src := &fakeSource{snap: &models.MarketSnapshot{
		Timestamp:      fixedUnix,
		SpotPrice:      97500, // -2.5%
		DVOL:           76,    // -5%
		RealizedVol24h: 0.5,
		Options:        panicChain(),
	}}
	rec := &recorder{}
	m := newTestMonitor(src, rec)
	m.SeedWindows(fixedUnix-3500, 100000, 80)

	m.RunCycle(context.Background())

	require.Len(t, rec.alerts, 1)
	assert.Equal(t, "slow_bleed", rec.alerts[0].kind)

	status := m.Status()
	assert.True(t, status.SlowBleed)
	assert.False(t, status.EntrySignal)
	assert.Empty(t, m.skewHistory)
}

func TestRunCycleEntryWithoutCandidates(t *testing.T) {
	src := &fakeSource{snap: &models.MarketSnapshot{
		Timestamp:      fixedUnix,
		SpotPrice:      96000,
		DVOL:           80.5,
		RealizedVol24h: 0.5,
		Options:        nil, // nothing to sell
	}}
	rec := &recorder{}
	m := newTestMonitor(src, rec)
	m.SeedWindows(fixedUnix-3500, 100000, 71.875)

	m.RunCycle(context.Background())

	assert.Empty(t, rec.alerts)
	status := m.Status()
	assert.True(t, status.EntrySignal)
	assert.Empty(t, status.LastAlert)
}

func TestRunCycleQuietMarket(t *testing.T) {
	src := &fakeSource{snap: &models.MarketSnapshot{
		Timestamp:      fixedUnix,
		SpotPrice:      100100, // +0.1%
		DVOL:           50,
		RealizedVol24h: 0.4,
		Options:        panicChain(),
	}}
	rec := &recorder{}
	m := newTestMonitor(src, rec)
	m.SeedWindows(fixedUnix-3500, 100000, 50)

	m.RunCycle(context.Background())

	assert.Empty(t, rec.alerts)
	assert.Equal(t, uint64(1), m.Status().Cycles)
}

func TestRunCycleFetchErrorSkipsCycle(t *testing.T) {
	src := &fakeSource{err: deribit.ErrNoData}
	rec := &recorder{}
	m := newTestMonitor(src, rec)

	m.RunCycle(context.Background())

	assert.Empty(t, rec.alerts)
	assert.Equal(t, uint64(0), m.Status().Cycles)
}

func TestRunCycleHardFetchError(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	rec := &recorder{}
	m := newTestMonitor(src, rec)

	m.RunCycle(context.Background())

	assert.Empty(t, rec.alerts)
	assert.Equal(t, uint64(0), m.Status().Cycles)
}

func TestRunOnce(t *testing.T) {
	src := &fakeSource{snap: &models.MarketSnapshot{
		Timestamp: fixedUnix,
		SpotPrice: 100000,
		DVOL:      50,
	}}
	rec := &recorder{}
	m := newTestMonitor(src, rec)
	m.cfg.Once = true

	slept := false
	m.sleep = func(context.Context, time.Duration) error {
		slept = true
		return nil
	}

	require.NoError(t, m.Run(context.Background()))
	assert.False(t, slept)
	assert.Equal(t, uint64(1), m.Status().Cycles)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	src := &fakeSource{snap: &models.MarketSnapshot{
		Timestamp: fixedUnix,
		SpotPrice: 100000,
		DVOL:      50,
	}}
	rec := &recorder{}
	m := newTestMonitor(src, rec)

	ctx, cancel := context.WithCancel(context.Background())
	m.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := m.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockModeFiresEntryOnFirstCycle(t *testing.T) {
	gen := mockdata.NewGenerator()
	rec := &recorder{}

	analyzer := volatility.NewAnalyzer(365, 24)
	analyzer.SetHistory(gen.History(365))

	sc := scanner.New(scanner.Config{DeltaMin: 0.15, DeltaMax: 0.20, DTEMinDays: 14, DTEMaxDays: 30})
	riskEng := risk.NewEngine(22000, risk.Limits{MaxSingleBTC: 0.10, MaxTotalBTC: 0.20})

	m := New(DefaultConfig(), gen, analyzer, sc, riskEng, rec, nil)
	nowTS := float64(time.Now().UnixNano()) / 1e9
	m.SeedWindows(nowTS-3540, gen.BaseSpot, gen.BaseDVOL)

	m.RunCycle(context.Background())

	require.Len(t, rec.alerts, 1)
	assert.Equal(t, "entry", rec.alerts[0].kind)
	assert.Contains(t, rec.alerts[0].msg.Body, "BTC-TEST-85000-P")
}

func TestSkewHistoryFIFOCap(t *testing.T) {
	src := &fakeSource{snap: &models.MarketSnapshot{
		Timestamp:      fixedUnix,
		SpotPrice:      96000,
		DVOL:           80.5,
		RealizedVol24h: 0.5,
		Options:        panicChain(),
	}}
	rec := &recorder{}
	m := newTestMonitor(src, rec)
	m.cfg.SkewHistoryCap = 3
	m.SeedWindows(fixedUnix-3500, 100000, 71.875)

	for i := 0; i < 5; i++ {
		m.RunCycle(context.Background())
	}

	assert.Len(t, m.skewHistory, 3)
}

package mockdata

import (
	"context"
	"math"
	"time"

	"VolPulse/internal/domain/models"
)

// Generator produces synthetic panic-market snapshots so the monitor can
// be exercised without touching the exchange.
type Generator struct {
	BaseSpot float64
	BaseDVOL float64

	now func() time.Time
}

// NewGenerator creates a Generator with the default base market.
func NewGenerator() *Generator {
	return &Generator{BaseSpot: 70000, BaseDVOL: 60, now: time.Now}
}

// Snapshot returns a panic snapshot: spot down 5%, DVOL up 10%, elevated
// realized vol, and two in-window put quotes.
func (g *Generator) Snapshot(_ context.Context) (*models.MarketSnapshot, error) {
	ts := float64(g.now().UnixNano()) / 1e9
	spot := g.BaseSpot * 0.95
	dvol := g.BaseDVOL * 1.10
	return &models.MarketSnapshot{
		Timestamp:      ts,
		SpotPrice:      spot,
		DVOL:           dvol,
		RealizedVol24h: 0.55,
		Options:        g.options(spot),
	}, nil
}

// History seeds a sinusoidal DVOL history around the base level.
func (g *Generator) History(days int) []float64 {
	values := make([]float64, days)
	for i := range values {
		values[i] = g.BaseDVOL * (0.85 + 0.15*(1+math.Sin(float64(i)/12.0))/2.0)
	}
	return values
}

func (g *Generator) options(spot float64) []models.OptionQuote {
	expTS := g.now().Add(21*24*time.Hour).UnixNano() / int64(time.Millisecond)
	return []models.OptionQuote{
		{
			InstrumentName: "BTC-TEST-85000-P",
			Strike:         spot * 0.85,
			OptionType:     models.OptionPut,
			ExpirationTS:   expTS,
			Delta:          ptr(-0.18),
			MarkIV:         ptr(0.75),
			Bid:            0.015,
			Ask:            0.017,
		},
		{
			InstrumentName: "BTC-TEST-90000-P",
			Strike:         spot * 0.90,
			OptionType:     models.OptionPut,
			ExpirationTS:   expTS,
			Delta:          ptr(-0.22),
			MarkIV:         ptr(0.70),
			Bid:            0.012,
			Ask:            0.014,
		},
	}
}

func ptr(v float64) *float64 { return &v }

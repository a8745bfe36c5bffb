package mockdata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolPulse/internal/domain/models"
)

func TestSnapshotIsPanicMarket(t *testing.T) {
	g := NewGenerator()
	snap, err := g.Snapshot(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 66500, snap.SpotPrice, 1e-9) // 70000 * 0.95
	assert.InDelta(t, 66, snap.DVOL, 1e-9)         // 60 * 1.10
	assert.Equal(t, 0.55, snap.RealizedVol24h)

	require.Len(t, snap.Options, 2)
	for _, q := range snap.Options {
		assert.Equal(t, models.OptionPut, q.OptionType)
		require.NotNil(t, q.Delta)
		require.NotNil(t, q.MarkIV)
		assert.Greater(t, q.Bid, 0.0)
		assert.Greater(t, q.Ask, q.Bid)
	}
	assert.Equal(t, -0.18, *snap.Options[0].Delta)
	assert.Equal(t, -0.22, *snap.Options[1].Delta)
}

func TestSnapshotOptionsLandInScanWindow(t *testing.T) {
	g := NewGenerator()
	snap, err := g.Snapshot(context.Background())
	require.NoError(t, err)

	for _, q := range snap.Options {
		dteDays := (float64(q.ExpirationTS)/1000 - snap.Timestamp) / 86400
		assert.InDelta(t, 21, dteDays, 0.01)
	}
}

func TestHistoryOscillatesAroundBase(t *testing.T) {
	g := NewGenerator()
	history := g.History(365)
	require.Len(t, history, 365)

	for _, v := range history {
		assert.GreaterOrEqual(t, v, g.BaseDVOL*0.85)
		assert.LessOrEqual(t, v, g.BaseDVOL*1.0)
	}

	// Not flat: the range-rank statistics need spread.
	lo, hi := history[0], history[0]
	for _, v := range history {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	assert.Greater(t, hi, lo)
}

package deribit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"VolPulse/internal/domain/models"
	"VolPulse/internal/metrics"
	"VolPulse/pkg/cache"
	pkghttp "VolPulse/pkg/http"
	"VolPulse/pkg/logger"
	"VolPulse/pkg/ratelimit"
)

// ErrNoData marks a call that exhausted its retries and degraded to an
// empty result. Callers treat it as "no data this cycle", not as a hard
// failure; any other error is a genuine request or programming error.
var ErrNoData = errors.New("deribit: no data")

const instrumentsCacheKey = "instruments"

// Config holds client configuration.
type Config struct {
	BaseURL       string
	Currency      string
	IndexName     string
	Timeout       time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
	TickerWorkers int           // bounded fan-out for per-instrument quotes
	RatePerSec    float64       // token-bucket refill for the shared endpoint
	RateBurst     float64       // token-bucket capacity
	InstrumentTTL time.Duration // instrument listing cache TTL
	ProxyURL      string
	DTEMinDays    float64
	DTEMaxDays    float64
}

// DefaultConfig returns sensible defaults for the public API.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://www.deribit.com/api/v2",
		Currency:      "BTC",
		IndexName:     "btc_usd",
		Timeout:       20 * time.Second,
		MaxAttempts:   3,
		RetryBackoff:  250 * time.Millisecond,
		TickerWorkers: 5,
		RatePerSec:    10,
		RateBurst:     20,
		InstrumentTTL: 10 * time.Minute,
		DTEMinDays:    14,
		DTEMaxDays:    30,
	}
}

// Client reads the exchange's public REST surface: index price, the DVOL
// volatility index, and option chain quotes. All outbound calls share one
// retry policy and one rate limiter.
type Client struct {
	cfg     Config
	http    *pkghttp.Client
	limiter *ratelimit.Limiter
	cache   *cache.Memory
	log     *logger.Logger

	now func() time.Time
}

// New creates a Client.
func New(cfg Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		cfg: cfg,
		http: pkghttp.NewClient(
			pkghttp.WithTimeout(cfg.Timeout),
			pkghttp.WithRetries(cfg.MaxAttempts, cfg.RetryBackoff),
			pkghttp.WithProxy(cfg.ProxyURL),
			pkghttp.WithLogger(log),
		),
		limiter: ratelimit.New(cfg.RateBurst, cfg.RatePerSec),
		cache:   cache.NewMemory(),
		log:     log,
		now:     time.Now,
	}
}

// envelope is the standard response wrapper. A missing result key decodes
// to a zero value rather than an error.
type envelope[T any] struct {
	Result T `json:"result"`
}

// get performs one rate-limited, retrying GET against an API path.
func get[T any](ctx context.Context, c *Client, path string, query url.Values, endpoint string) (T, error) {
	var env envelope[T]
	if err := c.limiter.Wait(ctx); err != nil {
		return env.Result, err
	}
	err := c.http.GetJSON(ctx, c.cfg.BaseURL+"/"+path, query, &env)
	if err != nil {
		if errors.Is(err, pkghttp.ErrRetriesExhausted) {
			metrics.DegradedFetches.WithLabelValues(endpoint).Inc()
			return env.Result, fmt.Errorf("%w: %s", ErrNoData, endpoint)
		}
		metrics.FetchErrors.WithLabelValues(endpoint).Inc()
		return env.Result, err
	}
	return env.Result, nil
}

type indexPriceResult struct {
	IndexPrice float64 `json:"index_price"`
}

// IndexPrice returns the current index price in USD.
func (c *Client) IndexPrice(ctx context.Context) (float64, error) {
	query := url.Values{"index_name": {c.cfg.IndexName}}
	result, err := get[indexPriceResult](ctx, c, "public/get_index_price", query, "index_price")
	if err != nil {
		return 0, err
	}
	return result.IndexPrice, nil
}

type volIndexResult struct {
	// Each bucket is [ts_ms, open, high, low, close].
	Data [][]float64 `json:"data"`
}

// DVOL returns the current volatility index reading, defined as the most
// recent bucket's close over a trailing 6-hour, 1-hour-resolution window.
func (c *Client) DVOL(ctx context.Context) (float64, error) {
	endTS := c.now().UnixMilli()
	startTS := endTS - 6*3600*1000
	result, err := get[volIndexResult](ctx, c, "public/get_volatility_index_data",
		c.volQuery(startTS, endTS, 3600), "dvol")
	if err != nil {
		return 0, err
	}
	if len(result.Data) == 0 {
		return 0, fmt.Errorf("%w: dvol", ErrNoData)
	}
	last := result.Data[len(result.Data)-1]
	if len(last) < 5 {
		return 0, fmt.Errorf("dvol bucket has %d fields, want 5", len(last))
	}
	return last[4], nil
}

// DVOLHistory returns daily closing DVOL values over the trailing period.
func (c *Client) DVOLHistory(ctx context.Context, days int) ([]float64, error) {
	endTS := c.now().UnixMilli()
	startTS := endTS - int64(days)*86400*1000
	result, err := get[volIndexResult](ctx, c, "public/get_volatility_index_data",
		c.volQuery(startTS, endTS, 86400), "dvol_history")
	if err != nil {
		return nil, err
	}
	values := make([]float64, 0, len(result.Data))
	for _, bucket := range result.Data {
		if len(bucket) > 4 {
			values = append(values, bucket[4])
		}
	}
	return values, nil
}

func (c *Client) volQuery(startTS, endTS int64, resolutionSec int) url.Values {
	return url.Values{
		"currency":        {c.cfg.Currency},
		"start_timestamp": {strconv.FormatInt(startTS, 10)},
		"end_timestamp":   {strconv.FormatInt(endTS, 10)},
		"resolution":      {strconv.Itoa(resolutionSec)},
	}
}

type instrument struct {
	InstrumentName      string  `json:"instrument_name"`
	OptionType          string  `json:"option_type"`
	ExpirationTimestamp int64   `json:"expiration_timestamp"`
	Strike              float64 `json:"strike"`
}

type ticker struct {
	InstrumentName      string   `json:"instrument_name"`
	Strike              float64  `json:"strike"`
	OptionType          string   `json:"option_type"`
	ExpirationTimestamp int64    `json:"expiration_timestamp"`
	MarkIV              *float64 `json:"mark_iv"`
	BestBidPrice        float64  `json:"best_bid_price"`
	BestAskPrice        float64  `json:"best_ask_price"`
	Greeks              struct {
		Delta *float64 `json:"delta"`
	} `json:"greeks"`
}

// OptionChain lists non-expired instruments of the requested type within
// the configured DTE window and fetches a live quote for each. The quote
// fan-out runs at most TickerWorkers requests in flight; a failed single
// quote is dropped so one bad instrument never aborts the scan.
func (c *Client) OptionChain(ctx context.Context, optType models.OptionType) ([]models.OptionQuote, error) {
	names, err := c.instrumentNames(ctx, optType)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}

	start := time.Now()
	quotes := make([]models.OptionQuote, len(names))
	keep := make([]bool, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.TickerWorkers)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			result, err := get[ticker](gctx, c, "public/ticker",
				url.Values{"instrument_name": {name}}, "ticker")
			if err != nil {
				// Degrade gracefully: a missing quote only shrinks the chain.
				c.log.Debug("ticker fetch dropped",
					logger.String("instrument", name),
					logger.Error(err),
				)
				return nil
			}
			if result.InstrumentName == "" {
				return nil
			}
			quotes[i] = models.OptionQuote{
				InstrumentName: result.InstrumentName,
				Strike:         result.Strike,
				OptionType:     models.OptionType(result.OptionType),
				ExpirationTS:   result.ExpirationTimestamp,
				Delta:          result.Greeks.Delta,
				MarkIV:         result.MarkIV,
				Bid:            result.BestBidPrice,
				Ask:            result.BestAskPrice,
			}
			keep[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	metrics.ChainFanout.Observe(time.Since(start).Seconds())

	out := make([]models.OptionQuote, 0, len(names))
	for i := range quotes {
		if keep[i] {
			out = append(out, quotes[i])
		}
	}
	return out, nil
}

// instrumentNames lists live option instruments and filters locally by
// option type and days-to-expiry. The raw listing is cached; it changes
// far slower than the poll cycle.
func (c *Client) instrumentNames(ctx context.Context, optType models.OptionType) ([]string, error) {
	var listing []instrument
	if cached, ok := c.cache.Get(instrumentsCacheKey); ok {
		listing = cached.([]instrument)
	} else {
		query := url.Values{
			"currency": {c.cfg.Currency},
			"kind":     {"option"},
			"expired":  {"false"},
		}
		result, err := get[[]instrument](ctx, c, "public/get_instruments", query, "instruments")
		if err != nil {
			return nil, err
		}
		listing = result
		c.cache.Set(instrumentsCacheKey, listing, c.cfg.InstrumentTTL)
	}

	nowMS := c.now().UnixMilli()
	names := make([]string, 0, len(listing))
	for _, item := range listing {
		if optType != "" && item.OptionType != string(optType) {
			continue
		}
		dteDays := float64(item.ExpirationTimestamp-nowMS) / 86400000.0
		if dteDays < c.cfg.DTEMinDays || dteDays > c.cfg.DTEMaxDays {
			continue
		}
		names = append(names, item.InstrumentName)
	}
	return names, nil
}

// Snapshot assembles the per-cycle market view: spot, DVOL, a realized-vol
// proxy derived from DVOL, and the put chain inside the scan window.
func (c *Client) Snapshot(ctx context.Context) (*models.MarketSnapshot, error) {
	spot, err := c.IndexPrice(ctx)
	if err != nil {
		return nil, err
	}
	dvol, err := c.DVOL(ctx)
	if err != nil {
		return nil, err
	}
	options, err := c.OptionChain(ctx, models.OptionPut)
	if err != nil {
		return nil, err
	}
	return &models.MarketSnapshot{
		Timestamp:      float64(c.now().UnixNano()) / 1e9,
		SpotPrice:      spot,
		DVOL:           dvol,
		RealizedVol24h: realizedVolProxy(dvol),
		Options:        options,
	}, nil
}

// realizedVolProxy approximates 24h realized vol from the vol index level.
func realizedVolProxy(dvol float64) float64 {
	rv := dvol/100.0 - 0.1
	if rv < 0 {
		return 0
	}
	return rv
}

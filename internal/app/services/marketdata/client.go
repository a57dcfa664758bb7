package marketdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/TokenPulse/dashboard_core/internal/app/domain/market"
	"github.com/TokenPulse/dashboard_core/pkg/logger"
)

// ClientConfig configures the HTTP provider.
type ClientConfig struct {
	// Endpoint is the base pair endpoint, e.g. the dexscreener pairs URL.
	Endpoint    string
	Chain       string
	PairAddress string
	APIKey      string

	RequestTimeout time.Duration
	// SnapshotTTL bounds snapshot freshness; the stale fallback grace
	// window is StaleGraceFactor times this value.
	SnapshotTTL      time.Duration
	StaleGraceFactor int
	RatePerSecond    float64
	RateBurst        int
}

func (c ClientConfig) graceWindow() time.Duration {
	factor := c.StaleGraceFactor
	if factor < 1 {
		factor = 10
	}
	ttl := c.SnapshotTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return time.Duration(factor) * ttl
}

// Client is the HTTP Provider implementation. It keeps the last good
// snapshot so transient upstream blips are invisible to callers, and
// synthesizes series/holder data from snapshot ratios.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger

	mu       sync.Mutex
	lastGood market.MarketSnapshot
	hasLast  bool

	now func() time.Time
}

var _ Provider = (*Client)(nil)

// NewClient constructs the provider. A nil httpClient gets a default one
// bounded by the configured request timeout.
func NewClient(cfg ClientConfig, httpClient *http.Client, log *logger.Logger) (*Client, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.PairAddress = strings.TrimSpace(cfg.PairAddress)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("market endpoint required")
	}
	if cfg.PairAddress == "" {
		return nil, fmt.Errorf("pair address required")
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("parse market endpoint: %w", err)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if log == nil {
		log = logger.NewDefault("marketdata")
	}

	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 5
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = int(perSecond) * 2
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		log:     log,
		now:     time.Now,
	}, nil
}

// CurrentSnapshot fetches the pair state. On failure it serves the last
// good snapshot while it is inside the grace window, so only sustained
// outages surface to the orchestrator.
func (c *Client) CurrentSnapshot(ctx context.Context) (market.MarketSnapshot, error) {
	snap, err := c.fetchSnapshot(ctx)
	if err == nil {
		c.mu.Lock()
		c.lastGood = snap
		c.hasLast = true
		c.mu.Unlock()
		return snap, nil
	}

	c.mu.Lock()
	last, ok := c.lastGood, c.hasLast
	c.mu.Unlock()

	if ok && c.now().Sub(last.FetchedAt) <= c.cfg.graceWindow() {
		c.log.WithError(err).
			WithField("age", c.now().Sub(last.FetchedAt).String()).
			Warn("serving stale snapshot after upstream failure")
		return last, nil
	}
	return market.MarketSnapshot{}, err
}

func (c *Client) fetchSnapshot(ctx context.Context) (market.MarketSnapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return market.MarketSnapshot{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	requestURL := fmt.Sprintf("%s/%s/%s",
		strings.TrimRight(c.cfg.Endpoint, "/"), c.cfg.Chain, c.cfg.PairAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return market.MarketSnapshot{}, market.UpstreamError("build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return market.MarketSnapshot{}, market.UpstreamError("pair request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return market.MarketSnapshot{}, market.UpstreamError("pair request",
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return market.MarketSnapshot{}, market.UpstreamError("read body", err)
	}
	return c.parseSnapshot(body)
}

// parseSnapshot extracts the pair object from a dexscreener style payload.
func (c *Client) parseSnapshot(body []byte) (market.MarketSnapshot, error) {
	if !gjson.ValidBytes(body) {
		return market.MarketSnapshot{}, market.UpstreamError("parse body", fmt.Errorf("invalid json"))
	}

	root := gjson.ParseBytes(body)
	pair := root.Get("pair")
	if !pair.Exists() {
		pair = root.Get("pairs.0")
	}
	if !pair.Exists() {
		return market.MarketSnapshot{}, market.UpstreamError("parse body", fmt.Errorf("no pair object"))
	}

	price := pair.Get("priceUsd").Float()
	if price <= 0 {
		return market.MarketSnapshot{}, market.UpstreamError("parse body", fmt.Errorf("non-positive price"))
	}

	snap := market.MarketSnapshot{
		Price:          price,
		PriceChange24h: pair.Get("priceChange.h24").Float(),
		Volume24h:      pair.Get("volume.h24").Float(),
		MarketCap:      pair.Get("marketCap").Float(),
		Liquidity:      pair.Get("liquidity.usd").Float(),
		Buys24h:        int(pair.Get("txns.h24.buys").Int()),
		Sells24h:       int(pair.Get("txns.h24.sells").Int()),
		PairID:         pair.Get("pairAddress").String(),
		FetchedAt:      c.now(),
	}
	if snap.PairID == "" {
		snap.PairID = c.cfg.PairAddress
	}
	if snap.MarketCap <= 0 {
		snap.MarketCap = pair.Get("fdv").Float()
	}
	return snap, nil
}

// HistoricalSeries derives a window of samples from the current snapshot;
// see synthetic.go for the reconstruction model.
func (c *Client) HistoricalSeries(ctx context.Context, window market.Window) ([]market.SeriesPoint, error) {
	if !window.Valid() {
		return nil, fmt.Errorf("%w: unsupported window %q", market.ErrInvalidDataset, window)
	}
	snap, err := c.CurrentSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return synthesizeSeries(snap, window, c.now()), nil
}

// HolderSummary estimates the holder set from the current snapshot.
func (c *Client) HolderSummary(ctx context.Context) (market.HolderSummary, error) {
	snap, err := c.CurrentSnapshot(ctx)
	if err != nil {
		return market.HolderSummary{}, err
	}
	return synthesizeHolderSummary(snap), nil
}

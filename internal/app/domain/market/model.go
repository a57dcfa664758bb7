// Package market holds the domain models shared by the data orchestration
// and charting layers. Models are pure data; derivation logic lives in the
// services.
package market

import "time"

// Window identifies a requested historical span.
type Window string

const (
	WindowDay     Window = "24h"
	WindowWeek    Window = "7d"
	WindowMonth   Window = "30d"
	WindowQuarter Window = "90d"
)

// Days returns the window length in days.
func (w Window) Days() int {
	switch w {
	case WindowDay:
		return 1
	case WindowWeek:
		return 7
	case WindowMonth:
		return 30
	case WindowQuarter:
		return 90
	default:
		return 0
	}
}

// Valid reports whether the window is one of the supported spans.
func (w Window) Valid() bool { return w.Days() > 0 }

// Granularity returns the candle step for the window: <=1 day hourly,
// <=7 days 4-hourly, <=30 days daily, otherwise multi-day.
func (w Window) Granularity() time.Duration {
	switch days := w.Days(); {
	case days <= 1:
		return time.Hour
	case days <= 7:
		return 4 * time.Hour
	case days <= 30:
		return 24 * time.Hour
	default:
		return 72 * time.Hour
	}
}

// MarketSnapshot is an immutable point-in-time read of upstream market
// state. Produced fresh on every successful provider call and never
// mutated afterwards.
type MarketSnapshot struct {
	Price          float64   `json:"price"`
	PriceChange24h float64   `json:"priceChange24h"`
	Volume24h      float64   `json:"volume24h"`
	MarketCap      float64   `json:"marketCap"`
	Liquidity      float64   `json:"liquidity"`
	Buys24h        int       `json:"buys24h"`
	Sells24h       int       `json:"sells24h"`
	PairID         string    `json:"pairId"`
	FetchedAt      time.Time `json:"fetchedAt"`
}

// TxCount24h is the combined buy and sell count over the last day.
func (s MarketSnapshot) TxCount24h() int { return s.Buys24h + s.Sells24h }

// SeriesPoint is one sample of a provider historical series.
type SeriesPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	Price         float64   `json:"price"`
	Volume        float64   `json:"volume"`
	Holders       int       `json:"holders"`
	WhaleActivity float64   `json:"whaleActivity"`
	Buys          int       `json:"buys"`
	Sells         int       `json:"sells"`
}

// Candle is one OHLCV record plus dashboard metadata. It is built once per
// refresh, annotated in place by the indicator engine, and treated as
// read-only by the renderer afterwards.
type Candle struct {
	Timestamp     time.Time `json:"timestamp"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	Volume        float64   `json:"volume"`
	BuyVolume     float64   `json:"buyVolume"`
	SellVolume    float64   `json:"sellVolume"`
	TxCount       int       `json:"txCount"`
	WhaleActivity float64   `json:"whaleActivity"`

	// Meta carries computed indicator values keyed by indicator name
	// (sma20, rsi, macd, bbUpper, ...). Entries are written by the
	// indicator engine only.
	Meta map[string]float64 `json:"meta,omitempty"`
}

// Bullish reports the candle color key: up only when close is strictly
// above open, equal closes fall into the down branch.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// HolderClass buckets a holder by its share of total supply.
type HolderClass string

const (
	HolderWhale  HolderClass = "whale"  // > 5%
	HolderLarge  HolderClass = "large"  // > 1%
	HolderMedium HolderClass = "medium" // > 0.1%
	HolderSmall  HolderClass = "small"
)

// ClassifyHolder maps a percent-of-supply figure to its bucket.
func ClassifyHolder(percent float64) HolderClass {
	switch {
	case percent > 5:
		return HolderWhale
	case percent > 1:
		return HolderLarge
	case percent > 0.1:
		return HolderMedium
	default:
		return HolderSmall
	}
}

// Holder is one (possibly synthetic) token holder.
type Holder struct {
	Address   string      `json:"address"`
	Balance   float64     `json:"balance"`
	Percent   float64     `json:"percent"`
	Class     HolderClass `json:"class"`
	Synthetic bool        `json:"synthetic"`
}

// HolderSummary is the provider's aggregate view of the holder set.
type HolderSummary struct {
	TotalHolders       int      `json:"totalHolders"`
	WhaleCount         int      `json:"whaleCount"`
	WhaleActivityScore float64  `json:"whaleActivityScore"`
	TopHolders         []Holder `json:"topHolders"`
}

// Transaction is one synthesized transfer record. Real per-transfer chain
// data is not available to this layer; see the provider documentation.
type Transaction struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	Amount          float64   `json:"amount"`
	AmountUSD       float64   `json:"amountUsd"`
	IsBuy           bool      `json:"isBuy"`
	IsLargeTransfer bool      `json:"isLargeTransfer"`
}

// PoolData maps provider liquidity figures into pool economics.
type PoolData struct {
	TVL          float64 `json:"tvl"`
	Volume24h    float64 `json:"volume24h"`
	Fees24h      float64 `json:"fees24h"`
	TokenReserve float64 `json:"tokenReserve"`
	QuoteReserve float64 `json:"quoteReserve"`
}

// TokenStats aggregates supply and activity estimates.
type TokenStats struct {
	TotalSupply        float64 `json:"totalSupply"`
	CirculatingSupply  float64 `json:"circulatingSupply"`
	Top10Concentration float64 `json:"top10Concentration"`
	DailyActiveWallets int     `json:"dailyActiveWallets"`
	HolderCount        int     `json:"holderCount"`
}

// ChartData bundles the four parallel derived series for one window and
// the candle sequence built from them.
type ChartData struct {
	Window        Window        `json:"window"`
	Candles       []Candle      `json:"candles"`
	Price         []SeriesPoint `json:"price"`
	Volume        []SeriesPoint `json:"volume"`
	HolderCount   []SeriesPoint `json:"holderCount"`
	WhaleActivity []SeriesPoint `json:"whaleActivity"`
	GeneratedAt   time.Time     `json:"generatedAt"`
}

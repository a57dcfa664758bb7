// Package marketdata implements the upstream market data provider: a rate
// limited HTTP client for a DEX pair endpoint plus the synthesis of
// historical series and holder summaries from aggregate figures.
//
// Holder and transaction level detail is not available from the public
// endpoints this layer consumes, so those datasets are estimated from
// snapshot ratios. This is a documented approximation, not an indexer.
package marketdata

import (
	"context"

	"github.com/TokenPulse/dashboard_core/internal/app/domain/market"
)

// Provider fetches market metrics for the tracked pair. Implementations
// are pure request/response; dataset caching lives in the orchestrator.
type Provider interface {
	// CurrentSnapshot returns a fresh point-in-time market read. On
	// upstream failure implementations should fall back to their own
	// last-known-good snapshot within an extended grace window before
	// propagating market.ErrUpstream.
	CurrentSnapshot(ctx context.Context) (market.MarketSnapshot, error)
	// HistoricalSeries returns an ordered series covering the window at
	// the window's granularity.
	HistoricalSeries(ctx context.Context, window market.Window) ([]market.SeriesPoint, error)
	// HolderSummary returns the aggregate holder view including the
	// top-N holder list.
	HolderSummary(ctx context.Context) (market.HolderSummary, error)
}

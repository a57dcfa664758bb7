// Package orchestrator produces the dashboard's derived datasets from
// market snapshots, with per-dataset caching, request coalescing, and
// retry-then-propagate failure handling. The provider underneath already
// absorbs transient upstream blips with its own stale fallback; this layer
// never serves stale data itself.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/TokenPulse/dashboard_core/internal/app/cache"
	"github.com/TokenPulse/dashboard_core/internal/app/domain/market"
	"github.com/TokenPulse/dashboard_core/internal/app/metrics"
	"github.com/TokenPulse/dashboard_core/internal/app/services/marketdata"
	"github.com/TokenPulse/dashboard_core/pkg/logger"
	"github.com/TokenPulse/dashboard_core/pkg/retry"
)

const (
	keyHolders      = "holders"
	keyTransactions = "transactions"
	keyPool         = "pool"
	keyStats        = "stats"
	keyChartPrefix  = "chart:"
)

// HoldersDataset is the classified holder list plus bucket counts.
type HoldersDataset struct {
	Holders      []market.Holder            `json:"holders"`
	Distribution map[market.HolderClass]int `json:"distribution"`
	TotalHolders int                        `json:"totalHolders"`
	WhaleCount   int                        `json:"whaleCount"`
	GeneratedAt  time.Time                  `json:"generatedAt"`
}

// TransactionsDataset is the synthesized recent transfer list.
type TransactionsDataset struct {
	Transactions []market.Transaction `json:"transactions"`
	GeneratedAt  time.Time            `json:"generatedAt"`
}

// Service is the data orchestrator. All public fetch methods share the
// same shape: cache hit, else coalesced derive + cache store under a 30
// second TTL, with retries around provider access.
type Service struct {
	provider marketdata.Provider
	cache    cache.Store
	policy   retry.Policy
	ttl      time.Duration
	log      *logger.Logger

	group singleflight.Group
	now   func() time.Time
}

// New constructs the orchestrator. Dependencies are injected; there are no
// package-level service instances.
func New(provider marketdata.Provider, store cache.Store, policy retry.Policy, ttl time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("orchestrator")
	}
	if store == nil {
		store = cache.NewMemory()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{
		provider: provider,
		cache:    store,
		policy:   policy,
		ttl:      ttl,
		log:      log,
		now:      time.Now,
	}
}

// Holders returns the classified holder dataset.
func (s *Service) Holders(ctx context.Context) (HoldersDataset, error) {
	return fetch(ctx, s, keyHolders, func(ctx context.Context) (HoldersDataset, error) {
		summary, err := s.provider.HolderSummary(ctx)
		if err != nil {
			return HoldersDataset{}, err
		}
		return s.deriveHolders(summary), nil
	})
}

// Transactions returns the synthesized recent transfer dataset.
func (s *Service) Transactions(ctx context.Context) (TransactionsDataset, error) {
	return fetch(ctx, s, keyTransactions, func(ctx context.Context) (TransactionsDataset, error) {
		snap, err := s.provider.CurrentSnapshot(ctx)
		if err != nil {
			return TransactionsDataset{}, err
		}
		return TransactionsDataset{
			Transactions: s.deriveTransactions(snap),
			GeneratedAt:  s.now(),
		}, nil
	})
}

// Pool returns pool economics mapped from provider liquidity.
func (s *Service) Pool(ctx context.Context) (market.PoolData, error) {
	return fetch(ctx, s, keyPool, func(ctx context.Context) (market.PoolData, error) {
		snap, err := s.provider.CurrentSnapshot(ctx)
		if err != nil {
			return market.PoolData{}, err
		}
		return derivePool(snap), nil
	})
}

// Stats returns aggregate supply and activity statistics. A non-positive
// computed total supply fails with market.ErrInvalidStats and is never
// retried.
func (s *Service) Stats(ctx context.Context) (market.TokenStats, error) {
	return fetch(ctx, s, keyStats, func(ctx context.Context) (market.TokenStats, error) {
		snap, err := s.provider.CurrentSnapshot(ctx)
		if err != nil {
			return market.TokenStats{}, err
		}
		summary, err := s.provider.HolderSummary(ctx)
		if err != nil {
			return market.TokenStats{}, err
		}
		return s.deriveStats(snap, summary)
	})
}

// ChartData returns the four parallel series plus candles for a window.
func (s *Service) ChartData(ctx context.Context, window market.Window) (market.ChartData, error) {
	if !window.Valid() {
		return market.ChartData{}, fmt.Errorf("%w: unsupported window %q", market.ErrInvalidDataset, window)
	}
	key := keyChartPrefix + string(window)
	return fetch(ctx, s, key, func(ctx context.Context) (market.ChartData, error) {
		snap, err := s.provider.CurrentSnapshot(ctx)
		if err != nil {
			return market.ChartData{}, err
		}
		points, err := s.provider.HistoricalSeries(ctx, window)
		if err != nil {
			return market.ChartData{}, err
		}
		return s.reshapeChartData(snap, window, points)
	})
}

// CacheStats exposes cache diagnostics.
func (s *Service) CacheStats(ctx context.Context) (cache.Stats, error) {
	return s.cache.Stats(ctx)
}

// InvalidateAll drops every derived dataset so the next reads re-derive.
func (s *Service) InvalidateAll(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

// errFlightCancelled marks a coalesced derivation that failed only
// because the caller that issued it was cancelled. Joined callers whose
// own contexts are still live re-issue the flight instead of inheriting
// the issuer's cancellation. Failures of the operation itself, including
// upstream round-trip timeouts that chain a context error, never carry
// this sentinel and propagate normally.
var errFlightCancelled = errors.New("coalesced fetch cancelled by issuer")

// fetch is the shared cache-else-derive path. Concurrent callers for one
// key are coalesced into a single derivation; the cache write is a whole
// entry so racing refreshes stay last-write-wins without corruption.
func fetch[T any](ctx context.Context, s *Service, key string, derive func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	for {
		if value, ok := cacheGet[T](ctx, s, key); ok {
			metrics.RecordCacheLookup(key, true)
			return value, nil
		}
		metrics.RecordCacheLookup(key, false)

		value, err := fetchFlight[T](ctx, s, key, derive)
		if err != nil {
			// The flight runs under its issuer's context. When a refresh
			// cycle is superseded its cancellation fails every joined
			// caller too; a caller whose own context is still live gets
			// a fresh flight instead of the stale cycle's error.
			if ctx.Err() == nil && errors.Is(err, errFlightCancelled) {
				continue
			}
			return zero, err
		}
		return value, nil
	}
}

func fetchFlight[T any](ctx context.Context, s *Service, key string, derive func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		// A racing caller may have populated the cache while this call
		// waited on the flight lock.
		if value, ok := cacheGet[T](ctx, s, key); ok {
			return value, nil
		}

		started := s.now()
		value, err := retry.Value(ctx, s.policy, func(ctx context.Context) (T, error) {
			v, err := derive(ctx)
			if err != nil && isIntegrityError(err) {
				// Retrying a structurally invalid derivation cannot fix it.
				return v, retry.Permanent{Err: err}
			}
			return v, err
		})
		metrics.RecordDatasetDerive(key, s.now().Sub(started), err == nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", errFlightCancelled, err)
			}
			return nil, err
		}

		if encoded, marshalErr := json.Marshal(value); marshalErr == nil {
			if cacheErr := s.cache.Set(ctx, key, encoded, s.ttl); cacheErr != nil {
				s.log.WithError(cacheErr).WithField("key", key).Warn("cache store failed")
			}
		}
		return value, nil
	})
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}

func cacheGet[T any](ctx context.Context, s *Service, key string) (T, bool) {
	var value T
	encoded, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache read failed")
		return value, false
	}
	if !ok {
		return value, false
	}
	if err := json.Unmarshal(encoded, &value); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache entry corrupt, discarding")
		_ = s.cache.Invalidate(ctx, key)
		var zero T
		return zero, false
	}
	return value, true
}

func isIntegrityError(err error) bool {
	return errors.Is(err, market.ErrInvalidStats) || errors.Is(err, market.ErrInvalidDataset)
}

package marketdata

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/TokenPulse/dashboard_core/internal/app/domain/market"
)

// The series and holder models below reconstruct plausible history from a
// single snapshot. Noise is seeded from the pair id and the bucket
// timestamp, so a refresh regenerates identical points for unchanged
// buckets instead of repainting the whole chart.

const (
	topHolderCount      = 20
	topHolderLeadShare  = 8.0  // percent of supply held by the largest holder
	topHolderShareDecay = 0.78 // geometric decay between ranked holders
	fallbackHolderCount = 150
)

func bucketRand(pairID string, ts time.Time, salt string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(pairID))
	h.Write([]byte(salt))
	var buf [8]byte
	unix := ts.Unix()
	for i := 0; i < 8; i++ {
		buf[i] = byte(unix >> (8 * i))
	}
	h.Write(buf[:])
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

// synthesizeSeries reconstructs an ordered window of samples anchored at
// the snapshot. Timestamps are strictly increasing and the point count is
// fixed by window/granularity.
func synthesizeSeries(snap market.MarketSnapshot, window market.Window, now time.Time) []market.SeriesPoint {
	step := window.Granularity()
	span := time.Duration(window.Days()) * 24 * time.Hour
	count := int(span / step)

	end := now.Truncate(step)
	start := end.Add(-time.Duration(count-1) * step)

	// Anchor the oldest point on the 24h change extrapolated across the
	// window, then walk forward with bounded per-bucket noise so the path
	// ends exactly at the current price.
	drift := snap.PriceChange24h / 100 * float64(window.Days())
	if drift < -0.95 {
		drift = -0.95
	}
	baseline := snap.Price / (1 + drift)

	pointsPerDay := float64(24*time.Hour) / float64(step)
	buyRatio := 0.5
	if total := snap.TxCount24h(); total > 0 {
		buyRatio = float64(snap.Buys24h) / float64(total)
	}
	holderEstimate := estimateHolders(snap)

	points := make([]market.SeriesPoint, count)
	for i := 0; i < count; i++ {
		ts := start.Add(time.Duration(i) * step)
		rnd := bucketRand(snap.PairID, ts, "series")

		progress := float64(i) / float64(count-1)
		if count == 1 {
			progress = 1
		}
		trend := baseline * math.Pow(1+drift, progress)
		price := trend * (1 + (rnd.Float64()-0.5)*0.04)
		if i == count-1 {
			price = snap.Price
		}

		volume := snap.Volume24h / pointsPerDay * (0.55 + rnd.Float64()*0.9)
		holders := int(float64(holderEstimate) * (0.92 + 0.08*progress) * (1 + (rnd.Float64()-0.5)*0.01))
		whale := clamp01(rnd.Float64()*0.6 + math.Abs(price-trend)/trend*8)

		txPerBucket := float64(snap.TxCount24h()) / pointsPerDay
		buys := int(txPerBucket * buyRatio * (0.7 + rnd.Float64()*0.6))
		sells := int(txPerBucket * (1 - buyRatio) * (0.7 + rnd.Float64()*0.6))

		points[i] = market.SeriesPoint{
			Timestamp:     ts,
			Price:         price,
			Volume:        volume,
			Holders:       holders,
			WhaleActivity: whale,
			Buys:          buys,
			Sells:         sells,
		}
	}
	return points
}

// synthesizeHolderSummary estimates the holder set. The top of the book
// follows a fixed descending geometric share distribution; the total count
// is scaled from market cap with a floor.
func synthesizeHolderSummary(snap market.MarketSnapshot) market.HolderSummary {
	totalSupply := 0.0
	if snap.MarketCap > 0 && snap.Price > 0 {
		totalSupply = snap.MarketCap / snap.Price
	}

	top := make([]market.Holder, 0, topHolderCount)
	whales := 0
	share := topHolderLeadShare
	for i := 0; i < topHolderCount; i++ {
		rnd := bucketRand(snap.PairID, snap.FetchedAt.Truncate(24*time.Hour), fmt.Sprintf("holder-%d", i))
		percent := share * (0.9 + rnd.Float64()*0.2)
		holder := market.Holder{
			Address: syntheticAddress(snap.PairID, i),
			Balance: totalSupply * percent / 100,
			Percent: percent,
			Class:   market.ClassifyHolder(percent),
		}
		if holder.Class == market.HolderWhale {
			whales++
		}
		top = append(top, holder)
		share *= topHolderShareDecay
	}

	score := 0.3
	if total := snap.TxCount24h(); total > 0 {
		imbalance := math.Abs(float64(snap.Buys24h-snap.Sells24h)) / float64(total)
		score = clamp01(0.25 + imbalance + snap.Volume24h/math.Max(snap.Liquidity, 1)*0.05)
	}

	return market.HolderSummary{
		TotalHolders:       estimateHolders(snap),
		WhaleCount:         whales,
		WhaleActivityScore: score,
		TopHolders:         top,
	}
}

func estimateHolders(snap market.MarketSnapshot) int {
	if snap.MarketCap <= 0 {
		return fallbackHolderCount
	}
	estimate := int(math.Sqrt(snap.MarketCap) * 1.5)
	if estimate < fallbackHolderCount {
		estimate = fallbackHolderCount
	}
	return estimate
}

func syntheticAddress(pairID string, index int) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s:%d", pairID, index)
	return fmt.Sprintf("0x%016x%016x", h.Sum64(), uint64(index)*0x9e3779b97f4a7c15)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package orchestrator

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/TokenPulse/dashboard_core/internal/app/domain/market"
)

const (
	// syntheticBalanceDecay is the fixed geometric ratio for padded small
	// holder balances.
	syntheticBalanceDecay = 0.995
	// fallbackTotalSupply is used when market cap or price are unusable.
	fallbackTotalSupply = 1_000_000_000.0
	// circulatingShare of total supply assumed liquid.
	circulatingShare = 0.95
	// poolFeeRate is the assumed pool fee tier applied to 24h volume.
	poolFeeRate = 0.003
	// largeTransferShare of 24h volume above which a transfer is flagged.
	largeTransferShare = 0.01

	maxSyntheticTx = 100
	minSyntheticTx = 50
	txSpacing      = 5 * time.Minute
)

// deriveHolders classifies the provider's top holder list and pads the
// remainder up to the reported total with synthetic small holders whose
// balances follow a fixed descending geometric distribution. Real
// per-address chain data is not available to this layer.
func (s *Service) deriveHolders(summary market.HolderSummary) HoldersDataset {
	holders := make([]market.Holder, 0, len(summary.TopHolders))
	distribution := map[market.HolderClass]int{
		market.HolderWhale:  0,
		market.HolderLarge:  0,
		market.HolderMedium: 0,
		market.HolderSmall:  0,
	}

	smallest := math.MaxFloat64
	for _, holder := range summary.TopHolders {
		holder.Class = market.ClassifyHolder(holder.Percent)
		distribution[holder.Class]++
		holders = append(holders, holder)
		if holder.Balance > 0 && holder.Balance < smallest {
			smallest = holder.Balance
		}
	}

	remainder := summary.TotalHolders - len(holders)
	if remainder > 0 {
		balance := 1000.0
		if smallest != math.MaxFloat64 {
			balance = smallest * 0.8
		}
		for i := 0; i < remainder; i++ {
			holders = append(holders, market.Holder{
				Address:   fmt.Sprintf("0xsynth%010d", i),
				Balance:   balance,
				Class:     market.HolderSmall,
				Synthetic: true,
			})
			distribution[market.HolderSmall]++
			balance *= syntheticBalanceDecay
		}
	}

	return HoldersDataset{
		Holders:      holders,
		Distribution: distribution,
		TotalHolders: summary.TotalHolders,
		WhaleCount:   distribution[market.HolderWhale],
		GeneratedAt:  s.now(),
	}
}

// deriveTransactions synthesizes min(100, max(50, txCount24h)) transfers
// spaced five minutes apart going backward from now.
func (s *Service) deriveTransactions(snap market.MarketSnapshot) []market.Transaction {
	count := snap.TxCount24h()
	if count < minSyntheticTx {
		count = minSyntheticTx
	}
	if count > maxSyntheticTx {
		count = maxSyntheticTx
	}

	buyRatio := 0.5
	if total := snap.TxCount24h(); total > 0 {
		buyRatio = float64(snap.Buys24h) / float64(total)
	}

	now := s.now()
	rnd := rand.New(rand.NewSource(txSeed(snap.PairID, now.Truncate(txSpacing))))

	txs := make([]market.Transaction, count)
	for i := 0; i < count; i++ {
		ts := now.Add(-time.Duration(i) * txSpacing)
		amountUSD := snap.Price * (10 + rnd.Float64()*990)
		if rnd.Float64() < 0.03 {
			// Occasional outsized transfer so the large-transfer marker
			// has something to mark.
			amountUSD *= 20
		}

		txs[i] = market.Transaction{
			ID:              fmt.Sprintf("%s-%d-%d", snap.PairID, ts.Unix(), i),
			Timestamp:       ts,
			From:            fmt.Sprintf("0x%08x", rnd.Uint32()),
			To:              fmt.Sprintf("0x%08x", rnd.Uint32()),
			Amount:          amountUSD / math.Max(snap.Price, 1e-12),
			AmountUSD:       amountUSD,
			IsBuy:           rnd.Float64() < buyRatio,
			IsLargeTransfer: largeTransfer(amountUSD, snap.Volume24h),
		}
	}
	return txs
}

// largeTransfer reports whether an amount exceeds 1% of 24h volume.
func largeTransfer(amountUSD, volume24h float64) bool {
	if volume24h <= 0 {
		return false
	}
	return amountUSD > volume24h*largeTransferShare
}

// derivePool maps liquidity and volume into pool economics. Reserves
// assume a balanced pool: half the TVL on each side.
func derivePool(snap market.MarketSnapshot) market.PoolData {
	tokenReserve := 0.0
	if snap.Price > 0 {
		tokenReserve = snap.Liquidity / 2 / snap.Price
	}
	return market.PoolData{
		TVL:          snap.Liquidity,
		Volume24h:    snap.Volume24h,
		Fees24h:      snap.Volume24h * poolFeeRate,
		TokenReserve: tokenReserve,
		QuoteReserve: snap.Liquidity / 2,
	}
}

// deriveStats combines supply estimates, concentration, and synthesized
// wallet activity.
func (s *Service) deriveStats(snap market.MarketSnapshot, summary market.HolderSummary) (market.TokenStats, error) {
	totalSupply := fallbackTotalSupply
	if snap.MarketCap > 0 && snap.Price > 0 {
		totalSupply = snap.MarketCap / snap.Price
	}
	if totalSupply <= 0 {
		return market.TokenStats{}, fmt.Errorf("%w: computed total supply %v", market.ErrInvalidStats, totalSupply)
	}

	top10 := 0.0
	for i, holder := range summary.TopHolders {
		if i >= 10 {
			break
		}
		top10 += holder.Balance
	}

	active := make(map[string]struct{})
	cutoff := s.now().Add(-24 * time.Hour)
	for _, tx := range s.deriveTransactions(snap) {
		if tx.Timestamp.Before(cutoff) {
			continue
		}
		active[tx.From] = struct{}{}
		active[tx.To] = struct{}{}
	}

	return market.TokenStats{
		TotalSupply:        totalSupply,
		CirculatingSupply:  totalSupply * circulatingShare,
		Top10Concentration: top10 / totalSupply,
		DailyActiveWallets: len(active),
		HolderCount:        summary.TotalHolders,
	}, nil
}

// reshapeChartData fans the provider series out into the four parallel
// dashboard series and the candle sequence the renderer consumes.
func (s *Service) reshapeChartData(snap market.MarketSnapshot, window market.Window, points []market.SeriesPoint) (market.ChartData, error) {
	if len(points) == 0 {
		return market.ChartData{}, fmt.Errorf("%w: empty series for window %s", market.ErrInvalidDataset, window)
	}
	for i := 1; i < len(points); i++ {
		if !points[i].Timestamp.After(points[i-1].Timestamp) {
			return market.ChartData{}, fmt.Errorf("%w: series timestamps not strictly increasing", market.ErrInvalidDataset)
		}
	}

	data := market.ChartData{
		Window:        window,
		Candles:       buildCandles(points),
		Price:         make([]market.SeriesPoint, len(points)),
		Volume:        make([]market.SeriesPoint, len(points)),
		HolderCount:   make([]market.SeriesPoint, len(points)),
		WhaleActivity: make([]market.SeriesPoint, len(points)),
		GeneratedAt:   s.now(),
	}
	for i, point := range points {
		base := market.SeriesPoint{Timestamp: point.Timestamp}

		price := base
		price.Price = point.Price
		data.Price[i] = price

		volume := base
		volume.Volume = point.Volume
		data.Volume[i] = volume

		holders := base
		holders.Holders = point.Holders
		data.HolderCount[i] = holders

		whale := base
		whale.WhaleActivity = point.WhaleActivity
		data.WhaleActivity[i] = whale
	}
	return data, nil
}

// buildCandles folds per-bucket samples into OHLCV records. Each candle
// opens at the previous close; the wick spread is scaled by the bucket's
// whale activity so calm periods draw tight candles.
func buildCandles(points []market.SeriesPoint) []market.Candle {
	candles := make([]market.Candle, len(points))
	for i, point := range points {
		open := point.Price
		if i > 0 {
			open = points[i-1].Price
		}
		high := math.Max(open, point.Price) * (1 + 0.002 + 0.01*point.WhaleActivity)
		low := math.Min(open, point.Price) * (1 - 0.002 - 0.01*point.WhaleActivity)

		total := point.Buys + point.Sells
		buyShare := 0.5
		if total > 0 {
			buyShare = float64(point.Buys) / float64(total)
		}

		candles[i] = market.Candle{
			Timestamp:     point.Timestamp,
			Open:          open,
			High:          high,
			Low:           low,
			Close:         point.Price,
			Volume:        point.Volume,
			BuyVolume:     point.Volume * buyShare,
			SellVolume:    point.Volume * (1 - buyShare),
			TxCount:       total,
			WhaleActivity: point.WhaleActivity,
		}
	}
	return candles
}

func txSeed(pairID string, bucket time.Time) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s:%d", pairID, bucket.Unix())
	return int64(h.Sum64())
}

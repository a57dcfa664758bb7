// Package indicator computes technical indicators over an ordered candle
// sequence. Every function returns a slice aligned index-for-index with
// its input, padded with NaN for indices before a full window is
// available, and never mutates its input.
package indicator

import (
	"math"

	"github.com/TokenPulse/dashboard_core/internal/app/domain/market"
)

// Candle metadata keys written by Annotate.
const (
	KeySMA20        = "sma20"
	KeySMA50        = "sma50"
	KeyRSI          = "rsi"
	KeyMACD         = "macd"
	KeyMACDSignal   = "macdSignal"
	KeyMACDHist     = "macdHistogram"
	KeyBollMiddle   = "bollingerMiddle"
	KeyBollUpper    = "bollingerUpper"
	KeyBollLower    = "bollingerLower"
	defaultRSIWin   = 14
	defaultBollWin  = 20
	defaultBollBand = 2.0
)

// Closes extracts the close series from a candle sequence.
func Closes(candles []market.Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

// SMA is the arithmetic mean of the trailing period values. Indices
// before the first full window are NaN.
func SMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA is the exponentially weighted mean with k = 2/(period+1), seeded
// with the first value so it is defined from index 0.
func EMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) == 0 {
		return out
	}
	k := 2.0 / (float64(period) + 1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// RSI is Wilder's relative strength index over trailing period deltas.
// A window with zero average loss reads as 100.
func RSI(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) <= period {
		return out
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// MACD returns the 12/26 EMA difference, its 9-period EMA signal, and
// the histogram (macd minus signal).
func MACD(values []float64) (macd, signal, histogram []float64) {
	fast := EMA(values, 12)
	slow := EMA(values, 26)

	macd = make([]float64, len(values))
	for i := range values {
		macd[i] = fast[i] - slow[i]
	}
	signal = EMA(macd, 9)
	histogram = make([]float64, len(values))
	for i := range values {
		histogram[i] = macd[i] - signal[i]
	}
	return macd, signal, histogram
}

// Bollinger returns the period SMA with bands k standard deviations
// around it. Band indices mirror the SMA's NaN padding.
func Bollinger(values []float64, period int, k float64) (middle, upper, lower []float64) {
	middle = SMA(values, period)
	upper = nanSlice(len(values))
	lower = nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return middle, upper, lower
	}
	for i := period - 1; i < len(values); i++ {
		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - middle[i]
			variance += d * d
		}
		dev := math.Sqrt(variance / float64(period))
		upper[i] = middle[i] + k*dev
		lower[i] = middle[i] - k*dev
	}
	return middle, upper, lower
}

// Annotate computes the standard dashboard indicator set and attaches
// the values into each candle's metadata bag. Re-annotating the same
// data is a no-op beyond rewriting identical values.
func Annotate(candles []market.Candle) {
	if len(candles) == 0 {
		return
	}
	closes := Closes(candles)

	sma20 := SMA(closes, 20)
	sma50 := SMA(closes, 50)
	rsi := RSI(closes, defaultRSIWin)
	macd, signal, histogram := MACD(closes)
	middle, upper, lower := Bollinger(closes, defaultBollWin, defaultBollBand)

	for i := range candles {
		if candles[i].Meta == nil {
			candles[i].Meta = make(map[string]float64)
		}
		candles[i].Meta[KeySMA20] = sma20[i]
		candles[i].Meta[KeySMA50] = sma50[i]
		candles[i].Meta[KeyRSI] = rsi[i]
		candles[i].Meta[KeyMACD] = macd[i]
		candles[i].Meta[KeyMACDSignal] = signal[i]
		candles[i].Meta[KeyMACDHist] = histogram[i]
		candles[i].Meta[KeyBollMiddle] = middle[i]
		candles[i].Meta[KeyBollUpper] = upper[i]
		candles[i].Meta[KeyBollLower] = lower[i]
	}
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

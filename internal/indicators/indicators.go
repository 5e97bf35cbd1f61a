package indicators

import "math"

// Bar is one OHLCV candle of a price series.
type Bar struct {
	OpenTime int64 // epoch millis
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Closes extracts the close column from a series of bars.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Last returns the final value of a series, or NaN when the series is empty.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

// SMA computes a simple moving average aligned to the input index.
// The first period-1 values are NaN.
func SMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
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

// EMA computes an exponential moving average with alpha = 2/(period+1),
// seeded on the first value. Defined for every index.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI computes the relative strength index over rolling mean gain/loss.
// The first period values are NaN. A series with losses but no gains reads 0,
// gains but no losses reads 100, and a flat window stays NaN.
func RSI(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) <= period {
		return out
	}
	gains := make([]float64, len(values))
	losses := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}
	for i := period; i < len(values); i++ {
		var avgGain, avgLoss float64
		for j := i - period + 1; j <= i; j++ {
			avgGain += gains[j]
			avgLoss += losses[j]
		}
		avgGain /= float64(period)
		avgLoss /= float64(period)

		switch {
		case avgLoss == 0 && avgGain == 0:
			// flat window: undefined
		case avgLoss == 0:
			out[i] = 100
		default:
			rs := avgGain / avgLoss
			out[i] = 100 - (100 / (1 + rs))
		}
	}
	return out
}

// MACD computes the MACD line (fast EMA - slow EMA), its signal EMA and the
// histogram (macd - signal), all aligned to the input index.
func MACD(values []float64, fast, slow, signal int) (macd, signalLine, histogram []float64) {
	emaFast := EMA(values, fast)
	emaSlow := EMA(values, slow)

	macd = make([]float64, len(values))
	for i := range values {
		macd[i] = emaFast[i] - emaSlow[i]
	}
	signalLine = EMA(macd, signal)
	histogram = make([]float64, len(values))
	for i := range values {
		histogram[i] = macd[i] - signalLine[i]
	}
	return macd, signalLine, histogram
}

// Bollinger computes the middle SMA band and upper/lower bands at k sample
// standard deviations. The first period-1 values are NaN.
func Bollinger(values []float64, period int, k float64) (upper, middle, lower []float64) {
	middle = SMA(values, period)
	upper = nanSeries(len(values))
	lower = nanSeries(len(values))
	if period <= 1 || len(values) < period {
		return upper, middle, lower
	}
	for i := period - 1; i < len(values); i++ {
		mean := middle[i]
		var ss float64
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - mean
			ss += d * d
		}
		std := math.Sqrt(ss / float64(period-1))
		upper[i] = mean + k*std
		lower[i] = mean - k*std
	}
	return upper, middle, lower
}

// ATR computes the average true range: a rolling mean of
// max(high-low, |high-prevClose|, |low-prevClose|).
// The first bar has no previous close, so its true range is high-low.
func ATR(bars []Bar, period int) []float64 {
	tr := make([]float64, len(bars))
	for i, b := range bars {
		hl := b.High - b.Low
		if i == 0 {
			tr[i] = hl
			continue
		}
		prevClose := bars[i-1].Close
		tr[i] = math.Max(hl, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
	}
	return SMA(tr, period)
}

// OBV computes on-balance volume: the cumulative sum of sign(Δclose)·volume.
func OBV(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	cum := 0.0
	for i, b := range bars {
		if i > 0 {
			switch {
			case b.Close > bars[i-1].Close:
				cum += b.Volume
			case b.Close < bars[i-1].Close:
				cum -= b.Volume
			}
		}
		out[i] = cum
	}
	return out
}

// MFI computes the money flow index over typical-price-weighted volume.
// The first period-1 values are NaN. All-positive flow reads 100; a window
// with zero flow both ways stays NaN.
func MFI(bars []Bar, period int) []float64 {
	out := nanSeries(len(bars))
	if period <= 0 || len(bars) < period {
		return out
	}
	positive := make([]float64, len(bars))
	negative := make([]float64, len(bars))
	prevTP := math.NaN()
	for i, b := range bars {
		tp := (b.High + b.Low + b.Close) / 3
		flow := tp * b.Volume
		if tp > prevTP {
			positive[i] = flow
		} else if tp < prevTP {
			negative[i] = flow
		}
		prevTP = tp
	}
	for i := period - 1; i < len(bars); i++ {
		var pos, neg float64
		for j := i - period + 1; j <= i; j++ {
			pos += positive[j]
			neg += negative[j]
		}
		switch {
		case pos == 0 && neg == 0:
			// no directional flow: undefined
		case neg == 0:
			out[i] = 100
		default:
			out[i] = 100 - (100 / (1 + pos/neg))
		}
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

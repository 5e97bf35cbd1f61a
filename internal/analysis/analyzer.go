package analysis

import (
	"errors"
	"fmt"
	"math"
	"time"

	"dualinvest-core/internal/indicators"
)

// ErrInsufficientData is returned when the price series is too short for the
// slowest indicator the analyzer depends on.
var ErrInsufficientData = errors.New("price series too short for analysis")

// Config tunes the analyzer thresholds. Zero values fall back to defaults.
type Config struct {
	SupportResistanceWindow int     // default 20 bars
	StrongTrendDeviation    float64 // price deviation from SMA-20, default 0.02
	VolatilityLow           float64 // atr/price below this is LOW, default 0.02
	VolatilityHigh          float64 // atr/price above this is HIGH, default 0.05
}

func (c Config) withDefaults() Config {
	if c.SupportResistanceWindow <= 0 {
		c.SupportResistanceWindow = 20
	}
	if c.StrongTrendDeviation <= 0 {
		c.StrongTrendDeviation = 0.02
	}
	if c.VolatilityLow <= 0 {
		c.VolatilityLow = 0.02
	}
	if c.VolatilityHigh <= 0 {
		c.VolatilityHigh = 0.05
	}
	return c
}

// minBars covers SMA-50 plus warm-up slack for RSI/MACD tails.
const minBars = 60

// Analyzer turns a price series into a Snapshot. It is stateless and safe
// for concurrent use.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer builds an analyzer with the given thresholds.
func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg.withDefaults()}
}

// Analyze computes the full market snapshot for one symbol. currentPrice is
// the live price (which may sit ahead of the last bar close); change24h is
// the 24h change in percent.
func (a *Analyzer) Analyze(symbol string, bars []indicators.Bar, currentPrice, change24h, volume24h float64) (*Snapshot, error) {
	if len(bars) < minBars {
		return nil, fmt.Errorf("%w: got %d bars, need %d", ErrInsufficientData, len(bars), minBars)
	}
	if currentPrice <= 0 {
		currentPrice = bars[len(bars)-1].Close
	}

	closes := indicators.Closes(bars)

	snap := &Snapshot{
		Symbol:         symbol,
		CurrentPrice:   currentPrice,
		PriceChange24h: change24h,
		Volume24h:      volume24h,
		Timestamp:      time.Now().UTC(),
	}

	snap.Trend = a.analyzeTrend(closes, currentPrice)
	snap.Signals = a.marketSignals(closes, currentPrice)
	snap.SupportResistance = a.supportResistance(bars)
	snap.Volatility = a.volatility(bars, currentPrice)
	snap.Volume = a.volumeAnalysis(bars)

	return snap, nil
}

func (a *Analyzer) analyzeTrend(closes []float64, currentPrice float64) Trend {
	sma20 := indicators.Last(indicators.SMA(closes, 20))
	sma50 := indicators.Last(indicators.SMA(closes, 50))

	t := Trend{Direction: Sideways, Strength: Neutral, SMA20: sma20, SMA50: sma50}
	switch {
	case currentPrice > sma20 && sma20 > sma50:
		t.Direction = Bullish
		t.Strength = Moderate
		if currentPrice > sma20*(1+a.cfg.StrongTrendDeviation) {
			t.Strength = Strong
		}
	case currentPrice < sma20 && sma20 < sma50:
		t.Direction = Bearish
		t.Strength = Moderate
		if currentPrice < sma20*(1-a.cfg.StrongTrendDeviation) {
			t.Strength = Strong
		}
	}
	return t
}

func (a *Analyzer) marketSignals(closes []float64, currentPrice float64) Signals {
	rsi := indicators.Last(indicators.RSI(closes, 14))
	_, _, hist := indicators.MACD(closes, 12, 26, 9)
	macdHist := indicators.Last(hist)
	upper, _, lower := indicators.Bollinger(closes, 20, 2)

	s := Signals{CurrentRSI: rsi, MACDHistogram: macdHist}

	// NaN tails fail every comparison and fall through to the neutral arm.
	switch {
	case rsi < 30:
		s.RSI = "OVERSOLD"
	case rsi > 70:
		s.RSI = "OVERBOUGHT"
	default:
		s.RSI = "NEUTRAL"
	}

	if macdHist > 0 {
		s.MACD = "BUY"
	} else {
		s.MACD = "SELL"
	}

	switch {
	case currentPrice < indicators.Last(lower):
		s.Bollinger = "BUY"
	case currentPrice > indicators.Last(upper):
		s.Bollinger = "SELL"
	default:
		s.Bollinger = "HOLD"
	}

	buyVotes := btoi(s.RSI == "OVERSOLD") + btoi(s.MACD == "BUY") + btoi(s.Bollinger == "BUY")
	sellVotes := btoi(s.RSI == "OVERBOUGHT") + btoi(s.MACD == "SELL") + btoi(s.Bollinger == "SELL")

	switch {
	case buyVotes >= 2:
		s.Recommendation = StrongBuy
	case buyVotes > sellVotes:
		s.Recommendation = Buy
	case sellVotes >= 2:
		s.Recommendation = StrongSell
	case sellVotes > buyVotes:
		s.Recommendation = Sell
	default:
		s.Recommendation = Hold
	}
	return s
}

func (a *Analyzer) supportResistance(bars []indicators.Bar) SupportResistance {
	window := bars
	if len(bars) > a.cfg.SupportResistanceWindow {
		window = bars[len(bars)-a.cfg.SupportResistanceWindow:]
	}

	resistance := math.Inf(-1)
	support := math.Inf(1)
	for _, b := range window {
		resistance = math.Max(resistance, b.High)
		support = math.Min(support, b.Low)
	}

	last := window[len(window)-1]
	pivot := (last.High + last.Low + last.Close) / 3
	return SupportResistance{
		Support:    support,
		Resistance: resistance,
		Pivot:      pivot,
		R1:         2*pivot - last.Low,
		R2:         pivot + (last.High - last.Low),
		S1:         2*pivot - last.High,
		S2:         pivot - (last.High - last.Low),
	}
}

func (a *Analyzer) volatility(bars []indicators.Bar, currentPrice float64) Volatility {
	atr := indicators.Last(indicators.ATR(bars, 14))
	ratio := atr / currentPrice

	level := RiskLow
	switch {
	case ratio > a.cfg.VolatilityHigh:
		level = RiskHigh
	case ratio > a.cfg.VolatilityLow:
		level = RiskMedium
	}
	return Volatility{ATR: atr, Ratio: ratio, RiskLevel: level}
}

func (a *Analyzer) volumeAnalysis(bars []indicators.Bar) VolumeAnalysis {
	obv := indicators.OBV(bars)
	mfi := indicators.Last(indicators.MFI(bars, 14))

	trend := "NEGATIVE"
	if len(obv) >= 10 && obv[len(obv)-1] > obv[len(obv)-10] {
		trend = "POSITIVE"
	}
	return VolumeAnalysis{OBVTrend: trend, MFI: mfi}
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

package analysis

import "time"

// TrendDirection classifies the moving-average alignment.
type TrendDirection string

const (
	Bullish  TrendDirection = "BULLISH"
	Bearish  TrendDirection = "BEARISH"
	Sideways TrendDirection = "SIDEWAYS"
)

// TrendStrength qualifies how far price sits from SMA-20 in the trend direction.
type TrendStrength string

const (
	Strong   TrendStrength = "STRONG"
	Moderate TrendStrength = "MODERATE"
	Neutral  TrendStrength = "NEUTRAL"
)

// Recommendation is the vote-based overall signal.
type Recommendation string

const (
	StrongBuy  Recommendation = "STRONG_BUY"
	Buy        Recommendation = "BUY"
	Hold       Recommendation = "HOLD"
	Sell       Recommendation = "SELL"
	StrongSell Recommendation = "STRONG_SELL"
)

// RiskLevel tiers the ATR/price volatility ratio.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Trend holds the moving-average trend classification.
type Trend struct {
	Direction TrendDirection `json:"direction"`
	Strength  TrendStrength  `json:"strength"`
	SMA20     float64        `json:"sma_20"`
	SMA50     float64        `json:"sma_50"`
}

// Signals holds the discrete per-indicator signals and the overall vote.
type Signals struct {
	RSI            string         `json:"rsi_signal"`  // OVERSOLD, OVERBOUGHT, NEUTRAL
	MACD           string         `json:"macd_signal"` // BUY, SELL
	Bollinger      string         `json:"bb_signal"`   // BUY, SELL, HOLD
	Recommendation Recommendation `json:"recommendation"`
	CurrentRSI     float64        `json:"current_rsi"`
	MACDHistogram  float64        `json:"macd_histogram"`
}

// SupportResistance holds window extremes plus classic pivot levels.
// The max/min-window method can put support above the pivot at range edges,
// so consumers must treat these as advisory bounds, not hard ordering.
type SupportResistance struct {
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
	Pivot      float64 `json:"pivot"`
	R1         float64 `json:"r1"`
	R2         float64 `json:"r2"`
	S1         float64 `json:"s1"`
	S2         float64 `json:"s2"`
}

// Volatility holds the ATR-based volatility view.
type Volatility struct {
	ATR       float64   `json:"atr"`
	Ratio     float64   `json:"ratio"` // atr / current price
	RiskLevel RiskLevel `json:"risk_level"`
}

// VolumeAnalysis holds volume-derived momentum hints.
type VolumeAnalysis struct {
	OBVTrend string  `json:"obv_trend"` // POSITIVE, NEGATIVE
	MFI      float64 `json:"mfi"`
}

// Snapshot is the derived point-in-time market view for one symbol. It is
// recomputed on every evaluation request; the engine never caches one.
type Snapshot struct {
	Symbol            string            `json:"symbol"`
	CurrentPrice      float64           `json:"current_price"`
	PriceChange24h    float64           `json:"price_change_24h"` // percent
	Volume24h         float64           `json:"volume_24h"`
	Trend             Trend             `json:"trend"`
	Signals           Signals           `json:"signals"`
	SupportResistance SupportResistance `json:"support_resistance"`
	Volatility        Volatility        `json:"volatility"`
	Volume            VolumeAnalysis    `json:"volume_analysis"`
	Timestamp         time.Time         `json:"timestamp"`
}

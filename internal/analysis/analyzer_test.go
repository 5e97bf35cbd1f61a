package analysis

import (
	"errors"
	"math"
	"testing"

	"dualinvest-core/internal/indicators"
)

func syntheticBars(n int, closeAt func(i int) float64) []indicators.Bar {
	bars := make([]indicators.Bar, n)
	for i := range bars {
		c := closeAt(i)
		bars[i] = indicators.Bar{
			OpenTime: int64(i) * 3600_000,
			Open:     c * 0.999,
			High:     c * 1.002,
			Low:      c * 0.998,
			Close:    c,
			Volume:   1000,
		}
	}
	return bars
}

func TestAnalyzeBullishOnMonotonicRise(t *testing.T) {
	bars := syntheticBars(200, func(i int) float64 { return 100 + float64(i) })
	a := NewAnalyzer(Config{})

	snap, err := a.Analyze("BTCUSDT", bars, 0, 1.5, 0)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if snap.Trend.Direction != Bullish {
		t.Fatalf("trend=%s, expected BULLISH on monotonically increasing closes", snap.Trend.Direction)
	}
	if snap.Trend.Strength == Neutral {
		t.Fatal("trend strength NEUTRAL, expected STRONG or MODERATE in a trend")
	}
	if snap.CurrentPrice != bars[len(bars)-1].Close {
		t.Fatalf("CurrentPrice=%v, expected fallback to last close", snap.CurrentPrice)
	}
}

func TestAnalyzeBearishOnMonotonicFall(t *testing.T) {
	bars := syntheticBars(200, func(i int) float64 { return 500 - float64(i) })
	a := NewAnalyzer(Config{})

	snap, err := a.Analyze("ETHUSDT", bars, 0, -2.0, 0)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if snap.Trend.Direction != Bearish {
		t.Fatalf("trend=%s, expected BEARISH", snap.Trend.Direction)
	}
	if snap.Signals.MACD != "SELL" {
		t.Fatalf("macd signal=%s, expected SELL in a falling market", snap.Signals.MACD)
	}
}

func TestAnalyzeInsufficientData(t *testing.T) {
	bars := syntheticBars(30, func(i int) float64 { return 100 })
	a := NewAnalyzer(Config{})

	_, err := a.Analyze("BTCUSDT", bars, 100, 0, 0)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("err=%v, expected ErrInsufficientData", err)
	}
}

func TestAnalyzeFlatSeriesDoesNotPanic(t *testing.T) {
	// identical support/resistance and undefined RSI are expected market
	// conditions, not errors
	bars := syntheticBars(100, func(i int) float64 { return 100 })
	a := NewAnalyzer(Config{})

	snap, err := a.Analyze("BTCUSDT", bars, 100, 0, 0)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if snap.Signals.RSI != "NEUTRAL" {
		t.Fatalf("rsi signal=%s, expected NEUTRAL when RSI is undefined", snap.Signals.RSI)
	}
	if !math.IsNaN(snap.Signals.CurrentRSI) {
		t.Fatalf("CurrentRSI=%v, expected NaN on flat series", snap.Signals.CurrentRSI)
	}
	if snap.Trend.Direction != Sideways {
		t.Fatalf("trend=%s, expected SIDEWAYS", snap.Trend.Direction)
	}
}

func TestVolatilityTiers(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		want  RiskLevel
	}{
		{"low", 0.01, RiskLow},
		{"medium", 0.03, RiskMedium},
		{"high", 0.08, RiskHigh},
	}

	a := NewAnalyzer(Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// bar range chosen so ATR/price lands on the wanted ratio
			price := 100.0
			bars := make([]indicators.Bar, 80)
			for i := range bars {
				bars[i] = indicators.Bar{
					High:   price + price*tt.ratio/2,
					Low:    price - price*tt.ratio/2,
					Close:  price,
					Volume: 100,
				}
			}
			v := a.volatility(bars, price)
			if v.RiskLevel != tt.want {
				t.Fatalf("risk level=%s (ratio %v), expected %s", v.RiskLevel, v.Ratio, tt.want)
			}
		})
	}
}

func TestSupportResistanceWindow(t *testing.T) {
	// old extreme outside the 20-bar window must not count
	bars := syntheticBars(100, func(i int) float64 { return 100 })
	bars[10].High = 500
	bars[len(bars)-5].High = 110
	bars[len(bars)-3].Low = 90

	a := NewAnalyzer(Config{})
	sr := a.supportResistance(bars)

	if sr.Resistance >= 500 {
		t.Fatalf("resistance=%v includes bar outside window", sr.Resistance)
	}
	if sr.Resistance < 110 {
		t.Fatalf("resistance=%v, expected window high 110*1.002 region", sr.Resistance)
	}
	if sr.Support > 90 {
		t.Fatalf("support=%v, expected window low", sr.Support)
	}
	if sr.S1 >= sr.Pivot || sr.R1 <= sr.Pivot {
		t.Fatalf("pivot levels out of order: s1=%v pivot=%v r1=%v", sr.S1, sr.Pivot, sr.R1)
	}
}

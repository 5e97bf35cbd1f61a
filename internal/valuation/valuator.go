package valuation

import (
	"fmt"
	"math"

	"dualinvest-core/internal/analysis"
	"dualinvest-core/internal/product"
)

// Config tunes the recommendation triggers. Zero values fall back to defaults.
type Config struct {
	MinAPY            float64 // default 0.15
	OptimalProbLow    float64 // default 0.4
	OptimalProbHigh   float64 // default 0.7
	MinRiskAdjusted   float64 // default 50
	StrikeRoundDigits int     // default 2
}

func (c Config) withDefaults() Config {
	if c.MinAPY <= 0 {
		c.MinAPY = 0.15
	}
	if c.OptimalProbLow <= 0 {
		c.OptimalProbLow = 0.4
	}
	if c.OptimalProbHigh <= 0 {
		c.OptimalProbHigh = 0.7
	}
	if c.MinRiskAdjusted <= 0 {
		c.MinRiskAdjusted = 50
	}
	if c.StrikeRoundDigits <= 0 {
		c.StrikeRoundDigits = 2
	}
	return c
}

// Summary carries the market context an evaluation was made against.
type Summary struct {
	CurrentPrice  float64                 `json:"current_price"`
	StrikePrice   float64                 `json:"strike_price"`
	PriceDistance float64                 `json:"price_distance"` // signed fraction of current price
	MarketTrend   analysis.TrendDirection `json:"market_trend"`
	Volatility    analysis.RiskLevel      `json:"volatility"`
}

// Evaluation is the valuator's verdict on one product against one snapshot.
//
// RiskAdjustedScore is a 0-100 reward-to-volatility score. It is a different
// quantity, on a different scale, than the 0-1 risk score the strategy layer
// attaches to decisions; the two must never be compared.
type Evaluation struct {
	ProductID           string   `json:"product_id"`
	Recommend           bool     `json:"recommend"`
	ExerciseProbability float64  `json:"exercise_probability"` // clipped to [0.01, 0.99]
	ExpectedReturn      float64  `json:"expected_return"`      // apy pro-rated over the term
	RiskAdjustedScore   float64  `json:"risk_adjusted_score"`
	Reasons             []string `json:"reasons"`
	Summary             Summary  `json:"summary"`
}

// Valuator estimates exercise probability and attractiveness of dual
// investment products. Stateless; safe for concurrent use.
type Valuator struct {
	cfg Config
}

// NewValuator builds a valuator with the given thresholds.
func NewValuator(cfg Config) *Valuator {
	return &Valuator{cfg: cfg.withDefaults()}
}

// Evaluate scores one product against the current market snapshot.
func (v *Valuator) Evaluate(p product.Product, snap *analysis.Snapshot) Evaluation {
	current := snap.CurrentPrice

	var distance, baseProbability float64
	if p.Type == product.BuyLow {
		// probability that price falls to the strike
		distance = (current - p.StrikePrice) / current
		switch {
		case snap.Signals.Recommendation == analysis.Sell || snap.Signals.Recommendation == analysis.StrongSell:
			baseProbability = 0.6
		case snap.Trend.Direction == analysis.Bearish:
			baseProbability = 0.5
		default:
			baseProbability = 0.3
		}
	} else {
		// probability that price rises to the strike
		distance = (p.StrikePrice - current) / current
		switch {
		case snap.Signals.Recommendation == analysis.Buy || snap.Signals.Recommendation == analysis.StrongBuy:
			baseProbability = 0.6
		case snap.Trend.Direction == analysis.Bullish:
			baseProbability = 0.5
		default:
			baseProbability = 0.3
		}
	}

	volRatio := snap.Volatility.Ratio
	distanceFactor := 0.0
	if volRatio > 0 {
		distanceFactor = math.Max(0, 1-distance/(volRatio*5))
	}
	probability := clip(baseProbability*distanceFactor, 0.01, 0.99)

	expectedReturn := p.APY * float64(p.TermDays) / 365
	riskAdjusted := 100 * expectedReturn / (1 + volRatio)

	// OR-combined triggers: each satisfied one contributes a reason.
	recommend := false
	var reasons []string
	if p.APY >= v.cfg.MinAPY {
		recommend = true
		reasons = append(reasons, fmt.Sprintf("APY %.1f%% meets minimum threshold", p.APY*100))
	}
	if probability > v.cfg.OptimalProbLow && probability < v.cfg.OptimalProbHigh {
		recommend = true
		reasons = append(reasons, fmt.Sprintf("exercise probability %.1f%% is in optimal range", probability*100))
	}
	if riskAdjusted > v.cfg.MinRiskAdjusted {
		recommend = true
		reasons = append(reasons, fmt.Sprintf("risk-adjusted score %.1f is favorable", riskAdjusted))
	}

	return Evaluation{
		ProductID:           p.ID,
		Recommend:           recommend,
		ExerciseProbability: probability,
		ExpectedReturn:      expectedReturn,
		RiskAdjustedScore:   riskAdjusted,
		Reasons:             reasons,
		Summary: Summary{
			CurrentPrice:  current,
			StrikePrice:   p.StrikePrice,
			PriceDistance: distance,
			MarketTrend:   snap.Trend.Direction,
			Volatility:    snap.Volatility.RiskLevel,
		},
	}
}

// OptimalStrike proposes a strike for a new product of the given type,
// anchored on support/resistance and adjusted for trend.
func (v *Valuator) OptimalStrike(currentPrice float64, typ product.Type, snap *analysis.Snapshot) float64 {
	volRatio := snap.Volatility.Ratio

	var strike float64
	if typ == product.BuyLow {
		base := snap.SupportResistance.Support * (1 + volRatio)
		if snap.Trend.Direction == analysis.Bullish {
			strike = math.Min(base*1.02, currentPrice*0.98)
		} else {
			strike = base * 0.98
		}
	} else {
		base := snap.SupportResistance.Resistance * (1 - volRatio)
		if snap.Trend.Direction == analysis.Bearish {
			strike = math.Max(base*0.98, currentPrice*1.02)
		} else {
			strike = base * 1.02
		}
	}
	return roundTo(strike, v.cfg.StrikeRoundDigits)
}

func clip(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func roundTo(v float64, digits int) float64 {
	pow := math.Pow(10, float64(digits))
	return math.Round(v*pow) / pow
}

package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"dualinvest-core/internal/analysis"
	"dualinvest-core/internal/product"
	"dualinvest-core/internal/valuation"
)

// DualInvestmentStrategy is the primary strategy. It blends trend, APY
// attractiveness, risk and technical alignment into one weighted score.
type DualInvestmentStrategy struct {
	valuator      *valuation.Valuator
	minConfidence float64

	minAPY          float64
	maxExerciseProb float64
	optimalVolLow   float64
	optimalVolHigh  float64

	trendWeight     float64
	apyWeight       float64
	riskWeight      float64
	technicalWeight float64
}

// NewDualInvestmentStrategy builds the strategy with default parameters.
// minConfidence <= 0 falls back to 0.6.
func NewDualInvestmentStrategy(v *valuation.Valuator, minConfidence float64) *DualInvestmentStrategy {
	if minConfidence <= 0 {
		minConfidence = 0.6
	}
	return &DualInvestmentStrategy{
		valuator:        v,
		minConfidence:   minConfidence,
		minAPY:          0.10,
		maxExerciseProb: 0.5,
		optimalVolLow:   0.15,
		optimalVolHigh:  0.35,
		trendWeight:     0.3,
		apyWeight:       0.25,
		riskWeight:      0.25,
		technicalWeight: 0.2,
	}
}

func (s *DualInvestmentStrategy) Name() string { return "DualInvestmentStrategy" }

// Analyze scores the product on four weighted factors and maps the total to
// a signal strength. The total is also the confidence; signals below the
// minimum are rejected with ErrLowConfidence.
func (s *DualInvestmentStrategy) Analyze(ctx context.Context, symbol string, snap *analysis.Snapshot, p product.Product) (*Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	eval := s.valuator.Evaluate(p, snap)

	var reasons []string

	trendScore := s.analyzeTrend(snap)
	if trendScore > 0.7 {
		reasons = append(reasons, fmt.Sprintf("strong %s trend detected", snap.Trend.Direction))
	} else if trendScore < 0.3 {
		reasons = append(reasons, "weak or adverse trend")
	}

	apyScore := s.evaluateAPY(p.APY)
	if apyScore > 0.8 {
		reasons = append(reasons, fmt.Sprintf("excellent APY of %.2f%%", p.APY*100))
	} else if apyScore < 0.4 {
		reasons = append(reasons, fmt.Sprintf("low APY of %.2f%%", p.APY*100))
	}

	riskScore := s.assessRisk(eval.ExerciseProbability, snap)
	if riskScore > 0.7 {
		reasons = append(reasons, "favorable risk-reward ratio")
	} else if riskScore < 0.3 {
		reasons = append(reasons, "high risk level detected")
	}

	technicalScore := s.analyzeTechnicals(snap)
	if technicalScore > 0.7 {
		reasons = append(reasons, "positive technical indicators")
	} else if technicalScore < 0.3 {
		reasons = append(reasons, "negative technical signals")
	}

	total := trendScore*s.trendWeight +
		apyScore*s.apyWeight +
		riskScore*s.riskWeight +
		technicalScore*s.technicalWeight

	if total < s.minConfidence {
		return nil, fmt.Errorf("%w: %.2f < %.2f", ErrLowConfidence, total, s.minConfidence)
	}

	return &Signal{
		StrategyName: s.Name(),
		Strength:     strengthFromScore(total),
		Confidence:   total,
		Reasons:      reasons,
		Metadata: map[string]any{
			"scores": map[string]float64{
				"trend":     trendScore,
				"apy":       apyScore,
				"risk":      riskScore,
				"technical": technicalScore,
			},
			"product_id": p.ID,
			"symbol":     symbol,
			// annualized edge used by Kelly sizing
			"expected_return":      p.APY,
			"period_return":        eval.ExpectedReturn,
			"exercise_probability": eval.ExerciseProbability,
		},
		Timestamp: time.Now().UTC(),
	}, nil
}

// PositionSize applies fractional Kelly sizing to the signal.
func (s *DualInvestmentStrategy) PositionSize(sig *Signal, pf Portfolio) float64 {
	return kellyPositionSize(sig.Confidence, signalExpectedReturn(sig), pf)
}

// EvaluateProduct scores a product 0-1 on APY, strike distance, exercise
// probability and term fit against current volatility.
func (s *DualInvestmentStrategy) EvaluateProduct(p product.Product, snap *analysis.Snapshot) (float64, []string) {
	score := 0.0
	var reasons []string

	// APY band, up to 0.3
	switch {
	case p.APY >= 0.30:
		score += 0.3
		reasons = append(reasons, fmt.Sprintf("excellent APY: %.2f%%", p.APY*100))
	case p.APY >= 0.20:
		score += 0.2
		reasons = append(reasons, fmt.Sprintf("good APY: %.2f%%", p.APY*100))
	case p.APY >= s.minAPY:
		score += 0.1
		reasons = append(reasons, fmt.Sprintf("acceptable APY: %.2f%%", p.APY*100))
	default:
		reasons = append(reasons, fmt.Sprintf("APY below minimum: %.2f%%", p.APY*100))
	}

	// strike distance band, up to 0.3
	if snap.CurrentPrice > 0 && p.StrikePrice > 0 {
		distance := math.Abs(p.StrikePrice-snap.CurrentPrice) / snap.CurrentPrice
		side := "below"
		if p.Type == product.SellHigh {
			side = "above"
		}
		switch {
		case distance >= 0.03 && distance <= 0.08:
			score += 0.3
			reasons = append(reasons, fmt.Sprintf("optimal strike distance: %.2f%% %s", distance*100, side))
		case distance >= 0.02 && distance <= 0.10:
			score += 0.2
			reasons = append(reasons, fmt.Sprintf("good strike distance: %.2f%% %s", distance*100, side))
		default:
			score += 0.1
			reasons = append(reasons, "suboptimal strike distance")
		}
	}

	// exercise probability band, up to 0.2
	prob := s.valuator.Evaluate(p, snap).ExerciseProbability
	switch {
	case prob <= 0.2:
		score += 0.2
		reasons = append(reasons, fmt.Sprintf("low exercise probability: %.2f%%", prob*100))
	case prob <= 0.35:
		score += 0.15
		reasons = append(reasons, fmt.Sprintf("moderate exercise probability: %.2f%%", prob*100))
	case prob <= s.maxExerciseProb:
		score += 0.1
		reasons = append(reasons, fmt.Sprintf("acceptable exercise probability: %.2f%%", prob*100))
	default:
		reasons = append(reasons, fmt.Sprintf("high exercise probability: %.2f%%", prob*100))
	}

	// term against volatility regime, up to 0.2
	volRatio := snap.Volatility.Ratio
	switch {
	case volRatio < 0.02:
		if p.TermDays <= 3 {
			score += 0.2
			reasons = append(reasons, "short term suits low volatility")
		} else {
			score += 0.1
		}
	case volRatio > 0.05:
		if p.TermDays >= 7 {
			score += 0.2
			reasons = append(reasons, "longer term suits high volatility")
		} else {
			score += 0.1
		}
	default:
		if p.TermDays >= 3 && p.TermDays <= 7 {
			score += 0.15
			reasons = append(reasons, "term matches volatility conditions")
		} else {
			score += 0.1
		}
	}

	return score, reasons
}

// Decide turns a signal (its own or the ensemble's) into a final decision
// with position sizing, minimum-amount enforcement and risk annotations.
// minConfidence is the ensemble threshold; <= 0 falls back to the
// strategy's own.
func (s *DualInvestmentStrategy) Decide(sig *Signal, p product.Product, snap *analysis.Snapshot, pf Portfolio, minConfidence float64) Decision {
	eval := s.valuator.Evaluate(p, snap)
	prob := eval.ExerciseProbability

	if minConfidence <= 0 {
		minConfidence = s.minConfidence
	}
	shouldInvest := sig.Strength >= Buy && sig.Confidence >= minConfidence
	reasons := append([]string(nil), sig.Reasons...)
	if sig.Strength >= Buy && sig.Confidence < minConfidence {
		reasons = append(reasons, fmt.Sprintf("confidence %.2f below required %.2f", sig.Confidence, minConfidence))
	}

	amount := 0.0
	if shouldInvest {
		amount = s.PositionSize(sig, pf)
		if amount < p.MinAmount {
			shouldInvest = false
			reasons = append(reasons, fmt.Sprintf("position size %.2f below minimum %.2f", amount, p.MinAmount))
		}
	}

	// period return discounted by the chance of conversion
	expectedReturn := eval.ExpectedReturn * (1 - prob)
	riskScore := 1 - s.assessRisk(prob, snap)

	var warnings []string
	if riskScore > 0.7 {
		warnings = append(warnings, "high risk detected")
	}
	if prob > 0.4 {
		warnings = append(warnings, fmt.Sprintf("high exercise probability: %.1f%%", prob*100))
	}

	return Decision{
		ShouldInvest:   shouldInvest,
		ProductID:      p.ID,
		Amount:         amount,
		ExpectedReturn: expectedReturn,
		RiskScore:      riskScore,
		Score:          sig.Confidence,
		Reasons:        reasons,
		Warnings:       warnings,
		Metadata: map[string]any{
			"signal_strength":      sig.Strength.String(),
			"apy":                  p.APY,
			"term_days":            p.TermDays,
			"exercise_probability": prob,
		},
	}
}

func (s *DualInvestmentStrategy) analyzeTrend(snap *analysis.Snapshot) float64 {
	strength := 0.0
	switch snap.Trend.Strength {
	case analysis.Strong:
		strength = 1.0
	case analysis.Moderate:
		strength = 0.5
	}

	switch snap.Trend.Direction {
	case analysis.Bullish:
		return math.Min(0.5+strength*0.5, 1.0)
	case analysis.Bearish:
		return math.Max(0.5-strength*0.3, 0.2)
	default:
		return 0.5
	}
}

func (s *DualInvestmentStrategy) evaluateAPY(apy float64) float64 {
	switch {
	case apy < s.minAPY:
		return 0.0
	case apy >= 0.50:
		return 1.0
	case apy >= 0.30:
		return 0.8 + (apy-0.30)*1.0
	case apy >= 0.20:
		return 0.6 + (apy-0.20)*2.0
	default:
		return 0.3 + (apy-s.minAPY)*3.0
	}
}

// assessRisk returns a 0-1 safety score (higher means lower risk) from
// exercise probability, volatility fit and the market risk tier.
func (s *DualInvestmentStrategy) assessRisk(exerciseProb float64, snap *analysis.Snapshot) float64 {
	var factors []float64

	switch {
	case exerciseProb <= 0.2:
		factors = append(factors, 0.9)
	case exerciseProb <= 0.35:
		factors = append(factors, 0.7)
	case exerciseProb <= s.maxExerciseProb:
		factors = append(factors, 0.5)
	default:
		factors = append(factors, 0.2)
	}

	volRatio := snap.Volatility.Ratio
	switch {
	case volRatio >= s.optimalVolLow && volRatio <= s.optimalVolHigh:
		factors = append(factors, 0.8)
	case volRatio < s.optimalVolLow:
		// thin premium but quiet tape
		factors = append(factors, 0.6)
	default:
		factors = append(factors, 0.3)
	}

	switch snap.Volatility.RiskLevel {
	case analysis.RiskLow:
		factors = append(factors, 0.9)
	case analysis.RiskMedium:
		factors = append(factors, 0.6)
	default:
		factors = append(factors, 0.3)
	}

	return mean(factors)
}

func (s *DualInvestmentStrategy) analyzeTechnicals(snap *analysis.Snapshot) float64 {
	var scores []float64

	rsi := snap.Signals.CurrentRSI
	switch {
	case math.IsNaN(rsi):
		scores = append(scores, 0.5)
	case rsi >= 30 && rsi <= 70:
		scores = append(scores, 0.7)
	case rsi >= 20 && rsi <= 80:
		scores = append(scores, 0.5)
	default:
		scores = append(scores, 0.2)
	}

	if snap.Signals.MACD == "BUY" {
		scores = append(scores, 0.8)
	} else {
		scores = append(scores, 0.2)
	}

	switch snap.Trend.Direction {
	case analysis.Bullish:
		scores = append(scores, 0.8)
	case analysis.Sideways:
		scores = append(scores, 0.5)
	default:
		scores = append(scores, 0.2)
	}

	sr := snap.SupportResistance
	if span := sr.Resistance - sr.Support; span > 0 && snap.CurrentPrice > 0 {
		position := (snap.CurrentPrice - sr.Support) / span
		switch {
		case position >= 0.3 && position <= 0.7:
			scores = append(scores, 0.7)
		case position >= 0.2 && position <= 0.8:
			scores = append(scores, 0.5)
		default:
			scores = append(scores, 0.3)
		}
	}

	return mean(scores)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.5
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

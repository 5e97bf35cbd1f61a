package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"dualinvest-core/internal/analysis"
	"dualinvest-core/internal/product"
)

// MeanReversionStrategy is a contrarian counterpart to the primary strategy.
// It favors products whose strike sits on the far side of an expected
// reversion: an oversold market is assumed to bounce, which protects a
// BUY_LOW strike below current price and threatens a SELL_HIGH strike.
type MeanReversionStrategy struct {
	minConfidence float64

	rsiWeight   float64
	bbWeight    float64
	mfiWeight   float64
	rangeWeight float64
}

// NewMeanReversionStrategy builds the strategy. minConfidence <= 0 falls
// back to 0.6.
func NewMeanReversionStrategy(minConfidence float64) *MeanReversionStrategy {
	if minConfidence <= 0 {
		minConfidence = 0.6
	}
	return &MeanReversionStrategy{
		minConfidence: minConfidence,
		rsiWeight:     0.35,
		bbWeight:      0.25,
		mfiWeight:     0.2,
		rangeWeight:   0.2,
	}
}

func (s *MeanReversionStrategy) Name() string { return "MeanReversionStrategy" }

// Analyze scores the product from reversion-oriented readings of RSI,
// Bollinger position, money flow and range position.
func (s *MeanReversionStrategy) Analyze(ctx context.Context, symbol string, snap *analysis.Snapshot, p product.Product) (*Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buyLow := p.Type == product.BuyLow
	var reasons []string

	rsiScore := s.rsiScore(snap.Signals.CurrentRSI, buyLow)
	if rsiScore > 0.7 {
		reasons = append(reasons, fmt.Sprintf("RSI %.1f favors reversion away from the strike", snap.Signals.CurrentRSI))
	} else if rsiScore < 0.3 {
		reasons = append(reasons, fmt.Sprintf("RSI %.1f points at reversion toward the strike", snap.Signals.CurrentRSI))
	}

	bbScore := s.bollingerScore(snap.Signals.Bollinger, buyLow)
	if bbScore > 0.7 {
		reasons = append(reasons, "price stretched beyond Bollinger band away from the strike")
	} else if bbScore < 0.35 {
		reasons = append(reasons, "Bollinger breakout biased toward the strike")
	}

	mfiScore := s.mfiScore(snap.Volume.MFI, buyLow)
	rangeScore := s.rangeScore(snap, buyLow)
	if rangeScore > 0.65 {
		reasons = append(reasons, "price near range edge opposite the strike")
	}

	total := rsiScore*s.rsiWeight +
		bbScore*s.bbWeight +
		mfiScore*s.mfiWeight +
		rangeScore*s.rangeWeight

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
				"rsi":       rsiScore,
				"bollinger": bbScore,
				"mfi":       mfiScore,
				"range":     rangeScore,
			},
			"product_id": p.ID,
			"symbol":     symbol,
			// annualized edge used by Kelly sizing
			"expected_return": p.APY,
		},
		Timestamp: time.Now().UTC(),
	}, nil
}

// PositionSize applies the shared fractional Kelly sizing.
func (s *MeanReversionStrategy) PositionSize(sig *Signal, pf Portfolio) float64 {
	return kellyPositionSize(sig.Confidence, signalExpectedReturn(sig), pf)
}

// EvaluateProduct scores the strike distance in ATR units: a strike one to
// three ATRs away is close enough to earn premium yet likely to survive a
// reversion swing.
func (s *MeanReversionStrategy) EvaluateProduct(p product.Product, snap *analysis.Snapshot) (float64, []string) {
	var reasons []string
	score := 0.0

	if p.APY >= 0.10 {
		score += 0.2
		reasons = append(reasons, fmt.Sprintf("APY %.2f%% clears the premium floor", p.APY*100))
	}

	if snap.CurrentPrice > 0 && snap.Volatility.ATR > 0 {
		distance := math.Abs(p.StrikePrice-snap.CurrentPrice) / snap.Volatility.ATR
		switch {
		case distance >= 1 && distance <= 3:
			score += 0.5
			reasons = append(reasons, fmt.Sprintf("strike %.1f ATRs from price, inside the reversion band", distance))
		case distance < 1:
			score += 0.2
			reasons = append(reasons, "strike within one ATR, likely to be crossed")
		case distance <= 5:
			score += 0.3
			reasons = append(reasons, fmt.Sprintf("strike %.1f ATRs out, conservative", distance))
		default:
			score += 0.1
			reasons = append(reasons, "strike too far out to earn meaningful premium")
		}
	}

	if snap.Trend.Direction == analysis.Sideways {
		score += 0.3
		reasons = append(reasons, "sideways market favors mean reversion")
	} else if snap.Trend.Strength != analysis.Strong {
		score += 0.15
	}

	return math.Min(score, 1.0), reasons
}

func (s *MeanReversionStrategy) rsiScore(rsi float64, buyLow bool) float64 {
	if math.IsNaN(rsi) {
		return 0.5
	}
	switch {
	case rsi < 30:
		// oversold, bounce expected
		if buyLow {
			return 0.8
		}
		return 0.25
	case rsi > 70:
		if buyLow {
			return 0.25
		}
		return 0.8
	default:
		return 0.5
	}
}

func (s *MeanReversionStrategy) bollingerScore(signal string, buyLow bool) float64 {
	switch signal {
	case "BUY": // price under the lower band
		if buyLow {
			return 0.75
		}
		return 0.3
	case "SELL": // price over the upper band
		if buyLow {
			return 0.3
		}
		return 0.75
	default:
		return 0.5
	}
}

func (s *MeanReversionStrategy) mfiScore(mfi float64, buyLow bool) float64 {
	if math.IsNaN(mfi) {
		return 0.5
	}
	switch {
	case mfi < 20:
		if buyLow {
			return 0.7
		}
		return 0.3
	case mfi > 80:
		if buyLow {
			return 0.3
		}
		return 0.7
	default:
		return 0.5
	}
}

func (s *MeanReversionStrategy) rangeScore(snap *analysis.Snapshot, buyLow bool) float64 {
	sr := snap.SupportResistance
	span := sr.Resistance - sr.Support
	if span <= 0 || snap.CurrentPrice <= 0 {
		return 0.5
	}
	position := (snap.CurrentPrice - sr.Support) / span
	switch {
	case position < 0.25:
		// hugging support, bounce up expected
		if buyLow {
			return 0.7
		}
		return 0.35
	case position > 0.75:
		if buyLow {
			return 0.35
		}
		return 0.7
	default:
		return 0.55
	}
}

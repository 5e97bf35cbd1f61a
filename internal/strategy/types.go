package strategy

import (
	"context"
	"errors"
	"math"
	"time"

	"dualinvest-core/internal/analysis"
	"dualinvest-core/internal/product"
)

// Strength is the ordinal signal scale shared by all strategies.
type Strength int

const (
	StrongSell Strength = 1
	Sell       Strength = 2
	Neutral    Strength = 3
	Buy        Strength = 4
	StrongBuy  Strength = 5
)

func (s Strength) String() string {
	switch s {
	case StrongSell:
		return "STRONG_SELL"
	case Sell:
		return "SELL"
	case Neutral:
		return "NEUTRAL"
	case Buy:
		return "BUY"
	case StrongBuy:
		return "STRONG_BUY"
	}
	return "UNKNOWN"
}

// ErrLowConfidence marks a signal a strategy rejected itself because its
// confidence fell below the strategy's minimum. The manager drops such
// signals without failing the batch.
var ErrLowConfidence = errors.New("signal confidence below strategy minimum")

// Signal is one strategy's verdict on a (symbol, snapshot, product) triple.
// Produced fresh per call and never mutated afterwards.
type Signal struct {
	StrategyName string         `json:"strategy_name"`
	Strength     Strength       `json:"strength"`
	Confidence   float64        `json:"confidence"` // 0-1
	Reasons      []string       `json:"reasons"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Decision is the terminal output of one product evaluation.
//
// RiskScore is a 0-1 inverted safety score (higher is riskier). It is not
// the valuator's 0-100 risk-adjusted score; the two share a word, not a
// scale.
type Decision struct {
	ShouldInvest   bool           `json:"should_invest"`
	ProductID      string         `json:"product_id"`
	Amount         float64        `json:"amount"`
	ExpectedReturn float64        `json:"expected_return"`
	RiskScore      float64        `json:"risk_score"`
	Score          float64        `json:"score"` // ensemble confidence
	Reasons        []string       `json:"reasons"`
	Warnings       []string       `json:"warnings,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Portfolio carries the sizing constraints for one evaluation call.
type Portfolio struct {
	TotalValue      float64 `json:"total_value"`
	CurrentExposure float64 `json:"current_exposure"`
	MaxRiskPerTrade float64 `json:"max_risk_per_trade"` // fraction of portfolio
}

// Strategy scores dual investment products. Implementations must be free of
// side effects so the manager can run them concurrently.
type Strategy interface {
	Name() string

	// Analyze produces a signal for one product against one market snapshot.
	// Returns ErrLowConfidence (wrapped) when the strategy rejects its own
	// output.
	Analyze(ctx context.Context, symbol string, snap *analysis.Snapshot, p product.Product) (*Signal, error)

	// PositionSize converts a signal into an absolute amount under the
	// portfolio's risk constraints.
	PositionSize(sig *Signal, pf Portfolio) float64

	// EvaluateProduct scores a product 0-1 on standalone attractiveness,
	// independent of any signal.
	EvaluateProduct(p product.Product, snap *analysis.Snapshot) (float64, []string)
}

// Decider is implemented by strategies that can turn an ensemble signal
// into a full investment decision. The manager delegates to the first
// active strategy that provides it, passing the ensemble's current
// minimum-confidence threshold so runtime tuning reaches the decision.
type Decider interface {
	Decide(sig *Signal, p product.Product, snap *analysis.Snapshot, pf Portfolio, minConfidence float64) Decision
}

const kellySafetyFactor = 0.25

// kellyPositionSize implements fractional Kelly sizing shared by the
// strategies: kelly = confidence * expected return, scaled by the safety
// factor and capped by per-trade risk, a 10% hard ceiling, and remaining
// portfolio headroom.
func kellyPositionSize(confidence, expectedReturn float64, pf Portfolio) float64 {
	fraction := confidence * expectedReturn * kellySafetyFactor

	headroom := 0.0
	if pf.TotalValue > 0 {
		headroom = 1 - pf.CurrentExposure/pf.TotalValue
	}
	maxFraction := math.Min(pf.MaxRiskPerTrade, math.Min(0.10, headroom))
	if fraction > maxFraction {
		fraction = maxFraction
	}
	if fraction < 0 {
		fraction = 0
	}
	return math.Round(pf.TotalValue*fraction*100) / 100
}

func signalExpectedReturn(sig *Signal) float64 {
	if sig == nil || sig.Metadata == nil {
		return 0.15
	}
	if v, ok := sig.Metadata["expected_return"].(float64); ok {
		return v
	}
	return 0.15
}

func strengthFromScore(score float64) Strength {
	switch {
	case score >= 0.8:
		return StrongBuy
	case score >= 0.65:
		return Buy
	case score >= 0.35:
		return Neutral
	case score >= 0.2:
		return Sell
	default:
		return StrongSell
	}
}

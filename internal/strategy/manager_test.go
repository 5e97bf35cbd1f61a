package strategy

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"dualinvest-core/internal/analysis"
	"dualinvest-core/internal/product"
	"dualinvest-core/internal/valuation"
)

type stubStrategy struct {
	name   string
	sig    Signal
	err    error
	delay  time.Duration
	panics bool
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Analyze(ctx context.Context, symbol string, snap *analysis.Snapshot, p product.Product) (*Signal, error) {
	if s.panics {
		panic("stub strategy blew up")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	sig := s.sig
	sig.StrategyName = s.name
	sig.Timestamp = time.Now().UTC()
	return &sig, nil
}

func (s *stubStrategy) PositionSize(sig *Signal, pf Portfolio) float64 {
	return kellyPositionSize(sig.Confidence, signalExpectedReturn(sig), pf)
}

func (s *stubStrategy) EvaluateProduct(p product.Product, snap *analysis.Snapshot) (float64, []string) {
	return 0.5, nil
}

func testPortfolio() Portfolio {
	return Portfolio{TotalValue: 10000, CurrentExposure: 0, MaxRiskPerTrade: 0.02}
}

func TestEvaluateProductNoActiveStrategies(t *testing.T) {
	m := NewManager(Options{})

	res := m.EvaluateProduct(context.Background(), "BTCUSDT", favorableSnapshot(), buyLowProduct(), testPortfolio())
	if res.Decision.ShouldInvest {
		t.Fatal("ShouldInvest=true with no strategies registered")
	}
	if len(res.Decision.Reasons) == 0 {
		t.Fatal("expected a reason for the no-strategy decision")
	}
	if res.Ensemble.Strength != Neutral || res.Ensemble.Confidence != 0 {
		t.Fatalf("ensemble=%s/%v, expected NEUTRAL with confidence 0", res.Ensemble.Strength, res.Ensemble.Confidence)
	}
}

func TestEvaluateProductAllStrategiesFail(t *testing.T) {
	m := NewManager(Options{Timeout: 20 * time.Millisecond})
	m.AddStrategy(&stubStrategy{name: "failing", err: errors.New("exchange hiccup")}, 1)
	m.AddStrategy(&stubStrategy{name: "panicking", panics: true}, 1)
	m.AddStrategy(&stubStrategy{name: "hanging", delay: time.Second, sig: Signal{Strength: StrongBuy, Confidence: 0.9}}, 1)

	res := m.EvaluateProduct(context.Background(), "BTCUSDT", favorableSnapshot(), buyLowProduct(), testPortfolio())
	if res.Decision.ShouldInvest {
		t.Fatal("ShouldInvest=true when every strategy failed")
	}
	if len(res.Decision.Reasons) == 0 {
		t.Fatal("expected non-empty reasons when every strategy failed")
	}
	if len(res.Signals) != 0 {
		t.Fatalf("got %d surviving signals, expected 0", len(res.Signals))
	}
	if res.Ensemble.Strength != Neutral || res.Ensemble.Confidence != 0 {
		t.Fatalf("ensemble=%s/%v, expected neutral zero-confidence", res.Ensemble.Strength, res.Ensemble.Confidence)
	}
}

func TestEvaluateProductIsolatesOneFailure(t *testing.T) {
	m := NewManager(Options{})
	m.AddStrategy(&stubStrategy{name: "healthy", sig: Signal{Strength: Buy, Confidence: 0.8}}, 1)
	m.AddStrategy(&stubStrategy{name: "failing", err: errors.New("boom")}, 1)

	res := m.EvaluateProduct(context.Background(), "BTCUSDT", favorableSnapshot(), buyLowProduct(), testPortfolio())
	if len(res.Signals) != 1 {
		t.Fatalf("got %d signals, expected the healthy one only", len(res.Signals))
	}
	if res.Ensemble.Strength != Buy {
		t.Fatalf("ensemble strength=%s, expected the single surviving signal", res.Ensemble.Strength)
	}
}

func TestWeightedAverageConfidenceBounds(t *testing.T) {
	m := NewManager(Options{Method: WeightedAverage})
	m.AddStrategy(&stubStrategy{name: "a", sig: Signal{Strength: Buy, Confidence: 0.7}}, 1)
	m.AddStrategy(&stubStrategy{name: "b", sig: Signal{Strength: StrongBuy, Confidence: 0.9}}, 3)

	res := m.EvaluateProduct(context.Background(), "BTCUSDT", favorableSnapshot(), buyLowProduct(), testPortfolio())
	conf := res.Ensemble.Confidence
	if conf < 0.7 || conf > 0.9 {
		t.Fatalf("ensemble confidence=%v outside [min, max] of member confidences", conf)
	}
	// (4*1 + 5*3) / 4 = 4.75 rounds to STRONG_BUY
	if res.Ensemble.Strength != StrongBuy {
		t.Fatalf("ensemble strength=%s, expected STRONG_BUY", res.Ensemble.Strength)
	}
}

func TestVotingTieResolvesConservatively(t *testing.T) {
	m := NewManager(Options{Method: Voting})
	m.AddStrategy(&stubStrategy{name: "bull", sig: Signal{Strength: Buy, Confidence: 0.8}}, 1)
	m.AddStrategy(&stubStrategy{name: "bear", sig: Signal{Strength: Sell, Confidence: 0.8}}, 1)

	res := m.EvaluateProduct(context.Background(), "BTCUSDT", favorableSnapshot(), buyLowProduct(), testPortfolio())
	if res.Ensemble.Strength != Sell {
		t.Fatalf("ensemble strength=%s, expected the tie to resolve to SELL", res.Ensemble.Strength)
	}
	if res.Ensemble.Confidence != 0.8 {
		t.Fatalf("ensemble confidence=%v, expected the simple mean 0.8", res.Ensemble.Confidence)
	}
}

func TestConfidenceWeightedDownweightsUnsure(t *testing.T) {
	m := NewManager(Options{Method: ConfidenceWeighted})
	m.AddStrategy(&stubStrategy{name: "sure", sig: Signal{Strength: StrongBuy, Confidence: 0.9}}, 1)
	m.AddStrategy(&stubStrategy{name: "unsure", sig: Signal{Strength: Sell, Confidence: 0.1}}, 1)

	res := m.EvaluateProduct(context.Background(), "BTCUSDT", favorableSnapshot(), buyLowProduct(), testPortfolio())
	// (5*0.9 + 2*0.1) / 1.0 = 4.7 rounds to STRONG_BUY
	if res.Ensemble.Strength != StrongBuy {
		t.Fatalf("ensemble strength=%s, expected the confident signal to dominate", res.Ensemble.Strength)
	}
}

func TestEvaluateProductIdempotent(t *testing.T) {
	m := NewManager(Options{})
	v := valuation.NewValuator(valuation.Config{})
	m.AddStrategy(NewDualInvestmentStrategy(v, 0), 1)

	snap := favorableSnapshot()
	p := buyLowProduct()
	pf := testPortfolio()

	first := m.EvaluateProduct(context.Background(), "BTCUSDT", snap, p, pf)
	second := m.EvaluateProduct(context.Background(), "BTCUSDT", snap, p, pf)

	if !reflect.DeepEqual(first.Decision, second.Decision) {
		t.Fatalf("decisions differ between identical evaluations:\n%+v\n%+v", first.Decision, second.Decision)
	}
}

func TestDeciderDelegation(t *testing.T) {
	m := NewManager(Options{})
	v := valuation.NewValuator(valuation.Config{})
	m.AddStrategy(NewDualInvestmentStrategy(v, 0), 1)

	res := m.EvaluateProduct(context.Background(), "BTCUSDT", favorableSnapshot(), buyLowProduct(), testPortfolio())
	if !res.Decision.ShouldInvest {
		t.Fatalf("ShouldInvest=false in a strongly favorable market, reasons=%v", res.Decision.Reasons)
	}
	if res.Decision.Amount <= 0 {
		t.Fatalf("Amount=%v, expected a positive position", res.Decision.Amount)
	}
	if res.Decision.Score != res.Ensemble.Confidence {
		t.Fatalf("decision score=%v, expected ensemble confidence %v", res.Decision.Score, res.Ensemble.Confidence)
	}
}

func TestSetMinConfidenceReachesDelegatedDecision(t *testing.T) {
	m := NewManager(Options{})
	v := valuation.NewValuator(valuation.Config{})
	m.AddStrategy(NewDualInvestmentStrategy(v, 0), 1)

	res := m.EvaluateProduct(context.Background(), "BTCUSDT", favorableSnapshot(), buyLowProduct(), testPortfolio())
	if !res.Decision.ShouldInvest {
		t.Fatalf("ShouldInvest=false before tightening, reasons=%v", res.Decision.Reasons)
	}

	// tighten the ensemble threshold above the current confidence
	if err := m.SetMinConfidence(0.99); err != nil {
		t.Fatalf("SetMinConfidence: %v", err)
	}

	res = m.EvaluateProduct(context.Background(), "BTCUSDT", favorableSnapshot(), buyLowProduct(), testPortfolio())
	if res.Decision.ShouldInvest {
		t.Fatalf("ShouldInvest=true with confidence %v under threshold 0.99", res.Ensemble.Confidence)
	}
	if res.Decision.Amount != 0 {
		t.Fatalf("Amount=%v, expected no position under the tightened threshold", res.Decision.Amount)
	}
	found := false
	for _, r := range res.Decision.Reasons {
		if strings.Contains(r, "below required") {
			found = true
		}
	}
	if !found {
		t.Fatalf("reasons=%v, expected a below-threshold reason", res.Decision.Reasons)
	}
}

func TestAdminOperations(t *testing.T) {
	m := NewManager(Options{})
	m.AddStrategy(&stubStrategy{name: "a", sig: Signal{Strength: Buy, Confidence: 0.8}}, 2)

	if err := m.SetWeight("a", 3); err != nil {
		t.Fatalf("SetWeight: %v", err)
	}
	if err := m.SetWeight("missing", 1); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("err=%v, expected ErrUnknownStrategy", err)
	}
	if err := m.SetActive("a", false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	infos := m.Strategies()
	if len(infos) != 1 || infos[0].Weight != 3 || infos[0].Active {
		t.Fatalf("infos=%+v, expected weight 3 and inactive", infos)
	}

	if err := m.SetMethod("nonsense"); err == nil {
		t.Fatal("SetMethod accepted an invalid method")
	}
	if err := m.SetMethod(Voting); err != nil {
		t.Fatalf("SetMethod: %v", err)
	}
	if m.Method() != Voting {
		t.Fatalf("method=%s, expected voting", m.Method())
	}

	if err := m.SetMinConfidence(1.5); err == nil {
		t.Fatal("SetMinConfidence accepted a value above 1")
	}
	if err := m.RemoveStrategy("a"); err != nil {
		t.Fatalf("RemoveStrategy: %v", err)
	}
	if len(m.Strategies()) != 0 {
		t.Fatal("strategy list not empty after removal")
	}
}

func TestInactiveStrategyExcluded(t *testing.T) {
	m := NewManager(Options{})
	m.AddStrategy(&stubStrategy{name: "a", sig: Signal{Strength: StrongBuy, Confidence: 0.9}}, 1)
	m.AddStrategy(&stubStrategy{name: "b", sig: Signal{Strength: StrongSell, Confidence: 0.9}}, 1)
	if err := m.SetActive("b", false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	res := m.EvaluateProduct(context.Background(), "BTCUSDT", favorableSnapshot(), buyLowProduct(), testPortfolio())
	if len(res.Signals) != 1 || res.Signals[0].StrategyName != "a" {
		t.Fatalf("signals=%+v, expected only the active strategy", res.Signals)
	}
}

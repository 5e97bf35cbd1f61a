package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"dualinvest-core/internal/analysis"
	"dualinvest-core/internal/events"
	"dualinvest-core/internal/product"
	"dualinvest-core/internal/strategy"
	"dualinvest-core/pkg/db"
	market "dualinvest-core/pkg/market/binance"
)

// MarketData supplies price history, live stats and candidate products.
// The binance REST client implements it; tests substitute fakes.
type MarketData interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]market.Kline, error)
	Ticker24h(ctx context.Context, symbol string) (*market.Ticker24h, error)
	DualInvestmentProducts(ctx context.Context, symbol string) ([]product.Product, error)
}

// Store persists evaluation artifacts for audit. *db.Database implements
// it; a nil store disables persistence.
type Store interface {
	InsertDecision(ctx context.Context, r db.DecisionRecord) error
	InsertSnapshot(ctx context.Context, s db.SnapshotRecord) error
	InsertStrategyLog(ctx context.Context, l db.StrategyLog) error
}

// Config wires the engine's collaborators and tunables.
type Config struct {
	MarketData MarketData
	Analyzer   *analysis.Analyzer
	Manager    *strategy.Manager
	Bus        *events.Bus // optional
	Store      Store       // optional

	KlineInterval string  // default 1h
	KlineLimit    int     // default 168 (7 days of hourly bars)
	TopN          int     // default 5
	MaxParallel   int     // product evaluations in flight, default 4
	Portfolio     strategy.Portfolio
}

// Engine is the orchestration façade: it turns one symbol's market state
// and product board into ranked investment decisions.
type Engine struct {
	cfg Config
}

// Ranked is one product's evaluation inside a batch ranking.
type Ranked struct {
	Product    product.Product  `json:"product"`
	Result     *strategy.Result `json:"result"`
	DecisionID string           `json:"decision_id"`
}

// New builds an engine. MarketData, Analyzer and Manager are required.
func New(cfg Config) (*Engine, error) {
	if cfg.MarketData == nil {
		return nil, fmt.Errorf("engine: market data source is required")
	}
	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("engine: analyzer is required")
	}
	if cfg.Manager == nil {
		return nil, fmt.Errorf("engine: strategy manager is required")
	}
	if cfg.KlineInterval == "" {
		cfg.KlineInterval = "1h"
	}
	if cfg.KlineLimit <= 0 {
		cfg.KlineLimit = 168
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	return &Engine{cfg: cfg}, nil
}

// AnalyzeMarket fetches the price series and live stats for one symbol and
// computes a fresh snapshot. Nothing is cached between calls.
func (e *Engine) AnalyzeMarket(ctx context.Context, symbol string) (*analysis.Snapshot, error) {
	klines, err := e.cfg.MarketData.Klines(ctx, symbol, e.cfg.KlineInterval, e.cfg.KlineLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch klines for %s: %w", symbol, err)
	}

	var price, changePct, volume float64
	if ticker, err := e.cfg.MarketData.Ticker24h(ctx, symbol); err == nil {
		price = ticker.LastPrice
		changePct = ticker.PriceChangePercent
		volume = ticker.QuoteVolume
	} else {
		// the analyzer falls back to the last close
		log.Printf("engine: 24h ticker for %s unavailable: %v", symbol, err)
	}

	snap, err := e.cfg.Analyzer.Analyze(symbol, market.Bars(klines), price, changePct, volume)
	if err != nil {
		return nil, err
	}

	e.publish(events.EventMarketSnapshot, snap)
	e.persistSnapshot(ctx, snap)
	return snap, nil
}

// EvaluateProduct analyzes the market and runs the ensemble for a single
// product.
func (e *Engine) EvaluateProduct(ctx context.Context, symbol string, p product.Product) (*strategy.Result, string, error) {
	if err := p.Validate(); err != nil {
		return nil, "", err
	}
	snap, err := e.AnalyzeMarket(ctx, symbol)
	if err != nil {
		return nil, "", err
	}
	res := e.cfg.Manager.EvaluateProduct(ctx, symbol, snap, p, e.cfg.Portfolio)
	id := e.record(ctx, res)
	return res, id, nil
}

// BestProducts fetches the product board, evaluates every candidate against
// one shared snapshot and returns the top-N by ensemble confidence.
// Individual product failures are logged and skipped; the batch only fails
// when market data itself is unavailable.
func (e *Engine) BestProducts(ctx context.Context, symbol string, topN int) ([]Ranked, *analysis.Snapshot, error) {
	if topN <= 0 {
		topN = e.cfg.TopN
	}

	snap, err := e.AnalyzeMarket(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}

	products, err := e.cfg.MarketData.DualInvestmentProducts(ctx, symbol)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch products for %s: %w", symbol, err)
	}

	ranked := e.evaluateAll(ctx, symbol, snap, products)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Result.Decision.Score > ranked[j].Result.Decision.Score
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	e.publish(events.EventCycleComplete, symbol)
	return ranked, snap, nil
}

// evaluateAll runs product evaluations through a bounded worker pool.
// Output order follows the input board; ranking happens afterwards.
func (e *Engine) evaluateAll(ctx context.Context, symbol string, snap *analysis.Snapshot, products []product.Product) []Ranked {
	sem := make(chan struct{}, e.cfg.MaxParallel)
	results := make([]*Ranked, len(products))

	var wg sync.WaitGroup
	for i, p := range products {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int, p product.Product) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := p.Validate(); err != nil {
				log.Printf("engine: skipping product %s: %v", p.ID, err)
				return
			}
			res := e.cfg.Manager.EvaluateProduct(ctx, symbol, snap, p, e.cfg.Portfolio)
			id := e.record(ctx, res)
			results[i] = &Ranked{Product: p, Result: res, DecisionID: id}
		}(i, p)
	}
	wg.Wait()

	out := make([]Ranked, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// record assigns a decision ID, persists the result and publishes events.
func (e *Engine) record(ctx context.Context, res *strategy.Result) string {
	id := "DI_" + uuid.NewString()

	e.publish(events.EventDecision, res)
	if len(res.Decision.Warnings) > 0 {
		e.publish(events.EventRiskAlert, res)
	}

	if e.cfg.Store == nil {
		return id
	}

	rec := db.DecisionRecord{
		ID:             id,
		Symbol:         res.Symbol,
		ProductID:      res.ProductID,
		ShouldInvest:   res.Decision.ShouldInvest,
		Amount:         res.Decision.Amount,
		ExpectedReturn: res.Decision.ExpectedReturn,
		RiskScore:      res.Decision.RiskScore,
		Score:          res.Decision.Score,
		Strength:       res.Ensemble.Strength.String(),
		Reasons:        marshalJSON(res.Decision.Reasons),
		Warnings:       marshalJSON(res.Decision.Warnings),
		Metadata:       marshalJSON(res.Decision.Metadata),
	}
	if err := e.cfg.Store.InsertDecision(ctx, rec); err != nil {
		log.Printf("engine: persist decision %s: %v", id, err)
	}

	for _, sig := range res.Signals {
		entry := db.StrategyLog{
			StrategyName: sig.StrategyName,
			Symbol:       res.Symbol,
			ProductID:    res.ProductID,
			Strength:     sig.Strength.String(),
			Confidence:   sig.Confidence,
			Reasons:      marshalJSON(sig.Reasons),
		}
		if err := e.cfg.Store.InsertStrategyLog(ctx, entry); err != nil {
			log.Printf("engine: persist strategy log: %v", err)
		}
	}
	return id
}

func (e *Engine) persistSnapshot(ctx context.Context, snap *analysis.Snapshot) {
	if e.cfg.Store == nil {
		return
	}
	rec := db.SnapshotRecord{
		Symbol:          snap.Symbol,
		CurrentPrice:    snap.CurrentPrice,
		PriceChange24h:  snap.PriceChange24h,
		TrendDirection:  string(snap.Trend.Direction),
		TrendStrength:   string(snap.Trend.Strength),
		Recommendation:  string(snap.Signals.Recommendation),
		RSI:             sanitize(snap.Signals.CurrentRSI),
		VolatilityRatio: snap.Volatility.Ratio,
		RiskLevel:       string(snap.Volatility.RiskLevel),
		Support:         snap.SupportResistance.Support,
		Resistance:      snap.SupportResistance.Resistance,
		Data:            marshalJSON(snap),
	}
	if err := e.cfg.Store.InsertSnapshot(ctx, rec); err != nil {
		log.Printf("engine: persist snapshot for %s: %v", snap.Symbol, err)
	}
}

func (e *Engine) publish(ev events.Event, payload any) {
	if e.cfg.Bus != nil {
		e.cfg.Bus.Publish(ev, payload)
	}
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// sanitize maps NaN to zero for storage; SQLite has no NaN literal.
func sanitize(v float64) float64 {
	if v != v {
		return 0
	}
	return v
}

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dualinvest-core/internal/analysis"
	"dualinvest-core/internal/events"
	"dualinvest-core/internal/product"
	"dualinvest-core/internal/strategy"
	"dualinvest-core/internal/valuation"
	"dualinvest-core/pkg/db"
	market "dualinvest-core/pkg/market/binance"
)

type fakeMarket struct {
	klines   []market.Kline
	ticker   *market.Ticker24h
	products []product.Product

	klinesErr   error
	productsErr error
}

func (f *fakeMarket) Klines(ctx context.Context, symbol, interval string, limit int) ([]market.Kline, error) {
	return f.klines, f.klinesErr
}

func (f *fakeMarket) Ticker24h(ctx context.Context, symbol string) (*market.Ticker24h, error) {
	if f.ticker == nil {
		return nil, errors.New("no ticker")
	}
	return f.ticker, nil
}

func (f *fakeMarket) DualInvestmentProducts(ctx context.Context, symbol string) ([]product.Product, error) {
	return f.products, f.productsErr
}

type memStore struct {
	mu        sync.Mutex
	decisions []db.DecisionRecord
	snapshots []db.SnapshotRecord
	logs      []db.StrategyLog
}

func (m *memStore) InsertDecision(ctx context.Context, r db.DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, r)
	return nil
}

func (m *memStore) InsertSnapshot(ctx context.Context, s db.SnapshotRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, s)
	return nil
}

func (m *memStore) InsertStrategyLog(ctx context.Context, l db.StrategyLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l)
	return nil
}

func risingKlines(n int) []market.Kline {
	out := make([]market.Kline, n)
	for i := range out {
		c := 100 + float64(i)*0.5
		out[i] = market.Kline{
			OpenTime: int64(i) * 3600_000,
			Open:     c - 0.2,
			High:     c + 1,
			Low:      c - 1,
			Close:    c,
			Volume:   500,
		}
	}
	return out
}

func productBoard(currentPrice float64) []product.Product {
	mk := func(id string, offset, apy float64) product.Product {
		return product.Product{
			ID:          id,
			Asset:       "BTC",
			Currency:    "USDT",
			Type:        product.BuyLow,
			StrikePrice: currentPrice * (1 - offset),
			APY:         apy,
			TermDays:    7,
			MinAmount:   10,
			MaxAmount:   50000,
		}
	}
	return []product.Product{
		mk("near-high-apy", 0.05, 0.40),
		mk("far-low-apy", 0.15, 0.08),
		mk("mid", 0.08, 0.25),
	}
}

func newTestEngine(t *testing.T, md MarketData, store Store, bus *events.Bus) *Engine {
	t.Helper()
	v := valuation.NewValuator(valuation.Config{})
	m := strategy.NewManager(strategy.Options{})
	m.AddStrategy(strategy.NewDualInvestmentStrategy(v, 0), 1)

	e, err := New(Config{
		MarketData: md,
		Analyzer:   analysis.NewAnalyzer(analysis.Config{}),
		Manager:    m,
		Bus:        bus,
		Store:      store,
		Portfolio:  strategy.Portfolio{TotalValue: 10000, MaxRiskPerTrade: 0.02},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without collaborators")
	}
}

func TestAnalyzeMarketPublishesAndPersists(t *testing.T) {
	md := &fakeMarket{
		klines: risingKlines(200),
		ticker: &market.Ticker24h{Symbol: "BTCUSDT", LastPrice: 200, PriceChangePercent: 1.2, QuoteVolume: 5_000_000},
	}
	store := &memStore{}
	bus := events.NewBus()
	ch, unsub := bus.Subscribe(events.EventMarketSnapshot, 1)
	defer unsub()

	e := newTestEngine(t, md, store, bus)
	snap, err := e.AnalyzeMarket(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("AnalyzeMarket: %v", err)
	}
	if snap.CurrentPrice != 200 {
		t.Fatalf("CurrentPrice=%v, expected live ticker price", snap.CurrentPrice)
	}
	if snap.Trend.Direction != analysis.Bullish {
		t.Fatalf("trend=%s, expected BULLISH on rising series", snap.Trend.Direction)
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no snapshot event published")
	}
	if len(store.snapshots) != 1 {
		t.Fatalf("persisted %d snapshots, expected 1", len(store.snapshots))
	}
}

func TestAnalyzeMarketPropagatesFetchError(t *testing.T) {
	md := &fakeMarket{klinesErr: errors.New("network down")}
	e := newTestEngine(t, md, nil, nil)

	if _, err := e.AnalyzeMarket(context.Background(), "BTCUSDT"); err == nil {
		t.Fatal("expected error when klines cannot be fetched")
	}
}

func TestBestProductsRanksByScore(t *testing.T) {
	md := &fakeMarket{
		klines:   risingKlines(200),
		ticker:   &market.Ticker24h{Symbol: "BTCUSDT", LastPrice: 200, PriceChangePercent: 1.2},
		products: productBoard(200),
	}
	store := &memStore{}
	e := newTestEngine(t, md, store, nil)

	ranked, snap, err := e.BestProducts(context.Background(), "BTCUSDT", 2)
	if err != nil {
		t.Fatalf("BestProducts: %v", err)
	}
	if snap == nil {
		t.Fatal("expected the shared snapshot to be returned")
	}
	if len(ranked) != 2 {
		t.Fatalf("got %d ranked products, expected top 2", len(ranked))
	}
	if ranked[0].Result.Decision.Score < ranked[1].Result.Decision.Score {
		t.Fatalf("ranking not descending: %v < %v",
			ranked[0].Result.Decision.Score, ranked[1].Result.Decision.Score)
	}
	for _, r := range ranked {
		if r.DecisionID == "" || r.DecisionID[:3] != "DI_" {
			t.Fatalf("decision id %q, expected DI_ prefix", r.DecisionID)
		}
	}

	// every evaluated product leaves an audit row, not just the top-N
	if len(store.decisions) != 3 {
		t.Fatalf("persisted %d decisions, expected 3", len(store.decisions))
	}
}

func TestBestProductsSkipsInvalid(t *testing.T) {
	board := productBoard(200)
	board[1].StrikePrice = -5 // malformed record

	md := &fakeMarket{
		klines:   risingKlines(200),
		ticker:   &market.Ticker24h{Symbol: "BTCUSDT", LastPrice: 200},
		products: board,
	}
	e := newTestEngine(t, md, nil, nil)

	ranked, _, err := e.BestProducts(context.Background(), "BTCUSDT", 10)
	if err != nil {
		t.Fatalf("BestProducts: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("got %d ranked products, expected invalid one skipped", len(ranked))
	}
}

func TestBestProductsProductFetchError(t *testing.T) {
	md := &fakeMarket{
		klines:      risingKlines(200),
		ticker:      &market.Ticker24h{Symbol: "BTCUSDT", LastPrice: 200},
		productsErr: errors.New("board unavailable"),
	}
	e := newTestEngine(t, md, nil, nil)

	if _, _, err := e.BestProducts(context.Background(), "BTCUSDT", 5); err == nil {
		t.Fatal("expected error when the product board cannot be fetched")
	}
}

func TestEvaluateProductValidates(t *testing.T) {
	md := &fakeMarket{klines: risingKlines(200), ticker: &market.Ticker24h{LastPrice: 200}}
	e := newTestEngine(t, md, nil, nil)

	bad := product.Product{ID: "", Type: product.BuyLow, StrikePrice: 100, TermDays: 7, MinAmount: 1, MaxAmount: 10}
	if _, _, err := e.EvaluateProduct(context.Background(), "BTCUSDT", bad); err == nil {
		t.Fatal("expected validation error for product without id")
	}
}

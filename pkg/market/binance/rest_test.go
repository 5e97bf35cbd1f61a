package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"dualinvest-core/internal/product"
)

func TestAssetFromSymbol(t *testing.T) {
	tests := []struct{ in, want string }{
		{"BTCUSDT", "BTC"},
		{"ETHUSDT", "ETH"},
		{"BTC", "BTC"},
	}
	for _, tt := range tests {
		if got := assetFromSymbol(tt.in); got != tt.want {
			t.Fatalf("assetFromSymbol(%s)=%s, expected %s", tt.in, got, tt.want)
		}
	}
}

func TestParseMiniTicker(t *testing.T) {
	msg := []byte(`{"stream":"btcusdt@miniTicker","data":{"s":"BTCUSDT","c":"95000.50","E":1700000000000}}`)
	tick, err := parseMiniTicker(msg)
	if err != nil {
		t.Fatalf("parseMiniTicker: %v", err)
	}
	if tick.Symbol != "BTCUSDT" || tick.Price != 95000.50 {
		t.Fatalf("tick=%+v", tick)
	}

	if _, err := parseMiniTicker([]byte(`{"data":{}}`)); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestAnnualizedVolatilityFlatSeries(t *testing.T) {
	klines := make([]Kline, 50)
	for i := range klines {
		klines[i].Close = 100
	}
	if v := annualizedVolatility(klines); v != 0 {
		t.Fatalf("volatility=%v on flat closes, expected 0", v)
	}
}

func TestSyntheticProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/ticker/24hr":
			json.NewEncoder(w).Encode(map[string]string{
				"symbol": "BTCUSDT", "lastPrice": "95000", "priceChangePercent": "1.5",
				"highPrice": "96000", "lowPrice": "94000", "volume": "1000", "quoteVolume": "95000000",
			})
		case "/api/v3/klines":
			// two flat candles, volatility falls back to zero
			w.Write([]byte(`[[0,"95000","95000","95000","95000","1",0],[0,"95000","95000","95000","95000","1",0]]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient("", "", true)
	c.BaseURL = srv.URL

	products, err := c.DualInvestmentProducts(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("DualInvestmentProducts: %v", err)
	}
	// 5 terms x 3 offsets x 2 sides
	if len(products) != 30 {
		t.Fatalf("got %d products, expected 30", len(products))
	}

	for _, p := range products {
		if err := p.Validate(); err != nil {
			t.Fatalf("generated product %s invalid: %v", p.ID, err)
		}
		switch p.Type {
		case product.BuyLow:
			if p.StrikePrice >= 95000 {
				t.Fatalf("buy-low strike %v not below price", p.StrikePrice)
			}
		case product.SellHigh:
			if p.StrikePrice <= 95000 {
				t.Fatalf("sell-high strike %v not above price", p.StrikePrice)
			}
		}
		if p.APY <= 0 || p.APY > 0.99 {
			t.Fatalf("APY %v out of range", p.APY)
		}
	}
}

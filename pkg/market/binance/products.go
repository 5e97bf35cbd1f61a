package market

import (
	"context"
	"fmt"
	"math"
	"time"

	"dualinvest-core/internal/product"
)

// defaultTerms are the product term lengths generated on testnet.
var defaultTerms = []int{1, 3, 7, 14, 30}

// strikeOffsets are the synthetic strike distances from the current price.
var strikeOffsets = []float64{0.02, 0.05, 0.08}

// syntheticProducts builds a realistic product board from live market data.
// APY grows with strike distance and historical volatility and shrinks with
// term length, mirroring how real dual investment pricing behaves.
func (c *Client) syntheticProducts(ctx context.Context, symbol string) ([]product.Product, error) {
	ticker, err := c.Ticker24h(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("ticker for product generation: %w", err)
	}
	current := ticker.LastPrice
	if current <= 0 {
		return nil, fmt.Errorf("no price for %s", symbol)
	}

	histVol := math.Abs(ticker.PriceChangePercent) / 100
	if klines, err := c.Klines(ctx, symbol, "1h", 168); err == nil && len(klines) > 1 {
		histVol = annualizedVolatility(klines)
	}

	asset := assetFromSymbol(symbol)
	minAmount := 100.0
	if asset == "BTC" || asset == "ETH" {
		minAmount = 10.0
	}

	now := time.Now().UTC()
	stamp := now.Format("2006010215")

	var products []product.Product
	for _, term := range defaultTerms {
		for _, offset := range strikeOffsets {
			// BUY_LOW below current price
			apy := 0.08 + offset*2 + math.Min(histVol*0.5, 0.20) + float64(30-term)/100
			products = append(products, product.Product{
				ID:             fmt.Sprintf("%s-USDT-BUYLOW-%dD-%dPCT-%s", asset, term, int(offset*100), stamp),
				Asset:          asset,
				Currency:       "USDT",
				Type:           product.BuyLow,
				StrikePrice:    round2(current * (1 - offset)),
				APY:            round4(math.Min(apy, 0.99)),
				TermDays:       term,
				MinAmount:      minAmount,
				MaxAmount:      50000,
				SettlementDate: now.AddDate(0, 0, term),
			})

			// SELL_HIGH above current price
			apy = 0.07 + offset*1.8 + math.Min(histVol*0.4, 0.15) + float64(30-term)/120
			products = append(products, product.Product{
				ID:             fmt.Sprintf("%s-USDT-SELLHIGH-%dD-%dPCT-%s", asset, term, int(offset*100), stamp),
				Asset:          asset,
				Currency:       "USDT",
				Type:           product.SellHigh,
				StrikePrice:    round2(current * (1 + offset)),
				APY:            round4(math.Min(apy, 0.85)),
				TermDays:       term,
				MinAmount:      minAmount,
				MaxAmount:      50000,
				SettlementDate: now.AddDate(0, 0, term),
			})
		}
	}
	return products, nil
}

// annualizedVolatility estimates volatility from hourly close-to-close
// returns.
func annualizedVolatility(klines []Kline) float64 {
	var returns []float64
	for i := 1; i < len(klines); i++ {
		prev := klines[i-1].Close
		if prev > 0 {
			returns = append(returns, klines[i].Close/prev-1)
		}
	}
	if len(returns) < 2 {
		return 0
	}

	m := 0.0
	for _, r := range returns {
		m += r
	}
	m /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - m) * (r - m)
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance) * math.Sqrt(24*365)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

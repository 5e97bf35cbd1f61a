package product

import (
	"errors"
	"fmt"
	"time"
)

// Type distinguishes the two dual-investment contract directions.
type Type string

const (
	// BuyLow buys the asset at a strike below market when exercised.
	BuyLow Type = "BUY_LOW"
	// SellHigh sells the asset at a strike above market when exercised.
	SellHigh Type = "SELL_HIGH"
)

// Product is one candidate dual-investment contract. Products are issued by
// the exchange and never mutated by the engine; evaluation results live in
// their own records alongside the product ID.
type Product struct {
	ID             string    `json:"id"`
	Asset          string    `json:"asset"`
	Currency       string    `json:"currency"`
	Type           Type      `json:"type"`
	StrikePrice    float64   `json:"strike_price"`
	APY            float64   `json:"apy"` // annualized, fraction
	TermDays       int       `json:"term_days"`
	MinAmount      float64   `json:"min_amount"`
	MaxAmount      float64   `json:"max_amount"`
	SettlementDate time.Time `json:"settlement_date"`
}

var errInvalidProduct = errors.New("invalid product")

// Validate rejects malformed product records. A failure here is a programmer
// or upstream-data error, not a market condition.
func (p Product) Validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: empty id", errInvalidProduct)
	case p.Type != BuyLow && p.Type != SellHigh:
		return fmt.Errorf("%w %s: unknown type %q", errInvalidProduct, p.ID, p.Type)
	case p.StrikePrice <= 0:
		return fmt.Errorf("%w %s: strike price %v", errInvalidProduct, p.ID, p.StrikePrice)
	case p.APY < 0:
		return fmt.Errorf("%w %s: negative apy %v", errInvalidProduct, p.ID, p.APY)
	case p.TermDays <= 0:
		return fmt.Errorf("%w %s: term days %d", errInvalidProduct, p.ID, p.TermDays)
	case p.MinAmount < 0 || (p.MaxAmount > 0 && p.MaxAmount < p.MinAmount):
		return fmt.Errorf("%w %s: amount limits min=%v max=%v", errInvalidProduct, p.ID, p.MinAmount, p.MaxAmount)
	}
	return nil
}

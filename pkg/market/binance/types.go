package market

import "dualinvest-core/internal/indicators"

// Kline is one candlestick, trimmed to the fields analysis consumes.
type Kline struct {
	Symbol    string
	OpenTime  int64 // ms
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64 // ms
}

// Bar converts to the indicator library's input type.
func (k Kline) Bar() indicators.Bar {
	return indicators.Bar{
		OpenTime: k.OpenTime,
		Open:     k.Open,
		High:     k.High,
		Low:      k.Low,
		Close:    k.Close,
		Volume:   k.Volume,
	}
}

// Bars converts a kline series for the analyzer.
func Bars(klines []Kline) []indicators.Bar {
	out := make([]indicators.Bar, len(klines))
	for i, k := range klines {
		out[i] = k.Bar()
	}
	return out
}

// Ticker24h holds rolling 24h statistics for one symbol.
type Ticker24h struct {
	Symbol             string  `json:"symbol"`
	LastPrice          float64 `json:"last_price"`
	PriceChangePercent float64 `json:"price_change_percent"`
	HighPrice          float64 `json:"high_price"`
	LowPrice           float64 `json:"low_price"`
	Volume             float64 `json:"volume"`
	QuoteVolume        float64 `json:"quote_volume"`
}

// Ticker holds lightweight price info for streaming.
type Ticker struct {
	Symbol string
	Price  float64
	Time   int64
}

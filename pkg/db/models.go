package db

import "time"

// DecisionRecord is the audit row for one evaluated product.
// Reasons, Warnings and Metadata are stored as JSON text.
type DecisionRecord struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	ProductID      string    `json:"product_id"`
	ShouldInvest   bool      `json:"should_invest"`
	Amount         float64   `json:"amount"`
	ExpectedReturn float64   `json:"expected_return"`
	RiskScore      float64   `json:"risk_score"`
	Score          float64   `json:"score"`
	Strength       string    `json:"strength"`
	Reasons        string    `json:"reasons"`
	Warnings       string    `json:"warnings"`
	Metadata       string    `json:"metadata"`
	CreatedAt      time.Time `json:"created_at"`
}

// Investment tracks a subscribed product through its term.
type Investment struct {
	ID             string    `json:"id"`
	DecisionID     string    `json:"decision_id"`
	ProductID      string    `json:"product_id"`
	Symbol         string    `json:"symbol"`
	Asset          string    `json:"asset"`
	Currency       string    `json:"currency"`
	ProductType    string    `json:"product_type"`
	StrikePrice    float64   `json:"strike_price"`
	APY            float64   `json:"apy"`
	TermDays       int       `json:"term_days"`
	Amount         float64   `json:"amount"`
	Status         string    `json:"status"` // PENDING, ACTIVE, SETTLED, CANCELLED
	SettlementDate time.Time `json:"settlement_date"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SnapshotRecord is the persisted summary of one market snapshot. The full
// snapshot is kept as JSON in Data; the flat columns exist for querying.
type SnapshotRecord struct {
	ID              int64     `json:"id"`
	Symbol          string    `json:"symbol"`
	CurrentPrice    float64   `json:"current_price"`
	PriceChange24h  float64   `json:"price_change_24h"`
	TrendDirection  string    `json:"trend_direction"`
	TrendStrength   string    `json:"trend_strength"`
	Recommendation  string    `json:"recommendation"`
	RSI             float64   `json:"rsi"`
	VolatilityRatio float64   `json:"volatility_ratio"`
	RiskLevel       string    `json:"risk_level"`
	Support         float64   `json:"support"`
	Resistance      float64   `json:"resistance"`
	Data            string    `json:"data"`
	CreatedAt       time.Time `json:"created_at"`
}

// StrategyLog records one strategy signal for audit.
type StrategyLog struct {
	ID           int64     `json:"id"`
	StrategyName string    `json:"strategy_name"`
	Symbol       string    `json:"symbol"`
	ProductID    string    `json:"product_id"`
	Strength     string    `json:"strength"`
	Confidence   float64   `json:"confidence"`
	Reasons      string    `json:"reasons"`
	CreatedAt    time.Time `json:"created_at"`
}

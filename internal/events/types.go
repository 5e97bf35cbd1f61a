package events

// Event enumerates high-level topics inside the decision core.
type Event string

const (
	EventPriceTick      Event = "price_tick"
	EventMarketSnapshot Event = "market_snapshot"
	EventDecision       Event = "investment_decision"
	EventRiskAlert      Event = "risk_alert"
	EventCycleComplete  Event = "evaluation_cycle_complete"
)

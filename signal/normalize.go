package signal

import (
	"strings"
	"time"
)

// MasterEvent is a position, order or deal payload observed on the
// master account, reduced to the fields normalization needs. Broker
// adapters populate it; nothing downstream sees the raw payload.
type MasterEvent struct {
	ID         string
	Symbol     string
	Type       string // "ORDER_TYPE_BUY", "DEAL_TYPE_SELL", or a numeric code as text
	OpenPrice  float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Volume     float64
	Profit     float64
	Swap       float64
	Commission float64
	Time       time.Time
}

// DirectionFromType maps a broker type field onto BUY/SELL. String
// forms containing BUY or SELL win; otherwise the numeric position
// codes apply (0=BUY, 1=SELL). Anything else defaults to BUY, matching
// the master feed's historical behavior.
func DirectionFromType(raw string) Direction {
	upper := strings.ToUpper(raw)
	switch {
	case strings.Contains(upper, "BUY"):
		return Buy
	case strings.Contains(upper, "SELL"):
		return Sell
	case raw == "1":
		return Sell
	default:
		return Buy
	}
}

// Category buckets a symbol for dashboard display. It has no effect on
// trading logic.
func Category(symbol string) string {
	u := strings.ToUpper(symbol)
	switch {
	case strings.Contains(u, "XAU") || strings.Contains(u, "GOLD"):
		return "GOLD"
	case strings.Contains(u, "BTC") || strings.Contains(u, "ETH") || strings.Contains(u, "CRYPTO"):
		return "CRYPTO"
	case strings.Contains(u, "US30") || strings.Contains(u, "SPX") || strings.Contains(u, "NAS") || strings.Contains(u, "INDICE"):
		return "INDICES"
	default:
		return "FOREX"
	}
}

// FromMasterEvent normalizes a master-account event into an unpersisted
// Signal. Entry prefers openPrice over price (first non-zero wins);
// SL/TP stay 0 when the master trade carries none.
func FromMasterEvent(ev MasterEvent) Signal {
	entry := ev.OpenPrice
	if entry == 0 {
		entry = ev.Price
	}

	now := time.Now().UTC()
	sig := Signal{
		Symbol:      strings.ToUpper(ev.Symbol),
		Direction:   DirectionFromType(ev.Type),
		Entry:       entry,
		StopLoss:    ev.StopLoss,
		TakeProfit:  ev.TakeProfit,
		RiskPercent: 1.0,
		Source:      SourceMaster,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	sig.Recompute()
	return sig
}

// NetProfit is the realized result of a closed master trade: profit
// plus swap plus commission.
func (ev MasterEvent) NetProfit() float64 {
	return ev.Profit + ev.Swap + ev.Commission
}

// Package signal defines the canonical trade-intent record and its
// approval lifecycle. Raw broker events and chat text are normalized
// into Signal values before anything downstream sees them.
package signal

import (
	"fmt"
	"math"
	"time"
)

// Direction is the trade side of a signal.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Source identifies where a signal entered the system.
type Source string

const (
	SourceAPI      Source = "api"
	SourceTelegram Source = "telegram"
	SourceMaster   Source = "master-account"
)

// Status is a signal's position in the approval lifecycle.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExecuted Status = "executed"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusExecuted},
}

// CanTransition reports whether a signal may move from one status to
// another. Rejected and executed are terminal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Signal is the canonical trade instruction moving through the
// approval lifecycle.
type Signal struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	Entry        float64   `json:"entry"`
	StopLoss     float64   `json:"stop_loss"`
	TakeProfit   float64   `json:"take_profit"`
	RiskPercent  float64   `json:"risk_percent"`
	RewardToRisk float64   `json:"reward_to_risk"`
	Timeframe    string    `json:"timeframe,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	Source       Source    `json:"source"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RewardToRisk computes the reward/risk ratio for a trade, rounded to
// two decimals. A non-positive risk distance yields 0 rather than an
// error; callers that need stricter validation use risk.Lots.
func RewardToRisk(dir Direction, entry, stopLoss, takeProfit float64) float64 {
	var risk, reward float64
	if dir == Buy {
		risk = entry - stopLoss
		reward = takeProfit - entry
	} else {
		risk = stopLoss - entry
		reward = entry - takeProfit
	}
	if risk <= 0 {
		return 0
	}
	return math.Round(reward/risk*100) / 100
}

// Recompute refreshes the derived reward-to-risk ratio. It must be
// called whenever entry, stop loss or take profit change.
func (s *Signal) Recompute() {
	s.RewardToRisk = RewardToRisk(s.Direction, s.Entry, s.StopLoss, s.TakeProfit)
}

// Transition moves the signal to the next lifecycle status, refusing
// moves out of terminal states.
func (s *Signal) Transition(to Status) error {
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("signal %s: invalid transition %s -> %s", s.ID, s.Status, to)
	}
	s.Status = to
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// TradeExecution is one concrete placement of a signal on one broker
// account. Prices are a snapshot taken at execution time, not a live
// reference back to the signal.
type TradeExecution struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	SignalID      string    `json:"signal_id"`
	Broker        string    `json:"broker"`
	AccountID     string    `json:"account_id"`
	Symbol        string    `json:"symbol"`
	Direction     Direction `json:"direction"`
	LotSize       float64   `json:"lot_size"`
	Entry         float64   `json:"entry"`
	StopLoss      float64   `json:"stop_loss"`
	TakeProfit    float64   `json:"take_profit"`
	BrokerOrderID string    `json:"broker_order_id"`
	Status        string    `json:"status"`
	ExecutedAt    time.Time `json:"executed_at"`
	RawResponse   string    `json:"raw_response,omitempty"`
}

// ExecutionStatus values recorded on TradeExecution rows.
const (
	ExecutionExecuted = "executed"
	ExecutionFailed   = "failed"
)

// Package broker defines the capability contract every broker
// integration implements. Higher layers depend only on Session; the
// per-broker quirks (response envelopes, field-name fallbacks) stay
// inside the adapters.
package broker

import (
	"context"
	"encoding/json"
	"time"
)

// Side is the order direction on the broker wire.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Credentials is what a broker needs to open a session.
type Credentials struct {
	Email     string
	Password  string
	Server    string
	BrokerURL string
}

// TokenPair is the result of an authentication or refresh handshake.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Account is one tradable account under a broker login.
type Account struct {
	ID       string
	Number   int
	Name     string
	Currency string
	Balance  float64
}

// Balance is a point-in-time account snapshot.
type Balance struct {
	Balance    float64
	Equity     float64
	MarginUsed float64
	FreeMargin float64
	Currency   string
}

// Position is one open position as reported by the broker.
type Position struct {
	ID         string
	Symbol     string
	Side       string // raw broker type field, normalized downstream
	Quantity   float64
	OpenPrice  float64
	StopLoss   float64
	TakeProfit float64
	Profit     float64
	Swap       float64
	Commission float64
	OpenedAt   time.Time
}

// ClosedTrade is one realized trade from account history.
type ClosedTrade struct {
	PositionID string
	Symbol     string
	Side       string
	Quantity   float64
	OpenPrice  float64
	ClosePrice float64
	Profit     float64
	Swap       float64
	Commission float64
	ClosedAt   time.Time
}

// OrderRequest places a market order with optional protection levels
// (0 means none).
type OrderRequest struct {
	InstrumentID int64
	Side         Side
	Quantity     float64
	StopLoss     float64
	TakeProfit   float64
}

// OrderFill is the broker's acknowledgement of a placed order. Raw
// keeps the untouched response payload for the audit trail.
type OrderFill struct {
	OrderID string
	Raw     json.RawMessage
}

// Session is an authenticated connection to one broker account. A
// session is mutated in place (token refresh, instrument-cache fill)
// and owned per identity; implementations must be safe for concurrent
// use.
type Session interface {
	Authenticate(ctx context.Context) (TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	SelectAccount(ctx context.Context, accountID string) error
	GetBalance(ctx context.Context) (Balance, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetHistory(ctx context.Context) ([]ClosedTrade, error)
	ResolveInstrument(ctx context.Context, symbol string) (int64, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderFill, error)
}

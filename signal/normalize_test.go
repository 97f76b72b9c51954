package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectionFromType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want Direction
	}{
		{"ORDER_TYPE_BUY", Buy},
		{"DEAL_TYPE_SELL", Sell},
		{"POSITION_TYPE_BUY", Buy},
		{"sell", Sell},
		{"0", Buy},
		{"1", Sell},
		{"", Buy},
		{"MARKET", Buy},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DirectionFromType(tt.raw), "raw=%q", tt.raw)
	}
}

func TestCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		symbol string
		want   string
	}{
		{"XAUUSD", "GOLD"},
		{"gold.spot", "GOLD"},
		{"BTCUSD", "CRYPTO"},
		{"ETHUSD", "CRYPTO"},
		{"US30", "INDICES"},
		{"NAS100", "INDICES"},
		{"SPX500", "INDICES"},
		{"EURUSD", "FOREX"},
		{"GBPJPY", "FOREX"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Category(tt.symbol), "symbol=%s", tt.symbol)
	}
}

func TestFromMasterEvent(t *testing.T) {
	t.Parallel()

	sig := FromMasterEvent(MasterEvent{
		ID:         "12345",
		Symbol:     "xauusd",
		Type:       "POSITION_TYPE_BUY",
		OpenPrice:  2345.50,
		StopLoss:   2330.00,
		TakeProfit: 2375.00,
	})

	assert.Equal(t, "XAUUSD", sig.Symbol)
	assert.Equal(t, Buy, sig.Direction)
	assert.InDelta(t, 2345.50, sig.Entry, 1e-9)
	assert.InDelta(t, 1.9, sig.RewardToRisk, 1e-9)
	assert.Equal(t, SourceMaster, sig.Source)
	assert.Equal(t, StatusPending, sig.Status)
}

func TestFromMasterEvent_PriceFallback(t *testing.T) {
	t.Parallel()

	sig := FromMasterEvent(MasterEvent{Symbol: "EURUSD", Type: "1", Price: 1.0900})
	assert.Equal(t, Sell, sig.Direction)
	assert.InDelta(t, 1.0900, sig.Entry, 1e-9)
	assert.Zero(t, sig.StopLoss)
	assert.Zero(t, sig.TakeProfit)
	assert.Zero(t, sig.RewardToRisk)
}

func TestNetProfit(t *testing.T) {
	t.Parallel()

	ev := MasterEvent{Profit: 150.25, Swap: -2.10, Commission: -4.00}
	assert.InDelta(t, 144.15, ev.NetProfit(), 1e-9)
}

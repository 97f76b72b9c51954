package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseText_FullSignal(t *testing.T) {
	t.Parallel()

	text := "BUY XAUUSD\nEntry: 2345.50\nSL: 2330.00\nTP: 2375.00\nRisk: 1%\nTF: H1"
	sig, err := ParseText(text)
	require.NoError(t, err)

	assert.Equal(t, "XAUUSD", sig.Symbol)
	assert.Equal(t, Buy, sig.Direction)
	assert.InDelta(t, 2345.50, sig.Entry, 1e-9)
	assert.InDelta(t, 2330.00, sig.StopLoss, 1e-9)
	assert.InDelta(t, 2375.00, sig.TakeProfit, 1e-9)
	assert.InDelta(t, 1.0, sig.RiskPercent, 1e-9)
	assert.Equal(t, "H1", sig.Timeframe)
	assert.InDelta(t, 1.9, sig.RewardToRisk, 1e-9)
	assert.Equal(t, SourceTelegram, sig.Source)
	assert.Equal(t, StatusPending, sig.Status)
}

func TestParseText_CaseAndOrderInsensitive(t *testing.T) {
	t.Parallel()

	texts := []string{
		"sell eurusd\ntp: 1.0800\nsl: 1.0950\nentry: 1.0900",
		"TP: 1.0800\nSL: 1.0950\nEntry: 1.0900\nSELL EURUSD",
	}

	for _, text := range texts {
		sig, err := ParseText(text)
		require.NoError(t, err, text)
		assert.Equal(t, Sell, sig.Direction)
		assert.Equal(t, "EURUSD", sig.Symbol)
		assert.InDelta(t, 1.0900, sig.Entry, 1e-9)
		assert.InDelta(t, 1.0950, sig.StopLoss, 1e-9)
		assert.InDelta(t, 1.0800, sig.TakeProfit, 1e-9)
	}
}

func TestParseText_MissingFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{"no direction", "XAUUSD Entry: 2345 SL: 2330 TP: 2375"},
		{"no symbol", "BUY"},
		{"missing entry", "BUY XAUUSD\nSL: 2330\nTP: 2375"},
		{"missing sl", "BUY XAUUSD\nEntry: 2345\nTP: 2375"},
		{"missing tp", "BUY XAUUSD\nEntry: 2345\nSL: 2330"},
		{"plain chatter", "good morning, market looks slow today"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseText(tt.text)
			assert.ErrorIs(t, err, ErrNotASignal)
		})
	}
}

func TestParseText_RiskDefaultsAndNotes(t *testing.T) {
	t.Parallel()

	sig, err := ParseText("BUY GBPUSD\nEntry: 1.2500\nSL: 1.2450\nTP: 1.2600\nNotes: London breakout")
	require.NoError(t, err)

	assert.InDelta(t, 1.0, sig.RiskPercent, 1e-9)
	assert.Equal(t, "London breakout", sig.Notes)
	assert.Empty(t, sig.Timeframe)
}

func TestParseText_RiskPercentParsed(t *testing.T) {
	t.Parallel()

	sig, err := ParseText("SELL US30\nEntry: 39000\nSL: 39150\nTP: 38700\nRisk: 0.5%")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, sig.RiskPercent, 1e-9)
}

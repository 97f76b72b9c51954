package signal

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrNotASignal means the text did not contain a complete signal. It is
// not a failure: chat ingestion silently drops such messages.
var ErrNotASignal = errors.New("not a signal")

// Accepted chat format, case-insensitive and order-independent across lines:
//
//	BUY XAUUSD
//	Entry: 2345.50
//	SL: 2330.00
//	TP: 2375.00
//	Risk: 1%
//	TF: H1
//	Notes: optional free text
var (
	reBuy       = regexp.MustCompile(`(?i)\bBUY\b`)
	reSell      = regexp.MustCompile(`(?i)\bSELL\b`)
	reSymbol    = regexp.MustCompile(`(?i)(?:BUY|SELL)\s+(\S+)`)
	reEntry     = regexp.MustCompile(`(?i)entry[:\s]+([0-9]+(?:\.[0-9]+)?)`)
	reStopLoss  = regexp.MustCompile(`(?i)sl[:\s]+([0-9]+(?:\.[0-9]+)?)`)
	reTarget    = regexp.MustCompile(`(?i)tp[:\s]+([0-9]+(?:\.[0-9]+)?)`)
	reRisk      = regexp.MustCompile(`(?i)risk[:\s]+([0-9]+(?:\.[0-9]+)?)%?`)
	reTimeframe = regexp.MustCompile(`(?i)tf[:\s]+(M\d+|H\d+|D\d?|W\d?)`)
	reNotes     = regexp.MustCompile(`(?i)notes?[:\s]+(.+)`)
)

func extractFloat(re *regexp.Regexp, text string) (float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseText converts free chat text into an unpersisted Signal. Entry,
// SL and TP are all mandatory; a message missing any of them yields
// ErrNotASignal, never a partial signal.
func ParseText(text string) (Signal, error) {
	text = strings.TrimSpace(text)

	var dir Direction
	switch {
	case reBuy.MatchString(text):
		dir = Buy
	case reSell.MatchString(text):
		dir = Sell
	default:
		return Signal{}, ErrNotASignal
	}

	m := reSymbol.FindStringSubmatch(text)
	if m == nil {
		return Signal{}, ErrNotASignal
	}
	symbol := strings.ToUpper(m[1])

	entry, okEntry := extractFloat(reEntry, text)
	stopLoss, okSL := extractFloat(reStopLoss, text)
	takeProfit, okTP := extractFloat(reTarget, text)
	if !okEntry || !okSL || !okTP {
		return Signal{}, ErrNotASignal
	}

	riskPct, ok := extractFloat(reRisk, text)
	if !ok {
		riskPct = 1.0
	}

	var timeframe string
	if tf := reTimeframe.FindStringSubmatch(text); tf != nil {
		timeframe = strings.ToUpper(tf[1])
	}

	var notes string
	if n := reNotes.FindStringSubmatch(text); n != nil {
		notes = strings.TrimSpace(n[1])
	}

	now := time.Now().UTC()
	sig := Signal{
		Symbol:      symbol,
		Direction:   dir,
		Entry:       entry,
		StopLoss:    stopLoss,
		TakeProfit:  takeProfit,
		RiskPercent: riskPct,
		Timeframe:   timeframe,
		Notes:       notes,
		Source:      SourceTelegram,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	sig.Recompute()
	return sig, nil
}

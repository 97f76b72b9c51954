// Package risk converts an account balance and a signal's stop distance
// into a broker-ready lot size.
package risk

import (
	"errors"
	"math"
)

const (
	// DefaultLotStep is the volume increment most brokers accept.
	DefaultLotStep = 0.01
	// MinLots and MaxLots bound every computed size.
	MinLots = 0.01
	MaxLots = 100.0

	// contractDivisor scales price distance into per-lot currency risk.
	contractDivisor = 100.0
)

// ErrInvalidRisk means the inputs cannot produce a position size:
// non-positive balance or risk, or entry equal to stop.
var ErrInvalidRisk = errors.New("invalid risk inputs")

// Inputs describes one sizing request. LotStep of 0 means
// DefaultLotStep.
type Inputs struct {
	Balance     float64
	RiskPercent float64
	Entry       float64
	StopLoss    float64
	LotStep     float64
}

// Result carries the computed size plus the intermediate figures for
// logging and broadcast payloads.
type Result struct {
	Lots         float64
	StopDistance float64
	RiskAmount   float64
}

// Lots sizes a position so that hitting the stop loses RiskPercent of
// Balance. The raw size is snapped to LotStep and clamped into
// [MinLots, MaxLots].
func Lots(in Inputs) (Result, error) {
	if in.Balance <= 0 || in.RiskPercent <= 0 {
		return Result{}, ErrInvalidRisk
	}
	stopDistance := math.Abs(in.Entry - in.StopLoss)
	if stopDistance == 0 {
		return Result{}, ErrInvalidRisk
	}

	step := in.LotStep
	if step <= 0 {
		step = DefaultLotStep
	}

	riskAmount := in.Balance * in.RiskPercent / 100.0
	raw := riskAmount / (stopDistance * contractDivisor)

	lots := math.Round(raw/step) * step
	lots = math.Round(lots*100) / 100
	if lots < MinLots {
		lots = MinLots
	}
	if lots > MaxLots {
		lots = MaxLots
	}

	return Result{
		Lots:         lots,
		StopDistance: stopDistance,
		RiskAmount:   riskAmount,
	}, nil
}

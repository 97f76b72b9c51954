package copier

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/verstige-os/copydesk/broker"
	"github.com/verstige-os/copydesk/internal/metrics"
	"github.com/verstige-os/copydesk/pkg/id"
	"github.com/verstige-os/copydesk/risk"
	"github.com/verstige-os/copydesk/session"
	"github.com/verstige-os/copydesk/signal"
	"github.com/verstige-os/copydesk/store"
)

// Engine copies approved signals onto follower accounts. Execution is
// idempotent per (user, signal): a second attempt returns the recorded
// execution instead of placing another order.
type Engine struct {
	store      store.Store
	resolver   *session.Resolver
	brokerCode string
	pub        Publisher
	log        *log.Logger
}

func NewEngine(st store.Store, resolver *session.Resolver, brokerCode string, pub Publisher, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Engine{store: st, resolver: resolver, brokerCode: brokerCode, pub: pub, log: logger}
}

// Approve moves a pending signal to approved and immediately copies it
// for the given user. An execution failure leaves the signal approved
// so the attempt can be repeated: approving an already-approved signal
// skips the status write and goes straight to execution.
func (e *Engine) Approve(ctx context.Context, userID, signalID string) (signal.TradeExecution, error) {
	sig, err := e.store.GetSignal(ctx, signalID)
	if err != nil {
		return signal.TradeExecution{}, err
	}
	if sig.Status != signal.StatusApproved {
		if err := sig.Transition(signal.StatusApproved); err != nil {
			return signal.TradeExecution{}, err
		}
		if err := e.store.UpdateSignalStatus(ctx, signalID, signal.StatusApproved); err != nil {
			return signal.TradeExecution{}, err
		}
	}
	return e.Execute(ctx, userID, sig)
}

// Reject terminally refuses a pending signal.
func (e *Engine) Reject(ctx context.Context, signalID string) error {
	sig, err := e.store.GetSignal(ctx, signalID)
	if err != nil {
		return err
	}
	if err := sig.Transition(signal.StatusRejected); err != nil {
		return err
	}
	return e.store.UpdateSignalStatus(ctx, signalID, signal.StatusRejected)
}

// Execute places the signal on the user's linked account. The store's
// unique execution gate makes concurrent duplicates collapse into the
// first recorded attempt.
func (e *Engine) Execute(ctx context.Context, userID string, sig signal.Signal) (signal.TradeExecution, error) {
	if existing, err := e.store.FindExecution(ctx, userID, sig.ID); err == nil {
		e.log.WithFields(log.Fields{"user": userID, "signal": sig.ID}).
			Debug("signal already executed, returning recorded trade")
		e.repairStatus(ctx, sig.ID)
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return signal.TradeExecution{}, err
	}

	creds, err := e.store.Credentials(ctx, userID, e.brokerCode)
	if errors.Is(err, store.ErrNotFound) {
		return signal.TradeExecution{}, broker.ErrNoActiveSession
	}
	if err != nil {
		return signal.TradeExecution{}, err
	}

	identity := session.Identity{
		UserID: userID,
		Broker: e.brokerCode,
		Email:  creds.Email,
		Server: creds.Server,
	}

	exec, balance, err := e.placeWithRetry(ctx, identity, creds, sig)
	if err != nil {
		metrics.ExecutionsTotal.WithLabelValues(e.brokerCode, signal.ExecutionFailed).Inc()
		e.recordFailure(ctx, userID, creds.AccountID, sig, err)
		return signal.TradeExecution{}, err
	}

	if err := e.store.InsertExecution(ctx, exec); err != nil {
		if errors.Is(err, store.ErrDuplicateExecution) {
			// lost the race; the winner's row is the record of truth
			return e.store.FindExecution(ctx, userID, sig.ID)
		}
		return signal.TradeExecution{}, err
	}
	metrics.ExecutionsTotal.WithLabelValues(e.brokerCode, signal.ExecutionExecuted).Inc()

	if err := e.store.UpdateSignalStatus(ctx, sig.ID, signal.StatusExecuted); err != nil {
		e.log.WithError(err).WithField("signal", sig.ID).
			Warn("marking signal executed failed")
	}

	e.log.WithFields(log.Fields{
		"user":   userID,
		"signal": sig.ID,
		"symbol": sig.Symbol,
		"lots":   exec.LotSize,
		"order":  exec.BrokerOrderID,
	}).Info("signal copied")

	if e.pub != nil {
		e.pub.Publish("trade_executed", exec)
		e.pub.Publish("account_update", map[string]any{
			"user_id":     identity.UserID,
			"account_id":  creds.AccountID,
			"balance":     balance.Balance,
			"equity":      balance.Equity,
			"margin_used": balance.MarginUsed,
			"free_margin": balance.FreeMargin,
			"currency":    balance.Currency,
		})
	}
	return exec, nil
}

// repairStatus finishes the executed flip for a signal whose execution
// was recorded but whose status write was lost (crash or store error
// between the two).
func (e *Engine) repairStatus(ctx context.Context, signalID string) {
	stored, err := e.store.GetSignal(ctx, signalID)
	if err != nil || stored.Status != signal.StatusApproved {
		return
	}
	if err := e.store.UpdateSignalStatus(ctx, signalID, signal.StatusExecuted); err != nil {
		e.log.WithError(err).WithField("signal", signalID).
			Warn("repairing executed status failed")
	}
}

// placeWithRetry runs the order flow, retrying exactly once with a
// rebuilt session when the broker reports an expired login mid-flight.
func (e *Engine) placeWithRetry(ctx context.Context, identity session.Identity, creds store.AccountCredentials, sig signal.Signal) (signal.TradeExecution, broker.Balance, error) {
	exec, balance, err := e.place(ctx, identity, creds, sig)
	if err != nil && broker.IsAuth(err) {
		e.log.WithField("user", identity.UserID).
			Info("session expired mid-execution, re-authenticating")
		e.resolver.Invalidate(identity)
		return e.place(ctx, identity, creds, sig)
	}
	return exec, balance, err
}

func (e *Engine) place(ctx context.Context, identity session.Identity, creds store.AccountCredentials, sig signal.Signal) (signal.TradeExecution, broker.Balance, error) {
	sess, err := e.resolver.Resolve(ctx, identity)
	if err != nil {
		return signal.TradeExecution{}, broker.Balance{}, err
	}

	instrumentID, err := sess.ResolveInstrument(ctx, sig.Symbol)
	if err != nil {
		return signal.TradeExecution{}, broker.Balance{}, err
	}

	// balance is read fresh on every execution, sizing must track the
	// account as it is now
	balance, err := sess.GetBalance(ctx)
	if err != nil {
		return signal.TradeExecution{}, broker.Balance{}, err
	}

	sized, err := risk.Lots(risk.Inputs{
		Balance:     balance.Balance,
		RiskPercent: sig.RiskPercent,
		Entry:       sig.Entry,
		StopLoss:    sig.StopLoss,
	})
	if err != nil {
		return signal.TradeExecution{}, broker.Balance{}, fmt.Errorf("size signal %s: %w", sig.ID, err)
	}

	side := broker.Buy
	if sig.Direction == signal.Sell {
		side = broker.Sell
	}

	fill, err := sess.PlaceOrder(ctx, broker.OrderRequest{
		InstrumentID: instrumentID,
		Side:         side,
		Quantity:     sized.Lots,
		StopLoss:     sig.StopLoss,
		TakeProfit:   sig.TakeProfit,
	})
	if err != nil {
		return signal.TradeExecution{}, broker.Balance{}, err
	}

	return signal.TradeExecution{
		ID:            id.New(),
		UserID:        identity.UserID,
		SignalID:      sig.ID,
		Broker:        e.brokerCode,
		AccountID:     creds.AccountID,
		Symbol:        sig.Symbol,
		Direction:     sig.Direction,
		LotSize:       sized.Lots,
		Entry:         sig.Entry,
		StopLoss:      sig.StopLoss,
		TakeProfit:    sig.TakeProfit,
		BrokerOrderID: fill.OrderID,
		Status:        signal.ExecutionExecuted,
		ExecutedAt:    time.Now().UTC(),
		RawResponse:   string(fill.Raw),
	}, balance, nil
}

// recordFailure keeps an audit row for the failed attempt. Failed rows
// never block a retry.
func (e *Engine) recordFailure(ctx context.Context, userID, accountID string, sig signal.Signal, cause error) {
	exec := signal.TradeExecution{
		ID:          id.New(),
		UserID:      userID,
		SignalID:    sig.ID,
		Broker:      e.brokerCode,
		AccountID:   accountID,
		Symbol:      sig.Symbol,
		Direction:   sig.Direction,
		Entry:       sig.Entry,
		StopLoss:    sig.StopLoss,
		TakeProfit:  sig.TakeProfit,
		Status:      signal.ExecutionFailed,
		ExecutedAt:  time.Now().UTC(),
		RawResponse: cause.Error(),
	}
	if err := e.store.InsertExecution(ctx, exec); err != nil {
		e.log.WithError(err).Warn("recording failed execution")
	}
}

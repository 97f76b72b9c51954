package copier

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/verstige-os/copydesk/internal/metrics"
	"github.com/verstige-os/copydesk/pkg/id"
	"github.com/verstige-os/copydesk/signal"
	"github.com/verstige-os/copydesk/store"
)

// Publisher fans events out to connected dashboard clients. Implemented
// by broadcast.Hub; a nil-safe no-op keeps the sink usable without one.
type Publisher interface {
	Publish(event string, payload any)
}

// StoreSink turns master-account events into stored pending signals and
// dashboard notifications.
type StoreSink struct {
	store store.Store
	pub   Publisher
	log   *log.Logger
}

func NewStoreSink(st store.Store, pub Publisher, logger *log.Logger) *StoreSink {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &StoreSink{store: st, pub: pub, log: logger}
}

func (s *StoreSink) MasterOpened(ctx context.Context, ev signal.MasterEvent) {
	sig := signal.FromMasterEvent(ev)
	sig.ID = id.New()

	if err := s.store.InsertSignal(ctx, sig); err != nil {
		s.log.WithError(err).WithField("symbol", sig.Symbol).
			Error("storing master signal failed")
		return
	}
	metrics.SignalsIngested.WithLabelValues(string(signal.SourceMaster)).Inc()

	s.log.WithFields(log.Fields{
		"signal":   sig.ID,
		"symbol":   sig.Symbol,
		"dir":      sig.Direction,
		"category": signal.Category(sig.Symbol),
	}).Info("master opened position")

	s.publish("new_signal", sig)
}

func (s *StoreSink) MasterClosed(ctx context.Context, ev signal.MasterEvent) {
	s.log.WithFields(log.Fields{
		"position": ev.ID,
		"symbol":   ev.Symbol,
		"net":      ev.NetProfit(),
	}).Info("master closed position")

	s.publish("signal_result", map[string]any{
		"position_id": ev.ID,
		"symbol":      ev.Symbol,
		"category":    signal.Category(ev.Symbol),
		"net_profit":  ev.NetProfit(),
		"closed_at":   ev.Time,
	})
}

func (s *StoreSink) publish(event string, payload any) {
	if s.pub != nil {
		s.pub.Publish(event, payload)
	}
}

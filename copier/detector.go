// Package copier watches a master account for position changes and
// turns approved signals into broker orders on follower accounts.
package copier

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/verstige-os/copydesk/broker"
	"github.com/verstige-os/copydesk/internal/metrics"
	"github.com/verstige-os/copydesk/signal"
)

const (
	// DefaultPollInterval between master-account snapshots.
	DefaultPollInterval = time.Second
	// maxBackoff caps the retry delay after consecutive fetch errors.
	maxBackoff = 30 * time.Second
)

// EventSink receives normalized master-account events. Opens are
// delivered before closes within one poll cycle.
type EventSink interface {
	MasterOpened(ctx context.Context, ev signal.MasterEvent)
	MasterClosed(ctx context.Context, ev signal.MasterEvent)
}

// Detector polls a master account's open positions and emits the diff
// against the previous snapshot. The first successful poll only seeds
// the snapshot: positions opened before the watcher started are not
// replayed as fresh signals.
type Detector struct {
	session  broker.Session
	sink     EventSink
	interval time.Duration
	log      *log.Logger

	known map[string]broker.Position
	stop  chan struct{}
	done  chan struct{}
}

func NewDetector(session broker.Session, sink EventSink, interval time.Duration, logger *log.Logger) *Detector {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Detector{
		session:  session,
		sink:     sink,
		interval: interval,
		log:      logger,
		known:    make(map[string]broker.Position),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run polls until Stop is called or the context is canceled. It is
// meant to be launched on its own goroutine.
func (d *Detector) Run(ctx context.Context) {
	defer close(d.done)

	seeded := false
	errStreak := 0

	for {
		delay := d.interval
		if errStreak > 0 {
			delay = backoff(d.interval, errStreak)
		}

		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-time.After(delay):
		}

		positions, err := d.session.GetPositions(ctx)
		if err != nil {
			errStreak++
			metrics.PollErrors.Inc()
			d.log.WithError(err).WithField("streak", errStreak).
				Warn("master position poll failed")
			continue
		}
		errStreak = 0
		metrics.PollCycles.Inc()

		current := make(map[string]broker.Position, len(positions))
		for _, p := range positions {
			current[p.ID] = p
		}

		if !seeded {
			// baseline only, nothing existing is treated as new
			seeded = true
			d.known = current
			d.log.WithField("open_positions", len(current)).
				Info("master account snapshot seeded")
			continue
		}

		for id, p := range current {
			if _, ok := d.known[id]; !ok {
				d.sink.MasterOpened(ctx, positionEvent(p))
			}
		}
		for id, p := range d.known {
			if _, ok := current[id]; !ok {
				d.sink.MasterClosed(ctx, positionEvent(p))
			}
		}

		d.known = current
	}
}

// Stop ends the poll loop and blocks until it has drained.
func (d *Detector) Stop() {
	close(d.stop)
	<-d.done
}

func backoff(base time.Duration, streak int) time.Duration {
	d := base
	for i := 1; i < streak; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func positionEvent(p broker.Position) signal.MasterEvent {
	return signal.MasterEvent{
		ID:         p.ID,
		Symbol:     p.Symbol,
		Type:       p.Side,
		OpenPrice:  p.OpenPrice,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		Volume:     p.Quantity,
		Profit:     p.Profit,
		Swap:       p.Swap,
		Commission: p.Commission,
		Time:       p.OpenedAt,
	}
}

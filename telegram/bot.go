// Package telegram ingests trade signals posted as chat messages.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/verstige-os/copydesk/internal/metrics"
	"github.com/verstige-os/copydesk/pkg/id"
	"github.com/verstige-os/copydesk/signal"
	"github.com/verstige-os/copydesk/store"
)

// Publisher mirrors copier.Publisher so the bot can notify dashboards
// without importing the copier.
type Publisher interface {
	Publish(event string, payload any)
}

// sender is the slice of *tb.Bot the message handler needs.
type sender interface {
	Send(to tb.Recipient, what interface{}, options ...interface{}) (*tb.Message, error)
}

// Bot listens for messages, parses the ones that look like trade
// signals and stores them as pending. Non-signal chatter is ignored
// without a reply.
type Bot struct {
	bot    *tb.Bot
	sender sender
	store  store.Store
	pub    Publisher
	log    *log.Logger
}

// NewBot connects to the Telegram API with a long poller.
func NewBot(token string, st store.Store, pub Publisher, logger *log.Logger) (*Bot, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	inner, err := tb.NewBot(tb.Settings{
		Token:  token,
		Poller: &tb.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}

	b := &Bot{bot: inner, sender: inner, store: st, pub: pub, log: logger}
	inner.Handle(tb.OnText, b.onText)
	return b, nil
}

// Start blocks serving updates until Stop is called.
func (b *Bot) Start() {
	b.log.Info("telegram signal intake started")
	b.bot.Start()
}

func (b *Bot) Stop() {
	b.bot.Stop()
}

func (b *Bot) onText(m *tb.Message) {
	sig, err := signal.ParseText(m.Text)
	if errors.Is(err, signal.ErrNotASignal) {
		return
	}
	if err != nil {
		b.log.WithError(err).Debug("message rejected by parser")
		return
	}

	sig.ID = id.New()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.store.InsertSignal(ctx, sig); err != nil {
		b.log.WithError(err).WithField("symbol", sig.Symbol).
			Error("storing telegram signal failed")
		return
	}
	metrics.SignalsIngested.WithLabelValues(string(signal.SourceTelegram)).Inc()

	b.log.WithFields(log.Fields{
		"signal": sig.ID,
		"symbol": sig.Symbol,
		"dir":    sig.Direction,
		"chat":   m.Chat.ID,
	}).Info("telegram signal stored")

	if b.pub != nil {
		b.pub.Publish("new_signal", sig)
	}

	reply := fmt.Sprintf("Signal received!\n%s %s\nEntry: %g | SL: %g | TP: %g",
		sig.Direction, sig.Symbol, sig.Entry, sig.StopLoss, sig.TakeProfit)
	if _, err := b.sender.Send(m.Chat, reply); err != nil {
		b.log.WithError(err).Debug("acknowledgement send failed")
	}
}

package copier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verstige-os/copydesk/broker"
	"github.com/verstige-os/copydesk/signal"
)

type scriptedSession struct {
	broker.Session

	mu        sync.Mutex
	snapshots [][]broker.Position
	errAt     map[int]error
	calls     int
}

func (s *scriptedSession) GetPositions(ctx context.Context) ([]broker.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.calls
	s.calls++
	if err, ok := s.errAt[call]; ok {
		return nil, err
	}
	if call >= len(s.snapshots) {
		return s.snapshots[len(s.snapshots)-1], nil
	}
	return s.snapshots[call], nil
}

type recordingSink struct {
	opened chan signal.MasterEvent
	closed chan signal.MasterEvent
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		opened: make(chan signal.MasterEvent, 16),
		closed: make(chan signal.MasterEvent, 16),
	}
}

func (r *recordingSink) MasterOpened(ctx context.Context, ev signal.MasterEvent) { r.opened <- ev }
func (r *recordingSink) MasterClosed(ctx context.Context, ev signal.MasterEvent) { r.closed <- ev }

func waitEvent(t *testing.T, ch chan signal.MasterEvent) signal.MasterEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return signal.MasterEvent{}
	}
}

func pos(id, symbol string) broker.Position {
	return broker.Position{ID: id, Symbol: symbol, Side: "buy", Quantity: 0.5, OpenPrice: 100}
}

func TestDetectorFirstPollSeedsOnly(t *testing.T) {
	t.Parallel()

	sess := &scriptedSession{snapshots: [][]broker.Position{
		{pos("P1", "XAUUSD")}, // baseline
		{pos("P1", "XAUUSD"), pos("P2", "EURUSD")},
	}}
	sink := newRecordingSink()
	d := NewDetector(sess, sink, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)
	defer d.Stop()

	ev := waitEvent(t, sink.opened)
	assert.Equal(t, "P2", ev.ID, "pre-existing P1 must not replay")
	assert.Equal(t, "EURUSD", ev.Symbol)
}

func TestDetectorDiffsOpensAndCloses(t *testing.T) {
	t.Parallel()

	sess := &scriptedSession{snapshots: [][]broker.Position{
		{},
		{pos("P1", "XAUUSD"), pos("P2", "EURUSD")},
		{pos("P2", "EURUSD"), pos("P3", "GBPJPY")},
	}}
	sink := newRecordingSink()
	d := NewDetector(sess, sink, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)
	defer d.Stop()

	first := waitEvent(t, sink.opened)
	second := waitEvent(t, sink.opened)
	openedIDs := []string{first.ID, second.ID}
	assert.ElementsMatch(t, []string{"P1", "P2"}, openedIDs)

	opened3 := waitEvent(t, sink.opened)
	assert.Equal(t, "P3", opened3.ID)
	closed1 := waitEvent(t, sink.closed)
	assert.Equal(t, "P1", closed1.ID)
}

func TestDetectorSurvivesFetchErrors(t *testing.T) {
	t.Parallel()

	sess := &scriptedSession{
		snapshots: [][]broker.Position{
			{},
			{}, // consumed by the error slot below
			{pos("P1", "XAUUSD")},
		},
		errAt: map[int]error{1: errors.New("gateway timeout")},
	}
	sink := newRecordingSink()
	d := NewDetector(sess, sink, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)
	defer d.Stop()

	ev := waitEvent(t, sink.opened)
	assert.Equal(t, "P1", ev.ID, "poll resumes after a transient error")
}

func TestDetectorStop(t *testing.T) {
	t.Parallel()

	sess := &scriptedSession{snapshots: [][]broker.Position{{}}}
	d := NewDetector(sess, newRecordingSink(), time.Millisecond, nil)

	go d.Run(context.Background())
	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestBackoffCapped(t *testing.T) {
	t.Parallel()

	base := time.Second
	require.Equal(t, time.Second, backoff(base, 1))
	require.Equal(t, 2*time.Second, backoff(base, 2))
	require.Equal(t, 8*time.Second, backoff(base, 4))
	require.Equal(t, maxBackoff, backoff(base, 10))
	require.Equal(t, maxBackoff, backoff(base, 100))
}

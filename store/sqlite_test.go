package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verstige-os/copydesk/signal"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "copydesk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testSignal(id string) signal.Signal {
	now := time.Now().UTC().Truncate(time.Second)
	sig := signal.Signal{
		ID:          id,
		Symbol:      "XAUUSD",
		Direction:   signal.Buy,
		Entry:       2345.50,
		StopLoss:    2330.00,
		TakeProfit:  2375.00,
		RiskPercent: 1.0,
		Timeframe:   "H1",
		Source:      signal.SourceTelegram,
		Status:      signal.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	sig.Recompute()
	return sig
}

func TestSignalRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	want := testSignal("SIG1")
	require.NoError(t, s.InsertSignal(ctx, want))

	got, err := s.GetSignal(ctx, "SIG1")
	require.NoError(t, err)
	assert.Equal(t, want.Symbol, got.Symbol)
	assert.Equal(t, want.Direction, got.Direction)
	assert.InDelta(t, want.RewardToRisk, got.RewardToRisk, 1e-9)
	assert.Equal(t, want.Status, got.Status)

	_, err = s.GetSignal(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSignalStatus(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertSignal(ctx, testSignal("SIG1")))
	require.NoError(t, s.UpdateSignalStatus(ctx, "SIG1", signal.StatusApproved))

	got, err := s.GetSignal(ctx, "SIG1")
	require.NoError(t, err)
	assert.Equal(t, signal.StatusApproved, got.Status)

	assert.ErrorIs(t, s.UpdateSignalStatus(ctx, "missing", signal.StatusApproved), ErrNotFound)
}

func TestListSignalsNewestFirst(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	old := testSignal("OLD")
	old.CreatedAt = old.CreatedAt.Add(-time.Hour)
	require.NoError(t, s.InsertSignal(ctx, old))
	require.NoError(t, s.InsertSignal(ctx, testSignal("NEW")))

	got, err := s.ListSignals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "NEW", got[0].ID)
	assert.Equal(t, "OLD", got[1].ID)
}

func testExecution(id, userID, signalID, status string) signal.TradeExecution {
	return signal.TradeExecution{
		ID:            id,
		UserID:        userID,
		SignalID:      signalID,
		Broker:        "tradelocker",
		AccountID:     "800123",
		Symbol:        "XAUUSD",
		Direction:     signal.Buy,
		LotSize:       0.06,
		Entry:         2345.50,
		StopLoss:      2330.00,
		TakeProfit:    2375.00,
		BrokerOrderID: "55001",
		Status:        status,
		ExecutedAt:    time.Now().UTC().Truncate(time.Second),
		RawResponse:   `{"d":{"orderId":55001}}`,
	}
}

func TestExecutionIdempotencyGate(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertExecution(ctx, testExecution("E1", "U1", "SIG1", signal.ExecutionExecuted)))

	// second non-failed row for the same user and signal is refused
	err := s.InsertExecution(ctx, testExecution("E2", "U1", "SIG1", signal.ExecutionExecuted))
	assert.ErrorIs(t, err, ErrDuplicateExecution)

	// different user is fine
	require.NoError(t, s.InsertExecution(ctx, testExecution("E3", "U2", "SIG1", signal.ExecutionExecuted)))
}

func TestFailedExecutionsAllowRetry(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertExecution(ctx, testExecution("E1", "U1", "SIG1", signal.ExecutionFailed)))
	require.NoError(t, s.InsertExecution(ctx, testExecution("E2", "U1", "SIG1", signal.ExecutionFailed)))
	require.NoError(t, s.InsertExecution(ctx, testExecution("E3", "U1", "SIG1", signal.ExecutionExecuted)))

	// FindExecution skips the failed rows
	got, err := s.FindExecution(ctx, "U1", "SIG1")
	require.NoError(t, err)
	assert.Equal(t, "E3", got.ID)
	assert.Equal(t, "55001", got.BrokerOrderID)
}

func TestFindExecutionNotFound(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	_, err := s.FindExecution(context.Background(), "U1", "SIG1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCredentialsUpsert(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	creds := AccountCredentials{
		UserID:    "U1",
		Broker:    "tradelocker",
		Email:     "trader@example.com",
		Password:  "hunter2",
		Server:    "DEMO-1",
		BrokerURL: "https://demo.tradelocker.com/backend-api",
	}
	require.NoError(t, s.SaveCredentials(ctx, creds))

	creds.AccessToken = "access-1"
	creds.RefreshToken = "refresh-1"
	creds.AccountID = "800123"
	creds.AccountNumber = 7
	require.NoError(t, s.SaveCredentials(ctx, creds))

	got, err := s.Credentials(ctx, "U1", "tradelocker")
	require.NoError(t, err)
	assert.Equal(t, "access-1", got.AccessToken)
	assert.Equal(t, "800123", got.AccountID)
	assert.Equal(t, 7, got.AccountNumber)
	assert.False(t, got.UpdatedAt.IsZero())

	_, err = s.Credentials(ctx, "U2", "tradelocker")
	assert.ErrorIs(t, err, ErrNotFound)
}

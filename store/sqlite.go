package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/verstige-os/copydesk/signal"
)

// Schema is applied on every open; all statements are idempotent. The
// partial unique index is what makes InsertExecution the idempotency
// gate: failed attempts do not block a retry, anything else does.
const Schema = `
CREATE TABLE IF NOT EXISTS signals (
    id             TEXT PRIMARY KEY,
    symbol         TEXT NOT NULL,
    direction      TEXT NOT NULL,
    entry          REAL NOT NULL,
    stop_loss      REAL NOT NULL,
    take_profit    REAL NOT NULL,
    risk_percent   REAL NOT NULL DEFAULT 1.0,
    reward_to_risk REAL NOT NULL DEFAULT 0,
    timeframe      TEXT NOT NULL DEFAULT '',
    notes          TEXT NOT NULL DEFAULT '',
    source         TEXT NOT NULL,
    status         TEXT NOT NULL,
    created_at     TIMESTAMP NOT NULL,
    updated_at     TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_executions (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL,
    signal_id       TEXT NOT NULL,
    broker          TEXT NOT NULL,
    account_id      TEXT NOT NULL,
    symbol          TEXT NOT NULL,
    direction       TEXT NOT NULL,
    lot_size        REAL NOT NULL,
    entry           REAL NOT NULL,
    stop_loss       REAL NOT NULL,
    take_profit     REAL NOT NULL,
    broker_order_id TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL,
    executed_at     TIMESTAMP NOT NULL,
    raw_response    TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_executions_user_signal
    ON trade_executions(user_id, signal_id) WHERE status != 'failed';

CREATE TABLE IF NOT EXISTS trading_accounts (
    user_id        TEXT NOT NULL,
    broker         TEXT NOT NULL,
    email          TEXT NOT NULL,
    password       TEXT NOT NULL,
    server         TEXT NOT NULL DEFAULT '',
    broker_url     TEXT NOT NULL DEFAULT '',
    access_token   TEXT NOT NULL DEFAULT '',
    refresh_token  TEXT NOT NULL DEFAULT '',
    account_id     TEXT NOT NULL DEFAULT '',
    account_number INTEGER NOT NULL DEFAULT 0,
    updated_at     TIMESTAMP NOT NULL,
    PRIMARY KEY (user_id, broker)
);
`

// SQLite is the file-backed Store implementation.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database file and applies Schema.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) InsertSignal(ctx context.Context, sig signal.Signal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (id, symbol, direction, entry, stop_loss, take_profit,
			risk_percent, reward_to_risk, timeframe, notes, source, status,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.Symbol, sig.Direction, sig.Entry, sig.StopLoss, sig.TakeProfit,
		sig.RiskPercent, sig.RewardToRisk, sig.Timeframe, sig.Notes, sig.Source,
		sig.Status, sig.CreatedAt, sig.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert signal %s: %w", sig.ID, err)
	}
	return nil
}

func (s *SQLite) GetSignal(ctx context.Context, id string) (signal.Signal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, direction, entry, stop_loss, take_profit,
			risk_percent, reward_to_risk, timeframe, notes, source, status,
			created_at, updated_at
		FROM signals WHERE id = ?`, id)
	return scanSignal(row)
}

func (s *SQLite) UpdateSignalStatus(ctx context.Context, id string, status signal.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE signals SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update signal %s status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) ListSignals(ctx context.Context, limit int) ([]signal.Signal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, direction, entry, stop_loss, take_profit,
			risk_percent, reward_to_risk, timeframe, notes, source, status,
			created_at, updated_at
		FROM signals ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var signals []signal.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

func (s *SQLite) InsertExecution(ctx context.Context, exec signal.TradeExecution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_executions (id, user_id, signal_id, broker, account_id,
			symbol, direction, lot_size, entry, stop_loss, take_profit,
			broker_order_id, status, executed_at, raw_response)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.UserID, exec.SignalID, exec.Broker, exec.AccountID,
		exec.Symbol, exec.Direction, exec.LotSize, exec.Entry, exec.StopLoss,
		exec.TakeProfit, exec.BrokerOrderID, exec.Status, exec.ExecutedAt,
		exec.RawResponse)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateExecution
		}
		return fmt.Errorf("insert execution %s: %w", exec.ID, err)
	}
	return nil
}

func (s *SQLite) FindExecution(ctx context.Context, userID, signalID string) (signal.TradeExecution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, signal_id, broker, account_id, symbol, direction,
			lot_size, entry, stop_loss, take_profit, broker_order_id, status,
			executed_at, raw_response
		FROM trade_executions
		WHERE user_id = ? AND signal_id = ? AND status != ?`,
		userID, signalID, signal.ExecutionFailed)

	var exec signal.TradeExecution
	err := row.Scan(&exec.ID, &exec.UserID, &exec.SignalID, &exec.Broker,
		&exec.AccountID, &exec.Symbol, &exec.Direction, &exec.LotSize,
		&exec.Entry, &exec.StopLoss, &exec.TakeProfit, &exec.BrokerOrderID,
		&exec.Status, &exec.ExecutedAt, &exec.RawResponse)
	if errors.Is(err, sql.ErrNoRows) {
		return signal.TradeExecution{}, ErrNotFound
	}
	if err != nil {
		return signal.TradeExecution{}, fmt.Errorf("find execution: %w", err)
	}
	return exec, nil
}

func (s *SQLite) Credentials(ctx context.Context, userID, brokerCode string) (AccountCredentials, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, broker, email, password, server, broker_url,
			access_token, refresh_token, account_id, account_number, updated_at
		FROM trading_accounts WHERE user_id = ? AND broker = ?`,
		userID, brokerCode)

	var creds AccountCredentials
	err := row.Scan(&creds.UserID, &creds.Broker, &creds.Email, &creds.Password,
		&creds.Server, &creds.BrokerURL, &creds.AccessToken, &creds.RefreshToken,
		&creds.AccountID, &creds.AccountNumber, &creds.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AccountCredentials{}, ErrNotFound
	}
	if err != nil {
		return AccountCredentials{}, fmt.Errorf("load credentials: %w", err)
	}
	return creds, nil
}

func (s *SQLite) SaveCredentials(ctx context.Context, creds AccountCredentials) error {
	creds.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trading_accounts (user_id, broker, email, password, server,
			broker_url, access_token, refresh_token, account_id, account_number,
			updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, broker) DO UPDATE SET
			email = excluded.email,
			password = excluded.password,
			server = excluded.server,
			broker_url = excluded.broker_url,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			account_id = excluded.account_id,
			account_number = excluded.account_number,
			updated_at = excluded.updated_at`,
		creds.UserID, creds.Broker, creds.Email, creds.Password, creds.Server,
		creds.BrokerURL, creds.AccessToken, creds.RefreshToken, creds.AccountID,
		creds.AccountNumber, creds.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignal(row rowScanner) (signal.Signal, error) {
	var sig signal.Signal
	err := row.Scan(&sig.ID, &sig.Symbol, &sig.Direction, &sig.Entry,
		&sig.StopLoss, &sig.TakeProfit, &sig.RiskPercent, &sig.RewardToRisk,
		&sig.Timeframe, &sig.Notes, &sig.Source, &sig.Status,
		&sig.CreatedAt, &sig.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return signal.Signal{}, ErrNotFound
	}
	if err != nil {
		return signal.Signal{}, fmt.Errorf("scan signal: %w", err)
	}
	return sig, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

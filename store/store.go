// Package store persists signals, trade executions and linked trading
// accounts. Two backends exist: a zero-setup SQLite file for single
// operator installs and a MySQL backend for shared deployments.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/verstige-os/copydesk/signal"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateExecution means a non-failed execution already exists
	// for this user and signal. The caller treats it as "already done".
	ErrDuplicateExecution = errors.New("store: duplicate execution for user and signal")
)

// AccountCredentials is one user's linked broker account, tokens
// included so sessions can resume without a fresh login.
type AccountCredentials struct {
	UserID        string    `json:"user_id"`
	Broker        string    `json:"broker"`
	Email         string    `json:"email"`
	Password      string    `json:"password"`
	Server        string    `json:"server"`
	BrokerURL     string    `json:"broker_url"`
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	AccountID     string    `json:"account_id"`
	AccountNumber int       `json:"account_number"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store is the persistence contract shared by both backends.
type Store interface {
	InsertSignal(ctx context.Context, sig signal.Signal) error
	GetSignal(ctx context.Context, id string) (signal.Signal, error)
	UpdateSignalStatus(ctx context.Context, id string, status signal.Status) error
	ListSignals(ctx context.Context, limit int) ([]signal.Signal, error)

	InsertExecution(ctx context.Context, exec signal.TradeExecution) error
	FindExecution(ctx context.Context, userID, signalID string) (signal.TradeExecution, error)

	Credentials(ctx context.Context, userID, brokerCode string) (AccountCredentials, error)
	SaveCredentials(ctx context.Context, creds AccountCredentials) error

	Close() error
}

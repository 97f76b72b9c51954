package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/verstige-os/copydesk/signal"
)

// signalRow is the gorm model for the signals table.
type signalRow struct {
	ID           string    `gorm:"primaryKey;size:32"`
	Symbol       string    `gorm:"size:32;not null"`
	Direction    string    `gorm:"size:8;not null"`
	Entry        float64   `gorm:"not null"`
	StopLoss     float64   `gorm:"not null"`
	TakeProfit   float64   `gorm:"not null"`
	RiskPercent  float64   `gorm:"not null;default:1"`
	RewardToRisk float64   `gorm:"not null;default:0"`
	Timeframe    string    `gorm:"size:8"`
	Notes        string    `gorm:"type:text"`
	Source       string    `gorm:"size:16;not null"`
	Status       string    `gorm:"size:16;not null;index"`
	CreatedAt    time.Time `gorm:"index"`
	UpdatedAt    time.Time
}

func (signalRow) TableName() string { return "signals" }

// executionRow is the gorm model for trade executions. MySQL has no
// partial unique indexes, so IdemKey carries "userID:signalID" for
// non-failed rows and NULL for failed ones; NULLs never collide, which
// reproduces the "failed attempts may retry" rule.
type executionRow struct {
	ID            string  `gorm:"primaryKey;size:32"`
	UserID        string  `gorm:"size:64;not null;index:idx_user_signal"`
	SignalID      string  `gorm:"size:32;not null;index:idx_user_signal"`
	IdemKey       *string `gorm:"uniqueIndex;size:128"`
	Broker        string  `gorm:"size:32;not null"`
	AccountID     string  `gorm:"size:64;not null"`
	Symbol        string  `gorm:"size:32;not null"`
	Direction     string  `gorm:"size:8;not null"`
	LotSize       float64 `gorm:"not null"`
	Entry         float64
	StopLoss      float64
	TakeProfit    float64
	BrokerOrderID string `gorm:"size:64"`
	Status        string `gorm:"size:16;not null"`
	ExecutedAt    time.Time
	RawResponse   string `gorm:"type:text"`
}

func (executionRow) TableName() string { return "trade_executions" }

// accountRow is the gorm model for linked trading accounts.
type accountRow struct {
	UserID        string `gorm:"primaryKey;size:64"`
	Broker        string `gorm:"primaryKey;size:32"`
	Email         string `gorm:"size:128;not null"`
	Password      string `gorm:"size:128;not null"`
	Server        string `gorm:"size:64"`
	BrokerURL     string `gorm:"size:256"`
	AccessToken   string `gorm:"type:text"`
	RefreshToken  string `gorm:"type:text"`
	AccountID     string `gorm:"size:64"`
	AccountNumber int
	UpdatedAt     time.Time
}

func (accountRow) TableName() string { return "trading_accounts" }

// MySQL is the shared-deployment Store backend.
type MySQL struct {
	db *gorm.DB
}

// OpenMySQL connects with the given DSN and migrates the schema.
func OpenMySQL(dsn string) (*MySQL, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.AutoMigrate(&signalRow{}, &executionRow{}, &accountRow{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &MySQL{db: db}, nil
}

func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (m *MySQL) InsertSignal(ctx context.Context, sig signal.Signal) error {
	row := signalRow{
		ID: sig.ID, Symbol: sig.Symbol, Direction: string(sig.Direction),
		Entry: sig.Entry, StopLoss: sig.StopLoss, TakeProfit: sig.TakeProfit,
		RiskPercent: sig.RiskPercent, RewardToRisk: sig.RewardToRisk,
		Timeframe: sig.Timeframe, Notes: sig.Notes, Source: string(sig.Source),
		Status: string(sig.Status), CreatedAt: sig.CreatedAt, UpdatedAt: sig.UpdatedAt,
	}
	if err := m.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert signal %s: %w", sig.ID, err)
	}
	return nil
}

func (m *MySQL) GetSignal(ctx context.Context, id string) (signal.Signal, error) {
	var row signalRow
	err := m.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return signal.Signal{}, ErrNotFound
	}
	if err != nil {
		return signal.Signal{}, fmt.Errorf("get signal %s: %w", id, err)
	}
	return rowToSignal(row), nil
}

func (m *MySQL) UpdateSignalStatus(ctx context.Context, id string, status signal.Status) error {
	res := m.db.WithContext(ctx).Model(&signalRow{}).Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("update signal %s status: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MySQL) ListSignals(ctx context.Context, limit int) ([]signal.Signal, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []signalRow
	if err := m.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	signals := make([]signal.Signal, 0, len(rows))
	for _, row := range rows {
		signals = append(signals, rowToSignal(row))
	}
	return signals, nil
}

func (m *MySQL) InsertExecution(ctx context.Context, exec signal.TradeExecution) error {
	row := executionRow{
		ID: exec.ID, UserID: exec.UserID, SignalID: exec.SignalID,
		Broker: exec.Broker, AccountID: exec.AccountID, Symbol: exec.Symbol,
		Direction: string(exec.Direction), LotSize: exec.LotSize,
		Entry: exec.Entry, StopLoss: exec.StopLoss, TakeProfit: exec.TakeProfit,
		BrokerOrderID: exec.BrokerOrderID, Status: exec.Status,
		ExecutedAt: exec.ExecutedAt, RawResponse: exec.RawResponse,
	}
	if exec.Status != signal.ExecutionFailed {
		key := exec.UserID + ":" + exec.SignalID
		row.IdemKey = &key
	}
	if err := m.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicateEntry(err) {
			return ErrDuplicateExecution
		}
		return fmt.Errorf("insert execution %s: %w", exec.ID, err)
	}
	return nil
}

// isDuplicateEntry matches MySQL error 1062 (ER_DUP_ENTRY).
func isDuplicateEntry(err error) bool {
	var myErr *mysqldriver.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}

func (m *MySQL) FindExecution(ctx context.Context, userID, signalID string) (signal.TradeExecution, error) {
	var row executionRow
	err := m.db.WithContext(ctx).
		Where("user_id = ? AND signal_id = ? AND status != ?", userID, signalID, signal.ExecutionFailed).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return signal.TradeExecution{}, ErrNotFound
	}
	if err != nil {
		return signal.TradeExecution{}, fmt.Errorf("find execution: %w", err)
	}
	return signal.TradeExecution{
		ID: row.ID, UserID: row.UserID, SignalID: row.SignalID,
		Broker: row.Broker, AccountID: row.AccountID, Symbol: row.Symbol,
		Direction: signal.Direction(row.Direction), LotSize: row.LotSize,
		Entry: row.Entry, StopLoss: row.StopLoss, TakeProfit: row.TakeProfit,
		BrokerOrderID: row.BrokerOrderID, Status: row.Status,
		ExecutedAt: row.ExecutedAt, RawResponse: row.RawResponse,
	}, nil
}

func (m *MySQL) Credentials(ctx context.Context, userID, brokerCode string) (AccountCredentials, error) {
	var row accountRow
	err := m.db.WithContext(ctx).
		Where("user_id = ? AND broker = ?", userID, brokerCode).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return AccountCredentials{}, ErrNotFound
	}
	if err != nil {
		return AccountCredentials{}, fmt.Errorf("load credentials: %w", err)
	}
	return AccountCredentials{
		UserID: row.UserID, Broker: row.Broker, Email: row.Email,
		Password: row.Password, Server: row.Server, BrokerURL: row.BrokerURL,
		AccessToken: row.AccessToken, RefreshToken: row.RefreshToken,
		AccountID: row.AccountID, AccountNumber: row.AccountNumber,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (m *MySQL) SaveCredentials(ctx context.Context, creds AccountCredentials) error {
	row := accountRow{
		UserID: creds.UserID, Broker: creds.Broker, Email: creds.Email,
		Password: creds.Password, Server: creds.Server, BrokerURL: creds.BrokerURL,
		AccessToken: creds.AccessToken, RefreshToken: creds.RefreshToken,
		AccountID: creds.AccountID, AccountNumber: creds.AccountNumber,
		UpdatedAt: time.Now().UTC(),
	}
	if err := m.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func rowToSignal(row signalRow) signal.Signal {
	return signal.Signal{
		ID: row.ID, Symbol: row.Symbol, Direction: signal.Direction(row.Direction),
		Entry: row.Entry, StopLoss: row.StopLoss, TakeProfit: row.TakeProfit,
		RiskPercent: row.RiskPercent, RewardToRisk: row.RewardToRisk,
		Timeframe: row.Timeframe, Notes: row.Notes, Source: signal.Source(row.Source),
		Status: signal.Status(row.Status), CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
}

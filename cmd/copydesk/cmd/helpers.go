package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/verstige-os/copydesk/broker"
	"github.com/verstige-os/copydesk/broker/tradelocker"
	"github.com/verstige-os/copydesk/config"
	"github.com/verstige-os/copydesk/internal/logx"
	"github.com/verstige-os/copydesk/session"
	"github.com/verstige-os/copydesk/store"
)

func loadConfig() (*config.Config, *log.Logger, error) {
	cfg, err := config.LoadFromFile(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logx.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Type {
	case "sqlite":
		return store.OpenSQLite(cfg.Store.Path)
	case "mysql":
		return store.OpenMySQL(cfg.Store.DSN)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}

// sessionFactory builds TradeLocker sessions seeded with whatever
// tokens and account selection the store already holds.
func sessionFactory(creds store.AccountCredentials) broker.Session {
	return tradelocker.NewClient(broker.Credentials{
		Email:     creds.Email,
		Password:  creds.Password,
		Server:    creds.Server,
		BrokerURL: creds.BrokerURL,
	},
		tradelocker.WithTokens(creds.AccessToken, creds.RefreshToken),
		tradelocker.WithAccount(creds.AccountID, creds.AccountNumber),
	)
}

func newResolver(st store.Store, logger *log.Logger) *session.Resolver {
	return session.NewResolver(session.NewRegistry(), st, sessionFactory, logger)
}

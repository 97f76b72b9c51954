package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/verstige-os/copydesk/broadcast"
	"github.com/verstige-os/copydesk/broker"
	"github.com/verstige-os/copydesk/broker/tradelocker"
	"github.com/verstige-os/copydesk/config"
	"github.com/verstige-os/copydesk/copier"
	"github.com/verstige-os/copydesk/internal/metrics"
	"github.com/verstige-os/copydesk/store"
	"github.com/verstige-os/copydesk/telegram"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the signal engine",
	Long: `Run starts every enabled component: the master-account watcher, the
Telegram intake, the dashboard websocket feed and the metrics listener.
Stops cleanly on SIGINT/SIGTERM.`,
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.WithField("backend", cfg.Store.Type).Info("store opened")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hub *broadcast.Hub
	var wsServer *http.Server
	if cfg.Broadcast.Enabled {
		hub = broadcast.NewHub(logger)
		defer hub.Close()

		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		wsServer = &http.Server{Addr: cfg.Broadcast.Addr, Handler: mux}
		go func() {
			if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("websocket listener failed")
			}
		}()
		logger.WithField("addr", cfg.Broadcast.Addr).Info("dashboard feed listening")
	}

	// interface-typed so a disabled hub stays a true nil
	var pub copier.Publisher
	if hub != nil {
		pub = hub
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.Serve(cfg.Metrics.Addr)
		logger.WithField("addr", cfg.Metrics.Addr).Info("metrics listening")
	}

	var detector *copier.Detector
	if cfg.Master.Enabled {
		detector, err = startMasterWatch(ctx, cfg, st, pub, logger)
		if err != nil {
			return err
		}
		defer detector.Stop()
	}

	var bot *telegram.Bot
	if cfg.Telegram.Enabled {
		var tgPub telegram.Publisher
		if hub != nil {
			tgPub = hub
		}
		bot, err = telegram.NewBot(cfg.Telegram.Token, st, tgPub, logger)
		if err != nil {
			return err
		}
		go bot.Start()
		defer bot.Stop()
	}

	logger.Info("copydesk running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if wsServer != nil {
		wsServer.Shutdown(shutdownCtx)
	}
	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx)
	}
	return nil
}

// startMasterWatch logs into the master account and launches the
// position poller.
func startMasterWatch(ctx context.Context, cfg *config.Config, st store.Store, pub copier.Publisher, logger *log.Logger) (*copier.Detector, error) {
	client := tradelocker.NewClient(broker.Credentials{
		Email:     cfg.Master.Email,
		Password:  cfg.Master.Password,
		Server:    cfg.Master.Server,
		BrokerURL: cfg.Master.BrokerURL,
	})

	authCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := client.Authenticate(authCtx); err != nil {
		return nil, fmt.Errorf("master login: %w", err)
	}
	if err := client.SelectFirstAccount(authCtx); err != nil {
		return nil, fmt.Errorf("master account: %w", err)
	}

	sink := copier.NewStoreSink(st, pub, logger)
	detector := copier.NewDetector(client, sink, time.Duration(cfg.Master.PollInterval), logger)
	go detector.Run(ctx)

	logger.WithField("email", cfg.Master.Email).Info("master account watcher started")
	return detector, nil
}

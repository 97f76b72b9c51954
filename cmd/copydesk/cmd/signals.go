package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/verstige-os/copydesk/broker/tradelocker"
	"github.com/verstige-os/copydesk/copier"
)

var (
	signalsLimit int
	approveUser  string
)

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "List recent signals",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		signals, err := st.ListSignals(ctx, signalsLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSYMBOL\tDIR\tENTRY\tSL\tTP\tRR\tSOURCE\tSTATUS")
		for _, s := range signals {
			fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%g\t%g\t%.2f\t%s\t%s\n",
				s.ID, s.Symbol, s.Direction, s.Entry, s.StopLoss, s.TakeProfit,
				s.RewardToRisk, s.Source, s.Status)
		}
		return w.Flush()
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <signal-id>",
	Short: "Approve a pending signal and copy it to the user's account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		engine := copier.NewEngine(st, newResolver(st, logger), tradelocker.BrokerCode, nil, logger)

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		exec, err := engine.Approve(ctx, approveUser, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("executed %s %s: %.2f lots, order %s\n",
			exec.Direction, exec.Symbol, exec.LotSize, exec.BrokerOrderID)
		return nil
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <signal-id>",
	Short: "Reject a pending signal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		engine := copier.NewEngine(st, newResolver(st, logger), tradelocker.BrokerCode, nil, logger)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := engine.Reject(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("rejected %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(signalsCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)

	signalsCmd.Flags().IntVarP(&signalsLimit, "limit", "n", 20, "maximum signals to list")
	approveCmd.Flags().StringVarP(&approveUser, "user", "u", "", "user whose linked account receives the copy (required)")
	approveCmd.MarkFlagRequired("user")
}

package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "copydesk",
	Short: "A copy-trading signal engine with approval-gated execution",
	Long: `Copydesk ingests trade signals from chat messages and a monitored
master account, holds them for approval and copies approved signals
onto follower broker accounts with risk-based position sizing.

It provides tools for:
  - Parsing free-form chat text into structured trade signals
  - Mirroring position changes from a master account
  - Approving, rejecting and executing pending signals
  - Risk-based lot sizing against live account balances
  - Streaming signal events to dashboards over websockets`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "copydesk.yaml", "path to the YAML config file")
}

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verstige-os/copydesk/signal"
)

var parseCmd = &cobra.Command{
	Use:   "parse [message...]",
	Short: "Parse a chat message into a structured signal",
	Long: `Parse runs the chat-text parser on the given message and prints the
resulting signal as JSON. Useful for checking how a provider's message
format comes through before wiring it to a live channel.

Example:
  copydesk parse "BUY XAUUSD Entry: 2345.5 SL: 2330 TP: 2375 Risk: 1%"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sig, err := signal.ParseText(strings.Join(args, " "))
		if errors.Is(err, signal.ErrNotASignal) {
			return fmt.Errorf("message does not contain a recognizable signal")
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sig)
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
}

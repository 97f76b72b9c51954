package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/verstige-os/copydesk/broker"
	"github.com/verstige-os/copydesk/broker/tradelocker"
	"github.com/verstige-os/copydesk/store"
)

var (
	connectUser     string
	connectEmail    string
	connectPassword string
	connectServer   string
	connectURL      string
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Link a broker account so signals can be copied to it",
	Long: `Connect verifies broker credentials with a live login, picks the first
account under the login and stores everything (tokens included) for
later executions.`,
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

		client := tradelocker.NewClient(broker.Credentials{
			Email:     connectEmail,
			Password:  connectPassword,
			Server:    connectServer,
			BrokerURL: connectURL,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		pair, err := client.Authenticate(ctx)
		if err != nil {
			return fmt.Errorf("credentials rejected: %w", err)
		}
		accounts, err := client.ListAccounts(ctx)
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			return fmt.Errorf("no accounts under this login")
		}
		account := accounts[0]

		err = st.SaveCredentials(ctx, store.AccountCredentials{
			UserID:        connectUser,
			Broker:        tradelocker.BrokerCode,
			Email:         connectEmail,
			Password:      connectPassword,
			Server:        connectServer,
			BrokerURL:     client.BaseURL(),
			AccessToken:   pair.AccessToken,
			RefreshToken:  pair.RefreshToken,
			AccountID:     account.ID,
			AccountNumber: account.Number,
		})
		if err != nil {
			return err
		}

		fmt.Printf("linked account %s (#%d, %s %.2f) for user %s\n",
			account.ID, account.Number, account.Currency, account.Balance, connectUser)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)

	connectCmd.Flags().StringVarP(&connectUser, "user", "u", "", "internal user id (required)")
	connectCmd.Flags().StringVar(&connectEmail, "email", "", "broker login email (required)")
	connectCmd.Flags().StringVar(&connectPassword, "password", "", "broker login password (required)")
	connectCmd.Flags().StringVar(&connectServer, "server", "", "broker server name")
	connectCmd.Flags().StringVar(&connectURL, "url", "", "broker base URL (default demo environment)")

	connectCmd.MarkFlagRequired("user")
	connectCmd.MarkFlagRequired("email")
	connectCmd.MarkFlagRequired("password")
}

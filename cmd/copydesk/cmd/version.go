package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the copydesk CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("copydesk version %s\n", version)
		fmt.Println("A copy-trading signal engine with approval-gated execution")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

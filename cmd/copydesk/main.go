package main

import (
	"os"

	"github.com/verstige-os/copydesk/cmd/copydesk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// changelog-bot следит за командами Nightbot канала Twitch и объявляет их изменения.
//
// Использование:
//
//	changelog-bot run
//	changelog-bot snapshot --json
//	changelog-bot history --limit 50
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "changelog-bot",
		Short: "Announce Nightbot command changes",
		Long: `changelog-bot polls the Nightbot command list of a Twitch channel,
attributes changes to moderators seen in chat and announces them.

Configuration is read from the environment and an optional .env file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(historyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

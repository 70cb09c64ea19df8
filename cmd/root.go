package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fbgate",
	Short: "Facebook Messenger gateway for a conversational bot engine",
	Long:  "fbgate bridges Facebook Messenger webhook traffic to a dialog engine: it verifies webhook subscriptions, translates deliveries, and sends the engine's replies back through the Send API.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

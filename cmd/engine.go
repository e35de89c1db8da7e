/*
Copyright © 2026 TradeKit Authors
*/
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tradekit/pair-engine/internal/bootstrap"
)

// engineCmd represents the engine command
var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Start the pair engine",
	Long: `The engine process owns the pair state machines. It consumes ticker feeds,
executes pending pair intents on their timers, re-prices resting orders and
runs the position watchdogs.`,
	Run: bootstrap.StartEngine,
}

func init() {
	rootCmd.AddCommand(engineCmd)
}

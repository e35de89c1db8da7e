/*
Copyright © 2026 TradeKit Authors
*/
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tradekit/pair-engine/internal/bootstrap"
)

// orderLogWorkerCmd represents the order-log-worker command
var orderLogWorkerCmd = &cobra.Command{
	Use:   "order-log-worker",
	Short: "Start the order log worker",
	Long:  `The order log worker consumes order created events and persists them to the database.`,
	Run:   bootstrap.StartOrderLogWorker,
}

func init() {
	rootCmd.AddCommand(orderLogWorkerCmd)
}

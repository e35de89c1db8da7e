/*
Copyright © 2026 TradeKit Authors
*/
package main

import "github.com/tradekit/pair-engine/cmd"

func main() {
	cmd.Execute()
}

package main

import (
	"os"

	"github.com/tradeforge/cryptobt/cmd/cryptobt/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

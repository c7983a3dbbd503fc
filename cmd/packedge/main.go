package main

import (
	"os"

	"github.com/cordum/packedge/core/infra/logging"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.Error("packedge", "command failed", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/ayusman/kathak/internal/logx"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logx.Log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

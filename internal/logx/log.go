// Package logx holds the shared zerolog logger for the kathak daemon.
package logx

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the shared logger used throughout the project.
var Log = log.Logger

func init() {
	if strings.ToLower(os.Getenv("KATHAK_DEBUG")) == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Logs go to stderr: stdout stays clean for CLI output.
	Log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// SetDebug switches the global log level at runtime. The --debug flag
// calls it after flag parsing, overriding KATHAK_DEBUG.
func SetDebug(debug bool) {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

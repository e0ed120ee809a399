package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ayusman/kathak/internal/logx"
)

var (
	dataDirFlag string
	debugFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "kathak",
	Short: "Kathak - keystroke launcher daemon",
	Long: `Kathak is the daemon behind a keystroke-driven launcher. It turns typed
queries into ranked results drawn from plugin indexes and usage history,
and serves the renderer over HTTP and WebSocket.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logx.SetDebug(debugFlag)
	},
}

func init() {
	rootCmd.SetVersionTemplate("kathak version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "",
		"Directory for history and index caches (default ~/.kathak)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"Enable debug logging")
}

// dataDir resolves the data directory from the --data-dir flag, falling
// back to ~/.kathak, and creates it if needed.
func dataDir() (string, error) {
	dir := dataDirFlag
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		dir = filepath.Join(home, ".kathak")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	return dir, nil
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ayusman/kathak/internal/plugin"
)

var doctorPlugins string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose launcher setup issues",
	Long: `Doctor checks the data directory, the on-disk caches, and every
discovered plugin without starting the daemon. It exits non-zero if any
check fails.`,
	Run: runDoctor,
}

func init() {
	doctorCmd.Flags().StringVar(&doctorPlugins, "plugins", "", "Built-in plugin directory (default: auto-detect)")
	rootCmd.AddCommand(doctorCmd)
}

const (
	statusPass = "pass"
	statusWarn = "warn"
	statusFail = "fail"
)

// doctorCheck is one diagnostic result.
type doctorCheck struct {
	name    string
	status  string
	message string
}

func runDoctor(cmd *cobra.Command, args []string) {
	var checks []doctorCheck

	dir, err := dataDir()
	if err != nil {
		checks = append(checks, doctorCheck{"data directory", statusFail, err.Error()})
	} else {
		checks = append(checks, doctorCheck{"data directory", statusPass, dir})
		checks = append(checks, checkJSONFile("history store", filepath.Join(dir, "history.json")))
		checks = append(checks, checkJSONFile("index cache", filepath.Join(dir, "index-cache.json")))
	}

	builtinDir := doctorPlugins
	if builtinDir == "" {
		builtinDir = findPluginDir()
	}
	userDir := ""
	if dir != "" {
		userDir = filepath.Join(dir, "plugins")
	}
	checks = append(checks, checkPlugins(builtinDir, userDir)...)

	healthy := true
	for _, c := range checks {
		fmt.Printf("%s  %-18s %s\n", mark(c.status), c.name, c.message)
		if c.status == statusFail {
			healthy = false
		}
	}

	if !healthy {
		os.Exit(1)
	}
}

func mark(status string) string {
	switch status {
	case statusPass:
		return "✓"
	case statusWarn:
		return "!"
	default:
		return "✗"
	}
}

// checkJSONFile verifies the file holds valid JSON when present. A missing
// file passes: the daemon creates it on first write.
func checkJSONFile(name, path string) doctorCheck {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return doctorCheck{name, statusPass, "not created yet"}
	}
	if err != nil {
		return doctorCheck{name, statusFail, err.Error()}
	}
	if !json.Valid(data) {
		return doctorCheck{name, statusFail, fmt.Sprintf("%s is not valid JSON", path)}
	}
	return doctorCheck{name, statusPass, fmt.Sprintf("%s (%d bytes)", path, len(data))}
}

// checkPlugins runs discovery over both plugin directories and verifies
// each discovered plugin is runnable.
func checkPlugins(builtinDir, userDir string) []doctorCheck {
	var checks []doctorCheck

	if builtinDir == "" {
		checks = append(checks, doctorCheck{"plugin directory", statusWarn, "no built-in plugin directory found"})
	} else {
		checks = append(checks, doctorCheck{"plugin directory", statusPass, builtinDir})
	}

	mgr := plugin.NewManager(builtinDir, userDir)
	if err := mgr.Discover(); err != nil {
		checks = append(checks, doctorCheck{"plugin discovery", statusFail, err.Error()})
		return checks
	}

	plugins := mgr.List()
	if len(plugins) == 0 {
		checks = append(checks, doctorCheck{"plugin discovery", statusWarn, "no plugins found"})
		return checks
	}
	checks = append(checks, doctorCheck{"plugin discovery", statusPass, fmt.Sprintf("%d plugins", len(plugins))})

	for _, p := range plugins {
		checks = append(checks, checkPlugin(p))
	}

	return checks
}

// checkPlugin verifies one plugin: a named manifest and an executable
// handler.
func checkPlugin(p *plugin.Plugin) doctorCheck {
	name := "plugin " + p.ID

	if p.Manifest.Name == "" {
		return doctorCheck{name, statusFail, "manifest has no name"}
	}

	info, err := os.Stat(p.Handler)
	if err != nil {
		return doctorCheck{name, statusFail, err.Error()}
	}
	if runtime.GOOS != "windows" && info.Mode()&0111 == 0 {
		return doctorCheck{name, statusFail, fmt.Sprintf("%s is not executable", p.Handler)}
	}

	return doctorCheck{name, statusPass, p.Manifest.Name}
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayusman/kathak/internal/app"
	"github.com/ayusman/kathak/internal/logx"
	"github.com/ayusman/kathak/internal/server"
	"github.com/ayusman/kathak/internal/tray"
)

var (
	runAddr    string
	runStatic  string
	runPlugins string
	runNoTray  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the launcher daemon",
	Long: `Run discovers plugins, bootstraps their indexes, and serves the renderer
API until interrupted. A system tray menu controls indexing unless
--no-tray is given.`,
	RunE: runDaemon,
}

func init() {
	runCmd.Flags().StringVar(&runAddr, "addr", "127.0.0.1:7867", "HTTP listen address")
	runCmd.Flags().StringVar(&runStatic, "static", "", "Renderer asset directory (default: auto-detect)")
	runCmd.Flags().StringVar(&runPlugins, "plugins", "", "Built-in plugin directory (default: auto-detect)")
	runCmd.Flags().BoolVar(&runNoTray, "no-tray", false, "Run headless without the system tray")
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	dir, err := dataDir()
	if err != nil {
		return err
	}

	builtinDir := runPlugins
	if builtinDir == "" {
		builtinDir = findPluginDir()
	}

	a, err := app.New(app.Config{
		DataDir:          dir,
		BuiltinPluginDir: builtinDir,
		UserPluginDir:    filepath.Join(dir, "plugins"),
	})
	if err != nil {
		return fmt.Errorf("initializing app: %w", err)
	}
	if err := a.Start(cmd.Context()); err != nil {
		return fmt.Errorf("starting app: %w", err)
	}
	defer a.Close()

	staticDir := runStatic
	if staticDir == "" {
		staticDir = findStaticDir()
	}
	if staticDir != "" {
		logx.Log.Info().Str("dir", staticDir).Msg("serving renderer assets")
	}

	srv := server.New(server.Config{
		StaticDir: staticDir,
		App:       a,
	})

	errs := make(chan error, 1)
	go func() {
		logx.Log.Info().Str("addr", runAddr).Msg("listening")
		errs <- srv.ListenAndServe(runAddr)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	if runNoTray {
		select {
		case sig := <-sigs:
			logx.Log.Info().Str("signal", sig.String()).Msg("shutting down")
			return nil
		case err := <-errs:
			return fmt.Errorf("server: %w", err)
		}
	}

	t := tray.New()
	t.OnPause(a.SetIndexingPaused)
	t.OnRescan(func() {
		if err := a.Rescan(); err != nil {
			logx.Log.Error().Err(err).Msg("rescan failed")
		}
		t.SetStatus(statusLine(a))
	})
	t.OnQuit(func() {
		logx.Log.Info().Msg("shutting down")
	})
	a.OnEvent(func(ev app.Event) {
		if ev.Type == app.EventCorpus {
			t.SetStatus(statusLine(a))
		}
	})
	t.SetStatus(statusLine(a))

	go func() {
		select {
		case sig := <-sigs:
			logx.Log.Info().Str("signal", sig.String()).Msg("shutting down")
		case err := <-errs:
			logx.Log.Error().Err(err).Msg("server failed")
		}
		t.Quit()
	}()

	// Blocks until the quit menu item or a signal ends the tray loop.
	t.Run()
	return nil
}

// statusLine summarizes the plugin corpus for the tray menu.
func statusLine(a *app.App) string {
	plugins := a.Plugins()
	if len(plugins) == 0 {
		return ""
	}

	items := 0
	for _, p := range plugins {
		n, _ := a.IndexState(p.ID)
		items += n
	}
	return fmt.Sprintf("%d plugins, %d indexed items", len(plugins), items)
}

// findPluginDir searches for the bundled plugin directory relative to the
// working directory so a checkout works from the repo root or a cmd
// subdirectory. Installed setups pass --plugins or drop plugins into the
// user plugin directory instead.
func findPluginDir() string {
	for _, p := range []string{"plugins", "../plugins", "../../plugins"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}

// findStaticDir searches for the renderer asset directory in common
// locations. It checks: "web", "../web", "../../web", and ~/.kathak/web.
// Returns the first existing directory or empty string if none found.
func findStaticDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	webDir := filepath.Join(home, ".kathak", "web")
	if info, err := os.Stat(webDir); err == nil && info.IsDir() {
		return webDir
	}

	return ""
}

// Package app wires the kathak subsystems together: plugin discovery and
// sessions, indexing and watching, usage history, and the ranking engine,
// behind the operations the renderer API calls.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ayusman/kathak/internal/history"
	"github.com/ayusman/kathak/internal/index"
	"github.com/ayusman/kathak/internal/logx"
	"github.com/ayusman/kathak/internal/plugin"
	"github.com/ayusman/kathak/internal/ranking"
	"github.com/ayusman/kathak/internal/suggest"
	"github.com/ayusman/kathak/internal/watch"
)

const (
	// DefaultPluginTimeout bounds one interactive handler invocation.
	DefaultPluginTimeout = 10 * time.Second
	// DefaultIndexTimeout bounds one index invocation.
	DefaultIndexTimeout = 30 * time.Second

	// doubleEscapeWindow is how close together two Escape presses must land
	// to force-close the session regardless of depth.
	doubleEscapeWindow = 300 * time.Millisecond

	// sessionStartWindow marks usage recorded this soon after daemon start
	// as session-start launches for the suggestion signals.
	sessionStartWindow = 5 * time.Minute
)

// Config holds configuration options for the application.
type Config struct {
	// DataDir holds history.json and index-cache.json.
	DataDir string
	// BuiltinPluginDir and UserPluginDir are scanned for plugins; a user
	// plugin shadows a built-in one with the same id.
	BuiltinPluginDir string
	UserPluginDir    string

	PluginTimeout time.Duration
	IndexTimeout  time.Duration
}

// App owns every subsystem and drives the keystroke-to-results flow.
type App struct {
	registry  *plugin.Manager
	executor  *plugin.Executor
	sessions  *plugin.SessionManager
	store     *history.Store
	suggester *suggest.Engine
	indexes   *index.Manager
	watcher   *watch.Manager
	engine    *ranking.Engine

	mu         sync.Mutex
	view       View
	desktop    history.Context
	focusedApp string
	issued     uint64
	applied    uint64
	poll       *time.Timer
	lastEscape time.Time
	listeners  []func(Event)
	runCtx     context.Context
	startedAt  time.Time

	now func() time.Time
}

// New creates an App with the given configuration. Nothing runs until Start.
func New(cfg Config) (*App, error) {
	if cfg.PluginTimeout <= 0 {
		cfg.PluginTimeout = DefaultPluginTimeout
	}
	if cfg.IndexTimeout <= 0 {
		cfg.IndexTimeout = DefaultIndexTimeout
	}

	a := &App{
		registry: plugin.NewManager(cfg.BuiltinPluginDir, cfg.UserPluginDir),
		executor: plugin.NewExecutor(cfg.PluginTimeout, cfg.IndexTimeout),
		sessions: plugin.NewSessionManager(),
		store:    history.New(filepath.Join(cfg.DataDir, "history.json")),
		runCtx:   context.Background(),
		now:      time.Now,
	}
	a.suggester = suggest.New(a.store)
	a.indexes = index.NewManager(a.registry, a.executor, filepath.Join(cfg.DataDir, "index-cache.json"))
	a.engine = ranking.NewEngine(a.registry, a.indexes, a.store, a.suggester)

	w, err := watch.NewManager(a.indexes.RequestIndex)
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	a.watcher = w

	a.indexes.Subscribe(a.corpusChanged)
	return a, nil
}

// Start discovers plugins, launches the index queue and watchers, and queues
// index catch-up. It runs until ctx is canceled.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	a.runCtx = ctx
	a.startedAt = a.now()
	a.mu.Unlock()

	if err := a.registry.Discover(); err != nil {
		return fmt.Errorf("discover plugins: %w", err)
	}
	a.engine.Invalidate()

	a.indexes.Start(ctx)
	a.indexes.Bootstrap()
	a.watcher.Start(ctx)
	a.watcher.Apply(a.registry.List())
	return nil
}

// Close tears down the active session and flushes pending state to disk.
func (a *App) Close() {
	a.closeActiveSession()
	if err := a.watcher.Close(); err != nil {
		logx.Log.Warn().Err(err).Msg("close watcher")
	}
	a.indexes.Close()
}

// Rescan re-discovers plugins, rebuilds watchers, and queues index catch-up
// for plugins that appeared. The live ranked view is recomputed.
func (a *App) Rescan() error {
	if err := a.registry.Discover(); err != nil {
		return fmt.Errorf("discover plugins: %w", err)
	}
	a.watcher.Apply(a.registry.List())
	a.indexes.Bootstrap()
	a.engine.Invalidate()
	a.refreshTopLevel()
	return nil
}

// DispatchExternal routes a named compositor/system event to the plugins
// subscribed to it and reports how many were triggered.
func (a *App) DispatchExternal(event string) int {
	return a.watcher.Dispatch(event)
}

// UpdateDesktop folds a compositor report into the launch context attached
// to usage records and suggestion queries. Focus changes shift the previous
// focused app into the launched-after signal.
func (a *App) UpdateDesktop(u DesktopUpdate) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if u.Workspace != "" {
		a.desktop.Workspace = u.Workspace
	}
	if u.Monitor != "" {
		a.desktop.Monitor = u.Monitor
	}
	if u.FocusedApp != "" && u.FocusedApp != a.focusedApp {
		a.desktop.PreviousApp = a.focusedApp
		a.focusedApp = u.FocusedApp
	}
	if u.RunningApps != nil {
		a.desktop.RunningApps = append([]string(nil), u.RunningApps...)
	}
}

// SetIndexingPaused pauses or resumes the indexing queue.
func (a *App) SetIndexingPaused(paused bool) {
	a.indexes.SetPaused(paused)
}

// Plugins returns the discovered plugin set.
func (a *App) Plugins() []*plugin.Plugin {
	return a.registry.List()
}

// IndexState reports a plugin's indexed item count and the unix time of its
// last completed run, zero if it never ran.
func (a *App) IndexState(pluginID string) (items int, lastIndexed int64) {
	return len(a.indexes.Items(pluginID)), a.indexes.LastIndexed(pluginID)
}

// HistoryItems returns all usage records, most recent first.
func (a *App) HistoryItems() []history.Item {
	return a.store.List()
}

// RemoveHistory deletes one usage record.
func (a *App) RemoveHistory(kind history.Kind, id string) error {
	return a.store.Remove(kind, id)
}

// RenameHistory renames a recorded item in place, keeping its stats.
func (a *App) RenameHistory(kind history.Kind, id, newName string) error {
	return a.store.Rename(kind, id, newName)
}

// View returns the current display snapshot.
func (a *App) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

// OnEvent registers a listener for view, corpus, and notification events.
// Listeners are called synchronously and must not block.
func (a *App) OnEvent(fn func(Event)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

func (a *App) emit(ev Event) {
	a.mu.Lock()
	listeners := a.listeners
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// bumpLocked advances the view sequence and returns the new snapshot.
// Callers hold a.mu and emit the snapshot after unlocking.
func (a *App) bumpLocked() View {
	a.view.Seq++
	return a.view
}

// desktopContext snapshots the launch context for a record or suggestion
// query happening now.
func (a *App) desktopContext() history.Context {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx := a.desktop
	ctx.RunningApps = append([]string(nil), a.desktop.RunningApps...)
	ctx.SessionStart = !a.startedAt.IsZero() && a.now().Sub(a.startedAt) <= sessionStartWindow
	return ctx
}

// recordUsage writes one usage record with the current desktop context.
func (a *App) recordUsage(u history.Usage) {
	ctx := a.desktopContext()
	u.Context = &ctx
	if err := a.store.Record(u); err != nil {
		logx.Log.Warn().Err(err).Str("name", u.Name).Msg("record history")
	}
}

// corpusChanged runs on every coalesced index notification: the searchable
// corpus is marked stale and, outside a plugin session, the ranked list on
// screen is recomputed.
func (a *App) corpusChanged(changed []string) {
	a.engine.Invalidate()
	a.emit(Event{Type: EventCorpus, Changed: changed})
	a.refreshTopLevel()
}

// refreshTopLevel recomputes the ranked list for the current query. Inside a
// plugin session the top-level list is not on screen, so there is nothing to
// refresh.
func (a *App) refreshTopLevel() {
	a.mu.Lock()
	if a.view.Session != nil {
		a.mu.Unlock()
		return
	}
	query := a.view.Query
	a.mu.Unlock()

	results := a.engine.Search(query, a.desktopContext())

	a.mu.Lock()
	if a.view.Session != nil || a.view.Query != query {
		a.mu.Unlock()
		return
	}
	a.view.Results = results
	v := a.bumpLocked()
	a.mu.Unlock()

	a.emit(Event{Type: EventView, View: &v})
}

func (a *App) runContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runCtx
}

// Package watch wires manifest-declared triggers (reindex timers, file and
// directory watches, external events) to index requests.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ayusman/kathak/internal/debounce"
	"github.com/ayusman/kathak/internal/logx"
	"github.com/ayusman/kathak/internal/plugin"
	"github.com/ayusman/kathak/internal/protocol"
)

// Default debounce delays per trigger class. File changes settle fastest;
// directory listings and external events arrive in bursts and get a wider
// window. A manifest debounce override raises the file delay and, through
// the max below, the other classes with it.
const (
	defaultFileDebounce     = 300 * time.Millisecond
	defaultDirDebounce      = time.Second
	defaultExternalDebounce = 2 * time.Second
)

// Requester queues an indexing run for a plugin. It matches the signature of
// the index manager's RequestIndex.
type Requester func(pluginID, mode string) bool

// entry holds one plugin's active triggers. Entries are created from the
// manifest and replaced wholesale when the plugin set is reapplied.
type entry struct {
	pluginID string

	files  map[string]bool
	dirs   map[string]bool
	events map[string]bool

	fileDebounce     *debounce.Debouncer
	dirDebounce      *debounce.Debouncer
	externalDebounce *debounce.Debouncer

	stopReindex chan struct{}
}

// Manager owns every plugin's watchers in a registry keyed by plugin id.
// File and directory events are observed through one shared fsnotify
// instance, funneled through a per-plugin debounce timer per trigger class,
// and turned into index requests: file and directory changes request
// incremental runs, external events and reindex timers request full runs.
type Manager struct {
	requester Requester
	fsw       *fsnotify.Watcher

	mu      sync.Mutex
	entries map[string]*entry
	// watchRefs counts how many entries need each fsnotify path, so shared
	// parents survive until the last plugin stops watching them.
	watchRefs map[string]int
}

// NewManager creates a watch manager delivering index requests through fn.
func NewManager(fn Requester) (*Manager, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	m := &Manager{
		requester: fn,
		fsw:       fsw,
		entries:   make(map[string]*entry),
		watchRefs: make(map[string]int),
	}
	return m, nil
}

// Start launches the event loop. It runs until ctx is canceled or the
// manager is closed.
func (m *Manager) Start(ctx context.Context) {
	go m.run(ctx)
}

// Close tears down every plugin's triggers and the shared fsnotify instance.
func (m *Manager) Close() error {
	m.mu.Lock()
	for id, e := range m.entries {
		m.teardownLocked(e)
		delete(m.entries, id)
	}
	m.mu.Unlock()
	return m.fsw.Close()
}

// Apply reconciles the watcher registry against the current plugin set:
// plugins gone or no longer indexable lose their triggers, everything else
// is torn down and rebuilt from its manifest.
func (m *Manager) Apply(plugins []*plugin.Plugin) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	for _, p := range plugins {
		if !p.Indexable() {
			continue
		}
		seen[p.ID] = true
		if cur, ok := m.entries[p.ID]; ok {
			m.teardownLocked(cur)
		}
		m.entries[p.ID] = m.setupLocked(p)
	}

	for id, e := range m.entries {
		if !seen[id] {
			m.teardownLocked(e)
			delete(m.entries, id)
		}
	}
}

// Dispatch fans a named external event out to every plugin subscribed to
// it, requesting a full reindex per plugin (debounced). It returns how many
// plugins the event reached.
func (m *Manager) Dispatch(event string) int {
	m.mu.Lock()
	var hits []*entry
	for _, e := range m.entries {
		if e.events[event] {
			hits = append(hits, e)
		}
	}
	m.mu.Unlock()

	for _, e := range hits {
		id := e.pluginID
		e.externalDebounce.Trigger(func() {
			m.requester(id, protocol.IndexModeFull)
		})
	}

	if len(hits) > 0 {
		logx.Log.Debug().Str("event", event).Int("plugins", len(hits)).Msg("external event dispatched")
	}
	return len(hits)
}

func (m *Manager) setupLocked(p *plugin.Plugin) *entry {
	cfg := p.Manifest.Index

	fileDelay := defaultFileDebounce
	if cfg.Debounce > 0 {
		fileDelay = time.Duration(cfg.Debounce) * time.Millisecond
	}

	e := &entry{
		pluginID:         p.ID,
		files:            make(map[string]bool),
		dirs:             make(map[string]bool),
		events:           make(map[string]bool),
		fileDebounce:     debounce.New(fileDelay),
		dirDebounce:      debounce.New(maxDuration(defaultDirDebounce, fileDelay)),
		externalDebounce: debounce.New(maxDuration(defaultExternalDebounce, fileDelay)),
	}

	for _, raw := range cfg.WatchFiles {
		path, err := expandPath(raw)
		if err != nil {
			logx.Log.Warn().Err(err).Str("plugin", p.ID).Str("path", raw).Msg("cannot resolve watch file")
			continue
		}
		path = filepath.Clean(path)
		e.files[path] = true
		// Watch the parent so editors that replace the file by rename keep
		// feeding events.
		m.addWatchLocked(p.ID, filepath.Dir(path))
	}

	for _, raw := range cfg.WatchDirs {
		path, err := expandPath(raw)
		if err != nil {
			logx.Log.Warn().Err(err).Str("plugin", p.ID).Str("path", raw).Msg("cannot resolve watch dir")
			continue
		}
		path = filepath.Clean(path)
		e.dirs[path] = true
		m.addWatchLocked(p.ID, path)
	}

	for _, name := range cfg.WatchExternalEvents {
		e.events[name] = true
	}

	if interval, err := reindexInterval(cfg.Reindex); err != nil {
		logx.Log.Warn().Err(err).Str("plugin", p.ID).Str("reindex", cfg.Reindex).Msg("invalid reindex interval")
	} else if interval > 0 {
		e.stopReindex = make(chan struct{})
		go m.reindexLoop(p.ID, interval, e.stopReindex)
	}

	return e
}

func (m *Manager) teardownLocked(e *entry) {
	e.fileDebounce.Cancel()
	e.dirDebounce.Cancel()
	e.externalDebounce.Cancel()

	if e.stopReindex != nil {
		close(e.stopReindex)
	}

	for path := range e.files {
		m.removeWatchLocked(filepath.Dir(path))
	}
	for path := range e.dirs {
		m.removeWatchLocked(path)
	}
}

func (m *Manager) addWatchLocked(pluginID, path string) {
	m.watchRefs[path]++
	if m.watchRefs[path] > 1 {
		return
	}
	if err := m.fsw.Add(path); err != nil {
		logx.Log.Warn().Err(err).Str("plugin", pluginID).Str("path", path).Msg("watch failed")
	}
}

func (m *Manager) removeWatchLocked(path string) {
	if m.watchRefs[path] == 0 {
		return
	}
	m.watchRefs[path]--
	if m.watchRefs[path] == 0 {
		delete(m.watchRefs, path)
		_ = m.fsw.Remove(path)
	}
}

func (m *Manager) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			m.dispatchFile(ev.Name)
		case err, ok := <-m.fsw.Errors:
			if !ok {
				return
			}
			logx.Log.Warn().Err(err).Msg("file watcher error")
		}
	}
}

// dispatchFile routes one fsnotify event to the plugins watching that path:
// exact matches hit their file debouncer, events under (or on) a watched
// directory hit the dir debouncer. Both request incremental runs.
func (m *Manager) dispatchFile(name string) {
	path := filepath.Clean(name)
	parent := filepath.Dir(path)

	type hit struct {
		pluginID string
		deb      *debounce.Debouncer
	}

	m.mu.Lock()
	var hits []hit
	for _, e := range m.entries {
		if e.files[path] {
			hits = append(hits, hit{e.pluginID, e.fileDebounce})
		}
		if e.dirs[parent] || e.dirs[path] {
			hits = append(hits, hit{e.pluginID, e.dirDebounce})
		}
	}
	m.mu.Unlock()

	for _, h := range hits {
		id := h.pluginID
		h.deb.Trigger(func() {
			m.requester(id, protocol.IndexModeIncremental)
		})
	}
}

// reindexLoop requests a full run on every tick until stopped. The periodic
// timer is the only trigger that converges a snapshot nothing watches, so
// it always asks for full mode.
func (m *Manager) reindexLoop(pluginID string, interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.requester(pluginID, protocol.IndexModeFull)
		case <-stop:
			return
		}
	}
}

// reindexInterval parses a manifest reindex value. Empty and "never" mean
// disabled.
func reindexInterval(raw string) (time.Duration, error) {
	if raw == "" || raw == "never" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative interval %q", raw)
	}
	return d, nil
}

func expandPath(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if p == "~" {
		return home, nil
	}
	return filepath.Join(home, p[2:]), nil
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

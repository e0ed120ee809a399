package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ayusman/kathak/internal/logx"
)

// ErrPluginNotFound is returned when a requested plugin cannot be found.
var ErrPluginNotFound = errors.New("plugin not found")

// handlerNames are the file names probed, in order, for a plugin's handler
// executable inside its directory.
var handlerNames = []string{"handler", "handler.sh", "handler.py", "handler.js"}

// Manager discovers plugins from a built-in directory and a user directory.
// A user plugin with the same id strictly shadows the built-in one.
type Manager struct {
	builtinDir string
	userDir    string
	plugins    map[string]*Plugin
	loaded     bool
	mu         sync.RWMutex
}

// NewManager creates a plugin Manager over the given directories. Either
// directory may be empty or missing; discovery treats that as zero plugins.
func NewManager(builtinDir, userDir string) *Manager {
	return &Manager{
		builtinDir: builtinDir,
		userDir:    userDir,
		plugins:    make(map[string]*Plugin),
	}
}

// Discover scans both plugin directories for manifest.json files and loads
// them. The plugin id is its directory name. Unreadable or unparseable
// plugins are logged and skipped; discovery always loads the rest.
func (m *Manager) Discover() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Replace the whole set so removed plugins disappear on rescan.
	m.plugins = make(map[string]*Plugin)

	if err := m.scanDir(m.builtinDir, true); err != nil {
		return err
	}
	if err := m.scanDir(m.userDir, false); err != nil {
		return err
	}

	m.loaded = true
	return nil
}

// scanDir loads every plugin under dir, overwriting entries already present
// so that later (user) scans shadow earlier (built-in) ones.
func (m *Manager) scanDir(dir string, builtin bool) error {
	if dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		id := entry.Name()
		pluginPath := filepath.Join(dir, id)

		p, err := loadPlugin(id, pluginPath, builtin)
		if err != nil {
			logx.Log.Warn().Err(err).Str("plugin", id).Msg("skipping plugin")
			continue
		}

		m.plugins[id] = p
	}

	return nil
}

// loadPlugin reads one plugin directory: its manifest.json and its handler
// executable.
func loadPlugin(id, pluginPath string, builtin bool) (*Plugin, error) {
	manifestPath := filepath.Join(pluginPath, "manifest.json")

	manifestData, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	handler, err := findHandler(pluginPath)
	if err != nil {
		return nil, err
	}

	return &Plugin{
		ID:       id,
		Path:     pluginPath,
		Manifest: manifest,
		Handler:  handler,
		Builtin:  builtin,
	}, nil
}

// findHandler locates the plugin's handler executable by conventional name.
func findHandler(pluginPath string) (string, error) {
	for _, name := range handlerNames {
		candidate := filepath.Join(pluginPath, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no handler executable in %s", pluginPath)
}

// Get returns a plugin by id.
// Returns ErrPluginNotFound if the plugin does not exist.
func (m *Manager) Get(id string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plugins[id]
	if !ok {
		return nil, ErrPluginNotFound
	}

	return p, nil
}

// List returns a slice of all discovered plugins.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugins := make([]*Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		plugins = append(plugins, p)
	}

	return plugins
}

// Ready reports whether the initial discovery scan has completed.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// UserDir returns the user plugin directory path.
func (m *Manager) UserDir() string {
	return m.userDir
}

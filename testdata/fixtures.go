// Package testdata embeds plugin fixtures for daemon-level tests.
package testdata

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

//go:embed plugins/*
var pluginsFS embed.FS

// InstallPlugin materializes the named embedded plugin under dir, creating
// dir/<name>. Embedding drops file modes, so handler scripts get their
// executable bit restored.
func InstallPlugin(dir, name string) error {
	root := "plugins/" + name

	if _, err := fs.Stat(pluginsFS, root); err != nil {
		return fmt.Errorf("no fixture plugin %q: %w", name, err)
	}

	return fs.WalkDir(pluginsFS, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel := strings.TrimPrefix(path, "plugins/")
		target := filepath.Join(dir, filepath.FromSlash(rel))

		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}

		data, err := pluginsFS.ReadFile(path)
		if err != nil {
			return err
		}

		mode := os.FileMode(0644)
		if strings.HasPrefix(d.Name(), "handler") {
			mode = 0755
		}
		return os.WriteFile(target, data, mode)
	})
}

// PluginNames lists the embedded fixture plugins.
func PluginNames() ([]string, error) {
	entries, err := pluginsFS.ReadDir("plugins")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Package index serializes plugin item indexing behind a FIFO queue, merges
// full and incremental snapshots, and persists the cross-plugin result to a
// cache file.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ayusman/kathak/internal/logx"
	"github.com/ayusman/kathak/internal/protocol"
)

const cacheVersion = 1

// PluginIndex is one plugin's item snapshot plus the time it was taken,
// in unix milliseconds. The timestamp is echoed back to the plugin as
// `since` on incremental requests.
type PluginIndex struct {
	Items       []protocol.IndexEntry `json:"items"`
	LastIndexed int64                 `json:"lastIndexed"`
}

type cacheFile struct {
	Version int                    `json:"version"`
	SavedAt time.Time              `json:"savedAt"`
	Indexes map[string]PluginIndex `json:"indexes"`
}

// loadCache reads the cache file. A missing, unreadable, or corrupt file
// seeds an empty cache; affected plugins simply reindex from scratch.
func loadCache(path string) map[string]PluginIndex {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]PluginIndex{}
	}
	if err != nil {
		logx.Log.Warn().Err(err).Str("path", path).Msg("index cache unreadable, starting empty")
		return map[string]PluginIndex{}
	}

	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		logx.Log.Warn().Err(err).Str("path", path).Msg("index cache corrupt, starting empty")
		return map[string]PluginIndex{}
	}
	if file.Indexes == nil {
		return map[string]PluginIndex{}
	}

	return file.Indexes
}

// saveCache rewrites the whole cache file.
func saveCache(path string, indexes map[string]PluginIndex) error {
	file := cacheFile{
		Version: cacheVersion,
		SavedAt: time.Now(),
		Indexes: indexes,
	}

	data, err := json.MarshalIndent(&file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write index cache: %w", err)
	}

	return nil
}

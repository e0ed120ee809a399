// Package plugin provides plugin discovery, session tracking, and handler
// execution for the kathak launcher.
package plugin

// Manifest describes a plugin's display metadata and background behavior.
type Manifest struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Icon        string       `json:"icon,omitempty"`
	Poll        int          `json:"poll,omitempty"`
	Steps       StepsConfig  `json:"steps,omitempty"`
	Match       *MatchConfig `json:"match,omitempty"`
	Index       *IndexConfig `json:"index,omitempty"`
}

// StepsConfig holds per-step renderer hints keyed by step name.
type StepsConfig map[string]StepConfig

// StepConfig customizes how the renderer presents one protocol step.
type StepConfig struct {
	Prompt string `json:"prompt,omitempty"`
}

// MatchConfig surfaces a plugin directly for queries matching its patterns.
type MatchConfig struct {
	Patterns []string `json:"patterns"`
	Priority int      `json:"priority,omitempty"`
}

// IndexConfig declares how and when a plugin's items are indexed.
type IndexConfig struct {
	Enabled             bool     `json:"enabled"`
	Reindex             string   `json:"reindex,omitempty"`
	WatchFiles          []string `json:"watchFiles,omitempty"`
	WatchDirs           []string `json:"watchDirs,omitempty"`
	WatchExternalEvents []string `json:"watchExternalEvents,omitempty"`
	Debounce            int      `json:"debounce,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
// Instances are created by a discovery scan and replaced wholesale on rescan,
// never mutated in place.
type Plugin struct {
	ID       string
	Path     string
	Manifest Manifest
	Handler  string
	Builtin  bool
}

// Indexable reports whether the plugin opted into item indexing.
func (p *Plugin) Indexable() bool {
	return p.Manifest.Index != nil && p.Manifest.Index.Enabled
}

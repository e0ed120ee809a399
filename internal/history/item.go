// Package history tracks launch usage for the kathak launcher: how often and
// how recently each item was used, the search terms that found it, and the
// per-signal counters behind smart suggestions. The whole document is held in
// memory and rewritten to disk as JSON on every mutation.
package history

import "time"

// Kind classifies a history item.
type Kind string

const (
	// KindApp is a launched desktop application.
	KindApp Kind = "app"
	// KindAction is a built-in launcher action.
	KindAction Kind = "action"
	// KindWorkflow is a plugin opened as a session.
	KindWorkflow Kind = "workflow"
	// KindWorkflowExecution is a recorded plugin interaction that can be
	// replayed, keyed by plugin id plus item id.
	KindWorkflowExecution Kind = "workflowExecution"
	// KindWindowFocus is a focus switch to an open window, keyed by app
	// plus window title.
	KindWindowFocus Kind = "windowFocus"
	// KindWebSearch is a query sent to the web search fallback.
	KindWebSearch Kind = "webSearch"
)

// Item is one usage record. Items are keyed by (type, name), or (type, key)
// for composite kinds. Count is fractional: aging scales it downward over
// time, and every nested counter map scales with it.
type Item struct {
	Type Kind   `json:"type"`
	Name string `json:"name"`
	Key  string `json:"key,omitempty"`

	Count             float64   `json:"count"`
	LastUsed          time.Time `json:"lastUsed"`
	RecentSearchTerms []string  `json:"recentSearchTerms,omitempty"`

	// Launch payload, enough to re-run the item without the live corpus.
	Command    string `json:"command,omitempty"`
	EntryPoint string `json:"entryPoint,omitempty"`
	Icon       string `json:"icon,omitempty"`
	IconType   string `json:"iconType,omitempty"`
	Thumbnail  string `json:"thumbnail,omitempty"`
	PluginID   string `json:"pluginId,omitempty"`

	// Smart-suggestion signal counters. Map keys are bucket labels: hour
	// "0".."23", weekday "0".."6" (Sunday first), workspace and monitor
	// names, and app names for the sequence/co-running signals.
	HourCounts        map[string]float64 `json:"hourCounts,omitempty"`
	WeekdayCounts     map[string]float64 `json:"weekdayCounts,omitempty"`
	WorkspaceCounts   map[string]float64 `json:"workspaceCounts,omitempty"`
	MonitorCounts     map[string]float64 `json:"monitorCounts,omitempty"`
	AfterAppCounts    map[string]float64 `json:"afterAppCounts,omitempty"`
	CoRunningCounts   map[string]float64 `json:"coRunningCounts,omitempty"`
	SessionStartCount float64            `json:"sessionStartCount,omitempty"`

	// Consecutive-day usage streak and the last day it advanced.
	StreakDays int    `json:"streakDays,omitempty"`
	StreakDate string `json:"streakDate,omitempty"`
}

// mapKey is the identity an item is stored under.
func (i *Item) mapKey() string {
	if i.Key != "" {
		return string(i.Type) + "/" + i.Key
	}
	return string(i.Type) + "/" + i.Name
}

// Context describes the desktop environment at the moment of a launch. All
// fields are optional; Record only updates counters for what is present.
type Context struct {
	Workspace    string
	Monitor      string
	PreviousApp  string
	RunningApps  []string
	SessionStart bool
}

// Usage is the input to Store.Record: what was used, the search term that
// found it, its launch payload, and the surrounding context.
type Usage struct {
	Type       Kind
	Name       string
	Key        string
	SearchTerm string

	Command    string
	EntryPoint string
	Icon       string
	IconType   string
	Thumbnail  string
	PluginID   string

	Context *Context
}

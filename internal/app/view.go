package app

import (
	"github.com/ayusman/kathak/internal/protocol"
	"github.com/ayusman/kathak/internal/ranking"
)

// EventType classifies an event pushed to renderer-side listeners.
type EventType string

const (
	// EventView signals that the display state changed; the event carries
	// the new snapshot.
	EventView EventType = "view"
	// EventCorpus signals that indexed items changed for some plugins.
	EventCorpus EventType = "corpus"
	// EventNotify carries a user-visible notification requested by a plugin.
	EventNotify EventType = "notification"
)

// Event is one push to the renderer.
type Event struct {
	Type    EventType `json:"type"`
	View    *View     `json:"view,omitempty"`
	Changed []string  `json:"changed,omitempty"`
	Message string    `json:"message,omitempty"`
}

// SessionView is the renderer-facing state of the active plugin session:
// which payload is on screen plus the cross-cutting hints that shape the
// input field.
type SessionView struct {
	PluginID string        `json:"pluginId"`
	Depth    int           `json:"depth"`
	Kind     protocol.Kind `json:"kind"`

	Results      []protocol.Result      `json:"results,omitempty"`
	Card         *protocol.Card         `json:"card,omitempty"`
	Form         *protocol.Form         `json:"form,omitempty"`
	Prompt       *protocol.Prompt       `json:"prompt,omitempty"`
	ImageBrowser *protocol.ImageBrowser `json:"imageBrowser,omitempty"`

	Placeholder   string                  `json:"placeholder,omitempty"`
	InputMode     string                  `json:"inputMode,omitempty"`
	ClearInput    bool                    `json:"clearInput,omitempty"`
	PluginActions []protocol.PluginAction `json:"pluginActions,omitempty"`
}

// View is one immutable snapshot of what the renderer should display. Seq
// increases with every change so late WebSocket frames can be discarded.
// Results holds the top-level ranked list; Session, when set, is the plugin
// view layered over it.
type View struct {
	Seq     uint64           `json:"seq"`
	Query   string           `json:"query"`
	Busy    bool             `json:"busy"`
	Error   string           `json:"error,omitempty"`
	Results []ranking.Result `json:"results"`
	Session *SessionView     `json:"session,omitempty"`
}

// Activation identifies what the user activated: a top-level ranked row
// (Source set, identity fields echoed from the Result), or an item inside
// the active plugin session (Source empty, ID from the displayed row).
// Action carries a row-level or toolbar-level action id when one was picked.
type Activation struct {
	Source     ranking.Source `json:"source,omitempty"`
	ID         string         `json:"id"`
	PluginID   string         `json:"pluginId,omitempty"`
	Name       string         `json:"name,omitempty"`
	Query      string         `json:"query,omitempty"`
	Action     string         `json:"action,omitempty"`
	EntryPoint string         `json:"entryPoint,omitempty"`
	Execute    string         `json:"execute,omitempty"`
}

// DesktopUpdate is a compositor-side state report: current workspace,
// monitor, focused application, and the set of running applications.
type DesktopUpdate struct {
	Workspace   string   `json:"workspace,omitempty"`
	Monitor     string   `json:"monitor,omitempty"`
	FocusedApp  string   `json:"focusedApp,omitempty"`
	RunningApps []string `json:"runningApps,omitempty"`
}

// Package protocol defines the JSON request/response envelope spoken between
// the kathak daemon and plugin handler processes. One JSON document is written
// to the handler's stdin and one JSON document is read back from its stdout
// per invocation. The package is a pure codec and holds no state.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Step identifies the kind of request sent to a plugin handler.
type Step string

const (
	// StepInitial starts a plugin session.
	StepInitial Step = "initial"
	// StepSearch forwards the current query to the active session.
	StepSearch Step = "search"
	// StepAction reports a selected item or action.
	StepAction Step = "action"
	// StepForm submits form data collected by the renderer.
	StepForm Step = "form"
	// StepPoll asks the plugin to refresh its current view.
	StepPoll Step = "poll"
	// StepIndex asks the plugin to publish its searchable items.
	StepIndex Step = "index"
)

// Sentinel selection ids with protocol-level meaning. Plugins never receive
// these as ordinary item selections.
const (
	// SelectionBack requests back-navigation within the session.
	SelectionBack = "__back__"
	// SelectionPlugin marks a toolbar-level plugin action, not an item action.
	SelectionPlugin = "__plugin__"
	// SelectionFormCancel cancels the form currently shown.
	SelectionFormCancel = "__form_cancel__"
	// SelectionEmpty is a non-actionable placeholder row.
	SelectionEmpty = "__empty__"
	// SelectionNoResults is a non-actionable "no results" row.
	SelectionNoResults = "__no_results__"
)

// IsSentinel reports whether id is one of the reserved selection ids above.
func IsSentinel(id string) bool {
	switch id {
	case SelectionBack, SelectionPlugin, SelectionFormCancel, SelectionEmpty, SelectionNoResults:
		return true
	}
	return false
}

// IndexModeFull replaces a plugin's entire item snapshot; IndexModeIncremental
// sends the last index time and merges the returned delta.
const (
	IndexModeFull        = "full"
	IndexModeIncremental = "incremental"
)

// Selection carries the item the user activated, echoed to the plugin.
type Selection struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	EntryPoint string `json:"entryPoint,omitempty"`
	Execute    string `json:"execute,omitempty"`
}

// Request is the envelope written to a handler's stdin. Immutable once built.
type Request struct {
	Step     Step            `json:"step"`
	Session  string          `json:"session"`
	Query    string          `json:"query,omitempty"`
	Selected *Selection      `json:"selected,omitempty"`
	Action   string          `json:"action,omitempty"`
	Context  json.RawMessage `json:"context,omitempty"`
	FormData json.RawMessage `json:"formData,omitempty"`
	Mode     string          `json:"mode,omitempty"`
	Since    int64           `json:"since,omitempty"`
	Replay   bool            `json:"replay,omitempty"`
}

// ResultAction is an action offered on a single result row.
type ResultAction struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

// Result is one row in a results response.
type Result struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Icon        string         `json:"icon,omitempty"`
	IconType    string         `json:"iconType,omitempty"`
	Verb        string         `json:"verb,omitempty"`
	Actions     []ResultAction `json:"actions,omitempty"`
	Thumbnail   string         `json:"thumbnail,omitempty"`
	Keywords    []string       `json:"keywords,omitempty"`
}

// PluginAction is a toolbar-level action offered for the whole session.
type PluginAction struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Icon    string `json:"icon,omitempty"`
	Confirm bool   `json:"confirm,omitempty"`
}

// Card is a rendered text/markdown panel.
type Card struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Markdown bool   `json:"markdown,omitempty"`
}

// FormField is one input in a form payload.
type FormField struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Type        string   `json:"type,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Value       string   `json:"value,omitempty"`
	Options     []string `json:"options,omitempty"`
	Required    bool     `json:"required,omitempty"`
}

// Form asks the renderer to collect structured input.
type Form struct {
	Title       string      `json:"title"`
	Fields      []FormField `json:"fields"`
	SubmitLabel string      `json:"submitLabel,omitempty"`
}

// Execute instructs the daemon to run a command and record usage.
type Execute struct {
	Command    []string `json:"command,omitempty"`
	Notify     string   `json:"notify,omitempty"`
	Name       string   `json:"name,omitempty"`
	EntryPoint string   `json:"entryPoint,omitempty"`
	Icon       string   `json:"icon,omitempty"`
	IconType   string   `json:"iconType,omitempty"`
	Thumbnail  string   `json:"thumbnail,omitempty"`
	Close      bool     `json:"close,omitempty"`
}

// Prompt asks the renderer for free-form text input.
type Prompt struct {
	Text string `json:"text"`
}

// ImageBrowser asks the renderer to show a directory of images.
type ImageBrowser struct {
	Directory  string         `json:"directory"`
	Title      string         `json:"title,omitempty"`
	Extensions []string       `json:"extensions,omitempty"`
	Actions    []ResultAction `json:"actions,omitempty"`
	EnableOCR  bool           `json:"enableOcr,omitempty"`
}

// IndexEntry is one searchable item published by a plugin's index step.
type IndexEntry struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Keywords    []string       `json:"keywords,omitempty"`
	Icon        string         `json:"icon,omitempty"`
	IconType    string         `json:"iconType,omitempty"`
	Description string         `json:"description,omitempty"`
	Actions     []ResultAction `json:"actions,omitempty"`
	EntryPoint  string         `json:"entryPoint,omitempty"`
	Execute     string         `json:"execute,omitempty"`
}

// Kind identifies the payload a response carries.
type Kind string

const (
	KindResults      Kind = "results"
	KindCard         Kind = "card"
	KindForm         Kind = "form"
	KindExecute      Kind = "execute"
	KindPrompt       Kind = "prompt"
	KindImageBrowser Kind = "imageBrowser"
	KindIndex        Kind = "index"
	KindError        Kind = "error"
	// KindUnknown means no recognizable payload was present.
	KindUnknown Kind = "unknown"
)

// Response is the envelope read from a handler's stdout. Exactly one payload
// field is expected; the cross-cutting fields below it apply regardless of
// payload kind. Unknown and missing fields default rather than error.
type Response struct {
	Results      []Result      `json:"results,omitempty"`
	Card         *Card         `json:"card,omitempty"`
	Form         *Form         `json:"form,omitempty"`
	Execute      *Execute      `json:"execute,omitempty"`
	Prompt       *Prompt       `json:"prompt,omitempty"`
	ImageBrowser *ImageBrowser `json:"imageBrowser,omitempty"`
	Message      string        `json:"message,omitempty"`

	// Index payload, present when Type == "index".
	Type   string       `json:"type,omitempty"`
	Mode   string       `json:"mode,omitempty"`
	Items  []IndexEntry `json:"items,omitempty"`
	Remove []string     `json:"remove,omitempty"`

	// Cross-cutting control signals.
	NavigationDepth *int            `json:"navigationDepth,omitempty"`
	NavigateForward bool            `json:"navigateForward,omitempty"`
	NavigateBack    bool            `json:"navigateBack,omitempty"`
	InputMode       string          `json:"inputMode,omitempty"`
	PollInterval    int             `json:"pollInterval,omitempty"`
	Context         json.RawMessage `json:"context,omitempty"`
	Placeholder     string          `json:"placeholder,omitempty"`
	ClearInput      bool            `json:"clearInput,omitempty"`
	PluginActions   []PluginAction  `json:"pluginActions,omitempty"`
}

// Kind classifies the response by the payload it carries. A prompt may carry
// a card alongside it, so prompt is checked before card.
func (r *Response) Kind() Kind {
	switch {
	case r.Type == "index":
		return KindIndex
	case r.Message != "":
		return KindError
	case r.Execute != nil:
		return KindExecute
	case r.Form != nil:
		return KindForm
	case r.ImageBrowser != nil:
		return KindImageBrowser
	case r.Prompt != nil:
		return KindPrompt
	case r.Results != nil:
		return KindResults
	case r.Card != nil:
		return KindCard
	default:
		return KindUnknown
	}
}

// ErrEmptyResponse is returned when a handler produced no output at all.
var ErrEmptyResponse = errors.New("empty response")

// EncodeRequest serializes a request as a single JSON document.
func EncodeRequest(req *Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return data, nil
}

// DecodeResponse parses a handler's entire stdout as one JSON document.
// It returns an error for empty output, malformed JSON, or a document with
// no recognizable payload kind.
func DecodeResponse(data []byte) (*Response, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyResponse
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if resp.Kind() == KindUnknown {
		return nil, fmt.Errorf("decode response: no recognizable payload")
	}

	return &resp, nil
}

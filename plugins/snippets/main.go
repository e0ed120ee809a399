// Package main provides the bundled snippets plugin.
// It keeps user-saved text snippets in ~/.kathak/snippets.json, indexes
// them, and copies a selected snippet back to the clipboard. New snippets
// are collected through a form.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// request is the envelope the daemon writes to stdin.
type request struct {
	Step     string          `json:"step"`
	Query    string          `json:"query"`
	Selected *selection      `json:"selected"`
	Action   string          `json:"action"`
	FormData json.RawMessage `json:"formData"`
	Mode     string          `json:"mode"`
}

type selection struct {
	ID string `json:"id"`
}

// response is the envelope written back on stdout.
type response struct {
	Results []result `json:"results,omitempty"`
	Form    *form    `json:"form,omitempty"`
	Execute *execute `json:"execute,omitempty"`
	Message string   `json:"message,omitempty"`

	Type   string       `json:"type,omitempty"`
	Mode   string       `json:"mode,omitempty"`
	Items  []indexEntry `json:"items,omitempty"`
	Remove []string     `json:"remove,omitempty"`

	NavigateForward bool           `json:"navigateForward,omitempty"`
	NavigateBack    bool           `json:"navigateBack,omitempty"`
	ClearInput      bool           `json:"clearInput,omitempty"`
	PluginActions   []pluginAction `json:"pluginActions,omitempty"`
}

type result struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Icon        string      `json:"icon,omitempty"`
	IconType    string      `json:"iconType,omitempty"`
	Verb        string      `json:"verb,omitempty"`
	Actions     []rowAction `json:"actions,omitempty"`
}

type rowAction struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type pluginAction struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type form struct {
	Title       string      `json:"title"`
	Fields      []formField `json:"fields"`
	SubmitLabel string      `json:"submitLabel,omitempty"`
}

type formField struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Type        string `json:"type,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

type execute struct {
	Command  []string `json:"command,omitempty"`
	Notify   string   `json:"notify,omitempty"`
	Name     string   `json:"name,omitempty"`
	Icon     string   `json:"icon,omitempty"`
	IconType string   `json:"iconType,omitempty"`
	Close    bool     `json:"close,omitempty"`
}

type indexEntry struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Keywords    []string `json:"keywords,omitempty"`
	Icon        string   `json:"icon,omitempty"`
	IconType    string   `json:"iconType,omitempty"`
	Description string   `json:"description,omitempty"`
}

// snippet is one stored entry in the data file.
type snippet struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Created int64  `json:"created"`
}

func main() {
	var req request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		respond(errorResponse(fmt.Sprintf("decode request: %v", err)))
		return
	}

	respond(handle(&req))
}

func respond(resp *response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}

func errorResponse(msg string) *response {
	return &response{Message: msg}
}

func handle(req *request) *response {
	switch req.Step {
	case "index":
		return indexResponse(req.Mode)
	case "initial", "search":
		return listResponse(req.Query)
	case "action":
		return actionResponse(req)
	case "form":
		return formResponse(req)
	}
	return errorResponse("unsupported step: " + req.Step)
}

// indexResponse publishes every stored snippet. The ids answered last time
// are kept next to the data file; snippets missing since then are reported
// as removals so incremental merges drop them.
func indexResponse(mode string) *response {
	list, err := loadSnippets()
	if err != nil {
		return errorResponse(fmt.Sprintf("load snippets: %v", err))
	}

	items := make([]indexEntry, 0, len(list))
	ids := make([]string, 0, len(list))
	current := make(map[string]bool, len(list))
	for _, s := range list {
		ids = append(ids, s.ID)
		current[s.ID] = true
		items = append(items, indexEntry{
			ID:          s.ID,
			Name:        s.Title,
			Keywords:    []string{"snippet"},
			Icon:        "📋",
			IconType:    "emoji",
			Description: preview(s.Body),
		})
	}

	var removed []string
	if mode == "incremental" {
		for _, id := range loadPublished() {
			if !current[id] {
				removed = append(removed, id)
			}
		}
	}
	savePublished(ids)

	return &response{Type: "index", Mode: mode, Items: items, Remove: removed}
}

// listResponse renders the stored snippets filtered by the typed query.
func listResponse(query string) *response {
	list, err := loadSnippets()
	if err != nil {
		return errorResponse(fmt.Sprintf("load snippets: %v", err))
	}

	q := strings.ToLower(strings.TrimSpace(query))
	rows := make([]result, 0, len(list))
	for _, s := range list {
		if q != "" && !matches(s, q) {
			continue
		}
		rows = append(rows, result{
			ID:          s.ID,
			Name:        s.Title,
			Description: preview(s.Body),
			Icon:        "📋",
			IconType:    "emoji",
			Verb:        "Copy",
			Actions: []rowAction{
				{ID: "copy", Name: "Copy"},
				{ID: "delete", Name: "Delete"},
			},
		})
	}

	switch {
	case len(rows) == 0 && q != "":
		rows = append(rows, result{ID: "__no_results__", Name: "No snippets match"})
	case len(rows) == 0:
		rows = append(rows, result{ID: "__empty__", Name: "No snippets yet"})
	}

	return &response{
		Results:       rows,
		PluginActions: []pluginAction{{ID: "new", Name: "New Snippet"}},
	}
}

func actionResponse(req *request) *response {
	if req.Selected == nil {
		return errorResponse("no selection")
	}

	switch req.Selected.ID {
	case "__back__":
		return listResponse("")
	case "__form_cancel__":
		resp := listResponse("")
		resp.NavigateBack = true
		return resp
	case "__plugin__":
		if req.Action == "new" {
			return newSnippetForm()
		}
		return listResponse("")
	case "__empty__", "__no_results__":
		return listResponse(req.Query)
	}

	list, err := loadSnippets()
	if err != nil {
		return errorResponse(fmt.Sprintf("load snippets: %v", err))
	}

	if req.Action == "delete" {
		kept := make([]snippet, 0, len(list))
		for _, s := range list {
			if s.ID != req.Selected.ID {
				kept = append(kept, s)
			}
		}
		if len(kept) == len(list) {
			return errorResponse("unknown snippet: " + req.Selected.ID)
		}
		if err := saveSnippets(kept); err != nil {
			return errorResponse(fmt.Sprintf("save snippets: %v", err))
		}
		return listResponse("")
	}

	// Plain activation and the copy row action both copy the body.
	for _, s := range list {
		if s.ID == req.Selected.ID {
			return copyResponse(s)
		}
	}
	return errorResponse("unknown snippet: " + req.Selected.ID)
}

func copyResponse(s snippet) *response {
	return &response{Execute: &execute{
		Command:  []string{"sh", "-c", copyCommand(s.Body)},
		Notify:   "Copied " + s.Title,
		Name:     s.Title,
		Icon:     "📋",
		IconType: "emoji",
		Close:    true,
	}}
}

func newSnippetForm() *response {
	return &response{
		Form: &form{
			Title: "New Snippet",
			Fields: []formField{
				{ID: "title", Label: "Title", Type: "text", Placeholder: "What is it called?", Required: true},
				{ID: "body", Label: "Snippet", Type: "textarea", Placeholder: "Text to copy back later", Required: true},
			},
			SubmitLabel: "Save",
		},
		NavigateForward: true,
	}
}

// formResponse saves a submitted snippet and returns to the refreshed list.
func formResponse(req *request) *response {
	var data struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := json.Unmarshal(req.FormData, &data); err != nil {
		return errorResponse(fmt.Sprintf("parse form data: %v", err))
	}

	data.Title = strings.TrimSpace(data.Title)
	if data.Title == "" {
		return errorResponse("a title is required")
	}
	if strings.TrimSpace(data.Body) == "" {
		return errorResponse("a snippet body is required")
	}

	list, err := loadSnippets()
	if err != nil {
		return errorResponse(fmt.Sprintf("load snippets: %v", err))
	}

	list = append(list, snippet{
		ID:      newID(data.Title, list),
		Title:   data.Title,
		Body:    data.Body,
		Created: time.Now().UnixMilli(),
	})
	if err := saveSnippets(list); err != nil {
		return errorResponse(fmt.Sprintf("save snippets: %v", err))
	}

	resp := listResponse("")
	resp.NavigateBack = true
	resp.ClearInput = true
	return resp
}

func matches(s snippet, q string) bool {
	return strings.Contains(strings.ToLower(s.Title), q) ||
		strings.Contains(strings.ToLower(s.Body), q)
}

// preview is the first line of the body, capped for display.
func preview(body string) string {
	line := strings.TrimSpace(body)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if r := []rune(line); len(r) > 80 {
		line = string(r[:80])
	}
	return line
}

// newID derives an id from the title, deduplicating with a numeric suffix.
func newID(title string, existing []snippet) string {
	base := slugify(title)
	if base == "" {
		base = "snippet"
	}

	taken := make(map[string]bool, len(existing))
	for _, s := range existing {
		taken[s.ID] = true
	}

	id := base
	for n := 2; taken[id]; n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}
	return id
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

func dataFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".kathak", "snippets.json"), nil
}

func publishedFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".kathak", "snippets-published.json"), nil
}

func loadSnippets() ([]snippet, error) {
	path, err := dataFile()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var list []snippet
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return list, nil
}

func saveSnippets(list []snippet) error {
	path, err := dataFile()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// loadPublished reads the ids answered on the previous index run. Errors
// degrade to an empty cursor, which just means no removals are reported.
func loadPublished() []string {
	path, err := publishedFile()
	if err != nil {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var ids []string
	if json.Unmarshal(data, &ids) != nil {
		return nil
	}
	return ids
}

func savePublished(ids []string) {
	path, err := publishedFile()
	if err != nil {
		return
	}

	data, err := json.Marshal(ids)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return
	}
	os.WriteFile(path, data, 0644)
}

// copyCommand builds a shell line that puts text on the clipboard.
func copyCommand(text string) string {
	quoted := "'" + strings.ReplaceAll(text, "'", `'\''`) + "'"
	if runtime.GOOS == "darwin" {
		return "printf %s " + quoted + " | pbcopy"
	}
	return "printf %s " + quoted + " | wl-copy 2>/dev/null || printf %s " + quoted + " | xclip -selection clipboard"
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/kathak/internal/app"
)

// EventsHandler ingests compositor-side reports: named external events that
// drive plugin reindexing, and desktop state feeding the history context.
type EventsHandler struct {
	app *app.App
}

// NewEventsHandler creates a new EventsHandler with the given app.
func NewEventsHandler(a *app.App) *EventsHandler {
	return &EventsHandler{app: a}
}

// Request and response types

type externalEventRequest struct {
	Event string `json:"event,omitempty"`
	app.DesktopUpdate
}

type externalEventResponse struct {
	Plugins int `json:"plugins"`
}

// ServeHTTP handles POST /api/events/external. Desktop state in the body is
// folded into the launch context; a named event fans out to subscribed
// plugins. The response reports how many plugins the event reached.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req externalEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	h.app.UpdateDesktop(req.DesktopUpdate)

	reached := 0
	if req.Event != "" {
		reached = h.app.DispatchExternal(req.Event)
	}

	writeJSON(w, http.StatusOK, externalEventResponse{Plugins: reached})
}

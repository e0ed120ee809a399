// Package api provides HTTP API handlers for the kathak daemon.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/kathak/internal/app"
	"github.com/ayusman/kathak/internal/history"
	"github.com/ayusman/kathak/internal/plugin"
)

// LauncherHandler handles the interactive endpoints: query, activate, form
// submission, escape, back, and replay. Every call answers with the view
// the renderer should display next.
type LauncherHandler struct {
	app *app.App
}

// NewLauncherHandler creates a new LauncherHandler driving the given app.
func NewLauncherHandler(a *app.App) *LauncherHandler {
	return &LauncherHandler{app: a}
}

// ServeHTTP implements the http.Handler interface and routes requests to
// appropriate methods.
func (h *LauncherHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch r.URL.Path {
	case "/api/query":
		h.query(w, r)
	case "/api/activate":
		h.activate(w, r)
	case "/api/form":
		h.form(w, r)
	case "/api/escape":
		h.escape(w, r)
	case "/api/back":
		h.back(w, r)
	case "/api/replay":
		h.replay(w, r)
	default:
		http.NotFound(w, r)
	}
}

// Request and response types

type queryRequest struct {
	Query string `json:"query"`
}

type formRequest struct {
	Data json.RawMessage `json:"data"`
}

type replayRequest struct {
	Key string `json:"key"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// activateStatus maps an activation error to its HTTP status.
func activateStatus(err error) int {
	switch {
	case errors.Is(err, app.ErrNoSession):
		return http.StatusConflict
	case errors.Is(err, plugin.ErrPluginNotFound):
		return http.StatusNotFound
	case errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// query handles POST /api/query and returns the view for the new input.
func (h *LauncherHandler) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	writeJSON(w, http.StatusOK, h.app.Query(r.Context(), req.Query))
}

// activate handles POST /api/activate and runs the selected row.
func (h *LauncherHandler) activate(w http.ResponseWriter, r *http.Request) {
	var act app.Activation
	if err := json.NewDecoder(r.Body).Decode(&act); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if act.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	v, err := h.app.Activate(r.Context(), act)
	if err != nil {
		writeError(w, activateStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// form handles POST /api/form and submits form data to the active session.
func (h *LauncherHandler) form(w http.ResponseWriter, r *http.Request) {
	var req formRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	v, err := h.app.SubmitForm(r.Context(), req.Data)
	if err != nil {
		writeError(w, activateStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// escape handles POST /api/escape and applies one Escape press.
func (h *LauncherHandler) escape(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.HandleEscape(r.Context()))
}

// back handles POST /api/back and steps the session up one level.
func (h *LauncherHandler) back(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.GoBack(r.Context()))
}

// replay handles POST /api/replay and re-runs a recorded interaction.
func (h *LauncherHandler) replay(w http.ResponseWriter, r *http.Request) {
	var req replayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	if err := h.app.Replay(req.Key); err != nil {
		writeError(w, activateStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

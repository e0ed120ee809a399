package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/kathak/internal/app"
	"github.com/ayusman/kathak/internal/history"
)

// HistoryHandler handles HTTP requests for usage history resources.
type HistoryHandler struct {
	app *app.App
}

// NewHistoryHandler creates a new HistoryHandler with the given app.
func NewHistoryHandler(a *app.App) *HistoryHandler {
	return &HistoryHandler{app: a}
}

// ServeHTTP implements the http.Handler interface and routes requests to
// appropriate methods.
// Expected paths: /api/history, /api/history/rename, /api/history/{kind}/{id}
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/history")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		// Collection endpoint: /api/history
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	if path == "rename" {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.rename(w, r)
		return
	}

	// Item endpoint: /api/history/{kind}/{id}. Execution ids contain
	// slashes, so only the first segment is the kind.
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.remove(w, r, history.Kind(parts[0]), parts[1])
}

// Request and response types

type historyItemResponse struct {
	history.Item
	ID       string  `json:"id"`
	Frecency float64 `json:"frecency"`
}

type listHistoryResponse struct {
	Items []historyItemResponse `json:"items"`
}

type renameHistoryRequest struct {
	Kind history.Kind `json:"kind"`
	ID   string       `json:"id"`
	Name string       `json:"name"`
}

// list handles GET /api/history and returns all recorded items, most
// recently used first, with their current frecency.
func (h *HistoryHandler) list(w http.ResponseWriter, r *http.Request) {
	items := h.app.HistoryItems()
	now := time.Now()

	response := listHistoryResponse{
		Items: make([]historyItemResponse, 0, len(items)),
	}

	for _, it := range items {
		id := it.Key
		if id == "" {
			id = it.Name
		}
		response.Items = append(response.Items, historyItemResponse{
			Item:     it,
			ID:       id,
			Frecency: it.Frecency(now),
		})
	}

	writeJSON(w, http.StatusOK, response)
}

// remove handles DELETE /api/history/{kind}/{id} and forgets an item.
func (h *HistoryHandler) remove(w http.ResponseWriter, r *http.Request, kind history.Kind, id string) {
	if err := h.app.RemoveHistory(kind, id); err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, http.StatusNotFound, "History item not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to remove history item")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// rename handles POST /api/history/rename and renames an item in place.
func (h *HistoryHandler) rename(w http.ResponseWriter, r *http.Request) {
	var req renameHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required")
		return
	}

	if err := h.app.RenameHistory(req.Kind, req.ID, req.Name); err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, http.StatusNotFound, "History item not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to rename history item")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

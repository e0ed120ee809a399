package api

import (
	"net/http"

	"github.com/ayusman/kathak/internal/app"
)

// PluginsHandler handles HTTP requests for the plugin registry.
type PluginsHandler struct {
	app *app.App
}

// NewPluginsHandler creates a new PluginsHandler with the given app.
func NewPluginsHandler(a *app.App) *PluginsHandler {
	return &PluginsHandler{app: a}
}

// ServeHTTP implements the http.Handler interface and routes requests to
// appropriate methods.
// Expected paths: /api/plugins and /api/plugins/rescan
func (h *PluginsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/plugins":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
	case "/api/plugins/rescan":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.rescan(w, r)
	default:
		http.NotFound(w, r)
	}
}

// Request and response types

type pluginResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Icon         string `json:"icon,omitempty"`
	Builtin      bool   `json:"builtin"`
	IndexEnabled bool   `json:"indexEnabled"`
	Items        int    `json:"items"`
	LastIndexed  int64  `json:"lastIndexed,omitempty"`
}

type listPluginsResponse struct {
	Plugins []pluginResponse `json:"plugins"`
}

// list handles GET /api/plugins and returns the discovered registry with
// per-plugin index state.
func (h *PluginsHandler) list(w http.ResponseWriter, r *http.Request) {
	plugins := h.app.Plugins()

	response := listPluginsResponse{
		Plugins: make([]pluginResponse, 0, len(plugins)),
	}

	for _, p := range plugins {
		items, last := h.app.IndexState(p.ID)
		response.Plugins = append(response.Plugins, pluginResponse{
			ID:           p.ID,
			Name:         p.Manifest.Name,
			Description:  p.Manifest.Description,
			Icon:         p.Manifest.Icon,
			Builtin:      p.Builtin,
			IndexEnabled: p.Indexable(),
			Items:        items,
			LastIndexed:  last,
		})
	}

	writeJSON(w, http.StatusOK, response)
}

// rescan handles POST /api/plugins/rescan, re-discovers the plugin dirs,
// and answers with the fresh listing.
func (h *PluginsHandler) rescan(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Rescan(); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to rescan plugins")
		return
	}

	h.list(w, r)
}

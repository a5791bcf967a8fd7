package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/koios/matrx-display/internal/pixlet"
	"github.com/koios/matrx-display/internal/store"
	"github.com/koios/matrx-display/pkg/models"
	"go.uber.org/zap"
)

// AppCatalog exposes the applet registry
type AppCatalog interface {
	GetAppRegistry() *models.AppRegistry
	RefreshAppRegistry() error
	FlushCache(ctx context.Context, appID string) (int, error)
}

// AppHandler handles HTTP requests for applet management and baking
type AppHandler struct {
	catalog AppCatalog
	events  *EventHandler
	logger  *zap.Logger
}

// NewAppHandler creates a new app handler
func NewAppHandler(catalog AppCatalog, events *EventHandler, logger *zap.Logger) *AppHandler {
	return &AppHandler{
		catalog: catalog,
		events:  events,
		logger:  logger,
	}
}

// RegisterRoutes registers the app management routes
func (h *AppHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/apps", h.handleApps)
	mux.HandleFunc("/apps/refresh", h.handleAppsRefresh)
	mux.HandleFunc("/apps/flush", h.handleAppFlush)
	mux.HandleFunc("/apps/", h.handleAppDetails)
	mux.HandleFunc("/api/storage/render", h.handleRender)
}

// CatalogKeys resolves sprite keys from the manifests in catalog
func CatalogKeys(catalog AppCatalog) KeyResolver {
	return func(appID string) (string, bool) {
		app, ok := catalog.GetAppRegistry().GetApp(appID)
		if !ok {
			return "", false
		}
		return app.SpriteKey(), true
	}
}

// handleApps handles GET /apps - returns list of all apps
func (h *AppHandler) handleApps(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	apps := h.catalog.GetAppRegistry().GetAppsList()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(apps); err != nil {
		h.logger.Error("Failed to encode apps response", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Debug("Served apps list", zap.Int("count", len(apps)))
}

// handleAppsRefresh handles POST /apps/refresh - reloads the app registry
func (h *AppHandler) handleAppsRefresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	h.logger.Info("Refreshing app registry...")

	if err := h.catalog.RefreshAppRegistry(); err != nil {
		h.logger.Error("Failed to refresh app registry", zap.Error(err))
		http.Error(w, "Failed to refresh apps", http.StatusInternalServerError)
		return
	}

	apps := h.catalog.GetAppRegistry().GetAppsList()

	w.Header().Set("Content-Type", "application/json")
	response := map[string]interface{}{
		"status":    "success",
		"message":   "App registry refreshed successfully",
		"app_count": len(apps),
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode refresh response", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("App registry refreshed successfully", zap.Int("app_count", len(apps)))
}

// handleAppFlush handles POST /apps/flush?app= - drops an applet's runtime cache
func (h *AppHandler) handleAppFlush(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	appID := r.URL.Query().Get("app")
	if appID == "" {
		http.Error(w, "Missing app parameter", http.StatusBadRequest)
		return
	}

	n, err := h.catalog.FlushCache(r.Context(), appID)
	if err != nil {
		switch {
		case errors.Is(err, pixlet.ErrAppNotFound):
			http.Error(w, "App not found", http.StatusNotFound)
		case errors.Is(err, pixlet.ErrInvalidAppID):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, pixlet.ErrNoSharedCache):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("Failed to flush applet cache", zap.String("app_id", appID), zap.Error(err))
			http.Error(w, "Failed to flush cache: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	response := map[string]interface{}{
		"status":  "success",
		"app_id":  appID,
		"flushed": n,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode flush response", zap.Error(err))
	}
}

// handleAppDetails handles GET /apps/{id}
func (h *AppHandler) handleAppDetails(w http.ResponseWriter, r *http.Request) {
	appID := strings.TrimPrefix(r.URL.Path, "/apps/")
	if appID == "" {
		http.Error(w, "App ID required", http.StatusBadRequest)
		return
	}
	if strings.Contains(appID, "/") {
		http.Error(w, "Endpoint not found", http.StatusNotFound)
		return
	}
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	app, exists := h.catalog.GetAppRegistry().GetApp(appID)
	if !exists {
		http.Error(w, "App not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(app); err != nil {
		h.logger.Error("Failed to encode app response", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Debug("Served app details", zap.String("app_id", appID))
}

// handleRender handles POST /api/storage/render?app=&key= - bakes an applet
// into a sprite. An optional JSON object body overrides the manifest params.
func (h *AppHandler) handleRender(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	query := r.URL.Query()
	request := &models.RenderRequest{
		Type:  RenderRequestType,
		AppID: query.Get("app"),
		Key:   query.Get("key"),
	}
	if request.AppID == "" {
		http.Error(w, "Missing app parameter", http.StatusBadRequest)
		return
	}
	if request.Key != "" {
		if err := store.ValidateKey(request.Key); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &request.Params); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
	}

	result, err := h.events.Handle(r.Context(), request)
	if err != nil {
		switch {
		case errors.Is(err, pixlet.ErrAppNotFound):
			http.Error(w, "App not found", http.StatusNotFound)
		case errors.Is(err, pixlet.ErrInvalidAppID):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, "Failed to render app: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.Error("Failed to encode render response", zap.Error(err))
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/koios/matrx-display/internal/status"
	"github.com/koios/matrx-display/internal/store"
	"github.com/koios/matrx-display/pkg/models"
	"go.uber.org/zap"
)

// maxBodySize bounds configuration and sprite uploads
const maxBodySize = 4 << 20

const banner = "This is the matrx display. Please make API requests to /api/.."

// Storage is the subset of the store client the API needs
type Storage interface {
	Store(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Format(ctx context.Context) error
}

// Snapshotter renders the last painted frame as PNG
type Snapshotter interface {
	WritePNG(w io.Writer) error
}

// DisplayHandler serves the device control API
type DisplayHandler struct {
	installer *SceneInstaller
	storage   Storage
	status    *status.Status
	snapshot  Snapshotter
	logger    *zap.Logger
}

// NewDisplayHandler creates the control API. snapshot may be nil.
func NewDisplayHandler(installer *SceneInstaller, storage Storage, st *status.Status, snapshot Snapshotter, logger *zap.Logger) *DisplayHandler {
	return &DisplayHandler{
		installer: installer,
		storage:   storage,
		status:    st,
		snapshot:  snapshot,
		logger:    logger,
	}
}

// RegisterRoutes registers the control routes
func (h *DisplayHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", h.handleRoot)
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/snapshot", h.handleSnapshot)
	mux.HandleFunc("/api/state", h.handleState)
	mux.HandleFunc("/api/settings", h.handleSettings)
	mux.HandleFunc("/api/config", h.handleConfig)
	mux.HandleFunc("/api/storage/upload", h.handleUpload)
	mux.HandleFunc("/api/storage/exists", h.handleExists)
	mux.HandleFunc("/api/storage/delete", h.handleDelete)
	mux.HandleFunc("/api/storage/format", h.handleFormat)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeText(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	io.WriteString(w, msg)
}

// keyParam returns the validated key query parameter or writes a 400
func keyParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "Missing key parameter", http.StatusBadRequest)
		return "", false
	}
	if err := store.ValidateKey(key); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return key, true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Failed to read request body: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return data, true
}

func (h *DisplayHandler) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeText(w, http.StatusOK, banner)
}

func (h *DisplayHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"service":   "matrx-display",
		"system_up": h.status.SystemUp(),
	})
}

// handleStatus handles GET /api/status
func (h *DisplayHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.status.Snapshot()); err != nil {
		h.logger.Error("Failed to encode status response", zap.Error(err))
	}
}

// handleSnapshot handles GET /api/snapshot
func (h *DisplayHandler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if h.snapshot == nil {
		http.Error(w, "Snapshots are not supported by this panel", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := h.snapshot.WritePNG(w); err != nil {
		h.logger.Warn("Snapshot failed", zap.Error(err))
		http.Error(w, "Failed to take snapshot: "+err.Error(), http.StatusNotFound)
	}
}

// handleState handles POST /api/state?on=bool
func (h *DisplayHandler) handleState(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	on, err := strconv.ParseBool(r.URL.Query().Get("on"))
	if err != nil {
		http.Error(w, "Invalid on parameter", http.StatusBadRequest)
		return
	}

	h.status.SetPanelOn(on)
	h.logger.Info("Panel state updated", zap.Bool("on", on))
	writeText(w, http.StatusOK, "State updated")
}

// handleSettings handles POST /api/settings?brightness=0..255
func (h *DisplayHandler) handleSettings(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	brightness, err := strconv.ParseUint(r.URL.Query().Get("brightness"), 10, 8)
	if err != nil {
		http.Error(w, "Invalid brightness parameter", http.StatusBadRequest)
		return
	}

	h.status.SetBrightness(uint8(brightness))
	h.logger.Info("Panel settings updated", zap.Uint64("brightness", brightness))
	writeText(w, http.StatusOK, "Settings updated")
}

// handleConfig handles POST /api/config with a CBOR configuration body
func (h *DisplayHandler) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	data, ok := readBody(w, r)
	if !ok {
		return
	}

	if err := h.installer.InstallPayload(data); err != nil {
		h.logger.Error("Rejected configuration", zap.Error(err))
		http.Error(w, "Invalid configuration: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeText(w, http.StatusOK, "Config updated")
}

// handleUpload handles POST /api/storage/upload?key= with a CBOR resource body
func (h *DisplayHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	data, ok := readBody(w, r)
	if !ok {
		return
	}

	if _, err := models.DecodeResource(data); err != nil {
		h.logger.Error("Rejected sprite upload", zap.String("key", key), zap.Error(err))
		http.Error(w, "Failed to decode resource: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.storage.Store(r.Context(), key, data); err != nil {
		http.Error(w, fmt.Sprintf("Failed to store item: %v", err), http.StatusInternalServerError)
		return
	}

	h.logger.Info("Sprite stored", zap.String("key", key), zap.Int("bytes", len(data)))
	writeText(w, http.StatusOK, "Item stored")
}

// handleExists handles POST /api/storage/exists?key=
func (h *DisplayHandler) handleExists(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	key, ok := keyParam(w, r)
	if !ok {
		return
	}

	exists, err := h.storage.Exists(r.Context(), key)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to check if item exists: %v", err), http.StatusInternalServerError)
		return
	}
	if exists {
		writeText(w, http.StatusOK, "Item exists")
		return
	}
	writeText(w, http.StatusOK, "Item does not exist")
}

// handleDelete handles POST /api/storage/delete?key=
func (h *DisplayHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	key, ok := keyParam(w, r)
	if !ok {
		return
	}

	if err := h.storage.Delete(r.Context(), key); err != nil {
		http.Error(w, fmt.Sprintf("Failed to delete item: %v", err), http.StatusInternalServerError)
		return
	}

	h.logger.Info("Sprite deleted", zap.String("key", key))
	writeText(w, http.StatusOK, "Item was deleted")
}

// handleFormat handles POST /api/storage/format. The scene is cleared before
// the erase.
func (h *DisplayHandler) handleFormat(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	h.installer.Clear()
	if err := h.storage.Format(r.Context()); err != nil {
		http.Error(w, fmt.Sprintf("Failed to format flash: %v", err), http.StatusInternalServerError)
		return
	}

	h.logger.Warn("Storage formatted")
	writeText(w, http.StatusOK, "Flash formatted and config cleared")
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harukit/mictap/internal/artifact"
	"github.com/harukit/mictap/internal/capture"
	"github.com/harukit/mictap/internal/config"
	"github.com/harukit/mictap/internal/session"
)

// Handler manages the session control API
type Handler struct {
	config  *config.Config
	session *session.Session
	store   *artifact.Store

	// devices lists input devices; injectable so tests need no audio stack
	devices func() ([]capture.Device, error)

	// onSettingsChanged lets the app re-apply hotkey and device settings
	onSettingsChanged func() error
}

// New creates a new API handler
func New(cfg *config.Config, sess *session.Session, store *artifact.Store,
	devices func() ([]capture.Device, error), onSettingsChanged func() error) *Handler {
	return &Handler{
		config:            cfg,
		session:           sess,
		store:             store,
		devices:           devices,
		onSettingsChanged: onSettingsChanged,
	}
}

// RegisterRoutes registers all API routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/session", h.handleSession)
	mux.HandleFunc("/api/session/start", h.handleStart)
	mux.HandleFunc("/api/session/pause", h.handlePause)
	mux.HandleFunc("/api/session/resume", h.handleResume)
	mux.HandleFunc("/api/session/stop", h.handleStop)
	mux.HandleFunc("/api/session/export", h.handleExport)
	mux.HandleFunc("/api/devices", h.handleDevices)
	mux.HandleFunc("/api/settings", h.handleSettings)
	mux.HandleFunc("/artifacts/", h.handleArtifact)
}

// artifactInfo is the JSON shape of an artifact handle
type artifactInfo struct {
	ID         string    `json:"id"`
	Locator    string    `json:"locator"`
	MediaType  string    `json:"media_type"`
	Size       int       `json:"size"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

func toArtifactInfo(a *artifact.Artifact) *artifactInfo {
	if a == nil {
		return nil
	}
	return &artifactInfo{
		ID:         a.ID.String(),
		Locator:    a.Locator(),
		MediaType:  a.MediaType,
		Size:       a.Size(),
		DurationMS: a.Duration().Milliseconds(),
		CreatedAt:  a.CreatedAt,
	}
}

// handleSession handles GET /api/session
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, map[string]interface{}{
		"state":       h.session.State().String(),
		"chunk_count": h.session.ChunkCount(),
		"artifact":    toArtifactInfo(h.session.Artifact()),
	})
}

// handleStart handles POST /api/session/start
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.session.Start(); err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, map[string]string{"state": h.session.State().String()})
}

// handlePause handles POST /api/session/pause
func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.session.Pause(); err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, map[string]string{"state": h.session.State().String()})
}

// handleResume handles POST /api/session/resume
func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.session.Resume(); err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, map[string]string{"state": h.session.State().String()})
}

// handleStop handles POST /api/session/stop
func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := h.session.Stop()
	if errors.Is(err, session.ErrEmptyCapture) {
		// The session is Stopped; there is just nothing to play.
		writeJSON(w, map[string]interface{}{
			"state": h.session.State().String(),
			"empty": true,
		})
		return
	}
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, map[string]interface{}{
		"state":    h.session.State().String(),
		"artifact": toArtifactInfo(h.session.Artifact()),
	})
}

// handleExport handles POST /api/session/export
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request struct {
		Name string `json:"name"`
	}
	if r.Body != nil {
		// An empty body means "use the default name"
		json.NewDecoder(r.Body).Decode(&request)
	}

	path, err := h.session.Export(request.Name)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, map[string]string{"path": path})
}

// handleDevices handles GET /api/devices
func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	devices, err := h.devices()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list devices: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{"devices": devices})
}

// handleSettings handles GET and PUT /api/settings
func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		// Snapshot under the config's lock; a concurrent Update must not
		// race the marshal.
		writeJSON(w, h.config.Clone())
	case http.MethodPut:
		h.putSettings(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// putSettings updates and persists the configuration
func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.config.Update(updates); err != nil {
		http.Error(w, fmt.Sprintf("Failed to update config: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.config.Save(config.GetConfigPath()); err != nil {
		http.Error(w, fmt.Sprintf("Failed to save config: %v", err), http.StatusInternalServerError)
		return
	}

	if h.onSettingsChanged != nil {
		if err := h.onSettingsChanged(); err != nil {
			http.Error(w, fmt.Sprintf("Settings saved but not applied: %v", err), http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, map[string]string{"status": "success"})
}

// handleArtifact handles GET and DELETE /artifacts/{id}
func (h *Handler) handleArtifact(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/artifacts/")
	id, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "Invalid artifact ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		a, ok := h.store.Get(id)
		if !ok {
			http.Error(w, "Artifact not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", a.MediaType)
		w.Header().Set("Content-Length", fmt.Sprintf("%d", a.Size()))
		w.Write(a.Data)
	case http.MethodDelete:
		if !h.store.Release(id) {
			http.Error(w, "Artifact not found", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]string{"status": "released"})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// writeSessionError maps session and capture errors onto HTTP status codes
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, session.ErrNoArtifact):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, capture.ErrPermissionDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, capture.ErrDeviceUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// Package api provides the HTTP health and introspection sidecar.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ashmarin/filebutler/internal/session"
	"github.com/ashmarin/filebutler/internal/store"
)

// Handler serves health and introspection endpoints.
type Handler struct {
	repo     store.Repository
	sessions *session.Store
}

// NewHandler creates a new Handler.
func NewHandler(repo store.Repository, sessions *session.Store) *Handler {
	return &Handler{repo: repo, sessions: sessions}
}

// RegisterRoutes mounts the sidecar endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/transfers/recent", h.RecentTransfers)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Health reports process liveness, DB connectivity, and active session count.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	db := "ok"
	status := http.StatusOK
	if err := h.repo.Ping(r.Context()); err != nil {
		db = "error"
		status = http.StatusServiceUnavailable
	}
	JSON(w, status, map[string]interface{}{
		"status":          "ok",
		"db":              db,
		"active_sessions": h.sessions.Len(),
	})
}

// RecentTransfers returns the latest audit-log rows.
func (h *Handler) RecentTransfers(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	recs, err := h.repo.RecentTransfers(r.Context(), limit)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load transfers")
		return
	}
	JSON(w, http.StatusOK, recs)
}

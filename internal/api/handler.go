// Package api provides HTTP handlers for the dealdesk REST API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/dealdesk/internal/continuity"
	"github.com/ashureev/dealdesk/internal/domain"
	"github.com/ashureev/dealdesk/internal/overlay"
	"github.com/ashureev/dealdesk/internal/store"
)

// SessionTracker reads persisted continuity state.
type SessionTracker interface {
	Load(ctx context.Context, userID string) (continuity.Snapshot, error)
	Peek(ctx context.Context, userID string) (continuity.Result, error)
}

// UserStore reads and writes user records.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	UpsertUser(ctx context.Context, user *domain.User) error
}

// Handler provides common handler utilities.
type Handler struct {
	registry *overlay.Registry
	sessions SessionTracker
	items    store.Items
	users    UserStore
	logger   *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(registry *overlay.Registry, sessions SessionTracker, items store.Items, users UserStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: registry,
		sessions: sessions,
		items:    items,
		users:    users,
		logger:   logger,
	}
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

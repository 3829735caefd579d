// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/dealdesk/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// KV is the per-user key-value session store.
type KV interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, userID, key string) (string, bool, error)

	// Set writes value for key, replacing any previous value.
	Set(ctx context.Context, userID, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, userID, key string) error
}

// Items is the work-item source the review loops read from.
type Items interface {
	// Properties returns the deal list in review order.
	Properties(ctx context.Context) ([]domain.Property, error)

	// Agents returns the priority outreach list in review order.
	Agents(ctx context.Context) ([]domain.Agent, error)

	// LoadFields returns the saved form edits for one list, keyed by item id.
	LoadFields(ctx context.Context, userID string, kind domain.ItemKind) (map[string]domain.Fields, error)

	// SaveFields replaces the saved form edits for one item.
	SaveFields(ctx context.Context, userID string, kind domain.ItemKind, itemID string, fields domain.Fields) error
}

// Repository is the full SQLite-backed persistence surface.
type Repository interface {
	KV
	Items

	// GetUser retrieves a user by ID. It returns ErrNotFound if absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// SeedItems replaces both work-item lists.
	SeedItems(ctx context.Context, properties []domain.Property, agents []domain.Agent) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

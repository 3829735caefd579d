package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/dealdesk/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS session_kv (
		user_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, key)
	);

	CREATE TABLE IF NOT EXISTS properties (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		address TEXT NOT NULL,
		price INTEGER NOT NULL DEFAULT 0,
		arv INTEGER NOT NULL DEFAULT 0,
		flags_json TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		brokerage TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		flags_json TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS item_fields (
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		item_id TEXT NOT NULL,
		fields_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, kind, item_id)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Get implements KV.
func (s *SQLiteStore) Get(ctx context.Context, userID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM session_kv WHERE user_id = ? AND key = ?`, userID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get session key: %w", err)
	}
	return value, true, nil
}

// Set implements KV.
func (s *SQLiteStore) Set(ctx context.Context, userID, key, value string) error {
	query := `
	INSERT INTO session_kv (user_id, key, value, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(user_id, key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	return retryBusy(ctx, "set session key", func() error {
		_, err := s.db.ExecContext(ctx, query, userID, key, value, time.Now().Unix())
		return err
	})
}

// Delete implements KV.
func (s *SQLiteStore) Delete(ctx context.Context, userID, key string) error {
	return retryBusy(ctx, "delete session key", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM session_kv WHERE user_id = ? AND key = ?`, userID, key)
		return err
	})
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, display_name, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	var user domain.User
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID, &user.DisplayName, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, display_name, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		display_name = excluded.display_name,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	return retryBusy(ctx, "upsert user", func() error {
		_, err := s.db.ExecContext(ctx, query,
			user.UserID, user.DisplayName, user.LastSeenAt.Unix(),
			user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
		)
		return err
	})
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}
	return nil
}

// SeedItems replaces both work-item lists in one transaction. List order
// becomes review order.
func (s *SQLiteStore) SeedItems(ctx context.Context, properties []domain.Property, agents []domain.Agent) error {
	return retryBusy(ctx, "seed items", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM properties`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM agents`); err != nil {
			return err
		}

		for i, p := range properties {
			flags, err := json.Marshal(nonNil(p.Flags))
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO properties (id, position, address, price, arv, flags_json, status) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				p.ID, i, p.Address, p.Price, p.ARV, string(flags), p.Status,
			); err != nil {
				return fmt.Errorf("insert property %s: %w", p.ID, err)
			}
		}
		for i, a := range agents {
			flags, err := json.Marshal(nonNil(a.Flags))
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO agents (id, position, name, brokerage, phone, flags_json, status) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				a.ID, i, a.Name, a.Brokerage, a.Phone, string(flags), a.Status,
			); err != nil {
				return fmt.Errorf("insert agent %s: %w", a.ID, err)
			}
		}
		return tx.Commit()
	})
}

// Properties implements Items.
func (s *SQLiteStore) Properties(ctx context.Context) ([]domain.Property, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, address, price, arv, flags_json, status FROM properties ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query properties: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close property rows", "error", closeErr)
		}
	}()

	out := []domain.Property{}
	for rows.Next() {
		var p domain.Property
		var flags string
		if err := rows.Scan(&p.ID, &p.Address, &p.Price, &p.ARV, &flags, &p.Status); err != nil {
			return nil, fmt.Errorf("scan property row: %w", err)
		}
		if err := json.Unmarshal([]byte(flags), &p.Flags); err != nil {
			return nil, fmt.Errorf("decode flags for %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate properties: %w", err)
	}
	return out, nil
}

// Agents implements Items.
func (s *SQLiteStore) Agents(ctx context.Context) ([]domain.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, brokerage, phone, flags_json, status FROM agents ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close agent rows", "error", closeErr)
		}
	}()

	out := []domain.Agent{}
	for rows.Next() {
		var a domain.Agent
		var flags string
		if err := rows.Scan(&a.ID, &a.Name, &a.Brokerage, &a.Phone, &flags, &a.Status); err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		if err := json.Unmarshal([]byte(flags), &a.Flags); err != nil {
			return nil, fmt.Errorf("decode flags for %s: %w", a.ID, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return out, nil
}

// LoadFields implements Items.
func (s *SQLiteStore) LoadFields(ctx context.Context, userID string, kind domain.ItemKind) (map[string]domain.Fields, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, fields_json FROM item_fields WHERE user_id = ? AND kind = ?`, userID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query item fields: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close item field rows", "error", closeErr)
		}
	}()

	out := make(map[string]domain.Fields)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan item fields: %w", err)
		}
		var f domain.Fields
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			return nil, fmt.Errorf("decode fields for %s: %w", id, err)
		}
		out[id] = f
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item fields: %w", err)
	}
	return out, nil
}

// SaveFields implements Items.
func (s *SQLiteStore) SaveFields(ctx context.Context, userID string, kind domain.ItemKind, itemID string, fields domain.Fields) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	query := `
	INSERT INTO item_fields (user_id, kind, item_id, fields_json, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id, kind, item_id) DO UPDATE SET
		fields_json = excluded.fields_json,
		updated_at = excluded.updated_at`

	return retryBusy(ctx, "save item fields", func() error {
		_, err := s.db.ExecContext(ctx, query, userID, string(kind), itemID, string(raw), time.Now().Unix())
		return err
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

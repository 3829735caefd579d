//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/dealdesk/internal/continuity"
	"github.com/ashureev/dealdesk/internal/domain"
	"github.com/ashureev/dealdesk/internal/identity"
	"github.com/ashureev/dealdesk/internal/overlay"
	"github.com/ashureev/dealdesk/internal/store"
	"github.com/ashureev/dealdesk/internal/stream"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusBadRequest, "nope")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"nope"}`, w.Body.String())
}

type testEnv struct {
	router   chi.Router
	store    *store.SQLiteStore
	registry *overlay.Registry
	clock    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, repo.SeedItems(ctx,
		[]domain.Property{
			{ID: "p-1", Address: "12 Oak St", Price: 100000, ARV: 180000},
			{ID: "p-2", Address: "98 Elm Ave", Price: 150000, ARV: 240000},
		},
		[]domain.Agent{{ID: "a-1", Name: "Jordan Lee", Brokerage: "Harbor Realty"}},
	))

	env := &testEnv{
		store: repo,
		clock: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	tracker := continuity.NewTracker(repo, time.UTC, continuity.WithClock(func() time.Time { return env.clock }))
	env.registry = overlay.NewRegistry(overlay.Deps{
		Tracker:    tracker,
		Items:      repo,
		Users:      repo,
		Logger:     logger,
		StreamOpts: []stream.Option{stream.WithDelay(func() time.Duration { return time.Millisecond })},
	})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			user := req.Header.Get("X-Test-User")
			ctx := identity.WithIdentity(req.Context(), user, req.Header.Get("X-Test-Name"), "")
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	NewHealthHandler(WithCheck("database", repo), WithEngineCount(env.registry.Len)).RegisterHealth(r)
	NewDialogueHandler(NewHandler(env.registry, tracker, repo, repo, logger)).RegisterRoutes(r)
	env.router = r

	t.Cleanup(func() {
		env.registry.Close()
		_ = repo.Close()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if user != "" {
		req.Header.Set("X-Test-User", user)
		req.Header.Set("X-Test-Name", "Dana Cruz")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[map[string]any](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, map[string]any{"api": "ok", "database": "ok"}, body["checks"])
	assert.EqualValues(t, 0, body["engines"])
}

func TestHealthDegraded(t *testing.T) {
	h := NewHealthHandler(WithCheck("session_store", failingPinger{}), WithTimeout(time.Second))
	w := httptest.NewRecorder()

	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "unreachable", body["checks"].(map[string]any)["session_store"])
}

func TestEndpointsRequireIdentity(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/me", "/api/session", "/api/dialogue", "/api/items/properties"} {
		w := env.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestUpdateAndGetMe(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/me", "u-1", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "unknown user")

	w = env.do(t, http.MethodPut, "/api/me", "u-1", `{"display_name":"  Dana Cruz "}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/me", "u-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[map[string]string](t, w)
	assert.Equal(t, "Dana Cruz", me["display_name"])
	assert.Equal(t, "Dana", me["first_name"])

	w = env.do(t, http.MethodPut, "/api/me", "u-1", `{"display_name":"`+strings.Repeat("x", 81)+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/me", "u-1", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSessionPreviewDoesNotRecord(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodGet, "/api/session", "u-1", "")
		require.Equal(t, http.StatusOK, w.Code)

		got := decode[map[string]any](t, w)
		assert.Equal(t, string(domain.ContinuityFirst), got["state"])
		assert.Equal(t, string(domain.Morning), got["time_of_day"])
		assert.EqualValues(t, 1, got["initial_step"])
		assert.NotContains(t, got, "last_session_at")
		assert.Contains(t, got["greeting"], "Good morning, Dana!")
	}
}

func TestGetSessionAfterVisit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tracker := continuity.NewTracker(env.store, time.UTC, continuity.WithClock(func() time.Time { return env.clock }))
	_, err := tracker.Open(ctx, "u-1")
	require.NoError(t, err)

	env.clock = env.clock.Add(10 * time.Minute)
	w := env.do(t, http.MethodGet, "/api/session", "u-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[map[string]any](t, w)
	assert.Equal(t, string(domain.ContinuityContinuing), got["state"])
	assert.Equal(t, "2026-03-02", got["morning_checkin_date"])
	assert.NotEmpty(t, got["last_session_at"])
}

func TestGetDialogueCreatesEngine(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/dialogue", "u-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[map[string]any](t, w)
	assert.Equal(t, "u-1", got["user_id"])
	assert.Equal(t, string(domain.PhaseCheckin), got["phase"])
	assert.Equal(t, false, got["open"])
	assert.Equal(t, 1, env.registry.Len())
}

func TestEnterPhase(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/dialogue/phase", "u-1", `{"phase":"warp"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, env.registry.Len(), "invalid phase must not start an engine")

	w = env.do(t, http.MethodPost, "/api/dialogue/phase", "u-1", `{"phase":"dealreview"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "dealreview", decode[map[string]string](t, w)["phase"])

	require.Eventually(t, func() bool {
		w := env.do(t, http.MethodGet, "/api/dialogue", "u-1", "")
		var st map[string]any
		return json.Unmarshal(w.Body.Bytes(), &st) == nil && st["phase"] == string(domain.PhaseDealReview)
	}, 5*time.Second, 10*time.Millisecond)

	w = env.do(t, http.MethodGet, "/api/dialogue/summary", "u-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	sum := decode[map[string]any](t, w)
	assert.EqualValues(t, 2, sum["deals"].(map[string]any)["total"])
}

func TestGetItemsIncludesSavedFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.SaveFields(ctx, "u-1", domain.KindProperty, "p-2",
		domain.Fields{"offer_status": "sent"}))

	w := env.do(t, http.MethodGet, "/api/items/properties", "u-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	props := decode[[]map[string]any](t, w)
	require.Len(t, props, 2)
	assert.Equal(t, "12 Oak St", props[0]["address"])
	assert.Empty(t, props[0]["fields"])
	assert.Equal(t, map[string]any{"offer_status": "sent"}, props[1]["fields"])

	w = env.do(t, http.MethodGet, "/api/items/properties", "u-2", "")
	props = decode[[]map[string]any](t, w)
	assert.Empty(t, props[1]["fields"], "edits are per user")

	w = env.do(t, http.MethodGet, "/api/items/agents", "u-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	agents := decode[[]map[string]any](t, w)
	require.Len(t, agents, 1)
	assert.Equal(t, "Jordan Lee", agents[0]["name"])
}

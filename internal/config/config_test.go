package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "SESSION_STORE", "AI_BACKEND", "TIMEZONE", "ENGINE_IDLE_TTL", "AI_RATE_WINDOW"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoreSQLite, cfg.SessionStore)
	assert.Equal(t, BackendNone, cfg.AI.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Sweep.IdleTTL)
	assert.Equal(t, time.Minute, cfg.AI.RateWindow)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_STORE", "Redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("AI_BACKEND", "http")
	t.Setenv("AI_ENDPOINT_URL", "http://localhost:9000/chat")
	t.Setenv("AI_TIMEOUT", "3s")
	t.Setenv("ENGINE_IDLE_TTL", "bogus")
	t.Setenv("TIMEZONE", "America/Chicago")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, StoreRedis, cfg.SessionStore)
	assert.Equal(t, 3*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 2*time.Hour, cfg.Sweep.IdleTTL, "unparseable duration falls back")

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", loc.String())
}

func validConfig() *Config {
	return &Config{
		Port:         "8080",
		DBPath:       "x.db",
		Timezone:     "UTC",
		SessionStore: StoreSQLite,
		AI: AIConfig{
			Backend: BackendNone, Timeout: time.Second, RateLimit: 1, RateWindow: time.Second,
		},
		Sweep: SweepConfig{IdleTTL: time.Hour, Schedule: "@every 1m"},
		ConversationLog: ConversationLogConfig{
			Dir: "logs", GlobalPath: "logs/all.ndjson", QueueSize: 10,
		},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"empty port", func(c *Config) { c.Port = "" }, false},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, false},
		{"redis without url", func(c *Config) { c.SessionStore = StoreRedis }, false},
		{"unknown store", func(c *Config) { c.SessionStore = "etcd" }, false},
		{"http without url", func(c *Config) { c.AI.Backend = BackendHTTP }, false},
		{"grpc without addr", func(c *Config) { c.AI.Backend = BackendGRPC }, false},
		{"openai without key", func(c *Config) { c.AI.Backend = BackendOpenAI }, false},
		{"openai with key", func(c *Config) { c.AI.Backend = BackendOpenAI; c.AI.OpenAIKey = "sk" }, true},
		{"zero rate limit", func(c *Config) { c.AI.RateLimit = 0 }, false},
		{"empty schedule", func(c *Config) { c.Sweep.Schedule = "" }, false},
		{"zero queue", func(c *Config) { c.ConversationLog.QueueSize = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	t.Parallel()

	assert.True(t, (&Config{}).IsDevelopment())
	assert.True(t, (&Config{FrontendURL: "http://localhost:5173"}).IsDevelopment())
	assert.False(t, (&Config{FrontendURL: "https://dealdesk.example.com"}).IsDevelopment())
}

func TestLoadScript(t *testing.T) {
	t.Parallel()

	s, err := LoadScript("")
	require.NoError(t, err)
	assert.Equal(t, DefaultScript(), s)

	s, err = LoadScript(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultScript().Workload, s.Workload)

	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
manager: Morgan
workload:
  calls: 40
  offers: 8
  campaigns: 3
properties:
  - id: p1
    address: 5 Pine St
    price: 120000
    flags: [vacant, motivated]
agents:
  - id: a1
    name: Sam Ortiz
`), 0644))

	s, err = LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, "Morgan", s.Manager)
	assert.Equal(t, 40, s.Workload.Calls)
	require.Len(t, s.Properties, 1)
	assert.Equal(t, []string{"vacant", "motivated"}, s.Properties[0].Flags)
	require.Len(t, s.Agents, 1)
	assert.Equal(t, "Sam Ortiz", s.Agents[0].Name)
}

func TestLoadScriptRejectsDuplicates(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
properties:
  - id: p1
    address: a
  - id: p1
    address: b
`), 0644))

	_, err := LoadScript(path)
	assert.Error(t, err)
}

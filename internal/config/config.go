// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Session store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// AI backends.
const (
	BackendHTTP   = "http"
	BackendGRPC   = "grpc"
	BackendOpenAI = "openai"
	BackendNone   = "none"
)

// Config holds all application configuration.
type Config struct {
	Port         string
	FrontendURL  string
	DBPath       string
	LogLevel     string
	Timezone     string
	SessionStore string
	RedisURL     string
	ScriptPath   string

	AI    AIConfig
	Sweep SweepConfig

	ConversationLog ConversationLogConfig
}

// AIConfig selects and tunes the free-form response backend.
type AIConfig struct {
	Backend       string
	EndpointURL   string
	GRPCAddr      string
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	Timeout       time.Duration
	RateLimit     int
	RateWindow    time.Duration
}

// SweepConfig controls idle engine eviction.
type SweepConfig struct {
	IdleTTL  time.Duration
	Schedule string
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		FrontendURL:  getEnv("FRONTEND_URL", ""),
		DBPath:       getEnv("DB_PATH", "./data/dealdesk.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Timezone:     getEnv("TIMEZONE", "Local"),
		SessionStore: strings.ToLower(getEnv("SESSION_STORE", StoreSQLite)),
		RedisURL:     getEnv("REDIS_URL", ""),
		ScriptPath:   getEnv("SCRIPT_PATH", ""),
		AI: AIConfig{
			Backend:       strings.ToLower(getEnv("AI_BACKEND", BackendNone)),
			EndpointURL:   getEnv("AI_ENDPOINT_URL", ""),
			GRPCAddr:      getEnv("AI_GRPC_ADDR", ""),
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
			OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Timeout:       getEnvDuration("AI_TIMEOUT", 20*time.Second),
			RateLimit:     getEnvInt("AI_RATE_LIMIT", 10),
			RateWindow:    getEnvDuration("AI_RATE_WINDOW", time.Minute),
		},
		Sweep: SweepConfig{
			IdleTTL:  getEnvDuration("ENGINE_IDLE_TTL", 2*time.Hour),
			Schedule: getEnv("SWEEP_SCHEDULE", "@every 5m"),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}

	switch c.SessionStore {
	case StoreSQLite, StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_STORE=redis")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be one of sqlite, redis, memory; got %q", c.SessionStore)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}

	switch c.AI.Backend {
	case BackendNone:
	case BackendHTTP:
		if c.AI.EndpointURL == "" {
			return fmt.Errorf("AI_ENDPOINT_URL is required when AI_BACKEND=http")
		}
	case BackendGRPC:
		if c.AI.GRPCAddr == "" {
			return fmt.Errorf("AI_GRPC_ADDR is required when AI_BACKEND=grpc")
		}
	case BackendOpenAI:
		if c.AI.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when AI_BACKEND=openai")
		}
	default:
		return fmt.Errorf("AI_BACKEND must be one of http, grpc, openai, none; got %q", c.AI.Backend)
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("AI_TIMEOUT must be > 0")
	}
	if c.AI.RateLimit <= 0 || c.AI.RateWindow <= 0 {
		return fmt.Errorf("AI_RATE_LIMIT and AI_RATE_WINDOW must be > 0")
	}

	if c.Sweep.IdleTTL <= 0 {
		return fmt.Errorf("ENGINE_IDLE_TTL must be > 0")
	}
	if c.Sweep.Schedule == "" {
		return fmt.Errorf("SWEEP_SCHEDULE cannot be empty")
	}

	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

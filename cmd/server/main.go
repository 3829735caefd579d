// Dealdesk - daily workflow assistant server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ashureev/dealdesk/internal/agent"
	"github.com/ashureev/dealdesk/internal/api"
	"github.com/ashureev/dealdesk/internal/config"
	"github.com/ashureev/dealdesk/internal/continuity"
	"github.com/ashureev/dealdesk/internal/convlog"
	"github.com/ashureev/dealdesk/internal/identity"
	"github.com/ashureev/dealdesk/internal/middleware"
	"github.com/ashureev/dealdesk/internal/overlay"
	"github.com/ashureev/dealdesk/internal/store"
	"github.com/ashureev/dealdesk/internal/sweeper"
	"github.com/ashureev/dealdesk/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "session_store", cfg.SessionStore)

	loc, err := cfg.Location()
	if err != nil {
		slog.Error("Invalid timezone", "error", err)
		os.Exit(1)
	}

	script, err := config.LoadScript(cfg.ScriptPath)
	if err != nil {
		slog.Error("Failed to load script", "path", cfg.ScriptPath, "error", err)
		os.Exit(1)
	}

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	if err := repo.SeedItems(context.Background(), script.Properties, script.Agents); err != nil {
		slog.Error("Failed to seed work items", "error", err)
		os.Exit(1)
	}
	slog.Info("Work items seeded", "properties", len(script.Properties), "agents", len(script.Agents))

	kv, kvPinger, closeKV, err := openSessionStore(cfg, repo)
	if err != nil {
		slog.Error("Failed to initialize session store", "store", cfg.SessionStore, "error", err)
		os.Exit(1)
	}
	defer closeKV()

	ai, err := agent.New(cfg.AI, logger)
	if err != nil {
		slog.Error("Failed to initialize AI backend", "error", err)
		os.Exit(1)
	}
	defer ai.Close()

	conversationLogger, err := convlog.New(convlog.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	// Initialize services.
	tracker := continuity.NewTracker(kv, loc, continuity.WithLogger(logger))
	hub := overlay.NewHub(logger)
	registry := overlay.NewRegistry(overlay.Deps{
		Hub:     hub,
		Tracker: tracker,
		Items:   repo,
		Users:   repo,
		AI:      ai,
		ConvLog: conversationLogger,
		Script:  script,
		Logger:  logger,
	})
	defer registry.Close()

	sw, err := sweeper.New(registry, cfg.Sweep.IdleTTL, cfg.Sweep.Schedule,
		sweeper.WithLogger(logger),
		sweeper.WithCleanup(hub.CloseUser),
	)
	if err != nil {
		slog.Error("Failed to initialize engine sweeper", "error", err)
		os.Exit(1)
	}

	// Initialize handlers.
	baseHandler := api.NewHandler(registry, tracker, repo, repo, logger)
	dialogueHandler := api.NewDialogueHandler(baseHandler)
	healthHandler := api.NewHealthHandler(
		api.WithCheck("database", repo),
		api.WithCheck("session_store", kvPinger),
		api.WithEngineCount(registry.Len),
	)
	wsHandler := overlay.NewHandler(registry, repo, cfg.FrontendURL, cfg.IsDevelopment(), logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(middleware.ParseOrigins(cfg.FrontendURL)))

	// Public routes.
	healthHandler.RegisterHealth(r)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		dialogueHandler.RegisterRoutes(r)
		r.Get("/ws/overlay", wsHandler.ServeHTTP)
	})

	// Serve embedded overlay page (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Websocket connections are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sw.Start(ctx); err != nil {
		slog.Error("Failed to start engine sweeper", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		sw.Stop(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// openSessionStore returns the continuity KV selected by SESSION_STORE.
func openSessionStore(cfg *config.Config, repo *store.SQLiteStore) (store.KV, api.Pinger, func(), error) {
	switch cfg.SessionStore {
	case config.StoreRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rkv, err := store.NewRedisKV(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return rkv, rkv, func() {
			if err := rkv.Close(); err != nil {
				slog.Error("Failed to close redis session store", "error", err)
			}
		}, nil
	case config.StoreMemory:
		slog.Warn("Using in-memory session store; continuity resets on restart")
		return store.NewMemoryKV(), nil, func() {}, nil
	default:
		return repo, nil, func() {}, nil
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

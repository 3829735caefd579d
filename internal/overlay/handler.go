package overlay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/dealdesk/internal/dialogue"
	"github.com/ashureev/dealdesk/internal/identity"
	"github.com/coder/websocket"
)

// LastSeenUpdater records user activity.
type LastSeenUpdater interface {
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error
}

// Handler serves the overlay websocket.
type Handler struct {
	registry      *Registry
	users         LastSeenUpdater
	allowedOrigin string
	isDev         bool
	logger        *slog.Logger
}

// NewHandler creates a websocket handler. users may be nil.
func NewHandler(registry *Registry, users LastSeenUpdater, allowedOrigin string, isDev bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry:      registry,
		users:         users,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		logger:        logger,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	h.logger.Info("Overlay connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if userID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess, client, err := h.registry.Attach(ctx, userID, sessionID, ws)
	if err != nil {
		h.logger.Error("Failed to start dialogue engine", "error", err, "user_id", userID)
		if err := ws.Write(ctx, websocket.MessageText, errorFrame("engine_unavailable")); err != nil {
			h.logger.Debug("Failed to send engine_unavailable error", "error", err)
		}
		return
	}

	hub := h.registry.Hub()
	defer func() {
		// The overlay counts as closed once the user's last socket is gone.
		if hub.Unregister(userID, sessionID, client) && hub.Count(userID) == 0 {
			sess.Post(dialogue.Close{})
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		if err := client.Pump(ctx); err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Debug("Overlay write loop ended", "error", err, "user_id", userID)
		}
	}()

	h.readLoop(ctx, ws, client, sess, userID)
	cancel()
	wg.Wait()
	h.logger.Info("Overlay session ended", "user_id", userID, "session_id", sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, client *Client, sess *Session, userID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				h.logger.Debug("WebSocket closed", "user_id", userID)
			} else {
				h.logger.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		ev, ping, err := decodeFrame(message)
		switch {
		case err != nil:
			h.logger.Debug("Rejected overlay frame", "error", err, "user_id", userID)
			client.Enqueue(errorFrame(err.Error()))
			continue
		case ping:
			client.Enqueue(pongFrame())
			continue
		}
		sess.Post(ev)

		if h.users != nil {
			go func() {
				updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := h.users.UpdateLastSeen(updateCtx, userID, time.Now()); err != nil {
					h.logger.Warn("Failed to update last seen", "error", err, "user_id", userID)
				}
			}()
		}
	}
}

package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/dealdesk/internal/agent"
	"github.com/ashureev/dealdesk/internal/config"
	"github.com/ashureev/dealdesk/internal/convlog"
	"github.com/ashureev/dealdesk/internal/dialogue"
	"github.com/ashureev/dealdesk/internal/domain"
	"github.com/ashureev/dealdesk/internal/eventloop"
	"github.com/ashureev/dealdesk/internal/store"
	"github.com/ashureev/dealdesk/internal/stream"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const shutdownTimeout = 5 * time.Second

// UserSource looks up display names.
type UserSource interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// Deps wires a Registry.
type Deps struct {
	Hub        *Hub
	Tracker    dialogue.SessionOpener
	Items      store.Items
	Users      UserSource
	AI         agent.Responder
	ConvLog    convlog.Logger
	Script     *config.Script
	Logger     *slog.Logger
	StreamOpts []stream.Option
}

// Session is one user's live engine and the lane it runs on.
type Session struct {
	UserID         string
	ConversationID string
	CreatedAt      time.Time

	lane   *eventloop.Lane
	engine *dialogue.Engine
}

// Post delivers an event to the engine.
func (s *Session) Post(ev dialogue.Event) {
	s.engine.Post(ev)
}

// Snapshot copies the engine state from its lane.
func (s *Session) Snapshot(ctx context.Context) (dialogue.State, error) {
	var st dialogue.State
	err := eventloop.Do(ctx, s.lane, func() { st = s.engine.Snapshot() })
	return st, err
}

// Summary returns the engine's running end-of-day totals.
func (s *Session) Summary(ctx context.Context) (dialogue.Summary, error) {
	var sum dialogue.Summary
	err := eventloop.Do(ctx, s.lane, func() { sum = s.engine.Summary() })
	return sum, err
}

func (s *Session) lastActivity(ctx context.Context) (time.Time, error) {
	var last time.Time
	err := eventloop.Do(ctx, s.lane, func() { last = s.engine.LastActivity() })
	return last, err
}

func (s *Session) shutdown(ctx context.Context) {
	_ = eventloop.Do(ctx, s.lane, s.engine.Shutdown)
	s.lane.Close()
}

// Registry owns the per-user engines.
type Registry struct {
	deps   Deps
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*Session
	group  singleflight.Group
}

// NewRegistry creates an empty registry.
func NewRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Script == nil {
		deps.Script = config.DefaultScript()
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(deps.Logger)
	}
	return &Registry{
		deps:   deps,
		logger: deps.Logger,
		active: make(map[string]*Session),
	}
}

// Hub returns the hub engines emit through.
func (r *Registry) Hub() *Hub { return r.deps.Hub }

// Lookup returns the live session for a user, if any.
func (r *Registry) Lookup(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.active[userID]
	return s, ok
}

// Acquire returns the user's session, creating its engine on first use.
// Concurrent first calls for one user share a single creation.
func (r *Registry) Acquire(ctx context.Context, userID string) (*Session, error) {
	if s, ok := r.Lookup(userID); ok {
		return s, nil
	}
	v, err, _ := r.group.Do(userID, func() (any, error) {
		if s, ok := r.Lookup(userID); ok {
			return s, nil
		}
		s, err := r.create(ctx, userID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.active[userID] = s
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (r *Registry) create(ctx context.Context, userID string) (*Session, error) {
	props, agents, err := r.loadItems(ctx)
	if err != nil {
		return nil, err
	}
	name := r.displayName(ctx, userID)

	lane := eventloop.NewLane(r.logger)
	s := &Session{
		UserID:         userID,
		ConversationID: uuid.NewString(),
		CreatedAt:      lane.Now(),
		lane:           lane,
	}

	deps := dialogue.Deps{
		Loop:       lane,
		Sink:       hubSink{hub: r.deps.Hub, userID: userID, logger: r.logger},
		Sessions:   r.deps.Tracker,
		AI:         r.deps.AI,
		ConvLog:    r.deps.ConvLog,
		Logger:     r.logger,
		StreamOpts: r.deps.StreamOpts,
	}
	if r.deps.Items != nil {
		deps.Fields = r.deps.Items
	}
	s.engine = dialogue.New(dialogue.Config{
		UserID:     userID,
		SessionID:  s.ConversationID,
		UserName:   name,
		Manager:    r.deps.Script.Manager,
		Workload:   r.deps.Script.Workload,
		Properties: props,
		Agents:     agents,
	}, deps)

	r.logger.Info("Dialogue engine created", "user_id", userID, "conversation_id", s.ConversationID,
		"properties", len(props), "agents", len(agents))
	return s, nil
}

func (r *Registry) loadItems(ctx context.Context) ([]domain.Property, []domain.Agent, error) {
	if r.deps.Items == nil {
		return r.deps.Script.Properties, r.deps.Script.Agents, nil
	}
	props, err := r.deps.Items.Properties(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load properties: %w", err)
	}
	agents, err := r.deps.Items.Agents(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load agents: %w", err)
	}
	return props, agents, nil
}

func (r *Registry) displayName(ctx context.Context, userID string) string {
	if r.deps.Users != nil {
		u, err := r.deps.Users.GetUser(ctx, userID)
		switch {
		case err == nil && u.DisplayName != "":
			return u.DisplayName
		case err != nil && !errors.Is(err, store.ErrNotFound):
			r.logger.Warn("Failed to look up display name", "user_id", userID, "error", err)
		}
	}
	return r.deps.Script.UserName
}

// Attach acquires the user's session and registers conn on the hub. A sweep
// that evicts the engine while the socket is being registered is detected
// and a fresh engine is acquired, so the returned session is always live.
func (r *Registry) Attach(ctx context.Context, userID, sessionID string, conn Conn) (*Session, *Client, error) {
	sess, err := r.Acquire(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	client := r.deps.Hub.Register(userID, sessionID, conn)
	sess, err = r.confirm(ctx, userID, sess)
	if err != nil {
		r.deps.Hub.Unregister(userID, sessionID, client)
		return nil, nil, err
	}
	return sess, client, nil
}

// confirm returns the live session for a user who already has a socket
// registered. Sweep never evicts a user with a socket, so at most one
// re-acquire is needed.
func (r *Registry) confirm(ctx context.Context, userID string, sess *Session) (*Session, error) {
	if cur, ok := r.Lookup(userID); ok && cur == sess {
		return sess, nil
	}
	r.logger.Info("Dialogue engine evicted during attach, re-acquiring", "user_id", userID)
	return r.Acquire(ctx, userID)
}

// Evict shuts down a user's engine and forgets it.
func (r *Registry) Evict(ctx context.Context, userID string) bool {
	return r.evict(ctx, userID, false)
}

// evict removes the user's engine. With idleOnly set, the socket count is
// checked under the registry lock so a concurrent Attach either sees the
// eviction or keeps the engine.
func (r *Registry) evict(ctx context.Context, userID string, idleOnly bool) bool {
	r.mu.Lock()
	s, ok := r.active[userID]
	if ok && idleOnly && r.deps.Hub.Count(userID) > 0 {
		ok = false
	}
	if ok {
		delete(r.active, userID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.shutdown(ctx)
	r.logger.Info("Dialogue engine evicted", "user_id", userID, "conversation_id", s.ConversationID)
	return true
}

// Sweep evicts engines with no open sockets that have been idle longer than
// ttl, and returns the evicted user ids.
func (r *Registry) Sweep(ctx context.Context, now time.Time, ttl time.Duration) []string {
	r.mu.Lock()
	candidates := make([]*Session, 0, len(r.active))
	for _, s := range r.active {
		candidates = append(candidates, s)
	}
	r.mu.Unlock()

	var evicted []string
	for _, s := range candidates {
		if r.deps.Hub.Count(s.UserID) > 0 {
			continue
		}
		last, err := s.lastActivity(ctx)
		if err != nil {
			r.logger.Warn("Failed to read engine activity", "user_id", s.UserID, "error", err)
			continue
		}
		if now.Sub(last) <= ttl {
			continue
		}
		if r.evict(ctx, s.UserID, true) {
			evicted = append(evicted, s.UserID)
		}
	}
	return evicted
}

// Len returns the number of live engines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Close shuts every engine down.
func (r *Registry) Close() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, id := range ids {
		r.Evict(ctx, id)
	}
}

// hubSink serializes engine frames onto every socket the user has open.
type hubSink struct {
	hub    *Hub
	userID string
	logger *slog.Logger
}

func (s hubSink) Emit(f dialogue.Frame) {
	data, err := encodeFrame(f)
	if err != nil {
		s.logger.Error("Failed to encode overlay frame", "user_id", s.userID, "type", f.Type, "error", err)
		return
	}
	s.hub.Broadcast(s.userID, data)
}

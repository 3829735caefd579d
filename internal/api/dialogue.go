package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/dealdesk/internal/continuity"
	"github.com/ashureev/dealdesk/internal/dialogue"
	"github.com/ashureev/dealdesk/internal/domain"
	"github.com/ashureev/dealdesk/internal/identity"
	"github.com/ashureev/dealdesk/internal/store"
	"github.com/go-chi/chi/v5"
)

const maxDisplayName = 80

// DialogueHandler serves session, dialogue and work-item endpoints.
type DialogueHandler struct {
	*Handler
}

// NewDialogueHandler wraps base.
func NewDialogueHandler(base *Handler) *DialogueHandler {
	return &DialogueHandler{Handler: base}
}

// RegisterRoutes registers the API routes.
func (h *DialogueHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Put("/me", h.UpdateMe)
		r.Get("/session", h.GetSession)
		r.Get("/dialogue", h.GetDialogue)
		r.Get("/dialogue/summary", h.GetSummary)
		r.Post("/dialogue/phase", h.EnterPhase)
		r.Get("/items/properties", h.GetProperties)
		r.Get("/items/agents", h.GetAgents)
	})
}

// GetMe returns the current user's information.
func (h *DialogueHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusUnauthorized, "user not found")
			return
		}
		h.logger.Error("Failed to load user", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":      user.UserID,
		"display_name": user.DisplayName,
		"first_name":   user.FirstName(),
	})
}

type updateMeRequest struct {
	DisplayName string `json:"display_name"`
}

// UpdateMe sets the display name used in greetings. It takes effect the
// next time the user's engine is created.
func (h *DialogueHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req updateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.DisplayName)
	if len(name) > maxDisplayName {
		Error(w, http.StatusBadRequest, "display_name too long")
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.logger.Error("Failed to load user", "error", err, "user_id", userID)
			Error(w, http.StatusInternalServerError, "failed to load user")
			return
		}
		user = &domain.User{UserID: userID, CreatedAt: time.Now()}
	}
	user.DisplayName = name
	user.UpdatedAt = time.Now()
	if err := h.users.UpsertUser(r.Context(), user); err != nil {
		h.logger.Error("Failed to update user", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":      user.UserID,
		"display_name": user.DisplayName,
	})
}

type sessionResponse struct {
	continuity.Result
	LastSessionAt      *time.Time `json:"last_session_at,omitempty"`
	MorningCheckinDate string     `json:"morning_checkin_date,omitempty"`
	Greeting           string     `json:"greeting"`
}

// GetSession previews what the next overlay open would be classified as,
// without recording a visit.
func (h *DialogueHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	snap, err := h.sessions.Load(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to load session", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	res, err := h.sessions.Peek(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to classify session", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	name := (&domain.User{DisplayName: identity.DisplayNameFromContext(r.Context())}).FirstName()
	JSON(w, http.StatusOK, sessionResponse{
		Result:             res,
		LastSessionAt:      snap.LastSessionAt,
		MorningCheckinDate: snap.MorningCheckinDate,
		Greeting:           continuity.Greeting(res, name),
	})
}

// GetDialogue returns the engine's phase, step, transcript and captured
// side data.
func (h *DialogueHandler) GetDialogue(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sess, err := h.registry.Acquire(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to start dialogue engine", "error", err, "user_id", userID)
		Error(w, http.StatusServiceUnavailable, "engine_unavailable")
		return
	}
	st, err := sess.Snapshot(r.Context())
	if err != nil {
		Error(w, http.StatusServiceUnavailable, "engine_unavailable")
		return
	}
	JSON(w, http.StatusOK, st)
}

// GetSummary returns the running end-of-day totals.
func (h *DialogueHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sess, err := h.registry.Acquire(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to start dialogue engine", "error", err, "user_id", userID)
		Error(w, http.StatusServiceUnavailable, "engine_unavailable")
		return
	}
	sum, err := sess.Summary(r.Context())
	if err != nil {
		Error(w, http.StatusServiceUnavailable, "engine_unavailable")
		return
	}
	JSON(w, http.StatusOK, sum)
}

type enterPhaseRequest struct {
	Phase domain.Phase `json:"phase"`
}

// EnterPhase performs an external phase reset. The transcript is cleared.
func (h *DialogueHandler) EnterPhase(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req enterPhaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Phase.Valid() {
		Error(w, http.StatusBadRequest, "unknown phase")
		return
	}

	sess, err := h.registry.Acquire(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to start dialogue engine", "error", err, "user_id", userID)
		Error(w, http.StatusServiceUnavailable, "engine_unavailable")
		return
	}
	sess.Post(dialogue.EnterPhase{Phase: req.Phase})
	h.logger.Info("External phase reset requested", "user_id", userID, "phase", req.Phase)

	JSON(w, http.StatusAccepted, map[string]string{"phase": string(req.Phase)})
}

type propertyView struct {
	domain.Property
	Fields domain.Fields `json:"fields"`
}

type agentView struct {
	domain.Agent
	Fields domain.Fields `json:"fields"`
}

// GetProperties lists the deal review queue with the user's saved edits.
func (h *DialogueHandler) GetProperties(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	props, err := h.items.Properties(r.Context())
	if err != nil {
		h.logger.Error("Failed to list properties", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list properties")
		return
	}
	saved, err := h.items.LoadFields(r.Context(), userID, domain.KindProperty)
	if err != nil {
		h.logger.Error("Failed to load property fields", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to list properties")
		return
	}

	out := make([]propertyView, len(props))
	for i, p := range props {
		out[i] = propertyView{Property: p, Fields: withDefault(saved[p.ID])}
	}
	JSON(w, http.StatusOK, out)
}

// GetAgents lists the priority outreach queue with the user's saved edits.
func (h *DialogueHandler) GetAgents(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	agents, err := h.items.Agents(r.Context())
	if err != nil {
		h.logger.Error("Failed to list agents", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	saved, err := h.items.LoadFields(r.Context(), userID, domain.KindAgent)
	if err != nil {
		h.logger.Error("Failed to load agent fields", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to list agents")
		return
	}

	out := make([]agentView, len(agents))
	for i, a := range agents {
		out[i] = agentView{Agent: a, Fields: withDefault(saved[a.ID])}
	}
	JSON(w, http.StatusOK, out)
}

func withDefault(f domain.Fields) domain.Fields {
	if f == nil {
		return domain.Fields{}
	}
	return f
}

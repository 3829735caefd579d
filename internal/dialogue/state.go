package dialogue

import (
	"time"

	"github.com/ashureev/dealdesk/internal/continuity"
	"github.com/ashureev/dealdesk/internal/domain"
	"github.com/ashureev/dealdesk/internal/review"
)

// Summary aggregates the day for the end-of-day report.
type Summary struct {
	Deals         review.Stats   `json:"deals"`
	Agents        review.Stats   `json:"agents"`
	OfferStatus   map[string]int `json:"offer_status,omitempty"`
	FollowUps     map[string]int `json:"follow_ups,omitempty"`
	HelpRequested bool           `json:"help_requested"`
	Blocker       string         `json:"blocker,omitempty"`
}

// ReviewState is the position of one review loop.
type ReviewState struct {
	Index        int          `json:"index"`
	Total        int          `json:"total"`
	AwaitingSkip bool         `json:"awaiting_skip"`
	Done         bool         `json:"done"`
	Stats        review.Stats `json:"stats"`
}

// State is a point-in-time copy of an engine.
type State struct {
	UserID             string                `json:"user_id"`
	Phase              domain.Phase          `json:"phase"`
	Step               domain.Step           `json:"step"`
	Open               bool                  `json:"open"`
	VoiceMode          bool                  `json:"voice_mode"`
	Continuity         continuity.Result     `json:"continuity"`
	Transcript         []domain.Message      `json:"transcript"`
	HelpRequestDetails string                `json:"help_request_details,omitempty"`
	BlockerDetails     string                `json:"blocker_details,omitempty"`
	ProgressNote       string                `json:"progress_note,omitempty"`
	Notifications      []ManagerNotifiedData `json:"notifications,omitempty"`
	Deals              *ReviewState          `json:"deals,omitempty"`
	Agents             *ReviewState          `json:"agents,omitempty"`
	LastActivity       time.Time             `json:"last_activity"`
}

// Snapshot copies the engine's state. It must run on the engine's loop.
func (e *Engine) Snapshot() State {
	s := State{
		UserID:             e.cfg.UserID,
		Phase:              e.phase,
		Step:               e.step,
		Open:               e.open,
		VoiceMode:          e.voice,
		Continuity:         e.continuity,
		Transcript:         append([]domain.Message(nil), e.transcript...),
		HelpRequestDetails: e.helpDetails,
		BlockerDetails:     e.blocker,
		ProgressNote:       e.progress,
		Notifications:      append([]ManagerNotifiedData(nil), e.notifications...),
		LastActivity:       e.activity,
	}
	if e.deals != nil {
		s.Deals = reviewState(e.deals)
	}
	if e.agents != nil {
		s.Agents = reviewState(e.agents)
	}
	return s
}

// Summary aggregates both review loops.
func (e *Engine) Summary() Summary {
	deals, agents := e.dealLoop(), e.agentLoop()
	return Summary{
		Deals:         deals.Stats(),
		Agents:        agents.Stats(),
		OfferStatus:   deals.Tally(domain.FieldOfferStatus),
		FollowUps:     agents.Tally(domain.FieldFollowUpStatus),
		HelpRequested: e.helpRequested,
		Blocker:       e.blocker,
	}
}

func reviewState[T review.Item](l *review.Loop[T]) *ReviewState {
	return &ReviewState{
		Index:        l.Index(),
		Total:        l.Len(),
		AwaitingSkip: l.AwaitingSkip(),
		Done:         l.Done(),
		Stats:        l.Stats(),
	}
}

func (e *Engine) briefingContext() map[string]any {
	return map[string]any{
		"phase":     string(e.phase),
		"user_name": e.cfg.UserName,
		"manager":   e.cfg.Manager,
		"workload": map[string]any{
			"calls":     e.cfg.Workload.Calls,
			"offers":    e.cfg.Workload.Offers,
			"campaigns": e.cfg.Workload.Campaigns,
		},
		"deal_count":  len(e.cfg.Properties),
		"agent_count": len(e.cfg.Agents),
	}
}

func (e *Engine) summaryContext() map[string]any {
	s := e.Summary()
	return map[string]any{
		"phase":          string(e.phase),
		"user_name":      e.cfg.UserName,
		"deals":          statsContext(s.Deals),
		"agents":         statsContext(s.Agents),
		"offer_status":   s.OfferStatus,
		"follow_ups":     s.FollowUps,
		"help_requested": s.HelpRequested,
		"blocker":        s.Blocker,
	}
}

func itemContext[T review.Item](phase domain.Phase, l *review.Loop[T], item map[string]any) map[string]any {
	cur, _ := l.Current()
	return map[string]any{
		"phase":          string(phase),
		"position":       l.Index() + 1,
		"total":          l.Len(),
		"item":           item,
		"fields":         map[string]string(l.Fields(cur.ItemID())),
		"missing_fields": l.Validate(cur).MissingFields,
	}
}

func propertyContext(p domain.Property) map[string]any {
	return map[string]any{
		"id":      p.ID,
		"address": p.Address,
		"price":   p.Price,
		"arv":     p.ARV,
		"flags":   p.Flags,
		"status":  p.Status,
	}
}

func agentContext(a domain.Agent) map[string]any {
	return map[string]any{
		"id":        a.ID,
		"name":      a.Name,
		"brokerage": a.Brokerage,
		"phone":     a.Phone,
		"flags":     a.Flags,
		"status":    a.Status,
	}
}

func statsContext(s review.Stats) map[string]any {
	return map[string]any{
		"total":     s.Total,
		"reviewed":  s.Reviewed,
		"skipped":   s.Skipped,
		"remaining": s.Remaining,
	}
}

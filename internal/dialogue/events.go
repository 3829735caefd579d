package dialogue

import (
	"github.com/ashureev/dealdesk/internal/celebration"
	"github.com/ashureev/dealdesk/internal/domain"
	"github.com/ashureev/dealdesk/internal/review"
)

// Event is an input to Engine.Dispatch.
type Event interface {
	eventName() string
}

// Open is sent when the overlay is shown.
type Open struct{}

// Close is sent when the overlay is hidden.
type Close struct{}

// UserText is a free-text reply (button labels arrive this way too).
type UserText struct {
	Text string
}

// ConfirmHelp answers the confirm_help widget.
type ConfirmHelp struct {
	Accepted bool
}

// Command is a review-loop navigation command.
type Command string

// Review commands.
const (
	CommandNext Command = "next"
	CommandPrev Command = "prev"
	CommandSkip Command = "skip"
	CommandBack Command = "back"
)

// ReviewCommand navigates the active review loop.
type ReviewCommand struct {
	Command Command
}

// SetField records a form edit on a work item.
type SetField struct {
	Kind   domain.ItemKind
	ItemID string
	Key    string
	Value  string
}

// EnterPhase is an external phase reset. It clears the transcript.
type EnterPhase struct {
	Phase domain.Phase
}

// VoiceMode toggles the voice-mode UI flag.
type VoiceMode struct {
	On bool
}

func (Open) eventName() string          { return "open" }
func (Close) eventName() string         { return "close" }
func (UserText) eventName() string      { return "text" }
func (ConfirmHelp) eventName() string   { return "confirm_help" }
func (ReviewCommand) eventName() string { return "review" }
func (SetField) eventName() string      { return "field" }
func (EnterPhase) eventName() string    { return "enter_phase" }
func (VoiceMode) eventName() string     { return "voice" }

// FrameType names an output frame.
type FrameType string

// Output frame types.
const (
	FrameTyping          FrameType = "typing"
	FrameToken           FrameType = "token"
	FrameMessage         FrameType = "message"
	FrameWidget          FrameType = "widget"
	FrameNavigate        FrameType = "navigate"
	FramePhase           FrameType = "phase"
	FrameItem            FrameType = "item"
	FrameCelebration     FrameType = "celebration"
	FrameManagerNotified FrameType = "manager_notified"
	FrameReset           FrameType = "reset"
)

// Frame is one output from the engine. Data holds one of the *Data types
// below, or a domain.Message for FrameMessage.
type Frame struct {
	Type FrameType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// Sink receives engine output. Emit is called from the engine's loop and
// must not block.
type Sink interface {
	Emit(f Frame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Frame)

// Emit implements Sink.
func (fn SinkFunc) Emit(f Frame) { fn(f) }

// TypingData toggles the typing indicator.
type TypingData struct {
	On bool `json:"on"`
}

// TokenData carries the text revealed so far for an in-flight message.
type TokenData struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// WidgetData attaches a widget that appears after its message has settled.
type WidgetData struct {
	MessageID string        `json:"message_id"`
	Widget    domain.Widget `json:"widget"`
}

// NavigateData asks the client to switch screens.
type NavigateData struct {
	View   string `json:"view"`
	Filter string `json:"filter,omitempty"`
}

// PhaseData reports the current position in the workflow.
type PhaseData struct {
	Phase     domain.Phase `json:"phase"`
	Step      domain.Step  `json:"step"`
	VoiceMode bool         `json:"voice_mode"`
}

// ItemData reports the current review item.
type ItemData struct {
	Kind         domain.ItemKind   `json:"kind"`
	Index        int               `json:"index"`
	Total        int               `json:"total"`
	Item         any               `json:"item"`
	Fields       domain.Fields     `json:"fields"`
	Validation   review.Validation `json:"validation"`
	AwaitingSkip bool              `json:"awaiting_skip"`
}

// Celebration stages.
const (
	CelebrationStart   = "start"
	CelebrationMessage = "message"
	CelebrationFade    = "fade"
)

// CelebrationData drives the milestone effect.
type CelebrationData struct {
	Stage     string                 `json:"stage"`
	Particles []celebration.Particle `json:"particles,omitempty"`
	Message   string                 `json:"message,omitempty"`
}

// ManagerNotifiedData reports a simulated manager notification.
type ManagerNotifiedData struct {
	Kind    string `json:"kind"`
	Manager string `json:"manager"`
	Details string `json:"details"`
}

// Views and filters sent with navigate frames.
const (
	ViewDealReview = "deal_review"
	ViewOutreach   = "outreach"
	FilterPriority = "priority"
)

// Notification kinds.
const (
	NotifyHelpRequest = "help_request"
	NotifyBlocker     = "blocker"
)

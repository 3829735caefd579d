package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a transcript message.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Widget is an interactive control rendered alongside an assistant message.
type Widget struct {
	Kind    string         `json:"kind"`
	Options []string       `json:"options,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Widget kinds.
const (
	WidgetConfirmHelp   = "confirm_help"
	WidgetSkipConfirm   = "skip_confirm"
	WidgetActionButtons = "action_buttons"
	WidgetOutreachStart = "outreach_start"
)

// Message is an immutable transcript entry.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Widget    *Widget   `json:"widget,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage builds a message with a fresh id.
func NewMessage(role Role, content string, widget *Widget, at time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Widget:    widget,
		CreatedAt: at,
	}
}

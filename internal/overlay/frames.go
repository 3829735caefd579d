package overlay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ashureev/dealdesk/internal/dialogue"
	"github.com/ashureev/dealdesk/internal/domain"
)

// Client frame types.
const (
	frameOpen        = "open"
	frameClose       = "close"
	frameText        = "text"
	frameConfirmHelp = "confirm_help"
	frameReview      = "review"
	frameField       = "field"
	frameVoice       = "voice"
	framePing        = "ping"
)

// Server-only frame types.
const (
	framePong  = "pong"
	frameError = "error"
)

var (
	errUnknownFrame = errors.New("unknown frame type")
	errBadFrame     = errors.New("malformed frame")
)

// clientFrame is the union of everything a client may send.
type clientFrame struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Accepted bool   `json:"accepted,omitempty"`
	Command  string `json:"command,omitempty"`
	Kind     string `json:"kind,omitempty"`
	ItemID   string `json:"item_id,omitempty"`
	Key      string `json:"key,omitempty"`
	Value    string `json:"value,omitempty"`
	On       bool   `json:"on,omitempty"`
}

type errorData struct {
	Error string `json:"error"`
}

// decodeFrame turns a client frame into an engine event. Ping frames yield
// a nil event and ping=true.
func decodeFrame(data []byte) (ev dialogue.Event, ping bool, err error) {
	var f clientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, false, fmt.Errorf("%w: %v", errBadFrame, err)
	}

	switch f.Type {
	case framePing:
		return nil, true, nil
	case frameOpen:
		return dialogue.Open{}, false, nil
	case frameClose:
		return dialogue.Close{}, false, nil
	case frameText:
		if f.Text == "" {
			return nil, false, fmt.Errorf("%w: empty text", errBadFrame)
		}
		return dialogue.UserText{Text: f.Text}, false, nil
	case frameConfirmHelp:
		return dialogue.ConfirmHelp{Accepted: f.Accepted}, false, nil
	case frameReview:
		cmd := dialogue.Command(f.Command)
		switch cmd {
		case dialogue.CommandNext, dialogue.CommandPrev, dialogue.CommandSkip, dialogue.CommandBack:
			return dialogue.ReviewCommand{Command: cmd}, false, nil
		}
		return nil, false, fmt.Errorf("%w: review command %q", errBadFrame, f.Command)
	case frameField:
		kind := domain.ItemKind(f.Kind)
		if kind != domain.KindProperty && kind != domain.KindAgent {
			return nil, false, fmt.Errorf("%w: item kind %q", errBadFrame, f.Kind)
		}
		if f.ItemID == "" || f.Key == "" {
			return nil, false, fmt.Errorf("%w: field needs item_id and key", errBadFrame)
		}
		return dialogue.SetField{Kind: kind, ItemID: f.ItemID, Key: f.Key, Value: f.Value}, false, nil
	case frameVoice:
		return dialogue.VoiceMode{On: f.On}, false, nil
	}
	return nil, false, fmt.Errorf("%w: %q", errUnknownFrame, f.Type)
}

func encodeFrame(f dialogue.Frame) ([]byte, error) {
	return json.Marshal(f)
}

func pongFrame() []byte {
	data, _ := json.Marshal(dialogue.Frame{Type: framePong})
	return data
}

func errorFrame(msg string) []byte {
	data, _ := json.Marshal(dialogue.Frame{Type: frameError, Data: errorData{Error: msg}})
	return data
}

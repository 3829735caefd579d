package overlay

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ashureev/dealdesk/internal/dialogue"
	"github.com/ashureev/dealdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want dialogue.Event
	}{
		{"open", `{"type":"open"}`, dialogue.Open{}},
		{"close", `{"type":"close"}`, dialogue.Close{}},
		{"text", `{"type":"text","text":"yes"}`, dialogue.UserText{Text: "yes"}},
		{"confirm", `{"type":"confirm_help","accepted":true}`, dialogue.ConfirmHelp{Accepted: true}},
		{"review", `{"type":"review","command":"skip"}`, dialogue.ReviewCommand{Command: dialogue.CommandSkip}},
		{"field", `{"type":"field","kind":"agent","item_id":"agent-1","key":"assigned_to","value":"me"}`,
			dialogue.SetField{Kind: domain.KindAgent, ItemID: "agent-1", Key: "assigned_to", Value: "me"}},
		{"voice", `{"type":"voice","on":true}`, dialogue.VoiceMode{On: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ping, err := decodeFrame([]byte(tt.in))
			require.NoError(t, err)
			assert.False(t, ping)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestDecodeFramePing(t *testing.T) {
	ev, ping, err := decodeFrame([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.True(t, ping)
	assert.Nil(t, ev)
}

func TestDecodeFrameRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"not json", `hello`, errBadFrame},
		{"unknown", `{"type":"resize"}`, errUnknownFrame},
		{"empty text", `{"type":"text"}`, errBadFrame},
		{"bad command", `{"type":"review","command":"jump"}`, errBadFrame},
		{"bad kind", `{"type":"field","kind":"lead","item_id":"x","key":"k"}`, errBadFrame},
		{"missing key", `{"type":"field","kind":"property","item_id":"x"}`, errBadFrame},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := decodeFrame([]byte(tt.in))
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestServerOnlyFrames(t *testing.T) {
	var pong map[string]any
	require.NoError(t, json.Unmarshal(pongFrame(), &pong))
	assert.Equal(t, "pong", pong["type"])

	var fail struct {
		Type string    `json:"type"`
		Data errorData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(errorFrame("boom"), &fail))
	assert.Equal(t, "error", fail.Type)
	assert.Equal(t, "boom", fail.Data.Error)
}

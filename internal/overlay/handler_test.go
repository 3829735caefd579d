package overlay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/dealdesk/internal/domain"
	"github.com/ashureev/dealdesk/internal/identity"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newOverlayServer(t *testing.T) (*httptest.Server, *Registry) {
	t.Helper()
	reg := newTestRegistry(Deps{})
	h := NewHandler(reg, nil, "*", true, quietLogger())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		ctx := identity.WithIdentity(r.Context(), q.Get("user"), "", q.Get("session_id"))
		h.ServeHTTP(w, r.WithContext(ctx))
	}))
	t.Cleanup(func() {
		srv.Close()
		reg.Close()
	})
	return srv, reg
}

func dial(t *testing.T, srv *httptest.Server, user, session string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user + "&session_id=" + session
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func send(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, data))
}

// readUntil reads frames until match accepts one.
func readUntil(t *testing.T, c *websocket.Conn, match func(wireFrame) bool) wireFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		_, data, err := c.Read(ctx)
		require.NoError(t, err)
		var f wireFrame
		require.NoError(t, json.Unmarshal(data, &f))
		if match(f) {
			return f
		}
	}
}

func assistantMessage(f wireFrame) (domain.Message, bool) {
	if f.Type != "message" {
		return domain.Message{}, false
	}
	var m domain.Message
	if err := json.Unmarshal(f.Data, &m); err != nil {
		return domain.Message{}, false
	}
	return m, m.Role == domain.RoleAssistant
}

func TestOverlayConversation(t *testing.T) {
	srv, _ := newOverlayServer(t)
	c := dial(t, srv, "u-1", "tab-1")

	send(t, c, map[string]string{"type": "open"})
	greeting := readUntil(t, c, func(f wireFrame) bool {
		_, ok := assistantMessage(f)
		return ok
	})
	m, _ := assistantMessage(greeting)
	assert.Contains(t, m.Content, "I'm your daily workflow assistant")

	send(t, c, map[string]string{"type": "text", "text": "yes"})
	reply := readUntil(t, c, func(f wireFrame) bool {
		m, ok := assistantMessage(f)
		return ok && strings.HasPrefix(m.Content, "Great!")
	})
	m, _ = assistantMessage(reply)
	assert.Equal(t, "Great! Is there anything you need help with from your manager today?", m.Content)
}

func TestOverlayPingAndErrors(t *testing.T) {
	srv, _ := newOverlayServer(t)
	c := dial(t, srv, "u-1", "tab-1")

	send(t, c, map[string]string{"type": "ping"})
	readUntil(t, c, func(f wireFrame) bool { return f.Type == "pong" })

	send(t, c, map[string]string{"type": "resize"})
	f := readUntil(t, c, func(f wireFrame) bool { return f.Type == "error" })
	assert.Contains(t, string(f.Data), "unknown frame type")
}

func TestOverlayFansOutAcrossTabs(t *testing.T) {
	srv, _ := newOverlayServer(t)
	a := dial(t, srv, "u-1", "tab-1")
	b := dial(t, srv, "u-1", "tab-2")

	// Both sockets must be registered before the engine starts emitting.
	send(t, a, map[string]string{"type": "ping"})
	readUntil(t, a, func(f wireFrame) bool { return f.Type == "pong" })
	send(t, b, map[string]string{"type": "ping"})
	readUntil(t, b, func(f wireFrame) bool { return f.Type == "pong" })

	send(t, a, map[string]any{"type": "voice", "on": true})
	for _, c := range []*websocket.Conn{a, b} {
		f := readUntil(t, c, func(f wireFrame) bool { return f.Type == "phase" })
		assert.Contains(t, string(f.Data), `"voice_mode":true`)
	}
}

func TestOverlayLastSocketClosesDialogue(t *testing.T) {
	srv, reg := newOverlayServer(t)
	c := dial(t, srv, "u-1", "tab-1")

	send(t, c, map[string]string{"type": "open"})
	readUntil(t, c, func(f wireFrame) bool {
		_, ok := assistantMessage(f)
		return ok
	})
	require.NoError(t, c.Close(websocket.StatusNormalClosure, "bye"))

	s, ok := reg.Lookup("u-1")
	require.True(t, ok)
	require.Eventually(t, func() bool {
		st, err := s.Snapshot(context.Background())
		return err == nil && !st.Open
	}, 5*time.Second, 10*time.Millisecond)
}

func TestOverlayRejectsMissingIdentity(t *testing.T) {
	reg := newTestRegistry(Deps{})
	defer reg.Close()
	h := NewHandler(reg, nil, "*", true, quietLogger())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws/overlay", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOverlayOriginCheck(t *testing.T) {
	reg := newTestRegistry(Deps{})
	defer reg.Close()
	h := NewHandler(reg, nil, "https://app.example.com", false, quietLogger())

	r := httptest.NewRequest(http.MethodGet, "/ws/overlay", nil)
	r = r.WithContext(identity.WithIdentity(r.Context(), "u-1", "", ""))
	r.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

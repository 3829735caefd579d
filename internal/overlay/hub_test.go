package overlay

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte
	closed bool
	wrote  chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{wrote: make(chan struct{}, 64)}
}

func (c *fakeConn) Write(_ context.Context, _ websocket.MessageType, p []byte) error {
	c.mu.Lock()
	c.writes = append(c.writes, p)
	c.mu.Unlock()
	c.wrote <- struct{}{}
	return nil
}

func (c *fakeConn) Close(websocket.StatusCode, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func quietHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHub_Register(t *testing.T) {
	h := quietHub()
	conn := newFakeConn()

	c := h.Register("user123", "tab-1", conn)

	if got := h.Get("user123", "tab-1"); got != c {
		t.Errorf("Expected client %v, got %v", c, got)
	}
	if h.Count("user123") != 1 {
		t.Errorf("Expected 1 socket, got %d", h.Count("user123"))
	}
}

func TestHub_Unregister(t *testing.T) {
	h := quietHub()
	c := h.Register("user123", "tab-1", newFakeConn())

	if !h.Unregister("user123", "tab-1", c) {
		t.Fatal("Expected unregister to report removal")
	}
	if got := h.Get("user123", "tab-1"); got != nil {
		t.Errorf("Expected nil client, got %v", got)
	}
	if h.Count("user123") != 0 {
		t.Errorf("Expected 0 sockets, got %d", h.Count("user123"))
	}
}

func TestHub_ReplaceClosesPrevious(t *testing.T) {
	h := quietHub()
	first := newFakeConn()
	old := h.Register("user123", "tab-1", first)
	current := h.Register("user123", "tab-1", newFakeConn())

	if !first.isClosed() {
		t.Error("Expected replaced socket to be closed")
	}
	if h.Unregister("user123", "tab-1", old) {
		t.Error("Stale unregister must not remove the replacement")
	}
	if got := h.Get("user123", "tab-1"); got != current {
		t.Errorf("Expected replacement client to stay registered")
	}
	if old.Enqueue([]byte("x")) {
		t.Error("Expected stopped client to refuse frames")
	}
}

func TestHub_UnregisterStale(t *testing.T) {
	h := quietHub()
	c1 := h.Register("user123", "tab-1", newFakeConn())
	c2 := h.Register("user123", "tab-2", newFakeConn())

	h.Unregister("user123", "tab-1", c1)

	if got := h.Get("user123", "tab-2"); got != c2 {
		t.Errorf("Expected client %v, got %v", c2, got)
	}
}

func TestHub_BroadcastFansOut(t *testing.T) {
	h := quietHub()
	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i, conn := range conns {
		c := h.Register("user123", "tab-"+strconv.Itoa(i), conn)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Pump(ctx)
		}()
	}
	h.Register("someone-else", "tab-0", newFakeConn())

	if n := h.Broadcast("user123", []byte(`{"type":"phase"}`)); n != 2 {
		t.Fatalf("Expected 2 deliveries, got %d", n)
	}
	for i, conn := range conns {
		select {
		case <-conn.wrote:
		case <-time.After(2 * time.Second):
			t.Fatalf("socket %d never received the frame", i)
		}
	}

	cancel()
	wg.Wait()
}

func TestHub_BroadcastDropsWhenFull(t *testing.T) {
	h := quietHub()
	h.Register("user123", "tab-1", newFakeConn())

	for i := 0; i < sendBuffer; i++ {
		h.Broadcast("user123", []byte("x"))
	}
	if n := h.Broadcast("user123", []byte("x")); n != 0 {
		t.Errorf("Expected a full queue to drop, got %d deliveries", n)
	}
}

func TestHub_CloseUser(t *testing.T) {
	h := quietHub()
	a, b := newFakeConn(), newFakeConn()
	h.Register("user123", "tab-1", a)
	h.Register("user123", "tab-2", b)

	h.CloseUser("user123")

	if !a.isClosed() || !b.isClosed() {
		t.Error("Expected every socket to be closed")
	}
	if h.Count("user123") != 0 {
		t.Errorf("Expected no sockets, got %d", h.Count("user123"))
	}
}

func TestHub_ConcurrentAccess(t *testing.T) {
	h := quietHub()
	userID := "concurrentUser"

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			h.Register(userID, "tab-"+strconv.Itoa(i), newFakeConn())
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			h.Get(userID, "tab-"+strconv.Itoa(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			h.Broadcast(userID, []byte("x"))
		}
	}()
	wg.Wait()
}

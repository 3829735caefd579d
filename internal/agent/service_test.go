package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/dealdesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type stubBackend struct {
	mu     sync.Mutex
	calls  int
	delay  time.Duration
	closed bool
}

func (s *stubBackend) Respond(ctx context.Context, req Request) (Response, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return Response{Response: "ok " + req.Message}, nil
}

func (s *stubBackend) Close() { s.closed = true }

func TestServiceRateLimitsPerUser(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := &stubBackend{}
	svc := NewService(backend, NewRateLimiter(2, time.Minute), time.Second, nil)
	defer svc.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := svc.Respond(ctx, Request{Message: "q", UserID: "u1"})
		require.NoError(t, err)
	}
	_, err := svc.Respond(ctx, Request{Message: "q", UserID: "u1"})
	assert.ErrorIs(t, err, ErrRateLimited)

	_, err = svc.Respond(ctx, Request{Message: "q", UserID: "u2"})
	assert.NoError(t, err)
	assert.Equal(t, 3, backend.calls)
}

func TestServiceTimeout(t *testing.T) {
	t.Parallel()

	svc := NewService(&stubBackend{delay: time.Second}, nil, 20*time.Millisecond, nil)
	_, err := svc.Respond(context.Background(), Request{Message: "q"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServiceCloseClosesBackend(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := &stubBackend{}
	svc := NewService(backend, NewRateLimiter(1, time.Minute), 0, nil)
	svc.Close()
	assert.True(t, backend.closed)
}

func TestNewSelectsBackend(t *testing.T) {
	t.Parallel()

	svc, err := New(config.AIConfig{Backend: config.BackendNone, RateLimit: 1, RateWindow: time.Minute}, nil)
	require.NoError(t, err)
	defer svc.Close()
	_, err = svc.Respond(context.Background(), Request{Message: "q"})
	assert.ErrorIs(t, err, ErrUnavailable)

	svc, err = New(config.AIConfig{Backend: config.BackendOpenAI, OpenAIKey: "sk-test", RateLimit: 1, RateWindow: time.Minute}, nil)
	require.NoError(t, err)
	svc.Close()

	_, err = New(config.AIConfig{Backend: "carrier-pigeon"}, nil)
	assert.Error(t, err)
}

func TestRateLimiterWindowSlides(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(1, time.Minute)
	defer rl.Close()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("u1"))
	assert.False(t, rl.Allow("u1"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("u1"))

	now = now.Add(2 * time.Minute)
	rl.evict()
	rl.mu.Lock()
	assert.Empty(t, rl.requests)
	rl.mu.Unlock()
}

package sweeper

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeTarget struct {
	mu    sync.Mutex
	calls int
	now   time.Time
	ttl   time.Duration
	evict []string
}

func (f *fakeTarget) Sweep(_ context.Context, now time.Time, ttl time.Duration) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.now, f.ttl = now, ttl
	return f.evict
}

func (f *fakeTarget) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New(&fakeTarget{}, time.Hour, "every now and then", quiet())
	require.Error(t, err)

	_, err = New(&fakeTarget{}, 0, "@every 5m", quiet())
	require.Error(t, err)
}

func TestRunOnce(t *testing.T) {
	fixed := time.Date(2026, 10, 5, 15, 0, 0, 0, time.UTC)
	target := &fakeTarget{evict: []string{"u-1", "u-2"}}
	var cleaned []string
	s, err := New(target, 2*time.Hour, "@every 5m", quiet(),
		WithClock(func() time.Time { return fixed }),
		WithCleanup(func(id string) { cleaned = append(cleaned, id) }))
	require.NoError(t, err)

	n := s.RunOnce(context.Background())

	assert.Equal(t, 2, n)
	assert.Equal(t, fixed, target.now)
	assert.Equal(t, 2*time.Hour, target.ttl)
	assert.Equal(t, []string{"u-1", "u-2"}, cleaned)
}

func TestRunOnceSkipsCancelledContext(t *testing.T) {
	target := &fakeTarget{}
	s, err := New(target, time.Hour, "@every 5m", quiet())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Zero(t, s.RunOnce(ctx))
	assert.Zero(t, target.count())
}

func TestStartFiresOnSchedule(t *testing.T) {
	defer goleak.VerifyNone(t)
	target := &fakeTarget{}
	s, err := New(target, time.Hour, "@every 1s", quiet())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return target.count() > 0 }, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)
}

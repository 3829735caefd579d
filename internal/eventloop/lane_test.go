package eventloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLaneRunsCallbacksInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	lane := NewLane(nil)
	defer lane.Close()

	var got []int
	for i := 0; i < 50; i++ {
		i := i
		lane.Post(func() { got = append(got, i) })
	}
	require.NoError(t, Do(context.Background(), lane, func() {}))

	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLaneNestedPostDoesNotBlock(t *testing.T) {
	defer goleak.VerifyNone(t)

	lane := NewLane(nil)
	defer lane.Close()

	done := make(chan struct{})
	lane.Post(func() {
		for i := 0; i < 1000; i++ {
			lane.Post(func() {})
		}
		lane.Post(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("nested posts did not drain")
	}
}

func TestLaneAfterPostsBackOntoLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	lane := NewLane(nil)
	defer lane.Close()

	fired := make(chan struct{})
	lane.After(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestLaneStoppedTimerNeverFires(t *testing.T) {
	defer goleak.VerifyNone(t)

	lane := NewLane(nil)
	defer lane.Close()

	var mu sync.Mutex
	fired := false
	timer := lane.After(20*time.Millisecond, func() {
		mu.Lock()
		fired = true
		mu.Unlock()
	})
	assert.True(t, timer.Stop())

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.False(t, fired)
}

func TestLaneRecoversFromPanic(t *testing.T) {
	defer goleak.VerifyNone(t)

	lane := NewLane(nil)
	defer lane.Close()

	lane.Post(func() { panic("boom") })
	ran := false
	require.NoError(t, Do(context.Background(), lane, func() { ran = true }))
	assert.True(t, ran)
}

func TestLanePostAfterCloseIsNoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	lane := NewLane(nil)
	lane.Close()
	lane.Post(func() { t.Error("callback ran after close") })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, Do(ctx, lane, func() {}), context.DeadlineExceeded)
}

func TestLaneGoPostsContinuation(t *testing.T) {
	defer goleak.VerifyNone(t)

	lane := NewLane(nil)
	defer lane.Close()

	done := make(chan string, 1)
	lane.Go(func() func() {
		v := "worked"
		return func() { done <- v }
	})

	select {
	case v := <-done:
		assert.Equal(t, "worked", v)
	case <-time.After(2 * time.Second):
		t.Fatal("continuation never ran")
	}
}

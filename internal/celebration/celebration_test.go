package celebration

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/ashureev/dealdesk/internal/eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeView struct {
	events    []string
	particles []Particle
	message   string
}

func (v *fakeView) Start(p []Particle) {
	v.events = append(v.events, "start")
	v.particles = p
}

func (v *fakeView) ShowMessage(text string) {
	v.events = append(v.events, "message")
	v.message = text
}

func (v *fakeView) Fade() { v.events = append(v.events, "fade") }

func newTrigger() (*Trigger, *eventloop.Manual, *fakeView) {
	loop := eventloop.NewManual(time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC))
	view := &fakeView{}
	return New(loop, view, WithRand(rand.New(rand.NewPCG(1, 2)))), loop, view
}

func TestActivateSequence(t *testing.T) {
	t.Parallel()

	tr, loop, view := newTrigger()
	done := 0
	require.True(t, tr.Activate("Outreach complete!", func() { done++ }))

	assert.Equal(t, []string{"start"}, view.events)
	assert.Len(t, view.particles, DefaultParticles)
	assert.True(t, tr.Open())

	loop.Advance(1499 * time.Millisecond)
	assert.Equal(t, []string{"start"}, view.events)
	loop.Advance(time.Millisecond)
	assert.Equal(t, []string{"start", "message"}, view.events)
	assert.Equal(t, "Outreach complete!", view.message)

	loop.Advance(3500 * time.Millisecond)
	assert.Equal(t, []string{"start", "message", "fade"}, view.events)
	assert.Equal(t, 1, done)
	assert.False(t, tr.Open())
}

func TestActivateWhileOpenIsNoop(t *testing.T) {
	t.Parallel()

	tr, loop, view := newTrigger()
	done := 0
	require.True(t, tr.Activate("a", func() { done++ }))
	loop.Advance(time.Second)
	assert.False(t, tr.Activate("b", func() { done++ }))

	loop.Advance(10 * time.Second)
	assert.Equal(t, []string{"start", "message", "fade"}, view.events)
	assert.Equal(t, 1, done)

	assert.True(t, tr.Activate("c", nil))
}

func TestParticlesInRange(t *testing.T) {
	t.Parallel()

	tr, _, view := newTrigger()
	tr.Activate("x", nil)
	for _, p := range view.particles {
		assert.GreaterOrEqual(t, p.X, 0.0)
		assert.Less(t, p.X, 100.0)
		assert.GreaterOrEqual(t, p.Size, 4.0)
		assert.Less(t, p.Size, 12.0)
		assert.Contains(t, Palette, p.Color)
	}
}

func TestAbort(t *testing.T) {
	t.Parallel()

	tr, loop, view := newTrigger()
	done := false
	tr.Activate("x", func() { done = true })
	tr.Abort()
	loop.Advance(10 * time.Second)

	assert.Equal(t, []string{"start"}, view.events)
	assert.False(t, done)
	assert.False(t, tr.Open())
	assert.Zero(t, loop.PendingTimers())
}

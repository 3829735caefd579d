// Package celebration runs the timed milestone effect shown when a review
// list is finished.
package celebration

import (
	"math/rand/v2"
	"time"

	"github.com/ashureev/dealdesk/internal/eventloop"
)

// Default timing and particle count.
const (
	DefaultParticles = 40
	MessageDelay     = 1500 * time.Millisecond
	Duration         = 5 * time.Second
)

// Palette is the set of particle colors.
var Palette = []string{"#f59e0b", "#10b981", "#3b82f6", "#ef4444", "#a855f7", "#ec4899"}

// Particle is one piece of confetti. X and Y are percentages of the view.
type Particle struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Size  float64 `json:"size"`
	Color string  `json:"color"`
}

// View presents the celebration.
type View interface {
	Start(particles []Particle)
	ShowMessage(text string)
	Fade()
}

// Option configures a Trigger.
type Option func(*Trigger)

// WithParticles sets the particle count.
func WithParticles(n int) Option {
	return func(t *Trigger) { t.count = n }
}

// WithRand sets the random source used for particles.
func WithRand(r *rand.Rand) Option {
	return func(t *Trigger) { t.rng = r }
}

// Trigger sequences one celebration at a time. All methods must be called
// from the loop.
type Trigger struct {
	loop  eventloop.Loop
	view  View
	count int
	rng   *rand.Rand

	open   bool
	gen    uint64
	timers []eventloop.Timer
}

// New returns a trigger bound to loop and view.
func New(loop eventloop.Loop, view View, opts ...Option) *Trigger {
	t := &Trigger{
		loop:  loop,
		view:  view,
		count: DefaultParticles,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Activate starts the effect and reports whether it did. While a
// celebration is showing, further calls are ignored. onDone runs on the loop
// after the fade.
func (t *Trigger) Activate(message string, onDone func()) bool {
	if t.open {
		return false
	}
	t.open = true
	t.gen++
	gen := t.gen

	t.view.Start(t.particles())
	t.timers = []eventloop.Timer{
		t.loop.After(MessageDelay, func() {
			if gen != t.gen {
				return
			}
			t.view.ShowMessage(message)
		}),
		t.loop.After(Duration, func() {
			if gen != t.gen {
				return
			}
			t.open = false
			t.timers = nil
			t.view.Fade()
			if onDone != nil {
				onDone()
			}
		}),
	}
	return true
}

// Open reports whether a celebration is showing.
func (t *Trigger) Open() bool { return t.open }

// Abort stops a running celebration without fading or calling onDone.
func (t *Trigger) Abort() {
	t.gen++
	for _, tm := range t.timers {
		tm.Stop()
	}
	t.timers = nil
	t.open = false
}

func (t *Trigger) particles() []Particle {
	out := make([]Particle, t.count)
	for i := range out {
		out[i] = Particle{
			X:     t.rng.Float64() * 100,
			Y:     t.rng.Float64() * 100,
			Size:  4 + t.rng.Float64()*8,
			Color: Palette[t.rng.IntN(len(Palette))],
		}
	}
	return out
}

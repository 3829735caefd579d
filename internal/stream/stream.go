// Package stream reveals assistant text token by token with randomized
// pacing, independent of the conversation logic that produced the text.
package stream

import (
	"math/rand/v2"
	"strings"
	"time"
	"unicode"

	"github.com/ashureev/dealdesk/internal/domain"
	"github.com/ashureev/dealdesk/internal/eventloop"
	"github.com/google/uuid"
)

// Token delay bounds: each reveal waits a random duration in [MinDelay, MaxDelay).
const (
	MinDelay = 30 * time.Millisecond
	MaxDelay = 50 * time.Millisecond
)

// Output receives the visible effects of streaming.
type Output interface {
	// Typing toggles the typing indicator.
	Typing(on bool)
	// Partial carries the text revealed so far for an in-flight message.
	Partial(id, text string)
	// Commit appends a finalized message to the transcript.
	Commit(m domain.Message)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDelay overrides the per-token delay source.
func WithDelay(fn func() time.Duration) Option {
	return func(s *Scheduler) { s.delay = fn }
}

// Scheduler runs at most one StreamJob at a time on an event loop. All
// methods must be called from the loop.
type Scheduler struct {
	loop  eventloop.Loop
	out   Output
	delay func() time.Duration

	gen    uint64
	active *job
	timer  eventloop.Timer
	queue  []*job
}

type job struct {
	id     string
	gen    uint64
	text   string
	chunks []string
	cursor int
	widget *domain.Widget
	onDone func(domain.Message)
}

// New returns a scheduler bound to loop.
func New(loop eventloop.Loop, out Output, opts ...Option) *Scheduler {
	s := &Scheduler{
		loop:  loop,
		out:   out,
		delay: randomDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func randomDelay() time.Duration {
	return MinDelay + rand.N(MaxDelay-MinDelay)
}

// Start begins streaming text, superseding any job in flight along with
// anything queued behind it. The superseded job is dropped: its partial text
// is never committed and its callback never runs. onDone runs on the loop
// after the message has been committed.
func (s *Scheduler) Start(text string, widget *domain.Widget, onDone func(domain.Message)) string {
	s.invalidate()
	j := newJob(text, widget, onDone)
	s.run(j)
	return j.id
}

// Queue streams text after the job in flight and any earlier queued jobs
// have committed. With nothing in flight it behaves like Start.
func (s *Scheduler) Queue(text string, widget *domain.Widget, onDone func(domain.Message)) string {
	if s.active == nil {
		return s.Start(text, widget, onDone)
	}
	j := newJob(text, widget, onDone)
	s.queue = append(s.queue, j)
	return j.id
}

// Cancel drops the job in flight and the queue, and clears the typing
// indicator.
func (s *Scheduler) Cancel() {
	if s.active == nil {
		s.invalidate()
		return
	}
	s.invalidate()
	s.out.Typing(false)
}

// Pending returns the number of queued jobs behind the active one.
func (s *Scheduler) Pending() int {
	return len(s.queue)
}

func newJob(text string, widget *domain.Widget, onDone func(domain.Message)) *job {
	return &job{
		id:     uuid.NewString(),
		text:   text,
		chunks: Tokenize(text),
		widget: widget,
		onDone: onDone,
	}
}

func (s *Scheduler) run(j *job) {
	j.gen = s.gen
	s.active = j
	s.out.Typing(true)
	s.schedule(j)
}

// Active reports whether a job is in flight.
func (s *Scheduler) Active() bool {
	return s.active != nil
}

// Generation returns the current job generation.
func (s *Scheduler) Generation() uint64 {
	return s.gen
}

func (s *Scheduler) invalidate() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.active = nil
	s.queue = nil
}

func (s *Scheduler) schedule(j *job) {
	s.timer = s.loop.After(s.delay(), func() { s.tick(j) })
}

func (s *Scheduler) tick(j *job) {
	if j.gen != s.gen || s.active != j {
		return
	}
	if j.cursor < len(j.chunks) {
		j.cursor++
	}
	if j.cursor < len(j.chunks) {
		s.out.Partial(j.id, strings.Join(j.chunks[:j.cursor], ""))
		s.schedule(j)
		return
	}
	s.finish(j)
}

func (s *Scheduler) finish(j *job) {
	s.active = nil
	s.timer = nil
	s.out.Typing(false)

	msg := domain.Message{
		ID:        j.id,
		Role:      domain.RoleAssistant,
		Content:   j.text,
		Widget:    j.widget,
		CreatedAt: s.loop.Now(),
	}
	s.out.Commit(msg)
	gen := s.gen
	if j.onDone != nil {
		j.onDone(msg)
	}
	// onDone may have started or cancelled streaming itself.
	if s.gen != gen || s.active != nil || len(s.queue) == 0 {
		return
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	s.run(next)
}

// Tokenize splits text into whitespace-delimited tokens. Each token keeps
// the whitespace that follows it, and leading whitespace stays with the first
// token, so concatenating the tokens reproduces text exactly.
func Tokenize(text string) []string {
	var chunks []string
	start := 0
	seenWord := false
	prevSpace := false
	for i, r := range text {
		space := unicode.IsSpace(r)
		if !space && prevSpace && seenWord {
			chunks = append(chunks, text[start:i])
			start = i
		}
		if !space {
			seenWord = true
		}
		prevSpace = space
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks
}

// Package sweeper periodically evicts dialogue engines nobody is using.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Target is anything holding idle-evictable engines.
type Target interface {
	Sweep(ctx context.Context, now time.Time, ttl time.Duration) []string
}

// CleanupCallback is called for every evicted user.
type CleanupCallback func(userID string)

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

// WithCleanup registers a callback for evicted users.
func WithCleanup(fn CleanupCallback) Option {
	return func(s *Sweeper) { s.onCleanup = fn }
}

// cronParser accepts standard 5-field expressions, an optional seconds field
// and descriptors such as "@every 5m".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Sweeper runs Target.Sweep on a cron schedule.
type Sweeper struct {
	target    Target
	ttl       time.Duration
	schedule  string
	cron      *cron.Cron
	now       func() time.Time
	onCleanup CleanupCallback
	logger    *slog.Logger
}

// New validates schedule and returns a stopped sweeper.
func New(target Target, ttl time.Duration, schedule string, opts ...Option) (*Sweeper, error) {
	if _, err := cronParser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("idle ttl must be positive, got %s", ttl)
	}
	s := &Sweeper{
		target:   target,
		ttl:      ttl,
		schedule: schedule,
		cron:     cron.New(cron.WithParser(cronParser)),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start registers the sweep and starts the cron ticker. Sweeps run with ctx
// until Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("Engine sweeper started", "schedule", s.schedule, "ttl", s.ttl)
	return nil
}

// Stop stops the ticker and waits for a running sweep to finish or ctx to
// end.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.logger.Info("Engine sweeper stopped")
}

// RunOnce performs a single sweep and returns how many engines it evicted.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	evicted := s.target.Sweep(ctx, s.now(), s.ttl)
	if len(evicted) == 0 {
		return 0
	}

	for _, userID := range evicted {
		if s.onCleanup != nil {
			s.onCleanup(userID)
		}
	}
	s.logger.Info("Engine sweep completed", "evicted", len(evicted))
	return len(evicted)
}

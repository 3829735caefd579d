package continuity

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ashureev/dealdesk/internal/domain"
)

// Store is the key-value session store the tracker persists through.
type Store interface {
	Get(ctx context.Context, userID, key string) (string, bool, error)
	Set(ctx context.Context, userID, key, value string) error
	Delete(ctx context.Context, userID, key string) error
}

// Tracker runs the detector against persisted session keys.
type Tracker struct {
	store  Store
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = logger }
}

// NewTracker creates a tracker that evaluates dates in loc.
func NewTracker(store Store, loc *time.Location, opts ...TrackerOption) *Tracker {
	if loc == nil {
		loc = time.Local
	}
	t := &Tracker{
		store:  store,
		loc:    loc,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Snapshot is the raw persisted state for one user.
type Snapshot struct {
	LastSessionAt      *time.Time `json:"last_session_at,omitempty"`
	MorningCheckinDate string     `json:"morning_checkin_date,omitempty"`
}

// Load reads the persisted keys. An unparseable lastSessionAt is treated as
// absent.
func (t *Tracker) Load(ctx context.Context, userID string) (Snapshot, error) {
	var snap Snapshot

	raw, ok, err := t.store.Get(ctx, userID, domain.KeyLastSessionAt)
	if err != nil {
		return snap, fmt.Errorf("read %s: %w", domain.KeyLastSessionAt, err)
	}
	if ok && raw != "" {
		ms, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			t.logger.Warn("Ignoring malformed session timestamp", "user_id", userID, "value", raw)
		} else {
			last := time.UnixMilli(ms).In(t.loc)
			snap.LastSessionAt = &last
		}
	}

	date, ok, err := t.store.Get(ctx, userID, domain.KeyMorningCheckinDate)
	if err != nil {
		return snap, fmt.Errorf("read %s: %w", domain.KeyMorningCheckinDate, err)
	}
	if ok {
		snap.MorningCheckinDate = date
	}
	return snap, nil
}

// Peek runs the detector without writing anything.
func (t *Tracker) Peek(ctx context.Context, userID string) (Result, error) {
	snap, err := t.Load(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	return Detect(snap.LastSessionAt, snap.MorningCheckinDate, t.now().In(t.loc)), nil
}

// Open runs the detector and records the visit: lastSessionAt is always
// updated, morningCheckinDate only when the open starts the day's check-in.
func (t *Tracker) Open(ctx context.Context, userID string) (Result, error) {
	now := t.now().In(t.loc)
	snap, err := t.Load(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	res := Detect(snap.LastSessionAt, snap.MorningCheckinDate, now)

	if err := t.store.Set(ctx, userID, domain.KeyLastSessionAt, strconv.FormatInt(now.UnixMilli(), 10)); err != nil {
		return res, fmt.Errorf("write %s: %w", domain.KeyLastSessionAt, err)
	}
	if res.RecordsCheckin() {
		if err := t.store.Set(ctx, userID, domain.KeyMorningCheckinDate, now.Format(domain.DateLayout)); err != nil {
			return res, fmt.Errorf("write %s: %w", domain.KeyMorningCheckinDate, err)
		}
	}

	t.logger.Debug("Session opened", "user_id", userID, "state", res.State, "step", res.InitialStep)
	return res, nil
}

// Reset clears both persisted keys.
func (t *Tracker) Reset(ctx context.Context, userID string) error {
	for _, key := range []string{domain.KeyLastSessionAt, domain.KeyMorningCheckinDate} {
		if err := t.store.Delete(ctx, userID, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

// Package review drives sequential, validation-gated traversal of a fixed
// list of work items.
package review

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/dealdesk/internal/domain"
)

// ErrUnknownItem is returned when a field edit names an item not in the list.
var ErrUnknownItem = errors.New("unknown work item")

// Item is anything with a stable id.
type Item interface {
	ItemID() string
}

// Validation is the result of checking an item's required fields.
type Validation struct {
	IsValid         bool     `json:"is_valid"`
	MissingFields   []string `json:"missing_fields"`
	CompletedFields []string `json:"completed_fields"`
}

// Outcome is what a navigation attempt did.
type Outcome string

const (
	// Moved means the current index changed.
	Moved Outcome = "moved"
	// Blocked means validation failed and a skip confirmation is pending.
	Blocked Outcome = "blocked"
	// Completed means the end of the list was reached.
	Completed Outcome = "completed"
	// Unchanged means nothing happened.
	Unchanged Outcome = "unchanged"
)

// Options configures a Loop.
type Options struct {
	// Required lists the field keys that must be non-blank to advance.
	Required []string
	// WrapOnRetreat makes Retreat from index 0 jump to the last item.
	WrapOnRetreat bool
}

// Loop is the review sub-machine. It is not safe for concurrent use; the
// dialogue engine drives it from its event loop.
type Loop[T Item] struct {
	items    []T
	index    int
	fields   map[string]domain.Fields
	skipped  map[string]bool
	required []string
	wrap     bool

	awaitingSkip bool
	done         bool
}

// New builds a loop over a snapshot of items.
func New[T Item](items []T, opts Options) *Loop[T] {
	snapshot := make([]T, len(items))
	copy(snapshot, items)
	return &Loop[T]{
		items:    snapshot,
		fields:   make(map[string]domain.Fields),
		skipped:  make(map[string]bool),
		required: append([]string(nil), opts.Required...),
		wrap:     opts.WrapOnRetreat,
		done:     len(snapshot) == 0,
	}
}

// Len returns the number of items.
func (l *Loop[T]) Len() int { return len(l.items) }

// Index returns the current position.
func (l *Loop[T]) Index() int { return l.index }

// Done reports whether the end of the list has been reached.
func (l *Loop[T]) Done() bool { return l.done }

// AwaitingSkip reports whether a failed advance is waiting for the user to
// choose "skip anyway" or "go back".
func (l *Loop[T]) AwaitingSkip() bool { return l.awaitingSkip }

// Items returns the list snapshot.
func (l *Loop[T]) Items() []T { return l.items }

// Current returns the item at the current index.
func (l *Loop[T]) Current() (T, bool) {
	var zero T
	if len(l.items) == 0 {
		return zero, false
	}
	return l.items[l.index], true
}

// Fields returns a copy of the edits recorded for id.
func (l *Loop[T]) Fields(id string) domain.Fields {
	return l.fields[id].Clone()
}

// SetField records an edit for item id. Edits survive navigation.
func (l *Loop[T]) SetField(id, key, value string) error {
	if !l.has(id) {
		return fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	f, ok := l.fields[id]
	if !ok {
		f = make(domain.Fields)
		l.fields[id] = f
	}
	f[key] = value
	return nil
}

// Validate checks item's required fields against its current edits. The
// result is never cached.
func (l *Loop[T]) Validate(item T) Validation {
	f := l.fields[item.ItemID()]
	v := Validation{MissingFields: []string{}, CompletedFields: []string{}}
	for _, key := range l.required {
		if strings.TrimSpace(f[key]) == "" {
			v.MissingFields = append(v.MissingFields, key)
		} else {
			v.CompletedFields = append(v.CompletedFields, key)
		}
	}
	v.IsValid = len(v.MissingFields) == 0
	return v
}

// Advance moves to the next item if the current one validates. Otherwise
// it returns Blocked and leaves the index alone until Skip is called.
func (l *Loop[T]) Advance() (Outcome, Validation) {
	cur, ok := l.Current()
	if !ok {
		return Completed, Validation{IsValid: true}
	}
	v := l.Validate(cur)
	if !v.IsValid {
		l.awaitingSkip = true
		return Blocked, v
	}
	return l.step(), v
}

// Skip advances past an invalid item. It only acts while a skip
// confirmation is pending.
func (l *Loop[T]) Skip() Outcome {
	if !l.awaitingSkip {
		return Unchanged
	}
	if cur, ok := l.Current(); ok {
		l.skipped[cur.ItemID()] = true
	}
	return l.step()
}

// Dismiss answers a pending skip confirmation with "go back".
func (l *Loop[T]) Dismiss() {
	l.awaitingSkip = false
}

// Retreat moves back one item without validation. At index 0 it wraps to
// the last item when WrapOnRetreat is set and otherwise stays put.
func (l *Loop[T]) Retreat() Outcome {
	l.awaitingSkip = false
	if len(l.items) == 0 {
		return Unchanged
	}
	if l.index > 0 {
		l.index--
		l.done = false
		return Moved
	}
	if l.wrap && len(l.items) > 1 {
		l.index = len(l.items) - 1
		l.done = false
		return Moved
	}
	return Unchanged
}

// Stats summarizes the loop for briefings and the end-of-day report.
type Stats struct {
	Total     int `json:"total"`
	Reviewed  int `json:"reviewed"`
	Skipped   int `json:"skipped"`
	Remaining int `json:"remaining"`
}

// Stats returns counts over the whole list.
func (l *Loop[T]) Stats() Stats {
	s := Stats{Total: len(l.items)}
	for _, it := range l.items {
		switch {
		case l.Validate(it).IsValid:
			s.Reviewed++
		case l.skipped[it.ItemID()]:
			s.Skipped++
		default:
			s.Remaining++
		}
	}
	return s
}

// Tally counts the recorded values of one field across all items.
func (l *Loop[T]) Tally(key string) map[string]int {
	out := make(map[string]int)
	for _, it := range l.items {
		if v := strings.TrimSpace(l.fields[it.ItemID()][key]); v != "" {
			out[strings.ToLower(v)]++
		}
	}
	return out
}

func (l *Loop[T]) step() Outcome {
	l.awaitingSkip = false
	if l.index >= len(l.items)-1 {
		l.done = true
		return Completed
	}
	l.index++
	return Moved
}

func (l *Loop[T]) has(id string) bool {
	for _, it := range l.items {
		if it.ItemID() == id {
			return true
		}
	}
	return false
}

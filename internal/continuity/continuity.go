// Package continuity classifies an overlay open relative to the user's
// earlier visits and picks the check-in step the dialogue resumes at.
package continuity

import (
	"time"

	"github.com/ashureev/dealdesk/internal/domain"
)

// ReturnThreshold is the gap after which a same-day visit counts as a return.
const ReturnThreshold = 30 * time.Minute

// Result is the detector's verdict for one open.
type Result struct {
	State       domain.ContinuityState `json:"state"`
	TimeOfDay   domain.TimeOfDay       `json:"time_of_day"`
	InitialStep domain.Step            `json:"initial_step"`
}

// Detect is a pure function of its inputs. last is nil when the user has
// never opened the overlay. checkinDate is the stored morningCheckinDate in
// DateLayout form, or "". Dates are compared in now's location.
func Detect(last *time.Time, checkinDate string, now time.Time) Result {
	tod := Bucket(now)
	today := now.Format(domain.DateLayout)

	var state domain.ContinuityState
	switch {
	case last == nil:
		state = domain.ContinuityFirst
	case last.In(now.Location()).Format(domain.DateLayout) != today:
		state = domain.ContinuityNewDay
	case checkinDate == today && now.Sub(*last) > ReturnThreshold:
		if tod == domain.Lunch || tod == domain.Afternoon {
			state = domain.ContinuityReturningAfterLunch
		} else {
			state = domain.ContinuityReturning
		}
	case checkinDate == today:
		state = domain.ContinuityContinuing
	default:
		state = domain.ContinuityNewDay
	}

	return Result{State: state, TimeOfDay: tod, InitialStep: InitialStep(state)}
}

// InitialStep maps a continuity state to the check-in step to resume at.
func InitialStep(state domain.ContinuityState) domain.Step {
	switch state {
	case domain.ContinuityReturning, domain.ContinuityReturningAfterLunch:
		return domain.StepBlockers
	case domain.ContinuityContinuing:
		return domain.StepProgress
	default:
		return domain.StepReady
	}
}

// Bucket returns the time-of-day bucket for t's wall clock.
func Bucket(t time.Time) domain.TimeOfDay {
	h := t.Hour()
	switch {
	case h >= 5 && h < 12:
		return domain.Morning
	case h >= 12 && h < 14:
		return domain.Lunch
	case h >= 14 && h < 17:
		return domain.Afternoon
	default:
		return domain.Evening
	}
}

// RecordsCheckin reports whether an open in this state starts the day's
// check-in and so stamps morningCheckinDate.
func (r Result) RecordsCheckin() bool {
	return r.State == domain.ContinuityFirst || r.State == domain.ContinuityNewDay
}

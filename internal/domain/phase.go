package domain

// Phase is a top-level stage of the daily workflow.
type Phase string

const (
	PhaseCheckin          Phase = "checkin"
	PhaseBriefing         Phase = "briefing"
	PhaseDealReview       Phase = "dealreview"
	PhaseDealComplete     Phase = "deal_complete"
	PhaseOutreachIntro    Phase = "outreach_intro"
	PhaseOutreachComplete Phase = "outreach_complete"
	PhaseSummary          Phase = "summary"
)

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseCheckin, PhaseBriefing, PhaseDealReview, PhaseDealComplete,
		PhaseOutreachIntro, PhaseOutreachComplete, PhaseSummary:
		return true
	}
	return false
}

// Step is the check-in sub-state. It is only meaningful while the phase is
// PhaseCheckin. StepHelpDetails is the one fractional step.
type Step float64

const (
	StepNone        Step = 0
	StepReady       Step = 1
	StepHelp        Step = 2
	StepHelpDetails Step = 2.5
	StepBlockers    Step = 3
	StepProgress    Step = 4
	StepWrapUp      Step = 5
)

// ContinuityState classifies the current visit relative to earlier ones.
type ContinuityState string

const (
	ContinuityFirst               ContinuityState = "first"
	ContinuityNewDay              ContinuityState = "new_day"
	ContinuityContinuing          ContinuityState = "continuing"
	ContinuityReturning           ContinuityState = "returning"
	ContinuityReturningAfterLunch ContinuityState = "returning_after_lunch"
)

// TimeOfDay is a coarse wall-clock bucket used to pick greetings.
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Lunch     TimeOfDay = "lunch"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
)

// Persisted session keys.
const (
	KeyLastSessionAt      = "lastSessionAt"
	KeyMorningCheckinDate = "morningCheckinDate"
)

// DateLayout is the format used for morningCheckinDate.
const DateLayout = "2006-01-02"

package continuity

import (
	"fmt"

	"github.com/ashureev/dealdesk/internal/domain"
)

var salutations = map[domain.TimeOfDay]string{
	domain.Morning:   "Good morning",
	domain.Lunch:     "Hi",
	domain.Afternoon: "Good afternoon",
	domain.Evening:   "Good evening",
}

// Greeting returns the opening line for an overlay open.
func Greeting(r Result, name string) string {
	if name == "" {
		name = "there"
	}
	hello := salutations[r.TimeOfDay]
	if hello == "" {
		hello = "Hi"
	}

	switch r.State {
	case domain.ContinuityFirst:
		return fmt.Sprintf("%s, %s! I'm your daily workflow assistant. I'll walk you through a quick check-in, your action plan, and your deal review. Ready to get started?", hello, name)
	case domain.ContinuityReturningAfterLunch:
		return fmt.Sprintf("Welcome back from lunch, %s! Before we pick up where you left off: is anything blocking you right now?", name)
	case domain.ContinuityReturning:
		return fmt.Sprintf("Welcome back, %s! Anything blocking you since we last talked?", name)
	case domain.ContinuityContinuing:
		return fmt.Sprintf("Hey %s, still here. How's it going so far? Any progress or anything you're stuck on?", name)
	default:
		return fmt.Sprintf("%s, %s! New day, new deals. Ready for your morning check-in?", hello, name)
	}
}

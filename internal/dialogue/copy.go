package dialogue

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ashureev/dealdesk/internal/domain"
	"github.com/ashureev/dealdesk/internal/review"
)

// BriefingFallback is shown when a free-form briefing question cannot be
// answered.
const BriefingFallback = "Click the 'Go to Deal Review' button above to start on your deals, or 'Start Outreach' to begin calling agents."

// Button labels on the briefing's action_buttons widget.
const (
	ButtonDealReview = "Go to Deal Review"
	ButtonOutreach   = "Start Outreach"
)

// Skip confirmation options.
const (
	OptionGoBack     = "Go back"
	OptionSkipAnyway = "Skip anyway"
)

// Help confirmation options.
const (
	OptionSend     = "Send it"
	OptionRephrase = "Let me rephrase"
)

const (
	textNotReady         = "No problem. Let me know when you're ready to get started."
	textAskHelp          = "Great! Is there anything you need help with from %s today?"
	textAskHelpDetails   = "Sure. What do you need help with?"
	textConfirmHelp      = "Here's what I'll send to %s: \"%s\". Should I send it?"
	textRephraseHelp     = "No problem. Tell me again what you need help with."
	textHelpSent         = "Sent to %s. They'll follow up with you."
	textNoBlockers       = "Great, nothing in your way."
	textBlockerNoted     = "Thanks, I've noted that blocker and will keep it in your summary."
	textProgressHelp     = "Got it. I've let %s know you could use a hand."
	textProgressOK       = "Nice progress! Keep it going."
	textHandOff          = "Let's put together your action plan for the day."
	textDealsEmpty       = "There are no deals on your list right now."
	textDealCompleteNo   = "No rush. Say the word when you're ready to start outreach."
	textAgentsEmpty      = "There are no agents on your priority list right now."
	textCelebrating      = "One moment, wrapping up your outreach."
	textCelebration      = "Outreach complete! Great work today."
	textSummaryRequest   = "Write my end-of-day summary."
	textSummaryFallback  = "I couldn't reach the assistant just now. Your summary above has today's numbers."
	textReviewFallback   = "I couldn't reach the assistant just now. Keep going with %s, and say \"next\" when it's done."
	textFinishFirst      = "Okay, let's finish %s first."
	textResumeGreeting   = "Welcome back, %s. Let's pick up where we left off."
	textResetGreeting    = "Let's start over. Ready for your check-in?"
	textNothingToConfirm = "There's nothing waiting for confirmation right now."
)

func workloadSummary(w domain.Workload) string {
	return fmt.Sprintf("Here's your workload for today: %d calls, %d offers and %d campaigns. Is anything blocking you right now?",
		w.Calls, w.Offers, w.Campaigns)
}

func briefingText(w domain.Workload, deals, agents int) string {
	var b strings.Builder
	b.WriteString("Here's your action plan for today:\n")
	fmt.Fprintf(&b, "- Make %d calls\n", w.Calls)
	fmt.Fprintf(&b, "- Send %d offers\n", w.Offers)
	fmt.Fprintf(&b, "- Launch %d campaigns\n", w.Campaigns)
	fmt.Fprintf(&b, "You have %s to review and %s on your priority outreach list. Where do you want to start?",
		plural(deals, "deal"), plural(agents, "agent"))
	return b.String()
}

func dealIntro(p domain.Property, total int) string {
	return fmt.Sprintf("Let's review your %s. First up: %s. Fill in the offer status and notes, then say \"next\".",
		plural(total, "deal"), p.Label())
}

func agentIntro(a domain.Agent, total int) string {
	return fmt.Sprintf("Here's your priority outreach list: %s. First: %s%s. Log the relationship, follow-up status, follow-up date and owner, then say \"next\".",
		plural(total, "agent"), a.Label(), brokerageSuffix(a))
}

func nextUp(label string) string {
	return fmt.Sprintf("Next up: %s.", label)
}

func missingFields(label string, v review.Validation) string {
	names := make([]string, len(v.MissingFields))
	for i, f := range v.MissingFields {
		names[i] = strings.ReplaceAll(f, "_", " ")
	}
	return fmt.Sprintf("%s is still missing %s. Go back and fill it in, or skip it for now?", label, strings.Join(names, ", "))
}

func dealComplete(stats review.Stats) string {
	return fmt.Sprintf("Nice work! You've been through all %s. Ready to start your agent outreach?", plural(stats.Total, "deal"))
}

// summaryText is the canned end-of-day report.
func summaryText(s Summary) string {
	var b strings.Builder
	b.WriteString("Here's your day:\n")
	fmt.Fprintf(&b, "- Deals: %d of %d reviewed", s.Deals.Reviewed, s.Deals.Total)
	if s.Deals.Skipped > 0 {
		fmt.Fprintf(&b, " (%d skipped)", s.Deals.Skipped)
	}
	b.WriteString("\n")
	if len(s.OfferStatus) > 0 {
		keys := make([]string, 0, len(s.OfferStatus))
		for k := range s.OfferStatus {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %d", k, s.OfferStatus[k])
		}
		fmt.Fprintf(&b, "- Offer status: %s\n", strings.Join(parts, ", "))
	}
	fmt.Fprintf(&b, "- Agents: %d of %d logged", s.Agents.Reviewed, s.Agents.Total)
	if s.Agents.Skipped > 0 {
		fmt.Fprintf(&b, " (%d skipped)", s.Agents.Skipped)
	}
	b.WriteString("\n")
	if s.HelpRequested {
		b.WriteString("- You asked your manager for help today\n")
	}
	if s.Blocker != "" {
		fmt.Fprintf(&b, "- Blocker noted: %s\n", s.Blocker)
	}
	b.WriteString("Great work today!")
	return b.String()
}

func brokerageSuffix(a domain.Agent) string {
	if a.Brokerage == "" {
		return ""
	}
	return " at " + a.Brokerage
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

package dialogue

import (
	"fmt"

	"github.com/ashureev/dealdesk/internal/domain"
	"github.com/ashureev/dealdesk/internal/intent"
	"github.com/ashureev/dealdesk/internal/review"
)

var (
	outreachWords = []string{"outreach", "call", "calls", "agent", "agents"}
	dealWords     = []string{"start", "ready", "go", "begin", "deal", "deals", "review"}

	nextWords = []string{"next", "n"}
	prevWords = []string{"prev", "previous", "p"}
	skipWords = []string{"skip", "skip anyway", "skip it"}
	backWords = []string{"back", "go back"}
)

func (e *Engine) enterBriefing() {
	e.stopStaged()
	e.setPhase(domain.PhaseBriefing)
	text := briefingText(e.cfg.Workload, len(e.cfg.Properties), len(e.cfg.Agents))
	e.say(text, nil, func(m domain.Message) {
		e.stage(ButtonsDelay, func() {
			if e.phase != domain.PhaseBriefing {
				return
			}
			e.showWidget(m.ID, domain.Widget{
				Kind:    domain.WidgetActionButtons,
				Options: []string{ButtonDealReview, ButtonOutreach},
			})
		})
	})
}

// onBriefing routes outreach words first so the "Start Outreach" button
// label is not taken for a deal-review start.
func (e *Engine) onBriefing(text string) {
	switch {
	case intent.MatchAny(text, outreachWords...):
		e.navigate(ViewOutreach, FilterPriority)
		e.enterOutreach()
	case intent.MatchAny(text, dealWords...):
		e.navigate(ViewDealReview, "")
		e.enterDealReview()
	default:
		e.ask(text, e.briefingContext(), BriefingFallback)
	}
}

func (e *Engine) enterDealReview() {
	e.setPhase(domain.PhaseDealReview)
	l := e.dealLoop()
	cur, ok := l.Current()
	if !ok {
		e.say(textDealsEmpty, nil, func(domain.Message) {
			if e.phase == domain.PhaseDealReview {
				e.enterDealComplete()
			}
		})
		return
	}
	emitItem(e, domain.KindProperty, l)
	e.say(dealIntro(cur, l.Len()), nil, nil)
}

func (e *Engine) onDealReview(text string) {
	l := e.dealLoop()
	if cmd, ok := parseCommand(text, l.AwaitingSkip()); ok {
		e.handleReview(cmd)
		return
	}
	cur, _ := l.Current()
	e.ask(text, itemContext(e.phase, l, propertyContext(cur)), fmt.Sprintf(textReviewFallback, cur.Label()))
}

func (e *Engine) enterDealComplete() {
	e.setPhase(domain.PhaseDealComplete)
	w := domain.Widget{
		Kind:    domain.WidgetOutreachStart,
		Options: []string{ButtonOutreach},
	}
	e.say(dealComplete(e.dealLoop().Stats()), &w, nil)
}

func (e *Engine) onDealComplete(text string) {
	if e.classify(text, outreachHints).Negative {
		e.say(textDealCompleteNo, nil, nil)
		return
	}
	e.navigate(ViewOutreach, FilterPriority)
	e.enterOutreach()
}

func (e *Engine) enterOutreach() {
	e.setPhase(domain.PhaseOutreachIntro)
	l := e.agentLoop()
	cur, ok := l.Current()
	if !ok {
		e.say(textAgentsEmpty, nil, func(domain.Message) {
			if e.phase == domain.PhaseOutreachIntro {
				e.enterOutreachComplete()
			}
		})
		return
	}
	emitItem(e, domain.KindAgent, l)
	e.say(agentIntro(cur, l.Len()), nil, nil)
}

func (e *Engine) onOutreach(text string) {
	l := e.agentLoop()
	if cmd, ok := parseCommand(text, l.AwaitingSkip()); ok {
		e.handleReview(cmd)
		return
	}
	cur, _ := l.Current()
	e.ask(text, itemContext(e.phase, l, agentContext(cur)), fmt.Sprintf(textReviewFallback, cur.Label()))
}

func (e *Engine) enterOutreachComplete() {
	e.setPhase(domain.PhaseOutreachComplete)
	e.party.Activate(textCelebration, func() {
		if e.phase == domain.PhaseOutreachComplete {
			e.enterSummary()
		}
	})
}

func (e *Engine) onOutreachComplete(string) {
	e.say(textCelebrating, nil, nil)
}

func (e *Engine) enterSummary() {
	e.setPhase(domain.PhaseSummary)
	e.ask(textSummaryRequest, e.summaryContext(), summaryText(e.Summary()))
}

func (e *Engine) onSummary(text string) {
	e.ask(text, e.summaryContext(), textSummaryFallback)
}

// parseCommand recognizes whole-reply review commands. Skip and back only
// apply while a skip confirmation is pending.
func parseCommand(text string, awaitingSkip bool) (Command, bool) {
	switch {
	case intent.Command(text, nextWords...):
		return CommandNext, true
	case intent.Command(text, prevWords...):
		return CommandPrev, true
	case awaitingSkip && intent.Command(text, skipWords...):
		return CommandSkip, true
	case awaitingSkip && intent.Command(text, backWords...):
		return CommandBack, true
	}
	return "", false
}

// runCommand applies a navigation command to a review loop and narrates the
// result. complete runs once the loop reaches the end of its list.
func runCommand[T review.Item](e *Engine, kind domain.ItemKind, l *review.Loop[T], cmd Command, label func(T) string, complete func()) {
	switch cmd {
	case CommandNext:
		out, v := l.Advance()
		switch out {
		case review.Blocked:
			cur, _ := l.Current()
			emitItem(e, kind, l)
			w := domain.Widget{
				Kind:    domain.WidgetSkipConfirm,
				Options: []string{OptionGoBack, OptionSkipAnyway},
				Data:    map[string]any{"item_id": cur.ItemID(), "missing_fields": v.MissingFields},
			}
			e.say(missingFields(label(cur), v), &w, nil)
		case review.Moved:
			announceNext(e, kind, l, label)
		case review.Completed:
			complete()
		}
	case CommandPrev:
		if l.Retreat() == review.Moved {
			cur, _ := l.Current()
			emitItem(e, kind, l)
			e.say(fmt.Sprintf("Back to %s.", label(cur)), nil, nil)
		}
	case CommandSkip:
		switch l.Skip() {
		case review.Moved:
			announceNext(e, kind, l, label)
		case review.Completed:
			complete()
		}
	case CommandBack:
		if l.AwaitingSkip() {
			l.Dismiss()
			cur, _ := l.Current()
			emitItem(e, kind, l)
			e.say(fmt.Sprintf(textFinishFirst, label(cur)), nil, nil)
		}
	}
}

func announceNext[T review.Item](e *Engine, kind domain.ItemKind, l *review.Loop[T], label func(T) string) {
	cur, _ := l.Current()
	emitItem(e, kind, l)
	e.say(nextUp(label(cur)), nil, nil)
}

func emitItem[T review.Item](e *Engine, kind domain.ItemKind, l *review.Loop[T]) {
	cur, ok := l.Current()
	if !ok {
		return
	}
	e.sink.Emit(Frame{Type: FrameItem, Data: ItemData{
		Kind:         kind,
		Index:        l.Index(),
		Total:        l.Len(),
		Item:         cur,
		Fields:       l.Fields(cur.ItemID()),
		Validation:   l.Validate(cur),
		AwaitingSkip: l.AwaitingSkip(),
	}})
}

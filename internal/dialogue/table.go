package dialogue

import (
	"fmt"

	"github.com/ashureev/dealdesk/internal/domain"
	"github.com/ashureev/dealdesk/internal/intent"
)

type stateKey struct {
	phase domain.Phase
	step  domain.Step
}

type textHandler func(e *Engine, text string)

// transitions maps a (phase, step) pair to its free-text handler. Steps are
// only significant in check-in; other phases use StepNone.
func transitions() map[stateKey]textHandler {
	return map[stateKey]textHandler{
		{domain.PhaseCheckin, domain.StepNone}:        (*Engine).onReady,
		{domain.PhaseCheckin, domain.StepReady}:       (*Engine).onReady,
		{domain.PhaseCheckin, domain.StepHelp}:        (*Engine).onHelp,
		{domain.PhaseCheckin, domain.StepHelpDetails}: (*Engine).onHelpDetails,
		{domain.PhaseCheckin, domain.StepBlockers}:    (*Engine).onBlockers,
		{domain.PhaseCheckin, domain.StepProgress}:    (*Engine).onProgress,
		{domain.PhaseCheckin, domain.StepWrapUp}:      (*Engine).onWrapUp,

		{domain.PhaseBriefing, domain.StepNone}:         (*Engine).onBriefing,
		{domain.PhaseDealReview, domain.StepNone}:       (*Engine).onDealReview,
		{domain.PhaseDealComplete, domain.StepNone}:     (*Engine).onDealComplete,
		{domain.PhaseOutreachIntro, domain.StepNone}:    (*Engine).onOutreach,
		{domain.PhaseOutreachComplete, domain.StepNone}: (*Engine).onOutreachComplete,
		{domain.PhaseSummary, domain.StepNone}:          (*Engine).onSummary,
	}
}

var (
	readyHints = intent.Hints{
		Affirmative: []string{"let's go", "let's do it", "start", "go ahead"},
		Negative:    []string{"later", "wait", "hold on"},
	}
	helpHints = intent.Hints{
		Negative: []string{"nothing", "i'm good", "all good", "none", "nah", "no thanks", "all set", "i'm fine"},
	}
	blockerHints = intent.Hints{
		Negative: []string{"nothing", "none", "all good", "i'm good", "nah", "no blockers", "not really", "i'm fine"},
	}
	outreachHints = intent.Hints{
		Affirmative: []string{"start outreach", "outreach", "let's go", "go", "start"},
		Negative:    []string{"later", "wait", "not now"},
	}

	bareYes      = []string{"yes", "yeah", "yep", "yup", "sure", "ok", "okay"}
	confirmWords = []string{"yes", "yeah", "yep", "sure", "send", "send it", "confirm", "ok", "okay"}
	rejectWords  = []string{"no", "nope", "rephrase", "let me rephrase", "cancel"}
)

func (e *Engine) onReady(text string) {
	if e.classify(text, readyHints).Negative {
		e.setStep(domain.StepReady)
		e.say(textNotReady, nil, nil)
		return
	}
	e.setStep(domain.StepHelp)
	e.say(fmt.Sprintf(textAskHelp, e.cfg.Manager), nil, nil)
}

func (e *Engine) onHelp(text string) {
	if e.classify(text, helpHints).Negative {
		e.helpDetails = ""
		e.setStep(domain.StepBlockers)
		e.say(workloadSummary(e.cfg.Workload), nil, nil)
		return
	}

	e.setStep(domain.StepHelpDetails)
	if intent.Command(text, bareYes...) {
		e.helpDetails = ""
		e.say(textAskHelpDetails, nil, nil)
		return
	}
	e.captureHelp(text)
}

func (e *Engine) onHelpDetails(text string) {
	if e.helpDetails != "" {
		switch {
		case intent.Command(text, confirmWords...):
			e.handleConfirm(true)
			return
		case intent.Command(text, rejectWords...):
			e.handleConfirm(false)
			return
		}
	}
	e.captureHelp(text)
}

func (e *Engine) captureHelp(text string) {
	e.helpDetails = text
	w := domain.Widget{
		Kind:    domain.WidgetConfirmHelp,
		Options: []string{OptionSend, OptionRephrase},
		Data:    map[string]any{"details": text, "manager": e.cfg.Manager},
	}
	e.say(fmt.Sprintf(textConfirmHelp, e.cfg.Manager, text), &w, nil)
}

func (e *Engine) onBlockers(text string) {
	r := e.classify(text, blockerHints)
	if r.Negative || intent.Command(text, bareYes...) {
		e.say(textNoBlockers, nil, nil)
	} else {
		e.blocker = text
		e.notify(NotifyBlocker, text)
		e.say(textBlockerNoted, nil, nil)
	}
	e.wrapUp()
}

func (e *Engine) onProgress(text string) {
	if e.classify(text, intent.Hints{}).HelpNeeded {
		e.notify(NotifyHelpRequest, text)
		e.helpRequested = true
		e.say(fmt.Sprintf(textProgressHelp, e.cfg.Manager), nil, nil)
	} else {
		e.progress = text
		e.say(textProgressOK, nil, nil)
	}
	e.wrapUp()
}

// wrapUp queues the hand-off line behind the current acknowledgement and
// moves to briefing once it has settled.
func (e *Engine) wrapUp() {
	e.setStep(domain.StepWrapUp)
	e.queue(textHandOff, nil, func(domain.Message) {
		e.stage(HandOffDelay, func() {
			if e.phase == domain.PhaseCheckin && e.step == domain.StepWrapUp {
				e.enterBriefing()
			}
		})
	})
}

func (e *Engine) onWrapUp(string) {
	e.enterBriefing()
}

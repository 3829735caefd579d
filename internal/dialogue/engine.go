// Package dialogue is the phase/step state machine that drives a user's
// daily workflow conversation.
package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/dealdesk/internal/agent"
	"github.com/ashureev/dealdesk/internal/celebration"
	"github.com/ashureev/dealdesk/internal/continuity"
	"github.com/ashureev/dealdesk/internal/convlog"
	"github.com/ashureev/dealdesk/internal/domain"
	"github.com/ashureev/dealdesk/internal/eventloop"
	"github.com/ashureev/dealdesk/internal/intent"
	"github.com/ashureev/dealdesk/internal/review"
	"github.com/ashureev/dealdesk/internal/stream"
)

// Staged delays between dependent reveals.
const (
	HandOffDelay = 800 * time.Millisecond
	ButtonsDelay = 300 * time.Millisecond
)

const (
	ioTimeout = 5 * time.Second
	aiTimeout = 30 * time.Second
)

// SessionOpener records an overlay open and classifies it.
type SessionOpener interface {
	Open(ctx context.Context, userID string) (continuity.Result, error)
}

// FieldSaver persists work-item form edits.
type FieldSaver interface {
	SaveFields(ctx context.Context, userID string, kind domain.ItemKind, itemID string, fields domain.Fields) error
}

// Config is the per-user content the engine works from.
type Config struct {
	UserID     string
	SessionID  string
	UserName   string
	Manager    string
	Workload   domain.Workload
	Properties []domain.Property
	Agents     []domain.Agent
}

// Deps are the engine's collaborators. Loop is required; the rest have
// usable defaults.
type Deps struct {
	Loop       eventloop.Loop
	Sink       Sink
	Sessions   SessionOpener
	Classifier intent.Classifier
	AI         agent.Responder
	Fields     FieldSaver
	ConvLog    convlog.Logger
	Logger     *slog.Logger
	StreamOpts []stream.Option
	PartyOpts  []celebration.Option
}

// Engine is one user's dialogue. Every method except Post must run on the
// engine's loop.
type Engine struct {
	cfg        Config
	loop       eventloop.Loop
	sink       Sink
	sessions   SessionOpener
	classifier intent.Classifier
	ai         agent.Responder
	fields     FieldSaver
	convlog    convlog.Logger
	logger     *slog.Logger

	stream *stream.Scheduler
	party  *celebration.Trigger
	table  map[stateKey]textHandler

	phase      domain.Phase
	step       domain.Step
	transcript []domain.Message
	continuity continuity.Result

	helpDetails   string
	helpRequested bool
	blocker       string
	progress      string
	notifications []ManagerNotifiedData

	deals  *review.Loop[domain.Property]
	agents *review.Loop[domain.Agent]

	open     bool
	opening  bool
	openSeq  uint64
	voice    bool
	epoch    uint64
	askSeq   uint64
	staged   eventloop.Timer
	activity time.Time
}

// New creates an engine in check-in, waiting for Open.
func New(cfg Config, deps Deps) *Engine {
	e := &Engine{
		cfg:        cfg,
		loop:       deps.Loop,
		sink:       deps.Sink,
		sessions:   deps.Sessions,
		classifier: deps.Classifier,
		ai:         deps.AI,
		fields:     deps.Fields,
		convlog:    deps.ConvLog,
		logger:     deps.Logger,
		phase:      domain.PhaseCheckin,
		step:       domain.StepNone,
	}
	if e.sink == nil {
		e.sink = SinkFunc(func(Frame) {})
	}
	if e.classifier == nil {
		e.classifier = intent.NewKeywords()
	}
	if e.ai == nil {
		e.ai = agent.None{}
	}
	if e.convlog == nil {
		e.convlog = convlog.Noop{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("user_id", cfg.UserID)

	e.stream = stream.New(e.loop, streamOutput{e}, deps.StreamOpts...)
	e.party = celebration.New(e.loop, celebrationView{e}, deps.PartyOpts...)
	e.table = transitions()
	e.activity = e.loop.Now()
	return e
}

// Post schedules ev onto the engine's loop. It is safe to call from any
// goroutine.
func (e *Engine) Post(ev Event) {
	e.loop.Post(func() { e.Dispatch(ev) })
}

// Dispatch is the single entry point for input events.
func (e *Engine) Dispatch(ev Event) {
	e.activity = e.loop.Now()
	e.logger.Debug("Dialogue event", "event", ev.eventName(), "phase", e.phase, "step", e.step)

	switch ev := ev.(type) {
	case Open:
		e.handleOpen()
	case Close:
		e.handleClose()
	case UserText:
		e.handleText(ev.Text)
	case ConfirmHelp:
		e.handleConfirm(ev.Accepted)
	case ReviewCommand:
		e.handleReview(ev.Command)
	case SetField:
		e.handleSetField(ev)
	case EnterPhase:
		e.handleEnterPhase(ev.Phase)
	case VoiceMode:
		e.voice = ev.On
		e.emitPhase()
	default:
		e.logger.Warn("Unknown dialogue event", "event", ev.eventName())
	}
}

// IsOpen reports whether the overlay is open.
func (e *Engine) IsOpen() bool { return e.open }

// LastActivity returns when the engine last received an event.
func (e *Engine) LastActivity() time.Time { return e.activity }

// Shutdown cancels all pending timers and streams.
func (e *Engine) Shutdown() {
	e.open = false
	e.opening = false
	e.openSeq++
	e.invalidate()
	e.party.Abort()
}

func (e *Engine) handleOpen() {
	if e.open || e.opening {
		return
	}
	e.opening = true
	e.openSeq++
	seq := e.openSeq
	now := e.loop.Now()

	e.loop.Go(func() func() {
		var (
			res continuity.Result
			err error
		)
		if e.sessions != nil {
			ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
			res, err = e.sessions.Open(ctx, e.cfg.UserID)
			cancel()
		} else {
			res = continuity.Detect(nil, "", now)
		}

		return func() {
			if seq != e.openSeq {
				return
			}
			e.opening = false
			e.open = true
			if err != nil {
				if e.started() {
					e.logger.Warn("Session continuity lookup failed, keeping current state", "error", err)
					e.resumeInPlace()
					return
				}
				e.logger.Warn("Session continuity lookup failed, treating as first visit", "error", err)
				res = continuity.Detect(nil, "", e.loop.Now())
			}
			e.continuity = res
			e.resume(res)
		}
	})
}

// started reports whether the engine holds any conversation state.
func (e *Engine) started() bool {
	return e.phase != domain.PhaseCheckin || e.step != domain.StepNone
}

// resume picks up the conversation after a successful open. The continuity
// state always picks the greeting and check-in step, so a live engine and a
// freshly created one answer the same open the same way. Review positions
// and captured side data survive a same-day open.
func (e *Engine) resume(res continuity.Result) {
	if res.RecordsCheckin() {
		e.startDay()
	}
	if e.phase == domain.PhaseOutreachComplete {
		e.enterOutreachComplete()
		return
	}
	e.phase = domain.PhaseCheckin
	e.step = res.InitialStep
	e.emitPhase()
	e.say(continuity.Greeting(res, e.firstName()), nil, nil)
}

// resumeInPlace reopens without continuity information.
func (e *Engine) resumeInPlace() {
	if e.phase == domain.PhaseOutreachComplete {
		e.enterOutreachComplete()
		return
	}
	e.emitPhase()
	e.emitCurrentItem()
	e.say(fmt.Sprintf(textResumeGreeting, e.firstName()), nil, nil)
}

// startDay forgets everything captured on an earlier day.
func (e *Engine) startDay() {
	e.phase = domain.PhaseCheckin
	e.step = domain.StepNone
	e.helpDetails = ""
	e.helpRequested = false
	e.blocker = ""
	e.progress = ""
	e.notifications = nil
	e.deals = nil
	e.agents = nil
}

func (e *Engine) handleClose() {
	if !e.open && !e.opening {
		return
	}
	e.open = false
	e.opening = false
	e.openSeq++
	e.invalidate()
	e.party.Abort()
}

// invalidate makes every pending callback stale.
func (e *Engine) invalidate() {
	e.epoch++
	e.stream.Cancel()
	e.stopStaged()
}

func (e *Engine) handleText(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if !e.open {
		e.logger.Debug("Ignoring text while overlay is closed")
		return
	}

	e.commit(domain.NewMessage(domain.RoleUser, text, nil, e.loop.Now()))

	h, ok := e.table[e.key()]
	if !ok {
		e.logger.Warn("No transition for state", "phase", e.phase, "step", e.step)
		return
	}
	h(e, text)
}

func (e *Engine) key() stateKey {
	if e.phase == domain.PhaseCheckin {
		return stateKey{e.phase, e.step}
	}
	return stateKey{e.phase, domain.StepNone}
}

func (e *Engine) handleConfirm(accepted bool) {
	if e.phase != domain.PhaseCheckin || e.step != domain.StepHelpDetails || e.helpDetails == "" {
		e.say(textNothingToConfirm, nil, nil)
		return
	}
	if !accepted {
		e.helpDetails = ""
		e.say(textRephraseHelp, nil, nil)
		return
	}

	e.notify(NotifyHelpRequest, e.helpDetails)
	e.helpRequested = true
	e.setStep(domain.StepBlockers)
	e.say(fmt.Sprintf(textHelpSent, e.cfg.Manager), nil, nil)
	e.queue(workloadSummary(e.cfg.Workload), nil, nil)
}

func (e *Engine) handleReview(cmd Command) {
	switch e.phase {
	case domain.PhaseDealReview:
		runCommand(e, domain.KindProperty, e.dealLoop(), cmd, domain.Property.Label, e.enterDealComplete)
	case domain.PhaseOutreachIntro:
		runCommand(e, domain.KindAgent, e.agentLoop(), cmd, domain.Agent.Label, e.enterOutreachComplete)
	default:
		e.logger.Debug("Ignoring review command outside a review phase", "command", cmd, "phase", e.phase)
	}
}

func (e *Engine) handleSetField(ev SetField) {
	var err error
	switch ev.Kind {
	case domain.KindProperty:
		l := e.dealLoop()
		if err = l.SetField(ev.ItemID, ev.Key, ev.Value); err == nil {
			e.persist(ev.Kind, ev.ItemID, l.Fields(ev.ItemID))
			if cur, ok := l.Current(); ok && cur.ID == ev.ItemID && e.phase == domain.PhaseDealReview {
				emitItem(e, ev.Kind, l)
			}
		}
	case domain.KindAgent:
		l := e.agentLoop()
		if err = l.SetField(ev.ItemID, ev.Key, ev.Value); err == nil {
			e.persist(ev.Kind, ev.ItemID, l.Fields(ev.ItemID))
			if cur, ok := l.Current(); ok && cur.ID == ev.ItemID && e.phase == domain.PhaseOutreachIntro {
				emitItem(e, ev.Kind, l)
			}
		}
	default:
		e.logger.Warn("Field edit for unknown item kind", "kind", ev.Kind)
		return
	}
	if err != nil {
		e.logger.Warn("Rejected field edit", "kind", ev.Kind, "item_id", ev.ItemID, "error", err)
	}
}

// persist saves edits off the loop. Failures are logged and otherwise
// ignored.
func (e *Engine) persist(kind domain.ItemKind, itemID string, fields domain.Fields) {
	if e.fields == nil {
		return
	}
	e.loop.Go(func() func() {
		ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
		defer cancel()
		if err := e.fields.SaveFields(ctx, e.cfg.UserID, kind, itemID, fields); err != nil {
			e.logger.Warn("Failed to save item fields", "kind", kind, "item_id", itemID, "error", err)
		}
		return nil
	})
}

func (e *Engine) handleEnterPhase(p domain.Phase) {
	if !p.Valid() {
		e.logger.Warn("Ignoring reset to unknown phase", "phase", p)
		return
	}
	e.invalidate()
	e.party.Abort()
	e.transcript = nil
	e.sink.Emit(Frame{Type: FrameReset})
	e.logger.Info("Phase reset", "phase", p)

	switch p {
	case domain.PhaseCheckin:
		e.startDay()
		e.setStep(domain.StepReady)
		e.say(textResetGreeting, nil, nil)
	case domain.PhaseBriefing:
		e.enterBriefing()
	case domain.PhaseDealReview:
		e.deals = nil
		e.enterDealReview()
	case domain.PhaseDealComplete:
		e.enterDealComplete()
	case domain.PhaseOutreachIntro:
		e.agents = nil
		e.enterOutreach()
	case domain.PhaseOutreachComplete:
		e.enterOutreachComplete()
	case domain.PhaseSummary:
		e.enterSummary()
	}
}

func (e *Engine) classify(text string, hints intent.Hints) intent.Result {
	r := e.classifier.Classify(text, hints)
	e.logger.Debug("Classified reply", "phase", e.phase, "step", e.step,
		"affirmative", r.Affirmative, "negative", r.Negative, "help", r.HelpNeeded, "ambiguous", r.Ambiguous)
	return r
}

// say streams an assistant message, superseding anything in flight.
func (e *Engine) say(text string, widget *domain.Widget, onDone func(domain.Message)) {
	e.stream.Start(text, widget, onDone)
}

// queue streams an assistant message after the one in flight.
func (e *Engine) queue(text string, widget *domain.Widget, onDone func(domain.Message)) {
	e.stream.Queue(text, widget, onDone)
}

// stage runs fn after d unless the engine is invalidated first.
func (e *Engine) stage(d time.Duration, fn func()) {
	e.stopStaged()
	epoch := e.epoch
	e.staged = e.loop.After(d, func() {
		if epoch != e.epoch {
			return
		}
		e.staged = nil
		fn()
	})
}

func (e *Engine) stopStaged() {
	if e.staged != nil {
		e.staged.Stop()
		e.staged = nil
	}
}

// ask delegates a free-form question to the AI endpoint. The answer is
// dropped if the engine moved on while waiting.
func (e *Engine) ask(message string, ctxData map[string]any, fallback string) {
	e.askSeq++
	seq, epoch, phase, pos := e.askSeq, e.epoch, e.phase, e.reviewIndex()
	req := agent.Request{Message: message, Context: ctxData, UserID: e.cfg.UserID}
	e.emitTyping(true)

	e.loop.Go(func() func() {
		resp, err := e.respond(req)
		return func() {
			if seq != e.askSeq || epoch != e.epoch || phase != e.phase || pos != e.reviewIndex() {
				if !e.stream.Active() {
					e.emitTyping(false)
				}
				return
			}
			text := resp.Response
			if err != nil {
				e.logger.Warn("AI endpoint failed, using fallback", "phase", phase, "error", err)
				text = fallback
			}
			e.say(text, nil, nil)
		}
	})
}

// reviewIndex is the current item position in the active review phase, or
// -1 outside one.
func (e *Engine) reviewIndex() int {
	switch {
	case e.phase == domain.PhaseDealReview && e.deals != nil:
		return e.deals.Index()
	case e.phase == domain.PhaseOutreachIntro && e.agents != nil:
		return e.agents.Index()
	}
	return -1
}

func (e *Engine) respond(req agent.Request) (agent.Response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), aiTimeout)
	defer cancel()
	return e.ai.Respond(ctx, req)
}

func (e *Engine) notify(kind, details string) {
	n := ManagerNotifiedData{Kind: kind, Manager: e.cfg.Manager, Details: details}
	e.notifications = append(e.notifications, n)
	e.sink.Emit(Frame{Type: FrameManagerNotified, Data: n})
	e.logger.Info("Manager notified", "kind", kind, "manager", e.cfg.Manager, "details", details)
}

func (e *Engine) navigate(view, filter string) {
	e.sink.Emit(Frame{Type: FrameNavigate, Data: NavigateData{View: view, Filter: filter}})
}

func (e *Engine) setStep(s domain.Step) {
	e.step = s
	e.emitPhase()
}

func (e *Engine) setPhase(p domain.Phase) {
	e.phase = p
	e.step = domain.StepNone
	e.emitPhase()
}

func (e *Engine) emitPhase() {
	e.sink.Emit(Frame{Type: FramePhase, Data: PhaseData{Phase: e.phase, Step: e.step, VoiceMode: e.voice}})
}

func (e *Engine) emitTyping(on bool) {
	e.sink.Emit(Frame{Type: FrameTyping, Data: TypingData{On: on}})
}

func (e *Engine) emitCurrentItem() {
	switch e.phase {
	case domain.PhaseDealReview:
		emitItem(e, domain.KindProperty, e.dealLoop())
	case domain.PhaseOutreachIntro:
		emitItem(e, domain.KindAgent, e.agentLoop())
	}
}

// showWidget attaches a widget to an already committed message. The widget
// is recorded in the transcript as its own content-less entry.
func (e *Engine) showWidget(messageID string, w domain.Widget) {
	m := domain.NewMessage(domain.RoleAssistant, "", &w, e.loop.Now())
	e.transcript = append(e.transcript, m)
	e.sink.Emit(Frame{Type: FrameWidget, Data: WidgetData{MessageID: messageID, Widget: w}})
}

// commit appends a finalized message to the transcript.
func (e *Engine) commit(m domain.Message) {
	e.transcript = append(e.transcript, m)
	e.sink.Emit(Frame{Type: FrameMessage, Data: m})

	direction, eventType := "inbound", "assistant_message"
	if m.Role == domain.RoleUser {
		direction, eventType = "outbound", "user_message"
	}
	meta := map[string]any{"message_id": m.ID, "step": float64(e.step)}
	if m.Widget != nil {
		meta["widget"] = m.Widget.Kind
	}
	e.convlog.Log(convlog.Event{
		Timestamp:  m.CreatedAt.UTC().Format(time.RFC3339Nano),
		UserID:     e.cfg.UserID,
		SessionID:  e.cfg.SessionID,
		Channel:    "overlay",
		Direction:  direction,
		EventType:  eventType,
		Phase:      string(e.phase),
		ContentRaw: m.Content,
		Meta:       meta,
	})
}

func (e *Engine) firstName() string {
	u := domain.User{DisplayName: e.cfg.UserName}
	return u.FirstName()
}

func (e *Engine) dealLoop() *review.Loop[domain.Property] {
	if e.deals == nil {
		e.deals = review.New(e.cfg.Properties, review.Options{
			Required:      domain.PropertyRequiredFields,
			WrapOnRetreat: true,
		})
	}
	return e.deals
}

func (e *Engine) agentLoop() *review.Loop[domain.Agent] {
	if e.agents == nil {
		e.agents = review.New(e.cfg.Agents, review.Options{
			Required: domain.AgentRequiredFields,
		})
	}
	return e.agents
}

type streamOutput struct{ e *Engine }

func (o streamOutput) Typing(on bool) { o.e.emitTyping(on) }

func (o streamOutput) Partial(id, text string) {
	o.e.sink.Emit(Frame{Type: FrameToken, Data: TokenData{ID: id, Text: text}})
}

func (o streamOutput) Commit(m domain.Message) { o.e.commit(m) }

type celebrationView struct{ e *Engine }

func (v celebrationView) Start(p []celebration.Particle) {
	v.e.sink.Emit(Frame{Type: FrameCelebration, Data: CelebrationData{Stage: CelebrationStart, Particles: p}})
}

func (v celebrationView) ShowMessage(text string) {
	v.e.sink.Emit(Frame{Type: FrameCelebration, Data: CelebrationData{Stage: CelebrationMessage, Message: text}})
}

func (v celebrationView) Fade() {
	v.e.sink.Emit(Frame{Type: FrameCelebration, Data: CelebrationData{Stage: CelebrationFade}})
}

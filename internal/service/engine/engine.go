// Package engine implements the per-session conversation state machine:
// IDLE -> AWAITING_REPLY -> IDLE, or AWAITING_REPLY -> ESCALATING -> ESCALATED.
package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/retailbot/support-widget/internal/analysis/intent"
	"github.com/retailbot/support-widget/internal/logging"
	"github.com/retailbot/support-widget/internal/metrics"
	"github.com/retailbot/support-widget/internal/model/assistant"
	"github.com/retailbot/support-widget/internal/model/chat"
	"github.com/retailbot/support-widget/internal/service/fallback"
	"github.com/retailbot/support-widget/internal/service/notify"
)

const (
	DefaultThinkingDelay   = time.Second
	DefaultThinkingJitter  = time.Second
	DefaultEscalationDelay = 2 * time.Second
	DefaultFallbackTimeout = 20 * time.Second
)

// Turn labels recorded for replies that did not come from the rule table.
const (
	CategoryResponder     = "responder"
	CategoryFallbackError = "fallback_error"
)

// EventType identifies what changed in a session.
type EventType string

const (
	EventMessage EventType = "message"
	EventState   EventType = "state"
	EventReset   EventType = "reset"
)

// Event is delivered to subscribers after every mutation, in mutation order.
type Event struct {
	Type      EventType
	SessionID string
	State     chat.State
	Message   *chat.Message
	Snapshot  *Snapshot
}

// Snapshot is a copy of the session state and log.
type Snapshot struct {
	SessionID string
	State     chat.State
	Messages  []chat.Message
}

// Options configures an Engine. Zero delays mean no delay; the other zero
// values select the defaults.
type Options struct {
	SessionID string

	Classifier *intent.Classifier
	Renderer   *intent.Renderer
	// Responder, when set, replaces the rule table for non-escalation turns.
	Responder fallback.Responder

	Scheduler       Scheduler
	ThinkingDelay   time.Duration
	ThinkingJitter  time.Duration
	EscalationDelay time.Duration
	FallbackTimeout time.Duration
	HistoryLimit    int

	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Profile  assistant.Profile
	Logger   *logrus.Entry
	Now      func() time.Time
}

type subscriber struct {
	id uint64
	fn func(Event)
}

// Engine owns one conversation. It is the only writer of the session state
// and message log.
type Engine struct {
	id         string
	classifier *intent.Classifier
	renderer   *intent.Renderer
	responder  fallback.Responder
	scheduler  Scheduler
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	profile    assistant.Profile
	log        *logrus.Entry
	now        func() time.Time

	thinkingDelay   time.Duration
	thinkingJitter  time.Duration
	escalationDelay time.Duration
	fallbackTimeout time.Duration
	historyLimit    int

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	state          chat.State
	messages       []chat.Message
	generation     uint64
	lastActivity   time.Time
	closed         bool
	subscribers    []subscriber
	nextSubscriber uint64

	// emitMu is taken before mu is released so events leave in mutation order.
	emitMu sync.Mutex
}

// New creates an engine in IDLE with the greeting already in the log.
func New(opts Options) *Engine {
	e := &Engine{
		id:              opts.SessionID,
		classifier:      opts.Classifier,
		renderer:        opts.Renderer,
		responder:       opts.Responder,
		scheduler:       opts.Scheduler,
		notifier:        opts.Notifier,
		metrics:         opts.Metrics,
		profile:         opts.Profile,
		log:             opts.Logger,
		now:             opts.Now,
		thinkingDelay:   opts.ThinkingDelay,
		thinkingJitter:  opts.ThinkingJitter,
		escalationDelay: opts.EscalationDelay,
		fallbackTimeout: opts.FallbackTimeout,
		historyLimit:    opts.HistoryLimit,
	}

	if e.id == "" {
		e.id = uuid.NewString()
	}
	if e.classifier == nil {
		e.classifier = intent.NewClassifier(nil)
	}
	if e.renderer == nil {
		e.renderer = intent.NewRenderer()
	}
	if e.scheduler == nil {
		e.scheduler = TimerScheduler{}
	}
	if e.notifier == nil {
		e.notifier = notify.Nop{}
	}
	if e.profile.Name == "" {
		e.profile = assistant.Default()
	}
	if e.log == nil {
		e.log = logging.Component(logging.Discard(), "engine")
	}
	e.log = e.log.WithField("session_id", e.id)
	if e.now == nil {
		e.now = time.Now
	}
	if e.fallbackTimeout <= 0 {
		e.fallbackTimeout = DefaultFallbackTimeout
	}
	if e.historyLimit < 1 {
		e.historyLimit = fallback.DefaultHistoryLimit
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.state = chat.StateIdle
	e.seedLocked()
	return e
}

// ID returns the session id.
func (e *Engine) ID() string {
	return e.id
}

// State returns the current session state.
func (e *Engine) State() chat.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Messages returns a copy of the log.
func (e *Engine) Messages() []chat.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.messages)
}

// Snapshot returns a copy of the state and log taken under one lock.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// LastActivity is the time of the last submit, reply or reset.
func (e *Engine) LastActivity() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastActivity
}

// Busy reports whether a reply or hand-off step is still scheduled.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == chat.StateAwaitingReply || e.state == chat.StateEscalating
}

// Subscribe registers fn for every later event and returns the state the
// events apply to. fn runs synchronously after the mutation and must not
// call Submit or Reset.
func (e *Engine) Subscribe(fn func(Event)) (Snapshot, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := e.snapshotLocked()
	if e.closed {
		return snapshot, func() {}
	}

	id := e.nextSubscriber
	e.nextSubscriber++
	e.subscribers = append(e.subscribers, subscriber{id: id, fn: fn})

	return snapshot, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.subscribers = slices.DeleteFunc(e.subscribers, func(s subscriber) bool {
			return s.id == id
		})
	}
}

// Submit appends a customer turn and schedules its reply. It is a no-op,
// reporting false, for blank text or when the session is not IDLE.
func (e *Engine) Submit(raw string) bool {
	text := strings.TrimSpace(raw)
	if text == "" {
		return false
	}

	e.mu.Lock()
	if e.closed || !e.state.AcceptsInput() {
		e.mu.Unlock()
		return false
	}

	history := slices.Clone(e.messages)
	msg := e.appendLocked(chat.RoleUser, text)
	e.state = chat.StateAwaitingReply
	gen := e.generation

	delay := e.nextThinkingDelay()
	e.scheduler.After(delay, func() {
		e.resolveTurn(gen, text, history)
	})

	e.log.WithField("delay", delay).Debug("Customer turn accepted")
	e.commitLocked(messageEvent(e.id, msg, e.state), stateEvent(e.id, e.state))
	return true
}

// Reset discards the conversation and starts over from the greeting. A turn
// in AWAITING_REPLY or ESCALATING always runs to completion, so Reset is a
// no-op, reporting false, while the engine is busy.
func (e *Engine) Reset() bool {
	e.mu.Lock()
	if e.closed || e.state == chat.StateAwaitingReply || e.state == chat.StateEscalating {
		e.mu.Unlock()
		return false
	}

	e.generation++
	e.messages = nil
	e.state = chat.StateIdle
	e.seedLocked()
	snapshot := e.snapshotLocked()

	e.log.Debug("Session reset")
	e.commitLocked(Event{Type: EventReset, SessionID: e.id, State: e.state, Snapshot: &snapshot})
	return true
}

// Close drops subscribers and abandons scheduled work. A closed engine
// ignores Submit and Reset.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.subscribers = nil
	e.cancel()
}

type outcome struct {
	text     string
	category string
	escalate bool
	source   string
	err      error
}

func (e *Engine) resolveTurn(gen uint64, text string, history []chat.Message) {
	if !e.current(gen, chat.StateAwaitingReply) {
		return
	}

	started := e.now()
	out := e.decide(text, history)

	e.mu.Lock()
	if e.closed || gen != e.generation || e.state != chat.StateAwaitingReply {
		e.mu.Unlock()
		return
	}

	var events []Event
	if out.escalate {
		msg := e.appendLocked(chat.RoleBot, intent.TransferMessage)
		e.state = chat.StateEscalating
		e.scheduler.After(e.escalationDelay, func() {
			e.completeHandoff(gen, out.source)
		})
		events = append(events, messageEvent(e.id, msg, e.state), stateEvent(e.id, e.state))
		e.log.WithField("source", out.source).Info("Escalation requested")
	} else {
		msg := e.appendLocked(chat.RoleBot, out.text)
		e.state = chat.StateIdle
		events = append(events, messageEvent(e.id, msg, e.state), stateEvent(e.id, e.state))
		e.log.WithField("category", out.category).Debug("Turn resolved")
	}
	e.commitLocked(events...)

	e.metrics.ObserveTurn(out.category)
	e.metrics.ObserveReply(e.now().Sub(started))
	if out.err != nil {
		e.metrics.ObserveFallbackFailure(fallback.Kind(out.err))
		e.notifier.FallbackFailed(e.ctx, e.id, out.err)
	}
}

// current reports whether work scheduled in generation gen still applies.
func (e *Engine) current(gen uint64, state chat.State) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed && gen == e.generation && e.state == state
}

func (e *Engine) decide(text string, history []chat.Message) outcome {
	normalized := intent.Normalize(text)

	if e.responder == nil {
		match := e.classifier.Classify(normalized)
		if match.Category == intent.Escalate {
			return outcome{escalate: true, source: metrics.SourceKeyword, category: string(intent.Escalate)}
		}
		return outcome{text: e.renderer.Render(match), category: string(match.Category)}
	}

	// The keyword check holds even when a responder is configured.
	if intent.IsEscalation(normalized) {
		return outcome{escalate: true, source: metrics.SourceKeyword, category: string(intent.Escalate)}
	}

	reply, err := e.callResponder(text, history)
	if err != nil {
		e.log.WithError(err).WithField("kind", fallback.Kind(err)).Warn("Fallback responder failed")
		return outcome{text: intent.ApologyMessage, category: CategoryFallbackError, err: err}
	}
	if reply.Escalate {
		return outcome{escalate: true, source: metrics.SourceResponder, category: string(intent.Escalate)}
	}
	return outcome{text: reply.Text, category: CategoryResponder}
}

// callResponder bounds the call by the fallback timeout even if the
// responder ignores its context.
func (e *Engine) callResponder(text string, history []chat.Message) (fallback.Reply, error) {
	ctx, cancel := context.WithTimeout(e.ctx, e.fallbackTimeout)
	defer cancel()

	type result struct {
		reply fallback.Reply
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := e.responder.Reply(ctx, text, history)
		done <- result{reply: reply, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return fallback.Reply{}, fallback.Classify(res.err)
		}
		if !res.reply.Escalate && strings.TrimSpace(res.reply.Text) == "" {
			return fallback.Reply{}, fmt.Errorf("%w: empty reply", fallback.ErrUnavailable)
		}
		return res.reply, nil
	case <-ctx.Done():
		return fallback.Reply{}, fallback.Classify(ctx.Err())
	}
}

func (e *Engine) completeHandoff(gen uint64, source string) {
	e.mu.Lock()
	if e.closed || gen != e.generation || e.state != chat.StateEscalating {
		e.mu.Unlock()
		return
	}

	msg := e.appendLocked(chat.RoleBot, intent.HandoffMessage)
	e.state = chat.StateEscalated
	handoff := notify.Handoff{
		SessionID:   e.id,
		RequestedAt: msg.CreatedAt,
		Source:      source,
		Transcript:  slices.Clone(e.messages),
	}

	e.log.Info("Conversation handed off")
	e.commitLocked(messageEvent(e.id, msg, e.state), stateEvent(e.id, e.state))

	e.metrics.ObserveEscalation(source)
	e.notifier.HandoffRequested(e.ctx, handoff)
}

// commitLocked releases e.mu and delivers events to the subscribers that
// were registered when the mutation happened.
func (e *Engine) commitLocked(events ...Event) {
	subs := slices.Clone(e.subscribers)
	e.emitMu.Lock()
	e.mu.Unlock()
	defer e.emitMu.Unlock()

	for _, ev := range events {
		for _, s := range subs {
			s.fn(ev)
		}
	}
}

func (e *Engine) seedLocked() {
	e.appendLocked(chat.RoleBot, e.profile.OpeningMessage())
}

func (e *Engine) appendLocked(role chat.Role, content string) chat.Message {
	msg := chat.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: e.now().UTC(),
	}
	e.messages = append(e.messages, msg)
	e.lastActivity = msg.CreatedAt
	return msg
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID: e.id,
		State:     e.state,
		Messages:  slices.Clone(e.messages),
	}
}

func (e *Engine) nextThinkingDelay() time.Duration {
	if e.thinkingJitter <= 0 {
		return e.thinkingDelay
	}
	return e.thinkingDelay + rand.N(e.thinkingJitter+1)
}

func messageEvent(sessionID string, msg chat.Message, state chat.State) Event {
	return Event{Type: EventMessage, SessionID: sessionID, State: state, Message: &msg}
}

func stateEvent(sessionID string, state chat.State) Event {
	return Event{Type: EventState, SessionID: sessionID, State: state}
}

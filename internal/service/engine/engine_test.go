package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/retailbot/support-widget/internal/analysis/intent"
	"github.com/retailbot/support-widget/internal/metrics"
	"github.com/retailbot/support-widget/internal/model/assistant"
	"github.com/retailbot/support-widget/internal/model/chat"
	"github.com/retailbot/support-widget/internal/service/fallback"
	"github.com/retailbot/support-widget/internal/service/notify"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeResponder struct {
	mu      sync.Mutex
	reply   fallback.Reply
	err     error
	block   bool
	calls   int
	history []chat.Message
}

func (f *fakeResponder) Reply(ctx context.Context, _ string, history []chat.Message) (fallback.Reply, error) {
	f.mu.Lock()
	f.calls++
	f.history = history
	block, reply, err := f.block, f.reply, f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return fallback.Reply{}, ctx.Err()
	}
	return reply, err
}

func (f *fakeResponder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingNotifier struct {
	mu       sync.Mutex
	failures []error
	handoffs []notify.Handoff
}

func (n *recordingNotifier) FallbackFailed(_ context.Context, _ string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, err)
}

func (n *recordingNotifier) HandoffRequested(_ context.Context, h notify.Handoff) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handoffs = append(n.handoffs, h)
}

type harness struct {
	engine    *Engine
	scheduler *ManualScheduler
	notifier  *recordingNotifier
	metrics   *metrics.Metrics
}

func newHarness(t *testing.T, responder fallback.Responder, opts ...func(*Options)) *harness {
	t.Helper()

	h := &harness{
		scheduler: NewManualScheduler(),
		notifier:  &recordingNotifier{},
		metrics:   metrics.NewMetrics(prometheus.NewRegistry()),
	}
	o := Options{
		SessionID:       "session-1",
		Scheduler:       h.scheduler,
		ThinkingDelay:   time.Second,
		EscalationDelay: 2 * time.Second,
		Notifier:        h.notifier,
		Metrics:         h.metrics,
	}
	if responder != nil {
		o.Responder = responder
	}
	for _, fn := range opts {
		fn(&o)
	}

	h.engine = New(o)
	t.Cleanup(h.engine.Close)
	return h
}

func lastMessage(t *testing.T, e *Engine) chat.Message {
	t.Helper()
	msgs := e.Messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

func TestNewSeedsGreeting(t *testing.T) {
	h := newHarness(t, nil)

	msgs := h.engine.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.RoleBot, msgs[0].Role)
	assert.Equal(t, assistant.Default().OpeningMessage(), msgs[0].Content)
	assert.Equal(t, chat.StateIdle, h.engine.State())
}

func TestSubmitResolvesToIdle(t *testing.T) {
	h := newHarness(t, nil)
	base := len(h.engine.Messages())

	require.True(t, h.engine.Submit("  Hello  "))
	assert.Equal(t, chat.StateAwaitingReply, h.engine.State())
	assert.Equal(t, []time.Duration{time.Second}, h.scheduler.Delays())

	user := lastMessage(t, h.engine)
	assert.Equal(t, chat.RoleUser, user.Role)
	assert.Equal(t, "Hello", user.Content)

	require.True(t, h.scheduler.Step())

	assert.Equal(t, chat.StateIdle, h.engine.State())
	msgs := h.engine.Messages()
	require.Len(t, msgs, base+2)
	reply := msgs[len(msgs)-1]
	assert.Equal(t, chat.RoleBot, reply.Role)
	assert.Equal(t, intent.NewRenderer().Render(intent.Match{Category: intent.Greeting}), reply.Content)
	assert.Zero(t, h.scheduler.Pending())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TurnsTotal.WithLabelValues(string(intent.Greeting))))
}

func TestOrderTrackingVariantReply(t *testing.T) {
	h := newHarness(t, nil)
	renderer := intent.NewRenderer()

	require.True(t, h.engine.Submit("track order 48291"))
	h.scheduler.Drain()

	want := renderer.Render(intent.Match{Category: intent.OrderTracking, Variant: intent.VariantOrderFound})
	assert.Equal(t, want, lastMessage(t, h.engine).Content)
}

func TestSubmitIgnoredUnlessIdle(t *testing.T) {
	h := newHarness(t, nil)

	require.True(t, h.engine.Submit("where is my order"))
	before := h.engine.Messages()

	assert.False(t, h.engine.Submit("hello?"))
	assert.Equal(t, before, h.engine.Messages())
	assert.Equal(t, 1, h.scheduler.Pending())
}

func TestBlankSubmitIsNoop(t *testing.T) {
	h := newHarness(t, nil)

	for _, text := range []string{"", "   ", "\n\t"} {
		assert.False(t, h.engine.Submit(text))
	}
	assert.Len(t, h.engine.Messages(), 1)
	assert.Equal(t, chat.StateIdle, h.engine.State())
	assert.Zero(t, h.scheduler.Pending())
}

func TestEscalationSequence(t *testing.T) {
	h := newHarness(t, nil)

	require.True(t, h.engine.Submit("I want a human"))
	require.True(t, h.scheduler.Step())

	assert.Equal(t, chat.StateEscalating, h.engine.State())
	require.Len(t, h.engine.Messages(), 3)
	assert.Equal(t, intent.TransferMessage, lastMessage(t, h.engine).Content)
	assert.Equal(t, []time.Duration{2 * time.Second}, h.scheduler.Delays())

	assert.False(t, h.engine.Submit("hello?"))
	assert.Len(t, h.engine.Messages(), 3)

	require.True(t, h.scheduler.Step())

	assert.Equal(t, chat.StateEscalated, h.engine.State())
	require.Len(t, h.engine.Messages(), 4)
	assert.Equal(t, intent.HandoffMessage, lastMessage(t, h.engine).Content)

	assert.False(t, h.engine.Submit("anyone there?"))
	assert.Len(t, h.engine.Messages(), 4)
	assert.Zero(t, h.scheduler.Pending())

	require.Len(t, h.notifier.handoffs, 1)
	handoff := h.notifier.handoffs[0]
	assert.Equal(t, "session-1", handoff.SessionID)
	assert.Equal(t, metrics.SourceKeyword, handoff.Source)
	assert.Len(t, handoff.Transcript, 4)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EscalationsTotal.WithLabelValues(metrics.SourceKeyword)))
}

func TestFallbackFailureApologises(t *testing.T) {
	responder := &fakeResponder{err: errors.New("googleapi: Error 429: quota exceeded")}
	h := newHarness(t, responder)

	require.True(t, h.engine.Submit("do you have this in blue?"))
	require.NotPanics(t, func() { h.scheduler.Step() })

	assert.Equal(t, chat.StateIdle, h.engine.State())
	msgs := h.engine.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, intent.ApologyMessage, msgs[2].Content)

	require.Len(t, h.notifier.failures, 1)
	assert.ErrorIs(t, h.notifier.failures[0], fallback.ErrQuotaExceeded)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.FallbackFailures.WithLabelValues("quota_exceeded")))

	// The session keeps working after a failure.
	responder.mu.Lock()
	responder.err = nil
	responder.reply = fallback.Reply{Text: "Yes, blue is in stock."}
	responder.mu.Unlock()

	require.True(t, h.engine.Submit("and in red?"))
	h.scheduler.Drain()
	assert.Equal(t, "Yes, blue is in stock.", lastMessage(t, h.engine).Content)
}

func TestResponderReply(t *testing.T) {
	responder := &fakeResponder{reply: fallback.Reply{Text: "We open at 9am."}}
	h := newHarness(t, responder)
	greeting := h.engine.Messages()

	require.True(t, h.engine.Submit("when do you open"))
	h.scheduler.Drain()

	assert.Equal(t, chat.StateIdle, h.engine.State())
	assert.Equal(t, "We open at 9am.", lastMessage(t, h.engine).Content)
	assert.Equal(t, 1, responder.Calls())
	assert.Equal(t, greeting, responder.history)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TurnsTotal.WithLabelValues(CategoryResponder)))
}

func TestResponderEmptyReplyIsUnavailable(t *testing.T) {
	responder := &fakeResponder{reply: fallback.Reply{Text: "   "}}
	h := newHarness(t, responder)

	require.True(t, h.engine.Submit("anything"))
	h.scheduler.Drain()

	assert.Equal(t, intent.ApologyMessage, lastMessage(t, h.engine).Content)
	require.Len(t, h.notifier.failures, 1)
	assert.ErrorIs(t, h.notifier.failures[0], fallback.ErrUnavailable)
}

func TestResponderEscalation(t *testing.T) {
	responder := &fakeResponder{reply: fallback.Reply{Escalate: true}}
	h := newHarness(t, responder)

	require.True(t, h.engine.Submit("this is going nowhere"))
	require.True(t, h.scheduler.Step())
	assert.Equal(t, chat.StateEscalating, h.engine.State())
	assert.Equal(t, intent.TransferMessage, lastMessage(t, h.engine).Content)

	require.True(t, h.scheduler.Step())
	assert.Equal(t, chat.StateEscalated, h.engine.State())
	require.Len(t, h.notifier.handoffs, 1)
	assert.Equal(t, metrics.SourceResponder, h.notifier.handoffs[0].Source)
}

func TestKeywordEscalationBypassesResponder(t *testing.T) {
	responder := &fakeResponder{reply: fallback.Reply{Text: "Sure, I can help with that."}}
	h := newHarness(t, responder)

	require.True(t, h.engine.Submit("Can I speak to someone please"))
	require.True(t, h.scheduler.Step())

	assert.Equal(t, chat.StateEscalating, h.engine.State())
	assert.Zero(t, responder.Calls())
}

func TestResponderTimeoutIsUnavailable(t *testing.T) {
	responder := &fakeResponder{block: true}
	h := newHarness(t, responder, func(o *Options) {
		o.FallbackTimeout = 20 * time.Millisecond
	})

	require.True(t, h.engine.Submit("is the store open on sunday"))
	require.True(t, h.scheduler.Step())

	assert.Equal(t, chat.StateIdle, h.engine.State())
	assert.Equal(t, intent.ApologyMessage, lastMessage(t, h.engine).Content)
	require.Len(t, h.notifier.failures, 1)
	assert.ErrorIs(t, h.notifier.failures[0], fallback.ErrUnavailable)
}

func TestResetRefusedWhileAwaitingReply(t *testing.T) {
	h := newHarness(t, nil)

	require.True(t, h.engine.Submit("I need a refund"))
	assert.False(t, h.engine.Reset())
	assert.Equal(t, chat.StateAwaitingReply, h.engine.State())
	require.Len(t, h.engine.Messages(), 2)

	require.True(t, h.scheduler.Step())
	assert.Equal(t, chat.StateIdle, h.engine.State())
	assert.Len(t, h.engine.Messages(), 3)

	assert.True(t, h.engine.Reset())
	assert.Len(t, h.engine.Messages(), 1)
}

func TestResetDoesNotAbortHandoff(t *testing.T) {
	h := newHarness(t, nil)

	require.True(t, h.engine.Submit("I want a human"))
	require.True(t, h.scheduler.Step())
	require.Equal(t, chat.StateEscalating, h.engine.State())

	assert.False(t, h.engine.Reset())
	h.scheduler.Drain()

	assert.Equal(t, chat.StateEscalated, h.engine.State())
	assert.Equal(t, intent.HandoffMessage, lastMessage(t, h.engine).Content)
	require.Len(t, h.notifier.handoffs, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.EscalationsTotal.WithLabelValues(metrics.SourceKeyword)))
}

func TestOneResponderCallPerLiveTurn(t *testing.T) {
	responder := &fakeResponder{reply: fallback.Reply{Text: "We open at 9."}}
	h := newHarness(t, responder)

	require.True(t, h.engine.Submit("question one"))
	assert.False(t, h.engine.Reset())
	assert.False(t, h.engine.Submit("question two"))
	assert.Equal(t, 1, h.scheduler.Pending())

	h.scheduler.Drain()
	assert.Equal(t, 1, responder.Calls())
	assert.Equal(t, "We open at 9.", lastMessage(t, h.engine).Content)
}

func TestClosedEngineSkipsResponder(t *testing.T) {
	responder := &fakeResponder{reply: fallback.Reply{Text: "unused"}}
	h := newHarness(t, responder)

	require.True(t, h.engine.Submit("question"))
	h.engine.Close()
	h.scheduler.Drain()

	assert.Zero(t, responder.Calls())
}

func TestResetAfterEscalation(t *testing.T) {
	h := newHarness(t, nil)

	require.True(t, h.engine.Submit("agent"))
	h.scheduler.Drain()
	require.Equal(t, chat.StateEscalated, h.engine.State())

	require.True(t, h.engine.Reset())
	assert.Equal(t, chat.StateIdle, h.engine.State())
	assert.Len(t, h.engine.Messages(), 1)
	assert.True(t, h.engine.Submit("hello"))
}

func TestSubscribeReceivesEventsInOrder(t *testing.T) {
	h := newHarness(t, nil)

	var got []EventType
	var states []chat.State
	snapshot, unsubscribe := h.engine.Subscribe(func(ev Event) {
		got = append(got, ev.Type)
		if ev.Type == EventState {
			states = append(states, ev.State)
		}
	})
	assert.Len(t, snapshot.Messages, 1)
	assert.Equal(t, chat.StateIdle, snapshot.State)

	require.True(t, h.engine.Submit("thanks"))
	h.scheduler.Drain()

	assert.Equal(t, []EventType{EventMessage, EventState, EventMessage, EventState}, got)
	assert.Equal(t, []chat.State{chat.StateAwaitingReply, chat.StateIdle}, states)

	unsubscribe()
	require.True(t, h.engine.Reset())
	assert.Len(t, got, 4)
}

func TestResetEventCarriesSnapshot(t *testing.T) {
	h := newHarness(t, nil)

	var events []Event
	_, unsubscribe := h.engine.Subscribe(func(ev Event) { events = append(events, ev) })
	defer unsubscribe()

	require.True(t, h.engine.Reset())

	require.Len(t, events, 1)
	assert.Equal(t, EventReset, events[0].Type)
	require.NotNil(t, events[0].Snapshot)
	assert.Len(t, events[0].Snapshot.Messages, 1)
}

func TestCloseIgnoresInputAndScheduledWork(t *testing.T) {
	h := newHarness(t, nil)

	require.True(t, h.engine.Submit("hello"))
	h.engine.Close()

	h.scheduler.Drain()
	assert.Len(t, h.engine.Messages(), 2)
	assert.Equal(t, chat.StateAwaitingReply, h.engine.State())
	assert.False(t, h.engine.Submit("hello again"))

	// Close is idempotent.
	h.engine.Close()
}

func TestCustomRuleTable(t *testing.T) {
	rules := []intent.Rule{{
		Category: intent.Escalate,
		Matches:  func(s string) bool { return s == "help" },
	}}
	h := newHarness(t, nil, func(o *Options) {
		o.Classifier = intent.NewClassifier(rules)
	})

	require.True(t, h.engine.Submit("HELP"))
	h.scheduler.Step()
	assert.Equal(t, chat.StateEscalating, h.engine.State())
}

func TestThinkingDelayJitter(t *testing.T) {
	h := newHarness(t, nil, func(o *Options) {
		o.ThinkingDelay = time.Second
		o.ThinkingJitter = time.Second
	})

	for i := 0; i < 20; i++ {
		require.True(t, h.engine.Submit("hello"))
		delays := h.scheduler.Delays()
		require.Len(t, delays, 1)
		assert.GreaterOrEqual(t, delays[0], time.Second)
		assert.LessOrEqual(t, delays[0], 2*time.Second)
		h.scheduler.Drain()
	}
}

func TestTimerSchedulerResolves(t *testing.T) {
	e := New(Options{Scheduler: TimerScheduler{}, ThinkingDelay: time.Millisecond})
	defer e.Close()

	idle := make(chan struct{}, 4)
	_, unsubscribe := e.Subscribe(func(ev Event) {
		if ev.Type == EventState && ev.State == chat.StateIdle {
			idle <- struct{}{}
		}
	})
	defer unsubscribe()

	require.True(t, e.Submit("what time do you close"))

	select {
	case <-idle:
	case <-time.After(2 * time.Second):
		t.Fatal("reply was not delivered")
	}
	assert.Len(t, e.Messages(), 3)
	assert.False(t, e.Busy())
}

package core

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focustrack/modules/core/timer"
	"focustrack/modules/platform/daemon"
	"focustrack/modules/platform/logger"
)

func TestMain(m *testing.M) {
	logger.SetGlobalLogger(logger.NewNop())
	os.Exit(m.Run())
}

type sentMessage struct {
	Type    daemon.MessageType
	Payload interface{}
}

// fakeChannel records outbound messages and lets the test push inbound ones
type fakeChannel struct {
	mu           sync.Mutex
	handler      func(*daemon.Message)
	onDisconnect func()
	sent         []sentMessage
	closed       bool
	sendErr      error
}

func (f *fakeChannel) SetHandler(h func(*daemon.Message)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeChannel) SetDisconnectHandler(h func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDisconnect = h
}

func (f *fakeChannel) Send(msgType daemon.MessageType, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return daemon.ErrChannelClosed
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{Type: msgType, Payload: payload})
	return nil
}

func (f *fakeChannel) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeChannel) sentTypes() []daemon.MessageType {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]daemon.MessageType, 0, len(f.sent))
	for _, m := range f.sent {
		types = append(types, m.Type)
	}
	return types
}

func (f *fakeChannel) lastSent() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func (f *fakeChannel) deliver(t *testing.T, msgType daemon.MessageType, payload interface{}) {
	t.Helper()
	msg, err := daemon.NewMessage(msgType, payload)
	require.NoError(t, err)
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	require.NotNil(t, h, "presenter not opened")
	h(msg)
}

// sever simulates the daemon going away
func (f *fakeChannel) sever() {
	f.mu.Lock()
	f.closed = true
	h := f.onDisconnect
	f.mu.Unlock()
	if h != nil {
		h()
	}
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newOpenPresenter(t *testing.T) (*TimerPresenter, *fakeChannel, *clock) {
	t.Helper()
	ch := &fakeChannel{}
	clk := &clock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
	p := NewTimerPresenter(ch)
	p.now = clk.Now
	require.NoError(t, p.Open())
	return p, ch, clk
}

func focusState(focusMin, breakMin int, focusType string) timer.State {
	return timer.State{
		Mode:                  timer.ModeFocus,
		FocusLengthMinutes:    focusMin,
		BreakLengthMinutes:    breakMin,
		FocusType:             focusType,
		RemainingFocusSeconds: focusMin * 60,
		RemainingBreakSeconds: breakMin * 60,
	}
}

func TestOpen_RequestsState(t *testing.T) {
	p, ch, _ := newOpenPresenter(t)

	assert.Equal(t, []daemon.MessageType{daemon.MsgGetState}, ch.sentTypes())
	assert.False(t, p.IsSynced())
	assert.True(t, p.IsConnected())

	// Opening twice sends nothing more
	require.NoError(t, p.Open())
	assert.Len(t, ch.sentTypes(), 1)
}

func TestStateUpdate_ReplacesCache(t *testing.T) {
	p, ch, _ := newOpenPresenter(t)

	want := focusState(25, 5, "Work")
	want.RemainingFocusSeconds = 1234
	ch.deliver(t, daemon.MsgStateUpdate, want)

	assert.True(t, p.IsSynced())
	if diff := cmp.Diff(want, p.State()); diff != "" {
		t.Errorf("cached state mismatch (-want +got):\n%s", diff)
	}
}

func TestTimerUpdate_UpdatesCounters(t *testing.T) {
	p, ch, _ := newOpenPresenter(t)
	ch.deliver(t, daemon.MsgStateUpdate, focusState(25, 5, "Work"))

	ch.deliver(t, daemon.MsgTimerUpdate, timer.Remaining{RemainingFocusSeconds: 1400, RemainingBreakSeconds: 300})

	s := p.State()
	assert.Equal(t, timer.ModeFocus, s.Mode)
	assert.Equal(t, 1400, s.RemainingFocusSeconds)
	assert.Equal(t, "Work", s.FocusType)
}

func TestSessionComplete_ReturnsToIdle(t *testing.T) {
	p, ch, _ := newOpenPresenter(t)
	ch.deliver(t, daemon.MsgStateUpdate, focusState(25, 5, "Work"))

	ch.deliver(t, daemon.MsgTimerUpdate, timer.Remaining{RemainingFocusSeconds: 1, RemainingBreakSeconds: 120})
	ch.deliver(t, daemon.MsgSessionComplete, nil)

	// Counters are full again even before the controller's STATE_UPDATE
	want := timer.IdleState(timer.Defaults{FocusLengthMinutes: 25, BreakLengthMinutes: 5})
	if diff := cmp.Diff(want, p.State()); diff != "" {
		t.Errorf("idle cache mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, draftFrom(want), p.Draft())

	// The follow-up STATE_UPDATE reseeds the draft from the defaults
	defaults := timer.IdleState(timer.DefaultDefaults())
	ch.deliver(t, daemon.MsgStateUpdate, defaults)
	assert.Equal(t, defaults, p.State())
	assert.Equal(t, draftFrom(defaults), p.Draft())
}

func TestDisplay_ExtrapolatesBetweenUpdates(t *testing.T) {
	p, ch, clk := newOpenPresenter(t)
	ch.deliver(t, daemon.MsgStateUpdate, focusState(1, 5, "Work"))

	assert.Equal(t, 60, p.Display(clk.now).RemainingFocusSeconds)
	assert.Equal(t, 55, p.Display(clk.now.Add(5*time.Second+500*time.Millisecond)).RemainingFocusSeconds)
	assert.Equal(t, 300, p.Display(clk.now.Add(5*time.Second)).RemainingBreakSeconds)

	// Clamped at zero
	assert.Equal(t, 0, p.Display(clk.now.Add(10*time.Minute)).RemainingFocusSeconds)

	// Extrapolation never touches the cache
	assert.Equal(t, 60, p.State().RemainingFocusSeconds)

	// A fresh authoritative value resets the base
	clk.advance(3 * time.Second)
	ch.deliver(t, daemon.MsgTimerUpdate, timer.Remaining{RemainingFocusSeconds: 57, RemainingBreakSeconds: 300})
	assert.Equal(t, 57, p.Display(clk.now).RemainingFocusSeconds)
	assert.Equal(t, 56, p.Display(clk.now.Add(time.Second)).RemainingFocusSeconds)
}

func TestDisplay_RestCountsBreak(t *testing.T) {
	p, ch, clk := newOpenPresenter(t)
	s := focusState(25, 5, "Work")
	s.Mode = timer.ModeRest
	ch.deliver(t, daemon.MsgStateUpdate, s)

	d := p.Display(clk.now.Add(10 * time.Second))
	assert.Equal(t, 290, d.RemainingBreakSeconds)
	assert.Equal(t, 1500, d.RemainingFocusSeconds)
}

func TestDisplay_IdleIsStatic(t *testing.T) {
	p, ch, clk := newOpenPresenter(t)
	ch.deliver(t, daemon.MsgStateUpdate, timer.IdleState(timer.DefaultDefaults()))

	assert.Equal(t, 1800, p.Display(clk.now.Add(time.Minute)).RemainingFocusSeconds)
}

func TestDraft_StepAdjustments(t *testing.T) {
	p, ch, _ := newOpenPresenter(t)
	ch.deliver(t, daemon.MsgStateUpdate, timer.IdleState(timer.Defaults{FocusLengthMinutes: 10, BreakLengthMinutes: 5}))

	require.NoError(t, p.IncrementFocus())
	assert.Equal(t, 15, p.Draft().FocusLengthMinutes)

	require.NoError(t, p.DecrementFocus())
	require.NoError(t, p.DecrementFocus())
	assert.Equal(t, 5, p.Draft().FocusLengthMinutes)
	// Not below one step
	require.NoError(t, p.DecrementFocus())
	assert.Equal(t, 5, p.Draft().FocusLengthMinutes)

	require.NoError(t, p.IncrementBreak())
	assert.Equal(t, 10, p.Draft().BreakLengthMinutes)
	require.NoError(t, p.DecrementBreak())
	require.NoError(t, p.DecrementBreak())
	assert.Equal(t, 5, p.Draft().BreakLengthMinutes)

	// Edits stay local
	assert.Equal(t, []daemon.MessageType{daemon.MsgGetState}, ch.sentTypes())
	assert.Equal(t, 10, p.State().FocusLengthMinutes)
}

func TestDraft_OnlyWhileIdle(t *testing.T) {
	p, ch, _ := newOpenPresenter(t)
	ch.deliver(t, daemon.MsgStateUpdate, focusState(25, 5, "Work"))

	for name, edit := range map[string]func() error{
		"increment focus": p.IncrementFocus,
		"decrement break": p.DecrementBreak,
		"set type":        func() error { return p.SetFocusType("Study") },
		"set length":      func() error { return p.SetFocusLength(40) },
	} {
		assert.ErrorIs(t, edit(), timer.ErrNotApplicable, name)
	}
}

func TestDraft_KeptAcrossIdleResend(t *testing.T) {
	p, ch, _ := newOpenPresenter(t)
	idle := timer.IdleState(timer.DefaultDefaults())
	ch.deliver(t, daemon.MsgStateUpdate, idle)

	require.NoError(t, p.SetFocusType("Study"))
	ch.deliver(t, daemon.MsgStateUpdate, idle)
	assert.Equal(t, "Study", p.Draft().FocusType)

	// Coming back to idle after a session starts from the new defaults
	ch.deliver(t, daemon.MsgStateUpdate, focusState(25, 5, "Study"))
	ch.deliver(t, daemon.MsgStateUpdate, idle)
	assert.Equal(t, draftFrom(idle), p.Draft())
}

func TestStartFocus_SendsDraft(t *testing.T) {
	p, ch, _ := newOpenPresenter(t)
	ch.deliver(t, daemon.MsgStateUpdate, timer.IdleState(timer.DefaultDefaults()))

	require.NoError(t, p.SetFocusLength(25))
	require.NoError(t, p.SetBreakLength(5))
	require.NoError(t, p.SetFocusType("Work"))
	require.NoError(t, p.StartFocus())

	last := ch.lastSent()
	assert.Equal(t, daemon.MsgStartFocus, last.Type)
	assert.Equal(t, daemon.StartFocusPayload{FocusLengthMinutes: 25, BreakLengthMinutes: 5, FocusType: "Work"}, last.Payload)

	// The cache waits for the controller
	assert.Equal(t, timer.ModeIdle, p.State().Mode)
}

func TestStartFocus_InvalidDraftSendsNothing(t *testing.T) {
	p, ch, clk := newOpenPresenter(t)
	ch.deliver(t, daemon.MsgStateUpdate, timer.IdleState(timer.DefaultDefaults()))
	require.NoError(t, p.SetFocusLength(0))

	err := p.StartFocus()
	require.ErrorIs(t, err, timer.ErrValidation)

	vm := p.View(clk.now)
	require.NotNil(t, vm.Validation)
	assert.Equal(t, "Please enter a positive duration.", vm.Validation.Message(timer.FieldFocusLength))
	assert.Equal(t, "Please choose a focus type.", vm.Validation.Message(timer.FieldFocusType))
	assert.Equal(t, []daemon.MessageType{daemon.MsgGetState}, ch.sentTypes())

	// Fixing the draft clears the result on the next attempt
	require.NoError(t, p.SetFocusLength(25))
	require.NoError(t, p.SetFocusType("Other"))
	require.NoError(t, p.StartFocus())
	assert.Nil(t, p.View(clk.now).Validation)
}

func TestStartBreak_RefusedWithoutBreakTime(t *testing.T) {
	p, ch, _ := newOpenPresenter(t)

	ch.deliver(t, daemon.MsgStateUpdate, focusState(25, 0, "Work"))
	assert.ErrorIs(t, p.StartBreak(), timer.ErrNotApplicable)

	ch.deliver(t, daemon.MsgStateUpdate, timer.IdleState(timer.DefaultDefaults()))
	assert.ErrorIs(t, p.StartBreak(), timer.ErrNotApplicable)

	assert.Equal(t, []daemon.MessageType{daemon.MsgGetState}, ch.sentTypes())

	ch.deliver(t, daemon.MsgStateUpdate, focusState(25, 5, "Work"))
	require.NoError(t, p.StartBreak())
	assert.Equal(t, daemon.MsgStartBreak, ch.lastSent().Type)
}

func TestEndBreakAndComplete(t *testing.T) {
	p, ch, _ := newOpenPresenter(t)

	ch.deliver(t, daemon.MsgStateUpdate, focusState(25, 5, "Work"))
	assert.ErrorIs(t, p.EndBreak(), timer.ErrNotApplicable)

	s := focusState(25, 5, "Work")
	s.Mode = timer.ModeRest
	ch.deliver(t, daemon.MsgStateUpdate, s)
	require.NoError(t, p.EndBreak())
	assert.Equal(t, daemon.MsgResumeFocus, ch.lastSent().Type)

	require.NoError(t, p.CompleteSession())
	assert.Equal(t, daemon.MsgCompleteSession, ch.lastSent().Type)
}

func TestErrorMessage_Recorded(t *testing.T) {
	p, ch, clk := newOpenPresenter(t)

	ch.deliver(t, daemon.MsgError, daemon.ErrorPayload{
		Message: "invalid focus request",
		Code:    daemon.ErrCodeValidation,
		Fields:  []timer.FieldError{{Field: timer.FieldFocusType, Message: "Please choose a focus type."}},
	})

	vm := p.View(clk.now)
	assert.Equal(t, "invalid focus request", vm.LastError)
	require.NotNil(t, vm.Validation)
	assert.True(t, vm.Validation.Has(timer.FieldFocusType))
}

func TestMalformedMessageIgnored(t *testing.T) {
	p, ch, _ := newOpenPresenter(t)
	before := p.State()

	ch.mu.Lock()
	h := ch.handler
	ch.mu.Unlock()
	h(&daemon.Message{Type: daemon.MsgStateUpdate, Payload: json.RawMessage(`"nope"`)})

	assert.Equal(t, before, p.State())
	assert.False(t, p.IsSynced())
}

func TestChannelClosed(t *testing.T) {
	p, ch, clk := newOpenPresenter(t)
	ch.deliver(t, daemon.MsgStateUpdate, focusState(25, 5, "Work"))

	var seen []TimerVM
	p.Subscribe(func(vm TimerVM) { seen = append(seen, vm) })

	ch.sever()

	assert.False(t, p.IsConnected())
	require.Len(t, seen, 1)
	assert.False(t, seen[0].Connected)

	// Last known state stays readable; intents fail cleanly
	assert.Equal(t, timer.ModeFocus, p.View(clk.now).State.Mode)
	assert.ErrorIs(t, p.StartBreak(), daemon.ErrChannelClosed)
	assert.ErrorIs(t, p.CompleteSession(), daemon.ErrChannelClosed)
	assert.ErrorIs(t, p.Refresh(), daemon.ErrChannelClosed)
}

func TestSendFailureMarksDisconnected(t *testing.T) {
	p, ch, _ := newOpenPresenter(t)
	ch.mu.Lock()
	ch.sendErr = errors.Join(daemon.ErrChannelClosed, errors.New("broken pipe"))
	ch.mu.Unlock()

	assert.ErrorIs(t, p.CompleteSession(), daemon.ErrChannelClosed)
	assert.False(t, p.IsConnected())
}

func TestClose(t *testing.T) {
	p, ch, _ := newOpenPresenter(t)

	p.Close()

	assert.False(t, p.IsConnected())
	assert.True(t, ch.closed)
	assert.ErrorIs(t, p.Refresh(), daemon.ErrChannelClosed)
}

func TestSubscribe_NotifiedOnChanges(t *testing.T) {
	p, ch, _ := newOpenPresenter(t)

	var modes []timer.Mode
	p.Subscribe(func(vm TimerVM) { modes = append(modes, vm.State.Mode) })

	ch.deliver(t, daemon.MsgStateUpdate, timer.IdleState(timer.DefaultDefaults()))
	require.NoError(t, p.IncrementFocus())
	ch.deliver(t, daemon.MsgStateUpdate, focusState(35, 10, "Work"))
	ch.deliver(t, daemon.MsgPong, nil)

	assert.Equal(t, []timer.Mode{timer.ModeIdle, timer.ModeIdle, timer.ModeFocus}, modes)
}

func TestHandleEvent(t *testing.T) {
	p, ch, _ := newOpenPresenter(t)
	ch.deliver(t, daemon.MsgStateUpdate, timer.IdleState(timer.DefaultDefaults()))

	require.NoError(t, p.HandleEvent(NewEvent(EventSetFocusLength).WithValue("20")))
	require.NoError(t, p.HandleEvent(NewEvent(EventIncrementBreak)))
	require.NoError(t, p.HandleEvent(NewEvent(EventSetFocusType).WithValue("Personal")))
	assert.Equal(t, Draft{FocusLengthMinutes: 20, BreakLengthMinutes: 15, FocusType: "Personal"}, p.Draft())

	require.NoError(t, p.HandleEvent(NewEvent(EventStartFocus)))
	assert.Equal(t, daemon.MsgStartFocus, ch.lastSent().Type)

	assert.Error(t, p.HandleEvent(NewEvent(EventSetBreakLength).WithValue("ten")))
	assert.Error(t, p.HandleEvent(NewEvent("bogus")))
}

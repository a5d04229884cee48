package core

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"focustrack/modules/core/timer"
	"focustrack/modules/platform/daemon"
	"focustrack/modules/platform/logger"
)

// TimerPresenter is the view side of one channel.
//
// It caches the last authoritative state, keeps a private draft of the next
// session while idle, and turns user intents into channel requests. It never
// mutates the cached state on its own.
type TimerPresenter struct {
	mu sync.RWMutex

	channel Channel

	// Authoritative cache
	state    timer.State
	synced   bool
	syncedAt time.Time

	// Local edits
	draft      Draft
	validation *timer.ValidationError
	lastError  string

	connected bool
	opened    bool

	// Callbacks
	callbacks []func(TimerVM)

	now func() time.Time
}

// NewTimerPresenter creates a presenter over an open channel.
// Nothing is sent until Open is called.
func NewTimerPresenter(ch Channel) *TimerPresenter {
	idle := timer.IdleState(timer.DefaultDefaults())
	return &TimerPresenter{
		channel:   ch,
		state:     idle,
		draft:     draftFrom(idle),
		connected: true,
		now:       time.Now,
	}
}

// Open installs the channel handlers and requests the current state
func (p *TimerPresenter) Open() error {
	p.mu.Lock()
	if p.opened {
		p.mu.Unlock()
		return nil
	}
	p.opened = true
	p.mu.Unlock()

	p.channel.SetDisconnectHandler(p.handleDisconnect)
	p.channel.SetHandler(p.handleMessage)
	return p.Refresh()
}

// Close closes the channel. The controller and other channels are unaffected.
func (p *TimerPresenter) Close() {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()

	p.channel.Disconnect()
}

// Refresh asks the controller for a fresh STATE_UPDATE
func (p *TimerPresenter) Refresh() error {
	return p.send(daemon.MsgGetState, nil)
}

// Subscribe registers a callback run after every change to the view model
func (p *TimerPresenter) Subscribe(callback func(TimerVM)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, callback)
}

// IsConnected returns false once the channel has been closed on either side
func (p *TimerPresenter) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// IsSynced returns true once a STATE_UPDATE has been received
func (p *TimerPresenter) IsSynced() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.synced
}

// State returns the cached authoritative state
func (p *TimerPresenter) State() timer.State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Draft returns the pending session settings
func (p *TimerPresenter) Draft() Draft {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.draft
}

// Display returns the counters to show at now.
// The active counter is extrapolated from the last authoritative value and
// never drops below zero.
func (p *TimerPresenter) Display(now time.Time) timer.Remaining {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.displayLocked(now)
}

// View builds the view model at now
func (p *TimerPresenter) View(now time.Time) TimerVM {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.viewLocked(now)
}

// ---- Draft edits (idle only) ----

// IncrementFocus adds one step to the draft focus length
func (p *TimerPresenter) IncrementFocus() error {
	return p.editDraft(func(d *Draft) {
		d.FocusLengthMinutes += timer.LengthStepMinutes
	})
}

// DecrementFocus removes one step from the draft focus length.
// Lengths of one step or less are left alone.
func (p *TimerPresenter) DecrementFocus() error {
	return p.editDraft(func(d *Draft) {
		if d.FocusLengthMinutes > timer.LengthStepMinutes {
			d.FocusLengthMinutes -= timer.LengthStepMinutes
		}
	})
}

// IncrementBreak adds one step to the draft break length
func (p *TimerPresenter) IncrementBreak() error {
	return p.editDraft(func(d *Draft) {
		d.BreakLengthMinutes += timer.LengthStepMinutes
	})
}

// DecrementBreak removes one step from the draft break length.
// Lengths of one step or less are left alone.
func (p *TimerPresenter) DecrementBreak() error {
	return p.editDraft(func(d *Draft) {
		if d.BreakLengthMinutes > timer.LengthStepMinutes {
			d.BreakLengthMinutes -= timer.LengthStepMinutes
		}
	})
}

// SetFocusLength replaces the draft focus length. It is checked on StartFocus.
func (p *TimerPresenter) SetFocusLength(minutes int) error {
	return p.editDraft(func(d *Draft) {
		d.FocusLengthMinutes = minutes
	})
}

// SetBreakLength replaces the draft break length. It is checked on StartFocus.
func (p *TimerPresenter) SetBreakLength(minutes int) error {
	return p.editDraft(func(d *Draft) {
		d.BreakLengthMinutes = minutes
	})
}

// SetFocusType replaces the draft focus type
func (p *TimerPresenter) SetFocusType(focusType string) error {
	return p.editDraft(func(d *Draft) {
		d.FocusType = focusType
	})
}

func (p *TimerPresenter) editDraft(edit func(*Draft)) error {
	p.mu.Lock()
	if p.state.Mode != timer.ModeIdle {
		mode := p.state.Mode
		p.mu.Unlock()
		return fmt.Errorf("edit draft in %s mode: %w", mode, timer.ErrNotApplicable)
	}
	edit(&p.draft)
	p.mu.Unlock()

	p.notify()
	return nil
}

// ---- Session intents ----

// StartFocus validates the draft and asks the controller to start it.
// Invalid drafts never leave the presenter; the result is kept for the view.
func (p *TimerPresenter) StartFocus() error {
	p.mu.Lock()
	if p.state.Mode != timer.ModeIdle {
		mode := p.state.Mode
		p.mu.Unlock()
		return fmt.Errorf("start focus in %s mode: %w", mode, timer.ErrNotApplicable)
	}
	draft := p.draft
	err := timer.ValidateFocus(draft.FocusLengthMinutes, draft.BreakLengthMinutes, draft.FocusType)
	p.validation = nil
	var verr *timer.ValidationError
	if errors.As(err, &verr) {
		p.validation = verr
	}
	p.mu.Unlock()

	if err != nil {
		p.notify()
		return err
	}

	return p.send(daemon.MsgStartFocus, daemon.StartFocusPayload{
		FocusLengthMinutes: draft.FocusLengthMinutes,
		BreakLengthMinutes: draft.BreakLengthMinutes,
		FocusType:          draft.FocusType,
	})
}

// StartBreak asks the controller to switch to rest.
// Only offered while focusing with break time left.
func (p *TimerPresenter) StartBreak() error {
	p.mu.RLock()
	state := p.state
	p.mu.RUnlock()

	if state.Mode != timer.ModeFocus || state.RemainingBreakSeconds <= 0 {
		return fmt.Errorf("start break in %s mode with %ds left: %w", state.Mode, state.RemainingBreakSeconds, timer.ErrNotApplicable)
	}
	return p.send(daemon.MsgStartBreak, nil)
}

// EndBreak asks the controller to resume focus
func (p *TimerPresenter) EndBreak() error {
	p.mu.RLock()
	mode := p.state.Mode
	p.mu.RUnlock()

	if mode != timer.ModeRest {
		return fmt.Errorf("end break in %s mode: %w", mode, timer.ErrNotApplicable)
	}
	return p.send(daemon.MsgResumeFocus, nil)
}

// CompleteSession asks the controller to end the session
func (p *TimerPresenter) CompleteSession() error {
	return p.send(daemon.MsgCompleteSession, nil)
}

func (p *TimerPresenter) send(msgType daemon.MessageType, payload interface{}) error {
	if !p.IsConnected() {
		return daemon.ErrChannelClosed
	}
	if err := p.channel.Send(msgType, payload); err != nil {
		if errors.Is(err, daemon.ErrChannelClosed) {
			p.handleDisconnect()
		}
		return err
	}
	return nil
}

// ---- Inbound messages ----

func (p *TimerPresenter) handleMessage(msg *daemon.Message) {
	switch msg.Type {
	case daemon.MsgStateUpdate:
		var state daemon.StatePayload
		if err := msg.Decode(&state); err != nil {
			logger.Warn("Ignoring malformed %s: %v", msg.Type, err)
			return
		}
		p.mu.Lock()
		edited := p.synced && p.state.Mode == timer.ModeIdle && p.draft != draftFrom(p.state)
		p.state = state
		p.synced = true
		p.syncedAt = p.now()
		// An idle resend keeps the user's unsaved edits
		if state.Mode == timer.ModeIdle && !edited {
			p.draft = draftFrom(state)
		}
		if state.Mode != timer.ModeIdle {
			p.validation = nil
		}
		p.mu.Unlock()

	case daemon.MsgTimerUpdate:
		var remaining daemon.TimerPayload
		if err := msg.Decode(&remaining); err != nil {
			logger.Warn("Ignoring malformed %s: %v", msg.Type, err)
			return
		}
		p.mu.Lock()
		p.state.RemainingFocusSeconds = remaining.RemainingFocusSeconds
		p.state.RemainingBreakSeconds = remaining.RemainingBreakSeconds
		p.syncedAt = p.now()
		p.mu.Unlock()

	case daemon.MsgSessionComplete:
		// Idle with full counters until the STATE_UPDATE carrying the defaults
		p.mu.Lock()
		p.state = timer.IdleState(timer.Defaults{
			FocusLengthMinutes: p.state.FocusLengthMinutes,
			BreakLengthMinutes: p.state.BreakLengthMinutes,
		})
		p.draft = draftFrom(p.state)
		p.syncedAt = p.now()
		p.mu.Unlock()

	case daemon.MsgError:
		var payload daemon.ErrorPayload
		if err := msg.Decode(&payload); err != nil {
			logger.Warn("Ignoring malformed %s: %v", msg.Type, err)
			return
		}
		p.mu.Lock()
		p.lastError = payload.Message
		if payload.Code == daemon.ErrCodeValidation && len(payload.Fields) > 0 {
			p.validation = &timer.ValidationError{Fields: payload.Fields}
		}
		p.mu.Unlock()

	case daemon.MsgPong:
		return

	default:
		logger.Debug("Ignoring message %s", msg.Type)
		return
	}

	p.notify()
}

func (p *TimerPresenter) handleDisconnect() {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return
	}
	p.connected = false
	p.mu.Unlock()

	logger.Debug("Channel closed by controller")
	p.notify()
}

func (p *TimerPresenter) displayLocked(now time.Time) timer.Remaining {
	display := p.state.Remaining()
	if !p.synced || p.syncedAt.IsZero() {
		return display
	}

	elapsed := int(now.Sub(p.syncedAt) / time.Second)
	if elapsed <= 0 {
		return display
	}

	switch p.state.Mode {
	case timer.ModeFocus:
		display.RemainingFocusSeconds = max(display.RemainingFocusSeconds-elapsed, 0)
	case timer.ModeRest:
		display.RemainingBreakSeconds = max(display.RemainingBreakSeconds-elapsed, 0)
	}
	return display
}

func (p *TimerPresenter) viewLocked(now time.Time) TimerVM {
	return TimerVM{
		State:      p.state,
		Display:    p.displayLocked(now),
		Draft:      p.draft,
		Validation: p.validation,
		LastError:  p.lastError,
		Synced:     p.synced,
		Connected:  p.connected,
		UpdatedAt:  now,
	}
}

func (p *TimerPresenter) notify() {
	p.mu.RLock()
	vm := p.viewLocked(p.now())
	callbacks := make([]func(TimerVM), len(p.callbacks))
	copy(callbacks, p.callbacks)
	p.mu.RUnlock()

	for _, cb := range callbacks {
		cb(vm)
	}
}

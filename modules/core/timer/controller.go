package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"focustrack/modules/platform/eventbus"
	"focustrack/modules/platform/logger"
)

// Publisher receives the events emitted by the controller
type Publisher interface {
	Publish(event *eventbus.Event)
}

const eventSource = "timer"

// Controller is the sole owner of the timer state.
//
// All mutations happen under mu and their events are published before mu is
// released, so observers see updates in mutation order.
type Controller struct {
	mu       sync.Mutex
	state    State
	defaults Defaults
	interval time.Duration
	bus      Publisher
}

// NewController creates a controller in idle mode with the given defaults.
// A zero interval falls back to one second.
func NewController(defaults Defaults, interval time.Duration, bus Publisher) *Controller {
	if defaults.FocusLengthMinutes <= 0 {
		defaults.FocusLengthMinutes = DefaultFocusLengthMinutes
	}
	if defaults.BreakLengthMinutes < 0 {
		defaults.BreakLengthMinutes = DefaultBreakLengthMinutes
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Controller{
		state:    IdleState(defaults),
		defaults: defaults,
		interval: interval,
		bus:      bus,
	}
}

// GetState returns a snapshot of the current state
func (c *Controller) GetState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ViewState calls fn with the current state while holding the state lock,
// so no update can be published between the snapshot and whatever fn does with it.
// fn must not call back into the controller.
func (c *Controller) ViewState(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.state)
}

// Defaults returns the lengths an idle timer is reset to
func (c *Controller) Defaults() Defaults {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaults
}

// SetDefaults changes the idle lengths. An idle timer is reset immediately.
func (c *Controller) SetDefaults(d Defaults) error {
	if d.FocusLengthMinutes <= 0 || d.BreakLengthMinutes < 0 {
		return fmt.Errorf("invalid default lengths %d/%d: %w", d.FocusLengthMinutes, d.BreakLengthMinutes, ErrValidation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.defaults = d
	if c.state.Mode == ModeIdle && c.state != IdleState(d) {
		c.state = IdleState(d)
		c.publishState()
	}
	return nil
}

// StartFocus begins a focus session from idle
func (c *Controller) StartFocus(focusLengthMinutes, breakLengthMinutes int, focusType string) error {
	if err := ValidateFocus(focusLengthMinutes, breakLengthMinutes, focusType); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Mode != ModeIdle {
		return fmt.Errorf("start focus in %s mode: %w", c.state.Mode, ErrNotApplicable)
	}

	c.state = State{
		Mode:                  ModeFocus,
		FocusLengthMinutes:    focusLengthMinutes,
		BreakLengthMinutes:    breakLengthMinutes,
		FocusType:             focusType,
		RemainingFocusSeconds: focusLengthMinutes * 60,
		RemainingBreakSeconds: breakLengthMinutes * 60,
	}
	logger.Info("Focus started: %s for %d min (break %d min)", focusType, focusLengthMinutes, breakLengthMinutes)
	c.publishState()
	return nil
}

// StartBreak switches from focus to rest while break time remains
func (c *Controller) StartBreak() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Mode != ModeFocus {
		return fmt.Errorf("start break in %s mode: %w", c.state.Mode, ErrNotApplicable)
	}
	if c.state.RemainingBreakSeconds <= 0 {
		return fmt.Errorf("start break with no break time left: %w", ErrNotApplicable)
	}

	c.state.Mode = ModeRest
	logger.Info("Break started (%ds left)", c.state.RemainingBreakSeconds)
	c.publishState()
	return nil
}

// ResumeFocus switches from rest back to focus
func (c *Controller) ResumeFocus() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Mode != ModeRest {
		return fmt.Errorf("resume focus in %s mode: %w", c.state.Mode, ErrNotApplicable)
	}

	c.state.Mode = ModeFocus
	logger.Info("Focus resumed (%ds left)", c.state.RemainingFocusSeconds)
	c.publishState()
	return nil
}

// CompleteSession returns the timer to idle with default lengths.
// Calling it while idle changes nothing.
func (c *Controller) CompleteSession() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Mode == ModeIdle {
		return
	}
	c.resetLocked()
}

// Tick advances the active countdown by one second
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state.Mode {
	case ModeFocus:
		if c.state.RemainingFocusSeconds > 0 {
			c.state.RemainingFocusSeconds--
			c.publishTick()
		}
		if c.state.RemainingFocusSeconds == 0 {
			logger.Info("Focus session finished")
			c.publish(eventbus.NewEvent(eventbus.EventSessionComplete))
			c.resetLocked()
		}

	case ModeRest:
		if c.state.RemainingBreakSeconds > 0 {
			c.state.RemainingBreakSeconds--
			c.publishTick()
		}
		if c.state.RemainingBreakSeconds == 0 {
			c.state.Mode = ModeFocus
			logger.Info("Break over, back to focus")
			c.publishState()
		}
	}
}

// Run ticks once per interval until ctx is done
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	logger.Debug("Timer loop started (interval %s)", c.interval)
	for {
		select {
		case <-ctx.Done():
			logger.Debug("Timer loop stopped")
			return nil
		case <-ticker.C:
			c.Tick()
		}
	}
}

func (c *Controller) resetLocked() {
	c.state = IdleState(c.defaults)
	logger.Info("Session completed")
	c.publishState()
}

func (c *Controller) publishState() {
	c.publish(eventbus.NewEvent(eventbus.EventStateChanged).WithPayload(c.state))
}

func (c *Controller) publishTick() {
	c.publish(eventbus.NewEvent(eventbus.EventTimerTick).WithPayload(c.state.Remaining()))
}

func (c *Controller) publish(event *eventbus.Event) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(event.WithSource(eventSource))
}

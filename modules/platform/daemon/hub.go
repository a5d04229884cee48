package daemon

import (
	"errors"
	"sync"

	"focustrack/modules/core/timer"
	"focustrack/modules/platform/eventbus"
	"focustrack/modules/platform/logger"
)

// Controller is the part of the timer controller the hub drives
type Controller interface {
	ViewState(fn func(timer.State))
	StartFocus(focusLengthMinutes, breakLengthMinutes int, focusType string) error
	StartBreak() error
	ResumeFocus() error
	CompleteSession()
}

// Hub owns the open channels, fans controller events out to them and
// dispatches their requests to the controller
type Hub struct {
	controller Controller
	bus        *eventbus.Bus
	subID      string
	queueSize  int

	mu       sync.RWMutex
	channels map[string]*Channel
	closed   bool
}

// NewHub creates a hub subscribed to the timer events on bus
func NewHub(controller Controller, bus *eventbus.Bus, queueSize int) *Hub {
	h := &Hub{
		controller: controller,
		bus:        bus,
		queueSize:  queueSize,
		channels:   make(map[string]*Channel),
	}
	h.subID = bus.Subscribe([]eventbus.EventType{
		eventbus.EventStateChanged,
		eventbus.EventTimerTick,
		eventbus.EventSessionComplete,
	}, h.handleEvent)
	return h
}

// Attach opens a channel over the transport and starts serving it
func (h *Hub) Attach(transport Transport) (*Channel, error) {
	ch := newChannel(transport, h.queueSize)
	ch.onClose = h.remove

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		transport.Close()
		return nil, ErrChannelClosed
	}
	h.channels[ch.id] = ch
	count := len(h.channels)
	h.mu.Unlock()

	logger.Debug("Channel %s opened (%d open)", ch.id, count)
	ch.start(h.handleMessage)
	return ch, nil
}

// ChannelCount returns the number of open channels
func (h *Hub) ChannelCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// Close unsubscribes from the bus and closes every channel
func (h *Hub) Close() {
	h.bus.Unsubscribe(h.subID)

	h.mu.Lock()
	h.closed = true
	channels := h.snapshotLocked()
	h.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}
	for _, ch := range channels {
		ch.Wait()
	}
}

func (h *Hub) remove(ch *Channel) {
	h.mu.Lock()
	delete(h.channels, ch.id)
	count := len(h.channels)
	h.mu.Unlock()

	logger.Debug("Channel %s closed (%d open)", ch.id, count)
}

func (h *Hub) snapshotLocked() []*Channel {
	channels := make([]*Channel, 0, len(h.channels))
	for _, ch := range h.channels {
		channels = append(channels, ch)
	}
	return channels
}

// handleEvent runs on the publishing goroutine while the controller holds its lock
func (h *Hub) handleEvent(event *eventbus.Event) {
	var msg *Message
	switch event.Type {
	case eventbus.EventStateChanged:
		state, ok := event.Payload.(timer.State)
		if !ok {
			return
		}
		msg = mustMessage(MsgStateUpdate, StatePayload(state))
	case eventbus.EventTimerTick:
		remaining, ok := event.Payload.(timer.Remaining)
		if !ok {
			return
		}
		msg = mustMessage(MsgTimerUpdate, TimerPayload(remaining))
	case eventbus.EventSessionComplete:
		msg = mustMessage(MsgSessionComplete, nil)
	default:
		return
	}
	h.broadcast(msg)
}

func (h *Hub) broadcast(msg *Message) {
	h.mu.RLock()
	channels := h.snapshotLocked()
	h.mu.RUnlock()

	for _, ch := range channels {
		if err := ch.Send(msg); errors.Is(err, ErrQueueFull) {
			logger.Warn("Channel %s dropped: send queue full", ch.id)
		}
	}
}

// handleMessage processes a message from a channel
func (h *Hub) handleMessage(ch *Channel, msg *Message) {
	switch msg.Type {
	case MsgGetState:
		h.controller.ViewState(func(state timer.State) {
			ch.Send(mustMessage(MsgStateUpdate, StatePayload(state)))
		})

	case MsgStartFocus:
		var payload StartFocusPayload
		if err := msg.Decode(&payload); err != nil {
			h.sendError(ch, ErrorPayload{Message: "invalid START_FOCUS payload", Code: ErrCodeInvalidPayload})
			return
		}
		h.apply(ch, msg.Type, h.controller.StartFocus(payload.FocusLengthMinutes, payload.BreakLengthMinutes, payload.FocusType))

	case MsgStartBreak:
		h.apply(ch, msg.Type, h.controller.StartBreak())

	case MsgResumeFocus:
		h.apply(ch, msg.Type, h.controller.ResumeFocus())

	case MsgCompleteSession:
		h.controller.CompleteSession()

	case MsgPing:
		ch.Send(mustMessage(MsgPong, nil))

	default:
		h.sendError(ch, ErrorPayload{Message: "unknown message type " + string(msg.Type), Code: ErrCodeUnknownType})
	}
}

// apply reports the outcome of a controller request.
// Requests that do not apply to the current mode are silent no-ops.
func (h *Hub) apply(ch *Channel, msgType MessageType, err error) {
	if err == nil {
		return
	}

	var verr *timer.ValidationError
	switch {
	case errors.As(err, &verr):
		h.sendError(ch, ErrorPayload{Message: verr.Error(), Code: ErrCodeValidation, Fields: verr.Fields})
	case errors.Is(err, timer.ErrNotApplicable):
		logger.Debug("Channel %s: %s ignored: %v", ch.id, msgType, err)
	default:
		logger.Warn("Channel %s: %s failed: %v", ch.id, msgType, err)
	}
}

func (h *Hub) sendError(ch *Channel, payload ErrorPayload) {
	ch.Send(mustMessage(MsgError, payload))
}

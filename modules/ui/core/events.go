package core

import (
	"fmt"
	"strconv"
)

// EventType identifies the type of UI event
type EventType string

const (
	// Draft events (idle only)
	EventIncrementFocus EventType = "increment_focus"
	EventDecrementFocus EventType = "decrement_focus"
	EventIncrementBreak EventType = "increment_break"
	EventDecrementBreak EventType = "decrement_break"
	EventSetFocusLength EventType = "set_focus_length" // Value: minutes
	EventSetBreakLength EventType = "set_break_length" // Value: minutes
	EventSetFocusType   EventType = "set_focus_type"   // Value: label

	// Session events
	EventStartFocus      EventType = "start_focus"
	EventStartBreak      EventType = "start_break"
	EventEndBreak        EventType = "end_break"
	EventCompleteSession EventType = "complete_session"
	EventRefresh         EventType = "refresh"
)

// Event represents a user action in the UI
type Event struct {
	Type  EventType `json:"type"`
	Value string    `json:"value,omitempty"`
}

// NewEvent creates a new event
func NewEvent(eventType EventType) *Event {
	return &Event{Type: eventType}
}

// WithValue sets the event value
func (e *Event) WithValue(value string) *Event {
	e.Value = value
	return e
}

// HandleEvent dispatches a UI event to the matching presenter operation
func (p *TimerPresenter) HandleEvent(event *Event) error {
	switch event.Type {
	case EventIncrementFocus:
		return p.IncrementFocus()
	case EventDecrementFocus:
		return p.DecrementFocus()
	case EventIncrementBreak:
		return p.IncrementBreak()
	case EventDecrementBreak:
		return p.DecrementBreak()
	case EventSetFocusLength:
		minutes, err := strconv.Atoi(event.Value)
		if err != nil {
			return fmt.Errorf("invalid focus length %q: %w", event.Value, err)
		}
		return p.SetFocusLength(minutes)
	case EventSetBreakLength:
		minutes, err := strconv.Atoi(event.Value)
		if err != nil {
			return fmt.Errorf("invalid break length %q: %w", event.Value, err)
		}
		return p.SetBreakLength(minutes)
	case EventSetFocusType:
		return p.SetFocusType(event.Value)
	case EventStartFocus:
		return p.StartFocus()
	case EventStartBreak:
		return p.StartBreak()
	case EventEndBreak:
		return p.EndBreak()
	case EventCompleteSession:
		return p.CompleteSession()
	case EventRefresh:
		return p.Refresh()
	default:
		return fmt.Errorf("unknown event type: %s", event.Type)
	}
}

package core

import (
	"time"

	"focustrack/modules/core/timer"
)

// Draft holds the uncommitted edits made while idle
type Draft struct {
	FocusLengthMinutes int    `json:"focusLengthMinutes"`
	BreakLengthMinutes int    `json:"breakLengthMinutes"`
	FocusType          string `json:"focusType"`
}

// draftFrom copies the lengths and type of an authoritative state
func draftFrom(s timer.State) Draft {
	return Draft{
		FocusLengthMinutes: s.FocusLengthMinutes,
		BreakLengthMinutes: s.BreakLengthMinutes,
		FocusType:          s.FocusType,
	}
}

// TimerVM is what a view renders
type TimerVM struct {
	// State is the last authoritative state received (read-only cache)
	State timer.State `json:"state"`

	// Display holds the counters extrapolated to UpdatedAt
	Display timer.Remaining `json:"display"`

	Draft      Draft                  `json:"draft"`
	Validation *timer.ValidationError `json:"validation,omitempty"`
	LastError  string                 `json:"lastError,omitempty"`

	Synced    bool      `json:"synced"`    // A STATE_UPDATE has been received
	Connected bool      `json:"connected"` // The channel is open
	UpdatedAt time.Time `json:"updatedAt"`
}

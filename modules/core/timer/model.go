package timer

// Mode is the current phase of the timer
type Mode string

const (
	ModeIdle  Mode = "idle"
	ModeFocus Mode = "focus"
	ModeRest  Mode = "rest"
)

const (
	// DefaultFocusType is the placeholder label meaning no focus type was chosen
	DefaultFocusType = "Choose a focus type"

	DefaultFocusLengthMinutes = 30
	DefaultBreakLengthMinutes = 10

	// LengthStepMinutes is the increment used by draft length adjustments
	LengthStepMinutes = 5
)

// FocusTypes lists the labels offered by the UI
var FocusTypes = []string{"Work", "Study", "Personal", "Other"}

// Defaults holds the configured lengths a fresh session starts from
type Defaults struct {
	FocusLengthMinutes int `json:"focusLengthMinutes"`
	BreakLengthMinutes int `json:"breakLengthMinutes"`
}

// DefaultDefaults returns the built-in 30/10 minute lengths
func DefaultDefaults() Defaults {
	return Defaults{
		FocusLengthMinutes: DefaultFocusLengthMinutes,
		BreakLengthMinutes: DefaultBreakLengthMinutes,
	}
}

// State is the authoritative timer state
type State struct {
	Mode                  Mode   `json:"mode"`
	FocusLengthMinutes    int    `json:"focusLengthMinutes"`
	BreakLengthMinutes    int    `json:"breakLengthMinutes"`
	FocusType             string `json:"focusType"`
	RemainingFocusSeconds int    `json:"remainingFocusSeconds"`
	RemainingBreakSeconds int    `json:"remainingBreakSeconds"`
}

// Remaining carries the two countdown counters
type Remaining struct {
	RemainingFocusSeconds int `json:"remainingFocusSeconds"`
	RemainingBreakSeconds int `json:"remainingBreakSeconds"`
}

// IdleState returns the idle state for the given defaults
func IdleState(d Defaults) State {
	return State{
		Mode:                  ModeIdle,
		FocusLengthMinutes:    d.FocusLengthMinutes,
		BreakLengthMinutes:    d.BreakLengthMinutes,
		FocusType:             DefaultFocusType,
		RemainingFocusSeconds: d.FocusLengthMinutes * 60,
		RemainingBreakSeconds: d.BreakLengthMinutes * 60,
	}
}

// Remaining returns the countdown counters of the state
func (s State) Remaining() Remaining {
	return Remaining{
		RemainingFocusSeconds: s.RemainingFocusSeconds,
		RemainingBreakSeconds: s.RemainingBreakSeconds,
	}
}

// Active reports whether a session is running (focus or rest)
func (s State) Active() bool {
	return s.Mode == ModeFocus || s.Mode == ModeRest
}

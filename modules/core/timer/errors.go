package timer

import (
	"errors"
	"strings"
)

var (
	// ErrValidation is wrapped by every ValidationError
	ErrValidation = errors.New("validation failed")

	// ErrNotApplicable is returned when an operation does not apply to the current mode.
	// Callers treat it as a no-op.
	ErrNotApplicable = errors.New("operation not applicable in current mode")
)

const (
	FieldFocusLength = "focusLengthMinutes"
	FieldBreakLength = "breakLengthMinutes"
	FieldFocusType   = "focusType"
)

// FieldError describes one invalid input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects the invalid fields of a focus start request
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return "invalid focus request: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Has reports whether the given field failed validation
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// Message returns the message for a field, or "" if the field is valid
func (e *ValidationError) Message(field string) string {
	for _, f := range e.Fields {
		if f.Field == field {
			return f.Message
		}
	}
	return ""
}

// ValidateFocus checks the inputs of a focus start.
// Returns nil or a *ValidationError.
func ValidateFocus(focusLengthMinutes, breakLengthMinutes int, focusType string) error {
	var fields []FieldError
	if focusLengthMinutes <= 0 {
		fields = append(fields, FieldError{Field: FieldFocusLength, Message: "Please enter a positive duration."})
	}
	if breakLengthMinutes < 0 {
		fields = append(fields, FieldError{Field: FieldBreakLength, Message: "Break length cannot be negative."})
	}
	if strings.TrimSpace(focusType) == "" || focusType == DefaultFocusType {
		fields = append(fields, FieldError{Field: FieldFocusType, Message: "Please choose a focus type."})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

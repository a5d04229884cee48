package daemon

import (
	"encoding/json"
	"time"

	"focustrack/modules/core/timer"
)

// MessageType identifies the type of message
type MessageType string

const (
	// Client -> Server
	MsgGetState        MessageType = "GET_STATE"        // Request full state
	MsgStartFocus      MessageType = "START_FOCUS"      // Start a focus session
	MsgStartBreak      MessageType = "START_BREAK"      // Switch focus -> rest
	MsgResumeFocus     MessageType = "RESUME_FOCUS"     // Switch rest -> focus
	MsgCompleteSession MessageType = "COMPLETE_SESSION" // End the current session
	MsgPing            MessageType = "PING"             // Keepalive

	// Server -> Client
	MsgStateUpdate     MessageType = "STATE_UPDATE"     // Full state
	MsgTimerUpdate     MessageType = "TIMER_UPDATE"     // Remaining counters
	MsgSessionComplete MessageType = "SESSION_COMPLETE" // Focus countdown finished
	MsgPong            MessageType = "PONG"             // Keepalive response
	MsgError           MessageType = "ERROR"            // Error response
)

// MaxMessageSize bounds one encoded message on any transport
const MaxMessageSize = 64 * 1024

// Message is the envelope for all channel messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var data json.RawMessage
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   data,
	}, nil
}

// Decode decodes the payload into the given target
func (m *Message) Decode(target interface{}) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, target)
}

// StatePayload is the body of STATE_UPDATE
type StatePayload = timer.State

// TimerPayload is the body of TIMER_UPDATE
type TimerPayload = timer.Remaining

// StartFocusPayload is the body of START_FOCUS
type StartFocusPayload struct {
	FocusLengthMinutes int    `json:"focusLengthMinutes"`
	BreakLengthMinutes int    `json:"breakLengthMinutes"`
	FocusType          string `json:"focusType"`
}

// ErrorPayload contains an error message
type ErrorPayload struct {
	Message string             `json:"message"`
	Code    string             `json:"code,omitempty"`
	Fields  []timer.FieldError `json:"fields,omitempty"`
}

const (
	ErrCodeInvalidPayload = "invalid_payload"
	ErrCodeValidation     = "validation"
	ErrCodeUnknownType    = "unknown_type"
)

// Encode serializes a message to JSON with newline delimiter
func (m *Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeMessage deserializes a message from JSON
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func mustMessage(msgType MessageType, payload interface{}) *Message {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

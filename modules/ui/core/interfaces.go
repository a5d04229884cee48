package core

import (
	"focustrack/modules/platform/daemon"
)

// Channel is the presenter's handle on its connection to the controller.
// *daemon.Client implements it.
type Channel interface {
	// SetHandler sets the callback for inbound messages
	SetHandler(handler func(*daemon.Message))

	// SetDisconnectHandler sets the callback for a channel severed by the remote side
	SetDisconnectHandler(handler func())

	// Send writes a message; fails with daemon.ErrChannelClosed once closed
	Send(msgType daemon.MessageType, payload interface{}) error

	// Disconnect closes the channel
	Disconnect()
}

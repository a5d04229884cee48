package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
)

// Client is the UI side of a channel
type Client struct {
	transport Transport

	// Callbacks
	onMessage    func(*Message)
	onDisconnect func()

	// Messages received before a handler was set
	pending []*Message

	// Held while a message is handed to onMessage, so deliveries never
	// overlap and the backlog always precedes newer messages
	dispatchMu sync.Mutex

	mu        sync.Mutex
	connected bool
	done      chan struct{}
	wg        sync.WaitGroup
}

// Dial connects to the daemon socket of the current instance
func Dial(ctx context.Context) (*Client, error) {
	return DialSocket(ctx, GetSocketPath())
}

// DialSocket connects to a daemon socket at an explicit path
func DialSocket(ctx context.Context, socketPath string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return NewClient(NewLineTransport(conn)), nil
}

// NewClient wraps an open transport and starts receiving
func NewClient(transport Transport) *Client {
	c := &Client{
		transport: transport,
		connected: true,
		done:      make(chan struct{}),
	}
	c.wg.Add(1)
	go c.receiveLoop()
	return c
}

// SetHandler sets the message callback.
// Messages received before it was set are delivered first, in order, before
// anything read afterwards. Must not be called from inside a handler.
func (c *Client) SetHandler(handler func(*Message)) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	c.onMessage = handler
	pending := c.pending
	if handler != nil {
		c.pending = nil
	}
	c.mu.Unlock()

	if handler == nil {
		return
	}
	for _, msg := range pending {
		handler(msg)
	}
}

// SetDisconnectHandler sets the callback for a channel severed by the daemon
func (c *Client) SetDisconnectHandler(handler func()) {
	c.mu.Lock()
	c.onDisconnect = handler
	c.mu.Unlock()
}

// IsConnected returns true while the channel is open
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Send writes a message to the daemon
func (c *Client) Send(msgType MessageType, payload interface{}) error {
	if !c.IsConnected() {
		return ErrChannelClosed
	}

	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	if err := c.transport.WriteMessage(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	return nil
}

// RequestState asks the daemon for a STATE_UPDATE
func (c *Client) RequestState() error {
	return c.Send(MsgGetState, nil)
}

// Ping sends a keepalive
func (c *Client) Ping() error {
	return c.Send(MsgPing, nil)
}

// Disconnect closes the channel. No further messages are delivered.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		c.wg.Wait()
		return
	}
	c.connected = false
	c.mu.Unlock()

	close(c.done)
	c.transport.Close()
	c.wg.Wait()
}

func (c *Client) receiveLoop() {
	defer c.wg.Done()

	for {
		msg, err := c.transport.ReadMessage()
		if err != nil {
			if errors.Is(err, ErrMalformed) {
				continue
			}
			c.lost()
			return
		}

		if !c.dispatch(msg) {
			return
		}
	}
}

// dispatch hands msg to the handler, or queues it until one is set.
// Returns false once the client was disconnected locally.
func (c *Client) dispatch(msg *Message) bool {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	handler := c.onMessage
	if handler == nil {
		c.pending = append(c.pending, msg)
	}
	c.mu.Unlock()
	if handler == nil {
		return true
	}

	select {
	case <-c.done:
		return false
	default:
	}
	handler(msg)
	return true
}

// lost handles a read failure. A local Disconnect is not reported.
func (c *Client) lost() {
	select {
	case <-c.done:
		return
	default:
	}

	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	handler := c.onDisconnect
	c.mu.Unlock()

	c.transport.Close()
	if wasConnected && handler != nil {
		handler()
	}
}

package daemon

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrChannelClosed is returned when sending on a channel that was torn down
	ErrChannelClosed = errors.New("channel closed")

	// ErrQueueFull is returned when a slow reader overflows the send queue.
	// The channel is closed; the reader resyncs with GET_STATE on reconnect.
	ErrQueueFull = errors.New("channel send queue full")
)

// DefaultQueueSize is the outbound queue length of a channel
const DefaultQueueSize = 256

// Channel is the server side of one UI connection.
// Messages sent on it are written in order by a single writer goroutine.
type Channel struct {
	id        string
	transport Transport
	send      chan *Message

	done      chan struct{}
	closeOnce sync.Once
	onClose   func(*Channel)
	wg        sync.WaitGroup
}

func newChannel(transport Transport, queueSize int) *Channel {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Channel{
		id:        uuid.NewString(),
		transport: transport,
		send:      make(chan *Message, queueSize),
		done:      make(chan struct{}),
	}
}

// ID returns the channel identifier
func (c *Channel) ID() string {
	return c.id
}

// Done is closed once the channel is torn down
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Send queues a message without blocking
func (c *Channel) Send(msg *Message) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrChannelClosed
	default:
		c.Close()
		return ErrQueueFull
	}
}

// Close tears the channel down. Queued messages are dropped.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.transport.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}

// Wait blocks until the reader and writer goroutines have exited
func (c *Channel) Wait() {
	c.wg.Wait()
}

func (c *Channel) start(handler func(*Channel, *Message)) {
	c.wg.Add(2)
	go c.writeLoop()
	go c.readLoop(handler)
}

func (c *Channel) writeLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.transport.WriteMessage(msg); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Channel) readLoop(handler func(*Channel, *Message)) {
	defer c.wg.Done()
	defer c.Close()

	for {
		msg, err := c.transport.ReadMessage()
		if err != nil {
			if errors.Is(err, ErrMalformed) {
				continue
			}
			return
		}
		handler(c, msg)
	}
}

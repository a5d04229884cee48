package daemon

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// ErrMalformed marks an inbound frame that could not be decoded.
// The connection stays usable.
var ErrMalformed = errors.New("malformed message")

// Transport moves messages over one connection.
// ReadMessage is called from a single goroutine; WriteMessage may be called
// concurrently; Close unblocks a pending ReadMessage.
type Transport interface {
	ReadMessage() (*Message, error)
	WriteMessage(msg *Message) error
	Close() error
}

// lineTransport frames messages as newline-delimited JSON over a stream connection
type lineTransport struct {
	conn    net.Conn
	scanner *bufio.Scanner
	wmu     sync.Mutex
}

// NewLineTransport wraps a stream connection (unix socket, TCP, pipe).
// A line longer than MaxMessageSize fails the read for good.
func NewLineTransport(conn net.Conn) Transport {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), MaxMessageSize)
	return &lineTransport{
		conn:    conn,
		scanner: scanner,
	}
}

func (t *lineTransport) ReadMessage() (*Message, error) {
	if !t.scanner.Scan() {
		if err := t.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	msg, err := DecodeMessage(t.scanner.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg, nil
}

func (t *lineTransport) WriteMessage(msg *Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()
	_, err = t.conn.Write(data)
	return err
}

func (t *lineTransport) Close() error {
	return t.conn.Close()
}

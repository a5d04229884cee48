package daemon

import (
	"bufio"
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLineTransport_MalformedLineIsSkippable(t *testing.T) {
	defer goleak.VerifyNone(t)

	serverConn, clientConn := net.Pipe()
	reader := NewLineTransport(serverConn)
	defer reader.Close()
	defer clientConn.Close()

	go func() {
		clientConn.Write([]byte("not json\n"))
		data, _ := mustMessage(MsgPing, nil).Encode()
		clientConn.Write(data)
	}()

	_, err := reader.ReadMessage()
	assert.ErrorIs(t, err, ErrMalformed)

	msg, err := reader.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, MsgPing, msg.Type)
}

func TestLineTransport_OverlongLineFailsRead(t *testing.T) {
	defer goleak.VerifyNone(t)

	serverConn, clientConn := net.Pipe()
	reader := NewLineTransport(serverConn)

	written := make(chan struct{})
	go func() {
		defer close(written)
		// Never terminated; the write stays blocked until the pipe closes
		clientConn.Write(bytes.Repeat([]byte("x"), MaxMessageSize+1))
	}()

	_, err := reader.ReadMessage()
	require.Error(t, err)
	assert.ErrorIs(t, err, bufio.ErrTooLong)
	assert.NotErrorIs(t, err, ErrMalformed)

	reader.Close()
	clientConn.Close()
	<-written
}

func TestLineTransport_OversizedMessageTearsDownChannel(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newHubFixture(t, 0)
	defer f.hub.Close()

	serverConn, clientConn := net.Pipe()
	ch, err := f.hub.Attach(NewLineTransport(serverConn))
	require.NoError(t, err)

	go clientConn.Write(bytes.Repeat([]byte("{"), MaxMessageSize+1))

	select {
	case <-ch.Done():
	case <-time.After(recvTimeout):
		t.Fatal("channel stayed open after an oversized line")
	}
	clientConn.Close()
	ch.Wait()
	assert.Equal(t, 0, f.hub.ChannelCount())
}

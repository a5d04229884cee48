package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"focustrack/modules/platform/daemon"
	"focustrack/modules/platform/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = daemon.MaxMessageSize
)

// wsTransport carries one channel message per text frame
type wsTransport struct {
	conn *websocket.Conn
	wmu  sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

func newWSTransport(conn *websocket.Conn, keepalive bool) *wsTransport {
	t := &wsTransport{
		conn: conn,
		done: make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	if keepalive {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		go t.pingLoop()
	}
	return t
}

func (t *wsTransport) ReadMessage() (*daemon.Message, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
			logger.Debug("WebSocket read error: %v", err)
		}
		return nil, err
	}
	msg, err := daemon.DecodeMessage(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", daemon.ErrMalformed, err)
	}
	return msg, nil
}

func (t *wsTransport) WriteMessage(msg *daemon.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		// WriteControl is safe to call concurrently with WriteMessage
		t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = t.conn.Close()
	})
	return err
}

func (t *wsTransport) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// newUpgrader accepts the listed origins; an empty list accepts any origin
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			return allowed[r.Header.Get("Origin")]
		},
	}
}

// serveWS upgrades the request and attaches the connection to the hub as a channel
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade error: %v", err)
		return
	}

	ch, err := s.hub.Attach(newWSTransport(conn, true))
	if err != nil {
		logger.Debug("WebSocket rejected: %v", err)
		return
	}
	logger.Debug("WebSocket channel %s from %s", ch.ID(), r.RemoteAddr)
}

// DialWebSocket opens a channel to a daemon's /ws endpoint.
// token may be empty when the daemon runs without auth.
func DialWebSocket(ctx context.Context, rawURL, token string) (daemon.Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket url: %w", err)
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: %s: %w", u, resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", u, err)
	}
	return newWSTransport(conn, false), nil
}

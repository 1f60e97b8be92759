// Package transport carries streaming envelopes over WebSocket. The server
// side reads each connection on its own goroutine; the client side correlates
// replies to requests by id.
package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/scaleformeter/scaleformeter/pkg/core"
	"github.com/scaleformeter/scaleformeter/pkg/streaming"
)

const (
	sendChSize   = 256
	writeWait    = 10 * time.Second
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
)

// ErrClosed is returned when sending on a closed connection.
var ErrClosed = errors.New("connection closed")

// conn owns one WebSocket with a single write goroutine.
type conn struct {
	mu     sync.Mutex
	ws     *ws.Conn
	sendCh chan []byte
	done   chan struct{}
	stop   chan struct{} // closed when the current socket is detached
	closed bool

	logger *slog.Logger
}

func newConn(c *ws.Conn, logger *slog.Logger) *conn {
	return &conn{
		ws:     c,
		sendCh: make(chan []byte, sendChSize),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
		logger: logger,
	}
}

// writeLoop drains sendCh until shutdown, a detach of the socket it started
// with, or a write error. onError is called once with the failing socket.
func (c *conn) writeLoop(onError func(*ws.Conn, error)) {
	c.mu.Lock()
	stop := c.stop
	c.mu.Unlock()

	for {
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case data := <-c.sendCh:
			c.mu.Lock()
			w := c.ws
			c.mu.Unlock()
			if w == nil {
				continue
			}

			if err := w.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				onError(w, err)
				return
			}
			if err := w.WriteMessage(ws.TextMessage, data); err != nil {
				onError(w, err)
				return
			}
		}
	}
}

// send queues an envelope. Non-blocking; drops when the queue is full.
func (c *conn) send(env streaming.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	select {
	case c.sendCh <- data:
		return nil
	default:
		c.logger.Warn("WebSocket send channel full, dropping message", "type", env.Type)
		return errors.New("send queue full")
	}
}

// detach closes w and stops its write loop. It returns false when the
// connection is closed or w is no longer the current socket.
func (c *conn) detach(w *ws.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ws == nil || c.ws != w {
		return false
	}
	_ = c.ws.Close()
	c.ws = nil
	close(c.stop)
	c.stop = make(chan struct{})
	return true
}

// swap installs a new socket after a reconnect.
func (c *conn) swap(w *ws.Conn) {
	c.mu.Lock()
	c.ws = w
	c.mu.Unlock()
}

// close sends a close frame and stops the write loop.
func (c *conn) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	w := c.ws
	c.ws = nil
	c.mu.Unlock()

	if w != nil {
		_ = w.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return w.Close()
	}
	return nil
}

// Peer is a connected client as seen by server handlers.
type Peer struct {
	id core.ConnectionID
	c  *conn
}

// ID returns the connection id the server assigned.
func (p *Peer) ID() core.ConnectionID { return p.id }

// Send pushes a one-way message to the peer.
func (p *Peer) Send(typ string, payload any) error {
	env, err := streaming.NewEnvelope("", typ, payload)
	if err != nil {
		return err
	}
	return p.c.send(env)
}

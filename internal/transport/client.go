package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/scaleformeter/scaleformeter/pkg/streaming"
)

// RemoteError is a failure reported by the server in a reply.
type RemoteError struct {
	Type    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: remote error: %s", e.Type, e.Message)
}

// NoticeFunc handles a one-way message pushed by the server.
type NoticeFunc func(env streaming.Envelope)

// Client is the participant side of the transport.
type Client struct {
	url    string
	logger *slog.Logger
	c      *conn

	mu      sync.Mutex
	pending map[string]chan streaming.Envelope
	notices map[string]NoticeFunc

	reconnectBase time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithReconnectBackoff sets the initial reconnect delay.
func WithReconnectBackoff(d time.Duration) ClientOption {
	return func(c *Client) { c.reconnectBase = d }
}

// Dial connects to the server at url and starts the read and write loops.
func Dial(ctx context.Context, url string, logger *slog.Logger, opts ...ClientOption) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cl := &Client{
		url:           url,
		logger:        logger.With("component", "transport"),
		pending:       make(map[string]chan streaming.Envelope),
		notices:       make(map[string]NoticeFunc),
		reconnectBase: time.Second,
	}
	for _, o := range opts {
		o(cl)
	}

	wsConn, _, err := ws.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	cl.c = newConn(wsConn, cl.logger)

	go cl.c.writeLoop(cl.onWriteError)
	go cl.readLoop(wsConn)

	return cl, nil
}

// OnNotice registers fn for one-way messages of the given type.
func (cl *Client) OnNotice(typ string, fn NoticeFunc) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.notices[typ] = fn
}

// Send pushes a one-way message.
func (cl *Client) Send(typ string, payload any) error {
	env, err := streaming.NewEnvelope("", typ, payload)
	if err != nil {
		return err
	}
	return cl.c.send(env)
}

// Request sends a message and waits for the matching reply, decoding its
// payload into out when out is non-nil. The wait is bounded by ctx.
func (cl *Client) Request(ctx context.Context, typ string, payload, out any) error {
	id := uuid.NewString()
	env, err := streaming.NewEnvelope(id, typ, payload)
	if err != nil {
		return err
	}

	ch := make(chan streaming.Envelope, 1)
	cl.mu.Lock()
	cl.pending[id] = ch
	cl.mu.Unlock()
	defer func() {
		cl.mu.Lock()
		delete(cl.pending, id)
		cl.mu.Unlock()
	}()

	if err := cl.c.send(env); err != nil {
		return err
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return fmt.Errorf("%s: %w", typ, ErrClosed)
		}
		if reply.Error != "" {
			return &RemoteError{Type: typ, Message: reply.Error}
		}
		if out == nil {
			return nil
		}
		return reply.Decode(out)
	case <-ctx.Done():
		return fmt.Errorf("%s: waiting for reply: %w", typ, ctx.Err())
	case <-cl.c.done:
		return fmt.Errorf("%s: %w", typ, ErrClosed)
	}
}

func (cl *Client) readLoop(wsConn *ws.Conn) {
	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			select {
			case <-cl.c.done:
				return
			default:
			}
			cl.logger.Warn("WebSocket read error", "error", err)
			go cl.reconnect(wsConn)
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			cl.logger.Debug("Malformed envelope received", "raw", string(data))
			continue
		}

		if env.Type == streaming.TypeReply {
			cl.mu.Lock()
			ch, ok := cl.pending[env.ID]
			delete(cl.pending, env.ID)
			cl.mu.Unlock()
			if ok {
				ch <- env
			} else {
				cl.logger.Debug("Reply without pending request", "id", env.ID)
			}
			continue
		}

		cl.mu.Lock()
		fn := cl.notices[env.Type]
		cl.mu.Unlock()
		if fn == nil {
			cl.logger.Debug("Unhandled notice", "type", env.Type)
			continue
		}
		fn(env)
	}
}

func (cl *Client) onWriteError(w *ws.Conn, err error) {
	cl.logger.Warn("WebSocket write error", "error", err)
	go cl.reconnect(w)
}

// failPending closes every outstanding reply channel.
func (cl *Client) failPending() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for id, ch := range cl.pending {
		close(ch)
		delete(cl.pending, id)
	}
}

// reconnect re-establishes the socket with exponential backoff. Requests in
// flight at the time of the failure are failed; the server treats the new
// socket as a new connection.
func (cl *Client) reconnect(failed *ws.Conn) {
	if !cl.c.detach(failed) {
		return
	}
	cl.failPending()

	backoff := cl.reconnectBase
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-cl.c.done:
			return
		case <-time.After(backoff):
		}

		cl.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)
		wsConn, _, err := ws.DefaultDialer.Dial(cl.url, nil)
		if err != nil {
			cl.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		cl.c.swap(wsConn)
		cl.logger.Info("WebSocket reconnected", "attempt", attempt)
		go cl.c.writeLoop(cl.onWriteError)
		go cl.readLoop(wsConn)
		return
	}

	cl.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// Close shuts the connection down. Pending requests fail with ErrClosed.
func (cl *Client) Close() error {
	err := cl.c.close()
	cl.failPending()
	if errors.Is(err, ws.ErrCloseSent) {
		return nil
	}
	return err
}

package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/scaleformeter/scaleformeter/pkg/core"
	"github.com/scaleformeter/scaleformeter/pkg/streaming"
)

// Router handles the messages of server connections.
type Router interface {
	// Route handles one message. When the envelope carries an id, the result
	// or error is sent back as a reply.
	Route(ctx context.Context, p *Peer, env streaming.Envelope) (any, error)
	// Disconnected is called once after a connection's read loop ended.
	Disconnected(id core.ConnectionID)
}

// Server upgrades HTTP requests to WebSocket connections.
type Server struct {
	router   Router
	logger   *slog.Logger
	upgrader ws.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	peers map[core.ConnectionID]*Peer
	wg    sync.WaitGroup
}

// NewServer creates a server routing every message to router.
func NewServer(router Router, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		router:   router,
		logger:   logger.With("component", "transport"),
		upgrader: ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		ctx:      ctx,
		cancel:   cancel,
		peers:    make(map[core.ConnectionID]*Peer),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
// Messages of one connection are handled in arrival order.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	p := &Peer{
		id: core.ConnectionID(uuid.NewString()),
		c:  newConn(wsConn, s.logger),
	}

	s.mu.Lock()
	s.peers[p.id] = p
	s.mu.Unlock()
	s.wg.Add(1)
	defer s.wg.Done()

	s.logger.Info("Connection opened", "conn", p.id, "remote", r.RemoteAddr)

	go p.c.writeLoop(func(_ *ws.Conn, err error) {
		s.logger.Warn("WebSocket write error", "conn", p.id, "error", err)
		_ = wsConn.Close()
	})

	s.readLoop(wsConn, p)

	s.mu.Lock()
	delete(s.peers, p.id)
	s.mu.Unlock()
	_ = p.c.close()

	s.logger.Info("Connection closed", "conn", p.id)
	s.router.Disconnected(p.id)
}

func (s *Server) readLoop(wsConn *ws.Conn, p *Peer) {
	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if !ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				s.logger.Debug("WebSocket read ended", "conn", p.id, "error", err)
			}
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Warn("Malformed envelope", "conn", p.id, "error", err)
			continue
		}

		result, err := s.router.Route(s.ctx, p, env)
		if env.ID == "" {
			continue
		}

		reply, encErr := streaming.NewEnvelope(env.ID, streaming.TypeReply, result)
		if encErr != nil {
			reply = streaming.Envelope{ID: env.ID, Type: streaming.TypeReply, Error: encErr.Error()}
		}
		if err != nil {
			reply.Error = err.Error()
		}
		if err := p.c.send(reply); err != nil {
			s.logger.Warn("Failed to queue reply", "conn", p.id, "type", env.Type, "error", err)
		}
	}
}

// Broadcast sends a one-way message to every connected peer and returns how
// many accepted it.
func (s *Server) Broadcast(typ string, payload any) int {
	s.mu.Lock()
	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	n := 0
	for _, p := range peers {
		if err := p.Send(typ, payload); err != nil {
			s.logger.Warn("Broadcast failed", "conn", p.id, "type", typ, "error", err)
			continue
		}
		n++
	}
	return n
}

// Count returns the number of open connections.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Close disconnects every peer and waits for their handlers to finish.
func (s *Server) Close() error {
	s.cancel()

	s.mu.Lock()
	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		_ = p.c.close()
	}
	s.wg.Wait()
	return nil
}

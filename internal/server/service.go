// Package server answers the overlay protocol: it serves the settings and
// preset catalog, arbitrates prop ownership through the registry and tells
// clients when overlay assets change on disk.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/scaleformeter/scaleformeter/internal/catalog"
	"github.com/scaleformeter/scaleformeter/internal/config"
	"github.com/scaleformeter/scaleformeter/internal/dispatcher"
	"github.com/scaleformeter/scaleformeter/internal/logging"
	"github.com/scaleformeter/scaleformeter/internal/registry"
	"github.com/scaleformeter/scaleformeter/internal/transport"
	"github.com/scaleformeter/scaleformeter/pkg/core"
	"github.com/scaleformeter/scaleformeter/pkg/streaming"
)

// TypeDisconnect is the internal event raised when a connection closes.
const TypeDisconnect = "disconnect"

// disconnectBuffer bounds the queued disconnect sweeps.
const disconnectBuffer = 256

// Dependencies holds everything the service needs.
type Dependencies struct {
	Registry *registry.Registry
	Config   config.ServerConfig
	Logger   *slog.Logger
}

// Service is the overlay server.
type Service struct {
	deps       Dependencies
	log        *slog.Logger
	dispatcher *dispatcher.Dispatcher
	transport  *transport.Server

	mu       sync.RWMutex
	settings core.GlobalSettings
	catalog  *core.PresetCatalog
}

// New creates the service and registers its handlers.
func New(deps Dependencies) (*Service, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("server: registry is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	d, err := dispatcher.New(logging.NewDispatcherLogger(deps.Logger))
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	s := &Service{
		deps:       deps,
		log:        deps.Logger.With("component", "server"),
		dispatcher: d,
	}
	s.transport = transport.NewServer(s, deps.Logger)

	d.Register(streaming.TypeRequestConfig, s.handleRequestConfig, dispatcher.Logged())
	d.Register(streaming.TypeSpawnConfirmation, s.handleSpawnConfirmation, dispatcher.Logged())
	d.Register(streaming.TypeDeleteAllOwned, s.handleDeleteAllOwned, dispatcher.Logged())
	d.Register(TypeDisconnect, s.handleDisconnect, dispatcher.Buffered(disconnectBuffer), dispatcher.Blocking())

	return s, nil
}

// LoadConfigs reads the settings and preset catalog from the configs
// directory, replacing what is served. On error the previous documents stay.
func (s *Service) LoadConfigs() error {
	dir := s.deps.Config.ConfigsDir
	settings, err := catalog.LoadGlobalSettings(dir)
	if err != nil {
		return err
	}
	cat, err := catalog.LoadPresetCatalog(dir, s.deps.Logger)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.settings = settings
	s.catalog = cat
	s.mu.Unlock()

	s.log.Info("Configs loaded", "dir", dir, "presets", cat.Len())
	return nil
}

// Handler returns the HTTP handler serving the WebSocket endpoint at /ws.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.transport)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "ok %d\n", s.transport.Count())
	})
	return mux
}

// Connections returns the number of open client connections.
func (s *Service) Connections() int {
	return s.transport.Count()
}

// Route implements transport.Router.
func (s *Service) Route(ctx context.Context, p *transport.Peer, env streaming.Envelope) (any, error) {
	return s.dispatcher.Dispatch(ctx, dispatcher.Event{
		Type:      env.Type,
		Conn:      p.ID(),
		RequestID: env.ID,
		Payload:   env.Payload,
	})
}

// Disconnected implements transport.Router.
func (s *Service) Disconnected(id core.ConnectionID) {
	if _, err := s.dispatcher.Dispatch(context.Background(), dispatcher.Event{Type: TypeDisconnect, Conn: id}); err != nil {
		s.log.Error("Failed to queue disconnect", "conn", id, "error", err)
	}
}

// NotifyOverlayChanged tells every client that an overlay asset changed.
func (s *Service) NotifyOverlayChanged(path string) int {
	name := s.deps.Config.ResourceName + "/" + filepath.Base(path)
	n := s.transport.Broadcast(streaming.TypeLiveReload, streaming.LiveReloadPayload{Overlay: name})
	s.log.Info("Live reload sent", "overlay", name, "clients", n)
	return n
}

// OnFileChanged routes watcher events: config documents are reloaded, anything
// else under the overlay directory is announced to clients.
func (s *Service) OnFileChanged(path string) {
	if within(path, s.deps.Config.ConfigsDir) {
		if err := s.LoadConfigs(); err != nil {
			s.log.Error("Config reload failed", "path", path, "error", err)
		}
		return
	}
	s.NotifyOverlayChanged(path)
}

func within(path, dir string) bool {
	if dir == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Close disconnects every client and drains queued disconnect sweeps.
func (s *Service) Close() error {
	err := s.transport.Close()
	s.dispatcher.Close()
	return err
}

func (s *Service) handleRequestConfig(_ context.Context, e dispatcher.Event) (any, error) {
	var p streaming.RequestConfigPayload
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	if p.Resource != "" && p.Resource != s.deps.Config.ResourceName {
		return nil, fmt.Errorf("unknown resource %q", p.Resource)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.catalog == nil {
		return nil, fmt.Errorf("%w: configs not loaded", core.ErrConfig)
	}
	return streaming.ConfigReply{Settings: s.settings, Catalog: s.catalog}, nil
}

func (s *Service) handleSpawnConfirmation(ctx context.Context, e dispatcher.Event) (any, error) {
	var p streaming.SpawnConfirmationPayload
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	accepted := s.deps.Registry.HandleSpawnConfirmation(ctx, e.Conn, p.NetID)
	return streaming.SpawnConfirmationReply{Accepted: accepted}, nil
}

func (s *Service) handleDeleteAllOwned(_ context.Context, e dispatcher.Event) (any, error) {
	s.deps.Registry.HandleDeleteAllOwned(e.Conn)
	return nil, nil
}

func (s *Service) handleDisconnect(_ context.Context, e dispatcher.Event) (any, error) {
	s.deps.Registry.HandleDisconnect(e.Conn)
	return nil, nil
}

func decode(e dispatcher.Event, v any) error {
	return streaming.Envelope{Type: e.Type, Payload: e.Payload}.Decode(v)
}

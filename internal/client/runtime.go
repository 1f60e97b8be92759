// Package client wires the overlay controller, the projected prop lifecycle
// and the sampling loop to a server connection and the host.
package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/scaleformeter/scaleformeter/internal/config"
	"github.com/scaleformeter/scaleformeter/internal/overlay"
	"github.com/scaleformeter/scaleformeter/internal/projection"
	"github.com/scaleformeter/scaleformeter/internal/sampler"
	"github.com/scaleformeter/scaleformeter/internal/storage"
	"github.com/scaleformeter/scaleformeter/pkg/core"
	"github.com/scaleformeter/scaleformeter/pkg/host"
	"github.com/scaleformeter/scaleformeter/pkg/streaming"
)

// Dependencies holds everything a client runtime needs.
type Dependencies struct {
	Transport   Transport
	Surface     host.Surface
	Game        host.Game
	Props       host.Props
	Commands    host.Commands
	Logger      *slog.Logger
	Timeouts    config.TimeoutsConfig

	// Preferences is used as is when set; otherwise Store is scoped to Profile.
	Preferences host.Preferences
	Store       storage.Backend
	Profile     string

	ResourceName      string
	ScaleToDimensions bool
	Debug             bool

	// OverlayNameOverride is passed to the controller.
	OverlayNameOverride func(ctx context.Context) (string, bool)
}

// Runtime is one client session.
type Runtime struct {
	deps   Dependencies
	logger *slog.Logger

	Overlay    *overlay.Controller
	Projection *projection.Lifecycle
	Sampler    *sampler.Sampler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the components and subscribes to live-reload notices.
func New(deps Dependencies) (*Runtime, error) {
	if deps.Transport == nil {
		return nil, errors.New("client: transport is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Timeouts == (config.TimeoutsConfig{}) {
		deps.Timeouts = config.DefaultTimeouts()
	}
	if deps.Preferences == nil && deps.Store != nil {
		deps.Preferences = storage.NewPreferences(deps.Store, deps.Profile, deps.Logger)
	}

	remote := NewRemote(deps.Transport)

	ctrl, err := overlay.NewController(overlay.Dependencies{
		Surface:             deps.Surface,
		Preferences:         deps.Preferences,
		Commands:            deps.Commands,
		Config:              remote,
		Logger:              deps.Logger,
		Timeouts:            deps.Timeouts,
		ResourceName:        deps.ResourceName,
		OverlayNameOverride: deps.OverlayNameOverride,
	})
	if err != nil {
		return nil, err
	}

	life := projection.New(projection.Dependencies{
		Props:             deps.Props,
		Peer:              remote,
		Logger:            deps.Logger,
		Timeouts:          deps.Timeouts,
		ScaleToDimensions: deps.ScaleToDimensions,
	})
	ctrl.OnPresetChange(life.ApplyPreset)
	ctrl.OnProjectionChange(life.ApplyProjection)

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runtime{
		deps:       deps,
		logger:     deps.Logger.With("component", "client"),
		Overlay:    ctrl,
		Projection: life,
		Sampler: sampler.New(sampler.Dependencies{
			Game:       deps.Game,
			Surface:    deps.Surface,
			Overlay:    ctrl,
			Projection: life,
			Logger:     deps.Logger,
			Debug:      deps.Debug,
		}),
		ctx:    ctx,
		cancel: cancel,
	}

	deps.Transport.OnNotice(streaming.TypeLiveReload, r.onLiveReload)
	return r, nil
}

// Start performs the first initialization.
func (r *Runtime) Start(ctx context.Context) error {
	return r.Overlay.Initialize(ctx, "")
}

// Tick forwards one frame to the sampler.
func (r *Runtime) Tick(ctx context.Context) {
	r.Sampler.Tick(ctx)
}

func (r *Runtime) onLiveReload(env streaming.Envelope) {
	var p streaming.LiveReloadPayload
	if err := env.Decode(&p); err != nil {
		r.logger.Warn("Malformed live reload notice", "error", err)
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := r.Overlay.Initialize(r.ctx, p.Overlay)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrInitInProgress):
			r.logger.Debug("Live reload skipped, initialization in progress", "overlay", p.Overlay)
		default:
			r.logger.Error("Live reload failed", "overlay", p.Overlay, "error", err)
		}
	}()
}

// Wait blocks until background work of every component finished.
func (r *Runtime) Wait() {
	r.wg.Wait()
	r.Sampler.Wait()
	r.Overlay.Wait()
}

// Shutdown stops background work, removes the local prop and releases the overlay.
func (r *Runtime) Shutdown() {
	r.cancel()
	r.wg.Wait()
	r.Sampler.Close()
	r.Projection.Shutdown()
	r.Overlay.Release()
	r.logger.Info("Client stopped")
}

// Package sampler runs the per-frame loop that feeds vehicle telemetry to the
// overlay and drives the projected prop.
package sampler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/scaleformeter/scaleformeter/internal/overlay"
	"github.com/scaleformeter/scaleformeter/internal/projection"
	"github.com/scaleformeter/scaleformeter/pkg/core"
	"github.com/scaleformeter/scaleformeter/pkg/host"
)

// FirstPersonViewMode is the vehicle camera mode the overlay hides in.
const FirstPersonViewMode = 4

// Dependencies holds the collaborators of a Sampler.
type Dependencies struct {
	Game       host.Game
	Surface    host.Surface
	Overlay    *overlay.Controller
	Projection *projection.Lifecycle
	Logger     *slog.Logger

	// Debug draws the vehicle bounding box while projecting.
	Debug bool
}

// Sampler is driven by the host's frame loop through Tick.
type Sampler struct {
	deps   Dependencies
	logger *slog.Logger
	title  cases.Caser

	// frame goroutine only
	vehicle core.ObjectHandle
	name    string

	reinit atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a sampler. Background work runs until Close.
func New(deps Dependencies) *Sampler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sampler{
		deps:   deps,
		logger: deps.Logger.With("component", "sampler"),
		title:  cases.Title(language.English),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Active reports whether a frame would be sampled at all.
func (s *Sampler) Active() bool {
	g := s.deps.Game
	c := s.deps.Overlay
	return c.Phase() == overlay.Ready &&
		c.Visible() &&
		!g.PauseMenuActive() &&
		g.ScreenFadedIn() &&
		g.CameraViewMode() != FirstPersonViewMode &&
		!g.PlayerSwitchInProgress() &&
		!s.deps.Projection.Busy()
}

// Tick runs one frame. It never blocks on the host; transitions with waits run
// in the background.
func (s *Sampler) Tick(ctx context.Context) {
	if ctx.Err() != nil || !s.Active() {
		return
	}
	v, ok := s.deps.Game.CurrentVehicle()
	if !ok {
		return
	}
	c := s.deps.Overlay
	p := s.deps.Projection

	if v.Handle != s.vehicle || !v.Exists {
		prev := s.vehicle
		s.vehicle = v.Handle
		s.name = s.title.String(v.DisplayName)
		p.ClearFailure()
		if prev != 0 && s.teardown() {
			return
		}
	} else if p.Vanished() && s.teardown() {
		return
	}

	if Excluded(v.Model) || !v.LocalPlayerDriving {
		return
	}

	c.SendTelemetry(BuildSample(v, s.name))

	if res := s.deps.Surface.Resolution(); res != c.Resolution() {
		s.reinitialize(res)
		return
	}

	if !c.Projected() {
		if s.teardown() {
			return
		}
		c.Render2D()
		return
	}

	_, preset, _ := c.ActivePreset()
	if _, _, ok := p.Object(); !ok {
		if p.State() == projection.Idle {
			s.create(v, preset)
		}
		return
	}

	c.RenderToTarget(p.Target())
	p.Reattach(v, preset)
	if s.deps.Debug {
		s.deps.Game.DrawBoundingBox(v.Handle)
	}
}

// teardown deletes the prop in the background. It reports whether there was
// one; the rest of the frame is skipped in that case.
func (s *Sampler) teardown() bool {
	if _, _, ok := s.deps.Projection.Object(); !ok {
		return false
	}
	s.background("delete prop", func(ctx context.Context) error {
		return s.deps.Projection.Delete(ctx)
	})
	return true
}

func (s *Sampler) create(v core.VehicleFrame, preset core.OverlayPreset) {
	s.background("create prop", func(ctx context.Context) error {
		return s.deps.Projection.Create(ctx, v, preset)
	})
}

func (s *Sampler) reinitialize(res core.Resolution) {
	if !s.reinit.CompareAndSwap(false, true) {
		return
	}
	s.logger.Info("Resolution changed, reinitializing overlay", "resolution", res.String())
	s.deps.Projection.ClearFailure()
	s.background("reinitialize overlay", func(ctx context.Context) error {
		defer s.reinit.Store(false)
		return s.deps.Overlay.Initialize(ctx, "")
	})
}

func (s *Sampler) background(op string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(s.ctx); err != nil {
			if errors.Is(err, core.ErrBusy) || errors.Is(err, core.ErrInitInProgress) {
				s.logger.Debug("Skipped", "op", op, "error", err)
				return
			}
			s.logger.Error("Background operation failed", "op", op, "error", err)
		}
	}()
}

// Wait blocks until background work started by Tick finished.
func (s *Sampler) Wait() {
	s.wg.Wait()
}

// Close cancels background work and waits for it.
func (s *Sampler) Close() {
	s.cancel()
	s.wg.Wait()
}

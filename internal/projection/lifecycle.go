// Package projection manages the networked prop the overlay is projected onto
// and its attachment to the player's vehicle.
package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/scaleformeter/scaleformeter/internal/config"
	"github.com/scaleformeter/scaleformeter/internal/wait"
	"github.com/scaleformeter/scaleformeter/pkg/core"
	"github.com/scaleformeter/scaleformeter/pkg/host"
)

const (
	// PropModel carries the render target the overlay is drawn into.
	PropModel = "bkr_prop_rt_clubhouse_plan_01a"
	// RenderTargetName is the named render target of PropModel.
	RenderTargetName = "clubhouse_plan_01a"
	// AttachBone is the vehicle bone the prop is attached to.
	AttachBone = "chassis"
)

// ErrCreateFailed is returned by Create after a failed attempt until
// ClearFailure is called.
var ErrCreateFailed = errors.New("previous prop creation failed")

// bikeOffset replaces the preset offset on motorbikes.
var bikeOffset = mgl64.Vec3{1.3, -1, 0.5}

// Peer is the server side of the ownership protocol.
type Peer interface {
	// ConfirmSpawn asks the server to take ownership of a replicated prop.
	ConfirmSpawn(ctx context.Context, id core.NetworkID) (accepted bool, err error)
	// DeleteAllOwned asks the server to delete every prop this client owns.
	DeleteAllOwned() error
}

// State is the lifecycle state of the projected prop.
type State int

const (
	Idle State = iota
	Creating
	Attached
	Deleting
	// Failed is entered when a create attempt fails. No new attempt starts
	// until ClearFailure moves the lifecycle back to Idle.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Creating:
		return "creating"
	case Attached:
		return "attached"
	case Deleting:
		return "deleting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Dependencies holds the collaborators of a Lifecycle.
type Dependencies struct {
	Props    host.Props
	Peer     Peer
	Logger   *slog.Logger
	Timeouts config.TimeoutsConfig

	// ScaleToDimensions multiplies the preset offset by the vehicle size.
	ScaleToDimensions bool
}

// Lifecycle owns at most one projected prop. Every transition out of Idle,
// Attached or Failed is a compare-and-swap on state, so a create and a delete
// never run at the same time.
type Lifecycle struct {
	deps   Dependencies
	logger *slog.Logger

	state atomic.Int32

	mu        sync.Mutex
	object    core.ObjectHandle
	netID     core.NetworkID
	target    host.RenderTarget
	vehicle   core.VehicleFrame
	preset    core.OverlayPreset
	projected bool
}

// New creates an idle lifecycle.
func New(deps Dependencies) *Lifecycle {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Timeouts == (config.TimeoutsConfig{}) {
		deps.Timeouts = config.DefaultTimeouts()
	}
	return &Lifecycle{
		deps:   deps,
		logger: deps.Logger.With("component", "projection"),
	}
}

// Create spawns the prop at vehicle, has the server take ownership of it and
// attaches it. Any failure deletes the local prop and latches Failed.
func (l *Lifecycle) Create(ctx context.Context, vehicle core.VehicleFrame, preset core.OverlayPreset) error {
	switch l.State() {
	case Attached:
		l.attach(vehicle, preset)
		return nil
	case Failed:
		return fmt.Errorf("create prop: %w", ErrCreateFailed)
	}
	if !l.state.CompareAndSwap(int32(Idle), int32(Creating)) {
		return fmt.Errorf("create prop: %w", core.ErrBusy)
	}

	// Creating implies projection mode; a switch to flat while the waits run
	// overrides this and is honoured when the prop is attached.
	l.mu.Lock()
	l.projected = true
	l.mu.Unlock()

	props := l.deps.Props
	t := l.deps.Timeouts

	props.RequestModel(PropModel)
	if err := wait.Until(ctx, t.ModelLoad, t.PollInterval, func() bool { return props.ModelLoaded(PropModel) }); err != nil {
		props.ReleaseModel(PropModel)
		return l.fail("load prop model", timeoutAs(err, core.ErrResourceLoadTimeout))
	}

	h, err := props.SpawnProp(PropModel, vehicle.Handle)
	if err != nil {
		props.ReleaseModel(PropModel)
		return l.fail("spawn prop", err)
	}

	netID, err := wait.For(ctx, t.Replication, t.PollInterval, func() (core.NetworkID, bool) {
		id := props.NetworkID(h)
		return id, id.Valid()
	})
	if err != nil {
		props.Delete(h)
		props.ReleaseModel(PropModel)
		return l.fail("replicate prop", timeoutAs(err, core.ErrReplicationTimeout))
	}

	reqCtx, cancel := context.WithTimeout(ctx, t.RequestTimeout)
	accepted, err := l.deps.Peer.ConfirmSpawn(reqCtx, netID)
	cancel()
	if err != nil {
		// The server may still record the prop after our wait ended.
		if delErr := l.deps.Peer.DeleteAllOwned(); delErr != nil {
			l.logger.Warn("Failed to request prop deletion", "error", delErr)
		}
	} else if !accepted {
		err = core.ErrRejectedByPeer
	}
	if err != nil {
		props.Delete(h)
		props.ReleaseModel(PropModel)
		return l.fail("confirm prop", err)
	}

	target := props.BindRenderTarget(RenderTargetName, PropModel)
	props.ReleaseModel(PropModel)
	props.SetCollision(h, false)

	l.mu.Lock()
	l.object = h
	l.netID = netID
	l.target = target
	l.mu.Unlock()
	l.state.Store(int32(Attached))

	l.attach(vehicle, preset)
	l.logger.Info("Prop attached", "object", h, "netId", netID, "vehicle", vehicle.Handle)
	return nil
}

func (l *Lifecycle) fail(step string, err error) error {
	err = fmt.Errorf("%s: %w", step, err)
	l.state.Store(int32(Failed))
	l.logger.Error("Failed to create prop", "error", err)
	return err
}

func timeoutAs(err, sentinel error) error {
	if errors.Is(err, wait.ErrTimeout) {
		return sentinel
	}
	return err
}

// Delete asks the server to delete the prop, waits the grace period and
// forgets the local reference. Deleting without a prop is a no-op.
func (l *Lifecycle) Delete(ctx context.Context) error {
	switch l.State() {
	case Idle, Failed:
		return nil
	}
	if !l.state.CompareAndSwap(int32(Attached), int32(Deleting)) {
		return fmt.Errorf("delete prop: %w", core.ErrBusy)
	}

	l.mu.Lock()
	h := l.object
	l.mu.Unlock()

	l.logger.Warn("Deleting prop", "object", h)
	if err := l.deps.Peer.DeleteAllOwned(); err != nil {
		l.logger.Warn("Failed to request prop deletion", "error", err)
	}
	_ = wait.Sleep(ctx, l.deps.Timeouts.DeleteGrace)

	l.mu.Lock()
	l.object = 0
	l.netID = 0
	l.target = 0
	l.vehicle = core.VehicleFrame{}
	l.mu.Unlock()
	l.state.Store(int32(Idle))
	l.logger.Info("Prop deleted", "object", h)
	return nil
}

// ClearFailure lets Create run again after a failed attempt. It is called on
// events that restart from scratch: a vehicle change, a projection toggle or
// an overlay reinitialization. It reports whether a failure was cleared.
func (l *Lifecycle) ClearFailure() bool {
	return l.state.CompareAndSwap(int32(Failed), int32(Idle))
}

// UpdateAttachment re-applies offset, rotation and opacity for vehicle and
// preset. No-op without a prop or while a create or delete is in flight.
func (l *Lifecycle) UpdateAttachment(vehicle core.VehicleFrame, preset core.OverlayPreset) {
	if l.Busy() {
		return
	}
	l.attach(vehicle, preset)
}

// Reattach re-applies the attachment when the vehicle size changed since the
// last one. It reports whether it did.
func (l *Lifecycle) Reattach(vehicle core.VehicleFrame, preset core.OverlayPreset) bool {
	l.mu.Lock()
	changed := l.object != 0 && (l.vehicle.Handle != vehicle.Handle || l.vehicle.Dimensions != vehicle.Dimensions)
	l.mu.Unlock()
	if changed {
		l.UpdateAttachment(vehicle, preset)
	}
	return changed
}

// ApplyPreset re-attaches the prop with a new preset to the last vehicle.
func (l *Lifecycle) ApplyPreset(_ string, preset core.OverlayPreset) {
	l.mu.Lock()
	vehicle := l.vehicle
	l.mu.Unlock()
	l.UpdateAttachment(vehicle, preset)
}

// ApplyProjection hides the prop in flat mode and shows it with the preset
// opacity when projected. The prop stays hidden until the frame loop deletes it.
// A toggle also clears a latched create failure.
func (l *Lifecycle) ApplyProjection(projected bool, preset core.OverlayPreset) {
	l.ClearFailure()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.projected = projected
	l.preset = preset
	if l.object == 0 {
		return
	}
	l.deps.Props.SetAlpha(l.object, l.alphaLocked())
}

func (l *Lifecycle) attach(vehicle core.VehicleFrame, preset core.OverlayPreset) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := l.object
	if h == 0 || !l.deps.Props.Exists(h) {
		l.logger.Debug("Skipping attachment, prop does not exist", "object", h)
		return
	}
	l.vehicle = vehicle
	l.preset = preset

	l.deps.Props.SetAlpha(h, l.alphaLocked())
	l.deps.Props.AttachToBone(h, vehicle.Handle, AttachBone,
		AttachOffset(vehicle, preset.Offset3D, l.deps.ScaleToDimensions),
		mgl64.Vec3{0, 0, preset.Offset3D.Rot})
}

func (l *Lifecycle) alphaLocked() int {
	if !l.projected {
		return 0
	}
	return l.preset.Alpha()
}

// AttachOffset is the prop position relative to the vehicle chassis.
func AttachOffset(vehicle core.VehicleFrame, off core.Offset3D, scale bool) mgl64.Vec3 {
	if vehicle.Model.Has(core.ModelBike) {
		return bikeOffset
	}
	v := mgl64.Vec3{off.X, off.Y, off.Z}
	if scale {
		d := vehicle.Dimensions
		v = mgl64.Vec3{v.X() * d.X(), v.Y() * d.Y(), v.Z() * d.Z()}
	}
	return v
}

// Shutdown deletes the local prop without involving the server.
func (l *Lifecycle) Shutdown() {
	l.mu.Lock()
	h := l.object
	l.object = 0
	l.netID = 0
	l.mu.Unlock()
	if !l.state.CompareAndSwap(int32(Attached), int32(Idle)) {
		l.ClearFailure()
	}
	if h != 0 && l.deps.Props.Exists(h) {
		l.deps.Props.Delete(h)
		l.logger.Info("Prop removed on shutdown", "object", h)
	}
}

// Busy reports whether a create or delete is in flight.
func (l *Lifecycle) Busy() bool {
	s := l.State()
	return s == Creating || s == Deleting
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	return State(l.state.Load())
}

// Object returns the prop handle and network id. ok is false without a prop.
func (l *Lifecycle) Object() (h core.ObjectHandle, id core.NetworkID, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.object, l.netID, l.object != 0
}

// Vanished reports whether the tracked prop no longer exists on the host.
func (l *Lifecycle) Vanished() bool {
	l.mu.Lock()
	h := l.object
	l.mu.Unlock()
	return h != 0 && !l.deps.Props.Exists(h)
}

// Target returns the render target bound at creation.
func (l *Lifecycle) Target() host.RenderTarget {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.target
}

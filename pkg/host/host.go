// Package host declares the collaborators the game host provides. Nothing in
// this module implements them for a real engine; the client and server
// packages only consume them.
package host

import (
	"context"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/scaleformeter/scaleformeter/pkg/core"
)

// RenderTarget is a host render id a named render target resolved to.
type RenderTarget int32

// Overlay is a loaded overlay movie.
type Overlay interface {
	// Loaded reports whether the movie finished loading.
	Loaded() bool
	// Call invokes a method on the movie without waiting for a result.
	Call(method string, params ...core.OverlayParam)
	// QueryString invokes a method and waits for its string return value.
	QueryString(ctx context.Context, method string, params ...core.OverlayParam) (string, error)
	// Render2D draws the movie full screen for this frame.
	Render2D()
	// RenderToTarget draws the movie into a render target for this frame.
	RenderToTarget(target RenderTarget)
	// Release frees the movie. The handle is unusable afterwards.
	Release()
}

// Surface loads overlay movies and reports the screen they render to.
type Surface interface {
	Load(name string) (Overlay, error)
	Resolution() core.Resolution
}

// Game exposes per-frame client state.
type Game interface {
	PauseMenuActive() bool
	ScreenFadedIn() bool
	CameraViewMode() int
	PlayerSwitchInProgress() bool
	// CurrentVehicle returns the vehicle the local player occupies.
	// ok is false when the player is on foot.
	CurrentVehicle() (frame core.VehicleFrame, ok bool)
	// DrawBoundingBox draws a debug box around an entity for this frame.
	DrawBoundingBox(h core.ObjectHandle)
}

// Props performs client-side object operations.
type Props interface {
	RequestModel(model string)
	ModelLoaded(model string) bool
	ReleaseModel(model string)

	// SpawnProp creates a networked prop at the position of near.
	SpawnProp(model string, near core.ObjectHandle) (core.ObjectHandle, error)
	NetworkID(h core.ObjectHandle) core.NetworkID
	Exists(h core.ObjectHandle) bool
	Delete(h core.ObjectHandle)

	SetCollision(h core.ObjectHandle, enabled bool)
	SetAlpha(h core.ObjectHandle, alpha int)
	AttachToBone(h, parent core.ObjectHandle, bone string, offset, rotation mgl64.Vec3)

	// BindRenderTarget registers the named render target, links it to model
	// and returns its render id.
	BindRenderTarget(name, model string) RenderTarget
}

// Preferences is the client's per-resource key-value store.
type Preferences interface {
	GetString(key string) (string, bool)
	SetString(key, value string)
}

// Commands registers chat commands and key bindings.
type Commands interface {
	RegisterCommand(name string, handler func(args []string))
	RegisterKeyMapping(command, description, defaultKey string)
}

// World is the server's view of networked objects.
type World interface {
	// ObjectFromNetworkID resolves a network id. ok is false until replication
	// reached the server.
	ObjectFromNetworkID(id core.NetworkID) (h core.ObjectHandle, ok bool)
	ObjectExists(h core.ObjectHandle) bool
	DeleteObject(h core.ObjectHandle)
}

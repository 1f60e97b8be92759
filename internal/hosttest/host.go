package hosttest

import (
	"errors"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/scaleformeter/scaleformeter/pkg/core"
	"github.com/scaleformeter/scaleformeter/pkg/host"
)

// Game is a scriptable per-frame client state.
type Game struct {
	mu         sync.Mutex
	Paused     bool
	FadedOut   bool
	ViewMode   int
	Switching  bool
	vehicle    core.VehicleFrame
	inVehicle  bool
	boxesDrawn []core.ObjectHandle
}

// NewGame returns a game with the screen faded in and the player on foot.
func NewGame() *Game {
	return &Game{}
}

// PauseMenuActive implements host.Game.
func (g *Game) PauseMenuActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Paused
}

// ScreenFadedIn implements host.Game.
func (g *Game) ScreenFadedIn() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.FadedOut
}

// CameraViewMode implements host.Game.
func (g *Game) CameraViewMode() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ViewMode
}

// PlayerSwitchInProgress implements host.Game.
func (g *Game) PlayerSwitchInProgress() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Switching
}

// Enter puts the player into v.
func (g *Game) Enter(v core.VehicleFrame) {
	g.mu.Lock()
	g.vehicle = v
	g.inVehicle = true
	g.mu.Unlock()
}

// Exit puts the player on foot.
func (g *Game) Exit() {
	g.mu.Lock()
	g.inVehicle = false
	g.mu.Unlock()
}

// CurrentVehicle implements host.Game.
func (g *Game) CurrentVehicle() (core.VehicleFrame, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.vehicle, g.inVehicle
}

// DrawBoundingBox implements host.Game.
func (g *Game) DrawBoundingBox(h core.ObjectHandle) {
	g.mu.Lock()
	g.boxesDrawn = append(g.boxesDrawn, h)
	g.mu.Unlock()
}

// BoxesDrawn returns the handles passed to DrawBoundingBox.
func (g *Game) BoxesDrawn() []core.ObjectHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]core.ObjectHandle(nil), g.boxesDrawn...)
}

// Attachment is the last attachment applied to a prop.
type Attachment struct {
	Parent   core.ObjectHandle
	Bone     string
	Offset   mgl64.Vec3
	Rotation mgl64.Vec3
}

type prop struct {
	model     string
	netID     core.NetworkID
	collision bool
	alpha     int
	attach    *Attachment
}

// ErrSpawnFailed is returned by SpawnProp when spawning is disabled.
var ErrSpawnFailed = errors.New("spawn failed")

// Props is an in-memory object table. Models load immediately and spawned
// props replicate immediately unless configured otherwise.
type Props struct {
	mu          sync.Mutex
	next        core.ObjectHandle
	nextNet     core.NetworkID
	props       map[core.ObjectHandle]*prop
	requested   map[string]int
	released    map[string]int
	slowModels  bool
	noReplicate bool
	spawnFails  bool
	targets     map[string]host.RenderTarget
}

// NewProps creates an empty object table.
func NewProps() *Props {
	return &Props{
		next:      100,
		nextNet:   1000,
		props:     make(map[core.ObjectHandle]*prop),
		requested: make(map[string]int),
		released:  make(map[string]int),
		targets:   make(map[string]host.RenderTarget),
	}
}

// NeverLoadModels keeps every model unloaded.
func (p *Props) NeverLoadModels(v bool) {
	p.mu.Lock()
	p.slowModels = v
	p.mu.Unlock()
}

// NeverReplicate keeps spawned props without a network id.
func (p *Props) NeverReplicate(v bool) {
	p.mu.Lock()
	p.noReplicate = v
	p.mu.Unlock()
}

// FailSpawns makes SpawnProp fail.
func (p *Props) FailSpawns(v bool) {
	p.mu.Lock()
	p.spawnFails = v
	p.mu.Unlock()
}

// RequestModel implements host.Props.
func (p *Props) RequestModel(model string) {
	p.mu.Lock()
	p.requested[model]++
	p.mu.Unlock()
}

// ModelLoaded implements host.Props.
func (p *Props) ModelLoaded(model string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requested[model] > 0 && !p.slowModels
}

// ReleaseModel implements host.Props.
func (p *Props) ReleaseModel(model string) {
	p.mu.Lock()
	p.released[model]++
	p.mu.Unlock()
}

// ModelReleased reports how often model was released.
func (p *Props) ModelReleased(model string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released[model]
}

// SpawnProp implements host.Props.
func (p *Props) SpawnProp(model string, _ core.ObjectHandle) (core.ObjectHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.spawnFails {
		return 0, ErrSpawnFailed
	}
	p.next++
	pr := &prop{model: model, collision: true, alpha: 255}
	if !p.noReplicate {
		p.nextNet++
		pr.netID = p.nextNet
	}
	p.props[p.next] = pr
	return p.next, nil
}

// NetworkID implements host.Props.
func (p *Props) NetworkID(h core.ObjectHandle) core.NetworkID {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pr, ok := p.props[h]; ok {
		return pr.netID
	}
	return 0
}

// Exists implements host.Props.
func (p *Props) Exists(h core.ObjectHandle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.props[h]
	return ok
}

// Delete implements host.Props.
func (p *Props) Delete(h core.ObjectHandle) {
	p.mu.Lock()
	delete(p.props, h)
	p.mu.Unlock()
}

// SetCollision implements host.Props.
func (p *Props) SetCollision(h core.ObjectHandle, enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pr, ok := p.props[h]; ok {
		pr.collision = enabled
	}
}

// SetAlpha implements host.Props.
func (p *Props) SetAlpha(h core.ObjectHandle, alpha int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pr, ok := p.props[h]; ok {
		pr.alpha = alpha
	}
}

// AttachToBone implements host.Props.
func (p *Props) AttachToBone(h, parent core.ObjectHandle, bone string, offset, rotation mgl64.Vec3) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pr, ok := p.props[h]; ok {
		pr.attach = &Attachment{Parent: parent, Bone: bone, Offset: offset, Rotation: rotation}
	}
}

// BindRenderTarget implements host.Props.
func (p *Props) BindRenderTarget(name, _ string) host.RenderTarget {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.targets[name]; ok {
		return t
	}
	t := host.RenderTarget(len(p.targets) + 1)
	p.targets[name] = t
	return t
}

// Alpha returns the alpha of h.
func (p *Props) Alpha(h core.ObjectHandle) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pr, ok := p.props[h]; ok {
		return pr.alpha
	}
	return -1
}

// Collision reports whether h collides.
func (p *Props) Collision(h core.ObjectHandle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pr, ok := p.props[h]; ok {
		return pr.collision
	}
	return false
}

// AttachmentOf returns the last attachment of h.
func (p *Props) AttachmentOf(h core.ObjectHandle) (Attachment, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pr, ok := p.props[h]; ok && pr.attach != nil {
		return *pr.attach, true
	}
	return Attachment{}, false
}

// Live returns the handles of every existing prop.
func (p *Props) Live() []core.ObjectHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.ObjectHandle, 0, len(p.props))
	for h := range p.props {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Preferences is a map-backed preference store.
type Preferences struct {
	mu     sync.Mutex
	values map[string]string
}

// NewPreferences creates a store seeded with kv pairs.
func NewPreferences(kv ...string) *Preferences {
	p := &Preferences{values: make(map[string]string)}
	for i := 0; i+1 < len(kv); i += 2 {
		p.values[kv[i]] = kv[i+1]
	}
	return p
}

// GetString implements host.Preferences.
func (p *Preferences) GetString(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[key]
	return v, ok
}

// SetString implements host.Preferences.
func (p *Preferences) SetString(key, value string) {
	p.mu.Lock()
	p.values[key] = value
	p.mu.Unlock()
}

// KeyMapping is one registered key binding.
type KeyMapping struct {
	Command     string
	Description string
	DefaultKey  string
}

// Commands records registrations and lets tests invoke handlers.
type Commands struct {
	mu       sync.Mutex
	handlers map[string]func([]string)
	mappings []KeyMapping
}

// NewCommands creates an empty registry.
func NewCommands() *Commands {
	return &Commands{handlers: make(map[string]func([]string))}
}

// RegisterCommand implements host.Commands.
func (c *Commands) RegisterCommand(name string, handler func(args []string)) {
	c.mu.Lock()
	c.handlers[name] = handler
	c.mu.Unlock()
}

// RegisterKeyMapping implements host.Commands.
func (c *Commands) RegisterKeyMapping(command, description, defaultKey string) {
	c.mu.Lock()
	c.mappings = append(c.mappings, KeyMapping{command, description, defaultKey})
	c.mu.Unlock()
}

// Run invokes a registered command. It reports false for unknown commands.
func (c *Commands) Run(name string, args ...string) bool {
	c.mu.Lock()
	h, ok := c.handlers[name]
	c.mu.Unlock()
	if ok {
		h(args)
	}
	return ok
}

// Registered reports whether name has a handler.
func (c *Commands) Registered(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[name]
	return ok
}

// Mappings returns the registered key bindings.
func (c *Commands) Mappings() []KeyMapping {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]KeyMapping(nil), c.mappings...)
}

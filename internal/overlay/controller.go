// Package overlay owns the client overlay session: it loads the overlay movie,
// announces the preset catalog to it and gates every control behind the
// readiness phase.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/scaleformeter/scaleformeter/internal/config"
	"github.com/scaleformeter/scaleformeter/internal/wait"
	"github.com/scaleformeter/scaleformeter/pkg/core"
	"github.com/scaleformeter/scaleformeter/pkg/host"
)

// Preference keys.
const (
	KeyDisplayState = "scaleformeter:displayState"
	KeyUseMph       = "scaleformeter:useMph"
	KeyLastSpeedo   = "scaleformeter:lastSpeedo"
)

const (
	// DefaultResourceName scopes live-reload notices and names the overlay movie.
	DefaultResourceName = "scaleformeter"
	// CommandName is the chat command and key mapping target.
	CommandName        = "sfm"
	commandDescription = "Scaleformeter"
)

// ErrUnknownPreset is returned by SetPreset for a key outside the catalog.
var ErrUnknownPreset = errors.New("unknown preset")

// ConfigSource delivers the settings and preset catalog, normally over the
// server connection.
type ConfigSource interface {
	RequestConfig(ctx context.Context, resource string) (core.GlobalSettings, *core.PresetCatalog, error)
}

// PresetListener is notified after the active preset changed.
type PresetListener func(key string, preset core.OverlayPreset)

// ProjectionListener is notified after the projection mode changed.
type ProjectionListener func(projected bool, preset core.OverlayPreset)

// Dependencies holds the collaborators of a Controller.
type Dependencies struct {
	Surface     host.Surface
	Preferences host.Preferences
	Commands    host.Commands
	Config      ConfigSource
	Logger      *slog.Logger
	Timeouts    config.TimeoutsConfig

	// ResourceName defaults to DefaultResourceName.
	ResourceName string

	// OverlayNameOverride, when set and returning ok, names the movie to load
	// instead of the default one. Used by the live editor.
	OverlayNameOverride func(ctx context.Context) (string, bool)
}

// Controller is the overlay session of one client.
type Controller struct {
	deps   Dependencies
	logger *slog.Logger

	initializing atomic.Bool

	mu                 sync.Mutex
	phase              Phase
	settings           core.GlobalSettings
	catalog            *core.PresetCatalog
	handle             host.Overlay
	active             string
	useMph             bool
	projected          bool
	visible            bool
	resolution         core.Resolution
	commandsRegistered bool
	presetListeners    []PresetListener
	projListeners      []ProjectionListener

	wg sync.WaitGroup
}

// NewController creates an uninitialized controller. Surface, Preferences and
// Config are required.
func NewController(deps Dependencies) (*Controller, error) {
	if deps.Surface == nil || deps.Preferences == nil || deps.Config == nil {
		return nil, errors.New("overlay: surface, preferences and config source are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Timeouts == (config.TimeoutsConfig{}) {
		deps.Timeouts = config.DefaultTimeouts()
	}
	if deps.ResourceName == "" {
		deps.ResourceName = DefaultResourceName
	}
	return &Controller{
		deps:   deps,
		logger: deps.Logger.With("component", "overlay"),
		useMph: true,
	}, nil
}

// OnPresetChange registers a listener for active preset changes.
func (c *Controller) OnPresetChange(l PresetListener) {
	c.mu.Lock()
	c.presetListeners = append(c.presetListeners, l)
	c.mu.Unlock()
}

// OnProjectionChange registers a listener for projection mode changes.
func (c *Controller) OnProjectionChange(l ProjectionListener) {
	c.mu.Lock()
	c.projListeners = append(c.projListeners, l)
	c.mu.Unlock()
}

// Initialize (re)loads the overlay and brings the session to Ready.
// scopedName is the overlay named by a live-reload notice; empty means a
// startup or resolution-driven reinit. Names outside this resource are ignored.
func (c *Controller) Initialize(ctx context.Context, scopedName string) error {
	if scopedName != "" && !strings.HasPrefix(scopedName, c.deps.ResourceName) {
		c.logger.Info("Ignoring overlay outside resource", "overlay", scopedName)
		return nil
	}
	if !c.initializing.CompareAndSwap(false, true) {
		return core.ErrInitInProgress
	}
	defer c.initializing.Store(false)

	if err := c.loadConfig(ctx); err != nil {
		c.logger.Error("Failed to load overlay config", "error", err)
		return err
	}

	c.mu.Lock()
	c.phase = Loading
	old := c.handle
	c.handle = nil
	c.mu.Unlock()
	if old != nil {
		old.Release()
		c.logger.Debug("Released previous overlay")
	}

	name := DefaultResourceName
	if c.deps.OverlayNameOverride != nil {
		if n, ok := c.deps.OverlayNameOverride(ctx); ok && n != "" {
			name = n
		}
	}

	h, err := c.deps.Surface.Load(name)
	if err != nil {
		return fmt.Errorf("load overlay %s: %w", name, err)
	}
	c.mu.Lock()
	c.handle = h
	c.mu.Unlock()

	t := c.deps.Timeouts
	if err := wait.Until(ctx, t.OverlayLoad, t.PollInterval, h.Loaded); err != nil {
		if errors.Is(err, wait.ErrTimeout) {
			err = fmt.Errorf("overlay %s: %w", name, core.ErrResourceLoadTimeout)
		}
		c.logger.Error("Failed to load the overlay", "overlay", name, "error", err)
		return err
	}

	c.mu.Lock()
	c.restoreUnitLocked()
	for _, e := range c.catalog.Entries() {
		speedoConfig(e.Key, e.Preset, c.useMph).on(h)
	}
	c.restoreDisplayLocked(h)
	key, preset := c.selectPresetLocked(h)
	c.resolution = c.deps.Surface.Resolution()
	register := !c.commandsRegistered
	c.commandsRegistered = true
	settings := c.settings
	c.mu.Unlock()

	if register {
		c.registerCommands(settings)
	}

	c.mu.Lock()
	c.phase = Ready
	listeners := append([]PresetListener(nil), c.presetListeners...)
	c.mu.Unlock()

	c.logger.Info("Overlay is ready", "overlay", name, "preset", key, "presets", c.catalog.Len())
	for _, l := range listeners {
		l(key, preset)
	}
	return nil
}

// loadConfig fetches settings and catalog once per session.
func (c *Controller) loadConfig(ctx context.Context) error {
	c.mu.Lock()
	loaded := c.catalog != nil
	c.mu.Unlock()
	if loaded {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.deps.Timeouts.RequestTimeout)
	defer cancel()
	settings, catalog, err := c.deps.Config.RequestConfig(ctx, c.deps.ResourceName)
	if err != nil {
		return fmt.Errorf("request config: %w", err)
	}
	if catalog.Len() == 0 {
		return fmt.Errorf("%w: no speedo configs found", core.ErrConfig)
	}

	c.mu.Lock()
	c.settings = settings
	c.catalog = catalog
	c.mu.Unlock()
	c.logger.Info("Configs received", "presets", catalog.Len())
	return nil
}

func (c *Controller) restoreUnitLocked() {
	v, ok := c.deps.Preferences.GetString(KeyUseMph)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		c.logger.Warn("Ignoring malformed preference", "key", KeyUseMph, "value", v)
		return
	}
	c.useMph = b
}

func (c *Controller) restoreDisplayLocked(h host.Overlay) {
	v, ok := c.deps.Preferences.GetString(KeyDisplayState)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		c.logger.Warn("Ignoring malformed preference", "key", KeyDisplayState, "value", v)
		return
	}
	c.setVisibleLocked(h, b)
}

// selectPresetLocked picks the last used preset, or the first one when none
// was persisted or it left the catalog.
func (c *Controller) selectPresetLocked(h host.Overlay) (string, core.OverlayPreset) {
	key, _ := c.deps.Preferences.GetString(KeyLastSpeedo)
	preset, ok := c.catalog.Get(key)
	if !ok {
		key, preset, _ = c.catalog.First()
	}
	c.active = key
	c.deps.Preferences.SetString(KeyLastSpeedo, key)
	currentSpeedo(key, c.projected).on(h)
	return key, preset
}

func (c *Controller) registerCommands(settings core.GlobalSettings) {
	if c.deps.Commands == nil {
		return
	}
	if settings.ExposeCommands {
		c.deps.Commands.RegisterCommand(CommandName, func(args []string) {
			if err := c.HandleCommand(args); err != nil {
				c.logger.Debug("Command not applied", "args", args, "error", err)
			}
		})
	}
	c.deps.Commands.RegisterKeyMapping(CommandName, commandDescription, settings.DefaultDisplayKey)
}

// withReady runs fn under the lock when the session is Ready. The returned
// func, if any, runs after the lock is released.
func (c *Controller) withReady(op string, fn func(h host.Overlay) func()) error {
	c.mu.Lock()
	if c.phase != Ready || c.handle == nil {
		phase := c.phase
		c.mu.Unlock()
		c.logger.Warn("Control rejected", "op", op, "phase", phase.String())
		return fmt.Errorf("%s: %w", op, core.ErrInvalidCommandContext)
	}
	after := fn(c.handle)
	c.mu.Unlock()
	if after != nil {
		after()
	}
	return nil
}

// ToggleVisibility shows or hides the overlay.
func (c *Controller) ToggleVisibility() error {
	return c.withReady("toggle visibility", func(h host.Overlay) func() {
		c.setVisibleLocked(h, !c.visible)
		return nil
	})
}

// SetVisible shows or hides the overlay.
func (c *Controller) SetVisible(visible bool) error {
	return c.withReady("set visible", func(h host.Overlay) func() {
		c.setVisibleLocked(h, visible)
		return nil
	})
}

func (c *Controller) setVisibleLocked(h host.Overlay, visible bool) {
	c.visible = visible
	display(visible).on(h)
	c.deps.Preferences.SetString(KeyDisplayState, strconv.FormatBool(visible))
}

// CyclePreset switches to the next (dir > 0) or previous preset.
func (c *Controller) CyclePreset(dir int) error {
	return c.withReady("cycle preset", func(h host.Overlay) func() {
		switchSpeedo(dir, c.projected).on(h)
		c.syncCurrent(h)
		return nil
	})
}

// SetPreset switches to the preset with key.
func (c *Controller) SetPreset(key string) error {
	known := true
	err := c.withReady("set preset", func(h host.Overlay) func() {
		if _, known = c.catalog.Get(key); !known {
			return nil
		}
		currentSpeedo(key, c.projected).on(h)
		c.syncCurrent(h)
		return nil
	})
	if err == nil && !known {
		err = fmt.Errorf("%w: %q", ErrUnknownPreset, key)
	}
	return err
}

// syncCurrent asks the movie which preset it shows and adopts the answer.
func (c *Controller) syncCurrent(h host.Overlay) {
	timeout := c.deps.Timeouts.RequestTimeout
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		key, err := h.QueryString(ctx, MethodGetCurrentSpeedo)
		if err != nil {
			c.logger.Warn("Failed to query current preset", "error", err)
			return
		}
		c.adopt(h, key)
	}()
}

func (c *Controller) adopt(h host.Overlay, key string) {
	c.mu.Lock()
	if c.handle != h {
		c.mu.Unlock()
		return
	}
	preset, ok := c.catalog.Get(key)
	if !ok {
		c.mu.Unlock()
		c.logger.Warn("Overlay reported unknown preset", "preset", key)
		return
	}
	c.active = key
	c.deps.Preferences.SetString(KeyLastSpeedo, key)
	listeners := append([]PresetListener(nil), c.presetListeners...)
	c.mu.Unlock()

	c.logger.Debug("Active preset changed", "preset", key)
	for _, l := range listeners {
		l(key, preset)
	}
}

// ToggleUnit switches between mph and km/h.
func (c *Controller) ToggleUnit() error {
	return c.withReady("toggle unit", func(h host.Overlay) func() {
		c.setUnitLocked(h, !c.useMph)
		return nil
	})
}

// SetUnit selects mph (true) or km/h.
func (c *Controller) SetUnit(useMph bool) error {
	return c.withReady("set unit", func(h host.Overlay) func() {
		c.setUnitLocked(h, useMph)
		return nil
	})
}

func (c *Controller) setUnitLocked(h host.Overlay, useMph bool) {
	c.useMph = useMph
	speedUnit(useMph).on(h)
	c.deps.Preferences.SetString(KeyUseMph, strconv.FormatBool(useMph))
}

// ToggleProjection switches between the flat and the projected overlay.
func (c *Controller) ToggleProjection() error {
	return c.withReady("toggle projection", func(h host.Overlay) func() {
		return c.setProjectionLocked(h, !c.projected)
	})
}

// SetProjection selects the projected (true) or flat overlay.
func (c *Controller) SetProjection(projected bool) error {
	return c.withReady("set projection", func(h host.Overlay) func() {
		return c.setProjectionLocked(h, projected)
	})
}

func (c *Controller) setProjectionLocked(h host.Overlay, projected bool) func() {
	c.projected = projected
	dimension(projected).on(h)
	preset, _ := c.catalog.Get(c.active)
	listeners := append([]ProjectionListener(nil), c.projListeners...)
	return func() {
		for _, l := range listeners {
			l(projected, preset)
		}
	}
}

// HandleCommand runs the sfm command: no argument toggles visibility,
// otherwise prev, next, unit or dim.
func (c *Controller) HandleCommand(args []string) error {
	if len(args) == 0 {
		return c.ToggleVisibility()
	}
	switch strings.ToLower(args[0]) {
	case "prev":
		return c.CyclePreset(-1)
	case "next":
		return c.CyclePreset(1)
	case "unit":
		return c.ToggleUnit()
	case "dim":
		return c.ToggleProjection()
	default:
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

// SendTelemetry pushes one sample. Dropped unless Ready.
func (c *Controller) SendTelemetry(s core.TelemetrySample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != Ready || c.handle == nil {
		return
	}
	speedoInfo(s).on(c.handle)
}

// Render2D draws the flat overlay for this frame.
func (c *Controller) Render2D() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == Ready && c.handle != nil {
		c.handle.Render2D()
	}
}

// RenderToTarget draws the overlay into t for this frame.
func (c *Controller) RenderToTarget(t host.RenderTarget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == Ready && c.handle != nil {
		c.handle.RenderToTarget(t)
	}
}

// Release frees the overlay movie and returns the session to Uninitialized
// with its config kept.
func (c *Controller) Release() {
	c.wg.Wait()
	c.mu.Lock()
	h := c.handle
	c.handle = nil
	c.phase = Uninitialized
	c.mu.Unlock()
	if h != nil {
		h.Release()
	}
}

// Wait blocks until background preset queries finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Phase returns the readiness phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Visible reports whether the overlay is shown.
func (c *Controller) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

// UseImperial reports whether speeds are shown in mph.
func (c *Controller) UseImperial() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.useMph
}

// Projected reports whether the overlay is projected onto the prop.
func (c *Controller) Projected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projected
}

// ActivePreset returns the active preset. ok is false before the first
// successful initialization.
func (c *Controller) ActivePreset() (key string, preset core.OverlayPreset, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == "" {
		return "", core.OverlayPreset{}, false
	}
	preset, ok = c.catalog.Get(c.active)
	return c.active, preset, ok
}

// PresetIDs returns the catalog keys in order.
func (c *Controller) PresetIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog.Keys()
}

// PresetNames returns the preset display names in catalog order.
func (c *Controller) PresetNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog.Names()
}

// Resolution returns the screen size recorded by the last initialization.
func (c *Controller) Resolution() core.Resolution {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolution
}

// Settings returns the global settings.
func (c *Controller) Settings() core.GlobalSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Package hosttest provides in-memory implementations of the pkg/host
// interfaces for tests.
package hosttest

import (
	"context"
	"errors"
	"sync"

	"github.com/scaleformeter/scaleformeter/pkg/core"
	"github.com/scaleformeter/scaleformeter/pkg/host"
)

var (
	_ host.Surface     = (*Surface)(nil)
	_ host.Overlay     = (*Overlay)(nil)
	_ host.Game        = (*Game)(nil)
	_ host.Props       = (*Props)(nil)
	_ host.Preferences = (*Preferences)(nil)
	_ host.Commands    = (*Commands)(nil)
)

// Call is one recorded overlay invocation.
type Call struct {
	Method string
	Params []core.OverlayParam
}

// Overlay records calls and emulates the preset bookkeeping of the real movie:
// it remembers announced preset ids and the current one, and steps through
// them on SWITCH_SPEEDO_NEXT/PREV.
type Overlay struct {
	Name string

	mu       sync.Mutex
	loaded   bool
	released bool
	calls    []Call
	ids      []string
	current  string
	renders  int
	targets  []host.RenderTarget
	queryErr error
}

// Loaded implements host.Overlay.
func (o *Overlay) Loaded() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loaded
}

// SetLoaded flips the load state.
func (o *Overlay) SetLoaded(v bool) {
	o.mu.Lock()
	o.loaded = v
	o.mu.Unlock()
}

// Call implements host.Overlay.
func (o *Overlay) Call(method string, params ...core.OverlayParam) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, Call{Method: method, Params: params})

	switch method {
	case "SET_SPEEDO_CONFIG":
		if id, ok := params[0].AsText(); ok {
			o.ids = append(o.ids, id)
		}
	case "SET_CURRENT_SPEEDO_BY_ID":
		if id, ok := params[0].AsText(); ok {
			o.current = id
		}
	case "SWITCH_SPEEDO_NEXT":
		o.step(1)
	case "SWITCH_SPEEDO_PREV":
		o.step(-1)
	}
}

func (o *Overlay) step(dir int) {
	n := len(o.ids)
	if n == 0 {
		return
	}
	i := 0
	for j, id := range o.ids {
		if id == o.current {
			i = j
			break
		}
	}
	o.current = o.ids[((i+dir)%n+n)%n]
}

// FailQueries makes QueryString return err.
func (o *Overlay) FailQueries(err error) {
	o.mu.Lock()
	o.queryErr = err
	o.mu.Unlock()
}

// QueryString implements host.Overlay. GET_CURRENT_SPEEDO returns the current id.
func (o *Overlay) QueryString(ctx context.Context, method string, _ ...core.OverlayParam) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.queryErr != nil {
		return "", o.queryErr
	}
	if method == "GET_CURRENT_SPEEDO" {
		return o.current, nil
	}
	return "", errors.New("unknown query " + method)
}

// Render2D implements host.Overlay.
func (o *Overlay) Render2D() {
	o.mu.Lock()
	o.renders++
	o.mu.Unlock()
}

// RenderToTarget implements host.Overlay.
func (o *Overlay) RenderToTarget(t host.RenderTarget) {
	o.mu.Lock()
	o.targets = append(o.targets, t)
	o.mu.Unlock()
}

// Release implements host.Overlay.
func (o *Overlay) Release() {
	o.mu.Lock()
	o.released = true
	o.loaded = false
	o.mu.Unlock()
}

// Released reports whether Release was called.
func (o *Overlay) Released() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.released
}

// Calls returns a copy of the recorded calls.
func (o *Overlay) Calls() []Call {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Call(nil), o.calls...)
}

// CallsTo returns the recorded calls of one method.
func (o *Overlay) CallsTo(method string) []Call {
	var out []Call
	for _, c := range o.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Current returns the id the movie considers active.
func (o *Overlay) Current() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Renders returns the number of full-screen renders.
func (o *Overlay) Renders() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.renders
}

// TargetRenders returns the render targets drawn into.
func (o *Overlay) TargetRenders() []host.RenderTarget {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]host.RenderTarget(nil), o.targets...)
}

// Surface hands out Overlays. Loaded movies are ready immediately unless
// NeverLoad is set.
type Surface struct {
	mu         sync.Mutex
	resolution core.Resolution
	loads      []*Overlay
	neverLoad  bool
	loadErr    error
}

// NewSurface creates a surface with the given screen size.
func NewSurface(w, h int) *Surface {
	return &Surface{resolution: core.Resolution{Width: w, Height: h}}
}

// NeverLoad makes subsequently loaded overlays stay unloaded.
func (s *Surface) NeverLoad(v bool) {
	s.mu.Lock()
	s.neverLoad = v
	s.mu.Unlock()
}

// FailLoad makes Load return err.
func (s *Surface) FailLoad(err error) {
	s.mu.Lock()
	s.loadErr = err
	s.mu.Unlock()
}

// Load implements host.Surface.
func (s *Surface) Load(name string) (host.Overlay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	o := &Overlay{Name: name, loaded: !s.neverLoad}
	s.loads = append(s.loads, o)
	return o, nil
}

// Resolution implements host.Surface.
func (s *Surface) Resolution() core.Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolution
}

// SetResolution changes the screen size.
func (s *Surface) SetResolution(w, h int) {
	s.mu.Lock()
	s.resolution = core.Resolution{Width: w, Height: h}
	s.mu.Unlock()
}

// Loads returns every overlay handed out, oldest first.
func (s *Surface) Loads() []*Overlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Overlay(nil), s.loads...)
}

// Last returns the most recently loaded overlay.
func (s *Surface) Last() *Overlay {
	loads := s.Loads()
	if len(loads) == 0 {
		return nil
	}
	return loads[len(loads)-1]
}

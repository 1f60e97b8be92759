package server

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaleformeter/scaleformeter/internal/catalog"
	"github.com/scaleformeter/scaleformeter/internal/client"
	"github.com/scaleformeter/scaleformeter/internal/config"
	"github.com/scaleformeter/scaleformeter/internal/dispatcher"
	"github.com/scaleformeter/scaleformeter/internal/registry"
	"github.com/scaleformeter/scaleformeter/internal/transport"
	"github.com/scaleformeter/scaleformeter/internal/world"
	"github.com/scaleformeter/scaleformeter/pkg/core"
	"github.com/scaleformeter/scaleformeter/pkg/streaming"
)

const presetBody = `{
	"name": %q,
	"enabled": true,
	"opacity": 1,
	"themeColour": { "r": 0, "g": 200, "b": 255 },
	"2dPosOffset": { "x": 0, "y": 0, "scale": 1 },
	"3dPosOffset": { "x": 0, "y": 0, "z": 0, "rot": 0, "scale": 1 }
}`

func writeConfigs(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, catalog.SettingsFile),
		[]byte(`{"defaultDisplayKey": "F7", "exposeCommands": true}`), 0o644))
	speedos := filepath.Join(dir, catalog.PresetsDir)
	require.NoError(t, os.MkdirAll(speedos, 0o755))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(speedos, n+".json"), []byte(fmt.Sprintf(presetBody, n)), 0o644))
	}
}

func fastTimeouts() config.TimeoutsConfig {
	t := config.DefaultTimeouts()
	t.Resolve = 50 * time.Millisecond
	t.Exists = 50 * time.Millisecond
	t.PollInterval = 2 * time.Millisecond
	return t
}

type harness struct {
	svc   *Service
	world *world.Memory
	reg   *registry.Registry
	url   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	writeConfigs(t, dir, "alpha", "beta")

	w := world.NewMemory()
	reg := registry.New(registry.Dependencies{World: w, Timeouts: fastTimeouts()})
	svc, err := New(Dependencies{
		Registry: reg,
		Config:   config.ServerConfig{ResourceName: "scaleformeter", ConfigsDir: dir, OverlayDir: t.TempDir()},
	})
	require.NoError(t, err)
	require.NoError(t, svc.LoadConfigs())

	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(func() {
		_ = svc.Close()
		srv.Close()
	})

	return &harness{
		svc:   svc,
		world: w,
		reg:   reg,
		url:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

func (h *harness) dial(t *testing.T) *transport.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	cl, err := transport.Dial(ctx, h.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })
	require.Eventually(t, func() bool { return h.svc.Connections() > 0 }, time.Second, 5*time.Millisecond)
	return cl
}

func TestNew_RequiresRegistry(t *testing.T) {
	_, err := New(Dependencies{})
	assert.Error(t, err)
}

func TestRequestConfig(t *testing.T) {
	h := newHarness(t)
	remote := client.NewRemote(h.dial(t))

	settings, cat, err := remote.RequestConfig(context.Background(), "scaleformeter")
	require.NoError(t, err)
	assert.Equal(t, "F7", settings.DefaultDisplayKey)
	assert.True(t, settings.ExposeCommands)
	assert.Equal(t, []string{"alpha", "beta"}, cat.Keys())
}

func TestRequestConfig_UnknownResource(t *testing.T) {
	h := newHarness(t)
	remote := client.NewRemote(h.dial(t))

	_, _, err := remote.RequestConfig(context.Background(), "someone_else")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown resource")
}

func TestRequestConfig_NotLoaded(t *testing.T) {
	svc, err := New(Dependencies{Registry: registry.New(registry.Dependencies{World: world.NewMemory()})})
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.handleRequestConfig(context.Background(), eventFor(t, streaming.TypeRequestConfig, streaming.RequestConfigPayload{}))
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestLoadConfigs_KeepsPreviousOnError(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.Remove(filepath.Join(h.svc.deps.Config.ConfigsDir, catalog.SettingsFile)))

	assert.Error(t, h.svc.LoadConfigs())

	reply, err := h.svc.handleRequestConfig(context.Background(), eventFor(t, streaming.TypeRequestConfig, streaming.RequestConfigPayload{}))
	require.NoError(t, err)
	assert.Equal(t, 2, reply.(streaming.ConfigReply).Catalog.Len())
}

func TestSpawnConfirmation_AcceptedAndSwept(t *testing.T) {
	h := newHarness(t)
	cl := h.dial(t)
	remote := client.NewRemote(cl)

	obj := h.world.Replicate(17)
	ok, err := remote.ConfirmSpawn(context.Background(), 17)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, h.reg.Connections(), 1)

	require.NoError(t, remote.DeleteAllOwned())
	require.Eventually(t, func() bool {
		return len(h.reg.Connections()) == 0
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, h.world.Deleted(), obj)
}

func TestSpawnConfirmation_RejectedUnknownNetID(t *testing.T) {
	h := newHarness(t)
	remote := client.NewRemote(h.dial(t))

	ok, err := remote.ConfirmSpawn(context.Background(), 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDisconnect_DeletesOwnedObjects(t *testing.T) {
	h := newHarness(t)
	cl := h.dial(t)

	obj := h.world.Replicate(5)
	ok, err := client.NewRemote(cl).ConfirmSpawn(context.Background(), 5)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, cl.Close())
	require.Eventually(t, func() bool {
		return len(h.world.Deleted()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, obj, h.world.Deleted()[0])
	assert.Equal(t, uint64(1), h.reg.Stats().Deleted)
}

func TestNotifyOverlayChanged(t *testing.T) {
	h := newHarness(t)
	cl := h.dial(t)

	var mu sync.Mutex
	var got []string
	cl.OnNotice(streaming.TypeLiveReload, func(env streaming.Envelope) {
		var p streaming.LiveReloadPayload
		if env.Decode(&p) == nil {
			mu.Lock()
			got = append(got, p.Overlay)
			mu.Unlock()
		}
	})

	assert.Equal(t, 1, h.svc.NotifyOverlayChanged(filepath.Join(h.svc.deps.Config.OverlayDir, "speedo.gfx")))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "scaleformeter/speedo.gfx", got[0])
}

func TestOnFileChanged_ReloadsConfigs(t *testing.T) {
	h := newHarness(t)
	dir := h.svc.deps.Config.ConfigsDir
	writeConfigs(t, dir, "alpha", "beta", "gamma")

	h.svc.OnFileChanged(filepath.Join(dir, catalog.PresetsDir, "gamma.json"))

	reply, err := h.svc.handleRequestConfig(context.Background(), eventFor(t, streaming.TypeRequestConfig, streaming.RequestConfigPayload{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, reply.(streaming.ConfigReply).Catalog.Keys())
}

func TestWithin(t *testing.T) {
	tests := []struct {
		path, dir string
		want      bool
	}{
		{"/srv/configs/main.json", "/srv/configs", true},
		{"/srv/configs/speedos/a.json", "/srv/configs", true},
		{"/srv/stream/a.gfx", "/srv/configs", false},
		{"/srv/configs-old/a.json", "/srv/configs", false},
		{"/srv/configs/a.json", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, within(tt.path, tt.dir))
		})
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rec := httptest.NewRecorder()
	h.svc.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "ok 0\n", rec.Body.String())
}

func eventFor(t *testing.T, typ string, payload any) dispatcher.Event {
	t.Helper()
	env, err := streaming.NewEnvelope("", typ, payload)
	require.NoError(t, err)
	return dispatcher.Event{Type: typ, Payload: env.Payload}
}

package catalog

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaleformeter/scaleformeter/pkg/core"
)

const presetTmpl = `{
	"name": %q,
	"enabled": %t,
	"opacity": 0.8,
	"themeColour": { "r": 255, "g": 120, "b": 0 },
	"2dPosOffset": { "x": 10, "y": -20, "scale": 1.0 },
	"3dPosOffset": { "x": 0.5, "y": 0.2, "z": 0.3, "rot": 15, "scale": 0.7 }
}`

func writePreset(t *testing.T, dir, key, body string) {
	t.Helper()
	speedos := filepath.Join(dir, PresetsDir)
	require.NoError(t, os.MkdirAll(speedos, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(speedos, key+".json"), []byte(body), 0o644))
}

func preset(name string, enabled bool) string {
	return fmt.Sprintf(presetTmpl, name, enabled)
}

func TestLoadGlobalSettings(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, SettingsFile),
		[]byte(`{"defaultDisplayKey": "F7", "exposeCommands": true}`), 0o644))

	s, err := LoadGlobalSettings(dir)
	require.NoError(t, err)
	assert.Equal(t, "F7", s.DefaultDisplayKey)
	assert.True(t, s.ExposeCommands)
}

func TestLoadGlobalSettings_Missing(t *testing.T) {
	_, err := LoadGlobalSettings(t.TempDir())
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestLoadGlobalSettings_Malformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, SettingsFile), []byte(`{"defaultDisplayKey": `), 0o644))

	_, err := LoadGlobalSettings(dir)
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestLoadPresetCatalog_OrderAndFields(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "b_sport", preset("Sport", true))
	writePreset(t, dir, "a_classic", preset("Classic", true))
	writePreset(t, dir, "c_hidden", preset("Hidden", false))

	cat, err := LoadPresetCatalog(dir, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"a_classic", "b_sport"}, cat.Keys())
	assert.Equal(t, []string{"Classic", "Sport"}, cat.Names())

	p, ok := cat.Get("b_sport")
	require.True(t, ok)
	assert.Equal(t, 0.8, p.Opacity)
	assert.Equal(t, core.RGB{R: 255, G: 120, B: 0}, p.ThemeColor)
	assert.Equal(t, core.Offset2D{X: 10, Y: -20, Scale: 1}, p.Offset2D)
	assert.Equal(t, core.Offset3D{X: 0.5, Y: 0.2, Z: 0.3, Rot: 15, Scale: 0.7}, p.Offset3D)
}

func TestLoadPresetCatalog_SkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "broken", `{"name": "Broken",`)
	writePreset(t, dir, "too_bright", `{"name": "X", "enabled": true, "opacity": 1.5}`)
	writePreset(t, dir, "good", preset("Good", true))

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	cat, err := LoadPresetCatalog(dir, logger)
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, cat.Keys())
	assert.Contains(t, buf.String(), "broken has an error, please check the config syntax")
	assert.Contains(t, buf.String(), "too_bright has an error")
}

func TestLoadPresetCatalog_ZeroPresets(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "off", preset("Off", false))

	cat, err := LoadPresetCatalog(dir, nil)
	assert.ErrorIs(t, err, core.ErrConfig)
	assert.Nil(t, cat)

	_, err = LoadPresetCatalog(t.TempDir(), nil)
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestEncodeDecode_PreservesOrder(t *testing.T) {
	cat := core.NewPresetCatalog()
	for _, k := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, cat.Add(k, core.OverlayPreset{Name: k, Enabled: true, Opacity: 0.5}))
	}

	data, err := Encode(cat)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, got.Keys())
}

func TestDecode_Rejects(t *testing.T) {
	_, err := Decode([]byte(`[]`))
	assert.ErrorIs(t, err, core.ErrConfig)

	_, err = Decode([]byte(`{"not": "an array"}`))
	assert.ErrorIs(t, err, core.ErrConfig)

	_, err = Decode([]byte(`[{"key":"a","preset":{"opacity":2}}]`))
	assert.ErrorIs(t, err, core.ErrConfig)

	_, err = Decode([]byte(`[{"key":"a","preset":{}},{"key":"a","preset":{}}]`))
	assert.ErrorIs(t, err, core.ErrConfig)
}

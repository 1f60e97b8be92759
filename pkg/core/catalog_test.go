package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalog(t *testing.T, keys ...string) *PresetCatalog {
	t.Helper()
	c := NewPresetCatalog()
	for _, k := range keys {
		require.NoError(t, c.Add(k, OverlayPreset{Name: "Preset " + k, Enabled: true, Opacity: 1}))
	}
	return c
}

func TestPresetCatalog_Order(t *testing.T) {
	c := newCatalog(t, "zeta", "alpha", "mid")

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, c.Keys())
	assert.Equal(t, []string{"Preset zeta", "Preset alpha", "Preset mid"}, c.Names())

	k, p, ok := c.First()
	require.True(t, ok)
	assert.Equal(t, "zeta", k)
	assert.Equal(t, "Preset zeta", p.Name)
	assert.Equal(t, 1, c.IndexOf("alpha"))
	assert.Equal(t, -1, c.IndexOf("missing"))
}

func TestPresetCatalog_AddRejects(t *testing.T) {
	c := newCatalog(t, "a")
	assert.Error(t, c.Add("a", OverlayPreset{}))
	assert.Error(t, c.Add("", OverlayPreset{}))
	assert.Equal(t, 1, c.Len())
}

func TestPresetCatalog_Step(t *testing.T) {
	c := newCatalog(t, "a", "b", "c")

	tests := []struct {
		key  string
		dir  int
		want string
	}{
		{"a", 1, "b"},
		{"c", 1, "a"},
		{"a", -1, "c"},
		{"b", -1, "a"},
		{"unknown", 1, "b"},
		{"b", 4, "c"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Step(tt.key, tt.dir), "%s%+d", tt.key, tt.dir)
	}
	assert.Equal(t, "", NewPresetCatalog().Step("a", 1))
}

func TestPresetCatalog_Nil(t *testing.T) {
	var c *PresetCatalog
	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.Keys())
	_, ok := c.Get("a")
	assert.False(t, ok)
	_, _, ok = c.First()
	assert.False(t, ok)
}

func TestPresetCatalog_JSONKeepsOrder(t *testing.T) {
	c := newCatalog(t, "zeta", "alpha")

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"key":"zeta","preset":{"name":"Preset zeta","enabled":true,"opacity":1,"themeColour":{"r":0,"g":0,"b":0},"2dPosOffset":{"x":0,"y":0,"scale":0},"3dPosOffset":{"x":0,"y":0,"z":0,"rot":0,"scale":0}}},
		{"key":"alpha","preset":{"name":"Preset alpha","enabled":true,"opacity":1,"themeColour":{"r":0,"g":0,"b":0},"2dPosOffset":{"x":0,"y":0,"scale":0},"3dPosOffset":{"x":0,"y":0,"z":0,"rot":0,"scale":0}}}
	]`, string(data))

	var back PresetCatalog
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, c.Keys(), back.Keys())

	empty, err := json.Marshal(NewPresetCatalog())
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))

	assert.Error(t, json.Unmarshal([]byte(`[{"key":"a"},{"key":"a"}]`), &back))
}

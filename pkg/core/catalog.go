package core

import (
	"encoding/json"
	"fmt"
)

// PresetEntry pairs a preset with its catalog key.
type PresetEntry struct {
	Key    string        `json:"key"`
	Preset OverlayPreset `json:"preset"`
}

// PresetCatalog is an ordered mapping from preset key to preset.
// Insertion order defines the default preset and the prev/next cycling order.
// A catalog is built once and then shared read-only.
type PresetCatalog struct {
	keys    []string
	presets map[string]OverlayPreset
}

// NewPresetCatalog creates an empty catalog.
func NewPresetCatalog() *PresetCatalog {
	return &PresetCatalog{presets: make(map[string]OverlayPreset)}
}

// Add appends a preset. Keys must be unique.
func (c *PresetCatalog) Add(key string, p OverlayPreset) error {
	if key == "" {
		return fmt.Errorf("empty preset key")
	}
	if _, ok := c.presets[key]; ok {
		return fmt.Errorf("duplicate preset key %q", key)
	}
	c.keys = append(c.keys, key)
	c.presets[key] = p
	return nil
}

// Len returns the number of presets.
func (c *PresetCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Keys returns the preset keys in catalog order.
func (c *PresetCatalog) Keys() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Names returns the preset display names in catalog order.
func (c *PresetCatalog) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, c.presets[k].Name)
	}
	return out
}

// Get looks up a preset by key.
func (c *PresetCatalog) Get(key string) (OverlayPreset, bool) {
	if c == nil {
		return OverlayPreset{}, false
	}
	p, ok := c.presets[key]
	return p, ok
}

// First returns the default (first inserted) preset.
func (c *PresetCatalog) First() (string, OverlayPreset, bool) {
	if c.Len() == 0 {
		return "", OverlayPreset{}, false
	}
	k := c.keys[0]
	return k, c.presets[k], true
}

// IndexOf returns the catalog position of key, or -1.
func (c *PresetCatalog) IndexOf(key string) int {
	if c == nil {
		return -1
	}
	for i, k := range c.keys {
		if k == key {
			return i
		}
	}
	return -1
}

// Step returns the key dir positions away from key, wrapping around the catalog.
// An unknown key steps from the first preset.
func (c *PresetCatalog) Step(key string, dir int) string {
	n := c.Len()
	if n == 0 {
		return ""
	}
	i := c.IndexOf(key)
	if i < 0 {
		i = 0
	}
	return c.keys[((i+dir)%n+n)%n]
}

// Entries returns the catalog as an ordered slice.
func (c *PresetCatalog) Entries() []PresetEntry {
	if c == nil {
		return nil
	}
	out := make([]PresetEntry, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, PresetEntry{Key: k, Preset: c.presets[k]})
	}
	return out
}

// MarshalJSON encodes the catalog as an ordered array so the order survives the wire.
func (c *PresetCatalog) MarshalJSON() ([]byte, error) {
	entries := c.Entries()
	if entries == nil {
		entries = []PresetEntry{}
	}
	return json.Marshal(entries)
}

// UnmarshalJSON decodes the ordered array form.
func (c *PresetCatalog) UnmarshalJSON(data []byte) error {
	var entries []PresetEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	fresh := NewPresetCatalog()
	for _, e := range entries {
		if err := fresh.Add(e.Key, e.Preset); err != nil {
			return err
		}
	}
	*c = *fresh
	return nil
}

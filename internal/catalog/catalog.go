// Package catalog loads the global settings and overlay presets from the
// resource's configs directory and decodes catalogs received over the wire.
package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/scaleformeter/scaleformeter/pkg/core"
)

const (
	// SettingsFile is the global settings document inside the configs directory.
	SettingsFile = "main.json"
	// PresetsDir holds one preset document per file; the file base name is the key.
	PresetsDir = "speedos"
)

// LoadGlobalSettings reads <dir>/main.json.
func LoadGlobalSettings(dir string) (core.GlobalSettings, error) {
	path := filepath.Join(dir, SettingsFile)

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return core.GlobalSettings{}, fmt.Errorf("%w: %s: %v", core.ErrConfig, path, err)
	}

	var s core.GlobalSettings
	if err := v.Unmarshal(&s); err != nil {
		return core.GlobalSettings{}, fmt.Errorf("%w: %s: %v", core.ErrConfig, path, err)
	}
	return s, nil
}

// LoadPreset reads and validates a single preset document.
func LoadPreset(path string) (core.OverlayPreset, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return core.OverlayPreset{}, fmt.Errorf("%w: %s: %v", core.ErrConfig, path, err)
	}

	var p core.OverlayPreset
	if err := v.Unmarshal(&p); err != nil {
		return core.OverlayPreset{}, fmt.Errorf("%w: %s: %v", core.ErrConfig, path, err)
	}
	if err := p.Validate(); err != nil {
		return core.OverlayPreset{}, fmt.Errorf("%w: %s: %v", core.ErrConfig, path, err)
	}
	return p, nil
}

// LoadPresetCatalog scans <dir>/speedos/*.json in lexical order. Broken files
// are logged and skipped, disabled presets are left out. A catalog with no
// usable preset is an error.
func LoadPresetCatalog(dir string, logger *slog.Logger) (*core.PresetCatalog, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pattern := filepath.Join(dir, PresetsDir, "*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrConfig, pattern, err)
	}
	sort.Strings(files)

	cat := core.NewPresetCatalog()
	for _, file := range files {
		key := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))

		p, err := LoadPreset(file)
		if err != nil {
			logger.Error(key+" has an error, please check the config syntax", "file", file, "error", err)
			continue
		}
		logger.Debug("Preset loaded", "key", key, "enabled", p.Enabled)
		if !p.Enabled {
			continue
		}
		if err := cat.Add(key, p); err != nil {
			logger.Error("Preset rejected", "key", key, "error", err)
		}
	}

	if cat.Len() == 0 {
		return nil, fmt.Errorf("%w: no enabled presets in %s", core.ErrConfig, filepath.Join(dir, PresetsDir))
	}
	return cat, nil
}

// Encode renders a catalog in its wire form.
func Encode(c *core.PresetCatalog) ([]byte, error) {
	return json.Marshal(c)
}

// Decode parses a catalog received over the wire. Every preset is validated
// and an empty catalog is rejected.
func Decode(data []byte) (*core.PresetCatalog, error) {
	cat := core.NewPresetCatalog()
	if err := json.Unmarshal(data, cat); err != nil {
		return nil, fmt.Errorf("%w: decode catalog: %v", core.ErrConfig, err)
	}
	if err := Validate(cat); err != nil {
		return nil, err
	}
	return cat, nil
}

// Validate checks a catalog obtained from anywhere other than LoadPresetCatalog.
func Validate(c *core.PresetCatalog) error {
	if c.Len() == 0 {
		return fmt.Errorf("%w: empty catalog", core.ErrConfig)
	}
	for _, e := range c.Entries() {
		if err := e.Preset.Validate(); err != nil {
			return fmt.Errorf("%w: preset %s: %v", core.ErrConfig, e.Key, err)
		}
	}
	return nil
}

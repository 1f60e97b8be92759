package core

import "fmt"

// GlobalSettings holds the resource-wide settings document (main.json).
// Immutable once loaded; a full reload replaces it wholesale.
type GlobalSettings struct {
	DefaultDisplayKey string `json:"defaultDisplayKey" mapstructure:"defaultDisplayKey"`
	ExposeCommands    bool   `json:"exposeCommands" mapstructure:"exposeCommands"`
}

// RGB is a theme colour with 0-255 channels.
type RGB struct {
	R int `json:"r" mapstructure:"r"`
	G int `json:"g" mapstructure:"g"`
	B int `json:"b" mapstructure:"b"`
}

// String renders the colour the way the overlay expects it: "r,g,b".
func (c RGB) String() string {
	return fmt.Sprintf("%d,%d,%d", c.R, c.G, c.B)
}

// Offset2D positions the flat overlay. X and Y are in thousandths of the screen.
type Offset2D struct {
	X     float64 `json:"x" mapstructure:"x"`
	Y     float64 `json:"y" mapstructure:"y"`
	Scale float64 `json:"scale" mapstructure:"scale"`
}

// Offset3D positions the projected overlay relative to the vehicle chassis.
// Rot is the yaw in degrees.
type Offset3D struct {
	X     float64 `json:"x" mapstructure:"x"`
	Y     float64 `json:"y" mapstructure:"y"`
	Z     float64 `json:"z" mapstructure:"z"`
	Rot   float64 `json:"rot" mapstructure:"rot"`
	Scale float64 `json:"scale" mapstructure:"scale"`
}

// OverlayPreset is a named bundle of visual settings selectable by the player.
type OverlayPreset struct {
	Name       string   `json:"name" mapstructure:"name"`
	Enabled    bool     `json:"enabled" mapstructure:"enabled"`
	Opacity    float64  `json:"opacity" mapstructure:"opacity"`
	ThemeColor RGB      `json:"themeColour" mapstructure:"themeColour"`
	Offset2D   Offset2D `json:"2dPosOffset" mapstructure:"2dPosOffset"`
	Offset3D   Offset3D `json:"3dPosOffset" mapstructure:"3dPosOffset"`
}

// Validate checks value ranges that the overlay cannot render outside of.
func (p OverlayPreset) Validate() error {
	if p.Opacity < 0 || p.Opacity > 1 {
		return fmt.Errorf("opacity %v out of range [0,1]", p.Opacity)
	}
	for name, ch := range map[string]int{"r": p.ThemeColor.R, "g": p.ThemeColor.G, "b": p.ThemeColor.B} {
		if ch < 0 || ch > 255 {
			return fmt.Errorf("theme colour channel %s=%d out of range [0,255]", name, ch)
		}
	}
	return nil
}

// Alpha returns the preset opacity scaled to a 0-255 entity alpha.
func (p OverlayPreset) Alpha() int {
	return int(p.Opacity * 255)
}

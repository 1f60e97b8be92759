package overlay

import (
	"github.com/scaleformeter/scaleformeter/pkg/core"
	"github.com/scaleformeter/scaleformeter/pkg/host"
)

// Overlay movie methods.
const (
	MethodSetSpeedoConfig  = "SET_SPEEDO_CONFIG"
	MethodSetCurrentSpeedo = "SET_CURRENT_SPEEDO_BY_ID"
	MethodGetCurrentSpeedo = "GET_CURRENT_SPEEDO"
	MethodSwitchNext       = "SWITCH_SPEEDO_NEXT"
	MethodSwitchPrev       = "SWITCH_SPEEDO_PREV"
	MethodSwitchUnit       = "SWITCH_SPEED_UNIT"
	MethodSwitchDimension  = "SWITCH_SPEEDO_DIMENSION"
	MethodDisplay          = "DISPLAY"
	MethodSetSpeedoInfo    = "SET_SPEEDO_INFO"
)

// TelemetryParamCount is the arity of SET_SPEEDO_INFO.
const TelemetryParamCount = 20

// call is a fully typed overlay invocation.
type call struct {
	method string
	params []core.OverlayParam
}

func (c call) on(o host.Overlay) {
	o.Call(c.method, c.params...)
}

func speedoConfig(key string, p core.OverlayPreset, useMph bool) call {
	return call{MethodSetSpeedoConfig, []core.OverlayParam{
		core.Text(key),
		core.Float(p.Opacity * 100),
		core.Text(p.ThemeColor.String()),
		core.Float(p.Offset2D.X / 1000),
		core.Float(p.Offset2D.Y / 1000),
		core.Float(p.Offset2D.Scale),
		core.Float(p.Offset3D.Scale),
		core.Bool(useMph),
	}}
}

func currentSpeedo(key string, projected bool) call {
	return call{MethodSetCurrentSpeedo, []core.OverlayParam{core.Text(key), core.Bool(projected)}}
}

func switchSpeedo(dir int, projected bool) call {
	m := MethodSwitchNext
	if dir < 0 {
		m = MethodSwitchPrev
	}
	return call{m, []core.OverlayParam{core.Bool(projected)}}
}

func speedUnit(useMph bool) call {
	return call{MethodSwitchUnit, []core.OverlayParam{core.Bool(useMph)}}
}

func dimension(projected bool) call {
	return call{MethodSwitchDimension, []core.OverlayParam{core.Bool(projected)}}
}

func display(visible bool) call {
	return call{MethodDisplay, []core.OverlayParam{core.Bool(visible)}}
}

// speedoInfo lays out a sample in the order the movie reads it.
func speedoInfo(s core.TelemetrySample) call {
	return call{MethodSetSpeedoInfo, []core.OverlayParam{
		core.Bool(s.Ignition),
		core.Float(s.KMH),
		core.Float(s.MPH),
		core.Int(s.Gear),
		core.Float(s.RPM),
		core.Float(s.Throttle),
		core.Float(s.Brake),
		core.Bool(s.LeftIndicator),
		core.Bool(s.RightIndicator),
		core.Bool(s.Handbrake),
		core.Bool(s.EngineLight),
		core.Bool(s.ABS),
		core.Bool(s.FuelLight),
		core.Bool(s.OilLight),
		core.Bool(s.Headlights),
		core.Bool(s.HighBeam),
		core.Bool(s.BatteryLight),
		core.Bool(s.Drifting),
		core.Int(s.Class),
		core.Text(s.VehicleName),
	}}
}

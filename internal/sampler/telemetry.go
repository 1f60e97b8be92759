package sampler

import (
	"math"

	"github.com/scaleformeter/scaleformeter/pkg/core"
)

const (
	msToKMH = 3.6
	msToMPH = 2.23693629

	driftMinKMH   = 15
	driftMinAngle = 15
)

// excludedModels never show the overlay.
const excludedModels = core.ModelBicycle | core.ModelBoat | core.ModelHelicopter |
	core.ModelPlane | core.ModelTrain | core.ModelCargobob

// Excluded reports whether the vehicle family is skipped by the sampler.
func Excluded(m core.ModelFlags) bool {
	return m.Any(excludedModels)
}

// DriftAngle is the angle in degrees between the heading and the velocity,
// computed from the forward component vy of the relative velocity.
// An undefined angle (standing still) is 0.
func DriftAngle(vy, speed float64) float64 {
	a := math.Acos(vy/speed) * 180 / math.Pi
	if math.IsNaN(a) {
		return 0
	}
	return a
}

// IsDrifting reports whether the vehicle slides sideways in gear above walking pace.
func IsDrifting(v core.VehicleFrame) bool {
	if Excluded(v.Model) || v.Model.Has(core.ModelBike) {
		return false
	}
	return v.Speed*msToKMH > driftMinKMH && v.Gear != 0 &&
		DriftAngle(v.RelativeVelocity.Y(), v.Speed) > driftMinAngle
}

// BuildSample converts a vehicle frame into the overlay's instrument data.
// The host never lights ABS, so a locked front wheel while moving stands in for it.
func BuildSample(v core.VehicleFrame, name string) core.TelemetrySample {
	return core.TelemetrySample{
		Ignition: v.EngineRunning,
		KMH:      v.Speed * msToKMH,
		MPH:      v.Speed * msToMPH,
		Gear:     v.Gear,
		RPM:      v.RPM,
		Throttle: v.Throttle,
		Brake:    v.Brake,

		LeftIndicator:  v.Lights.On(core.LightLeftIndicator),
		RightIndicator: v.Lights.On(core.LightRightIndicator),
		Handbrake:      v.Lights.On(core.LightHandbrake),
		EngineLight:    v.Lights.On(core.LightEngine),
		ABS:            v.WheelSpeed == 0 && v.Speed > 0,
		FuelLight:      v.Lights.On(core.LightFuel),
		OilLight:       v.Lights.On(core.LightOil),
		Headlights:     v.Lights.On(core.LightHeadlights),
		HighBeam:       v.Lights.On(core.LightHighBeam),
		BatteryLight:   v.Lights.On(core.LightBattery),
		Drifting:       IsDrifting(v),

		Class:       v.Class,
		VehicleName: name,
	}
}

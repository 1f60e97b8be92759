package core

import "github.com/go-gl/mathgl/mgl64"

// ModelFlags describes the vehicle model families that change sampling and projection rules.
type ModelFlags uint16

const (
	ModelBike ModelFlags = 1 << iota
	ModelBicycle
	ModelBoat
	ModelHelicopter
	ModelPlane
	ModelTrain
	ModelCargobob
)

// Has reports whether all bits of f are set.
func (m ModelFlags) Has(f ModelFlags) bool {
	return m&f == f
}

// Any reports whether any bit of f is set.
func (m ModelFlags) Any(f ModelFlags) bool {
	return m&f != 0
}

// DashboardLights is the host's dashboard light bitfield.
type DashboardLights uint32

// Dashboard light bits. Bit 4 (ABS) is never lit by the host.
const (
	LightLeftIndicator  DashboardLights = 1 << 0
	LightRightIndicator DashboardLights = 1 << 1
	LightHandbrake      DashboardLights = 1 << 2
	LightEngine         DashboardLights = 1 << 3
	LightFuel           DashboardLights = 1 << 5
	LightOil            DashboardLights = 1 << 6
	LightHeadlights     DashboardLights = 1 << 7
	LightHighBeam       DashboardLights = 1 << 8
	LightBattery        DashboardLights = 1 << 9
)

// On reports whether light l is lit.
func (d DashboardLights) On(l DashboardLights) bool {
	return d&l != 0
}

// VehicleFrame is the host's snapshot of the player's current vehicle for one frame.
type VehicleFrame struct {
	Handle        ObjectHandle
	Exists        bool
	Model         ModelFlags
	Class         int
	DisplayName   string
	EngineRunning bool

	// Speed is in metres per second.
	Speed            float64
	RelativeVelocity mgl64.Vec3
	Gear             int
	RPM              float64
	WheelSpeed       float64
	Lights           DashboardLights
	Throttle         float64
	Brake            float64

	LocalPlayerDriving bool
	Dimensions         mgl64.Vec3
}

// TelemetrySample is one frame of instrument data pushed to the overlay.
type TelemetrySample struct {
	Ignition bool
	KMH      float64
	MPH      float64
	Gear     int
	RPM      float64
	Throttle float64
	Brake    float64

	LeftIndicator  bool
	RightIndicator bool
	Handbrake      bool
	EngineLight    bool
	ABS            bool
	FuelLight      bool
	OilLight       bool
	Headlights     bool
	HighBeam       bool
	BatteryLight   bool
	Drifting       bool

	Class       int
	VehicleName string
}

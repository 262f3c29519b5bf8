// Package hal abstracts the rig's physical I/O: lever and lick switches, the
// load cell, the piston and reward solenoid, and the four actuator drive
// outputs. Pin-level concerns (pull-ups, the active-low relay polarity on
// the piston and valve, ADC calibration) belong to the backend; everything
// above this package works in logical values.
package hal

import "fmt"

type DigitalInput interface {
	Name() string
	Read() (bool, error)
}

type DigitalOutput interface {
	Name() string
	// Set energizes (true) or releases (false) the output in logical terms.
	Set(active bool) error
}

// WeightSensor produces calibrated grams from the load cell.
type WeightSensor interface {
	Name() string
	Read() (float64, error)
}

// Bench bundles every channel wired to one rig.
type Bench struct {
	LeftLever  DigitalInput
	RightLever DigitalInput
	Lick       DigitalInput
	Weight     WeightSensor

	Piston DigitalOutput
	Valve  DigitalOutput

	DriveForward  DigitalOutput
	DriveBackward DigitalOutput
	DriveUp       DigitalOutput
	DriveDown     DigitalOutput
}

// NewBench builds the backend named in the config. Only the simulated
// backend ships here; a deployment provides its own GPIO implementation of
// the interfaces above.
func NewBench(backend string) (Bench, error) {
	switch backend {
	case "sim":
		return NewSimBench().Bench(), nil
	default:
		return Bench{}, fmt.Errorf("unsupported hal backend: %q", backend)
	}
}

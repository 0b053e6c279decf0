package protocol

import "fmt"

// State is the device state reported in the regime byte of a telemetry
// frame. The regime byte packs state*10 + mode nibble.
type State byte

const (
	// StateIdle means the load is not regulating
	StateIdle State = 0

	// StateWorking means an operation is in progress
	StateWorking State = 1

	// StateCompleted means the last operation finished (cutoff or timer)
	StateCompleted State = 2
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWorking:
		return "working"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("unknown state %d", byte(s))
	}
}

// Request is a decoded request frame.
// Produced by ParseRequest for simulators and codec tests.
type Request struct {
	// ModeNibble is the regulation mode selector (high nibble of OP)
	ModeNibble byte

	// Operation is the operation selector (low nibble of OP)
	Operation byte

	// Args are the three decoded 16-bit argument values
	Args [3]uint16
}

// Telemetry is a decoded 19-byte telemetry frame. The device streams one
// of these roughly once per second while under remote control.
//
// Physical quantities are converted from wire units during parsing;
// see the *Scale constants for the fixed-point factors.
type Telemetry struct {
	// State is the device state decoded from the regime byte
	State State

	// ModeNibble is the active regulation mode decoded from the regime byte
	ModeNibble byte

	// Current is the measured load current in amperes
	Current float64

	// Voltage is the measured terminal voltage in volts
	Voltage float64

	// Charge is the accumulated charge of the running operation in amp-hours
	Charge float64

	// Power is the device-reported power in watts, carried in the
	// reserved field pair on firmware that reports it. Zero otherwise.
	Power float64

	// SetCurrent is the programmed setpoint echoed by the device, in
	// the active mode's unit (amperes for CC, raw wire value otherwise)
	SetCurrent float64

	// CutoffVoltage is the programmed cutoff voltage in volts
	CutoffVoltage float64

	// MaxTime is the programmed time limit in minutes (0 = none)
	MaxTime uint16

	// ModelByte is the device identity byte, see the ModelByte* constants
	ModelByte byte
}

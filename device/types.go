package device

import (
	"time"

	"github.com/moffa90/go-ebc/protocol"
)

// Mode is the device's active control regime. Exactly one mode is active
// at a time; it governs which setpoint unit is valid.
type Mode int

const (
	// ModeUnknown means the session has not yet established the device
	// mode. Setpoint operations are refused until an explicit SetMode.
	ModeUnknown Mode = iota

	// ModeCC regulates constant current (setpoint in amperes)
	ModeCC

	// ModeCV regulates constant voltage (setpoint in volts)
	ModeCV

	// ModeCR regulates constant resistance (setpoint in ohms)
	ModeCR

	// ModeCP regulates constant power (setpoint in watts)
	ModeCP

	// ModeBattery runs a battery discharge test; entered via
	// StartBatteryTest, never via SetMode
	ModeBattery
)

func (m Mode) String() string {
	switch m {
	case ModeCC:
		return "CC"
	case ModeCV:
		return "CV"
	case ModeCR:
		return "CR"
	case ModeCP:
		return "CP"
	case ModeBattery:
		return "battery"
	default:
		return "unknown"
	}
}

// wireNibble maps a mode to its protocol mode nibble. A battery test is
// a constant-current discharge with a cutoff on the wire, so ModeBattery
// shares the CC nibble.
func (m Mode) wireNibble() byte {
	switch m {
	case ModeCV:
		return protocol.ModeNibbleCV
	case ModeCR:
		return protocol.ModeNibbleCR
	case ModeCP:
		return protocol.ModeNibbleCP
	default:
		return protocol.ModeNibbleCC
	}
}

// Measurement is a snapshot of the load's electrical state at read time.
// Immutable once produced; re-query for freshness.
type Measurement struct {
	// Voltage is the terminal voltage in volts
	Voltage float64

	// Current is the load current in amperes
	Current float64

	// Power in watts: device-reported when the firmware supports it,
	// otherwise derived as Voltage*Current (see WithDeviceReportedPower)
	Power float64
}

// BatteryTestStatus is a snapshot of a running (or finished) battery test.
type BatteryTestStatus struct {
	// Voltage is the battery terminal voltage in volts
	Voltage float64

	// CapacityAh is the accumulated discharged capacity in amp-hours.
	// Monotonically non-decreasing while a test runs; resets on each
	// test start.
	CapacityAh float64

	// Elapsed is the time since the test started. The device does not
	// report an elapsed counter, so this is tracked host-side.
	Elapsed time.Duration

	// Running is true while the device reports the test in progress
	Running bool
}

// Identity describes the connected device.
type Identity struct {
	// Model is the detected hardware model
	Model Model

	// ModelByte is the raw identity byte from the telemetry stream
	ModelByte byte
}

package device

import "github.com/moffa90/go-ebc/protocol"

// Model identifies an EBC-Axx hardware variant. The variant determines
// the setpoint limits enforced before any frame is transmitted.
type Model int

const (
	// ModelA05 is the EBC-A05 (30 V, 5 A, 35 W)
	ModelA05 Model = iota

	// ModelA10H is the EBC-A10H (30 V, 10 A, 100 W)
	ModelA10H

	// ModelA20 is the EBC-A20 (30 V, 20 A, 200 W)
	ModelA20

	// ModelA40L is the low-voltage EBC-A40L (5 V, 40 A, 200 W)
	ModelA40L
)

func (m Model) String() string {
	switch m {
	case ModelA05:
		return "EBC-A05"
	case ModelA10H:
		return "EBC-A10H"
	case ModelA20:
		return "EBC-A20"
	case ModelA40L:
		return "EBC-A40L"
	default:
		return "EBC-A??"
	}
}

// Limits are the per-model setpoint ceilings, in physical units.
type Limits struct {
	// MaxCurrent is the largest CC setpoint in amperes
	MaxCurrent float64

	// MaxVoltage is the largest CV setpoint / cutoff voltage in volts
	MaxVoltage float64

	// MaxPower is the largest CP setpoint in watts
	MaxPower float64

	// MaxResistance is the largest CR setpoint in ohms
	MaxResistance float64
}

// Resistance ceilings are bounded by the wire encoding: the 10 mOhm
// field tops out below 576 Ohm (protocol.MaxEncodableValue).
var modelLimits = map[Model]Limits{
	ModelA05:  {MaxCurrent: 5, MaxVoltage: 30, MaxPower: 35, MaxResistance: 500},
	ModelA10H: {MaxCurrent: 10, MaxVoltage: 30, MaxPower: 100, MaxResistance: 500},
	ModelA20:  {MaxCurrent: 20, MaxVoltage: 30, MaxPower: 200, MaxResistance: 500},
	ModelA40L: {MaxCurrent: 40, MaxVoltage: 5, MaxPower: 200, MaxResistance: 50},
}

// Limits returns the setpoint ceilings for the model. Unknown models get
// the most conservative table (EBC-A05).
func (m Model) Limits() Limits {
	if l, ok := modelLimits[m]; ok {
		return l
	}
	return modelLimits[ModelA05]
}

// Max returns the largest legal setpoint for the given mode, in that
// mode's unit. ModeBattery uses the current limit, since a battery test
// is a constant-current discharge.
func (l Limits) Max(mode Mode) float64 {
	switch mode {
	case ModeCV:
		return l.MaxVoltage
	case ModeCR:
		return l.MaxResistance
	case ModeCP:
		return l.MaxPower
	case ModeCC, ModeBattery:
		return l.MaxCurrent
	default:
		return 0
	}
}

// modelFromByte maps the telemetry identity byte to a Model.
// ok is false for identity bytes this driver does not know.
func modelFromByte(b byte) (Model, bool) {
	switch b {
	case protocol.ModelByteA05:
		return ModelA05, true
	case protocol.ModelByteA10H:
		return ModelA10H, true
	case protocol.ModelByteA20:
		return ModelA20, true
	case protocol.ModelByteA40L:
		return ModelA40L, true
	default:
		return ModelA05, false
	}
}

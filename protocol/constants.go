package protocol

// Frame structure constants for the EBC-Axx serial protocol.
const (
	// StartOfFrame is the first byte of every request and response (0xFA)
	StartOfFrame = 0xFA

	// EndOfFrame is the last byte of every request and response (0xF8)
	EndOfFrame = 0xF8

	// RequestLength is the fixed size of a request frame in bytes:
	// SOF(1) + OP(1) + DATA(6) + CHECKSUM(1) + EOF(1)
	RequestLength = 10

	// ResponseLength is the fixed size of a telemetry frame in bytes:
	// SOF(1) + REGIME(1) + I(2) + U(2) + CHARGE(2) + RESERVED(2) +
	// ISET(2) + UCUT(2) + TMAX(2) + MODEL(1) + CHECKSUM(1) + EOF(1)
	ResponseLength = 19
)

// Operation nibbles (low nibble of the OP byte).
// The high nibble selects the regulation mode, see the ModeNibble* constants.
const (
	// OpStart begins regulation in the selected mode with the given parameters
	OpStart = 0x01

	// OpStop halts the active operation and de-energizes the load
	OpStop = 0x02

	// OpConnect announces the host and switches the device to remote control
	OpConnect = 0x05

	// OpDisconnect returns the device to front-panel control
	OpDisconnect = 0x06

	// OpAdjust changes the parameters of the active operation in place
	OpAdjust = 0x07

	// OpContinue resumes regulation with the last programmed parameters
	OpContinue = 0x08
)

// Mode nibbles (high nibble of the OP byte).
//
// 0x2-0x7 are reserved by the firmware for the predefined charge
// chemistries and are not used by this driver. The CV and CR selectors
// only exist on firmware revisions that support those regimes.
const (
	// ModeNibbleSys is used with the system operations (connect, stop)
	ModeNibbleSys = 0x0

	// ModeNibbleCC selects constant current regulation
	ModeNibbleCC = 0x0

	// ModeNibbleCP selects constant power regulation
	ModeNibbleCP = 0x1

	// ModeNibbleCV selects constant voltage regulation
	ModeNibbleCV = 0x8

	// ModeNibbleCR selects constant resistance regulation
	ModeNibbleCR = 0x9
)

// Fixed-point scale factors for wire values.
const (
	// CurrentScale converts amperes to the wire unit (mA)
	CurrentScale = 1000

	// VoltageScale converts volts to the measured-voltage wire unit (mV)
	VoltageScale = 1000

	// CutoffScale converts volts to the cutoff/setpoint-voltage wire unit (10 mV)
	CutoffScale = 100

	// PowerScale converts watts to the wire unit (10 mW)
	PowerScale = 100

	// ResistanceScale converts ohms to the wire unit (10 mOhm)
	ResistanceScale = 100

	// CapacityScale converts amp-hours to the accumulated-charge wire unit (mAh)
	CapacityScale = 1000
)

// MaxEncodableValue is the largest 16-bit quantity the value codec can
// carry. The byte-stuffing scheme maps values onto a radix-240 pair, so
// the ceiling is 240*240-1 rather than 65535.
const MaxEncodableValue = 57599

// Model identity bytes reported in telemetry frames.
const (
	// ModelByteA05 identifies the EBC-A05 (30 V / 5 A)
	ModelByteA05 = 0x05

	// ModelByteA10H identifies the EBC-A10H (30 V / 10 A)
	ModelByteA10H = 0x06

	// ModelByteA20 identifies the EBC-A20 (30 V / 20 A)
	ModelByteA20 = 0x09

	// ModelByteA40L identifies the EBC-A40L (5 V / 40 A)
	ModelByteA40L = 0x0A
)

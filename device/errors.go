package device

import (
	"errors"
	"fmt"
)

// Sentinel errors for transport and session state failures.
var (
	// ErrTimeout is returned when the device does not produce a complete
	// frame within the configured read timeout, after all retries.
	ErrTimeout = errors.New("read timeout waiting for device response")

	// ErrClosed is returned by any operation on a closed session.
	ErrClosed = errors.New("session is closed")

	// ErrDesynchronized is returned once a response went unconsumed
	// (read timeout surfaced to the caller): the byte stream's next
	// frame boundary is ambiguous. Resync or reopen the session.
	ErrDesynchronized = errors.New("session desynchronized: call Resync or reopen")

	// ErrModeUnknown is returned by setpoint operations before any
	// explicit SetMode has established the active mode.
	ErrModeUnknown = errors.New("device mode unknown: call SetMode first")

	// ErrNotInBatteryTest is returned by BatteryStatus when no battery
	// test is active. Checked locally; no frame is sent.
	ErrNotInBatteryTest = errors.New("no battery test in progress")
)

// OutOfRangeError reports a caller-supplied value outside the device's
// limits. The offending command is never transmitted.
type OutOfRangeError struct {
	// Field names the rejected quantity (e.g. "setpoint", "cutoff voltage")
	Field string

	// Value is the rejected value
	Value float64

	// Min and Max bound the legal range
	Min float64
	Max float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s %g out of range: valid range is %g-%g", e.Field, e.Value, e.Min, e.Max)
}

// ModeRejectedError reports that the device did not switch to the
// requested mode: the regime echoed in telemetry disagrees with the
// mode the session asked for.
type ModeRejectedError struct {
	// Requested is the mode the session asked for
	Requested Mode

	// EchoedNibble is the mode nibble the device reported instead
	EchoedNibble byte
}

func (e *ModeRejectedError) Error() string {
	return fmt.Sprintf("device rejected mode %s: telemetry reports mode nibble 0x%02X",
		e.Requested, e.EchoedNibble)
}

// IsOutOfRange returns true if the error is a local range validation
// failure (nothing was written to the transport).
func IsOutOfRange(err error) bool {
	var oor *OutOfRangeError
	return errors.As(err, &oor)
}

// IsModeRejected returns true if the error is a device-side mode
// rejection.
func IsModeRejected(err error) bool {
	var mr *ModeRejectedError
	return errors.As(err, &mr)
}

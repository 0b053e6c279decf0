package protocol

import (
	"errors"
	"fmt"
)

// FrameError reports a frame that failed structural validation:
// wrong length or missing start/end marker.
type FrameError struct {
	// Reason describes what was malformed
	Reason string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("malformed frame: %s", e.Reason)
}

// ChecksumError reports a frame whose checksum byte does not match the
// checksum computed over its contents.
type ChecksumError struct {
	// Want is the checksum computed over the frame contents
	Want byte

	// Got is the checksum byte carried by the frame
	Got byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: got 0x%02X, want 0x%02X", e.Got, e.Want)
}

// IsFrameError returns true if the error (or any error it wraps) is a
// structural frame validation failure.
func IsFrameError(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe)
}

// IsChecksumError returns true if the error (or any error it wraps) is a
// checksum mismatch.
func IsChecksumError(err error) bool {
	var ce *ChecksumError
	return errors.As(err, &ce)
}

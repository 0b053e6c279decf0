// Package protocol implements the wire protocol of ZKE EBC-Axx
// electronic loads and battery testers.
//
// # Frame Format
//
// Every exchange uses fixed-length frames delimited by 0xFA/0xF8:
//
//	Request  (10 bytes): [SOF][OP][DATA(6)][CHECKSUM][EOF]
//	Telemetry (19 bytes): [SOF][REGIME][FIELDS(14)][MODEL][CHECKSUM][EOF]
//
// The OP byte packs a mode nibble (high) and an operation nibble (low).
// The checksum is the XOR of every byte between the markers, excluding
// the checksum byte itself.
//
// # Value Encoding
//
// The byte range 0xF0-0xFF is reserved for markers, so 16-bit values are
// carried in a radix-240 byte pair (see EncodeValue/DecodeValue). The
// largest representable value is MaxEncodableValue (57599).
//
// # Building Commands
//
// Each operation has a Build*Cmd constructor returning a complete frame
// ready to write:
//
//	cmd, err := protocol.BuildStartCmd(protocol.ModeNibbleCC, 1000, 300, 0)
//	if err != nil {
//	    return err
//	}
//	_, err = port.Write(cmd)
//
// # Parsing Telemetry
//
// Telemetry frames are validated and decoded by ParseTelemetry:
//
//	t, err := protocol.ParseTelemetry(frame)
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("%.3f V, %.3f A\n", t.Voltage, t.Current)
//
// Parsing is pure and side-effect-free. Structural failures are reported
// as *FrameError, checksum failures as *ChecksumError.
//
// This package is transport-free: it deals only in byte slices. Session
// management, validation against device limits, and serial I/O live in
// the device and serialport packages.
package protocol

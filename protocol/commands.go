package protocol

import "fmt"

// buildRequest assembles a complete 10-byte request frame.
// The three argument values are carried as encoded pairs in the six
// data bytes. The caller must have validated the nibbles and values.
func buildRequest(op byte, args [3][2]byte) []byte {
	frame := make([]byte, 0, RequestLength)

	frame = append(frame, StartOfFrame)
	frame = append(frame, op)
	for _, pair := range args {
		frame = append(frame, pair[0], pair[1])
	}

	// Checksum covers OP through the last data byte
	frame = append(frame, Checksum(frame[1:]))
	frame = append(frame, EndOfFrame)

	return frame
}

// opByte combines a mode nibble and an operation nibble into the OP byte.
func opByte(modeNibble, operation byte) (byte, error) {
	if modeNibble > 0xF {
		return 0, fmt.Errorf("mode nibble 0x%02X out of range", modeNibble)
	}
	if operation > 0xF {
		return 0, fmt.Errorf("operation nibble 0x%02X out of range", operation)
	}
	return modeNibble<<4 | operation, nil
}

// encodeArgs encodes the three 16-bit arguments of a parameterized command.
func encodeArgs(arg1, arg2, arg3 uint16) ([3][2]byte, error) {
	var out [3][2]byte
	for i, v := range [3]uint16{arg1, arg2, arg3} {
		pair, err := EncodeValue(v)
		if err != nil {
			return out, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = pair
	}
	return out, nil
}

// BuildConnectCmd constructs the Connect command frame.
// Connect switches the device to remote control; the device starts
// streaming telemetry frames once it is accepted.
//
// Frame structure:
//
//	[SOF][0x05][00 x6][CHECKSUM][EOF]
func BuildConnectCmd() []byte {
	return buildRequest(ModeNibbleSys<<4|OpConnect, [3][2]byte{})
}

// BuildDisconnectCmd constructs the Disconnect command frame, returning
// the device to front-panel control.
//
// Frame structure:
//
//	[SOF][0x06][00 x6][CHECKSUM][EOF]
func BuildDisconnectCmd() []byte {
	return buildRequest(ModeNibbleSys<<4|OpDisconnect, [3][2]byte{})
}

// BuildStopCmd constructs the Stop command frame. Stop halts whatever
// operation is active and de-energizes the load; it is accepted in any
// state.
//
// Frame structure:
//
//	[SOF][0x02][00 x6][CHECKSUM][EOF]
func BuildStopCmd() []byte {
	return buildRequest(ModeNibbleSys<<4|OpStop, [3][2]byte{})
}

// BuildStartCmd constructs a Start command frame for the given mode.
// The meaning of the arguments depends on the mode nibble: for the
// discharge regimes arg1 is the setpoint in wire units, arg2 the cutoff
// voltage in 10 mV units, and arg3 the time limit in minutes (0 = none).
//
// Frame structure:
//
//	[SOF][MODE|0x01][ARG1(2)][ARG2(2)][ARG3(2)][CHECKSUM][EOF]
func BuildStartCmd(modeNibble byte, arg1, arg2, arg3 uint16) ([]byte, error) {
	op, err := opByte(modeNibble, OpStart)
	if err != nil {
		return nil, err
	}
	args, err := encodeArgs(arg1, arg2, arg3)
	if err != nil {
		return nil, err
	}
	return buildRequest(op, args), nil
}

// BuildAdjustCmd constructs an Adjust command frame. Adjust rewrites the
// parameters of the operation in place without interrupting regulation;
// the argument layout matches BuildStartCmd.
//
// Frame structure:
//
//	[SOF][MODE|0x07][ARG1(2)][ARG2(2)][ARG3(2)][CHECKSUM][EOF]
func BuildAdjustCmd(modeNibble byte, arg1, arg2, arg3 uint16) ([]byte, error) {
	op, err := opByte(modeNibble, OpAdjust)
	if err != nil {
		return nil, err
	}
	args, err := encodeArgs(arg1, arg2, arg3)
	if err != nil {
		return nil, err
	}
	return buildRequest(op, args), nil
}

// BuildContinueCmd constructs a Continue command frame, resuming
// regulation in the given mode with the last programmed parameters.
//
// Frame structure:
//
//	[SOF][MODE|0x08][00 x6][CHECKSUM][EOF]
func BuildContinueCmd(modeNibble byte) ([]byte, error) {
	op, err := opByte(modeNibble, OpContinue)
	if err != nil {
		return nil, err
	}
	return buildRequest(op, [3][2]byte{}), nil
}

// ParseRequest decodes a 10-byte request frame back into its OP nibbles
// and argument values. Validates the markers and checksum.
//
// The driver itself never reads requests; this is the decode half of the
// codec round trip, used by device simulators and tests.
func ParseRequest(frame []byte) (*Request, error) {
	if len(frame) != RequestLength {
		return nil, &FrameError{Reason: fmt.Sprintf("request length %d, want %d", len(frame), RequestLength)}
	}
	if frame[0] != StartOfFrame {
		return nil, &FrameError{Reason: fmt.Sprintf("start marker 0x%02X, want 0x%02X", frame[0], StartOfFrame)}
	}
	if frame[RequestLength-1] != EndOfFrame {
		return nil, &FrameError{Reason: fmt.Sprintf("end marker 0x%02X, want 0x%02X", frame[RequestLength-1], EndOfFrame)}
	}

	want := Checksum(frame[1 : RequestLength-2])
	if got := frame[RequestLength-2]; got != want {
		return nil, &ChecksumError{Want: want, Got: got}
	}

	req := &Request{
		ModeNibble: frame[1] >> 4,
		Operation:  frame[1] & 0xF,
	}
	for i := 0; i < 3; i++ {
		req.Args[i] = DecodeValue(frame[2+2*i], (frame[3+2*i]))
	}
	return req, nil
}

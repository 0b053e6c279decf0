package protocol

import "fmt"

// ParseTelemetry decodes and validates a 19-byte telemetry frame.
//
// Telemetry frame structure:
//
//	[SOF][REGIME][I(2)][U(2)][CHARGE(2)][RESERVED(2)][ISET(2)][UCUT(2)][TMAX(2)][MODEL][CHECKSUM][EOF]
//
// Validates length, both markers, and the checksum before extracting any
// field. Parsing is pure: it never consults device or session state.
func ParseTelemetry(frame []byte) (*Telemetry, error) {
	if len(frame) != ResponseLength {
		return nil, &FrameError{Reason: fmt.Sprintf("telemetry length %d, want %d", len(frame), ResponseLength)}
	}
	if frame[0] != StartOfFrame {
		return nil, &FrameError{Reason: fmt.Sprintf("start marker 0x%02X, want 0x%02X", frame[0], StartOfFrame)}
	}
	if frame[ResponseLength-1] != EndOfFrame {
		return nil, &FrameError{Reason: fmt.Sprintf("end marker 0x%02X, want 0x%02X", frame[ResponseLength-1], EndOfFrame)}
	}

	// Checksum covers REGIME through MODEL
	want := Checksum(frame[1 : ResponseLength-2])
	if got := frame[ResponseLength-2]; got != want {
		return nil, &ChecksumError{Want: want, Got: got}
	}

	regime := frame[1]

	t := &Telemetry{
		State:         State(regime / 10),
		ModeNibble:    regime % 10,
		Current:       float64(DecodeValue(frame[2], frame[3])) / CurrentScale,
		Voltage:       float64(DecodeValue(frame[4], frame[5])) / VoltageScale,
		Charge:        float64(DecodeValue(frame[6], frame[7])) / CapacityScale,
		Power:         float64(DecodeValue(frame[8], frame[9])) / PowerScale,
		SetCurrent:    float64(DecodeValue(frame[10], frame[11])) / CurrentScale,
		CutoffVoltage: float64(DecodeValue(frame[12], frame[13])) / CutoffScale,
		MaxTime:       DecodeValue(frame[14], frame[15]),
		ModelByte:     frame[16],
	}

	return t, nil
}

// BuildTelemetryFrame is the encode half of the telemetry codec. The
// driver never sends telemetry; this exists for device simulators and
// for the codec round-trip tests.
//
// Returns an error if any quantity overflows its wire field.
func BuildTelemetryFrame(t *Telemetry) ([]byte, error) {
	if t.State > StateCompleted {
		return nil, fmt.Errorf("state %d out of range", t.State)
	}
	if t.ModeNibble > 9 {
		return nil, fmt.Errorf("mode nibble 0x%02X does not fit the regime byte", t.ModeNibble)
	}

	fields := []struct {
		name  string
		value float64
		scale float64
	}{
		{"current", t.Current, CurrentScale},
		{"voltage", t.Voltage, VoltageScale},
		{"charge", t.Charge, CapacityScale},
		{"power", t.Power, PowerScale},
		{"set current", t.SetCurrent, CurrentScale},
		{"cutoff voltage", t.CutoffVoltage, CutoffScale},
		{"max time", float64(t.MaxTime), 1},
	}

	frame := make([]byte, 0, ResponseLength)
	frame = append(frame, StartOfFrame)
	frame = append(frame, byte(t.State)*10+t.ModeNibble)

	for _, f := range fields {
		raw := f.value * f.scale
		if raw < 0 || raw > MaxEncodableValue {
			return nil, fmt.Errorf("%s %v does not fit the wire field", f.name, f.value)
		}
		pair, err := EncodeValue(uint16(raw + 0.5))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		frame = append(frame, pair[0], pair[1])
	}

	frame = append(frame, t.ModelByte)
	frame = append(frame, Checksum(frame[1:]))
	frame = append(frame, EndOfFrame)

	return frame, nil
}

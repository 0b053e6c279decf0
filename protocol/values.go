package protocol

import "fmt"

// EncodeValue encodes a 16-bit quantity into the two-byte wire form.
//
// The protocol reserves 0xF0-0xFF for frame markers, so raw 16-bit
// values cannot be sent as-is. The firmware instead carries values in a
// radix-240 pair: MSB = value/240, LSB = value%240. Both bytes stay at
// or below 0xEF for every legal value.
//
// Returns an error if the value exceeds MaxEncodableValue.
func EncodeValue(value uint16) ([2]byte, error) {
	if value > MaxEncodableValue {
		return [2]byte{}, fmt.Errorf("value %d exceeds encodable maximum %d", value, MaxEncodableValue)
	}

	return [2]byte{byte(value / 240), byte(value % 240)}, nil
}

// DecodeValue reverses EncodeValue, turning a wire byte pair back into
// the original 16-bit quantity.
func DecodeValue(msb, lsb byte) uint16 {
	return uint16(msb)*240 + uint16(lsb)
}

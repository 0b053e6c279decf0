package protocol

// Checksum computes the frame checksum used by the EBC-Axx protocol.
// It is the XOR of every byte between the start and end markers,
// excluding the checksum byte itself.
//
// For requests that covers the OP byte and the six data bytes; for
// telemetry frames it covers the regime byte through the model byte.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum ^= b
	}
	return sum
}

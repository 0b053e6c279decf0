package device

import "io"

// Transport is the byte-stream link to the device. The session takes
// exclusive ownership of it for its lifetime and closes it on Close.
//
// Read must block for at most the transport's own read timeout and
// return (0, nil) when that timeout elapses without data; serial ports
// opened via the serialport package behave this way. The session turns
// empty reads into its timeout/retry handling.
type Transport interface {
	io.ReadWriteCloser
}

// InputFlusher is an optional Transport capability: discarding buffered
// input. The device streams telemetry continuously, so the session
// flushes stale frames before an exchange when the transport supports it.
type InputFlusher interface {
	FlushInput() error
}

// Package serialport opens the serial link to an EBC-Axx device and
// presents it as a device.Transport.
//
// The hardware talks 9600 baud, 8 data bits, even parity, 1 stop bit.
// Those are the defaults; only the read timeout normally needs tuning.
package serialport

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
)

const (
	// DefaultBaudRate is the fixed line rate of the EBC-Axx family.
	DefaultBaudRate = 9600

	// DefaultReadTimeout bounds a single Read call. The device emits a
	// telemetry frame roughly every second, so one second covers a full
	// reporting interval.
	DefaultReadTimeout = time.Second
)

// Port wraps a tarm serial port. It satisfies device.Transport: Read
// returns (0, nil) when the read timeout elapses without data, and
// FlushInput discards buffered bytes so the session can resynchronize.
type Port struct {
	port *serial.Port
	name string
}

// Option configures Open.
type Option func(*serial.Config)

// WithBaudRate overrides the line rate. Stock firmware only speaks
// 9600; this exists for modified hardware.
func WithBaudRate(baud int) Option {
	return func(c *serial.Config) {
		c.Baud = baud
	}
}

// WithReadTimeout overrides how long a single Read blocks before
// reporting no data.
func WithReadTimeout(d time.Duration) Option {
	return func(c *serial.Config) {
		c.ReadTimeout = d
	}
}

func newConfig(name string, opts ...Option) *serial.Config {
	config := &serial.Config{
		Name:        name,
		Baud:        DefaultBaudRate,
		Size:        8,
		Parity:      serial.ParityEven,
		StopBits:    serial.Stop1,
		ReadTimeout: DefaultReadTimeout,
	}
	for _, opt := range opts {
		opt(config)
	}
	return config
}

// Open opens the named serial port (e.g. "/dev/ttyUSB0" or "COM3")
// with the EBC-Axx line settings.
func Open(name string, opts ...Option) (*Port, error) {
	port, err := serial.OpenPort(newConfig(name, opts...))
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	return &Port{port: port, name: name}, nil
}

// Name returns the port name given to Open.
func (p *Port) Name() string {
	return p.name
}

// Read fills buf with available bytes, returning (0, nil) if the read
// timeout elapses first.
func (p *Port) Read(buf []byte) (int, error) {
	return p.port.Read(buf)
}

// Write sends buf to the device.
func (p *Port) Write(buf []byte) (int, error) {
	return p.port.Write(buf)
}

// FlushInput discards bytes the device has streamed since the last
// read.
func (p *Port) FlushInput() error {
	return p.port.Flush()
}

// Close releases the port.
func (p *Port) Close() error {
	return p.port.Close()
}

package device

import (
	"time"

	"go.uber.org/zap"
)

// Config holds the session configuration.
type Config struct {
	// Timeout bounds each read attempt while waiting for a frame
	Timeout time.Duration

	// Retries is the number of additional read attempts after a timeout
	// before the timeout is surfaced and the session marked
	// desynchronized
	Retries int

	// Logger receives session diagnostics; defaults to a no-op logger
	Logger *zap.Logger

	// Model overrides autodetection of the hardware variant
	Model Model

	// ModelSet marks that Model was supplied explicitly
	ModelSet bool

	// DeviceReportedPower selects where Measurement.Power comes from:
	// true reads the telemetry power field, false derives V*I. Firmware
	// dependent; most EBC-Axx revisions do not report power.
	DeviceReportedPower bool

	// Now is the clock used for battery-test elapsed tracking
	Now func() time.Time
}

func defaultConfig() Config {
	return Config{
		Timeout: 3 * time.Second,
		Retries: 1,
		Logger:  zap.NewNop(),
		Now:     time.Now,
	}
}

// Option is a functional option for configuring a Session.
type Option func(*Config)

// WithTimeout sets the per-attempt read timeout.
//
// Example:
//
//	sess, err := device.Open(port, device.WithTimeout(5*time.Second))
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}

// WithRetries sets how many times a timed-out read is retried before the
// timeout is surfaced. Default is 1.
func WithRetries(retries int) Option {
	return func(c *Config) {
		if retries >= 0 {
			c.Retries = retries
		}
	}
}

// WithLogger sets the zap logger for session diagnostics.
//
// Example:
//
//	sess, err := device.Open(port, device.WithLogger(logger.Named("ebc")))
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithModel pins the hardware variant instead of autodetecting it from
// the telemetry identity byte. Setpoint limits follow the model.
func WithModel(model Model) Option {
	return func(c *Config) {
		c.Model = model
		c.ModelSet = true
	}
}

// WithDeviceReportedPower selects device-side power readings instead of
// deriving power as voltage*current. Only firmware that populates the
// telemetry power field should enable this.
func WithDeviceReportedPower(enabled bool) Option {
	return func(c *Config) {
		c.DeviceReportedPower = enabled
	}
}

// WithClock overrides the clock used for battery-test elapsed tracking.
// Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		if now != nil {
			c.Now = now
		}
	}
}

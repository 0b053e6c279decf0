package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/moffa90/go-ebc/device"
	"go.uber.org/zap"
)

// runIdentity prints the detected hardware model and exits.
func runIdentity(sess *device.Session) error {
	id, err := sess.Identity()
	if err != nil {
		return err
	}
	fmt.Printf("%s (identity byte 0x%02X)\n", id.Model, id.ModelByte)
	return nil
}

// runMonitor polls measurements at the given interval until the context
// is cancelled, writing one CSV row per poll. Transient timeouts are
// logged and skipped; desynchronization triggers one resync attempt.
func runMonitor(ctx context.Context, sess *device.Session, interval time.Duration, w *rowWriter, log *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		m, err := sess.Measure()
		if err != nil {
			if errors.Is(err, device.ErrDesynchronized) {
				log.Warn("session desynchronized, resyncing")
				if err := sess.Resync(); err != nil {
					return fmt.Errorf("resync: %w", err)
				}
				continue
			}
			if errors.Is(err, device.ErrTimeout) {
				log.Warn("measurement timed out")
				continue
			}
			return err
		}

		log.Debug("measurement",
			zap.Float64("voltage", m.Voltage),
			zap.Float64("current", m.Current),
			zap.Float64("power", m.Power))

		if err := w.measurement(time.Now(), m); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
}

// runMode enters the given regime with a setpoint, turns the output on
// and then monitors until cancelled. The deferred session Close turns
// the output back off.
func runMode(ctx context.Context, sess *device.Session, mode device.Mode, setpoint float64, interval time.Duration, w *rowWriter, log *zap.Logger) error {
	log.Info("starting regime",
		zap.Stringer("mode", mode),
		zap.Float64("setpoint", setpoint))

	if err := sess.SetMode(mode); err != nil {
		return fmt.Errorf("set mode %s: %w", mode, err)
	}
	if err := sess.SetSetpoint(setpoint); err != nil {
		return fmt.Errorf("set setpoint: %w", err)
	}
	if err := sess.OutputOn(); err != nil {
		return fmt.Errorf("output on: %w", err)
	}

	return runMonitor(ctx, sess, interval, w, log)
}

// runBattery runs a constant-current discharge test until the device
// reports completion (cutoff voltage reached) or the context is
// cancelled.
func runBattery(ctx context.Context, sess *device.Session, cutoffVoltage, current float64, interval time.Duration, w *rowWriter, log *zap.Logger) error {
	log.Info("starting battery test",
		zap.Float64("cutoff_voltage", cutoffVoltage),
		zap.Float64("current", current))

	if err := sess.StartBatteryTest(cutoffVoltage, current); err != nil {
		return fmt.Errorf("start battery test: %w", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("battery test interrupted")
			return sess.StopBatteryTest()
		case <-ticker.C:
		}

		st, err := sess.BatteryStatus()
		if err != nil {
			if errors.Is(err, device.ErrTimeout) {
				log.Warn("status poll timed out")
				continue
			}
			return err
		}

		if err := w.batteryStatus(time.Now(), st); err != nil {
			return fmt.Errorf("write row: %w", err)
		}

		if !st.Running {
			log.Info("battery test complete",
				zap.Float64("capacity_ah", st.CapacityAh),
				zap.Duration("elapsed", st.Elapsed))
			return sess.StopBatteryTest()
		}
	}
}

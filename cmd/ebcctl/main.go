// ebcctl drives a ZKE EBC-Axx electronic load from the command line:
// live telemetry logging to CSV, constant current/voltage/power/
// resistance regimes and full battery discharge tests.
//
// Usage:
//
//	ebcctl                               # monitor, CSV on stdout
//	ebcctl -identity                     # print the detected model
//	ebcctl -cc -c 1.5 -o run.csv        # 1.5 A constant current
//	ebcctl -cv -v 12.0                   # 12 V constant voltage
//	ebcctl -cp -p 30                     # 30 W constant power
//	ebcctl -cr -r 8.2                    # 8.2 Ohm constant resistance
//	ebcctl -battery -c 0.5 -v 3.0        # discharge at 0.5 A to 3.0 V
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moffa90/go-ebc/device"
	"github.com/moffa90/go-ebc/serialport"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ebcctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		port       = flag.String("port", "", "serial port (overrides config)")
		output     = flag.String("o", "", "output CSV file (default stdout)")
		appendOut  = flag.Bool("a", false, "append to output file instead of overwriting")
		force      = flag.Bool("f", false, "overwrite output file if it exists")
		interval   = flag.Duration("interval", time.Second, "poll interval")

		actIdentity = flag.Bool("identity", false, "print the detected model and exit")
		actMonitor  = flag.Bool("monitor", false, "monitor mode (default)")
		actCC       = flag.Bool("cc", false, "constant current regime (-c amps)")
		actCV       = flag.Bool("cv", false, "constant voltage regime (-v volts)")
		actCP       = flag.Bool("cp", false, "constant power regime (-p watts)")
		actCR       = flag.Bool("cr", false, "constant resistance regime (-r ohms)")
		actBattery  = flag.Bool("battery", false, "battery discharge test (-c amps, -v cutoff volts)")

		current    = flag.Float64("c", 1.0, "current in amperes")
		voltage    = flag.Float64("v", 4.0, "voltage in volts (CV setpoint or battery cutoff)")
		power      = flag.Float64("p", 5.0, "power in watts")
		resistance = flag.Float64("r", 10.0, "resistance in ohms")
	)
	flag.Parse()

	if n := countTrue(*actIdentity, *actMonitor, *actCC, *actCV, *actCP, *actCR, *actBattery); n > 1 {
		return fmt.Errorf("pick one action: -identity, -monitor, -cc, -cv, -cp, -cr or -battery")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *port != "" {
		cfg.Serial.Port = *port
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	out, writeHeader, err := openOutput(*output, *appendOut, *force)
	if err != nil {
		return err
	}
	if c, ok := out.(io.Closer); ok && out != os.Stdout {
		defer c.Close()
	}
	w := newRowWriter(out, writeHeader)

	log.Info("opening serial port",
		zap.String("port", cfg.Serial.Port),
		zap.Int("baud", cfg.Serial.BaudRate))

	sp, err := serialport.Open(cfg.Serial.Port,
		serialport.WithBaudRate(cfg.Serial.BaudRate),
		serialport.WithReadTimeout(cfg.Serial.ReadTimeout))
	if err != nil {
		return err
	}

	sess, err := device.Open(sp,
		device.WithTimeout(cfg.Serial.Timeout),
		device.WithRetries(cfg.Serial.Retries),
		device.WithLogger(log.Named("device")))
	if err != nil {
		sp.Close()
		return fmt.Errorf("open session: %w", err)
	}
	// Close writes the output-off frame, so a Ctrl-C never leaves the
	// load energized.
	defer sess.Close()

	if id, err := sess.Identity(); err == nil {
		log.Info("connected", zap.Stringer("model", id.Model))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *actIdentity:
		return runIdentity(sess)
	case *actCC:
		return runMode(ctx, sess, device.ModeCC, *current, *interval, w, log)
	case *actCV:
		return runMode(ctx, sess, device.ModeCV, *voltage, *interval, w, log)
	case *actCP:
		return runMode(ctx, sess, device.ModeCP, *power, *interval, w, log)
	case *actCR:
		return runMode(ctx, sess, device.ModeCR, *resistance, *interval, w, log)
	case *actBattery:
		return runBattery(ctx, sess, *voltage, *current, *interval, w, log)
	default:
		return runMonitor(ctx, sess, *interval, w, log)
	}
}

// openOutput resolves the CSV destination. Returns the writer and
// whether a header row should be emitted (skipped when appending to an
// existing non-empty file).
func openOutput(path string, appendOut, force bool) (io.Writer, bool, error) {
	if path == "" {
		return os.Stdout, true, nil
	}

	info, err := os.Stat(path)
	exists := err == nil

	if exists && !force && !appendOut {
		return nil, false, fmt.Errorf("output file %s exists, use -f to overwrite or -a to append", path)
	}

	flags := os.O_CREATE | os.O_WRONLY
	writeHeader := true
	if appendOut {
		flags |= os.O_APPEND
		if exists && info.Size() > 0 {
			writeHeader = false
		}
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, false, fmt.Errorf("open output file: %w", err)
	}
	return f, writeHeader, nil
}

func countTrue(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

package device

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/moffa90/go-ebc/protocol"
)

// Session is an exclusive claim on one EBC-Axx device over one transport.
//
// All operations are serialized through an internal lock: the link is
// half duplex and exactly one command may be in flight at a time.
// Concurrent callers block until the in-flight exchange completes.
//
// Close always issues a best-effort output-off before releasing the
// transport, so the load is never left energized by a forgotten
// OutputOff — including on error paths.
type Session struct {
	mu        sync.Mutex
	transport Transport
	cfg       Config
	log       *zap.Logger

	identity Identity
	mode     Mode
	cutoff   float64 // active cutoff voltage in volts, battery tests only
	testBeg  time.Time
	closed   bool
	desynced bool
}

// Open claims the transport, switches the device to remote control and
// seeds the identity cache from the first telemetry frame.
//
// The device cannot report its active regime unambiguously, so the
// session starts in ModeUnknown: setpoint operations are refused until
// an explicit SetMode.
//
// On failure the transport is left open and owned by the caller.
func Open(t Transport, opts ...Option) (*Session, error) {
	if t == nil {
		panic("transport cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Session{
		transport: t,
		cfg:       cfg,
		log:       cfg.Logger,
		mode:      ModeUnknown,
		identity:  Identity{Model: cfg.Model},
	}

	s.flushInput()
	if err := s.writeFrame(protocol.BuildConnectCmd(), "connect"); err != nil {
		return nil, err
	}

	tele, err := s.readTelemetry()
	if err != nil {
		return nil, fmt.Errorf("connect handshake: %w", err)
	}
	s.seedIdentity(tele)

	s.log.Info("session opened",
		zap.String("model", s.identity.Model.String()),
		zap.String("state", tele.State.String()),
	)

	return s, nil
}

// Identity reads a telemetry frame and returns the device identity.
func (s *Session) Identity() (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard(); err != nil {
		return Identity{}, err
	}

	tele, err := s.freshTelemetry()
	if err != nil {
		return Identity{}, err
	}
	s.seedIdentity(tele)
	return s.identity, nil
}

// SetMode switches the device to the given regulation mode with a zero
// setpoint. The output stays de-energized until OutputOn.
//
// ModeBattery is entered via StartBatteryTest, not SetMode. The device
// echoes the accepted regime in telemetry; a disagreeing echo surfaces
// as *ModeRejectedError and resets the cached mode to ModeUnknown.
func (s *Session) SetMode(mode Mode) error {
	if mode == ModeUnknown || mode == ModeBattery {
		return fmt.Errorf("cannot set mode %s directly", mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard(); err != nil {
		return err
	}

	cmd, err := protocol.BuildStartCmd(mode.wireNibble(), 0, 0, 0)
	if err != nil {
		return err
	}

	tele, err := s.exchange(cmd, "set mode")
	if err != nil {
		return err
	}
	if tele.ModeNibble != mode.wireNibble() {
		s.mode = ModeUnknown
		return &ModeRejectedError{Requested: mode, EchoedNibble: tele.ModeNibble}
	}

	s.mode = mode
	s.cutoff = 0
	s.log.Debug("mode set", zap.String("mode", mode.String()))
	return nil
}

// SetSetpoint programs the regulation target for the active mode, in
// that mode's unit (A, V, Ω or W). The value is range-checked against
// the model limits before anything touches the transport.
//
// During a battery test the setpoint is the discharge current; the
// programmed cutoff voltage is preserved.
func (s *Session) SetSetpoint(value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard(); err != nil {
		return err
	}
	if s.mode == ModeUnknown {
		return ErrModeUnknown
	}

	if err := s.checkRange("setpoint", value, s.identity.Model.Limits().Max(s.mode)); err != nil {
		return err
	}

	raw, err := wireSetpoint(s.mode, value)
	if err != nil {
		return err
	}
	rawCutoff := uint16(s.cutoff*protocol.CutoffScale + 0.5)

	cmd, err := protocol.BuildAdjustCmd(s.mode.wireNibble(), raw, rawCutoff, 0)
	if err != nil {
		return err
	}

	tele, err := s.exchange(cmd, "set setpoint")
	if err != nil {
		return err
	}
	if tele.ModeNibble != s.mode.wireNibble() {
		return &ModeRejectedError{Requested: s.mode, EchoedNibble: tele.ModeNibble}
	}

	s.log.Debug("setpoint set",
		zap.String("mode", s.mode.String()),
		zap.Float64("value", value),
	)
	return nil
}

// OutputOn energizes the load, resuming regulation with the last
// programmed parameters. Idempotent: enabling an already-on output
// succeeds.
func (s *Session) OutputOn() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard(); err != nil {
		return err
	}
	if s.mode == ModeUnknown {
		return ErrModeUnknown
	}

	cmd, err := protocol.BuildContinueCmd(s.mode.wireNibble())
	if err != nil {
		return err
	}
	_, err = s.exchange(cmd, "output on")
	return err
}

// OutputOff de-energizes the load. Idempotent. If a battery test was
// running it is terminated and the cached mode drops to ModeUnknown.
func (s *Session) OutputOff() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard(); err != nil {
		return err
	}

	if _, err := s.exchange(protocol.BuildStopCmd(), "output off"); err != nil {
		return err
	}
	if s.mode == ModeBattery {
		s.mode = ModeUnknown
		s.testBeg = time.Time{}
	}
	return nil
}

// Measure reads the next telemetry frame and returns the electrical
// snapshot. Nothing is cached: call again for a fresh reading.
//
// Power is derived as voltage*current unless the session was opened
// with WithDeviceReportedPower.
func (s *Session) Measure() (Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard(); err != nil {
		return Measurement{}, err
	}

	tele, err := s.freshTelemetry()
	if err != nil {
		return Measurement{}, err
	}

	m := Measurement{
		Voltage: tele.Voltage,
		Current: tele.Current,
	}
	if s.cfg.DeviceReportedPower {
		m.Power = tele.Power
	} else {
		m.Power = tele.Voltage * tele.Current
	}
	return m, nil
}

// StartBatteryTest begins a constant-current discharge down to the
// cutoff voltage. Both parameters are validated against the model limits
// before transmission. The device resets its accumulated capacity
// counter on start.
func (s *Session) StartBatteryTest(cutoffVoltage, dischargeCurrent float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard(); err != nil {
		return err
	}

	limits := s.identity.Model.Limits()
	if err := s.checkRange("discharge current", dischargeCurrent, limits.MaxCurrent); err != nil {
		return err
	}
	if err := s.checkRange("cutoff voltage", cutoffVoltage, limits.MaxVoltage); err != nil {
		return err
	}

	rawCurrent := uint16(dischargeCurrent*protocol.CurrentScale + 0.5)
	rawCutoff := uint16(cutoffVoltage*protocol.CutoffScale + 0.5)

	cmd, err := protocol.BuildStartCmd(protocol.ModeNibbleCC, rawCurrent, rawCutoff, 0)
	if err != nil {
		return err
	}

	tele, err := s.exchange(cmd, "start battery test")
	if err != nil {
		return err
	}
	if tele.ModeNibble != protocol.ModeNibbleCC {
		return &ModeRejectedError{Requested: ModeBattery, EchoedNibble: tele.ModeNibble}
	}

	s.mode = ModeBattery
	s.cutoff = cutoffVoltage
	s.testBeg = s.cfg.Now()

	s.log.Info("battery test started",
		zap.Float64("cutoff_v", cutoffVoltage),
		zap.Float64("discharge_a", dischargeCurrent),
	)
	return nil
}

// BatteryStatus polls the running battery test. Valid only while the
// session is in ModeBattery; otherwise fails locally with
// ErrNotInBatteryTest, without touching the transport.
func (s *Session) BatteryStatus() (BatteryTestStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard(); err != nil {
		return BatteryTestStatus{}, err
	}
	if s.mode != ModeBattery {
		return BatteryTestStatus{}, ErrNotInBatteryTest
	}

	tele, err := s.freshTelemetry()
	if err != nil {
		return BatteryTestStatus{}, err
	}

	return BatteryTestStatus{
		Voltage:    tele.Voltage,
		CapacityAh: tele.Charge,
		Elapsed:    s.cfg.Now().Sub(s.testBeg),
		Running:    tele.State == protocol.StateWorking,
	}, nil
}

// StopBatteryTest terminates the running battery test. Calling it when
// no test is active is a successful no-op, so clients can retry freely.
func (s *Session) StopBatteryTest() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard(); err != nil {
		return err
	}
	if s.mode != ModeBattery {
		return nil
	}

	if _, err := s.exchange(protocol.BuildStopCmd(), "stop battery test"); err != nil {
		return err
	}

	s.mode = ModeUnknown
	s.testBeg = time.Time{}
	s.log.Info("battery test stopped")
	return nil
}

// Resync recovers a desynchronized session: drains buffered input,
// re-issues the connect handshake, and reseeds the identity cache. The
// mode cache drops to ModeUnknown.
func (s *Session) Resync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.drain()
	if err := s.writeFrame(protocol.BuildConnectCmd(), "resync"); err != nil {
		return err
	}

	s.desynced = false
	tele, err := s.readTelemetry()
	if err != nil {
		return fmt.Errorf("resync handshake: %w", err)
	}

	s.seedIdentity(tele)
	s.mode = ModeUnknown
	s.log.Info("session resynchronized")
	return nil
}

// Close turns the output off (best effort), then releases the transport.
// The output-off failure, if any, is logged rather than returned, so it
// never masks the error that led to the close. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	// The output-off frame is deliberately the final write: the device
	// drops back to front-panel control on its own once the host stops
	// talking, so no disconnect frame follows it.
	if err := s.writeFrame(protocol.BuildStopCmd(), "close output off"); err != nil {
		s.log.Warn("best-effort output off failed on close", zap.Error(err))
	}

	if err := s.transport.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

// Mode returns the cached operating mode. The cache changes only through
// SetMode, StartBatteryTest, StopBatteryTest, OutputOff and Resync.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// guard rejects operations on a session that cannot exchange frames.
func (s *Session) guard() error {
	if s.closed {
		return ErrClosed
	}
	if s.desynced {
		return ErrDesynchronized
	}
	return nil
}

// checkRange validates a caller-supplied quantity before transmission.
func (s *Session) checkRange(field string, value, max float64) error {
	if value < 0 || value > max {
		return &OutOfRangeError{Field: field, Value: value, Min: 0, Max: max}
	}
	return nil
}

// seedIdentity updates the identity cache from a telemetry frame,
// honoring an explicit WithModel override.
func (s *Session) seedIdentity(tele *protocol.Telemetry) {
	s.identity.ModelByte = tele.ModelByte
	if s.cfg.ModelSet {
		return
	}
	model, ok := modelFromByte(tele.ModelByte)
	if !ok {
		s.log.Warn("unknown model byte, assuming EBC-A05 limits",
			zap.Uint8("model_byte", tele.ModelByte))
	}
	s.identity.Model = model
}

// exchange performs one half-duplex write-then-read cycle. Stale
// telemetry is flushed first so the returned frame reflects the command
// just sent.
func (s *Session) exchange(cmd []byte, op string) (*protocol.Telemetry, error) {
	s.flushInput()
	if err := s.writeFrame(cmd, op); err != nil {
		return nil, err
	}
	return s.readTelemetry()
}

// writeFrame writes one complete request frame.
func (s *Session) writeFrame(cmd []byte, op string) error {
	if _, err := s.transport.Write(cmd); err != nil {
		return fmt.Errorf("%s: write: %w", op, err)
	}
	return nil
}

// readTelemetry reads the next telemetry frame, retrying timed-out reads
// up to the configured bound and malformed frames once. Surfacing a
// timeout marks the session desynchronized: the response may still
// arrive later and corrupt the next exchange, so further exchanges are
// refused until Resync.
func (s *Session) readTelemetry() (*protocol.Telemetry, error) {
	frameRetried := false

	for attempt := 0; attempt <= s.cfg.Retries; {
		frame, err := s.readFrameOnce()
		if errors.Is(err, ErrTimeout) {
			attempt++
			s.log.Debug("read attempt timed out", zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}

		tele, err := protocol.ParseTelemetry(frame)
		if err != nil {
			if !frameRetried {
				frameRetried = true
				s.log.Warn("discarding invalid frame", zap.Error(err))
				continue
			}
			return nil, err
		}
		return tele, nil
	}

	s.desynced = true
	return nil, fmt.Errorf("%w (%d attempts)", ErrTimeout, s.cfg.Retries+1)
}

// readFrameOnce assembles one 19-byte frame from the stream. A zero-byte
// read means the transport's read timeout elapsed and counts as one
// timed-out attempt, as does exceeding the configured per-attempt budget
// while a partial frame trickles in. Leading garbage before the start
// marker is dropped.
func (s *Session) readFrameOnce() ([]byte, error) {
	buf := make([]byte, 0, protocol.ResponseLength)
	tmp := make([]byte, protocol.ResponseLength)
	deadline := time.Now().Add(s.cfg.Timeout)

	for len(buf) < protocol.ResponseLength {
		n, err := s.transport.Read(tmp)
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		if n == 0 || time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		buf = append(buf, tmp[:n]...)

		// Resynchronize to the next start marker
		for len(buf) > 0 && buf[0] != protocol.StartOfFrame {
			buf = buf[1:]
		}
	}

	return buf[:protocol.ResponseLength], nil
}

// freshTelemetry discards buffered frames and reads the next one.
func (s *Session) freshTelemetry() (*protocol.Telemetry, error) {
	s.flushInput()
	return s.readTelemetry()
}

// flushInput discards buffered input when the transport supports it.
func (s *Session) flushInput() {
	if f, ok := s.transport.(InputFlusher); ok {
		if err := f.FlushInput(); err != nil {
			s.log.Debug("input flush failed", zap.Error(err))
		}
	}
}

// drain discards whatever the device pushed since the last consumed
// frame. Transports that can flush do it in one call; otherwise input is
// swallowed until a timeout, bounded to avoid spinning on a chatty line.
func (s *Session) drain() {
	if _, ok := s.transport.(InputFlusher); ok {
		s.flushInput()
		return
	}
	tmp := make([]byte, 64)
	for i := 0; i < 32; i++ {
		n, err := s.transport.Read(tmp)
		if err != nil || n == 0 {
			return
		}
	}
}

// wireSetpoint converts a setpoint in mode units to its wire value.
func wireSetpoint(mode Mode, value float64) (uint16, error) {
	var scale float64
	switch mode {
	case ModeCV:
		scale = protocol.CutoffScale
	case ModeCR:
		scale = protocol.ResistanceScale
	case ModeCP:
		scale = protocol.PowerScale
	default:
		scale = protocol.CurrentScale
	}

	raw := value*scale + 0.5
	if raw > protocol.MaxEncodableValue {
		return 0, &OutOfRangeError{
			Field: "setpoint",
			Value: value,
			Min:   0,
			Max:   protocol.MaxEncodableValue / scale,
		}
	}
	return uint16(raw), nil
}

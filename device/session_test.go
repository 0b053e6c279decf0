package device

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-ebc/protocol"
)

// mockTransport simulates an EBC device link for testing. Each queued
// read chunk is delivered by one Read call; a nil chunk simulates a
// read timeout (0 bytes, no error), matching the serial port contract.
type mockTransport struct {
	writes   [][]byte
	reads    [][]byte
	readErr  error
	writeErr error
	closed   bool
	flushes  int
}

func (m *mockTransport) Read(p []byte) (int, error) {
	if m.readErr != nil {
		return 0, m.readErr
	}
	if len(m.reads) == 0 {
		return 0, nil // timeout
	}
	chunk := m.reads[0]
	m.reads = m.reads[1:]
	copy(p, chunk)
	return len(chunk), nil
}

func (m *mockTransport) Write(p []byte) (int, error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	frame := append([]byte(nil), p...)
	m.writes = append(m.writes, frame)
	return len(p), nil
}

func (m *mockTransport) Close() error {
	m.closed = true
	return nil
}

func (m *mockTransport) FlushInput() error {
	m.flushes++
	return nil
}

func (m *mockTransport) queue(t *testing.T, tele *protocol.Telemetry) {
	t.Helper()
	frame, err := protocol.BuildTelemetryFrame(tele)
	require.NoError(t, err)
	m.reads = append(m.reads, frame)
}

func (m *mockTransport) queueTimeout() {
	m.reads = append(m.reads, nil)
}

// idleTelemetry is the frame the simulated device answers the connect
// handshake with.
func idleTelemetry(modelByte byte) *protocol.Telemetry {
	return &protocol.Telemetry{
		State:      protocol.StateIdle,
		ModeNibble: protocol.ModeNibbleCC,
		Voltage:    4.1,
		ModelByte:  modelByte,
	}
}

func openTestSession(t *testing.T, mt *mockTransport, opts ...Option) *Session {
	t.Helper()
	mt.queue(t, idleTelemetry(protocol.ModelByteA05))
	sess, err := Open(mt, opts...)
	require.NoError(t, err)
	return sess
}

func TestOpenHandshake(t *testing.T) {
	mt := &mockTransport{}
	mt.queue(t, idleTelemetry(protocol.ModelByteA20))

	sess, err := Open(mt)
	require.NoError(t, err)

	require.Len(t, mt.writes, 1)
	assert.Equal(t, protocol.BuildConnectCmd(), mt.writes[0])

	// Mode cannot be derived from the regime byte alone
	assert.Equal(t, ModeUnknown, sess.Mode())
}

func TestIdentityDetectsModel(t *testing.T) {
	mt := &mockTransport{}
	mt.queue(t, idleTelemetry(protocol.ModelByteA20))
	sess, err := Open(mt)
	require.NoError(t, err)

	mt.queue(t, idleTelemetry(protocol.ModelByteA20))
	id, err := sess.Identity()
	require.NoError(t, err)
	assert.Equal(t, ModelA20, id.Model)
	assert.Equal(t, byte(protocol.ModelByteA20), id.ModelByte)
}

func TestConstantCurrentScenario(t *testing.T) {
	mt := &mockTransport{}
	sess := openTestSession(t, mt)

	mt.queue(t, &protocol.Telemetry{State: protocol.StateIdle, ModeNibble: protocol.ModeNibbleCC, ModelByte: protocol.ModelByteA05})
	require.NoError(t, sess.SetMode(ModeCC))
	assert.Equal(t, ModeCC, sess.Mode())

	mt.queue(t, &protocol.Telemetry{State: protocol.StateIdle, ModeNibble: protocol.ModeNibbleCC, SetCurrent: 1.0, ModelByte: protocol.ModelByteA05})
	require.NoError(t, sess.SetSetpoint(1.0))

	mt.queue(t, &protocol.Telemetry{State: protocol.StateWorking, ModeNibble: protocol.ModeNibbleCC, ModelByte: protocol.ModelByteA05})
	require.NoError(t, sess.OutputOn())

	mt.queue(t, &protocol.Telemetry{
		State:      protocol.StateWorking,
		ModeNibble: protocol.ModeNibbleCC,
		Voltage:    3.7,
		Current:    1.0,
		ModelByte:  protocol.ModelByteA05,
	})
	m, err := sess.Measure()
	require.NoError(t, err)

	// Power is derived as V*I when the firmware does not report it
	assert.Equal(t, Measurement{Voltage: 3.7, Current: 1.0, Power: 3.7}, m)
}

func TestSetSetpointValidation(t *testing.T) {
	t.Run("mode unknown", func(t *testing.T) {
		mt := &mockTransport{}
		sess := openTestSession(t, mt)

		writesBefore := len(mt.writes)
		err := sess.SetSetpoint(1.0)
		assert.ErrorIs(t, err, ErrModeUnknown)
		assert.Len(t, mt.writes, writesBefore, "no frame may be sent")
	})

	t.Run("out of range", func(t *testing.T) {
		mt := &mockTransport{}
		sess := openTestSession(t, mt) // EBC-A05: 5 A max

		mt.queue(t, &protocol.Telemetry{ModeNibble: protocol.ModeNibbleCC, ModelByte: protocol.ModelByteA05})
		require.NoError(t, sess.SetMode(ModeCC))

		writesBefore := len(mt.writes)
		err := sess.SetSetpoint(7.5)
		assert.True(t, IsOutOfRange(err), "want OutOfRangeError, got %v", err)
		assert.Len(t, mt.writes, writesBefore, "no frame may be sent")
	})

	t.Run("negative", func(t *testing.T) {
		mt := &mockTransport{}
		sess := openTestSession(t, mt)

		mt.queue(t, &protocol.Telemetry{ModeNibble: protocol.ModeNibbleCC, ModelByte: protocol.ModelByteA05})
		require.NoError(t, sess.SetMode(ModeCC))

		writesBefore := len(mt.writes)
		assert.True(t, IsOutOfRange(sess.SetSetpoint(-0.1)))
		assert.Len(t, mt.writes, writesBefore)
	})

	t.Run("within limits never fails validation", func(t *testing.T) {
		modes := map[Mode]float64{
			ModeCC: 5.0,   // amperes
			ModeCV: 30.0,  // volts
			ModeCR: 500.0, // ohms
			ModeCP: 35.0,  // watts
		}
		for mode, max := range modes {
			mt := &mockTransport{}
			sess := openTestSession(t, mt)

			mt.queue(t, &protocol.Telemetry{ModeNibble: mode.wireNibble(), ModelByte: protocol.ModelByteA05})
			require.NoError(t, sess.SetMode(mode))

			mt.queue(t, &protocol.Telemetry{ModeNibble: mode.wireNibble(), ModelByte: protocol.ModelByteA05})
			assert.NoError(t, sess.SetSetpoint(max), "mode %s at limit %g", mode, max)
		}
	})
}

func TestSetModeRejected(t *testing.T) {
	mt := &mockTransport{}
	sess := openTestSession(t, mt)

	// Device echoes CC although CV was requested
	mt.queue(t, &protocol.Telemetry{ModeNibble: protocol.ModeNibbleCC, ModelByte: protocol.ModelByteA05})
	err := sess.SetMode(ModeCV)
	assert.True(t, IsModeRejected(err), "want ModeRejectedError, got %v", err)
	assert.Equal(t, ModeUnknown, sess.Mode())
}

func TestSetModeDirectBatteryRefused(t *testing.T) {
	mt := &mockTransport{}
	sess := openTestSession(t, mt)

	writesBefore := len(mt.writes)
	assert.Error(t, sess.SetMode(ModeBattery))
	assert.Error(t, sess.SetMode(ModeUnknown))
	assert.Len(t, mt.writes, writesBefore)
}

func TestOutputOnIdempotent(t *testing.T) {
	mt := &mockTransport{}
	sess := openTestSession(t, mt)

	mt.queue(t, &protocol.Telemetry{ModeNibble: protocol.ModeNibbleCC, ModelByte: protocol.ModelByteA05})
	require.NoError(t, sess.SetMode(ModeCC))

	mt.queue(t, &protocol.Telemetry{State: protocol.StateWorking, ModeNibble: protocol.ModeNibbleCC, ModelByte: protocol.ModelByteA05})
	require.NoError(t, sess.OutputOn())
	modeAfterFirst := sess.Mode()

	// Second OutputOn while already on is accepted, not an error
	mt.queue(t, &protocol.Telemetry{State: protocol.StateWorking, ModeNibble: protocol.ModeNibbleCC, ModelByte: protocol.ModelByteA05})
	require.NoError(t, sess.OutputOn())
	assert.Equal(t, modeAfterFirst, sess.Mode())

	// Both writes are the same continue frame
	n := len(mt.writes)
	assert.Equal(t, mt.writes[n-2], mt.writes[n-1])
}

func TestBatteryTestLifecycle(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }

	mt := &mockTransport{}
	sess := openTestSession(t, mt, WithClock(clock))

	// Out-of-range config is rejected before transmission
	writesBefore := len(mt.writes)
	assert.True(t, IsOutOfRange(sess.StartBatteryTest(40.0, 0.5)), "cutoff above 30 V limit")
	assert.True(t, IsOutOfRange(sess.StartBatteryTest(3.0, 9.0)), "current above 5 A limit")
	assert.Len(t, mt.writes, writesBefore)

	// Status before any test is a local state error
	_, err := sess.BatteryStatus()
	assert.ErrorIs(t, err, ErrNotInBatteryTest)

	mt.queue(t, &protocol.Telemetry{State: protocol.StateWorking, ModeNibble: protocol.ModeNibbleCC, ModelByte: protocol.ModelByteA05})
	require.NoError(t, sess.StartBatteryTest(3.0, 0.5))
	assert.Equal(t, ModeBattery, sess.Mode())

	now = now.Add(90 * time.Second)
	mt.queue(t, &protocol.Telemetry{
		State:      protocol.StateWorking,
		ModeNibble: protocol.ModeNibbleCC,
		Voltage:    3.5,
		Current:    0.5,
		Charge:     0.1,
		ModelByte:  protocol.ModelByteA05,
	})
	st, err := sess.BatteryStatus()
	require.NoError(t, err)
	assert.Equal(t, BatteryTestStatus{
		Voltage:    3.5,
		CapacityAh: 0.1,
		Elapsed:    90 * time.Second,
		Running:    true,
	}, st)

	mt.queue(t, &protocol.Telemetry{State: protocol.StateIdle, ModeNibble: protocol.ModeNibbleCC, ModelByte: protocol.ModelByteA05})
	require.NoError(t, sess.StopBatteryTest())
	assert.Equal(t, ModeUnknown, sess.Mode())

	// Stopping again is a successful no-op without any transport write
	writesBefore = len(mt.writes)
	require.NoError(t, sess.StopBatteryTest())
	assert.Len(t, mt.writes, writesBefore)
}

func TestBatteryStatusCompleted(t *testing.T) {
	mt := &mockTransport{}
	sess := openTestSession(t, mt)

	mt.queue(t, &protocol.Telemetry{State: protocol.StateWorking, ModeNibble: protocol.ModeNibbleCC, ModelByte: protocol.ModelByteA05})
	require.NoError(t, sess.StartBatteryTest(3.0, 0.5))

	mt.queue(t, &protocol.Telemetry{
		State:      protocol.StateCompleted,
		ModeNibble: protocol.ModeNibbleCC,
		Voltage:    3.0,
		Charge:     1.25,
		ModelByte:  protocol.ModelByteA05,
	})
	st, err := sess.BatteryStatus()
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Equal(t, 1.25, st.CapacityAh)
}

func TestReadTimeoutRetry(t *testing.T) {
	t.Run("succeeds on retry", func(t *testing.T) {
		mt := &mockTransport{}
		sess := openTestSession(t, mt, WithRetries(1))

		mt.queueTimeout()
		mt.queue(t, &protocol.Telemetry{Voltage: 4.2, ModeNibble: protocol.ModeNibbleCC, ModelByte: protocol.ModelByteA05})

		m, err := sess.Measure()
		require.NoError(t, err)
		assert.Equal(t, 4.2, m.Voltage)
	})

	t.Run("exhausted retries desynchronize the session", func(t *testing.T) {
		mt := &mockTransport{}
		sess := openTestSession(t, mt, WithRetries(1))

		mt.queueTimeout()
		mt.queueTimeout()
		_, err := sess.Measure()
		assert.ErrorIs(t, err, ErrTimeout)

		// Every exchange is refused until resynchronization
		_, err = sess.Measure()
		assert.ErrorIs(t, err, ErrDesynchronized)
		assert.ErrorIs(t, sess.SetMode(ModeCC), ErrDesynchronized)

		// Resync re-runs the handshake and recovers the session
		mt.queue(t, idleTelemetry(protocol.ModelByteA05))
		require.NoError(t, sess.Resync())

		mt.queue(t, &protocol.Telemetry{Voltage: 4.0, ModeNibble: protocol.ModeNibbleCC, ModelByte: protocol.ModelByteA05})
		_, err = sess.Measure()
		assert.NoError(t, err)
	})
}

func TestCorruptFrameRetriedOnce(t *testing.T) {
	good, err := protocol.BuildTelemetryFrame(&protocol.Telemetry{
		Voltage: 3.9, ModeNibble: protocol.ModeNibbleCC, ModelByte: protocol.ModelByteA05,
	})
	require.NoError(t, err)

	corrupt := append([]byte(nil), good...)
	corrupt[4] ^= 0x01 // breaks the checksum

	t.Run("recovers via re-read", func(t *testing.T) {
		mt := &mockTransport{}
		sess := openTestSession(t, mt)

		mt.reads = append(mt.reads, corrupt, good)
		m, err := sess.Measure()
		require.NoError(t, err)
		assert.Equal(t, 3.9, m.Voltage)
	})

	t.Run("surfaces after second corrupt frame", func(t *testing.T) {
		mt := &mockTransport{}
		sess := openTestSession(t, mt)

		mt.reads = append(mt.reads, corrupt, corrupt)
		_, err := sess.Measure()
		assert.True(t, protocol.IsChecksumError(err), "want ChecksumError, got %v", err)
	})
}

func TestFragmentedFrameReassembly(t *testing.T) {
	frame, err := protocol.BuildTelemetryFrame(&protocol.Telemetry{
		Voltage: 4.15, ModeNibble: protocol.ModeNibbleCC, ModelByte: protocol.ModelByteA05,
	})
	require.NoError(t, err)

	mt := &mockTransport{}
	sess := openTestSession(t, mt)

	// Leading garbage, then the frame split across three reads
	mt.reads = append(mt.reads, append([]byte{0x00, 0x13}, frame[:5]...), frame[5:12], frame[12:])
	m, err := sess.Measure()
	require.NoError(t, err)
	assert.Equal(t, 4.15, m.Voltage)
}

func TestDeviceReportedPower(t *testing.T) {
	mt := &mockTransport{}
	sess := openTestSession(t, mt, WithDeviceReportedPower(true))

	mt.queue(t, &protocol.Telemetry{
		State:      protocol.StateWorking,
		ModeNibble: protocol.ModeNibbleCP,
		Voltage:    12.0,
		Current:    2.0,
		Power:      23.5, // firmware-reported, differs from V*I
		ModelByte:  protocol.ModelByteA10H,
	})
	m, err := sess.Measure()
	require.NoError(t, err)
	assert.Equal(t, 23.5, m.Power)
}

func TestCloseWritesOutputOffLast(t *testing.T) {
	t.Run("after clean run", func(t *testing.T) {
		mt := &mockTransport{}
		sess := openTestSession(t, mt)

		require.NoError(t, sess.Close())
		require.True(t, mt.closed)
		assert.Equal(t, protocol.BuildStopCmd(), mt.writes[len(mt.writes)-1],
			"last frame before close must be output off")
	})

	t.Run("after failed operation", func(t *testing.T) {
		mt := &mockTransport{}
		sess := openTestSession(t, mt, WithRetries(0))

		mt.queueTimeout()
		_, err := sess.Measure()
		require.ErrorIs(t, err, ErrTimeout)

		require.NoError(t, sess.Close())
		require.True(t, mt.closed)
		assert.Equal(t, protocol.BuildStopCmd(), mt.writes[len(mt.writes)-1])
	})

	t.Run("stop write failure is swallowed", func(t *testing.T) {
		mt := &mockTransport{}
		sess := openTestSession(t, mt)

		mt.writeErr = errors.New("port gone")
		assert.NoError(t, sess.Close(), "best-effort output off must not surface")
		assert.True(t, mt.closed)
	})
}

func TestSessionClosed(t *testing.T) {
	mt := &mockTransport{}
	sess := openTestSession(t, mt)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close(), "close is idempotent")

	_, err := sess.Measure()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, sess.SetMode(ModeCC), ErrClosed)
	assert.ErrorIs(t, sess.OutputOff(), ErrClosed)
	assert.ErrorIs(t, sess.Resync(), ErrClosed)
}

func TestOutputOffEndsBatteryTest(t *testing.T) {
	mt := &mockTransport{}
	sess := openTestSession(t, mt)

	mt.queue(t, &protocol.Telemetry{State: protocol.StateWorking, ModeNibble: protocol.ModeNibbleCC, ModelByte: protocol.ModelByteA05})
	require.NoError(t, sess.StartBatteryTest(2.8, 1.0))

	mt.queue(t, &protocol.Telemetry{State: protocol.StateIdle, ModeNibble: protocol.ModeNibbleCC, ModelByte: protocol.ModelByteA05})
	require.NoError(t, sess.OutputOff())
	assert.Equal(t, ModeUnknown, sess.Mode())

	_, err := sess.BatteryStatus()
	assert.ErrorIs(t, err, ErrNotInBatteryTest)
}

func TestWithModelOverridesDetection(t *testing.T) {
	mt := &mockTransport{}
	// Telemetry says A05, caller pins A20 (20 A limit)
	sess := openTestSession(t, mt, WithModel(ModelA20))

	mt.queue(t, &protocol.Telemetry{ModeNibble: protocol.ModeNibbleCC, ModelByte: protocol.ModelByteA05})
	require.NoError(t, sess.SetMode(ModeCC))

	mt.queue(t, &protocol.Telemetry{ModeNibble: protocol.ModeNibbleCC, ModelByte: protocol.ModelByteA05})
	assert.NoError(t, sess.SetSetpoint(15.0), "15 A is legal on the pinned EBC-A20")
}

// Package device provides the high-level session API for ZKE EBC-Axx
// electronic loads and battery testers.
//
// # Overview
//
// A Session owns one transport (typically a serial port opened with the
// serialport package), serializes every command/response exchange over
// the half-duplex link, caches the active operating mode, and validates
// setpoints against the hardware model's limits before anything is
// transmitted.
//
// # Basic Usage
//
//	port, err := serialport.Open("/dev/ttyUSB0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sess, err := device.Open(port)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close()
//
//	if err := sess.SetMode(device.ModeCC); err != nil {
//	    log.Fatal(err)
//	}
//	if err := sess.SetSetpoint(1.0); err != nil { // 1 A
//	    log.Fatal(err)
//	}
//	if err := sess.OutputOn(); err != nil {
//	    log.Fatal(err)
//	}
//
//	m, err := sess.Measure()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%.3f V  %.3f A  %.3f W\n", m.Voltage, m.Current, m.Power)
//
// # Battery Tests
//
//	err = sess.StartBatteryTest(3.0, 0.5) // 3.0 V cutoff, 0.5 A
//	for {
//	    st, err := sess.BatteryStatus()
//	    if err != nil || !st.Running {
//	        break
//	    }
//	    time.Sleep(time.Second)
//	}
//	_ = sess.StopBatteryTest()
//
// # Error Handling
//
// Failures are reported as typed errors:
//   - *OutOfRangeError: caller value outside model limits, nothing sent
//   - *ModeRejectedError: device refused the requested regime
//   - protocol.FrameError / protocol.ChecksumError: corrupt response
//   - ErrTimeout: no frame within the timeout budget, retries exhausted
//   - ErrModeUnknown, ErrNotInBatteryTest: operation invalid in the
//     current session state, checked locally
//   - ErrDesynchronized: a response went unconsumed; call Resync or
//     reopen the session
//
// # Cleanup Guarantee
//
// Close writes a best-effort output-off frame before releasing the
// transport, on every exit path. Wiring Close into a defer means the
// load is de-energized even when the surrounding code fails.
package device

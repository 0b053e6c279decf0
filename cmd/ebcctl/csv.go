package main

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/moffa90/go-ebc/device"
)

// rowWriter emits measurement rows as CSV. The header is written lazily
// before the first row, so appending to an existing file stays clean.
type rowWriter struct {
	csv         *csv.Writer
	writeHeader bool
}

func newRowWriter(w io.Writer, writeHeader bool) *rowWriter {
	return &rowWriter{csv: csv.NewWriter(w), writeHeader: writeHeader}
}

func (w *rowWriter) header(columns []string) error {
	if !w.writeHeader {
		return nil
	}
	w.writeHeader = false
	return w.csv.Write(columns)
}

func (w *rowWriter) measurement(ts time.Time, m device.Measurement) error {
	if err := w.header([]string{"time", "voltage_v", "current_a", "power_w"}); err != nil {
		return err
	}
	err := w.csv.Write([]string{
		ts.Format(time.RFC3339),
		strconv.FormatFloat(m.Voltage, 'f', 3, 64),
		strconv.FormatFloat(m.Current, 'f', 3, 64),
		strconv.FormatFloat(m.Power, 'f', 3, 64),
	})
	w.csv.Flush()
	if err != nil {
		return err
	}
	return w.csv.Error()
}

func (w *rowWriter) batteryStatus(ts time.Time, st device.BatteryTestStatus) error {
	if err := w.header([]string{"time", "voltage_v", "capacity_ah", "elapsed_s", "running"}); err != nil {
		return err
	}
	err := w.csv.Write([]string{
		ts.Format(time.RFC3339),
		strconv.FormatFloat(st.Voltage, 'f', 3, 64),
		strconv.FormatFloat(st.CapacityAh, 'f', 3, 64),
		strconv.FormatInt(int64(st.Elapsed.Seconds()), 10),
		strconv.FormatBool(st.Running),
	})
	w.csv.Flush()
	if err != nil {
		return err
	}
	return w.csv.Error()
}

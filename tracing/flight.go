// Package tracing keeps a rolling runtime trace window that can be written
// out when a scan stalls.
package tracing

import (
	"os"
	"runtime/trace"
	"sync"
	"time"
)

type FlightRecorder struct {
	mu  sync.Mutex
	rec *trace.FlightRecorder
}

// StartFlightRecorder starts recording the last minAge of execution, bounded
// by maxBytes.
func StartFlightRecorder(maxBytes uint64, minAge time.Duration) (*FlightRecorder, error) {
	rec := trace.NewFlightRecorder(trace.FlightRecorderConfig{MaxBytes: maxBytes, MinAge: minAge})
	if err := rec.Start(); err != nil {
		return nil, err
	}
	return &FlightRecorder{rec: rec}, nil
}

// WriteFile snapshots the current window to path. A nil or stopped recorder
// writes nothing.
func (f *FlightRecorder) WriteFile(path string) error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rec == nil || !f.rec.Enabled() {
		return nil
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = f.rec.WriteTo(out)
	return err
}

func (f *FlightRecorder) Stop() {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rec != nil {
		f.rec.Stop()
		f.rec = nil
	}
}

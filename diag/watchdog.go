package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"
	"time"

	"sysvolscan/logger"
)

type profileWriter interface {
	WriteTo(w io.Writer, debug int) error
}

// Options configures a Watchdog. A zero StallThreshold or a nil Progress
// disables it.
type Options struct {
	StallThreshold time.Duration
	Dir            string
	// Progress returns a counter that grows while the scan moves, e.g. files
	// fetched plus directories listed.
	Progress  func() int64
	DumpTrace func(path string) error
	Now       func() time.Time
	lookup    func(name string) profileWriter
}

// Watchdog dumps goroutine stacks (and the trace window when available)
// whenever scan progress stops for longer than the threshold. Hung remote
// calls show up in the goroutine dump.
type Watchdog struct {
	threshold time.Duration
	dir       string
	progress  func() int64
	dumpTrace func(path string) error
	now       func() time.Time
	lookup    func(name string) profileWriter

	mu         sync.Mutex
	lastValue  int64
	lastMoveAt time.Time
	lastDumpAt time.Time
	dumps      int

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewWatchdog(opts Options) *Watchdog {
	w := &Watchdog{
		threshold: opts.StallThreshold,
		dir:       opts.Dir,
		progress:  opts.Progress,
		dumpTrace: opts.DumpTrace,
		now:       opts.Now,
		lookup:    opts.lookup,
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.lookup == nil {
		w.lookup = func(name string) profileWriter {
			if p := pprof.Lookup(name); p != nil {
				return p
			}
			return nil
		}
	}
	if w.dir == "" {
		w.dir = "."
	}
	return w
}

func (w *Watchdog) enabled() bool {
	return w != nil && w.threshold > 0 && w.progress != nil
}

// Start polls progress until ctx ends or Stop is called.
func (w *Watchdog) Start(ctx context.Context) {
	if !w.enabled() || w.stopCh != nil {
		return
	}
	w.mu.Lock()
	w.lastValue = w.progress()
	w.lastMoveAt = w.now()
	w.lastDumpAt = time.Time{}
	w.mu.Unlock()

	interval := min(max(w.threshold/2, 250*time.Millisecond), 2*time.Second)
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(w.doneCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-ticker.C:
				w.probe(w.now())
			}
		}
	}()
}

func (w *Watchdog) Stop() {
	if w == nil || w.stopCh == nil {
		return
	}
	close(w.stopCh)
	<-w.doneCh
	w.stopCh = nil
	w.doneCh = nil
}

// Dumps returns how many stall dumps were written.
func (w *Watchdog) Dumps() int {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dumps
}

func (w *Watchdog) probe(now time.Time) {
	if !w.enabled() {
		return
	}
	value := w.progress()

	w.mu.Lock()
	if value != w.lastValue || w.lastMoveAt.IsZero() {
		w.lastValue = value
		w.lastMoveAt = now
		w.mu.Unlock()
		return
	}
	stalled := now.Sub(w.lastMoveAt)
	dump := stalled >= w.threshold && (w.lastDumpAt.IsZero() || now.Sub(w.lastDumpAt) >= w.threshold)
	if dump {
		w.lastDumpAt = now
		w.dumps++
	}
	w.mu.Unlock()

	if !dump {
		return
	}
	logger.Warnf("Scan made no progress for %s; writing diagnostics to %s", stalled.Round(time.Second), w.dir)
	if err := w.writeStall(now, value, stalled); err != nil {
		logger.Warnf("Stall diagnostics failed: %v", err)
	}
}

func (w *Watchdog) writeStall(now time.Time, value int64, stalled time.Duration) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	ts := now.UTC().Format("20060102-150405.000")

	event := map[string]interface{}{
		"event":        "scan_stalled",
		"timestamp":    now.UTC().Format(time.RFC3339Nano),
		"progress":     value,
		"threshold_ms": w.threshold.Milliseconds(),
		"stalled_ms":   stalled.Milliseconds(),
	}
	b, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(w.dir, "sysvolscan-stall-"+ts+".json"), b, 0o600); err != nil {
		return err
	}

	if err := w.writeProfile("goroutine", ts); err != nil {
		logger.Warnf("Goroutine dump failed: %v", err)
	}
	if w.dumpTrace != nil {
		if err := w.dumpTrace(filepath.Join(w.dir, "sysvolscan-trace-"+ts+".out")); err != nil {
			logger.Warnf("Trace dump failed: %v", err)
		}
	}
	return nil
}

func (w *Watchdog) writeProfile(name, ts string) error {
	profile := w.lookup(name)
	if profile == nil {
		return fmt.Errorf("pprof profile %q unavailable", name)
	}
	f, err := os.OpenFile(filepath.Join(w.dir, "sysvolscan-"+name+"-"+ts+".txt"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return profile.WriteTo(f, 2)
}

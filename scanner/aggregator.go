package scanner

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink receives the human-readable lines of a run.
type Sink interface {
	Display(msg string)
	Success(msg string)
	Highlight(msg string)
}

// FindingWriter receives every recorded finding, e.g. a structured report.
type FindingWriter interface {
	WriteFinding(f Finding)
}

// Aggregator collects the findings of one scan mode in discovery order.
type Aggregator struct {
	mu       sync.Mutex
	findings []Finding
	sink     Sink
	report   FindingWriter
}

// NewAggregator returns an aggregator emitting to sink and forwarding to
// report. Either may be nil.
func NewAggregator(sink Sink, report FindingWriter) *Aggregator {
	return &Aggregator{sink: sink, report: report}
}

// Record appends f and emits its log line. Emission happens under the same
// lock so the log order is the list order.
func (a *Aggregator) Record(f Finding) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.findings = append(a.findings, f)
	if a.sink != nil {
		switch f.Kind {
		case KindCredential, KindSpiderMatch:
			a.sink.Highlight(f.LogLine())
		default:
			a.sink.Success(f.LogLine())
		}
	}
	if a.report != nil {
		a.report.WriteFinding(f)
	}
}

func (a *Aggregator) Findings() []Finding {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Finding, len(a.findings))
	copy(out, a.findings)
	return out
}

func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.findings)
}

// Export writes the findings as CSV to dir/name and returns the file path.
// With no findings nothing is created and the path is empty. The header is
// the first finding's field names; later findings are written by name.
func (a *Aggregator) Export(dir, name string) (string, error) {
	findings := a.Findings()
	if len(findings) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	target := filepath.Join(dir, name)
	file, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", target, err)
	}
	defer file.Close()

	header := findings[0].FieldNames()
	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("write %s: %w", target, err)
	}
	row := make([]string, len(header))
	for _, f := range findings {
		for i, col := range header {
			row[i] = f.Value(col)
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write %s: %w", target, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write %s: %w", target, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", target, err)
	}
	return target, nil
}

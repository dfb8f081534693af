package output

import (
	"bufio"
	"crypto/sha256"
	"fmt"
	"os"
	"strings"
	"sync"

	"sysvolscan/config"
	"sysvolscan/logger"
	"sysvolscan/remote"
	"sysvolscan/scanner"
	"sysvolscan/version"
)

const SchemaVersion = "1"

type Metrics struct {
	StartTime         string   `json:"start_time"`
	EndTime           string   `json:"end_time"`
	Modes             []string `json:"modes,omitempty"`
	DirectoriesListed int64    `json:"directories_listed"`
	ListingFailures   int64    `json:"listing_failures"`
	FilesMatched      int64    `json:"files_matched"`
	FilesFetched      int64    `json:"files_fetched"`
	FetchFallbacks    int64    `json:"fetch_fallbacks"`
	FetchFailures     int64    `json:"fetch_failures"`
	FilesTruncated    int64    `json:"files_truncated"`
	Findings          int64    `json:"findings"`
}

// ApplyStats copies scanner counters into m.
func (m *Metrics) ApplyStats(s scanner.StatsSnapshot) {
	m.DirectoriesListed = s.DirectoriesListed
	m.ListingFailures = s.ListingFailures
	m.FilesMatched = s.FilesMatched
	m.FilesFetched = s.FilesFetched
	m.FetchFallbacks = s.FetchFallbacks
	m.FetchFailures = s.FetchFailures
	m.FilesTruncated = s.FilesTruncated
}

type runRecord struct {
	Tool      string   `json:"tool"`
	Version   string   `json:"version"`
	Domain    string   `json:"domain,omitempty"`
	Hostname  string   `json:"hostname,omitempty"`
	Address   string   `json:"address,omitempty"`
	Modes     []string `json:"modes,omitempty"`
	StartTime string   `json:"start_time,omitempty"`
}

type findingRecord struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	Host        string            `json:"host,omitempty"`
	Share       string            `json:"share,omitempty"`
	Path        string            `json:"path,omitempty"`
	Rule        string            `json:"rule,omitempty"`
	Fields      map[string]string `json:"fields"`
	MimeType    string            `json:"mime_type,omitempty"`
	Hashes      map[string]string `json:"hashes,omitempty"`
	FuzzyHashes map[string]string `json:"fuzzy_hashes,omitempty"`
}

type envelope struct {
	RecordType    string `json:"record_type"`
	SchemaVersion string `json:"schema_version"`
	Payload       any    `json:"payload"`
}

// secretFields are finding columns holding credential material.
var secretFields = map[string]bool{"Password": true, "Passwords": true}

// Writer streams run, finding and metrics records as NDJSON and mirrors
// them to OTEL when configured. A Writer without an output file only
// forwards to OTEL; a nil Writer ignores every call.
type Writer struct {
	file     *os.File
	buf      *bufio.Writer
	mu       sync.Mutex
	metrics  *Metrics
	otel     *otelLogger
	redact   string
	findings int64
	closed   bool
}

func New(cfg *config.Config, m *Metrics) (*Writer, error) {
	w := &Writer{metrics: m, redact: cfg.RedactSensitive}
	otel, err := newOtelLogger(cfg)
	if err != nil {
		logger.Warnf("OTEL export disabled: %v", err)
	} else {
		w.otel = otel
	}
	if cfg.OutputFileName != "" {
		f, err := os.OpenFile(cfg.OutputFileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			w.otel.Shutdown()
			return nil, fmt.Errorf("open report: %w", err)
		}
		w.file = f
		w.buf = bufio.NewWriterSize(f, 64*1024)
	}
	return w, nil
}

// WriteRun records the scanned host and the modes about to run.
func (w *Writer) WriteRun(info remote.HostInfo, modes []string) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	rec := runRecord{
		Tool:     "sysvolscan",
		Version:  version.Version,
		Domain:   info.Domain,
		Hostname: info.Hostname,
		Address:  info.Address,
		Modes:    modes,
	}
	if w.metrics != nil {
		rec.StartTime = w.metrics.StartTime
	}
	w.writeLocked("run", rec)
	w.otel.Emit("run", runPayload(rec))
}

// WriteFinding implements scanner.FindingWriter.
func (w *Writer) WriteFinding(f scanner.Finding) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	rec := findingRecord{
		ID:          f.Fingerprint(),
		Kind:        string(f.Kind),
		Host:        f.Host,
		Share:       f.Share,
		Path:        f.Path,
		Rule:        f.Rule,
		Fields:      make(map[string]string, len(f.Fields)),
		MimeType:    f.MIME,
		Hashes:      f.Hashes,
		FuzzyHashes: f.FuzzyHashes,
	}
	for _, field := range f.Fields {
		value := field.Value
		if secretFields[field.Name] {
			value = redactList(value, w.redact)
		}
		rec.Fields[field.Name] = value
	}
	w.findings++
	if w.metrics != nil {
		w.metrics.Findings = w.findings
	}
	w.writeLocked("finding", rec)
	w.otel.Emit("finding", findingPayload(rec))
}

func (w *Writer) SetMetrics(m Metrics) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	m.Findings = w.findings
	w.metrics = &m
}

func (w *Writer) FindingsWritten() int64 {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.findings
}

// Close writes the metrics record, closes the file and flushes OTEL.
func (w *Writer) Close() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.metrics != nil {
		w.writeLocked("metrics", w.metrics)
		w.otel.Emit("metrics", metricsPayload(*w.metrics))
	}
	w.closed = true
	if w.file != nil {
		_ = w.buf.Flush()
		_ = w.file.Sync()
		_ = w.file.Close()
	}
	w.otel.Shutdown()
}

func (w *Writer) writeLocked(recordType string, payload any) {
	if w.buf == nil || w.closed {
		return
	}
	line, err := jsonMarshal(envelope{RecordType: recordType, SchemaVersion: SchemaVersion, Payload: payload})
	if err != nil {
		logger.Warnf("Failed to encode %s record: %v", recordType, err)
		return
	}
	_, _ = w.buf.Write(line)
	_ = w.buf.WriteByte('\n')
	_ = w.buf.Flush()
}

// redactList redacts each ";"-separated value of a joined column.
func redactList(joined, mode string) string {
	if mode == "" || joined == "" {
		return joined
	}
	parts := strings.Split(joined, ";")
	for i, part := range parts {
		parts[i] = redactValue(part, mode)
	}
	return strings.Join(parts, ";")
}

func redactValue(value, mode string) string {
	switch mode {
	case "hash":
		sum := sha256.Sum256([]byte(value))
		return fmt.Sprintf("%x", sum[:])
	case "mask":
		if len(value) <= 4 {
			return "****"
		}
		return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
	default:
		return value
	}
}

// Package audit records every policy decision ward makes, in hook mode
// or wrapper mode, to a local sink. Two wire formats are supported:
// newline-delimited JSON (jsonl) and OTLP logs (otlp), selected by
// config.AuditConfig.Format; "both" writes to both sinks. Grounded on
// dgerlanc-mmi/internal/audit/audit.go's file-lifecycle pattern
// (Init/Log/Close, a package-level mutex-guarded *os.File) and on
// original_source/src/otlp_types.rs's proto3 JSON mapping for the OTLP
// sink.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/nekoruri/ward/internal/config"
	"github.com/nekoruri/ward/internal/constants"
	"github.com/nekoruri/ward/internal/logger"
)

// TimestampFormat is the format used for audit log timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// SegmentEntry records one command segment's independent decision
// within a (possibly chained) command.
type SegmentEntry struct {
	Command  string   `json:"command"`
	Decision string   `json:"decision"`
	Reasons  []string `json:"reasons,omitempty"`
	Wrappers []string `json:"wrappers,omitempty"`
}

// Entry is one audited policy decision.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Mode      string         `json:"mode"` // "hook" or "wrapper"
	Command   string         `json:"command"`
	Decision  string         `json:"decision"`
	Reasons   []string       `json:"reasons,omitempty"`
	Segments  []SegmentEntry `json:"segments,omitempty"`
	Cwd       string         `json:"cwd,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

type sink interface {
	write(Entry) error
	path() string
	close() error
}

var (
	mu       sync.Mutex
	jsonl    sink
	otlp     sink
	enabled  bool
)

// Init opens the configured audit sink(s) per cfg. A disabled cfg is a
// no-op: Log then silently does nothing, which
// lets ward run with audit logging off without special-casing every
// call site.
func Init(cfg config.AuditConfig) error {
	mu.Lock()
	defer mu.Unlock()

	if !cfg.Enabled {
		enabled = false
		return nil
	}

	var firstErr error
	if cfg.Format == config.AuditFormatJSONL || cfg.Format == config.AuditFormatBoth {
		s, err := openJSONLSink(cfg.JSONLPath)
		if err != nil {
			logger.Debug("failed to open jsonl audit sink", "error", err)
			firstErr = err
		} else {
			jsonl = s
		}
	}
	if cfg.Format == config.AuditFormatOTLP || cfg.Format == config.AuditFormatBoth {
		s, err := openOTLPSink(cfg.OTLPPath)
		if err != nil {
			logger.Debug("failed to open otlp audit sink", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		} else {
			otlp = s
		}
	}

	enabled = jsonl != nil || otlp != nil
	return firstErr
}

// DefaultLogPath returns ~/.local/share/ward/audit.log.
func DefaultLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, constants.XDGShareSubdir, constants.AppName, constants.AuditFileName), nil
}

// Log writes entry to every open sink. Each sink's own I/O error is
// logged at debug level and otherwise swallowed: a failing audit sink
// must never itself become a reason to deny or crash, matching the
// fail-safe posture the rest of ward takes toward its own errors.
func Log(entry Entry) {
	mu.Lock()
	defer mu.Unlock()

	if !enabled {
		return
	}
	entry.Timestamp = time.Now().UTC().Format(TimestampFormat)

	if jsonl != nil {
		if err := jsonl.write(entry); err != nil {
			logger.Debug("failed to write jsonl audit entry", "error", err)
		}
	}
	if otlp != nil {
		if err := otlp.write(entry); err != nil {
			logger.Debug("failed to write otlp audit entry", "error", err)
		}
	}
}

// IsEnabled reports whether any audit sink is open.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Close closes every open sink.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	var firstErr error
	if jsonl != nil {
		if err := jsonl.close(); err != nil {
			firstErr = err
		}
		jsonl = nil
	}
	if otlp != nil {
		if err := otlp.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		otlp = nil
	}
	enabled = false
	return firstErr
}

// Reset clears audit state. Used for testing.
func Reset() {
	Close()
}

// rotatingFile is a file sink that gzip-rotates itself once it grows
// past constants.AuditRotateBytes, exercising the klauspost/compress
// dependency the configuration/CLI layers otherwise have no use for.
type rotatingFile struct {
	mu   sync.Mutex
	p    string
	f    *os.File
}

func openRotatingFile(path string) (*rotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), constants.DirMode); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, constants.FileMode)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &rotatingFile{p: path, f: f}, nil
}

func (r *rotatingFile) writeLine(line []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, err := r.f.Stat(); err == nil && info.Size() > constants.AuditRotateBytes {
		if err := r.rotateLocked(); err != nil {
			logger.Debug("audit log rotation failed", "error", err)
		}
	}
	_, err := r.f.Write(append(line, '\n'))
	return err
}

// rotateLocked gzips the current log to "<path>.<unix-timestamp>.gz" and
// reopens a fresh file at the original path. Callers must hold r.mu.
func (r *rotatingFile) rotateLocked() error {
	if err := r.f.Close(); err != nil {
		return err
	}

	archivePath := fmt.Sprintf("%s.%d.gz", r.p, time.Now().UTC().Unix())
	src, err := os.Open(r.p)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(archivePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, constants.FileMode)
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		dst.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	f, err := os.OpenFile(r.p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, constants.FileMode)
	if err != nil {
		return err
	}
	r.f = f
	return nil
}

func (r *rotatingFile) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}

type jsonlSink struct {
	rf *rotatingFile
}

func openJSONLSink(path string) (sink, error) {
	if path == "" {
		var err error
		path, err = DefaultLogPath()
		if err != nil {
			return nil, err
		}
	}
	rf, err := openRotatingFile(path)
	if err != nil {
		return nil, err
	}
	return &jsonlSink{rf: rf}, nil
}

func (s *jsonlSink) write(entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.rf.writeLine(data)
}

func (s *jsonlSink) path() string  { return s.rf.p }
func (s *jsonlSink) close() error  { return s.rf.close() }

type otlpSink struct {
	rf *rotatingFile
}

func openOTLPSink(path string) (sink, error) {
	if path == "" {
		return nil, fmt.Errorf("otlp audit sink requires audit.otlp_path")
	}
	rf, err := openRotatingFile(path)
	if err != nil {
		return nil, err
	}
	return &otlpSink{rf: rf}, nil
}

func (s *otlpSink) write(entry Entry) error {
	req := toExportRequest(entry)
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return s.rf.writeLine(data)
}

func (s *otlpSink) path() string { return s.rf.p }
func (s *otlpSink) close() error { return s.rf.close() }

// --- OTLP proto3-JSON mapping, ported from original_source/src/otlp_types.rs ---

type ExportLogsServiceRequest struct {
	ResourceLogs []ResourceLogs `json:"resourceLogs"`
}

type ResourceLogs struct {
	Resource  *Resource   `json:"resource,omitempty"`
	ScopeLogs []ScopeLogs `json:"scopeLogs"`
}

type ScopeLogs struct {
	Scope      *InstrumentationScope `json:"scope,omitempty"`
	LogRecords []LogRecord           `json:"logRecords"`
}

type LogRecord struct {
	TimeUnixNano         string     `json:"timeUnixNano,omitempty"`
	ObservedTimeUnixNano string     `json:"observedTimeUnixNano,omitempty"`
	SeverityNumber       int        `json:"severityNumber,omitempty"`
	SeverityText         string     `json:"severityText,omitempty"`
	Body                 *AnyValue  `json:"body,omitempty"`
	Attributes           []KeyValue `json:"attributes,omitempty"`
	TraceID              string     `json:"traceId,omitempty"`
	SpanID               string     `json:"spanId,omitempty"`
}

type Resource struct {
	Attributes []KeyValue `json:"attributes,omitempty"`
}

type InstrumentationScope struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

type KeyValue struct {
	Key   string    `json:"key"`
	Value *AnyValue `json:"value,omitempty"`
}

// AnyValue mirrors the Rust original's hand-written Serialize impl: the
// wire form carries exactly one of stringValue/intValue/arrayValue,
// never a discriminant field, so Go's encoding/json (no custom
// MarshalJSON needed) can express it directly through three mutually
// exclusive omitempty fields.
type AnyValue struct {
	StringValue string      `json:"stringValue,omitempty"`
	IntValue    string      `json:"intValue,omitempty"`
	ArrayValue  *ArrayValue `json:"arrayValue,omitempty"`
}

type ArrayValue struct {
	Values []AnyValue `json:"values"`
}

func stringValue(s string) *AnyValue { return &AnyValue{StringValue: s} }

const (
	severityInfo = 9
	severityWarn = 13
	severityErr  = 17
)

func severityFor(decision string) (int, string) {
	switch decision {
	case "deny":
		return severityErr, "ERROR"
	case "ask":
		return severityWarn, "WARN"
	default:
		return severityInfo, "INFO"
	}
}

func toExportRequest(entry Entry) ExportLogsServiceRequest {
	num, text := severityFor(entry.Decision)

	attrs := []KeyValue{
		{Key: "ward.mode", Value: stringValue(entry.Mode)},
		{Key: "ward.command", Value: stringValue(entry.Command)},
		{Key: "ward.decision", Value: stringValue(entry.Decision)},
	}
	if entry.Cwd != "" {
		attrs = append(attrs, KeyValue{Key: "ward.cwd", Value: stringValue(entry.Cwd)})
	}
	if len(entry.Reasons) > 0 {
		values := make([]AnyValue, len(entry.Reasons))
		for i, r := range entry.Reasons {
			values[i] = AnyValue{StringValue: r}
		}
		attrs = append(attrs, KeyValue{Key: "ward.reasons", Value: &AnyValue{ArrayValue: &ArrayValue{Values: values}}})
	}
	for i, seg := range entry.Segments {
		attrs = append(attrs, KeyValue{
			Key:   fmt.Sprintf("ward.segment.%d.decision", i),
			Value: stringValue(seg.Decision),
		})
	}

	record := LogRecord{
		TimeUnixNano:   fmt.Sprintf("%d", timeNow().UnixNano()),
		SeverityNumber: num,
		SeverityText:   text,
		Body:           stringValue(entry.Command),
		Attributes:     attrs,
	}

	return ExportLogsServiceRequest{
		ResourceLogs: []ResourceLogs{{
			Resource: &Resource{Attributes: []KeyValue{
				{Key: "service.name", Value: stringValue(constants.AppName)},
			}},
			ScopeLogs: []ScopeLogs{{
				Scope:      &InstrumentationScope{Name: constants.AppName},
				LogRecords: []LogRecord{record},
			}},
		}},
	}
}

// timeNow is a seam so tests can stub wall-clock time if needed; it
// otherwise behaves exactly like time.Now.
var timeNow = time.Now

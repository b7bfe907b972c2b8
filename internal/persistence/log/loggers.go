package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"fluxgrid.ai/internal/protocol"
	"fluxgrid.ai/internal/sim/grid"
)

// JSONLZstdWriter appends one JSON document per line to hourly-rotated
// zstd segments under baseDir. Safe for concurrent writers.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	segment string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{baseDir: baseDir, prefix: prefix}
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	segment := time.Now().UTC().Format("2006-01-02-15")
	if segment != w.segment {
		if err := w.rotateLocked(segment); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) rotateLocked(segment string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, segment))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.segment = segment
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err
}

// EventLogger is the durable journal sink: every grid event becomes one
// compressed JSONL line under <gridDir>/events.
type EventLogger struct{ w *JSONLZstdWriter }

func NewEventLogger(gridDir string) *EventLogger {
	return &EventLogger{w: NewJSONLZstdWriter(filepath.Join(gridDir, "events"), "events")}
}

func (l *EventLogger) WriteEvent(e protocol.Event) error { return l.w.Write(e) }
func (l *EventLogger) Close() error                      { return l.w.Close() }

// AuditLogger records administrative actions under <gridDir>/audit.
type AuditLogger struct{ w *JSONLZstdWriter }

func NewAuditLogger(gridDir string) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(filepath.Join(gridDir, "audit"), "audit")}
}

func (l *AuditLogger) WriteAudit(entry grid.AuditEntry) error { return l.w.Write(entry) }
func (l *AuditLogger) Close() error                           { return l.w.Close() }

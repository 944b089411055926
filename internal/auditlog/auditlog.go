package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Outcomes recorded per operation.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Record is one audited operation, written as a single JSON line.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	Operation string         `json:"operation"`
	Outcome   string         `json:"outcome"`
	Subject   string         `json:"subject,omitempty"`
	Detail    string         `json:"detail,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Appender records operations as they complete, inside the same flow as
// the operation itself. Implementations must be safe for concurrent use.
type Appender interface {
	Append(ctx context.Context, rec Record) error
}

// FileLog appends newline-delimited JSON records to a single file. The
// file is opened per append so external rotation stays safe.
type FileLog struct {
	mu   sync.Mutex
	path string
}

// NewFileLog returns a FileLog writing to path, creating parent
// directories as needed.
func NewFileLog(path string) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	return &FileLog{path: path}, nil
}

// Append writes one record. A zero timestamp is filled with the current
// time.
func (l *FileLog) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log %q: %w", l.path, err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(rec); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// NopAppender discards every record. Used when no audit path is
// configured.
type NopAppender struct{}

// Append implements Appender.
func (NopAppender) Append(context.Context, Record) error { return nil }

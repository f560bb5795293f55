// Package dataset provides append-only sinks for decided civic reports.
package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	civicscreen "github.com/anatolykoptev/go-civicscreen"
	"github.com/google/uuid"
)

// JSONL appends one JSON object per line. Goroutine-safe.
type JSONL struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// OpenJSONL opens (creating parent directories) the JSON-lines file at path
// for appending.
func OpenJSONL(path string) (*JSONL, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dataset dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	return &JSONL{w: f, closer: f}, nil
}

// NewJSONL writes records to w. Close does not close w.
func NewJSONL(w io.Writer) *JSONL {
	return &JSONL{w: w}
}

// Append encodes rec as a single line. Records without an ID get a UUID.
// Each line is written with one Write call.
func (j *JSONL) Append(_ context.Context, rec civicscreen.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.Report.ReportID, err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(data); err != nil {
		return fmt.Errorf("write record %s: %w", rec.Report.ReportID, err)
	}
	return nil
}

// Close closes the underlying file, if OpenJSONL opened it.
func (j *JSONL) Close() error {
	if j.closer == nil {
		return nil
	}
	return j.closer.Close()
}

// Package audit writes one JSON-Lines record per query to a log file,
// mirroring the audit trail the original engine kept for every request
// regardless of whether it succeeded.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lhxgrid/text2sql/internal/plandsl"
	"github.com/lhxgrid/text2sql/internal/semval"
)

// Record is one audit-log entry.
type Record struct {
	AuditLogID       string                  `json:"audit_log_id"`
	Timestamp        string                  `json:"timestamp"`
	Question         string                  `json:"question"`
	UserContext      map[string]any          `json:"user_context,omitempty"`
	EvidenceSummary  string                  `json:"evidence_summary"`
	PlanInitial      plandsl.RawPlan         `json:"plan_initial,omitempty"`
	PlanFinal        plandsl.RawPlan         `json:"plan_final,omitempty"`
	ValidationErrors []semval.ValidationError `json:"validation_errors,omitempty"`
	SQL              string                  `json:"sql,omitempty"`
	ElapsedMs        int64                   `json:"elapsed_ms"`
	Error            string                  `json:"error,omitempty"`
}

// Logger appends Records to a JSON-Lines file. A single mutex serializes
// writes, the same way the rest of this codebase guards shared
// mutable state accessed from concurrent requests.
type Logger struct {
	mu   sync.Mutex
	path string
}

// New opens (creating if necessary) the audit log at path.
func New(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	f.Close()
	return &Logger{path: path}, nil
}

// NewID returns a fresh audit log entry id.
func NewID() string {
	return uuid.NewString()
}

// Write appends rec as a single JSON line. now is passed in rather than
// computed here so callers (and tests) control the recorded timestamp.
func (l *Logger) Write(rec Record, now time.Time) error {
	rec.Timestamp = now.UTC().Format(time.RFC3339Nano)

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}
	buf = append(buf, '\n')
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("audit: write record: %w", err)
	}
	return nil
}

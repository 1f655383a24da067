// Package audit defines the audit record and sinks that persist routing
// decisions and dispatch outcomes.
package audit

import (
	"context"
	"time"

	"github.com/valetd/valet/internal/store"
)

// Record describes one routing/dispatch outcome, successful or not.
type Record struct {
	UserID     string         `json:"user_id"`
	TraceID    string         `json:"trace_id"`
	RawCommand string         `json:"raw_command"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
	Result     string         `json:"result"`
	Success    bool           `json:"success"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Sink consumes audit records. Implementations are fire-and-forget: a sink
// failure must never block or fail the routing pipeline.
type Sink interface {
	Record(ctx context.Context, rec *Record) error
}

// StoreSink persists records to the SQLite audit log.
type StoreSink struct {
	store *store.Service
}

// NewStoreSink creates a sink backed by the given store.
func NewStoreSink(s *store.Service) *StoreSink {
	return &StoreSink{store: s}
}

func (s *StoreSink) Record(_ context.Context, rec *Record) error {
	return s.store.InsertAudit(&store.AuditEntry{
		UserID:     rec.UserID,
		TraceID:    rec.TraceID,
		Command:    rec.RawCommand,
		Action:     rec.Action,
		Parameters: rec.Parameters,
		Result:     rec.Result,
		Success:    rec.Success,
	})
}

// MultiSink fans a record out to several sinks. Individual failures are
// ignored; the first error is returned for logging only.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, rec *Record) error {
	var first error
	for _, s := range m {
		if err := s.Record(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

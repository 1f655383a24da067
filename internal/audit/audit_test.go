package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/valetd/valet/internal/store"
)

func TestStoreSinkPersistsRecord(t *testing.T) {
	svc, err := store.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	sink := NewStoreSink(svc)
	rec := &Record{
		UserID:     "u1",
		TraceID:    "trace-1",
		RawCommand: "delete /tmp/x",
		Action:     "delete_file",
		Parameters: map[string]any{"file_path": "/tmp/x"},
		Result:     "deleted",
		Success:    true,
		Timestamp:  time.Now(),
	}
	if err := sink.Record(context.Background(), rec); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	entries, err := svc.ListAudit("u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].TraceID != "trace-1" || entries[0].Action != "delete_file" || !entries[0].Success {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

type stubSink struct {
	calls int
	err   error
}

func (s *stubSink) Record(_ context.Context, _ *Record) error {
	s.calls++
	return s.err
}

func TestMultiSinkFansOutPastFailures(t *testing.T) {
	failing := &stubSink{err: errors.New("broker down")}
	ok := &stubSink{}
	multi := MultiSink{failing, ok}

	err := multi.Record(context.Background(), &Record{UserID: "u1"})
	if err == nil || err.Error() != "broker down" {
		t.Fatalf("expected first error back, got %v", err)
	}
	if failing.calls != 1 || ok.calls != 1 {
		t.Fatalf("all sinks should be called: %d %d", failing.calls, ok.calls)
	}
}

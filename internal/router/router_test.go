package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/valetd/valet/internal/actions"
	"github.com/valetd/valet/internal/audit"
	"github.com/valetd/valet/internal/intent"
	"github.com/valetd/valet/internal/ratelimit"
	"github.com/valetd/valet/internal/rbac"
)

type fakeHandler struct {
	name    intent.Action
	calls   int
	lastReq actions.Request
	result  actions.Result
	err     error
	panics  bool
}

func (f *fakeHandler) Name() intent.Action { return f.name }

func (f *fakeHandler) Execute(_ context.Context, req actions.Request) (actions.Result, error) {
	f.calls++
	f.lastReq = req
	if f.panics {
		panic("boom")
	}
	return f.result, f.err
}

type memSink struct {
	recs []*audit.Record
}

func (m *memSink) Record(_ context.Context, rec *audit.Record) error {
	m.recs = append(m.recs, rec)
	return nil
}

const owner = "1000"

func newTestRouter(handlers ...*fakeHandler) (*Router, *memSink) {
	reg := actions.NewRegistry()
	for _, h := range handlers {
		reg.Register(h)
	}
	sink := &memSink{}
	r := New(Options{
		Registry: reg,
		Resolver: rbac.NewResolver([]string{owner}),
		Sink:     sink,
	})
	return r, sink
}

func it(action intent.Action, confidence float64, params map[string]any) intent.Intent {
	if params == nil {
		params = map[string]any{}
	}
	return intent.Intent{Name: action, Parameters: params, Confidence: confidence, Description: string(action)}
}

func TestDangerousActionArmsWithoutDispatch(t *testing.T) {
	h := &fakeHandler{name: intent.ActionDeleteFile}
	r, sink := newTestRouter(h)

	out := r.Route(context.Background(), owner, "delete /tmp/x",
		it(intent.ActionDeleteFile, 0.9, map[string]any{"file_path": "/tmp/x"}))

	if out.Kind != KindConfirmationRequired {
		t.Fatalf("expected confirmation required, got %s", out.Kind)
	}
	if h.calls != 0 {
		t.Fatalf("handler ran before confirmation: %d calls", h.calls)
	}
	if !r.HasPending(owner) {
		t.Fatal("no pending confirmation armed")
	}
	if !strings.Contains(out.Text, "/tmp/x") {
		t.Fatalf("prompt does not name the file: %q", out.Text)
	}
	if len(sink.recs) != 1 || sink.recs[0].Result != "awaiting confirmation" {
		t.Fatalf("expected one arming audit record, got %+v", sink.recs)
	}
	// Nothing executed, so the arming record must not count as a success.
	if sink.recs[0].Success {
		t.Fatal("arming record marked as success")
	}
}

func TestDenialBeforeDispatch(t *testing.T) {
	h := &fakeHandler{name: intent.ActionRunCommand}
	r, sink := newTestRouter(h)

	out := r.Route(context.Background(), "stranger", "run ls",
		it(intent.ActionRunCommand, 0.9, map[string]any{"command": "ls"}))

	if out.Kind != KindDenied {
		t.Fatalf("expected denial, got %s", out.Kind)
	}
	if h.calls != 0 {
		t.Fatal("handler ran for a denied user")
	}
	if len(sink.recs) != 1 || sink.recs[0].Success {
		t.Fatalf("expected one failed audit record, got %+v", sink.recs)
	}
}

func TestLowConfidenceAsksForClarification(t *testing.T) {
	h := &fakeHandler{name: intent.ActionScreenshot}
	r, _ := newTestRouter(h)

	out := r.Route(context.Background(), owner, "maybe screenshot?",
		it(intent.ActionScreenshot, 0.2, nil))

	if out.Kind != KindLowConfidence {
		t.Fatalf("expected low confidence, got %s", out.Kind)
	}
	if h.calls != 0 {
		t.Fatal("handler ran despite low confidence")
	}
}

func TestChatExemptFromConfidenceGate(t *testing.T) {
	h := &fakeHandler{name: intent.ActionChat, result: actions.Result{Text: "hi"}}
	r, _ := newTestRouter(h)

	out := r.Route(context.Background(), owner, "hello",
		it(intent.ActionChat, 0.0, map[string]any{"response": "hi"}))

	if out.Kind != KindExecuted {
		t.Fatalf("chat should bypass the gate, got %s", out.Kind)
	}
	if h.calls != 1 {
		t.Fatalf("expected one call, got %d", h.calls)
	}
}

func TestConfirmationExecutesStoredParameters(t *testing.T) {
	h := &fakeHandler{name: intent.ActionDeleteFile, result: actions.Result{Text: "deleted"}}
	r, sink := newTestRouter(h)

	r.Route(context.Background(), owner, "delete /tmp/x",
		it(intent.ActionDeleteFile, 0.9, map[string]any{"file_path": "/tmp/x"}))

	out := r.ResolveConfirmation(context.Background(), owner, "yes")
	if out.Kind != KindExecuted {
		t.Fatalf("expected execution, got %s: %s", out.Kind, out.Text)
	}
	if h.calls != 1 {
		t.Fatalf("expected one call, got %d", h.calls)
	}
	if h.lastReq.Parameters["file_path"] != "/tmp/x" {
		t.Fatalf("stored parameters not used: %v", h.lastReq.Parameters)
	}
	if h.lastReq.UserID != owner {
		t.Fatalf("user identity not carried: %q", h.lastReq.UserID)
	}
	// Arming record plus execution record.
	if len(sink.recs) != 2 {
		t.Fatalf("expected 2 audit records, got %d", len(sink.recs))
	}
	if !sink.recs[1].Success {
		t.Fatal("execution record should be a success")
	}
}

func TestNonAffirmativeCancels(t *testing.T) {
	h := &fakeHandler{name: intent.ActionPower}
	r, _ := newTestRouter(h)

	r.Route(context.Background(), owner, "shut down",
		it(intent.ActionPower, 0.9, map[string]any{"mode": "shutdown"}))

	out := r.ResolveConfirmation(context.Background(), owner, "actually no")
	if out.Kind != KindConfirmationCancelled {
		t.Fatalf("expected cancellation, got %s", out.Kind)
	}
	if h.calls != 0 {
		t.Fatal("handler ran after cancellation")
	}
	if r.HasPending(owner) {
		t.Fatal("pending record not cleared by cancellation")
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	h := &fakeHandler{name: intent.ActionKillProcess, result: actions.Result{Text: "done"}}
	r, _ := newTestRouter(h)

	r.Route(context.Background(), owner, "kill firefox",
		it(intent.ActionKillProcess, 0.9, map[string]any{"process_name": "firefox"}))

	first := r.ResolveConfirmation(context.Background(), owner, "YES")
	second := r.ResolveConfirmation(context.Background(), owner, "YES")

	if first.Kind != KindExecuted {
		t.Fatalf("first resolve should execute, got %s", first.Kind)
	}
	if second.Kind != KindNoPending {
		t.Fatalf("second resolve should find nothing, got %s", second.Kind)
	}
	if h.calls != 1 {
		t.Fatalf("expected exactly one execution, got %d", h.calls)
	}
}

func TestNewCommandOverwritesPending(t *testing.T) {
	del := &fakeHandler{name: intent.ActionDeleteFile, result: actions.Result{Text: "deleted"}}
	kill := &fakeHandler{name: intent.ActionKillProcess, result: actions.Result{Text: "killed"}}
	r, _ := newTestRouter(del, kill)

	r.Route(context.Background(), owner, "delete /tmp/a",
		it(intent.ActionDeleteFile, 0.9, map[string]any{"file_path": "/tmp/a"}))
	r.Route(context.Background(), owner, "kill firefox",
		it(intent.ActionKillProcess, 0.9, map[string]any{"process_name": "firefox"}))

	out := r.ResolveConfirmation(context.Background(), owner, "yes")
	if out.Kind != KindExecuted {
		t.Fatalf("expected execution, got %s", out.Kind)
	}
	if del.calls != 0 || kill.calls != 1 {
		t.Fatalf("latest pending should win: delete=%d kill=%d", del.calls, kill.calls)
	}
}

func TestHandlerPanicContained(t *testing.T) {
	h := &fakeHandler{name: intent.ActionScreenshot, panics: true}
	r, sink := newTestRouter(h)

	out := r.Route(context.Background(), owner, "screenshot",
		it(intent.ActionScreenshot, 0.9, nil))

	if out.Kind != KindFailed {
		t.Fatalf("expected failure, got %s", out.Kind)
	}
	if len(sink.recs) != 1 || sink.recs[0].Success {
		t.Fatalf("expected one failed audit record, got %+v", sink.recs)
	}
	if !strings.Contains(sink.recs[0].Result, "panic") {
		t.Fatalf("audit record should mention the panic: %q", sink.recs[0].Result)
	}
}

func TestHandlerErrorSurfaces(t *testing.T) {
	h := &fakeHandler{name: intent.ActionReadFile, err: errors.New("cannot read /x: permission denied")}
	r, sink := newTestRouter(h)

	out := r.Route(context.Background(), owner, "read /x",
		it(intent.ActionReadFile, 0.9, map[string]any{"file_path": "/x"}))

	if out.Kind != KindFailed {
		t.Fatalf("expected failure, got %s", out.Kind)
	}
	if !strings.Contains(out.Text, "permission denied") {
		t.Fatalf("error not surfaced: %q", out.Text)
	}
	if sink.recs[0].Success {
		t.Fatal("audit record should be a failure")
	}
}

func TestMissingHandlerFails(t *testing.T) {
	r, sink := newTestRouter()

	out := r.Route(context.Background(), owner, "screenshot",
		it(intent.ActionScreenshot, 0.9, nil))

	if out.Kind != KindFailed {
		t.Fatalf("expected failure, got %s", out.Kind)
	}
	if len(sink.recs) != 1 {
		t.Fatalf("expected one audit record, got %d", len(sink.recs))
	}
}

func TestRateLimitDenies(t *testing.T) {
	h := &fakeHandler{name: intent.ActionChat, result: actions.Result{Text: "ok"}}
	reg := actions.NewRegistry()
	reg.Register(h)
	sink := &memSink{}
	r := New(Options{
		Registry: reg,
		Resolver: rbac.NewResolver([]string{owner}),
		Limiter:  ratelimit.New(2, time.Minute),
		Sink:     sink,
	})

	for i := 0; i < 2; i++ {
		out := r.Route(context.Background(), owner, "hi", it(intent.ActionChat, 0.9, map[string]any{"response": "ok"}))
		if out.Kind != KindExecuted {
			t.Fatalf("request %d: expected execution, got %s", i, out.Kind)
		}
	}
	out := r.Route(context.Background(), owner, "hi", it(intent.ActionChat, 0.9, map[string]any{"response": "ok"}))
	if out.Kind != KindRateLimited {
		t.Fatalf("expected rate limit, got %s", out.Kind)
	}
	if h.calls != 2 {
		t.Fatalf("expected 2 executions, got %d", h.calls)
	}
}

func TestEveryTerminalBranchAudited(t *testing.T) {
	h := &fakeHandler{name: intent.ActionChat, result: actions.Result{Text: "ok"}}
	r, sink := newTestRouter(h)

	branches := []func() Outcome{
		func() Outcome {
			return r.Route(context.Background(), owner, "hi", it(intent.ActionChat, 0.9, map[string]any{"response": "ok"}))
		},
		func() Outcome {
			return r.Route(context.Background(), "stranger", "run ls", it(intent.ActionRunCommand, 0.9, nil))
		},
		func() Outcome {
			return r.Route(context.Background(), owner, "uh", it(intent.ActionScreenshot, 0.1, nil))
		},
		func() Outcome {
			return r.Route(context.Background(), owner, "shutdown", it(intent.ActionPower, 0.9, map[string]any{"mode": "shutdown"}))
		},
		func() Outcome {
			return r.ResolveConfirmation(context.Background(), owner, "no")
		},
	}
	for i, run := range branches {
		before := len(sink.recs)
		out := run()
		if len(sink.recs) != before+1 {
			t.Fatalf("branch %d (%s): expected one audit record, got %d new", i, out.Kind, len(sink.recs)-before)
		}
	}
}

func TestOutcomeKindStrings(t *testing.T) {
	for k := KindExecuted; k <= KindFailed; k++ {
		if k.String() == "unknown" {
			t.Fatalf("kind %d has no name", k)
		}
	}
	if fmt.Sprint(OutcomeKind(99)) != "unknown" {
		t.Fatal("out-of-range kind should be unknown")
	}
}

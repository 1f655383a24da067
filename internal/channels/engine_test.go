package channels

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/valetd/valet/internal/actions"
	"github.com/valetd/valet/internal/bus"
	"github.com/valetd/valet/internal/intent"
	"github.com/valetd/valet/internal/ratelimit"
	"github.com/valetd/valet/internal/rbac"
	"github.com/valetd/valet/internal/router"
)

type fakeModel struct {
	it    intent.Intent
	calls int
}

func (f *fakeModel) Query(_ context.Context, _ string, _ []intent.Turn, _ []byte) intent.Intent {
	f.calls++
	return f.it
}

type countingHandler struct {
	name  intent.Action
	calls int
	text  string
}

func (h *countingHandler) Name() intent.Action { return h.name }

func (h *countingHandler) Execute(_ context.Context, _ actions.Request) (actions.Result, error) {
	h.calls++
	return actions.Result{Text: h.text}, nil
}

const testOwner = "7"

func newTestEngine(t *testing.T, model IntentSource, handlers ...*countingHandler) (*Engine, func() *bus.OutboundMessage) {
	t.Helper()
	reg := actions.NewRegistry()
	for _, h := range handlers {
		reg.Register(h)
	}
	r := router.New(router.Options{
		Registry: reg,
		Resolver: rbac.NewResolver([]string{testOwner}),
	})

	b := bus.NewMessageBus()
	received := make(chan *bus.OutboundMessage, 16)
	b.Subscribe("telegram", func(m *bus.OutboundMessage) { received <- m })
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.DispatchOutbound(ctx)

	next := func() *bus.OutboundMessage {
		select {
		case m := <-received:
			return m
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for outbound message")
			return nil
		}
	}
	return NewEngine(b, r, model, nil, nil), next
}

func inbound(text string) *bus.InboundMessage {
	return &bus.InboundMessage{Channel: "telegram", SenderID: testOwner, ChatID: "chat1", Content: text}
}

func TestEngineConfirmationConsumesNextMessage(t *testing.T) {
	model := &fakeModel{it: intent.Intent{
		Name:       intent.ActionDeleteFile,
		Parameters: map[string]any{"file_path": "/tmp/x"},
		Confidence: 0.9,
	}}
	h := &countingHandler{name: intent.ActionDeleteFile, text: "deleted"}
	e, next := newTestEngine(t, model, h)

	e.Process(context.Background(), inbound("delete /tmp/x"))
	prompt := next()
	if !strings.Contains(prompt.Content, "YES") {
		t.Fatalf("expected confirmation prompt, got %q", prompt.Content)
	}
	if h.calls != 0 {
		t.Fatal("handler ran before confirmation")
	}

	e.Process(context.Background(), inbound("yes"))
	reply := next()
	if reply.Content != "deleted" {
		t.Fatalf("expected execution reply, got %q", reply.Content)
	}
	if h.calls != 1 {
		t.Fatalf("expected one execution, got %d", h.calls)
	}
	// The confirmation reply must never reach the model.
	if model.calls != 1 {
		t.Fatalf("model queried %d times, want 1", model.calls)
	}
}

func TestEngineCancellationSkipsModel(t *testing.T) {
	model := &fakeModel{it: intent.Intent{
		Name:       intent.ActionKillProcess,
		Parameters: map[string]any{"process_name": "firefox"},
		Confidence: 0.9,
	}}
	h := &countingHandler{name: intent.ActionKillProcess, text: "killed"}
	e, next := newTestEngine(t, model, h)

	e.Process(context.Background(), inbound("kill firefox"))
	next()
	e.Process(context.Background(), inbound("no way"))
	reply := next()

	if !strings.Contains(reply.Content, "Cancelled") {
		t.Fatalf("expected cancellation, got %q", reply.Content)
	}
	if h.calls != 0 {
		t.Fatal("handler ran after cancellation")
	}
	if model.calls != 1 {
		t.Fatalf("model queried %d times, want 1", model.calls)
	}
}

func TestEngineSlashCommandBypassesModel(t *testing.T) {
	model := &fakeModel{}
	h := &countingHandler{name: intent.ActionHelp, text: "help text"}
	e, next := newTestEngine(t, model, h)

	e.Process(context.Background(), inbound("/help"))
	reply := next()
	if reply.Content != "help text" {
		t.Fatalf("expected help reply, got %q", reply.Content)
	}
	if model.calls != 0 {
		t.Fatal("slash command should not query the model")
	}
}

func TestEngineUnknownSlashCommand(t *testing.T) {
	model := &fakeModel{}
	e, next := newTestEngine(t, model)

	e.Process(context.Background(), inbound("/bogus"))
	reply := next()
	if !strings.Contains(reply.Content, "Unknown command") {
		t.Fatalf("unexpected reply: %q", reply.Content)
	}
}

func TestEngineIgnoresEmptyMessages(t *testing.T) {
	model := &fakeModel{}
	e, _ := newTestEngine(t, model)

	e.Process(context.Background(), inbound("   "))
	if model.calls != 0 {
		t.Fatal("empty message should be ignored")
	}
	if e.Bus.OutboundSize() != 0 {
		t.Fatal("empty message should produce no reply")
	}
}

func TestEngineRateLimitSkipsModel(t *testing.T) {
	model := &fakeModel{it: intent.Intent{
		Name:       intent.ActionChat,
		Parameters: map[string]any{"response": "hi"},
		Confidence: 1,
	}}
	h := &countingHandler{name: intent.ActionChat, text: "hi"}
	e, next := newTestEngine(t, model, h)
	e.Limiter = ratelimit.New(1, time.Minute)

	e.Process(context.Background(), inbound("hello"))
	next()
	if model.calls != 1 {
		t.Fatalf("model queried %d times, want 1", model.calls)
	}

	e.Process(context.Background(), inbound("hello again"))
	reply := next()
	if reply.Content != router.RateLimitedMessage {
		t.Fatalf("expected throttle reply, got %q", reply.Content)
	}
	// The throttled message must never reach the model or a handler.
	if model.calls != 1 {
		t.Fatalf("model queried %d times, want 1", model.calls)
	}
	if h.calls != 1 {
		t.Fatalf("handler ran %d times, want 1", h.calls)
	}
}

func TestChunkText(t *testing.T) {
	if got := chunkText("short", 100); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text should be one chunk: %v", got)
	}

	long := strings.Repeat("line of text\n", 800)
	chunks := chunkText(long, telegramChunkSize)
	if len(chunks) < 2 {
		t.Fatal("long text should be split")
	}
	for i, c := range chunks {
		if len(c) > telegramChunkSize {
			t.Fatalf("chunk %d exceeds limit: %d", i, len(c))
		}
	}
	joined := strings.Join(chunks, "\n")
	if !strings.HasPrefix(joined, "line of text") {
		t.Fatal("content lost in chunking")
	}
}

func TestChunkTextKeepsValidUTF8(t *testing.T) {
	// No newlines, so every cut lands mid-text where a two-byte rune could
	// be split.
	long := "a" + strings.Repeat("é", 4100)
	chunks := chunkText(long, telegramChunkSize)
	if len(chunks) < 2 {
		t.Fatal("long text should be split")
	}
	for i, c := range chunks {
		if len(c) > telegramChunkSize {
			t.Fatalf("chunk %d exceeds limit: %d", i, len(c))
		}
		if !utf8.ValidString(c) {
			t.Fatalf("chunk %d is not valid UTF-8", i)
		}
	}
	if strings.Join(chunks, "") != long {
		t.Fatal("content lost in chunking")
	}
}

func TestTruncateUTF8(t *testing.T) {
	if got := truncateUTF8("héllo", 2); got != "h" {
		t.Fatalf("expected cut before the split rune, got %q", got)
	}
	if got := truncateUTF8("héllo", 10); got != "héllo" {
		t.Fatalf("short string should be unchanged, got %q", got)
	}
}

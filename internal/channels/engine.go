package channels

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/valetd/valet/internal/bus"
	"github.com/valetd/valet/internal/intent"
	"github.com/valetd/valet/internal/ratelimit"
	"github.com/valetd/valet/internal/router"
	"github.com/valetd/valet/internal/store"
)

// IntentSource turns a raw message into a structured intent. Implemented by
// intent.OllamaClient.
type IntentSource interface {
	Query(ctx context.Context, message string, history []intent.Turn, image []byte) intent.Intent
}

// Engine consumes inbound messages from the bus, interprets them, runs them
// through the router, and publishes replies. Messages from the same user are
// processed in order; different users run concurrently.
type Engine struct {
	Bus         *bus.MessageBus
	Router      *router.Router
	Model       IntentSource
	Store       *store.Service
	Limiter     *ratelimit.Limiter
	HistorySize int
	Log         *slog.Logger

	mu      sync.Mutex
	workers map[string]chan *bus.InboundMessage
	wg      sync.WaitGroup
}

// NewEngine wires an engine. Store may be nil to disable history.
func NewEngine(b *bus.MessageBus, r *router.Router, model IntentSource, st *store.Service, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		Bus:         b,
		Router:      r,
		Model:       model,
		Store:       st,
		HistorySize: 10,
		Log:         log,
		workers:     make(map[string]chan *bus.InboundMessage),
	}
}

// Run consumes inbound messages until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	defer e.wg.Wait()
	for {
		msg, err := e.Bus.ConsumeInbound(ctx)
		if err != nil {
			return err
		}
		e.enqueue(ctx, msg)
	}
}

// enqueue hands the message to the sender's worker, creating it on first
// contact. One worker per sender keeps a user's messages ordered, which the
// confirmation flow depends on.
func (e *Engine) enqueue(ctx context.Context, msg *bus.InboundMessage) {
	e.mu.Lock()
	queue, ok := e.workers[msg.SenderID]
	if !ok {
		queue = make(chan *bus.InboundMessage, 16)
		e.workers[msg.SenderID] = queue
		e.wg.Add(1)
		go e.worker(ctx, queue)
	}
	e.mu.Unlock()

	select {
	case queue <- msg:
	default:
		e.Log.Warn("dropping message, user queue full", "user", msg.SenderID)
	}
}

func (e *Engine) worker(ctx context.Context, queue chan *bus.InboundMessage) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-queue:
			e.Process(ctx, msg)
		}
	}
}

// Process handles a single inbound message end to end.
func (e *Engine) Process(ctx context.Context, msg *bus.InboundMessage) {
	text := strings.TrimSpace(msg.Content)
	if text == "" && msg.ImagePath == "" {
		return
	}

	// Throttled messages never reach the model or the pending slot.
	if e.Limiter != nil && !e.Limiter.Allow(msg.SenderID) {
		e.Log.Warn("rate limit exceeded", "user", msg.SenderID)
		e.reply(msg, router.RateLimitedMessage, "")
		return
	}

	// A pending confirmation consumes the next message whatever it says.
	if e.Router.HasPending(msg.SenderID) {
		out := e.Router.ResolveConfirmation(ctx, msg.SenderID, text)
		e.saveTurn(msg.SenderID, text, out.Text, "")
		e.reply(msg, out.Text, out.FilePath)
		return
	}

	if reply, handled := e.slashCommand(ctx, msg, text); handled {
		if reply != "" {
			e.reply(msg, reply, "")
		}
		return
	}

	var image []byte
	if msg.ImagePath != "" {
		data, err := os.ReadFile(msg.ImagePath)
		if err != nil {
			e.Log.Warn("cannot read attached image", "path", msg.ImagePath, "error", err)
		} else {
			image = data
		}
		if text == "" {
			text = "Describe this image."
		}
	}

	it := e.Model.Query(ctx, text, e.history(msg.SenderID), image)
	out := e.Router.Route(ctx, msg.SenderID, text, it)

	e.saveTurn(msg.SenderID, text, out.Text, string(it.Name))
	e.reply(msg, out.Text, out.FilePath)
}

// slashCommand maps transport shortcuts to intents, bypassing the model.
// Routing still applies, so permissions and auditing are identical to the
// natural-language path.
func (e *Engine) slashCommand(ctx context.Context, msg *bus.InboundMessage, text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	cmd := strings.ToLower(strings.Fields(text)[0])

	var it intent.Intent
	switch cmd {
	case "/start":
		return "Hi, I'm Valet. Tell me what to do in plain language, or try /help.", true
	case "/stats":
		return e.statsText(msg.SenderID), true
	case "/help":
		it = intent.Intent{Name: intent.ActionHelp, Parameters: map[string]any{}, Confidence: 1}
	case "/status":
		it = intent.Intent{Name: intent.ActionStatus, Parameters: map[string]any{}, Confidence: 1}
	case "/screenshot":
		it = intent.Intent{Name: intent.ActionScreenshot, Parameters: map[string]any{}, Confidence: 1}
	case "/clear":
		it = intent.Intent{Name: intent.ActionClearHistory, Parameters: map[string]any{}, Confidence: 1}
	default:
		return fmt.Sprintf("Unknown command %s. Try /help.", cmd), true
	}

	out := e.Router.Route(ctx, msg.SenderID, text, it)
	e.saveTurn(msg.SenderID, text, out.Text, string(it.Name))
	e.reply(msg, out.Text, out.FilePath)
	return "", true
}

func (e *Engine) statsText(userID string) string {
	if e.Store == nil {
		return "No statistics available."
	}
	stats, err := e.Store.Stats(userID)
	if err != nil {
		return "No statistics available."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Commands: %d (%d ok, %d failed)\n", stats.Total, stats.Successes, stats.Failures)
	for _, ac := range stats.TopActions {
		fmt.Fprintf(&b, "  %s: %d\n", ac.Action, ac.Count)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (e *Engine) history(userID string) []intent.Turn {
	if e.Store == nil {
		return nil
	}
	msgs, err := e.Store.RecentMessages(userID, e.HistorySize)
	if err != nil {
		e.Log.Warn("cannot load history", "user", userID, "error", err)
		return nil
	}
	turns := make([]intent.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, intent.Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

func (e *Engine) saveTurn(userID, userText, assistantText, action string) {
	if e.Store == nil {
		return
	}
	if userText != "" {
		if err := e.Store.SaveMessage(userID, "user", userText, ""); err != nil {
			e.Log.Warn("cannot save message", "error", err)
		}
	}
	if assistantText != "" {
		if err := e.Store.SaveMessage(userID, "assistant", assistantText, action); err != nil {
			e.Log.Warn("cannot save message", "error", err)
		}
	}
}

func (e *Engine) reply(msg *bus.InboundMessage, text, filePath string) {
	if text == "" && filePath == "" {
		return
	}
	e.Bus.PublishOutbound(&bus.OutboundMessage{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		Content:  text,
		FilePath: filePath,
	})
}

// Package router implements the command pipeline: rate limiting, the
// confidence gate, permission checks, dangerous-action confirmation, and
// dispatch, with an audit record for every attempt.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/valetd/valet/internal/actions"
	"github.com/valetd/valet/internal/audit"
	"github.com/valetd/valet/internal/confirm"
	"github.com/valetd/valet/internal/intent"
	"github.com/valetd/valet/internal/ratelimit"
	"github.com/valetd/valet/internal/rbac"
)

// OutcomeKind classifies what the pipeline decided.
type OutcomeKind int

const (
	KindExecuted OutcomeKind = iota
	KindRateLimited
	KindLowConfidence
	KindDenied
	KindConfirmationRequired
	KindConfirmationCancelled
	KindNoPending
	KindFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case KindExecuted:
		return "executed"
	case KindRateLimited:
		return "rate_limited"
	case KindLowConfidence:
		return "low_confidence"
	case KindDenied:
		return "denied"
	case KindConfirmationRequired:
		return "confirmation_required"
	case KindConfirmationCancelled:
		return "confirmation_cancelled"
	case KindNoPending:
		return "no_pending"
	case KindFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the pipeline's answer for one message. Text is always safe to
// show the user; FilePath is set when a handler produced a file to deliver.
type Outcome struct {
	Kind     OutcomeKind
	Text     string
	FilePath string
	TraceID  string
}

// DefaultConfidenceThreshold gates structured actions; chat is exempt.
const DefaultConfidenceThreshold = 0.3

// RateLimitedMessage is the reply for throttled users. Transports check the
// limiter before classification and need the same wording.
const RateLimitedMessage = "You're sending commands too quickly. Wait a moment and try again."

// DangerousActions is the set requiring explicit confirmation.
func DangerousActions() map[intent.Action]bool {
	return map[intent.Action]bool{
		intent.ActionDeleteFile:   true,
		intent.ActionKillProcess:  true,
		intent.ActionPower:        true,
		intent.ActionRunCommand:   true,
		intent.ActionClearHistory: true,
	}
}

// Router owns the per-message decision pipeline. All state it touches is
// injected; two routers never share anything implicitly.
type Router struct {
	registry  *actions.Registry
	matrix    rbac.Matrix
	resolver  *rbac.Resolver
	limiter   *ratelimit.Limiter
	confirms  *confirm.Store
	sink      audit.Sink
	dangerous map[intent.Action]bool
	threshold float64
	log       *slog.Logger
}

// Options configures a Router. Zero-value fields take defaults.
type Options struct {
	Registry  *actions.Registry
	Matrix    rbac.Matrix
	Resolver  *rbac.Resolver
	Limiter   *ratelimit.Limiter
	Confirms  *confirm.Store
	Sink      audit.Sink
	Dangerous map[intent.Action]bool
	Threshold float64
	Logger    *slog.Logger
}

// New builds a Router from options.
func New(opts Options) *Router {
	r := &Router{
		registry:  opts.Registry,
		matrix:    opts.Matrix,
		resolver:  opts.Resolver,
		limiter:   opts.Limiter,
		confirms:  opts.Confirms,
		sink:      opts.Sink,
		dangerous: opts.Dangerous,
		threshold: opts.Threshold,
		log:       opts.Logger,
	}
	if r.matrix == nil {
		r.matrix = rbac.DefaultMatrix()
	}
	if r.confirms == nil {
		r.confirms = confirm.NewStore()
	}
	if r.dangerous == nil {
		r.dangerous = DangerousActions()
	}
	if r.threshold <= 0 {
		r.threshold = DefaultConfidenceThreshold
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r
}

// HasPending reports whether the user's next message must be treated as a
// confirmation reply.
func (r *Router) HasPending(userID string) bool {
	return r.confirms.Has(userID)
}

// Route runs one interpreted message through the pipeline. Callers must
// check HasPending first and use ResolveConfirmation for pending users.
func (r *Router) Route(ctx context.Context, userID, rawCommand string, it intent.Intent) Outcome {
	traceID := uuid.NewString()
	log := r.log.With("user", userID, "trace", traceID, "action", it.Name)

	// Transports throttle before classification; this guards direct callers.
	if r.limiter != nil && !r.limiter.Allow(userID) {
		log.Warn("rate limit exceeded")
		r.record(ctx, userID, traceID, rawCommand, it, "rate limit exceeded", false)
		return Outcome{
			Kind:    KindRateLimited,
			Text:    RateLimitedMessage,
			TraceID: traceID,
		}
	}

	// Chat is exempt: a low-confidence parse already degrades to chat, and
	// gating it would make the assistant mute.
	if it.Name != intent.ActionChat && it.Confidence < r.threshold {
		log.Info("confidence below threshold", "confidence", it.Confidence)
		r.record(ctx, userID, traceID, rawCommand, it, "confidence below threshold", false)
		return Outcome{
			Kind:    KindLowConfidence,
			Text:    fmt.Sprintf("I think you want %q but I'm not sure. Could you rephrase?", it.Description),
			TraceID: traceID,
		}
	}

	role := r.resolver.Resolve(userID)
	if !r.matrix.Check(role, it.Name) {
		required := r.matrix.Required(it.Name)
		log.Warn("permission denied", "role", role, "required", required)
		r.record(ctx, userID, traceID, rawCommand, it, fmt.Sprintf("denied: requires %s, user is %s", required, role), false)
		return Outcome{
			Kind:    KindDenied,
			Text:    fmt.Sprintf("You don't have permission to do that (requires %s).", required),
			TraceID: traceID,
		}
	}

	if r.dangerous[it.Name] {
		r.confirms.Arm(userID, confirm.Pending{
			Action:     it.Name,
			Parameters: it.Parameters,
			RawCommand: rawCommand,
		})
		log.Info("confirmation armed")
		// Nothing ran yet; only executed handlers count as successes.
		r.record(ctx, userID, traceID, rawCommand, it, "awaiting confirmation", false)
		return Outcome{
			Kind:    KindConfirmationRequired,
			Text:    describeDanger(it.Name, it.Parameters),
			TraceID: traceID,
		}
	}

	return r.dispatch(ctx, log, userID, traceID, rawCommand, it.Name, it.Parameters)
}

// ResolveConfirmation consumes the user's pending confirmation with their
// reply. The pending record is cleared exactly once regardless of the
// answer; resolving when nothing is pending is a no-op.
func (r *Router) ResolveConfirmation(ctx context.Context, userID, reply string) Outcome {
	traceID := uuid.NewString()
	p, ok := r.confirms.Take(userID)
	if !ok {
		return Outcome{
			Kind:    KindNoPending,
			Text:    "There's nothing waiting for confirmation.",
			TraceID: traceID,
		}
	}

	log := r.log.With("user", userID, "trace", traceID, "action", p.Action)
	it := intent.Intent{Name: p.Action, Parameters: p.Parameters}

	if !r.confirms.IsAffirmative(reply) {
		log.Info("confirmation cancelled")
		r.record(ctx, userID, traceID, p.RawCommand, it, "cancelled by user", false)
		return Outcome{
			Kind:    KindConfirmationCancelled,
			Text:    "Cancelled.",
			TraceID: traceID,
		}
	}

	log.Info("confirmation accepted")
	return r.dispatch(ctx, log, userID, traceID, p.RawCommand, p.Action, p.Parameters)
}

// dispatch looks up the handler and executes it, containing panics.
func (r *Router) dispatch(ctx context.Context, log *slog.Logger, userID, traceID, rawCommand string, action intent.Action, params map[string]any) (out Outcome) {
	it := intent.Intent{Name: action, Parameters: params}

	handler, ok := r.registry.Get(action)
	if !ok {
		log.Error("no handler registered")
		r.record(ctx, userID, traceID, rawCommand, it, "no handler registered", false)
		return Outcome{
			Kind:    KindFailed,
			Text:    "That action isn't available right now.",
			TraceID: traceID,
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("handler panicked", "panic", rec)
			r.record(ctx, userID, traceID, rawCommand, it, fmt.Sprintf("handler panic: %v", rec), false)
			out = Outcome{
				Kind:    KindFailed,
				Text:    "Something went wrong running that action.",
				TraceID: traceID,
			}
		}
	}()

	res, err := handler.Execute(ctx, actions.Request{UserID: userID, Parameters: params})
	if err != nil {
		log.Warn("handler failed", "error", err)
		r.record(ctx, userID, traceID, rawCommand, it, err.Error(), false)
		return Outcome{
			Kind:    KindFailed,
			Text:    err.Error(),
			TraceID: traceID,
		}
	}

	log.Info("executed")
	r.record(ctx, userID, traceID, rawCommand, it, res.Text, true)
	return Outcome{
		Kind:     KindExecuted,
		Text:     res.Text,
		FilePath: res.FilePath,
		TraceID:  traceID,
	}
}

// record writes the audit entry for one attempt. Sink failures are logged
// and swallowed so auditing never changes an outcome.
func (r *Router) record(ctx context.Context, userID, traceID, rawCommand string, it intent.Intent, result string, success bool) {
	if r.sink == nil {
		return
	}
	rec := &audit.Record{
		UserID:     userID,
		TraceID:    traceID,
		RawCommand: rawCommand,
		Action:     string(it.Name),
		Parameters: it.Parameters,
		Result:     result,
		Success:    success,
		Timestamp:  time.Now().UTC(),
	}
	if err := r.sink.Record(ctx, rec); err != nil {
		r.log.Warn("audit sink failed", "error", err, "trace", traceID)
	}
}

// describeDanger builds the confirmation prompt, naming the affected
// resource where the parameters carry one.
func describeDanger(action intent.Action, params map[string]any) string {
	var what string
	switch action {
	case intent.ActionDeleteFile:
		what = fmt.Sprintf("delete %s", actions.GetString(params, "file_path", "a file"))
	case intent.ActionKillProcess:
		what = fmt.Sprintf("kill processes matching %q", actions.GetString(params, "process_name", "?"))
	case intent.ActionPower:
		what = fmt.Sprintf("%s the machine", actions.GetString(params, "mode", "power off"))
	case intent.ActionRunCommand:
		what = fmt.Sprintf("run: %s", actions.GetString(params, "command", "a command"))
	case intent.ActionClearHistory:
		what = "erase your conversation history"
	default:
		what = fmt.Sprintf("run %s", action)
	}
	return fmt.Sprintf("This will %s. Reply YES to confirm, anything else to cancel.", what)
}

package suggest

import (
	"context"
	"log/slog"

	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/ocr"
	"github.com/cardledger/cardintake/internal/pool"
)

// Action names what a toggle did.
type Action string

const (
	ActionApplied Action = "applied"
	ActionUndone  Action = "undone"
	ActionNothing Action = "nothing"
	ActionPending Action = "pending"
	ActionFailed  Action = "failed"
	ActionStale   Action = "stale"
)

// Target is the draft side of a toggle. The caller owns Draft and must not
// mutate it concurrently.
type Target struct {
	Draft   *models.CardDraft
	Pool    *pool.Pool
	Touched map[models.Field]bool
	Hints   []string
}

// ToggleResult reports the effect of a toggle or low-confidence apply.
type ToggleResult struct {
	Action             Action         `json:"action"`
	Changed            []models.Field `json:"changed,omitempty"`
	Result             *Result        `json:"result,omitempty"`
	OfferLowConfidence bool           `json:"offerLowConfidence"`
	Err                error          `json:"-"`
}

// Engine combines fetching, resolving and applying suggestions.
type Engine struct {
	Resolver *Resolver
	Poller   *Poller
	logger   *slog.Logger
}

// NewEngine creates an engine
func NewEngine(resolver *Resolver, poller *Poller, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{Resolver: resolver, Poller: poller, logger: logger}
}

// Fetch polls the adapter in mode and records the outcome on sess. The
// boolean is false when a newer fetch or a card change made this one stale.
// It does not touch any draft and may run without the caller's lock.
func (e *Engine) Fetch(ctx context.Context, sess *Session, req ocr.Request, mode Mode) (Outcome, bool) {
	req.LowConfidence = mode == ModeLow
	ctx, id, err := sess.Begin(ctx, req.CardID)
	if err != nil {
		e.logger.Debug("Suggestion fetch dropped", "card_id", req.CardID, "error", err)
		return Failed{Err: err}, false
	}
	outcome := e.Poller.Poll(ctx, req)
	current := sess.Finish(id, req.CardID, mode, outcome)

	attrs := []any{"card_id", req.CardID, "request_id", id, "mode", mode, "current", current}
	switch o := outcome.(type) {
	case Failed:
		e.logger.Warn("Suggestion fetch failed", append(attrs, "error", o.Err)...)
	case Pending:
		e.logger.Info("Suggestion backend still pending", append(attrs, "attempts", o.Attempts)...)
	case Empty:
		e.logger.Info("Suggestion fetch returned nothing", attrs...)
	case Ready:
		e.logger.Info("Suggestion fetch finished", append(attrs, "fields", len(o.Response.Fields))...)
	}
	return outcome, current
}

// Resolve runs the resolver over the session's last response.
func (e *Engine) Resolve(sess *Session, t Target) (Result, bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return e.resolveLocked(sess, t)
}

func (e *Engine) resolveLocked(sess *Session, t Target) (Result, bool) {
	if sess.response == nil {
		return Result{}, false
	}
	hints := append([]string(nil), t.Hints...)
	if c := sess.response.TopCandidate; c != nil && c.Label != "" {
		hints = append(hints, c.Label)
	}
	res := e.Resolver.Resolve(Input{
		Fields:     sess.response.Fields,
		Confidence: sess.response.Confidence,
		Draft:      t.Draft,
		Pool:       t.Pool,
		Touched:    t.Touched,
		Mode:       sess.mode,
		Hints:      hints,
	})
	sess.result = &res
	return res, true
}

// Applied reports whether suggestions are currently applied.
func (e *Engine) Applied(sess *Session) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.apply.Applied()
}

// Undo reverts applied suggestions that the operator has not edited since.
func (e *Engine) Undo(sess *Session, draft *models.CardDraft) ToggleResult {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	restored := sess.apply.Undo(draft)
	e.logger.Debug("Undid suggestions", "card_id", sess.cardID, "restored", len(restored))
	return ToggleResult{Action: ActionUndone, Changed: restored}
}

// ApplyResolved resolves the last response against t and applies it. When
// the high-confidence pass changes nothing the low-confidence retry is
// offered, once per card.
func (e *Engine) ApplyResolved(sess *Session, t Target) ToggleResult {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	res, ok := e.resolveLocked(sess, t)
	if !ok {
		return e.stateResultLocked(sess)
	}
	changed := sess.apply.Apply(t.Draft, res.Suggestions)
	if len(changed) > 0 {
		return ToggleResult{Action: ActionApplied, Changed: changed, Result: &res}
	}
	out := ToggleResult{Action: ActionNothing, Result: &res}
	if sess.mode != ModeLow && !sess.lowOffered {
		sess.lowOffered = true
		out.OfferLowConfidence = true
	}
	return out
}

// Reapply resolves the last response again, after the draft's scope or pool
// changed, and applies what newly qualifies. It never offers the
// low-confidence pass.
func (e *Engine) Reapply(sess *Session, t Target) ToggleResult {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	res, ok := e.resolveLocked(sess, t)
	if !ok {
		return ToggleResult{Action: ActionNothing}
	}
	changed := sess.apply.Apply(t.Draft, res.Suggestions)
	if len(changed) == 0 {
		return ToggleResult{Action: ActionNothing, Result: &res}
	}
	return ToggleResult{Action: ActionApplied, Changed: changed, Result: &res}
}

func (e *Engine) stateResultLocked(sess *Session) ToggleResult {
	switch sess.state {
	case StatePending, StateRunning:
		return ToggleResult{Action: ActionPending}
	case StateError:
		return ToggleResult{Action: ActionFailed, Err: sess.err}
	}
	return ToggleResult{Action: ActionNothing}
}

// Toggle applies suggestions, fetching first when none exist yet, or undoes
// them when they are applied. The caller must own t.Draft for the whole call.
func (e *Engine) Toggle(ctx context.Context, sess *Session, t Target, req ocr.Request) ToggleResult {
	if e.Applied(sess) {
		return e.Undo(sess, t.Draft)
	}
	if !sess.HasResponse() {
		if res, done := e.fetchForApply(ctx, sess, req, ModeHigh); done {
			return res
		}
	}
	return e.ApplyResolved(sess, t)
}

// ApplyLowConfidence runs the explicit low-confidence pass and applies it.
func (e *Engine) ApplyLowConfidence(ctx context.Context, sess *Session, t Target, req ocr.Request) ToggleResult {
	if res, done := e.fetchForApply(ctx, sess, req, ModeLow); done {
		return res
	}
	return e.ApplyResolved(sess, t)
}

// fetchForApply fetches and reports done=true when there is nothing to apply.
func (e *Engine) fetchForApply(ctx context.Context, sess *Session, req ocr.Request, mode Mode) (ToggleResult, bool) {
	outcome, current := e.Fetch(ctx, sess, req, mode)
	if !current {
		return ToggleResult{Action: ActionStale}, true
	}
	return OutcomeResult(outcome)
}

// OutcomeResult maps a fetch outcome to a toggle result when the outcome
// leaves nothing to apply.
func OutcomeResult(outcome Outcome) (ToggleResult, bool) {
	switch o := outcome.(type) {
	case Failed:
		return ToggleResult{Action: ActionFailed, Err: o.Err}, true
	case Pending:
		return ToggleResult{Action: ActionPending}, true
	}
	return ToggleResult{}, false
}

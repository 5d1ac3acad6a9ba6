package capture

import (
	"context"
	"errors"

	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/ocr"
	"github.com/cardledger/cardintake/internal/pool"
	"github.com/cardledger/cardintake/internal/suggest"
)

// ToggleSuggestions applies the suggestions, fetching them first when none
// exist, or undoes them when applied.
func (c *Controller) ToggleSuggestions(ctx context.Context) suggest.ToggleResult {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return suggest.ToggleResult{Action: suggest.ActionFailed, Err: ErrClosed}
	}
	if c.deps.Engine.Applied(c.sugg) {
		res := c.deps.Engine.Undo(c.sugg, c.draft)
		c.afterChangeLocked(ctx, res.Changed)
		c.mu.Unlock()
		return res
	}
	hasResponse := c.sugg.HasResponse()
	req := c.ocrRequestLocked()
	c.mu.Unlock()

	if !hasResponse {
		if res, done := c.fetch(ctx, req, suggest.ModeHigh); done {
			return res
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.draft.ID != req.CardID {
		return suggest.ToggleResult{Action: suggest.ActionStale}
	}
	return c.applyLocked(ctx)
}

// ApplyLowConfidence runs the explicit low-confidence pass and applies it.
func (c *Controller) ApplyLowConfidence(ctx context.Context) suggest.ToggleResult {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return suggest.ToggleResult{Action: suggest.ActionFailed, Err: ErrClosed}
	}
	req := c.ocrRequestLocked()
	c.mu.Unlock()

	if res, done := c.fetch(ctx, req, suggest.ModeLow); done {
		return res
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.draft.ID != req.CardID {
		return suggest.ToggleResult{Action: suggest.ActionStale}
	}
	return c.applyLocked(ctx)
}

// SuggestionStatus returns the suggestion state of the current card.
func (c *Controller) SuggestionStatus() suggest.Status {
	return c.sugg.Status()
}

// autoSuggest is the debounced fetch after the tilt photo is uploaded.
func (c *Controller) autoSuggest(cardID string) {
	c.mu.Lock()
	if c.closed || c.draft.ID != cardID {
		c.mu.Unlock()
		return
	}
	req := c.ocrRequestLocked()
	c.mu.Unlock()

	res, done := c.fetch(c.ctx, req, suggest.ModeHigh)
	if done {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.draft.ID != cardID {
		return
	}
	res = c.applyLocked(c.ctx)
	c.logger.Info("Suggestions applied after capture",
		"card_id", cardID,
		"action", res.Action,
		"changed", len(res.Changed))
}

// fetch polls the OCR backend without holding mu. done is true when there
// is nothing to apply.
func (c *Controller) fetch(ctx context.Context, req ocr.Request, mode suggest.Mode) (suggest.ToggleResult, bool) {
	outcome, current := c.deps.Engine.Fetch(ctx, c.sugg, req, mode)
	if !current {
		return suggest.ToggleResult{Action: suggest.ActionStale}, true
	}
	res, done := suggest.OutcomeResult(outcome)
	if done {
		c.mu.Lock()
		if c.draft.ID == req.CardID {
			c.noteFetchLocked(res)
		}
		c.mu.Unlock()
	}
	return res, done
}

// noteFetchLocked turns a fetch that left nothing to apply into an operator
// message. A not-ready backend is retried once the asset id exists.
func (c *Controller) noteFetchLocked(res suggest.ToggleResult) {
	switch {
	case res.Err == nil:
		if res.Action == suggest.ActionPending {
			c.message = "suggestions are still being prepared"
		}
	case errors.Is(res.Err, ocr.ErrNotReady) && c.draft.AssetID == "":
		c.ocrRetry = true
		c.message = "photos are still uploading, suggestions will load when ready"
	default:
		c.message = res.Err.Error()
	}
}

// applyLocked applies the last response. When the applied fields change the
// option pool scope, the response is resolved again against the new pool so
// taxonomy fields can match.
func (c *Controller) applyLocked(ctx context.Context) suggest.ToggleResult {
	res := c.deps.Engine.ApplyResolved(c.sugg, c.targetLocked())
	if len(res.Changed) == 0 {
		return res
	}
	cardID := c.draft.ID
	poolChanged := c.afterChangeLocked(ctx, res.Changed)
	if c.draft.ID != cardID {
		return suggest.ToggleResult{Action: suggest.ActionStale}
	}
	if poolChanged {
		more := c.deps.Engine.Reapply(c.sugg, c.targetLocked())
		if len(more.Changed) > 0 {
			res.Changed = append(res.Changed, more.Changed...)
			res.Result = more.Result
			c.afterChangeLocked(ctx, more.Changed)
		}
	}
	c.logger.Debug("Suggestions applied", "card_id", c.draft.ID, "changed", res.Changed)
	return res
}

func (c *Controller) targetLocked() suggest.Target {
	var hints []string
	if c.draft.Optional.ProductLine != "" {
		hints = append(hints, c.draft.Optional.ProductLine)
	}
	return suggest.Target{
		Draft:   c.draft,
		Pool:    c.pool,
		Touched: c.touched,
		Hints:   hints,
	}
}

func (c *Controller) ocrRequestLocked() ocr.Request {
	photos := make([]ocr.Photo, 0, len(models.PhotoSides))
	for _, side := range models.PhotoSides {
		ref := c.draft.Photos.Get(side)
		if !ref.Captured {
			continue
		}
		p := ocr.Photo{Side: side, PhotoID: ref.PhotoID, Width: ref.Width, Height: ref.Height}
		if b, ok := c.blobs[side]; ok {
			p.MIMEType = b.file.ContentType
			p.Data = b.file.Data
		}
		photos = append(photos, p)
	}
	return ocr.Request{
		CardID:      c.draft.ID,
		AssetID:     c.draft.AssetID,
		Scope:       pool.ScopeFromDraft(c.draft),
		LayoutClass: c.layout.Current(c.draft),
		Regions:     c.teach.Regions(),
		Photos:      photos,
	}
}

// PoolOptions lists the pool labels of a taxonomy field, best matches for
// query first. Insert sets and parallels are scoped to the chosen product line.
func (c *Controller) PoolOptions(field models.Field, query string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !field.IsTaxonomy() || c.pool == nil {
		return nil
	}
	labels := c.pool.ScopedLabels(field, c.pool.SetIDsByName(c.draft.Optional.ProductLine))
	if query == "" {
		return labels
	}
	ranked := c.deps.Engine.Resolver.Policy.Matcher.Rank(query, labels, nil)
	out := make([]string, 0, len(ranked))
	for _, m := range ranked {
		out = append(out, m.Label)
	}
	return out
}

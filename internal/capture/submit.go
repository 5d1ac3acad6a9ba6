package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/cardledger/cardintake/internal/models"
)

// SubmitResult reports a submitted card and what the session moved on to.
type SubmitResult struct {
	CardID     string `json:"cardId"`
	AssetID    string `json:"assetId"`
	NextCardID string `json:"nextCardId"`
	FromQueue  bool   `json:"fromQueue"`
	Step       Step   `json:"step"`
}

// Submit persists the classification of the current card. Post-processing
// is best effort. The session then loads the next queued card, or starts a
// new one at the front step.
func (c *Controller) Submit(ctx context.Context) (SubmitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return SubmitResult{}, ErrClosed
	}
	if !CanTransition(c.step, StepSubmitted) {
		return SubmitResult{}, transitionError(c.step, StepSubmitted)
	}
	if err := c.guardLocked(StepSubmitted); err != nil {
		c.message = err.Error()
		return SubmitResult{}, err
	}

	d := c.draft
	photoIDs := make(map[string]string, len(models.PhotoSides))
	for _, side := range models.PhotoSides {
		ref := d.Photos.Get(side)
		if !ref.Uploaded() {
			c.message = ErrAssetNotFound.Error()
			return SubmitResult{}, fmt.Errorf("%w: %s photo was not uploaded", ErrAssetNotFound, side)
		}
		photoIDs[string(side)] = ref.PhotoID
	}
	if d.AssetID == "" {
		c.message = ErrAssetNotFound.Error()
		return SubmitResult{}, ErrAssetNotFound
	}

	if c.deps.Metadata != nil {
		err := c.deps.Metadata.UpdateClassification(ctx, Classification{
			CardID:   d.ID,
			AssetID:  d.AssetID,
			Required: d.Required,
			Optional: d.Optional,
			Photos:   photoIDs,
		})
		if err != nil {
			c.message = err.Error()
			return SubmitResult{}, fmt.Errorf("failed to save classification: %w", err)
		}
	}
	if c.deps.PostProcessor != nil {
		if err := c.deps.PostProcessor.Process(ctx, d.AssetID); err != nil {
			c.logger.Warn("Post-processing failed", "card_id", d.ID, "asset_id", d.AssetID, "error", err)
		}
	}
	c.setStepLocked(StepSubmitted)
	c.logger.Info("Card submitted", "card_id", d.ID, "asset_id", d.AssetID)

	out := SubmitResult{CardID: d.ID, AssetID: d.AssetID}
	if item, ok := c.dequeueLocked(ctx); ok {
		c.restoreLocked(ctx, item)
		out.FromQueue = true
	} else {
		c.resetCardLocked(d.Required.Category)
	}
	out.NextCardID = c.draft.ID
	out.Step = c.step
	return out, nil
}

// Defer puts the current card on the intake queue and starts a new capture.
// Every photo must be uploaded first so the queued card is complete.
func (c *Controller) Defer(ctx context.Context) (QueueItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return QueueItem{}, ErrClosed
	}
	if c.deps.Queue == nil {
		return QueueItem{}, fmt.Errorf("intake queue is not configured")
	}
	if c.step.index() < StepRequired.index() || c.step == StepSubmitted {
		return QueueItem{}, transitionError(c.step, StepFront)
	}
	if c.inflight > 0 || len(c.pending) > 0 || c.establishing {
		return QueueItem{}, ErrAssetNotReady
	}
	for _, side := range models.PhotoSides {
		if !c.draft.Photos.Get(side).Uploaded() {
			return QueueItem{}, fmt.Errorf("%w: %s photo was not uploaded", ErrAssetNotFound, side)
		}
	}

	item := QueueItem{
		CardID:     c.draft.ID,
		Draft:      c.draft.Clone(),
		Touched:    c.touchedLocked(),
		EnqueuedAt: time.Now().UTC(),
	}
	if err := c.deps.Queue.Enqueue(ctx, item); err != nil {
		return QueueItem{}, fmt.Errorf("failed to queue card: %w", err)
	}
	c.logger.Info("Card deferred to the intake queue", "card_id", item.CardID, "asset_id", item.Draft.AssetID)
	c.resetCardLocked(c.draft.Required.Category)
	return item, nil
}

// Resume swaps the current card for a queued one. The current card must not
// have any photo yet.
func (c *Controller) Resume(ctx context.Context, cardID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.deps.Queue == nil {
		return fmt.Errorf("intake queue is not configured")
	}
	if c.step != StepFront || c.draft.Photos.Front.Captured {
		return transitionError(c.step, StepRequired)
	}
	items, err := c.deps.Queue.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list intake queue: %w", err)
	}
	for _, item := range items {
		if item.CardID != cardID {
			continue
		}
		if err := c.deps.Queue.Remove(ctx, cardID); err != nil {
			return fmt.Errorf("failed to remove card from intake queue: %w", err)
		}
		c.restoreLocked(ctx, item)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotQueued, cardID)
}

func (c *Controller) dequeueLocked(ctx context.Context) (QueueItem, bool) {
	if c.deps.Queue == nil {
		return QueueItem{}, false
	}
	item, ok, err := c.deps.Queue.Dequeue(ctx)
	if err != nil {
		c.logger.Warn("Failed to read intake queue", "error", err)
		return QueueItem{}, false
	}
	return item, ok && item.Draft != nil
}

// restoreLocked loads a queued card for review at the required step.
func (c *Controller) restoreLocked(ctx context.Context, item QueueItem) {
	c.loadDraftLocked(item.Draft, item.Touched, StepRequired)
	c.refreshPoolLocked(ctx)
	c.replayLocked(ctx)
	c.logger.Info("Queued card loaded for review", "card_id", item.CardID, "asset_id", item.Draft.AssetID)
}

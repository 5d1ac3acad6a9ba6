package capture

import (
	"fmt"
	"time"

	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/upload"
)

// CapturePhoto records a photo for side and starts its upload in the
// background. Capturing the photo of the current step advances the
// workflow right away. A side already passed may be retaken.
//
// Until the card's asset id exists only one upload runs; later photos wait
// in capture order and are sent once the first upload establishes the id.
func (c *Controller) CapturePhoto(side models.PhotoSide, file upload.File, width, height int) (Step, error) {
	if !side.Valid() {
		return "", &ValidationError{Field: "side", Message: fmt.Sprintf("unknown photo side %q", side)}
	}
	if len(file.Data) == 0 {
		return "", &ValidationError{Field: string(side), Message: "photo is empty"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.step, ErrClosed
	}
	target := stepForSide(side)
	if c.step == StepSubmitted || target.index() > c.step.index() {
		return c.step, transitionError(c.step, target)
	}

	ref := c.draft.Photos.Get(side)
	*ref = models.PhotoRef{
		FileName:   file.Name,
		Width:      width,
		Height:     height,
		Captured:   true,
		CapturedAt: time.Now(),
	}
	blob := photoBlob{file: file, width: width, height: height}
	c.blobs[side] = blob

	c.logger.Info("Photo captured",
		"card_id", c.draft.ID,
		"side", side,
		"bytes", len(file.Data),
		"width", width,
		"height", height)

	if target == c.step {
		c.setStepLocked(c.step.Next())
	}
	c.uploadLocked(side, blob)
	return c.step, nil
}

func (c *Controller) uploadLocked(side models.PhotoSide, blob photoBlob) {
	if c.deps.Uploads == nil {
		return
	}
	switch {
	case c.draft.AssetID != "":
		c.startUploadLocked(side, blob, c.draft.AssetID)
	case c.establishing:
		c.pending = append(c.pending, pendingBlob{side: side, blob: blob})
		c.logger.Debug("Photo queued until the card asset exists", "card_id", c.draft.ID, "side", side)
	default:
		c.establishing = true
		c.startUploadLocked(side, blob, "")
	}
}

func (c *Controller) startUploadLocked(side models.PhotoSide, blob photoBlob, batchID string) {
	cardID := c.draft.ID
	c.inflight++
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		sub := c.deps.Uploads.Dispatch(c.ctx, batchID, []upload.File{blob.file})
		c.uploadFinished(cardID, side, batchID, sub)
	}()
}

// flushPendingLocked sends the queued photos one after another so they
// reach the photo store in capture order.
func (c *Controller) flushPendingLocked() {
	if len(c.pending) == 0 {
		return
	}
	items := c.pending
	c.pending = nil
	cardID, assetID := c.draft.ID, c.draft.AssetID
	c.inflight += len(items)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for _, p := range items {
			sub := c.deps.Uploads.Dispatch(c.ctx, assetID, []upload.File{p.blob.file})
			c.uploadFinished(cardID, p.side, assetID, sub)
		}
	}()
}

func (c *Controller) uploadFinished(cardID string, side models.PhotoSide, batchID string, sub *upload.Submission) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.draft.ID != cardID {
		c.logger.Debug("Dropped upload result for a previous card", "card_id", cardID, "side", side)
		return
	}
	c.inflight--

	var res upload.Result
	if len(sub.Results) > 0 {
		res = sub.Results[0]
	}
	recorded := res.Status == upload.StatusRecorded
	ref := c.draft.Photos.Get(side)
	if recorded {
		ref.PhotoID = res.PhotoID
		ref.UploadErr = ""
	} else {
		ref.UploadErr = res.Error
		c.message = fmt.Sprintf("%s photo upload failed: %s", side, res.Error)
	}

	if batchID == "" {
		c.establishing = false
		if recorded && sub.BatchID != "" {
			c.draft.AssetID = sub.BatchID
			c.logger.Info("Card asset established", "card_id", cardID, "asset_id", sub.BatchID)
			c.flushPendingLocked()
			if c.ocrRetry {
				c.ocrRetry = false
				c.scheduleSuggestLocked()
			}
		} else if len(c.pending) > 0 {
			next := c.pending[0]
			c.pending = c.pending[1:]
			c.establishing = true
			c.startUploadLocked(next.side, next.blob, "")
		}
	}

	if side == models.SideTilt && recorded {
		c.scheduleSuggestLocked()
	}
}

// scheduleSuggestLocked (re)starts the debounce before the automatic
// suggestion fetch.
func (c *Controller) scheduleSuggestLocked() {
	if c.deps.Engine == nil || c.closed {
		return
	}
	c.stopTimerLocked()
	cardID := c.draft.ID
	c.wg.Add(1)
	c.ocrTimer = time.AfterFunc(c.debounce, func() {
		defer c.wg.Done()
		c.autoSuggest(cardID)
	})
}

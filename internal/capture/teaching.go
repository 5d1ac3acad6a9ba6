package capture

import (
	"context"
	"fmt"
	"strings"

	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/teach"
)

// BeginDrag starts drawing a teach region on side.
func (c *Controller) BeginDrag(side models.PhotoSide, p teach.Point) error {
	if !side.Valid() {
		return &ValidationError{Field: "side", Message: fmt.Sprintf("unknown photo side %q", side)}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teach.BeginDrag(side, p)
	return nil
}

// UpdateDrag moves the active drag.
func (c *Controller) UpdateDrag(p teach.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teach.UpdateDrag(p)
}

// EndDrag finishes the active drag. Degenerate drags are dropped.
func (c *Controller) EndDrag() (teach.Region, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teach.EndDrag()
}

// BindRegion binds a region to a field. Without a field the draft's most
// specific catalog value is used; without a value the field's current value.
func (c *Controller) BindRegion(regionID string, field models.Field, value, note string) (teach.Region, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if field == "" {
		field, value = teach.DefaultBinding(c.draft)
	} else if strings.TrimSpace(value) == "" {
		value = c.draft.Get(field)
	}
	return c.teach.Bind(regionID, field, value, note)
}

// RemoveRegion deletes a working region.
func (c *Controller) RemoveRegion(regionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teach.Remove(regionID)
}

// Regions returns the working regions and their template key.
func (c *Controller) Regions() (teach.Key, teach.RegionsBySide) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teach.Key(), c.teach.Regions()
}

// SaveTemplate persists the working regions under the current set and
// layout class.
func (c *Controller) SaveTemplate(ctx context.Context) (teach.RegionsBySide, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teach.Save(ctx, c.draft.ID)
}

// ClearTemplate deletes the template of the current key.
func (c *Controller) ClearTemplate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teach.Clear(ctx)
}

// OverrideLayout pins the layout class. An empty class resumes
// auto-derivation. The template of the new key is replayed.
func (c *Controller) OverrideLayout(ctx context.Context, class string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layout.Override(c.draft, class)
	c.replayLocked(ctx)
	current := c.layout.Current(c.draft)
	c.logger.Info("Layout class set", "card_id", c.draft.ID, "layout_class", current, "overridden", c.layout.Overridden())
	return current
}

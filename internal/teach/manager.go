package teach

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cardledger/cardintake/internal/models"
)

// Manager owns the working regions of one capture session and syncs them
// with a template Store.
type Manager struct {
	store  Store
	logger *slog.Logger

	key     Key
	loaded  bool
	regions RegionsBySide
	drag    *Drag
}

// NewManager creates a manager. A nil store keeps templates local only.
func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:   store,
		logger:  logger,
		regions: make(RegionsBySide),
	}
}

// Key returns the template key the working regions belong to.
func (m *Manager) Key() Key {
	return m.key
}

// Regions returns a copy of the working regions.
func (m *Manager) Regions() RegionsBySide {
	return m.regions.Clone()
}

// BeginDrag starts drawing a region on side.
func (m *Manager) BeginDrag(side models.PhotoSide, p Point) {
	m.drag = BeginDrag(side, p)
}

// UpdateDrag moves the active drag. It is a no-op without one.
func (m *Manager) UpdateDrag(p Point) {
	if m.drag != nil {
		m.drag.Update(p)
	}
}

// EndDrag finishes the active drag and adds the region to the working set.
// Degenerate drags are discarded and report false.
func (m *Manager) EndDrag() (Region, bool) {
	if m.drag == nil {
		return Region{}, false
	}
	r, ok := m.drag.End()
	m.drag = nil
	if !ok {
		m.logger.Debug("Discarded degenerate teach region")
		return Region{}, false
	}
	m.regions[r.Side] = append(m.regions[r.Side], r)
	return r, true
}

// Bind binds a working region by id.
func (m *Manager) Bind(regionID string, field models.Field, value, note string) (Region, error) {
	for side, regions := range m.regions {
		for i, r := range regions {
			if r.ID != regionID {
				continue
			}
			bound, err := Bind(r, field, value, note)
			if err != nil {
				return Region{}, err
			}
			m.regions[side][i] = bound
			return bound, nil
		}
	}
	return Region{}, ErrRegionNotFound
}

// Remove deletes a working region by id.
func (m *Manager) Remove(regionID string) bool {
	for side, regions := range m.regions {
		for i, r := range regions {
			if r.ID == regionID {
				m.regions[side] = append(regions[:i], regions[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Save validates the working regions and persists them under the current
// key. The store's echo, re-validated, replaces the working set.
func (m *Manager) Save(ctx context.Context, cardID string) (RegionsBySide, error) {
	clean, err := Validate(m.key, m.regions)
	if err != nil {
		return nil, err
	}
	if m.store == nil {
		m.regions = clean
		return clean.Clone(), nil
	}
	echo, err := m.store.Save(ctx, cardID, m.key, clean)
	if err != nil {
		return nil, fmt.Errorf("failed to save teach template: %w", err)
	}
	m.regions = echo.Sanitize()
	m.loaded = true
	m.logger.Info("Saved teach template",
		"card_id", cardID,
		"set_id", m.key.SetID,
		"layout_class", m.key.LayoutClass,
		"regions", m.regions.Count())
	return m.regions.Clone(), nil
}

// Load fetches the template for key. Any failure yields an empty template.
func (m *Manager) Load(ctx context.Context, cardID string, key Key) RegionsBySide {
	key = m.Switch(key)
	m.Install(key, m.Fetch(ctx, cardID, key))
	return m.regions.Clone()
}

// Replay loads the template for key only when key differs from the one
// already loaded. It reports whether a load happened.
func (m *Manager) Replay(ctx context.Context, cardID string, key Key) bool {
	if !m.NeedsLoad(key) {
		return false
	}
	m.Load(ctx, cardID, key)
	return true
}

// NeedsLoad reports whether key differs from the loaded template key.
func (m *Manager) NeedsLoad(key Key) bool {
	return !m.loaded || key.Normalize() != m.key
}

// Switch makes key current with an empty working set and returns the
// normalized key. The template itself arrives through Fetch and Install.
func (m *Manager) Switch(key Key) Key {
	key = key.Normalize()
	m.key = key
	m.loaded = true
	m.drag = nil
	m.regions = make(RegionsBySide)
	return key
}

// Fetch reads the template for key from the store without touching the
// working set, so it may run without the owner's lock. Any failure yields
// an empty template.
func (m *Manager) Fetch(ctx context.Context, cardID string, key Key) RegionsBySide {
	if m.store == nil || key.SetID == "" {
		return make(RegionsBySide)
	}
	regions, err := m.store.Load(ctx, cardID, key)
	if err != nil {
		m.logger.Warn("Failed to load teach template, starting empty",
			"card_id", cardID,
			"set_id", key.SetID,
			"layout_class", key.LayoutClass,
			"error", err)
		return make(RegionsBySide)
	}
	return regions.Sanitize()
}

// Install replaces the working set with regions fetched for key. It is a
// no-op reporting false when another key became current meanwhile.
func (m *Manager) Install(key Key, regions RegionsBySide) bool {
	if !m.loaded || key != m.key {
		return false
	}
	m.regions = regions.Clone()
	return true
}

// Clear deletes the template for the current key and empties the working set.
func (m *Manager) Clear(ctx context.Context) error {
	if m.store != nil && m.key.SetID != "" {
		if err := m.store.Clear(ctx, m.key); err != nil {
			return fmt.Errorf("failed to clear teach template: %w", err)
		}
	}
	m.regions = make(RegionsBySide)
	return nil
}

// Reset forgets the key and working regions, as when a new card starts.
func (m *Manager) Reset() {
	m.key = Key{}
	m.loaded = false
	m.drag = nil
	m.regions = make(RegionsBySide)
}

package teach

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrMissingSetID is returned when saving a template without a card set.
	ErrMissingSetID = errors.New("teach template needs a set id")
	// ErrNoRegions is returned when saving a template with no bound region.
	ErrNoRegions = errors.New("teach template needs at least one bound region")
)

// Key identifies a template.
type Key struct {
	SetID       string `json:"setId" yaml:"set_id"`
	LayoutClass string `json:"layoutClass" yaml:"layout_class"`
}

// Normalize trims the key and defaults the layout class to base.
func (k Key) Normalize() Key {
	k.SetID = strings.TrimSpace(k.SetID)
	k.LayoutClass = strings.TrimSpace(k.LayoutClass)
	if k.LayoutClass == "" {
		k.LayoutClass = LayoutBase
	}
	return k
}

// Template is the persisted set of regions for one key.
type Template struct {
	Key       `yaml:",inline"`
	Regions   RegionsBySide `json:"regionsBySide" yaml:"regions"`
	UpdatedAt time.Time     `json:"updatedAt" yaml:"updated_at"`
}

// Validate checks a template before it is persisted and returns the
// sanitized regions.
func Validate(key Key, regions RegionsBySide) (RegionsBySide, error) {
	if strings.TrimSpace(key.SetID) == "" {
		return nil, ErrMissingSetID
	}
	clean := regions.Sanitize()
	if clean.Count() == 0 {
		return nil, ErrNoRegions
	}
	return clean, nil
}

// Store persists templates.
type Store interface {
	Load(ctx context.Context, cardID string, key Key) (RegionsBySide, error)
	Save(ctx context.Context, cardID string, key Key, regions RegionsBySide) (RegionsBySide, error)
	Clear(ctx context.Context, key Key) error
}

// Package teach manages operator-drawn regions that tell future OCR passes
// where on a card photo each fact is printed.
package teach

import (
	"errors"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/cardledger/cardintake/internal/models"
)

// MinRegionSize is the smallest normalized width or height a region may have.
const MinRegionSize = 0.01

const edgeTolerance = 1e-9

var (
	// ErrEmptyValue is returned when binding a region without a target value.
	ErrEmptyValue = errors.New("teach region needs a target value")
	// ErrNoField is returned when binding a region without a target field.
	ErrNoField = errors.New("teach region needs a target field")
	// ErrInvalidRegion is returned for degenerate or out-of-bounds regions.
	ErrInvalidRegion = errors.New("teach region is outside the photo or too small")
	// ErrRegionNotFound is returned when a region id is unknown.
	ErrRegionNotFound = errors.New("teach region not found")
)

// Point is a normalized photo coordinate in [0,1].
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Region is a normalized rectangle on one photo side, optionally bound to a
// draft field and the value printed inside it.
type Region struct {
	ID     string           `json:"id" yaml:"id"`
	Side   models.PhotoSide `json:"photoSide" yaml:"side"`
	X      float64          `json:"x" yaml:"x"`
	Y      float64          `json:"y" yaml:"y"`
	Width  float64          `json:"width" yaml:"width"`
	Height float64          `json:"height" yaml:"height"`
	Field  models.Field     `json:"targetField,omitempty" yaml:"field,omitempty"`
	Value  string           `json:"targetValue,omitempty" yaml:"value,omitempty"`
	Note   string           `json:"note,omitempty" yaml:"note,omitempty"`
}

// Valid reports whether r is large enough and lies within the unit square.
func (r Region) Valid() bool {
	if !r.Side.Valid() {
		return false
	}
	if r.Width < MinRegionSize || r.Height < MinRegionSize {
		return false
	}
	if r.X < 0 || r.Y < 0 {
		return false
	}
	return r.X+r.Width <= 1+edgeTolerance && r.Y+r.Height <= 1+edgeTolerance
}

// Bound reports whether r targets a field with a non-empty value.
func (r Region) Bound() bool {
	return r.Field != "" && strings.TrimSpace(r.Value) != ""
}

// Contains reports whether the normalized point lies inside r.
func (r Region) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.Width && y >= r.Y && y <= r.Y+r.Height
}

// Drag tracks a pointer drag on one photo side.
type Drag struct {
	Side    models.PhotoSide
	Start   Point
	Current Point
}

// BeginDrag starts a drag at p.
func BeginDrag(side models.PhotoSide, p Point) *Drag {
	p = clampPoint(p)
	return &Drag{Side: side, Start: p, Current: p}
}

// Update moves the drag's free corner.
func (d *Drag) Update(p Point) {
	d.Current = clampPoint(p)
}

// End finishes the drag. Degenerate rectangles are discarded and report false.
func (d *Drag) End() (Region, bool) {
	r := Region{
		ID:     uuid.NewString(),
		Side:   d.Side,
		X:      math.Min(d.Start.X, d.Current.X),
		Y:      math.Min(d.Start.Y, d.Current.Y),
		Width:  math.Abs(d.Current.X - d.Start.X),
		Height: math.Abs(d.Current.Y - d.Start.Y),
	}
	if !r.Valid() {
		return Region{}, false
	}
	return r, true
}

func clampPoint(p Point) Point {
	return Point{X: clamp01(p.X), Y: clamp01(p.Y)}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Bind attaches a target field, value and note to r.
func Bind(r Region, field models.Field, value, note string) (Region, error) {
	if !r.Valid() {
		return Region{}, ErrInvalidRegion
	}
	if field == "" {
		return Region{}, ErrNoField
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return Region{}, ErrEmptyValue
	}
	r.Field = field
	r.Value = value
	r.Note = strings.TrimSpace(note)
	return r, nil
}

// DefaultBinding suggests the field and value to bind a fresh region to: the
// draft's most specific non-empty catalog field.
func DefaultBinding(d *models.CardDraft) (models.Field, string) {
	for _, f := range []models.Field{
		models.FieldInsertSet,
		models.FieldParallel,
		models.FieldSetName,
		models.FieldCardNumber,
		d.IdentityField(),
	} {
		if v := strings.TrimSpace(d.Get(f)); v != "" {
			return f, v
		}
	}
	return d.IdentityField(), ""
}

// RegionsBySide groups regions by photo side.
type RegionsBySide map[models.PhotoSide][]Region

// Count returns the total number of regions.
func (rs RegionsBySide) Count() int {
	n := 0
	for _, regions := range rs {
		n += len(regions)
	}
	return n
}

// Clone deep-copies rs.
func (rs RegionsBySide) Clone() RegionsBySide {
	out := make(RegionsBySide, len(rs))
	for side, regions := range rs {
		out[side] = append([]Region(nil), regions...)
	}
	return out
}

// Sanitize keeps only valid, bound regions on known sides, forcing each
// region's side to match its key.
func (rs RegionsBySide) Sanitize() RegionsBySide {
	out := make(RegionsBySide)
	for _, side := range models.PhotoSides {
		for _, r := range rs[side] {
			r.Side = side
			if !r.Valid() || !r.Bound() {
				continue
			}
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			out[side] = append(out[side], r)
		}
	}
	return out
}

// ForField returns bound regions targeting field across all sides.
func (rs RegionsBySide) ForField(field models.Field) []Region {
	var out []Region
	for _, side := range models.PhotoSides {
		for _, r := range rs[side] {
			if r.Field == field {
				out = append(out, r)
			}
		}
	}
	return out
}

// Package pool loads the approved catalog options (product sets, insert sets,
// parallels) for a year/manufacturer/sport/product-line scope.
package pool

import (
	"context"
	"errors"
	"strings"

	"github.com/cardledger/cardintake/internal/models"
)

// ErrNoScope is returned when the scope lacks the keys a pool query needs.
var ErrNoScope = errors.New("option pool scope is incomplete")

// Scope keys an option pool query.
type Scope struct {
	Year         string `json:"year,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Sport        string `json:"sport,omitempty"`
	ProductLine  string `json:"productLine,omitempty"`
}

// ScopeFromDraft reads the scope keys of a draft.
func ScopeFromDraft(d *models.CardDraft) Scope {
	return Scope{
		Year:         strings.TrimSpace(d.Required.Year),
		Manufacturer: strings.TrimSpace(d.Required.Manufacturer),
		Sport:        strings.TrimSpace(d.Get(d.DisciplineField())),
		ProductLine:  strings.TrimSpace(d.Optional.ProductLine),
	}
}

// Complete reports whether year and manufacturer are both known.
func (s Scope) Complete() bool {
	return strings.TrimSpace(s.Year) != "" && strings.TrimSpace(s.Manufacturer) != ""
}

// Key is a stable, case-insensitive cache key.
func (s Scope) Key() string {
	parts := []string{s.Year, s.Manufacturer, s.Sport, s.ProductLine}
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, "|")
}

// ProductSet is one approved product set (product line) in scope.
type ProductSet struct {
	ID   string `json:"id" parquet:"set_id"`
	Name string `json:"name" parquet:"set_name"`
}

// Option is an approved insert-set or parallel label.
type Option struct {
	Label  string   `json:"label"`
	SetIDs []string `json:"setIds"`
	Count  int      `json:"count"`
}

// Summary describes the size of the scope.
type Summary struct {
	ApprovedSetCount int `json:"approvedSetCount"`
	VariantCount     int `json:"variantCount"`
}

// Pool is the immutable result of one scope query.
type Pool struct {
	Scope           Scope        `json:"scope"`
	ProductSets     []ProductSet `json:"approvedProductSets"`
	InsertOptions   []Option     `json:"insertOptions"`
	ParallelOptions []Option     `json:"parallelOptions"`
	Summary         Summary      `json:"scopeSummary"`
}

// Provider fetches the option pool for a scope.
type Provider interface {
	Fetch(ctx context.Context, scope Scope) (*Pool, error)
}

// Labels returns the candidate labels for a taxonomy field in pool order.
func (p *Pool) Labels(field models.Field) []string {
	if p == nil {
		return nil
	}
	switch field {
	case models.FieldSetName:
		out := make([]string, 0, len(p.ProductSets))
		for _, s := range p.ProductSets {
			out = append(out, s.Name)
		}
		return out
	case models.FieldInsertSet:
		return optionLabels(p.InsertOptions)
	case models.FieldParallel:
		return optionLabels(p.ParallelOptions)
	}
	return nil
}

// SetIDsByName returns the ids of product sets whose name equals name, ignoring case.
func (p *Pool) SetIDsByName(name string) []string {
	if p == nil || strings.TrimSpace(name) == "" {
		return nil
	}
	var ids []string
	for _, s := range p.ProductSets {
		if strings.EqualFold(strings.TrimSpace(s.Name), strings.TrimSpace(name)) {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// ScopedLabels returns the labels of field restricted to options that belong
// to one of setIDs. When no option belongs to those sets the full list is
// returned, so an unknown set never empties the pool.
func (p *Pool) ScopedLabels(field models.Field, setIDs []string) []string {
	if p == nil {
		return nil
	}
	var opts []Option
	switch field {
	case models.FieldInsertSet:
		opts = p.InsertOptions
	case models.FieldParallel:
		opts = p.ParallelOptions
	default:
		return p.Labels(field)
	}
	if len(setIDs) == 0 {
		return optionLabels(opts)
	}
	want := make(map[string]struct{}, len(setIDs))
	for _, id := range setIDs {
		want[id] = struct{}{}
	}
	var scoped []Option
	for _, o := range opts {
		for _, id := range o.SetIDs {
			if _, ok := want[id]; ok {
				scoped = append(scoped, o)
				break
			}
		}
	}
	if len(scoped) == 0 {
		return optionLabels(opts)
	}
	return optionLabels(scoped)
}

func optionLabels(opts []Option) []string {
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		out = append(out, o.Label)
	}
	return out
}

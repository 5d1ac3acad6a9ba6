// Package suggest decides which OCR field values may auto-fill a card draft
// and applies them with a non-destructive undo.
//
// Free-text fields fill only when the operator has not touched them and they
// are empty. Taxonomy fields (setName, insertSet, parallel) additionally need
// confidence above a fixed floor and a match in the current option pool; when
// they are withheld the reason is reported as a TaxonomyStatus.
package suggest

import (
	"math"
	"strings"

	"github.com/cardledger/cardintake/internal/matcher"
	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/pool"
)

// Mode selects the confidence pass.
type Mode string

const (
	// ModeHigh trusts the backend's own best-guess filtering: presence is enough.
	ModeHigh Mode = "high"
	// ModeLow is the explicit low-confidence retry.
	ModeLow Mode = "low"
)

// Provenance tags where a suggested value came from.
type Provenance string

const (
	ProvenanceHigh Provenance = "ocr-high"
	ProvenanceLow  Provenance = "ocr-low"
	ProvenancePool Provenance = "pool-matched"
)

// TaxonomyStatus explains what happened to a taxonomy field.
type TaxonomyStatus string

const (
	StatusKept                 TaxonomyStatus = "kept"
	StatusClearedLowConfidence TaxonomyStatus = "cleared_low_confidence"
	StatusClearedOutOfPool     TaxonomyStatus = "cleared_out_of_pool"
	StatusClearedNoSetScope    TaxonomyStatus = "cleared_no_set_scope"
)

// Policy holds the confidence thresholds and matcher weights.
type Policy struct {
	Matcher        matcher.Policy `toml:"matcher" yaml:"matcher"`
	HighConfidence float64        `toml:"high_confidence" yaml:"high_confidence"`
	LowConfidence  float64        `toml:"low_confidence" yaml:"low_confidence"`
	TaxonomyFloor  float64        `toml:"taxonomy_floor" yaml:"taxonomy_floor"`
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		Matcher:        matcher.DefaultPolicy(),
		HighConfidence: 0,
		LowConfidence:  0.5,
		TaxonomyFloor:  0.8,
	}
}

// threshold returns the caller-side minimum confidence of a mode.
func (p Policy) threshold(mode Mode) float64 {
	if mode == ModeLow {
		return p.LowConfidence
	}
	return p.HighConfidence
}

// Suggestion is a proposed value for one draft field.
type Suggestion struct {
	Field      models.Field `json:"field"`
	Value      string       `json:"value"`
	Raw        string       `json:"raw,omitempty"`
	Confidence float64      `json:"confidence"`
	Provenance Provenance   `json:"provenance"`
}

// Input is everything Resolve looks at.
type Input struct {
	Fields     map[models.Field]string
	Confidence map[models.Field]float64
	Draft      *models.CardDraft
	Pool       *pool.Pool
	Touched    map[models.Field]bool
	Mode       Mode
	Hints      []string
}

// Result is the outcome of one resolution.
type Result struct {
	Suggestions    []Suggestion                    `json:"suggestions"`
	TaxonomyStatus map[models.Field]TaxonomyStatus `json:"taxonomyStatus"`
}

// Get returns the suggestion for field, if any.
func (r Result) Get(field models.Field) (Suggestion, bool) {
	for _, s := range r.Suggestions {
		if s.Field == field {
			return s, true
		}
	}
	return Suggestion{}, false
}

// freeTextFields are resolved on presence/confidence alone, in this order.
var freeTextFields = []models.Field{
	models.FieldPlayerName,
	models.FieldCardName,
	models.FieldSport,
	models.FieldGame,
	models.FieldManufacturer,
	models.FieldYear,
	models.FieldTeamName,
	models.FieldCardNumber,
	models.FieldNumbered,
	models.FieldGradeCompany,
	models.FieldGradeValue,
	models.FieldTCGSeries,
	models.FieldRarity,
	models.FieldLanguage,
}

// Resolver applies a Policy to OCR output.
type Resolver struct {
	Policy Policy
}

// NewResolver creates a resolver
func NewResolver(policy Policy) *Resolver {
	return &Resolver{Policy: policy}
}

// Resolve computes the suggestions and taxonomy statuses for in.
func (r *Resolver) Resolve(in Input) Result {
	res := Result{TaxonomyStatus: make(map[models.Field]TaxonomyStatus, len(models.TaxonomyFields))}
	if in.Mode == "" {
		in.Mode = ModeHigh
	}
	provenance := ProvenanceHigh
	if in.Mode == ModeLow {
		provenance = ProvenanceLow
	}

	for _, f := range freeTextFields {
		if !appliesTo(in.Draft, f) {
			continue
		}
		raw := strings.TrimSpace(in.Fields[f])
		if raw == "" || !r.fillable(in, f) {
			continue
		}
		conf, known := in.Confidence[f]
		if in.Mode == ModeLow && (!known || conf < r.Policy.LowConfidence) {
			continue
		}
		res.Suggestions = append(res.Suggestions, Suggestion{
			Field:      f,
			Value:      raw,
			Raw:        raw,
			Confidence: conf,
			Provenance: provenance,
		})
	}

	minTaxonomy := math.Max(r.Policy.threshold(in.Mode), r.Policy.TaxonomyFloor)

	setIDs := in.Pool.SetIDsByName(in.Draft.Optional.ProductLine)
	for _, f := range models.TaxonomyFields {
		status, s, ok := r.resolveTaxonomy(in, f, minTaxonomy, setIDs)
		res.TaxonomyStatus[f] = status
		if !ok {
			continue
		}
		res.Suggestions = append(res.Suggestions, s)
		if f == models.FieldSetName {
			setIDs = in.Pool.SetIDsByName(s.Value)
		}
	}

	return res
}

func (r *Resolver) resolveTaxonomy(in Input, f models.Field, minConf float64, setIDs []string) (TaxonomyStatus, Suggestion, bool) {
	raw := strings.TrimSpace(in.Fields[f])
	if raw == "" {
		if f == models.FieldSetName {
			if s, ok := r.inferProductLine(in); ok {
				return StatusKept, s, true
			}
		}
		return StatusKept, Suggestion{}, false
	}

	conf, known := in.Confidence[f]
	if !known || conf < minConf {
		return StatusClearedLowConfidence, Suggestion{}, false
	}
	if in.Pool == nil {
		return StatusClearedNoSetScope, Suggestion{}, false
	}

	var labels []string
	minScore := r.Policy.Matcher.VariantMinScore
	hints := in.Hints
	if f == models.FieldSetName {
		labels = in.Pool.Labels(f)
		minScore = r.Policy.Matcher.CatalogMinScore
		hints = matcher.ActionableHints(in.Hints)
	} else {
		labels = in.Pool.ScopedLabels(f, setIDs)
	}

	label, ok := r.Policy.Matcher.ApplyMatch(raw, labels, hints, minScore)
	if !ok {
		return StatusClearedOutOfPool, Suggestion{}, false
	}
	if !r.fillable(in, f) {
		return StatusKept, Suggestion{}, false
	}
	return StatusKept, Suggestion{
		Field:      f,
		Value:      label,
		Raw:        raw,
		Confidence: conf,
		Provenance: ProvenancePool,
	}, true
}

// inferProductLine picks a product line from actionable hints alone. It
// needs the strict score, so a lone generic word never selects a set.
func (r *Resolver) inferProductLine(in Input) (Suggestion, bool) {
	if in.Pool == nil || !r.fillable(in, models.FieldSetName) {
		return Suggestion{}, false
	}
	labels := in.Pool.Labels(models.FieldSetName)
	for _, hint := range matcher.ActionableHints(in.Hints) {
		m, ok := r.Policy.Matcher.ScoreOption(hint, labels, nil)
		if !ok || m.Score < r.Policy.Matcher.StrictMinScore {
			continue
		}
		return Suggestion{
			Field:      models.FieldSetName,
			Value:      m.Label,
			Raw:        hint,
			Provenance: ProvenancePool,
		}, true
	}
	return Suggestion{}, false
}

// fillable reports whether f is untouched and currently empty.
func (r *Resolver) fillable(in Input, f models.Field) bool {
	if in.Touched[f] {
		return false
	}
	return strings.TrimSpace(in.Draft.Get(f)) == ""
}

// appliesTo filters identity and discipline fields by category.
func appliesTo(d *models.CardDraft, f models.Field) bool {
	tcg := d.Required.Category == models.CategoryTCG
	switch f {
	case models.FieldPlayerName, models.FieldSport:
		return !tcg
	case models.FieldCardName, models.FieldGame, models.FieldTCGSeries:
		return tcg
	}
	return true
}

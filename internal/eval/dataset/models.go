package dataset

import (
	"strings"

	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/pool"
)

// Sample is one labeled intake: what the operator had entered, what the OCR
// backend read off the photos, the option pool in effect and the values a
// reviewer confirmed.
type Sample struct {
	ID       string `json:"id" parquet:"id"`
	Category string `json:"category" parquet:"category"`

	// Values present on the draft before suggestions ran
	Draft   []FieldValue `json:"draft" parquet:"draft,list"`
	Touched []string     `json:"touched" parquet:"touched,list"`

	// OCR output
	Readings []Reading `json:"readings" parquet:"readings,list"`
	Hints    []string  `json:"hints" parquet:"hints,list"`

	// Approved pool for the draft's scope
	Sets      []PoolSet   `json:"sets" parquet:"sets,list"`
	Inserts   []PoolLabel `json:"inserts" parquet:"inserts,list"`
	Parallels []PoolLabel `json:"parallels" parquet:"parallels,list"`

	// Reviewer-confirmed values (ground truth)
	Truth []FieldValue `json:"truth" parquet:"truth,list"`
}

// FieldValue is a field name and its value
type FieldValue struct {
	Field string `json:"field" parquet:"field"`
	Value string `json:"value" parquet:"value"`
}

// Reading is one OCR field value with its confidence
type Reading struct {
	Field      string  `json:"field" parquet:"field"`
	Value      string  `json:"value" parquet:"value"`
	Confidence float64 `json:"confidence" parquet:"confidence"`
}

// PoolSet is an approved product set
type PoolSet struct {
	ID   string `json:"id" parquet:"id"`
	Name string `json:"name" parquet:"name"`
}

// PoolLabel is an insert or parallel label with the sets carrying it
type PoolLabel struct {
	Label  string   `json:"label" parquet:"label"`
	SetIDs []string `json:"setIds" parquet:"set_ids,list"`
}

// NewDraft builds the card draft as it stood when suggestions ran.
func (s *Sample) NewDraft() *models.CardDraft {
	draft := models.NewCardDraft(s.ID)
	if models.Category(s.Category) == models.CategoryTCG {
		draft.Required.Category = models.CategoryTCG
	}
	for _, fv := range s.Draft {
		draft.Set(models.Field(fv.Field), fv.Value)
	}
	return draft
}

// TouchedFields returns the operator-touched set.
func (s *Sample) TouchedFields() map[models.Field]bool {
	touched := make(map[models.Field]bool, len(s.Touched))
	for _, f := range s.Touched {
		touched[models.Field(f)] = true
	}
	return touched
}

// OCR splits the readings into the value and confidence maps the resolver
// consumes. Later readings of the same field win.
func (s *Sample) OCR() (map[models.Field]string, map[models.Field]float64) {
	fields := make(map[models.Field]string, len(s.Readings))
	confidence := make(map[models.Field]float64, len(s.Readings))
	for _, r := range s.Readings {
		f := models.Field(r.Field)
		fields[f] = r.Value
		confidence[f] = r.Confidence
	}
	return fields, confidence
}

// Pool returns the option pool, or nil when the sample has no approved sets.
func (s *Sample) Pool() *pool.Pool {
	if len(s.Sets) == 0 {
		return nil
	}
	draft := s.NewDraft()
	p := &pool.Pool{Scope: pool.ScopeFromDraft(draft)}
	for _, set := range s.Sets {
		p.ProductSets = append(p.ProductSets, pool.ProductSet{ID: set.ID, Name: set.Name})
	}
	p.InsertOptions = toOptions(s.Inserts)
	p.ParallelOptions = toOptions(s.Parallels)
	p.Summary = pool.Summary{
		ApprovedSetCount: len(p.ProductSets),
		VariantCount:     len(p.InsertOptions) + len(p.ParallelOptions),
	}
	return p
}

func toOptions(labels []PoolLabel) []pool.Option {
	opts := make([]pool.Option, 0, len(labels))
	for _, l := range labels {
		opts = append(opts, pool.Option{Label: l.Label, SetIDs: l.SetIDs, Count: len(l.SetIDs)})
	}
	return opts
}

// Expected returns the confirmed value of field. An absent or blank truth
// means the field should stay empty.
func (s *Sample) Expected(field models.Field) string {
	for _, fv := range s.Truth {
		if models.Field(fv.Field) == field {
			return strings.TrimSpace(fv.Value)
		}
	}
	return ""
}

// HasTruth reports whether the reviewer recorded a value for field.
func (s *Sample) HasTruth(field models.Field) bool {
	for _, fv := range s.Truth {
		if models.Field(fv.Field) == field {
			return true
		}
	}
	return false
}

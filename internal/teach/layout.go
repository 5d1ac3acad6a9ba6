package teach

import (
	"strings"

	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/textnorm"
)

// Built-in layout classes
const (
	LayoutBase      = "base"
	LayoutAutograph = "autograph"
)

// DeriveLayoutClass computes the layout class from the draft's optional fields.
func DeriveLayoutClass(d *models.CardDraft) string {
	if slug := textnorm.Slug(d.Optional.InsertSet); slug != "" {
		return "insert_" + slug
	}
	if slug := textnorm.Slug(d.Optional.Parallel); slug != "" {
		return "parallel_" + slug
	}
	if d.Optional.Autograph {
		return LayoutAutograph
	}
	return LayoutBase
}

// dependsOnLayout reports whether field feeds DeriveLayoutClass.
func dependsOnLayout(field models.Field) bool {
	switch field {
	case models.FieldInsertSet, models.FieldParallel, models.FieldAutograph:
		return true
	}
	return false
}

// LayoutTracker holds an operator override of the derived layout class.
// Clearing dependent fields keeps the override; an edit that derives a new
// non-base class releases it and auto-derivation resumes.
type LayoutTracker struct {
	override string
	anchor   string
}

// Current returns the effective layout class for d.
func (t *LayoutTracker) Current(d *models.CardDraft) string {
	if t.override != "" {
		return t.override
	}
	return DeriveLayoutClass(d)
}

// Override pins the layout class for d. An empty class resumes auto-derivation.
func (t *LayoutTracker) Override(d *models.CardDraft, class string) {
	t.override = strings.TrimSpace(class)
	t.anchor = DeriveLayoutClass(d)
}

// Overridden reports whether an operator override is active.
func (t *LayoutTracker) Overridden() bool {
	return t.override != ""
}

// Observe records a change of field on d and reports whether it released
// the override.
func (t *LayoutTracker) Observe(d *models.CardDraft, field models.Field) bool {
	if t.override == "" || !dependsOnLayout(field) {
		return false
	}
	derived := DeriveLayoutClass(d)
	if derived == LayoutBase || derived == t.anchor {
		return false
	}
	t.override = ""
	t.anchor = ""
	return true
}

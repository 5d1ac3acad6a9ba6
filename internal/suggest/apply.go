package suggest

import (
	"sort"

	"github.com/cardledger/cardintake/internal/models"
)

// ApplyState remembers what applying suggestions changed so it can be undone.
// The backup is taken on the first apply and kept until Undo.
type ApplyState struct {
	backup  *models.CardDraft
	applied map[models.Field]string
}

// Applied reports whether any field is currently applied.
func (s *ApplyState) Applied() bool {
	return len(s.applied) > 0
}

// Fields returns the applied field names in sorted order.
func (s *ApplyState) Fields() []models.Field {
	out := make([]models.Field, 0, len(s.applied))
	for f := range s.applied {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Apply writes suggestions into d and returns the fields it overwrote.
// Suggestions equal to the current value are skipped.
func (s *ApplyState) Apply(d *models.CardDraft, suggestions []Suggestion) []models.Field {
	var snapshot *models.CardDraft
	if s.backup == nil {
		snapshot = d.Clone()
	}
	if s.applied == nil {
		s.applied = make(map[models.Field]string)
	}
	var changed []models.Field
	for _, sg := range suggestions {
		if d.Get(sg.Field) == sg.Value {
			continue
		}
		if !d.Set(sg.Field, sg.Value) {
			continue
		}
		// booleans normalize on Set, so remember what Get now returns
		s.applied[sg.Field] = d.Get(sg.Field)
		changed = append(changed, sg.Field)
	}
	if snapshot != nil && len(changed) > 0 {
		s.backup = snapshot
	}
	return changed
}

// Undo restores the backup value of every applied field whose current value
// still equals what was applied. Fields edited since are left alone.
func (s *ApplyState) Undo(d *models.CardDraft) []models.Field {
	var restored []models.Field
	for _, f := range s.Fields() {
		if d.Get(f) != s.applied[f] {
			continue
		}
		d.Set(f, s.backup.Get(f))
		restored = append(restored, f)
	}
	s.Reset()
	return restored
}

// Reset forgets the backup without touching any draft.
func (s *ApplyState) Reset() {
	s.backup = nil
	s.applied = nil
}

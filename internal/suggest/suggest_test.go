package suggest

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/ocr"
	"github.com/cardledger/cardintake/internal/pool"
)

func insertPool(labels ...string) *pool.Pool {
	p := &pool.Pool{}
	for _, l := range labels {
		p.InsertOptions = append(p.InsertOptions, pool.Option{Label: l, SetIDs: []string{"s1"}})
	}
	return p
}

func TestTaxonomyConfidenceFloor(t *testing.T) {
	r := NewResolver(DefaultPolicy())
	lenient := DefaultPolicy()
	lenient.LowConfidence = 0.1
	lenientResolver := NewResolver(lenient)

	for _, conf := range []float64{0, 0.3, 0.5, 0.79, 0.7999} {
		for _, mode := range []Mode{ModeHigh, ModeLow} {
			for _, res := range []*Resolver{r, lenientResolver} {
				out := res.Resolve(Input{
					Fields:     map[models.Field]string{models.FieldInsertSet: "No Limit"},
					Confidence: map[models.Field]float64{models.FieldInsertSet: conf},
					Draft:      models.NewCardDraft("c1"),
					Pool:       insertPool("No Limit", "Elite"),
					Mode:       mode,
				})
				if _, ok := out.Get(models.FieldInsertSet); ok {
					t.Errorf("Expected no insertSet suggestion at confidence %v mode %s", conf, mode)
				}
				if got := out.TaxonomyStatus[models.FieldInsertSet]; got != StatusClearedLowConfidence {
					t.Errorf("Expected %s at confidence %v, got %s", StatusClearedLowConfidence, conf, got)
				}
			}
		}
	}
}

func TestResolveTaxonomyStatuses(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		conf     float64
		pool     *pool.Pool
		status   TaxonomyStatus
		expected string
	}{
		{"kept and matched", "no limit", 0.9, insertPool("No Limit", "Elite"), StatusKept, "No Limit"},
		{"no pool", "No Limit", 0.9, nil, StatusClearedNoSetScope, ""},
		{"not in pool", "Kaboom", 0.9, insertPool("No Limit", "Elite"), StatusClearedOutOfPool, ""},
		{"empty raw text", "", 0, insertPool("No Limit"), StatusKept, ""},
	}

	r := NewResolver(DefaultPolicy())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Resolve(Input{
				Fields:     map[models.Field]string{models.FieldInsertSet: tt.raw},
				Confidence: map[models.Field]float64{models.FieldInsertSet: tt.conf},
				Draft:      models.NewCardDraft("c1"),
				Pool:       tt.pool,
			})
			if got := out.TaxonomyStatus[models.FieldInsertSet]; got != tt.status {
				t.Errorf("Expected status %s, got %s", tt.status, got)
			}
			s, ok := out.Get(models.FieldInsertSet)
			if tt.expected == "" {
				if ok {
					t.Errorf("Expected no suggestion, got %+v", s)
				}
				return
			}
			if !ok || s.Value != tt.expected || s.Provenance != ProvenancePool {
				t.Errorf("Expected pool-matched %q, got %+v", tt.expected, s)
			}
		})
	}

	out := r.Resolve(Input{Draft: models.NewCardDraft("c1")})
	for _, f := range models.TaxonomyFields {
		if _, ok := out.TaxonomyStatus[f]; !ok {
			t.Errorf("Expected a status for %s even without input", f)
		}
	}
}

func TestResolveFreeTextFields(t *testing.T) {
	r := NewResolver(DefaultPolicy())
	d := models.NewCardDraft("c1")
	d.Required.Manufacturer = "Topps"

	fields := map[models.Field]string{
		models.FieldYear:         "2021",
		models.FieldManufacturer: "Panini",
		models.FieldPlayerName:   "LaMelo Ball",
		models.FieldCardName:     "Pikachu",
		models.FieldTeamName:     "Hornets",
	}
	conf := map[models.Field]float64{
		models.FieldYear:       0.4,
		models.FieldPlayerName: 0.6,
	}

	high := r.Resolve(Input{
		Fields:     fields,
		Confidence: conf,
		Draft:      d,
		Touched:    map[models.Field]bool{models.FieldTeamName: true},
		Mode:       ModeHigh,
	})
	if s, ok := high.Get(models.FieldYear); !ok || s.Provenance != ProvenanceHigh {
		t.Errorf("Expected high pass to fill year on presence, got %+v", s)
	}
	if _, ok := high.Get(models.FieldManufacturer); ok {
		t.Error("Expected non-empty manufacturer not to be overwritten")
	}
	if _, ok := high.Get(models.FieldTeamName); ok {
		t.Error("Expected touched teamName not to be filled")
	}
	if _, ok := high.Get(models.FieldCardName); ok {
		t.Error("Expected cardName to be skipped for a sports card")
	}

	low := r.Resolve(Input{Fields: fields, Confidence: conf, Draft: d, Mode: ModeLow})
	if _, ok := low.Get(models.FieldYear); ok {
		t.Error("Expected year below 0.5 to be withheld in low pass")
	}
	if s, ok := low.Get(models.FieldPlayerName); !ok || s.Provenance != ProvenanceLow {
		t.Errorf("Expected ocr-low playerName, got %+v", s)
	}
	if _, ok := low.Get(models.FieldTeamName); ok {
		t.Error("Expected teamName without confidence to be withheld in low pass")
	}
}

func TestResolveScopesVariantsToProductSet(t *testing.T) {
	p := &pool.Pool{
		ProductSets: []pool.ProductSet{{ID: "s1", Name: "Prizm"}, {ID: "s2", Name: "Select"}},
		ParallelOptions: []pool.Option{
			{Label: "Silver Wave", SetIDs: []string{"s2"}},
			{Label: "Silver", SetIDs: []string{"s1"}},
		},
	}
	r := NewResolver(DefaultPolicy())
	out := r.Resolve(Input{
		Fields:     map[models.Field]string{models.FieldSetName: "Prizm", models.FieldParallel: "Silver"},
		Confidence: map[models.Field]float64{models.FieldSetName: 0.95, models.FieldParallel: 0.9},
		Draft:      models.NewCardDraft("c1"),
		Pool:       p,
	})
	if s, _ := out.Get(models.FieldSetName); s.Value != "Prizm" {
		t.Errorf("Expected setName Prizm, got %+v", s)
	}
	if s, _ := out.Get(models.FieldParallel); s.Value != "Silver" {
		t.Errorf("Expected parallel scoped to Prizm, got %+v", s)
	}
}

func TestInferProductLineFromHints(t *testing.T) {
	p := &pool.Pool{ProductSets: []pool.ProductSet{{ID: "s1", Name: "Topps Chrome"}, {ID: "s2", Name: "Topps"}, {ID: "s3", Name: "Prizm"}}}
	r := NewResolver(DefaultPolicy())

	generic := r.Resolve(Input{Draft: models.NewCardDraft("c1"), Pool: p, Hints: []string{"Topps"}})
	if _, ok := generic.Get(models.FieldSetName); ok {
		t.Error("Expected a bare generic hint not to pick a product line")
	}

	specific := r.Resolve(Input{Draft: models.NewCardDraft("c1"), Pool: p, Hints: []string{"Prizm"}})
	if s, ok := specific.Get(models.FieldSetName); !ok || s.Value != "Prizm" {
		t.Errorf("Expected Prizm from actionable hint, got %+v", s)
	}
}

type fakeAdapter struct {
	responses []*ocr.Response
	errs      []error
	calls     int
	lastReq   ocr.Request
}

func (f *fakeAdapter) Suggest(ctx context.Context, req ocr.Request) (*ocr.Response, error) {
	i := f.calls
	f.calls++
	f.lastReq = req
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

func newTestEngine(adapter ocr.Adapter) *Engine {
	poller := NewPoller(adapter)
	poller.Delay = 0
	return NewEngine(NewResolver(DefaultPolicy()), poller, nil)
}

func scenarioResponse() *ocr.Response {
	return &ocr.Response{
		Status: ocr.StatusReady,
		Fields: map[models.Field]string{
			models.FieldYear:         "2021",
			models.FieldManufacturer: "Panini",
			models.FieldInsertSet:    "No Limit",
		},
		Confidence: map[models.Field]float64{
			models.FieldYear:         0.95,
			models.FieldManufacturer: 0.9,
			models.FieldInsertSet:    0.82,
		},
	}
}

func TestEndToEndScenario(t *testing.T) {
	adapter := &fakeAdapter{responses: []*ocr.Response{scenarioResponse()}}
	e := newTestEngine(adapter)
	sess := NewSession("c1")
	d := models.NewCardDraft("c1")

	res := e.Toggle(context.Background(), sess, Target{Draft: d, Pool: insertPool("No Limit", "Elite")}, ocr.Request{CardID: "c1"})
	if res.Action != ActionApplied {
		t.Fatalf("Expected applied, got %s (%v)", res.Action, res.Err)
	}
	if d.Required.Year != "2021" || d.Required.Manufacturer != "Panini" {
		t.Errorf("Expected year/manufacturer filled, got %+v", d.Required)
	}
	if d.Optional.InsertSet != "No Limit" {
		t.Errorf("Expected insertSet No Limit, got %q", d.Optional.InsertSet)
	}
	if got := res.Result.TaxonomyStatus[models.FieldInsertSet]; got != StatusKept {
		t.Errorf("Expected insertSet kept, got %s", got)
	}
	if st := sess.Status(); st.State != StateReady || len(st.Applied) != 3 {
		t.Errorf("Expected ready with 3 applied fields, got %+v", st)
	}
}

func TestUnknownPoolScenario(t *testing.T) {
	adapter := &fakeAdapter{responses: []*ocr.Response{scenarioResponse()}}
	e := newTestEngine(adapter)
	sess := NewSession("c1")
	d := models.NewCardDraft("c1")

	res := e.Toggle(context.Background(), sess, Target{Draft: d, Pool: nil}, ocr.Request{CardID: "c1"})
	if res.Action != ActionApplied {
		t.Fatalf("Expected applied, got %s", res.Action)
	}
	if d.Optional.InsertSet != "" {
		t.Errorf("Expected insertSet to stay empty, got %q", d.Optional.InsertSet)
	}
	if got := res.Result.TaxonomyStatus[models.FieldInsertSet]; got != StatusClearedNoSetScope {
		t.Errorf("Expected %s, got %s", StatusClearedNoSetScope, got)
	}
}

func TestToggleIsIdempotent(t *testing.T) {
	adapter := &fakeAdapter{responses: []*ocr.Response{scenarioResponse()}}
	e := newTestEngine(adapter)
	sess := NewSession("c1")
	d := models.NewCardDraft("c1")
	d.Required.PlayerName = "LaMelo Ball"
	d.Optional.CardNumber = "278"
	before := d.Clone()

	target := Target{Draft: d, Pool: insertPool("No Limit")}
	req := ocr.Request{CardID: "c1"}

	if res := e.Toggle(context.Background(), sess, target, req); res.Action != ActionApplied {
		t.Fatalf("Expected applied, got %s", res.Action)
	}
	if res := e.Toggle(context.Background(), sess, target, req); res.Action != ActionUndone {
		t.Fatalf("Expected undone, got %s", res.Action)
	}
	if !reflect.DeepEqual(d.Required, before.Required) || !reflect.DeepEqual(d.Optional, before.Optional) {
		t.Errorf("Expected exact pre-apply values, got %+v / %+v", d.Required, d.Optional)
	}

	if res := e.Toggle(context.Background(), sess, target, req); res.Action != ActionApplied {
		t.Fatalf("Expected re-apply, got %s", res.Action)
	}
	if adapter.calls != 1 {
		t.Errorf("Expected a single backend fetch, got %d", adapter.calls)
	}
}

func TestUndoIsNonDestructive(t *testing.T) {
	var state ApplyState
	d := models.NewCardDraft("c1")

	changed := state.Apply(d, []Suggestion{
		{Field: models.FieldInsertSet, Value: "Prizm", Provenance: ProvenancePool},
		{Field: models.FieldYear, Value: "2021", Provenance: ProvenanceHigh},
	})
	if len(changed) != 2 {
		t.Fatalf("Expected 2 changed fields, got %v", changed)
	}

	d.Optional.InsertSet = "Prizm Draft"
	restored := state.Undo(d)

	if d.Optional.InsertSet != "Prizm Draft" {
		t.Errorf("Expected operator edit to survive undo, got %q", d.Optional.InsertSet)
	}
	if d.Required.Year != "" {
		t.Errorf("Expected year restored to empty, got %q", d.Required.Year)
	}
	if !reflect.DeepEqual(restored, []models.Field{models.FieldYear}) {
		t.Errorf("Expected only year restored, got %v", restored)
	}
	if state.Applied() {
		t.Error("Expected apply state to be cleared after undo")
	}
}

func TestApplyKeepsFirstBackup(t *testing.T) {
	var state ApplyState
	d := models.NewCardDraft("c1")

	state.Apply(d, []Suggestion{{Field: models.FieldYear, Value: "2021"}})
	state.Apply(d, []Suggestion{{Field: models.FieldTeamName, Value: "Hornets"}, {Field: models.FieldYear, Value: "2021"}})
	state.Undo(d)

	if d.Required.Year != "" || d.Optional.TeamName != "" {
		t.Errorf("Expected both applies undone against the first backup, got %+v %+v", d.Required, d.Optional)
	}
}

func TestLowConfidenceOfferedOnce(t *testing.T) {
	weak := &ocr.Response{
		Status:     ocr.StatusEmpty,
		Fields:     map[models.Field]string{},
		Confidence: map[models.Field]float64{},
	}
	low := &ocr.Response{
		Status:     ocr.StatusReady,
		Fields:     map[models.Field]string{models.FieldYear: "2021", models.FieldInsertSet: "No Limit"},
		Confidence: map[models.Field]float64{models.FieldYear: 0.6, models.FieldInsertSet: 0.6},
	}
	adapter := &fakeAdapter{responses: []*ocr.Response{weak, low}}
	e := newTestEngine(adapter)
	sess := NewSession("c1")
	d := models.NewCardDraft("c1")
	target := Target{Draft: d, Pool: insertPool("No Limit")}

	first := e.Toggle(context.Background(), sess, target, ocr.Request{CardID: "c1"})
	if first.Action != ActionNothing || !first.OfferLowConfidence {
		t.Fatalf("Expected empty result with low-confidence offer, got %+v", first)
	}
	second := e.Toggle(context.Background(), sess, target, ocr.Request{CardID: "c1"})
	if second.OfferLowConfidence {
		t.Error("Expected the low-confidence offer only once")
	}

	res := e.ApplyLowConfidence(context.Background(), sess, target, ocr.Request{CardID: "c1"})
	if res.Action != ActionApplied {
		t.Fatalf("Expected low-confidence apply, got %s", res.Action)
	}
	if !adapter.lastReq.LowConfidence {
		t.Error("Expected adapter to receive a low-confidence request")
	}
	if d.Required.Year != "2021" {
		t.Errorf("Expected year from low pass, got %q", d.Required.Year)
	}
	if d.Optional.InsertSet != "" {
		t.Errorf("Expected insertSet below the taxonomy floor to stay empty, got %q", d.Optional.InsertSet)
	}
	if got := res.Result.TaxonomyStatus[models.FieldInsertSet]; got != StatusClearedLowConfidence {
		t.Errorf("Expected %s, got %s", StatusClearedLowConfidence, got)
	}
}

func TestToggleSurfacesErrors(t *testing.T) {
	boom := errors.New("ocr service returned status 502: bad gateway")
	adapter := &fakeAdapter{errs: []error{boom}, responses: []*ocr.Response{scenarioResponse()}}
	e := newTestEngine(adapter)
	sess := NewSession("c1")

	res := e.Toggle(context.Background(), sess, Target{Draft: models.NewCardDraft("c1")}, ocr.Request{CardID: "c1"})
	if res.Action != ActionFailed || !errors.Is(res.Err, boom) {
		t.Errorf("Expected failure carrying backend error, got %+v", res)
	}
	st := sess.Status()
	if st.State != StateError || st.Error != boom.Error() {
		t.Errorf("Expected error state with verbatim message, got %+v", st)
	}
}

func TestPoller(t *testing.T) {
	pending := &ocr.Response{Status: ocr.StatusPending}

	t.Run("gives up after retries", func(t *testing.T) {
		adapter := &fakeAdapter{responses: []*ocr.Response{pending}}
		p := NewPoller(adapter)
		p.Delay = 0
		want := 1 + DefaultPollRetries
		out, ok := p.Poll(context.Background(), ocr.Request{}).(Pending)
		if !ok || out.Attempts != want {
			t.Errorf("Expected Pending after %d calls, got %#v", want, out)
		}
		if adapter.calls != want {
			t.Errorf("Expected first call plus %d retries, got %d calls", DefaultPollRetries, adapter.calls)
		}
	})

	t.Run("no retries", func(t *testing.T) {
		adapter := &fakeAdapter{responses: []*ocr.Response{pending}}
		p := NewPoller(adapter)
		p.Retries = 0
		if _, ok := p.Poll(context.Background(), ocr.Request{}).(Pending); !ok {
			t.Error("Expected Pending")
		}
		if adapter.calls != 1 {
			t.Errorf("Expected 1 call, got %d", adapter.calls)
		}
	})

	t.Run("pending then ready", func(t *testing.T) {
		adapter := &fakeAdapter{responses: []*ocr.Response{pending, pending, scenarioResponse()}}
		p := NewPoller(adapter)
		p.Delay = 0
		if _, ok := p.Poll(context.Background(), ocr.Request{}).(Ready); !ok {
			t.Error("Expected Ready")
		}
		if adapter.calls != 3 {
			t.Errorf("Expected 3 calls, got %d", adapter.calls)
		}
	})

	t.Run("ready without values is empty", func(t *testing.T) {
		adapter := &fakeAdapter{responses: []*ocr.Response{{Status: ocr.StatusReady}}}
		if _, ok := NewPoller(adapter).Poll(context.Background(), ocr.Request{}).(Empty); !ok {
			t.Error("Expected Empty")
		}
	})

	t.Run("not ready fails without retry", func(t *testing.T) {
		adapter := &fakeAdapter{errs: []error{ocr.ErrNotReady}, responses: []*ocr.Response{pending}}
		out, ok := NewPoller(adapter).Poll(context.Background(), ocr.Request{}).(Failed)
		if !ok || !errors.Is(out.Err, ocr.ErrNotReady) {
			t.Errorf("Expected Failed with ErrNotReady, got %#v", out)
		}
		if adapter.calls != 1 {
			t.Errorf("Expected 1 call, got %d", adapter.calls)
		}
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		adapter := &fakeAdapter{responses: []*ocr.Response{pending}}
		out, ok := NewPoller(adapter).Poll(ctx, ocr.Request{}).(Failed)
		if !ok || !errors.Is(out.Err, context.Canceled) {
			t.Errorf("Expected cancellation, got %#v", out)
		}
	})
}

func TestSessionDiscardsStaleOutcomes(t *testing.T) {
	sess := NewSession("c1")
	ctx1, first, _ := sess.Begin(context.Background(), "c1")
	_, second, _ := sess.Begin(context.Background(), "c1")

	if ctx1.Err() == nil {
		t.Error("Expected the older fetch to be cancelled")
	}
	if sess.Finish(first, "c1", ModeHigh, Ready{Response: scenarioResponse()}) {
		t.Error("Expected older request id to be discarded")
	}
	if sess.HasResponse() {
		t.Error("Expected stale response not to be recorded")
	}

	sess.Reset("c2")
	if sess.Finish(second, "c1", ModeHigh, Ready{Response: scenarioResponse()}) {
		t.Error("Expected response for previous card to be discarded")
	}

	_, third, err := sess.Begin(context.Background(), "c2")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if !sess.Finish(third, "c2", ModeHigh, Ready{Response: scenarioResponse()}) {
		t.Error("Expected current request to be accepted")
	}
}

func TestSessionRefusesBeginForPreviousCard(t *testing.T) {
	sess := NewSession("a")
	sess.Reset("b")
	ctxB, idB, err := sess.Begin(context.Background(), "b")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	if _, _, err := sess.Begin(context.Background(), "a"); !errors.Is(err, ErrStaleCard) {
		t.Errorf("Expected ErrStaleCard for the previous card, got %v", err)
	}
	if ctxB.Err() != nil {
		t.Errorf("Expected the current fetch to keep running, got %v", ctxB.Err())
	}
	if st, _ := sess.State(); st != StateRunning {
		t.Errorf("Expected state running, got %s", st)
	}
	if !sess.Finish(idB, "b", ModeHigh, Ready{Response: scenarioResponse()}) {
		t.Error("Expected the current card's fetch to be accepted")
	}
	if st, _ := sess.State(); st != StateReady {
		t.Errorf("Expected state ready, got %s", st)
	}
}

func TestFetchForPreviousCardIsStale(t *testing.T) {
	adapter := &fakeAdapter{responses: []*ocr.Response{scenarioResponse()}}
	e := newTestEngine(adapter)
	sess := NewSession("a")
	sess.Reset("b")

	res := e.Toggle(context.Background(), sess, Target{Draft: models.NewCardDraft("a")}, ocr.Request{CardID: "a"})
	if res.Action != ActionStale {
		t.Errorf("Expected stale action, got %+v", res)
	}
	if adapter.calls != 0 {
		t.Errorf("Expected no backend call, got %d", adapter.calls)
	}
	if st, _ := sess.State(); st != StateIdle {
		t.Errorf("Expected state idle, got %s", st)
	}
}

func TestReapplyAfterPoolArrives(t *testing.T) {
	adapter := &fakeAdapter{responses: []*ocr.Response{scenarioResponse()}}
	e := newTestEngine(adapter)
	sess := NewSession("c1")
	d := models.NewCardDraft("c1")

	first := e.Toggle(context.Background(), sess, Target{Draft: d}, ocr.Request{CardID: "c1"})
	if first.Action != ActionApplied || d.Optional.InsertSet != "" {
		t.Fatalf("Expected required fields only on the first pass, got %s / %q", first.Action, d.Optional.InsertSet)
	}

	more := e.Reapply(sess, Target{Draft: d, Pool: insertPool("No Limit")})
	if more.Action != ActionApplied || d.Optional.InsertSet != "No Limit" {
		t.Fatalf("Expected insertSet applied once the pool is known, got %s / %q", more.Action, d.Optional.InsertSet)
	}
	if st := sess.Status(); st.OfferLowConfidence {
		t.Error("Expected no low-confidence offer from a reapply")
	}

	if res := e.Toggle(context.Background(), sess, Target{Draft: d}, ocr.Request{CardID: "c1"}); res.Action != ActionUndone {
		t.Fatalf("Expected undone, got %s", res.Action)
	}
	if d.Optional.InsertSet != "" || d.Required.Year != "" {
		t.Errorf("Expected both passes undone, got %+v / %+v", d.Required, d.Optional)
	}
}

package capture

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/ocr"
	"github.com/cardledger/cardintake/internal/pool"
	"github.com/cardledger/cardintake/internal/suggest"
	"github.com/cardledger/cardintake/internal/teach"
	"github.com/cardledger/cardintake/internal/upload"
)

type fakeTransport struct {
	mu       sync.Mutex
	presigns []string
	gate     chan struct{}
	fail     map[string]bool
	batches  int
}

func (f *fakeTransport) Presign(ctx context.Context, batchID string, file upload.File) (upload.Presigned, error) {
	f.mu.Lock()
	f.presigns = append(f.presigns, file.Name+"@"+batchID)
	gate := f.gate
	f.mu.Unlock()
	if batchID == "" && gate != nil {
		<-gate
	}
	if batchID == "" {
		f.mu.Lock()
		f.batches++
		batchID = fmt.Sprintf("asset-%d", f.batches)
		f.mu.Unlock()
	}
	return upload.Presigned{BatchID: batchID, PhotoID: "photo-" + file.Name, UploadURL: "mem://" + file.Name}, nil
}

func (f *fakeTransport) Upload(ctx context.Context, p upload.Presigned, file upload.File) error {
	if f.fail[file.Name] {
		return errors.New("store rejected " + file.Name)
	}
	return nil
}

func (f *fakeTransport) Complete(ctx context.Context, p upload.Presigned, file upload.File) (upload.Record, error) {
	return upload.Record{BatchID: p.BatchID, PhotoID: p.PhotoID}, nil
}

func (f *fakeTransport) presignLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.presigns...)
}

type fakeAdapter struct {
	mu    sync.Mutex
	calls int
	resp  *ocr.Response
}

func (f *fakeAdapter) Suggest(ctx context.Context, req ocr.Request) (*ocr.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if req.AssetID == "" {
		return nil, ocr.ErrNotReady
	}
	return f.resp, nil
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
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

type fakePool struct {
	mu    sync.Mutex
	calls int
	fail  bool

	// hold blocks fetches of a year until its channel is closed.
	hold    map[string]chan struct{}
	started chan string
}

func (f *fakePool) Fetch(ctx context.Context, scope pool.Scope) (*pool.Pool, error) {
	f.mu.Lock()
	f.calls++
	gate := f.hold[scope.Year]
	f.mu.Unlock()
	if gate != nil {
		f.started <- scope.Year
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !scope.Complete() {
		return nil, pool.ErrNoScope
	}
	if f.fail {
		return nil, errors.New("option pool unavailable")
	}
	return &pool.Pool{
		Scope:       scope,
		ProductSets: []pool.ProductSet{{ID: "s1", Name: "Prizm"}},
		InsertOptions: []pool.Option{
			{Label: "No Limit", SetIDs: []string{"s1"}, Count: 4},
			{Label: "Elite", SetIDs: []string{"s1"}, Count: 2},
		},
		Summary: pool.Summary{ApprovedSetCount: 1, VariantCount: 2},
	}, nil
}

type memTemplates struct {
	mu    sync.Mutex
	saved map[teach.Key]teach.RegionsBySide
}

func (m *memTemplates) Load(ctx context.Context, cardID string, key teach.Key) (teach.RegionsBySide, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[key].Clone(), nil
}

func (m *memTemplates) Save(ctx context.Context, cardID string, key teach.Key, regions teach.RegionsBySide) (teach.RegionsBySide, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = make(map[teach.Key]teach.RegionsBySide)
	}
	m.saved[key] = regions.Clone()
	return regions.Clone(), nil
}

func (m *memTemplates) Clear(ctx context.Context, key teach.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saved, key)
	return nil
}

type memQueue struct {
	mu    sync.Mutex
	items []QueueItem
}

func (q *memQueue) Enqueue(ctx context.Context, item QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *memQueue) Dequeue(ctx context.Context) (QueueItem, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return QueueItem{}, false, nil
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true, nil
}

func (q *memQueue) List(ctx context.Context) ([]QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]QueueItem(nil), q.items...), nil
}

func (q *memQueue) Remove(ctx context.Context, cardID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, item := range q.items {
		if item.CardID == cardID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}
	return nil
}

type fakeMetadata struct {
	mu    sync.Mutex
	saved []Classification
	err   error
}

func (f *fakeMetadata) UpdateClassification(ctx context.Context, c Classification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, c)
	return nil
}

type failingPostProcessor struct {
	calls int
}

func (f *failingPostProcessor) Process(ctx context.Context, assetID string) error {
	f.calls++
	return errors.New("post-processor offline")
}

type harness struct {
	transport *fakeTransport
	adapter   *fakeAdapter
	pool      *fakePool
	templates *memTemplates
	queue     *memQueue
	metadata  *fakeMetadata
	post      *failingPostProcessor
}

func newHarness() *harness {
	return &harness{
		transport: &fakeTransport{},
		adapter:   &fakeAdapter{resp: scenarioResponse()},
		pool:      &fakePool{},
		templates: &memTemplates{},
		queue:     &memQueue{},
		metadata:  &fakeMetadata{},
		post:      &failingPostProcessor{},
	}
}

func (h *harness) controller(t *testing.T) *Controller {
	t.Helper()
	poller := suggest.NewPoller(h.adapter)
	poller.Delay = 0
	c := New(Deps{
		Engine:        suggest.NewEngine(suggest.NewResolver(suggest.DefaultPolicy()), poller, nil),
		Pool:          h.pool,
		Templates:     h.templates,
		Uploads:       upload.NewDispatcher(h.transport, 3, nil),
		Metadata:      h.metadata,
		PostProcessor: h.post,
		Queue:         h.queue,
		Debounce:      time.Millisecond,
	})
	t.Cleanup(func() {
		c.Close()
		c.Wait()
	})
	return c
}

func photo(side models.PhotoSide) upload.File {
	return upload.File{Name: string(side), ContentType: "image/jpeg", Data: []byte("jpeg-" + string(side))}
}

func captureAll(t *testing.T, c *Controller) {
	t.Helper()
	for _, side := range models.PhotoSides {
		if _, err := c.CapturePhoto(side, photo(side), 800, 1100); err != nil {
			t.Fatalf("Failed to capture %s: %v", side, err)
		}
	}
}

func TestStepTransitions(t *testing.T) {
	tests := []struct {
		from, to Step
		expected bool
	}{
		{StepFront, StepBack, true},
		{StepFront, StepTilt, false},
		{StepBack, StepFront, false},
		{StepTilt, StepRequired, true},
		{StepRequired, StepOptional, true},
		{StepOptional, StepRequired, true},
		{StepRequired, StepTilt, false},
		{StepOptional, StepSubmitted, true},
		{StepSubmitted, StepFront, true},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.expected {
			t.Errorf("CanTransition(%s, %s): expected %v, got %v", tt.from, tt.to, tt.expected, got)
		}
	}
	if _, err := ParseStep("review"); err == nil {
		t.Error("Expected unknown step to fail")
	}
}

func TestCaptureEndToEnd(t *testing.T) {
	h := newHarness()
	c := h.controller(t)

	captureAll(t, c)
	c.Wait()

	v := c.View()
	if v.Step != StepRequired {
		t.Errorf("Expected required step, got %s", v.Step)
	}
	if v.Draft.AssetID != "asset-1" {
		t.Errorf("Expected asset-1, got %q", v.Draft.AssetID)
	}
	for _, side := range models.PhotoSides {
		if ref := v.Draft.Photos.Get(side); !ref.Uploaded() {
			t.Errorf("Expected %s uploaded, got %+v", side, ref)
		}
	}
	if v.Draft.Required.Year != "2021" || v.Draft.Required.Manufacturer != "Panini" {
		t.Errorf("Expected year and manufacturer filled, got %+v", v.Draft.Required)
	}
	if v.Draft.Optional.InsertSet != "No Limit" {
		t.Errorf("Expected insertSet No Limit, got %q", v.Draft.Optional.InsertSet)
	}
	if got := v.Suggestions.TaxonomyStatus[models.FieldInsertSet]; got != suggest.StatusKept {
		t.Errorf("Expected insertSet kept, got %s", got)
	}
	if v.LayoutClass != "insert_no_limit" {
		t.Errorf("Expected layout insert_no_limit, got %s", v.LayoutClass)
	}
}

func TestUnknownPoolLeavesTaxonomyEmpty(t *testing.T) {
	h := newHarness()
	h.pool.fail = true
	c := h.controller(t)

	captureAll(t, c)
	c.Wait()

	v := c.View()
	if v.Draft.Optional.InsertSet != "" {
		t.Errorf("Expected insertSet to stay empty, got %q", v.Draft.Optional.InsertSet)
	}
	if got := v.Suggestions.TaxonomyStatus[models.FieldInsertSet]; got != suggest.StatusClearedNoSetScope {
		t.Errorf("Expected %s, got %s", suggest.StatusClearedNoSetScope, got)
	}
	if v.PoolError == "" {
		t.Error("Expected the pool error to be reported")
	}
}

func TestPhotosWaitForAssetInCaptureOrder(t *testing.T) {
	h := newHarness()
	h.transport.gate = make(chan struct{})
	c := h.controller(t)

	captureAll(t, c)
	v := c.View()
	if v.Step != StepRequired {
		t.Errorf("Expected optimistic advance to required, got %s", v.Step)
	}
	if v.PendingPhotos != 2 || v.UploadsInFlight != 1 {
		t.Errorf("Expected 1 upload in flight and 2 waiting, got %d/%d", v.UploadsInFlight, v.PendingPhotos)
	}

	close(h.transport.gate)
	c.Wait()

	expected := []string{"front@", "back@asset-1", "tilt@asset-1"}
	if got := h.transport.presignLog(); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected presigns %v, got %v", expected, got)
	}
}

func TestFailedFirstUploadPassesBatchToNextPhoto(t *testing.T) {
	h := newHarness()
	h.transport.fail = map[string]bool{"front": true}
	c := h.controller(t)

	captureAll(t, c)
	c.Wait()

	v := c.View()
	if v.Draft.Photos.Front.Uploaded() || v.Draft.Photos.Front.UploadErr == "" {
		t.Errorf("Expected front upload error, got %+v", v.Draft.Photos.Front)
	}
	if v.Draft.AssetID == "" || !v.Draft.Photos.Tilt.Uploaded() {
		t.Errorf("Expected a later photo to establish the asset, got %+v", v.Draft)
	}

	_, err := c.Submit(context.Background())
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "playerName" {
		t.Fatalf("Expected the validation gate to run first, got %v", err)
	}
	if err := c.SetField(context.Background(), models.FieldPlayerName, "LaMelo Ball"); err != nil {
		t.Fatalf("Failed to set field: %v", err)
	}
	_, err = c.Submit(context.Background())
	if !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("Expected %v, got %v", ErrAssetNotFound, err)
	}
	if msg := c.View().Message; msg != "card asset not found" {
		t.Errorf("Expected asset message, got %q", msg)
	}
}

func TestCaptureRejectsSkippedSteps(t *testing.T) {
	c := New(Deps{})
	defer c.Close()

	if _, err := c.CapturePhoto(models.SideTilt, photo(models.SideTilt), 0, 0); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected %v, got %v", ErrInvalidTransition, err)
	}
	if _, err := c.Advance(context.Background()); err == nil {
		t.Error("Expected advance without a front photo to fail")
	}
	if _, err := c.CapturePhoto(models.SideFront, photo(models.SideFront), 0, 0); err != nil {
		t.Fatalf("Failed to capture: %v", err)
	}
	if _, err := c.CapturePhoto(models.SideFront, photo(models.SideFront), 0, 0); err != nil {
		t.Errorf("Expected retake of a passed side, got %v", err)
	}
	if step := c.View().Step; step != StepBack {
		t.Errorf("Expected back step after retake, got %s", step)
	}
}

func TestValidationGateFirstViolationWins(t *testing.T) {
	c := New(Deps{})
	defer c.Close()
	ctx := context.Background()

	captureAll(t, c)
	before := c.View().Draft

	steps := []struct {
		field    models.Field
		value    string
		expected string
	}{
		{models.FieldPlayerName, "LaMelo Ball", "playerName"},
		{models.FieldManufacturer, "Panini", "manufacturer"},
		{models.FieldYear, "2021", "year"},
	}
	for _, s := range steps {
		_, err := c.Advance(ctx)
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Field != s.expected {
			t.Fatalf("Expected validation error on %s, got %v", s.expected, err)
		}
		if got := c.View().Step; got != StepRequired {
			t.Fatalf("Expected to stay on required, got %s", got)
		}
		if err := c.SetField(ctx, s.field, s.value); err != nil {
			t.Fatalf("Failed to set %s: %v", s.field, err)
		}
	}
	if before.Required.PlayerName != "" {
		t.Error("Expected the snapshot to be independent of the draft")
	}

	if step, err := c.Advance(ctx); err != nil || step != StepOptional {
		t.Fatalf("Expected optional, got %s (%v)", step, err)
	}
	if step, err := c.Back(); err != nil || step != StepRequired {
		t.Errorf("Expected back to required, got %s (%v)", step, err)
	}
	if _, err := c.Back(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected %v, got %v", ErrInvalidTransition, err)
	}
}

func TestTCGIdentityField(t *testing.T) {
	c := New(Deps{})
	defer c.Close()
	ctx := context.Background()

	captureAll(t, c)
	if err := c.SetCategory(ctx, models.CategoryTCG); err != nil {
		t.Fatalf("Failed to set category: %v", err)
	}
	_ = c.SetField(ctx, models.FieldPlayerName, "ignored")
	_, err := c.Advance(ctx)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "cardName" || verr.Message != "card name is required" {
		t.Errorf("Expected card name validation error, got %v", err)
	}
}

func TestOperatorEditsAreNotOverwritten(t *testing.T) {
	h := newHarness()
	h.transport.gate = make(chan struct{})
	c := h.controller(t)
	ctx := context.Background()

	captureAll(t, c)
	if err := c.SetField(ctx, models.FieldYear, "2020"); err != nil {
		t.Fatalf("Failed to set year: %v", err)
	}
	close(h.transport.gate)
	c.Wait()

	v := c.View()
	if v.Draft.Required.Year != "2020" {
		t.Errorf("Expected touched year to stay 2020, got %q", v.Draft.Required.Year)
	}
	if v.Draft.Required.Manufacturer != "Panini" {
		t.Errorf("Expected manufacturer filled, got %q", v.Draft.Required.Manufacturer)
	}
}

func TestNotReadySuggestionsRetryWhenAssetArrives(t *testing.T) {
	h := newHarness()
	h.transport.gate = make(chan struct{})
	c := h.controller(t)

	if _, err := c.CapturePhoto(models.SideFront, photo(models.SideFront), 0, 0); err != nil {
		t.Fatalf("Failed to capture: %v", err)
	}
	res := c.ToggleSuggestions(context.Background())
	if res.Action != suggest.ActionFailed || !errors.Is(res.Err, ocr.ErrNotReady) {
		t.Fatalf("Expected not-ready failure, got %s (%v)", res.Action, res.Err)
	}

	close(h.transport.gate)
	c.Wait()

	if got := c.View().Draft.Required.Year; got != "2021" {
		t.Errorf("Expected suggestions applied once the asset arrived, got year %q", got)
	}
	if calls := h.adapter.callCount(); calls != 2 {
		t.Errorf("Expected 2 backend calls, got %d", calls)
	}
}

func TestToggleUndoesAndReapplies(t *testing.T) {
	h := newHarness()
	c := h.controller(t)
	ctx := context.Background()

	captureAll(t, c)
	c.Wait()

	undo := c.ToggleSuggestions(ctx)
	if undo.Action != suggest.ActionUndone {
		t.Fatalf("Expected undone, got %s", undo.Action)
	}
	v := c.View()
	if v.Draft.Required.Year != "" || v.Draft.Optional.InsertSet != "" {
		t.Errorf("Expected applied values reverted, got %+v / %+v", v.Draft.Required, v.Draft.Optional)
	}
	if v.LayoutClass != teach.LayoutBase {
		t.Errorf("Expected base layout after undo, got %s", v.LayoutClass)
	}

	redo := c.ToggleSuggestions(ctx)
	if redo.Action != suggest.ActionApplied {
		t.Fatalf("Expected applied, got %s", redo.Action)
	}
	if got := c.View().Draft.Optional.InsertSet; got != "No Limit" {
		t.Errorf("Expected insertSet reapplied, got %q", got)
	}
	if calls := h.adapter.callCount(); calls != 1 {
		t.Errorf("Expected the cached response to be reused, got %d calls", calls)
	}
}

func TestPoolLoadedOncePerScope(t *testing.T) {
	h := newHarness()
	c := h.controller(t)
	ctx := context.Background()

	_ = c.SetField(ctx, models.FieldYear, "2021")
	_ = c.SetField(ctx, models.FieldManufacturer, "Panini")
	_ = c.SetField(ctx, models.FieldManufacturer, "Panini")
	_ = c.SetField(ctx, models.FieldPlayerName, "LaMelo Ball")

	v := c.View()
	if v.PoolSummary == nil || v.PoolSummary.VariantCount != 2 {
		t.Errorf("Expected pool summary, got %+v", v.PoolSummary)
	}
	if h.pool.calls != 1 {
		t.Errorf("Expected one pool fetch, got %d", h.pool.calls)
	}
	if opts := c.PoolOptions(models.FieldInsertSet, "elite"); len(opts) != 2 || opts[0] != "Elite" {
		t.Errorf("Expected Elite ranked first, got %v", opts)
	}
}

func TestTeachTemplateLifecycle(t *testing.T) {
	h := newHarness()
	c := h.controller(t)
	ctx := context.Background()

	_ = c.SetField(ctx, models.FieldYear, "2021")
	_ = c.SetField(ctx, models.FieldManufacturer, "Panini")
	_ = c.SetField(ctx, models.FieldSetName, "Prizm")

	if key, _ := c.Regions(); key.SetID != "s1" || key.LayoutClass != teach.LayoutBase {
		t.Fatalf("Expected key s1/base, got %+v", key)
	}

	_ = c.BeginDrag(models.SideFront, teach.Point{X: 0.1, Y: 0.1})
	c.UpdateDrag(teach.Point{X: 0.101, Y: 0.5})
	if _, ok := c.EndDrag(); ok {
		t.Error("Expected a sliver region to be discarded")
	}

	_ = c.BeginDrag(models.SideFront, teach.Point{X: 0.1, Y: 0.1})
	c.UpdateDrag(teach.Point{X: 0.6, Y: 0.3})
	region, ok := c.EndDrag()
	if !ok {
		t.Fatal("Expected region")
	}
	bound, err := c.BindRegion(region.ID, "", "", "logo")
	if err != nil {
		t.Fatalf("Failed to bind: %v", err)
	}
	if bound.Field != models.FieldSetName || bound.Value != "Prizm" {
		t.Errorf("Expected default binding to setName Prizm, got %s=%s", bound.Field, bound.Value)
	}
	if _, err := c.SaveTemplate(ctx); err != nil {
		t.Fatalf("Failed to save template: %v", err)
	}

	if class := c.OverrideLayout(ctx, "insert_custom"); class != "insert_custom" {
		t.Errorf("Expected override, got %s", class)
	}
	if key, regions := c.Regions(); key.LayoutClass != "insert_custom" || regions.Count() != 0 {
		t.Errorf("Expected empty template for the override, got %+v %d", key, regions.Count())
	}

	c.OverrideLayout(ctx, "")
	if _, regions := c.Regions(); regions.Count() != 1 {
		t.Errorf("Expected saved template replayed, got %d regions", regions.Count())
	}
}

func TestSaveTemplateWithoutSetFails(t *testing.T) {
	c := New(Deps{})
	defer c.Close()

	_ = c.BeginDrag(models.SideFront, teach.Point{X: 0.1, Y: 0.1})
	c.UpdateDrag(teach.Point{X: 0.4, Y: 0.4})
	region, _ := c.EndDrag()
	if _, err := c.BindRegion(region.ID, models.FieldCardNumber, "278", ""); err != nil {
		t.Fatalf("Failed to bind: %v", err)
	}
	if _, err := c.SaveTemplate(context.Background()); !errors.Is(err, teach.ErrMissingSetID) {
		t.Errorf("Expected %v, got %v", teach.ErrMissingSetID, err)
	}
}

func TestSubmitResetsToFront(t *testing.T) {
	h := newHarness()
	c := h.controller(t)
	ctx := context.Background()

	captureAll(t, c)
	c.Wait()
	_ = c.SetField(ctx, models.FieldPlayerName, "LaMelo Ball")
	first := c.View().Draft.ID

	res, err := c.Submit(ctx)
	if err != nil {
		t.Fatalf("Failed to submit: %v", err)
	}
	if res.CardID != first || res.AssetID != "asset-1" || res.FromQueue {
		t.Errorf("Unexpected submit result %+v", res)
	}
	if res.Step != StepFront || res.NextCardID == first {
		t.Errorf("Expected a fresh card at front, got %+v", res)
	}
	if len(h.metadata.saved) != 1 || h.metadata.saved[0].Photos["tilt"] != "photo-tilt" {
		t.Errorf("Expected classification with photo ids, got %+v", h.metadata.saved)
	}
	if h.metadata.saved[0].Optional.InsertSet != "No Limit" {
		t.Errorf("Expected all fields persisted, got %+v", h.metadata.saved[0].Optional)
	}
	if h.post.calls != 1 {
		t.Errorf("Expected one post-processing call, got %d", h.post.calls)
	}
}

func TestSubmitSurfacesMetadataFailure(t *testing.T) {
	h := newHarness()
	h.metadata.err = errors.New("metadata store returned status 500: boom")
	c := h.controller(t)
	ctx := context.Background()

	captureAll(t, c)
	c.Wait()
	_ = c.SetField(ctx, models.FieldPlayerName, "LaMelo Ball")

	if _, err := c.Submit(ctx); err == nil {
		t.Fatal("Expected submit to fail")
	}
	v := c.View()
	if v.Step != StepRequired || v.Message != "metadata store returned status 500: boom" {
		t.Errorf("Expected to stay on required with the backend message, got %s %q", v.Step, v.Message)
	}
}

func TestDeferThenSubmitLoadsQueuedCard(t *testing.T) {
	h := newHarness()
	c := h.controller(t)
	ctx := context.Background()

	if _, err := c.Defer(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected deferring an empty card to fail, got %v", err)
	}

	captureAll(t, c)
	c.Wait()
	_ = c.SetField(ctx, models.FieldPlayerName, "LaMelo Ball")
	deferred := c.View().Draft.ID

	item, err := c.Defer(ctx)
	if err != nil {
		t.Fatalf("Failed to defer: %v", err)
	}
	if item.CardID != deferred || len(h.queue.items) != 1 {
		t.Fatalf("Expected card queued, got %+v", h.queue.items)
	}
	if v := c.View(); v.Step != StepFront || v.Draft.ID == deferred {
		t.Fatalf("Expected a new card at front, got %s %s", v.Step, v.Draft.ID)
	}

	captureAll(t, c)
	c.Wait()
	_ = c.SetField(ctx, models.FieldPlayerName, "Anthony Edwards")

	res, err := c.Submit(ctx)
	if err != nil {
		t.Fatalf("Failed to submit: %v", err)
	}
	if !res.FromQueue || res.NextCardID != deferred || res.Step != StepRequired {
		t.Errorf("Expected queued card loaded for review, got %+v", res)
	}
	v := c.View()
	if v.Draft.Required.PlayerName != "LaMelo Ball" {
		t.Errorf("Expected queued draft restored, got %q", v.Draft.Required.PlayerName)
	}
	if len(v.Touched) != 1 || v.Touched[0] != models.FieldPlayerName {
		t.Errorf("Expected touched fields restored, got %v", v.Touched)
	}
}

func waitStarted(t *testing.T, started <-chan string, want string) {
	t.Helper()
	select {
	case got := <-started:
		if got != want {
			t.Fatalf("Expected fetch for %s, got %s", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for the %s pool fetch", want)
	}
}

func TestPoolFetchRunsOutsideSessionLock(t *testing.T) {
	h := newHarness()
	first, second := make(chan struct{}), make(chan struct{})
	h.pool.hold = map[string]chan struct{}{"2021": first, "2022": second}
	h.pool.started = make(chan string, 2)
	c := h.controller(t)
	ctx := context.Background()

	if err := c.SetField(ctx, models.FieldManufacturer, "Panini"); err != nil {
		t.Fatalf("SetField failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = c.SetField(ctx, models.FieldYear, "2021")
	}()
	waitStarted(t, h.pool.started, "2021")

	viewed := make(chan View, 1)
	go func() { viewed <- c.View() }()
	select {
	case <-viewed:
	case <-time.After(2 * time.Second):
		close(first)
		t.Fatal("Expected View to answer while the option pool loads")
	}

	go func() {
		defer wg.Done()
		_ = c.SetField(ctx, models.FieldYear, "2022")
	}()
	waitStarted(t, h.pool.started, "2022")

	close(second)
	close(first)
	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool == nil || c.pool.Scope.Year != "2022" {
		t.Errorf("Expected the pool of the latest scope, got %+v", c.pool)
	}
	if c.draft.Required.Year != "2022" {
		t.Errorf("Expected year 2022, got %q", c.draft.Required.Year)
	}
}

// Package capture drives one operator's card intake: the photo and field
// steps, background uploads, suggestion fetches, teach regions and submit.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/pool"
	"github.com/cardledger/cardintake/internal/suggest"
	"github.com/cardledger/cardintake/internal/teach"
	"github.com/cardledger/cardintake/internal/upload"
)

// DefaultDebounce separates the tilt upload from the suggestion fetch.
const DefaultDebounce = 750 * time.Millisecond

// Deps are the collaborators of a controller. Engine is required; a nil
// collaborator disables the feature it backs.
type Deps struct {
	Engine        *suggest.Engine
	Pool          pool.Provider
	Templates     teach.Store
	Uploads       *upload.Dispatcher
	Metadata      MetadataStore
	PostProcessor PostProcessor
	Queue         IntakeQueue
	Debounce      time.Duration
	Logger        *slog.Logger
}

type photoBlob struct {
	file   upload.File
	width  int
	height int
}

type pendingBlob struct {
	side models.PhotoSide
	blob photoBlob
}

// Controller owns the in-progress card of one capture session. Operator
// calls and background completions are serialized by mu. Network calls to
// the OCR backend, the option pool and the template store run with mu
// released; their results are discarded when the card or scope moved on.
type Controller struct {
	id       string
	deps     Deps
	logger   *slog.Logger
	debounce time.Duration
	created  time.Time

	mu      sync.Mutex
	closed  bool
	draft   *models.CardDraft
	step    Step
	touched map[models.Field]bool

	pool       *pool.Pool
	poolErr    error
	poolKey    string
	poolLoaded bool
	poolSeq    uint64
	teachSeq   uint64

	teach  *teach.Manager
	layout teach.LayoutTracker
	sugg   *suggest.Session

	blobs        map[models.PhotoSide]photoBlob
	pending      []pendingBlob
	establishing bool
	inflight     int
	ocrTimer     *time.Timer
	ocrRetry     bool
	message      string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New starts a capture session on a fresh sports card.
func New(deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := deps.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		id:       uuid.NewString(),
		deps:     deps,
		debounce: debounce,
		created:  time.Now(),
		teach:    teach.NewManager(deps.Templates, logger),
		sugg:     suggest.NewSession(""),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.logger = logger.With("session_id", c.id)
	c.mu.Lock()
	c.resetCardLocked(models.CategorySport)
	c.mu.Unlock()
	return c
}

// ID returns the session id.
func (c *Controller) ID() string {
	return c.id
}

// CreatedAt returns when the session started.
func (c *Controller) CreatedAt() time.Time {
	return c.created
}

// View is a snapshot of the session for the operator.
type View struct {
	SessionID        string              `json:"sessionId"`
	Step             Step                `json:"step"`
	Draft            *models.CardDraft   `json:"draft"`
	Touched          []models.Field      `json:"touched,omitempty"`
	LayoutClass      string              `json:"layoutClass"`
	LayoutOverridden bool                `json:"layoutOverridden"`
	Template         teach.Key           `json:"template"`
	Regions          teach.RegionsBySide `json:"regionsBySide"`
	PoolSummary      *pool.Summary       `json:"poolSummary,omitempty"`
	PoolError        string              `json:"poolError,omitempty"`
	UploadsInFlight  int                 `json:"uploadsInFlight"`
	PendingPhotos    int                 `json:"pendingPhotos"`
	Suggestions      suggest.Status      `json:"suggestions"`
	Message          string              `json:"message,omitempty"`
}

// View returns a snapshot of the session.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	v := View{
		SessionID:        c.id,
		Step:             c.step,
		Draft:            c.draft.Clone(),
		Touched:          c.touchedLocked(),
		LayoutClass:      c.layout.Current(c.draft),
		LayoutOverridden: c.layout.Overridden(),
		Template:         c.teach.Key(),
		Regions:          c.teach.Regions(),
		UploadsInFlight:  c.inflight,
		PendingPhotos:    len(c.pending),
		Suggestions:      c.sugg.Status(),
		Message:          c.message,
	}
	if c.pool != nil {
		summary := c.pool.Summary
		v.PoolSummary = &summary
	}
	if c.poolErr != nil {
		v.PoolError = c.poolErr.Error()
	}
	return v
}

func (c *Controller) touchedLocked() []models.Field {
	out := make([]models.Field, 0, len(c.touched))
	for f, ok := range c.touched {
		if ok {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close cancels background work. Late completions are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.stopTimerLocked()
	c.cancel()
	c.sugg.Reset("")
	c.logger.Info("Capture session closed", "card_id", c.draft.ID)
}

// Wait blocks until background uploads and fetches have finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// SetCategory switches between sports and TCG cards.
func (c *Controller) SetCategory(ctx context.Context, category models.Category) error {
	if category != models.CategorySport && category != models.CategoryTCG {
		return &ValidationError{Field: "category", Message: fmt.Sprintf("unknown category %q", category)}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.draft.Required.Category == category {
		return nil
	}
	c.draft.Required.Category = category
	c.afterChangeLocked(ctx, []models.Field{c.draft.DisciplineField()})
	return nil
}

// SetField records an operator edit. The field is marked touched so
// suggestions never overwrite it.
func (c *Controller) SetField(ctx context.Context, field models.Field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.step == StepSubmitted {
		return transitionError(c.step, c.step)
	}
	value = strings.TrimSpace(value)
	before := c.draft.Get(field)
	if !c.draft.Set(field, value) {
		return &ValidationError{Field: string(field), Message: fmt.Sprintf("unknown field %q", field)}
	}
	c.touched[field] = true
	if c.draft.Get(field) == before {
		return nil
	}
	c.logger.Debug("Field edited", "card_id", c.draft.ID, "field", field)
	c.afterChangeLocked(ctx, []models.Field{field})
	return nil
}

// Advance moves to the next step when its guard passes. Leaving the
// required step runs the validation gate. Submitting goes through Submit.
func (c *Controller) Advance(ctx context.Context) (Step, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.step, ErrClosed
	}
	to := c.step.Next()
	if to == "" || to == StepSubmitted {
		return c.step, transitionError(c.step, to)
	}
	if err := c.transitionLocked(to); err != nil {
		return c.step, err
	}
	return c.step, nil
}

// Back returns from the optional step to the required step.
func (c *Controller) Back() (Step, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.step, ErrClosed
	}
	if c.step != StepOptional {
		return c.step, transitionError(c.step, StepRequired)
	}
	if err := c.transitionLocked(StepRequired); err != nil {
		return c.step, err
	}
	return c.step, nil
}

func (c *Controller) transitionLocked(to Step) error {
	if !CanTransition(c.step, to) {
		return transitionError(c.step, to)
	}
	if err := c.guardLocked(to); err != nil {
		c.message = err.Error()
		return err
	}
	c.setStepLocked(to)
	return nil
}

// guardLocked checks the precondition of entering to.
func (c *Controller) guardLocked(to Step) error {
	switch to {
	case StepBack:
		return c.requirePhotoLocked(models.SideFront)
	case StepTilt:
		return c.requirePhotoLocked(models.SideBack)
	case StepRequired:
		if c.step == StepTilt {
			return c.requirePhotoLocked(models.SideTilt)
		}
		return nil
	case StepOptional, StepSubmitted:
		return c.validateLocked()
	case StepFront:
		return nil
	}
	return transitionError(c.step, to)
}

func (c *Controller) requirePhotoLocked(side models.PhotoSide) error {
	if !c.draft.Photos.Get(side).Captured {
		return &ValidationError{Field: string(side), Message: fmt.Sprintf("%s photo is required", side)}
	}
	return nil
}

// validateLocked is the gate before leaving the required step. The first
// failed check wins.
func (c *Controller) validateLocked() error {
	for _, side := range models.PhotoSides {
		if err := c.requirePhotoLocked(side); err != nil {
			return err
		}
	}
	identity := c.draft.IdentityField()
	if strings.TrimSpace(c.draft.Get(identity)) == "" {
		label := "player name"
		if identity == models.FieldCardName {
			label = "card name"
		}
		return &ValidationError{Field: string(identity), Message: label + " is required"}
	}
	if strings.TrimSpace(c.draft.Required.Manufacturer) == "" {
		return &ValidationError{Field: string(models.FieldManufacturer), Message: "manufacturer is required"}
	}
	if strings.TrimSpace(c.draft.Required.Year) == "" {
		return &ValidationError{Field: string(models.FieldYear), Message: "year is required"}
	}
	return nil
}

// Validate runs the validation gate without moving.
func (c *Controller) Validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validateLocked()
}

func (c *Controller) setStepLocked(step Step) {
	if step != c.step {
		c.logger.Debug("Capture step changed", "card_id", c.draft.ID, "from", c.step, "to", step)
	}
	c.step = step
	c.draft.Step = string(step)
	c.message = ""
}

// afterChangeLocked keeps derived state in line with changed fields: the
// layout override, the option pool and the teach template. It reports
// whether the pool changed.
func (c *Controller) afterChangeLocked(ctx context.Context, changed []models.Field) bool {
	scopeChanged := false
	for _, f := range changed {
		if c.layout.Observe(c.draft, f) {
			c.logger.Info("Layout override released", "card_id", c.draft.ID, "field", f)
		}
		if f.IsScopeKey() {
			scopeChanged = true
		}
	}
	poolChanged := false
	if scopeChanged {
		poolChanged = c.refreshPoolLocked(ctx)
	}
	c.replayLocked(ctx)
	return poolChanged
}

// refreshPoolLocked loads the option pool when the scope key changed.
func (c *Controller) refreshPoolLocked(ctx context.Context) bool {
	scope := pool.ScopeFromDraft(c.draft)
	key := scope.Key()
	if c.poolLoaded && key == c.poolKey {
		return false
	}
	c.poolKey = key
	c.poolLoaded = true
	c.pool = nil
	c.poolErr = nil
	c.poolSeq++

	if c.deps.Pool == nil || !scope.Complete() {
		c.poolErr = pool.ErrNoScope
		return true
	}

	seq, cardID := c.poolSeq, c.draft.ID
	var (
		p   *pool.Pool
		err error
	)
	c.unlocked(func() { p, err = c.deps.Pool.Fetch(ctx, scope) })
	if seq != c.poolSeq || cardID != c.draft.ID {
		c.logger.Debug("Discarding option pool of a superseded scope", "card_id", cardID, "scope", key)
		return false
	}
	if err != nil {
		c.poolErr = err
		c.logger.Warn("Failed to load option pool",
			"card_id", c.draft.ID,
			"scope", key,
			"error", err)
		return true
	}
	c.pool = p
	c.logger.Info("Option pool loaded",
		"card_id", c.draft.ID,
		"scope", key,
		"product_sets", len(p.ProductSets),
		"variants", p.Summary.VariantCount)
	return true
}

// templateKeyLocked resolves the teach template key of the draft.
func (c *Controller) templateKeyLocked() teach.Key {
	key := teach.Key{LayoutClass: c.layout.Current(c.draft)}
	if ids := c.pool.SetIDsByName(c.draft.Optional.ProductLine); len(ids) > 0 {
		key.SetID = ids[0]
	}
	return key.Normalize()
}

// replayLocked loads the teach template of the draft's current key when it
// changed.
func (c *Controller) replayLocked(ctx context.Context) {
	key := c.templateKeyLocked()
	if !c.teach.NeedsLoad(key) {
		return
	}
	key = c.teach.Switch(key)
	c.teachSeq++
	if key.SetID == "" {
		return
	}

	seq, cardID := c.teachSeq, c.draft.ID
	var regions teach.RegionsBySide
	c.unlocked(func() { regions = c.teach.Fetch(ctx, cardID, key) })
	if seq != c.teachSeq || cardID != c.draft.ID || !c.teach.Install(key, regions) {
		c.logger.Debug("Discarding teach template of a superseded key", "card_id", cardID, "set_id", key.SetID)
		return
	}
	c.logger.Debug("Teach template replayed",
		"card_id", cardID,
		"set_id", key.SetID,
		"layout_class", key.LayoutClass)
}

// unlocked runs fn with mu released. The caller must hold mu.
func (c *Controller) unlocked(fn func()) {
	c.mu.Unlock()
	defer c.mu.Lock()
	fn()
}

// resetCardLocked starts a new empty card of category at the front step.
func (c *Controller) resetCardLocked(category models.Category) {
	d := models.NewCardDraft(uuid.NewString())
	d.Required.Category = category
	c.loadDraftLocked(d, nil, StepFront)
	c.replayLocked(c.ctx)
}

// loadDraftLocked makes d the current card. Work still running for the
// previous card is discarded when it completes.
func (c *Controller) loadDraftLocked(d *models.CardDraft, touched []models.Field, step Step) {
	c.stopTimerLocked()
	c.draft = d
	c.touched = make(map[models.Field]bool, len(touched))
	for _, f := range touched {
		c.touched[f] = true
	}
	c.pool = nil
	c.poolErr = nil
	c.poolKey = ""
	c.poolLoaded = false
	c.poolSeq++
	c.teachSeq++
	c.teach.Reset()
	c.layout = teach.LayoutTracker{}
	c.sugg.Reset(d.ID)
	c.blobs = make(map[models.PhotoSide]photoBlob)
	c.pending = nil
	c.establishing = false
	c.inflight = 0
	c.ocrRetry = false
	c.setStepLocked(step)
}

func (c *Controller) stopTimerLocked() {
	if c.ocrTimer != nil && c.ocrTimer.Stop() {
		c.wg.Done()
	}
	c.ocrTimer = nil
}

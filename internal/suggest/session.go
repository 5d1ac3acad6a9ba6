package suggest

import (
	"context"
	"errors"
	"sync"

	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/ocr"
)

// FetchState is the visible state of the suggestion fetch.
type FetchState string

const (
	StateIdle    FetchState = "idle"
	StateRunning FetchState = "running"
	StatePending FetchState = "pending"
	StateReady   FetchState = "ready"
	StateEmpty   FetchState = "empty"
	StateError   FetchState = "error"
)

// Session is the per-capture suggestion context: the request sequence,
// the cancel func of the in-flight poll, the last response and the apply
// backup. One Session belongs to one capture session.
type Session struct {
	mu sync.Mutex

	cardID string
	seq    uint64
	cancel context.CancelFunc

	state    FetchState
	err      error
	mode     Mode
	response *ocr.Response
	result   *Result

	apply      ApplyState
	lowOffered bool
}

// ErrStaleCard is reported for a fetch started for a card the session no
// longer holds.
var ErrStaleCard = errors.New("suggestion request is for a card that is no longer active")

// NewSession creates a session for cardID
func NewSession(cardID string) *Session {
	return &Session{cardID: cardID, state: StateIdle}
}

// Begin cancels any in-flight fetch and starts a new one for cardID. The
// returned id must be passed to Finish. A request for a card other than the
// bound one is refused without touching the in-flight fetch.
func (s *Session) Begin(parent context.Context, cardID string) (context.Context, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cardID != s.cardID {
		return nil, 0, ErrStaleCard
	}
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.seq++
	s.state = StateRunning
	s.err = nil
	return ctx, s.seq, nil
}

// Current reports whether id and cardID still name the latest fetch.
func (s *Session) Current(id uint64, cardID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return id == s.seq && cardID == s.cardID
}

// Finish records the outcome of fetch id. Stale outcomes, from an older
// request or another card, are discarded and report false.
func (s *Session) Finish(id uint64, cardID string, mode Mode, outcome Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.seq || cardID != s.cardID {
		return false
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	switch o := outcome.(type) {
	case Ready:
		s.state = StateReady
		s.mode = mode
		s.response = o.Response
		s.err = nil
	case Empty:
		s.state = StateEmpty
		s.mode = mode
		s.response = o.Response
		s.err = nil
	case Pending:
		s.state = StatePending
		s.err = nil
	case Failed:
		s.state = StateError
		s.err = o.Err
	}
	s.result = nil
	return true
}

// Reset cancels any fetch and rebinds the session to a new card.
func (s *Session) Reset(cardID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.cardID = cardID
	s.seq++
	s.state = StateIdle
	s.err = nil
	s.mode = ""
	s.response = nil
	s.result = nil
	s.apply.Reset()
	s.lowOffered = false
}

// CardID returns the card the session is bound to.
func (s *Session) CardID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cardID
}

// Response returns the last usable response and the mode it was fetched in.
func (s *Session) Response() (*ocr.Response, Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.response, s.mode
}

// HasResponse reports whether a fetch has completed with ready or empty.
func (s *Session) HasResponse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.response != nil
}

// State returns the fetch state and the last error.
func (s *Session) State() (FetchState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.err
}

// Status is a snapshot for presenting to the operator.
type Status struct {
	CardID             string                          `json:"cardId"`
	RequestID          uint64                          `json:"requestId"`
	State              FetchState                      `json:"state"`
	Mode               Mode                            `json:"mode,omitempty"`
	Error              string                          `json:"error,omitempty"`
	Suggestions        []Suggestion                    `json:"suggestions,omitempty"`
	TaxonomyStatus     map[models.Field]TaxonomyStatus `json:"taxonomyStatus,omitempty"`
	Applied            []models.Field                  `json:"applied,omitempty"`
	OfferLowConfidence bool                            `json:"offerLowConfidence"`
	Audit              []ocr.PhotoAudit                `json:"perPhotoAudit,omitempty"`
	TopCandidate       *ocr.Candidate                  `json:"matcherTopCandidate,omitempty"`
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		CardID:             s.cardID,
		RequestID:          s.seq,
		State:              s.state,
		Mode:               s.mode,
		Applied:            s.apply.Fields(),
		OfferLowConfidence: s.lowOffered && s.mode != ModeLow,
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	if s.result != nil {
		st.Suggestions = s.result.Suggestions
		st.TaxonomyStatus = s.result.TaxonomyStatus
	}
	if s.response != nil {
		st.Audit = s.response.Audit
		st.TopCandidate = s.response.TopCandidate
	}
	return st
}

// Package ocr adapts external OCR and vision services into per-field text
// and confidence suggestions for a card draft.
package ocr

import (
	"context"
	"errors"
	"strings"

	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/pool"
	"github.com/cardledger/cardintake/internal/teach"
)

// ErrNotReady is returned when OCR is requested before the card's upload
// finished. Retry once the asset id exists.
var ErrNotReady = errors.New("ocr input not ready")

// Status of an OCR response
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusEmpty   Status = "empty"
)

// Photo is one captured photo handed to an adapter. Adapters use Data when
// present and fall back to URL.
type Photo struct {
	Side     models.PhotoSide
	PhotoID  string
	URL      string
	MIMEType string
	Data     []byte
	Width    int
	Height   int
}

// Request asks for field suggestions for one card.
type Request struct {
	CardID        string
	AssetID       string
	Scope         pool.Scope
	LayoutClass   string
	Regions       teach.RegionsBySide
	Photos        []Photo
	LowConfidence bool
}

// PhotoAudit reports what OCR saw on one photo.
type PhotoAudit struct {
	Side       models.PhotoSide `json:"photoSide"`
	PhotoID    string           `json:"photoId,omitempty"`
	TextLength int              `json:"textLength"`
	Status     string           `json:"status"`
}

// Candidate is the external matcher's best catalog guess.
type Candidate struct {
	Label string  `json:"label"`
	SetID string  `json:"setId,omitempty"`
	Score float64 `json:"score"`
}

// Response carries per-field text and confidence. Fields absent from the
// maps had no value.
type Response struct {
	Status       Status                   `json:"status"`
	Fields       map[models.Field]string  `json:"fields"`
	Confidence   map[models.Field]float64 `json:"confidence"`
	Audit        []PhotoAudit             `json:"perPhotoAudit,omitempty"`
	TopCandidate *Candidate               `json:"matcherTopCandidate,omitempty"`
}

// Adapter produces field suggestions from captured photos.
type Adapter interface {
	Suggest(ctx context.Context, req Request) (*Response, error)
}

// HasValues reports whether any field carries non-blank text.
func (r *Response) HasValues() bool {
	if r == nil {
		return false
	}
	for _, v := range r.Fields {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// normalize drops blank values and fixes the status of a ready response
// that carries nothing.
func (r *Response) normalize() {
	if r.Fields == nil {
		r.Fields = make(map[models.Field]string)
	}
	if r.Confidence == nil {
		r.Confidence = make(map[models.Field]float64)
	}
	for f, v := range r.Fields {
		v = strings.TrimSpace(v)
		if v == "" {
			delete(r.Fields, f)
			continue
		}
		r.Fields[f] = v
	}
	for f, c := range r.Confidence {
		switch {
		case c < 0:
			r.Confidence[f] = 0
		case c > 1:
			r.Confidence[f] = 1
		}
	}
	if r.Status == "" {
		r.Status = StatusReady
	}
	if r.Status == StatusReady && len(r.Fields) == 0 {
		r.Status = StatusEmpty
	}
}

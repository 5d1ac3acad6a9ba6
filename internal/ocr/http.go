package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/pool"
	"github.com/cardledger/cardintake/internal/remote"
	"github.com/cardledger/cardintake/internal/teach"
)

const suggestionService = "ocr suggestion service"

// HTTPAdapter calls an external suggestion backend that runs OCR and
// catalog matching itself.
type HTTPAdapter struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
}

// NewHTTPAdapter creates a new suggestion backend client
func NewHTTPAdapter(baseURL, apiKey string) *HTTPAdapter {
	return &HTTPAdapter{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type suggestionRequest struct {
	AssetID       string              `json:"assetId"`
	Scope         pool.Scope          `json:"scope"`
	LayoutClass   string              `json:"layoutClass,omitempty"`
	Regions       teach.RegionsBySide `json:"regionsBySide,omitempty"`
	LowConfidence bool                `json:"lowConfidence"`
}

type suggestionResponse struct {
	Status       Status              `json:"status"`
	Fields       map[string]*string  `json:"fields"`
	Confidence   map[string]*float64 `json:"confidence"`
	Audit        []PhotoAudit        `json:"perPhotoAudit"`
	TopCandidate *Candidate          `json:"matcherTopCandidate"`
}

// Suggest requests suggestions for req.CardID. A missing asset id, or a
// 409/425 from the backend, yields ErrNotReady.
func (a *HTTPAdapter) Suggest(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.AssetID) == "" {
		return nil, ErrNotReady
	}

	body, err := json.Marshal(suggestionRequest{
		AssetID:       req.AssetID,
		Scope:         req.Scope,
		LayoutClass:   req.LayoutClass,
		Regions:       req.Regions,
		LowConfidence: req.LowConfidence,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal suggestion request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/cards/%s/ocr-suggestions", a.BaseURL, url.PathEscape(req.CardID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create suggestion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.APIKey)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, remote.Wrap(suggestionService, "request suggestions", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusTooEarly {
		return nil, fmt.Errorf("%w: %w", ErrNotReady, remote.CheckResponse(suggestionService, resp))
	}
	if err := remote.CheckResponse(suggestionService, resp); err != nil {
		return nil, err
	}

	var wire suggestionResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode suggestion response: %w", err)
	}

	out := &Response{
		Status:       wire.Status,
		Fields:       make(map[models.Field]string, len(wire.Fields)),
		Confidence:   make(map[models.Field]float64, len(wire.Confidence)),
		Audit:        wire.Audit,
		TopCandidate: wire.TopCandidate,
	}
	for name, v := range wire.Fields {
		if v != nil {
			out.Fields[models.Field(name)] = *v
		}
	}
	for name, c := range wire.Confidence {
		if c != nil {
			out.Confidence[models.Field(name)] = *c
		}
	}
	out.normalize()

	slog.Debug("Received OCR suggestions",
		"card_id", req.CardID,
		"status", out.Status,
		"fields", len(out.Fields),
		"low_confidence", req.LowConfidence)
	return out, nil
}

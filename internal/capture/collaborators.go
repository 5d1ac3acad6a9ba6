package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/remote"
)

// Classification is the payload persisted for a submitted card.
type Classification struct {
	CardID   string                `json:"cardId"`
	AssetID  string                `json:"assetId"`
	Required models.RequiredFields `json:"required"`
	Optional models.OptionalFields `json:"optional"`
	Photos   map[string]string     `json:"photoIds"`
}

// MetadataStore persists the classification of a card asset.
type MetadataStore interface {
	UpdateClassification(ctx context.Context, c Classification) error
}

// PostProcessor kicks off downstream processing of a submitted asset.
type PostProcessor interface {
	Process(ctx context.Context, assetID string) error
}

// QueueItem is a captured card waiting for review.
type QueueItem struct {
	CardID     string            `json:"cardId"`
	Draft      *models.CardDraft `json:"draft"`
	Touched    []models.Field    `json:"touched,omitempty"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`
}

// IntakeQueue holds cards captured but not yet reviewed, oldest first.
type IntakeQueue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, bool, error)
	List(ctx context.Context) ([]QueueItem, error)
	Remove(ctx context.Context, cardID string) error
}

const (
	metadataService    = "card metadata store"
	postProcessService = "post-processor"
)

// HTTPMetadataStore PATCHes classifications to the card metadata service.
type HTTPMetadataStore struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
}

// NewHTTPMetadataStore creates a metadata store client
func NewHTTPMetadataStore(baseURL, apiKey string) *HTTPMetadataStore {
	return &HTTPMetadataStore{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// UpdateClassification sends PATCH /api/cards/{assetId}/classification.
func (s *HTTPMetadataStore) UpdateClassification(ctx context.Context, c Classification) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal classification: %w", err)
	}
	endpoint := fmt.Sprintf("%s/api/cards/%s/classification", s.BaseURL, url.PathEscape(c.AssetID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create classification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return remote.Wrap(metadataService, "update classification", err)
	}
	defer resp.Body.Close()
	return remote.CheckResponse(metadataService, resp)
}

// HTTPPostProcessor triggers POST /api/cards/{assetId}/process.
type HTTPPostProcessor struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
}

// NewHTTPPostProcessor creates a post-processing client
func NewHTTPPostProcessor(baseURL, apiKey string) *HTTPPostProcessor {
	return &HTTPPostProcessor{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Process asks the post-processing service to pick up assetID.
func (p *HTTPPostProcessor) Process(ctx context.Context, assetID string) error {
	endpoint := fmt.Sprintf("%s/api/cards/%s/process", p.BaseURL, url.PathEscape(assetID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create post-process request: %w", err)
	}
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return remote.Wrap(postProcessService, "trigger post-processing", err)
	}
	defer resp.Body.Close()
	return remote.CheckResponse(postProcessService, resp)
}

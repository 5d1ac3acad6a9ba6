package teach

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

const serviceName = "teach template store"

// SideTemplate is the wire form of one side's regions.
type SideTemplate struct {
	Side    models.PhotoSide `json:"photoSide"`
	Regions []Region         `json:"regions"`
}

// SaveRequest is the body of a template save.
type SaveRequest struct {
	SetID       string         `json:"setId"`
	LayoutClass string         `json:"layoutClass"`
	Templates   []SideTemplate `json:"templates"`
}

// RegionsResponse is returned by both load and save.
type RegionsResponse struct {
	RegionsBySide RegionsBySide `json:"regionsBySide"`
}

// ToTemplates flattens regions into per-side payloads in capture order.
func ToTemplates(rs RegionsBySide) []SideTemplate {
	var out []SideTemplate
	for _, side := range models.PhotoSides {
		if len(rs[side]) == 0 {
			continue
		}
		out = append(out, SideTemplate{Side: side, Regions: rs[side]})
	}
	return out
}

// FromTemplates groups per-side payloads back into regions by side.
func FromTemplates(templates []SideTemplate) RegionsBySide {
	out := make(RegionsBySide)
	for _, t := range templates {
		out[t.Side] = append(out[t.Side], t.Regions...)
	}
	return out
}

// HTTPStore talks to a remote teach template store.
type HTTPStore struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
}

// NewHTTPStore creates a template store client
func NewHTTPStore(baseURL, apiKey string) *HTTPStore {
	return &HTTPStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (s *HTTPStore) cardURL(cardID string, key Key) string {
	q := url.Values{}
	q.Set("setId", key.SetID)
	q.Set("layoutClass", key.LayoutClass)
	return fmt.Sprintf("%s/api/cards/%s/teach-templates?%s", s.BaseURL, url.PathEscape(cardID), q.Encode())
}

// Load fetches the regions for key.
func (s *HTTPStore) Load(ctx context.Context, cardID string, key Key) (RegionsBySide, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cardURL(cardID, key), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create template request: %w", err)
	}
	return s.do(req, "load teach template")
}

// Save posts regions and returns the store's echo.
func (s *HTTPStore) Save(ctx context.Context, cardID string, key Key, regions RegionsBySide) (RegionsBySide, error) {
	body, err := json.Marshal(SaveRequest{
		SetID:       key.SetID,
		LayoutClass: key.LayoutClass,
		Templates:   ToTemplates(regions),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/cards/%s/teach-templates", s.BaseURL, url.PathEscape(cardID)),
		bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create template request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, "save teach template")
}

// Clear deletes the template for key.
func (s *HTTPStore) Clear(ctx context.Context, key Key) error {
	q := url.Values{}
	q.Set("setId", key.SetID)
	q.Set("layoutClass", key.LayoutClass)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/api/teach-templates?%s", s.BaseURL, q.Encode()), nil)
	if err != nil {
		return fmt.Errorf("failed to create template request: %w", err)
	}
	s.authorize(req)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return remote.Wrap(serviceName, "clear teach template", err)
	}
	defer resp.Body.Close()
	return remote.CheckResponse(serviceName, resp)
}

func (s *HTTPStore) authorize(req *http.Request) {
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}
}

func (s *HTTPStore) do(req *http.Request, operation string) (RegionsBySide, error) {
	s.authorize(req)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, remote.Wrap(serviceName, operation, err)
	}
	defer resp.Body.Close()

	if err := remote.CheckResponse(serviceName, resp); err != nil {
		return nil, err
	}

	var out RegionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode template response: %w", err)
	}
	if out.RegionsBySide == nil {
		out.RegionsBySide = make(RegionsBySide)
	}
	return out.RegionsBySide, nil
}

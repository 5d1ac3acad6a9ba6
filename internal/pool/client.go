package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cardledger/cardintake/internal/remote"
)

const serviceName = "option pool"

// HTTPProvider queries an external option pool service
type HTTPProvider struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
}

// NewHTTPProvider creates a new option pool client
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Fetch loads the pool for scope. Incomplete scopes fail with ErrNoScope
// without calling the service.
func (c *HTTPProvider) Fetch(ctx context.Context, scope Scope) (*Pool, error) {
	if !scope.Complete() {
		return nil, ErrNoScope
	}

	q := url.Values{}
	q.Set("year", scope.Year)
	q.Set("manufacturer", scope.Manufacturer)
	if scope.Sport != "" {
		q.Set("sport", scope.Sport)
	}
	if scope.ProductLine != "" {
		q.Set("productLine", scope.ProductLine)
	}
	poolURL := fmt.Sprintf("%s/api/option-pool?%s", c.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, poolURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create option pool request: %w", err)
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, remote.Wrap(serviceName, "fetch option pool", err)
	}
	defer resp.Body.Close()

	if err := remote.CheckResponse(serviceName, resp); err != nil {
		return nil, err
	}

	var p Pool
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode option pool response: %w", err)
	}
	p.Scope = scope
	if p.Summary.ApprovedSetCount == 0 {
		p.Summary.ApprovedSetCount = len(p.ProductSets)
	}
	if p.Summary.VariantCount == 0 {
		p.Summary.VariantCount = len(p.InsertOptions) + len(p.ParallelOptions)
	}

	slog.Debug("Fetched option pool",
		"scope", scope.Key(),
		"sets", len(p.ProductSets),
		"inserts", len(p.InsertOptions),
		"parallels", len(p.ParallelOptions))
	return &p, nil
}

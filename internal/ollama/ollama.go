package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cardledger/cardintake/internal/providers"
	"github.com/cardledger/cardintake/internal/remote"
)

// DefaultURL is used when no Ollama host is configured
const DefaultURL = "http://localhost:11434"

const service = "ollama"

// Ollama reads card photos through a local Ollama vision model
type Ollama struct {
	BaseURL    string
	httpClient *http.Client
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Images  []string        `json:"images,omitempty"`
	Format  string          `json:"format,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// New returns a new Ollama provider
func New(baseURL string) *Ollama {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Ollama{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// ExtractText sends the prompt and photos to /api/generate and returns the
// model's raw reply
func (o *Ollama) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	payload := generateRequest{
		Model:   config.Model,
		Prompt:  config.Prompt,
		Options: generateOptions{Temperature: config.Temperature},
	}
	for _, img := range config.Images {
		payload.Images = append(payload.Images, base64.StdEncoding.EncodeToString(img.Data))
	}
	if config.JSON {
		payload.Format = "json"
	}

	requestBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/generate", bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", remote.Wrap(service, "send request", err)
	}
	defer resp.Body.Close()

	if err := remote.CheckResponse(service, resp); err != nil {
		return "", err
	}

	var response generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	return response.Response, nil
}

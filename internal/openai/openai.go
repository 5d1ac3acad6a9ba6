package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cardledger/cardintake/internal/providers"
	"github.com/cardledger/cardintake/internal/remote"
)

// DefaultURL is the public OpenAI API root
const DefaultURL = "https://api.openai.com/v1"

const service = "openai"

// ErrMissingKey is returned before any request when no API key is set.
var ErrMissingKey = errors.New("openai api key not set (ocr.openai_api_key or OPENAI_API_KEY)")

// OpenAI reads card photos through the chat completions API
type OpenAI struct {
	APIKey     string
	BaseURL    string
	httpClient *http.Client
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// New returns a new OpenAI provider
func New(apiKey string) *OpenAI {
	return &OpenAI{
		APIKey:     apiKey,
		BaseURL:    DefaultURL,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// ExtractText sends the prompt and photos as one user message and returns the
// first choice
func (o *OpenAI) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	if o.APIKey == "" {
		return "", ErrMissingKey
	}

	parts := []contentPart{{Type: "text", Text: config.Prompt}}
	for _, img := range config.Images {
		mime := img.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)},
		})
	}

	payload := chatRequest{
		Model:       config.Model,
		Messages:    []message{{Role: "user", Content: parts}},
		Temperature: config.Temperature,
	}
	if config.JSON {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	requestBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	url := strings.TrimRight(o.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", remote.Wrap(service, "send request", err)
	}
	defer resp.Body.Close()

	if err := remote.CheckResponse(service, resp); err != nil {
		return "", err
	}

	var response chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from OpenAI")
	}

	return response.Choices[0].Message.Content, nil
}

package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/cardledger/cardintake/internal/providers"
	"github.com/cardledger/cardintake/internal/remote"
)

// ErrMissingKey is returned before any request when no API key is set.
var ErrMissingKey = errors.New("gemini api key not set (ocr.gemini_api_key or GEMINI_API_KEY)")

// Gemini reads card photos through the Gemini API
type Gemini struct {
	APIKey string
}

// New returns a new Gemini provider
func New(apiKey string) *Gemini {
	return &Gemini{APIKey: apiKey}
}

// ExtractText extracts text from the given prompt and images using Gemini
func (g *Gemini) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	if g.APIKey == "" {
		return "", ErrMissingKey
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(g.APIKey))
	if err != nil {
		return "", fmt.Errorf("failed to create new gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(config.Model)
	model.SetTemperature(float32(config.Temperature))
	if config.JSON {
		model.ResponseMIMEType = "application/json"
	}

	parts := []genai.Part{genai.Text(config.Prompt)}
	for _, img := range config.Images {
		parts = append(parts, genai.ImageData(imageFormat(img.MIMEType), img.Data))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", remote.Wrap("gemini", "generate content", err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from Gemini")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("empty content returned from Gemini")
	}

	if txt, ok := candidate.Content.Parts[0].(genai.Text); ok {
		return string(txt), nil
	}

	return "", fmt.Errorf("unexpected response format from Gemini")
}

// imageFormat turns "image/png" into the "png" format name genai expects.
func imageFormat(mime string) string {
	format := strings.TrimPrefix(strings.ToLower(mime), "image/")
	if format == "" || format == "jpg" {
		return "jpeg"
	}
	return format
}

package providers

import (
	"context"
)

// Image is one photo passed to a vision-capable model
type Image struct {
	MIMEType string
	Data     []byte
}

// Config represents the configuration for an LLM provider
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
	Images      []Image
	// JSON asks the provider to constrain output to a JSON object
	JSON bool
}

// Provider defines the interface for an LLM provider
type Provider interface {
	ExtractText(ctx context.Context, config Config) (string, error)
}

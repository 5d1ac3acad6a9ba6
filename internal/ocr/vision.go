package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cardledger/cardintake/internal/gemini"
	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/ollama"
	"github.com/cardledger/cardintake/internal/openai"
	"github.com/cardledger/cardintake/internal/providers"
)

// ProviderSettings carries the credentials of the vision providers.
type ProviderSettings struct {
	OllamaURL string
	OpenAIKey string
	GeminiKey string
}

// NewProvider builds the named vision provider.
func NewProvider(name string, settings ProviderSettings) (providers.Provider, error) {
	switch name {
	case "", "ollama":
		return ollama.New(settings.OllamaURL), nil
	case "openai":
		return openai.New(settings.OpenAIKey), nil
	case "gemini":
		return gemini.New(settings.GeminiKey), nil
	default:
		return nil, fmt.Errorf("unsupported vision provider: %s", name)
	}
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o"
	case "gemini":
		return "gemini-1.5-flash"
	case "", "ollama":
		return "mistral-small3.2:24b"
	default:
		return ""
	}
}

// DefaultVisionMinConfidence is the bar of the high-confidence pass.
const DefaultVisionMinConfidence = 0.7

// VisionAdapter asks a vision LLM to read the card photos and report each
// field with a self-assessed confidence.
type VisionAdapter struct {
	Provider      providers.Provider
	Model         string
	MinConfidence float64
}

// NewVisionAdapter creates a vision adapter
func NewVisionAdapter(provider providers.Provider, model string) *VisionAdapter {
	return &VisionAdapter{
		Provider:      provider,
		Model:         model,
		MinConfidence: DefaultVisionMinConfidence,
	}
}

var visionFields = []models.Field{
	models.FieldPlayerName,
	models.FieldCardName,
	models.FieldSport,
	models.FieldGame,
	models.FieldManufacturer,
	models.FieldYear,
	models.FieldTeamName,
	models.FieldSetName,
	models.FieldInsertSet,
	models.FieldParallel,
	models.FieldCardNumber,
	models.FieldNumbered,
	models.FieldGradeCompany,
	models.FieldGradeValue,
	models.FieldTCGSeries,
	models.FieldRarity,
	models.FieldLanguage,
}

// Suggest runs the vision model over the request photos.
func (a *VisionAdapter) Suggest(ctx context.Context, req Request) (*Response, error) {
	var images []providers.Image
	var audit []PhotoAudit
	for _, p := range req.Photos {
		if len(p.Data) == 0 {
			continue
		}
		images = append(images, providers.Image{MIMEType: p.MIMEType, Data: p.Data})
		audit = append(audit, PhotoAudit{Side: p.Side, PhotoID: p.PhotoID, Status: "sent"})
	}
	if len(images) == 0 {
		return nil, ErrNotReady
	}

	raw, err := a.Provider.ExtractText(ctx, providers.Config{
		Model:       a.Model,
		Temperature: 0.0,
		Prompt:      a.buildPrompt(req),
		Images:      images,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read card photos: %w", err)
	}

	out, err := parseVisionResponse(raw)
	if err != nil {
		return nil, err
	}
	for i := range audit {
		audit[i].TextLength = len(raw)
	}
	out.Audit = audit

	if !req.LowConfidence {
		for f, c := range out.Confidence {
			if c < a.MinConfidence {
				delete(out.Fields, f)
				delete(out.Confidence, f)
			}
		}
	}
	out.normalize()

	slog.Info("Extracted card fields", "card_id", req.CardID, "model", a.Model, "fields", len(out.Fields))
	return out, nil
}

func (a *VisionAdapter) buildPrompt(req Request) string {
	names := make([]string, 0, len(visionFields))
	for _, f := range visionFields {
		names = append(names, string(f))
	}

	var hints strings.Builder
	if req.Scope.Year != "" {
		fmt.Fprintf(&hints, "- year: %s\n", req.Scope.Year)
	}
	if req.Scope.Manufacturer != "" {
		fmt.Fprintf(&hints, "- manufacturer: %s\n", req.Scope.Manufacturer)
	}
	if req.Scope.Sport != "" {
		fmt.Fprintf(&hints, "- sport or game: %s\n", req.Scope.Sport)
	}
	if req.Scope.ProductLine != "" {
		fmt.Fprintf(&hints, "- product line: %s\n", req.Scope.ProductLine)
	}
	if req.LayoutClass != "" {
		fmt.Fprintf(&hints, "- layout: %s\n", req.LayoutClass)
	}
	for _, side := range models.PhotoSides {
		for _, r := range req.Regions[side] {
			fmt.Fprintf(&hints, "- on the %s photo, %s is printed near x=%.2f y=%.2f (w=%.2f h=%.2f)\n",
				side, r.Field, r.X, r.Y, r.Width, r.Height)
		}
	}
	hintBlock := hints.String()
	if hintBlock == "" {
		hintBlock = "- none\n"
	}

	certainty := "Only report a field when the printed text makes it clear. Omit anything you are guessing."
	if req.LowConfidence {
		certainty = "Report your best reading for every field you can see, even when unsure, and lower the confidence accordingly."
	}

	return fmt.Sprintf(`You are reading photographs of one physical trading card: the front, the back, and a tilted shot that shows foil or refractor finishes.

Identify the following fields: %s.

Known context from the operator:
%s
INSTRUCTIONS:
1. Transcribe names, years, and set names exactly as printed.
2. "year" is the release year or season (for example 2021 or 2021-22).
3. "setName" is the product line, "insertSet" an insert subset, "parallel" a color or finish variant.
4. Confidence is a number between 0 and 1.
5. %s

OUTPUT FORMAT:
Respond with ONLY a JSON object:

{
  "fields": {
    "year": {"value": "2021", "confidence": 0.95}
  }
}`, strings.Join(names, ", "), hintBlock, certainty)
}

type visionField struct {
	Value      *string  `json:"value"`
	Confidence *float64 `json:"confidence"`
}

// parseVisionResponse reads the model output, tolerating markdown fences
// and prose around the JSON object.
func parseVisionResponse(response string) (*Response, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var result struct {
		Fields map[string]visionField `json:"fields"`
	}
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		start, end := strings.Index(response, "{"), strings.LastIndex(response, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("failed to parse vision response: %w", err)
		}
		if err := json.Unmarshal([]byte(response[start:end+1]), &result); err != nil {
			return nil, fmt.Errorf("failed to parse vision response: %w", err)
		}
	}

	out := &Response{
		Status:     StatusReady,
		Fields:     make(map[models.Field]string),
		Confidence: make(map[models.Field]float64),
	}
	for name, f := range result.Fields {
		if f.Value == nil {
			continue
		}
		field := models.Field(name)
		out.Fields[field] = *f.Value
		if f.Confidence != nil {
			out.Confidence[field] = *f.Confidence
		}
	}
	return out, nil
}

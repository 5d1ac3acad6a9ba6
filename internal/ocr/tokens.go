package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cardledger/cardintake/internal/remote"
)

const tokenService = "ocr token service"

// TokenImage is one image sent to the token OCR service.
type TokenImage struct {
	ID     string `json:"id,omitempty"`
	URL    string `json:"url,omitempty"`
	Base64 string `json:"base64,omitempty"`
}

// TokenPoint is one bounding-box corner in pixels of the processed image.
type TokenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Token is one recognized text line.
type Token struct {
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
	BBox       []TokenPoint `json:"bbox"`
	ImageID    string       `json:"image_id,omitempty"`
}

// Center returns the centre of the token's bounding box.
func (t Token) Center() (float64, float64, bool) {
	if len(t.BBox) == 0 {
		return 0, 0, false
	}
	var x, y float64
	for _, p := range t.BBox {
		x += p.X
		y += p.Y
	}
	n := float64(len(t.BBox))
	return x / n, y / n, true
}

// TokenResult is the OCR output for one image.
type TokenResult struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Tokens     []Token `json:"tokens"`
}

// TokenResponse is the body returned by the token OCR service.
type TokenResponse struct {
	Results      []TokenResult `json:"results"`
	CombinedText string        `json:"combined_text"`
}

// TokenClient calls a token-level OCR service (POST /ocr).
type TokenClient struct {
	BaseURL    string
	Token      string
	httpClient *http.Client
}

// NewTokenClient creates a token OCR client
func NewTokenClient(baseURL, token string) *TokenClient {
	return &TokenClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

// Recognize runs OCR over images.
func (c *TokenClient) Recognize(ctx context.Context, images []TokenImage) (*TokenResponse, error) {
	body, err := json.Marshal(map[string]interface{}{"images": images})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal OCR request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/ocr", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create OCR request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, remote.Wrap(tokenService, "run OCR", err)
	}
	defer resp.Body.Close()

	if err := remote.CheckResponse(tokenService, resp); err != nil {
		return nil, err
	}

	var out TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode OCR response: %w", err)
	}
	return &out, nil
}

// imageFromPhoto prefers inline bytes over a URL.
func imageFromPhoto(p Photo) (TokenImage, bool) {
	img := TokenImage{ID: string(p.Side)}
	switch {
	case len(p.Data) > 0:
		img.Base64 = base64.StdEncoding.EncodeToString(p.Data)
	case p.URL != "":
		img.URL = p.URL
	default:
		return TokenImage{}, false
	}
	return img, true
}

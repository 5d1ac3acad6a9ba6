package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cardledger/cardintake/internal/remote"
)

const serviceName = "photo transport"

// HTTPTransport talks to the photo transport service: a presign endpoint, a
// blob PUT to the presigned URL, and a completion endpoint.
type HTTPTransport struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
}

// NewHTTPTransport creates a photo transport client
func NewHTTPTransport(baseURL, apiKey string) *HTTPTransport {
	return &HTTPTransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

type presignRequest struct {
	BatchID     string `json:"batchId,omitempty"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

// Presign requests an upload URL. The batch id is omitted for the first file.
func (t *HTTPTransport) Presign(ctx context.Context, batchID string, f File) (Presigned, error) {
	var out Presigned
	err := t.postJSON(ctx, "/api/uploads/presign", presignRequest{
		BatchID:     batchID,
		FileName:    f.Name,
		ContentType: f.ContentType,
		Size:        len(f.Data),
	}, &out, "presign upload")
	return out, err
}

// Upload PUTs the file bytes to the presigned URL.
func (t *HTTPTransport) Upload(ctx context.Context, p Presigned, f File) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.UploadURL, bytes.NewReader(f.Data))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	if f.ContentType != "" {
		req.Header.Set("Content-Type", f.ContentType)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return remote.Wrap(serviceName, "upload photo", err)
	}
	defer resp.Body.Close()
	return remote.CheckResponse(serviceName, resp)
}

// Complete marks the upload finished and returns the recorded ids.
func (t *HTTPTransport) Complete(ctx context.Context, p Presigned, f File) (Record, error) {
	var out Record
	err := t.postJSON(ctx, "/api/uploads/complete", Record{BatchID: p.BatchID, PhotoID: p.PhotoID}, &out, "complete upload")
	return out, err
}

func (t *HTTPTransport) postJSON(ctx context.Context, path string, in, out interface{}, operation string) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.APIKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return remote.Wrap(serviceName, operation, err)
	}
	defer resp.Body.Close()

	if err := remote.CheckResponse(serviceName, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}

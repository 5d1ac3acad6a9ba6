// Package remote holds the error vocabulary shared by the HTTP clients of
// external collaborators (OCR backend, option pool, template store, photo
// transport, card metadata store).
package remote

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrTransport marks network and non-2xx failures from a collaborator.
	ErrTransport = errors.New("transport error")
	// ErrUnauthorized marks 401/403 responses.
	ErrUnauthorized = errors.New("unauthorized")
)

// StatusError carries the collaborator's status code and body verbatim so the
// operator sees exactly what the backend said.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		body = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, body)
}

// Unwrap classifies the status error for errors.Is checks.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	return ErrTransport
}

// CheckResponse returns a *StatusError for non-2xx responses. The body is
// consumed on error.
func CheckResponse(service string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return &StatusError{Service: service, StatusCode: resp.StatusCode, Body: string(body)}
}

// Wrap tags a request failure (DNS, refused connection, timeout) as a transport error.
func Wrap(service, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: failed to %s: %w", ErrTransport, service, operation, err)
}

// IsTransport reports whether err came from a collaborator failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrUnauthorized)
}

// StatusCode extracts the collaborator status code, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

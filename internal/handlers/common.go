package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cardledger/cardintake/internal/capture"
	"github.com/cardledger/cardintake/internal/ocr"
	"github.com/cardledger/cardintake/internal/pool"
	"github.com/cardledger/cardintake/internal/remote"
	"github.com/cardledger/cardintake/internal/storage"
	"github.com/cardledger/cardintake/internal/teach"
)

// TemplateLister is implemented by template stores that can enumerate.
type TemplateLister interface {
	List(ctx context.Context, setID string) ([]teach.Template, error)
}

// Options wires the handler to its collaborators.
type Options struct {
	Sessions   *storage.SessionStore
	NewSession func() *capture.Controller
	Templates  teach.Store
	Queue      capture.IntakeQueue
	Logger     *slog.Logger
}

type Handler struct {
	sessionStore *storage.SessionStore
	newSession   func() *capture.Controller
	templates    teach.Store
	queue        capture.IntakeQueue
	logger       *slog.Logger
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = storage.New()
	}
	return &Handler{
		sessionStore: sessions,
		newSession:   opts.NewSession,
		templates:    opts.Templates,
		queue:        opts.Queue,
		logger:       logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data any) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		h.logger.Error(message, "status", code)
	} else {
		h.logger.Warn(message, "status", code)
	}
	h.writeJSONStatus(w, code, errorResponse{Error: message})
}

// writeFailure renders err with the status of its class.
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	code := errorStatus(err)
	resp := errorResponse{Error: err.Error()}
	var verr *capture.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	if code >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "status", code, "error", err)
	} else {
		h.logger.Warn("Request rejected", "status", code, "error", err)
	}
	h.writeJSONStatus(w, code, resp)
}

func errorStatus(err error) int {
	var verr *capture.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, teach.ErrMissingSetID),
		errors.Is(err, teach.ErrNoRegions),
		errors.Is(err, teach.ErrEmptyValue),
		errors.Is(err, teach.ErrNoField),
		errors.Is(err, teach.ErrInvalidRegion),
		errors.Is(err, pool.ErrNoScope):
		return http.StatusBadRequest
	case errors.Is(err, capture.ErrInvalidTransition),
		errors.Is(err, capture.ErrAssetNotReady),
		errors.Is(err, capture.ErrClosed),
		errors.Is(err, ocr.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, capture.ErrAssetNotFound),
		errors.Is(err, capture.ErrNotQueued),
		errors.Is(err, teach.ErrRegionNotFound):
		return http.StatusNotFound
	case remote.IsTransport(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, sessionID string) (*capture.Controller, bool) {
	session, exists := h.sessionStore.Get(sessionID)
	if !exists {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return session, true
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cardledger/cardintake/internal/capture"
	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/suggest"
)

type toggleResponse struct {
	suggest.ToggleResult
	Error   string       `json:"error,omitempty"`
	Session capture.View `json:"session"`
}

func (h *Handler) HandleToggleSuggestions(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	h.writeToggle(w, session, session.ToggleSuggestions(r.Context()))
}

func (h *Handler) HandleLowConfidence(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	h.writeToggle(w, session, session.ApplyLowConfidence(r.Context()))
}

// writeToggle reports a failed fetch with its error class and every other
// outcome (including pending and empty) as a normal response.
func (h *Handler) writeToggle(w http.ResponseWriter, session *capture.Controller, res suggest.ToggleResult) {
	if res.Action == suggest.ActionFailed && res.Err != nil {
		h.writeFailure(w, res.Err)
		return
	}
	resp := toggleResponse{ToggleResult: res, Session: session.View()}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	h.writeJSON(w, resp)
}

func (h *Handler) HandleSuggestionStatus(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	h.writeJSON(w, session.SuggestionStatus())
}

// HandlePoolOptions lists the approved options of a taxonomy field,
// ranked against ?q= when given.
func (h *Handler) HandlePoolOptions(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	field := models.Field(chi.URLParam(r, "field"))
	if !field.IsTaxonomy() {
		h.writeError(w, "Options exist only for setName, insertSet and parallel", http.StatusBadRequest)
		return
	}
	options := session.PoolOptions(field, r.URL.Query().Get("q"))
	if options == nil {
		options = []string{}
	}
	h.writeJSON(w, map[string]any{
		"field":   field,
		"options": options,
	})
}

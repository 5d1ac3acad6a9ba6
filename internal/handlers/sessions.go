package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cardledger/cardintake/internal/capture"
	"github.com/cardledger/cardintake/internal/models"
)

type sessionSummary struct {
	SessionID string          `json:"sessionId"`
	CardID    string          `json:"cardId"`
	Step      capture.Step    `json:"step"`
	Category  models.Category `json:"category"`
	Identity  string          `json:"identity,omitempty"`
}

func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessionStore.GetAll()
	sessionList := make([]sessionSummary, 0, len(sessions))
	for _, session := range sessions {
		view := session.View()
		sessionList = append(sessionList, sessionSummary{
			SessionID: view.SessionID,
			CardID:    view.Draft.ID,
			Step:      view.Step,
			Category:  view.Draft.Required.Category,
			Identity:  view.Draft.Get(view.Draft.IdentityField()),
		})
	}
	h.writeJSON(w, sessionList)
}

func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	if h.newSession == nil {
		h.writeError(w, "Capture sessions are not configured", http.StatusServiceUnavailable)
		return
	}
	var request struct {
		Category models.Category `json:"category"`
	}
	if r.ContentLength != 0 {
		if !h.decodeJSON(w, r, &request) {
			return
		}
	}

	session := h.newSession()
	if request.Category != "" {
		if err := session.SetCategory(r.Context(), request.Category); err != nil {
			session.Close()
			h.writeFailure(w, err)
			return
		}
	}
	h.sessionStore.Set(session.ID(), session)
	h.logger.Info("Capture session created", "session_id", session.ID())
	h.writeJSONStatus(w, http.StatusCreated, session.View())
}

func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	h.writeJSON(w, session.View())
}

func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !h.sessionStore.Delete(sessionID) {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return
	}
	h.logger.Info("Capture session closed", "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleSetCategory(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	var request struct {
		Category models.Category `json:"category"`
	}
	if !h.decodeJSON(w, r, &request) {
		return
	}
	if err := session.SetCategory(r.Context(), request.Category); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, session.View())
}

type fieldEdit struct {
	Field models.Field `json:"field"`
	Value string       `json:"value"`
}

// HandleSetFields applies operator edits in the order given.
func (h *Handler) HandleSetFields(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	var request struct {
		Fields []fieldEdit `json:"fields"`
	}
	if !h.decodeJSON(w, r, &request) {
		return
	}
	for _, edit := range request.Fields {
		if err := session.SetField(r.Context(), edit.Field, edit.Value); err != nil {
			h.writeFailure(w, err)
			return
		}
	}
	h.writeJSON(w, session.View())
}

func (h *Handler) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	if _, err := session.Advance(r.Context()); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, session.View())
}

func (h *Handler) HandleBack(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	if _, err := session.Back(); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, session.View())
}

func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	if err := session.Validate(); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, map[string]bool{"valid": true})
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	result, err := session.Submit(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, map[string]any{
		"result":  result,
		"session": session.View(),
	})
}

func (h *Handler) HandleDefer(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	item, err := session.Defer(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, map[string]any{
		"deferredCardId": item.CardID,
		"session":        session.View(),
	})
}

func (h *Handler) HandleResume(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	if err := session.Resume(r.Context(), chi.URLParam(r, "cardID")); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, session.View())
}

func (h *Handler) HandleListQueue(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		h.writeJSON(w, []capture.QueueItem{})
		return
	}
	items, err := h.queue.List(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	if items == nil {
		items = []capture.QueueItem{}
	}
	h.writeJSON(w, items)
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cardledger/cardintake/internal/teach"
)

// The template store endpoints serve the same contract teach.HTTPStore
// speaks, so one deployment can hold the templates of many capture stations.

func templateKey(r *http.Request) teach.Key {
	q := r.URL.Query()
	return teach.Key{SetID: q.Get("setId"), LayoutClass: q.Get("layoutClass")}.Normalize()
}

func (h *Handler) requireTemplates(w http.ResponseWriter) bool {
	if h.templates == nil {
		h.writeError(w, "Teach template store is not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (h *Handler) HandleLoadTemplate(w http.ResponseWriter, r *http.Request) {
	if !h.requireTemplates(w) {
		return
	}
	key := templateKey(r)
	if key.SetID == "" {
		h.writeFailure(w, teach.ErrMissingSetID)
		return
	}
	regions, err := h.templates.Load(r.Context(), chi.URLParam(r, "cardID"), key)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	if regions == nil {
		regions = make(teach.RegionsBySide)
	}
	h.writeJSON(w, teach.RegionsResponse{RegionsBySide: regions})
}

func (h *Handler) HandleStoreTemplate(w http.ResponseWriter, r *http.Request) {
	if !h.requireTemplates(w) {
		return
	}
	var request teach.SaveRequest
	if !h.decodeJSON(w, r, &request) {
		return
	}
	key := teach.Key{SetID: request.SetID, LayoutClass: request.LayoutClass}.Normalize()
	saved, err := h.templates.Save(r.Context(), chi.URLParam(r, "cardID"), key, teach.FromTemplates(request.Templates))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.logger.Info("Teach template stored", "set_id", key.SetID, "layout_class", key.LayoutClass, "regions", saved.Count())
	h.writeJSON(w, teach.RegionsResponse{RegionsBySide: saved})
}

func (h *Handler) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	if !h.requireTemplates(w) {
		return
	}
	lister, ok := h.templates.(TemplateLister)
	if !ok {
		h.writeError(w, "Teach template store cannot list templates", http.StatusNotImplemented)
		return
	}
	templates, err := lister.List(r.Context(), r.URL.Query().Get("setId"))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	if templates == nil {
		templates = []teach.Template{}
	}
	h.writeJSON(w, templates)
}

func (h *Handler) HandleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if !h.requireTemplates(w) {
		return
	}
	key := templateKey(r)
	if key.SetID == "" {
		h.writeFailure(w, teach.ErrMissingSetID)
		return
	}
	if err := h.templates.Clear(r.Context(), key); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.logger.Info("Teach template cleared", "set_id", key.SetID, "layout_class", key.LayoutClass)
	w.WriteHeader(http.StatusNoContent)
}

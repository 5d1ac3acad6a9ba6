package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/teach"
)

type regionsResponse struct {
	Template      teach.Key           `json:"template"`
	RegionsBySide teach.RegionsBySide `json:"regionsBySide"`
}

func (h *Handler) HandleListRegions(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	key, regions := session.Regions()
	h.writeJSON(w, regionsResponse{Template: key, RegionsBySide: regions})
}

// HandleDrag drives the region drawing gesture. The phase is begin, update
// or end; end reports the region it produced, if any.
func (h *Handler) HandleDrag(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	var request struct {
		Phase string           `json:"phase"`
		Side  models.PhotoSide `json:"photoSide"`
		X     float64          `json:"x"`
		Y     float64          `json:"y"`
	}
	if !h.decodeJSON(w, r, &request) {
		return
	}
	p := teach.Point{X: request.X, Y: request.Y}

	switch request.Phase {
	case "begin":
		if err := session.BeginDrag(request.Side, p); err != nil {
			h.writeFailure(w, err)
			return
		}
		h.writeJSON(w, map[string]string{"phase": "begin"})
	case "update":
		session.UpdateDrag(p)
		h.writeJSON(w, map[string]string{"phase": "update"})
	case "end":
		session.UpdateDrag(p)
		region, created := session.EndDrag()
		resp := map[string]any{"phase": "end", "created": created}
		if created {
			resp["region"] = region
		}
		h.writeJSON(w, resp)
	default:
		h.writeError(w, "Invalid phase. Must be 'begin', 'update', or 'end'", http.StatusBadRequest)
	}
}

func (h *Handler) HandleBindRegion(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	var request struct {
		Field models.Field `json:"targetField"`
		Value string       `json:"targetValue"`
		Note  string       `json:"note"`
	}
	if !h.decodeJSON(w, r, &request) {
		return
	}
	region, err := session.BindRegion(chi.URLParam(r, "regionID"), request.Field, request.Value, request.Note)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, region)
}

func (h *Handler) HandleRemoveRegion(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	if !session.RemoveRegion(chi.URLParam(r, "regionID")) {
		h.writeFailure(w, teach.ErrRegionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	if _, err := session.SaveTemplate(r.Context()); err != nil {
		h.writeFailure(w, err)
		return
	}
	key, regions := session.Regions()
	h.writeJSON(w, regionsResponse{Template: key, RegionsBySide: regions})
}

func (h *Handler) HandleClearTemplate(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	if err := session.ClearTemplate(r.Context()); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleOverrideLayout pins the layout class; an empty class resumes
// auto-derivation.
func (h *Handler) HandleOverrideLayout(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	var request struct {
		LayoutClass string `json:"layoutClass"`
	}
	if !h.decodeJSON(w, r, &request) {
		return
	}
	session.OverrideLayout(r.Context(), request.LayoutClass)
	h.writeJSON(w, session.View())
}

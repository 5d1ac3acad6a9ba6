package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes returns the HTTP API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthcheck", h.HandleHealthcheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.HandleListSessions)
			r.Post("/", h.HandleCreateSession)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.HandleGetSession)
				r.Delete("/", h.HandleDeleteSession)

				r.Put("/category", h.HandleSetCategory)
				r.Patch("/fields", h.HandleSetFields)
				r.Post("/photos/{side}", h.HandleCapturePhoto)

				r.Post("/advance", h.HandleAdvance)
				r.Post("/back", h.HandleBack)
				r.Get("/validate", h.HandleValidate)
				r.Post("/submit", h.HandleSubmit)
				r.Post("/defer", h.HandleDefer)
				r.Post("/resume/{cardID}", h.HandleResume)

				r.Get("/suggestions", h.HandleSuggestionStatus)
				r.Post("/suggestions/toggle", h.HandleToggleSuggestions)
				r.Post("/suggestions/low-confidence", h.HandleLowConfidence)
				r.Get("/options/{field}", h.HandlePoolOptions)

				r.Get("/regions", h.HandleListRegions)
				r.Post("/regions/drag", h.HandleDrag)
				r.Put("/regions/{regionID}", h.HandleBindRegion)
				r.Delete("/regions/{regionID}", h.HandleRemoveRegion)
				r.Post("/template", h.HandleSaveTemplate)
				r.Delete("/template", h.HandleClearTemplate)
				r.Put("/layout", h.HandleOverrideLayout)
			})
		})

		r.Get("/queue", h.HandleListQueue)

		r.Get("/cards/{cardID}/teach-templates", h.HandleLoadTemplate)
		r.Post("/cards/{cardID}/teach-templates", h.HandleStoreTemplate)
		r.Get("/teach-templates", h.HandleListTemplates)
		r.Delete("/teach-templates", h.HandleDeleteTemplate)
	})
	return r
}

func (h *Handler) HandleHealthcheck(w http.ResponseWriter, r *http.Request) {
	if _, err := w.Write([]byte("OK")); err != nil {
		h.logger.Error("Unable to write healthcheck", "err", err)
	}
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

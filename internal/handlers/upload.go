package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/upload"
)

// HandleCapturePhoto accepts one photo for a side. The upload to the photo
// store runs in the background; the response reflects the optimistic step.
func (h *Handler) HandleCapturePhoto(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	side := models.PhotoSide(chi.URLParam(r, "side"))
	if !side.Valid() {
		h.writeError(w, "Invalid photo side. Must be 'front', 'back', or 'tilt'", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes+1024*1024)
	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("files")
		if err != nil {
			h.writeError(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	defer file.Close()

	data, err := readPhoto(file)
	if err != nil {
		if errors.Is(err, errPhotoTooLarge) {
			h.writeError(w, "File too large (max 10MB)", http.StatusBadRequest)
			return
		}
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	width, height, err := getImageDimensions(data)
	if err != nil {
		h.logger.Warn("Failed to get image dimensions", "side", side, "error", err)
		width, _ = strconv.Atoi(r.FormValue("width"))
		height, _ = strconv.Atoi(r.FormValue("height"))
	}

	step, err := session.CapturePhoto(side, upload.File{
		Name:        photoName(string(side), header),
		ContentType: photoContentType(header, data),
		Data:        data,
	}, width, height)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	h.logger.Info("Photo captured", "session_id", session.ID(), "side", side, "bytes", len(data), "step", step)
	h.writeJSON(w, session.View())
}

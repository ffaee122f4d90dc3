package handlers

import (
	"log/slog"
	"net/http"

	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/identify"
)

// AttendeesHandler handles attendee enrollment
type AttendeesHandler struct {
	pipeline *identify.Pipeline
	logger   *slog.Logger
}

// NewAttendeesHandler creates a new attendees handler
func NewAttendeesHandler(pipeline *identify.Pipeline, logger *slog.Logger) *AttendeesHandler {
	return &AttendeesHandler{pipeline: pipeline, logger: logger}
}

// Enroll stores the face in the uploaded image as the attendee's reference embedding.
func (h *AttendeesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	image, err := readUpload(w, r, "image", constants.MaxImageUploadSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	attendee, err := h.pipeline.Enroll(r.Context(), id, image)
	if err != nil {
		respondPipelineError(w, h.logger, err)
		return
	}
	h.logger.Info("enrolled via API", "attendee_id", id, "name", sanitizeForLog(attendee.Name))
	respondJSON(w, http.StatusOK, attendee)
}

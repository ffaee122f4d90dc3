package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/identify"
)

// IdentifyHandler handles face identification endpoints
type IdentifyHandler struct {
	pipeline *identify.Pipeline
	logger   *slog.Logger
}

// NewIdentifyHandler creates a new identify handler
func NewIdentifyHandler(pipeline *identify.Pipeline, logger *slog.Logger) *IdentifyHandler {
	return &IdentifyHandler{pipeline: pipeline, logger: logger}
}

// Identify returns the attendees shown in the uploaded image, best match first.
// With ?candidates=true the match distances are included. An optional attendeeIds
// form field (repeated or comma-separated) restricts the match to those attendees.
func (h *IdentifyHandler) Identify(w http.ResponseWriter, r *http.Request) {
	withCandidates, _ := strconv.ParseBool(r.URL.Query().Get("candidates"))

	image, err := readUpload(w, r, "image", constants.MaxImageUploadSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	roster, err := formUUIDs(r, "attendeeIds")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var candidates []facematch.Candidate
	if len(roster) > 0 {
		candidates, err = h.pipeline.IdentifyAmong(r.Context(), image, roster)
	} else {
		candidates, err = h.pipeline.IdentifyCandidates(r.Context(), image)
	}
	if err != nil {
		respondPipelineError(w, h.logger, err)
		return
	}

	if withCandidates {
		respondJSON(w, http.StatusOK, candidates)
		return
	}
	respondJSON(w, http.StatusOK, facematch.Attendees(candidates))
}

// formUUIDs reads a multipart form field holding UUIDs, repeated or comma-separated.
func formUUIDs(r *http.Request, field string) ([]uuid.UUID, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	var ids []uuid.UUID
	for _, value := range r.MultipartForm.Value[field] {
		for item := range strings.SplitSeq(value, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			id, err := uuid.Parse(item)
			if err != nil {
				return nil, fmt.Errorf("invalid %s entry %q", field, item)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

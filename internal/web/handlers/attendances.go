package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/identify"
)

// AttendancesHandler handles attendance recording and queries
type AttendancesHandler struct {
	pipeline *identify.Pipeline
	logger   *slog.Logger
}

// NewAttendancesHandler creates a new attendances handler
func NewAttendancesHandler(pipeline *identify.Pipeline, logger *slog.Logger) *AttendancesHandler {
	return &AttendancesHandler{pipeline: pipeline, logger: logger}
}

// CreateAttendancesRequest is the body of a batch attendance request
type CreateAttendancesRequest struct {
	AttendeeIDs []uuid.UUID `json:"attendeeIds"`
}

// CreateBatch records attendance for several attendees of one subject, all or nothing.
func (h *AttendancesHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := uuidParam(w, r, "subjectId")
	if !ok {
		return
	}

	var req CreateAttendancesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	records, err := h.pipeline.RecordAttendances(r.Context(), subjectID, req.AttendeeIDs)
	if err != nil {
		respondPipelineError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, records)
}

// Put records attendance for a single attendee.
func (h *AttendancesHandler) Put(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := uuidParam(w, r, "subjectId")
	if !ok {
		return
	}
	attendeeID, ok := uuidParam(w, r, "attendeeId")
	if !ok {
		return
	}

	rec, err := h.pipeline.RecordAttendance(r.Context(), subjectID, attendeeID)
	if err != nil {
		respondPipelineError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

// CreateFromImage identifies the best match in the uploaded image and records their attendance.
func (h *AttendancesHandler) CreateFromImage(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := uuidParam(w, r, "subjectId")
	if !ok {
		return
	}

	image, err := readUpload(w, r, "image", constants.MaxImageUploadSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.pipeline.RecordAttendanceFromImage(r.Context(), subjectID, image)
	if err != nil {
		respondPipelineError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

// List returns attendances filtered by the optional subjectId and attendeeId query params.
func (h *AttendancesHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter database.AttendancesFilter
	var err error
	if filter.SubjectID, err = uuidQuery(r, "subjectId"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.AttendeeID, err = uuidQuery(r, "attendeeId"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.pipeline.GetAttendances(r.Context(), filter)
	if err != nil {
		respondPipelineError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// Get returns one attendance.
func (h *AttendancesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	rec, err := h.pipeline.GetAttendance(r.Context(), id)
	if err != nil {
		respondPipelineError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// Delete removes an attendance.
func (h *AttendancesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.pipeline.DeleteAttendance(r.Context(), id); err != nil {
		respondPipelineError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

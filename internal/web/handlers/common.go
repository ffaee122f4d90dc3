package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/identify"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// DuplicateAttendanceResponse is the 409 body for an attendance already taken today.
type DuplicateAttendanceResponse struct {
	Error      string    `json:"error"`
	AttendeeID uuid.UUID `json:"attendeeId"`
	SubjectID  uuid.UUID `json:"subjectId"`
}

// respondPipelineError maps domain errors to HTTP statuses. Unknown errors are logged
// and reported as 500 without details.
func respondPipelineError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var dup *database.DuplicateAttendanceError
	switch {
	case errors.As(err, &dup):
		respondJSON(w, http.StatusConflict, DuplicateAttendanceResponse{
			Error:      "attendance already taken",
			AttendeeID: dup.AttendeeID,
			SubjectID:  dup.SubjectID,
		})
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, identify.ErrRecognitionUnavailable):
		logger.Warn("recognition service failed", "error", err)
		respondError(w, http.StatusBadGateway, "face recognition unavailable")
	case errors.Is(err, identify.ErrNoMatch):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, identify.ErrEmptyBatch),
		errors.Is(err, identify.ErrInvalidMode):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		// client went away, nobody reads the response
	default:
		logger.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// readUpload reads one file part of a multipart form, capped at limit bytes.
func readUpload(w http.ResponseWriter, r *http.Request, field string, limit int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(min(limit, constants.MaxImageUploadSize)); err != nil {
		return nil, fmt.Errorf("failed to parse multipart form: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("%s is required", field)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", field, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty", field)
	}
	return data, nil
}

// uuidParam parses a chi URL parameter, answering 400 when it is not a UUID.
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// uuidQuery parses an optional UUID query parameter.
func uuidQuery(r *http.Request, name string) (*uuid.UUID, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", name)
	}
	return &id, nil
}

// Pinger reports storage reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	storage Pinger
	logger  *slog.Logger
}

// NewHealthHandler creates a health handler. A nil storage always reports ok.
func NewHealthHandler(storage Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{storage: storage, logger: logger}
}

// Check reports whether the service and its storage are up.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h.storage != nil {
		if err := h.storage.Ping(r.Context()); err != nil {
			h.logger.Warn("health check failed", "error", err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/identify"
)

// ConfigHandler handles runtime configuration endpoints
type ConfigHandler struct {
	pipeline *identify.Pipeline
	logger   *slog.Logger
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(pipeline *identify.Pipeline, logger *slog.Logger) *ConfigHandler {
	return &ConfigHandler{pipeline: pipeline, logger: logger}
}

// FaceRecognitionResponse represents the recognition configuration response
type FaceRecognitionResponse struct {
	Mode      identify.Mode `json:"mode"`
	Threshold float64       `json:"threshold"`
}

func (h *ConfigHandler) faceRecognition() FaceRecognitionResponse {
	return FaceRecognitionResponse{
		Mode:      h.pipeline.Mode(),
		Threshold: h.pipeline.Threshold(),
	}
}

// GetFaceRecognition returns the active recognition mode
func (h *ConfigHandler) GetFaceRecognition(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.faceRecognition())
}

// SetFaceRecognition switches the recognition mode given by the mode query parameter
func (h *ConfigHandler) SetFaceRecognition(w http.ResponseWriter, r *http.Request) {
	mode, err := identify.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.pipeline.SetMode(mode)
	respondJSON(w, http.StatusOK, h.faceRecognition())
}

// UploadClassifier forwards a classifier model to the recognition service
func (h *ConfigHandler) UploadClassifier(w http.ResponseWriter, r *http.Request) {
	model, err := readUpload(w, r, "model", constants.MaxClassifierUploadSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.pipeline.UploadClassifier(r.Context(), model)
	if err != nil {
		respondPipelineError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": status})
}

package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/rollcall/internal/identify"
	"github.com/kozaktomas/rollcall/internal/logger"
)

func TestConfigHandler_FaceRecognition(t *testing.T) {
	env := newTestEnv(t, identify.ModeClassify)
	handler := NewConfigHandler(env.pipeline, logger.Discard())

	req := httptest.NewRequest("GET", "/api/v1/config/face-recognition", nil)
	recorder := httptest.NewRecorder()
	handler.GetFaceRecognition(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result FaceRecognitionResponse
	parseJSONResponse(t, recorder, &result)
	if result.Mode != identify.ModeClassify {
		t.Errorf("expected classify, got %q", result.Mode)
	}
	if result.Threshold != 0.6 {
		t.Errorf("expected threshold 0.6, got %v", result.Threshold)
	}
}

func TestConfigHandler_SetFaceRecognition(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		expected int
		want     identify.Mode
	}{
		{"embed", "embed", http.StatusOK, identify.ModeEmbed},
		{"upper case", "CLASSIFY", http.StatusOK, identify.ModeClassify},
		{"missing", "", http.StatusBadRequest, identify.ModeClassify},
		{"unknown", "guess", http.StatusBadRequest, identify.ModeClassify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, identify.ModeClassify)
			handler := NewConfigHandler(env.pipeline, logger.Discard())

			req := httptest.NewRequest("PUT", "/api/v1/config/face-recognition?mode="+tt.mode, nil)
			recorder := httptest.NewRecorder()
			handler.SetFaceRecognition(recorder, req)

			assertStatusCode(t, recorder, tt.expected)
			if got := env.pipeline.Mode(); got != tt.want {
				t.Errorf("expected mode %q, got %q", tt.want, got)
			}
		})
	}
}

func TestConfigHandler_UploadClassifier(t *testing.T) {
	env := newTestEnv(t, identify.ModeClassify)
	handler := NewConfigHandler(env.pipeline, logger.Discard())

	req := multipartRequest(t, "POST", "/api/v1/config/classifier", "model", []byte("pickled model"))
	recorder := httptest.NewRecorder()
	handler.UploadClassifier(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result map[string]string
	parseJSONResponse(t, recorder, &result)
	if result["status"] != "OK" {
		t.Errorf("expected status OK, got %q", result["status"])
	}
	if models := env.service.uploadedModels(); len(models) != 1 || string(models[0]) != "pickled model" {
		t.Errorf("model not forwarded: %q", models)
	}

	env.service.setFailing(true)
	req = multipartRequest(t, "POST", "/api/v1/config/classifier", "model", []byte("pickled model"))
	recorder = httptest.NewRecorder()
	handler.UploadClassifier(recorder, req)
	assertStatusCode(t, recorder, http.StatusBadGateway)
}

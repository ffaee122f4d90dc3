package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/database/mock"
	"github.com/kozaktomas/rollcall/internal/identify"
	"github.com/kozaktomas/rollcall/internal/logger"
	"github.com/kozaktomas/rollcall/internal/recognition"
)

// fakeRecognitionService mimics the face recognition service. Embeddings are looked up by
// the uploaded image content.
type fakeRecognitionService struct {
	mu         sync.Mutex
	embeddings map[string][]float64
	classified uuid.UUID
	failing    bool
	models     [][]byte
}

func (f *fakeRecognitionService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /embed", func(w http.ResponseWriter, r *http.Request) {
		data, ok := f.part(w, r, "image")
		if !ok {
			return
		}
		f.mu.Lock()
		emb, found := f.embeddings[string(data)]
		f.mu.Unlock()
		if !found {
			http.Error(w, "no face found", http.StatusUnprocessableEntity)
			return
		}
		json.NewEncoder(w).Encode(emb)
	})
	mux.HandleFunc("POST /classify", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := f.part(w, r, "image"); !ok {
			return
		}
		f.mu.Lock()
		id := f.classified
		f.mu.Unlock()
		json.NewEncoder(w).Encode(id.String())
	})
	mux.HandleFunc("POST /upload_classifier", func(w http.ResponseWriter, r *http.Request) {
		data, ok := f.part(w, r, "model")
		if !ok {
			return
		}
		f.mu.Lock()
		f.models = append(f.models, data)
		f.mu.Unlock()
		io.WriteString(w, "OK")
	})
	return mux
}

func (f *fakeRecognitionService) setFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = failing
}

func (f *fakeRecognitionService) setClassified(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classified = id
}

func (f *fakeRecognitionService) uploadedModels() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.models
}

func (f *fakeRecognitionService) part(w http.ResponseWriter, r *http.Request, field string) ([]byte, bool) {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
		return nil, false
	}
	file, _, err := r.FormFile(field)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	defer file.Close()
	data, _ := io.ReadAll(file)
	return data, true
}

// testEnv wires handlers to an in-memory store and a fake recognition service.
type testEnv struct {
	store     *mock.Store
	attendees *mock.MockAttendeeRepository
	service   *fakeRecognitionService
	pipeline  *identify.Pipeline

	subject database.Subject
	alice   database.Attendee
	bob     database.Attendee
	carol   database.Attendee
}

func newTestEnv(t *testing.T, mode identify.Mode) *testEnv {
	t.Helper()
	store := mock.NewStore()
	env := &testEnv{
		store:     store,
		attendees: mock.NewMockAttendeeRepository(store),
		service: &fakeRecognitionService{embeddings: map[string][]float64{
			"alice.jpg":    {0.1, 0},
			"stranger.jpg": {5, 5},
			"carol.jpg":    {0, -0.2},
		}},
	}
	env.subject = store.AddSubject(database.Subject{Name: "Math"})
	env.alice = store.AddAttendee(database.Attendee{Number: 1, Name: "Alice", Embedding: []float64{0, 0}})
	env.bob = store.AddAttendee(database.Attendee{Number: 2, Name: "Bob", Embedding: []float64{1, 1}})
	env.carol = store.AddAttendee(database.Attendee{Number: 3, Name: "Carol"})

	server := httptest.NewServer(env.service.handler())
	t.Cleanup(server.Close)
	client := recognition.NewClient(server.URL)

	env.pipeline = identify.NewPipeline(identify.Deps{
		Embedder:   client,
		Classifier: client,
		Attendees:  env.attendees,
		Ledger:     mock.NewMockAttendanceLedger(store),
		Mode:       identify.NewModeSwitch(mode),
		Logger:     logger.Discard(),
	})
	return env
}

// multipartRequest builds a request carrying one file part.
func multipartRequest(t *testing.T, method, path, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, field+".bin")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

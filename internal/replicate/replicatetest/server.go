// Package replicatetest provides an in-memory Replicate API for tests.
package replicatetest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Server serves the file and prediction endpoints the replicate client uses.
// Predictions are created in the "processing" state and finish after Pending
// polls, either with Output as a file URL or with Error as a model error.
type Server struct {
	*httptest.Server

	// Pending is how many polls report "processing" before the prediction ends.
	Pending int
	// Output is the content served for the prediction's output file.
	Output []byte
	// Error makes the prediction fail with this message.
	Error string

	mu      sync.Mutex
	files   map[string][]byte
	deleted []string
	inputs  []map[string]any
	polls   int
}

func NewServer(t *testing.T) *Server {
	t.Helper()

	s := &Server{files: make(map[string][]byte)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /files", s.createFile)
	mux.HandleFunc("DELETE /files/{id}", s.deleteFile)
	mux.HandleFunc("POST /models/{owner}/{name}/predictions", s.createPrediction)
	mux.HandleFunc("GET /predictions/{id}", s.getPrediction)
	mux.HandleFunc("GET /outputs/{name}", s.getOutput)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)

	return s
}

// File returns the content uploaded under id.
func (s *Server) File(id string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[id]
}

// Deleted returns the ids of deleted files in order.
func (s *Server) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

// Inputs returns the inputs of every prediction created so far.
func (s *Server) Inputs() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.inputs...)
}

// Polls returns how many times a prediction was fetched.
func (s *Server) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// FileURL is the URL the server reports for an uploaded file.
func (s *Server) FileURL(id string) string {
	return s.URL + "/files/" + id
}

func (s *Server) createFile(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("content")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	id := fmt.Sprintf("file-%d", len(s.files)+1)
	s.files[id] = data
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":           id,
		"name":         header.Filename,
		"content_type": header.Header.Get("Content-Type"),
		"size":         len(data),
		"urls":         map[string]string{"get": s.FileURL(id)},
	})
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.deleted = append(s.deleted, r.PathValue("id"))
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createPrediction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Input map[string]any `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.inputs = append(s.inputs, body.Input)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     "prediction-1",
		"model":  r.PathValue("owner") + "/" + r.PathValue("name"),
		"status": "processing",
		"input":  body.Input,
	})
}

func (s *Server) getPrediction(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.polls++
	polls := s.polls
	s.mu.Unlock()

	prediction := map[string]any{"id": r.PathValue("id"), "status": "processing"}

	switch {
	case polls <= s.Pending:
	case s.Error != "":
		prediction["status"] = "failed"
		prediction["error"] = s.Error
	default:
		prediction["status"] = "succeeded"
		prediction["output"] = s.URL + "/outputs/result"
	}

	writeJSON(w, http.StatusOK, prediction)
}

func (s *Server) getOutput(w http.ResponseWriter, _ *http.Request) {
	w.Write(s.Output)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

package handlers

import (
	"net/http"
	"sync/atomic"

	"github.com/kozaktomas/lookalike/internal/match"
	"github.com/kozaktomas/lookalike/internal/metadata"
)

// Matcher runs a lookup for an embedding.
type Matcher interface {
	FindMatches(vector []float32, k int, threshold int) ([]match.Match, error)
}

// Searcher finds metadata records by name.
type Searcher interface {
	Search(query string, limit int) []metadata.Hit
}

// Backend is everything the lookup endpoints need once startup has finished.
type Backend struct {
	Matcher  Matcher
	Searcher Searcher
	Faces    int
}

// State holds the backend once it is ready. It is safe for concurrent use.
type State struct {
	backend atomic.Pointer[Backend]
}

// NewState creates a state that is not ready yet.
func NewState() *State {
	return &State{}
}

// SetReady publishes the backend. Requests arriving before this get 503.
func (s *State) SetReady(b *Backend) {
	s.backend.Store(b)
}

// Backend returns the published backend, or nil while loading.
func (s *State) Backend() *Backend {
	return s.backend.Load()
}

// Ready reports whether the backend has been published.
func (s *State) Ready() bool {
	return s.backend.Load() != nil
}

// ReadyHandler handles the readiness endpoint.
func (s *State) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	b := s.Backend()
	if b == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"faces":  b.Faces,
	})
}

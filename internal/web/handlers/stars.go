package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/kozaktomas/lookalike/internal/constants"
	"github.com/kozaktomas/lookalike/internal/embedding"
	"github.com/kozaktomas/lookalike/internal/match"
	"github.com/kozaktomas/lookalike/internal/metadata"
	"go.uber.org/zap"
)

// LookupIDHeader carries the per-lookup id back to the client.
const LookupIDHeader = "X-Lookup-ID"

// Embedder computes face embeddings for an image.
type Embedder interface {
	ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*embedding.FaceResponse, error)
}

// StarsHandler handles the lookalike lookup endpoints.
type StarsHandler struct {
	state    *State
	embedder Embedder
	logger   *zap.Logger
}

// NewStarsHandler creates a new stars handler.
func NewStarsHandler(state *State, embedder Embedder, logger *zap.Logger) *StarsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StarsHandler{
		state:    state,
		embedder: embedder,
		logger:   logger,
	}
}

// VectorRequest is the body of a lookup by embedding.
type VectorRequest struct {
	Embedding           []float32 `json:"embedding"`
	NumberOfNeighbors   *int      `json:"number_of_neighbors,omitempty"`
	SimilarityThreshold *int      `json:"similarity_threshold,omitempty"`
}

// SearchResponse is the body returned by Search.
type SearchResponse struct {
	Query   string         `json:"query"`
	Count   int            `json:"count"`
	Results []metadata.Hit `json:"results"`
}

// lookupParams reads number_of_neighbors and similarity_threshold from the query string.
func lookupParams(r *http.Request) (k, threshold int, err error) {
	k, ok := intParam(r, "number_of_neighbors", constants.DefaultNeighbors)
	if !ok {
		return 0, 0, fmt.Errorf("%w: number_of_neighbors must be an integer", match.ErrInvalidParameter)
	}
	threshold, ok = intParam(r, "similarity_threshold", constants.DefaultSimilarityThreshold)
	if !ok {
		return 0, 0, fmt.Errorf("%w: similarity_threshold must be an integer", match.ErrInvalidParameter)
	}
	return k, threshold, nil
}

// checkNeighbors bounds the neighbor count a client may ask for.
func checkNeighbors(k int) error {
	if k > constants.MaxNeighbors {
		return fmt.Errorf("%w: number_of_neighbors must be at most %d, got %d", match.ErrInvalidParameter, constants.MaxNeighbors, k)
	}
	return nil
}

// begin assigns a lookup id and returns the ready backend, or answers 503.
func (h *StarsHandler) begin(w http.ResponseWriter) (*Backend, *zap.Logger, bool) {
	lookupID := uuid.NewString()
	w.Header().Set(LookupIDHeader, lookupID)
	logger := h.logger.With(zap.String("lookup_id", lookupID))

	b := h.state.Backend()
	if b == nil {
		respondError(w, http.StatusServiceUnavailable, msgNotReady)
		return nil, logger, false
	}
	return b, logger, true
}

// fail logs err at a level matching its outcome and writes the mapped response.
func (h *StarsHandler) fail(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, message := statusForError(err)
	switch {
	case errors.Is(err, match.ErrMetadataMissing):
		logger.Error("index and metadata disagree", zap.Error(err))
	case status >= http.StatusInternalServerError:
		logger.Error("lookup failed", zap.Int("status", status), zap.Error(err))
	default:
		logger.Info("lookup rejected", zap.Int("status", status), zap.String("reason", err.Error()))
	}
	respondError(w, status, message)
}

// Upload handles POST /stars: a multipart image in the "file" field.
func (h *StarsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	b, logger, ok := h.begin(w)
	if !ok {
		return
	}

	k, threshold, err := lookupParams(r)
	if err == nil {
		err = checkNeighbors(k)
	}
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	logger.Debug("image received",
		zap.String("filename", sanitizeForLog(header.Filename)),
		zap.Int("bytes", len(data)),
	)

	prepared, err := embedding.PrepareImage(data, constants.MaxImageSize)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	faces, err := h.embedder.ComputeFaceEmbeddings(r.Context(), prepared)
	if err != nil {
		h.fail(w, logger, err)
		return
	}
	vector, err := embedding.SelectSingleFace(faces)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	h.respondMatches(w, logger, b, vector, k, threshold)
}

// Vector handles POST /stars/vector: a lookup by precomputed embedding.
func (h *StarsHandler) Vector(w http.ResponseWriter, r *http.Request) {
	b, logger, ok := h.begin(w)
	if !ok {
		return
	}

	var req VectorRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if len(req.Embedding) == 0 {
		respondError(w, http.StatusBadRequest, "embedding is required")
		return
	}

	k := constants.DefaultNeighbors
	if req.NumberOfNeighbors != nil {
		k = *req.NumberOfNeighbors
	}
	threshold := constants.DefaultSimilarityThreshold
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
	}
	if err := checkNeighbors(k); err != nil {
		h.fail(w, logger, err)
		return
	}

	h.respondMatches(w, logger, b, req.Embedding, k, threshold)
}

func (h *StarsHandler) respondMatches(w http.ResponseWriter, logger *zap.Logger, b *Backend, vector []float32, k, threshold int) {
	matches, err := b.Matcher.FindMatches(vector, k, threshold)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	best := matches[0]
	logger.Info("lookup served",
		zap.Int("k", k),
		zap.Int("threshold", threshold),
		zap.Int("results", len(matches)),
		zap.Uint32("best_id", uint32(best.ID)),
		zap.Int("best_similarity", best.Similarity),
	)
	respondJSON(w, http.StatusOK, matches)
}

// Search handles GET /stars/search?q=: a name search over metadata.
func (h *StarsHandler) Search(w http.ResponseWriter, r *http.Request) {
	b, _, ok := h.begin(w)
	if !ok {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, ok := intParam(r, "limit", constants.DefaultSearchLimit)
	if !ok || limit < 1 {
		respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	hits := b.Searcher.Search(query, limit)
	if hits == nil {
		hits = []metadata.Hit{}
	}
	respondJSON(w, http.StatusOK, SearchResponse{
		Query:   query,
		Count:   len(hits),
		Results: hits,
	})
}

// Package match turns a query embedding into a ranked, filtered list of matches.
package match

import (
	"errors"
	"fmt"
	"math"

	"github.com/kozaktomas/lookalike/internal/index"
	"github.com/kozaktomas/lookalike/internal/metadata"
	"go.uber.org/zap"
)

var (
	// ErrInvalidParameter is returned for a neighbor count below 1 or a threshold outside 0..100.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNoMatchFound signals that the query ran but no candidate passed the threshold.
	// It is an outcome, not a failure.
	ErrNoMatchFound = errors.New("no match found")

	// ErrMetadataMissing matches any *MetadataMissingError.
	ErrMetadataMissing = errors.New("metadata missing")
)

// MetadataMissingError reports an index id without a metadata record.
// It means the deployed index and metadata disagree.
type MetadataMissingError struct {
	ID index.ID
}

func (e *MetadataMissingError) Error() string {
	return fmt.Sprintf("metadata missing for index id %d", e.ID)
}

// Is makes errors.Is(err, ErrMetadataMissing) true.
func (e *MetadataMissingError) Is(target error) bool {
	return target == ErrMetadataMissing
}

// IsNoMatch reports whether err is the empty-result outcome.
func IsNoMatch(err error) bool {
	return errors.Is(err, ErrNoMatchFound)
}

// Querier is the nearest-neighbor lookup the pipeline runs against.
type Querier interface {
	Query(vector []float32, k int) ([]index.ID, []float64, error)
	Metric() index.Metric
}

// Lookup resolves index ids to records.
type Lookup interface {
	Lookup(id index.ID) (metadata.Record, bool)
}

// Match is one result of FindMatches.
type Match struct {
	metadata.Record
	ID         index.ID `json:"-"`
	Distance   float64  `json:"distance"`
	Similarity int      `json:"similarity"`
}

// Pipeline joins index results to metadata and scores them.
type Pipeline struct {
	index  Querier
	store  Lookup
	logger *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates a pipeline over a loaded index and its metadata.
func NewPipeline(idx Querier, store Lookup, opts ...Option) *Pipeline {
	p := &Pipeline{
		index:  idx,
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FindMatches returns up to k matches whose similarity is strictly above
// threshold, best first. It returns ErrNoMatchFound when nothing qualifies.
func (p *Pipeline) FindMatches(vector []float32, k int, threshold int) ([]Match, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: number of neighbors must be at least 1, got %d", ErrInvalidParameter, k)
	}
	if threshold < 0 || threshold > 100 {
		return nil, fmt.Errorf("%w: similarity threshold must be within 0..100, got %d", ErrInvalidParameter, threshold)
	}

	ids, distances, err := p.index.Query(vector, k)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	metric := p.index.Metric()
	candidates := make([]Match, 0, len(ids))
	clamped := 0
	for i, id := range ids {
		rec, ok := p.store.Lookup(id)
		if !ok {
			return nil, &MetadataMissingError{ID: id}
		}
		// Distances past the metric's range all score 0.
		if distances[i] > metric.Range() {
			clamped++
		}
		candidates = append(candidates, Match{
			Record:     rec,
			ID:         id,
			Distance:   distances[i],
			Similarity: Similarity(metric, distances[i]),
		})
	}

	result := Filter(candidates, threshold)
	p.logger.Debug("matches scored",
		zap.Int("k", k),
		zap.Int("threshold", threshold),
		zap.Int("candidates", len(candidates)),
		zap.Int("kept", len(result)),
		zap.Int("clamped", clamped),
	)
	if len(result) == 0 {
		return nil, ErrNoMatchFound
	}
	return result, nil
}

// Similarity converts a distance of metric into a 0..100 percentage:
// round((1 - d) * 100) with d normalized onto [0, 1] by the metric.
func Similarity(metric index.Metric, distance float64) int {
	d := metric.Normalize(distance)
	return int(math.Round((1 - d) * 100))
}

// Filter keeps matches with similarity strictly above threshold, preserving order.
func Filter(matches []Match, threshold int) []Match {
	kept := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.Similarity > threshold {
			kept = append(kept, m)
		}
	}
	return kept
}

// Package index provides the read-only nearest-neighbor index over face embeddings.
//
// An Index is opened with a path, metric and dimension, loaded exactly once, and
// then queried concurrently without locks. Queries issued before Load completes
// fail with ErrNotReady.
package index

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ID is the positional id of a vector within one loaded index.
type ID uint32

// Backend selects the structure behind the Query contract.
type Backend string

const (
	// BackendFlat is an exact linear scan over a flat vector file.
	BackendFlat Backend = "flat"
	// BackendHNSW is an approximate search over a persisted HNSW graph.
	BackendHNSW Backend = "hnsw"
	// BackendPostgres loads vectors from a pgvector table once and scans them in memory.
	BackendPostgres Backend = "postgres"
)

// ParseBackend maps a configuration name to a Backend. Empty means flat.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(name))); b {
	case "":
		return BackendFlat, nil
	case BackendFlat, BackendHNSW, BackendPostgres:
		return b, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

// store is implemented by each backend.
type store interface {
	len() int
	vector(id ID) ([]float32, bool)
	// search returns at most k neighbors ordered by (distance, id) with final distances.
	search(query []float32, k int) []neighbor
}

// Index is a handle to a persisted nearest-neighbor structure.
type Index struct {
	path     string
	metric   Metric
	dim      int
	backend  Backend
	table    string
	efSearch int
	logger   *zap.Logger

	parallelThreshold int

	loadMu  sync.Mutex
	store   store
	ready   atomic.Bool
	readyCh chan struct{}
}

// Option configures an Index.
type Option func(*Index)

// WithBackend selects the index backend. The default is BackendFlat.
func WithBackend(b Backend) Option {
	return func(x *Index) { x.backend = b }
}

// WithTable sets the table read by BackendPostgres. Empty keeps DefaultTable.
func WithTable(table string) Option {
	return func(x *Index) {
		if table != "" {
			x.table = table
		}
	}
}

// WithEfSearch overrides the HNSW search candidate pool size. Values below 1 keep the default.
func WithEfSearch(ef int) Option {
	return func(x *Index) {
		if ef > 0 {
			x.efSearch = ef
		}
	}
}

// WithParallelScan sets the vector count from which flat scans are sharded across CPUs.
func WithParallelScan(threshold int) Option {
	return func(x *Index) { x.parallelThreshold = threshold }
}

// WithLogger sets the logger used for load diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(x *Index) { x.logger = l }
}

// Open creates an index handle bound to a metric and dimension.
// The persisted structure is not read until Load.
func Open(path string, metric Metric, dimension int, opts ...Option) (*Index, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}
	if dimension < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dimension)
	}

	x := &Index{
		path:     path,
		metric:   metric,
		dim:      dimension,
		backend:  BackendFlat,
		table:    DefaultTable,
		efSearch: HNSWEfSearch,
		logger:   zap.NewNop(),
		readyCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(x)
	}
	if _, err := ParseBackend(string(x.backend)); err != nil {
		return nil, err
	}
	return x, nil
}

// Load reads the persisted structure into memory and marks the index ready.
// It fails with ErrIndexFileNotFound or ErrIndexCorrupt, and may be called
// successfully only once.
func (x *Index) Load(ctx context.Context) error {
	x.loadMu.Lock()
	defer x.loadMu.Unlock()

	if x.ready.Load() {
		return ErrAlreadyLoaded
	}

	start := time.Now()
	var (
		s   store
		err error
	)
	switch x.backend {
	case BackendHNSW:
		s, err = loadHNSWFile(x.path, x.metric, x.dim, x.efSearch)
	case BackendPostgres:
		var f *flatIndex
		f, err = loadPostgres(ctx, x.path, x.table, x.metric, x.dim)
		if f != nil {
			f.applyParallelThreshold(x.parallelThreshold)
			s = f
		}
	default:
		var f *flatIndex
		f, err = loadFlatFile(x.path, x.metric, x.dim)
		if f != nil {
			f.applyParallelThreshold(x.parallelThreshold)
			s = f
		}
	}
	if err != nil {
		return err
	}

	x.store = s
	x.ready.Store(true)
	close(x.readyCh)

	x.logger.Info("index loaded",
		zap.String("backend", string(x.backend)),
		zap.Stringer("metric", x.metric),
		zap.Int("dimension", x.dim),
		zap.Int("vectors", s.len()),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// Ready reports whether Load has completed successfully.
func (x *Index) Ready() bool {
	return x.ready.Load()
}

// WaitReady blocks until the index is loaded or ctx is done.
func (x *Index) WaitReady(ctx context.Context) error {
	select {
	case <-x.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for index: %w", ctx.Err())
	}
}

// Query returns the ids and distances of the k vectors nearest to vector,
// ascending by distance with ties broken by ascending id. Fewer than k results
// are returned when the index holds fewer vectors.
func (x *Index) Query(vector []float32, k int) ([]ID, []float64, error) {
	if !x.ready.Load() {
		return nil, nil, ErrNotReady
	}
	if len(vector) != x.dim {
		return nil, nil, &DimensionMismatchError{Expected: x.dim, Actual: len(vector)}
	}
	if k < 1 {
		return nil, nil, fmt.Errorf("%w: %d", ErrInvalidK, k)
	}

	found := x.store.search(vector, k)
	ids := make([]ID, len(found))
	distances := make([]float64, len(found))
	for i, n := range found {
		ids[i] = n.id
		distances[i] = n.dist
	}
	return ids, distances, nil
}

// Len returns the number of indexed vectors, or 0 before Load.
func (x *Index) Len() int {
	if !x.ready.Load() {
		return 0
	}
	return x.store.len()
}

// Vector returns the stored vector for id. The slice must not be modified.
func (x *Index) Vector(id ID) ([]float32, bool) {
	if !x.ready.Load() {
		return nil, false
	}
	return x.store.vector(id)
}

// Dimension returns the configured vector dimension.
func (x *Index) Dimension() int { return x.dim }

// Metric returns the configured distance metric.
func (x *Index) Metric() Metric { return x.metric }

// Info describes a loaded index.
type Info struct {
	Backend   Backend `json:"backend"`
	Metric    string  `json:"metric"`
	Dimension int     `json:"dimension"`
	Count     int     `json:"count"`
	Path      string  `json:"path,omitempty"`
}

// Info returns a description of the index. Path is omitted for database sources.
func (x *Index) Info() Info {
	info := Info{
		Backend:   x.backend,
		Metric:    x.metric.String(),
		Dimension: x.dim,
		Count:     x.Len(),
	}
	if x.backend != BackendPostgres {
		info.Path = x.path
	}
	return info
}

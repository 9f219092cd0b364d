package index

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"reflect"

	"github.com/coder/hnsw"
)

// HNSW search parameters for face embeddings.
const (
	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// so exact re-ranking still yields k results in the right order.
	HNSWSearchMultiplier = 3

	// HNSWMaxNeighbors is the M parameter used when building graphs.
	HNSWMaxNeighbors = 16
)

// WriteHNSW builds an HNSW graph over vectors keyed by their dense ids and
// exports it to w in the format loadHNSWFile reads.
func WriteHNSW(w io.Writer, metric Metric, dim int, vectors [][]float32) error {
	distance, err := graphDistance(metric)
	if err != nil {
		return err
	}
	g := hnsw.NewGraph[ID]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors)
	g.Distance = distance
	if dim < 1 {
		return ErrInvalidDimension
	}

	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d: %w", i, &DimensionMismatchError{Expected: dim, Actual: len(v)})
		}
		g.Add(hnsw.MakeNode(ID(i), v))
	}

	if err := g.Export(w); err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	return nil
}

// graphDistance returns the graph distance function for metric.
// Squared distances rank like Euclidean ones and results are re-ranked exactly.
func graphDistance(metric Metric) (hnsw.DistanceFunc, error) {
	switch metric {
	case MetricCosine:
		return hnsw.CosineDistance, nil
	case MetricEuclidean, MetricEuclideanSquared:
		return hnsw.EuclideanDistance, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMetric, metric)
	}
}

func sameDistance(a, b hnsw.DistanceFunc) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// hnswIndex answers queries from a persisted HNSW graph. Candidate distances are
// recomputed with the configured metric, so ordering and reported distances match
// the flat backend for every candidate the graph returns.
type hnswIndex struct {
	graph      *hnsw.Graph[ID]
	metric     Metric
	dim        int
	oversample int
}

// loadHNSWFile loads a graph exported with hnsw.Graph.Export.
// Node keys must be the dense ids 0..N-1.
func loadHNSWFile(path string, metric Metric, dim int, efSearch int) (*hnswIndex, error) {
	want, err := graphDistance(metric)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrIndexFileNotFound, path)
		}
		return nil, fmt.Errorf("opening HNSW index file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("checking HNSW index file: %w", err)
	}
	if info.Size() == 0 {
		return nil, corruptf("%s: empty HNSW index file", path)
	}

	g := hnsw.NewGraph[ID]()
	if err := g.Import(bufio.NewReader(f)); err != nil {
		return nil, corruptf("%s: loading HNSW graph: %v", path, err)
	}
	if !sameDistance(g.Distance, want) {
		return nil, corruptf("%s: graph distance does not match metric %s", path, metric)
	}

	if n := g.Len(); n > 0 {
		if g.Dims() != dim {
			return nil, corruptf("%s: graph dimension %d, configured %d", path, g.Dims(), dim)
		}
		for i := range n {
			if _, ok := g.Lookup(ID(i)); !ok {
				return nil, corruptf("%s: node ids are not dense, missing %d of %d", path, i, n)
			}
		}
	}

	if efSearch > 0 {
		g.EfSearch = efSearch
	}

	return &hnswIndex{
		graph:      g,
		metric:     metric,
		dim:        dim,
		oversample: HNSWSearchMultiplier,
	}, nil
}

func (h *hnswIndex) len() int { return h.graph.Len() }

func (h *hnswIndex) vector(id ID) ([]float32, bool) {
	return h.graph.Lookup(id)
}

func (h *hnswIndex) search(query []float32, k int) []neighbor {
	n := h.graph.Len()
	if n == 0 {
		return nil
	}
	k = min(k, n)

	nodes := h.graph.Search(query, min(k*h.oversample, n))

	seen := make(map[ID]struct{}, len(nodes))
	out := make([]neighbor, 0, len(nodes))
	for _, node := range nodes {
		if _, dup := seen[node.Key]; dup {
			continue
		}
		seen[node.Key] = struct{}{}
		out = append(out, neighbor{id: node.Key, dist: h.metric.Distance(query, node.Value)})
	}
	sortNeighbors(out)
	if len(out) > k {
		out = out[:k]
	}
	return out
}

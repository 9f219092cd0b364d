package index

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// defaultParallelScanThreshold is the vector count from which a flat scan is sharded.
const defaultParallelScanThreshold = 50_000

// flatIndex answers queries by exact linear scan over a contiguous vector slab.
type flatIndex struct {
	metric Metric
	dim    int
	count  int
	data   []float32 // count*dim, vector i at data[i*dim:(i+1)*dim]
	norms  []float64 // cosine only

	parallelThreshold int
	workers           int
}

func newFlatIndex(metric Metric, dim int, data []float32) *flatIndex {
	f := &flatIndex{
		metric:            metric,
		dim:               dim,
		count:             len(data) / dim,
		data:              data,
		parallelThreshold: defaultParallelScanThreshold,
		workers:           runtime.GOMAXPROCS(0),
	}
	if metric == MetricCosine {
		f.norms = make([]float64, f.count)
		for i := range f.count {
			f.norms[i] = norm(f.row(i))
		}
	}
	return f
}

// loadFlatFile reads a flat index file and checks it against the configured metric and dimension.
func loadFlatFile(path string, metric Metric, dim int) (*flatIndex, error) {
	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrIndexFileNotFound, path)
		}
		return nil, fmt.Errorf("opening index file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("checking index file: %w", err)
	}

	hdr, data, err := readFlat(bufio.NewReader(f), info.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if hdr.metric != metric {
		return nil, corruptf("%s: built with metric %s, configured %s", path, hdr.metric, metric)
	}
	if int(hdr.dim) != dim {
		return nil, corruptf("%s: file dimension %d, configured %d", path, hdr.dim, dim)
	}
	return newFlatIndex(metric, dim, data), nil
}

func (f *flatIndex) row(i int) []float32 {
	return f.data[i*f.dim : (i+1)*f.dim]
}

func (f *flatIndex) len() int { return f.count }

func (f *flatIndex) vector(id ID) ([]float32, bool) {
	if int(id) >= f.count {
		return nil, false
	}
	return f.row(int(id)), true
}

func (f *flatIndex) search(query []float32, k int) []neighbor {
	if f.count == 0 {
		return nil
	}
	k = min(k, f.count)

	var qNorm float64
	if f.metric == MetricCosine {
		qNorm = norm(query)
	}

	var best *topK
	if f.count >= f.parallelThreshold && f.workers > 1 {
		best = f.scanParallel(query, qNorm, k)
	} else {
		best = newTopK(k)
		f.scan(query, qNorm, 0, f.count, best)
	}

	out := best.sorted()
	for i := range out {
		out[i].dist = f.metric.finalize(out[i].dist)
	}
	return out
}

// scan offers rows [from, to) to best using the metric's scan kernel.
func (f *flatIndex) scan(query []float32, qNorm float64, from, to int, best *topK) {
	for i := from; i < to; i++ {
		var d float64
		if f.metric == MetricCosine {
			d = cosineWithNorms(query, f.row(i), qNorm, f.norms[i])
		} else {
			d = SquaredL2(query, f.row(i))
		}
		best.offer(neighbor{id: ID(i), dist: d})
	}
}

// scanParallel splits the scan into one shard per worker and merges the partial results.
func (f *flatIndex) scanParallel(query []float32, qNorm float64, k int) *topK {
	shards := min(f.workers, f.count)
	size := (f.count + shards - 1) / shards
	partial := make([]*topK, shards)

	var g errgroup.Group
	for s := range shards {
		from := s * size
		to := min(from+size, f.count)
		partial[s] = newTopK(k)
		if from >= to {
			continue
		}
		g.Go(func() error {
			f.scan(query, qNorm, from, to, partial[s])
			return nil
		})
	}
	_ = g.Wait()

	best := newTopK(k)
	for _, p := range partial {
		best.merge(p)
	}
	return best
}

func (f *flatIndex) applyParallelThreshold(threshold int) {
	if threshold > 0 {
		f.parallelThreshold = threshold
	}
}

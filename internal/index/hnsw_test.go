package index

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/coder/hnsw"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeGraph exports an HNSW graph over vectors keyed by keys.
func writeGraph(t *testing.T, keys []ID, vectors [][]float32) string {
	t.Helper()
	g := hnsw.NewGraph[ID]()
	g.M = 16
	g.Ml = 1.0 / 16
	g.Distance = hnsw.EuclideanDistance
	for i, v := range vectors {
		g.Add(hnsw.MakeNode(keys[i], v))
	}

	path := filepath.Join(t.TempDir(), "faces.hnsw")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, g.Export(f))
	require.NoError(t, f.Close())
	return path
}

func denseKeys(n int) []ID {
	keys := make([]ID, n)
	for i := range keys {
		keys[i] = ID(i)
	}
	return keys
}

func TestWriteHNSW_RoundTrip(t *testing.T) {
	const n, dim = 50, 4
	vectors := randomVectors(5, n, dim)

	path := filepath.Join(t.TempDir(), "faces.hnsw")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteHNSW(f, MetricCosine, dim, vectors))
	require.NoError(t, f.Close())

	idx, err := Open(path, MetricCosine, dim, WithBackend(BackendHNSW))
	require.NoError(t, err)
	require.NoError(t, idx.Load(context.Background()))
	assert.Equal(t, n, idx.Len())

	ids, dists, err := idx.Query(vectors[13], 1)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, ID(13), ids[0])
	assert.InDelta(t, 0, dists[0], 1e-5)
}

func TestWriteHNSW_Rejects(t *testing.T) {
	var buf bytes.Buffer
	err := WriteHNSW(&buf, MetricEuclidean, 3, [][]float32{{1, 2, 3}, {1, 2}})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	err = WriteHNSW(&buf, MetricEuclidean, 0, nil)
	require.ErrorIs(t, err, ErrInvalidDimension)

	err = WriteHNSW(&buf, Metric(99), 3, nil)
	require.ErrorIs(t, err, ErrUnknownMetric)
}

func TestHNSW_Query(t *testing.T) {
	const n, dim = 200, 8
	vectors := randomVectors(21, n, dim)
	path := writeGraph(t, denseKeys(n), vectors)

	idx, err := Open(path, MetricEuclidean, dim, WithBackend(BackendHNSW))
	require.NoError(t, err)
	require.NoError(t, idx.Load(context.Background()))
	require.Equal(t, n, idx.Len())

	for _, target := range []int{0, 57, 199} {
		ids, dists, err := idx.Query(vectors[target], 5)
		require.NoError(t, err)
		require.NotEmpty(t, ids)
		assert.LessOrEqual(t, len(ids), 5)
		assert.Equal(t, ID(target), ids[0])
		assert.InDelta(t, 0, dists[0], 1e-6)

		seen := make(map[ID]bool)
		for i := range ids {
			assert.False(t, seen[ids[i]])
			seen[ids[i]] = true
			if i > 0 {
				assert.LessOrEqual(t, dists[i-1], dists[i])
			}
			// Reported distances are exact for every returned candidate.
			assert.InDelta(t, MetricEuclidean.Distance(vectors[target], vectors[ids[i]]), dists[i], 1e-9)
		}
	}

	v, ok := idx.Vector(57)
	require.True(t, ok)
	assert.Equal(t, vectors[57], v)
}

func TestHNSW_ConcurrentReaders(t *testing.T) {
	const n, dim, k = 300, 8, 5
	vectors := randomVectors(41, n, dim)
	path := writeGraph(t, denseKeys(n), vectors)

	idx, err := Open(path, MetricEuclidean, dim, WithBackend(BackendHNSW), WithEfSearch(n))
	require.NoError(t, err)
	require.NoError(t, idx.Load(context.Background()))

	errs := make(chan error, n)
	var wg sync.WaitGroup
	for w := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := w; target < n; target += 16 {
				ids, dists, err := idx.Query(vectors[target], k)
				switch {
				case err != nil:
					errs <- err
				case len(ids) != k || ids[0] != ID(target) || dists[0] != 0:
					errs <- fmt.Errorf("target %d: got ids %v dists %v", target, ids, dists)
				case !slices.IsSorted(dists):
					errs <- fmt.Errorf("target %d: distances not sorted: %v", target, dists)
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestHNSW_DimensionDisagrees(t *testing.T) {
	path := writeGraph(t, denseKeys(10), randomVectors(1, 10, 8))

	idx, err := Open(path, MetricEuclidean, 16, WithBackend(BackendHNSW))
	require.NoError(t, err)
	assert.ErrorIs(t, idx.Load(context.Background()), ErrIndexCorrupt)
}

func TestHNSW_MetricDisagrees(t *testing.T) {
	vectors := [][]float32{{1, 0}, {0, 1}, {1, 1}}
	path := filepath.Join(t.TempDir(), "faces.hnsw")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteHNSW(f, MetricCosine, 2, vectors))
	require.NoError(t, f.Close())

	for _, metric := range []Metric{MetricEuclidean, MetricEuclideanSquared} {
		t.Run(metric.String(), func(t *testing.T) {
			idx, err := Open(path, metric, 2, WithBackend(BackendHNSW))
			require.NoError(t, err)
			assert.ErrorIs(t, idx.Load(context.Background()), ErrIndexCorrupt)
			assert.False(t, idx.Ready())
		})
	}

	idx, err := Open(path, MetricCosine, 2, WithBackend(BackendHNSW))
	require.NoError(t, err)
	require.NoError(t, idx.Load(context.Background()))
	assert.Equal(t, 3, idx.Len())
}

func TestHNSW_EuclideanGraphServesSquaredMetric(t *testing.T) {
	path := writeGraph(t, denseKeys(4), [][]float32{{0, 0}, {3, 4}, {1, 0}, {0, 2}})

	idx, err := Open(path, MetricEuclideanSquared, 2, WithBackend(BackendHNSW))
	require.NoError(t, err)
	require.NoError(t, idx.Load(context.Background()))

	ids, dists, err := idx.Query([]float32{0, 0}, 4)
	require.NoError(t, err)
	assert.Equal(t, []ID{0, 2, 3, 1}, ids)
	assert.InDeltaSlice(t, []float64{0, 1, 4, 25}, dists, 1e-6)
}

func TestHNSW_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.hnsw")
	require.NoError(t, os.WriteFile(path, nil, 0o444))

	idx, err := Open(path, MetricEuclidean, 4, WithBackend(BackendHNSW))
	require.NoError(t, err)
	assert.ErrorIs(t, idx.Load(context.Background()), ErrIndexCorrupt)
	assert.Equal(t, 0, idx.Len())
}

func TestHNSW_ReadOnlyFile(t *testing.T) {
	path := writeGraph(t, denseKeys(5), randomVectors(3, 5, 4))
	require.NoError(t, os.Chmod(path, 0o444))

	idx, err := Open(path, MetricEuclidean, 4, WithBackend(BackendHNSW))
	require.NoError(t, err)
	require.NoError(t, idx.Load(context.Background()))
	assert.Equal(t, 5, idx.Len())
}

func TestHNSW_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.hnsw")

	idx, err := Open(path, MetricEuclidean, 4, WithBackend(BackendHNSW))
	require.NoError(t, err)
	assert.ErrorIs(t, idx.Load(context.Background()), ErrIndexFileNotFound)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "loading must not create the index file")
}

func TestHNSW_SparseKeys(t *testing.T) {
	path := writeGraph(t, []ID{0, 1, 5}, randomVectors(1, 3, 4))

	idx, err := Open(path, MetricEuclidean, 4, WithBackend(BackendHNSW))
	require.NoError(t, err)
	assert.ErrorIs(t, idx.Load(context.Background()), ErrIndexCorrupt)
}

func TestHNSW_Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.hnsw")
	require.NoError(t, os.WriteFile(path, []byte("not a graph at all"), 0o600))

	idx, err := Open(path, MetricEuclidean, 4, WithBackend(BackendHNSW))
	require.NoError(t, err)
	assert.ErrorIs(t, idx.Load(context.Background()), ErrIndexCorrupt)
}

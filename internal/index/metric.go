package index

import (
	"fmt"
	"math"
	"strings"
)

// Metric is the distance metric an index was built with.
// It is fixed when the index is opened and must match the persisted file.
type Metric uint8

const (
	// MetricEuclidean is the L2 distance.
	MetricEuclidean Metric = iota + 1
	// MetricEuclideanSquared is the squared L2 distance.
	MetricEuclideanSquared
	// MetricCosine is 1 - cosine similarity, in [0, 2].
	MetricCosine
)

// ParseMetric maps a configuration name to a Metric.
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "euclidean", "l2":
		return MetricEuclidean, nil
	case "euclidean_squared", "l2sq", "sqeuclidean":
		return MetricEuclideanSquared, nil
	case "cosine":
		return MetricCosine, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
}

func (m Metric) String() string {
	switch m {
	case MetricEuclidean:
		return "euclidean"
	case MetricEuclideanSquared:
		return "euclidean_squared"
	case MetricCosine:
		return "cosine"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// Valid reports whether m is one of the supported metrics.
func (m Metric) Valid() bool {
	return m >= MetricEuclidean && m <= MetricCosine
}

// Distance returns the metric's distance between a and b.
// a and b must have the same length.
func (m Metric) Distance(a, b []float32) float64 {
	switch m {
	case MetricCosine:
		return CosineDistance(a, b)
	default:
		return m.finalize(SquaredL2(a, b))
	}
}

// finalize converts a scan kernel value into the reported distance.
// Euclidean scans compare squared distances and take the root only for the results.
func (m Metric) finalize(v float64) float64 {
	if m == MetricEuclidean {
		return math.Sqrt(v)
	}
	return v
}

// Range is the upper end of the distances this metric is expected to produce
// for face embeddings: 2 for cosine, 1 for both Euclidean variants.
func (m Metric) Range() float64 {
	if m == MetricCosine {
		return 2
	}
	return 1
}

// Normalize maps a distance of this metric onto [0, 1], where 0 is identical
// and 1 is maximally dissimilar. The distance is divided by Range and clamped,
// so Euclidean distances are taken as is and cosine distances are halved.
func (m Metric) Normalize(d float64) float64 {
	return clamp01(d / m.Range())
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 1
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// SquaredL2 computes the squared Euclidean distance between two vectors of equal length.
func SquaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// CosineDistance computes the cosine distance between two vectors
// Returns a value between 0 (identical) and 2 (opposite)
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}
	return cosineWithNorms(a, b, norm(a), norm(b))
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosineWithNorms computes the cosine distance given precomputed vector norms.
func cosineWithNorms(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 2.0 // Maximum distance for zero vectors
	}

	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}

	similarity := dot / (normA * normB)
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity
}

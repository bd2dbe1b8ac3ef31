package stats

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// DistanceMetric represents different distance/similarity measures
type DistanceMetric int

const (
	EuclideanDistance DistanceMetric = iota
	ManhattanDistance
	CosineDistance
	ChebyshevDistance
)

func (m DistanceMetric) String() string {
	switch m {
	case EuclideanDistance:
		return "euclidean"
	case ManhattanDistance:
		return "manhattan"
	case CosineDistance:
		return "cosine"
	case ChebyshevDistance:
		return "chebyshev"
	default:
		return "unknown"
	}
}

// ParseDistanceMetric maps a metric name to its DistanceMetric.
// The empty string selects EuclideanDistance.
func ParseDistanceMetric(name string) (DistanceMetric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "euclidean", "l2":
		return EuclideanDistance, nil
	case "manhattan", "l1", "cityblock":
		return ManhattanDistance, nil
	case "cosine":
		return CosineDistance, nil
	case "chebyshev", "linf":
		return ChebyshevDistance, nil
	default:
		return EuclideanDistance, fmt.Errorf("unknown distance metric: %q", name)
	}
}

// DistanceFunction is a function type for computing distance between two
// vectors of equal length
type DistanceFunction func(a, b []float64) float64

// GetDistanceFunction returns the appropriate distance function for the given metric
func GetDistanceFunction(metric DistanceMetric) DistanceFunction {
	switch metric {
	case ManhattanDistance:
		return ManhattanDistanceFunc
	case CosineDistance:
		return CosineDistanceFunc
	case ChebyshevDistance:
		return ChebyshevDistanceFunc
	default:
		return EuclideanDistanceFunc
	}
}

// EuclideanDistanceFunc calculates Euclidean (L2) distance
func EuclideanDistanceFunc(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

// ManhattanDistanceFunc calculates Manhattan (L1) distance
func ManhattanDistanceFunc(a, b []float64) float64 {
	return floats.Distance(a, b, 1)
}

// ChebyshevDistanceFunc calculates Chebyshev (L∞) distance
func ChebyshevDistanceFunc(a, b []float64) float64 {
	return floats.Distance(a, b, math.Inf(1))
}

// CosineDistanceFunc calculates cosine distance (1 - cosine similarity).
// Two zero vectors are identical (distance 0); one zero vector against a
// non-zero vector is maximally dissimilar (distance 1).
func CosineDistanceFunc(a, b []float64) float64 {
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)

	if normA == 0 && normB == 0 {
		return 0.0
	}
	if normA == 0 || normB == 0 {
		return 1.0
	}

	similarity := floats.Dot(a, b) / (normA * normB)
	return 1.0 - math.Max(-1, math.Min(1, similarity))
}

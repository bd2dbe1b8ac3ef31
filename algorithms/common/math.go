package common

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Statistical helpers shared across algorithms, backed by gonum.

// Mean calculates the arithmetic mean of a slice
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// Column returns column k of a row-major matrix
func Column(rows [][]float64, k int) []float64 {
	col := make([]float64, len(rows))
	for i, row := range rows {
		col[i] = row[k]
	}
	return col
}

// SubtractColumnMeans removes the per-column mean from every row in place
// and returns the means that were removed.
func SubtractColumnMeans(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}

	means := make([]float64, len(rows[0]))
	for k := range means {
		means[k] = Mean(Column(rows, k))
	}
	for _, row := range rows {
		floats.Sub(row, means)
	}
	return means
}

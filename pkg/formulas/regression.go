package formulas

import (
	"gonum.org/v1/gonum/stat"
)

// LinearRegressionSlope returns the ordinary least squares slope of y against x.
//
// It returns 0 when fewer than two points are supplied, when the slices differ in
// length, when any value is NaN or infinite, or when x has zero variance.
func LinearRegressionSlope(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	if !AllFinite(x...) || !AllFinite(y...) {
		return 0
	}

	mean := Mean(x)
	variance := 0.0
	for _, v := range x {
		variance += (v - mean) * (v - mean)
	}
	if variance == 0 {
		return 0
	}

	_, beta := stat.LinearRegression(x, y, nil, false)
	if !AllFinite(beta) {
		return 0
	}
	return beta
}

// SeriesSlope regresses an oldest-first series against x = 1..n.
func SeriesSlope(valuesOldestFirst []float64) float64 {
	x := make([]float64, len(valuesOldestFirst))
	for i := range x {
		x[i] = float64(i + 1)
	}
	return LinearRegressionSlope(x, valuesOldestFirst)
}

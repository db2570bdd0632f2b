package forecast

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// MASE is the mean absolute scaled error of predicted against actual,
// scaled by the mean absolute first difference of training. It is 0 for a
// perfect prediction and +Inf when training has no variation to scale by.
func MASE(training, actual, predicted []float64) float64 {
	n := min(len(actual), len(predicted))
	var errSum float64
	for i := 0; i < n; i++ {
		errSum += math.Abs(actual[i] - predicted[i])
	}
	if errSum == 0 {
		return 0
	}

	if len(training) < 2 {
		return math.Inf(1)
	}
	var diffSum float64
	for i := 1; i < len(training); i++ {
		diffSum += math.Abs(training[i] - training[i-1])
	}
	if diffSum == 0 {
		return math.Inf(1)
	}
	scale := diffSum / float64(len(training)-1)
	return errSum / float64(n) / scale
}

// RMSE is the root mean square error over the common length of both
// series.
func RMSE(actual, predicted []float64) float64 {
	n := min(len(actual), len(predicted))
	if n == 0 {
		return 0
	}
	return floats.Distance(actual[:n], predicted[:n], 2) / math.Sqrt(float64(n))
}

// MakeHourly averages every samplesPerHour consecutive samples into one. A
// trailing incomplete hour is dropped.
func MakeHourly(data []float64, samplesPerHour int) []float64 {
	if samplesPerHour <= 1 {
		return append([]float64(nil), data...)
	}
	hours := len(data) / samplesPerHour
	out := make([]float64, hours)
	for h := range out {
		chunk := data[h*samplesPerHour : (h+1)*samplesPerHour]
		out[h] = floats.Sum(chunk) / float64(samplesPerHour)
	}
	return out
}

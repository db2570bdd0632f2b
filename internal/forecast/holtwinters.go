package forecast

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

var ErrShortSeries = errors.New("series shorter than two seasons")

// Params are the Holt-Winters smoothing factors, each in [0, 1].
type Params struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

var (
	// DefaultInitialParams seeds the first automatic search.
	DefaultInitialParams = Params{Alpha: 0.002, Beta: 0, Gamma: 0.0002}
	// AlternativeInitialParams seeds the second one.
	AlternativeInitialParams = Params{Alpha: 0.02, Beta: 0.01, Gamma: 0.08}
)

// ratio divides x by d. A zero denominator yields the neutral factor 1.
func ratio(x, d float64) float64 {
	if d == 0 {
		return 1
	}
	return x / d
}

// Multiplicative runs the multiplicative Holt-Winters model with season
// length m over y and returns fc forecast values, the one-step-ahead fitted
// values for y and their RMSE.
func Multiplicative(y []float64, m, fc int, p Params) (forecast, fitted []float64, rmse float64, err error) {
	n := len(y)
	if m <= 0 || n < 2*m {
		return nil, nil, 0, fmt.Errorf("%w: %d samples, season %d", ErrShortSeries, n, m)
	}

	a := make([]float64, 1, n+fc+1)
	b := make([]float64, 1, n+fc+1)
	s := make([]float64, m, n+fc+m)
	a[0] = floats.Sum(y[:m]) / float64(m)
	b[0] = (floats.Sum(y[m:2*m]) - floats.Sum(y[:m])) / float64(m*m)
	for i := 0; i < m; i++ {
		s[i] = ratio(y[i], a[0])
	}

	fitted = make([]float64, 0, n)
	fitted = append(fitted, (a[0]+b[0])*s[0])
	forecast = make([]float64, 0, fc)

	obs := func(i int) float64 {
		if i < n {
			return y[i]
		}
		return forecast[i-n]
	}
	for i := 0; i < n+fc; i++ {
		if i >= n {
			forecast = append(forecast, (a[i]+b[i])*s[i])
		}
		v := obs(i)
		a = append(a, p.Alpha*ratio(v, s[i])+(1-p.Alpha)*(a[i]+b[i]))
		b = append(b, p.Beta*(a[i+1]-a[i])+(1-p.Beta)*b[i])
		s = append(s, p.Gamma*ratio(v, a[i]+b[i])+(1-p.Gamma)*s[i])
		if i+1 < n {
			fitted = append(fitted, (a[i+1]+b[i+1])*s[i+1])
		}
	}

	return forecast, fitted, RMSE(y, fitted), nil
}

// searchEvaluations bounds one automatic parameter search.
const searchEvaluations = 400

// Search looks for the parameters minimizing the in-sample RMSE, starting
// at init. Parameters are kept inside [0, 1].
func Search(y []float64, m int, init Params) (Params, error) {
	if m <= 0 || len(y) < 2*m {
		return Params{}, fmt.Errorf("%w: %d samples, season %d", ErrShortSeries, len(y), m)
	}

	best, bestRMSE := init, math.Inf(1)
	objective := func(x []float64) float64 {
		p := Params{Alpha: unit(x[0]), Beta: unit(x[1]), Gamma: unit(x[2])}
		_, _, rmse, _ := Multiplicative(y, m, 0, p)
		if math.IsNaN(rmse) {
			rmse = math.Inf(1)
		}
		if rmse < bestRMSE {
			best, bestRMSE = p, rmse
		}
		// keep the simplex near the unit cube
		var out float64
		for _, v := range x {
			d := v - unit(v)
			out += d * d
		}
		return rmse + out
	}

	problem := optimize.Problem{Func: objective}
	settings := &optimize.Settings{FuncEvaluations: searchEvaluations}
	method := &optimize.NelderMead{SimplexSize: 0.05}
	// a failed search still leaves the best evaluated point in best
	_, _ = optimize.Minimize(problem, []float64{init.Alpha, init.Beta, init.Gamma}, settings, method)
	return best, nil
}

func unit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

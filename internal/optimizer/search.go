// Package optimizer searches the cogeneration workload override that
// minimizes the projected operating cost of a scenario.
package optimizer

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

const (
	gridStep = 10.0
	// maxEvaluations bounds each refinement phase.
	maxEvaluations = 50
	// boundsPenalty steers the refinement back into [lo, hi].
	boundsPenalty = 1e3
)

// tracker remembers the best point seen across all phases.
type tracker struct {
	f      func(float64) float64
	lo, hi float64
	bestX  float64
	bestF  float64
	evals  int
}

func (t *tracker) eval(x float64) float64 {
	if math.IsNaN(x) {
		return math.Inf(1)
	}
	c := math.Max(t.lo, math.Min(t.hi, x))
	v := t.f(c)
	if math.IsNaN(v) {
		v = math.Inf(1)
	}
	t.evals++
	if v < t.bestF {
		t.bestX, t.bestF = c, v
	}
	// outside the bounds the objective keeps rising with the distance
	d := x - c
	return v + boundsPenalty*d*d
}

// Minimize returns the x in [lo, hi] with the lowest f it found. A coarse
// grid seeds an L-BFGS refinement using central finite differences; if
// that does not improve on the grid, Nelder-Mead gets a try. The result is
// never worse than the best grid point.
func Minimize(f func(float64) float64, lo, hi float64) float64 {
	t := &tracker{f: f, lo: lo, hi: hi, bestX: lo, bestF: math.Inf(1)}
	for x := lo; x < hi; x += gridStep {
		t.eval(x)
	}
	seed, seedF := t.bestX, t.bestF

	objective := func(x []float64) float64 {
		return t.eval(x[0])
	}
	problem := optimize.Problem{
		Func: objective,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, objective, x, &fd.Settings{Formula: fd.Central, Step: 1})
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: maxEvaluations,
		GradEvaluations: maxEvaluations,
	}

	// errors only mean the search stopped early; the tracker keeps the best
	// point either way
	_, _ = optimize.Minimize(problem, []float64{seed}, settings, &optimize.LBFGS{})
	if t.bestF < seedF {
		return t.bestX
	}

	nm := optimize.Problem{Func: objective}
	_, _ = optimize.Minimize(nm, []float64{seed}, settings, &optimize.NelderMead{SimplexSize: gridStep / 2})
	return t.bestX
}

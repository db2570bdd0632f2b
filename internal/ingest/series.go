package ingest

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"ecocontrol/internal/model"
)

// ErrNoSamples is returned when there is nothing to resample.
var ErrNoSamples = errors.New("no samples")

// MaxGap is the longest span Regularize fills by interpolation.
const MaxGap = 6 * time.Hour

// Regularize turns samples into an evenly spaced series with the given step,
// starting at the first sample rounded up to a multiple of step. Each slot
// holds the value interpolated linearly between its neighbours. Gaps longer
// than MaxGap are an error.
func Regularize(samples []model.Sample, step time.Duration) (time.Time, []float64, error) {
	if step <= 0 {
		return time.Time{}, nil, fmt.Errorf("step must be positive, got %s", step)
	}
	if len(samples) == 0 {
		return time.Time{}, nil, ErrNoSamples
	}
	sorted := append([]model.Sample(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	first := sorted[0].Timestamp.UTC()
	last := sorted[len(sorted)-1].Timestamp.UTC()
	start := first.Truncate(step)
	if start.Before(first) {
		start = start.Add(step)
	}

	var values []float64
	j := 0
	for t := start; !t.After(last); t = t.Add(step) {
		for j+1 < len(sorted) && !sorted[j+1].Timestamp.After(t) {
			j++
		}
		cur := sorted[j]
		if cur.Timestamp.Equal(t) || j+1 == len(sorted) {
			values = append(values, cur.Value)
			continue
		}
		next := sorted[j+1]
		span := next.Timestamp.Sub(cur.Timestamp)
		if span > MaxGap {
			return time.Time{}, nil, fmt.Errorf("gap of %s after %s exceeds %s", span, cur.Timestamp.Format(time.RFC3339), MaxGap)
		}
		frac := float64(t.Sub(cur.Timestamp)) / float64(span)
		values = append(values, cur.Value+(next.Value-cur.Value)*frac)
	}
	return start, values, nil
}

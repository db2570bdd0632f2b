package forecast

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// history is the fallback for times the forecast does not cover: the mean
// of all observed values per day of year and hour of day, or per hour of
// day where a day was never observed.
type history struct {
	byDay  map[[2]int][]float64
	byHour [24][]float64
}

func newHistory() *history {
	return &history{byDay: make(map[[2]int][]float64)}
}

func (h *history) add(series []float64, samplesPerHour int, start time.Time) {
	for i, v := range series {
		t := sampleTime(start, i, samplesPerHour)
		key := [2]int{t.YearDay(), t.Hour()}
		h.byDay[key] = append(h.byDay[key], v)
		h.byHour[t.Hour()] = append(h.byHour[t.Hour()], v)
	}
}

func (h *history) at(t time.Time) float64 {
	if v, ok := h.byDay[[2]int{t.YearDay(), t.Hour()}]; ok {
		return stat.Mean(v, nil)
	}
	if v := h.byHour[t.Hour()]; len(v) > 0 {
		return stat.Mean(v, nil)
	}
	return 0
}

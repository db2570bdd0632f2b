package forecast

import "time"

// sampleTime returns the timestamp of sample i of a series starting at
// start.
func sampleTime(start time.Time, i, samplesPerHour int) time.Time {
	return start.Add(time.Duration(i) * time.Hour / time.Duration(samplesPerHour))
}

// SplitByWeekday partitions a chronological series starting at start into
// seven buckets indexed by time.Weekday. Each bucket keeps the order of
// its samples. A non-positive samplesPerHour yields empty buckets.
func SplitByWeekday(series []float64, samplesPerHour int, start time.Time) [7][]float64 {
	var buckets [7][]float64
	if samplesPerHour <= 0 {
		return buckets
	}
	for i, v := range series {
		wd := sampleTime(start, i, samplesPerHour).Weekday()
		buckets[wd] = append(buckets[wd], v)
	}
	return buckets
}

// Interleave is the inverse of SplitByWeekday for the same start. It
// returns nil for a non-positive samplesPerHour.
func Interleave(buckets [7][]float64, samplesPerHour int, start time.Time) []float64 {
	if samplesPerHour <= 0 {
		return nil
	}

	var total int
	for _, b := range buckets {
		total += len(b)
	}

	var next [7]int
	out := make([]float64, 0, total)
	for i := 0; len(out) < total; i++ {
		wd := sampleTime(start, i, samplesPerHour).Weekday()
		if next[wd] >= len(buckets[wd]) {
			// buckets that did not come from one series
			break
		}
		out = append(out, buckets[wd][next[wd]])
		next[wd]++
	}
	return out
}

// Package weather provides outside temperatures for the thermal model: a
// climatology table for the building's location and a remote forecast client
// that falls back to it.
package weather

import (
	"math"
	"sync"
	"time"
)

// Provider returns the expected outside temperature in °C.
type Provider interface {
	AverageOutsideTemperature(t time.Time) float64
}

// Climate describes the annual and daily temperature cycle of a location.
type Climate struct {
	AnnualMean      float64 // °C
	AnnualAmplitude float64 // K, half the summer/winter spread
	ColdestDay      int     // day of year of the annual minimum
	DailyAmplitude  float64 // K, half the day/night spread in winter
	SummerExtra     float64 // K added to DailyAmplitude at midsummer
	WarmestHour     int
}

// Berlin is the default location.
var Berlin = Climate{
	AnnualMean:      9.9,
	AnnualAmplitude: 9.6,
	ColdestDay:      15,
	DailyAmplitude:  2.0,
	SummerExtra:     2.5,
	WarmestHour:     15,
}

// History is a lookup table of average temperatures indexed by day of year
// and hour of day.
type History struct {
	table [365 * 24]float64
}

func NewHistory(c Climate) *History {
	h := &History{}
	for day := 0; day < 365; day++ {
		season := -math.Cos(2 * math.Pi * float64(day+1-c.ColdestDay) / 365)
		mean := c.AnnualMean + c.AnnualAmplitude*season
		amp := c.DailyAmplitude + c.SummerExtra*(season+1)/2
		for hour := 0; hour < 24; hour++ {
			diurnal := math.Cos(2 * math.Pi * float64(hour-c.WarmestHour) / 24)
			h.table[day*24+hour] = mean + amp*diurnal
		}
	}
	return h
}

var (
	defaultOnce    sync.Once
	defaultHistory *History
)

// DefaultHistory returns the shared table for Berlin.
func DefaultHistory() *History {
	defaultOnce.Do(func() {
		defaultHistory = NewHistory(Berlin)
	})
	return defaultHistory
}

// AverageOutsideTemperature looks up the table. Day 366 of leap years wraps
// to the first day.
func (h *History) AverageOutsideTemperature(t time.Time) float64 {
	return h.At(t, 0)
}

// At returns the table value offsetDays after t.
func (h *History) At(t time.Time, offsetDays int) float64 {
	t = t.UTC()
	day := (t.YearDay() - 1 + offsetDays) % 365
	if day < 0 {
		day += 365
	}
	return h.table[day*24+t.Hour()]
}

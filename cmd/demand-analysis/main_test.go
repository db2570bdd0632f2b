package main

import (
	"bytes"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecocontrol/internal/forecast"
)

var (
	quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))
	monday   = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

func demand(t time.Time) float64 {
	shape := 5 + 3*math.Sin(2*math.Pi*float64(t.Hour())/24)
	return shape * (1 + 0.1*float64(t.Weekday()))
}

func hourlySeries(start time.Time, days int) []float64 {
	out := make([]float64, days*24)
	for i := range out {
		out[i] = demand(start.Add(time.Duration(i) * time.Hour))
	}
	return out
}

func TestAnalyze(t *testing.T) {
	values := hourlySeries(monday, 28)
	r, err := analyze(monday, values, 1, 7, 0.5, quietLog)
	require.NoError(t, err)

	assert.Equal(t, monday, r.Start)
	assert.Equal(t, monday.Add(28*24*time.Hour), r.End)

	var sum float64
	for _, v := range values {
		sum += v
	}
	assert.InDelta(t, sum, r.TotalKWh, 1e-9)
	assert.InDelta(t, sum*0.5, r.TotalCost, 1e-9)

	// every hour of the day is seen once per day
	var hourlySum float64
	for h, b := range r.Hourly {
		assert.Equal(t, 28, b.Samples, "hour %d", h)
		hourlySum += b.KWh
	}
	assert.InDelta(t, sum, hourlySum, 1e-9)
	assert.Greater(t, r.Hourly[6].KWh, r.Hourly[18].KWh)

	// a weekday's average day is the base day scaled by its factor
	assert.InDelta(t, 5*24*1.0, r.WeekdayKWh[time.Sunday], 1e-6)
	assert.InDelta(t, 5*24*1.6, r.WeekdayKWh[time.Saturday], 1e-6)

	for wd, fit := range r.Fits {
		assert.GreaterOrEqual(t, fit.Alpha, 0.0, "weekday %d", wd)
		assert.LessOrEqual(t, fit.Alpha, 1.0, "weekday %d", wd)
	}

	require.NotNil(t, r.Backtest)
	assert.Equal(t, 7, r.Backtest.Days)
	assert.Less(t, r.Backtest.MASE, 0.01)
	assert.Less(t, r.Backtest.RMSE, 0.01)
}

func TestAnalyzeBacktestNeedsTwoWeeks(t *testing.T) {
	// 18 days leave 11 for training, too few to fit
	r, err := analyze(monday, hourlySeries(monday, 18), 1, 7, 0.5, quietLog)
	require.NoError(t, err)
	assert.Nil(t, r.Backtest)

	r, err = analyze(monday, hourlySeries(monday, 18), 1, 0, 0.5, quietLog)
	require.NoError(t, err)
	assert.Nil(t, r.Backtest)
}

func TestAnalyzeShortHistory(t *testing.T) {
	_, err := analyze(monday, hourlySeries(monday, 10), 1, 7, 0.5, quietLog)
	assert.ErrorIs(t, err, forecast.ErrShortSeries)
}

func TestPrintReport(t *testing.T) {
	r, err := analyze(monday, hourlySeries(monday, 28), 1, 7, 0.283, quietLog)
	require.NoError(t, err)

	var buf bytes.Buffer
	printReport(&buf, r)
	out := buf.String()

	assert.Contains(t, out, "2024-01-01 to 2024-01-29 (28 days)")
	assert.Contains(t, out, "← peak")
	assert.Contains(t, out, "Monday")
	assert.Contains(t, out, "Backtest (last 7 days)")
}

func TestFormatKWh(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0 kWh"},
		{999.94, "999.9 kWh"},
		{1500, "1.5 MWh"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatKWh(tt.in))
	}
}

func TestSafeDivide(t *testing.T) {
	assert.Equal(t, 0.0, safeDivide(1, 0))
	assert.Equal(t, 2.0, safeDivide(4, 2))
}

// Package forecast predicts electrical demand with one multiplicative
// Holt-Winters model per weekday.
package forecast

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// MaxForecastDays is how far past the data the forecast is used.
	MaxForecastDays = 13

	// A fit with manual parameters is accepted below both limits.
	maxAcceptedMASE = 4.0
	maxAcceptedRMSE = 6.0

	// RefitInterval is the minimum amount of new data before a refit.
	RefitInterval = 24 * time.Hour

	week = 7 * 24 * time.Hour
)

var ErrGap = errors.New("appended data leaves a gap")

// FitInfo describes the model chosen for one weekday.
type FitInfo struct {
	Params
	RMSE   float64 `json:"rmse"`
	MASE   float64 `json:"mase"`
	Manual bool    `json:"manual"`
}

// Fit fits one weekday bucket. Manual parameters, if given, are accepted
// when they reach MASE < 4 and RMSE < 6. Otherwise two automatic searches
// run and the one with the lower MASE wins, unless the manual fit is still
// better. The returned forecast has fc values.
func Fit(bucket []float64, m, fc int, manual *Params) ([]float64, FitInfo, error) {
	type candidate struct {
		forecast []float64
		info     FitInfo
	}
	try := func(p Params, isManual bool) (candidate, error) {
		fcast, fitted, rmse, err := Multiplicative(bucket, m, fc, p)
		if err != nil {
			return candidate{}, err
		}
		return candidate{
			forecast: fcast,
			info:     FitInfo{Params: p, RMSE: rmse, MASE: MASE(bucket, bucket, fitted), Manual: isManual},
		}, nil
	}

	var chosen *candidate
	if manual != nil {
		c, err := try(*manual, true)
		if err != nil {
			return nil, FitInfo{}, err
		}
		if c.info.MASE < maxAcceptedMASE && c.info.RMSE < maxAcceptedRMSE {
			return c.forecast, c.info, nil
		}
		chosen = &c
	}

	for _, init := range []Params{DefaultInitialParams, AlternativeInitialParams} {
		p, err := Search(bucket, m, init)
		if err != nil {
			return nil, FitInfo{}, err
		}
		c, err := try(p, false)
		if err != nil {
			return nil, FitInfo{}, err
		}
		if chosen == nil || c.info.MASE < chosen.info.MASE {
			chosen = &c
		}
	}
	return chosen.forecast, chosen.info, nil
}

// Forecaster answers demand queries from observed data and per-weekday
// forecasts. It is safe for concurrent use, so cloned scenarios can share
// one instance.
type Forecaster struct {
	mu sync.RWMutex

	samplesPerHour int
	manual         *Params
	logger         *slog.Logger

	series    []float64
	pending   []float64
	buckets   [7][]float64
	forecasts [7][]float64
	fits      [7]FitInfo
	start     time.Time
	end       time.Time
	lastFit   time.Time
	history   *history
}

type Option func(*Forecaster)

// WithParams sets manual smoothing parameters tried before the searches.
func WithParams(p Params) Option {
	return func(f *Forecaster) { f.manual = &p }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Forecaster) { f.logger = l }
}

// New fits a forecaster on series, which starts at start and has
// samplesPerHour samples per hour. Samples before the first midnight and
// after the last complete day are not used for fitting.
func New(series []float64, samplesPerHour int, start time.Time, opts ...Option) (*Forecaster, error) {
	if samplesPerHour <= 0 {
		return nil, fmt.Errorf("samples per hour must be positive, got %d", samplesPerHour)
	}
	f := &Forecaster{
		samplesPerHour: samplesPerHour,
		logger:         slog.Default(),
		history:        newHistory(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(slog.String("component", "forecast"))

	// align to midnight so that every bucket holds whole days
	start = start.UTC()
	midnight := start.Truncate(24 * time.Hour)
	if !midnight.Equal(start) {
		midnight = midnight.Add(24 * time.Hour)
		skip := int(midnight.Sub(start) / f.step())
		if skip >= len(series) {
			return nil, fmt.Errorf("%w: no complete day in %d samples", ErrShortSeries, len(series))
		}
		series = series[skip:]
	}
	whole := len(series) / f.day() * f.day()
	if whole < 14*f.day() {
		return nil, fmt.Errorf("%w: need two weeks of data, got %d complete days", ErrShortSeries, whole/f.day())
	}

	f.start = midnight
	f.end = midnight
	f.extend(series[:whole])
	f.pending = append([]float64(nil), series[whole:]...)
	if err := f.refit(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Forecaster) step() time.Duration {
	return time.Hour / time.Duration(f.samplesPerHour)
}

// day is the number of samples per day, the season length.
func (f *Forecaster) day() int {
	return 24 * f.samplesPerHour
}

// extend adds whole days starting at f.end. Must be called with mu held.
func (f *Forecaster) extend(days []float64) {
	split := SplitByWeekday(days, f.samplesPerHour, f.end)
	for wd := range split {
		f.buckets[wd] = append(f.buckets[wd], split[wd]...)
	}
	f.series = append(f.series, days...)
	f.history.add(days, f.samplesPerHour, f.end)
	f.end = f.end.Add(time.Duration(len(days)) * f.step())
}

// refit fits every weekday bucket. Must be called with mu held.
func (f *Forecaster) refit() error {
	m := f.day()
	// two future days per weekday cover MaxForecastDays
	fc := 2 * m
	for wd := range f.buckets {
		fcast, info, err := Fit(f.buckets[wd], m, fc, f.manual)
		if err != nil {
			return fmt.Errorf("fitting %s: %w", time.Weekday(wd), err)
		}
		f.forecasts[wd] = fcast
		f.fits[wd] = info
		f.logger.Debug("fitted weekday",
			slog.String("weekday", time.Weekday(wd).String()),
			slog.Float64("alpha", info.Alpha),
			slog.Float64("beta", info.Beta),
			slog.Float64("gamma", info.Gamma),
			slog.Float64("rmse", info.RMSE),
			slog.Float64("mase", info.MASE),
			slog.Bool("manual", info.Manual))
	}
	f.lastFit = f.end
	return nil
}

// Append adds newly observed data starting at start. Data overlapping what
// is already known is skipped. Once at least RefitInterval of new data has
// accumulated since the last fit, all weekdays are refitted.
func (f *Forecaster) Append(series []float64, start time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := f.end.Add(time.Duration(len(f.pending)) * f.step())
	start = start.UTC()
	if start.After(next) {
		return fmt.Errorf("%w: data starts at %s, expected %s", ErrGap, start, next)
	}
	skip := int(next.Sub(start) / f.step())
	if skip >= len(series) {
		return nil
	}

	data := append(f.pending, series[skip:]...)
	whole := len(data) / f.day() * f.day()
	f.extend(data[:whole])
	f.pending = append([]float64(nil), data[whole:]...)

	if f.end.Sub(f.lastFit) >= RefitInterval {
		return f.refit()
	}
	return nil
}

// index maps t after the end of the data to the week offset and the sample
// of the day within that weekday's forecast.
func (f *Forecaster) index(t time.Time) (weekIndex, hourIndex int) {
	delta := t.Sub(f.end)
	weekIndex = int(delta / week)
	hourIndex = int(delta % (24 * time.Hour) / f.step())
	return weekIndex, hourIndex
}

// ForecastAt returns the demand at t: the observed value inside the data,
// the weekday forecast up to MaxForecastDays after it and the historical
// average otherwise.
func (f *Forecaster) ForecastAt(t time.Time) float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	t = t.UTC()
	if t.Before(f.start) || t.Sub(f.end) > MaxForecastDays*24*time.Hour {
		return f.history.at(t)
	}
	if t.Before(f.end) {
		return f.series[int(t.Sub(f.start)/f.step())]
	}

	w, h := f.index(t)
	fcast := f.forecasts[t.Weekday()]
	i := w*f.day() + h
	if i >= len(fcast) {
		return f.history.at(t)
	}
	return fcast[i]
}

// Parameters returns the chosen model per weekday, indexed by time.Weekday.
func (f *Forecaster) Parameters() [7]FitInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.fits
}

// Range returns the time span covered by complete days of data.
func (f *Forecaster) Range() (start, end time.Time) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.start, f.end
}

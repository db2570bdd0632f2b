package simulator

import (
	"errors"
	"time"
)

const (
	// DefaultStepSize is the tick length in seconds.
	DefaultStepSize = 120
	// DefaultInitialTime is 2013-01-01 00:00 UTC.
	DefaultInitialTime = 1356998400
)

var ErrStepFuncRegistered = errors.New("step function already registered")

// Environment is the simulated clock of one run.
type Environment struct {
	Now         int64
	StepSize    int64
	InitialTime int64
	DemoMode    bool
	Forecast    bool

	stepFunc func()
}

func NewEnvironment(initialTime, stepSize int64) *Environment {
	if stepSize <= 0 {
		stepSize = DefaultStepSize
	}
	return &Environment{
		Now:         initialTime,
		StepSize:    stepSize,
		InitialTime: initialTime,
	}
}

// RegisterStepFunc sets the callback fired after every tick. Only one
// callback may be registered at a time.
func (e *Environment) RegisterStepFunc(fn func()) error {
	if e.stepFunc != nil {
		return ErrStepFuncRegistered
	}
	e.stepFunc = fn
	return nil
}

// ClearStepFunc removes the registered callback.
func (e *Environment) ClearStepFunc() {
	e.stepFunc = nil
}

// Advance moves the clock forward by one step and fires the callback.
func (e *Environment) Advance() {
	e.Now += e.StepSize
	if e.stepFunc != nil {
		e.stepFunc()
	}
}

func (e *Environment) Time() time.Time {
	return time.Unix(e.Now, 0).UTC()
}

// DayOfYear returns the UTC day of the year in [1, 366].
func (e *Environment) DayOfYear() int {
	return e.Time().YearDay()
}

func (e *Environment) HourOfDay() int {
	return e.Time().Hour()
}

func (e *Environment) MinuteOfHour() int {
	return e.Time().Minute()
}

// Elapsed returns the simulated seconds since InitialTime.
func (e *Environment) Elapsed() int64 {
	return e.Now - e.InitialTime
}

// StepHours is the tick length in hours, used to turn power into energy.
func (e *Environment) StepHours() float64 {
	return float64(e.StepSize) / 3600.0
}

// IsDemoSimulation reports whether this is the live demo run.
func (e *Environment) IsDemoSimulation() bool {
	return e.DemoMode && !e.Forecast
}

// clone copies the clock without its callback.
func (e *Environment) clone() *Environment {
	c := *e
	c.stepFunc = nil
	return &c
}

package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ecocontrol/internal/metrics"
	"ecocontrol/internal/model"
)

// RunState is the driver's lifecycle state.
type RunState string

const (
	StateIdle       RunState = "idle"
	StateRunning    RunState = "running"
	StateForwarding RunState = "forwarding"
	StateStopped    RunState = "stopped"
)

// OptimizationInterval is the auto-optimization cadence in simulated seconds.
const OptimizationInterval = 3600

var (
	ErrAlreadyRunning = errors.New("simulation already running")
	ErrStopped        = errors.New("simulation stopped")
)

// Decision is the optimizer's output, applied to the cogeneration unit.
type Decision struct {
	CUOverwriteWorkload float64 `json:"cu_overwrite_workload"`
}

// Optimizer searches the best cogeneration workload for a scenario. It must
// not mutate s.
type Optimizer interface {
	Optimize(ctx context.Context, s *Scenario) (Decision, error)
}

// SampleSink persists demo samples.
type SampleSink interface {
	StoreSamples(ctx context.Context, samples []model.Sample) error
}

// Status is a snapshot of the driver.
type Status struct {
	State     RunState  `json:"state"`
	Time      time.Time `json:"time"`
	Speed     float64   `json:"speed"`
	Progress  float64   `json:"progress"`
	Ticks     int64     `json:"ticks"`
	CodeError string    `json:"code_error,omitempty"`
	Decision  *Decision `json:"last_decision,omitempty"`
	Balance   float64   `json:"total_balance"`
}

// Callback receives driver events. It is called without locks held.
type Callback interface {
	OnStatus(status Status)
	OnSamples(samples []model.Sample)
}

// Point is one (timestamp in ms, value) pair.
type Point struct {
	Timestamp int64
	Value     float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Timestamp, p.Value})
}

func (p *Point) UnmarshalJSON(b []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	p.Timestamp = int64(pair[0])
	p.Value = pair[1]
	return nil
}

type SensorSeries struct {
	SensorID int     `json:"sensor_id"`
	Data     []Point `json:"data"`
}

// ForecastResult holds all samples of a bounded run.
type ForecastResult struct {
	Start   int64          `json:"start"`
	Step    int64          `json:"step"`
	End     int64          `json:"end"`
	Sensors []SensorSeries `json:"sensors"`
}

type Options struct {
	// Sensors are sampled after every tick.
	Sensors   []model.Sensor
	Optimizer Optimizer
	// UserCode is compiled once; see UserCode.
	UserCode string
	// Sink persists samples of the live demo run.
	Sink     SampleSink
	Callback Callback
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	// Speed is the simulated seconds per wall clock second for Start.
	Speed float64
}

// Engine drives a scenario tick by tick, either for a bounded forecast
// horizon (Run) or until stopped (Start).
type Engine struct {
	mu       sync.Mutex
	scenario *Scenario
	opts     Options
	logger   *slog.Logger
	code     *UserCode
	codeEnv  map[string]any

	state     RunState
	speed     float64
	runStart  int64
	runLength int64
	forwardTo int64
	cooldown  int64
	ticks     int64

	lastPersistMinute int64
	codeErr           error
	decision          *Decision
	samples           []model.Sample
	result            *ForecastResult

	stopCh chan struct{}
	done   chan struct{}
}

func NewEngine(s *Scenario, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		scenario:          s,
		opts:              opts,
		logger:            logger.With(slog.String("component", "engine")),
		state:             StateIdle,
		lastPersistMinute: -1,
	}
	e.SetSpeed(opts.Speed)

	e.codeEnv = UserCodeEnv(s)
	code, err := CompileUserCode(opts.UserCode, e.codeEnv)
	if err != nil {
		return nil, fmt.Errorf("compiling user code: %w", err)
	}
	e.code = code

	if err := s.Env.RegisterStepFunc(e.onTick); err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, nil
}

// Scenario returns the driven scenario. Callers must not mutate it while
// the engine runs.
func (e *Engine) Scenario() *Scenario {
	return e.scenario
}

// SetSpeed sets the pacing of Start, clamped like the replay speed of the
// dashboard.
func (e *Engine) SetSpeed(speed float64) {
	if speed < 1 {
		speed = 1
	}
	if speed > 604800 {
		speed = 604800
	}
	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()
}

// onTick is the environment callback. Called with mu held.
func (e *Engine) onTick() {
	e.ticks++
	mode := "live"
	switch {
	case e.scenario.Env.Forecast:
		mode = "forecast"
	case e.scenario.Env.IsDemoSimulation():
		mode = "demo"
	}
	e.opts.Metrics.Tick(mode)
}

// Step executes exactly one tick. Useful for deterministic testing; does
// not require Start. A returned error comes from the sink; the tick itself
// has run.
func (e *Engine) Step(ctx context.Context) error {
	e.mu.Lock()
	samples, persist := e.step(ctx)
	status := e.statusLocked()
	e.mu.Unlock()

	var err error
	if persist && e.opts.Sink != nil {
		if serr := e.opts.Sink.StoreSamples(ctx, samples); serr != nil {
			err = fmt.Errorf("storing samples: %w", serr)
		}
	}
	if cb := e.opts.Callback; cb != nil {
		cb.OnStatus(status)
		if len(samples) > 0 {
			cb.OnSamples(samples)
		}
	}
	return err
}

// step runs one tick. Must be called with mu held.
func (e *Engine) step(ctx context.Context) ([]model.Sample, bool) {
	s := e.scenario
	env := s.Env

	if e.code != nil {
		snap := s.snapshot()
		if err := e.code.Run(e.codeEnv); err != nil {
			s.rollback(snap)
			e.codeErr = err
			e.opts.Metrics.UserCodeError()
			e.logger.Warn("user code failed", slog.Int64("now", env.Now), slog.Any("err", err))
		} else {
			e.codeErr = nil
		}
	}

	if s.AutoOptimize && e.opts.Optimizer != nil && e.cooldown <= 0 {
		e.optimize(ctx)
		e.cooldown = OptimizationInterval
	}

	s.Step()

	samples := s.Measure(e.opts.Sensors)
	persist := false
	if env.Forecast {
		e.samples = append(e.samples, samples...)
	}
	if env.IsDemoSimulation() {
		if minute := env.Now / 60; minute != e.lastPersistMinute {
			e.lastPersistMinute = minute
			persist = true
		}
		if hs := s.HeatStorage(); hs != nil {
			e.opts.Metrics.StorageTemperature(hs.Temperature())
		}
	}

	env.Advance()
	e.cooldown -= env.StepSize
	return samples, persist
}

func (e *Engine) optimize(ctx context.Context) {
	cu := e.scenario.CogenerationUnit()
	if cu == nil {
		return
	}
	start := time.Now()
	d, err := e.opts.Optimizer.Optimize(ctx, e.scenario)
	if err != nil {
		e.logger.Warn("auto-optimization failed", slog.Any("err", err))
		return
	}
	d.CUOverwriteWorkload = cu.SetOverwrite(d.CUOverwriteWorkload)
	e.decision = &d
	e.opts.Metrics.Optimization(time.Since(start), d.CUOverwriteWorkload)
	e.logger.Info("optimization round",
		slog.Time("at", e.scenario.Env.Time()),
		slog.Float64("cu_overwrite_workload", d.CUOverwriteWorkload))
}

// Run steps the scenario until duration of simulated time has passed and
// returns the cached samples. It blocks; use Stop or ctx to cancel.
func (e *Engine) Run(ctx context.Context, duration time.Duration) (ForecastResult, error) {
	e.mu.Lock()
	if e.state == StateRunning || e.state == StateForwarding {
		e.mu.Unlock()
		return ForecastResult{}, ErrAlreadyRunning
	}
	e.state = StateForwarding
	e.runStart = e.scenario.Env.Now
	e.runLength = int64(duration / time.Second)
	e.samples = nil
	e.result = nil
	e.stopCh = make(chan struct{})
	stopCh := e.stopCh
	e.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			e.halt()
			return ForecastResult{}, ctx.Err()
		case <-stopCh:
			return ForecastResult{}, ErrStopped
		default:
		}

		e.mu.Lock()
		finished := e.scenario.Env.Now-e.runStart >= e.runLength
		e.mu.Unlock()
		if finished {
			break
		}
		if err := e.Step(ctx); err != nil {
			e.halt()
			return ForecastResult{}, err
		}
	}

	e.mu.Lock()
	result := e.buildResult()
	e.result = &result
	e.samples = nil
	e.state = StateStopped
	status := e.statusLocked()
	e.mu.Unlock()

	if cb := e.opts.Callback; cb != nil {
		cb.OnStatus(status)
	}
	return result, nil
}

// buildResult groups the cached samples by sensor. Must be called with mu
// held.
func (e *Engine) buildResult() ForecastResult {
	env := e.scenario.Env
	res := ForecastResult{
		Start: e.runStart,
		Step:  env.StepSize,
		End:   env.Now,
	}
	index := make(map[int]int, len(e.opts.Sensors))
	for _, sensor := range e.opts.Sensors {
		if _, ok := index[sensor.ID]; ok {
			continue
		}
		index[sensor.ID] = len(res.Sensors)
		res.Sensors = append(res.Sensors, SensorSeries{SensorID: sensor.ID, Data: []Point{}})
	}
	for _, smp := range e.samples {
		i, ok := index[smp.SensorID]
		if !ok {
			continue
		}
		res.Sensors[i].Data = append(res.Sensors[i].Data, Point{
			Timestamp: smp.Timestamp.UnixMilli(),
			Value:     smp.Value,
		})
	}
	return res
}

// Result returns the forecast of the last bounded run, or false while it
// has not finished.
func (e *Engine) Result() (ForecastResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return ForecastResult{}, false
	}
	return *e.result, true
}

const tickInterval = 100 * time.Millisecond

// Start runs the scenario in the background until Stop is called, pacing
// ticks by the configured speed.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateRunning || e.state == StateForwarding {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.state = StateRunning
	e.runLength = 0
	e.runStart = e.scenario.Env.Now
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})
	stopCh, done := e.stopCh, e.done
	e.mu.Unlock()

	e.logger.Info("simulation started", slog.Time("at", e.scenario.Env.Time()))
	go e.loop(ctx, stopCh, done)
	return nil
}

func (e *Engine) loop(ctx context.Context, stopCh, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var budget float64
	for {
		select {
		case <-ctx.Done():
			e.halt()
			return
		case <-stopCh:
			return
		case <-ticker.C:
		}

		e.mu.Lock()
		budget += e.speed * tickInterval.Seconds()
		stepSize := float64(e.scenario.Env.StepSize)
		e.mu.Unlock()

		for budget >= stepSize || e.forwarding() {
			select {
			case <-stopCh:
				return
			default:
			}
			if err := e.Step(ctx); err != nil {
				e.logger.Warn("tick failed", slog.Any("err", err))
			}
			if budget >= stepSize {
				budget -= stepSize
			}
		}
	}
}

// forwarding reports whether a fast-forward is pending and ends it once the
// target time is reached.
func (e *Engine) forwarding() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateForwarding {
		return false
	}
	if e.scenario.Env.Now >= e.forwardTo {
		e.state = StateRunning
		return false
	}
	return true
}

// Forward fast-forwards a running simulation by d of simulated time.
func (e *Engine) Forward(d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning && e.state != StateForwarding {
		return fmt.Errorf("forward: simulation is %s", e.state)
	}
	e.forwardTo = e.scenario.Env.Now + int64(d/time.Second)
	e.state = StateForwarding
	return nil
}

// Stop ends a running simulation and waits for the background loop.
func (e *Engine) Stop() {
	e.halt()

	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
	e.logger.Info("simulation stopped")
}

func (e *Engine) halt() {
	e.mu.Lock()
	if e.state == StateRunning || e.state == StateForwarding {
		close(e.stopCh)
		e.state = StateStopped
	}
	status := e.statusLocked()
	e.mu.Unlock()

	if cb := e.opts.Callback; cb != nil {
		cb.OnStatus(status)
	}
}

// Status returns the current driver state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

// Progress returns elapsed/total of a bounded run in percent.
func (e *Engine) Progress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progressLocked()
}

func (e *Engine) progressLocked() float64 {
	if e.runLength <= 0 {
		return 0
	}
	p := float64(e.scenario.Env.Now-e.runStart) / float64(e.runLength) * 100
	if p > 100 {
		p = 100
	}
	return p
}

func (e *Engine) statusLocked() Status {
	st := Status{
		State:    e.state,
		Time:     e.scenario.Env.Time(),
		Speed:    e.speed,
		Progress: e.progressLocked(),
		Ticks:    e.ticks,
		Decision: e.decision,
		Balance:  e.scenario.TotalBalance(),
	}
	if e.codeErr != nil {
		st.CodeError = e.codeErr.Error()
	}
	return st
}

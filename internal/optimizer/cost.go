package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"ecocontrol/internal/simulator"
)

const (
	// DefaultHorizon is the length of one what-if run.
	DefaultHorizon = time.Hour

	criticalPenalty = 1000.0
	// temperatureBand is the tolerated distance from the target temperature
	// before the small penalties apply.
	temperatureBand = 5.0
	aboveTargetFee  = 15.0
	belowTargetFee  = 5.0
)

var ErrNoCogenerationUnit = errors.New("scenario has no cogeneration unit")

// Optimizer implements simulator.Optimizer by simulating every candidate
// workload on a clone of the scenario.
type Optimizer struct {
	Horizon time.Duration
	Logger  *slog.Logger
}

func New(logger *slog.Logger) *Optimizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimizer{
		Horizon: DefaultHorizon,
		Logger:  logger.With(slog.String("component", "optimizer")),
	}
}

func (o *Optimizer) Optimize(ctx context.Context, s *simulator.Scenario) (simulator.Decision, error) {
	if s.CogenerationUnit() == nil {
		return simulator.Decision{}, ErrNoCogenerationUnit
	}
	if err := ctx.Err(); err != nil {
		return simulator.Decision{}, fmt.Errorf("optimizing: %w", err)
	}

	var evals int
	cost := func(workload float64) float64 {
		if ctx.Err() != nil {
			return math.Inf(1)
		}
		evals++
		return o.Cost(s, workload)
	}
	workload := Minimize(cost, 0, 100)
	if err := ctx.Err(); err != nil {
		return simulator.Decision{}, fmt.Errorf("optimizing: %w", err)
	}

	o.Logger.Debug("workload search finished",
		slog.Time("at", s.Env.Time()),
		slog.Int("evaluations", evals),
		slog.Float64("workload", workload))
	return simulator.Decision{CUOverwriteWorkload: workload}, nil
}

// Cost runs the scenario forward for the horizon on a clone with the given
// workload override and returns the resulting cost in €. s is not
// modified.
func (o *Optimizer) Cost(s *simulator.Scenario, workload float64) float64 {
	c := s.Clone()
	c.CogenerationUnit().SetOverwrite(workload)

	before := readTotals(c)
	for forward := int64(o.Horizon / time.Second); forward > 0; forward -= c.Env.StepSize {
		c.Step()
		c.Env.Advance()
	}
	after := readTotals(c)

	return totalCost(after.sub(before), c.Prices) + penalties(c.HeatStorage())
}

// totals are the accumulators the cost depends on, in kWh.
type totals struct {
	gas       float64
	purchased float64
	fedIn     float64
	consumed  float64
	thermal   float64
	warmwater float64
}

func readTotals(s *simulator.Scenario) totals {
	var t totals
	if cu := s.CogenerationUnit(); cu != nil {
		t.gas += cu.TotalGasConsumption
	}
	if plb := s.PeakLoadBoiler(); plb != nil {
		t.gas += plb.TotalGasConsumption
	}
	if pm := s.PowerMeter(); pm != nil {
		t.purchased = pm.TotalPurchased
		t.fedIn = pm.TotalFedInElectricity
	}
	if ec := s.ElectricalConsumer(); ec != nil {
		t.consumed = ec.TotalConsumption
	}
	if tc := s.ThermalConsumer(); tc != nil {
		t.thermal = tc.TotalConsumed
		t.warmwater = tc.TotalWarmwater
	}
	return t
}

func (t totals) sub(o totals) totals {
	return totals{
		gas:       t.gas - o.gas,
		purchased: t.purchased - o.purchased,
		fedIn:     t.fedIn - o.fedIn,
		consumed:  t.consumed - o.consumed,
		thermal:   t.thermal - o.thermal,
		warmwater: t.warmwater - o.warmwater,
	}
}

// totalCost is gas and purchased electricity minus the feed-in reward and
// the revenues for heat, warm water and self-produced electricity.
func totalCost(t totals, p simulator.Prices) float64 {
	ownConsumption := math.Max(t.consumed-t.purchased, 0)

	costs := t.gas*p.GasCosts + t.purchased*p.ElectricalCosts
	rewards := t.fedIn*p.FeedInReward + ownConsumption*p.ElectricalRevenues
	revenues := t.thermal*p.ThermalRevenues + t.warmwater*p.WarmwaterRevenues
	return costs - rewards - revenues
}

// penalties charge storage temperatures outside the safe and the target
// band.
func penalties(hs *simulator.HeatStorage) float64 {
	if hs == nil {
		return 0
	}
	temp := hs.Temperature()

	p := math.Max(temp-hs.CriticalTemperature, 0) * criticalPenalty
	p += math.Max(hs.MinTemperature-temp, 0) * criticalPenalty
	if temp > hs.TargetTemperature+temperatureBand {
		p += aboveTargetFee
	}
	if temp < hs.TargetTemperature-temperatureBand {
		p += belowTargetFee
	}
	return p
}

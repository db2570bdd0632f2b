package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironment(t *testing.T) {
	env := NewEnvironment(DefaultInitialTime, 60)

	var calls int
	require.NoError(t, env.RegisterStepFunc(func() { calls++ }))
	assert.ErrorIs(t, env.RegisterStepFunc(func() {}), ErrStepFuncRegistered)

	env.Advance()
	env.Advance()
	assert.Equal(t, 2, calls)
	assert.EqualValues(t, 120, env.Elapsed())
	assert.Equal(t, 1, env.DayOfYear())
	assert.Equal(t, 2, env.MinuteOfHour())
	assert.InDelta(t, 1.0/60, env.StepHours(), 1e-12)

	c := env.clone()
	c.Advance()
	assert.Equal(t, 2, calls, "clone must not fire the callback")

	env.ClearStepFunc()
	require.NoError(t, env.RegisterStepFunc(func() {}))
}

func TestIsDemoSimulation(t *testing.T) {
	env := NewEnvironment(0, 0)
	assert.False(t, env.IsDemoSimulation())
	env.DemoMode = true
	assert.True(t, env.IsDemoSimulation())
	env.Forecast = true
	assert.False(t, env.IsDemoSimulation())
}

func TestHeatStorage(t *testing.T) {
	hs := NewHeatStorage(1, NewEnvironment(0, 3600))
	// 2500 l * 0.00116 kWh/(l·K)
	capacity := 2.9

	hs.SetTemperature(50)
	assert.InDelta(t, 50.0, hs.Temperature(), 1e-9)
	assert.InDelta(t, capacity*30, hs.EnergyStored(), 1e-9)
	assert.InDelta(t, capacity*20, hs.RequiredEnergy(), 1e-9)
	assert.InDelta(t, capacity*70, hs.EnergyCapacity(), 1e-9)
	assert.True(t, hs.Undersupplied())

	hs.AddEnergy(capacity * 10)
	assert.InDelta(t, 60.0, hs.Temperature(), 1e-9)
	assert.False(t, hs.Undersupplied())

	hs.Step()
	assert.InDelta(t, 60.0-3.0/24, hs.Temperature(), 1e-9)

	hs.ConsumeEnergy(1000)
	assert.Equal(t, 1, hs.EmptyCount)
	assert.InDelta(t, 0.0, hs.EnergyStored(), 1e-9)
	assert.InDelta(t, hs.BaseTemperature, hs.Temperature(), 1e-9)

	// an empty tank is not drained below zero
	hs.ConsumeEnergy(1)
	assert.Equal(t, 2, hs.EmptyCount)
	assert.InDelta(t, 0.0, hs.EnergyStored(), 1e-9)
}

func TestPowerMeterStep(t *testing.T) {
	pm := NewPowerMeter(2, NewEnvironment(0, 0))

	pm.AddEnergy(2)
	pm.ConsumeEnergy(3)
	pm.Step()
	assert.Equal(t, 1.0, pm.Purchased)
	assert.Equal(t, 0.0, pm.FedInElectricity)
	assert.Equal(t, 1.0, pm.TotalPurchased)

	pm.AddEnergy(5)
	pm.ConsumeEnergy(1)
	pm.Step()
	assert.Equal(t, 0.0, pm.Purchased)
	assert.Equal(t, 4.0, pm.FedInElectricity)
	assert.Equal(t, 4.0, pm.TotalFedInElectricity)
	assert.Equal(t, 1.0, pm.TotalPurchased)

	assert.InDelta(t, 0.283, pm.Costs(), 1e-12)
	assert.InDelta(t, 4*0.0917, pm.Reward(), 1e-12)
}

func TestSetOverwriteClamps(t *testing.T) {
	cu := NewCogenerationUnit(3, NewEnvironment(0, 0))

	tests := []struct {
		in, want float64
	}{
		{150, 99},
		{-5, 0},
		{42, 42},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cu.SetOverwrite(tt.in))
		w, ok := cu.Overwrite()
		assert.True(t, ok)
		assert.Equal(t, tt.want, w)
	}

	assert.True(t, cu.SetValue("overwrite_workload", -1))
	v, _ := cu.Value("overwrite_workload")
	assert.Equal(t, -1.0, v)
}

func TestCogenerationUnitThermalDriven(t *testing.T) {
	s := newScenario(t, 120)
	cu := s.CogenerationUnit()

	s.HeatStorage().SetTemperature(50)
	cu.Step()
	assert.Equal(t, 99.0, cu.Workload)
	assert.Equal(t, 1, cu.PowerOnCount)
	assert.InDelta(t, 19.0, cu.CurrentGasConsumption, 1e-9)
	assert.InDelta(t, 19*0.247, cu.CurrentElectricalProduction, 1e-9)
	assert.InDelta(t, 19*0.65, cu.CurrentThermalProduction, 1e-9)

	// storage at target switches the unit off and starts the cooldown
	s.HeatStorage().SetTemperature(70)
	cu.Step()
	assert.Equal(t, 0.0, cu.Workload)
	assert.EqualValues(t, s.Env.Now+cu.MinimalOffTime, cu.OffTime)

	s.HeatStorage().SetTemperature(40)
	cu.Step()
	assert.Equal(t, 0.0, cu.Workload, "cooldown keeps the unit off")

	s.Env.Now += cu.MinimalOffTime
	cu.Step()
	assert.Equal(t, 99.0, cu.Workload)
	assert.Equal(t, 2, cu.PowerOnCount)
}

func TestCogenerationUnitBelowMinimalWorkload(t *testing.T) {
	s := newScenario(t, 120)
	cu := s.CogenerationUnit()

	// 3 kWh missing is about 24% of the maximal thermal power
	hs := s.HeatStorage()
	hs.SetTemperature(hs.TargetTemperature)
	hs.OutputEnergy += 3
	cu.Step()
	assert.Equal(t, 0.0, cu.Workload)
	assert.Equal(t, 0, cu.PowerOnCount)
}

func TestCogenerationUnitEfficiencyLoss(t *testing.T) {
	s := newScenario(t, 120)
	cu := s.CogenerationUnit()

	cu.SetOverwrite(cu.MinimalWorkload)
	cu.Step()
	gas := cu.MinimalWorkload / 99 * cu.MaxGasInput
	loss := 1 - cu.MaxEfficiencyLoss/100
	assert.InDelta(t, gas, cu.CurrentGasConsumption, 1e-9)
	assert.InDelta(t, gas*0.247*loss, cu.CurrentElectricalProduction, 1e-9)
}

func TestCogenerationUnitElectricalDriven(t *testing.T) {
	s := newScenario(t, 120)
	cu := s.CogenerationUnit()
	cu.ThermalDriven = false

	s.HeatStorage().SetTemperature(60)
	s.PowerMeter().CurrentPowerConsumption = 4.693 / 2
	cu.Step()
	assert.InDelta(t, 49.5, cu.Workload, 1e-6)

	s.HeatStorage().SetTemperature(75)
	s.Env.Now += cu.MinimalOffTime
	cu.Step()
	assert.Equal(t, 0.0, cu.Workload)
}

func TestPeakLoadBoiler(t *testing.T) {
	s := newScenario(t, 120)
	plb := s.PeakLoadBoiler()

	s.HeatStorage().SetTemperature(60)
	plb.Step()
	assert.Equal(t, 0.0, plb.Workload)

	s.HeatStorage().SetTemperature(50)
	plb.Step()
	assert.Equal(t, 99.0, plb.Workload)
	assert.Equal(t, 1, plb.PowerOnCount)
	assert.InDelta(t, 40.0, plb.CurrentThermalProduction, 1e-9)

	// production above the missing energy switches it off
	s.HeatStorage().SetTemperature(69)
	plb.Step()
	assert.Equal(t, 0.0, plb.Workload)
	assert.EqualValues(t, s.Env.Now+boilerOffTime, plb.OffTime)
}

func TestThermalConsumerCalculate(t *testing.T) {
	tc := NewThermalConsumer(5, NewEnvironment(DefaultInitialTime, 0))

	assert.Equal(t, 650.0*100, tc.MaxPower)
	assert.Equal(t, 4.0*4*12, tc.WindowSurface)
	assert.InDelta(t, 1290*650+1360e2*12.0, tc.HeatCapacity, 1e-6)
}

func TestThermalConsumerStepDrawsHeat(t *testing.T) {
	s := newScenario(t, 120)
	hs := s.HeatStorage()
	hs.SetTemperature(60)
	before := hs.EnergyStored()

	tc := s.ThermalConsumer()
	tc.CurrentPower = 10000
	tc.Step()

	assert.Greater(t, tc.TotalConsumed, 0.0)
	assert.Greater(t, tc.TotalWarmwater, 0.0)
	assert.InDelta(t, before-tc.TotalConsumed-tc.TotalWarmwater, hs.EnergyStored(), 1e-9)
	assert.Equal(t, roomTargetTemperatures[0], tc.TargetTemperature)
}

func TestElectricalConsumer(t *testing.T) {
	s := newScenario(t, 900)
	ec := s.ElectricalConsumer()

	ec.Step()
	assert.Equal(t, electricalDemand[0], ec.CurrentConsumption)
	assert.Equal(t, electricalDemand[0], s.PowerMeter().CurrentPowerConsumption)

	s.SetDemandSource(constantDemand(2))
	ec.Step()
	assert.Equal(t, 2.0, ec.CurrentConsumption)
	assert.InDelta(t, electricalDemand[0]*0.25+0.5, ec.TotalConsumption, 1e-9)
}

type constantDemand float64

func (c constantDemand) ForecastAt(time.Time) float64 { return float64(c) }

func TestPercent(t *testing.T) {
	assert.Equal(t, 65.0, percent(0.65))
	assert.Equal(t, 100.0, percent(1))
	assert.Equal(t, 65.0, percent(65))
	assert.Equal(t, 0.0, percent(0))
}

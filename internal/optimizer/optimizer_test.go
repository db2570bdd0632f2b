package optimizer

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecocontrol/internal/model"
	"ecocontrol/internal/simulator"
)

func TestMinimize(t *testing.T) {
	tests := []struct {
		name  string
		f     func(float64) float64
		want  float64
		delta float64
	}{
		{
			name:  "quadratic",
			f:     func(x float64) float64 { return (x - 37) * (x - 37) },
			want:  37,
			delta: 5,
		},
		{
			name:  "minimum at the lower bound",
			f:     func(x float64) float64 { return x + 10 },
			want:  0,
			delta: 0,
		},
		{
			name:  "minimum beyond the upper bound",
			f:     func(x float64) float64 { return (x - 150) * (x - 150) },
			want:  95,
			delta: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Minimize(tt.f, 0, 100)
			assert.InDelta(t, tt.want, got, tt.delta)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 100.0)
		})
	}
}

func TestMinimizeNeverWorseThanGrid(t *testing.T) {
	// flat almost everywhere, so the gradient gives no direction
	f := func(x float64) float64 {
		if x >= 20 && x < 30 {
			return 0
		}
		return 1
	}
	got := Minimize(f, 0, 100)
	assert.Equal(t, 0.0, f(got))
}

func TestMinimizeNaN(t *testing.T) {
	f := func(x float64) float64 {
		if x < 50 {
			return math.NaN()
		}
		return x
	}
	got := Minimize(f, 0, 100)
	assert.GreaterOrEqual(t, got, 50.0)
	assert.False(t, math.IsNaN(got))
}

func newScenario(t *testing.T) *simulator.Scenario {
	t.Helper()
	s, err := simulator.Build(simulator.NewEnvironment(simulator.DefaultInitialTime, 120), []model.Device{
		{ID: 1, Type: model.DeviceHeatStorage},
		{ID: 2, Type: model.DevicePowerMeter},
		{ID: 3, Type: model.DeviceCogenerationUnit},
		{ID: 4, Type: model.DevicePeakLoadBoiler},
		{ID: 5, Type: model.DeviceThermalConsumer},
		{ID: 6, Type: model.DeviceElectricalConsumer},
	})
	require.NoError(t, err)
	return s
}

func TestCostPenalizesOverheating(t *testing.T) {
	s := newScenario(t)
	s.HeatStorage().SetTemperature(88)
	o := New(nil)

	assert.Greater(t, o.Cost(s, 99), o.Cost(s, 0)+criticalPenalty)
}

func TestOptimizeLeavesScenarioUntouched(t *testing.T) {
	s := newScenario(t)
	s.HeatStorage().SetTemperature(60)

	d, err := New(nil).Optimize(context.Background(), s)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, d.CUOverwriteWorkload, 0.0)
	assert.LessOrEqual(t, d.CUOverwriteWorkload, 100.0)
	assert.EqualValues(t, simulator.DefaultInitialTime, s.Env.Now)
	assert.InDelta(t, 60.0, s.HeatStorage().Temperature(), 1e-9)
	_, forced := s.CogenerationUnit().Overwrite()
	assert.False(t, forced)
	assert.Equal(t, 0.0, s.CogenerationUnit().TotalGasConsumption)
}

func TestOptimizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(nil).Optimize(ctx, newScenario(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptimizeWithoutCogenerationUnit(t *testing.T) {
	s, err := simulator.Build(simulator.NewEnvironment(0, 0), []model.Device{
		{ID: 1, Type: model.DeviceHeatStorage},
	})
	require.NoError(t, err)

	_, err = New(nil).Optimize(context.Background(), s)
	assert.ErrorIs(t, err, ErrNoCogenerationUnit)
}

func TestPenalties(t *testing.T) {
	hs := simulator.NewHeatStorage(1, simulator.NewEnvironment(0, 0))

	tests := []struct {
		temp float64
		want float64
	}{
		{70, 0},
		{76, aboveTargetFee},
		{92, 2*criticalPenalty + aboveTargetFee},
		{60, belowTargetFee},
		{54, criticalPenalty + belowTargetFee},
	}
	for _, tt := range tests {
		hs.SetTemperature(tt.temp)
		assert.InDelta(t, tt.want, penalties(hs), 1e-6, "temperature %v", tt.temp)
	}
}

func TestTotalCost(t *testing.T) {
	p := simulator.DefaultPrices()
	got := totalCost(totals{gas: 10, purchased: 1, fedIn: 2, consumed: 3, thermal: 4, warmwater: 1}, p)

	want := 10*p.GasCosts + 1*p.ElectricalCosts -
		2*p.FeedInReward - 2*p.ElectricalRevenues -
		4*p.ThermalRevenues - 1*p.WarmwaterRevenues
	assert.InDelta(t, want, got, 1e-12)
}

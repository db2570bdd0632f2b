package simulator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecocontrol/internal/model"
)

var fullSystem = []model.Device{
	{ID: 1, Name: "Tank", Type: model.DeviceHeatStorage},
	{ID: 2, Name: "Meter", Type: model.DevicePowerMeter},
	{ID: 3, Name: "CHP", Type: model.DeviceCogenerationUnit},
	{ID: 4, Name: "Boiler", Type: model.DevicePeakLoadBoiler},
	{ID: 5, Name: "Building", Type: model.DeviceThermalConsumer},
	{ID: 6, Name: "Households", Type: model.DeviceElectricalConsumer},
}

func newScenario(t *testing.T, stepSize int64) *Scenario {
	t.Helper()
	s, err := Build(NewEnvironment(DefaultInitialTime, stepSize), fullSystem)
	require.NoError(t, err)
	return s
}

func TestBuildStepOrder(t *testing.T) {
	records := []model.Device{
		fullSystem[5], fullSystem[4], fullSystem[1], fullSystem[0], fullSystem[3], fullSystem[2],
	}
	s, err := Build(NewEnvironment(DefaultInitialTime, 0), records)
	require.NoError(t, err)

	var types []model.DeviceType
	for _, d := range s.Devices {
		types = append(types, d.Type())
	}
	assert.Equal(t, []model.DeviceType{
		model.DeviceCogenerationUnit,
		model.DevicePeakLoadBoiler,
		model.DeviceHeatStorage,
		model.DevicePowerMeter,
		model.DeviceThermalConsumer,
		model.DeviceElectricalConsumer,
	}, types)
	assert.EqualValues(t, DefaultStepSize, s.Env.StepSize)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		records []model.Device
		want    error
	}{
		{
			name:    "unknown type",
			records: []model.Device{{ID: 1, Type: "wind"}},
			want:    ErrUnknownDevice,
		},
		{
			name: "cogeneration unit without heat storage",
			records: []model.Device{
				{ID: 1, Type: model.DevicePowerMeter},
				{ID: 2, Type: model.DeviceCogenerationUnit},
			},
			want: ErrNotConnected,
		},
		{
			name:    "electrical consumer without meter",
			records: []model.Device{{ID: 1, Type: model.DeviceElectricalConsumer}},
			want:    ErrNotConnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(NewEnvironment(DefaultInitialTime, 0), tt.records)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var cfgErr *ConfigError
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestConfigure(t *testing.T) {
	s := newScenario(t, 0)

	system := []model.ConfigEntry{
		{Key: "gas_costs", Value: "0.07", ValueType: model.ValueFloat},
		{Key: "auto_optimization", Value: "true", ValueType: model.ValueBool},
		{Key: "apartments", Value: "10", ValueType: model.ValueInt},
		{Key: "location", Value: "Berlin", ValueType: model.ValueString},
	}
	device := []model.ConfigEntry{
		{DeviceID: 3, Key: "max_gas_input", Value: "20", ValueType: model.ValueFloat},
		{DeviceID: 3, Key: "electrical_efficiency", Value: "0.25", ValueType: model.ValueFloat},
		{DeviceID: 1, Key: "capacity", Value: "3000", ValueType: model.ValueFloat},
		{DeviceID: 1, Key: "not_a_key", Value: "1", ValueType: model.ValueFloat},
	}
	require.NoError(t, s.Configure(system, device))

	assert.Equal(t, 0.07, s.Prices.GasCosts)
	assert.True(t, s.AutoOptimize)
	assert.Equal(t, 0.07, s.CogenerationUnit().GasCosts)
	assert.Equal(t, 0.07, s.PeakLoadBoiler().GasCosts)
	assert.Equal(t, 20.0, s.CogenerationUnit().MaxGasInput)
	assert.InDelta(t, 25.0, s.CogenerationUnit().ElectricalEfficiency, 1e-9)
	assert.Equal(t, 3000.0, s.HeatStorage().Capacity)

	tc := s.ThermalConsumer()
	assert.Equal(t, 10, tc.Apartments)
	assert.Equal(t, 4.0*4*10, tc.WindowSurface)
}

func TestConfigureErrors(t *testing.T) {
	tests := []struct {
		name   string
		device []model.ConfigEntry
	}{
		{"unknown device", []model.ConfigEntry{{DeviceID: 99, Key: "capacity", Value: "1", ValueType: model.ValueFloat}}},
		{"bad value", []model.ConfigEntry{{DeviceID: 1, Key: "capacity", Value: "lots", ValueType: model.ValueFloat}}},
		{"invalid value", []model.ConfigEntry{{DeviceID: 1, Key: "capacity", Value: "-1", ValueType: model.ValueFloat}}},
		{"minimal workload too high", []model.ConfigEntry{{DeviceID: 3, Key: "minimal_workload", Value: "99", ValueType: model.ValueFloat}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newScenario(t, 0)
			err := s.Configure(nil, tt.device)
			var cfgErr *ConfigError
			assert.True(t, errors.As(err, &cfgErr), "got %v", err)
		})
	}
}

type stateSource map[int]float64

func (m stateSource) LatestValue(_ context.Context, sensorID int) (model.Sample, bool, error) {
	v, ok := m[sensorID]
	return model.Sample{SensorID: sensorID, Value: v}, ok, nil
}

func TestRestore(t *testing.T) {
	s := newScenario(t, 0)
	sensors := []model.Sensor{
		{ID: 10, DeviceID: 1, Key: "temperature", Setter: "temperature"},
		{ID: 11, DeviceID: 5, Key: "temperature_room", Setter: "temperature_room"},
		{ID: 12, DeviceID: 3, Key: "workload"},
		{ID: 13, DeviceID: 2, Key: "purchased", Setter: "total_purchased"},
	}
	src := stateSource{10: 63, 11: 21.5, 12: 80}

	require.NoError(t, s.Restore(context.Background(), src, sensors))

	assert.InDelta(t, 63.0, s.HeatStorage().Temperature(), 1e-9)
	assert.Equal(t, 21.5, s.ThermalConsumer().TemperatureRoom)
	// no setter, not restored
	assert.Equal(t, 0.0, s.CogenerationUnit().Workload)
	// missing value keeps the default
	assert.Equal(t, 0.0, s.PowerMeter().TotalPurchased)
}

func TestMeasure(t *testing.T) {
	s := newScenario(t, 0)
	s.HeatStorage().SetTemperature(65)

	samples := s.Measure([]model.Sensor{
		{ID: 1, DeviceID: 1, Key: "temperature"},
		{ID: 2, DeviceID: 1, Key: "unknown"},
		{ID: 3, DeviceID: 42, Key: "temperature"},
	})
	require.Len(t, samples, 1)
	assert.Equal(t, 1, samples[0].SensorID)
	assert.InDelta(t, 65.0, samples[0].Value, 1e-9)
	assert.Equal(t, s.Env.Time(), samples[0].Timestamp)
}

func TestHourFromUndersuppliedStorage(t *testing.T) {
	s := newScenario(t, 900)
	s.HeatStorage().SetTemperature(50)

	for i := 0; i < 4; i++ {
		s.Step()
		s.Env.Advance()
	}

	cu := s.CogenerationUnit()
	assert.Greater(t, cu.TotalHoursOfOperation, 0.0)
	assert.GreaterOrEqual(t, cu.Workload, cu.MinimalWorkload)
	assert.Greater(t, cu.TotalGasConsumption, 0.0)
	assert.Equal(t, 1, cu.PowerOnCount)
	assert.Greater(t, s.PeakLoadBoiler().TotalHoursOfOperation, 0.0)
	assert.EqualValues(t, DefaultInitialTime+3600, s.Env.Now)
}

func TestCloneIsolation(t *testing.T) {
	s := newScenario(t, 0)
	s.HeatStorage().SetTemperature(60)

	c := s.Clone()
	c.CogenerationUnit().SetOverwrite(80)
	for i := 0; i < 30; i++ {
		c.Step()
		c.Env.Advance()
	}

	assert.EqualValues(t, DefaultInitialTime, s.Env.Now)
	assert.InDelta(t, 60.0, s.HeatStorage().Temperature(), 1e-9)
	assert.Equal(t, 0.0, s.CogenerationUnit().TotalGasConsumption)
	_, forced := s.CogenerationUnit().Overwrite()
	assert.False(t, forced)

	assert.Greater(t, c.CogenerationUnit().TotalGasConsumption, 0.0)
	// the copy is wired to its own storage
	assert.Same(t, c.HeatStorage(), c.CogenerationUnit().heatStorage)
	assert.NotSame(t, s.HeatStorage(), c.HeatStorage())
}

func TestSnapshotRollback(t *testing.T) {
	s := newScenario(t, 0)
	s.HeatStorage().SetTemperature(60)
	hs := s.HeatStorage()

	snap := s.snapshot()
	hs.SetTemperature(85)
	s.CogenerationUnit().SetOverwrite(70)
	s.rollback(snap)

	assert.Same(t, hs, s.HeatStorage())
	assert.InDelta(t, 60.0, hs.Temperature(), 1e-9)
	_, forced := s.CogenerationUnit().Overwrite()
	assert.False(t, forced)
	assert.Same(t, hs, s.CogenerationUnit().heatStorage)
}

func TestTotalBalance(t *testing.T) {
	s := newScenario(t, 0)
	cu := s.CogenerationUnit()
	cu.TotalGasConsumption = 100
	cu.TotalElectricalProduction = 20
	s.PeakLoadBoiler().TotalGasConsumption = 10
	pm := s.PowerMeter()
	pm.TotalPurchased = 5
	pm.TotalFedInElectricity = 10

	want := 100*0.0655 + 20*maintenanceCosts + 10*0.0655 + 5*0.283 - 10*0.0917
	assert.InDelta(t, want, s.TotalBalance(), 1e-9)
}

package simulator

import (
	"context"
	"fmt"
	"log/slog"

	"ecocontrol/internal/model"
	"ecocontrol/internal/weather"
)

// Definition is the persisted part of a scenario: devices, configuration,
// sensors and their last values.
type Definition interface {
	StateSource
	Devices(ctx context.Context) ([]model.Device, error)
	DeviceConfig(ctx context.Context) ([]model.ConfigEntry, error)
	SystemConfig(ctx context.Context) ([]model.ConfigEntry, error)
	Sensors(ctx context.Context) ([]model.Sensor, error)
}

type LoadOptions struct {
	InitialTime int64
	StepSize    int64
	// Demo runs start from configured defaults instead of stored values.
	Demo     bool
	Forecast bool
	Weather  weather.Provider
	Demand   DemandSource
	Logger   *slog.Logger
}

// Load builds, configures and restores a scenario from def. The initial
// time is rounded down to a full hour.
func Load(ctx context.Context, def Definition, opts LoadOptions) (*Scenario, []model.Sensor, error) {
	devices, err := def.Devices(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading devices: %w", err)
	}
	sensors, err := def.Sensors(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading sensors: %w", err)
	}
	system, err := def.SystemConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading system configuration: %w", err)
	}
	device, err := def.DeviceConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading device configuration: %w", err)
	}

	initial := opts.InitialTime
	if initial == 0 {
		initial = DefaultInitialTime
	}
	initial -= initial % 3600
	env := NewEnvironment(initial, opts.StepSize)
	env.DemoMode = opts.Demo
	env.Forecast = opts.Forecast

	s, err := Build(env, devices)
	if err != nil {
		return nil, nil, err
	}
	if opts.Logger != nil {
		s.Logger = opts.Logger
	}
	if err := s.Configure(system, device); err != nil {
		return nil, nil, err
	}
	if opts.Weather != nil {
		s.SetWeather(opts.Weather)
	}
	if opts.Demand != nil {
		s.SetDemandSource(opts.Demand)
	}
	if !opts.Demo {
		if err := s.Restore(ctx, def, sensors); err != nil {
			return nil, nil, err
		}
	}
	return s, sensors, nil
}

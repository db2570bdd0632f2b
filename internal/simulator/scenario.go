package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"ecocontrol/internal/model"
	"ecocontrol/internal/weather"
)

// Factory creates a device of one type.
type Factory func(id int, env *Environment) Device

var factories = map[model.DeviceType]Factory{
	model.DeviceHeatStorage:        func(id int, env *Environment) Device { return NewHeatStorage(id, env) },
	model.DevicePowerMeter:         func(id int, env *Environment) Device { return NewPowerMeter(id, env) },
	model.DeviceCogenerationUnit:   func(id int, env *Environment) Device { return NewCogenerationUnit(id, env) },
	model.DevicePeakLoadBoiler:     func(id int, env *Environment) Device { return NewPeakLoadBoiler(id, env) },
	model.DeviceThermalConsumer:    func(id int, env *Environment) Device { return NewThermalConsumer(id, env) },
	model.DeviceElectricalConsumer: func(id int, env *Environment) Device { return NewElectricalConsumer(id, env) },
}

// stepOrder runs producers before storage, storage before the meter and the
// meter before consumers.
var stepOrder = map[model.DeviceType]int{
	model.DeviceCogenerationUnit:   0,
	model.DevicePeakLoadBoiler:     1,
	model.DeviceHeatStorage:        2,
	model.DevicePowerMeter:         3,
	model.DeviceThermalConsumer:    4,
	model.DeviceElectricalConsumer: 5,
}

// Prices are the system-wide tariffs in €/kWh.
type Prices struct {
	GasCosts           float64 `json:"gas_costs"`
	FeedInReward       float64 `json:"feed_in_reward"`
	ElectricalCosts    float64 `json:"electrical_costs"`
	ThermalRevenues    float64 `json:"thermal_revenues"`
	WarmwaterRevenues  float64 `json:"warmwater_revenues"`
	ElectricalRevenues float64 `json:"electrical_revenues"`
}

func DefaultPrices() Prices {
	return Prices{
		GasCosts:           0.0655,
		FeedInReward:       0.0917,
		ElectricalCosts:    0.283,
		ThermalRevenues:    0.075,
		WarmwaterRevenues:  0.065,
		ElectricalRevenues: 0.268,
	}
}

// StateSource provides the last persisted value of a sensor.
type StateSource interface {
	LatestValue(ctx context.Context, sensorID int) (model.Sample, bool, error)
}

// Scenario is a wired device graph with its clock.
type Scenario struct {
	Env          *Environment
	Devices      []Device
	Prices       Prices
	AutoOptimize bool
	Logger       *slog.Logger

	byID map[int]Device
}

// Build instantiates one device per record, wires them by type and checks
// that every device is connected.
func Build(env *Environment, records []model.Device) (*Scenario, error) {
	devices := make([]Device, 0, len(records))
	for _, r := range records {
		factory, ok := factories[r.Type]
		if !ok {
			return nil, &ConfigError{DeviceID: r.ID, Type: r.Type, Err: ErrUnknownDevice}
		}
		devices = append(devices, factory(r.ID, env))
	}
	sort.SliceStable(devices, func(i, j int) bool {
		return stepOrder[devices[i].Type()] < stepOrder[devices[j].Type()]
	})

	s := &Scenario{
		Env:     env,
		Devices: devices,
		Prices:  DefaultPrices(),
		Logger:  slog.Default(),
	}
	if err := s.wire(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scenario) wire() error {
	s.byID = make(map[int]Device, len(s.Devices))
	for _, d := range s.Devices {
		s.byID[d.ID()] = d
	}
	for _, d := range s.Devices {
		d.Attach(s.Devices)
	}
	for _, d := range s.Devices {
		if !d.Connected() {
			return &ConfigError{DeviceID: d.ID(), Type: d.Type(), Err: ErrNotConnected}
		}
	}
	return nil
}

// Device returns the device with the given id.
func (s *Scenario) Device(id int) (Device, bool) {
	d, ok := s.byID[id]
	return d, ok
}

func (s *Scenario) HeatStorage() *HeatStorage           { return find[*HeatStorage](s.Devices) }
func (s *Scenario) PowerMeter() *PowerMeter             { return find[*PowerMeter](s.Devices) }
func (s *Scenario) CogenerationUnit() *CogenerationUnit { return find[*CogenerationUnit](s.Devices) }
func (s *Scenario) PeakLoadBoiler() *PeakLoadBoiler     { return find[*PeakLoadBoiler](s.Devices) }
func (s *Scenario) ThermalConsumer() *ThermalConsumer   { return find[*ThermalConsumer](s.Devices) }
func (s *Scenario) ElectricalConsumer() *ElectricalConsumer {
	return find[*ElectricalConsumer](s.Devices)
}

// Configure applies system-wide entries to the prices and every device
// accepting them, then device entries to their device.
func (s *Scenario) Configure(system, device []model.ConfigEntry) error {
	for _, e := range system {
		if e.ValueType == model.ValueString {
			continue
		}
		v, err := e.Float()
		if err != nil {
			return &ConfigError{Key: e.Key, Err: err}
		}
		s.applySystem(e.Key, v)
		for _, d := range s.Devices {
			if err := d.Configure(e.Key, v); err != nil && !errors.Is(err, ErrUnknownKey) {
				return &ConfigError{DeviceID: d.ID(), Type: d.Type(), Key: e.Key, Err: err}
			}
		}
	}

	for _, e := range device {
		d, ok := s.byID[e.DeviceID]
		if !ok {
			return &ConfigError{DeviceID: e.DeviceID, Key: e.Key, Err: fmt.Errorf("no such device")}
		}
		if e.ValueType == model.ValueString {
			continue
		}
		v, err := e.Float()
		if err != nil {
			return &ConfigError{DeviceID: d.ID(), Type: d.Type(), Key: e.Key, Err: err}
		}
		err = d.Configure(e.Key, v)
		if errors.Is(err, ErrUnknownKey) {
			s.Logger.Debug("ignoring device configuration", slog.Int("device", d.ID()), slog.String("key", e.Key))
			continue
		}
		if err != nil {
			return &ConfigError{DeviceID: d.ID(), Type: d.Type(), Key: e.Key, Err: err}
		}
	}

	s.recalculate()
	return nil
}

func (s *Scenario) applySystem(key string, v float64) {
	switch key {
	case "gas_costs":
		s.Prices.GasCosts = v
	case "feed_in_reward":
		s.Prices.FeedInReward = v
	case "electrical_costs":
		s.Prices.ElectricalCosts = v
	case "thermal_revenues":
		s.Prices.ThermalRevenues = v
	case "warmwater_revenues":
		s.Prices.WarmwaterRevenues = v
	case "electrical_revenues":
		s.Prices.ElectricalRevenues = v
	case "auto_optimization":
		s.AutoOptimize = v != 0
	}
}

func (s *Scenario) recalculate() {
	for _, d := range s.Devices {
		if r, ok := d.(recalculator); ok {
			r.Calculate()
		}
	}
}

// Restore sets every sensor with a setter to its last persisted value, so a
// run continues from the latest known state. Missing values keep the
// device defaults.
func (s *Scenario) Restore(ctx context.Context, src StateSource, sensors []model.Sensor) error {
	for _, sensor := range sensors {
		if sensor.Setter == "" {
			continue
		}
		d, ok := s.byID[sensor.DeviceID]
		if !ok {
			continue
		}
		sample, found, err := src.LatestValue(ctx, sensor.ID)
		if err != nil {
			return fmt.Errorf("loading latest value of sensor %d: %w", sensor.ID, err)
		}
		if !found {
			s.Logger.Warn("no stored value, keeping default",
				slog.Int("device", d.ID()), slog.String("key", sensor.Key))
			continue
		}
		if !d.SetValue(sensor.Setter, sample.Value) {
			s.Logger.Warn("sensor setter not supported",
				slog.Int("device", d.ID()), slog.String("setter", sensor.Setter))
		}
	}
	s.recalculate()
	return nil
}

// Step advances every device once, in step order.
func (s *Scenario) Step() {
	for _, d := range s.Devices {
		d.Step()
	}
}

// Measure samples every sensor belonging to this scenario.
func (s *Scenario) Measure(sensors []model.Sensor) []model.Sample {
	ts := s.Env.Time()
	samples := make([]model.Sample, 0, len(sensors))
	for _, sensor := range sensors {
		d, ok := s.byID[sensor.DeviceID]
		if !ok {
			continue
		}
		v, ok := d.Value(sensor.Key)
		if !ok {
			continue
		}
		samples = append(samples, model.Sample{SensorID: sensor.ID, Value: v, Timestamp: ts})
	}
	return samples
}

// SetWeather sets the outside temperature source of the thermal consumers.
func (s *Scenario) SetWeather(p weather.Provider) {
	for _, d := range s.Devices {
		if tc, ok := d.(*ThermalConsumer); ok {
			tc.SetWeather(p)
		}
	}
}

// SetDemandSource makes the electrical consumers follow a forecast.
func (s *Scenario) SetDemandSource(src DemandSource) {
	for _, d := range s.Devices {
		if ec, ok := d.(*ElectricalConsumer); ok {
			ec.SetDemandSource(src)
		}
	}
}

// Clone returns a value-isolated copy of the clock and the device graph.
// Weather and demand sources are shared and must be safe for concurrent use.
func (s *Scenario) Clone() *Scenario {
	env := s.Env.clone()
	devices := make([]Device, len(s.Devices))
	for i, d := range s.Devices {
		devices[i] = d.clone(env)
	}
	c := &Scenario{
		Env:          env,
		Devices:      devices,
		Prices:       s.Prices,
		AutoOptimize: s.AutoOptimize,
		Logger:       s.Logger,
	}
	// s is connected, so wiring the copy cannot fail
	_ = c.wire()
	return c
}

// TotalBalance is the operating result so far: generator costs and
// purchased electricity minus feed-in rewards.
func (s *Scenario) TotalBalance() float64 {
	var balance float64
	for _, d := range s.Devices {
		switch dev := d.(type) {
		case *CogenerationUnit:
			balance += dev.OperatingCosts()
		case *PeakLoadBoiler:
			balance += dev.OperatingCosts()
		case *PowerMeter:
			balance += dev.Costs() - dev.Reward()
		}
	}
	return balance
}

// snapshot copies the device state for a later rollback.
func (s *Scenario) snapshot() []Device {
	snap := make([]Device, len(s.Devices))
	for i, d := range s.Devices {
		snap[i] = d.clone(s.Env)
	}
	return snap
}

// rollback restores the state taken by snapshot in place, so references to
// the devices stay valid.
func (s *Scenario) rollback(snap []Device) {
	for i, d := range s.Devices {
		switch dst := d.(type) {
		case *HeatStorage:
			*dst = *snap[i].(*HeatStorage)
		case *PowerMeter:
			*dst = *snap[i].(*PowerMeter)
		case *CogenerationUnit:
			*dst = *snap[i].(*CogenerationUnit)
		case *PeakLoadBoiler:
			*dst = *snap[i].(*PeakLoadBoiler)
		case *ThermalConsumer:
			*dst = *snap[i].(*ThermalConsumer)
		case *ElectricalConsumer:
			*dst = *snap[i].(*ElectricalConsumer)
		}
	}
	for _, d := range s.Devices {
		d.Attach(s.Devices)
	}
}

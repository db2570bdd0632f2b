package simulator

import (
	"fmt"
	"math"
	"time"

	"ecocontrol/internal/model"
	"ecocontrol/internal/weather"
)

const (
	// windowHeatTransfer is the U-value of a normal glass window, W/(m²·K).
	windowHeatTransfer = 5.9
	heatingEfficiency  = 0.8
	// powerSlope is the rate at which heating power follows demand, W/s.
	powerSlope = 1.0

	airHeatCapacity   = 1290       // J/(m³·K)
	brickHeatCapacity = 1360 * 1e2 // J/(m³·K)
	brickVolume       = 4 * 3 * 5 * 0.2
	windowArea        = 4.0 // m² per room
)

// ThermalConsumer models the heated building. Room temperature follows an
// hourly schedule; heating power ramps towards it and is drawn from the
// heat storage.
type ThermalConsumer struct {
	base

	heatStorage *HeatStorage
	weather     weather.Provider

	RoomVolume        float64 // m³
	Apartments        int
	RoomsPerApartment int
	Residents         int

	MaxPower           float64 // W
	WindowSurface      float64 // m²
	HeatCapacity       float64 // J/K
	TemperatureRoom    float64 // °C
	TargetTemperature  float64 // °C
	CurrentOutsideTemp float64 // °C
	CurrentPower       float64 // W
	WarmwaterPower     float64 // kW
	TotalConsumed      float64 // kWh
	TotalWarmwater     float64 // kWh
}

func NewThermalConsumer(id int, env *Environment) *ThermalConsumer {
	tc := &ThermalConsumer{
		base:              base{id: id, env: env},
		weather:           weather.DefaultHistory(),
		RoomVolume:        650,
		Apartments:        12,
		RoomsPerApartment: 4,
		Residents:         22,
		TemperatureRoom:   20,
		TargetTemperature: 25,
	}
	tc.Calculate()
	return tc
}

func (tc *ThermalConsumer) Type() model.DeviceType { return model.DeviceThermalConsumer }

func (tc *ThermalConsumer) Connected() bool {
	return tc.heatStorage != nil
}

func (tc *ThermalConsumer) Attach(devices []Device) {
	tc.heatStorage = find[*HeatStorage](devices)
}

// SetWeather replaces the outside temperature source.
func (tc *ThermalConsumer) SetWeather(p weather.Provider) {
	if p != nil {
		tc.weather = p
	}
}

// Calculate derives the building parameters from its configuration.
func (tc *ThermalConsumer) Calculate() {
	// rule of thumb for new housing: 100 W per m³
	tc.MaxPower = tc.RoomVolume * 100
	tc.WindowSurface = windowArea * float64(tc.RoomsPerApartment*tc.Apartments)
	tc.HeatCapacity = airHeatCapacity*tc.RoomVolume + brickHeatCapacity*brickVolume
	tc.CurrentPower = clamp(tc.CurrentPower, 0, tc.MaxPower)
}

func (tc *ThermalConsumer) OutsideTemperature() float64 {
	return tc.weather.AverageOutsideTemperature(tc.env.Time())
}

// ConsumptionPower is the current heating demand in kW.
func (tc *ThermalConsumer) ConsumptionPower() float64 {
	return tc.CurrentPower / 1000.0
}

func (tc *ThermalConsumer) Step() {
	tc.simulateConsumption()

	h := tc.env.StepHours()
	heating := tc.ConsumptionPower() * h
	tc.TotalConsumed += heating
	tc.heatStorage.ConsumeEnergy(heating)

	tc.WarmwaterPower = float64(tc.Residents) * warmwaterPerResident * warmwaterShare(tc.env.HourOfDay())
	warmwater := tc.WarmwaterPower * h
	tc.TotalWarmwater += warmwater
	tc.heatStorage.ConsumeEnergy(warmwater)
}

func (tc *ThermalConsumer) simulateConsumption() {
	tc.TargetTemperature = roomTargetTemperatures[tc.env.HourOfDay()]
	tc.CurrentOutsideTemp = tc.OutsideTemperature()

	tc.heatLoss()

	slope := powerSlope * sign(tc.TargetTemperature-tc.TemperatureRoom)
	tc.CurrentPower += slope * float64(tc.env.StepSize)
	tc.CurrentPower = clamp(tc.CurrentPower, 0, tc.MaxPower)

	tc.heatRoom()
}

func (tc *ThermalConsumer) heatLoss() {
	d := tc.TemperatureRoom - tc.CurrentOutsideTemp
	cooling := tc.WindowSurface * windowHeatTransfer / tc.HeatCapacity * float64(tc.env.StepSize)
	// large steps must not cool the room past the outside temperature
	tc.TemperatureRoom -= d * math.Min(cooling, 1)
}

func (tc *ThermalConsumer) heatRoom() {
	tc.TemperatureRoom += tc.CurrentPower * heatingEfficiency / tc.HeatCapacity * float64(tc.env.StepSize)
}

func (tc *ThermalConsumer) Configure(key string, v float64) error {
	switch key {
	case "room_volume", "total_heated_floor":
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %g", key, v)
		}
		tc.RoomVolume = v
	case "apartments":
		tc.Apartments = int(v)
	case "avg_rooms_per_apartment":
		tc.RoomsPerApartment = int(v)
	case "residents":
		tc.Residents = int(v)
	default:
		return ErrUnknownKey
	}
	return nil
}

func (tc *ThermalConsumer) Value(key string) (float64, bool) {
	switch key {
	case "consumption_power":
		return tc.ConsumptionPower(), true
	case "warmwater_consumption_power":
		return tc.WarmwaterPower, true
	case "temperature_room":
		return tc.TemperatureRoom, true
	case "target_temperature":
		return tc.TargetTemperature, true
	case "outside_temperature":
		return tc.OutsideTemperature(), true
	case "total_consumed":
		return tc.TotalConsumed, true
	case "total_warmwater":
		return tc.TotalWarmwater, true
	}
	return 0, false
}

func (tc *ThermalConsumer) SetValue(key string, v float64) bool {
	switch key {
	case "consumption_power":
		tc.CurrentPower = v * 1000.0
	case "current_power":
		tc.CurrentPower = v
	case "temperature_room":
		tc.TemperatureRoom = v
	default:
		return false
	}
	return true
}

func (tc *ThermalConsumer) clone(env *Environment) Device {
	c := *tc
	c.env = env
	c.heatStorage = nil
	return &c
}

// DemandSource predicts electrical demand in kW for a point in time.
type DemandSource interface {
	ForecastAt(t time.Time) float64
}

// ElectricalConsumer draws the building's electrical load from the power
// meter. Demand comes from the quarter-hour profile unless a forecast is set.
type ElectricalConsumer struct {
	base

	powerMeter *PowerMeter
	demand     DemandSource

	CurrentConsumption float64 // kW
	TotalConsumption   float64 // kWh
}

func NewElectricalConsumer(id int, env *Environment) *ElectricalConsumer {
	return &ElectricalConsumer{
		base: base{id: id, env: env},
	}
}

func (ec *ElectricalConsumer) Type() model.DeviceType { return model.DeviceElectricalConsumer }

func (ec *ElectricalConsumer) Connected() bool {
	return ec.powerMeter != nil
}

func (ec *ElectricalConsumer) Attach(devices []Device) {
	ec.powerMeter = find[*PowerMeter](devices)
}

// SetDemandSource replaces the profile table. Pass nil to restore it.
func (ec *ElectricalConsumer) SetDemandSource(src DemandSource) {
	ec.demand = src
}

// ConsumptionPower returns the demand at the current time in kW.
func (ec *ElectricalConsumer) ConsumptionPower() float64 {
	if ec.demand != nil {
		return ec.demand.ForecastAt(ec.env.Time())
	}
	hour := ec.env.HourOfDay()
	quarter := ec.env.MinuteOfHour() / 15
	return electricalDemand[hour*4+quarter] * demandVariation[hour]
}

func (ec *ElectricalConsumer) Step() {
	ec.CurrentConsumption = ec.ConsumptionPower()
	energy := ec.CurrentConsumption * ec.env.StepHours()
	ec.TotalConsumption += energy
	ec.powerMeter.ConsumeEnergy(energy)
	ec.powerMeter.CurrentPowerConsumption = ec.CurrentConsumption
}

func (ec *ElectricalConsumer) Configure(string, float64) error {
	return ErrUnknownKey
}

func (ec *ElectricalConsumer) Value(key string) (float64, bool) {
	switch key {
	case "consumption_power":
		return ec.ConsumptionPower(), true
	case "total_consumption":
		return ec.TotalConsumption, true
	}
	return 0, false
}

func (ec *ElectricalConsumer) SetValue(key string, v float64) bool {
	if key != "total_consumption" {
		return false
	}
	ec.TotalConsumption = v
	return true
}

func (ec *ElectricalConsumer) clone(env *Environment) Device {
	c := *ec
	c.env = env
	c.powerMeter = nil
	return &c
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

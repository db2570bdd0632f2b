package simulator

import (
	"fmt"

	"ecocontrol/internal/model"
)

// HeatStorage is a hot water tank. Its state is kept only as cumulative
// input and output energy; temperature is derived from the difference.
type HeatStorage struct {
	base

	Capacity             float64 // l
	MinTemperature       float64 // °C
	TargetTemperature    float64 // °C
	CriticalTemperature  float64 // °C
	BaseTemperature      float64 // °C
	SpecificHeatCapacity float64 // kWh/(l·K)
	TemperatureLoss      float64 // K per hour

	InputEnergy  float64 // kWh
	OutputEnergy float64 // kWh
	EmptyCount   int
}

func NewHeatStorage(id int, env *Environment) *HeatStorage {
	return &HeatStorage{
		base:                 base{id: id, env: env},
		Capacity:             2500,
		MinTemperature:       55,
		TargetTemperature:    70,
		CriticalTemperature:  90,
		BaseTemperature:      20,
		SpecificHeatCapacity: 0.00116,
		TemperatureLoss:      3.0 / 24.0,
	}
}

func (hs *HeatStorage) Type() model.DeviceType { return model.DeviceHeatStorage }

func (hs *HeatStorage) Connected() bool { return true }

func (hs *HeatStorage) Attach([]Device) {}

// AddEnergy records produced heat in kWh.
func (hs *HeatStorage) AddEnergy(energy float64) {
	hs.InputEnergy += energy
}

// ConsumeEnergy draws heat in kWh. A draw larger than the stored energy
// empties the tank and is counted in EmptyCount.
func (hs *HeatStorage) ConsumeEnergy(energy float64) {
	stored := hs.EnergyStored()
	if stored-energy >= 0 {
		hs.OutputEnergy += energy
		return
	}
	hs.EmptyCount++
	if stored > 0 {
		hs.OutputEnergy += stored
	}
}

func (hs *HeatStorage) EnergyStored() float64 {
	return hs.InputEnergy - hs.OutputEnergy
}

func (hs *HeatStorage) heatCapacity() float64 {
	return hs.Capacity * hs.SpecificHeatCapacity
}

// TargetEnergy is the stored energy at TargetTemperature.
func (hs *HeatStorage) TargetEnergy() float64 {
	return hs.heatCapacity() * (hs.TargetTemperature - hs.BaseTemperature)
}

// RequiredEnergy is the energy still missing to reach TargetTemperature.
func (hs *HeatStorage) RequiredEnergy() float64 {
	return hs.TargetEnergy() - hs.EnergyStored()
}

// EnergyCapacity is the stored energy at CriticalTemperature.
func (hs *HeatStorage) EnergyCapacity() float64 {
	return hs.heatCapacity() * (hs.CriticalTemperature - hs.BaseTemperature)
}

func (hs *HeatStorage) Temperature() float64 {
	return hs.BaseTemperature + hs.EnergyStored()/hs.heatCapacity()
}

// SetTemperature resets the accumulators so that Temperature returns t.
func (hs *HeatStorage) SetTemperature(t float64) {
	hs.OutputEnergy = 0
	hs.InputEnergy = (t - hs.BaseTemperature) * hs.heatCapacity()
}

func (hs *HeatStorage) Undersupplied() bool {
	return hs.Temperature() < hs.MinTemperature
}

func (hs *HeatStorage) Step() {
	hourlyLoss := hs.heatCapacity() * hs.TemperatureLoss
	hs.OutputEnergy += hourlyLoss * hs.env.StepHours()
}

func (hs *HeatStorage) Configure(key string, v float64) error {
	switch key {
	case "capacity":
		if v <= 0 {
			return fmt.Errorf("capacity must be positive, got %g", v)
		}
		hs.Capacity = v
	case "min_temperature":
		hs.MinTemperature = v
	case "target_temperature":
		hs.TargetTemperature = v
	case "critical_temperature":
		hs.CriticalTemperature = v
	case "base_temperature":
		hs.BaseTemperature = v
	case "specific_heat_capacity":
		if v <= 0 {
			return fmt.Errorf("specific_heat_capacity must be positive, got %g", v)
		}
		hs.SpecificHeatCapacity = v
	case "temperature_loss":
		hs.TemperatureLoss = v
	default:
		return ErrUnknownKey
	}
	return nil
}

func (hs *HeatStorage) Value(key string) (float64, bool) {
	switch key {
	case "temperature":
		return hs.Temperature(), true
	case "energy_stored":
		return hs.EnergyStored(), true
	case "required_energy":
		return hs.RequiredEnergy(), true
	case "input_energy":
		return hs.InputEnergy, true
	case "output_energy":
		return hs.OutputEnergy, true
	case "empty_count":
		return float64(hs.EmptyCount), true
	}
	return 0, false
}

func (hs *HeatStorage) SetValue(key string, v float64) bool {
	if key != "temperature" {
		return false
	}
	hs.SetTemperature(v)
	return true
}

func (hs *HeatStorage) clone(env *Environment) Device {
	c := *hs
	c.env = env
	return &c
}

// PowerMeter nets electrical production against consumption every tick.
type PowerMeter struct {
	base

	FeedInReward    float64 // €/kWh
	ElectricalCosts float64 // €/kWh

	FedInElectricity      float64 // kWh, last tick
	Purchased             float64 // kWh, last tick
	TotalFedInElectricity float64 // kWh
	TotalPurchased        float64 // kWh

	// CurrentPowerConsumption is the electrical demand reported by the
	// consumers during the last tick, in kW.
	CurrentPowerConsumption float64

	energyProduced float64
	energyConsumed float64
}

func NewPowerMeter(id int, env *Environment) *PowerMeter {
	return &PowerMeter{
		base:            base{id: id, env: env},
		FeedInReward:    0.0917,
		ElectricalCosts: 0.283,
	}
}

func (pm *PowerMeter) Type() model.DeviceType { return model.DevicePowerMeter }

func (pm *PowerMeter) Connected() bool { return true }

func (pm *PowerMeter) Attach([]Device) {}

func (pm *PowerMeter) AddEnergy(energy float64) {
	pm.energyProduced += energy
}

func (pm *PowerMeter) ConsumeEnergy(energy float64) {
	pm.energyConsumed += energy
}

// Reward is the lifetime feed-in revenue.
func (pm *PowerMeter) Reward() float64 {
	return pm.TotalFedInElectricity * pm.FeedInReward
}

// Costs is the lifetime cost of purchased electricity.
func (pm *PowerMeter) Costs() float64 {
	return pm.TotalPurchased * pm.ElectricalCosts
}

func (pm *PowerMeter) Step() {
	balance := pm.energyProduced - pm.energyConsumed
	if balance < 0 {
		pm.Purchased = -balance
		pm.FedInElectricity = 0
		pm.TotalPurchased -= balance
	} else {
		pm.FedInElectricity = balance
		pm.Purchased = 0
		pm.TotalFedInElectricity += balance
	}
	pm.energyProduced = 0
	pm.energyConsumed = 0
}

func (pm *PowerMeter) Configure(key string, v float64) error {
	switch key {
	case "feed_in_reward":
		pm.FeedInReward = v
	case "electrical_costs":
		pm.ElectricalCosts = v
	default:
		return ErrUnknownKey
	}
	return nil
}

func (pm *PowerMeter) Value(key string) (float64, bool) {
	switch key {
	case "purchased":
		return pm.Purchased, true
	case "fed_in_electricity":
		return pm.FedInElectricity, true
	case "total_purchased":
		return pm.TotalPurchased, true
	case "total_fed_in_electricity":
		return pm.TotalFedInElectricity, true
	case "current_power_consumption":
		return pm.CurrentPowerConsumption, true
	case "reward":
		return pm.Reward(), true
	case "costs":
		return pm.Costs(), true
	}
	return 0, false
}

func (pm *PowerMeter) SetValue(key string, v float64) bool {
	switch key {
	case "total_purchased":
		pm.TotalPurchased = v
	case "total_fed_in_electricity":
		pm.TotalFedInElectricity = v
	default:
		return false
	}
	return true
}

func (pm *PowerMeter) clone(env *Environment) Device {
	c := *pm
	c.env = env
	return &c
}

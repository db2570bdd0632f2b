package store

import "ecocontrol/internal/model"

// Seed is a complete scenario definition.
type Seed struct {
	Devices      []model.Device
	Sensors      []model.Sensor
	DeviceConfig []model.ConfigEntry
	SystemConfig []model.ConfigEntry
}

// Default device IDs of the seeded scenario.
const (
	HeatStorageID        = 1
	PowerMeterID         = 2
	CogenerationUnitID   = 3
	PeakLoadBoilerID     = 4
	ThermalConsumerID    = 5
	ElectricalConsumerID = 6
)

// DefaultScenario is a residential building with one cogeneration unit, a
// peak load boiler and a 2500 l heat storage.
func DefaultScenario() Seed {
	var devices []model.Device
	for _, d := range []struct {
		id int
		t  model.DeviceType
	}{
		{HeatStorageID, model.DeviceHeatStorage},
		{PowerMeterID, model.DevicePowerMeter},
		{CogenerationUnitID, model.DeviceCogenerationUnit},
		{PeakLoadBoilerID, model.DevicePeakLoadBoiler},
		{ThermalConsumerID, model.DeviceThermalConsumer},
		{ElectricalConsumerID, model.DeviceElectricalConsumer},
	} {
		devices = append(devices, model.Device{ID: d.id, Name: model.DeviceCatalog[d.t], Type: d.t})
	}

	sensors := []model.Sensor{
		{DeviceID: HeatStorageID, Name: "Temperature", Key: "temperature", Setter: "temperature", Unit: "°C", InDiagram: true, AggregateAvg: true},
		{DeviceID: PowerMeterID, Name: "Purchased", Key: "purchased", Unit: "kWh", AggregateSum: true},
		{DeviceID: PowerMeterID, Name: "Fed in Electricity", Key: "fed_in_electricity", Unit: "kWh", AggregateSum: true},
		{DeviceID: CogenerationUnitID, Name: "Workload", Key: "workload", Setter: "workload", Unit: "%", InDiagram: true, AggregateAvg: true},
		{DeviceID: CogenerationUnitID, Name: "Current Gas Consumption", Key: "current_gas_consumption", Unit: "kWh", AggregateSum: true},
		{DeviceID: PeakLoadBoilerID, Name: "Workload", Key: "workload", Setter: "workload", Unit: "%", InDiagram: true, AggregateAvg: true},
		{DeviceID: PeakLoadBoilerID, Name: "Current Gas Consumption", Key: "current_gas_consumption", Unit: "kWh", AggregateSum: true},
		{DeviceID: ThermalConsumerID, Name: "Thermal Consumption", Key: "consumption_power", Setter: "consumption_power", Unit: "kWh", InDiagram: true, AggregateSum: true},
		{DeviceID: ThermalConsumerID, Name: "Warm Water Consumption", Key: "warmwater_consumption_power", Unit: "kWh", InDiagram: true, AggregateSum: true},
		{DeviceID: ThermalConsumerID, Name: "Room Temperature", Key: "temperature_room", Setter: "temperature_room", Unit: "°C"},
		{DeviceID: ThermalConsumerID, Name: "Outside Temperature", Key: "outside_temperature", Unit: "°C", InDiagram: true, AggregateAvg: true},
		{DeviceID: ElectricalConsumerID, Name: "Electrical Consumption", Key: "consumption_power", Unit: "kWh", InDiagram: true, AggregateSum: true},
	}
	for i := range sensors {
		sensors[i].ID = i + 1
	}

	f := func(id int, key, value, unit string) model.ConfigEntry {
		return model.ConfigEntry{DeviceID: id, Key: key, Value: value, ValueType: model.ValueFloat, Unit: unit}
	}
	deviceConfig := []model.ConfigEntry{
		f(CogenerationUnitID, "max_gas_input", "19.0", "kWh"),
		f(CogenerationUnitID, "thermal_efficiency", "0.65", "%"),
		f(CogenerationUnitID, "electrical_efficiency", "0.247", "%"),
		f(CogenerationUnitID, "minimal_workload", "0.40", "%"),
		{DeviceID: CogenerationUnitID, Key: "minimal_off_time", Value: "600", ValueType: model.ValueInt, Unit: "seconds", Tunable: true},
		f(CogenerationUnitID, "purchase_price", "15000", "€"),
		{DeviceID: CogenerationUnitID, Key: "purchase_date", Value: "01.01.2013", ValueType: model.ValueString},
		{DeviceID: CogenerationUnitID, Key: "maintenance_interval_hours", Value: "8000", ValueType: model.ValueInt, Unit: "h"},
		{DeviceID: CogenerationUnitID, Key: "maintenance_interval_powerons", Value: "2000", ValueType: model.ValueInt},

		f(PeakLoadBoilerID, "max_gas_input", "45.0", "kWh"),
		f(PeakLoadBoilerID, "thermal_efficiency", "0.91", "%"),

		f(HeatStorageID, "capacity", "2500.0", "l"),
		{DeviceID: HeatStorageID, Key: "min_temperature", Value: "55.0", ValueType: model.ValueFloat, Unit: "°C", Tunable: true},
		{DeviceID: HeatStorageID, Key: "target_temperature", Value: "70.0", ValueType: model.ValueFloat, Unit: "°C", Tunable: true},
		{DeviceID: HeatStorageID, Key: "critical_temperature", Value: "90.0", ValueType: model.ValueFloat, Unit: "°C", Tunable: true},
	}

	s := func(key, value string, vt model.ValueType, unit string) model.ConfigEntry {
		return model.ConfigEntry{Key: key, Value: value, ValueType: vt, Unit: unit}
	}
	systemConfig := []model.ConfigEntry{
		{Key: "auto_optimization", Value: "0", ValueType: model.ValueBool, Internal: true},
		s("apartments", "12", model.ValueInt, ""),
		s("avg_rooms_per_apartment", "4", model.ValueInt, ""),
		s("residents", "22", model.ValueInt, ""),
		s("location", "Berlin", model.ValueString, ""),
		s("avg_windows_per_room", "3", model.ValueInt, ""),
		s("total_heated_floor", "650", model.ValueFloat, "m²"),
		s("gas_costs", "0.0655", model.ValueFloat, "€"),
		s("feed_in_reward", "0.0917", model.ValueFloat, "€"),
		s("electrical_costs", "0.283", model.ValueFloat, "€"),
		s("thermal_revenues", "0.075", model.ValueFloat, "€"),
		s("warmwater_revenues", "0.065", model.ValueFloat, "€"),
		s("electrical_revenues", "0.268", model.ValueFloat, "€"),
	}

	return Seed{
		Devices:      devices,
		Sensors:      sensors,
		DeviceConfig: deviceConfig,
		SystemConfig: systemConfig,
	}
}

package simulator

import (
	"fmt"
	"math"

	"ecocontrol/internal/model"
)

// maintenanceCosts is charged per kWh of lifetime electrical production.
const maintenanceCosts = 0.05

// generator holds the gas accounting shared by the CU and the PLB.
type generator struct {
	base

	MaxGasInput       float64 // kW
	ThermalEfficiency float64 // %
	GasCosts          float64 // €/kWh

	Workload                 float64 // %
	CurrentGasConsumption    float64 // kW
	CurrentThermalProduction float64 // kW
	TotalGasConsumption      float64 // kWh
	TotalThermalProduction   float64 // kWh
	TotalHoursOfOperation    float64
	PowerOnCount             int

	OffTime int64

	// overwrite, when set, replaces the control law. NaN means unset.
	overwrite float64
}

func newGenerator(id int, env *Environment, maxGas, thermalEff float64) generator {
	return generator{
		base:              base{id: id, env: env},
		MaxGasInput:       maxGas,
		ThermalEfficiency: thermalEff,
		GasCosts:          0.0655,
		OffTime:           env.Now,
		overwrite:         math.NaN(),
	}
}

// SetOverwrite forces the workload and returns the value applied, clamped
// to [0, 99].
func (g *generator) SetOverwrite(workload float64) float64 {
	g.overwrite = clamp(workload, 0, 99)
	return g.overwrite
}

func (g *generator) ClearOverwrite() {
	g.overwrite = math.NaN()
}

// Overwrite returns the forced workload, if any.
func (g *generator) Overwrite() (float64, bool) {
	if math.IsNaN(g.overwrite) {
		return 0, false
	}
	return g.overwrite, true
}

func (g *generator) consumeGas() {
	h := g.env.StepHours()
	g.TotalGasConsumption += g.CurrentGasConsumption * h
	g.TotalThermalProduction += g.CurrentThermalProduction * h
}

func (g *generator) thermalEnergyProduction() float64 {
	return g.CurrentThermalProduction * g.env.StepHours()
}

func (g *generator) configure(key string, v float64) error {
	switch key {
	case "max_gas_input":
		if v <= 0 {
			return fmt.Errorf("max_gas_input must be positive, got %g", v)
		}
		g.MaxGasInput = v
	case "thermal_efficiency":
		g.ThermalEfficiency = percent(v)
	case "gas_costs":
		g.GasCosts = v
	default:
		return ErrUnknownKey
	}
	return nil
}

func (g *generator) value(key string) (float64, bool) {
	switch key {
	case "workload":
		return g.Workload, true
	case "current_gas_consumption":
		return g.CurrentGasConsumption, true
	case "current_thermal_production":
		return g.CurrentThermalProduction, true
	case "total_gas_consumption":
		return g.TotalGasConsumption, true
	case "total_thermal_production":
		return g.TotalThermalProduction, true
	case "total_hours_of_operation":
		return g.TotalHoursOfOperation, true
	case "power_on_count":
		return float64(g.PowerOnCount), true
	case "overwrite_workload":
		if w, ok := g.Overwrite(); ok {
			return w, true
		}
		return -1, true
	}
	return 0, false
}

func (g *generator) setValue(key string, v float64) bool {
	switch key {
	case "workload":
		g.Workload = clamp(v, 0, 99)
	case "overwrite_workload":
		if v < 0 {
			g.ClearOverwrite()
		} else {
			g.SetOverwrite(v)
		}
	case "total_hours_of_operation":
		g.TotalHoursOfOperation = v
	case "power_on_count":
		g.PowerOnCount = int(v)
	default:
		return false
	}
	return true
}

// CogenerationUnit is a gas engine producing heat and electricity.
type CogenerationUnit struct {
	generator

	heatStorage *HeatStorage
	powerMeter  *PowerMeter

	ElectricalEfficiency float64 // %
	MaxEfficiencyLoss    float64 // % lost at minimal workload
	MinimalWorkload      float64 // %
	MinimalOffTime       int64   // s
	ThermalDriven        bool

	// ElectricalDrivenMinimalProduction is the floor used for the electric
	// control law, in kW.
	ElectricalDrivenMinimalProduction float64

	CurrentElectricalProduction float64 // kW
	TotalElectricalProduction   float64 // kWh
}

func NewCogenerationUnit(id int, env *Environment) *CogenerationUnit {
	return &CogenerationUnit{
		generator:                         newGenerator(id, env, 19.0, 65.0),
		ElectricalEfficiency:              24.7,
		MaxEfficiencyLoss:                 0.15,
		MinimalWorkload:                   40.0,
		MinimalOffTime:                    600,
		ThermalDriven:                     true,
		ElectricalDrivenMinimalProduction: 1.0,
	}
}

func (cu *CogenerationUnit) Type() model.DeviceType { return model.DeviceCogenerationUnit }

// Connected requires both the heat storage and the power meter.
func (cu *CogenerationUnit) Connected() bool {
	return cu.heatStorage != nil && cu.powerMeter != nil
}

func (cu *CogenerationUnit) Attach(devices []Device) {
	cu.heatStorage = find[*HeatStorage](devices)
	cu.powerMeter = find[*PowerMeter](devices)
}

func (cu *CogenerationUnit) Step() {
	cu.updateParameters(cu.calculateWorkload())
	cu.powerMeter.AddEnergy(cu.CurrentElectricalProduction * cu.env.StepHours())
	cu.heatStorage.AddEnergy(cu.thermalEnergyProduction())
	cu.consumeGas()
	cu.TotalElectricalProduction += cu.CurrentElectricalProduction * cu.env.StepHours()
}

func (cu *CogenerationUnit) calculateWorkload() float64 {
	if w, ok := cu.Overwrite(); ok {
		return w
	}
	if cu.OffTime > cu.env.Now {
		return 0
	}
	if cu.ThermalDriven {
		return cu.thermalWorkload()
	}
	return cu.electricalWorkload()
}

// MaxThermalPower is the heat output at full load in kW.
func (cu *CogenerationUnit) MaxThermalPower() float64 {
	return cu.ThermalEfficiency / 100.0 * cu.MaxGasInput
}

// MaxElectricalPower is the electrical output at full load in kW.
func (cu *CogenerationUnit) MaxElectricalPower() float64 {
	return cu.ElectricalEfficiency / 100.0 * cu.MaxGasInput
}

func (cu *CogenerationUnit) thermalWorkload() float64 {
	required := cu.heatStorage.RequiredEnergy()
	return math.Min(required/cu.MaxThermalPower(), 1) * 99.0
}

func (cu *CogenerationUnit) electricalWorkload() float64 {
	if cu.heatStorage.Temperature() >= cu.heatStorage.TargetTemperature {
		return 0
	}
	demand := math.Max(cu.powerMeter.CurrentPowerConsumption, cu.ElectricalDrivenMinimalProduction)
	return math.Min(demand/cu.MaxElectricalPower(), 1) * 99.0
}

// efficiencyLossFactor is 1 at full load and drops linearly to
// 1-MaxEfficiencyLoss/100 at minimal workload.
func (cu *CogenerationUnit) efficiencyLossFactor() float64 {
	relative := 1.0 - (cu.Workload-cu.MinimalWorkload)/(99.0-cu.MinimalWorkload)
	return 1.0 - cu.MaxEfficiencyLoss/100.0*relative
}

func (cu *CogenerationUnit) updateParameters(calculated float64) {
	old := cu.Workload

	if calculated >= cu.MinimalWorkload && calculated > 0 {
		if old == 0 {
			cu.PowerOnCount++
		}
		cu.TotalHoursOfOperation += cu.env.StepHours()
		cu.Workload = math.Min(calculated, 99.0)
	} else {
		cu.Workload = 0
		if cu.OffTime <= cu.env.Now {
			cu.OffTime = cu.env.Now + cu.MinimalOffTime
		}
	}

	cu.CurrentGasConsumption = cu.Workload / 99.0 * cu.MaxGasInput
	loss := 1.0
	if cu.Workload > 0 {
		loss = cu.efficiencyLossFactor()
	}
	cu.CurrentElectricalProduction = cu.CurrentGasConsumption * cu.ElectricalEfficiency / 100.0 * loss
	cu.CurrentThermalProduction = cu.CurrentGasConsumption * cu.ThermalEfficiency / 100.0 * loss
}

// OperatingCosts is lifetime gas cost plus maintenance.
func (cu *CogenerationUnit) OperatingCosts() float64 {
	return cu.TotalGasConsumption*cu.GasCosts + cu.TotalElectricalProduction*maintenanceCosts
}

func (cu *CogenerationUnit) Configure(key string, v float64) error {
	switch key {
	case "electrical_efficiency":
		cu.ElectricalEfficiency = percent(v)
	case "max_efficiency_loss":
		cu.MaxEfficiencyLoss = v
	case "minimal_workload":
		w := percent(v)
		if w >= 99 {
			return fmt.Errorf("minimal_workload must be below 99, got %g", w)
		}
		cu.MinimalWorkload = w
	case "minimal_off_time":
		cu.MinimalOffTime = int64(v)
	case "thermal_driven":
		cu.ThermalDriven = v != 0
	case "electrical_driven_minimal_production":
		cu.ElectricalDrivenMinimalProduction = v
	default:
		return cu.generator.configure(key, v)
	}
	return nil
}

func (cu *CogenerationUnit) Value(key string) (float64, bool) {
	switch key {
	case "current_electrical_production":
		return cu.CurrentElectricalProduction, true
	case "total_electrical_production":
		return cu.TotalElectricalProduction, true
	case "operating_costs":
		return cu.OperatingCosts(), true
	}
	return cu.generator.value(key)
}

func (cu *CogenerationUnit) SetValue(key string, v float64) bool {
	if key == "total_electrical_production" {
		cu.TotalElectricalProduction = v
		return true
	}
	return cu.generator.setValue(key, v)
}

func (cu *CogenerationUnit) clone(env *Environment) Device {
	c := *cu
	c.env = env
	c.heatStorage = nil
	c.powerMeter = nil
	return &c
}

package simulator

import "ecocontrol/internal/model"

// boilerOffTime is the cooldown after the boiler switches off, in seconds.
const boilerOffTime = 3 * 60

// PeakLoadBoiler covers heat demand the cogeneration unit cannot. It runs at
// full load while the heat storage is undersupplied.
type PeakLoadBoiler struct {
	generator

	heatStorage *HeatStorage
}

func NewPeakLoadBoiler(id int, env *Environment) *PeakLoadBoiler {
	return &PeakLoadBoiler{
		generator: newGenerator(id, env, 50.0, 80.0),
	}
}

func (plb *PeakLoadBoiler) Type() model.DeviceType { return model.DevicePeakLoadBoiler }

func (plb *PeakLoadBoiler) Connected() bool {
	return plb.heatStorage != nil
}

func (plb *PeakLoadBoiler) Attach(devices []Device) {
	plb.heatStorage = find[*HeatStorage](devices)
}

func (plb *PeakLoadBoiler) Step() {
	plb.calculateState()
	plb.heatStorage.AddEnergy(plb.thermalEnergyProduction())
	plb.consumeGas()
}

func (plb *PeakLoadBoiler) calculateState() {
	old := plb.Workload
	now := plb.env.Now

	if w, ok := plb.Overwrite(); ok {
		plb.Workload = w
		if w > 0 {
			if old == 0 {
				plb.PowerOnCount++
			}
			plb.TotalHoursOfOperation += plb.env.StepHours()
		}
	} else if plb.heatStorage.Undersupplied() && plb.OffTime <= now {
		if old == 0 {
			plb.PowerOnCount++
		}
		plb.TotalHoursOfOperation += plb.env.StepHours()
		plb.Workload = 99
	} else if plb.CurrentThermalProduction >= plb.heatStorage.RequiredEnergy() {
		plb.Workload = 0
		if plb.OffTime <= now {
			plb.OffTime = now + boilerOffTime
		}
	} else if plb.Workload > 0 {
		plb.TotalHoursOfOperation += plb.env.StepHours()
	}

	plb.CurrentGasConsumption = plb.Workload / 99.0 * plb.MaxGasInput
	plb.CurrentThermalProduction = plb.CurrentGasConsumption * plb.ThermalEfficiency / 100.0
}

// OperatingCosts is the lifetime gas cost.
func (plb *PeakLoadBoiler) OperatingCosts() float64 {
	return plb.TotalGasConsumption * plb.GasCosts
}

func (plb *PeakLoadBoiler) Configure(key string, v float64) error {
	return plb.generator.configure(key, v)
}

func (plb *PeakLoadBoiler) Value(key string) (float64, bool) {
	if key == "operating_costs" {
		return plb.OperatingCosts(), true
	}
	return plb.generator.value(key)
}

func (plb *PeakLoadBoiler) SetValue(key string, v float64) bool {
	return plb.generator.setValue(key, v)
}

func (plb *PeakLoadBoiler) clone(env *Environment) Device {
	c := *plb
	c.env = env
	c.heatStorage = nil
	return &c
}

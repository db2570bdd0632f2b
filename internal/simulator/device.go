package simulator

import (
	"errors"
	"fmt"

	"ecocontrol/internal/model"
)

var (
	ErrNotConnected  = errors.New("device is not connected")
	ErrUnknownKey    = errors.New("unknown key")
	ErrUnknownDevice = errors.New("unknown device type")
)

// ConfigError is a fatal scenario configuration problem.
type ConfigError struct {
	DeviceID int
	Type     model.DeviceType
	Key      string
	Err      error
}

func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("configuration error for %s device %d, key %q: %v", e.Type, e.DeviceID, e.Key, e.Err)
	}
	return fmt.Sprintf("configuration error for %s device %d: %v", e.Type, e.DeviceID, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Device is one component of the energy system, advanced once per tick.
type Device interface {
	ID() int
	Type() model.DeviceType
	// Step advances the device by one tick given its neighbours' state.
	Step()
	// Connected reports whether all required references are set.
	Connected() bool
	// Attach wires references to the first device of each required type.
	Attach(devices []Device)
	// Configure applies one numeric configuration value. Unknown keys
	// return ErrUnknownKey.
	Configure(key string, value float64) error
	// Value reads an observable value by sensor key.
	Value(key string) (float64, bool)
	// SetValue restores an observable value by setter key.
	SetValue(key string, value float64) bool

	clone(env *Environment) Device
}

// recalculator is implemented by devices with state derived from config.
type recalculator interface {
	Calculate()
}

type base struct {
	id  int
	env *Environment
}

func (b *base) ID() int {
	return b.id
}

func find[T Device](devices []Device) T {
	var zero T
	for _, d := range devices {
		if t, ok := d.(T); ok {
			return t
		}
	}
	return zero
}

// percent accepts efficiencies given either as a fraction or in percent.
func percent(v float64) float64 {
	if v > 0 && v <= 1 {
		return v * 100
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

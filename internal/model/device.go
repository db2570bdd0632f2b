package model

import (
	"fmt"
	"strconv"
	"strings"
)

type DeviceType string

const (
	DeviceHeatStorage        DeviceType = "hs"
	DevicePowerMeter         DeviceType = "pm"
	DeviceCogenerationUnit   DeviceType = "cu"
	DevicePeakLoadBoiler     DeviceType = "plb"
	DeviceThermalConsumer    DeviceType = "tc"
	DeviceElectricalConsumer DeviceType = "ec"
)

// DeviceCatalog maps every known DeviceType to its display name.
var DeviceCatalog = map[DeviceType]string{
	DeviceHeatStorage:        "Heat Storage",
	DevicePowerMeter:         "Power Meter",
	DeviceCogenerationUnit:   "Cogeneration Unit",
	DevicePeakLoadBoiler:     "Peak Load Boiler",
	DeviceThermalConsumer:    "Thermal Consumer",
	DeviceElectricalConsumer: "Electrical Consumer",
}

// ParseDeviceType accepts the short tag ("cu") in any case.
func ParseDeviceType(s string) (DeviceType, error) {
	dt := DeviceType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := DeviceCatalog[dt]; !ok {
		return "", fmt.Errorf("unknown device type %q", s)
	}
	return dt, nil
}

type Device struct {
	ID   int        `json:"id"`
	Name string     `json:"name"`
	Type DeviceType `json:"device_type"`
}

type ValueType string

const (
	ValueFloat  ValueType = "float"
	ValueInt    ValueType = "int"
	ValueBool   ValueType = "bool"
	ValueString ValueType = "str"
)

// ConfigEntry is a persisted configuration value. DeviceID is zero for
// system-wide entries such as prices.
type ConfigEntry struct {
	DeviceID  int       `json:"device_id,omitempty"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	ValueType ValueType `json:"value_type"`
	Unit      string    `json:"unit,omitempty"`
	Tunable   bool      `json:"tunable,omitempty"`
	Internal  bool      `json:"internal,omitempty"`
}

// Float parses the entry as a number. Booleans map to 0/1.
func (c ConfigEntry) Float() (float64, error) {
	switch c.ValueType {
	case ValueBool:
		b, err := c.Bool()
		if err != nil {
			return 0, err
		}
		if b {
			return 1, nil
		}
		return 0, nil
	case ValueString:
		return 0, fmt.Errorf("config %q: string value is not numeric", c.Key)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
	if err != nil {
		return 0, fmt.Errorf("config %q: parsing %q: %w", c.Key, c.Value, err)
	}
	return v, nil
}

func (c ConfigEntry) Bool() (bool, error) {
	switch strings.ToLower(strings.TrimSpace(c.Value)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("config %q: parsing %q as bool", c.Key, c.Value)
}

package model

import "time"

// Sensor describes one observable value of a device. Key names the value the
// device reports; Setter, when set, names the value used to restore state.
type Sensor struct {
	ID           int    `json:"id"`
	DeviceID     int    `json:"device_id"`
	Name         string `json:"name"`
	Key          string `json:"key"`
	Setter       string `json:"setter,omitempty"`
	Unit         string `json:"unit"`
	InDiagram    bool   `json:"in_diagram"`
	AggregateSum bool   `json:"aggregate_sum"`
	AggregateAvg bool   `json:"aggregate_avg"`
}

type Sample struct {
	SensorID  int       `json:"sensor_id"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End).
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && t.Before(tr.End)
}

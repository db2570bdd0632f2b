package ws

import (
	"encoding/json"
	"time"

	"ecocontrol/internal/model"
	"ecocontrol/internal/simulator"
)

// Envelope wraps all WebSocket messages with a type discriminator.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client -> Server messages

type SetSpeedPayload struct {
	Speed float64 `json:"speed"`
}

type ForwardPayload struct {
	Hours float64 `json:"hours"`
}

// Server -> Client messages

type SimStatePayload struct {
	State     string  `json:"state"`
	Time      string  `json:"time"`
	Speed     float64 `json:"speed"`
	Running   bool    `json:"running"`
	Progress  float64 `json:"progress"`
	CodeError string  `json:"code_error,omitempty"`
	Workload  float64 `json:"cu_overwrite_workload,omitempty"`
	Balance   float64 `json:"total_balance"`
}

type SamplePayload struct {
	SensorID  int     `json:"sensor_id"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Timestamp string  `json:"timestamp"`
}

type SensorInfo struct {
	ID       int    `json:"id"`
	DeviceID int    `json:"device_id"`
	Name     string `json:"name"`
	Key      string `json:"key"`
	Unit     string `json:"unit"`
}

type SensorsPayload struct {
	Sensors []SensorInfo `json:"sensors"`
}

// Message type constants
const (
	// Client -> Server
	TypeSimStart    = "sim:start"
	TypeSimStop     = "sim:stop"
	TypeSimSetSpeed = "sim:set_speed"
	TypeSimForward  = "sim:forward"

	// Server -> Client
	TypeSimState      = "sim:state"
	TypeSensorSamples = "sensor:samples"
	TypeSensors       = "data:sensors"
)

func NewEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

func SimStateFromStatus(s simulator.Status) SimStatePayload {
	p := SimStatePayload{
		State:    string(s.State),
		Time:     s.Time.UTC().Format(time.RFC3339),
		Speed:    s.Speed,
		Running:  s.State == simulator.StateRunning || s.State == simulator.StateForwarding,
		Progress: s.Progress,
		Balance:  s.Balance,
	}
	p.CodeError = s.CodeError
	if s.Decision != nil {
		p.Workload = s.Decision.CUOverwriteWorkload
	}
	return p
}

func SensorsFromModel(sensors []model.Sensor) SensorsPayload {
	out := make([]SensorInfo, 0, len(sensors))
	for _, s := range sensors {
		out = append(out, SensorInfo{
			ID:       s.ID,
			DeviceID: s.DeviceID,
			Name:     s.Name,
			Key:      s.Key,
			Unit:     s.Unit,
		})
	}
	return SensorsPayload{Sensors: out}
}

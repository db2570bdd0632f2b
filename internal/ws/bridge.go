package ws

import (
	"log/slog"
	"time"

	"ecocontrol/internal/model"
	"ecocontrol/internal/simulator"
)

// Bridge implements simulator.Callback and broadcasts events to the WebSocket hub.
type Bridge struct {
	hub   *Hub
	units map[int]string
}

func NewBridge(hub *Hub, sensors []model.Sensor) *Bridge {
	units := make(map[int]string, len(sensors))
	for _, s := range sensors {
		units[s.ID] = s.Unit
	}
	return &Bridge{hub: hub, units: units}
}

func (b *Bridge) OnStatus(s simulator.Status) {
	msg, err := NewEnvelope(TypeSimState, SimStateFromStatus(s))
	if err != nil {
		b.hub.logger.Error("marshaling sim state", slog.Any("err", err))
		return
	}
	b.hub.Broadcast(msg)
}

// OnSamples sends all samples of one tick as a single message.
func (b *Bridge) OnSamples(samples []model.Sample) {
	if len(samples) == 0 {
		return
	}
	payload := make([]SamplePayload, len(samples))
	for i, s := range samples {
		payload[i] = SamplePayload{
			SensorID:  s.SensorID,
			Value:     s.Value,
			Unit:      b.units[s.SensorID],
			Timestamp: s.Timestamp.UTC().Format(time.RFC3339),
		}
	}
	msg, err := NewEnvelope(TypeSensorSamples, payload)
	if err != nil {
		b.hub.logger.Error("marshaling samples", slog.Any("err", err))
		return
	}
	b.hub.Broadcast(msg)
}

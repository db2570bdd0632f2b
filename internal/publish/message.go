// Package publish forwards measured samples to message brokers.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ecocontrol/internal/model"
	"ecocontrol/internal/simulator"
)

// Message is the broker payload of one sample.
type Message struct {
	SensorID  int       `json:"sensor_id"`
	DeviceID  int       `json:"device_id"`
	Key       string    `json:"key"`
	Unit      string    `json:"unit,omitempty"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type catalog map[int]model.Sensor

func newCatalog(sensors []model.Sensor) catalog {
	c := make(catalog, len(sensors))
	for _, s := range sensors {
		c[s.ID] = s
	}
	return c
}

func (c catalog) message(s model.Sample) (Message, error) {
	sensor, ok := c[s.SensorID]
	if !ok {
		return Message{}, fmt.Errorf("no sensor %d", s.SensorID)
	}
	return Message{
		SensorID:  s.SensorID,
		DeviceID:  sensor.DeviceID,
		Key:       sensor.Key,
		Unit:      sensor.Unit,
		Value:     s.Value,
		Timestamp: s.Timestamp.UTC(),
	}, nil
}

func (c catalog) encode(s model.Sample) (Message, []byte, error) {
	msg, err := c.message(s)
	if err != nil {
		return Message{}, nil, err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return Message{}, nil, fmt.Errorf("encoding sample of sensor %d: %w", s.SensorID, err)
	}
	return msg, payload, nil
}

// Tee stores samples in every sink. All sinks are tried; their errors are
// joined.
func Tee(sinks ...simulator.SampleSink) simulator.SampleSink {
	return tee(sinks)
}

type tee []simulator.SampleSink

func (t tee) StoreSamples(ctx context.Context, samples []model.Sample) error {
	var errs []error
	for _, s := range t {
		if err := s.StoreSamples(ctx, samples); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

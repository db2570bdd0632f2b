package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ecocontrol/internal/model"
)

var ErrUnknownSensor = errors.New("unknown sensor")

// Repository persists the scenario definition and the measured samples.
type Repository interface {
	Devices(ctx context.Context) ([]model.Device, error)
	DeviceConfig(ctx context.Context) ([]model.ConfigEntry, error)
	SystemConfig(ctx context.Context) ([]model.ConfigEntry, error)
	// SaveConfig inserts or replaces entries keyed by device and key.
	SaveConfig(ctx context.Context, entries []model.ConfigEntry) error
	Sensors(ctx context.Context) ([]model.Sensor, error)
	LatestValue(ctx context.Context, sensorID int) (model.Sample, bool, error)
	StoreSamples(ctx context.Context, samples []model.Sample) error
	// SamplesInRange returns samples with start <= timestamp < end, oldest
	// first.
	SamplesInRange(ctx context.Context, sensorID int, start, end time.Time) ([]model.Sample, error)
}

type configKey struct {
	deviceID int
	key      string
}

// Memory holds the scenario and samples in memory, indexed by sensor ID.
type Memory struct {
	mu      sync.RWMutex
	devices []model.Device
	sensors map[int]model.Sensor
	config  []model.ConfigEntry
	index   map[configKey]int
	samples map[int][]model.Sample // keyed by sensor ID, sorted by timestamp
}

// NewMemory returns a store holding the given scenario.
func NewMemory(seed Seed) *Memory {
	m := &Memory{
		devices: append([]model.Device(nil), seed.Devices...),
		sensors: make(map[int]model.Sensor, len(seed.Sensors)),
		index:   make(map[configKey]int),
		samples: make(map[int][]model.Sample),
	}
	for _, s := range seed.Sensors {
		m.sensors[s.ID] = s
	}
	m.saveConfig(seed.DeviceConfig)
	m.saveConfig(seed.SystemConfig)
	return m
}

func (m *Memory) Devices(context.Context) ([]model.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Device(nil), m.devices...), nil
}

func (m *Memory) DeviceConfig(context.Context) ([]model.ConfigEntry, error) {
	return m.configWhere(func(e model.ConfigEntry) bool { return e.DeviceID != 0 }), nil
}

func (m *Memory) SystemConfig(context.Context) ([]model.ConfigEntry, error) {
	return m.configWhere(func(e model.ConfigEntry) bool { return e.DeviceID == 0 }), nil
}

func (m *Memory) configWhere(keep func(model.ConfigEntry) bool) []model.ConfigEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.ConfigEntry
	for _, e := range m.config {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (m *Memory) SaveConfig(_ context.Context, entries []model.ConfigEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveConfig(entries)
	return nil
}

func (m *Memory) saveConfig(entries []model.ConfigEntry) {
	for _, e := range entries {
		k := configKey{e.DeviceID, e.Key}
		if i, ok := m.index[k]; ok {
			m.config[i] = e
			continue
		}
		m.index[k] = len(m.config)
		m.config = append(m.config, e)
	}
}

// Sensors returns all registered sensors ordered by ID.
func (m *Memory) Sensors(context.Context) ([]model.Sensor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sensors := make([]model.Sensor, 0, len(m.sensors))
	for _, sensor := range m.sensors {
		sensors = append(sensors, sensor)
	}
	sort.Slice(sensors, func(i, j int) bool { return sensors[i].ID < sensors[j].ID })
	return sensors, nil
}

func (m *Memory) LatestValue(_ context.Context, sensorID int) (model.Sample, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.samples[sensorID]
	if len(all) == 0 {
		return model.Sample{}, false, nil
	}
	return all[len(all)-1], true, nil
}

// StoreSamples adds samples, then sorts every affected sensor by timestamp.
func (m *Memory) StoreSamples(_ context.Context, samples []model.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range samples {
		if _, ok := m.sensors[s.SensorID]; !ok {
			return fmt.Errorf("storing sample: %w %d", ErrUnknownSensor, s.SensorID)
		}
	}
	seen := make(map[int]bool)
	for _, s := range samples {
		m.samples[s.SensorID] = append(m.samples[s.SensorID], s)
		seen[s.SensorID] = true
	}
	for id := range seen {
		all := m.samples[id]
		sort.SliceStable(all, func(i, j int) bool {
			return all[i].Timestamp.Before(all[j].Timestamp)
		})
	}
	return nil
}

func (m *Memory) SamplesInRange(_ context.Context, sensorID int, start, end time.Time) ([]model.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.samples[sensorID]
	startIdx := sort.Search(len(all), func(i int) bool {
		return !all[i].Timestamp.Before(start)
	})
	endIdx := sort.Search(len(all), func(i int) bool {
		return !all[i].Timestamp.Before(end)
	})
	if startIdx >= endIdx {
		return nil, nil
	}

	result := make([]model.Sample, endIdx-startIdx)
	copy(result, all[startIdx:endIdx])
	return result, nil
}

// SampleCount returns the number of samples stored for a sensor.
func (m *Memory) SampleCount(sensorID int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.samples[sensorID])
}

// TimeRange returns the first and last timestamp stored for a sensor.
func (m *Memory) TimeRange(sensorID int) (model.TimeRange, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.samples[sensorID]
	if len(all) == 0 {
		return model.TimeRange{}, false
	}
	return model.TimeRange{
		Start: all[0].Timestamp,
		End:   all[len(all)-1].Timestamp,
	}, true
}

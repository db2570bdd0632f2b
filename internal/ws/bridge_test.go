package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecocontrol/internal/model"
	"ecocontrol/internal/simulator"
)

var (
	startTime   = time.Date(2013, 1, 1, 12, 0, 0, 0, time.UTC)
	testSensors = []model.Sensor{
		{ID: 1, DeviceID: 1, Name: "Temperature", Key: "temperature", Unit: "°C"},
		{ID: 4, DeviceID: 3, Name: "Workload", Key: "workload", Unit: "%"},
	}
)

func newTestBridge() (*Bridge, *Client) {
	hub := NewHub(nil, nil)
	client := &Client{hub: hub, send: make(chan []byte, 256)}
	hub.Register(client)
	return NewBridge(hub, testSensors), client
}

func receiveEnvelope(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case msg := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(msg, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Envelope{}
}

func TestBridge_OnStatus(t *testing.T) {
	bridge, client := newTestBridge()

	bridge.OnStatus(simulator.Status{
		State:     simulator.StateForwarding,
		Time:      startTime,
		Speed:     1800,
		Progress:  25,
		CodeError: "line 1: boom",
		Decision:  &simulator.Decision{CUOverwriteWorkload: 55},
		Balance:   12.5,
	})

	env := receiveEnvelope(t, client)
	assert.Equal(t, TypeSimState, env.Type)

	var p SimStatePayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, SimStatePayload{
		State:     "forwarding",
		Time:      "2013-01-01T12:00:00Z",
		Speed:     1800,
		Running:   true,
		Progress:  25,
		CodeError: "line 1: boom",
		Workload:  55,
		Balance:   12.5,
	}, p)
}

func TestBridge_OnSamples(t *testing.T) {
	bridge, client := newTestBridge()

	bridge.OnSamples(nil)
	assert.Len(t, client.send, 0)

	bridge.OnSamples([]model.Sample{
		{SensorID: 1, Value: 65.5, Timestamp: startTime},
		{SensorID: 4, Value: 80, Timestamp: startTime},
	})

	env := receiveEnvelope(t, client)
	assert.Equal(t, TypeSensorSamples, env.Type)

	var p []SamplePayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	require.Len(t, p, 2)
	assert.Equal(t, SamplePayload{SensorID: 1, Value: 65.5, Unit: "°C", Timestamp: "2013-01-01T12:00:00Z"}, p[0])
	assert.Equal(t, "%", p[1].Unit)
}

func TestBridgeIsCallback(t *testing.T) {
	var _ simulator.Callback = NewBridge(NewHub(nil, nil), nil)
}

package publish

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecocontrol/internal/metrics"
	"ecocontrol/internal/model"
)

var (
	quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))
	at       = time.Date(2013, 1, 1, 10, 0, 0, 0, time.UTC)
	sensors  = []model.Sensor{
		{ID: 1, DeviceID: 1, Key: "temperature", Unit: "°C"},
		{ID: 4, DeviceID: 3, Key: "workload", Unit: "%"},
	}
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (r *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msgs...)
	return nil
}

func (r *recordingWriter) Close() error {
	r.closed = true
	return nil
}

func TestKafka_StoreSamples(t *testing.T) {
	w := &recordingWriter{}
	m := metrics.New()
	k := newKafkaWithWriter(w, sensors, quietLog, m)

	err := k.StoreSamples(context.Background(), []model.Sample{
		{SensorID: 1, Value: 65.5, Timestamp: at},
		{SensorID: 4, Value: 80, Timestamp: at},
		{SensorID: 99, Value: 1, Timestamp: at},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)

	assert.Equal(t, "1", string(w.msgs[0].Key))
	assert.Equal(t, "4", string(w.msgs[1].Key))

	var msg Message
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &msg))
	assert.Equal(t, Message{SensorID: 1, DeviceID: 1, Key: "temperature", Unit: "°C", Value: 65.5, Timestamp: at}, msg)

	// one ok and one fail series
	count, err := testutil.GatherAndCount(m.Registry(), "ecocontrol_published_samples_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestKafka_WriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	k := newKafkaWithWriter(w, sensors, quietLog, nil)

	err := k.StoreSamples(context.Background(), []model.Sample{{SensorID: 1, Value: 1, Timestamp: at}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")

	assert.NoError(t, k.StoreSamples(context.Background(), nil))
}

func TestNewKafkaValidates(t *testing.T) {
	_, err := NewKafka(KafkaConfig{Brokers: []string{"localhost:9092"}}, sensors, quietLog, nil)
	assert.Error(t, err)
	_, err = NewKafka(KafkaConfig{Topic: "samples"}, sensors, quietLog, nil)
	assert.Error(t, err)
}

func TestNewKafkaWriterFlushesPerTick(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		want      int
	}{
		{"one message per sensor", len(sensors), 2},
		{"no sensors", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newKafkaWriter(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "samples", Acks: 1}, tt.batchSize)
			assert.Equal(t, tt.want, w.BatchSize)
			// the writer default of one second would throttle the demo to one tick per second
			assert.Equal(t, kafkaFlushTimeout, w.BatchTimeout)
			assert.Less(t, w.BatchTimeout, 100*time.Millisecond)
			assert.Equal(t, "samples", w.Topic)
			assert.Equal(t, kafka.RequireOne, w.RequiredAcks)
		})
	}
}

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

type recordingClient struct {
	sent []published
	err  error
}

func (c *recordingClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.sent = append(c.sent, published{topic, qos, retained, payload.([]byte)})
	return doneToken{err: c.err}
}

func TestMQTT_StoreSamples(t *testing.T) {
	c := &recordingClient{}
	p := newMQTTWithClient(MQTTConfig{TopicPrefix: "plant/", QoS: 1, Retain: true}, c, sensors, quietLog, nil)

	err := p.StoreSamples(context.Background(), []model.Sample{
		{SensorID: 1, Value: 65.5, Timestamp: at},
		{SensorID: 4, Value: 80, Timestamp: at},
	})
	require.NoError(t, err)
	require.Len(t, c.sent, 2)

	assert.Equal(t, "plant/1/temperature", c.sent[0].topic)
	assert.Equal(t, "plant/3/workload", c.sent[1].topic)
	assert.Equal(t, byte(1), c.sent[0].qos)
	assert.True(t, c.sent[0].retain)

	var msg Message
	require.NoError(t, json.Unmarshal(c.sent[1].payload, &msg))
	assert.Equal(t, 80.0, msg.Value)
}

func TestMQTT_DefaultPrefixAndError(t *testing.T) {
	c := &recordingClient{err: errors.New("not connected")}
	p := newMQTTWithClient(MQTTConfig{}, c, sensors, quietLog, nil)

	err := p.StoreSamples(context.Background(), []model.Sample{
		{SensorID: 1, Value: 1, Timestamp: at},
		{SensorID: 4, Value: 2, Timestamp: at},
	})
	require.Error(t, err)
	require.Len(t, c.sent, 1)
	assert.Equal(t, "ecocontrol/1/temperature", c.sent[0].topic)
}

type failingSink struct{ err error }

func (f failingSink) StoreSamples(context.Context, []model.Sample) error { return f.err }

func TestTee(t *testing.T) {
	w := &recordingWriter{}
	k := newKafkaWithWriter(w, sensors, quietLog, nil)
	boom := errors.New("boom")

	err := Tee(failingSink{err: boom}, k).StoreSamples(context.Background(), []model.Sample{{SensorID: 1, Value: 1, Timestamp: at}})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, w.msgs, 1)

	assert.NoError(t, Tee(k).StoreSamples(context.Background(), nil))
}

package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"ecocontrol/internal/metrics"
	"ecocontrol/internal/model"
)

// KafkaConfig selects the brokers and topic samples are written to.
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
	// Acks is the number of required acknowledgements, -1 for all.
	Acks int `json:"acks"`
}

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes every sample as one JSON message keyed by sensor ID, so the
// samples of a sensor stay in order on one partition.
type Kafka struct {
	writer  kafkaMessageWriter
	sensors catalog
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewKafka(cfg KafkaConfig, sensors []model.Sensor, log *slog.Logger, m *metrics.Metrics) (*Kafka, error) {
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka topic must not be empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	return newKafkaWithWriter(newKafkaWriter(cfg, len(sensors)), sensors, log, m), nil
}

// kafkaFlushTimeout bounds how long a partial batch waits. One tick
// produces a single batch of at most one message per sensor.
const kafkaFlushTimeout = 10 * time.Millisecond

func newKafkaWriter(cfg KafkaConfig, batchSize int) *kafka.Writer {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		RequiredAcks:           kafka.RequiredAcks(cfg.Acks),
		AllowAutoTopicCreation: true,
		Balancer:               &kafka.Hash{},
		BatchSize:              batchSize,
		BatchTimeout:           kafkaFlushTimeout,
	}
}

func newKafkaWithWriter(w kafkaMessageWriter, sensors []model.Sensor, log *slog.Logger, m *metrics.Metrics) *Kafka {
	if log == nil {
		log = slog.Default()
	}
	return &Kafka{
		writer:  w,
		sensors: newCatalog(sensors),
		log:     log.With(slog.String("component", "kafka_publisher")),
		metrics: m,
	}
}

func (k *Kafka) StoreSamples(ctx context.Context, samples []model.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(samples))
	for _, s := range samples {
		msg, payload, err := k.sensors.encode(s)
		if err != nil {
			k.metrics.Published("kafka", "fail", 1)
			k.log.Warn("skipping sample", slog.Any("err", err))
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.Itoa(msg.SensorID)),
			Value: payload,
			Time:  msg.Timestamp,
		})
	}
	if len(msgs) == 0 {
		return nil
	}

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		k.metrics.Published("kafka", "fail", len(msgs))
		return fmt.Errorf("writing %d samples to kafka: %w", len(msgs), err)
	}
	k.metrics.Published("kafka", "ok", len(msgs))
	k.log.Debug("published samples", slog.Int("count", len(msgs)))
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

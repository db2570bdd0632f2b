package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"ecocontrol/internal/metrics"
	"ecocontrol/internal/model"
)

// MQTTConfig selects the broker and topic layout. Samples go to
// <TopicPrefix>/<device id>/<sensor key>.
type MQTTConfig struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
	Retain      bool   `json:"retain"`
}

const mqttPublishTimeout = 5 * time.Second

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes samples to an MQTT broker.
type MQTT struct {
	cfg     MQTTConfig
	client  mqttPublisher
	sensors catalog
	log     *slog.Logger
	metrics *metrics.Metrics
}

// ConnectMQTT connects to the broker and keeps reconnecting in the
// background when the connection drops.
func ConnectMQTT(cfg MQTTConfig, sensors []model.Sensor, log *slog.Logger, m *metrics.Metrics) (*MQTT, mqtt.Client, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, nil, errors.New("mqtt broker must not be empty")
	}
	if log == nil {
		log = slog.Default()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", slog.Any("err", err))
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("connected to mqtt broker", slog.String("broker", cfg.Broker))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, nil, fmt.Errorf("connecting to mqtt broker %s: %w", cfg.Broker, token.Error())
	}
	return newMQTTWithClient(cfg, client, sensors, log, m), client, nil
}

func newMQTTWithClient(cfg MQTTConfig, client mqttPublisher, sensors []model.Sensor, log *slog.Logger, m *metrics.Metrics) *MQTT {
	if log == nil {
		log = slog.Default()
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "ecocontrol"
	}
	return &MQTT{
		cfg:     cfg,
		client:  client,
		sensors: newCatalog(sensors),
		log:     log.With(slog.String("component", "mqtt_publisher")),
		metrics: m,
	}
}

func (p *MQTT) topic(msg Message) string {
	return fmt.Sprintf("%s/%d/%s", strings.TrimSuffix(p.cfg.TopicPrefix, "/"), msg.DeviceID, msg.Key)
}

// StoreSamples publishes every sample and waits for each token. The first
// failure stops the batch.
func (p *MQTT) StoreSamples(ctx context.Context, samples []model.Sample) error {
	for i, s := range samples {
		if err := ctx.Err(); err != nil {
			p.metrics.Published("mqtt", "fail", len(samples)-i)
			return err
		}
		msg, payload, err := p.sensors.encode(s)
		if err != nil {
			p.metrics.Published("mqtt", "fail", 1)
			p.log.Warn("skipping sample", slog.Any("err", err))
			continue
		}

		topic := p.topic(msg)
		token := p.client.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload)
		if !token.WaitTimeout(mqttPublishTimeout) {
			p.metrics.Published("mqtt", "fail", len(samples)-i)
			return fmt.Errorf("publishing to %s: timed out", topic)
		}
		if err := token.Error(); err != nil {
			p.metrics.Published("mqtt", "fail", len(samples)-i)
			return fmt.Errorf("publishing to %s: %w", topic, err)
		}
		p.metrics.Published("mqtt", "ok", 1)
	}
	return nil
}

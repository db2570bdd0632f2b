// Package config loads the service configuration from a JSON file with
// environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"ecocontrol/internal/publish"
	"ecocontrol/internal/simulator"
	"ecocontrol/internal/weather"
)

// Config represents the configuration of the ecocontrol service.
type Config struct {
	// HTTP settings
	ListenAddr string `json:"listen_addr"`

	// Logging settings
	LogLevel  string `json:"log_level"`  // debug, info, warn, error
	LogFormat string `json:"log_format"` // text, json

	// Storage; the in-memory store is used when empty
	PostgresDSN string `json:"postgres_dsn"`

	// Simulation settings
	InitialTime   int64   `json:"initial_time"`   // Unix seconds of the first demo tick
	StepSize      int64   `json:"step_size"`      // simulated seconds per tick
	DemoSpeed     float64 `json:"demo_speed"`     // simulated seconds per wall clock second
	StartDemo     bool    `json:"start_demo"`     // start the live demo run on startup
	ForecastHours float64 `json:"forecast_hours"` // default horizon of forecast jobs
	UserCodeFile  string  `json:"user_code_file"`

	// Electrical demand history used to train the forecaster
	DemandCSV         string  `json:"demand_csv"`
	DemandSeparator   string  `json:"demand_separator"`
	DemandTimeColumn  string  `json:"demand_time_column"`
	DemandValueColumn string  `json:"demand_value_column"`
	DemandScale       float64 `json:"demand_scale"` // multiplied into every value, e.g. 0.001 for W to kW
	SamplesPerHour    int     `json:"samples_per_hour"`

	Weather WeatherConfig       `json:"weather"`
	Kafka   publish.KafkaConfig `json:"kafka"`
	MQTT    publish.MQTTConfig  `json:"mqtt"`
}

// WeatherConfig enables the remote forecast. Without it the thermal
// consumer uses the built-in climatology.
type WeatherConfig struct {
	Enabled   bool             `json:"enabled"`
	Location  weather.Location `json:"location"`
	UserAgent string           `json:"user_agent"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:        ":8080",
		LogLevel:          "info",
		LogFormat:         "text",
		InitialTime:       simulator.DefaultInitialTime,
		StepSize:          simulator.DefaultStepSize,
		DemoSpeed:         3600,
		ForecastHours:     14 * 24,
		DemandSeparator:   ",",
		DemandTimeColumn:  "timestamp",
		DemandValueColumn: "value",
		DemandScale:       1,
		SamplesPerHour:    1,
		Weather: WeatherConfig{
			Location:  weather.Location{Latitude: 52.52, Longitude: 13.405}, // Berlin
			UserAgent: "ecocontrol/1.0",
		},
		Kafka: publish.KafkaConfig{Topic: "ecocontrol.samples", Acks: -1},
		MQTT:  publish.MQTTConfig{ClientID: "ecocontrol", TopicPrefix: "ecocontrol"},
	}
}

// Load reads the JSON file at path (skipped when empty) on top of the
// defaults, then applies overrides from the process environment and from
// envFile. Process variables win over the file. A missing envFile is not an
// error.
func Load(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, err
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		var err error
		dotenv, err = godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFromReader decodes a JSON configuration on top of the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode config JSON: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"ECOCONTROL_LISTEN_ADDR":  &c.ListenAddr,
		"ECOCONTROL_LOG_LEVEL":    &c.LogLevel,
		"ECOCONTROL_LOG_FORMAT":   &c.LogFormat,
		"ECOCONTROL_POSTGRES_DSN": &c.PostgresDSN,
		"ECOCONTROL_USER_CODE":    &c.UserCodeFile,
		"ECOCONTROL_DEMAND_CSV":   &c.DemandCSV,
		"KAFKA_TOPIC":             &c.Kafka.Topic,
		"MQTT_BROKER":             &c.MQTT.Broker,
		"MQTT_USERNAME":           &c.MQTT.Username,
		"MQTT_PASSWORD":           &c.MQTT.Password,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	if v, ok := lookup("KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
	}
	if v, ok := lookup("ECOCONTROL_DEMO_SPEED"); ok {
		speed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("ECOCONTROL_DEMO_SPEED: %w", err)
		}
		c.DemoSpeed = speed
	}
	if v, ok := lookup("ECOCONTROL_START_DEMO"); ok {
		start, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ECOCONTROL_START_DEMO: %w", err)
		}
		c.StartDemo = start
	}
	return nil
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr cannot be empty")
	}
	if c.StepSize <= 0 {
		return fmt.Errorf("step_size must be greater than 0, got: %d", c.StepSize)
	}
	if c.DemoSpeed <= 0 {
		return fmt.Errorf("demo_speed must be greater than 0, got: %g", c.DemoSpeed)
	}
	if c.ForecastHours <= 0 {
		return fmt.Errorf("forecast_hours must be greater than 0, got: %g", c.ForecastHours)
	}
	if c.DemandCSV != "" && c.SamplesPerHour <= 0 {
		return fmt.Errorf("samples_per_hour must be greater than 0, got: %d", c.SamplesPerHour)
	}
	if c.DemandCSV != "" && (c.DemandTimeColumn == "" || c.DemandValueColumn == "") {
		return fmt.Errorf("demand_time_column and demand_value_column are required with demand_csv")
	}
	if len(c.DemandSeparator) != 1 {
		return fmt.Errorf("demand_separator must be a single character, got: %q", c.DemandSeparator)
	}
	return nil
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config JSON: %w", err)
	}
	return nil
}

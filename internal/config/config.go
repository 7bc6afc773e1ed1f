// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/smartbin/internal/retained"
	"github.com/relabs-tech/smartbin/internal/weight"
)

// Config holds all application configuration values.
type Config struct {
	MQTT     MQTTConfig      `yaml:"mqtt"`
	Topics   TopicsConfig    `yaml:"topics"`
	Channels []ChannelConfig `yaml:"channels"`
	Tare     TareConfig      `yaml:"tare"`
	Battery  BatteryConfig   `yaml:"battery"`
	Cycle    CycleConfig     `yaml:"cycle"`
	Retained RetainedConfig  `yaml:"retained"`
	Log      LogConfig       `yaml:"log"`
	Mock     MockConfig      `yaml:"mock"`
}

// MQTTConfig contains broker connection settings.
type MQTTConfig struct {
	Broker            string        `yaml:"broker"`
	ClientID          string        `yaml:"client_id"`
	ClientIDConsole   string        `yaml:"client_id_console"`
	ConnectRetryDelay time.Duration `yaml:"connect_retry_delay"` // fixed delay between connect attempts
	PublishTimeout    time.Duration `yaml:"publish_timeout"`
}

// TopicsConfig names the non per-channel topics.
type TopicsConfig struct {
	Total       string `yaml:"total"`
	Battery     string `yaml:"battery"`
	Tare        string `yaml:"tare"`
	TareConfirm string `yaml:"tare_confirm"`
}

// ChannelConfig describes one load cell: its HX711 pins, its topic and
// the calibration factor determined on the bench.
type ChannelConfig struct {
	Name              string  `yaml:"name"`
	Topic             string  `yaml:"topic"`
	DataPin           string  `yaml:"data_pin"`
	ClockPin          string  `yaml:"clock_pin"`
	CalibrationFactor float64 `yaml:"calibration_factor"`
}

// TareConfig contains zeroing and remote tare settings.
type TareConfig struct {
	Token        string `yaml:"token"`        // exact payload accepted on the tare topic
	Confirmation string `yaml:"confirmation"` // payload published after a remote tare
	Samples      int    `yaml:"samples"`      // raw reads averaged per channel when zeroing
}

// BatteryConfig contains the fuel gauge and indicator wiring.
type BatteryConfig struct {
	I2CBus     string `yaml:"i2c_bus"`
	GaugeAddr  uint16 `yaml:"gauge_addr"`
	IndicatorA string `yaml:"indicator_a_pin"` // green LED
	IndicatorB string `yaml:"indicator_b_pin"` // red LED
}

// CycleConfig contains wake cycle timing.
type CycleConfig struct {
	DefaultSleepHours float64       `yaml:"default_sleep_hours"`
	ListenIterations  int           `yaml:"listen_iterations"`
	ListenDelay       time.Duration `yaml:"listen_delay"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	ChannelTimeout    time.Duration `yaml:"channel_timeout"`
}

// RetainedConfig locates the record that survives sleep.
type RetainedConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging options.
type LogConfig struct {
	Debug      bool   `yaml:"debug"`
	SerialPort string `yaml:"serial_port"` // optional UART mirror of the log
	SerialBaud uint   `yaml:"serial_baud"`
}

// MockConfig drives the synthetic hardware used on the bench.
type MockConfig struct {
	Enabled bool      `yaml:"enabled"`
	LoadKg  []float64 `yaml:"load_kg"` // simulated mass per channel
	Noise   int32     `yaml:"noise"`   // raw counts of jitter
	Percent float64   `yaml:"percent"`
	Voltage float64   `yaml:"voltage"`
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through Get.
//   - configOnce: ensures InitGlobal() only runs once.
//   - configMu: protects concurrent access to globalConfig.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration of the stock bin wiring.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker:            "tcp://localhost:1883",
			ClientID:          "smartbin-node",
			ClientIDConsole:   "smartbin-console",
			ConnectRetryDelay: 5 * time.Second,
			PublishTimeout:    5 * time.Second,
		},
		Topics: TopicsConfig{
			Total:       "esp32/total",
			Battery:     "esp32/battery",
			Tare:        "esp32/tare",
			TareConfirm: "esp32/hastared",
		},
		Channels: []ChannelConfig{
			{Name: "one", Topic: "esp32/one", DataPin: "GPIO13", ClockPin: "GPIO12", CalibrationFactor: -17900},
			{Name: "two", Topic: "esp32/two", DataPin: "GPIO19", ClockPin: "GPIO5", CalibrationFactor: -18100},
			{Name: "three", Topic: "esp32/three", DataPin: "GPIO32", ClockPin: "GPIO33", CalibrationFactor: -17900},
			{Name: "four", Topic: "esp32/four", DataPin: "GPIO27", ClockPin: "GPIO14", CalibrationFactor: -17100},
		},
		Tare: TareConfig{
			Token:        "true",
			Confirmation: "Successfully tared!",
			Samples:      10,
		},
		Battery: BatteryConfig{
			I2CBus:     "",
			GaugeAddr:  0x36,
			IndicatorA: "GPIO15",
			IndicatorB: "GPIO2",
		},
		Cycle: CycleConfig{
			DefaultSleepHours: 1,
			ListenIterations:  10,
			ListenDelay:       100 * time.Millisecond,
			SettleDelay:       time.Second,
			ChannelTimeout:    time.Second,
		},
		Retained: RetainedConfig{
			Path: "/var/lib/smartbin/retained.bin",
		},
		Log: LogConfig{
			SerialBaud: 115200,
		},
		Mock: MockConfig{
			LoadKg:  []float64{0, 0, 0, 0},
			Noise:   20,
			Percent: 55,
			Voltage: 3.9,
		},
	}
}

// Load reads a YAML configuration file. A missing file yields the defaults;
// missing fields are filled from the defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.validate()
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ensureDefaults fills zero-valued fields from Default(). Load decodes onto
// Default(), so absent keys already hold their defaults; the delays are not
// touched here because zero is a valid setting for them.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.MQTT.Broker == "" {
		c.MQTT.Broker = def.MQTT.Broker
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.ClientIDConsole == "" {
		c.MQTT.ClientIDConsole = def.MQTT.ClientIDConsole
	}
	if c.MQTT.ConnectRetryDelay == 0 {
		c.MQTT.ConnectRetryDelay = def.MQTT.ConnectRetryDelay
	}
	if c.MQTT.PublishTimeout == 0 {
		c.MQTT.PublishTimeout = def.MQTT.PublishTimeout
	}

	if c.Topics.Total == "" {
		c.Topics.Total = def.Topics.Total
	}
	if c.Topics.Battery == "" {
		c.Topics.Battery = def.Topics.Battery
	}
	if c.Topics.Tare == "" {
		c.Topics.Tare = def.Topics.Tare
	}
	if c.Topics.TareConfirm == "" {
		c.Topics.TareConfirm = def.Topics.TareConfirm
	}

	if len(c.Channels) == 0 {
		c.Channels = def.Channels
	}
	for i := range c.Channels {
		if i >= len(def.Channels) {
			break
		}
		if c.Channels[i].Name == "" {
			c.Channels[i].Name = def.Channels[i].Name
		}
		if c.Channels[i].Topic == "" {
			c.Channels[i].Topic = def.Channels[i].Topic
		}
	}

	if c.Tare.Token == "" {
		c.Tare.Token = def.Tare.Token
	}
	if c.Tare.Confirmation == "" {
		c.Tare.Confirmation = def.Tare.Confirmation
	}
	if c.Tare.Samples == 0 {
		c.Tare.Samples = def.Tare.Samples
	}

	if c.Battery.GaugeAddr == 0 {
		c.Battery.GaugeAddr = def.Battery.GaugeAddr
	}
	if c.Battery.IndicatorA == "" {
		c.Battery.IndicatorA = def.Battery.IndicatorA
	}
	if c.Battery.IndicatorB == "" {
		c.Battery.IndicatorB = def.Battery.IndicatorB
	}

	if c.Cycle.DefaultSleepHours == 0 {
		c.Cycle.DefaultSleepHours = def.Cycle.DefaultSleepHours
	}
	if c.Cycle.ListenIterations == 0 {
		c.Cycle.ListenIterations = def.Cycle.ListenIterations
	}
	if c.Cycle.ChannelTimeout == 0 {
		c.Cycle.ChannelTimeout = def.Cycle.ChannelTimeout
	}

	if c.Retained.Path == "" {
		c.Retained.Path = def.Retained.Path
	}
	if c.Log.SerialBaud == 0 {
		c.Log.SerialBaud = def.Log.SerialBaud
	}
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if len(c.Channels) != weight.ChannelCount {
		return fmt.Errorf("exactly %d channels are required, got %d", weight.ChannelCount, len(c.Channels))
	}
	seen := make(map[string]bool, weight.ChannelCount+1)
	for i, ch := range c.Channels {
		if ch.CalibrationFactor == 0 || math.IsNaN(ch.CalibrationFactor) || math.IsInf(ch.CalibrationFactor, 0) {
			return fmt.Errorf("channel %d (%s): calibration_factor must be a finite non-zero number", i+1, ch.Name)
		}
		if ch.Topic == "" {
			return fmt.Errorf("channel %d (%s): topic is required", i+1, ch.Name)
		}
		if seen[ch.Topic] {
			return fmt.Errorf("channel %d (%s): topic %q is used twice", i+1, ch.Name, ch.Topic)
		}
		seen[ch.Topic] = true
	}
	if seen[c.Topics.Total] {
		return fmt.Errorf("topics.total %q collides with a channel topic", c.Topics.Total)
	}
	if c.Topics.Tare == c.Topics.TareConfirm {
		return fmt.Errorf("topics.tare and topics.tare_confirm must differ")
	}
	if c.Tare.Samples < 1 {
		return fmt.Errorf("tare.samples must be at least 1, got %d", c.Tare.Samples)
	}
	if !(c.Cycle.DefaultSleepHours > 0 && c.Cycle.DefaultSleepHours < retained.MaxSleepHours) {
		return fmt.Errorf("cycle.default_sleep_hours must be in (0, %.0f), got %v", retained.MaxSleepHours, c.Cycle.DefaultSleepHours)
	}
	if c.Cycle.ListenDelay < 0 || c.Cycle.SettleDelay < 0 {
		return fmt.Errorf("cycle delays must not be negative")
	}
	if c.Cycle.ListenIterations < 1 {
		return fmt.Errorf("cycle.listen_iterations must be at least 1, got %d", c.Cycle.ListenIterations)
	}
	if c.Mock.Enabled && len(c.Mock.LoadKg) != 0 && len(c.Mock.LoadKg) != weight.ChannelCount {
		return fmt.Errorf("mock.load_kg needs %d values, got %d", weight.ChannelCount, len(c.Mock.LoadKg))
	}
	return nil
}

// CalibrationFactors returns the per-channel gains in channel order.
func (c *Config) CalibrationFactors() [weight.ChannelCount]float64 {
	var out [weight.ChannelCount]float64
	for i := 0; i < weight.ChannelCount && i < len(c.Channels); i++ {
		out[i] = c.Channels[i].CalibrationFactor
	}
	return out
}

// ChannelTopics returns the per-channel topics in channel order.
func (c *Config) ChannelTopics() [weight.ChannelCount]string {
	var out [weight.ChannelCount]string
	for i := 0; i < weight.ChannelCount && i < len(c.Channels); i++ {
		out[i] = c.Channels[i].Topic
	}
	return out
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

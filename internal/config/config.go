// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads ldscope settings from an optional YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/ldscope/pkg/ld19"
)

// Config holds all ldscope configuration
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Simulator SimulatorConfig `yaml:"simulator"`

	path string
}

// SerialConfig selects the serial port the sensor is attached to
type SerialConfig struct {
	Port string `yaml:"port"` // e.g. /dev/ttyUSB0
	Baud int    `yaml:"baud"`
}

// WebSocketConfig selects a WebSocket bridge streaming raw sensor bytes
type WebSocketConfig struct {
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
}

// MQTTConfig configures record publication to a broker
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // e.g. tcp://localhost:1883
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
	Format   string `yaml:"format"` // "cbor" or "json"
}

// StorageConfig configures scan persistence
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// ServerConfig configures the WebSocket scan server
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// SimulatorConfig configures the synthetic sensor
type SimulatorConfig struct {
	RPM         float64 `yaml:"rpm"`
	HealthEvery int     `yaml:"health_every"` // measurement frames between health frames, 0 disables
}

// Default returns a config with the sensor's factory settings
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Baud: ld19.DefaultBaudRate,
		},
		MQTT: MQTTConfig{
			Topic:    "ldscope/scan",
			ClientID: "ldscope",
			QoS:      0,
			Format:   "cbor",
		},
		Storage: StorageConfig{
			DBPath: "ldscope.db",
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
		Simulator: SimulatorConfig{
			RPM:         60,
			HealthEvery: 100,
		},
	}
}

// Load reads config from a YAML file, then applies environment variable
// overrides. An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Printf("[config] no config at %s, using defaults", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
			log.Printf("[config] loaded from %s", path)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: LDSCOPE_PORT, LDSCOPE_BAUD, LDSCOPE_URL, LDSCOPE_USERNAME,
// LDSCOPE_MQTT_BROKER, LDSCOPE_MQTT_TOPIC, LDSCOPE_DB, LDSCOPE_LISTEN_ADDR
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LDSCOPE_PORT"); v != "" {
		c.Serial.Port = v
	}
	if v := os.Getenv("LDSCOPE_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Serial.Baud = n
		} else {
			log.Printf("[config] ignoring invalid LDSCOPE_BAUD %q", v)
		}
	}
	if v := os.Getenv("LDSCOPE_URL"); v != "" {
		c.WebSocket.URL = v
	}
	if v := os.Getenv("LDSCOPE_USERNAME"); v != "" {
		c.WebSocket.Username = v
	}
	if v := os.Getenv("LDSCOPE_MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("LDSCOPE_MQTT_TOPIC"); v != "" {
		c.MQTT.Topic = v
	}
	if v := os.Getenv("LDSCOPE_DB"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("LDSCOPE_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
}

// Validate checks that the config values are usable
func (c *Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Serial.Baud)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid MQTT QoS %d", c.MQTT.QoS)
	}
	if c.MQTT.Format != "cbor" && c.MQTT.Format != "json" {
		return fmt.Errorf("invalid MQTT format %q (want cbor or json)", c.MQTT.Format)
	}
	if c.Simulator.RPM <= 0 {
		return fmt.Errorf("invalid simulator RPM %.1f", c.Simulator.RPM)
	}
	if c.Simulator.HealthEvery < 0 {
		return fmt.Errorf("invalid simulator health_every %d", c.Simulator.HealthEvery)
	}
	return nil
}

// Path returns the file the config was loaded from or last saved to, or ""
// when it came from defaults and the environment only
func (c *Config) Path() string {
	return c.path
}

// Marshal encodes the config as YAML
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return data, nil
}

// Save writes the config to path as YAML. Later calls to Path return path.
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	c.path = path
	return nil
}

// Package config loads the reader configuration from YAML with environment overrides.
package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gregLibert/nfc-reader/internal/eventsink"
	"github.com/gregLibert/nfc-reader/pkg/contactless"
	"github.com/gregLibert/nfc-reader/pkg/iso7816"
	"github.com/gregLibert/nfc-reader/pkg/logging"
	"github.com/gregLibert/nfc-reader/pkg/pcsc"
)

// Config is the complete reader configuration.
type Config struct {
	Reader  ReaderConfig     `yaml:"reader"`
	Auth    AuthConfig       `yaml:"auth"`
	Read    ReadConfig       `yaml:"read"`
	Logging logging.Config   `yaml:"logging"`
	Metrics MetricsConfig    `yaml:"metrics"`
	MQTT    eventsink.Config `yaml:"mqtt"`
}

// ReaderConfig selects the reader and bounds status waits.
type ReaderConfig struct {
	// Supported is the model substring the first reader name must contain.
	Supported string `yaml:"supported"`
	// WaitTimeout bounds each status change wait. Zero waits forever.
	WaitTimeout time.Duration `yaml:"wait_timeout"`
}

// AuthConfig selects the key used to authenticate blocks.
type AuthConfig struct {
	KeyType string `yaml:"key_type"`
	KeySlot int    `yaml:"key_slot"`
	// Key is an optional 6-byte hex key loaded into KeySlot before authenticating.
	Key string `yaml:"key"`
}

// ReadConfig holds the ranges of the one-shot reads and the dump layout.
type ReadConfig struct {
	NDEFStart       int `yaml:"ndef_start"`
	NDEFLength      int `yaml:"ndef_length"`
	BlockWindow     int `yaml:"block_window"`
	Sectors         int `yaml:"sectors"`
	BlocksPerSector int `yaml:"blocks_per_sector"`
	BlockSize       int `yaml:"block_size"`
}

// MetricsConfig exposes Prometheus metrics while listening.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Reader: ReaderConfig{Supported: contactless.DefaultSupportedReader},
		Auth:   AuthConfig{KeyType: "B", KeySlot: 0},
		Read: ReadConfig{
			NDEFStart:       int(contactless.DefaultNDEFStartBlock),
			NDEFLength:      contactless.DefaultNDEFLength,
			BlockWindow:     contactless.DefaultBlockWindowSize,
			Sectors:         contactless.Classic1K.Sectors,
			BlocksPerSector: contactless.Classic1K.BlocksPerSector,
			BlockSize:       contactless.Classic1K.BlockSize,
		},
		Logging: logging.DefaultConfig(),
		Metrics: MetricsConfig{Listen: ":9100", Path: "/metrics"},
		MQTT:    eventsink.Config{Topic: eventsink.DefaultTopic},
	}
}

// Load reads configuration from a YAML file over the defaults and applies
// environment variable overrides. An empty path uses the defaults alone.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - Config file path is provided by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies NFC_READER_* environment variables to the configuration
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NFC_READER_SUPPORTED_READER"); v != "" {
		cfg.Reader.Supported = v
	}
	if v := os.Getenv("NFC_READER_WAIT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Printf("Warning: invalid NFC_READER_WAIT_TIMEOUT value %q, using %s: %v", v, cfg.Reader.WaitTimeout, err)
		} else {
			cfg.Reader.WaitTimeout = d
		}
	}

	if v := os.Getenv("NFC_READER_KEY_TYPE"); v != "" {
		cfg.Auth.KeyType = v
	}
	if v := os.Getenv("NFC_READER_KEY_SLOT"); v != "" {
		slot, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("Warning: invalid NFC_READER_KEY_SLOT value %q, using %d: %v", v, cfg.Auth.KeySlot, err)
		} else {
			cfg.Auth.KeySlot = slot
		}
	}
	if v := os.Getenv("NFC_READER_KEY"); v != "" {
		cfg.Auth.Key = v
	}

	if v := os.Getenv("NFC_READER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NFC_READER_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("NFC_READER_METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
		cfg.Metrics.Enabled = true
	}

	if v := os.Getenv("NFC_READER_MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv("NFC_READER_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			log.Printf("Warning: invalid NFC_READER_MQTT_PORT value %q, using %d", v, cfg.MQTT.Port)
		} else {
			cfg.MQTT.Port = port
		}
	}
	if v := os.Getenv("NFC_READER_MQTT_TOPIC"); v != "" {
		cfg.MQTT.Topic = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Reader.Supported == "" {
		return fmt.Errorf("reader.supported must not be empty")
	}
	if c.Reader.WaitTimeout < 0 {
		return fmt.Errorf("invalid reader.wait_timeout: %s", c.Reader.WaitTimeout)
	}

	if _, err := c.KeyConfig(); err != nil {
		return err
	}

	if c.Read.NDEFStart < 0 || c.Read.NDEFStart > 0xFFFF {
		return fmt.Errorf("invalid read.ndef_start: %d", c.Read.NDEFStart)
	}
	if c.Read.NDEFLength <= 0 {
		return fmt.Errorf("invalid read.ndef_length: %d", c.Read.NDEFLength)
	}
	if c.Read.BlockWindow <= 0 {
		return fmt.Errorf("invalid read.block_window: %d", c.Read.BlockWindow)
	}
	if err := c.Layout().Validate(); err != nil {
		return fmt.Errorf("invalid read layout: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging: %w", err)
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics are enabled")
	}
	if c.MQTT.Port < 0 || c.MQTT.Port > 65535 {
		return fmt.Errorf("invalid mqtt.port: %d", c.MQTT.Port)
	}
	if (c.MQTT.ClientCert == "") != (c.MQTT.ClientKey == "") {
		return fmt.Errorf("mqtt.client_cert and mqtt.client_key must be set together")
	}
	return nil
}

// KeyConfig converts the auth section.
func (c *Config) KeyConfig() (contactless.KeyConfig, error) {
	var k contactless.KeyConfig

	switch strings.ToUpper(strings.TrimSpace(c.Auth.KeyType)) {
	case "A":
		k.Type = iso7816.KeyTypeA
	case "B":
		k.Type = iso7816.KeyTypeB
	default:
		return k, fmt.Errorf("invalid auth.key_type: %q (must be A or B)", c.Auth.KeyType)
	}

	if c.Auth.KeySlot < 0 || c.Auth.KeySlot > 0xFF {
		return k, fmt.Errorf("invalid auth.key_slot: %d", c.Auth.KeySlot)
	}
	k.Slot = byte(c.Auth.KeySlot)

	if c.Auth.Key != "" {
		key, err := hex.DecodeString(strings.ReplaceAll(c.Auth.Key, " ", ""))
		if err != nil {
			return k, fmt.Errorf("invalid auth.key: %w", err)
		}
		if len(key) != iso7816.KeyLength {
			return k, fmt.Errorf("invalid auth.key: %d bytes, want %d", len(key), iso7816.KeyLength)
		}
		k.Key = key
	}
	return k, nil
}

// Layout returns the sector layout used by dumps.
func (c *Config) Layout() contactless.SectorLayout {
	return contactless.SectorLayout{
		Sectors:         c.Read.Sectors,
		BlocksPerSector: c.Read.BlocksPerSector,
		BlockSize:       c.Read.BlockSize,
	}
}

// Options returns the session options described by the configuration.
// The configuration must be valid.
func (c *Config) Options() []contactless.Option {
	keys, _ := c.KeyConfig()
	timeout := c.Reader.WaitTimeout
	if timeout == 0 {
		timeout = pcsc.Infinite
	}

	return []contactless.Option{
		contactless.WithSupportedReader(c.Reader.Supported),
		contactless.WithWaitTimeout(timeout),
		contactless.WithKeys(keys),
		contactless.WithNDEFRange(uint16(c.Read.NDEFStart), c.Read.NDEFLength),
		contactless.WithBlockWindow(c.Read.BlockWindow),
	}
}

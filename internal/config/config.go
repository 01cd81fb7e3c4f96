// YAML config loader with CUE validation integration
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"owl-traffic-gen/internal/random"
	"owl-traffic-gen/internal/sample"
)

// SampleConfig holds the constant fields stamped onto generated samples.
type SampleConfig struct {
	PhysicalLayer uint8   `yaml:"physical_layer"`
	ReceiverID    uint64  `yaml:"receiver_id"`
	RSS           float64 `yaml:"rss"`
}

// GreptimeConfig configures the optional GreptimeDB delivery mirror.
type GreptimeConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Database   string `yaml:"database"`
	Table      string `yaml:"table"`
	StateTable string `yaml:"state_table"`
}

// Config carries the tunables that are not part of the positional command
// line. Every field has a default; the file only overrides.
type Config struct {
	Jitter           float64        `yaml:"jitter"`
	ReconnectPause   time.Duration  `yaml:"reconnect_pause"`
	HandshakeTimeout time.Duration  `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration  `yaml:"write_timeout"`
	StateEvery       time.Duration  `yaml:"state_every"`
	LogLevel         string         `yaml:"log_level"`
	MetricsAddr      string         `yaml:"metrics_addr"`
	Sample           SampleConfig   `yaml:"sample"`
	Greptime         GreptimeConfig `yaml:"greptime"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Jitter:           random.DefaultJitter,
		ReconnectPause:   time.Second,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		StateEvery:       time.Second,
		LogLevel:         "info",
		Sample: SampleConfig{
			PhysicalLayer: sample.DefaultPhysicalLayer,
			ReceiverID:    sample.DefaultReceiverID,
			RSS:           float64(sample.DefaultRSS),
		},
		Greptime: GreptimeConfig{
			Database:   "public",
			Table:      "owl_samples",
			StateTable: "owl_generator_state",
		},
	}
}

// Template converts the sample section into a sample.Template.
func (c *Config) Template() sample.Template {
	return sample.Template{
		PhysicalLayer: c.Sample.PhysicalLayer,
		ReceiverID:    c.Sample.ReceiverID,
		RSS:           float32(c.Sample.RSS),
	}
}

// Load reads configPath over the defaults after validating it against the
// CUE schema at cueSchemaPath (or the embedded schema when empty). An empty
// configPath returns the defaults.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	cfg := Default()
	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	schema, err := readSchema(cueSchemaPath)
	if err != nil {
		return nil, err
	}
	if err := ValidateWithCue(configPath, data, schema); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal YAML config: %w", err)
	}
	return cfg, nil
}

func readSchema(path string) ([]byte, error) {
	if path == "" {
		return embeddedSchema, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read CUE schema: %w", err)
	}
	return b, nil
}

// Package config loads service configuration from a YAML file and
// environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/c360/guildflow/errors"
)

// Config holds the full service configuration.
type Config struct {
	NATS    NATSConfig    `yaml:"nats"`
	Store   StoreConfig   `yaml:"store"`
	Engine  EngineConfig  `yaml:"engine"`
	Ingress IngressConfig `yaml:"ingress"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	URL      string `yaml:"url" env:"GUILDFLOW_NATS_URL" env-default:"nats://localhost:4222"`
	Name     string `yaml:"name" env:"GUILDFLOW_NATS_NAME" env-default:"guildflow"`
	Username string `yaml:"username" env:"GUILDFLOW_NATS_USERNAME"`
	Password string `yaml:"password" env:"GUILDFLOW_NATS_PASSWORD"`
	Token    string `yaml:"token" env:"GUILDFLOW_NATS_TOKEN"`
}

// StoreConfig configures the JetStream KV state store.
type StoreConfig struct {
	BucketPrefix string `yaml:"bucket_prefix" env:"GUILDFLOW_STORE_BUCKET_PREFIX" env-default:"guildflow"`
}

// EngineConfig configures pipeline behavior.
type EngineConfig struct {
	StopOnFirstFire bool `yaml:"stop_on_first_fire" env:"GUILDFLOW_ENGINE_STOP_ON_FIRST_FIRE" env-default:"false"`
}

// IngressConfig configures event intake.
type IngressConfig struct {
	SubjectBase string `yaml:"subject_base" env:"GUILDFLOW_INGRESS_SUBJECT_BASE" env-default:"guild.events"`
	Workers     int    `yaml:"workers" env:"GUILDFLOW_INGRESS_WORKERS" env-default:"8"`
	QueueSize   int    `yaml:"queue_size" env:"GUILDFLOW_INGRESS_QUEUE_SIZE" env-default:"1024"`
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"GUILDFLOW_METRICS_ENABLED" env-default:"true"`
	Address string `yaml:"address" env:"GUILDFLOW_METRICS_ADDRESS" env-default:":9090"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" env:"GUILDFLOW_LOG_LEVEL" env-default:"info"`
}

// Load reads configuration from the given YAML file, if present, then
// applies environment overrides. An empty path loads from environment
// and defaults only.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, errors.WrapInvalid(err, "config", "Load", fmt.Sprintf("read %s", path))
			}
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			return &cfg, nil
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "read environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.WrapInvalid(fmt.Errorf("nats url cannot be empty"), "config", "Validate", "check nats")
	}
	if c.Store.BucketPrefix == "" {
		return errors.WrapInvalid(fmt.Errorf("store bucket prefix cannot be empty"), "config", "Validate", "check store")
	}
	if strings.ContainsAny(c.Store.BucketPrefix, ". *>") {
		return errors.WrapInvalid(fmt.Errorf("store bucket prefix %q contains invalid characters", c.Store.BucketPrefix), "config", "Validate", "check store")
	}
	if c.Ingress.SubjectBase == "" {
		return errors.WrapInvalid(fmt.Errorf("ingress subject base cannot be empty"), "config", "Validate", "check ingress")
	}
	if c.Ingress.Workers <= 0 {
		return errors.WrapInvalid(fmt.Errorf("ingress workers must be positive, got %d", c.Ingress.Workers), "config", "Validate", "check ingress")
	}
	if c.Ingress.QueueSize <= 0 {
		return errors.WrapInvalid(fmt.Errorf("ingress queue size must be positive, got %d", c.Ingress.QueueSize), "config", "Validate", "check ingress")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses the configured log level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, errors.WrapInvalid(fmt.Errorf("unknown log level %q", c.Log.Level), "config", "SlogLevel", "parse level")
	}
}

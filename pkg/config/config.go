package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`
	Store struct {
		Root string `yaml:"root" validate:"required"`
	} `yaml:"store"`
	Provider struct {
		// Requests per window the provider states; we use a fraction of it.
		RequestLimit   int           `yaml:"request_limit" default:"60" validate:"gte=1"`
		Window         time.Duration `yaml:"window" default:"1m"`
		SafetyFraction float64       `yaml:"safety_fraction" default:"0.9" validate:"gt=0,lte=1"`
		ConnectTimeout time.Duration `yaml:"connect_timeout" default:"10s"`
	} `yaml:"provider"`
	Fetch struct {
		MaxAttempts    int           `yaml:"max_attempts" default:"3" validate:"gte=1"`
		BaseDelay      time.Duration `yaml:"base_delay" default:"2s"`
		AttemptTimeout time.Duration `yaml:"attempt_timeout" default:"120s"`
		DescriptorTTL  time.Duration `yaml:"descriptor_ttl" default:"10m"`
	} `yaml:"fetch"`
	Preheat struct {
		Concurrency int             `yaml:"concurrency" default:"2" validate:"gte=1"`
		Targets     []PreheatTarget `yaml:"targets"`
	} `yaml:"preheat"`
}

// PreheatTarget names one series to warm at startup.
type PreheatTarget struct {
	Instrument string `yaml:"instrument" validate:"required"`
	Timeframe  string `yaml:"timeframe"`
	Start      string `yaml:"start" validate:"required"`
	End        string `yaml:"end" validate:"required"`
}

// Load reads and parses a YAML configuration file, applies defaults and
// validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply config defaults: %w", err)
	}
	if err := validator.New().Struct(&c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment
// variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if v := os.Getenv("BARPULL_STORE_ROOT"); v != "" {
		c.Store.Root = v
	}
	if v := os.Getenv("BARPULL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return c, nil
}

// Package config loads the tunables of a notification core from the environment, a .env file
// or a YAML/TOML file, and turns them into notify and redeliver options.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/AntonStoeckl/notification-dispatch-go/notify"
	"github.com/AntonStoeckl/notification-dispatch-go/redeliver"
)

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into Config.
	ErrParsingConfig = errors.New("failed to parse environment variables into config")

	// ErrLoadingEnvFile is returned when a given .env file cannot be loaded.
	ErrLoadingEnvFile = errors.New("failed to load env file")

	// ErrReadingConfigFile is returned when a config file cannot be read or decoded.
	ErrReadingConfigFile = errors.New("failed to read config file")

	// ErrUnsupportedConfigFile is returned for config files that are neither YAML nor TOML.
	ErrUnsupportedConfigFile = errors.New("unsupported config file extension")

	// ErrInvalidConfig is returned by Validate, joined with the violations found.
	ErrInvalidConfig = errors.New("invalid config")
)

// Config holds the tunables of a notification core. Zero durations disable the respective feature.
type Config struct {
	ObserverTimeout       time.Duration `env:"NOTIFY_OBSERVER_TIMEOUT" envDefault:"0s"`
	RedeliveryMaxAttempts int           `env:"NOTIFY_REDELIVERY_MAX_ATTEMPTS" envDefault:"3"`
	RedeliveryBaseDelay   time.Duration `env:"NOTIFY_REDELIVERY_BASE_DELAY" envDefault:"10ms"`
	RedeliveryMaxDelay    time.Duration `env:"NOTIFY_REDELIVERY_MAX_DELAY" envDefault:"30s"`
	RedeliveryJitter      float64       `env:"NOTIFY_REDELIVERY_JITTER" envDefault:"0.3"`
	LogLevel              string        `env:"NOTIFY_LOG_LEVEL" envDefault:"info"`
}

// fileConfig is the on-disk shape of Config. Durations are strings like "250ms".
type fileConfig struct {
	ObserverTimeout string `yaml:"observer_timeout" toml:"observer_timeout"`
	Redelivery      struct {
		MaxAttempts *int     `yaml:"max_attempts" toml:"max_attempts"`
		BaseDelay   string   `yaml:"base_delay" toml:"base_delay"`
		MaxDelay    string   `yaml:"max_delay" toml:"max_delay"`
		Jitter      *float64 `yaml:"jitter" toml:"jitter"`
	} `yaml:"redelivery" toml:"redelivery"`
	LogLevel string `yaml:"log_level" toml:"log_level"`
}

// Defaults returns the Config used when nothing is configured.
func Defaults() Config {
	var cfg Config
	_ = env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}})

	return cfg
}

// FromEnv parses Config from the process environment, falling back to Defaults per variable.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}

	return cfg, nil
}

// FromEnvFiles loads the given .env files into the environment, then calls FromEnv.
// Variables already set in the environment win over the files. Without paths, ".env" is loaded if present.
func FromEnvFiles(paths ...string) (Config, error) {
	if len(paths) == 0 {
		_ = godotenv.Load()
		return FromEnv()
	}

	if err := godotenv.Load(paths...); err != nil {
		return Config{}, errors.Join(ErrLoadingEnvFile, err)
	}

	return FromEnv()
}

// FromFile reads Config from a .yaml, .yml or .toml file. Keys missing in the file keep their defaults.
func FromFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Join(ErrReadingConfigFile, err)
	}

	var fc fileConfig

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &fc)
	case ".toml":
		err = toml.Unmarshal(raw, &fc)
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedConfigFile, ext)
	}

	if err != nil {
		return Config{}, errors.Join(ErrReadingConfigFile, err)
	}

	return fc.toConfig()
}

func (fc fileConfig) toConfig() (Config, error) {
	cfg := Defaults()

	if err := parseDurationInto(&cfg.ObserverTimeout, "observer_timeout", fc.ObserverTimeout); err != nil {
		return Config{}, err
	}

	if err := parseDurationInto(&cfg.RedeliveryBaseDelay, "redelivery.base_delay", fc.Redelivery.BaseDelay); err != nil {
		return Config{}, err
	}

	if err := parseDurationInto(&cfg.RedeliveryMaxDelay, "redelivery.max_delay", fc.Redelivery.MaxDelay); err != nil {
		return Config{}, err
	}

	if fc.Redelivery.MaxAttempts != nil {
		cfg.RedeliveryMaxAttempts = *fc.Redelivery.MaxAttempts
	}

	if fc.Redelivery.Jitter != nil {
		cfg.RedeliveryJitter = *fc.Redelivery.Jitter
	}

	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}

	return cfg, nil
}

func parseDurationInto(target *time.Duration, key, value string) error {
	if value == "" {
		return nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return errors.Join(ErrReadingConfigFile, fmt.Errorf("%s: %w", key, err))
	}

	*target = d

	return nil
}

// Validate reports all invalid values at once, joined with ErrInvalidConfig.
func (c Config) Validate() error {
	var violations []error

	if c.ObserverTimeout < 0 {
		violations = append(violations, notify.ErrNegativeObserverTimeout)
	}

	if c.RedeliveryMaxAttempts <= 0 {
		violations = append(violations, redeliver.ErrInvalidMaxAttempts)
	}

	if c.RedeliveryBaseDelay < 0 {
		violations = append(violations, redeliver.ErrNegativeBaseDelay)
	}

	if c.RedeliveryMaxDelay <= 0 {
		violations = append(violations, redeliver.ErrInvalidMaxDelay)
	}

	if c.RedeliveryJitter < 0 || c.RedeliveryJitter > 1 {
		violations = append(violations, redeliver.ErrInvalidJitterFactor)
	}

	if _, err := c.level(); err != nil {
		violations = append(violations, err)
	}

	if len(violations) == 0 {
		return nil
	}

	return errors.Join(append([]error{ErrInvalidConfig}, violations...)...)
}

// NotifierOptions returns the notify options for c. A nil logger leaves the core silent.
func (c Config) NotifierOptions(logger *slog.Logger) []notify.Option {
	options := []notify.Option{notify.WithObserverTimeout(c.ObserverTimeout)}

	if logger != nil {
		options = append(options, notify.WithLogger(logger))
	}

	return options
}

// RedeliveryOptions returns the redeliver options for c.
func (c Config) RedeliveryOptions() []redeliver.Option {
	return []redeliver.Option{
		redeliver.WithMaxAttempts(c.RedeliveryMaxAttempts),
		redeliver.WithBaseDelay(c.RedeliveryBaseDelay),
		redeliver.WithMaxDelay(c.RedeliveryMaxDelay),
		redeliver.WithJitterFactor(c.RedeliveryJitter),
	}
}

// NewLogger creates a JSON slog.Logger writing to w at the configured level.
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := c.level()
	if err != nil {
		return nil, err
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
}

func (c Config) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}

	return level, nil
}

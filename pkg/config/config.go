package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/dbehnke/turbocodec/pkg/codec"
)

// Config represents the application configuration
type Config struct {
	Codec   CodecConfig   `mapstructure:"codec"`
	Web     WebConfig     `mapstructure:"web"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Stats   StatsConfig   `mapstructure:"stats"`
}

// CodecConfig holds turbo code parameters. Polynomials are octal strings
// so that "7" and "5" read the way they are written in coding literature.
type CodecConfig struct {
	ConstraintLength int      `mapstructure:"constraint_length"`
	Iterations       int      `mapstructure:"iterations"`
	Generators       []string `mapstructure:"generators"`
	Feedback         string   `mapstructure:"feedback"`
	Seed             uint64   `mapstructure:"seed"`
	Interleaver      string   `mapstructure:"interleaver"`
	Workers          int      `mapstructure:"workers"` // 0 = GOMAXPROCS
}

// WebConfig holds HTTP service configuration
type WebConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`

	// MaxMessageBytes caps the message accepted for encoding and the size
	// a decode packet header may declare.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes"`
	MaxConcurrent   int   `mapstructure:"max_concurrent"` // 0 = GOMAXPROCS
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig holds Prometheus metrics configuration. The handler is
// mounted on the web router.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// StatsConfig controls the periodic statistics report.
type StatsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"` // cron expression or @every descriptor
}

// Load loads configuration from file and TURBO_ environment variables.
// An empty configFile searches ./, ./configs and /etc/turbocodec for
// config.yaml; a missing file leaves the defaults in place.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/turbocodec")
	}

	// TURBO_CODEC_ITERATIONS overrides codec.iterations
	v.SetEnvPrefix("TURBO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(fmt.Sprintf("config defaults invalid: %v", err))
	}
	return cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Codec defaults
	v.SetDefault("codec.constraint_length", 3)
	v.SetDefault("codec.iterations", 8)
	v.SetDefault("codec.generators", []string{"7", "5"})
	v.SetDefault("codec.feedback", "7")
	v.SetDefault("codec.seed", 1346)
	v.SetDefault("codec.interleaver", "mt19937")
	v.SetDefault("codec.workers", 0)

	// Web defaults
	v.SetDefault("web.enabled", true)
	v.SetDefault("web.host", "0.0.0.0")
	v.SetDefault("web.port", 8080)
	v.SetDefault("web.max_body_bytes", 1<<16)
	v.SetDefault("web.max_message_bytes", 1<<14)
	v.SetDefault("web.max_concurrent", 0)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.path", "/metrics")

	// Stats defaults
	v.SetDefault("stats.enabled", true)
	v.SetDefault("stats.schedule", "@every 1m")
}

// ToCodec converts the file representation into codec.Config.
func (c CodecConfig) ToCodec() (codec.Config, error) {
	generators := make([]uint32, len(c.Generators))
	for i, g := range c.Generators {
		poly, err := parseOctal(g)
		if err != nil {
			return codec.Config{}, fmt.Errorf("generators[%d]: %w", i, err)
		}
		generators[i] = poly
	}

	feedback, err := parseOctal(c.Feedback)
	if err != nil {
		return codec.Config{}, fmt.Errorf("feedback: %w", err)
	}

	return codec.Config{
		ConstraintLength: c.ConstraintLength,
		Iterations:       c.Iterations,
		Generators:       generators,
		Feedback:         feedback,
		Seed:             c.Seed,
		Interleaver:      c.Interleaver,
		Workers:          c.Workers,
	}, nil
}

// parseOctal accepts "7", "07" and "0o7".
func parseOctal(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0o")
	if s == "" {
		return 0, fmt.Errorf("empty polynomial")
	}
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid octal polynomial %q", s)
	}
	return uint32(v), nil
}

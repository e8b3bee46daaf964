package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/dbehnke/turbocodec/pkg/turbo"
)

// validate validates the configuration
func validate(config *Config) error {
	if err := validateCodec(&config.Codec); err != nil {
		return fmt.Errorf("codec config: %w", err)
	}

	if err := validateWeb(&config.Web); err != nil {
		return fmt.Errorf("web config: %w", err)
	}

	if err := validateLogging(&config.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := validateMetrics(&config.Metrics); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := validateStats(&config.Stats); err != nil {
		return fmt.Errorf("stats config: %w", err)
	}

	return nil
}

// validateCodec builds the trellis, decoder and a one-element interleaver
// so that configuration errors surface at load time with the field name.
func validateCodec(config *CodecConfig) error {
	cfg, err := config.ToCodec()
	if err != nil {
		return err
	}

	if config.Workers < 0 {
		return fmt.Errorf("workers cannot be negative")
	}

	t, err := turbo.NewTrellis(cfg.ConstraintLength, cfg.Generators, cfg.Feedback)
	if err != nil {
		return err
	}
	if _, err := turbo.NewDecoder(t, cfg.Iterations); err != nil {
		return err
	}

	alg, err := turbo.ParseAlgorithm(cfg.Interleaver)
	if err != nil {
		return err
	}
	_, err = turbo.NewInterleaver(1, cfg.Seed, alg)
	return err
}

// validateWeb validates web configuration
func validateWeb(config *WebConfig) error {
	if !config.Enabled {
		return nil
	}

	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("invalid port: %d", config.Port)
	}

	if config.MaxBodyBytes < 1 {
		return fmt.Errorf("max_body_bytes must be at least 1")
	}

	if config.MaxMessageBytes < 1 {
		return fmt.Errorf("max_message_bytes must be at least 1")
	}

	if config.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent must not be negative")
	}

	return nil
}

// validateLogging validates logging configuration
func validateLogging(config *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, config.Level) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)",
			config.Level, strings.Join(validLevels, ", "))
	}

	validFormats := []string{"text", "json"}
	if !contains(validFormats, config.Format) {
		return fmt.Errorf("invalid log format: %s (must be one of: %s)",
			config.Format, strings.Join(validFormats, ", "))
	}

	if config.MaxSize < 1 {
		return fmt.Errorf("max_size must be at least 1")
	}

	if config.MaxBackups < 0 {
		return fmt.Errorf("max_backups cannot be negative")
	}

	if config.MaxAge < 0 {
		return fmt.Errorf("max_age cannot be negative")
	}

	return nil
}

// validateMetrics validates metrics configuration
func validateMetrics(config *MetricsConfig) error {
	if !config.Enabled {
		return nil
	}

	if config.Prometheus.Enabled {
		if config.Prometheus.Path == "" {
			return fmt.Errorf("prometheus path cannot be empty")
		}

		if !strings.HasPrefix(config.Prometheus.Path, "/") {
			return fmt.Errorf("prometheus path must start with /")
		}

		if strings.HasPrefix(config.Prometheus.Path, "/api/") || config.Prometheus.Path == "/ws" {
			return fmt.Errorf("prometheus path %s collides with a service route", config.Prometheus.Path)
		}
	}

	return nil
}

func validateStats(config *StatsConfig) error {
	if !config.Enabled {
		return nil
	}

	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", config.Schedule, err)
	}

	return nil
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

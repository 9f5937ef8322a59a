// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config loads imagedeleterd's configuration: one domain key,
// retry_interval_seconds, plus the ambient logging and metrics knobs
// every daemon in this shape carries.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/viper"
)

// Config is imagedeleterd's complete configuration.
type Config struct {
	EntityUUID string        `mapstructure:"entity_uuid" yaml:"entity_uuid"`
	Retry      RetryConfig   `mapstructure:"retry"       yaml:"retry"`
	Log        LogConfig     `mapstructure:"log"         yaml:"log"`
	Metrics    MetricsConfig `mapstructure:"metrics"     yaml:"metrics"`
}

// RetryConfig holds the single domain key spec.md §6 names.
type RetryConfig struct {
	IntervalSeconds float64 `mapstructure:"interval_seconds" yaml:"interval_seconds"`
}

// Interval returns Retry.IntervalSeconds as a time.Duration.
func (r RetryConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds * float64(time.Second))
}

// LogConfig controls the loggo level imagedeleterd runs at.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// MetricsConfig controls the prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr"    yaml:"addr"`
}

// Load reads configPath (if it exists) and overlays IMAGEDELETERD_*
// environment variables, falling back to defaults for anything unset.
// A missing config file is not an error: the defaults alone are a
// valid configuration.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("IMAGEDELETERD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, errors.Annotatef(err, "failed to read config file %s", configPath)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Annotate(err, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Annotate(err, "config validation failed")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("entity_uuid", "")
	v.SetDefault("retry.interval_seconds", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9283")
}

// Validate checks invariants Load's defaults alone can't guarantee,
// e.g. after an env override supplies a bad value.
func (c *Config) Validate() error {
	if c.Retry.IntervalSeconds <= 0 {
		return errors.NotValidf("retry.interval_seconds %v", c.Retry.IntervalSeconds)
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Addr) == "" {
		return errors.NotValidf("metrics.addr (required when metrics.enabled is true)")
	}
	return nil
}

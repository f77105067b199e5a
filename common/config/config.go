// Package config provides the configuration shared by every HoistwayWatch
// process: NATS connection, logging and the metrics listener.
//
// Precedence, highest first: command-line flag, HW_* environment variable,
// config file, default.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	natsclient "github.com/joshuaworth/hoistwaywatch/common/messaging/nats"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "HW"

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL              string        `mapstructure:"url"`
	Token            string        `mapstructure:"token"`
	MaxReconnects    int           `mapstructure:"max_reconnects"`
	ReconnectWait    time.Duration `mapstructure:"reconnect_wait"`
	MaxReconnectWait time.Duration `mapstructure:"max_reconnect_wait"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// ClientConfig converts the settings into a NATS client configuration.
func (n NATSConfig) ClientConfig(name string, logger *slog.Logger) natsclient.Config {
	return natsclient.Config{
		URL:              n.URL,
		Name:             name,
		MaxReconnects:    n.MaxReconnects,
		ReconnectWait:    n.ReconnectWait,
		MaxReconnectWait: n.MaxReconnectWait,
		Timeout:          n.Timeout,
		Token:            n.Token,
		Logger:           logger,
	}
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds the ops listener configuration. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Validate checks the shared settings.
func (n NATSConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(n.URL) == "" {
		errs = append(errs, errors.New("nats.url is required"))
	}
	if n.ReconnectWait < 0 || n.MaxReconnectWait < 0 {
		errs = append(errs, errors.New("nats reconnect waits must not be negative"))
	}
	return errors.Join(errs...)
}

// New returns a viper instance with the HW_ environment prefix and the
// shared defaults and env bindings applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetCommonDefaults(v)
	BindCommonEnv(v)
	return v
}

// SetCommonDefaults sets defaults for the shared sections.
func SetCommonDefaults(v *viper.Viper) {
	defaults := natsclient.DefaultConfig()

	v.SetDefault("nats.url", defaults.URL)
	v.SetDefault("nats.token", "")
	v.SetDefault("nats.max_reconnects", defaults.MaxReconnects)
	v.SetDefault("nats.reconnect_wait", defaults.ReconnectWait)
	v.SetDefault("nats.max_reconnect_wait", defaults.MaxReconnectWait)
	v.SetDefault("nats.timeout", defaults.Timeout)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.addr", "")
}

// BindCommonEnv binds the documented short environment names, which do not
// follow the section.key layout.
func BindCommonEnv(v *viper.Viper) {
	_ = v.BindEnv("nats.url", "HW_NATS_URL")
	_ = v.BindEnv("nats.token", "HW_NATS_TOKEN")
	_ = v.BindEnv("logging.level", "HW_LOG_LEVEL")
	_ = v.BindEnv("logging.format", "HW_LOG_FORMAT")
	_ = v.BindEnv("metrics.addr", "HW_METRICS_ADDR")
}

// ReadFile merges an optional YAML config file. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// BindFlags binds config keys to command-line flags. Only flags the user set
// override lower layers; unknown flag names are an error.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("unknown flag --%s for %s", name, key)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// CommonFlags registers the shared flags on a command's flag set and returns
// their config keys for BindFlags.
func CommonFlags(flags *pflag.FlagSet) map[string]string {
	flags.String("nats-url", "", "NATS server URL (env HW_NATS_URL)")
	flags.String("log-level", "", "log level: debug, info, warn, error (env HW_LOG_LEVEL)")
	flags.String("log-format", "", "log format: json or text (env HW_LOG_FORMAT)")
	flags.String("metrics-addr", "", "ops listener address for /healthz and /metrics (env HW_METRICS_ADDR)")
	return map[string]string{
		"nats.url":       "nats-url",
		"logging.level":  "log-level",
		"logging.format": "log-format",
		"metrics.addr":   "metrics-addr",
	}
}

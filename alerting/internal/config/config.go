// Package config loads the alert sink configuration.
package config

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/spf13/pflag"

	common "github.com/joshuaworth/hoistwaywatch/common/config"
	"github.com/joshuaworth/hoistwaywatch/common/messaging"
)

// Config holds all configuration for the alert sink.
type Config struct {
	NATS    common.NATSConfig    `mapstructure:"nats"`
	Alerts  AlertsConfig         `mapstructure:"alerts"`
	Logging common.LoggingConfig `mapstructure:"logging"`
	Metrics common.MetricsConfig `mapstructure:"metrics"`
}

// AlertsConfig controls alert intake and side effects.
type AlertsConfig struct {
	Sub         string        `mapstructure:"sub"`
	Queue       string        `mapstructure:"queue"`
	Log         string        `mapstructure:"log"`
	Exec        string        `mapstructure:"exec"`
	ExecTimeout time.Duration `mapstructure:"exec_timeout"`
	Echo        bool          `mapstructure:"echo"`

	// Durable consumes from the alerts JetStream stream instead of a core
	// subscription.
	Durable  bool   `mapstructure:"durable"`
	Consumer string `mapstructure:"consumer"`
}

// RegisterFlags adds the alert sink flags and returns their config keys.
func RegisterFlags(flags *pflag.FlagSet) map[string]string {
	keys := common.CommonFlags(flags)
	flags.String("sub", "", "alert subject to subscribe (env HW_ALERTS_SUB)")
	flags.String("queue", "", "queue group; empty fans out (env HW_ALERTS_QUEUE)")
	flags.String("log", "", "append alerts as NDJSON to this path (env HW_ALERT_LOG)")
	flags.String("exec", "", "shell command run for every alert (env HW_ALERT_EXEC)")
	flags.Duration("exec-timeout", 0, "alert command timeout, 0 waits indefinitely (env HW_ALERT_EXEC_TIMEOUT)")
	flags.Bool("echo", true, "echo alerts to stdout (env HW_ALERTS_ECHO)")
	flags.Bool("durable", false, "consume from the HW_ALERTS JetStream stream (env HW_ALERTS_DURABLE)")

	maps.Copy(keys, map[string]string{
		"alerts.sub":          "sub",
		"alerts.queue":        "queue",
		"alerts.log":          "log",
		"alerts.exec":         "exec",
		"alerts.exec_timeout": "exec-timeout",
		"alerts.echo":         "echo",
		"alerts.durable":      "durable",
	})
	return keys
}

// Load builds the configuration from defaults, an optional file, HW_*
// environment variables and any flags the caller set. flags may be nil.
func Load(configPath string, flags *pflag.FlagSet, keys map[string]string) (*Config, error) {
	v := common.New()

	v.SetDefault("alerts.sub", messaging.SubjectAlertsV1)
	v.SetDefault("alerts.queue", messaging.QueueAlerts)
	v.SetDefault("alerts.log", "alerts.ndjson")
	v.SetDefault("alerts.exec", "")
	v.SetDefault("alerts.exec_timeout", time.Duration(0))
	v.SetDefault("alerts.echo", true)
	v.SetDefault("alerts.durable", false)
	v.SetDefault("alerts.consumer", "alert-sink")

	// The per-alert settings use the singular HW_ALERT_ prefix.
	_ = v.BindEnv("alerts.log", "HW_ALERT_LOG")
	_ = v.BindEnv("alerts.exec", "HW_ALERT_EXEC")
	_ = v.BindEnv("alerts.exec_timeout", "HW_ALERT_EXEC_TIMEOUT")

	if err := common.ReadFile(v, configPath); err != nil {
		return nil, err
	}
	if flags != nil {
		if err := common.BindFlags(v, flags, keys); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the alert sink settings.
func (c *Config) Validate() error {
	errs := []error{c.NATS.Validate()}
	if strings.TrimSpace(c.Alerts.Sub) == "" {
		errs = append(errs, errors.New("alerts.sub is required"))
	}
	if strings.TrimSpace(c.Alerts.Log) == "" {
		errs = append(errs, errors.New("alerts.log is required"))
	}
	if c.Alerts.ExecTimeout < 0 {
		errs = append(errs, errors.New("alerts.exec_timeout must not be negative"))
	}
	if c.Alerts.Durable && strings.TrimSpace(c.Alerts.Consumer) == "" {
		errs = append(errs, errors.New("alerts.consumer is required for durable consumption"))
	}
	return errors.Join(errs...)
}

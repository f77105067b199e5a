// Package config loads the rule engine service configuration.
package config

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/spf13/pflag"

	common "github.com/joshuaworth/hoistwaywatch/common/config"
	"github.com/joshuaworth/hoistwaywatch/common/messaging"
)

type Config struct {
	NATS    common.NATSConfig    `mapstructure:"nats"`
	Rules   RulesConfig          `mapstructure:"rules"`
	Logging common.LoggingConfig `mapstructure:"logging"`
	Metrics common.MetricsConfig `mapstructure:"metrics"`
}

// RulesConfig controls rule loading and the evaluation pipeline.
type RulesConfig struct {
	Path      string `mapstructure:"path"`
	Sub       string `mapstructure:"sub"`
	Pub       string `mapstructure:"pub"`
	Queue     string `mapstructure:"queue"`
	Workers   int    `mapstructure:"workers"`
	QueueSize int    `mapstructure:"queue_size"`
	Strict    bool   `mapstructure:"strict"`
}

// RegisterFlags adds the rules service flags and returns their config keys.
func RegisterFlags(flags *pflag.FlagSet) map[string]string {
	keys := common.CommonFlags(flags)
	flags.String("rules", "", "rule file path (env HW_RULES_PATH)")
	flags.String("sub", "", "event subject to subscribe (env HW_RULES_SUB)")
	flags.String("pub", "", "alert subject to publish (env HW_RULES_PUB)")
	flags.String("queue", "", "queue group; empty fans out (env HW_RULES_QUEUE)")
	flags.Int("workers", 0, "evaluation workers (env HW_RULES_WORKERS)")
	flags.Int("queue-size", 0, "bounded intake queue size (env HW_RULES_QUEUE_SIZE)")
	flags.Bool("strict", false, "treat malformed rule entries as fatal (env HW_RULES_STRICT)")

	maps.Copy(keys, map[string]string{
		"rules.path":       "rules",
		"rules.sub":        "sub",
		"rules.pub":        "pub",
		"rules.queue":      "queue",
		"rules.workers":    "workers",
		"rules.queue_size": "queue-size",
		"rules.strict":     "strict",
	})
	return keys
}

// Load builds the configuration from defaults, an optional file, HW_*
// environment variables and any flags the caller set. flags may be nil.
func Load(configPath string, flags *pflag.FlagSet, keys map[string]string) (*Config, error) {
	v := common.New()

	v.SetDefault("rules.path", "configs/rules.yaml")
	v.SetDefault("rules.sub", messaging.SubjectEventsAll)
	v.SetDefault("rules.pub", messaging.SubjectAlertsV1)
	v.SetDefault("rules.queue", messaging.QueueRules)
	v.SetDefault("rules.workers", 1)
	v.SetDefault("rules.queue_size", 256)
	v.SetDefault("rules.strict", false)

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

// Validate checks the rules service settings.
func (c *Config) Validate() error {
	errs := []error{c.NATS.Validate()}
	if strings.TrimSpace(c.Rules.Path) == "" {
		errs = append(errs, errors.New("rules.path is required"))
	}
	if strings.TrimSpace(c.Rules.Sub) == "" {
		errs = append(errs, errors.New("rules.sub is required"))
	}
	if strings.TrimSpace(c.Rules.Pub) == "" {
		errs = append(errs, errors.New("rules.pub is required"))
	}
	if c.Rules.Workers < 1 {
		errs = append(errs, fmt.Errorf("rules.workers must be at least 1, got %d", c.Rules.Workers))
	}
	if c.Rules.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("rules.queue_size must be at least 1, got %d", c.Rules.QueueSize))
	}
	return errors.Join(errs...)
}

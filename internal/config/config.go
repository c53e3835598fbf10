// Package config loads process configuration via github.com/spf13/viper,
// bound to a typed Config struct via mapstructure tags (spec §6
// "Configuration (recognized options)"). Grounded on the viper-under-a-
// typed-struct pattern seen in 88lin-divinesense's cmd/divinesense/main.go
// and other_examples/DimaJoyti-go-coffee's orchestrator config loading.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// AILDecisionPoint enumerates when the agent-in-the-loop gate runs.
type AILDecisionPoint string

const (
	AILPerLayer AILDecisionPoint = "per_layer"
	AILOnError  AILDecisionPoint = "on_error"
	AILManual   AILDecisionPoint = "manual"
)

// HILApprovalMode enumerates when the human-in-the-loop gate requires
// explicit approval.
type HILApprovalMode string

const (
	HILAlways       HILApprovalMode = "always"
	HILCriticalOnly HILApprovalMode = "critical_only"
	HILNever        HILApprovalMode = "never"
)

// AIL configures the agent-in-the-loop decision gate.
type AIL struct {
	Enabled        bool             `mapstructure:"enabled"`
	DecisionPoints AILDecisionPoint `mapstructure:"decision_points"`
}

// HIL configures the human-in-the-loop decision gate.
type HIL struct {
	Enabled          bool            `mapstructure:"enabled"`
	ApprovalRequired HILApprovalMode `mapstructure:"approval_required"`
}

// Timeouts holds the decision-gate wait budgets, in milliseconds.
type Timeouts struct {
	HILMS int `mapstructure:"hil_ms"`
	AILMS int `mapstructure:"ail_ms"`
}

// Config is the full set of recognized options from spec §6.
type Config struct {
	MaxConcurrency      int      `mapstructure:"max_concurrency"` // 0 means unbounded
	TaskTimeoutMS       int      `mapstructure:"task_timeout_ms"`
	AIL                 AIL      `mapstructure:"ail"`
	HIL                 HIL      `mapstructure:"hil"`
	Timeouts            Timeouts `mapstructure:"timeouts"`
	PerLayerValidation  bool     `mapstructure:"per_layer_validation"`
	UserID              string   `mapstructure:"user_id"`
	CheckpointRetention int      `mapstructure:"checkpoint_retention"`

	DatabaseDSN string `mapstructure:"database_dsn"`
	RedisAddr   string `mapstructure:"redis_addr"`
}

// Defaults matches spec §6's table exactly.
func Defaults() Config {
	return Config{
		MaxConcurrency: 0,
		TaskTimeoutMS:  30_000,
		AIL: AIL{
			Enabled:        false,
			DecisionPoints: AILPerLayer,
		},
		HIL: HIL{
			Enabled:          false,
			ApprovalRequired: HILCriticalOnly,
		},
		Timeouts: Timeouts{
			HILMS: 300_000,
			AILMS: 60_000,
		},
		PerLayerValidation:  false,
		CheckpointRetention: 5,
	}
}

// Load builds a viper instance seeded with Defaults, optionally merges a
// YAML file at path (if non-empty and present), and applies
// DAGRAG_-prefixed environment variable overrides, then unmarshals into a
// typed Config.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DAGRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := Defaults()
	v.SetDefault("max_concurrency", defaults.MaxConcurrency)
	v.SetDefault("task_timeout_ms", defaults.TaskTimeoutMS)
	v.SetDefault("ail.enabled", defaults.AIL.Enabled)
	v.SetDefault("ail.decision_points", defaults.AIL.DecisionPoints)
	v.SetDefault("hil.enabled", defaults.HIL.Enabled)
	v.SetDefault("hil.approval_required", defaults.HIL.ApprovalRequired)
	v.SetDefault("timeouts.hil_ms", defaults.Timeouts.HILMS)
	v.SetDefault("timeouts.ail_ms", defaults.Timeouts.AILMS)
	v.SetDefault("per_layer_validation", defaults.PerLayerValidation)
	v.SetDefault("checkpoint_retention", defaults.CheckpointRetention)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

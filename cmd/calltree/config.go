package main

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	ServiceConfig struct {
		Environment string `env:"SENTRY_ENVIRONMENT" env-default:"development"`
		SentryDSN   string `env:"SENTRY_DSN"`
		LogLevel    string `env:"LOG_LEVEL" env-default:"info"`

		KafkaBrokers        []string `env:"CALLTREE_KAFKA_BROKERS" env-separator:","`
		CallTreesKafkaTopic string   `env:"CALLTREE_KAFKA_TOPIC" env-default:"profiles-call-tree"`

		// TreesBucket is a gocloud.dev bucket URL. Trees are written to
		// OutputDirectory when it is empty.
		TreesBucket     string `env:"CALLTREE_BUCKET"`
		OutputDirectory string `env:"CALLTREE_OUTPUT" env-default:"."`
	}
)

var serviceConfigs = map[string]ServiceConfig{
	"production": {
		CallTreesKafkaTopic: "profiles-call-tree",
		TreesBucket:         "gs://sentry-call-trees",
	},
	"development": {
		CallTreesKafkaTopic: "profiles-call-tree",
	},
}

// loadConfig reads the configuration from the environment. Values left empty
// fall back to the defaults of the environment named by SENTRY_ENVIRONMENT.
func loadConfig() (ServiceConfig, error) {
	var cfg ServiceConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return ServiceConfig{}, err
	}
	defaults, exists := serviceConfigs[cfg.Environment]
	if !exists {
		return ServiceConfig{}, fmt.Errorf("service config for environment %v does not exist", cfg.Environment)
	}
	if cfg.TreesBucket == "" {
		cfg.TreesBucket = defaults.TreesBucket
	}
	if len(cfg.KafkaBrokers) == 0 {
		cfg.KafkaBrokers = defaults.KafkaBrokers
	}
	return cfg, nil
}

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
		Port        string `env:"PORT" env-default:"8080"`

		TreesBucket string `env:"CALLTREE_BUCKET"`
	}
)

var serviceConfigs = map[string]ServiceConfig{
	"production": {
		TreesBucket: "gs://sentry-call-trees",
	},
	"development": {
		TreesBucket: "file:///var/lib/sentry-call-trees",
	},
}

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
	return cfg, nil
}

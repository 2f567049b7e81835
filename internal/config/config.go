// Package config loads process settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every setting read from the environment.
const EnvPrefix = "TASKTABLE"

// Config holds all process configuration.
type Config struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	TableName       string        `mapstructure:"table_name" validate:"required,min=3,max=255"`
	PartitionKey    string        `mapstructure:"partition_key" validate:"required"`
	EnsureTable     bool          `mapstructure:"ensure_table"`
	ConnectionEnv   string        `mapstructure:"connection_env" validate:"required"`
	TableWait       time.Duration `mapstructure:"table_wait" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

var defaults = map[string]any{
	"port":             8080,
	"log_level":        "info",
	"table_name":       "ToDoTable",
	"partition_key":    "ToDo",
	"ensure_table":     true,
	"connection_env":   EnvPrefix + "_STORAGE_CONNECTION",
	"table_wait":       2 * time.Minute,
	"shutdown_timeout": 15 * time.Second,
}

// Load reads .env files (".env" when none are given) into the environment,
// then builds a Config from TASKTABLE_* variables over the defaults.
// Missing .env files are ignored; variables already set are not overridden.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Package rbconfig loads the process-scoped EngineConfig (SPEC_FULL
// §10.3) via spf13/viper, distinct from the runbook-scoped variables
// pipeline in internal/variables. Grounded on the teacher's
// internal/config viper wiring.
package rbconfig

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// EngineConfig holds the knobs threaded through Engine/Store/Runner
// constructors (spec.md §9: "Global state / config singleton... replaced
// by an explicit EngineConfig value threaded through constructors").
type EngineConfig struct {
	MaxRetries         int
	DefaultTimeout     time.Duration
	InteractiveTimeout time.Duration
	ParallelExecution  bool
	InteractiveMode    bool
	WorkerPoolSize     int

	StoreDSN  string
	LogDir    string
	EnvPrefix string
}

// Default returns the configuration used when no file/env overrides any
// key, mirroring the teacher's viper.SetDefault usage.
func Default() EngineConfig {
	return EngineConfig{
		MaxRetries:         3,
		DefaultTimeout:     10 * time.Minute,
		InteractiveTimeout: 5 * time.Minute,
		ParallelExecution:  false,
		InteractiveMode:    true,
		WorkerPoolSize:     4,
		StoreDSN:           "runbookengine.db",
		LogDir:             ".",
		EnvPrefix:          "RUNBOOK_VAR_",
	}
}

// Load reads configFile (if non-empty) layered over Default(), with
// RUNBOOK_* environment variables taking precedence over the file, per
// viper's standard layering.
func Load(configFile string) (EngineConfig, error) {
	v := viper.New()
	def := Default()

	v.SetDefault("max_retries", def.MaxRetries)
	v.SetDefault("default_timeout", def.DefaultTimeout)
	v.SetDefault("interactive_timeout", def.InteractiveTimeout)
	v.SetDefault("parallel_execution", def.ParallelExecution)
	v.SetDefault("interactive_mode", def.InteractiveMode)
	v.SetDefault("worker_pool_size", def.WorkerPoolSize)
	v.SetDefault("store_dsn", def.StoreDSN)
	v.SetDefault("log_dir", def.LogDir)
	v.SetDefault("env_prefix", def.EnvPrefix)

	v.SetEnvPrefix("RUNBOOK")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return EngineConfig{}, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	return EngineConfig{
		MaxRetries:         v.GetInt("max_retries"),
		DefaultTimeout:     v.GetDuration("default_timeout"),
		InteractiveTimeout: v.GetDuration("interactive_timeout"),
		ParallelExecution:  v.GetBool("parallel_execution"),
		InteractiveMode:    v.GetBool("interactive_mode"),
		WorkerPoolSize:     v.GetInt("worker_pool_size"),
		StoreDSN:           v.GetString("store_dsn"),
		LogDir:             v.GetString("log_dir"),
		EnvPrefix:          v.GetString("env_prefix"),
	}, nil
}

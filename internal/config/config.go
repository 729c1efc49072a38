// Package config provides centralized configuration for the Taskmesh
// orchestration core, loaded from an optional TOML file and overridden by
// environment variables.
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// AppConfig holds all application configuration for a process embedding the
// Taskmesh core.
type AppConfig struct {
	// Orchestrator tuning, spec.md §6 "Configuration (enumerated)"
	MaxParallelTasks       int     `toml:"max_parallel_tasks"`
	TaskTimeoutSeconds     int     `toml:"task_timeout_seconds"`
	DelegationTimeoutSecs  float64 `toml:"delegation_timeout_seconds"`
	MaxRetries             int     `toml:"max_retries"`
	RetryBackoffBaseSecs   float64 `toml:"retry_backoff_base_seconds"`
	SelectionWeightSuccess float64 `toml:"selection_weight_success"`
	SelectionWeightSpeed   float64 `toml:"selection_weight_speed"`
	SelectionWeightLoad    float64 `toml:"selection_weight_load"`

	// Observability stack
	ServiceName    string `toml:"service_name"`
	ServiceVersion string `toml:"service_version"`
	Environment    string `toml:"environment"`
	LogLevel       string `toml:"log_level"`
	JaegerEndpoint string `toml:"jaeger_endpoint"`
	PrometheusPort string `toml:"prometheus_port"`
	HealthPort     string `toml:"health_port"`
}

// Default returns the configuration spec.md §6 specifies as defaults.
func Default() *AppConfig {
	return &AppConfig{
		MaxParallelTasks:       10,
		TaskTimeoutSeconds:     300,
		DelegationTimeoutSecs:  30.0,
		MaxRetries:             3,
		RetryBackoffBaseSecs:   1.0,
		SelectionWeightSuccess: 0.5,
		SelectionWeightSpeed:   0.3,
		SelectionWeightLoad:    0.2,

		ServiceName:    getEnv("SERVICE_NAME", "taskmesh"),
		ServiceVersion: getEnv("SERVICE_VERSION", "1.0.0"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),
		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "127.0.0.1:4317"),
		PrometheusPort: getEnv("PROMETHEUS_PORT", "9090"),
		HealthPort:     getEnv("TASKMESH_HEALTH_PORT", "8080"),
	}
}

// Load builds configuration by starting from Default, merging a TOML file
// at path (if non-empty and present), and finally applying environment
// variable overrides. A missing file at path is not an error: the file is
// optional, matching the teacher's "env var with default" idiom one layer
// up.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, err
			}
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

func (c *AppConfig) applyEnvOverrides() {
	c.MaxParallelTasks = getEnvAsInt("TASKMESH_MAX_PARALLEL_TASKS", c.MaxParallelTasks)
	c.TaskTimeoutSeconds = getEnvAsInt("TASKMESH_TASK_TIMEOUT_SECONDS", c.TaskTimeoutSeconds)
	c.MaxRetries = getEnvAsInt("TASKMESH_MAX_RETRIES", c.MaxRetries)
	c.DelegationTimeoutSecs = getEnvAsFloat("TASKMESH_DELEGATION_TIMEOUT_SECONDS", c.DelegationTimeoutSecs)
	c.RetryBackoffBaseSecs = getEnvAsFloat("TASKMESH_RETRY_BACKOFF_BASE_SECONDS", c.RetryBackoffBaseSecs)

	c.ServiceName = getEnv("SERVICE_NAME", c.ServiceName)
	c.ServiceVersion = getEnv("SERVICE_VERSION", c.ServiceVersion)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.JaegerEndpoint = getEnv("JAEGER_ENDPOINT", c.JaegerEndpoint)
	c.PrometheusPort = getEnv("PROMETHEUS_PORT", c.PrometheusPort)
	c.HealthPort = getEnv("TASKMESH_HEALTH_PORT", c.HealthPort)
}

// SelectionWeights returns the three selection-score weights (success,
// speed, load) as spec.md §4.3 names them.
func (c *AppConfig) SelectionWeights() (success, speed, load float64) {
	return c.SelectionWeightSuccess, c.SelectionWeightSpeed, c.SelectionWeightLoad
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

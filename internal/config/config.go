package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	KubeConfig     string
	KubeMaster     string
	LogLevel       string
	LogFormat      string
	HTTPPort       string
	MetricsPort    string
	FleetConfig    string
	PrometheusURL  string
	Namespace      string
	UnitsConfigMap string
	SyncInterval   time.Duration
	HealthInterval time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		KubeConfig:     getEnvWithFallback(envKeyKubeConfig, envKeyKubeConfigFallback),
		KubeMaster:     getEnvWithFallback(envKeyKubeMaster, envKeyKubeMasterFallback),
		LogLevel:       getEnvOrDefault(envKeyLogLevel, "info"),
		LogFormat:      getEnvOrDefault(envKeyLogFormat, "json"),
		HTTPPort:       getEnvOrDefault(envKeyHTTPPort, "8080"),
		MetricsPort:    getEnvOrDefault(envKeyMetricsPort, "9090"),
		FleetConfig:    getEnvOrDefault(envKeyFleetConfig, "/etc/poolwarden/fleet.yaml"),
		PrometheusURL:  os.Getenv(envKeyPrometheusURL),
		Namespace:      getEnvOrDefault(envKeyNamespace, "poolwarden"),
		UnitsConfigMap: getEnvOrDefault(envKeyUnitsConfigMap, "poolwarden-units"),
	}

	var err error

	cfg.SyncInterval, err = getDurationEnv(envKeySyncInterval, 10*time.Second, envMinSyncInterval)
	if err != nil {
		return nil, err
	}

	cfg.HealthInterval, err = getDurationEnv(envKeyHealthInterval, 10*time.Second, envMinHealthInterval)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value
}

func getEnvWithFallback(key, fallbackKey string) string {
	value := os.Getenv(key)
	if value == "" {
		return os.Getenv(fallbackKey)
	}

	return value
}

func getDurationEnv(key string, defaultValue, minimum time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	if d < minimum {
		return 0, fmt.Errorf("%s must be at least %s, got %s", key, minimum, d)
	}

	return d, nil
}

package config

import (
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Verbose                bool   `mapstructure:"verbose"`
	Kubeconfig             string `mapstructure:"kubeconfig"`
	Parallelism            int    `mapstructure:"parallelism"`
	ReadyTimeoutSeconds    int    `mapstructure:"ready_timeout_seconds"`
	PropagationWaitSeconds int    `mapstructure:"propagation_wait_seconds"`
	ProbeTimeoutSeconds    int    `mapstructure:"probe_timeout_seconds"`
	NamespacePrefix        string `mapstructure:"namespace_prefix"`
	OutputDir              string `mapstructure:"output_dir"`
	LogLevel               string `mapstructure:"log_level"`
}

// Load loads configuration from various sources
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("verbose", false)
	viper.SetDefault("parallelism", 1)
	viper.SetDefault("ready_timeout_seconds", 120)
	viper.SetDefault("propagation_wait_seconds", 5)
	viper.SetDefault("probe_timeout_seconds", 2)
	viper.SetDefault("namespace_prefix", "netpol")
	viper.SetDefault("output_dir", "test_results")
	viper.SetDefault("log_level", "info")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

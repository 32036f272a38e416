package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	config := GetDefaults()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/text-anonymizer/")
	v.AddConfigPath("$HOME/.text-anonymizer/")

	// Environment variable overrides, e.g. ANONYMIZER_SERVER_PORT
	v.SetEnvPrefix("ANONYMIZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	current = v
	return config, nil
}

// current is the viper instance of the last successful Load, used by Watch
var current *viper.Viper

// Validate checks the configuration for values the service cannot run with
func Validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if len(config.Anonymizer.SupportedStrategies) == 0 {
		return fmt.Errorf("at least one supported strategy is required")
	}
	if !contains(config.Anonymizer.SupportedStrategies, config.Anonymizer.DefaultStrategy) {
		return fmt.Errorf("invalid default strategy: %s (must be one of: %s)",
			config.Anonymizer.DefaultStrategy, strings.Join(config.Anonymizer.SupportedStrategies, ", "))
	}

	if len(config.Semantic.Languages) == 0 {
		return fmt.Errorf("at least one semantic language is required")
	}
	for _, lang := range config.Semantic.Languages {
		if lang == "auto" {
			return fmt.Errorf("invalid semantic language: auto is reserved for detection")
		}
	}
	if config.Anonymizer.DefaultLanguage != "auto" && !contains(config.Semantic.Languages, config.Anonymizer.DefaultLanguage) {
		return fmt.Errorf("invalid default language: %s (must be auto or one of: %s)",
			config.Anonymizer.DefaultLanguage, strings.Join(config.Semantic.Languages, ", "))
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("cache.redis_url is required when cache is enabled")
	}
	if config.Audit.Enabled && config.Audit.DatabaseURL == "" {
		return fmt.Errorf("audit.database_url is required when audit is enabled")
	}
	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("invalid rate limit: %d requests per minute", config.RateLimit.RequestsPerMin)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}

// Watch starts watching the configuration file for changes. The callback
// only receives configurations that pass validation.
func Watch(callback func(*Config), onError func(error)) error {
	if current == nil {
		return fmt.Errorf("configuration not loaded")
	}
	v := current
	v.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := v.Unmarshal(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("failed to unmarshal config %s: %w", e.Name, err))
			}
			return
		}

		if err := Validate(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("invalid configuration in %s: %w", e.Name, err))
			}
			return
		}

		callback(newConfig)
	})
	v.WatchConfig()

	return nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	mu      sync.Mutex
	current *viper.Viper
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	config := GetDefaults()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/mail-sentinel/")
	v.AddConfigPath("$HOME/.mail-sentinel/")

	// Environment variable overrides, e.g. MAILSENTINEL_SCORING_THRESHOLD
	v.SetEnvPrefix("MAILSENTINEL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

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

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	mu.Lock()
	current = v
	mu.Unlock()

	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if err := validateCleaning(config.Cleaning); err != nil {
		return err
	}

	if config.Scoring.Threshold <= 0 || config.Scoring.Threshold > 2 {
		return fmt.Errorf("invalid scoring threshold: %v (cosine distance lies in (0, 2])", config.Scoring.Threshold)
	}

	if !oneOf(config.Scoring.ReferenceSource, "file", "store") {
		return fmt.Errorf("invalid reference source: %s (must be file or store)", config.Scoring.ReferenceSource)
	}

	if !oneOf(config.Embeddings.Type, "hash", "onnx", "azure") {
		return fmt.Errorf("invalid embeddings type: %s (must be hash, onnx, or azure)", config.Embeddings.Type)
	}

	if config.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("invalid embedding dimensions: %d", config.Embeddings.Dimensions)
	}

	if config.Batch.Workers < 0 {
		return fmt.Errorf("invalid batch workers: %d", config.Batch.Workers)
	}

	if !oneOf(config.Logging.Level, "debug", "info", "warn", "error") {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if !oneOf(config.Logging.Format, "json", "console") {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}

func validateCleaning(cfg CleaningConfig) error {
	if len(cfg.NameMethods) == 0 {
		return fmt.Errorf("at least one name method is required")
	}
	for _, m := range cfg.NameMethods {
		if !oneOf(strings.ToLower(m), "regex", "email_addresses", "email_adresses", "database") {
			return fmt.Errorf("invalid name method: %s (must be regex, email_addresses, or database)", m)
		}
	}

	if !oneOf(strings.ToLower(cfg.URLOption), "simple", "complex") {
		return fmt.Errorf("invalid url option: %s (must be simple or complex)", cfg.URLOption)
	}

	for _, d := range cfg.Disambiguate {
		if !oneOf(strings.ToLower(d), "internal", "external") {
			return fmt.Errorf("invalid disambiguation: %s (must be internal or external)", d)
		}
	}

	if cfg.RegexTimeout < 0 {
		return fmt.Errorf("invalid regex timeout: %s", cfg.RegexTimeout)
	}

	if strings.TrimSpace(cfg.Thread.Delimiter) == "" {
		return fmt.Errorf("thread delimiter must not be blank")
	}

	if cfg.Thread.MinParagraphLength < 0 {
		return fmt.Errorf("invalid min paragraph length: %d", cfg.Thread.MinParagraphLength)
	}

	return nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// Watch starts watching the loaded configuration file for changes.
// The callback receives only configurations that pass validation.
func Watch(callback func(*Config), onError func(error)) error {
	mu.Lock()
	v := current
	mu.Unlock()

	if v == nil {
		return fmt.Errorf("configuration not loaded")
	}
	if v.ConfigFileUsed() == "" {
		return fmt.Errorf("no configuration file to watch")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		newConfig := GetDefaults()
		if err := v.Unmarshal(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("failed to unmarshal changed config: %w", err))
			}
			return
		}

		if err := validateConfig(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("invalid changed config: %w", err))
			}
			return
		}

		callback(newConfig)
	})
	v.WatchConfig()

	return nil
}

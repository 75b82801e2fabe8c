package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server ServerConfig
	Source SourceConfig
	Sync   SyncConfig
	Store  StoreConfig
	Log    LogConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SourceConfig holds the external catalog API configuration
type SourceConfig struct {
	Name       string        `mapstructure:"name"`
	BaseURL    string        `mapstructure:"base_url"`
	PageLimit  int           `mapstructure:"page_limit"`
	PageDelay  time.Duration `mapstructure:"page_delay"`
	MaxRetries int           `mapstructure:"max_retries"`
	RateLimit  float64       `mapstructure:"rate_limit"` // requests per second
	Burst      int           `mapstructure:"burst"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// SyncConfig holds sync pipeline configuration
type SyncConfig struct {
	BatchSize                int    `mapstructure:"batch_size"`
	MaxRetries               int    `mapstructure:"max_retries"`
	DryRun                   bool   `mapstructure:"dry_run"`
	Verbose                  bool   `mapstructure:"verbose"`
	Currency                 string `mapstructure:"currency"`
	ExportDir                string `mapstructure:"export_dir"`
	AssumeNewOnLookupFailure bool   `mapstructure:"assume_new_on_lookup_failure"`
}

// StoreConfig holds destination store configuration
type StoreConfig struct {
	Type        string `mapstructure:"type"` // "memory" or "postgres"
	DatabaseURL string `mapstructure:"database_url"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// pageDelayMsEnv overrides source.page_delay with a plain millisecond count
const pageDelayMsEnv = "CATALOGSYNC_SOURCE_PAGE_DELAY_MS"

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/catalogsync/")

	// Environment variable settings: sync.batch_size <- CATALOGSYNC_SYNC_BATCH_SIZE
	v.SetEnvPrefix("CATALOGSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if raw := os.Getenv(pageDelayMsEnv); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", pageDelayMsEnv, err)
		}
		config.Source.PageDelay = time.Duration(ms) * time.Millisecond
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "9000")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:9000"})

	// Source defaults
	v.SetDefault("source.name", "dummyjson")
	v.SetDefault("source.base_url", "https://dummyjson.com/products")
	v.SetDefault("source.page_limit", 30)
	v.SetDefault("source.page_delay", "0s")
	v.SetDefault("source.max_retries", 2)
	v.SetDefault("source.rate_limit", 10)
	v.SetDefault("source.burst", 5)
	v.SetDefault("source.timeout", "30s")

	// Sync defaults
	v.SetDefault("sync.batch_size", 15)
	v.SetDefault("sync.max_retries", 2)
	v.SetDefault("sync.dry_run", false)
	v.SetDefault("sync.verbose", false)
	v.SetDefault("sync.currency", "usd")
	v.SetDefault("sync.export_dir", "exports")
	v.SetDefault("sync.assume_new_on_lookup_failure", false)

	// Store defaults
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.database_url", "")

	v.SetDefault("log.level", "info")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Store.Type != "memory" && config.Store.Type != "postgres" {
		return fmt.Errorf("store type must be 'memory' or 'postgres', got: %s", config.Store.Type)
	}

	if config.Store.Type == "postgres" && config.Store.DatabaseURL == "" {
		return fmt.Errorf("database URL is required when store type is 'postgres' (set CATALOGSYNC_STORE_DATABASE_URL)")
	}

	if config.Source.BaseURL == "" {
		return fmt.Errorf("source base URL is required")
	}

	if config.Source.PageLimit <= 0 {
		return fmt.Errorf("source page limit must be positive, got: %d", config.Source.PageLimit)
	}

	if config.Source.MaxRetries < 0 || config.Sync.MaxRetries < 0 {
		return fmt.Errorf("retry budgets must not be negative")
	}

	if config.Sync.Currency == "" {
		return fmt.Errorf("sync currency is required")
	}

	return nil
}

// loadEnvFile loads KEY=VALUE pairs from ./.env into the process
// environment. Variables that are already set are left alone.
func loadEnvFile() error {
	file, err := os.Open(".env")
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return scanner.Err()
}

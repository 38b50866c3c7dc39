// Package config handles configuration loading for MarketQuery.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	LLM        LLMConfig        `mapstructure:"llm"         yaml:"llm"`
	MarketData MarketDataConfig `mapstructure:"market_data" yaml:"market_data"`
	Fetch      FetchConfig      `mapstructure:"fetch"       yaml:"fetch"`
	Store      StoreConfig      `mapstructure:"store"       yaml:"store"`
	API        APIConfig        `mapstructure:"api"         yaml:"api"`
	Logging    LoggingConfig    `mapstructure:"logging"     yaml:"logging"`
}

// LLMConfig holds the language-model provider configuration.
type LLMConfig struct {
	OpenAIKey     string  `mapstructure:"openai_key"     yaml:"openai_key"`
	Model         string  `mapstructure:"model"          yaml:"model"`
	FallbackModel string  `mapstructure:"fallback_model" yaml:"fallback_model"`
	Temperature   float64 `mapstructure:"temperature"    yaml:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"     yaml:"max_tokens"`
}

// MarketDataConfig holds the upstream market-data API credentials.
type MarketDataConfig struct {
	FMPKey        string `mapstructure:"fmp_key"         yaml:"fmp_key"`
	MarketDataKey string `mapstructure:"marketdata_key"  yaml:"marketdata_key"`
}

// FetchConfig holds the fetch executor settings.
type FetchConfig struct {
	CacheTTL          int `mapstructure:"cache_ttl"          yaml:"cache_ttl"`          // seconds
	ConcurrentFetches int `mapstructure:"concurrent_fetches" yaml:"concurrent_fetches"`
	TimeoutSec        int `mapstructure:"timeout_sec"        yaml:"timeout_sec"`
}

// StoreConfig holds the local persistence settings.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.marketquery/config.yaml (home directory)
//  3. /etc/marketquery/config.yaml (system)
//
// Environment variables override config file values.
// Format: MARKETQUERY_<SECTION>_<KEY>, e.g., MARKETQUERY_LLM_OPENAI_KEY
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".marketquery"))
	v.AddConfigPath("/etc/marketquery")

	v.SetEnvPrefix("MARKETQUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found — that's fine, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)

	return &cfg, nil
}

// Default returns the built-in defaults without consulting any config
// file or environment variable.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return &Config{}
	}
	return &cfg
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("MARKETQUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// LLM defaults
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.fallback_model", "gpt-3.5-turbo")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 4000)

	// Fetch defaults
	v.SetDefault("fetch.cache_ttl", 300) // 5 minutes
	v.SetDefault("fetch.concurrent_fetches", 5)
	v.SetDefault("fetch.timeout_sec", 30)

	// Store defaults
	v.SetDefault("store.path", filepath.Join(homeDir(), ".marketquery", "marketquery.db"))

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("MARKETQUERY_LLM_OPENAI_KEY"); key != "" {
		cfg.LLM.OpenAIKey = key
	}
	if key := os.Getenv("MARKETQUERY_MARKET_DATA_FMP_KEY"); key != "" {
		cfg.MarketData.FMPKey = key
	}
	if key := os.Getenv("MARKETQUERY_MARKET_DATA_MARKETDATA_KEY"); key != "" {
		cfg.MarketData.MarketDataKey = key
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

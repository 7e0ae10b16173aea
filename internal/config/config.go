package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "SKEIN"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "skein.db"
	defaultLogLevel       = "info"
	defaultPageSize       = 25
	defaultMergeWindowMS  = 8000
	defaultTrustThreshold = 0.0
	defaultAncestorDepth  = 3
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabasePath   string
	LogLevel       string
	PageSize       int
	MergeWindowMS  int64
	TrustThreshold float64
	AncestorDepth  int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("thread.page_size", defaultPageSize)
	configViper.SetDefault("thread.merge_window_ms", defaultMergeWindowMS)
	configViper.SetDefault("thread.trust_threshold", defaultTrustThreshold)
	configViper.SetDefault("thread.ancestor_depth", defaultAncestorDepth)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		PageSize:       configViper.GetInt("thread.page_size"),
		MergeWindowMS:  configViper.GetInt64("thread.merge_window_ms"),
		TrustThreshold: configViper.GetFloat64("thread.trust_threshold"),
		AncestorDepth:  configViper.GetInt("thread.ancestor_depth"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("thread.page_size must be positive")
	}
	if c.MergeWindowMS < 0 {
		return fmt.Errorf("thread.merge_window_ms must not be negative")
	}
	if c.AncestorDepth < 1 {
		return fmt.Errorf("thread.ancestor_depth must be at least 1")
	}
	return nil
}

// Package am loads scholar's configuration ("am" as in "I am configured as").
package am

import (
	"time"

	"github.com/teranos/scholar/fuzzy"
	"github.com/teranos/scholar/imagescore"
	"github.com/teranos/scholar/rulebook"
)

// Config represents the scholar configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Rulebook   RulebookConfig   `mapstructure:"rulebook"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Uploads    UploadsConfig    `mapstructure:"uploads"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig configures the web form and JSON API
type ServerConfig struct {
	Host                   string   `mapstructure:"host"`
	Port                   *int     `mapstructure:"port"` // nil = DefaultServerPort, 0 is invalid
	AllowedOrigins         []string `mapstructure:"allowed_origins"`
	RequestsPerMinute      int      `mapstructure:"requests_per_minute"` // assessment submissions per client IP, 0 = unlimited
	ShutdownTimeoutSeconds int      `mapstructure:"shutdown_timeout_seconds"`
}

// Server constants
const (
	DefaultServerPort      = 5000
	DefaultShutdownTimeout = 10 * time.Second
)

// DatabaseConfig configures the assessment history database
type DatabaseConfig struct {
	Path string `mapstructure:"path"` // empty disables history
}

// EngineConfig holds inference parameters used when the rulebook file leaves them unset
type EngineConfig struct {
	Fallback   float64          `mapstructure:"fallback"`
	Resolution float64          `mapstructure:"resolution"`
	Thresholds fuzzy.Thresholds `mapstructure:"thresholds"`
}

// RulebookConfig selects the rule base. An empty path uses the built-in rulebook.
type RulebookConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"` // reload on file change
}

// ClassifierConfig configures the external house photo classifier
type ClassifierConfig struct {
	Endpoint          string  `mapstructure:"endpoint"` // empty disables photo scoring
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // 0 = unlimited
	MaxRetries        int     `mapstructure:"max_retries"`
	BlockPrivate      bool    `mapstructure:"block_private"`
	UseRanges         bool    `mapstructure:"use_ranges"` // map classes to range midpoints
}

// UploadsConfig configures house photo uploads
type UploadsConfig struct {
	Dir      string `mapstructure:"dir"` // empty disables archiving
	MaxBytes int64  `mapstructure:"max_bytes"`
}

// LogConfig configures logging
type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Theme string `mapstructure:"theme"` // console colors: everforest, gruvbox
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// EngineSettings converts the engine section into rulebook build settings.
func (c *Config) EngineSettings() rulebook.Settings {
	return rulebook.Settings{
		Fallback:   c.Engine.Fallback,
		Resolution: c.Engine.Resolution,
		Thresholds: c.Engine.Thresholds,
	}
}

// ClassifierHTTPConfig converts the classifier section for imagescore.NewHTTPScorer.
func (c *Config) ClassifierHTTPConfig() imagescore.HTTPConfig {
	classes := imagescore.DefaultClassMap()
	classes.UseRanges = c.Classifier.UseRanges
	return imagescore.HTTPConfig{
		Endpoint:          c.Classifier.Endpoint,
		Timeout:           time.Duration(c.Classifier.TimeoutSeconds) * time.Second,
		RequestsPerSecond: c.Classifier.RequestsPerSecond,
		MaxRetries:        c.Classifier.MaxRetries,
		BlockPrivate:      c.Classifier.BlockPrivate,
		Classes:           classes,
	}
}

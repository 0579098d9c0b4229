package am

import (
	"math"
	"net/url"

	"github.com/teranos/scholar/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Server port: nil = default, 0 and out-of-range values are invalid
	if c.Server.Port != nil && (*c.Server.Port <= 0 || *c.Server.Port > 65535) {
		return errors.WithHintf(errors.Newf("server.port must be in 1..65535, got %d", *c.Server.Port),
			"omit server.port for the default port %d", DefaultServerPort)
	}
	if c.Server.RequestsPerMinute < 0 {
		return errors.Newf("server.requests_per_minute must be >= 0, got %d", c.Server.RequestsPerMinute)
	}
	if c.Server.ShutdownTimeoutSeconds < 0 {
		return errors.Newf("server.shutdown_timeout_seconds must be >= 0, got %d", c.Server.ShutdownTimeoutSeconds)
	}

	// Engine: fallback is a score, resolution a positive step
	if math.IsNaN(c.Engine.Fallback) || c.Engine.Fallback < 0 || c.Engine.Fallback > 100 {
		return errors.Newf("engine.fallback must be within [0, 100], got %g", c.Engine.Fallback)
	}
	if !(c.Engine.Resolution > 0) {
		return errors.Newf("engine.resolution must be > 0, got %g", c.Engine.Resolution)
	}
	if err := c.Engine.Thresholds.Validate(); err != nil {
		return errors.Wrap(err, "engine.thresholds")
	}

	// Classifier: only checked when enabled
	if c.Classifier.Endpoint != "" {
		u, err := url.Parse(c.Classifier.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.WithHint(errors.Newf("classifier.endpoint %q is not an http(s) URL", c.Classifier.Endpoint),
				"use a full URL such as http://localhost:8501/predict")
		}
		if c.Classifier.TimeoutSeconds <= 0 {
			return errors.Newf("classifier.timeout_seconds must be > 0, got %d", c.Classifier.TimeoutSeconds)
		}
	}
	if c.Classifier.RequestsPerSecond < 0 {
		return errors.Newf("classifier.requests_per_second must be >= 0, got %g", c.Classifier.RequestsPerSecond)
	}
	if c.Classifier.MaxRetries < 0 {
		return errors.Newf("classifier.max_retries must be >= 0, got %d", c.Classifier.MaxRetries)
	}

	if c.Uploads.MaxBytes <= 0 {
		return errors.Newf("uploads.max_bytes must be > 0, got %d", c.Uploads.MaxBytes)
	}

	switch c.Log.Theme {
	case "", "everforest", "gruvbox":
	default:
		return errors.WithHint(errors.Newf("unknown log.theme %q", c.Log.Theme),
			"log.theme must be everforest or gruvbox")
	}

	return nil
}

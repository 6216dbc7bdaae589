package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateSubtitles(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWatch() error {
	if strings.TrimSpace(c.Watch.Root) == "" {
		return errors.New("watch.root must be set")
	}
	if len(c.Watch.Suffixes) == 0 {
		return errors.New("watch.suffixes must contain at least one suffix")
	}
	if c.Watch.MaxPending < 0 {
		return errors.New("watch.max_pending must not be negative")
	}
	return nil
}

func (c *Config) validateSubtitles() error {
	if c.Subtitles.Language == "" {
		return errors.New("subtitles.language must be set")
	}
	if c.Subtitles.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/autosub/config.toml"
		}
		return fmt.Errorf("subtitles.api_key is required. Edit %s (create with 'autosub config init')", defaultPath)
	}
	if c.Subtitles.RequestsPerMinute <= 0 {
		return errors.New("subtitles.requests_per_minute must be positive")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Workers < 0 {
		return errors.New("pipeline.workers must not be negative")
	}
	if err := ensurePositiveMap(map[string]int{
		"pipeline.fetch_max_attempts":         c.Pipeline.FetchMaxAttempts,
		"pipeline.fetch_backoff_base_seconds": c.Pipeline.FetchBackoffBase,
		"pipeline.fetch_backoff_cap_seconds":  c.Pipeline.FetchBackoffCap,
		"pipeline.drain_timeout_seconds":      c.Pipeline.DrainTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Pipeline.FetchBackoffCap < c.Pipeline.FetchBackoffBase {
		return errors.New("pipeline.fetch_backoff_cap_seconds must be at least the backoff base")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic == "" {
		return nil
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

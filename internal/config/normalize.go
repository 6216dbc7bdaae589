package config

import (
	"strings"

	"autosub/internal/language"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Watch.Root, err = expandPath(strings.TrimSpace(c.Watch.Root)); err != nil {
		return err
	}

	c.Watch.Suffixes = normalizeSuffixes(c.Watch.Suffixes)
	if len(c.Watch.Suffixes) == 0 {
		c.Watch.Suffixes = defaultSuffixes()
	}
	if c.Watch.DebounceMS <= 0 {
		c.Watch.DebounceMS = defaultDebounceMS
	}

	c.Subtitles.Language = strings.ToLower(strings.TrimSpace(c.Subtitles.Language))
	if mapped := language.ToISO2(c.Subtitles.Language); mapped != "" {
		c.Subtitles.Language = mapped
	}
	c.Subtitles.APIKey = strings.TrimSpace(c.Subtitles.APIKey)
	c.Subtitles.UserAgent = strings.TrimSpace(c.Subtitles.UserAgent)
	if c.Subtitles.UserAgent == "" {
		c.Subtitles.UserAgent = defaultUserAgent
	}
	c.Subtitles.UserToken = strings.TrimSpace(c.Subtitles.UserToken)
	c.Subtitles.BaseURL = strings.TrimSpace(c.Subtitles.BaseURL)
	if c.Subtitles.RequestsPerMinute <= 0 {
		c.Subtitles.RequestsPerMinute = defaultRequestsPerMinute
	}

	if c.Pipeline.FetchMaxAttempts <= 0 {
		c.Pipeline.FetchMaxAttempts = defaultFetchMaxAttempts
	}
	if c.Pipeline.FetchBackoffBase <= 0 {
		c.Pipeline.FetchBackoffBase = defaultFetchBackoffBase
	}
	if c.Pipeline.FetchBackoffCap <= 0 {
		c.Pipeline.FetchBackoffCap = defaultFetchBackoffCap
	}

	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)

	return nil
}

func normalizeSuffixes(suffixes []string) []string {
	normalized := make([]string, 0, len(suffixes))
	seen := make(map[string]struct{}, len(suffixes))
	for _, suffix := range suffixes {
		trimmed := strings.ToLower(strings.TrimSpace(suffix))
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, ".") {
			trimmed = "." + trimmed
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}

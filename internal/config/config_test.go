package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
[watch]
root = "/srv/media"
suffixes = ["MKV", ".mp4", ".mkv"]

[subtitles]
language = "Romanian"
api_key = "secret"
`)

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved == "" {
		t.Fatalf("resolved=%q exists=%v", resolved, exists)
	}

	if cfg.Watch.Root != "/srv/media" {
		t.Errorf("watch root = %q", cfg.Watch.Root)
	}
	// Suffixes are lowercased, dot-prefixed, and deduplicated.
	want := []string{".mkv", ".mp4"}
	if len(cfg.Watch.Suffixes) != 2 || cfg.Watch.Suffixes[0] != want[0] || cfg.Watch.Suffixes[1] != want[1] {
		t.Errorf("suffixes = %v, want %v", cfg.Watch.Suffixes, want)
	}
	// Full language names normalize to ISO 639-1.
	if cfg.Subtitles.Language != "ro" {
		t.Errorf("language = %q, want ro", cfg.Subtitles.Language)
	}
	// Untouched sections keep their defaults.
	if cfg.Watch.DebounceMS != defaultDebounceMS {
		t.Errorf("debounce = %d, want %d", cfg.Watch.DebounceMS, defaultDebounceMS)
	}
	if cfg.Pipeline.FetchMaxAttempts != defaultFetchMaxAttempts {
		t.Errorf("attempts = %d, want %d", cfg.Pipeline.FetchMaxAttempts, defaultFetchMaxAttempts)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	path := writeConfig(t, `
[watch]
root = "/srv/media"
`)

	_, _, _, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
	if !strings.Contains(err.Error(), "api_key") || !strings.Contains(err.Error(), "config init") {
		t.Errorf("error should point at the fix: %v", err)
	}
}

func TestLoadRejectsBadLogFormat(t *testing.T) {
	path := writeConfig(t, `
[subtitles]
api_key = "secret"

[logging]
format = "xml"
`)

	if _, _, _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown log format")
	}
}

func TestLoadRejectsCapBelowBase(t *testing.T) {
	path := writeConfig(t, `
[subtitles]
api_key = "secret"

[pipeline]
fetch_backoff_base_seconds = 10
fetch_backoff_cap_seconds = 5
`)

	if _, _, _, err := Load(path); err == nil {
		t.Fatal("expected error for cap below base")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	// Nonexistent explicit path: defaults apply, but validation still runs
	// and fails on the missing API key.
	path := filepath.Join(t.TempDir(), "absent.toml")
	if _, _, _, err := Load(path); err == nil {
		t.Fatal("expected validation error from defaults without api key")
	}
}

func TestExpandPathResolvesHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	got, err := expandPath("~/media")
	if err != nil {
		t.Fatalf("expandPath failed: %v", err)
	}
	if got != filepath.Join(home, "media") {
		t.Errorf("expandPath = %q", got)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	// The sample ships an empty api key, so it parses but fails validation.
	if _, _, _, err := Load(path); err == nil {
		t.Fatal("sample config must not validate without an api key")
	}
}

package config

const (
	defaultLogDir              = "~/.local/share/autosub/logs"
	defaultWatchRoot           = "~/media/incoming"
	defaultDebounceMS          = 500
	defaultLanguage            = "en"
	defaultUserAgent           = "Autosub/dev"
	defaultRequestsPerMinute   = 40
	defaultFetchMaxAttempts    = 3
	defaultFetchBackoffBase    = 1
	defaultFetchBackoffCap     = 30
	defaultDrainTimeoutSeconds = 120
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

func defaultSuffixes() []string {
	return []string{".mkv"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Watch: Watch{
			Root:       defaultWatchRoot,
			Recursive:  true,
			Suffixes:   defaultSuffixes(),
			DebounceMS: defaultDebounceMS,
		},
		Subtitles: Subtitles{
			Language:          defaultLanguage,
			UserAgent:         defaultUserAgent,
			SetDefault:        true,
			RequestsPerMinute: defaultRequestsPerMinute,
		},
		Pipeline: Pipeline{
			FetchMaxAttempts:    defaultFetchMaxAttempts,
			FetchBackoffBase:    defaultFetchBackoffBase,
			FetchBackoffCap:     defaultFetchBackoffCap,
			DrainTimeoutSeconds: defaultDrainTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Errors:         true,
			Summary:        true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

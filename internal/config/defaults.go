package config

const (
	defaultCacheDir       = "~/.local/share/kitsusync/cache"
	defaultDatabasePath   = "~/.local/share/kitsusync/kitsusync.db"
	defaultSummaryPath    = "~/.local/share/kitsusync/summary.csv"
	defaultLogDir         = "~/.local/share/kitsusync/logs"
	defaultKitsuBaseURL   = "https://kitsu.io/api/edge"
	defaultPageLimit      = 20
	defaultRequestTimeout = 10
	defaultRatePerMinute  = 60
	defaultRetryAttempts  = 3
	defaultRetryBackoffMS = 500
	defaultWorkers        = 4
	defaultPublishTimeout = 30
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir:     defaultCacheDir,
			DatabasePath: defaultDatabasePath,
			SummaryPath:  defaultSummaryPath,
			LogDir:       defaultLogDir,
		},
		Kitsu: Kitsu{
			BaseURL:        defaultKitsuBaseURL,
			PageLimit:      defaultPageLimit,
			RequestTimeout: defaultRequestTimeout,
			RatePerMinute:  defaultRatePerMinute,
			RetryAttempts:  defaultRetryAttempts,
			RetryBackoffMS: defaultRetryBackoffMS,
		},
		Resolver: Resolver{
			Workers: defaultWorkers,
		},
		Publish: Publish{
			RequestTimeout: defaultPublishTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

package config

const (
	defaultContentRoot             = "~/.local/share/streamgate/content"
	defaultDataDir                 = "~/.local/share/streamgate"
	defaultAPIBind                 = "127.0.0.1:3000"
	defaultTokenTTLSeconds         = 600
	defaultSessionCookie           = "session"
	defaultShutdownTimeoutSeconds  = 10
	defaultReadHeaderTimeout       = 5
	defaultIdleTimeoutSeconds      = 60
	defaultLookupCacheSize         = 1024
	defaultLookupCacheTTLSeconds   = 30
	defaultQuotaGB                 = 10
	defaultQueuePollInterval       = 5
	defaultErrorRetryInterval      = 10
	defaultMaxAttempts             = 5
	defaultBackoffBaseSeconds      = 30
	defaultBackoffMaxSeconds       = 1800
	defaultFFmpegBinary            = "ffmpeg"
	defaultTranscodeTimeoutSeconds = 7200
	defaultPreviewSeconds          = 30
	defaultPosterOffsetSeconds     = 5
	defaultHLSSegmentSeconds       = 6
	defaultNtfyTimeoutSeconds      = 10
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ContentRoot: defaultContentRoot,
			DataDir:     defaultDataDir,
		},
		Stream: Stream{
			TokenTTLSeconds: defaultTokenTTLSeconds,
		},
		Session: Session{
			CookieName: defaultSessionCookie,
		},
		Server: Server{
			Bind:                   defaultAPIBind,
			ReadHeaderTimeout:      defaultReadHeaderTimeout,
			IdleTimeout:            defaultIdleTimeoutSeconds,
			ShutdownTimeoutSeconds: defaultShutdownTimeoutSeconds,
			LookupCacheSize:        defaultLookupCacheSize,
			LookupCacheTTLSeconds:  defaultLookupCacheTTLSeconds,
			RunWorker:              true,
		},
		Quota: Quota{
			DefaultGB: defaultQuotaGB,
		},
		Worker: Worker{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			MaxAttempts:        defaultMaxAttempts,
			BackoffBaseSeconds: defaultBackoffBaseSeconds,
			BackoffMaxSeconds:  defaultBackoffMaxSeconds,
		},
		Transcoder: Transcoder{
			FFmpegBinary:        defaultFFmpegBinary,
			TimeoutSeconds:      defaultTranscodeTimeoutSeconds,
			PreviewSeconds:      defaultPreviewSeconds,
			PosterOffsetSeconds: defaultPosterOffsetSeconds,
			HLSSegmentSeconds:   defaultHLSSegmentSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

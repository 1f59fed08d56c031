package config

import (
	"errors"
	"fmt"
	"sort"
)

// minSecretLength is the shortest accepted HMAC key.
const minSecretLength = 16

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStream(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateQuota(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateTranscoder(); err != nil {
		return err
	}
	if c.Notifications.NtfyTopic != "" && c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return c.validateLogging()
}

func (c *Config) validateStream() error {
	if c.Stream.Secret == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/streamgate/config.toml"
		}
		return fmt.Errorf("stream.secret is required. Set %s env var or edit %s (create with 'streamgate config init')", envStreamSecret, defaultPath)
	}
	if len(c.Stream.Secret) < minSecretLength {
		return fmt.Errorf("stream.secret must be at least %d characters", minSecretLength)
	}
	if c.Stream.TokenTTLSeconds <= 0 {
		return errors.New("stream.token_ttl_seconds must be positive")
	}
	return nil
}

func (c *Config) validateSession() error {
	if c.Session.Secret == "" {
		return fmt.Errorf("session.secret is required. Set %s env var or edit the config file", envSessionSecret)
	}
	if len(c.Session.Secret) < minSecretLength {
		return fmt.Errorf("session.secret must be at least %d characters", minSecretLength)
	}
	if c.Session.Secret == c.Stream.Secret {
		return errors.New("session.secret must differ from stream.secret")
	}
	return nil
}

func (c *Config) validateServer() error {
	return ensurePositiveMap(map[string]int{
		"server.read_header_timeout": c.Server.ReadHeaderTimeout,
		"server.idle_timeout":        c.Server.IdleTimeout,
		"server.shutdown_timeout":    c.Server.ShutdownTimeoutSeconds,
		"server.lookup_cache_size":   c.Server.LookupCacheSize,
		"server.lookup_cache_ttl":    c.Server.LookupCacheTTLSeconds,
	})
}

func (c *Config) validateQuota() error {
	if c.Quota.DefaultGB < 0 {
		return errors.New("quota.default_gb must not be negative")
	}
	return nil
}

func (c *Config) validateWorker() error {
	if err := ensurePositiveMap(map[string]int{
		"worker.queue_poll_interval":  c.Worker.QueuePollInterval,
		"worker.error_retry_interval": c.Worker.ErrorRetryInterval,
		"worker.max_attempts":         c.Worker.MaxAttempts,
		"worker.backoff_base":         c.Worker.BackoffBaseSeconds,
		"worker.backoff_max":          c.Worker.BackoffMaxSeconds,
	}); err != nil {
		return err
	}
	if c.Worker.BackoffMaxSeconds < c.Worker.BackoffBaseSeconds {
		return errors.New("worker.backoff_max must be at least worker.backoff_base")
	}
	return nil
}

func (c *Config) validateTranscoder() error {
	return ensurePositiveMap(map[string]int{
		"transcoder.timeout_seconds":       c.Transcoder.TimeoutSeconds,
		"transcoder.preview_seconds":       c.Transcoder.PreviewSeconds,
		"transcoder.poster_offset_seconds": c.Transcoder.PosterOffsetSeconds,
		"transcoder.hls_segment_seconds":   c.Transcoder.HLSSegmentSeconds,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

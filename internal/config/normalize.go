package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	envStreamSecret  = "STREAMGATE_STREAM_SECRET"
	envSessionSecret = "STREAMGATE_SESSION_SECRET"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSecrets()
	c.normalizeServer()
	c.normalizeTranscoder()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.ContentRoot) == "" {
		c.Paths.ContentRoot = defaultContentRoot
	}
	if c.Paths.ContentRoot, err = expandPath(strings.TrimSpace(c.Paths.ContentRoot)); err != nil {
		return fmt.Errorf("paths.content_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(strings.TrimSpace(c.Paths.DataDir)); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSecrets() {
	c.Stream.Secret = strings.TrimSpace(c.Stream.Secret)
	if c.Stream.Secret == "" {
		if value, ok := os.LookupEnv(envStreamSecret); ok {
			c.Stream.Secret = strings.TrimSpace(value)
		}
	}
	c.Session.Secret = strings.TrimSpace(c.Session.Secret)
	if c.Session.Secret == "" {
		if value, ok := os.LookupEnv(envSessionSecret); ok {
			c.Session.Secret = strings.TrimSpace(value)
		}
	}
	c.Session.CookieName = strings.TrimSpace(c.Session.CookieName)
	if c.Session.CookieName == "" {
		c.Session.CookieName = defaultSessionCookie
	}
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultAPIBind
	}
	origins := make([]string, 0, len(c.Server.AllowedOrigins))
	for _, origin := range c.Server.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.Server.AllowedOrigins = origins
}

func (c *Config) normalizeTranscoder() {
	c.Transcoder.FFmpegBinary = strings.TrimSpace(c.Transcoder.FFmpegBinary)
	if c.Transcoder.FFmpegBinary == "" {
		c.Transcoder.FFmpegBinary = defaultFFmpegBinary
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

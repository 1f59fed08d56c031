package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	ContentRoot string `toml:"content_root"`
	DataDir     string `toml:"data_dir"`
}

// Stream configures stream access tokens.
type Stream struct {
	Secret          string `toml:"secret"`
	TokenTTLSeconds int    `toml:"token_ttl_seconds"`
}

// Session configures verification of login sessions issued by the external
// authentication service.
type Session struct {
	Secret     string `toml:"secret"`
	CookieName string `toml:"cookie_name"`
}

// Server contains HTTP listener configuration.
type Server struct {
	Bind                   string   `toml:"bind"`
	ReadHeaderTimeout      int      `toml:"read_header_timeout"`
	IdleTimeout            int      `toml:"idle_timeout"`
	ShutdownTimeoutSeconds int      `toml:"shutdown_timeout"`
	AllowedOrigins         []string `toml:"allowed_origins"`
	LookupCacheSize        int      `toml:"lookup_cache_size"`
	LookupCacheTTLSeconds  int      `toml:"lookup_cache_ttl"`
	RunWorker              bool     `toml:"run_worker"`
}

// Quota contains entitlement defaults.
type Quota struct {
	DefaultGB float64 `toml:"default_gb"`
}

// Worker contains processing worker timing and retry policy.
type Worker struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	MaxAttempts        int `toml:"max_attempts"`
	BackoffBaseSeconds int `toml:"backoff_base"`
	BackoffMaxSeconds  int `toml:"backoff_max"`
}

// Transcoder contains settings for the external ffmpeg invocations.
type Transcoder struct {
	FFmpegBinary        string `toml:"ffmpeg_binary"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	PreviewSeconds      int    `toml:"preview_seconds"`
	PosterOffsetSeconds int    `toml:"poster_offset_seconds"`
	HLSSegmentSeconds   int    `toml:"hls_segment_seconds"`
}

// Notifications configures ntfy delivery of job events. An empty topic
// disables notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for streamgate.
//
// Configuration sections by subsystem:
//   - Paths: content root and state directory (database, logs, lock file)
//   - Stream: stream token signing key and validity window
//   - Session: shared secret for verifying login session tokens
//   - Server: HTTP bind address, timeouts, CORS, lookup cache
//   - Quota: entitlement granted to new quota rows
//   - Worker: queue polling and bounded retry policy
//   - Transcoder: ffmpeg binary and fixed rendition parameters
//   - Notifications: optional ntfy topic for job events
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Stream        Stream        `toml:"stream"`
	Session       Session       `toml:"session"`
	Server        Server        `toml:"server"`
	Quota         Quota         `toml:"quota"`
	Worker        Worker        `toml:"worker"`
	Transcoder    Transcoder    `toml:"transcoder"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/streamgate/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	loadDotEnv()
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads ENV_FILE (default .env) into the process environment.
// Variables already set win over file values; a missing file is ignored.
func loadDotEnv() {
	envFile := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("streamgate.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the content root and state directory.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ContentRoot, c.Paths.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "streamgate.db")
}

// WorkerLockPath returns the lock file guarding the single processing worker.
func (c *Config) WorkerLockPath() string {
	return filepath.Join(c.Paths.DataDir, "worker.lock")
}

// LogPath returns the file the logger appends to alongside stdout.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.DataDir, "streamgate.log")
}

// TokenTTL returns the stream token validity window.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Stream.TokenTTLSeconds) * time.Second
}

// PollInterval returns the worker's idle poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Worker.QueuePollInterval) * time.Second
}

// ErrorRetryInterval returns how long the worker waits after a store failure.
func (c *Config) ErrorRetryInterval() time.Duration {
	return time.Duration(c.Worker.ErrorRetryInterval) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

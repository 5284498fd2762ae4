package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Worker  WorkerConfig  `yaml:"worker"`
	Acquire AcquireConfig `yaml:"acquire"`
	Media   MediaConfig   `yaml:"media"`
	Whisper WhisperConfig `yaml:"whisper"`
	Notes   NotesConfig   `yaml:"notes"`
	Events  EventsConfig  `yaml:"events"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"9810"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"5m"`
}

// StorageConfig holds filesystem and database storage configuration.
type StorageConfig struct {
	BasePath      string `yaml:"base_path" envconfig:"STORAGE_PATH" default:"/data/lectures"`
	DatabasePath  string `yaml:"database_path" envconfig:"DATABASE_PATH" default:"/data/lectura.db"`
	EncryptionKey string `yaml:"encryption_key" envconfig:"ENCRYPTION_KEY"`
}

// WorkerConfig holds worker pool configuration. A single worker is the
// default so concurrent ffmpeg runs do not contend for CPU.
type WorkerConfig struct {
	Count        int           `yaml:"count" envconfig:"WORKER_COUNT" default:"1"`
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"WORKER_POLL_INTERVAL" default:"5s"`
	MaxRetries   int           `yaml:"max_retries" envconfig:"WORKER_MAX_RETRIES" default:"3"`
}

// AcquireConfig holds segment acquisition configuration.
type AcquireConfig struct {
	ProbeTimeout           time.Duration `yaml:"probe_timeout" envconfig:"ACQUIRE_PROBE_TIMEOUT" default:"15s"`
	FetchTimeout           time.Duration `yaml:"fetch_timeout" envconfig:"ACQUIRE_FETCH_TIMEOUT" default:"30s"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures" envconfig:"ACQUIRE_MAX_CONSECUTIVE_FAILURES" default:"10"`
	UserAgent              string        `yaml:"user_agent" envconfig:"ACQUIRE_USER_AGENT" default:"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"`
}

// MediaConfig holds reconstruction and clip configuration.
type MediaConfig struct {
	ClipDurationSeconds float64 `yaml:"clip_duration_seconds" envconfig:"MEDIA_CLIP_DURATION" default:"1200"`
	ClipPrefix          string  `yaml:"clip_prefix" envconfig:"MEDIA_CLIP_PREFIX" default:"clip"`
}

// WhisperConfig holds transcription service configuration. Transcription is
// optional; with no base URL the pipeline skips it.
type WhisperConfig struct {
	BaseURL string        `yaml:"base_url" envconfig:"WHISPER_BASE_URL"`
	APIKey  string        `yaml:"api_key" envconfig:"WHISPER_API_KEY"`
	Model   string        `yaml:"model" envconfig:"WHISPER_MODEL" default:"whisper-1"`
	Timeout time.Duration `yaml:"timeout" envconfig:"WHISPER_TIMEOUT" default:"10m"`
}

// NotesConfig holds the local LLM configuration for notes generation. Notes
// generation is optional; with no base URL the pipeline skips it.
type NotesConfig struct {
	BaseURL string        `yaml:"base_url" envconfig:"NOTES_BASE_URL"`
	Model   string        `yaml:"model" envconfig:"NOTES_MODEL" default:"llama3.1"`
	Timeout time.Duration `yaml:"timeout" envconfig:"NOTES_TIMEOUT" default:"5m"`
	Style   string        `yaml:"style" envconfig:"NOTES_STYLE" default:"lecture_notes"`
}

// EventsConfig holds the event log configuration.
type EventsConfig struct {
	BufferSize    int           `yaml:"buffer_size" envconfig:"EVENTS_BUFFER_SIZE" default:"1000"`
	RetentionDays int           `yaml:"retention_days" envconfig:"EVENTS_RETENTION_DAYS" default:"30"`
	FlushInterval time.Duration `yaml:"flush_interval" envconfig:"EVENTS_FLUSH_INTERVAL" default:"5s"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Server.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	if c.Storage.BasePath == "" {
		return fmt.Errorf("STORAGE_PATH is required")
	}
	if c.Storage.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if c.Media.ClipDurationSeconds <= 0 {
		return fmt.Errorf("MEDIA_CLIP_DURATION must be positive")
	}
	if c.Acquire.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("ACQUIRE_MAX_CONSECUTIVE_FAILURES must be positive")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

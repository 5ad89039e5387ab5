package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables overriding the backend endpoints
const (
	EnvAPIURL   = "BOOTH_API_URL"
	EnvWSURL    = "BOOTH_WS_URL"
	EnvAPIToken = "BOOTH_API_TOKEN"
)

// Config represents the complete booth configuration
type Config struct {
	API       APIConfig       `yaml:"api"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Recording RecordingConfig `yaml:"recording"`
	VAD       VADConfig       `yaml:"vad"`
	Session   SessionConfig   `yaml:"session"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// APIConfig contains parliament API client configuration
type APIConfig struct {
	BaseURL       string  `yaml:"base_url"`
	Token         string  `yaml:"token"`
	Timeout       int     `yaml:"timeout"`     // seconds
	RetryDelay    float64 `yaml:"retry_delay"` // seconds
	MaxRetries    int     `yaml:"max_retries"`
	MaxConcurrent int     `yaml:"max_concurrent"`
}

// RealtimeConfig contains WebSocket channel configuration
type RealtimeConfig struct {
	URL               string  `yaml:"url"`
	ReconnectInterval float64 `yaml:"reconnect_interval"` // seconds
	PingInterval      int     `yaml:"ping_interval"`      // seconds, 0 disables
}

// RecordingConfig contains microphone and vote window configuration
type RecordingConfig struct {
	Device                  string  `yaml:"device"` // ffmpeg or tone
	FFmpegPath              string  `yaml:"ffmpeg_path"`
	Input                   string  `yaml:"input"`
	SampleRate              int     `yaml:"sample_rate"`
	Channels                int     `yaml:"channels"`
	Duration                float64 `yaml:"duration"`          // seconds
	ProgressInterval        float64 `yaml:"progress_interval"` // seconds
	AnnounceBeforeRecording bool    `yaml:"announce_before_recording"`
	Announcer               string  `yaml:"announcer"` // speech binary, platform default when empty
	RequireSpeech           bool    `yaml:"require_speech"`
}

// VADConfig contains speech detection configuration
type VADConfig struct {
	Threshold         float32 `yaml:"threshold"`
	WindowSize        int     `yaml:"window_size"`         // samples
	MinSpeechDuration float64 `yaml:"min_speech_duration"` // seconds
	Smoothing         float32 `yaml:"smoothing"`
}

// SessionConfig contains session persistence configuration
type SessionConfig struct {
	Storage string `yaml:"storage"` // memory, file or sqlite
	Path    string `yaml:"path"`
}

// HTTPConfig contains the local status server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used for anything the file leaves out
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:       "http://localhost:3001",
			Timeout:       30,
			RetryDelay:    1,
			MaxRetries:    3,
			MaxConcurrent: 10,
		},
		Realtime: RealtimeConfig{
			URL:               "ws://localhost:3001/ws",
			ReconnectInterval: 2,
			PingInterval:      30,
		},
		Recording: RecordingConfig{
			Device:           "ffmpeg",
			SampleRate:       16000,
			Channels:         1,
			Duration:         5,
			ProgressInterval: 0.1,
		},
		VAD: VADConfig{
			Threshold:         0.1,
			WindowSize:        512,
			MinSpeechDuration: 0.3,
			Smoothing:         0.5,
		},
		Session: SessionConfig{
			Storage: "file",
			Path:    "./data",
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file, applies environment
// overrides and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.ApplyEnv(os.LookupEnv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Parse decodes YAML on top of the defaults
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// ApplyEnv overrides the backend endpoints from the environment
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIURL); ok && v != "" {
		c.API.BaseURL = v
	}
	if v, ok := lookup(EnvWSURL); ok && v != "" {
		c.Realtime.URL = v
	}
	if v, ok := lookup(EnvAPIToken); ok && v != "" {
		c.API.Token = v
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api config: %w", err)
	}

	if err := c.Realtime.Validate(); err != nil {
		return fmt.Errorf("realtime config: %w", err)
	}

	if err := c.Recording.Validate(); err != nil {
		return fmt.Errorf("recording config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates API configuration
func (a *APIConfig) Validate() error {
	if !strings.HasPrefix(a.BaseURL, "http://") && !strings.HasPrefix(a.BaseURL, "https://") {
		return fmt.Errorf("base_url must be an http(s) URL, got '%s'", a.BaseURL)
	}

	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}

	if a.RetryDelay <= 0 {
		return fmt.Errorf("retry_delay must be positive, got %f", a.RetryDelay)
	}

	if a.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", a.MaxRetries)
	}

	if a.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", a.MaxConcurrent)
	}

	return nil
}

// Validate validates realtime configuration
func (r *RealtimeConfig) Validate() error {
	if !strings.HasPrefix(r.URL, "ws://") && !strings.HasPrefix(r.URL, "wss://") {
		return fmt.Errorf("url must be a ws(s) URL, got '%s'", r.URL)
	}

	if r.ReconnectInterval <= 0 {
		return fmt.Errorf("reconnect_interval must be positive, got %f", r.ReconnectInterval)
	}

	if r.PingInterval < 0 {
		return fmt.Errorf("ping_interval cannot be negative, got %d", r.PingInterval)
	}

	return nil
}

// Validate validates recording configuration
func (r *RecordingConfig) Validate() error {
	validDevices := map[string]bool{"ffmpeg": true, "tone": true}
	if !validDevices[r.Device] {
		return fmt.Errorf("device must be 'ffmpeg' or 'tone', got '%s'", r.Device)
	}

	if r.SampleRate < 8000 || r.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", r.SampleRate)
	}

	if r.Channels != 1 && r.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", r.Channels)
	}

	if r.Duration <= 0 || r.Duration > 60 {
		return fmt.Errorf("duration must be between 0 and 60 seconds, got %f", r.Duration)
	}

	if r.ProgressInterval <= 0 || r.ProgressInterval >= r.Duration {
		return fmt.Errorf("progress_interval (%f) must be positive and shorter than duration (%f)",
			r.ProgressInterval, r.Duration)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.Threshold < 0 || v.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", v.Threshold)
	}

	if v.WindowSize < 256 || v.WindowSize > 2048 {
		return fmt.Errorf("window_size must be between 256 and 2048 samples, got %d", v.WindowSize)
	}

	if v.MinSpeechDuration < 0 {
		return fmt.Errorf("min_speech_duration cannot be negative, got %f", v.MinSpeechDuration)
	}

	if v.Smoothing <= 0 || v.Smoothing > 1 {
		return fmt.Errorf("smoothing must be in (0, 1], got %f", v.Smoothing)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	switch s.Storage {
	case "memory":
		return nil
	case "file", "sqlite":
		if s.Path == "" {
			return fmt.Errorf("path cannot be empty for %s storage", s.Storage)
		}
		return nil
	default:
		return fmt.Errorf("storage must be one of [memory, file, sqlite], got '%s'", s.Storage)
	}
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	if l.Output == "" {
		return fmt.Errorf("output cannot be empty, use stdout, stderr or a file path")
	}

	return nil
}

// GetTimeoutDuration returns the API timeout as a time.Duration
func (a *APIConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// GetRetryDelayDuration returns the first retry backoff as a time.Duration
func (a *APIConfig) GetRetryDelayDuration() time.Duration {
	return time.Duration(a.RetryDelay * float64(time.Second))
}

// GetReconnectIntervalDuration returns the redial delay as a time.Duration
func (r *RealtimeConfig) GetReconnectIntervalDuration() time.Duration {
	return time.Duration(r.ReconnectInterval * float64(time.Second))
}

// GetPingIntervalDuration returns the keepalive interval as a time.Duration
func (r *RealtimeConfig) GetPingIntervalDuration() time.Duration {
	return time.Duration(r.PingInterval) * time.Second
}

// GetDuration returns the vote window as a time.Duration
func (r *RecordingConfig) GetDuration() time.Duration {
	return time.Duration(r.Duration * float64(time.Second))
}

// GetProgressInterval returns the progress sampling interval as a time.Duration
func (r *RecordingConfig) GetProgressInterval() time.Duration {
	return time.Duration(r.ProgressInterval * float64(time.Second))
}

// GetMinSpeechDuration returns the minimum speech duration as a time.Duration
func (v *VADConfig) GetMinSpeechDuration() time.Duration {
	return time.Duration(v.MinSpeechDuration * float64(time.Second))
}

// ListenAddress returns the listen address of the status server
func (h *HTTPConfig) ListenAddress() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}

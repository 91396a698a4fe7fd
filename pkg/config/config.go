// Package config loads jarvis settings: built-in defaults, then the JSON config
// file, then environment variables (a .env file is loaded by main beforehand).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	xdgAppName = "jarvis"
	configFile = "config.json"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Duration reads and writes JSON strings such as "30s" or "24h".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// Plain numbers are seconds.
		var secs float64
		if err2 := json.Unmarshal(b, &secs); err2 != nil {
			return fmt.Errorf("duration must be a string like \"30s\": %w", err)
		}
		d.Duration = time.Duration(secs * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	DataDir   string          `json:"data_dir"`
	LogLevel  string          `json:"log_level"`
	Calendar  CalendarConfig  `json:"calendar"`
	Storage   StorageConfig   `json:"storage"`
	Server    ServerConfig    `json:"server"`
	Claude    ClaudeConfig    `json:"claude"`
	Assistant AssistantConfig `json:"assistant"`
	Voice     VoiceConfig     `json:"voice"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}

type CalendarConfig struct {
	Name         string            `json:"name"`
	TimeZone     string            `json:"time_zone"`
	Colors       map[string]string `json:"colors,omitempty"`
	OverdueSweep Duration          `json:"overdue_sweep"`
	ClientID     string            `json:"-"`
	ClientSecret string            `json:"-"`
}

type StorageConfig struct {
	Backend    string      `json:"backend"`
	TasksFile  string      `json:"tasks_file"`
	SQLitePath string      `json:"sqlite_path"`
	Redis      RedisConfig `json:"redis"`
}

type RedisConfig struct {
	Addr         string   `json:"addr"`
	DB           int      `json:"db"`
	Key          string   `json:"key"`
	DialTimeout  Duration `json:"dial_timeout"`
	ReadTimeout  Duration `json:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout"`
	Password     string   `json:"-"`
}

type ServerConfig struct {
	Host         string   `json:"host"`
	Port         string   `json:"port"`
	ReadTimeout  Duration `json:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout"`
	IdleTimeout  Duration `json:"idle_timeout"`
	CORSOrigins  []string `json:"cors_origins"`
	Environment  string   `json:"environment"`
}

type ClaudeConfig struct {
	Model       string   `json:"model"`
	BaseURL     string   `json:"base_url"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature float64  `json:"temperature"`
	Timeout     Duration `json:"timeout"`
	APIKey      string   `json:"-"`
}

type AssistantConfig struct {
	Window         int      `json:"window"`
	HistoryLimit   int      `json:"history_limit"`
	SessionTimeout Duration `json:"session_timeout"`
	// StructuredActions asks the model for an explicit actions block instead of
	// relying on its phrasing alone.
	StructuredActions bool `json:"structured_actions"`
}

type VoiceConfig struct {
	BaseURL         string   `json:"base_url"`
	STTModel        string   `json:"stt_model"`
	TTSModel        string   `json:"tts_model"`
	Voice           string   `json:"voice"`
	Language        string   `json:"language"`
	AudioDir        string   `json:"audio_dir"`
	MaxAge          Duration `json:"max_age"`
	CleanupInterval Duration `json:"cleanup_interval"`
	Timeout         Duration `json:"timeout"`
	APIKey          string   `json:"-"`
}

type RateLimitConfig struct {
	Enabled         bool     `json:"enabled"`
	RequestsPerMin  int      `json:"requests_per_minute"`
	BurstSize       int      `json:"burst_size"`
	CleanupInterval Duration `json:"cleanup_interval"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Calendar: CalendarConfig{
			Name:         "primary",
			TimeZone:     "Europe/Paris",
			OverdueSweep: Duration{15 * time.Minute},
		},
		Storage: StorageConfig{
			Backend: BackendFile,
			Redis: RedisConfig{
				Addr:         "localhost:6379",
				Key:          "jarvis:tasks",
				DialTimeout:  Duration{5 * time.Second},
				ReadTimeout:  Duration{3 * time.Second},
				WriteTimeout: Duration{3 * time.Second},
			},
		},
		Server: ServerConfig{
			Host:         "localhost",
			Port:         "5000",
			ReadTimeout:  Duration{30 * time.Second},
			WriteTimeout: Duration{90 * time.Second},
			IdleTimeout:  Duration{60 * time.Second},
			CORSOrigins:  []string{"*"},
			Environment:  "development",
		},
		Claude: ClaudeConfig{
			Model:       "claude-3-7-sonnet-20250219",
			BaseURL:     "https://api.anthropic.com",
			MaxTokens:   2000,
			Temperature: 0.7,
			Timeout:     Duration{30 * time.Second},
		},
		Assistant: AssistantConfig{
			Window:         10,
			SessionTimeout: Duration{30 * time.Minute},
		},
		Voice: VoiceConfig{
			BaseURL:         "https://api.openai.com/v1",
			STTModel:        "whisper-1",
			TTSModel:        "tts-1",
			Voice:           "alloy",
			Language:        "fr",
			MaxAge:          Duration{24 * time.Hour},
			CleanupInterval: Duration{time.Hour},
			Timeout:         Duration{60 * time.Second},
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			RequestsPerMin:  30,
			BurstSize:       5,
			CleanupInterval: Duration{10 * time.Minute},
		},
	}
}

// Dir is where the config file, Google credentials and token live. It honours
// JARVIS_CONFIG_DIR.
func Dir() (string, error) {
	if dir := os.Getenv("JARVIS_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	xdgHome, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(xdgHome, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load reads the config file, if any, over the defaults and applies environment
// overrides.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

func LoadFile(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	cfg.applyEnv()
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.DataDir = getEnv("JARVIS_DATA_DIR", c.DataDir)
	c.LogLevel = getEnv("JARVIS_LOG_LEVEL", c.LogLevel)

	c.Calendar.Name = getEnv("JARVIS_CALENDAR", c.Calendar.Name)
	c.Calendar.TimeZone = getEnv("JARVIS_TIMEZONE", c.Calendar.TimeZone)
	c.Calendar.ClientID = getEnv("GOOGLE_CLIENT_ID", c.Calendar.ClientID)
	c.Calendar.ClientSecret = getEnv("GOOGLE_CLIENT_SECRET", c.Calendar.ClientSecret)

	c.Storage.Backend = getEnv("JARVIS_STORAGE", c.Storage.Backend)
	c.Storage.TasksFile = getEnv("JARVIS_TASKS_FILE", c.Storage.TasksFile)
	c.Storage.SQLitePath = getEnv("JARVIS_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.Redis.Addr = getEnv("REDIS_ADDR", c.Storage.Redis.Addr)
	c.Storage.Redis.Password = getEnv("REDIS_PASSWORD", c.Storage.Redis.Password)
	c.Storage.Redis.DB = getEnvAsInt("REDIS_DB", c.Storage.Redis.DB)

	c.Server.Host = getEnv("HOST", c.Server.Host)
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Environment = getEnv("ENVIRONMENT", c.Server.Environment)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		c.Server.CORSOrigins = strings.Split(origins, ",")
	}

	c.Claude.APIKey = getEnv("ANTHROPIC_API_KEY", c.Claude.APIKey)
	c.Claude.Model = getEnv("CLAUDE_MODEL", c.Claude.Model)
	c.Claude.Timeout.Duration = getEnvAsDuration("CLAUDE_TIMEOUT", c.Claude.Timeout.Duration)

	c.Assistant.Window = getEnvAsInt("JARVIS_HISTORY_WINDOW", c.Assistant.Window)
	c.Assistant.StructuredActions = getEnvAsBool("JARVIS_STRUCTURED_ACTIONS", c.Assistant.StructuredActions)

	c.Voice.APIKey = getEnv("OPENAI_API_KEY", c.Voice.APIKey)
	c.Voice.BaseURL = getEnv("OPENAI_BASE_URL", c.Voice.BaseURL)
	c.Voice.Language = getEnv("JARVIS_LANGUAGE", c.Voice.Language)

	c.RateLimit.Enabled = getEnvAsBool("RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.RequestsPerMin = getEnvAsInt("RATE_LIMIT_RPM", c.RateLimit.RequestsPerMin)
	c.RateLimit.BurstSize = getEnvAsInt("RATE_LIMIT_BURST", c.RateLimit.BurstSize)
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFile, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unknown storage backend %q (want file, sqlite or redis)", c.Storage.Backend)
	}
	if c.Assistant.Window < 1 {
		return fmt.Errorf("assistant.window must be at least 1")
	}
	if c.Assistant.HistoryLimit < 0 {
		return fmt.Errorf("assistant.history_limit can't be negative")
	}
	if c.Calendar.TimeZone != "" {
		if _, err := time.LoadLocation(c.Calendar.TimeZone); err != nil {
			return fmt.Errorf("calendar.time_zone: %w", err)
		}
	}
	return nil
}

// Save writes cfg to the config file. Secrets are never written.
func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(path, cfg)
}

func SaveFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file for writing: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(cfg)
}

func (c *Config) path(configured, name string) string {
	if configured != "" {
		return configured
	}
	return filepath.Join(c.DataDir, name)
}

func (c *Config) TasksPath() string   { return c.path(c.Storage.TasksFile, "tasks.json") }
func (c *Config) SQLitePath() string  { return c.path(c.Storage.SQLitePath, "jarvis.db") }
func (c *Config) AudioDir() string    { return c.path(c.Voice.AudioDir, "audio") }
func (c *Config) IndexPath() string   { return c.path("", "events.json") }
func (c *Config) OverduePath() string { return c.path("", "overdue.json") }

func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

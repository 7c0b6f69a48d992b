package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the service configuration. Values are layered: defaults, then
// the optional YAML file named by TIMETABLE_CONFIG, then TIMETABLE_*
// environment variables (a local .env file is loaded first if present).
type Config struct {
	Port      string `yaml:"port"`
	DBPath    string `yaml:"db_path"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Timezone is the IANA zone used to derive day of week and time of day.
	// "Local" uses the host zone.
	Timezone string `yaml:"timezone"`

	// MaxUploadMB caps import file size.
	MaxUploadMB int64 `yaml:"max_upload_mb"`

	// WSOrigins lists host patterns allowed to open cross-origin websocket
	// connections. Same-origin connections are always accepted.
	WSOrigins []string `yaml:"ws_origins"`

	// TrustProxy takes client addresses from X-Real-IP / X-Forwarded-For.
	// Enable only behind a reverse proxy that sets those headers.
	TrustProxy bool `yaml:"trust_proxy"`

	Display DisplayConfig `yaml:"display"`
	Review  ReviewConfig  `yaml:"review"`

	Location *time.Location `yaml:"-"`
}

// DisplayConfig controls the out-of-process status file. An empty Path
// disables it.
type DisplayConfig struct {
	Path string `yaml:"path"`
	Cron string `yaml:"cron"`
}

type ReviewConfig struct {
	// TTL is how long an import waits for accept or reject.
	TTL time.Duration `yaml:"ttl"`
}

func DefaultConfig() *Config {
	return &Config{
		Port:        "8080",
		DBPath:      "timetable.db",
		LogLevel:    "info",
		LogFormat:   "text",
		Timezone:    "Local",
		MaxUploadMB: 5,
		Display:     DisplayConfig{Cron: "@every 1m"},
		Review:      ReviewConfig{TTL: 15 * time.Minute},
	}
}

// Load builds the configuration from the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	if path := getEnvOrDefault("TIMETABLE_CONFIG", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnvOrDefault("TIMETABLE_PORT", c.Port)
	c.DBPath = getEnvOrDefault("TIMETABLE_DB_PATH", c.DBPath)
	c.LogLevel = getEnvOrDefault("TIMETABLE_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvOrDefault("TIMETABLE_LOG_FORMAT", c.LogFormat)
	c.Timezone = getEnvOrDefault("TIMETABLE_TIMEZONE", c.Timezone)
	c.Display.Path = getEnvOrDefault("TIMETABLE_DISPLAY_PATH", c.Display.Path)
	c.Display.Cron = getEnvOrDefault("TIMETABLE_DISPLAY_CRON", c.Display.Cron)

	if v := getEnvOrDefault("TIMETABLE_WS_ORIGINS", ""); v != "" {
		c.WSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.WSOrigins = append(c.WSOrigins, o)
			}
		}
	}
	if v := getEnvOrDefault("TIMETABLE_TRUST_PROXY", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TIMETABLE_TRUST_PROXY: %w", err)
		}
		c.TrustProxy = b
	}
	if v := getEnvOrDefault("TIMETABLE_REVIEW_TTL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TIMETABLE_REVIEW_TTL: %w", err)
		}
		c.Review.TTL = d
	}
	if v := getEnvOrDefault("TIMETABLE_MAX_UPLOAD_MB", ""); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TIMETABLE_MAX_UPLOAD_MB: %w", err)
		}
		c.MaxUploadMB = n
	}
	return nil
}

// Normalize fills zero values with defaults and resolves the timezone.
func (c *Config) Normalize() error {
	def := DefaultConfig()
	if c.Port == "" {
		c.Port = def.Port
	}
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
		c.LogFormat = strings.ToLower(c.LogFormat)
	default:
		c.LogFormat = def.LogFormat
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = def.MaxUploadMB
	}
	if c.Display.Cron == "" {
		c.Display.Cron = def.Display.Cron
	}
	if c.Review.TTL <= 0 {
		c.Review.TTL = def.Review.TTL
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	c.Location = loc
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Redis     RedisConfig     `yaml:"redis"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Name           string   `yaml:"name"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	TrustedProxies []string `yaml:"trusted_proxies"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	AccessTokenSecret  string        `yaml:"access_token_secret"`
	RefreshTokenSecret string        `yaml:"refresh_token_secret"`
	AccessTokenTTL     time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL    time.Duration `yaml:"refresh_token_ttl"`
	CookieSecure       *bool         `yaml:"cookie_secure"`
	CookieDomain       string        `yaml:"cookie_domain"`
	BcryptCost         int           `yaml:"bcrypt_cost"`
}

// SecureCookies reports whether the refresh cookie carries the Secure flag.
func (a AuthConfig) SecureCookies() bool {
	return a.CookieSecure == nil || *a.CookieSecure
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type WebSocketConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	SendBuffer     int      `yaml:"send_buffer"`
	JoinRate       float64  `yaml:"join_rate"`
	JoinBurst      int      `yaml:"join_burst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes, applying env overrides, validation and defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("THREADS_ACCESS_TOKEN_SECRET"); v != "" {
		c.Auth.AccessTokenSecret = v
	}
	if v := os.Getenv("THREADS_REFRESH_TOKEN_SECRET"); v != "" {
		c.Auth.RefreshTokenSecret = v
	}
	if v := os.Getenv("THREADS_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("THREADS_DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
}

func (c *Config) validate() error {
	if c.Auth.AccessTokenSecret == "" {
		return fmt.Errorf("auth.access_token_secret is required")
	}
	if c.Auth.RefreshTokenSecret == "" {
		return fmt.Errorf("auth.refresh_token_secret is required")
	}
	if len(c.Auth.AccessTokenSecret) < 32 {
		return fmt.Errorf("auth.access_token_secret must be at least 32 characters")
	}
	if len(c.Auth.RefreshTokenSecret) < 32 {
		return fmt.Errorf("auth.refresh_token_secret must be at least 32 characters")
	}
	if c.Auth.AccessTokenSecret == c.Auth.RefreshTokenSecret {
		return fmt.Errorf("auth.access_token_secret and auth.refresh_token_secret must differ")
	}
	if c.Auth.AccessTokenTTL >= c.Auth.RefreshTokenTTL {
		return fmt.Errorf("auth.access_token_ttl must be shorter than auth.refresh_token_ttl")
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("auth.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text")
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.Name == "" {
		c.Server.Name = "Threads"
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 1 << 20
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/threads.db"
	}
	if c.Auth.AccessTokenTTL == 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL == 0 {
		c.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = bcrypt.DefaultCost
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "threads:events"
	}
	if len(c.WebSocket.AllowedOrigins) == 0 {
		c.WebSocket.AllowedOrigins = c.Server.AllowedOrigins
	}
	if c.WebSocket.SendBuffer == 0 {
		c.WebSocket.SendBuffer = 256
	}
	if c.WebSocket.JoinRate == 0 {
		c.WebSocket.JoinRate = 5
	}
	if c.WebSocket.JoinBurst == 0 {
		c.WebSocket.JoinBurst = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SlogLevel maps log.level to a slog.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

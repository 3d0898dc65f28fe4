package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime settings. Values come from defaults overridden by
// TUTORHUB_* environment variables; cmd/tutorhub loads a .env file first so
// local development doesn't need exported vars.
type Config struct {
	Database  *DatabaseConfig
	HTTP      *HTTPConfig
	WebSocket *WebSocketConfig
	Redis     *RedisConfig
	Session   *SessionConfig
}

type DatabaseConfig struct {
	Path    string
	Timeout time.Duration
}

type HTTPConfig struct {
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type WebSocketConfig struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisConfig configures the volunteer paging channel. An empty Addr disables
// notifications.
type RedisConfig struct {
	Addr     string
	Password string
	Channel  string
}

type SessionConfig struct {
	// ValidTypes a student may open; matched case-insensitively.
	ValidTypes []string
}

func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./tutorhub.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Redis: &RedisConfig{
			Addr:    "",
			Channel: "tutorhub:waiting-sessions",
		},
		Session: &SessionConfig{
			ValidTypes: []string{"Math", "College"},
		},
	}
}

// LoadFromEnv returns the defaults overridden by any TUTORHUB_* variables.
// Unparseable values fall back to the default.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if port := os.Getenv("TUTORHUB_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.HTTP.Port = p
		}
	}
	if host := os.Getenv("TUTORHUB_HTTP_HOST"); host != "" {
		cfg.HTTP.Host = host
	}
	if v := os.Getenv("TUTORHUB_HTTP_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.ReadTimeout = d
		}
	}
	if v := os.Getenv("TUTORHUB_HTTP_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.WriteTimeout = d
		}
	}

	if path := os.Getenv("TUTORHUB_DATABASE_PATH"); path != "" {
		cfg.Database.Path = path
	}
	if v := os.Getenv("TUTORHUB_DATABASE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Database.Timeout = d
		}
	}

	if v := os.Getenv("TUTORHUB_WEBSOCKET_PING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WebSocket.PingInterval = d
		}
	}
	if v := os.Getenv("TUTORHUB_WEBSOCKET_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WebSocket.ReadTimeout = d
		}
	}
	if v := os.Getenv("TUTORHUB_WEBSOCKET_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WebSocket.WriteTimeout = d
		}
	}

	if addr := os.Getenv("TUTORHUB_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("TUTORHUB_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if channel := os.Getenv("TUTORHUB_REDIS_CHANNEL"); channel != "" {
		cfg.Redis.Channel = channel
	}

	if v := os.Getenv("TUTORHUB_SESSION_TYPES"); v != "" {
		var sessionTypes []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				sessionTypes = append(sessionTypes, t)
			}
		}
		if len(sessionTypes) > 0 {
			cfg.Session.ValidTypes = sessionTypes
		}
	}

	return cfg
}

// Validate checks the configuration before any component starts.
func (c *Config) Validate() error {
	if c.Database == nil || c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket intervals must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}

	if c.Redis == nil {
		return fmt.Errorf("redis configuration is required")
	}
	if c.Redis.Addr != "" && c.Redis.Channel == "" {
		return fmt.Errorf("redis channel cannot be empty when redis is enabled")
	}

	if c.Session == nil || len(c.Session.ValidTypes) == 0 {
		return fmt.Errorf("at least one valid session type is required")
	}

	return nil
}

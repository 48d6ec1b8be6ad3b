package config

import (
	"errors"
	"fmt"
	"time"
)

// History backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	// ProtocolPath overrides the embedded protocol table when set.
	ProtocolPath string `mapstructure:"protocol_path" yaml:"protocol_path"`

	HistoryBackend string        `mapstructure:"history_backend" yaml:"history_backend"`
	HistoryDir     string        `mapstructure:"history_dir" yaml:"history_dir"`
	DatabasePath   string        `mapstructure:"database_path" yaml:"database_path"`
	RedisURL       string        `mapstructure:"redis_url" yaml:"redis_url"`
	HistoryLimit   int           `mapstructure:"history_limit" yaml:"history_limit"`
	FlushEvery     int           `mapstructure:"flush_every" yaml:"flush_every"`
	FlushInterval  time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`

	HeartbeatInterval  time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	SendBuffer         int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	PreviewLength      int           `mapstructure:"preview_length" yaml:"preview_length"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		HistoryBackend:     BackendFile,
		HistoryDir:         "chat_history",
		DatabasePath:       "wirechat.db",
		RedisURL:           "redis://localhost:6379/0",
		HistoryLimit:       100,
		FlushEvery:         10,
		FlushInterval:      time.Minute,
		HeartbeatInterval:  30 * time.Second,
		SendBuffer:         64,
		MaxMessageBytes:    64 << 10,
		RateLimitPerMinute: 120,
		PreviewLength:      50,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.ProtocolPath != "" {
		c.ProtocolPath = other.ProtocolPath
	}
	if other.HistoryBackend != "" {
		c.HistoryBackend = other.HistoryBackend
	}
	if other.HistoryDir != "" {
		c.HistoryDir = other.HistoryDir
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.RedisURL != "" {
		c.RedisURL = other.RedisURL
	}
	if other.HistoryLimit != 0 {
		c.HistoryLimit = other.HistoryLimit
	}
	if other.FlushEvery != 0 {
		c.FlushEvery = other.FlushEvery
	}
	if other.FlushInterval != 0 {
		c.FlushInterval = other.FlushInterval
	}
	if other.HeartbeatInterval != 0 {
		c.HeartbeatInterval = other.HeartbeatInterval
	}
	if other.SendBuffer != 0 {
		c.SendBuffer = other.SendBuffer
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.RateLimitPerMinute != 0 {
		c.RateLimitPerMinute = other.RateLimitPerMinute
	}
	if other.PreviewLength != 0 {
		c.PreviewLength = other.PreviewLength
	}
}

// Validate reports the first setting the server cannot run with.
func (c Config) Validate() error {
	switch c.HistoryBackend {
	case BackendMemory, BackendFile, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unknown history_backend %q", c.HistoryBackend)
	}
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.HistoryLimit <= 0 {
		return errors.New("history_limit must be positive")
	}
	if c.FlushEvery <= 0 {
		return errors.New("flush_every must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("heartbeat_interval must be positive")
	}
	if c.SendBuffer <= 0 {
		return errors.New("send_buffer must be positive")
	}
	return nil
}

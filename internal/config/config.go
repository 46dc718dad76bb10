package config

import (
	"errors"
	"time"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	UploadsDir   string `mapstructure:"uploads_dir" yaml:"uploads_dir"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
	AuthCookie  string        `mapstructure:"auth_cookie" yaml:"auth_cookie"`

	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout" yaml:"heartbeat_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	SendBuffer        int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	// RateLimit caps inbound frames per connection per minute. Zero disables it.
	RateLimit int `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// DefaultJWTSecret is the placeholder secret written to fresh config files.
const DefaultJWTSecret = "change-me"

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "mesgar.db",
		UploadsDir:        "uploads",
		JWTSecret:         DefaultJWTSecret,
		JWTIssuer:         "mesgar",
		JWTAudience:       "mesgar",
		JWTTTL:            24 * time.Hour,
		AuthCookie:        "token",
		HeartbeatInterval: 5 * time.Second,
		HeartbeatTimeout:  time.Second,
		WriteTimeout:      10 * time.Second,
		MaxMessageBytes:   8 << 20,
		SendBuffer:        32,
		RateLimit:         0,
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
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.UploadsDir != "" {
		c.UploadsDir = other.UploadsDir
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.HeartbeatInterval != 0 {
		c.HeartbeatInterval = other.HeartbeatInterval
	}
	if other.HeartbeatTimeout != 0 {
		c.HeartbeatTimeout = other.HeartbeatTimeout
	}
}

// Validate reports settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if c.AuthCookie == "" {
		errs = append(errs, errors.New("auth_cookie is required"))
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatTimeout <= 0 {
		errs = append(errs, errors.New("heartbeat_interval and heartbeat_timeout must be positive"))
	}
	if c.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("max_message_bytes must be positive"))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, errors.New("send_buffer must be positive"))
	}
	return errors.Join(errs...)
}

package config

import "time"

// Config is the root configuration for a session instance.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Terminal  TerminalConfig  `yaml:"terminal"`
	Session   SessionConfig   `yaml:"session"`
	Transport TransportConfig `yaml:"transport"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// TerminalConfig addresses the trading terminal.
type TerminalConfig struct {
	URL      string `yaml:"url"`       // ws:// or wss:// endpoint
	ClientID int64  `yaml:"client_id"` // API client id; one session per id
	Account  string `yaml:"account"`   // Account for account updates; empty uses the first managed account
}

// SessionConfig holds connection lifecycle and request settings.
type SessionConfig struct {
	PreConnectDelay time.Duration `yaml:"pre_connect_delay"`
	ConfirmDelay    time.Duration `yaml:"confirm_delay"`
	ConfirmTimeout  time.Duration `yaml:"confirm_timeout"` // Max wait for the handshake after open
	ReconnectDelay  time.Duration `yaml:"reconnect_delay"`
	CloseTimeout    time.Duration `yaml:"close_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	RequestIDStart  int64         `yaml:"request_id_start"` // Kept well above order ids
}

// TransportConfig holds websocket settings.
type TransportConfig struct {
	PingInterval      time.Duration `yaml:"ping_interval"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	MaxRequestsPerSec float64       `yaml:"max_requests_per_sec"`
	Burst             int           `yaml:"burst"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

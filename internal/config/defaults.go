package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultTerminalURL       = "ws://127.0.0.1:7497/api"
	DefaultPreConnectDelay   = 100 * time.Millisecond
	DefaultConfirmDelay      = 500 * time.Millisecond
	DefaultConfirmTimeout    = 10 * time.Second
	DefaultReconnectDelay    = 5 * time.Second
	DefaultCloseTimeout      = 5 * time.Second
	DefaultRequestTimeout    = 10 * time.Second
	DefaultRequestIDStart    = 1_000_000
	DefaultPingInterval      = 30 * time.Second
	DefaultPingTimeout       = 60 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultMaxRequestsPerSec = 50
	DefaultBurst             = 10
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultLogMaxSizeMB      = 100
	DefaultLogMaxBackups     = 5
	DefaultLogMaxAgeDays     = 30
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
)

// ApplyDefaults fills unset fields. Zero durations and counts are unset.
func (c *Config) ApplyDefaults() {
	// Terminal defaults
	if c.Terminal.URL == "" {
		c.Terminal.URL = DefaultTerminalURL
	}

	// Session defaults
	if c.Session.PreConnectDelay == 0 {
		c.Session.PreConnectDelay = DefaultPreConnectDelay
	}
	if c.Session.ConfirmDelay == 0 {
		c.Session.ConfirmDelay = DefaultConfirmDelay
	}
	if c.Session.ConfirmTimeout == 0 {
		c.Session.ConfirmTimeout = DefaultConfirmTimeout
	}
	if c.Session.ReconnectDelay == 0 {
		c.Session.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Session.CloseTimeout == 0 {
		c.Session.CloseTimeout = DefaultCloseTimeout
	}
	if c.Session.RequestTimeout == 0 {
		c.Session.RequestTimeout = DefaultRequestTimeout
	}
	if c.Session.RequestIDStart == 0 {
		c.Session.RequestIDStart = DefaultRequestIDStart
	}

	// Transport defaults
	if c.Transport.PingInterval == 0 {
		c.Transport.PingInterval = DefaultPingInterval
	}
	if c.Transport.PingTimeout == 0 {
		c.Transport.PingTimeout = DefaultPingTimeout
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = DefaultWriteTimeout
	}
	if c.Transport.HandshakeTimeout == 0 {
		c.Transport.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Transport.MaxRequestsPerSec == 0 {
		c.Transport.MaxRequestsPerSec = DefaultMaxRequestsPerSec
	}
	if c.Transport.Burst == 0 {
		c.Transport.Burst = DefaultBurst
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = DefaultLogMaxAgeDays
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

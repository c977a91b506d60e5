package config

import (
	"github.com/rickgao/tws-session/internal/connection"
	"github.com/rickgao/tws-session/internal/logging"
	"github.com/rickgao/tws-session/internal/session"
	"github.com/rickgao/tws-session/internal/transport"
)

// SessionConfig returns the session settings.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		Monitor: connection.Config{
			Addr:            c.Terminal.URL,
			PreConnectDelay: c.Session.PreConnectDelay,
			ConfirmDelay:    c.Session.ConfirmDelay,
			ConfirmTimeout:  c.Session.ConfirmTimeout,
			ReconnectDelay:  c.Session.ReconnectDelay,
		},
		ClientID:       c.Terminal.ClientID,
		Account:        c.Terminal.Account,
		RequestTimeout: c.Session.RequestTimeout,
		CloseTimeout:   c.Session.CloseTimeout,
		RequestIDStart: c.Session.RequestIDStart,
	}
}

// ClientConfig returns the websocket transport settings.
func (c *Config) ClientConfig() transport.ClientConfig {
	return transport.ClientConfig{
		ClientID:          c.Terminal.ClientID,
		HandshakeTimeout:  c.Transport.HandshakeTimeout,
		PingInterval:      c.Transport.PingInterval,
		PingTimeout:       c.Transport.PingTimeout,
		WriteTimeout:      c.Transport.WriteTimeout,
		MaxRequestsPerSec: c.Transport.MaxRequestsPerSec,
		Burst:             c.Transport.Burst,
	}
}

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}

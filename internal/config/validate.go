package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Terminal.validate("terminal"); err != nil {
		return err
	}

	if c.Session.PreConnectDelay < 0 || c.Session.ConfirmDelay < 0 || c.Session.ReconnectDelay < 0 {
		return errors.New("session delays must be >= 0")
	}
	if c.Session.ConfirmTimeout <= 0 {
		return errors.New("session.confirm_timeout must be > 0")
	}
	if c.Session.CloseTimeout <= 0 {
		return errors.New("session.close_timeout must be > 0")
	}
	if c.Session.RequestTimeout <= 0 {
		return errors.New("session.request_timeout must be > 0")
	}
	if c.Session.RequestIDStart < 1 {
		return errors.New("session.request_id_start must be >= 1")
	}

	if c.Transport.PingTimeout < c.Transport.PingInterval {
		return fmt.Errorf("transport.ping_timeout (%s) must be >= ping_interval (%s)", c.Transport.PingTimeout, c.Transport.PingInterval)
	}
	if c.Transport.MaxRequestsPerSec < 0 {
		return errors.New("transport.max_requests_per_sec must be >= 0")
	}
	if c.Transport.Burst < 1 {
		return errors.New("transport.burst must be >= 1")
	}

	if !slices.Contains([]string{"debug", "info", "warn", "warning", "error"}, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if !slices.Contains([]string{"json", "console", "text"}, strings.ToLower(c.Logging.Format)) {
		return fmt.Errorf("logging.format %q is not json or console", c.Logging.Format)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (t *TerminalConfig) validate(prefix string) error {
	if t.URL == "" {
		return fmt.Errorf("%s.url is required", prefix)
	}
	u, err := url.Parse(t.URL)
	if err != nil {
		return fmt.Errorf("%s.url: %w", prefix, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%s.url scheme must be ws or wss, got %q", prefix, u.Scheme)
	}
	if t.ClientID < 0 {
		return fmt.Errorf("%s.client_id must be >= 0", prefix)
	}
	return nil
}

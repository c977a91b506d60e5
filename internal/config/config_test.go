package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-session
terminal:
  url: ws://10.0.0.5:7497/api
  client_id: 12
  account: DU123456
session:
  reconnect_delay: 2s
  confirm_timeout: 3s
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-session" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-session")
	}
	if cfg.Terminal.URL != "ws://10.0.0.5:7497/api" {
		t.Errorf("Terminal.URL = %q, want %q", cfg.Terminal.URL, "ws://10.0.0.5:7497/api")
	}
	if cfg.Terminal.ClientID != 12 {
		t.Errorf("Terminal.ClientID = %d, want 12", cfg.Terminal.ClientID)
	}
	if cfg.Session.ReconnectDelay != 2*time.Second {
		t.Errorf("Session.ReconnectDelay = %v, want 2s", cfg.Session.ReconnectDelay)
	}
	if cfg.Session.ConfirmTimeout != 3*time.Second {
		t.Errorf("Session.ConfirmTimeout = %v, want 3s", cfg.Session.ConfirmTimeout)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_TERMINAL_ACCOUNT", "DU999")

	yaml := `
instance:
  id: test-session
terminal:
  account: ${TEST_TERMINAL_ACCOUNT}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Terminal.Account != "DU999" {
		t.Errorf("Terminal.Account = %q, want %q", cfg.Terminal.Account, "DU999")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeTempFile(t, "session:\n  reconnect_delay: [1s\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for malformed yaml")
	}
	if !strings.Contains(err.Error(), "decode session config") {
		t.Errorf("error = %q, want decode message", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-session
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Terminal.URL != DefaultTerminalURL {
		t.Errorf("Terminal.URL = %q, want default %q", cfg.Terminal.URL, DefaultTerminalURL)
	}
	if cfg.Session.ConfirmDelay != DefaultConfirmDelay {
		t.Errorf("Session.ConfirmDelay = %v, want default %v", cfg.Session.ConfirmDelay, DefaultConfirmDelay)
	}
	if cfg.Session.RequestIDStart != DefaultRequestIDStart {
		t.Errorf("Session.RequestIDStart = %d, want default %d", cfg.Session.RequestIDStart, DefaultRequestIDStart)
	}
	if cfg.Transport.MaxRequestsPerSec != DefaultMaxRequestsPerSec {
		t.Errorf("Transport.MaxRequestsPerSec = %v, want default %v", cfg.Transport.MaxRequestsPerSec, DefaultMaxRequestsPerSec)
	}
	if cfg.Logging.Format != DefaultLogFormat {
		t.Errorf("Logging.Format = %q, want default %q", cfg.Logging.Format, DefaultLogFormat)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, "terminal:\n  client_id: 3\n")

	_, err := LoadAndValidate(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "invalid session config: instance.id is required") {
		t.Errorf("error = %q, want instance.id message", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{Instance: InstanceConfig{ID: "test"}}
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "http terminal url",
			mutate:  func(c *Config) { c.Terminal.URL = "http://localhost:7497" },
			wantErr: `terminal.url scheme must be ws or wss, got "http"`,
		},
		{
			name:    "negative client id",
			mutate:  func(c *Config) { c.Terminal.ClientID = -1 },
			wantErr: "terminal.client_id must be >= 0",
		},
		{
			name:    "negative reconnect delay",
			mutate:  func(c *Config) { c.Session.ReconnectDelay = -time.Second },
			wantErr: "session delays must be >= 0",
		},
		{
			name:    "negative confirm timeout",
			mutate:  func(c *Config) { c.Session.ConfirmTimeout = -time.Second },
			wantErr: "session.confirm_timeout must be > 0",
		},
		{
			name:    "ping timeout below interval",
			mutate:  func(c *Config) { c.Transport.PingTimeout = time.Second },
			wantErr: "transport.ping_timeout (1s) must be >= ping_interval (30s)",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: `logging.level "verbose" is not one of debug, info, warn, error`,
		},
		{
			name:    "metrics port out of range",
			mutate:  func(c *Config) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestConvert(t *testing.T) {
	cfg := Config{
		Instance: InstanceConfig{ID: "test"},
		Terminal: TerminalConfig{URL: "ws://10.0.0.5:7497/api", ClientID: 4, Account: "DU1"},
	}
	cfg.ApplyDefaults()

	sc := cfg.SessionConfig()
	if sc.Monitor.Addr != "ws://10.0.0.5:7497/api" {
		t.Errorf("Monitor.Addr = %q, want terminal url", sc.Monitor.Addr)
	}
	if sc.Monitor.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("Monitor.ReconnectDelay = %v, want %v", sc.Monitor.ReconnectDelay, DefaultReconnectDelay)
	}
	if sc.Monitor.ConfirmTimeout != DefaultConfirmTimeout {
		t.Errorf("Monitor.ConfirmTimeout = %v, want %v", sc.Monitor.ConfirmTimeout, DefaultConfirmTimeout)
	}
	if sc.ClientID != 4 || sc.Account != "DU1" {
		t.Errorf("ClientID/Account = %d/%q, want 4/DU1", sc.ClientID, sc.Account)
	}

	cc := cfg.ClientConfig()
	if cc.ClientID != 4 {
		t.Errorf("ClientConfig.ClientID = %d, want 4", cc.ClientID)
	}
	if cc.Burst != DefaultBurst {
		t.Errorf("ClientConfig.Burst = %d, want %d", cc.Burst, DefaultBurst)
	}

	lc := cfg.LoggerConfig()
	if lc.Level != DefaultLogLevel {
		t.Errorf("LoggerConfig.Level = %q, want %q", lc.Level, DefaultLogLevel)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load parses the session file at path as-is. ${VAR} references are
// replaced from the process environment, so a .env loaded beforehand
// can supply terminal urls and accounts. Unset fields stay zero.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session config %s: %w", path, err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("decode session config: %w", err)
	}
	return &cfg, nil
}

// LoadWithDefaults is Load followed by ApplyDefaults. Tools that only
// need a terminal url use it and skip validation.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// LoadAndValidate returns a config ready for session.New, or the first
// setting that would make the session misbehave.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	return cfg, nil
}

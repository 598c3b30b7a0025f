// Package config loads server configuration from an optional YAML file,
// then applies environment-variable overrides, validates, and fills in
// defaults. The environment variables are the set spec.md §6 names plus
// TURN_CREDENTIAL_TTL; the YAML file is an ambient convenience the
// signaling core does not require to function.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	WS   WSConfig   `yaml:"ws"`
	STUN STUNConfig `yaml:"stun"`
	TURN TURNConfig `yaml:"turn"`
	SIP  SIPConfig  `yaml:"sip"`

	// RecordingPath is accepted and stored but not wired to any component;
	// recording/transcoding is a spec.md §1 Non-goal.
	RecordingPath string `yaml:"recording_path"`
}

type WSConfig struct {
	Port int `yaml:"port"`
}

type STUNConfig struct {
	Server string `yaml:"server"`
	Port   int    `yaml:"port"`
}

type TURNConfig struct {
	Server   string        `yaml:"server"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"` // shared-secret HMAC key
	TTL      time.Duration `yaml:"ttl"`
}

// SIPConfig is parsed and validated but never wired to a running
// component — the SIP B2BUA is an external collaborator (spec.md §1, §9).
type SIPConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
	Domain      string `yaml:"domain"`
	Realm       string `yaml:"realm"`
}

// Load reads an optional YAML file at path, applies environment overrides,
// validates, then fills in defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func (c *Config) applyEnvOverrides() {
	envInt("WS_PORT", &c.WS.Port)

	envString("STUN_SERVER", &c.STUN.Server)
	envInt("STUN_PORT", &c.STUN.Port)

	envString("TURN_SERVER", &c.TURN.Server)
	envInt("TURN_PORT", &c.TURN.Port)
	envString("TURN_USERNAME", &c.TURN.Username)
	envString("TURN_PASSWORD", &c.TURN.Password)

	envString("RECORDING_PATH", &c.RecordingPath)

	envBool("SIP_ENABLED", &c.SIP.Enabled)
	envString("SIP_BIND_ADDRESS", &c.SIP.BindAddress)
	envInt("SIP_PORT", &c.SIP.Port)
	envString("SIP_DOMAIN", &c.SIP.Domain)
	envString("SIP_REALM", &c.SIP.Realm)

	// TURN.TTL has no dedicated spec.md env var; accept an internal override
	// for operators/tests that need a shorter credential lifetime.
	envDuration("TURN_CREDENTIAL_TTL", &c.TURN.TTL)
}

func (c *Config) validate() error {
	if c.TURN.Server != "" && c.TURN.Password == "" {
		return fmt.Errorf("turn.password (shared secret) is required when turn.server is set")
	}
	if c.WS.Port < 0 || c.WS.Port > 65535 {
		return fmt.Errorf("ws.port out of range: %d", c.WS.Port)
	}
	if c.SIP.Enabled && c.SIP.Domain == "" {
		return fmt.Errorf("sip.domain is required when sip.enabled is true")
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.WS.Port == 0 {
		c.WS.Port = 8080
	}
	if c.STUN.Port == 0 {
		c.STUN.Port = 3478
	}
	if c.TURN.Port == 0 {
		c.TURN.Port = 3478
	}
	if c.TURN.TTL == 0 {
		c.TURN.TTL = 24 * time.Hour
	}
}

// Addr is the address the signaling gateway's HTTP/WS listener binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.WS.Port)
}

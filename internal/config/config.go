package config

import (
	"errors"
	"fmt"
	"time"

	. "fractal/internal/common"
	"fractal/internal/ledger"

	"github.com/rs/zerolog"
)

// Config is the root configuration for a ledger server.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Ledger LedgerConfig `yaml:"ledger"`
	Auth   AuthConfig   `yaml:"auth"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds the TCP listener settings.
type ServerConfig struct {
	Address     string        `yaml:"address"`
	Port        int           `yaml:"port"`
	Workers     uint          `yaml:"workers"`      // Connection reader workers
	ConnTimeout time.Duration `yaml:"conn_timeout"` // Idle sessions are dropped after this
}

// LedgerConfig holds share accounting settings.
type LedgerConfig struct {
	Supply       uint64 `yaml:"supply"`        // Votes per item
	RosterPolicy string `yaml:"roster_policy"` // append-only or prune-on-zero
}

// AuthConfig names the privileged addresses. Venue may be left empty and set
// later by the admin over the wire.
type AuthConfig struct {
	Admin string `yaml:"admin"`
	Venue string `yaml:"venue"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"` // Human readable console output
}

const (
	DefaultAddress     = "0.0.0.0"
	DefaultPort        = 9001
	DefaultWorkers     = 10
	DefaultConnTimeout = 30 * time.Second
	DefaultLogLevel    = "info"
)

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.Workers == 0 {
		c.Server.Workers = DefaultWorkers
	}
	if c.Server.ConnTimeout == 0 {
		c.Server.ConnTimeout = DefaultConnTimeout
	}
	if c.Ledger.Supply == 0 {
		c.Ledger.Supply = DefaultSupply
	}
	if c.Ledger.RosterPolicy == "" {
		c.Ledger.RosterPolicy = ledger.AppendOnly.String()
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.ConnTimeout < 0 {
		errs = append(errs, errors.New("server.conn_timeout must not be negative"))
	}
	if _, err := ledger.ParseRosterPolicy(c.Ledger.RosterPolicy); err != nil {
		errs = append(errs, fmt.Errorf("ledger.roster_policy: %w", err))
	}
	if c.Auth.Admin == "" {
		errs = append(errs, errors.New("auth.admin is required"))
	} else if admin, err := c.AdminAddress(); err != nil {
		errs = append(errs, fmt.Errorf("auth.admin: %w", err))
	} else if admin == ZeroAddress {
		errs = append(errs, fmt.Errorf("auth.admin: %w: zero address", ErrInvalidAddress))
	}
	if _, err := c.VenueAddress(); err != nil {
		errs = append(errs, fmt.Errorf("auth.venue: %w", err))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Config) AdminAddress() (Address, error) {
	return HexToAddress(c.Auth.Admin)
}

// VenueAddress returns the zero address when no venue is configured.
func (c *Config) VenueAddress() (Address, error) {
	if c.Auth.Venue == "" {
		return ZeroAddress, nil
	}
	return HexToAddress(c.Auth.Venue)
}

// Policy returns the parsed roster policy. Only valid after Validate.
func (c *Config) Policy() ledger.RosterPolicy {
	policy, _ := ledger.ParseRosterPolicy(c.Ledger.RosterPolicy)
	return policy
}

// LogLevel returns the parsed log level. Only valid after Validate.
func (c *Config) LogLevel() zerolog.Level {
	level, _ := zerolog.ParseLevel(c.Log.Level)
	return level
}

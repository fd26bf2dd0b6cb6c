// Package config manages the ec2nav account registry and tool configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	ConfigDirName  = ".ec2nav"
	ConfigFileName = "config.json"
	AuditFileName  = "audit.db"

	DefaultLogLevel          = "info"
	DefaultRoleName          = "ec2nav-admin"
	DefaultSessionNamePrefix = "EC2Nav"
	DefaultSessionDuration   = 3600
)

// Config holds the account registry, the region search list, and the
// delegated-session settings.
type Config struct {
	// Accounts maps a human-readable account name to its 12-digit account ID.
	Accounts map[string]string `json:"aws_accounts"`

	// Regions is the ordered region list searched per account.
	Regions []string `json:"valid_regions"`

	// DiscoverRegions switches the resolver to querying each account's own
	// enabled-region list instead of Regions. One extra round trip per account.
	DiscoverRegions bool `json:"discover_regions"`

	RoleName               string `json:"role_name"`
	SessionDurationSeconds int32  `json:"session_duration_seconds"`
	SessionNamePrefix      string `json:"session_name_prefix"`
	ExternalID             string `json:"external_id,omitempty"`
	EnableSessionCache     bool   `json:"enable_session_cache"`

	LogLevel string `json:"log_level"`
}

// Account is one entry of the registry in deterministic iteration order.
type Account struct {
	Name string
	ID   string
}

// Default returns sensible defaults for a fresh install.
func Default() Config {
	return Config{
		Accounts:               map[string]string{},
		Regions:                []string{"us-east-1", "eu-west-1", "eu-central-1"},
		RoleName:               DefaultRoleName,
		SessionDurationSeconds: DefaultSessionDuration,
		SessionNamePrefix:      DefaultSessionNamePrefix,
		EnableSessionCache:     true,
		LogLevel:               DefaultLogLevel,
	}
}

// Dir returns the ec2nav config directory path.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ConfigDirName)
}

// Load reads the config from ~/.ec2nav/config.json, merging file contents
// over defaults. A missing file yields the defaults.
func Load() (Config, error) {
	return LoadFrom(filepath.Join(Dir(), ConfigFileName))
}

// LoadFrom reads the config from an explicit path.
func LoadFrom(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, err
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Save persists the config to ~/.ec2nav/config.json.
func Save(cfg Config) error {
	return SaveTo(cfg, filepath.Join(Dir(), ConfigFileName))
}

// SaveTo persists the config to an explicit path, creating the directory.
func SaveTo(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// SortedAccounts returns the registry sorted by account name. The resolver
// relies on this order being deterministic across calls.
func (c Config) SortedAccounts() []Account {
	names := make([]string, 0, len(c.Accounts))
	for name := range c.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)

	accounts := make([]Account, 0, len(names))
	for _, name := range names {
		accounts = append(accounts, Account{Name: name, ID: c.Accounts[name]})
	}
	return accounts
}

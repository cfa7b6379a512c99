package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

const envPrefix = "GRAVVY"

// Config represents the global ~/.gravvy/config.toml.
type Config struct {
	DefaultAccount string `toml:"default_account"`
	// Region is the ISO 3166 region used to read address book numbers
	// that carry no country code.
	Region string       `toml:"region"`
	Strict bool         `toml:"strict"`
	Server ServerConfig `toml:"server"`
	Sync   SyncConfig   `toml:"sync"`
	Log    LogConfig    `toml:"log"`
}

type ServerConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout Duration `toml:"timeout"`
}

type SyncConfig struct {
	// Interval between periodic refreshes of every collection. Zero
	// disables the periodic refresh.
	Interval       Duration `toml:"interval"`
	ReorderOnStart bool     `toml:"reorder_on_start"`
	AddressBook    string   `toml:"address_book"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// Duration is a time.Duration written as a string such as "5m" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Region: "US",
		Server: ServerConfig{
			BaseURL: "https://api.gravvy.com/api/v1",
			Timeout: Duration{30 * time.Second},
		},
		Sync: SyncConfig{
			Interval:       Duration{5 * time.Minute},
			ReorderOnStart: true,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load reads config from the given path on top of Default. Returns nil and
// an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load that treats a missing file as the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// NewViper returns a viper instance bound to GRAVVY_* environment variables,
// e.g. GRAVVY_SERVER_BASE_URL for server.base_url.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Overlay applies values set in v over cfg. Keys absent from v keep the
// file value.
func Overlay(cfg *Config, v *viper.Viper) error {
	if s := v.GetString("default_account"); s != "" {
		cfg.DefaultAccount = s
	}
	if s := v.GetString("region"); s != "" {
		cfg.Region = s
	}
	if v.IsSet("strict") {
		cfg.Strict = v.GetBool("strict")
	}
	if s := v.GetString("server.base_url"); s != "" {
		cfg.Server.BaseURL = s
	}
	if s := v.GetString("server.timeout"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("server.timeout: %w", err)
		}
		cfg.Server.Timeout = Duration{d}
	}
	if s := v.GetString("sync.interval"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("sync.interval: %w", err)
		}
		cfg.Sync.Interval = Duration{d}
	}
	if v.IsSet("sync.reorder_on_start") {
		cfg.Sync.ReorderOnStart = v.GetBool("sync.reorder_on_start")
	}
	if s := v.GetString("sync.address_book"); s != "" {
		cfg.Sync.AddressBook = s
	}
	if s := v.GetString("log.level"); s != "" {
		cfg.Log.Level = s
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.BaseURL) == "" {
		return errors.New("server.base_url is required")
	}
	if c.Server.Timeout.Duration < 0 {
		return errors.New("server.timeout must not be negative")
	}
	if c.Sync.Interval.Duration < 0 {
		return errors.New("sync.interval must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// ABOUTME: Configuration loading and parsing for limimin
// ABOUTME: Reads TOML or YAML with ${VAR} expansion, then applies LIMIMIN_* environment overrides

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LIMIMIN_"

// Defaults applied when a setting is left empty.
const (
	DefaultCommandPrefix  = "!"
	DefaultDriver         = "json"
	DefaultCatalogURL     = "http://unisonleague.wikia.com/wiki/Stamps"
	DefaultRequestTimeout = 30 * time.Second
	DefaultUserAgent      = "limimin/1.0"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// Config represents the complete limimin configuration
type Config struct {
	Matrix    MatrixConfig    `toml:"matrix" yaml:"matrix" envPrefix:"MATRIX_"`
	Bot       BotConfig       `toml:"bot" yaml:"bot" envPrefix:"BOT_"`
	Storage   StorageConfig   `toml:"storage" yaml:"storage" envPrefix:"STORAGE_"`
	Provision ProvisionConfig `toml:"provision" yaml:"provision" envPrefix:"PROVISION_"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging" envPrefix:"LOG_"`
}

// MatrixConfig holds the bot account. Either access_token (with user_id) or
// username and password must be set.
type MatrixConfig struct {
	Homeserver  string `toml:"homeserver" yaml:"homeserver" env:"HOMESERVER"`
	UserID      string `toml:"user_id" yaml:"user_id" env:"USER_ID"`
	AccessToken string `toml:"access_token" yaml:"access_token" env:"ACCESS_TOKEN"`
	Username    string `toml:"username" yaml:"username" env:"USERNAME"`
	Password    string `toml:"password" yaml:"password" env:"PASSWORD"`
	RecoveryKey string `toml:"recovery_key" yaml:"recovery_key" env:"RECOVERY_KEY"`
}

// BotConfig controls which messages become commands
type BotConfig struct {
	CommandPrefix string   `toml:"command_prefix" yaml:"command_prefix" env:"COMMAND_PREFIX"`
	AllowedRooms  []string `toml:"allowed_rooms" yaml:"allowed_rooms" env:"ALLOWED_ROOMS" envSeparator:","`
}

// StorageConfig locates the term registry and stamp images
type StorageConfig struct {
	Driver  string `toml:"driver" yaml:"driver" env:"DRIVER"`
	DataDir string `toml:"data_dir" yaml:"data_dir" env:"DATA_DIR"`
}

// ProvisionConfig controls stamp downloads
type ProvisionConfig struct {
	CatalogURL  string `toml:"catalog_url" yaml:"catalog_url" env:"CATALOG_URL"`
	UserAgent   string `toml:"user_agent" yaml:"user_agent" env:"USER_AGENT"`
	SkipOnStart bool   `toml:"skip_on_start" yaml:"skip_on_start" env:"SKIP_ON_START"`

	RequestTimeout time.Duration `toml:"-" yaml:"-"`

	// Raw string value for file and env decoding
	RequestTimeoutRaw string `toml:"request_timeout" yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level" env:"LEVEL"`
	Format string `toml:"format" yaml:"format" env:"FORMAT"`
}

// Path returns the config file location.
// Priority: LIMIMIN_CONFIG > XDG_CONFIG_HOME/limimin/config.toml > ~/.config/limimin/config.toml
func Path() string {
	if envPath := os.Getenv(EnvPrefix + "CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.toml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "limimin", "config.toml")
}

// DefaultDataDir returns XDG_DATA_HOME/limimin, or ~/.local/share/limimin.
func DefaultDataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "limimin")
}

// Load reads the configuration file at path. The format follows the file
// extension: .yaml and .yml are YAML, anything else is TOML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("reading environment overrides: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or "" if unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Bot.CommandPrefix == "" {
		c.Bot.CommandPrefix = DefaultCommandPrefix
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultDriver
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = DefaultDataDir()
	}
	if c.Provision.CatalogURL == "" {
		c.Provision.CatalogURL = DefaultCatalogURL
	}
	if c.Provision.RequestTimeout == 0 {
		c.Provision.RequestTimeout = DefaultRequestTimeout
	}
	if c.Provision.UserAgent == "" {
		c.Provision.UserAgent = DefaultUserAgent
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

// Validate checks that required fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	if err := checkHTTPURL("matrix.homeserver", c.Matrix.Homeserver); err != nil {
		return err
	}

	hasToken := c.Matrix.AccessToken != ""
	hasPassword := c.Matrix.Username != "" && c.Matrix.Password != ""
	switch {
	case hasToken && c.Matrix.UserID == "":
		return fmt.Errorf("matrix.user_id is required with matrix.access_token")
	case !hasToken && !hasPassword:
		return fmt.Errorf("matrix.access_token or matrix.username and matrix.password are required")
	}

	if strings.ContainsAny(c.Bot.CommandPrefix, " \t\n") {
		return fmt.Errorf("bot.command_prefix must not contain whitespace")
	}

	switch c.Storage.Driver {
	case "json", "sqlite":
	default:
		return fmt.Errorf("storage.driver must be json or sqlite, got %q", c.Storage.Driver)
	}

	if err := checkHTTPURL("provision.catalog_url", c.Provision.CatalogURL); err != nil {
		return err
	}
	if c.Provision.RequestTimeout < 0 {
		return fmt.Errorf("provision.request_timeout must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func checkHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme", field)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", field)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Provision.RequestTimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.Provision.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Provision.RequestTimeoutRaw, err)
		}
		cfg.Provision.RequestTimeout = d
	}
	return nil
}

// StorePath returns the registry location for the configured driver.
func (c *Config) StorePath() string {
	if c.Storage.Driver == "sqlite" {
		return filepath.Join(c.Storage.DataDir, "terms.db")
	}
	return filepath.Join(c.Storage.DataDir, "terms.json")
}

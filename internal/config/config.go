package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nikicat/mcewatch/internal/mce"
)

// Duration wraps time.Duration with YAML unmarshalling for human-readable strings.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// ServeConfig holds serve-subcommand settings.
type ServeConfig struct {
	Listen        string `yaml:"listen"`
	Socket        string `yaml:"socket"`
	NotifySystemd *bool  `yaml:"notify_systemd"`
	Notifications *bool  `yaml:"notifications"`
}

// Config is the top-level configuration file structure.
type Config struct {
	BusAddress        string      `yaml:"bus_address"`
	LogLevel          string      `yaml:"log_level"`
	LogFormat         string      `yaml:"log_format"`
	ReconnectInterval Duration    `yaml:"reconnect_interval"`
	Kinds             []string    `yaml:"kinds"`
	Serve             ServeConfig `yaml:"serve"`
}

// ErrInvalid wraps semantic errors in an otherwise well-formed file.
var ErrInvalid = errors.New("invalid config")

// DefaultPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "mcewatch", "config.yaml")
}

// Load reads and parses a YAML config file. If the file does not exist,
// it returns an empty Config and a nil error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// ParsedKinds returns the configured kinds, or every kind if none are set.
func (c *Config) ParsedKinds() ([]mce.Kind, error) {
	if len(c.Kinds) == 0 {
		return mce.Kinds(), nil
	}
	kinds := make([]mce.Kind, 0, len(c.Kinds))
	seen := make(map[mce.Kind]bool)
	for _, s := range c.Kinds {
		k, err := mce.ParseKind(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// Defaults applied by WithDefaults.
const (
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultReconnectInterval = 5 * time.Second
	DefaultListenAddr        = "127.0.0.1:8485"
)

// WithDefaults returns a copy with unset fields filled in.
func (c *Config) WithDefaults() *Config {
	out := *c
	out.Kinds = append([]string(nil), c.Kinds...)
	if out.LogLevel == "" {
		out.LogLevel = DefaultLogLevel
	}
	if out.LogFormat == "" {
		out.LogFormat = DefaultLogFormat
	}
	if out.ReconnectInterval == 0 {
		out.ReconnectInterval = Duration(DefaultReconnectInterval)
	}
	if out.Serve.Listen == "" && out.Serve.Socket == "" {
		out.Serve.Listen = DefaultListenAddr
	}
	return &out
}

// Validate checks values that YAML decoding alone cannot.
func (c *Config) Validate() error {
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalid, c.LogFormat)
	}
	if c.ReconnectInterval < 0 {
		return fmt.Errorf("%w: reconnect_interval must not be negative", ErrInvalid)
	}
	if _, err := c.ParsedKinds(); err != nil {
		return err
	}
	return nil
}

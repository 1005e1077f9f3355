// Package config loads the ktme configuration file, stored by default at
// ~/.config/ktme/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable that overrides the config path.
const EnvVar = "KTME_CONFIG"

const (
	defaultConfigDir  = "ktme"
	defaultConfigFile = "config.yaml"
)

// Transport selects how the server talks to clients.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

// Config represents the contents of the config file.
type Config struct {
	Server  Server  `yaml:"server"`
	General General `yaml:"general"`
	Storage Storage `yaml:"storage"`
	Git     Git     `yaml:"git"`
	AI      AI      `yaml:"ai"`
	Docs    Docs    `yaml:"docs"`
}

type Server struct {
	Name      string    `yaml:"name"`
	Transport Transport `yaml:"transport"`
	Host      string    `yaml:"host"`
	Port      int       `yaml:"port"`
	// PollInterval bounds how long the accept loop waits before
	// re-checking the running flag.
	PollInterval         time.Duration `yaml:"poll_interval"`
	IOTimeout            time.Duration `yaml:"io_timeout"`
	MaxBodyBytes         int64         `yaml:"max_body_bytes"`
	NullIDIsNotification bool          `yaml:"null_id_is_notification"`
}

type General struct {
	TempDirectory string `yaml:"temp_directory"`
	LogLevel      string `yaml:"log_level"`
}

type Storage struct {
	// Database is the SQLite file path. Empty selects the in-memory store.
	Database string `yaml:"database"`
}

type Git struct {
	Repository          string `yaml:"repository"`
	MaxCommitRange      int    `yaml:"max_commit_range"`
	IncludeMergeCommits bool   `yaml:"include_merge_commits"`
}

type AI struct {
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key,omitempty"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type Docs struct {
	DefaultFormat string `yaml:"default_format"`
	BasePath      string `yaml:"base_path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: Server{
			Name:         "ktme-mcp-server",
			Transport:    TransportStdio,
			Host:         "127.0.0.1",
			Port:         3000,
			PollInterval: 100 * time.Millisecond,
			IOTimeout:    30 * time.Second,
			MaxBodyBytes: 10 << 20,
		},
		General: General{
			TempDirectory: filepath.Join(os.TempDir(), "ktme"),
			LogLevel:      "info",
		},
		Storage: Storage{
			Database: defaultDatabasePath(),
		},
		Git: Git{
			Repository:     ".",
			MaxCommitRange: 100,
		},
		AI: AI{
			Model:       "claude-3-5-sonnet-20241022",
			MaxTokens:   4096,
			Temperature: 0.7,
			Timeout:     120 * time.Second,
		},
		Docs: Docs{
			DefaultFormat: "markdown",
			BasePath:      ".",
		},
	}
}

func defaultDatabasePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, defaultConfigDir, "ktme.db")
}

// DefaultPath returns the config file location used when no explicit
// path is given: $KTME_CONFIG if set, else the user config dir.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvVar); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("determining config directory: %w", err)
	}
	return filepath.Join(dir, defaultConfigDir, defaultConfigFile), nil
}

// Load reads the config at path, layering it over Default. An empty path
// means DefaultPath, and a missing default file yields the defaults. A
// missing explicitly named file is an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("unknown server transport %q", c.Server.Transport)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Server.PollInterval <= 0 {
		return fmt.Errorf("server poll_interval must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server max_body_bytes must be positive")
	}
	if c.Git.MaxCommitRange <= 0 {
		return fmt.Errorf("git max_commit_range must be positive")
	}
	switch c.Docs.DefaultFormat {
	case "markdown", "json":
	default:
		return fmt.Errorf("unknown docs default_format %q", c.Docs.DefaultFormat)
	}
	return nil
}

// Addr returns the host:port the HTTP transport listens on.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

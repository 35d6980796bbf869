package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Account AccountConfig `yaml:"account"`
	Publish PublishConfig `yaml:"publish"`
	Sweep   SweepConfig   `yaml:"sweep"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	SessionSecret   string        `yaml:"session_secret"`
	AdminPassword   string        `yaml:"admin_password"`
	CSRFEnabled     bool          `yaml:"csrf_enabled"`
	MaxRequestBytes int64         `yaml:"max_request_bytes"`
}

// StoreConfig contains database settings
type StoreConfig struct {
	DBPath string `yaml:"db_path"`
}

// AccountConfig seeds the settings store with the ATProto account on first
// run. The running values live in the settings table so they can be changed
// through the API without a restart.
type AccountConfig struct {
	ServiceURL  string `yaml:"service_url"`
	Handle      string `yaml:"handle"`
	AppPassword string `yaml:"app_password"`
}

// PublishConfig contains default cross-posting behavior
type PublishConfig struct {
	TextFormat     string `yaml:"text_format"` // post_title, post_excerpt, post_title_and_excerpt
	IncludeTags    bool   `yaml:"include_tags"`
	DefaultPublish bool   `yaml:"default_publish"`
	Locale         string `yaml:"locale"`
}

// SweepConfig contains the periodic publish sweep settings
type SweepConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error, fatal, disabled
}

// ValidTextFormats are the accepted values for publish.text_format.
var ValidTextFormats = []string{"post_title", "post_excerpt", "post_title_and_excerpt"}

// Load reads configuration from the specified file path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the config
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.MaxRequestBytes == 0 {
		c.Server.MaxRequestBytes = 1 << 20
	}
	if c.Account.ServiceURL == "" {
		c.Account.ServiceURL = "https://bsky.social/"
	}
	if c.Publish.TextFormat == "" {
		c.Publish.TextFormat = "post_title"
	}
	if c.Publish.Locale == "" {
		c.Publish.Locale = "en_US"
	}
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = time.Minute
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "disabled"
	}
}

// Validate checks that all required configuration fields are set
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.SessionSecret == "" || strings.Contains(c.Server.SessionSecret, "${") {
		return fmt.Errorf("server.session_secret is required (set SESSION_SECRET environment variable)")
	}
	if len(c.Server.SessionSecret) < 32 {
		return fmt.Errorf("server.session_secret must be at least 32 characters")
	}
	if c.Server.AdminPassword == "" || strings.Contains(c.Server.AdminPassword, "${") {
		return fmt.Errorf("server.admin_password is required (set ADMIN_PASSWORD environment variable)")
	}

	if c.Store.DBPath == "" {
		return fmt.Errorf("store.db_path is required")
	}

	if _, err := url.Parse(c.Account.ServiceURL); err != nil {
		return fmt.Errorf("account.service_url is not a valid URL: %w", err)
	}

	valid := false
	for _, f := range ValidTextFormats {
		if c.Publish.TextFormat == f {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("publish.text_format must be one of %v", ValidTextFormats)
	}

	if c.Sweep.Enabled && c.Sweep.Interval < time.Second {
		return fmt.Errorf("sweep.interval must be at least 1s")
	}

	return nil
}

// GetAddr returns the full server address (host:port)
func (c *Config) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

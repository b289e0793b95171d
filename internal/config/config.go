package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vango-dev/gateway/pkg/gateway"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "gateway.json"

	// DefaultPort is the default gateway port.
	DefaultPort = 8888

	// DefaultAdminAddress is the default admin listener address.
	DefaultAdminAddress = "127.0.0.1:9090"

	// DefaultRegion is the S3 region used when none is configured.
	DefaultRegion = "us-east-1"
)

// Application names accepted in Config.App.
const (
	AppHello   = "hello"
	AppEnviron = "environ"
	AppS3      = "s3"
)

// ErrInvalid is wrapped by every error returned from Validate.
var ErrInvalid = errors.New("config: invalid configuration")

// Config represents gateway.json.
type Config struct {
	// Host is the address to bind. Empty binds all interfaces.
	Host string `json:"host"`

	// Port is the TCP port. 0 picks a free port.
	Port int `json:"port"`

	// ServerIdentity is sent in the Server response header.
	ServerIdentity string `json:"serverIdentity,omitempty"`

	// App selects the built-in application: hello, environ or s3.
	App string `json:"app,omitempty"`

	// RecoverPanics answers application panics with a 500 instead of
	// dropping the connection.
	RecoverPanics bool `json:"recoverPanics,omitempty"`

	Log   LogConfig   `json:"log"`
	Admin AdminConfig `json:"admin"`
	S3    S3Config    `json:"s3"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// AdminConfig contains admin endpoint settings.
type AdminConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address,omitempty"`
}

// S3Config contains settings for the s3 application.
type S3Config struct {
	Bucket       string `json:"bucket,omitempty"`
	Prefix       string `json:"prefix,omitempty"`
	Region       string `json:"region,omitempty"`
	Endpoint     string `json:"endpoint,omitempty"`
	UsePathStyle bool   `json:"usePathStyle,omitempty"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Port:           DefaultPort,
		ServerIdentity: gateway.DefaultServerIdentity,
		App:            AppHello,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Admin: AdminConfig{
			Address: DefaultAdminAddress,
		},
		S3: S3Config{
			Region: DefaultRegion,
		},
	}
}

// Load reads gateway.json from dir. A missing file yields the defaults.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from path. Keys absent from the file keep
// their default values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from, or "" for
// defaults.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty strings.
func (c *Config) applyDefaults() {
	d := Default()
	if c.ServerIdentity == "" {
		c.ServerIdentity = d.ServerIdentity
	}
	if c.App == "" {
		c.App = d.App
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Admin.Address == "" {
		c.Admin.Address = d.Admin.Address
	}
	if c.S3.Region == "" {
		c.S3.Region = d.S3.Region
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range 0-65535", ErrInvalid, c.Port)
	}
	switch c.App {
	case AppHello, AppEnviron:
	case AppS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("%w: app %q requires s3.bucket", ErrInvalid, c.App)
		}
	default:
		return fmt.Errorf("%w: unknown app %q", ErrInvalid, c.App)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log format %q, want text or json", ErrInvalid, c.Log.Format)
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalid, l.Level)
	}
	return level, nil
}

// Address returns host:port for the gateway listener.
func (c *Config) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Gateway converts the file settings into a gateway.Config, leaving the
// runtime-only fields at their defaults.
func (c *Config) Gateway() *gateway.Config {
	gc := gateway.DefaultConfig()
	gc.Host = strings.TrimSpace(c.Host)
	gc.Port = c.Port
	gc.ServerIdentity = c.ServerIdentity
	return gc
}

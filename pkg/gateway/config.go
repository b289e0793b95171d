package gateway

import (
	"io"
	"log/slog"
	"net"
	"os"
	"time"
)

// Backlog is the listen backlog of the gateway socket.
const Backlog = 5

// Config holds configuration for a gateway Server.
type Config struct {
	// Host is the IPv4 address or hostname to bind. Empty binds all interfaces.
	// Default: "".
	Host string

	// Port is the TCP port to bind. 0 picks a free port.
	// Default: 8888.
	Port int

	// ServerIdentity is the value of the Server header.
	// Default: "Simple Web server".
	ServerIdentity string

	// Errors is exposed to applications as the error stream.
	// Default: os.Stderr.
	Errors io.Writer

	// Logger receives worker and dispatcher logs.
	// Default: slog.Default() with component=gateway.
	Logger *slog.Logger

	// Hooks observe accepted and completed connections. Optional.
	Hooks Hooks

	// Resolver performs the reverse lookup for SERVER_NAME.
	// Default: net.DefaultResolver.
	Resolver Resolver

	// Now supplies the Date header timestamp.
	// Default: time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:           "",
		Port:           8888,
		ServerIdentity: DefaultServerIdentity,
		Errors:         os.Stderr,
		Logger:         slog.Default().With("component", "gateway"),
		Resolver:       net.DefaultResolver,
		Now:            time.Now,
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// withDefaults returns a copy of c with unset fields taken from DefaultConfig.
// Port is left alone since 0 is meaningful.
func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	out := c.Clone()
	defaults := DefaultConfig()
	if out.ServerIdentity == "" {
		out.ServerIdentity = defaults.ServerIdentity
	}
	if out.Errors == nil {
		out.Errors = defaults.Errors
	}
	if out.Logger == nil {
		out.Logger = defaults.Logger
	}
	if out.Resolver == nil {
		out.Resolver = defaults.Resolver
	}
	if out.Now == nil {
		out.Now = defaults.Now
	}
	if out.Hooks == nil {
		out.Hooks = NopHooks{}
	}
	return out
}

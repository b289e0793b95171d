package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
)

// Server owns the listening socket and the accept loop. Every accepted
// connection is handled by its own goroutine, which owns the connection
// until it closes it.
type Server struct {
	listener net.Listener
	app      Application
	config   *Config

	// Reported to applications as SERVER_NAME and SERVER_PORT.
	serverName string
	serverPort int

	logger *slog.Logger
	closed atomic.Bool
}

// Listen binds the configured address and resolves the canonical hostname.
// Unset Config fields take their defaults; a nil Config uses DefaultConfig.
func Listen(ctx context.Context, config *Config) (*Server, error) {
	config = config.withDefaults()

	ln, err := listenTCP4(ctx, config.Host, config.Port)
	if err != nil {
		return nil, err
	}

	port := config.Port
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}

	s := &Server{
		listener:   ln,
		config:     config,
		serverName: CanonicalHostname(ctx, config.Resolver, config.Host),
		serverPort: port,
		logger:     config.Logger,
	}
	s.logger.Info("listening",
		"addr", ln.Addr().String(),
		"server_name", s.serverName,
		"backlog", Backlog)
	return s, nil
}

// ListenAndServe is Listen followed by SetApplication and Serve.
func ListenAndServe(ctx context.Context, config *Config, app Application) error {
	s, err := Listen(ctx, config)
	if err != nil {
		return err
	}
	s.SetApplication(app)
	return s.Serve(ctx)
}

// SetApplication sets the application invoked for every request.
// It must be called before Serve.
func (s *Server) SetApplication(app Application) {
	s.app = app
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// ServerName returns the resolved SERVER_NAME.
func (s *Server) ServerName() string {
	return s.serverName
}

// ServerPort returns the SERVER_PORT given to applications.
func (s *Server) ServerPort() int {
	return s.serverPort
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// Serve accepts connections until the listener fails, the server is
// closed, or ctx is cancelled. An accept failure is returned as a
// *ConnError; closing yields ErrServerClosed. Workers already running are
// never interrupted.
func (s *Server) Serve(ctx context.Context) error {
	if s.app == nil {
		return ErrNoApplication
	}

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}
			s.logger.Error("accept failed", "error", err)
			return &ConnError{Op: "accept", Err: err}
		}

		remote := conn.RemoteAddr().String()
		s.config.Hooks.OnAccept(remote)
		w := newWorker(s, conn, remote)
		go w.run()
	}
}

// Close closes the listener. In-flight workers keep their connections.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

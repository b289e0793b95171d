// Package admin serves the gateway's operational HTTP endpoints on a
// separate listener:
//
//	GET /healthz          liveness probe
//	GET /metrics          Prometheus exposition
//	GET /debug/requests   WebSocket feed of completed connections (JSON text frames)
//
// The gateway port itself speaks only the minimal protocol of package
// gateway, so these endpoints use net/http.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vango-dev/gateway/pkg/tap"
)

// Config holds configuration for the admin server.
type Config struct {
	// Address is the address to listen on.
	// Default: "127.0.0.1:9090".
	Address string

	// Gatherer provides the metrics exposed on /metrics.
	// Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Hub feeds /debug/requests. If nil the endpoint returns 404.
	Hub *tap.Hub

	// CheckOrigin validates WebSocket origins.
	// Default: same origin only (gorilla/websocket default).
	CheckOrigin func(r *http.Request) bool

	// PingInterval is the WebSocket keepalive interval.
	// Default: 30 seconds.
	PingInterval time.Duration

	// WriteTimeout bounds each WebSocket write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 5 seconds.
	ShutdownTimeout time.Duration

	// Logger receives admin logs.
	// Default: slog.Default() with component=admin.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:         "127.0.0.1:9090",
		Gatherer:        prometheus.DefaultGatherer,
		PingInterval:    30 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		Logger:          slog.Default().With("component", "admin"),
	}
}

// Server is the admin HTTP server.
type Server struct {
	config     *Config
	router     chi.Router
	upgrader   websocket.Upgrader
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates an admin Server. Unset Config fields take their defaults.
func New(config *Config) *Server {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	} else {
		clone := *config
		config = &clone
		if config.Address == "" {
			config.Address = defaults.Address
		}
		if config.Gatherer == nil {
			config.Gatherer = defaults.Gatherer
		}
		if config.PingInterval == 0 {
			config.PingInterval = defaults.PingInterval
		}
		if config.WriteTimeout == 0 {
			config.WriteTimeout = defaults.WriteTimeout
		}
		if config.ShutdownTimeout == 0 {
			config.ShutdownTimeout = defaults.ShutdownTimeout
		}
		if config.Logger == nil {
			config.Logger = defaults.Logger
		}
	}

	s := &Server{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     config.CheckOrigin,
		},
		logger: config.Logger,
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	if s.config.Hub != nil {
		r.Get("/debug/requests", s.handleRequestFeed)
	}
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve serves admin requests on ln until Shutdown. It returns nil after a
// graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("admin listening", "addr", ln.Addr().String())
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAndServe listens on Config.Address and calls Serve.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown gracefully stops the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

type healthResponse struct {
	Status      string `json:"status"`
	Subscribers int    `json:"subscribers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.config.Hub != nil {
		resp.Subscribers = s.config.Hub.Subscribers()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleRequestFeed upgrades to WebSocket and streams tap records until the
// client goes away.
func (s *Server) handleRequestFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	records, cancel := s.config.Hub.Subscribe()
	defer cancel()

	// The read side only exists to notice the client closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-records:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := conn.WriteJSON(rec); err != nil {
				s.logger.Debug("request feed write failed", "error", err)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(s.config.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

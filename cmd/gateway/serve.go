package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/vango-dev/gateway/internal/config"
	"github.com/vango-dev/gateway/pkg/admin"
	"github.com/vango-dev/gateway/pkg/apps"
	"github.com/vango-dev/gateway/pkg/gateway"
	"github.com/vango-dev/gateway/pkg/middleware"
	"github.com/vango-dev/gateway/pkg/tap"
)

type serveOptions struct {
	configPath string
	host       string
	port       int
	app        string
	identity   string
	logLevel   string
	logFormat  string
	admin      bool
	adminAddr  string
	recover    bool
	s3Bucket   string
	s3Prefix   string
	s3Region   string
	s3Endpoint string
}

func serveCmd() *cobra.Command {
	return newServeCmd(func(cmd *cobra.Command, cfg *config.Config) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg, cmd.ErrOrStderr())
	})
}

func newServeCmd(run func(cmd *cobra.Command, cfg *config.Config) error) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		Long: `Start the gateway and serve until interrupted.

Settings are read from gateway.json (or --config) and then overridden by
any flag given on the command line.

Examples:
  gateway serve
  gateway serve --port=8080 --app=environ
  gateway serve --app=s3 --s3-bucket=site --admin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Path to gateway.json (default ./gateway.json)")
	f.StringVarP(&opts.host, "host", "H", "", "Host to bind to")
	f.IntVarP(&opts.port, "port", "p", config.DefaultPort, "Port to listen on")
	f.StringVar(&opts.app, "app", config.AppHello, "Application: hello, environ or s3")
	f.StringVar(&opts.identity, "server-identity", gateway.DefaultServerIdentity, "Value of the Server response header")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")
	f.BoolVar(&opts.admin, "admin", false, "Serve /healthz, /metrics and /debug/requests")
	f.StringVar(&opts.adminAddr, "admin-addr", config.DefaultAdminAddress, "Admin listen address")
	f.BoolVar(&opts.recover, "recover", false, "Answer application panics with 500")
	f.StringVar(&opts.s3Bucket, "s3-bucket", "", "Bucket served by the s3 application")
	f.StringVar(&opts.s3Prefix, "s3-prefix", "", "Key prefix for the s3 application")
	f.StringVar(&opts.s3Region, "s3-region", config.DefaultRegion, "S3 region")
	f.StringVar(&opts.s3Endpoint, "s3-endpoint", "", "S3 endpoint URL (path-style addressing)")

	return cmd
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command, opts serveOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load(".")
	}
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Host = opts.host
	}
	if f.Changed("port") {
		cfg.Port = opts.port
	}
	if f.Changed("app") {
		cfg.App = opts.app
	}
	if f.Changed("server-identity") {
		cfg.ServerIdentity = opts.identity
	}
	if f.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if f.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}
	if f.Changed("admin") {
		cfg.Admin.Enabled = opts.admin
	}
	if f.Changed("admin-addr") {
		cfg.Admin.Address = opts.adminAddr
	}
	if f.Changed("recover") {
		cfg.RecoverPanics = opts.recover
	}
	if f.Changed("s3-bucket") {
		cfg.S3.Bucket = opts.s3Bucket
	}
	if f.Changed("s3-prefix") {
		cfg.S3.Prefix = opts.s3Prefix
	}
	if f.Changed("s3-region") {
		cfg.S3.Region = opts.s3Region
	}
	if f.Changed("s3-endpoint") {
		cfg.S3.Endpoint = opts.s3Endpoint
		cfg.S3.UsePathStyle = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch cfg.Format {
	case "json":
		h = slog.NewJSONHandler(w, handlerOpts)
	default:
		h = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(h), nil
}

// buildApplication returns the configured application wrapped in the
// standard middleware stack.
func buildApplication(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (gateway.Application, error) {
	var app gateway.Application
	switch cfg.App {
	case config.AppHello:
		app = apps.Hello("")
	case config.AppEnviron:
		app = apps.EnvironDump()
	case config.AppS3:
		client := apps.NewS3Client(apps.S3ClientOptions{
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		app = apps.S3Objects(client, apps.S3Config{Bucket: cfg.S3.Bucket, Prefix: cfg.S3.Prefix})
	default:
		return nil, fmt.Errorf("unknown app %q", cfg.App)
	}

	var recoverMW middleware.Middleware
	if cfg.RecoverPanics {
		recoverMW = middleware.Recover(logger)
	}
	return middleware.Chain(app,
		middleware.Prometheus(middleware.WithRegistry(reg)),
		middleware.OpenTelemetry(),
		recoverMW,
	), nil
}

func runServe(ctx context.Context, cfg *config.Config, logOut io.Writer) error {
	logger, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	reg := prometheus.DefaultRegisterer
	app, err := buildApplication(cfg, logger, reg)
	if err != nil {
		return err
	}

	hub := tap.NewHub(tap.DefaultBuffer)
	gc := cfg.Gateway()
	gc.Logger = logger.With("component", "gateway")
	gc.Hooks = gateway.MultiHooks(middleware.ConnMetrics(middleware.WithRegistry(reg)), hub)

	srv, err := gateway.Listen(ctx, gc)
	if err != nil {
		return err
	}
	srv.SetApplication(app)

	var adminSrv *admin.Server
	adminErr := make(chan error, 1)
	if cfg.Admin.Enabled {
		adminSrv = admin.New(&admin.Config{
			Address:  cfg.Admin.Address,
			Gatherer: prometheus.DefaultGatherer,
			Hub:      hub,
			Logger:   logger.With("component", "admin"),
		})
		go func() { adminErr <- adminSrv.ListenAndServe() }()
	}

	srv.Logger().Info("serving",
		"app", cfg.App,
		"requested", cfg.Address(),
		"addr", srv.Addr().String(),
		"server_name", srv.ServerName())

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx) }()

	select {
	case err = <-serveErr:
	case err = <-adminErr:
		if err != nil {
			err = fmt.Errorf("admin: %w", err)
		}
		_ = srv.Close()
		<-serveErr
	}

	if adminSrv != nil {
		if shutdownErr := adminSrv.Shutdown(context.Background()); shutdownErr != nil {
			logger.Warn("admin shutdown", "error", shutdownErr)
		}
	}
	if errors.Is(err, gateway.ErrServerClosed) {
		logger.Info("stopped")
		return nil
	}
	return err
}

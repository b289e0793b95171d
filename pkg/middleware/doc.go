// Package middleware provides Application middleware for the gateway.
//
// This package includes:
//   - OpenTelemetry tracing middleware
//   - Prometheus metrics middleware and connection hooks
//   - Panic recovery
//
// Middleware compose with Chain; the first one listed is the outermost:
//
//	app := middleware.Chain(myApp,
//	    middleware.Recover(logger),
//	    middleware.OpenTelemetry(middleware.WithTracerName("my-app")),
//	    middleware.Prometheus(),
//	)
//
// # Prometheus Metrics
//
// Prometheus records application calls; ConnMetrics records what happens
// to each connection and is installed as gateway hooks:
//
//	srv, _ := gateway.Listen(ctx, &gateway.Config{
//	    Hooks: middleware.ConnMetrics(),
//	})
//
// Expose them with promhttp, or use the admin package.
//
// # Trace Context
//
// OpenTelemetry stores the span context in the Environ handed to the
// application, so outgoing calls can join the trace:
//
//	func(env *gateway.Environ, start gateway.StartResponse) (gateway.Body, error) {
//	    req, _ := http.NewRequestWithContext(middleware.TraceContext(env), "GET", url, nil)
//	    ...
//	}
package middleware

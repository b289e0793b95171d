package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/vango-dev/gateway/pkg/gateway"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name for gateway applications.
const defaultTracerName = "gateway"

// KeyTraceContext is the Environ key under which the span context is stored.
const KeyTraceContext = "gateway.trace_context"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "gateway").
	TracerName string

	// IncludeServer adds SERVER_NAME and SERVER_PORT to spans.
	// Enabled by default.
	IncludeServer bool

	// Filter determines which requests to trace.
	// Return true to trace the request, false to skip.
	// If nil, all requests are traced.
	Filter func(env *gateway.Environ) bool

	// AttributeExtractor extracts custom attributes from the environ.
	AttributeExtractor func(env *gateway.Environ) []attribute.KeyValue

	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithIncludeServer enables/disables server attributes on spans.
func WithIncludeServer(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludeServer = include
	}
}

// WithRequestFilter sets a filter function for requests.
func WithRequestFilter(filter func(env *gateway.Environ) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(env *gateway.Environ) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName:    defaultTracerName,
		IncludeServer: true,
	}
}

// OpenTelemetry creates middleware that wraps every application call in a
// server span. The span's context is handed to the application under
// KeyTraceContext; use TraceContext or SpanFromEnviron to reach it.
//
// The tracer comes from the global provider. Configure it before serving:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//
// Request headers are never parsed, so incoming trace context is not
// propagated; every request starts a new trace.
func OpenTelemetry(opts ...OTelOption) Middleware {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}
	config.tracer = otel.Tracer(config.TracerName)

	return func(next gateway.Application) gateway.Application {
		return gateway.ApplicationFunc(func(env *gateway.Environ, start gateway.StartResponse) (gateway.Body, error) {
			if config.Filter != nil && !config.Filter(env) {
				return next.Serve(env, start)
			}

			attrs := []attribute.KeyValue{
				attribute.String("gateway.method", env.RequestMethod),
				attribute.String("gateway.path", env.PathInfo),
				attribute.String("gateway.protocol", env.ServerProtocol),
			}
			if config.IncludeServer {
				attrs = append(attrs,
					attribute.String("gateway.server_name", env.ServerName),
					attribute.Int("gateway.server_port", env.ServerPort),
				)
			}
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor(env)...)
			}

			spanCtx, span := config.tracer.Start(
				context.Background(),
				formatSpanName(env),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
				trace.WithTimestamp(time.Now()),
			)
			defer span.End()

			rec := &statusRecorder{next: start}
			body, err := next.Serve(env.With(KeyTraceContext, spanCtx), rec.start)

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.SetAttributes(
				attribute.String("gateway.status", rec.status),
				attribute.Int("gateway.body_chunks", len(body)),
			)
			return body, err
		})
	}
}

// SpanFromEnviron returns the span started by OpenTelemetry, or nil.
func SpanFromEnviron(env *gateway.Environ) trace.Span {
	if spanCtx, ok := traceContext(env); ok {
		return trace.SpanFromContext(spanCtx)
	}
	return nil
}

// TraceContext returns the span context for outgoing calls made by the
// application, or context.Background() when the request is not traced.
//
//	req, _ := http.NewRequestWithContext(middleware.TraceContext(env), "GET", url, nil)
func TraceContext(env *gateway.Environ) context.Context {
	if spanCtx, ok := traceContext(env); ok {
		return spanCtx
	}
	return context.Background()
}

func traceContext(env *gateway.Environ) (context.Context, bool) {
	v, ok := env.Get(KeyTraceContext)
	if !ok {
		return nil, false
	}
	spanCtx, ok := v.(context.Context)
	return spanCtx, ok
}

func formatSpanName(env *gateway.Environ) string {
	return fmt.Sprintf("gateway %s", env.RequestMethod)
}

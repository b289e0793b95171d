package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/vango-dev/gateway/pkg/gateway"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestOpenTelemetryMiddleware_StoresTraceContext(t *testing.T) {
	extracted := false
	mw := OpenTelemetry(
		WithTracerName("test"),
		WithIncludeServer(true),
		WithAttributeExtractor(func(env *gateway.Environ) []attribute.KeyValue {
			extracted = true
			return []attribute.KeyValue{attribute.String("test.attr", env.PathInfo)}
		}),
	)

	var seen *gateway.Environ
	inner := gateway.ApplicationFunc(func(env *gateway.Environ, start gateway.StartResponse) (gateway.Body, error) {
		seen = env
		if SpanFromEnviron(env) == nil {
			t.Fatal("expected SpanFromEnviron to return a span during execution")
		}
		_ = trace.SpanContextFromContext(TraceContext(env)) // Should not panic
		start("200 OK", nil, nil)
		return gateway.Body{[]byte("x")}, nil
	})

	orig := newTestEnviron(t, "GET /projects HTTP/1.1")
	var c captured
	if _, err := mw(inner).Serve(orig, c.start); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !extracted {
		t.Fatal("attribute extractor was not called")
	}
	if c.status != "200 OK" {
		t.Fatalf("status = %q, want 200 OK", c.status)
	}
	stored, ok := seen.Get(KeyTraceContext)
	if _, isCtx := stored.(context.Context); !ok || !isCtx {
		t.Fatalf("expected span context in environ, got %T", stored)
	}
	if _, ok := orig.Get(KeyTraceContext); ok {
		t.Fatal("original environ must not be modified")
	}
}

func TestOpenTelemetryMiddleware_ErrorPropagates(t *testing.T) {
	want := errors.New("failed")
	_, err := OpenTelemetry()(errApp(want)).Serve(newTestEnviron(t, "POST /x HTTP/1.1"), (&captured{}).start)
	if !errors.Is(err, want) {
		t.Fatalf("error = %v, want %v", err, want)
	}
}

func TestOpenTelemetryMiddleware_FilterSkipsTracing(t *testing.T) {
	mw := OpenTelemetry(WithRequestFilter(func(env *gateway.Environ) bool {
		return env.PathInfo != "/healthz"
	}))

	var seen *gateway.Environ
	inner := gateway.ApplicationFunc(func(env *gateway.Environ, start gateway.StartResponse) (gateway.Body, error) {
		seen = env
		start("200 OK", nil, nil)
		return nil, nil
	})

	orig := newTestEnviron(t, "GET /healthz HTTP/1.1")
	if _, err := mw(inner).Serve(orig, (&captured{}).start); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != orig {
		t.Fatal("filtered request should receive the original environ")
	}
	if SpanFromEnviron(seen) != nil {
		t.Fatal("filtered request should not carry a span")
	}
}

func TestTraceContext_NoSpan(t *testing.T) {
	env := newTestEnviron(t, "GET / HTTP/1.1")
	if SpanFromEnviron(env) != nil {
		t.Fatal("expected nil span")
	}
	if TraceContext(env) != context.Background() {
		t.Fatal("expected context.Background()")
	}
}

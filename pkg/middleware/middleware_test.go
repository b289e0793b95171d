package middleware

import (
	"errors"
	"strings"
	"testing"

	"github.com/vango-dev/gateway/pkg/gateway"
)

// =============================================================================
// Test Helpers
// =============================================================================

func newTestEnviron(t *testing.T, requestLine string) *gateway.Environ {
	t.Helper()
	env, err := gateway.Decode([]byte(requestLine+"\r\n\r\n"), "test.local", 8888)
	if err != nil {
		t.Fatalf("Decode(%q) error: %v", requestLine, err)
	}
	return env
}

// captured records what the innermost StartResponse received.
type captured struct {
	calls   int
	status  string
	headers []gateway.Header
	excInfo error
}

func (c *captured) start(status string, headers []gateway.Header, excInfo error) {
	c.calls++
	c.status = status
	c.headers = headers
	c.excInfo = excInfo
}

func okApp(status string) gateway.Application {
	return gateway.ApplicationFunc(func(env *gateway.Environ, start gateway.StartResponse) (gateway.Body, error) {
		start(status, []gateway.Header{{Name: "Content-Type", Value: "text/plain"}}, nil)
		return gateway.Body{[]byte("ok")}, nil
	})
}

func errApp(err error) gateway.Application {
	return gateway.ApplicationFunc(func(*gateway.Environ, gateway.StartResponse) (gateway.Body, error) {
		return nil, err
	})
}

// =============================================================================
// Chain
// =============================================================================

func TestChain_FirstMiddlewareIsOutermost(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next gateway.Application) gateway.Application {
			return gateway.ApplicationFunc(func(env *gateway.Environ, start gateway.StartResponse) (gateway.Body, error) {
				order = append(order, name+">")
				body, err := next.Serve(env, start)
				order = append(order, "<"+name)
				return body, err
			})
		}
	}

	app := Chain(okApp("200 OK"), tag("a"), nil, tag("b"))
	var c captured
	if _, err := app.Serve(newTestEnviron(t, "GET / HTTP/1.1"), c.start); err != nil {
		t.Fatalf("Serve() error: %v", err)
	}

	if got := strings.Join(order, " "); got != "a> b> <b <a" {
		t.Fatalf("order = %q, want %q", got, "a> b> <b <a")
	}
	if c.status != "200 OK" {
		t.Fatalf("status = %q, want 200 OK", c.status)
	}
}

func TestChain_NoMiddleware(t *testing.T) {
	app := okApp("204 No Content")
	if Chain(app) == nil {
		t.Fatal("Chain() returned nil")
	}
}

func TestStatusRecorder_Code(t *testing.T) {
	var c captured
	r := &statusRecorder{next: c.start}
	if got := r.code(); got != "none" {
		t.Fatalf("code() before start = %q, want none", got)
	}
	r.start("404 Not Found", nil, nil)
	if got := r.code(); got != "404" {
		t.Fatalf("code() = %q, want 404", got)
	}
	r.start("299", nil, nil)
	if got := r.code(); got != "299" {
		t.Fatalf("code() = %q, want 299", got)
	}
	if c.calls != 2 {
		t.Fatalf("next called %d times, want 2", c.calls)
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{gateway.ErrEmptyRequest, "empty_request"},
		{&gateway.MalformedRequestError{Line: "GET"}, "malformed_request"},
		{gateway.ErrInvalidEncoding, "invalid_encoding"},
		{gateway.ErrResponseNotStarted, "not_started"},
		{&gateway.ApplicationPanicError{Value: "x"}, "panic"},
		{&gateway.ConnError{Op: "write", Err: errors.New("reset")}, "transport_write"},
		{errors.New("db down"), "application"},
	}
	for _, tt := range tests {
		if got := categorizeError(tt.err); got != tt.want {
			t.Errorf("categorizeError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

package gateway

import (
	"runtime/debug"
	"slices"
	"time"
)

// DefaultServerIdentity is the value of the Server header added to every response.
const DefaultServerIdentity = "Simple Web server"

// Header is a single response header. Header lists keep their order.
type Header struct {
	Name  string
	Value string
}

// Body is the sequence of chunks an application returns, in write order.
type Body [][]byte

// StartResponse declares the response status and headers. Applications
// may call it more than once; only the last call is kept. excInfo is
// accepted for contract compatibility and is not inspected.
type StartResponse func(status string, headers []Header, excInfo error)

// Application handles one request.
type Application interface {
	Serve(env *Environ, start StartResponse) (Body, error)
}

// ApplicationFunc adapts a function to the Application interface.
type ApplicationFunc func(env *Environ, start StartResponse) (Body, error)

// Serve calls f(env, start).
func (f ApplicationFunc) Serve(env *Environ, start StartResponse) (Body, error) {
	return f(env, start)
}

// ResponseState holds what the last StartResponse call recorded.
type ResponseState struct {
	status  string
	headers []Header
	started bool
}

// Started reports whether StartResponse has been called.
func (r *ResponseState) Started() bool { return r.started }

// Status returns the recorded status line, e.g. "200 OK".
func (r *ResponseState) Status() string { return r.status }

// Headers returns application headers followed by the server-added ones.
func (r *ResponseState) Headers() []Header { return r.headers }

func (r *ResponseState) set(status string, headers []Header) {
	r.status = status
	r.headers = headers
	r.started = true
}

// formatDate renders t the way a timestamp prints by default: microseconds
// are shown only when non-zero.
func formatDate(t time.Time) string {
	if t.Nanosecond()/1000 == 0 {
		return t.Format("2006-01-02 15:04:05")
	}
	return t.Format("2006-01-02 15:04:05.000000")
}

// NewStartResponse returns a callback that records into state, appending
// the Date and Server headers after whatever the application supplies.
func NewStartResponse(state *ResponseState, identity string, now func() time.Time) StartResponse {
	if now == nil {
		now = time.Now
	}
	return func(status string, headers []Header, _ error) {
		all := slices.Grow(slices.Clone(headers), 2)
		all = append(all,
			Header{Name: "Date", Value: formatDate(now())},
			Header{Name: "Server", Value: identity},
		)
		state.set(status, all)
	}
}

// invoke runs app and converts a panic into an *ApplicationPanicError.
func invoke(app Application, env *Environ, start StartResponse) (body Body, err error) {
	defer func() {
		if r := recover(); r != nil {
			body = nil
			err = &ApplicationPanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return app.Serve(env, start)
}

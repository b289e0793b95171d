package middleware

import (
	"strings"

	"github.com/vango-dev/gateway/pkg/gateway"
)

// Middleware wraps an Application.
type Middleware func(gateway.Application) gateway.Application

// Chain wraps app so that mws[0] is the outermost layer.
func Chain(app gateway.Application, mws ...Middleware) gateway.Application {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			app = mws[i](app)
		}
	}
	return app
}

// statusRecorder wraps a StartResponse and remembers the last status.
type statusRecorder struct {
	next   gateway.StartResponse
	status string
}

func (r *statusRecorder) start(status string, headers []gateway.Header, excInfo error) {
	r.status = status
	r.next(status, headers, excInfo)
}

// code returns the numeric part of the recorded status, or "none" when the
// application never started a response.
func (r *statusRecorder) code() string {
	if r.status == "" {
		return "none"
	}
	code, _, _ := strings.Cut(r.status, " ")
	return code
}

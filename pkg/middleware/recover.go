package middleware

import (
	"log/slog"
	"runtime/debug"

	"github.com/vango-dev/gateway/pkg/gateway"
)

// Recover turns an application panic into a plain 500 response. Without it
// a panic closes the connection with nothing sent. Returned errors pass
// through untouched.
func Recover(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next gateway.Application) gateway.Application {
		return gateway.ApplicationFunc(func(env *gateway.Environ, start gateway.StartResponse) (body gateway.Body, err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				panicErr := &gateway.ApplicationPanicError{Value: r, Stack: debug.Stack()}
				logger.Error("recovered application panic",
					"method", env.RequestMethod,
					"path", env.PathInfo,
					"error", panicErr)
				start("500 Internal Server Error",
					[]gateway.Header{{Name: "Content-Type", Value: "text/plain"}},
					panicErr)
				body, err = gateway.Body{[]byte("Internal Server Error")}, nil
			}()
			return next.Serve(env, start)
		})
	}
}

package apps

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/vango-dev/gateway/pkg/gateway"
)

// DefaultGreeting is the body Hello returns when given an empty message.
const DefaultGreeting = "Hello world from a simple WSGI application!\n"

var textPlain = []gateway.Header{{Name: "Content-Type", Value: "text/plain"}}

// Hello returns an application that always responds 200 with message.
func Hello(message string) gateway.Application {
	if message == "" {
		message = DefaultGreeting
	}
	body := []byte(message)
	return gateway.ApplicationFunc(func(_ *gateway.Environ, start gateway.StartResponse) (gateway.Body, error) {
		start("200 OK", textPlain, nil)
		return gateway.Body{body}, nil
	})
}

// EnvironDump responds with one "KEY = value" line per environ entry,
// followed by the raw request text the application can read from Input.
func EnvironDump() gateway.Application {
	return gateway.ApplicationFunc(func(env *gateway.Environ, start gateway.StartResponse) (gateway.Body, error) {
		var b strings.Builder
		for _, key := range gateway.Keys() {
			if key == gateway.KeyInput || key == gateway.KeyErrors {
				continue
			}
			v, _ := env.Get(key)
			fmt.Fprintf(&b, "%s = %v\n", key, v)
		}

		extra := make([]string, 0, len(env.Extra))
		for k := range env.Extra {
			extra = append(extra, k)
		}
		slices.Sort(extra)
		for _, k := range extra {
			fmt.Fprintf(&b, "%s = %v\n", k, env.Extra[k])
		}

		raw, err := io.ReadAll(env.Input)
		if err != nil {
			return nil, err
		}

		start("200 OK", textPlain, nil)
		return gateway.Body{
			[]byte(b.String()),
			[]byte("\n--- wsgi.input ---\n"),
			raw,
		}, nil
	})
}

package gateway

import (
	"io"
	"maps"
)

// Environment keys understood by Environ.Get.
const (
	KeyVersion        = "wsgi.version"
	KeyInput          = "wsgi.input"
	KeyErrors         = "wsgi.errors"
	KeyURLScheme      = "wsgi.url_scheme"
	KeyMultiThread    = "wsgi.multithread"
	KeyMultiProcess   = "wsgi.multiprocess"
	KeyRunOnce        = "wsgi.run_once"
	KeyRequestMethod  = "REQUEST_METHOD"
	KeyPathInfo       = "PATH_INFO"
	KeyServerProtocol = "SERVER_PROTOCOL"
	KeyServerName     = "SERVER_NAME"
	KeyServerPort     = "SERVER_PORT"
)

// Environ describes one request. It is built once by Decode and must be
// treated as read-only by applications and middleware.
type Environ struct {
	// Version is the gateway protocol version, always {1, 0}.
	Version [2]int

	// Input reads the whole decoded request text, request line and headers
	// included. It is never closed by the server.
	Input io.Reader

	// Errors is where applications may write diagnostics.
	Errors io.Writer

	// URLScheme is always "http".
	URLScheme string

	// Concurrency capability flags. All three are always false.
	MultiThread  bool
	MultiProcess bool
	RunOnce      bool

	RequestMethod  string
	PathInfo       string
	ServerProtocol string

	ServerName string
	ServerPort int

	// Extra holds application-defined keys. Use With to add entries.
	Extra map[string]any
}

// Get returns the value stored under a gateway key, falling back to Extra.
func (e *Environ) Get(key string) (any, bool) {
	switch key {
	case KeyVersion:
		return e.Version, true
	case KeyInput:
		return e.Input, true
	case KeyErrors:
		return e.Errors, true
	case KeyURLScheme:
		return e.URLScheme, true
	case KeyMultiThread:
		return e.MultiThread, true
	case KeyMultiProcess:
		return e.MultiProcess, true
	case KeyRunOnce:
		return e.RunOnce, true
	case KeyRequestMethod:
		return e.RequestMethod, true
	case KeyPathInfo:
		return e.PathInfo, true
	case KeyServerProtocol:
		return e.ServerProtocol, true
	case KeyServerName:
		return e.ServerName, true
	case KeyServerPort:
		return e.ServerPort, true
	}
	v, ok := e.Extra[key]
	return v, ok
}

// With returns a copy of e with key set in Extra. The receiver is not modified.
func (e *Environ) With(key string, value any) *Environ {
	clone := *e
	clone.Extra = make(map[string]any, len(e.Extra)+1)
	maps.Copy(clone.Extra, e.Extra)
	clone.Extra[key] = value
	return &clone
}

// Keys lists the fixed gateway keys in a stable order.
func Keys() []string {
	return []string{
		KeyVersion,
		KeyInput,
		KeyErrors,
		KeyURLScheme,
		KeyMultiThread,
		KeyMultiProcess,
		KeyRunOnce,
		KeyRequestMethod,
		KeyPathInfo,
		KeyServerProtocol,
		KeyServerName,
		KeyServerPort,
	}
}

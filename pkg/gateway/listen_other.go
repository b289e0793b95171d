//go:build !unix

package gateway

import (
	"context"
	"net"
	"strconv"
)

// listenTCP4 falls back to the net package, which applies the platform
// default backlog instead of Backlog.
func listenTCP4(ctx context.Context, host string, port int) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp4", net.JoinHostPort(host, strconv.Itoa(port)))
}

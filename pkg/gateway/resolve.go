package gateway

import (
	"context"
	"net"
	"os"
	"strings"
)

// Resolver is the subset of *net.Resolver used to find the canonical hostname.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// CanonicalHostname returns the fully qualified name for host. An empty or
// wildcard host means the local machine. The first reverse-lookup name
// containing a dot wins; failing that, the primary name; failing any
// lookup, host itself.
func CanonicalHostname(ctx context.Context, r Resolver, host string) string {
	name := strings.TrimSpace(host)
	if name == "" || name == "0.0.0.0" {
		if h, err := os.Hostname(); err == nil {
			name = h
		}
	}

	addr := name
	if net.ParseIP(name) == nil {
		addrs, err := r.LookupHost(ctx, name)
		if err != nil || len(addrs) == 0 {
			return name
		}
		addr = addrs[0]
	}

	names, err := r.LookupAddr(ctx, addr)
	if err != nil || len(names) == 0 {
		return name
	}
	for _, n := range names {
		n = strings.TrimSuffix(n, ".")
		if strings.Contains(n, ".") {
			return n
		}
	}
	return strings.TrimSuffix(names[0], ".")
}

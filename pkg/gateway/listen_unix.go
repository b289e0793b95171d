//go:build unix

package gateway

import (
	"context"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// listenTCP4 opens an IPv4 listening socket with SO_REUSEADDR and the
// fixed Backlog. net.Listen does not expose the backlog, so the socket is
// built by hand and then handed to the net package.
func listenTCP4(_ context.Context, host string, port int) (net.Listener, error) {
	ip, err := bindIP(host)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("setsockopt", err)
	}

	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, Backlog); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("listen", err)
	}

	f := os.NewFile(uintptr(fd), fmt.Sprintf("gateway:%s:%d", host, port))
	defer f.Close()
	// FileListener dups the descriptor; f is closed either way.
	return net.FileListener(f)
}

// bindIP resolves host to a 4-byte IPv4 address. Empty means INADDR_ANY.
func bindIP(host string) (net.IP, error) {
	if host == "" {
		return net.IPv4zero.To4(), nil
	}
	addr, err := net.ResolveIPAddr("ip4", host)
	if err != nil {
		return nil, err
	}
	ip := addr.IP.To4()
	if ip == nil {
		return nil, fmt.Errorf("gateway: %q is not an IPv4 address", host)
	}
	return ip, nil
}

//go:build !windows

// Package sockutil provides socket options shared by the UDP and TCP
// listeners: SO_REUSEPORT, so multiple goroutines can each own a
// listening socket on the same address instead of fanning work out
// from a single one.
package sockutil

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

func setReusePort(fd uintptr) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}

// ListenConfig returns a net.ListenConfig with SO_REUSEPORT enabled on
// every socket it creates.
func ListenConfig() net.ListenConfig {
	return net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var setErr error
			if err := c.Control(func(fd uintptr) {
				setErr = setReusePort(fd)
			}); err != nil {
				return err
			}
			return setErr
		},
	}
}

// ListenPacket opens a reuseport UDP socket on addr.
func ListenPacket(ctx context.Context, addr string) (net.PacketConn, error) {
	lc := ListenConfig()
	return lc.ListenPacket(ctx, "udp", addr)
}

// Listen opens a reuseport TCP socket on addr.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := ListenConfig()
	return lc.Listen(ctx, "tcp", addr)
}

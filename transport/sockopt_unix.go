// File: transport/sockopt_unix.go
//go:build unix

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket tuning for unix platforms.

package transport

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// controlSocket disables Nagle and enables keepalive before connect.
func controlSocket(_, _ string, rc syscall.RawConn) error {
	var serr error
	err := rc.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		if serr == nil {
			serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
		}
	})
	if err != nil {
		return err
	}
	return serr
}

func isConnRefused(err error) bool {
	return errors.Is(err, unix.ECONNREFUSED)
}

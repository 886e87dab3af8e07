// File: transport/sockopt_other.go
//go:build !unix

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import "syscall"

func controlSocket(_, _ string, _ syscall.RawConn) error { return nil }

func isConnRefused(error) bool { return false }

// Package transport
// Author: momentics <momentics@gmail.com>
//
// Client side of an RFC6455 WebSocket connection carrying WAMP.
//
// Conn dials the router over TCP (optionally TLS), performs the opening
// handshake under a deadline, and yields complete data frames. Ping and
// close frames are answered below the protocol layer by supervised
// background tasks; their failures are logged and counted, never lost.
package transport

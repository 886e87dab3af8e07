// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded worker pool used to run application callbacks (event handlers
// and procedures) off the receive loop. A panicking task is recovered and
// reported; it never takes down a worker or the connection.
package concurrency

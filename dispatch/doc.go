// Package dispatch
// Author: momentics <momentics@gmail.com>
//
// Routes decoded protocol messages to their handlers.
//
// The Dispatcher runs on the receive loop. Replies the foreground waits for
// go to the session HandoffQueue; acknowledgements update session state;
// events and invocations run on an executor so application code never
// blocks or crashes the loop.
package dispatch

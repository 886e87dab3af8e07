// Package session
// Author: momentics <momentics@gmail.com>
//
// Per-connection protocol session state.
// State correlates outbound requests with router acknowledgements and maps
// router-assigned subscription and registration ids back to local handlers.
//
// HandoffQueue is the single rendezvous between the receive loop and a
// foreground caller waiting for a specific reply.

package session

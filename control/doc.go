// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime metrics, and debug introspection for the client.
//
// Provides:
//   - Config loaded from TOML with defaults and validation
//   - Metrics backed by Prometheus collectors, safe to use when nil
//   - DebugProbes for named state snapshots
package control

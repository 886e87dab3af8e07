// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Named state probes for runtime inspection.

package control

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/momentics/hioload-wamp/api"
)

var _ api.Debug = (*DebugProbes)(nil)

// Probe reports one named value.
type Probe func() any

// DebugProbes is a registry of probes evaluated on demand.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]Probe
}

func NewDebugProbes() *DebugProbes {
	return &DebugProbes{probes: make(map[string]Probe)}
}

// RegisterProbe adds fn under name, replacing any previous probe.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	dp.probes[name] = fn
	dp.mu.Unlock()
}

// Unregister removes the probe under name.
func (dp *DebugProbes) Unregister(name string) {
	dp.mu.Lock()
	delete(dp.probes, name)
	dp.mu.Unlock()
}

// Names returns the registered probe names, sorted.
func (dp *DebugProbes) Names() []string {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	return slices.Sorted(maps.Keys(dp.probes))
}

// DumpState evaluates every probe. Probes run without the registry lock
// held; a probe that panics reports the panic as its value.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	snapshot := maps.Clone(dp.probes)
	dp.mu.RUnlock()

	out := make(map[string]any, len(snapshot))
	for name, fn := range snapshot {
		out[name] = evaluate(fn)
	}
	return out
}

func evaluate(fn Probe) (v any) {
	defer func() {
		if r := recover(); r != nil {
			v = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return fn()
}

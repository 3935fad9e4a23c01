package server

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/liveserve/liveserve/server/config"
)

// Registry owns the live instances, one per port. Starting on a port that
// already has an instance retargets that instance instead of binding a
// second listener. The registry is an explicit owned collection - there is
// no process-wide singleton inside the engine.
type Registry struct {
	stdout io.Writer
	stderr io.Writer

	mu        sync.Mutex
	instances map[int]*Instance
}

// NewRegistry creates an empty registry.
func NewRegistry(stdout, stderr io.Writer) *Registry {
	return &Registry{
		stdout:    stdout,
		stderr:    stderr,
		instances: make(map[int]*Instance),
	}
}

// Start ensures an instance is serving for cfg. If the port is already
// bound by this registry the existing instance is retargeted to cfg's root
// and index; otherwise a new instance is created and started. A failed
// start leaves the registry unchanged.
func (r *Registry) Start(cfg *config.Config) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.instances[cfg.Port]; ok {
		if err := existing.Retarget(cfg.Root, cfg.File); err != nil {
			return nil, fmt.Errorf("retargeting port %d: %w", cfg.Port, err)
		}
		return existing, nil
	}

	inst, err := New(cfg, r.stdout, r.stderr)
	if err != nil {
		return nil, err
	}
	if err := inst.Start(); err != nil {
		return nil, err
	}

	// Register under the actual port so an ephemeral-port start (port 0)
	// is retargetable like any other
	r.instances[inst.Port()] = inst
	return inst, nil
}

// Get returns the instance bound to port, or nil.
func (r *Registry) Get(port int) *Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instances[port]
}

// Stop stops and removes the instance bound to port. Stopping an unknown
// port is a no-op.
func (r *Registry) Stop(port int) error {
	r.mu.Lock()
	inst, ok := r.instances[port]
	if ok {
		delete(r.instances, port)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return inst.Stop()
}

// StopAll stops every instance and empties the registry.
func (r *Registry) StopAll() {
	r.mu.Lock()
	instances := make([]*Instance, 0, len(r.instances))
	for port, inst := range r.instances {
		instances = append(instances, inst)
		delete(r.instances, port)
	}
	r.mu.Unlock()

	for _, inst := range instances {
		inst.Stop()
	}
}

// Ports returns the bound ports in ascending order.
func (r *Registry) Ports() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	ports := make([]int, 0, len(r.instances))
	for port := range r.instances {
		ports = append(ports, port)
	}
	sort.Ints(ports)
	return ports
}

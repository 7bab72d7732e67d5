package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Func is a cleanup handler. It should respect ctx's deadline and be safe to
// call once even if startup only partly completed.
type Func func(ctx context.Context) error

// Priorities used by the server. Lower runs first.
const (
	PriorityHTTP     = 10 // stop accepting requests
	PriorityWorkers  = 20 // stop schedulers and flush async writers
	PriorityStorage  = 30 // close the history database
	PriorityTempFile = 40 // remove abandoned temp files
	PriorityLogger   = 90 // flush logs last
)

type entry struct {
	name     string
	fn       Func
	priority int
	seq      int
}

// Registry holds cleanup handlers and runs them once, in priority order.
// Handlers with equal priority run in registration order.
type Registry struct {
	mu      sync.Mutex
	entries []entry
	closed  bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds fn. Registration after Run is ignored.
func (r *Registry) Register(name string, priority int, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.entries = append(r.entries, entry{name: name, fn: fn, priority: priority, seq: len(r.entries)})
}

// Run calls every handler even if some fail and returns their errors, each
// prefixed with the handler name. Subsequent calls return nil.
func (r *Registry) Run(ctx context.Context) []error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sorted := r.sortedLocked()
	r.mu.Unlock()

	var errs []error
	for _, e := range sorted {
		if err := e.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}
	return errs
}

// Names returns handler names in execution order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := r.sortedLocked()
	names := make([]string, len(sorted))
	for i, e := range sorted {
		names[i] = e.name
	}
	return names
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) sortedLocked() []entry {
	sorted := make([]entry, len(r.entries))
	copy(sorted, r.entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].priority != sorted[j].priority {
			return sorted[i].priority < sorted[j].priority
		}
		return sorted[i].seq < sorted[j].seq
	})
	return sorted
}

package adapters

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"trust-pool/pkg/model"
)

// Adapter is one pluggable attestation check. Evaluate returns the node's
// trust level and whether the verdict is authoritative, i.e. allowed to
// overwrite cached trust state. Implementations must honour ctx so a caller
// can stop waiting on a hung backend.
type Adapter interface {
	Name() string
	Evaluate(ctx context.Context, host string) (model.TrustLevel, bool, error)
}

// Factory constructs a fresh adapter instance per execution.
type Factory func() (Adapter, error)

// Descriptor pairs a stable adapter name with its constructor.
type Descriptor struct {
	Name string
	New  Factory
}

// Registry holds the set of available adapters. Registration is explicit;
// Refresh rebuilds the working set from the registered factories and swaps
// it wholesale, so readers never observe a partial update.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	set       map[string]Descriptor
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		set:       make(map[string]Descriptor),
	}
}

// Register adds (or replaces) a named factory. Takes effect on next Refresh.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()
}

// Deregister removes a named factory. Takes effect on next Refresh.
func (r *Registry) Deregister(name string) {
	r.mu.Lock()
	delete(r.factories, name)
	r.mu.Unlock()
}

// Refresh re-discovers the working set. A factory whose constructor fails is
// skipped and logged; it does not abort discovery of the others.
func (r *Registry) Refresh() {
	r.mu.RLock()
	factories := make(map[string]Factory, len(r.factories))
	for name, f := range r.factories {
		factories[name] = f
	}
	r.mu.RUnlock()

	next := make(map[string]Descriptor, len(factories))
	for name, f := range factories {
		if _, err := f(); err != nil {
			log.Printf("adapter %s failed to load, skipping: %v", name, err)
			continue
		}
		next[name] = Descriptor{Name: name, New: f}
	}

	r.mu.Lock()
	r.set = next
	r.mu.Unlock()
}

// Discover returns the current working set ordered by name.
func (r *Registry) Discover() []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.set))
	for _, d := range r.set {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve instantiates the named adapter from the working set.
func (r *Registry) Resolve(name string) (Adapter, error) {
	r.mu.RLock()
	d, ok := r.set[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("adapter %s not registered", name)
	}
	return d.New()
}

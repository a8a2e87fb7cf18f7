package sink

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gyaneshwarpardhi/nodealert/internal/trigger"
)

// Sink is the interface all trigger destinations must satisfy.
type Sink interface {
	// Name returns the key this sink is registered under.
	Name() string
	// Deliver hands over the triggers of one pass.
	Deliver(ctx context.Context, triggers []trigger.AlertTrigger) error
}

// Registry fans triggers out to every registered sink.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sinks: make(map[string]Sink)}
}

// Register adds a sink. Panics on duplicate name to surface misconfiguration early.
func (r *Registry) Register(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sinks[s.Name()]; exists {
		panic(fmt.Sprintf("sink registry: duplicate name %q", s.Name()))
	}
	r.sinks[s.Name()] = s
}

// Get returns the sink registered under name.
func (r *Registry) Get(name string) (Sink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sinks[name]
	if !ok {
		return nil, fmt.Errorf("no sink registered under %q", name)
	}
	return s, nil
}

// Names returns all registered sink names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sinks))
	for k := range r.sinks {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Deliver passes triggers to every sink. A failing sink does not stop the
// others; all failures are returned joined.
func (r *Registry) Deliver(ctx context.Context, triggers []trigger.AlertTrigger) error {
	r.mu.RLock()
	sinks := make([]Sink, 0, len(r.sinks))
	for _, s := range r.sinks {
		sinks = append(sinks, s)
	}
	r.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Deliver(ctx, triggers); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

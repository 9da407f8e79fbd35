package gamehost

import (
	"context"
	"sort"
	"sync"
)

// Dependencies is a run-dependency gate: the game starts only once every
// added id has been removed again.
type Dependencies struct {
	mu      sync.Mutex
	pending map[string]int
	changed chan struct{}
}

// NewDependencies returns an open gate.
func NewDependencies() *Dependencies {
	return &Dependencies{
		pending: make(map[string]int),
		changed: make(chan struct{}),
	}
}

// Add holds the gate for id. Adds of the same id nest.
func (d *Dependencies) Add(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[id]++
	sub("deps").Debug("run dependency added", "id", id, "pending", len(d.pending))
}

// Remove releases one hold on id. Removing an id that is not held is a
// no-op.
func (d *Dependencies) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.pending[id]
	if !ok {
		return
	}
	if n > 1 {
		d.pending[id] = n - 1
		return
	}
	delete(d.pending, id)
	sub("deps").Debug("run dependency removed", "id", id, "pending", len(d.pending))
	close(d.changed)
	d.changed = make(chan struct{})
}

// Pending lists the ids still holding the gate, sorted.
func (d *Dependencies) Pending() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.pending))
	for id := range d.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Wait blocks until no dependency is held or ctx is done.
func (d *Dependencies) Wait(ctx context.Context) error {
	for {
		d.mu.Lock()
		if len(d.pending) == 0 {
			d.mu.Unlock()
			return nil
		}
		ch := d.changed
		d.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

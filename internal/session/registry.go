package session

import (
	"context"
	"sync"

	"github.com/AbduElrahman2001/BALHA/internal/store"

	"github.com/pkg/errors"
)

// Registry hands out one Customer per client device when several devices
// share a server. Only devices that track a waiting turn are kept in
// memory; the rest are reloaded from the store on demand.
type Registry struct {
	mu        sync.Mutex
	backend   store.Backend
	manager   Queue
	customers map[string]*Customer
}

func NewRegistry(backend store.Backend, manager Queue) *Registry {
	return &Registry{
		backend:   backend,
		manager:   manager,
		customers: make(map[string]*Customer),
	}
}

// Customer returns the session of deviceID, creating it when needed. Callers
// should Release the device once the request is done.
func (r *Registry) Customer(ctx context.Context, deviceID string) (*Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.customers[deviceID]; ok {
		return c, nil
	}
	return r.open(ctx, deviceID)
}

// Lookup returns the session of deviceID only when the device has a saved
// pointer. Unknown devices are not added to the registry.
func (r *Registry) Lookup(ctx context.Context, deviceID string) (*Customer, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.customers[deviceID]; ok {
		return c, true, nil
	}
	_, found, err := r.storeFor(deviceID).LoadCustomerTurn(ctx)
	if err != nil {
		return nil, false, errors.Wrap(err, "load customer turn")
	}
	if !found {
		return nil, false, nil
	}
	c, err := r.open(ctx, deviceID)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// Release forgets deviceID when it no longer tracks a turn.
func (r *Registry) Release(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[deviceID]
	if !ok {
		return
	}
	if _, tracking := c.TrackedTurnID(); !tracking {
		r.drop(deviceID, c)
	}
}

// Len reports how many device sessions are held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.customers)
}

// open sweeps finished sessions, then loads deviceID. r.mu must be held.
func (r *Registry) open(ctx context.Context, deviceID string) (*Customer, error) {
	r.sweep()
	c, err := OpenCustomer(ctx, r.storeFor(deviceID), r.manager)
	if err != nil {
		return nil, err
	}
	r.customers[deviceID] = c
	return c, nil
}

// sweep drops sessions whose cached turn has finished. Their saved pointer
// stays in the store, so the final status is still reported once on the next
// lookup. Sessions without a turn are left to Release.
func (r *Registry) sweep() {
	for deviceID, c := range r.customers {
		if turn, ok := c.Current(); ok && !turn.IsWaiting() {
			r.drop(deviceID, c)
		}
	}
}

func (r *Registry) drop(deviceID string, c *Customer) {
	delete(r.customers, deviceID)
	r.manager.RemoveTracker(c)
}

func (r *Registry) storeFor(deviceID string) *store.Store {
	return store.New(store.Scoped(r.backend, "device:"+deviceID))
}

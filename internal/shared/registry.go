// Package shared keeps at most one live, reference-counted instance per key.
//
// MCE models exactly one battery, one charger and so on, and there is only
// one MCE on the bus. Instead of hiding that in package-level variables, the
// invariant lives in an explicit Registry: the first Acquire for a key
// creates the instance, later ones share it, and the last Release destroys it
// and clears the slot so the next Acquire starts fresh.
package shared

import (
	"fmt"
	"sync"
)

type slot[V any] struct {
	value   V
	refs    int
	destroy func(V)
}

// Registry maps keys to shared instances.
type Registry[K comparable, V any] struct {
	mu    sync.Mutex
	slots map[K]*slot[V]
}

// NewRegistry creates an empty registry.
func NewRegistry[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{slots: make(map[K]*slot[V])}
}

// Acquire returns the live instance for key with its count incremented, or
// stores a new one built by create. created reports which case happened.
// create and destroy run without the registry lock held, so they may call
// back into the registry (create only after returning: the slot is not
// visible until create has finished).
func (r *Registry[K, V]) Acquire(key K, create func() (V, error), destroy func(V)) (v V, created bool, err error) {
	r.mu.Lock()
	if s, ok := r.slots[key]; ok {
		s.refs++
		r.mu.Unlock()
		return s.value, false, nil
	}
	r.mu.Unlock()

	v, err = create()
	if err != nil {
		return v, false, err
	}

	r.mu.Lock()
	if s, ok := r.slots[key]; ok {
		// Lost a race with another Acquire; keep theirs.
		s.refs++
		r.mu.Unlock()
		if destroy != nil {
			destroy(v)
		}
		return s.value, false, nil
	}
	r.slots[key] = &slot[V]{value: v, refs: 1, destroy: destroy}
	r.mu.Unlock()
	return v, true, nil
}

// Retain increments the count of an existing instance.
func (r *Registry[K, V]) Retain(key K) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[key]
	if !ok {
		return fmt.Errorf("retain %v: %w", key, ErrNotLive)
	}
	s.refs++
	return nil
}

// Release drops one reference. At zero the slot is cleared and the destroy
// hook runs; destroyed reports whether that happened.
func (r *Registry[K, V]) Release(key K) (destroyed bool, err error) {
	r.mu.Lock()
	s, ok := r.slots[key]
	if !ok {
		r.mu.Unlock()
		return false, fmt.Errorf("release %v: %w", key, ErrNotLive)
	}
	s.refs--
	if s.refs > 0 {
		r.mu.Unlock()
		return false, nil
	}
	delete(r.slots, key)
	r.mu.Unlock()

	if s.destroy != nil {
		s.destroy(s.value)
	}
	return true, nil
}

// Lookup returns the live instance for key without touching its count.
func (r *Registry[K, V]) Lookup(key K) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[key]
	if !ok {
		var zero V
		return zero, false
	}
	return s.value, true
}

// Refs returns the current reference count for key (0 if not live).
func (r *Registry[K, V]) Refs(key K) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.slots[key]; ok {
		return s.refs
	}
	return 0
}

// Len returns the number of live instances.
func (r *Registry[K, V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

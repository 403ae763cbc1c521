// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package resource

import (
	"sync"

	"github.com/gviegas/rgraph/driver"
)

// State is the GPU-visible state that an access requires.
type State struct {
	Sync   driver.Sync
	Access driver.Access
	// Layout is ignored for buffers.
	Layout driver.Layout
	// Queue is the queue family that owns the resource.
	// QIgnored means not owned.
	Queue driver.Queue
}

// Undefined is the state of a resource that has not been
// accessed. Its contents need not be preserved.
var Undefined = State{Queue: driver.QIgnored}

// IsUndefined returns whether s is Undefined.
func (s State) IsUndefined() bool {
	return s.Sync == driver.SNone && s.Access == driver.ANone && s.Layout == driver.LUndefined
}

// Compatible returns whether b can follow a with no
// barrier in between: both are identical and read-only.
func Compatible(a, b State) bool {
	return a.Sync == b.Sync && a.Access == b.Access && a.Layout == b.Layout &&
		a.Queue == b.Queue && a.Access.Writes() == 0
}

// Track is the synchronization history of a physical
// resource.
type Track struct {
	// Last is the state left by the most recent accesses.
	// Consecutive reads with the same layout accumulate
	// their scopes in it.
	Last State
	// WSync and WAccess are the scope of the most recent
	// write, which later reads must wait on.
	WSync   driver.Sync
	WAccess driver.Access
}

// Key identifies a physical copy of a resource.
type Key struct {
	Index uint32
	Copy  int
}

// StateTable maps physical resources to their Track.
// It persists across frames and is safe for concurrent
// use. Absent entries are Undefined.
type StateTable struct {
	mu sync.Mutex
	m  map[Key]Track
}

// Load returns the track of k.
func (t *StateTable) Load(k Key) (Track, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.m[k]
	if !ok {
		tr.Last = Undefined
	}
	return tr, ok
}

// Store sets the track of k.
func (t *StateTable) Store(k Key, tr Track) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		t.m = make(map[Key]Track)
	}
	t.m[k] = tr
}

// StoreAll sets the tracks of several keys at once.
func (t *StateTable) StoreAll(ks []Key, trs []Track) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		t.m = make(map[Key]Track)
	}
	for i, k := range ks {
		t.m[k] = trs[i]
	}
}

// Forget removes the track of k, so that k becomes
// Undefined.
func (t *StateTable) Forget(k Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, k)
}

// Delete removes the tracks of every copy of a resource.
func (t *StateTable) Delete(index uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.m {
		if k.Index == index {
			delete(t.m, k)
		}
	}
}

// Len returns the number of tracked resources.
func (t *StateTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}

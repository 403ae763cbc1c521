// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package graph

import (
	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/resource"
)

// req is the merged requirement of a node on a physical
// resource.
type req struct {
	key   resource.Key
	h     resource.Handle
	kind  resource.Kind
	st    resource.State
	write bool
}

// Need computes the barrier that an access with state st
// requires, given the track of the resource.
// It returns the barrier, whether it is needed and the
// track that results from the access.
//
// Buffers have no layout and an undefined buffer needs no
// barrier. An undefined image always needs a transition
// out of LUndefined. Otherwise, a barrier is needed if
// the layout changes, if the access writes or if the
// access reads data that a previous write produced.
// Reads that follow reads in the same layout are free,
// unless they widen the scope that the last barrier waited
// on.
func Need(tr resource.Track, st resource.State, image bool) (b driver.Barrier, need bool, next resource.Track) {
	last := tr.Last
	writes := st.Access.Writes() != 0
	next = tr
	if !image {
		st.Layout = driver.LUndefined
	}
	if writes {
		next.WSync = st.Sync
		next.WAccess = st.Access.Writes()
	}
	b.SyncAfter = st.Sync
	b.AccessAfter = st.Access

	if last.IsUndefined() {
		next.Last = st
		if !image {
			return driver.Barrier{}, false, next
		}
		return b, true, next
	}
	if (image && last.Layout != st.Layout) || writes {
		// WAR waits on the reads; WAW and layout changes
		// wait on whatever came last.
		b.SyncBefore = last.Sync
		b.AccessBefore = last.Access
		next.Last = st
		return b, true, next
	}
	if last.Access.Writes() != 0 {
		// RAW.
		b.SyncBefore = tr.WSync
		b.AccessBefore = tr.WAccess
		next.Last = st
		return b, true, next
	}
	// Read after read in the same layout.
	if st.Sync&^last.Sync == 0 && st.Access&^last.Access == 0 {
		return driver.Barrier{}, false, tr
	}
	next.Last.Sync |= st.Sync
	next.Last.Access |= st.Access
	if tr.WSync == driver.SNone && tr.WAccess == driver.ANone {
		// Nothing to wait on.
		return driver.Barrier{}, false, next
	}
	b.SyncBefore = tr.WSync
	b.AccessBefore = tr.WAccess
	b.SyncAfter = st.Sync &^ last.Sync
	b.AccessAfter = st.Access &^ last.Access
	if b.SyncAfter == driver.SNone {
		b.SyncAfter = st.Sync
	}
	return b, true, next
}

// batch accumulates barriers to be recorded together.
type batch struct {
	trans []driver.Transition
	bufs  []driver.BufBarrier
	keys  map[resource.Key]req
}

// conflicts returns whether r cannot share a batch with
// the barriers that are already in b.
func (b *batch) conflicts(r *req) bool {
	o, ok := b.keys[r.key]
	if !ok {
		return false
	}
	return o.write || r.write || o.st.Layout != r.st.Layout
}

func (b *batch) empty() bool { return len(b.trans) == 0 && len(b.bufs) == 0 }

// flush records the barriers in b and empties it.
// It returns the number of batches recorded.
func (b *batch) flush(cb driver.Syncer) int {
	n := 0
	if len(b.trans) > 0 {
		cb.Transition(b.trans)
		n++
	}
	if len(b.bufs) > 0 {
		cb.BufBarrier(b.bufs)
		n++
	}
	b.trans = nil
	b.bufs = nil
	clear(b.keys)
	return n
}

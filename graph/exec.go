// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package graph

import (
	"cmp"
	"slices"

	"github.com/gviegas/rgraph"
	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/resource"
)

// PresentReq is a request to present an image.
type PresentReq struct {
	Node  NodeRef
	Image resource.Handle
}

// Result is the outcome of Graph.Execute.
type Result struct {
	// Order is the order in which nodes were recorded.
	Order []NodeRef
	// Levels is the dependency level of each node,
	// indexed by NodeRef.
	Levels []int
	// Barriers is the number of barriers recorded for
	// each node, indexed by NodeRef.
	Barriers []int
	// Batches is the number of synchronization commands
	// recorded.
	Batches int
	// Presents lists the images to present, in order.
	Presents []PresentReq
}

// Total returns the number of barriers recorded.
func (r *Result) Total() (n int) {
	for _, b := range r.Barriers {
		n += b
	}
	return
}

type execCtx struct {
	g     *Graph
	cb    driver.CmdBuffer
	frame int64
	res   *Result
}

func (x *execCtx) image(h resource.Handle) driver.Image   { return x.g.reg.Image(h, x.frame) }
func (x *execCtx) buffer(h resource.Handle) driver.Buffer { return x.g.reg.Buffer(h, x.frame) }

// requirements merges the accesses of each node by
// physical resource.
func (g *Graph) requirements(frame int64, q driver.Queue) [][]req {
	reqs := make([][]req, len(g.nodes))
	for i := range g.deps {
		d := &g.deps[i]
		k := g.reg.Key(d.h, frame)
		rs := reqs[d.node]
		j := slices.IndexFunc(rs, func(r req) bool { return r.key == k })
		if j < 0 {
			st := d.st
			st.Queue = q
			reqs[d.node] = append(rs, req{key: k, h: d.h, kind: g.reg.Kind(d.h), st: st, write: d.write})
			continue
		}
		rs[j].st.Sync |= d.st.Sync
		rs[j].st.Access |= d.st.Access
		rs[j].write = rs[j].write || d.write
	}
	return reqs
}

// Execute records the graph into cb, which must be
// recording, for the given frame.
// Nodes are recorded in schedule order, each preceded by
// the barriers its accesses need. The states left by the
// graph are stored in the registry's state table.
func (g *Graph) Execute(cb driver.CmdBuffer, frame int64) (*Result, error) {
	order, err := g.Schedule()
	if err != nil {
		rgraph.Logger().Error("graph execution failed", "err", err)
		return nil, err
	}
	if !cb.IsRecording() {
		panic("graph: command buffer is not recording")
	}
	lvl := g.Levels(order)
	if g.opts.Batch {
		// Levels increase along every edge, so this is
		// still a valid order.
		order = slices.Clone(order)
		slices.SortStableFunc(order, func(a, b NodeRef) int { return cmp.Compare(lvl[a], lvl[b]) })
	}
	res := &Result{Order: order, Levels: lvl, Barriers: make([]int, len(g.nodes))}
	x := &execCtx{g: g, cb: cb, frame: frame, res: res}
	reqs := g.requirements(frame, cb.Queue())

	states := g.reg.States()
	local := make(map[resource.Key]resource.Track)
	load := func(k resource.Key) resource.Track {
		if tr, ok := local[k]; ok {
			return tr
		}
		tr, _ := states.Load(k)
		return tr
	}

	b := batch{keys: make(map[resource.Key]req)}
	var pending []NodeRef
	emit := func() {
		res.Batches += b.flush(cb)
		for _, n := range pending {
			g.nodes[n].payload.record(x)
			g.nodes[n].executed = true
		}
		pending = pending[:0]
	}
	level := -1
	for _, n := range order {
		rs := reqs[n]
		if g.opts.Batch {
			flush := lvl[n] != level
			for i := 0; i < len(rs) && !flush; i++ {
				flush = b.conflicts(&rs[i])
			}
			if flush {
				emit()
				level = lvl[n]
			}
		}
		for i := range rs {
			r := &rs[i]
			tr := load(r.key)
			bar, need, next := Need(tr, r.st, r.kind == resource.Image)
			local[r.key] = next
			b.keys[r.key] = *r
			if !need {
				continue
			}
			res.Barriers[n]++
			if r.kind == resource.Image {
				before := tr.Last.Layout
				if tr.Last.IsUndefined() {
					before = driver.LUndefined
				}
				b.trans = append(b.trans, driver.Transition{
					Barrier:      bar,
					LayoutBefore: before,
					LayoutAfter:  r.st.Layout,
					QueueBefore:  driver.QIgnored,
					QueueAfter:   driver.QIgnored,
					Img:          x.image(r.h),
				})
			} else {
				b.bufs = append(b.bufs, driver.BufBarrier{
					Barrier:     bar,
					QueueBefore: driver.QIgnored,
					QueueAfter:  driver.QIgnored,
					Buf:         x.buffer(r.h),
				})
			}
		}
		pending = append(pending, n)
		if !g.opts.Batch {
			emit()
		}
	}
	emit()

	ks := make([]resource.Key, 0, len(local))
	trs := make([]resource.Track, 0, len(local))
	for k, tr := range local {
		ks = append(ks, k)
		trs = append(trs, tr)
	}
	states.StoreAll(ks, trs)
	rgraph.Logger().Debug("graph executed", "frame", frame, "nodes", len(order), "barriers", res.Total(), "batches", res.Batches)
	return res, nil
}

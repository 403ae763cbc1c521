// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"errors"
	"sync"

	"github.com/gviegas/rgraph"
	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/engine/internal/ctxt"
	"github.com/gviegas/rgraph/engine/internal/desc"
	"github.com/gviegas/rgraph/graph"
	"github.com/gviegas/rgraph/resource"
)

func newRendErr(s string) error { return errors.New("renderer: " + s) }

// slot is a frame slot.
// wk holds the slot's work item while the slot is not in
// flight; receiving from it is the wait on the slot's
// fence.
type slot struct {
	wk   chan *driver.WorkItem
	cb   driver.CmdBuffer
	stg  driver.Buffer
	desc *desc.Allocator
	g    *graph.Graph
	// Loads consumed by the last submission.
	used []*PendingLoad
}

func (s *slot) destroy() {
	for _, pl := range s.used {
		pl.free()
	}
	s.used = nil
	if s.desc != nil {
		s.desc.Destroy()
	}
	if s.cb != nil {
		s.cb.Destroy()
	}
	if s.stg != nil {
		s.stg.Destroy()
	}
}

// Renderer drives the execution of frame graphs.
// Its methods, except for the loading ones, must be
// called from a single goroutine.
type Renderer struct {
	gpu    driver.GPU
	cfg    Config
	reg    *resource.Registry
	queues driver.Queues
	slots  []*slot
	n      int64
	cur    *Frame

	pend    pendingList
	loaders chan struct{}
	wg      sync.WaitGroup

	sc   driver.Swapchain
	bb   resource.Handle
	held int
}

// New creates a new Renderer on gpu.
// If cfg is nil, DefaultConfig is used.
func New(gpu driver.GPU, cfg *Config) (*Renderer, error) {
	if gpu == nil {
		return nil, newRendErr("nil GPU")
	}
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	r := &Renderer{
		gpu:     gpu,
		cfg:     c,
		reg:     resource.NewRegistry(gpu, c.Frames),
		queues:  gpu.Queues(),
		loaders: make(chan struct{}, c.Loaders),
		held:    -1,
	}
	opts := graph.Options{MaxNodes: c.MaxNodes, Batch: c.BatchBarriers}
	for i := range c.Frames {
		s := &slot{wk: make(chan *driver.WorkItem, 1), g: graph.New(r.reg, opts)}
		r.slots = append(r.slots, s)
		var err error
		if s.cb, err = gpu.NewCmdBuffer(r.queues.Graphics); err == nil {
			if s.stg, err = gpu.NewBuffer(c.StagingSize, true, driver.UCopySrc); err == nil {
				s.desc, err = desc.New(gpu, c.DescSets, desc.Ratios)
			}
		}
		if err != nil {
			for _, s := range r.slots {
				s.destroy()
			}
			return nil, err
		}
		s.wk <- &driver.WorkItem{Work: make([]driver.CmdBuffer, 0, 1), Custom: i}
	}
	rgraph.Logger().Info("renderer created",
		"frames", c.Frames,
		"staging", c.StagingSize,
		"dedicated", r.queues.Dedicated(),
		"batch", c.BatchBarriers)
	return r, nil
}

// NewDefault creates a new Renderer on the GPU of the
// driver that cfg.Driver selects.
func NewDefault(cfg *Config) (*Renderer, error) {
	name := ""
	if cfg != nil {
		name = cfg.Driver
	}
	gpu, err := ctxt.Open(name)
	if err != nil {
		return nil, err
	}
	return New(gpu, cfg)
}

// GPU returns the GPU of r.
func (r *Renderer) GPU() driver.GPU { return r.gpu }

// Registry returns the resource registry of r.
// Per-frame resources created in it have one copy per
// frame slot.
func (r *Renderer) Registry() *resource.Registry { return r.reg }

// Queues returns the queues used by r.
func (r *Renderer) Queues() driver.Queues { return r.queues }

// Config returns the configuration of r.
func (r *Renderer) Config() Config { return r.cfg }

// Frames returns the number of frames submitted so far.
func (r *Renderer) Frames() int64 { return r.n }

// Attach attaches a swapchain to r.
// Its images are imported into the registry as a single
// resource, which Frame.Backbuffer returns.
func (r *Renderer) Attach(sc driver.Swapchain) (resource.Handle, error) {
	if r.sc != nil {
		return resource.Handle{}, newRendErr("swapchain already attached")
	}
	h, err := r.reg.Import("backbuffer", sc.Images())
	if err != nil {
		return resource.Handle{}, err
	}
	r.sc, r.bb, r.held = sc, h, -1
	return h, nil
}

// Recreate recreates the attached swapchain after
// BeginFrame returns ErrSkipFrame.
// It waits for every frame in flight to complete.
// The backbuffer handle may change.
func (r *Renderer) Recreate() (resource.Handle, error) {
	if r.sc == nil {
		return resource.Handle{}, newRendErr("no swapchain attached")
	}
	if r.cur != nil {
		return resource.Handle{}, newRendErr("Recreate called during a frame")
	}
	r.idle()
	if err := r.sc.Recreate(); err != nil {
		return resource.Handle{}, err
	}
	r.reg.Destroy(r.bb)
	h, err := r.reg.Import("backbuffer", r.sc.Images())
	if err != nil {
		r.sc = nil
		return resource.Handle{}, err
	}
	r.bb, r.held = h, -1
	return h, nil
}

// idle waits for every frame in flight to complete.
func (r *Renderer) idle() {
	for _, s := range r.slots {
		s.wk <- <-s.wk
	}
}

// BeginFrame begins a new frame.
// It blocks until the frame slot that the new frame
// reuses is no longer in flight.
// If a swapchain is attached and it is out of date,
// BeginFrame returns ErrSkipFrame; the caller should
// call Recreate.
func (r *Renderer) BeginFrame() (*Frame, error) {
	if r.cur != nil {
		return nil, newRendErr("BeginFrame called during a frame")
	}
	s := r.slots[r.n%int64(len(r.slots))]
	wk := <-s.wk
	if wk.Err != nil {
		if errors.Is(wk.Err, driver.ErrFatal) {
			fatal(wk.Err)
		}
		rgraph.Logger().Warn("renderer: frame execution failed", "frame", r.n-int64(len(r.slots)), "err", wk.Err)
		wk.Err = nil
	}
	for _, pl := range s.used {
		pl.free()
	}
	s.used = s.used[:0]
	wk.Work = wk.Work[:0]
	wk.Wait = wk.Wait[:0]
	wk.WaitSync = wk.WaitSync[:0]

	bb := -1
	if r.sc != nil {
		if r.held >= 0 {
			bb, r.held = r.held, -1
		} else {
			i, err := r.sc.Next()
			if err != nil {
				s.wk <- wk
				if errors.Is(err, driver.ErrSwapchain) {
					rgraph.Logger().Warn("renderer: swapchain out of date, skipping frame", "frame", r.n)
					return nil, ErrSkipFrame
				}
				return nil, err
			}
			bb = i
		}
		r.reg.Select(r.bb, bb)
	}

	if err := s.cb.Reset(); err != nil {
		s.wk <- wk
		return nil, err
	}
	if err := s.desc.Reset(); err != nil {
		s.wk <- wk
		return nil, err
	}
	s.g.Reset()
	if err := s.cb.Begin(); err != nil {
		s.wk <- wk
		return nil, err
	}
	f := &Frame{Number: r.n, Graph: s.g, r: r, s: s, wk: wk, bb: bb}
	r.cur = f
	return f, nil
}

// ExecuteGraph records the graph of f.
// The loads pending at this point are acquired at the top
// of the frame's command buffer and the frame's
// submission waits on them.
// Graph errors are invariant violations: ExecuteGraph
// logs them and panics.
func (r *Renderer) ExecuteGraph(f *Frame) (*graph.Result, error) {
	if f != r.cur || f.res != nil {
		return nil, newRendErr("ExecuteGraph: frame not current or already executed")
	}
	s, wk := f.s, f.wk
	var trans []driver.Transition
	var bufs []driver.BufBarrier
	for _, pl := range r.pend.drain() {
		if !pl.consume() {
			continue
		}
		trans = append(trans, pl.trans...)
		bufs = append(bufs, pl.bufs...)
		wk.Wait = append(wk.Wait, pl.sem)
		wk.WaitSync = append(wk.WaitSync, driver.SAll)
		r.reg.States().StoreAll(pl.keys, pl.tracks)
		s.used = append(s.used, pl)
	}
	if len(trans) > 0 {
		s.cb.Transition(trans)
	}
	if len(bufs) > 0 {
		s.cb.BufBarrier(bufs)
	}
	if len(s.used) > 0 {
		rgraph.Logger().Debug("renderer: loads acquired", "frame", f.Number, "loads", len(s.used), "images", len(trans), "buffers", len(bufs))
	}

	res, err := f.Graph.Execute(s.cb, f.Number)
	if err != nil {
		fatal(err)
	}
	f.res = res
	return res, nil
}

// EndFrame ends f and commits its command buffer.
// The graph is executed first if ExecuteGraph was not
// called. If the graph presents the backbuffer, it is
// presented after the commit.
func (r *Renderer) EndFrame(f *Frame) error {
	if f != r.cur {
		return newRendErr("EndFrame: frame not current")
	}
	if f.res == nil {
		if _, err := r.ExecuteGraph(f); err != nil {
			return err
		}
	}
	s, wk := f.s, f.wk
	r.cur = nil
	if err := s.cb.End(); err != nil {
		r.release(f)
		return err
	}
	wk.Work = append(wk.Work[:0], s.cb)
	if err := r.gpu.Commit(wk, s.wk); err != nil {
		r.release(f)
		return err
	}
	r.n++

	if f.bb < 0 {
		return nil
	}
	for _, p := range f.res.Presents {
		if p.Image == r.bb.Base() {
			if err := r.sc.Present(f.bb); err != nil {
				rgraph.Logger().Warn("renderer: present failed", "frame", f.Number, "err", err)
				return err
			}
			return nil
		}
	}
	// Not presented; the next frame targets the same
	// image.
	r.held = f.bb
	return nil
}

// release gives back the work item of a frame that was
// not committed.
func (r *Renderer) release(f *Frame) {
	wk := f.wk
	wk.Wait = wk.Wait[:0]
	wk.WaitSync = wk.WaitSync[:0]
	if f.bb >= 0 {
		r.held = f.bb
	}
	f.s.wk <- wk
}

// Close waits for pending work to complete and then
// destroys r and every resource in its registry.
// It does not destroy the attached swapchain.
// A frame begun but not ended is discarded.
func (r *Renderer) Close() {
	if f := r.cur; f != nil {
		r.cur = nil
		f.s.cb.Reset()
		r.release(f)
	}
	r.wg.Wait()
	r.idle()
	for _, pl := range r.pend.drain() {
		pl.free()
	}
	for _, s := range r.slots {
		s.destroy()
	}
	r.slots = nil
	r.reg.Close()
	r.sc = nil
}

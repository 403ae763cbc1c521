// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/gviegas/rgraph"
	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/resource"
)

// Upload describes data to be copied into a resource.
type Upload struct {
	// Dst must not be a per-frame resource and must not
	// be in use by frames in flight.
	Dst resource.Handle

	// Data is copied into Dst.
	// For images, it must contain exactly one layer of
	// the first level, tightly packed.
	Data []byte

	// Off is the offset into Dst, for buffers.
	Off int64

	// Layer is the image layer to write.
	Layer int

	// State is the state in which Dst is left for use in
	// frame graphs. The zero value selects Sampled for
	// images and vertex/index/uniform reads for buffers.
	State resource.State
}

// LoadStatus is the progress of a LoadTask.
type LoadStatus int32

// Load statuses.
const (
	// Waiting for a loader.
	Pending LoadStatus = iota
	// Recording or executing.
	Loading
	// Execution completed or failed.
	Ready
)

func (s LoadStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("LoadStatus(%d)", int32(s))
}

// TaskState is the state of the ownership transfer of a
// LoadTask.
type TaskState int32

// Task states.
const (
	// Commands are being recorded on the transfer queue.
	Recording TaskState = iota
	// Submitted; a frame has yet to acquire the results.
	AwaitingAcquire
	// A frame that acquired the results has completed.
	Acquired
)

func (s TaskState) String() string {
	switch s {
	case Recording:
		return "recording"
	case AwaitingAcquire:
		return "awaiting acquire"
	case Acquired:
		return "acquired"
	}
	return fmt.Sprintf("TaskState(%d)", int32(s))
}

// LoadTask is an asynchronous upload.
type LoadTask struct {
	status atomic.Int32
	state  atomic.Int32
	done   chan struct{}
	err    error
}

func newTask() *LoadTask { return &LoadTask{done: make(chan struct{})} }

// Status returns the progress of t.
// It never blocks.
func (t *LoadTask) Status() LoadStatus { return LoadStatus(t.status.Load()) }

// State returns the transfer state of t.
// It never blocks.
func (t *LoadTask) State() TaskState { return TaskState(t.state.Load()) }

// Wait blocks until t is Ready or ctx is done.
func (t *LoadTask) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the error of a Ready task.
func (t *LoadTask) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

func (t *LoadTask) finish(err error) {
	t.err = err
	t.status.Store(int32(Ready))
	close(t.done)
}

// PendingLoad is the handoff of an upload to the graphics
// queue: the semaphore that the upload signals, the
// barriers that acquire its resources, and the states in
// which the resources are left.
type PendingLoad struct {
	task   *LoadTask
	sem    driver.Semaphore
	cb     driver.CmdBuffer
	stg    driver.Buffer
	trans  []driver.Transition
	bufs   []driver.BufBarrier
	keys   []resource.Key
	tracks []resource.Track

	consumed atomic.Bool
}

// consume marks pl as consumed.
// It returns false if pl was already consumed.
func (pl *PendingLoad) consume() bool { return pl.consumed.CompareAndSwap(false, true) }

// free destroys the resources of pl.
// The frame that consumed pl must have completed.
func (pl *PendingLoad) free() {
	if pl.cb == nil {
		return
	}
	pl.cb.Destroy()
	pl.stg.Destroy()
	if pl.sem != nil {
		pl.sem.Destroy()
	}
	if pl.task != nil {
		pl.task.state.Store(int32(Acquired))
	}
	pl.task, pl.sem, pl.cb, pl.stg = nil, nil, nil, nil
	pl.trans, pl.bufs, pl.keys, pl.tracks = nil, nil, nil, nil
}

// pendingList is the list of loads awaiting acquisition.
// The lock is only held to push and to drain.
type pendingList struct {
	mu    sync.Mutex
	loads []*PendingLoad
}

func (l *pendingList) push(pl *PendingLoad) {
	l.mu.Lock()
	l.loads = append(l.loads, pl)
	l.mu.Unlock()
}

func (l *pendingList) drain() []*PendingLoad {
	l.mu.Lock()
	s := l.loads
	l.loads = nil
	l.mu.Unlock()
	return s
}

func (l *pendingList) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.loads)
}

var (
	errNoUploads  = newErr("no uploads")
	errPerFrame   = newErr("cannot load into per-frame resource")
	errUploadSize = newErr("upload out of bounds")
)

// finalState returns the state in which a load leaves
// its destination.
func finalState(st resource.State, kind resource.Kind, q driver.Queue) resource.State {
	if st.IsUndefined() {
		if kind == resource.Image {
			st = resource.State{Sync: driver.SFragmentShading, Access: driver.AShaderRead, Layout: driver.LShaderRead}
		} else {
			st = resource.State{
				Sync:   driver.SVertexInput | driver.SVertexShading | driver.SFragmentShading,
				Access: driver.AVertexBufRead | driver.AIndexBufRead | driver.AConstRead,
			}
		}
	}
	if kind == resource.Buffer {
		st.Layout = driver.LUndefined
	}
	st.Queue = q
	return st
}

const stagingAlign = 16

func align(n int64) int64 { return (n + stagingAlign - 1) &^ (stagingAlign - 1) }

// record records the commands of an upload into a new
// command buffer of queue q.
// When q is not the graphics queue, the barriers that
// follow the copies release the resources to it and the
// returned PendingLoad holds the matching acquires.
func (r *Renderer) record(ups []Upload, q driver.Queue) (pl *PendingLoad, err error) {
	if len(ups) == 0 {
		return nil, errNoUploads
	}
	gq := r.queues.Graphics
	var size int64
	for i := range ups {
		u := &ups[i]
		if !r.reg.Valid(u.Dst) {
			return nil, newErr("invalid upload destination")
		}
		if r.reg.PerFrame(u.Dst) {
			return nil, fmt.Errorf("%w %q", errPerFrame, r.reg.Name(u.Dst))
		}
		switch r.reg.Kind(u.Dst) {
		case resource.Buffer:
			if u.Off < 0 || u.Off+int64(len(u.Data)) > r.reg.Size(u.Dst) {
				return nil, fmt.Errorf("%w: %q", errUploadSize, r.reg.Name(u.Dst))
			}
		case resource.Image:
			m := r.reg.Image(u.Dst, 0)
			sz := m.Size()
			n := sz.Width * sz.Height * max(sz.Depth, 1) * m.Format().Size()
			if len(u.Data) != n || u.Layer < 0 || u.Layer >= m.Layers() {
				return nil, fmt.Errorf("%w: %q", errUploadSize, r.reg.Name(u.Dst))
			}
		}
		size += align(int64(len(u.Data)))
	}

	pl = &PendingLoad{}
	defer func() {
		if err != nil {
			if pl.cb != nil {
				pl.cb.Destroy()
			}
			if pl.stg != nil {
				pl.stg.Destroy()
			}
			if pl.sem != nil {
				pl.sem.Destroy()
			}
			pl = nil
		}
	}()
	if pl.stg, err = r.gpu.NewBuffer(size, true, driver.UCopySrc); err != nil {
		return
	}
	if pl.cb, err = r.gpu.NewCmdBuffer(q); err != nil {
		return
	}
	if err = pl.cb.Begin(); err != nil {
		return
	}

	// Contents of the destinations are discarded, so
	// images start from LUndefined.
	var pre []driver.Transition
	for i := range ups {
		if r.reg.Kind(ups[i].Dst) == resource.Image {
			pre = append(pre, driver.Transition{
				Barrier:      driver.Barrier{SyncAfter: driver.SCopy, AccessAfter: driver.ACopyWrite},
				LayoutBefore: driver.LUndefined,
				LayoutAfter:  driver.LCopyDst,
				QueueBefore:  driver.QIgnored,
				QueueAfter:   driver.QIgnored,
				Img:          r.reg.Image(ups[i].Dst, 0),
				Layer:        ups[i].Layer,
				Layers:       1,
				Levels:       1,
			})
		}
	}
	if len(pre) > 0 {
		pl.cb.Transition(pre)
	}

	data := pl.stg.Bytes()
	var off int64
	var post []driver.Transition
	var postBufs []driver.BufBarrier
	for i := range ups {
		u := &ups[i]
		copy(data[off:], u.Data)
		kind := r.reg.Kind(u.Dst)
		fin := finalState(u.State, kind, gq)
		rel := driver.Barrier{SyncBefore: driver.SCopy, AccessBefore: driver.ACopyWrite}
		acq := rel
		if q == gq {
			rel.SyncAfter = fin.Sync
			rel.AccessAfter = fin.Access
		} else {
			acq.SyncAfter = fin.Sync
			acq.AccessAfter = fin.Access
		}
		qb, qa := driver.QIgnored, driver.QIgnored
		if q != gq {
			qb, qa = q, gq
		}
		switch kind {
		case resource.Buffer:
			b := r.reg.Buffer(u.Dst, 0)
			pl.cb.CopyBuffer(&driver.BufferCopy{From: pl.stg, FromOff: off, To: b, ToOff: u.Off, Size: int64(len(u.Data))})
			bb := driver.BufBarrier{Barrier: rel, QueueBefore: qb, QueueAfter: qa, Buf: b, Off: u.Off, Size: int64(len(u.Data))}
			postBufs = append(postBufs, bb)
			if q != gq {
				bb.Barrier = acq
				pl.bufs = append(pl.bufs, bb)
			}
		case resource.Image:
			m := r.reg.Image(u.Dst, 0)
			sz := m.Size()
			pl.cb.CopyBufToImg(&driver.BufImgCopy{
				Buf:    pl.stg,
				BufOff: off,
				Img:    m,
				Layer:  u.Layer,
				Size:   driver.Dim3D{Width: sz.Width, Height: sz.Height, Depth: max(sz.Depth, 1)},
				Layers: 1,
			})
			t := driver.Transition{
				Barrier:      rel,
				LayoutBefore: driver.LCopyDst,
				LayoutAfter:  fin.Layout,
				QueueBefore:  qb,
				QueueAfter:   qa,
				Img:          m,
				Layer:        u.Layer,
				Layers:       1,
				Levels:       1,
			}
			post = append(post, t)
			if q != gq {
				t.Barrier = acq
				pl.trans = append(pl.trans, t)
			}
		}
		pl.keys = append(pl.keys, r.reg.Key(u.Dst, 0))
		pl.tracks = append(pl.tracks, resource.Track{Last: fin, WSync: driver.SCopy, WAccess: driver.ACopyWrite})
		off += align(int64(len(u.Data)))
	}
	if len(post) > 0 {
		pl.cb.Transition(post)
	}
	if len(postBufs) > 0 {
		pl.cb.BufBarrier(postBufs)
	}
	err = pl.cb.End()
	return
}

// Load uploads data asynchronously.
// When the GPU has a dedicated transfer queue, the copies
// execute on it and the resources are handed over to the
// graphics queue by the next frame that is executed after
// the submission. Otherwise, they execute on the graphics
// queue ahead of that frame.
// In either case, frame graphs must not use the
// destinations before the task's State is
// AwaitingAcquire.
func (r *Renderer) Load(ctx context.Context, ups []Upload) *LoadTask {
	t := newTask()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		select {
		case r.loaders <- struct{}{}:
		case <-ctx.Done():
			t.finish(ctx.Err())
			return
		}
		defer func() { <-r.loaders }()
		t.status.Store(int32(Loading))
		t.finish(r.load(t, ups))
	}()
	return t
}

func (r *Renderer) load(t *LoadTask, ups []Upload) error {
	pl, err := r.record(ups, r.queues.Transfer)
	if err != nil {
		rgraph.Logger().Warn("engine: load failed", "err", err)
		return err
	}
	if pl.sem, err = r.gpu.NewSemaphore(); err != nil {
		pl.free()
		return err
	}
	wk := &driver.WorkItem{Work: []driver.CmdBuffer{pl.cb}, Signal: []driver.Semaphore{pl.sem}}
	ch := make(chan *driver.WorkItem, 1)
	if err := r.gpu.Commit(wk, ch); err != nil {
		pl.free()
		return err
	}
	pl.task = t
	t.state.Store(int32(AwaitingAcquire))
	r.pend.push(pl)
	rgraph.Logger().Debug("engine: load submitted", "uploads", len(ups), "dedicated", r.queues.Dedicated())
	// Submitted work cannot be aborted.
	wk = <-ch
	return wk.Err
}

// LoadImmediate uploads data on the graphics queue and
// waits for the copies to complete.
// It must not be called concurrently with ExecuteGraph.
func (r *Renderer) LoadImmediate(ctx context.Context, ups []Upload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pl, err := r.record(ups, r.queues.Graphics)
	if err != nil {
		return err
	}
	wk := &driver.WorkItem{Work: []driver.CmdBuffer{pl.cb}}
	ch := make(chan *driver.WorkItem, 1)
	if err := r.gpu.Commit(wk, ch); err != nil {
		pl.free()
		return err
	}
	wk = <-ch
	if wk.Err == nil {
		r.reg.States().StoreAll(pl.keys, pl.tracks)
	}
	pl.free()
	return wk.Err
}

// LoadAll calls Load for each element of batches and
// waits for every task to be Ready.
// It returns the first error.
func (r *Renderer) LoadAll(ctx context.Context, batches [][]Upload) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Loaders)
	for _, ups := range batches {
		g.Go(func() error { return r.Load(ctx, ups).Wait(ctx) })
	}
	if err := g.Wait(); err != nil {
		if !errors.Is(err, context.Canceled) {
			rgraph.Logger().Warn("engine: LoadAll failed", "err", err)
		}
		return err
	}
	return nil
}

// Pending returns the number of loads awaiting
// acquisition.
func (r *Renderer) Pending() int { return r.pend.len() }

// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"

	"github.com/gviegas/rgraph/driver"
)

// job is a unit of work for a queue executor.
// Exactly one of wk or present is set.
type job struct {
	wk      *driver.WorkItem
	ch      chan<- *driver.WorkItem
	present func()
}

// queue executes jobs in FIFO order.
type queue struct {
	d    *Driver
	fam  driver.Queue
	mu   sync.Mutex
	cond sync.Cond
	jobs []job
	quit bool
	done chan struct{}
}

func newQueue(d *Driver, fam driver.Queue) *queue {
	q := &queue{d: d, fam: fam, done: make(chan struct{})}
	q.cond.L = &q.mu
	go q.run()
	return q
}

var errStopped = errors.New("soft: queue stopped")

// push enqueues j.
func (q *queue) push(j job) error {
	q.mu.Lock()
	if q.quit {
		q.mu.Unlock()
		return errStopped
	}
	q.jobs = append(q.jobs, j)
	q.mu.Unlock()
	q.cond.Signal()
	return nil
}

// stop waits for pending jobs to execute and then
// terminates the executor.
func (q *queue) stop() {
	q.mu.Lock()
	q.quit = true
	q.mu.Unlock()
	q.cond.Signal()
	<-q.done
}

func (q *queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.jobs) == 0 && !q.quit {
			q.cond.Wait()
		}
		if len(q.jobs) == 0 {
			q.mu.Unlock()
			return
		}
		j := q.jobs[0]
		q.jobs[0] = job{}
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		if j.present != nil {
			j.present()
			continue
		}
		q.execute(j.wk)
		if j.ch != nil {
			j.ch <- j.wk
		}
	}
}

// execute executes wk.
func (q *queue) execute(wk *driver.WorkItem) {
	for _, s := range wk.Wait {
		s.(*semaphore).wait()
	}
	d := q.d
	d.mu.Lock()
	sub := Submission{
		Seq:      d.seq,
		Queue:    q.fam,
		Wait:     wk.Wait,
		WaitSync: wk.WaitSync,
		Signal:   wk.Signal,
	}
	d.seq++
	for _, x := range wk.Work {
		cb := x.(*cmdBuffer)
		for i := range cb.cmds {
			d.exec(q.fam, &cb.cmds[i])
		}
		sub.Cmds = append(sub.Cmds, cb.cmds...)
		cb.status = cbEnded
	}
	d.log = append(d.log, sub)
	d.mu.Unlock()
	for _, s := range wk.Signal {
		s.(*semaphore).signal()
	}
	wk.Err = nil
}

// exec validates and executes a single command.
// d.mu must be held.
func (d *Driver) exec(q driver.Queue, c *Cmd) {
	switch c.Op {
	case OpTransition:
		for i := range c.Transitions {
			d.transition(q, &c.Transitions[i])
		}
	case OpBufBarrier:
		for i := range c.BufBarriers {
			b := &c.BufBarriers[i]
			d.ownership(q, b.Buf.(*buffer), b.QueueBefore, b.QueueAfter, false)
		}
	case OpBeginPass:
		d.beginPass(q, c.Pass)
	case OpVertexBuf, OpIndexBuf:
		for _, b := range c.Bufs {
			d.access(q, b.(*buffer), true)
		}
	case OpCopyBuffer:
		d.copyBuffer(q, c.BufCopy)
	case OpCopyBufToImg:
		d.copyBufImg(q, c.BufImg, true)
	case OpCopyImgToBuf:
		d.copyBufImg(q, c.BufImg, false)
	case OpBlit:
		d.blit(q, c.ImgBlit)
	case OpFill:
		b := c.FillBuf.(*buffer)
		d.access(q, b, false)
		if c.FillOff+c.FillSize > b.Cap() {
			d.violate("Fill: range [%d, %d) out of bounds", c.FillOff, c.FillOff+c.FillSize)
			return
		}
		p := b.data[c.FillOff : c.FillOff+c.FillSize]
		for i := range p {
			p[i] = c.FillVal
		}
	}
}

// transition executes an image barrier.
func (d *Driver) transition(q driver.Queue, t *driver.Transition) {
	m := t.Img.(*image)
	cur := d.layout[m]
	if t.QueueBefore != t.QueueAfter && t.QueueBefore != driver.QIgnored && t.QueueAfter != driver.QIgnored {
		switch q {
		case t.QueueBefore:
			if t.LayoutBefore != driver.LUndefined && cur != t.LayoutBefore {
				d.violate("Transition (release): image in layout %d, want %d", cur, t.LayoutBefore)
			}
			d.layout[m] = t.LayoutAfter
		case t.QueueAfter:
			// The layout change of an ownership transfer
			// executes once, in the release.
			if cur != t.LayoutAfter && cur != t.LayoutBefore {
				d.violate("Transition (acquire): image in layout %d, want %d", cur, t.LayoutAfter)
			}
			d.layout[m] = t.LayoutAfter
		}
		d.ownership(q, m, t.QueueBefore, t.QueueAfter, t.LayoutBefore == driver.LUndefined)
		return
	}
	if t.LayoutBefore != driver.LUndefined && cur != t.LayoutBefore {
		d.violate("Transition: image in layout %d, want %d", cur, t.LayoutBefore)
	}
	d.layout[m] = t.LayoutAfter
	d.ownership(q, m, t.QueueBefore, t.QueueAfter, t.LayoutBefore == driver.LUndefined)
}

// ownership updates the owner of res as a barrier on queue
// q executes. discard indicates that the previous contents
// need not be preserved.
func (d *Driver) ownership(q driver.Queue, res any, before, after driver.Queue, discard bool) {
	own, owned := d.owner[res]
	if before == after || before == driver.QIgnored || after == driver.QIgnored {
		if owned && own != q && !discard {
			if own == inTransit {
				d.violate("barrier on queue %d: resource in transit to queue %d", q, d.pend[res])
			} else {
				d.violate("barrier on queue %d: resource owned by queue %d", q, own)
			}
		}
		d.owner[res] = q
		return
	}
	switch q {
	case before:
		if owned && own != q && !discard {
			d.violate("release on queue %d: resource owned by queue %d", q, own)
		}
		d.owner[res] = inTransit
		d.pend[res] = after
	case after:
		if !owned || own != inTransit || d.pend[res] != q {
			d.violate("acquire on queue %d: no matching release", q)
		}
		d.owner[res] = q
		delete(d.pend, res)
	default:
		d.violate("ownership transfer %d->%d recorded on queue %d", before, after, q)
	}
}

// access validates that queue q can access res.
// A write-only access discards the previous contents, so
// it just takes ownership.
func (d *Driver) access(q driver.Queue, res any, read bool) {
	own, owned := d.owner[res]
	switch {
	case !owned:
	case own == inTransit:
		d.violate("access on queue %d: resource in transit to queue %d", q, d.pend[res])
	case own != q && read:
		d.violate("read on queue %d: resource owned by queue %d", q, own)
	}
	d.owner[res] = q
}

// expect validates the layout of m.
func (d *Driver) expect(what string, m *image, want ...driver.Layout) {
	cur := d.layout[m]
	for _, l := range want {
		if cur == l {
			return
		}
	}
	d.violate("%s: image in layout %d, want %d", what, cur, want[0])
}

func (d *Driver) beginPass(q driver.Queue, p *driver.Pass) {
	for i := range p.Color {
		t := &p.Color[i]
		m := t.Img.(*image)
		d.expect("BeginPass (color)", m, driver.LColorTarget)
		d.access(q, m, t.Load == driver.LLoad)
		if t.Load == driver.LClear {
			d.clear(m, t.Layer, clearPixel(m.pf, &t.Clear))
		}
	}
	if t := p.DS; t != nil {
		m := t.Img.(*image)
		d.expect("BeginPass (depth/stencil)", m, driver.LDSTarget)
		d.access(q, m, t.Load == driver.LLoad)
		if t.Load == driver.LClear {
			d.clear(m, t.Layer, clearPixel(m.pf, &t.Clear))
		}
	}
}

func (d *Driver) clear(m *image, layer int, px []byte) {
	n := m.layerSize()
	p := m.data[layer*n : (layer+1)*n]
	for i := 0; i < len(p); i += len(px) {
		copy(p[i:], px)
	}
}

// clearPixel encodes a clear value in the given format.
func clearPixel(pf driver.PixelFmt, cv *driver.ClearValue) []byte {
	px := make([]byte, pf.Size())
	unorm := func(f float32) byte {
		return byte(math.Round(float64(min(max(f, 0), 1)) * 255))
	}
	c := cv.Color
	switch pf {
	case driver.RGBA8un, driver.RGBA8sRGB:
		px[0], px[1], px[2], px[3] = unorm(c[0]), unorm(c[1]), unorm(c[2]), unorm(c[3])
	case driver.BGRA8un, driver.BGRA8sRGB:
		px[0], px[1], px[2], px[3] = unorm(c[2]), unorm(c[1]), unorm(c[0]), unorm(c[3])
	case driver.RG8un:
		px[0], px[1] = unorm(c[0]), unorm(c[1])
	case driver.R8un:
		px[0] = unorm(c[0])
	case driver.RGBA32f:
		for i := range c {
			binary.LittleEndian.PutUint32(px[i*4:], math.Float32bits(c[i]))
		}
	case driver.R32f:
		binary.LittleEndian.PutUint32(px, math.Float32bits(c[0]))
	case driver.D32f:
		binary.LittleEndian.PutUint32(px, math.Float32bits(cv.Depth))
	case driver.D16un:
		binary.LittleEndian.PutUint16(px, uint16(math.Round(float64(min(max(cv.Depth, 0), 1))*65535)))
	}
	return px
}

func (d *Driver) copyBuffer(q driver.Queue, p *driver.BufferCopy) {
	from := p.From.(*buffer)
	to := p.To.(*buffer)
	d.access(q, from, true)
	d.access(q, to, false)
	if p.FromOff+p.Size > from.Cap() || p.ToOff+p.Size > to.Cap() {
		d.violate("CopyBuffer: range out of bounds")
		return
	}
	copy(to.data[p.ToOff:p.ToOff+p.Size], from.data[p.FromOff:p.FromOff+p.Size])
}

// copyBufImg copies between a buffer and the first level of
// an image. toImg indicates the direction.
func (d *Driver) copyBufImg(q driver.Queue, p *driver.BufImgCopy, toImg bool) {
	b := p.Buf.(*buffer)
	m := p.Img.(*image)
	if toImg {
		d.expect("CopyBufToImg", m, driver.LCopyDst, driver.LCommon)
		d.access(q, b, true)
		d.access(q, m, false)
	} else {
		d.expect("CopyImgToBuf", m, driver.LCopySrc, driver.LCommon)
		d.access(q, m, true)
		d.access(q, b, false)
	}
	if p.Level != 0 {
		return
	}
	rowLen, imgH := p.Stride[0], p.Stride[1]
	if rowLen == 0 {
		rowLen = p.Size.Width
	}
	if imgH == 0 {
		imgH = p.Size.Height
	}
	psz := m.pf.Size()
	depth := max(p.Size.Depth, 1)
	row := p.Size.Width * psz
	off := p.BufOff
	for l := p.Layer; l < p.Layer+max(p.Layers, 1); l++ {
		for z := 0; z < depth; z++ {
			for y := 0; y < p.Size.Height; y++ {
				bo := off + int64(((z*imgH+y)*rowLen)*psz)
				io := m.offset(l, p.ImgOff.X, p.ImgOff.Y+y, p.ImgOff.Z+z)
				if bo+int64(row) > b.Cap() || io+row > len(m.data) {
					d.violate("buffer/image copy: range out of bounds")
					return
				}
				if toImg {
					copy(m.data[io:io+row], b.data[bo:])
				} else {
					copy(b.data[bo:bo+int64(row)], m.data[io:])
				}
			}
		}
		off += int64(rowLen * imgH * depth * psz)
	}
}

// blit copies between the first levels of two images.
// Texels are sampled at the nearest position regardless of
// filter.
func (d *Driver) blit(q driver.Queue, p *driver.ImageBlit) {
	src := p.From.(*image)
	dst := p.To.(*image)
	d.expect("Blit (source)", src, driver.LCopySrc)
	d.expect("Blit (destination)", dst, driver.LCopyDst)
	d.access(q, src, true)
	d.access(q, dst, false)
	if src.pf != dst.pf {
		d.violate("Blit: format mismatch")
		return
	}
	if p.FromLevel != 0 || p.ToLevel != 0 {
		return
	}
	f0, f1 := p.FromRect[0], p.FromRect[1]
	t0, t1 := p.ToRect[0], p.ToRect[1]
	sw, sh := f1.X-f0.X, f1.Y-f0.Y
	dw, dh := t1.X-t0.X, t1.Y-t0.Y
	if sw <= 0 || sh <= 0 || dw <= 0 || dh <= 0 {
		return
	}
	if f1.X > src.size.Width || f1.Y > src.size.Height || t1.X > dst.size.Width || t1.Y > dst.size.Height {
		d.violate("Blit: region out of bounds")
		return
	}
	psz := src.pf.Size()
	for y := 0; y < dh; y++ {
		sy := f0.Y + (2*y+1)*sh/(2*dh)
		for x := 0; x < dw; x++ {
			sx := f0.X + (2*x+1)*sw/(2*dw)
			so := src.offset(p.FromLayer, sx, sy, f0.Z)
			do := dst.offset(p.ToLayer, t0.X+x, t0.Y+y, t0.Z)
			copy(dst.data[do:do+psz], src.data[so:so+psz])
		}
	}
}

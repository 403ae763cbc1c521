// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package graph

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/driver/soft"
	"github.com/gviegas/rgraph/resource"
)

type env struct {
	d   *soft.Driver
	gpu driver.GPU
	reg *resource.Registry
}

func newEnv(t *testing.T) *env {
	t.Helper()
	d := soft.New(soft.Config{})
	gpu, err := d.Open()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.Close)
	reg := resource.NewRegistry(gpu, 2)
	t.Cleanup(reg.Close)
	return &env{d, gpu, reg}
}

func (e *env) buffer(t *testing.T, name string) resource.Handle {
	t.Helper()
	h, err := e.reg.CreateBuffer(name, resource.BufferDesc{Size: 256, Usage: driver.UGeneric})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func (e *env) image(t *testing.T, name string) resource.Handle {
	t.Helper()
	h, err := e.reg.CreateImage(name, resource.ImageDesc{
		Format: driver.RGBA8un,
		Size:   driver.Dim3D{Width: 4, Height: 4},
		Usage:  driver.UGeneric,
	})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

// run executes g for the given frame and waits for the
// GPU to finish.
func (e *env) run(t *testing.T, g *Graph, frame int64) (*Result, []soft.Cmd) {
	t.Helper()
	e.d.ClearLog()
	cb, err := e.gpu.NewCmdBuffer(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := cb.Begin(); err != nil {
		t.Fatal(err)
	}
	res, err := g.Execute(cb, frame)
	if err != nil {
		t.Fatalf("Graph.Execute:\nhave %v\nwant nil", err)
	}
	if err := cb.End(); err != nil {
		t.Fatal(err)
	}
	ch := make(chan *driver.WorkItem, 1)
	if err := e.gpu.Commit(&driver.WorkItem{Work: []driver.CmdBuffer{cb}}, ch); err != nil {
		t.Fatal(err)
	}
	<-ch
	if v := e.d.Violations(); len(v) != 0 {
		t.Fatalf("soft: validation failures:\n%v", v)
	}
	log := e.d.Log()
	if len(log) != 1 {
		t.Fatalf("soft: submissions:\nhave %d\nwant 1", len(log))
	}
	return res, log[0].Cmds
}

func ops(cmds []soft.Cmd) []soft.Op {
	s := make([]soft.Op, len(cmds))
	for i := range cmds {
		s[i] = cmds[i].Op
	}
	return s
}

func TestWrite(t *testing.T) {
	e := newEnv(t)
	g := New(e.reg, Options{})
	x := e.buffer(t, "x")
	a := g.AddTransfer("a")
	x1, err := a.Fill(x, 0, 1, 16)
	if err != nil || x1 != x.Next() {
		t.Fatalf("TransferPass.Fill:\nhave %v, %v\nwant %v, nil", x1, err, x.Next())
	}
	if r := g.Roots(); len(r) != 1 || r[0] != x {
		t.Fatalf("Graph.Roots:\nhave %v\nwant [%v]", r, x)
	}
	if p, ok := g.Producer(x1); !ok || p != a.Ref() {
		t.Fatalf("Graph.Producer:\nhave %d, %t\nwant %d, true", p, ok, a.Ref())
	}
	if _, ok := g.Producer(x); ok {
		t.Fatal("Graph.Producer: first version:\nhave true\nwant false")
	}
	if l := g.Latest(x); l != x1 {
		t.Fatalf("Graph.Latest:\nhave %v\nwant %v", l, x1)
	}

	b := g.AddTransfer("b")
	if _, err := b.Fill(x, 0, 2, 16); !errors.Is(err, ErrDoubleWrite) {
		t.Fatalf("TransferPass.Fill: second write:\nhave %v\nwant %v", err, ErrDoubleWrite)
	}
	// Errors are sticky.
	if _, err := b.Fill(x1, 0, 2, 16); !errors.Is(err, ErrDoubleWrite) {
		t.Fatalf("TransferPass.Fill: after error:\nhave %v\nwant %v", err, ErrDoubleWrite)
	}
	if _, err := g.Schedule(); !errors.Is(err, ErrDoubleWrite) {
		t.Fatalf("Graph.Schedule:\nhave %v\nwant %v", err, ErrDoubleWrite)
	}

	g.Reset()
	if g.Err() != nil || g.Len() != 0 {
		t.Fatalf("Graph.Reset:\nhave %v, %d\nwant nil, 0", g.Err(), g.Len())
	}
	c := g.AddTransfer("c")
	if err := c.Read(x.Next().Next(), CopySrc); !errors.Is(err, ErrStaleVersion) {
		t.Fatalf("Node.Read: unknown version:\nhave %v\nwant %v", err, ErrStaleVersion)
	}
}

func TestMisuse(t *testing.T) {
	e := newEnv(t)
	buf, img := e.buffer(t, "buf"), e.image(t, "img")

	g := New(e.reg, Options{})
	p := g.AddGraphics("p", 4, 4)
	if err := p.BindVertexBuf(0, img, 0); !errors.Is(err, ErrKind) {
		t.Fatalf("GraphicsPass.BindVertexBuf: image:\nhave %v\nwant %v", err, ErrKind)
	}

	g = New(e.reg, Options{})
	p = g.AddGraphics("p", 4, 4)
	if err := p.BindSampled(img); err != nil {
		t.Fatal(err)
	}
	if err := p.BindUniform(buf); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Color(img, driver.LClear, [4]float32{}); !errors.Is(err, ErrConflict) {
		t.Fatalf("GraphicsPass.Color: sampled image:\nhave %v\nwant %v", err, ErrConflict)
	}

	g = New(e.reg, Options{MaxNodes: 2})
	g.AddTransfer("a")
	g.AddBlit("b")
	defer func() {
		if recover() == nil {
			t.Fatal("Graph.AddTransfer: capacity exceeded: no panic")
		}
	}()
	g.AddTransfer("c")
}

func TestSchedule(t *testing.T) {
	e := newEnv(t)
	x, y, rt := e.buffer(t, "x"), e.buffer(t, "y"), e.image(t, "rt")
	stg, _ := e.gpu.NewBuffer(256, true, driver.UCopySrc)
	defer stg.Destroy()

	g := New(e.reg, Options{})
	up := g.AddTransfer("upload")
	x1, _ := up.Upload(stg, 0, x, 0, 64)
	fill := g.AddTransfer("fill")
	fill.Fill(y, 0, 0, 64)
	draw := g.AddGraphics("draw", 4, 4)
	rt1, _ := draw.Color(rt, driver.LClear, [4]float32{})
	draw.BindVertexBuf(0, x1, 0)
	draw.Draw(3, 1, 0, 0)
	g.AddPresent("present", rt1)

	order, err := g.Schedule()
	if err != nil {
		t.Fatalf("Graph.Schedule:\nhave %v\nwant nil", err)
	}
	if diff := cmp.Diff([]NodeRef{0, 1, 2, 3}, order); diff != "" {
		t.Fatalf("Graph.Schedule: (-want +have):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 0, 1, 2}, g.Levels(order)); diff != "" {
		t.Fatalf("Graph.Levels: (-want +have):\n%s", diff)
	}
	if diff := cmp.Diff([]NodeRef{2}, g.Deps(3)); diff != "" {
		t.Fatalf("Graph.Deps: (-want +have):\n%s", diff)
	}

	// The order is stable.
	for range 8 {
		again, _ := g.Schedule()
		if diff := cmp.Diff(order, again); diff != "" {
			t.Fatalf("Graph.Schedule: unstable: (-first +have):\n%s", diff)
		}
	}
}

func TestScheduleWAR(t *testing.T) {
	e := newEnv(t)
	x, y := e.buffer(t, "x"), e.buffer(t, "y")

	// The reader of the first version is inserted after
	// the writer, but must execute before it.
	g := New(e.reg, Options{})
	w := g.AddTransfer("overwrite")
	w.Fill(x, 0, 1, 64)
	r := g.AddTransfer("reader")
	r.CopyBuffer(x, 0, y, 0, 64)

	order, err := g.Schedule()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]NodeRef{r.Ref(), w.Ref()}, order); diff != "" {
		t.Fatalf("Graph.Schedule: (-want +have):\n%s", diff)
	}
	res, cmds := e.run(t, g, 0)
	if diff := cmp.Diff([]int{1, 0}, res.Barriers); diff != "" {
		t.Fatalf("Result.Barriers: (-want +have):\n%s", diff)
	}
	want := []soft.Op{soft.OpCopyBuffer, soft.OpBufBarrier, soft.OpFill}
	if diff := cmp.Diff(want, ops(cmds)); diff != "" {
		t.Fatalf("commands: (-want +have):\n%s", diff)
	}
}

func TestCycle(t *testing.T) {
	e := newEnv(t)
	x, y, z := e.buffer(t, "x"), e.buffer(t, "y"), e.buffer(t, "z")

	g := New(e.reg, Options{})
	a := g.AddTransfer("a")
	x1, _ := a.Fill(x, 0, 1, 64)
	b := g.AddTransfer("b")
	y1, _ := b.CopyBuffer(x1, 0, y, 0, 64)
	// a reads what b produces.
	if _, err := a.CopyBuffer(y1, 0, z, 0, 64); err != nil {
		t.Fatal(err)
	}

	_, err := g.Schedule()
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("Graph.Schedule:\nhave %v\nwant %v", err, ErrCycle)
	}
	if _, err := g.Execute(nil, 0); !errors.Is(err, ErrCycle) {
		t.Fatalf("Graph.Execute:\nhave %v\nwant %v", err, ErrCycle)
	}
}

func TestBarrierMinimality(t *testing.T) {
	e := newEnv(t)
	x := e.buffer(t, "x")

	g := New(e.reg, Options{})
	w1 := g.AddTransfer("w1")
	x1, _ := w1.Fill(x, 0, 1, 64)
	for _, s := range [2]string{"r1", "r2"} {
		r := g.AddGraphics(s, 4, 4)
		if err := r.BindUniform(x1); err != nil {
			t.Fatal(err)
		}
		r.Draw(3, 1, 0, 0)
	}
	w2 := g.AddTransfer("w2")
	if _, err := w2.Fill(x1, 0, 2, 64); err != nil {
		t.Fatal(err)
	}

	res, _ := e.run(t, g, 0)
	if diff := cmp.Diff([]NodeRef{0, 1, 2, 3}, res.Order); diff != "" {
		t.Fatalf("Result.Order: (-want +have):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 0, 1}, res.Barriers); diff != "" {
		t.Fatalf("Result.Barriers: (-want +have):\n%s", diff)
	}
	for i := range g.Len() {
		if !g.Executed(NodeRef(i)) {
			t.Fatalf("Graph.Executed(%d):\nhave false\nwant true", i)
		}
	}

	// The state persists across frames.
	g.Reset()
	r := g.AddGraphics("r", 4, 4)
	r.BindUniform(x)
	res, _ = e.run(t, g, 1)
	if n := res.Total(); n != 1 {
		t.Fatalf("Result.Total: read after write in previous frame:\nhave %d\nwant 1", n)
	}
	g.Reset()
	r = g.AddGraphics("r", 4, 4)
	r.BindUniform(x)
	res, _ = e.run(t, g, 2)
	if n := res.Total(); n != 0 {
		t.Fatalf("Result.Total: repeated read:\nhave %d\nwant 0", n)
	}
}

func TestUnifiedQueue(t *testing.T) {
	e := newEnv(t)
	x, rt := e.buffer(t, "x"), e.image(t, "rt")
	stg, _ := e.gpu.NewBuffer(256, true, driver.UCopySrc)
	defer stg.Destroy()
	copy(stg.Bytes(), "vertex data")

	g := New(e.reg, Options{})
	up := g.AddTransfer("upload")
	x1, _ := up.Upload(stg, 0, x, 0, 16)
	draw := g.AddGraphics("draw", 4, 4)
	rt1, _ := draw.Color(rt, driver.LClear, [4]float32{1, 0, 0, 1})
	draw.BindVertexBuf(0, x1, 0)
	draw.Draw(3, 1, 0, 0)
	pres, _ := g.AddPresent("present", rt1)

	res, cmds := e.run(t, g, 0)
	want := []soft.Op{
		soft.OpCopyBuffer,
		soft.OpTransition,
		soft.OpBufBarrier,
		soft.OpBeginPass,
		soft.OpVertexBuf,
		soft.OpDraw,
		soft.OpEndPass,
		soft.OpTransition,
	}
	if diff := cmp.Diff(want, ops(cmds)); diff != "" {
		t.Fatalf("commands: (-want +have):\n%s", diff)
	}
	bb := cmds[2].BufBarriers
	if len(bb) != 1 {
		t.Fatalf("BufBarrier: count:\nhave %d\nwant 1", len(bb))
	}
	wantB := driver.Barrier{
		SyncBefore:   driver.SCopy,
		SyncAfter:    driver.SVertexInput,
		AccessBefore: driver.ACopyWrite,
		AccessAfter:  driver.AVertexBufRead,
	}
	if diff := cmp.Diff(wantB, bb[0].Barrier); diff != "" {
		t.Fatalf("BufBarrier: (-want +have):\n%s", diff)
	}
	if tr := cmds[1].Transitions[0]; tr.LayoutBefore != driver.LUndefined || tr.LayoutAfter != driver.LColorTarget {
		t.Fatalf("Transition: layouts:\nhave %d, %d\nwant undefined, color target", tr.LayoutBefore, tr.LayoutAfter)
	}
	if tr := cmds[7].Transitions[0]; tr.LayoutBefore != driver.LColorTarget || tr.LayoutAfter != driver.LPresent {
		t.Fatalf("Transition: layouts:\nhave %d, %d\nwant color target, present", tr.LayoutBefore, tr.LayoutAfter)
	}
	if diff := cmp.Diff([]PresentReq{{pres.Ref(), rt}}, res.Presents); diff != "" {
		t.Fatalf("Result.Presents: (-want +have):\n%s", diff)
	}
	if px := soft.Pixels(e.reg.Image(rt, 0), 0); px[0] != 255 || px[1] != 0 {
		t.Fatalf("soft.Pixels: cleared color:\nhave %v\nwant [255 0 0 255 ...]", px[:4])
	}
	if b := soft.Contents(e.reg.Buffer(x, 0)); string(b[:11]) != "vertex data" {
		t.Fatalf("soft.Contents:\nhave %q\nwant %q", b[:11], "vertex data")
	}
}

func TestBatch(t *testing.T) {
	e := newEnv(t)
	a, b, c, d := e.buffer(t, "a"), e.buffer(t, "b"), e.buffer(t, "c"), e.buffer(t, "d")

	build := func(g *Graph) {
		f1 := g.AddTransfer("fill a")
		a1, _ := f1.Fill(a, 0, 1, 64)
		f2 := g.AddTransfer("fill b")
		b1, _ := f2.Fill(b, 0, 2, 64)
		c1 := g.AddTransfer("copy a")
		c1.CopyBuffer(a1, 0, c, 0, 64)
		c2 := g.AddTransfer("copy b")
		c2.CopyBuffer(b1, 0, d, 0, 64)
	}
	for _, x := range [...]struct {
		batch   bool
		batches int
		order   []NodeRef
	}{
		{false, 2, []NodeRef{0, 1, 2, 3}},
		{true, 1, []NodeRef{0, 1, 2, 3}},
	} {
		e.reg.States().Delete(a.Index)
		e.reg.States().Delete(b.Index)
		e.reg.States().Delete(c.Index)
		e.reg.States().Delete(d.Index)
		g := New(e.reg, Options{Batch: x.batch})
		build(g)
		res, cmds := e.run(t, g, 0)
		if res.Batches != x.batches {
			t.Fatalf("Result.Batches (batch: %t):\nhave %d\nwant %d", x.batch, res.Batches, x.batches)
		}
		if diff := cmp.Diff(x.order, res.Order); diff != "" {
			t.Fatalf("Result.Order (batch: %t): (-want +have):\n%s", x.batch, diff)
		}
		if diff := cmp.Diff([]int{0, 0, 1, 1}, res.Barriers); diff != "" {
			t.Fatalf("Result.Barriers (batch: %t): (-want +have):\n%s", x.batch, diff)
		}
		if x.batch {
			want := []soft.Op{soft.OpFill, soft.OpFill, soft.OpBufBarrier, soft.OpCopyBuffer, soft.OpCopyBuffer}
			if diff := cmp.Diff(want, ops(cmds)); diff != "" {
				t.Fatalf("commands: (-want +have):\n%s", diff)
			}
			if n := cmds[2].Count(); n != 2 {
				t.Fatalf("BufBarrier: count:\nhave %d\nwant 2", n)
			}
		}
	}
}

func TestBatchConflict(t *testing.T) {
	e := newEnv(t)
	img := e.image(t, "img")
	rt := e.image(t, "rt")
	dst := e.buffer(t, "dst")

	// Two nodes at the same level read img in different
	// layouts, so their barriers cannot be recorded
	// together.
	g := New(e.reg, Options{Batch: true})
	p := g.AddGraphics("sample", 4, 4)
	p.Color(rt, driver.LClear, [4]float32{})
	p.BindSampled(img)
	cp := g.AddTransfer("read back")
	cp.CopyImgToBuf(img, dst, driver.BufImgCopy{Size: driver.Dim3D{Width: 4, Height: 4, Depth: 1}, Layers: 1})

	res, cmds := e.run(t, g, 0)
	if diff := cmp.Diff([]int{0, 0}, res.Levels); diff != "" {
		t.Fatalf("Result.Levels: (-want +have):\n%s", diff)
	}
	want := []soft.Op{
		soft.OpTransition,
		soft.OpBeginPass,
		soft.OpEndPass,
		soft.OpTransition,
		soft.OpCopyImgToBuf,
	}
	if diff := cmp.Diff(want, ops(cmds)); diff != "" {
		t.Fatalf("commands: (-want +have):\n%s", diff)
	}
	if res.Batches != 2 {
		t.Fatalf("Result.Batches:\nhave %d\nwant 2", res.Batches)
	}
}

func TestBlitText(t *testing.T) {
	e := newEnv(t)
	src, dst := e.image(t, "src"), e.image(t, "dst")
	stg, _ := e.gpu.NewBuffer(256, true, driver.UCopySrc)
	defer stg.Destroy()
	for i := range 16 {
		copy(stg.Bytes()[i*4:], []byte{0, 255, 0, 255})
	}

	g := New(e.reg, Options{})
	up := g.AddTransfer("upload")
	src1, _ := up.UploadImage(src, driver.BufImgCopy{
		Buf:    stg,
		Size:   driver.Dim3D{Width: 4, Height: 4, Depth: 1},
		Layers: 1,
	})
	bl := g.AddBlit("blit")
	dst1, err := bl.Blit(src1, dst, driver.ImageBlit{
		FromRect: [2]driver.Off3D{{}, {X: 4, Y: 4, Z: 1}},
		ToRect:   [2]driver.Off3D{{}, {X: 4, Y: 4, Z: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	tx, _, err := g.AddText("text", dst1)
	if err != nil {
		t.Fatal(err)
	}
	tx.Run(driver.BufImgCopy{Buf: stg, Size: driver.Dim3D{Width: 1, Height: 1, Depth: 1}, Layers: 1})

	res, cmds := e.run(t, g, 0)
	if diff := cmp.Diff([]int{0, 1, 2}, res.Levels); diff != "" {
		t.Fatalf("Result.Levels: (-want +have):\n%s", diff)
	}
	want := []soft.Op{
		soft.OpTransition,
		soft.OpCopyBufToImg,
		soft.OpTransition,
		soft.OpBlit,
		soft.OpTransition,
		soft.OpCopyBufToImg,
	}
	if diff := cmp.Diff(want, ops(cmds)); diff != "" {
		t.Fatalf("commands: (-want +have):\n%s", diff)
	}
	if px := soft.Pixels(e.reg.Image(dst, 0), 0); px[5] != 255 {
		t.Fatalf("soft.Pixels: blitted:\nhave %v\nwant green", px[4:8])
	}
}

func TestNeed(t *testing.T) {
	wr := resource.Track{
		Last:    CopyDst,
		WSync:   driver.SCopy,
		WAccess: driver.ACopyWrite,
	}
	rd := resource.Track{
		Last:    Uniform,
		WSync:   driver.SCopy,
		WAccess: driver.ACopyWrite,
	}
	for _, x := range [...]struct {
		name  string
		tr    resource.Track
		st    resource.State
		image bool
		need  bool
		b     driver.Barrier
	}{
		{"undefined buffer", resource.Track{Last: resource.Undefined}, CopyDst, false, false, driver.Barrier{}},
		{"undefined image", resource.Track{Last: resource.Undefined}, CopyDst, true, true, driver.Barrier{
			SyncAfter:   driver.SCopy,
			AccessAfter: driver.ACopyWrite,
		}},
		{"raw", wr, Uniform, false, true, driver.Barrier{
			SyncBefore:   driver.SCopy,
			SyncAfter:    Uniform.Sync,
			AccessBefore: driver.ACopyWrite,
			AccessAfter:  driver.AConstRead,
		}},
		{"rar", rd, Uniform, false, false, driver.Barrier{}},
		{"rar wider", rd, Vertex, false, true, driver.Barrier{
			SyncBefore:   driver.SCopy,
			SyncAfter:    driver.SVertexInput,
			AccessBefore: driver.ACopyWrite,
			AccessAfter:  driver.AVertexBufRead,
		}},
		{"war", rd, CopyDst, false, true, driver.Barrier{
			SyncBefore:   Uniform.Sync,
			SyncAfter:    driver.SCopy,
			AccessBefore: driver.AConstRead,
			AccessAfter:  driver.ACopyWrite,
		}},
		{"layout change", resource.Track{Last: Sampled}, CopySrc, true, true, driver.Barrier{
			SyncBefore:   driver.SFragmentShading,
			SyncAfter:    driver.SCopy,
			AccessBefore: driver.AShaderRead,
			AccessAfter:  driver.ACopyRead,
		}},
		{"buffer ignores layout", resource.Track{Last: Vertex}, resource.State{Sync: driver.SVertexInput, Access: driver.AVertexBufRead, Layout: driver.LShaderRead}, false, false, driver.Barrier{}},
	} {
		b, need, _ := Need(x.tr, x.st, x.image)
		if need != x.need {
			t.Fatalf("Need (%s):\nhave %t\nwant %t", x.name, need, x.need)
		}
		if diff := cmp.Diff(x.b, b); diff != "" {
			t.Fatalf("Need (%s): (-want +have):\n%s", x.name, diff)
		}
	}

	// Widened reads accumulate.
	_, _, next := Need(rd, Vertex, false)
	if next.Last.Sync != Uniform.Sync|driver.SVertexInput || next.Last.Access != driver.AConstRead|driver.AVertexBufRead {
		t.Fatalf("Need: accumulated read scope:\nhave %+v", next.Last)
	}
	if _, need, _ := Need(next, Uniform, false); need {
		t.Fatal("Need: read within accumulated scope:\nhave true\nwant false")
	}
}

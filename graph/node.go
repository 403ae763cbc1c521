// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package graph

import (
	"fmt"

	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/resource"
)

// payload is the kind-specific part of a node.
type payload interface {
	record(x *execCtx)
}

// Node is the common part of every node kind.
type Node struct {
	g   *Graph
	ref NodeRef
}

// Ref returns the node's reference.
func (n Node) Ref() NodeRef { return n.ref }

// Read declares that the node reads version h.
func (n Node) Read(h resource.Handle, st resource.State) error { return n.g.Read(n.ref, h, st) }

// Write declares that the node writes on version h.
func (n Node) Write(h resource.Handle, st resource.State) (resource.Handle, error) {
	return n.g.Write(n.ref, h, st)
}

// kind checks that h refers to a resource of kind k.
func (n Node) kind(h resource.Handle, k resource.Kind) error {
	if n.g.err != nil {
		return n.g.err
	}
	if n.g.reg.Kind(h) != k {
		return n.g.fail(fmt.Errorf("%w: node %q: %v is not a %v", ErrKind, n.g.nodes[n.ref].name, h, k))
	}
	return nil
}

// GraphicsPass is a node that renders into a number of
// targets.
type GraphicsPass struct {
	Node
	width, height int
	color         []target
	ds            *target
	ops           []gop
}

type target struct {
	h     resource.Handle
	load  driver.LoadOp
	clear driver.ClearValue
}

type gopKind int

const (
	gPipeline gopKind = iota
	gViewport
	gScissor
	gVertexBuf
	gIndexBuf
	gDescSet
	gDraw
	gDrawIndexed
)

// gop is an encoded graphics command.
type gop struct {
	kind  gopKind
	pl    driver.Pipeline
	vp    []driver.Viewport
	sciss []driver.Scissor
	h     resource.Handle
	off   int64
	ifmt  driver.IndexFmt
	set   driver.DescSet
	n     [5]int
}

// AddGraphics adds a graphics node that renders into an
// area of width by height pixels.
func (g *Graph) AddGraphics(name string, width, height int) *GraphicsPass {
	p := &GraphicsPass{width: width, height: height}
	p.Node = Node{g, g.add(KGraphics, name, p)}
	return p
}

// Color adds a color target.
// Targets that are loaded are also read.
func (p *GraphicsPass) Color(h resource.Handle, load driver.LoadOp, clear [4]float32) (resource.Handle, error) {
	if err := p.kind(h, resource.Image); err != nil {
		return h, err
	}
	st := Color
	if load == driver.LLoad {
		st.Access |= driver.AColorRead
	}
	next, err := p.Write(h, st)
	if err != nil {
		return h, err
	}
	p.color = append(p.color, target{h: h, load: load, clear: driver.ClearValue{Color: clear}})
	return next, nil
}

// Depth sets the depth/stencil target.
func (p *GraphicsPass) Depth(h resource.Handle, load driver.LoadOp, depth float32) (resource.Handle, error) {
	if err := p.kind(h, resource.Image); err != nil {
		return h, err
	}
	next, err := p.Write(h, Depth)
	if err != nil {
		return h, err
	}
	p.ds = &target{h: h, load: load, clear: driver.ClearValue{Depth: depth}}
	return next, nil
}

// BindPipeline sets the pipeline of subsequent draws.
func (p *GraphicsPass) BindPipeline(pl driver.Pipeline) {
	p.ops = append(p.ops, gop{kind: gPipeline, pl: pl})
}

// SetViewport sets the viewports of subsequent draws.
func (p *GraphicsPass) SetViewport(vp ...driver.Viewport) {
	p.ops = append(p.ops, gop{kind: gViewport, vp: vp})
}

// SetScissor sets the scissors of subsequent draws.
func (p *GraphicsPass) SetScissor(sciss ...driver.Scissor) {
	p.ops = append(p.ops, gop{kind: gScissor, sciss: sciss})
}

// BindVertexBuf binds a vertex buffer at index nr.
func (p *GraphicsPass) BindVertexBuf(nr int, h resource.Handle, off int64) error {
	if err := p.kind(h, resource.Buffer); err != nil {
		return err
	}
	if err := p.Read(h, Vertex); err != nil {
		return err
	}
	p.ops = append(p.ops, gop{kind: gVertexBuf, h: h, off: off, n: [5]int{nr}})
	return nil
}

// BindIndexBuf binds an index buffer.
func (p *GraphicsPass) BindIndexBuf(format driver.IndexFmt, h resource.Handle, off int64) error {
	if err := p.kind(h, resource.Buffer); err != nil {
		return err
	}
	if err := p.Read(h, Index); err != nil {
		return err
	}
	p.ops = append(p.ops, gop{kind: gIndexBuf, h: h, off: off, ifmt: format})
	return nil
}

// BindDescSet binds a descriptor set at index start.
// The resources it refers to must be declared with
// BindUniform, BindSampled, Read or Write.
func (p *GraphicsPass) BindDescSet(set driver.DescSet, start int) {
	p.ops = append(p.ops, gop{kind: gDescSet, set: set, n: [5]int{start}})
}

// BindUniform declares that the node's shaders read a
// constant buffer.
func (p *GraphicsPass) BindUniform(h resource.Handle) error {
	if err := p.kind(h, resource.Buffer); err != nil {
		return err
	}
	return p.Read(h, Uniform)
}

// BindSampled declares that the node's shaders sample an
// image.
func (p *GraphicsPass) BindSampled(h resource.Handle) error {
	if err := p.kind(h, resource.Image); err != nil {
		return err
	}
	return p.Read(h, Sampled)
}

// Draw draws primitives.
func (p *GraphicsPass) Draw(vertCount, instCount, baseVert, baseInst int) {
	p.ops = append(p.ops, gop{kind: gDraw, n: [5]int{vertCount, instCount, baseVert, baseInst}})
}

// DrawIndexed draws indexed primitives.
func (p *GraphicsPass) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	p.ops = append(p.ops, gop{kind: gDrawIndexed, n: [5]int{idxCount, instCount, baseIdx, vertOff, baseInst}})
}

func (p *GraphicsPass) record(x *execCtx) {
	pass := driver.Pass{Width: p.width, Height: p.height}
	for _, t := range p.color {
		pass.Color = append(pass.Color, driver.Target{Img: x.image(t.h), Load: t.load, Clear: t.clear})
	}
	if p.ds != nil {
		pass.DS = &driver.Target{Img: x.image(p.ds.h), Load: p.ds.load, Clear: p.ds.clear}
	}
	cb := x.cb
	cb.BeginPass(&pass)
	for i := range p.ops {
		op := &p.ops[i]
		switch op.kind {
		case gPipeline:
			cb.SetPipeline(op.pl)
		case gViewport:
			cb.SetViewport(op.vp)
		case gScissor:
			cb.SetScissor(op.sciss)
		case gVertexBuf:
			cb.SetVertexBuf(op.n[0], []driver.Buffer{x.buffer(op.h)}, []int64{op.off})
		case gIndexBuf:
			cb.SetIndexBuf(op.ifmt, x.buffer(op.h), op.off)
		case gDescSet:
			cb.SetDescSet(op.set, op.n[0])
		case gDraw:
			cb.Draw(op.n[0], op.n[1], op.n[2], op.n[3])
		case gDrawIndexed:
			cb.DrawIndexed(op.n[0], op.n[1], op.n[2], op.n[3], op.n[4])
		}
	}
	cb.EndPass()
}

// TransferPass is a node that copies and fills resources.
type TransferPass struct {
	Node
	ops []top
}

type topKind int

const (
	tCopyBuffer topKind = iota
	tCopyBufToImg
	tCopyImgToBuf
	tFill
)

// top is an encoded transfer command.
// ext, if not nil, is a source that the graph does not
// track.
type top struct {
	kind   topKind
	src    resource.Handle
	ext    driver.Buffer
	dst    resource.Handle
	copy   driver.BufferCopy
	bufImg driver.BufImgCopy
	val    byte
}

// AddTransfer adds a transfer node.
func (g *Graph) AddTransfer(name string) *TransferPass {
	p := &TransferPass{}
	p.Node = Node{g, g.add(KTransfer, name, p)}
	return p
}

// CopyBuffer copies size bytes between buffers.
// It returns the version of dst produced.
func (p *TransferPass) CopyBuffer(src resource.Handle, srcOff int64, dst resource.Handle, dstOff, size int64) (resource.Handle, error) {
	if err := p.kind(src, resource.Buffer); err != nil {
		return dst, err
	}
	if err := p.kind(dst, resource.Buffer); err != nil {
		return dst, err
	}
	if err := p.Read(src, CopySrc); err != nil {
		return dst, err
	}
	next, err := p.Write(dst, CopyDst)
	if err != nil {
		return dst, err
	}
	p.ops = append(p.ops, top{
		kind: tCopyBuffer,
		src:  src,
		dst:  dst,
		copy: driver.BufferCopy{FromOff: srcOff, ToOff: dstOff, Size: size},
	})
	return next, nil
}

// Upload copies size bytes from a buffer that the graph
// does not track, such as a staging buffer, into dst.
func (p *TransferPass) Upload(stg driver.Buffer, stgOff int64, dst resource.Handle, dstOff, size int64) (resource.Handle, error) {
	if err := p.kind(dst, resource.Buffer); err != nil {
		return dst, err
	}
	next, err := p.Write(dst, CopyDst)
	if err != nil {
		return dst, err
	}
	p.ops = append(p.ops, top{
		kind: tCopyBuffer,
		ext:  stg,
		dst:  dst,
		copy: driver.BufferCopy{From: stg, FromOff: stgOff, ToOff: dstOff, Size: size},
	})
	return next, nil
}

// CopyBufToImg copies buffer data into an image.
// param.Buf and param.Img are ignored.
func (p *TransferPass) CopyBufToImg(src, dst resource.Handle, param driver.BufImgCopy) (resource.Handle, error) {
	if err := p.kind(src, resource.Buffer); err != nil {
		return dst, err
	}
	if err := p.kind(dst, resource.Image); err != nil {
		return dst, err
	}
	if err := p.Read(src, CopySrc); err != nil {
		return dst, err
	}
	next, err := p.Write(dst, CopyDst)
	if err != nil {
		return dst, err
	}
	p.ops = append(p.ops, top{kind: tCopyBufToImg, src: src, dst: dst, bufImg: param})
	return next, nil
}

// UploadImage copies data from a buffer that the graph
// does not track into an image.
// param.Img is ignored.
func (p *TransferPass) UploadImage(dst resource.Handle, param driver.BufImgCopy) (resource.Handle, error) {
	if err := p.kind(dst, resource.Image); err != nil {
		return dst, err
	}
	next, err := p.Write(dst, CopyDst)
	if err != nil {
		return dst, err
	}
	p.ops = append(p.ops, top{kind: tCopyBufToImg, ext: param.Buf, dst: dst, bufImg: param})
	return next, nil
}

// CopyImgToBuf copies image data into a buffer.
// param.Buf and param.Img are ignored.
func (p *TransferPass) CopyImgToBuf(src, dst resource.Handle, param driver.BufImgCopy) (resource.Handle, error) {
	if err := p.kind(src, resource.Image); err != nil {
		return dst, err
	}
	if err := p.kind(dst, resource.Buffer); err != nil {
		return dst, err
	}
	if err := p.Read(src, CopySrc); err != nil {
		return dst, err
	}
	next, err := p.Write(dst, CopyDst)
	if err != nil {
		return dst, err
	}
	p.ops = append(p.ops, top{kind: tCopyImgToBuf, src: src, dst: dst, bufImg: param})
	return next, nil
}

// Fill fills a buffer range with copies of value.
func (p *TransferPass) Fill(dst resource.Handle, off int64, value byte, size int64) (resource.Handle, error) {
	if err := p.kind(dst, resource.Buffer); err != nil {
		return dst, err
	}
	next, err := p.Write(dst, CopyDst)
	if err != nil {
		return dst, err
	}
	p.ops = append(p.ops, top{kind: tFill, dst: dst, copy: driver.BufferCopy{ToOff: off, Size: size}, val: value})
	return next, nil
}

func (p *TransferPass) record(x *execCtx) {
	for i := range p.ops {
		op := p.ops[i]
		switch op.kind {
		case tCopyBuffer:
			if op.ext == nil {
				op.copy.From = x.buffer(op.src)
			}
			op.copy.To = x.buffer(op.dst)
			x.cb.CopyBuffer(&op.copy)
		case tCopyBufToImg:
			if op.ext == nil {
				op.bufImg.Buf = x.buffer(op.src)
			}
			op.bufImg.Img = x.image(op.dst)
			x.cb.CopyBufToImg(&op.bufImg)
		case tCopyImgToBuf:
			op.bufImg.Img = x.image(op.src)
			op.bufImg.Buf = x.buffer(op.dst)
			x.cb.CopyImgToBuf(&op.bufImg)
		case tFill:
			x.cb.Fill(x.buffer(op.dst), op.copy.ToOff, op.val, op.copy.Size)
		}
	}
}

// BlitPass is a node that copies image regions, scaling
// as needed.
type BlitPass struct {
	Node
	ops []bop
}

type bop struct {
	src, dst resource.Handle
	blit     driver.ImageBlit
}

// AddBlit adds a blit node.
func (g *Graph) AddBlit(name string) *BlitPass {
	p := &BlitPass{}
	p.Node = Node{g, g.add(KBlit, name, p)}
	return p
}

// Blit copies a region of src into a region of dst.
// param.From and param.To are ignored.
// Blitting between regions of the same image is not
// supported.
func (p *BlitPass) Blit(src, dst resource.Handle, param driver.ImageBlit) (resource.Handle, error) {
	if err := p.kind(src, resource.Image); err != nil {
		return dst, err
	}
	if err := p.kind(dst, resource.Image); err != nil {
		return dst, err
	}
	if err := p.Read(src, CopySrc); err != nil {
		return dst, err
	}
	next, err := p.Write(dst, CopyDst)
	if err != nil {
		return dst, err
	}
	p.ops = append(p.ops, bop{src: src, dst: dst, blit: param})
	return next, nil
}

func (p *BlitPass) record(x *execCtx) {
	for i := range p.ops {
		b := p.ops[i].blit
		b.From = x.image(p.ops[i].src)
		b.To = x.image(p.ops[i].dst)
		x.cb.Blit(&b)
	}
}

// PresentPass is a node that hands an image over to the
// presentation engine.
// It records no commands; the caller presents the images
// listed in Result.Presents after committing.
type PresentPass struct {
	Node
	img resource.Handle
}

// AddPresent adds a present node for version h of an
// image.
func (g *Graph) AddPresent(name string, h resource.Handle) (*PresentPass, error) {
	p := &PresentPass{img: h}
	p.Node = Node{g, g.add(KPresent, name, p)}
	if err := p.kind(h, resource.Image); err != nil {
		return p, err
	}
	return p, p.Read(h, Present)
}

func (p *PresentPass) record(x *execCtx) {
	x.res.Presents = append(x.res.Presents, PresentReq{Node: p.ref, Image: p.img.Base()})
}

// TextPass is a node that copies rasterized text into an
// image.
type TextPass struct {
	Node
	dst  resource.Handle
	runs []driver.BufImgCopy
}

// AddText adds a text node that writes on version h of an
// image.
// It returns the node and the version produced.
func (g *Graph) AddText(name string, h resource.Handle) (*TextPass, resource.Handle, error) {
	p := &TextPass{dst: h}
	p.Node = Node{g, g.add(KText, name, p)}
	if err := p.kind(h, resource.Image); err != nil {
		return p, h, err
	}
	next, err := p.Write(h, CopyDst)
	return p, next, err
}

// Run adds a rasterized run of text.
// run.Buf holds the pixels, in the format of the target
// image; run.Img is ignored.
func (p *TextPass) Run(run driver.BufImgCopy) {
	p.runs = append(p.runs, run)
}

func (p *TextPass) record(x *execCtx) {
	img := x.image(p.dst)
	for i := range p.runs {
		r := p.runs[i]
		r.Img = img
		x.cb.CopyBufToImg(&r)
	}
}

// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"errors"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/graph"
	"github.com/gviegas/rgraph/resource"
)

// Frame is a frame being built.
// It is valid from BeginFrame until EndFrame.
type Frame struct {
	// Number is the sequence number of the frame.
	Number int64

	// Graph is the graph of the frame.
	// It is empty when the frame begins.
	Graph *graph.Graph

	r   *Renderer
	s   *slot
	wk  *driver.WorkItem
	off int64
	bb  int
	res *graph.Result
}

var errStagingOverflow = errors.New("staging buffer overflow")

// Stage copies data into the frame's staging buffer and
// returns its offset.
// Offsets are aligned to 16 bytes. Running out of space is
// fatal.
func (f *Frame) Stage(data []byte) int64 {
	off := align(f.off)
	if off+int64(len(data)) > f.r.cfg.StagingSize {
		fatal(errStagingOverflow)
	}
	copy(f.s.stg.Bytes()[off:], data)
	f.off = off + int64(len(data))
	return off
}

// Staged returns the number of bytes of the staging
// buffer in use.
func (f *Frame) Staged() int64 { return f.off }

// Staging returns the frame's staging buffer.
// It is not tracked by the graph.
func (f *Frame) Staging() driver.Buffer { return f.s.stg }

// Upload adds a transfer node that copies data into
// version dst of a resource, and returns the version
// produced.
// For images, data must contain the first layer of the
// first level.
func (f *Frame) Upload(dst resource.Handle, data []byte) (resource.Handle, error) {
	reg := f.r.reg
	if !reg.Valid(dst) {
		return dst, newErr("invalid upload destination")
	}
	switch reg.Kind(dst) {
	case resource.Buffer:
		if int64(len(data)) > reg.Size(dst) {
			return dst, errUploadSize
		}
		off := f.Stage(data)
		t := f.Graph.AddTransfer("upload " + reg.Name(dst))
		return t.Upload(f.s.stg, off, dst, 0, int64(len(data)))
	default:
		m := reg.Image(dst, f.Number)
		sz := m.Size()
		if len(data) != sz.Width*sz.Height*max(sz.Depth, 1)*m.Format().Size() {
			return dst, errUploadSize
		}
		off := f.Stage(data)
		t := f.Graph.AddTransfer("upload " + reg.Name(dst))
		return t.UploadImage(dst, driver.BufImgCopy{
			Buf:    f.s.stg,
			BufOff: off,
			Size:   driver.Dim3D{Width: sz.Width, Height: sz.Height, Depth: max(sz.Depth, 1)},
			Layers: 1,
		})
	}
}

var errTextFmt = newErr("text: unsupported pixel format")

// Text adds a text node named name that draws s into
// version dst of an image, with the top-left corner at (x, y).
// Glyphs are white on an opaque black box. Text that falls
// outside the image is clipped.
// It returns the version produced.
func (f *Frame) Text(name string, dst resource.Handle, x, y int, s string) (resource.Handle, error) {
	reg := f.r.reg
	if !reg.Valid(dst) || reg.Kind(dst) != resource.Image {
		return dst, newErr("text: destination is not an image")
	}
	m := reg.Image(dst, f.Number)
	pf := m.Format()
	var bgra bool
	switch pf {
	case driver.RGBA8un, driver.RGBA8sRGB:
	case driver.BGRA8un, driver.BGRA8sRGB:
		bgra = true
	default:
		return dst, errTextFmt
	}
	face := basicfont.Face7x13
	w := font.MeasureString(face, s).Ceil()
	h := face.Metrics().Height.Ceil()
	sz := m.Size()
	cw, ch := min(w, sz.Width-x), min(h, sz.Height-y)
	if w == 0 || x < 0 || y < 0 || cw <= 0 || ch <= 0 {
		return dst, nil
	}

	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	d := font.Drawer{
		Dst:  rgba,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
	if bgra {
		px := rgba.Pix
		for i := 0; i < len(px); i += 4 {
			px[i], px[i+2] = px[i+2], px[i]
		}
	}

	p, next, err := f.Graph.AddText(name, dst)
	if err != nil {
		return next, err
	}
	p.Run(driver.BufImgCopy{
		Buf:    f.s.stg,
		BufOff: f.Stage(rgba.Pix),
		Stride: [2]int{w, h},
		ImgOff: driver.Off3D{X: x, Y: y},
		Size:   driver.Dim3D{Width: cw, Height: ch, Depth: 1},
		Layers: 1,
	})
	return next, nil
}

// AllocDesc allocates a descriptor set that is valid
// until the frame slot is reused.
func (f *Frame) AllocDesc(layout []driver.Descriptor) (driver.DescSet, error) {
	return f.s.desc.Alloc(layout)
}

// Backbuffer returns the handle of the attached
// swapchain's images and the index of the image that the
// frame targets.
// It returns false if no swapchain is attached.
func (f *Frame) Backbuffer() (resource.Handle, int, bool) {
	if f.bb < 0 {
		return resource.Handle{}, -1, false
	}
	return f.r.bb, f.bb, true
}

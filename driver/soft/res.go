// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"errors"
	"sync"

	"github.com/gviegas/rgraph/driver"
)

// buffer implements driver.Buffer.
type buffer struct {
	visible bool
	data    []byte
	usage   driver.Usage
}

// NewBuffer creates a new buffer.
func (d *Driver) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	switch {
	case size <= 0:
		return nil, errors.New("soft: invalid buffer size")
	case size > d.cfg.MaxBuffer:
		return nil, driver.ErrNoDeviceMemory
	}
	// Round up to 256 bytes, as hardware drivers do.
	n := (size + 255) &^ 255
	return &buffer{visible, make([]byte, n), usg}, nil
}

// Visible returns whether the buffer is host visible.
func (b *buffer) Visible() bool { return b.visible }

// Bytes returns the buffer's contents if it is host
// visible, or nil otherwise.
func (b *buffer) Bytes() []byte {
	if !b.visible {
		return nil
	}
	return b.data
}

// Cap returns the capacity of the buffer.
func (b *buffer) Cap() int64 { return int64(len(b.data)) }

// Destroy destroys the buffer.
func (b *buffer) Destroy() { *b = buffer{} }

// Contents returns a copy of the contents of buf, which
// must have been created by a soft driver, regardless of
// host visibility.
// It is meant for tests.
func Contents(buf driver.Buffer) []byte {
	b := buf.(*buffer)
	return append([]byte(nil), b.data...)
}

// image implements driver.Image.
// Only the first mip level is backed by memory.
type image struct {
	pf     driver.PixelFmt
	size   driver.Dim3D
	layers int
	levels int
	usage  driver.Usage
	data   []byte
}

// NewImage creates a new image.
func (d *Driver) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels int, usg driver.Usage) (driver.Image, error) {
	var reason string
	switch {
	case pf.Size() == 0:
		reason = "invalid pixel format"
	case size.Width < 1, size.Height < 1, size.Depth < 0:
		reason = "invalid size"
	case size.Width > d.cfg.MaxImage, size.Height > d.cfg.MaxImage:
		reason = "size too big"
	case layers < 1:
		reason = "invalid layer count"
	case levels < 1:
		reason = "invalid level count"
	default:
		depth := max(size.Depth, 1)
		n := pf.Size() * size.Width * size.Height * depth * layers
		return &image{pf, size, layers, levels, usg, make([]byte, n)}, nil
	}
	return nil, errors.New("soft: " + reason)
}

// Format returns the image's pixel format.
func (m *image) Format() driver.PixelFmt { return m.pf }

// Size returns the size of the first level.
func (m *image) Size() driver.Dim3D { return m.size }

// Layers returns the number of layers.
func (m *image) Layers() int { return m.layers }

// Levels returns the number of mip levels.
func (m *image) Levels() int { return m.levels }

// Destroy destroys the image.
func (m *image) Destroy() { *m = image{} }

// layerSize returns the size of a layer in bytes.
func (m *image) layerSize() int {
	return m.pf.Size() * m.size.Width * m.size.Height * max(m.size.Depth, 1)
}

// offset returns the byte offset of a pixel.
func (m *image) offset(layer, x, y, z int) int {
	w, h := m.size.Width, m.size.Height
	return layer*m.layerSize() + ((z*h+y)*w+x)*m.pf.Size()
}

// Pixels returns a copy of the first level of a layer of
// img, which must have been created by a soft driver.
// It is meant for tests.
func Pixels(img driver.Image, layer int) []byte {
	m := img.(*image)
	n := m.layerSize()
	return append([]byte(nil), m.data[layer*n:(layer+1)*n]...)
}

// semaphore implements driver.Semaphore.
// It is a binary semaphore: each signal satisfies exactly
// one wait.
type semaphore struct {
	mu   sync.Mutex
	cond sync.Cond
	n    int
}

// NewSemaphore creates a new semaphore.
func (d *Driver) NewSemaphore() (driver.Semaphore, error) {
	s := new(semaphore)
	s.cond.L = &s.mu
	return s, nil
}

func (s *semaphore) signal() {
	s.mu.Lock()
	s.n++
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *semaphore) wait() {
	s.mu.Lock()
	for s.n == 0 {
		s.cond.Wait()
	}
	s.n--
	s.mu.Unlock()
}

// Destroy destroys the semaphore.
func (s *semaphore) Destroy() {}

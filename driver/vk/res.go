// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vulkan "github.com/goki/vulkan"

	"github.com/gviegas/rgraph/driver"
)

// Image wraps a VkImage owned by the caller.
// It implements driver.Image.
type Image struct {
	H      vulkan.Image
	pf     driver.PixelFmt
	size   driver.Dim3D
	layers int
	levels int
}

// NewImage wraps h.
func NewImage(h vulkan.Image, pf driver.PixelFmt, size driver.Dim3D, layers, levels int) *Image {
	return &Image{h, pf, size, layers, levels}
}

// Format returns the image's pixel format.
func (m *Image) Format() driver.PixelFmt { return m.pf }

// Size returns the size of the first level.
func (m *Image) Size() driver.Dim3D { return m.size }

// Layers returns the number of layers.
func (m *Image) Layers() int { return m.layers }

// Levels returns the number of mip levels.
func (m *Image) Levels() int { return m.levels }

// Destroy does nothing; the handle is owned by the
// caller.
func (m *Image) Destroy() {}

// Buffer wraps a VkBuffer owned by the caller.
// It implements driver.Buffer.
type Buffer struct {
	H    vulkan.Buffer
	size int64
	data []byte
}

// NewBuffer wraps h. data is the persistently mapped
// memory of the buffer, or nil.
func NewBuffer(h vulkan.Buffer, size int64, data []byte) *Buffer {
	return &Buffer{h, size, data}
}

// Visible returns whether the buffer is mapped.
func (b *Buffer) Visible() bool { return b.data != nil }

// Bytes returns the mapped memory.
func (b *Buffer) Bytes() []byte { return b.data }

// Cap returns the size of the buffer.
func (b *Buffer) Cap() int64 { return b.size }

// Destroy does nothing; the handle is owned by the
// caller.
func (b *Buffer) Destroy() {}

// Semaphore wraps a VkSemaphore owned by the caller.
// It implements driver.Semaphore.
type Semaphore struct {
	H vulkan.Semaphore
}

// Destroy does nothing; the handle is owned by the
// caller.
func (s *Semaphore) Destroy() {}

// imageHandle returns the handle of img, or the null
// handle if img was not created by this package.
func imageHandle(img driver.Image) (h vulkan.Image) {
	if m, ok := img.(*Image); ok {
		h = m.H
	}
	return
}

func bufferHandle(buf driver.Buffer) (h vulkan.Buffer) {
	if b, ok := buf.(*Buffer); ok {
		h = b.H
	}
	return
}

func semaphoreHandle(sem driver.Semaphore) (h vulkan.Semaphore) {
	if s, ok := sem.(*Semaphore); ok {
		h = s.H
	}
	return
}

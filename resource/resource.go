// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package resource implements the registry of logical GPU
// resources and the table of their synchronization states.
//
// A logical resource is identified by the Index of a Handle
// and may be backed by several physical copies: one per
// frame (for N-buffered resources) or one per external
// image (for imported swapchain images). The Gen of a
// Handle is the version of the resource's contents within
// a single frame graph.
package resource

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/internal/bitvec"
)

// Kind is the kind of a resource.
type Kind int

// Resource kinds.
const (
	Buffer Kind = iota
	Image
)

func (k Kind) String() string {
	switch k {
	case Buffer:
		return "buffer"
	case Image:
		return "image"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Handle identifies a version of a logical resource.
type Handle struct {
	Index uint32
	Gen   uint32
}

// Next returns the handle of the version that a write on h
// produces.
func (h Handle) Next() Handle { return Handle{h.Index, h.Gen + 1} }

// Base returns the handle of the first version.
func (h Handle) Base() Handle { return Handle{Index: h.Index} }

func (h Handle) String() string { return fmt.Sprintf("%d@%d", h.Index, h.Gen) }

// BufferDesc describes a buffer.
type BufferDesc struct {
	Size    int64
	Visible bool
	Usage   driver.Usage
	// PerFrame backs the buffer by one copy per frame.
	PerFrame bool
}

// ImageDesc describes an image.
type ImageDesc struct {
	Format driver.PixelFmt
	Size   driver.Dim3D
	Layers int
	Levels int
	Usage  driver.Usage
	// PerFrame backs the image by one copy per frame.
	PerFrame bool
}

type slot struct {
	kind     Kind
	name     string
	size     int64
	bufs     []driver.Buffer
	imgs     []driver.Image
	perFrame bool
	imported bool
	sel      int
}

// Registry maps logical resources to their physical
// copies.
// It is safe for concurrent use.
type Registry struct {
	gpu    driver.GPU
	frames int

	mu    sync.RWMutex
	slots []slot
	used  bitvec.V[uint64]

	states StateTable
}

const prefix = "resource: "

// NewRegistry creates a new registry that backs per-frame
// resources with frames copies.
func NewRegistry(gpu driver.GPU, frames int) *Registry {
	if frames < 1 {
		panic(prefix + "invalid frame count")
	}
	return &Registry{gpu: gpu, frames: frames}
}

// Frames returns the number of copies of per-frame
// resources.
func (r *Registry) Frames() int { return r.frames }

// GPU returns the GPU that creates the resources.
func (r *Registry) GPU() driver.GPU { return r.gpu }

// States returns the synchronization state table.
func (r *Registry) States() *StateTable { return &r.states }

// alloc inserts s in a free slot.
// r.mu must be held.
func (r *Registry) alloc(s slot) Handle {
	idx, ok := r.used.Search()
	if !ok {
		idx = r.used.Grow(1)
	}
	r.used.Set(idx)
	if idx >= len(r.slots) {
		r.slots = append(r.slots, make([]slot, idx+1-len(r.slots))...)
	}
	r.slots[idx] = s
	return Handle{Index: uint32(idx)}
}

// CreateBuffer creates a new buffer resource.
func (r *Registry) CreateBuffer(name string, desc BufferDesc) (Handle, error) {
	n := 1
	if desc.PerFrame {
		n = r.frames
	}
	bufs := make([]driver.Buffer, 0, n)
	for range n {
		b, err := r.gpu.NewBuffer(desc.Size, desc.Visible, desc.Usage)
		if err != nil {
			for _, b := range bufs {
				b.Destroy()
			}
			return Handle{}, fmt.Errorf(prefix+"buffer %q: %w", name, err)
		}
		bufs = append(bufs, b)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alloc(slot{kind: Buffer, name: name, size: desc.Size, bufs: bufs, perFrame: desc.PerFrame}), nil
}

// CreateImage creates a new image resource.
func (r *Registry) CreateImage(name string, desc ImageDesc) (Handle, error) {
	n := 1
	if desc.PerFrame {
		n = r.frames
	}
	layers, levels := max(desc.Layers, 1), max(desc.Levels, 1)
	imgs := make([]driver.Image, 0, n)
	for range n {
		m, err := r.gpu.NewImage(desc.Format, desc.Size, layers, levels, desc.Usage)
		if err != nil {
			for _, m := range imgs {
				m.Destroy()
			}
			return Handle{}, fmt.Errorf(prefix+"image %q: %w", name, err)
		}
		imgs = append(imgs, m)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alloc(slot{kind: Image, name: name, imgs: imgs, perFrame: desc.PerFrame}), nil
}

// Import creates an image resource backed by external
// images, such as those of a swapchain.
// The registry does not destroy them.
// The first image is selected.
func (r *Registry) Import(name string, imgs []driver.Image) (Handle, error) {
	if len(imgs) == 0 {
		return Handle{}, errors.New(prefix + "no images to import")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := slot{kind: Image, name: name, imgs: append([]driver.Image(nil), imgs...), imported: true}
	return r.alloc(s), nil
}

// Select selects which of the images of an imported
// resource subsequent lookups refer to.
func (r *Registry) Select(h Handle, i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slot(h)
	if !s.imported {
		panic(prefix + "Select on resource that is not imported")
	}
	if i < 0 || i >= len(s.imgs) {
		panic(prefix + "image index out of range")
	}
	s.sel = i
}

// Destroy destroys a resource.
// Its states are removed from the table.
func (r *Registry) Destroy(h Handle) {
	r.mu.Lock()
	s := *r.slot(h)
	r.slots[h.Index] = slot{}
	r.used.Unset(int(h.Index))
	r.mu.Unlock()
	if !s.imported {
		for _, b := range s.bufs {
			b.Destroy()
		}
		for _, m := range s.imgs {
			m.Destroy()
		}
	}
	r.states.Delete(h.Index)
}

// slot returns the slot of h.
// r.mu must be held.
func (r *Registry) slot(h Handle) *slot {
	i := int(h.Index)
	if i >= len(r.slots) || !r.used.IsSet(i) {
		panic(prefix + "invalid handle")
	}
	return &r.slots[i]
}

// Valid returns whether h refers to a live resource.
func (r *Registry) Valid(h Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := int(h.Index)
	return i < len(r.slots) && r.used.IsSet(i)
}

// Len returns the number of live resources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.used.Count()
}

// Kind returns the kind of a resource.
func (r *Registry) Kind(h Handle) Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slot(h).kind
}

// Name returns the name of a resource.
func (r *Registry) Name(h Handle) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slot(h).name
}

// PerFrame returns whether a resource has one copy per
// frame.
func (r *Registry) PerFrame(h Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slot(h).perFrame
}

// copy returns the copy of s used in the given frame.
func (s *slot) copy(frame int64, frames int) int {
	switch {
	case s.perFrame:
		return int(frame % int64(frames))
	case s.imported:
		return s.sel
	}
	return 0
}

// Size returns the size requested for buffer h, which
// may be less than the capacity of its physical copies.
// It returns 0 for images.
func (r *Registry) Size(h Handle) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slot(h).size
}

// Key returns the key of the physical copy of h used in
// the given frame.
func (r *Registry) Key(h Handle, frame int64) Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Key{h.Index, r.slot(h).copy(frame, r.frames)}
}

// Buffer returns the physical buffer of h used in the
// given frame.
func (r *Registry) Buffer(h Handle, frame int64) driver.Buffer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.slot(h)
	if s.kind != Buffer {
		panic(prefix + "not a buffer")
	}
	return s.bufs[s.copy(frame, r.frames)]
}

// Image returns the physical image of h used in the
// given frame.
func (r *Registry) Image(h Handle, frame int64) driver.Image {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.slot(h)
	if s.kind != Image {
		panic(prefix + "not an image")
	}
	return s.imgs[s.copy(frame, r.frames)]
}

// Close destroys every resource.
func (r *Registry) Close() {
	r.mu.RLock()
	var hs []Handle
	for i := range r.used.Ones() {
		hs = append(hs, Handle{Index: uint32(i)})
	}
	r.mu.RUnlock()
	for _, h := range hs {
		r.Destroy(h)
	}
}

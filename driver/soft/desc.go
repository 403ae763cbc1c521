// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"errors"

	"github.com/gviegas/rgraph/driver"
)

// descPool implements driver.DescPool.
type descPool struct {
	sets  int
	cap   [driver.DSampler + 1]int
	nsets int
	used  [driver.DSampler + 1]int
}

// NewDescPool creates a new descriptor pool.
func (d *Driver) NewDescPool(sets int, ratios []driver.DescRatio) (driver.DescPool, error) {
	if sets < 1 {
		return nil, errors.New("soft: invalid descriptor set count")
	}
	p := &descPool{sets: sets}
	for _, r := range ratios {
		if r.Type < 0 || r.Type > driver.DSampler || r.Ratio < 0 {
			return nil, errors.New("soft: invalid descriptor ratio")
		}
		p.cap[r.Type] += int(float32(sets)*r.Ratio + 0.5)
	}
	return p, nil
}

// Alloc allocates a descriptor set.
func (p *descPool) Alloc(layout []driver.Descriptor) (driver.DescSet, error) {
	if p.nsets == p.sets {
		return nil, driver.ErrPoolExhausted
	}
	var need [driver.DSampler + 1]int
	for _, x := range layout {
		need[x.Type] += max(x.Len, 1)
	}
	for i := range need {
		if p.used[i]+need[i] > p.cap[i] {
			return nil, driver.ErrPoolExhausted
		}
	}
	for i := range need {
		p.used[i] += need[i]
	}
	p.nsets++
	s := &descSet{
		layout: append([]driver.Descriptor(nil), layout...),
		bufs:   make(map[int][]driver.Buffer),
		imgs:   make(map[int][]driver.Image),
	}
	return s, nil
}

// Reset frees all sets.
func (p *descPool) Reset() error {
	p.nsets = 0
	p.used = [driver.DSampler + 1]int{}
	return nil
}

// Destroy destroys the pool.
func (p *descPool) Destroy() { *p = descPool{} }

// descSet implements driver.DescSet.
type descSet struct {
	layout []driver.Descriptor
	bufs   map[int][]driver.Buffer
	imgs   map[int][]driver.Image
}

func (s *descSet) desc(nr, start, n int) *driver.Descriptor {
	for i := range s.layout {
		if s.layout[i].Nr == nr {
			if start < 0 || start+n > max(s.layout[i].Len, 1) {
				panic("soft: descriptor range out of bounds")
			}
			return &s.layout[i]
		}
	}
	panic("soft: no such descriptor")
}

// SetBuffer updates buffer descriptors.
func (s *descSet) SetBuffer(nr, start int, buf []driver.Buffer, off, size []int64) {
	ds := s.desc(nr, start, len(buf))
	switch ds.Type {
	case driver.DBuffer, driver.DConstant:
	default:
		panic("soft: descriptor is not of buffer type")
	}
	b := s.bufs[nr]
	if len(b) < start+len(buf) {
		b = append(b, make([]driver.Buffer, start+len(buf)-len(b))...)
	}
	copy(b[start:], buf)
	s.bufs[nr] = b
}

// SetImage updates image descriptors.
func (s *descSet) SetImage(nr, start int, img []driver.Image) {
	ds := s.desc(nr, start, len(img))
	switch ds.Type {
	case driver.DImage, driver.DTexture:
	default:
		panic("soft: descriptor is not of image type")
	}
	m := s.imgs[nr]
	if len(m) < start+len(img) {
		m = append(m, make([]driver.Image, start+len(img)-len(m))...)
	}
	copy(m[start:], img)
	s.imgs[nr] = m
}

// Bound returns the buffers and images bound to descriptor
// nr of set, which must have been allocated by a soft driver.
// It is meant for tests.
func Bound(set driver.DescSet, nr int) ([]driver.Buffer, []driver.Image) {
	s := set.(*descSet)
	return s.bufs[nr], s.imgs[nr]
}

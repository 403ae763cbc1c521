// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package desc implements descriptor set allocation.
//
// An Allocator owns a list of descriptor pools. When the
// current pool is exhausted, allocation moves on to the
// next pool, creating it if needed, and is retried once.
// New pools are 1.5 times larger than the previous one,
// up to MaxSets descriptor sets.
package desc

import (
	"errors"

	"github.com/gviegas/rgraph"
	"github.com/gviegas/rgraph/driver"
)

// MaxSets is the maximum number of descriptor sets in a
// single pool.
const MaxSets = 4092

// Ratios are the default descriptor ratios.
var Ratios = []driver.DescRatio{
	{Type: driver.DConstant, Ratio: 2},
	{Type: driver.DTexture, Ratio: 4},
	{Type: driver.DSampler, Ratio: 4},
	{Type: driver.DBuffer, Ratio: 1},
	{Type: driver.DImage, Ratio: 1},
}

// Allocator allocates descriptor sets from growable
// pools.
// It is not safe for concurrent use.
type Allocator struct {
	gpu    driver.GPU
	ratios []driver.DescRatio
	sets   int
	pools  []driver.DescPool
	cur    int
}

// New creates a new Allocator whose first pool has room
// for sets descriptor sets.
func New(gpu driver.GPU, sets int, ratios []driver.DescRatio) (*Allocator, error) {
	if sets < 1 {
		return nil, errors.New("desc: invalid set count")
	}
	sets = min(sets, MaxSets)
	p, err := gpu.NewDescPool(sets, ratios)
	if err != nil {
		return nil, err
	}
	return &Allocator{
		gpu:    gpu,
		ratios: append([]driver.DescRatio(nil), ratios...),
		sets:   sets,
		pools:  []driver.DescPool{p},
	}, nil
}

// grow moves to the next pool.
func (a *Allocator) grow() error {
	if a.cur+1 < len(a.pools) {
		a.cur++
		return nil
	}
	n := min((a.sets*3+1)/2, MaxSets)
	p, err := a.gpu.NewDescPool(n, a.ratios)
	if err != nil {
		return err
	}
	rgraph.Logger().Warn("desc: descriptor pool exhausted, growing", "pools", len(a.pools)+1, "sets", n)
	a.pools = append(a.pools, p)
	a.sets = n
	a.cur++
	return nil
}

// Alloc allocates a descriptor set with the given layout.
func (a *Allocator) Alloc(layout []driver.Descriptor) (driver.DescSet, error) {
	s, err := a.pools[a.cur].Alloc(layout)
	if !errors.Is(err, driver.ErrPoolExhausted) {
		return s, err
	}
	if err := a.grow(); err != nil {
		return nil, err
	}
	return a.pools[a.cur].Alloc(layout)
}

// Reset frees every set allocated from a.
// The pools are kept for reuse.
func (a *Allocator) Reset() error {
	for _, p := range a.pools[:a.cur+1] {
		if err := p.Reset(); err != nil {
			return err
		}
	}
	a.cur = 0
	return nil
}

// Len returns the number of pools.
func (a *Allocator) Len() int { return len(a.pools) }

// Sets returns the capacity of the largest pool.
func (a *Allocator) Sets() int { return a.sets }

// Destroy destroys every pool.
func (a *Allocator) Destroy() {
	for _, p := range a.pools {
		p.Destroy()
	}
	*a = Allocator{}
}

// Constant returns a descriptor of a constant buffer.
func Constant(nr int, stages driver.Stage) driver.Descriptor {
	return driver.Descriptor{Type: driver.DConstant, Stages: stages, Nr: nr, Len: 1}
}

// Texture returns a descriptor of a sampled texture.
func Texture(nr int, stages driver.Stage) driver.Descriptor {
	return driver.Descriptor{Type: driver.DTexture, Stages: stages, Nr: nr, Len: 1}
}

// Sampler returns a descriptor of a texture sampler.
func Sampler(nr int, stages driver.Stage) driver.Descriptor {
	return driver.Descriptor{Type: driver.DSampler, Stages: stages, Nr: nr, Len: 1}
}

// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"errors"
	"sync"

	"github.com/gviegas/rgraph/driver"
)

const (
	scIdle = iota
	scAcquired
	scQueued
)

// swapchain implements driver.Swapchain.
type swapchain struct {
	d    *Driver
	imgs []driver.Image

	mu        sync.Mutex
	cond      sync.Cond
	state     []int
	next      int
	broken    bool
	presented []int
}

// NewSwapchain creates a new swapchain.
func (d *Driver) NewSwapchain(imageCount int) (driver.Swapchain, error) {
	if imageCount < 1 {
		return nil, errors.New("soft: invalid swapchain image count")
	}
	sc := &swapchain{d: d, state: make([]int, imageCount)}
	sc.cond.L = &sc.mu
	for range imageCount {
		img, err := d.NewImage(driver.RGBA8un, d.cfg.Surface, 1, 1, driver.URenderTarget|driver.UCopyDst)
		if err != nil {
			sc.Destroy()
			return nil, err
		}
		sc.imgs = append(sc.imgs, img)
	}
	return sc, nil
}

// Images returns the swapchain images.
func (sc *swapchain) Images() []driver.Image { return sc.imgs }

// Format returns the images' pixel format.
func (sc *swapchain) Format() driver.PixelFmt { return driver.RGBA8un }

// Next returns the index of the next writable image.
// It blocks while every image not acquired by the caller is
// still queued for presentation.
func (sc *swapchain) Next() (int, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for {
		if sc.broken {
			return -1, driver.ErrSwapchain
		}
		queued := false
		for i := range sc.state {
			j := (sc.next + i) % len(sc.state)
			switch sc.state[j] {
			case scIdle:
				sc.state[j] = scAcquired
				sc.next = (j + 1) % len(sc.state)
				return j, nil
			case scQueued:
				queued = true
			}
		}
		if !queued {
			return -1, driver.ErrNoBackbuffer
		}
		sc.cond.Wait()
	}
}

// Present presents the image identified by index.
// Presentation executes on the graphics queue, after every
// work item committed to it so far.
func (sc *swapchain) Present(index int) error {
	sc.mu.Lock()
	if index < 0 || index >= len(sc.state) || sc.state[index] != scAcquired {
		sc.mu.Unlock()
		return errors.New("soft: image not acquired")
	}
	if sc.broken {
		sc.state[index] = scIdle
		sc.mu.Unlock()
		return driver.ErrSwapchain
	}
	sc.state[index] = scQueued
	sc.mu.Unlock()

	d := sc.d
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return errNotOpen
	}
	que := d.queues[d.Queues().Graphics]
	d.mu.Unlock()
	return que.push(job{present: func() {
		d.mu.Lock()
		m := sc.imgs[index].(*image)
		d.expect("Present", m, driver.LPresent)
		d.mu.Unlock()
		sc.mu.Lock()
		sc.state[index] = scIdle
		sc.presented = append(sc.presented, index)
		sc.mu.Unlock()
		sc.cond.Broadcast()
	}})
}

// Recreate recreates the swapchain.
// Images return to the LUndefined layout.
func (sc *swapchain) Recreate() error {
	sc.mu.Lock()
	for sc.queued() {
		sc.cond.Wait()
	}
	for i := range sc.state {
		sc.state[i] = scIdle
	}
	sc.next = 0
	sc.broken = false
	sc.mu.Unlock()
	d := sc.d
	d.mu.Lock()
	for _, img := range sc.imgs {
		m := img.(*image)
		delete(d.layout, m)
		delete(d.owner, m)
		delete(d.pend, m)
	}
	d.mu.Unlock()
	return nil
}

func (sc *swapchain) queued() bool {
	for _, s := range sc.state {
		if s == scQueued {
			return true
		}
	}
	return false
}

// Destroy destroys the swapchain.
func (sc *swapchain) Destroy() {
	for _, img := range sc.imgs {
		img.Destroy()
	}
	sc.imgs = nil
}

// Invalidate causes sc, which must have been created by a
// soft driver, to fail with driver.ErrSwapchain until it is
// recreated.
// It is meant for tests.
func Invalidate(sc driver.Swapchain) {
	s := sc.(*swapchain)
	s.mu.Lock()
	s.broken = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Presented returns the indices of the images of sc
// presented so far, in presentation order.
func Presented(sc driver.Swapchain) []int {
	s := sc.(*swapchain)
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.presented...)
}

// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"errors"
)

// ErrCannotPresent means that the driver and/or device do not
// support presentation.
var ErrCannotPresent = errors.New("driver: presentation not supported")

// ErrSwapchain represents an error related to a specific
// swapchain.
// This error usually indicates that changes to the window or
// compositor made the swapchain unusable. The frame must be
// skipped and the swapchain recreated.
var ErrSwapchain = errors.New("driver: swapchain-related error")

// ErrNoBackbuffer means that all available backbuffers
// were acquired.
// Backbuffers are released during presentation.
var ErrNoBackbuffer = errors.New("driver: all backbuffers in use")

// Presenter is the interface that a GPU may implement
// to enable presentation.
type Presenter interface {
	// NewSwapchain creates a new swapchain with the given
	// number of images.
	NewSwapchain(imageCount int) (Swapchain, error)
}

// Swapchain is the interface that defines a n-buffered
// swapchain for presentation.
// To present, one calls Next to obtain the index of an
// image to target, transitions it to a valid layout
// (e.g., from LUndefined to LColorTarget), records commands
// as needed, transitions the image to the LPresent layout,
// commits these commands and then calls Present.
type Swapchain interface {
	Destroyer

	// Images returns the images that comprise the
	// swapchain. Images are in the LUndefined layout when
	// created/recreated.
	Images() []Image

	// Next returns the index of the next writable image.
	Next() (int, error)

	// Present presents the image identified by index.
	Present(index int) error

	// Recreate recreates the swapchain.
	// It is meant to be called in response to a
	// ErrSwapchain error.
	Recreate() error

	// Format returns the images' PixelFmt.
	Format() PixelFmt
}

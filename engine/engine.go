// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package engine implements the frame driver of the
// command graph.
//
// A Renderer rotates a small number of frame slots. Each
// slot owns a command buffer, a staging buffer, a
// descriptor allocator and the graph of the frame being
// built. Uploads may also run asynchronously on the
// transfer queue, in which case their results are handed
// over to the next frame submitted.
package engine

import (
	"errors"
	"fmt"

	"github.com/gviegas/rgraph"
)

const (
	// The maximum number of frames in flight.
	MaxFrame = 3

	// The minimum number of frames in flight.
	MinFrame = 2

	dflFrames      = 2
	dflStagingSize = 4 << 20
	dflMaxNodes    = 256
	dflDescSets    = 64
	dflLoaders     = 2
)

// Config is used to configure the engine.
type Config struct {
	// The number of frames in flight.
	// It must be in the range [MinFrame, MaxFrame].
	//
	// Default is 2.
	Frames int

	// The size in bytes of each frame's staging buffer.
	//
	// Default is 4194304 bytes (4MiB).
	StagingSize int64

	// The maximum number of nodes in a frame graph.
	//
	// Default is 256.
	MaxNodes int

	// The initial number of descriptor sets of each
	// frame's descriptor pool.
	//
	// Default is 64.
	DescSets int

	// The maximum number of uploads that execute
	// concurrently.
	//
	// Default is 2.
	Loaders int

	// Record the barriers of independent nodes together.
	//
	// Default is false.
	BatchBarriers bool

	// Driver selects the first driver whose name contains
	// this string (case insensitive).
	// It is only used by NewDefault.
	//
	// Default is "", which selects any driver.
	Driver string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Frames:        dflFrames,
		StagingSize:   dflStagingSize,
		MaxNodes:      dflMaxNodes,
		DescSets:      dflDescSets,
		Loaders:       dflLoaders,
		BatchBarriers: false,
		Driver:        "",
	}
}

func newErr(s string) error { return errors.New("engine: " + s) }

// Validate checks that every field of c is valid.
func (c *Config) Validate() error {
	switch {
	case c.Frames < MinFrame || c.Frames > MaxFrame:
		return newErr(fmt.Sprintf("frames must be in [%d, %d], have %d", MinFrame, MaxFrame, c.Frames))
	case c.StagingSize <= 0:
		return newErr("staging size must be positive")
	case c.MaxNodes <= 0:
		return newErr("max nodes must be positive")
	case c.DescSets <= 0:
		return newErr("desc sets must be positive")
	case c.Loaders <= 0:
		return newErr("loaders must be positive")
	}
	return nil
}

// ErrSkipFrame means that the frame could not begin
// because the swapchain is out of date.
// The caller should call Renderer.Recreate and try again.
var ErrSkipFrame = newErr("frame skipped")

// fatal logs err and panics.
// It is used for invariant violations, after which the
// frame's command stream cannot be trusted.
func fatal(err error) {
	rgraph.Logger().Error("engine: fatal error", "err", err)
	panic("engine: " + err.Error())
}

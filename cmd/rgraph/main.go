// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Rgraph runs frame graphs described in HCL on the
// software driver and prints how they were scheduled.
//
// Usage:
//
//	rgraph [flags] file.hcl
//
// The file declares resources and nodes:
//
//	width  = 64
//	height = 64
//
//	resource "buffer" "verts" {
//	  size = 4 * kib
//	  load = 7
//	}
//
//	resource "image" "albedo" {
//	  format = "rgba8"
//	  width  = 64
//	  height = 64
//	}
//
//	node "graphics" "main" {
//	  read "verts" { as = vertex }
//	  write "backbuffer" { as = color }
//	}
//
//	node "present" "present" {
//	  read "backbuffer" {}
//	}
//
// Nodes are added in declaration order, once per frame.
// Reads use the latest version of a resource and writes
// produce a new one. The resource named backbuffer is the
// image of a swapchain whose size is given by the
// top-level width and height.
// Resources with a load attribute are filled with that
// byte on the transfer queue before the first frame.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gviegas/rgraph"
	"github.com/gviegas/rgraph/engine"
)

func main() {
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "rgraph:", err)
		os.Exit(1)
	}
}

type options struct {
	path      string
	config    string
	frames    int
	dedicated bool
	batch     bool
	vk        bool
	verbose   bool
}

func parseFlags(outW io.Writer, args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("rgraph", flag.ContinueOnError)
	fs.SetOutput(outW)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: rgraph [flags] file.hcl")
		fs.PrintDefaults()
	}
	fs.BoolVar(&o.verbose, "v", false, "log debug messages to stderr")
	fs.IntVar(&o.frames, "frames", 1, "number of frames to run")
	fs.BoolVar(&o.dedicated, "dedicated", false, "use a dedicated transfer queue")
	fs.BoolVar(&o.batch, "batch", false, "batch the barriers of independent nodes")
	fs.BoolVar(&o.vk, "vk", false, "print the Vulkan stage masks of each barrier")
	fs.StringVar(&o.config, "config", "", "engine configuration file")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return o, errors.New("expected a single graph file")
	}
	if o.frames < 1 {
		return o, fmt.Errorf("invalid frame count %d", o.frames)
	}
	o.path = fs.Arg(0)
	return o, nil
}

func run(outW io.Writer, args []string) (err error) {
	o, err := parseFlags(outW, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	rgraph.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	defer rgraph.SetLogger(nil)

	cfg := engine.DefaultConfig()
	if o.config != "" {
		if cfg, err = engine.LoadConfig(o.config); err != nil {
			return err
		}
	}
	if o.batch {
		cfg.BatchBarriers = true
	}

	f, err := loadFile(o.path)
	if err != nil {
		return err
	}
	s, err := newSession(f, &cfg, o.dedicated)
	if err != nil {
		return err
	}
	defer s.close()

	// Frame or load failures past this point leave the
	// renderer in an unknown state; they panic.
	defer func() {
		if x := recover(); x != nil {
			err = fmt.Errorf("%v", x)
		}
	}()
	ctx := context.Background()
	if err = s.load(ctx); err != nil {
		return err
	}
	for range o.frames {
		if err = s.frame(outW); err != nil {
			return err
		}
	}
	s.finish()
	if n := printLog(outW, s, o.vk); n > 0 {
		return fmt.Errorf("%d synchronization violations", n)
	}
	return nil
}

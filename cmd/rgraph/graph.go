// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/driver/soft"
	"github.com/gviegas/rgraph/engine"
	"github.com/gviegas/rgraph/graph"
	"github.com/gviegas/rgraph/resource"
)

const backbuffer = "backbuffer"

type graphFile struct {
	Width     int             `hcl:"width,optional"`
	Height    int             `hcl:"height,optional"`
	Resources []resourceBlock `hcl:"resource,block"`
	Nodes     []nodeBlock     `hcl:"node,block"`
}

type resourceBlock struct {
	Kind     string `hcl:"kind,label"`
	Name     string `hcl:"name,label"`
	Size     int64  `hcl:"size,optional"`
	Format   string `hcl:"format,optional"`
	Width    int    `hcl:"width,optional"`
	Height   int    `hcl:"height,optional"`
	Layers   int    `hcl:"layers,optional"`
	PerFrame bool   `hcl:"per_frame,optional"`
	Load     *int   `hcl:"load,optional"`
}

type nodeBlock struct {
	Kind   string        `hcl:"kind,label"`
	Name   string        `hcl:"name,label"`
	Text   string        `hcl:"text,optional"`
	X      int           `hcl:"x,optional"`
	Y      int           `hcl:"y,optional"`
	Reads  []accessBlock `hcl:"read,block"`
	Writes []accessBlock `hcl:"write,block"`
}

type accessBlock struct {
	Resource string `hcl:"resource,label"`
	As       string `hcl:"as,optional"`
}

var formats = map[string]driver.PixelFmt{
	"rgba8":      driver.RGBA8un,
	"rgba8_srgb": driver.RGBA8sRGB,
	"bgra8":      driver.BGRA8un,
	"bgra8_srgb": driver.BGRA8sRGB,
	"rg8":        driver.RG8un,
	"r8":         driver.R8un,
	"rgba16f":    driver.RGBA16f,
	"rgba32f":    driver.RGBA32f,
	"r32f":       driver.R32f,
	"d16":        driver.D16un,
	"d32f":       driver.D32f,
	"d24s8":      driver.D24unS8ui,
}

// evalContext extends the engine's context with a
// variable for each usage preset, so that as = sampled is
// equivalent to as = "sampled".
func evalContext() *hcl.EvalContext {
	ctx := engine.EvalContext()
	for name := range graph.Presets {
		ctx.Variables[name] = cty.StringVal(name)
	}
	return ctx
}

func loadFile(path string) (*graphFile, error) {
	f, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", path, diags)
	}
	var gf graphFile
	if diags := gohcl.DecodeBody(f.Body, evalContext(), &gf); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %w", path, diags)
	}
	if gf.Width <= 0 {
		gf.Width = 64
	}
	if gf.Height <= 0 {
		gf.Height = 64
	}
	if err := gf.check(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &gf, nil
}

// check validates names and presets.
func (gf *graphFile) check() error {
	names := map[string]bool{backbuffer: true}
	for _, r := range gf.Resources {
		switch {
		case r.Name == backbuffer:
			return fmt.Errorf("resource name %q is reserved", r.Name)
		case names[r.Name]:
			return fmt.Errorf("resource %q declared twice", r.Name)
		case r.Kind != "buffer" && r.Kind != "image":
			return fmt.Errorf("resource %q: unknown kind %q", r.Name, r.Kind)
		}
		if _, ok := formats[r.Format]; r.Kind == "image" && r.Format != "" && !ok {
			return fmt.Errorf("resource %q: unknown format %q", r.Name, r.Format)
		}
		names[r.Name] = true
	}
	for _, n := range gf.Nodes {
		switch n.Kind {
		case "graphics", "transfer", "blit", "present", "text":
		default:
			return fmt.Errorf("node %q: unknown kind %q", n.Name, n.Kind)
		}
		for _, a := range slices.Concat(n.Reads, n.Writes) {
			if !names[a.Resource] {
				return fmt.Errorf("node %q: undeclared resource %q", n.Name, a.Resource)
			}
			if _, ok := graph.Presets[a.As]; a.As != "" && !ok {
				return fmt.Errorf("node %q: unknown preset %q (want one of %v)",
					n.Name, a.As, slices.Sorted(maps.Keys(graph.Presets)))
			}
		}
	}
	return nil
}

// uses reports whether any node accesses the named
// resource.
func (gf *graphFile) uses(name string) bool {
	for _, n := range gf.Nodes {
		for _, a := range slices.Concat(n.Reads, n.Writes) {
			if a.Resource == name {
				return true
			}
		}
	}
	return false
}

// session is a renderer running on a software driver.
type session struct {
	gf    *graphFile
	d     *soft.Driver
	r     *engine.Renderer
	sc    driver.Swapchain
	res   map[string]resource.Handle
	names map[any]string
	loads []engine.Upload
	done  bool
}

func newSession(gf *graphFile, cfg *engine.Config, dedicated bool) (_ *session, err error) {
	s := &session{
		gf:    gf,
		d:     soft.New(soft.Config{DedicatedTransfer: dedicated, Surface: driver.Dim3D{Width: gf.Width, Height: gf.Height}}),
		res:   make(map[string]resource.Handle),
		names: make(map[any]string),
	}
	gpu, err := s.d.Open()
	if err != nil {
		return nil, err
	}
	if s.r, err = engine.New(gpu, cfg); err != nil {
		s.d.Close()
		return nil, err
	}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	reg := s.r.Registry()
	for _, b := range gf.Resources {
		var h resource.Handle
		switch b.Kind {
		case "buffer":
			h, err = reg.CreateBuffer(b.Name, resource.BufferDesc{Size: b.Size, Usage: driver.UGeneric, PerFrame: b.PerFrame})
		default:
			pf := driver.RGBA8un
			if b.Format != "" {
				pf = formats[b.Format]
			}
			w, ht := b.Width, b.Height
			if w <= 0 {
				w = gf.Width
			}
			if ht <= 0 {
				ht = gf.Height
			}
			h, err = reg.CreateImage(b.Name, resource.ImageDesc{
				Format:   pf,
				Size:     driver.Dim3D{Width: w, Height: ht},
				Layers:   max(b.Layers, 1),
				Levels:   1,
				Usage:    driver.UGeneric,
				PerFrame: b.PerFrame,
			})
		}
		if err != nil {
			return nil, fmt.Errorf("resource %q: %w", b.Name, err)
		}
		s.res[b.Name] = h
		if b.Load != nil {
			s.loads = append(s.loads, engine.Upload{Dst: h, Data: fill(reg, h, byte(*b.Load))})
		}
	}
	if gf.uses(backbuffer) {
		if s.sc, err = s.d.NewSwapchain(cfg.Frames + 1); err != nil {
			return nil, err
		}
		if s.res[backbuffer], err = s.r.Attach(s.sc); err != nil {
			return nil, err
		}
	}
	for name, h := range s.res {
		for i := range reg.Frames() {
			switch reg.Kind(h) {
			case resource.Buffer:
				s.names[reg.Buffer(h, int64(i))] = name
			default:
				s.names[reg.Image(h, int64(i))] = name
			}
		}
	}
	if s.sc != nil {
		for i, img := range s.sc.Images() {
			s.names[img] = fmt.Sprintf("%s[%d]", backbuffer, i)
		}
	}
	return s, nil
}

// fill returns the data that fills h with v.
func fill(reg *resource.Registry, h resource.Handle, v byte) []byte {
	var n int
	if reg.Kind(h) == resource.Buffer {
		n = int(reg.Size(h))
	} else {
		m := reg.Image(h, 0)
		sz := m.Size()
		n = sz.Width * sz.Height * max(sz.Depth, 1) * m.Format().Size()
	}
	p := make([]byte, n)
	for i := range p {
		p[i] = v
	}
	return p
}

// load submits the uploads of resources that declare a
// load attribute and waits for them to complete.
// The first frame acquires them.
func (s *session) load(ctx context.Context) error {
	if len(s.loads) == 0 {
		return nil
	}
	return s.r.Load(ctx, s.loads).Wait(ctx)
}

// frame builds and submits one frame, then prints its
// schedule.
func (s *session) frame(w io.Writer) error {
	f, err := s.r.BeginFrame()
	if err != nil {
		return err
	}
	defer func() {
		if x := recover(); x != nil {
			// Hand the frame back so that close does not
			// wait on it.
			f.Graph.Reset()
			s.r.EndFrame(f)
			panic(x)
		}
	}()
	if err := s.build(f); err != nil {
		f.Graph.Reset()
		s.r.EndFrame(f)
		return err
	}
	res, err := s.r.ExecuteGraph(f)
	if err != nil {
		return err
	}
	if err := s.r.EndFrame(f); err != nil {
		return err
	}
	printFrame(w, f, res)
	return nil
}

// build adds the nodes of s.gf to the graph of f.
func (s *session) build(f *engine.Frame) error {
	g := f.Graph
	reg := g.Registry()
	latest := make(map[string]resource.Handle, len(s.res))
	for name, h := range s.res {
		latest[name] = h
	}
	preset := func(a accessBlock, dfl resource.State) resource.State {
		if st, ok := graph.Presets[a.As]; ok {
			return st
		}
		return dfl
	}
	image := func(a accessBlock) bool { return reg.Kind(latest[a.Resource]) == resource.Image }

	for _, n := range s.gf.Nodes {
		var err error
		switch n.Kind {
		case "graphics":
			err = s.graphics(g, n, latest, preset)
		case "transfer":
			err = s.transfer(g, n, latest, preset)
		case "blit":
			if len(n.Reads) != 1 || len(n.Writes) != 1 || !image(n.Reads[0]) || !image(n.Writes[0]) {
				return fmt.Errorf("node %q: blit needs one image read and one image write", n.Name)
			}
			src, dst := latest[n.Reads[0].Resource], latest[n.Writes[0].Resource]
			from, to := reg.Image(src, f.Number).Size(), reg.Image(dst, f.Number).Size()
			latest[n.Writes[0].Resource], err = g.AddBlit(n.Name).Blit(src, dst, driver.ImageBlit{
				FromRect: [2]driver.Off3D{{}, {X: from.Width, Y: from.Height, Z: 1}},
				ToRect:   [2]driver.Off3D{{}, {X: to.Width, Y: to.Height, Z: 1}},
			})
		case "present":
			if len(n.Reads) != 1 || len(n.Writes) != 0 {
				return fmt.Errorf("node %q: present needs a single read", n.Name)
			}
			_, err = g.AddPresent(n.Name, latest[n.Reads[0].Resource])
		case "text":
			if len(n.Writes) != 1 || len(n.Reads) != 0 {
				return fmt.Errorf("node %q: text needs a single write", n.Name)
			}
			name := n.Writes[0].Resource
			latest[name], err = f.Text(n.Name, latest[name], n.X, n.Y, n.Text)
		}
		if err != nil {
			return fmt.Errorf("node %q: %w", n.Name, err)
		}
	}
	return nil
}

type presetFunc func(accessBlock, resource.State) resource.State

func (s *session) graphics(g *graph.Graph, n nodeBlock, latest map[string]resource.Handle, preset presetFunc) error {
	reg := g.Registry()
	p := g.AddGraphics(n.Name, s.gf.Width, s.gf.Height)
	vbuf := 0
	for _, a := range n.Reads {
		h := latest[a.Resource]
		var err error
		switch a.As {
		case "vertex":
			err = p.BindVertexBuf(vbuf, h, 0)
			vbuf++
		case "index":
			err = p.BindIndexBuf(driver.Index16, h, 0)
		case "uniform":
			err = p.BindUniform(h)
		case "sampled":
			err = p.BindSampled(h)
		default:
			dfl := graph.StorageRead
			if reg.Kind(h) == resource.Buffer {
				dfl = graph.Uniform
			}
			err = p.Read(h, preset(a, dfl))
		}
		if err != nil {
			return err
		}
	}
	targets := 0
	for _, a := range n.Writes {
		h := latest[a.Resource]
		var next resource.Handle
		var err error
		switch {
		case a.As == "depth":
			next, err = p.Depth(h, driver.LClear, 1)
			targets++
		case a.As == "color" || a.As == "" && reg.Kind(h) == resource.Image:
			next, err = p.Color(h, driver.LClear, [4]float32{0, 0, 0, 1})
			targets++
		default:
			next, err = p.Write(h, preset(a, graph.StorageWrite))
		}
		if err != nil {
			return err
		}
		latest[a.Resource] = next
	}
	if targets > 0 {
		p.Draw(3, 1, 0, 0)
	}
	return nil
}

// transfer copies the first buffer read into every buffer
// written, or fills the buffers written when nothing is
// read. Other accesses are declared as given.
func (s *session) transfer(g *graph.Graph, n nodeBlock, latest map[string]resource.Handle, preset presetFunc) error {
	reg := g.Registry()
	p := g.AddTransfer(n.Name)
	src := -1
	for i, a := range n.Reads {
		if reg.Kind(latest[a.Resource]) == resource.Buffer && (a.As == "" || a.As == "copy_src") {
			src = i
			break
		}
	}
	used := false
	for _, a := range n.Writes {
		h := latest[a.Resource]
		var next resource.Handle
		var err error
		switch {
		case reg.Kind(h) == resource.Buffer && src >= 0:
			from := latest[n.Reads[src].Resource]
			size := min(reg.Size(from), reg.Size(h))
			next, err = p.CopyBuffer(from, 0, h, 0, size)
			used = true
		case reg.Kind(h) == resource.Buffer:
			next, err = p.Fill(h, 0, 0, reg.Size(h))
		default:
			next, err = p.Write(h, preset(a, graph.CopyDst))
		}
		if err != nil {
			return err
		}
		latest[a.Resource] = next
	}
	for i, a := range n.Reads {
		if i == src && used {
			continue
		}
		if err := p.Read(latest[a.Resource], preset(a, graph.CopySrc)); err != nil {
			return err
		}
	}
	return nil
}

// finish waits for every submission to complete.
func (s *session) finish() {
	s.r.Close()
	s.done = true
}

func (s *session) close() {
	if !s.done {
		s.r.Close()
		s.done = true
	}
	if s.sc != nil {
		s.sc.Destroy()
		s.sc = nil
	}
	s.d.Close()
}

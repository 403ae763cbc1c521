// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package graph implements the per-frame command graph.
//
// Nodes declare the resource versions they read and write.
// Writing a version produces the next one, and each
// version can be written only once. From these
// declarations the graph derives execution order and
// records the barriers needed between nodes.
package graph

import (
	"errors"
	"fmt"

	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/resource"
)

// Errors returned by Graph methods.
// They indicate misuse; the first one is kept by the graph
// and returned again by Schedule and Execute.
var (
	ErrCycle        = errors.New("graph: cyclic graph detected")
	ErrDoubleWrite  = errors.New("graph: versioned resource can only be written once")
	ErrStaleVersion = errors.New("graph: resource version does not exist")
	ErrConflict     = errors.New("graph: conflicting resource states in node")
	ErrKind         = errors.New("graph: wrong resource kind")
)

// Kind is the kind of a node.
type Kind int

// Node kinds.
const (
	KGraphics Kind = iota
	KTransfer
	KBlit
	KPresent
	KText
)

func (k Kind) String() string {
	switch k {
	case KGraphics:
		return "graphics"
	case KTransfer:
		return "transfer"
	case KBlit:
		return "blit"
	case KPresent:
		return "present"
	case KText:
		return "text"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// NodeRef identifies a node of a graph.
// It is the node's insertion index.
type NodeRef int32

// none is the producer of externally defined versions.
const none NodeRef = -1

// Options configures a graph.
type Options struct {
	// MaxNodes is the node capacity.
	// Zero means 256.
	MaxNodes int
	// Batch records the barriers of nodes at the same
	// dependency level together.
	Batch bool
}

// dep is a resource access of a node.
type dep struct {
	node  NodeRef
	h     resource.Handle
	st    resource.State
	write bool
}

type node struct {
	kind     Kind
	name     string
	payload  payload
	executed bool
}

// version is the history of a resource version.
type version struct {
	producer NodeRef
	writer   NodeRef
	readers  []NodeRef
}

// Graph is a frame's command graph.
// It is not safe for concurrent use.
type Graph struct {
	reg   *resource.Registry
	opts  Options
	nodes []node
	deps  []dep
	vers  map[uint32][]version
	roots []resource.Handle
	err   error
}

// New creates a new graph whose resources are looked up in
// reg.
func New(reg *resource.Registry, opts Options) *Graph {
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = 256
	}
	return &Graph{
		reg:   reg,
		opts:  opts,
		nodes: make([]node, 0, opts.MaxNodes),
		vers:  make(map[uint32][]version),
	}
}

// Registry returns the registry of g.
func (g *Graph) Registry() *resource.Registry { return g.reg }

// Reset discards every node, so that g can be reused for
// another frame.
func (g *Graph) Reset() {
	clear(g.nodes[:cap(g.nodes)])
	g.nodes = g.nodes[:0]
	g.deps = g.deps[:0]
	clear(g.vers)
	g.roots = g.roots[:0]
	g.err = nil
}

// Err returns the first error caused by misuse of g.
func (g *Graph) Err() error { return g.err }

// fail records err if it is the first error.
func (g *Graph) fail(err error) error {
	if g.err == nil {
		g.err = err
	}
	return err
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Name returns the name of a node.
func (g *Graph) Name(ref NodeRef) string { return g.nodes[ref].name }

// Kind returns the kind of a node.
func (g *Graph) Kind(ref NodeRef) Kind { return g.nodes[ref].kind }

// Executed returns whether a node was executed.
func (g *Graph) Executed(ref NodeRef) bool { return g.nodes[ref].executed }

// Roots returns the resources that are first written in
// this graph with no prior version to wait on.
func (g *Graph) Roots() []resource.Handle { return g.roots }

func (g *Graph) add(kind Kind, name string, p payload) NodeRef {
	if len(g.nodes) == g.opts.MaxNodes {
		panic("graph: node capacity exceeded")
	}
	g.nodes = append(g.nodes, node{kind: kind, name: name, payload: p})
	return NodeRef(len(g.nodes) - 1)
}

// versions returns the versions of a resource.
func (g *Graph) versions(index uint32) []version {
	vs, ok := g.vers[index]
	if !ok {
		vs = []version{{producer: none, writer: none}}
		g.vers[index] = vs
	}
	return vs
}

// check validates an access of node ref to h.
func (g *Graph) check(ref NodeRef, h resource.Handle, st resource.State) error {
	if g.err != nil {
		return g.err
	}
	if int(ref) < 0 || int(ref) >= len(g.nodes) {
		panic("graph: invalid node")
	}
	if !g.reg.Valid(h) {
		panic("graph: invalid resource handle")
	}
	if vs := g.versions(h.Index); int(h.Gen) >= len(vs) {
		return g.fail(fmt.Errorf("%w: node %q, resource %v", ErrStaleVersion, g.nodes[ref].name, h))
	}
	// A node accesses each physical image in a single
	// layout.
	if g.reg.Kind(h) == resource.Image {
		for i := range g.deps {
			d := &g.deps[i]
			if d.node == ref && d.h.Index == h.Index && d.st.Layout != st.Layout {
				return g.fail(fmt.Errorf("%w: node %q, resource %v", ErrConflict, g.nodes[ref].name, h))
			}
		}
	}
	return nil
}

// Read declares that node ref reads version h.
func (g *Graph) Read(ref NodeRef, h resource.Handle, st resource.State) error {
	if err := g.check(ref, h, st); err != nil {
		return err
	}
	vs := g.vers[h.Index]
	vs[h.Gen].readers = append(vs[h.Gen].readers, ref)
	g.deps = append(g.deps, dep{node: ref, h: h, st: st})
	return nil
}

// Write declares that node ref writes on version h and
// returns the version produced.
// A version can only be written once; writing on the
// first version marks h as a root resource.
// Writes that also read the current contents (e.g., a
// render target that is loaded) must include the read
// access in st.
func (g *Graph) Write(ref NodeRef, h resource.Handle, st resource.State) (resource.Handle, error) {
	if err := g.check(ref, h, st); err != nil {
		return h, err
	}
	vs := g.vers[h.Index]
	if vs[h.Gen].writer != none {
		return h, g.fail(fmt.Errorf("%w: node %q, resource %v (written by %q)", ErrDoubleWrite, g.nodes[ref].name, h, g.nodes[vs[h.Gen].writer].name))
	}
	if h.Gen == 0 {
		g.roots = append(g.roots, h)
	}
	vs[h.Gen].writer = ref
	g.vers[h.Index] = append(vs, version{producer: ref, writer: none})
	g.deps = append(g.deps, dep{node: ref, h: h, st: st, write: true})
	return h.Next(), nil
}

// Latest returns the latest version of a resource in g.
func (g *Graph) Latest(h resource.Handle) resource.Handle {
	vs, ok := g.vers[h.Index]
	if !ok {
		return h.Base()
	}
	return resource.Handle{Index: h.Index, Gen: uint32(len(vs) - 1)}
}

// Producer returns the node that produced version h, or
// false if h was defined outside of g.
func (g *Graph) Producer(h resource.Handle) (NodeRef, bool) {
	vs, ok := g.vers[h.Index]
	if !ok || int(h.Gen) >= len(vs) || vs[h.Gen].producer == none {
		return none, false
	}
	return vs[h.Gen].producer, true
}

// Usage presets.
var (
	CopySrc     = resource.State{Sync: driver.SCopy, Access: driver.ACopyRead, Layout: driver.LCopySrc}
	CopyDst     = resource.State{Sync: driver.SCopy, Access: driver.ACopyWrite, Layout: driver.LCopyDst}
	Vertex      = resource.State{Sync: driver.SVertexInput, Access: driver.AVertexBufRead}
	Index       = resource.State{Sync: driver.SVertexInput, Access: driver.AIndexBufRead}
	Uniform     = resource.State{Sync: driver.SVertexShading | driver.SFragmentShading, Access: driver.AConstRead}
	Sampled     = resource.State{Sync: driver.SFragmentShading, Access: driver.AShaderRead, Layout: driver.LShaderRead}
	Color       = resource.State{Sync: driver.SColorOutput, Access: driver.AColorWrite, Layout: driver.LColorTarget}
	Depth       = resource.State{Sync: driver.SDSOutput, Access: driver.ADSRead | driver.ADSWrite, Layout: driver.LDSTarget}
	Present     = resource.State{Layout: driver.LPresent}
	StorageRead = resource.State{
		Sync:   driver.SVertexShading | driver.SFragmentShading | driver.SComputeShading,
		Access: driver.AShaderRead,
		Layout: driver.LCommon,
	}
	StorageWrite = resource.State{
		Sync:   driver.SVertexShading | driver.SFragmentShading | driver.SComputeShading,
		Access: driver.AShaderWrite,
		Layout: driver.LCommon,
	}
)

// Presets maps preset names to usage presets.
var Presets = map[string]resource.State{
	"copy_src":      CopySrc,
	"copy_dst":      CopyDst,
	"vertex":        Vertex,
	"index":         Index,
	"uniform":       Uniform,
	"sampled":       Sampled,
	"color":         Color,
	"depth":         Depth,
	"present":       Present,
	"storage_read":  StorageRead,
	"storage_write": StorageWrite,
}

// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gviegas/rgraph/internal/bitvec"
)

// edges computes the dependencies of every node.
// The dependencies of node i are preds[start[i]:start[i+1]],
// sorted and without duplicates.
func (g *Graph) edges() (start []int, preds []NodeRef) {
	type edge struct{ succ, pred NodeRef }
	var es []edge
	add := func(succ, pred NodeRef) {
		if pred != none && succ != pred {
			es = append(es, edge{succ, pred})
		}
	}
	for _, vs := range g.vers {
		for i := range vs {
			v := &vs[i]
			// Reads wait on the write that produced the
			// version (RAW).
			for _, r := range v.readers {
				add(r, v.producer)
			}
			if v.writer == none {
				continue
			}
			// The write on the version waits on the
			// previous write (WAW) and on every read of the
			// version (WAR).
			add(v.writer, v.producer)
			for _, r := range v.readers {
				add(v.writer, r)
			}
		}
	}

	// Bucket by successor, then sort and compact each
	// bucket.
	n := len(g.nodes)
	start = make([]int, n+1)
	for _, e := range es {
		start[e.succ+1]++
	}
	for i := range n {
		start[i+1] += start[i]
	}
	preds = make([]NodeRef, len(es))
	pos := slices.Clone(start[:n])
	for _, e := range es {
		preds[pos[e.succ]] = e.pred
		pos[e.succ]++
	}
	w := 0
	for i := range n {
		s := preds[start[i]:start[i+1]]
		slices.Sort(s)
		s = slices.Compact(s)
		start[i] = w
		w += copy(preds[w:], s)
	}
	start[n] = w
	return start, preds[:w]
}

// Deps returns the dependencies of a node in ascending
// order.
func (g *Graph) Deps(ref NodeRef) []NodeRef {
	start, preds := g.edges()
	return preds[start[ref]:start[ref+1]]
}

// dfsFrame is an entry of the depth-first search stack.
type dfsFrame struct {
	node NodeRef
	next int
}

// Schedule returns the nodes sorted in execution order.
// Every node comes after the nodes it depends on.
// Independent nodes keep their insertion order.
func (g *Graph) Schedule() ([]NodeRef, error) {
	if g.err != nil {
		return nil, g.err
	}
	start, preds := g.edges()
	n := len(g.nodes)

	// Depth-first search with an explicit stack. The
	// two marks make three colors: unvisited, on the
	// stack and done.
	var onStack, done bitvec.V[uint64]
	onStack.Reserve(n)
	done.Reserve(n)
	stack := make([]dfsFrame, 0, 16)
	order := make([]NodeRef, 0, n)
	for root := range n {
		if done.IsSet(root) {
			continue
		}
		stack = append(stack, dfsFrame{NodeRef(root), start[root]})
		onStack.Set(root)
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next == start[top.node+1] {
				onStack.Unset(int(top.node))
				done.Set(int(top.node))
				order = append(order, top.node)
				stack = stack[:len(stack)-1]
				continue
			}
			p := preds[top.next]
			top.next++
			switch {
			case done.IsSet(int(p)):
			case onStack.IsSet(int(p)):
				return nil, g.fail(g.cycle(stack, p))
			default:
				stack = append(stack, dfsFrame{p, start[p]})
				onStack.Set(int(p))
			}
		}
	}
	return order, nil
}

// cycle describes the cycle that closes at node p, which
// is on the stack.
func (g *Graph) cycle(stack []dfsFrame, p NodeRef) error {
	i := len(stack) - 1
	for stack[i].node != p {
		i--
	}
	var sb strings.Builder
	for _, f := range stack[i:] {
		sb.WriteString(g.nodes[f.node].name)
		sb.WriteString(" -> ")
	}
	sb.WriteString(g.nodes[p].name)
	return fmt.Errorf("%w: %s", ErrCycle, sb.String())
}

// Levels returns the dependency level of every node, in
// insertion order, given an execution order.
// Nodes with no dependencies are at level 0; any other
// node is one level above its deepest dependency.
func (g *Graph) Levels(order []NodeRef) []int {
	start, preds := g.edges()
	lvl := make([]int, len(g.nodes))
	for _, n := range order {
		for _, p := range preds[start[n]:start[n+1]] {
			lvl[n] = max(lvl[n], lvl[p]+1)
		}
	}
	return lvl
}

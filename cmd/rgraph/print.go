// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/driver/soft"
	"github.com/gviegas/rgraph/driver/vk"
	"github.com/gviegas/rgraph/engine"
	"github.com/gviegas/rgraph/graph"
)

var syncNames = [...]string{
	"vertex_input",
	"vertex_shading",
	"fragment_shading",
	"compute_shading",
	"color_output",
	"ds_output",
	"draw",
	"resolve",
	"copy",
	"all",
}

var accessNames = [...]string{
	"vertex_buf_read",
	"index_buf_read",
	"const_read",
	"color_read",
	"color_write",
	"ds_read",
	"ds_write",
	"resolve_read",
	"resolve_write",
	"copy_read",
	"copy_write",
	"shader_read",
	"shader_write",
	"any_read",
	"any_write",
}

var layoutNames = [...]string{
	driver.LUndefined:   "undefined",
	driver.LCommon:      "common",
	driver.LColorTarget: "color_target",
	driver.LDSTarget:    "ds_target",
	driver.LDSRead:      "ds_read",
	driver.LResolveSrc:  "resolve_src",
	driver.LResolveDst:  "resolve_dst",
	driver.LCopySrc:     "copy_src",
	driver.LCopyDst:     "copy_dst",
	driver.LShaderRead:  "shader_read",
	driver.LPresent:     "present",
}

func flags(names []string, mask int) string {
	if mask == 0 {
		return "none"
	}
	var s []string
	for i, n := range names {
		if mask&(1<<i) != 0 {
			s = append(s, n)
		}
	}
	return strings.Join(s, "|")
}

func syncString(s driver.Sync) string     { return flags(syncNames[:], int(s)) }
func accessString(a driver.Access) string { return flags(accessNames[:], int(a)) }

func layoutString(l driver.Layout) string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return fmt.Sprintf("layout(%d)", int(l))
}

func barrierString(b *driver.Barrier) string {
	return fmt.Sprintf("sync %s -> %s, access %s -> %s",
		syncString(b.SyncBefore), syncString(b.SyncAfter),
		accessString(b.AccessBefore), accessString(b.AccessAfter))
}

func queueString(before, after driver.Queue) string {
	if before == after {
		return ""
	}
	return fmt.Sprintf(", queue %d -> %d", before, after)
}

func printFrame(w io.Writer, f *engine.Frame, res *graph.Result) {
	g := f.Graph
	fmt.Fprintf(w, "frame %d: %d nodes, %d barriers, %d batches\n", f.Number, len(res.Order), res.Total(), res.Batches)
	for i, ref := range res.Order {
		fmt.Fprintf(w, "  %d. %s (%v) level %d, barriers %d\n",
			i+1, g.Name(ref), g.Kind(ref), res.Levels[ref], res.Barriers[ref])
	}
	for _, p := range res.Presents {
		fmt.Fprintf(w, "  present %s\n", g.Registry().Name(p.Image))
	}
}

// printLog prints the synchronization commands of every
// submission executed, followed by any violations that the
// driver detected.
// It returns the number of violations.
func printLog(w io.Writer, s *session, vkMasks bool) int {
	name := func(x any) string {
		if n, ok := s.names[x]; ok {
			return n
		}
		return "?"
	}
	for _, sub := range s.d.Log() {
		queue := "graphics"
		if sub.Queue != s.r.Queues().Graphics {
			queue = "transfer"
		}
		fmt.Fprintf(w, "submission %d on %s queue: %d waits, %d signals\n", sub.Seq, queue, len(sub.Wait), len(sub.Signal))
		for i := range sub.Cmds {
			c := &sub.Cmds[i]
			var src, dst uint32
			switch c.Op {
			case soft.OpBarrier:
				for j := range c.Barriers {
					fmt.Fprintf(w, "  barrier: %s\n", barrierString(&c.Barriers[j]))
				}
				sm, dm, _ := vk.MemoryBarriers(c.Barriers)
				src, dst = uint32(sm), uint32(dm)
			case soft.OpTransition:
				for j := range c.Transitions {
					t := &c.Transitions[j]
					fmt.Fprintf(w, "  transition %s: %s -> %s, %s%s\n",
						name(t.Img), layoutString(t.LayoutBefore), layoutString(t.LayoutAfter),
						barrierString(&t.Barrier), queueString(t.QueueBefore, t.QueueAfter))
				}
				sm, dm, _ := vk.ImageBarriers(c.Transitions)
				src, dst = uint32(sm), uint32(dm)
			case soft.OpBufBarrier:
				for j := range c.BufBarriers {
					b := &c.BufBarriers[j]
					fmt.Fprintf(w, "  buffer %s: %s%s\n",
						name(b.Buf), barrierString(&b.Barrier), queueString(b.QueueBefore, b.QueueAfter))
				}
				sm, dm, _ := vk.BufferBarriers(c.BufBarriers)
				src, dst = uint32(sm), uint32(dm)
			default:
				continue
			}
			if vkMasks {
				fmt.Fprintf(w, "    vk: src stages %#x, dst stages %#x\n", src, dst)
			}
		}
	}
	viol := s.d.Violations()
	for _, v := range viol {
		fmt.Fprintf(w, "violation: %s\n", v)
	}
	return len(viol)
}

// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"errors"
	"fmt"

	"github.com/gviegas/rgraph/driver"
)

// Op identifies a recorded command.
type Op int

// Recorded commands.
const (
	OpBarrier Op = iota
	OpTransition
	OpBufBarrier
	OpBeginPass
	OpEndPass
	OpPipeline
	OpViewport
	OpScissor
	OpVertexBuf
	OpIndexBuf
	OpDescSet
	OpDraw
	OpDrawIndexed
	OpCopyBuffer
	OpCopyBufToImg
	OpCopyImgToBuf
	OpBlit
	OpFill
)

var opNames = [...]string{
	OpBarrier:      "Barrier",
	OpTransition:   "Transition",
	OpBufBarrier:   "BufBarrier",
	OpBeginPass:    "BeginPass",
	OpEndPass:      "EndPass",
	OpPipeline:     "SetPipeline",
	OpViewport:     "SetViewport",
	OpScissor:      "SetScissor",
	OpVertexBuf:    "SetVertexBuf",
	OpIndexBuf:     "SetIndexBuf",
	OpDescSet:      "SetDescSet",
	OpDraw:         "Draw",
	OpDrawIndexed:  "DrawIndexed",
	OpCopyBuffer:   "CopyBuffer",
	OpCopyBufToImg: "CopyBufToImg",
	OpCopyImgToBuf: "CopyImgToBuf",
	OpBlit:         "Blit",
	OpFill:         "Fill",
}

func (op Op) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return fmt.Sprintf("Op(%d)", int(op))
	}
	return opNames[op]
}

// Cmd is a recorded command.
// Only the fields relevant to Op are set.
type Cmd struct {
	Op          Op
	Barriers    []driver.Barrier
	Transitions []driver.Transition
	BufBarriers []driver.BufBarrier
	Pass        *driver.Pass
	Pipeline    driver.Pipeline
	Viewports   []driver.Viewport
	Scissors    []driver.Scissor
	Start       int
	Bufs        []driver.Buffer
	Offs        []int64
	IndexFmt    driver.IndexFmt
	DescSet     driver.DescSet
	// Draw parameters, in argument order.
	Args     [5]int
	BufCopy  *driver.BufferCopy
	BufImg   *driver.BufImgCopy
	ImgBlit  *driver.ImageBlit
	FillBuf  driver.Buffer
	FillOff  int64
	FillVal  byte
	FillSize int64
}

// Count returns the number of barriers/transitions in a
// synchronization command, or 0 for other commands.
func (c *Cmd) Count() int {
	switch c.Op {
	case OpBarrier:
		return len(c.Barriers)
	case OpTransition:
		return len(c.Transitions)
	case OpBufBarrier:
		return len(c.BufBarriers)
	}
	return 0
}

const (
	cbInitial = iota
	cbRecording
	cbEnded
	cbPending
)

// cmdBuffer implements driver.CmdBuffer.
type cmdBuffer struct {
	d      *Driver
	q      driver.Queue
	status int
	inPass bool
	cmds   []Cmd
}

var errRecording = errors.New("soft: command buffer in invalid state")

// Queue returns the command buffer's queue.
func (cb *cmdBuffer) Queue() driver.Queue { return cb.q }

// Begin prepares the command buffer for recording.
func (cb *cmdBuffer) Begin() error {
	if cb.status != cbInitial {
		return errRecording
	}
	cb.status = cbRecording
	return nil
}

// IsRecording returns whether cb is recording.
func (cb *cmdBuffer) IsRecording() bool { return cb.status == cbRecording }

// End ends command recording.
func (cb *cmdBuffer) End() error {
	if cb.status != cbRecording || cb.inPass {
		cb.reset()
		return errRecording
	}
	cb.status = cbEnded
	return nil
}

// Reset discards all recorded commands.
func (cb *cmdBuffer) Reset() error {
	if cb.status == cbPending {
		return errRecording
	}
	cb.reset()
	return nil
}

func (cb *cmdBuffer) reset() {
	cb.status = cbInitial
	cb.inPass = false
	cb.cmds = cb.cmds[:0]
}

// Destroy destroys the command buffer.
func (cb *cmdBuffer) Destroy() { *cb = cmdBuffer{} }

func (cb *cmdBuffer) record(c Cmd) {
	if cb.status != cbRecording {
		panic("soft: command recorded outside Begin/End")
	}
	cb.cmds = append(cb.cmds, c)
}

func (cb *cmdBuffer) Barrier(b []driver.Barrier) {
	cb.record(Cmd{Op: OpBarrier, Barriers: append([]driver.Barrier(nil), b...)})
}

func (cb *cmdBuffer) Transition(t []driver.Transition) {
	cb.record(Cmd{Op: OpTransition, Transitions: append([]driver.Transition(nil), t...)})
}

func (cb *cmdBuffer) BufBarrier(b []driver.BufBarrier) {
	cb.record(Cmd{Op: OpBufBarrier, BufBarriers: append([]driver.BufBarrier(nil), b...)})
}

func (cb *cmdBuffer) BeginPass(pass *driver.Pass) {
	if cb.inPass {
		panic("soft: nested render pass")
	}
	p := *pass
	p.Color = append([]driver.Target(nil), pass.Color...)
	if pass.DS != nil {
		ds := *pass.DS
		p.DS = &ds
	}
	cb.record(Cmd{Op: OpBeginPass, Pass: &p})
	cb.inPass = true
}

func (cb *cmdBuffer) EndPass() {
	if !cb.inPass {
		panic("soft: EndPass outside render pass")
	}
	cb.record(Cmd{Op: OpEndPass})
	cb.inPass = false
}

func (cb *cmdBuffer) SetPipeline(pl driver.Pipeline) {
	cb.record(Cmd{Op: OpPipeline, Pipeline: pl})
}

func (cb *cmdBuffer) SetViewport(vp []driver.Viewport) {
	cb.record(Cmd{Op: OpViewport, Viewports: append([]driver.Viewport(nil), vp...)})
}

func (cb *cmdBuffer) SetScissor(sciss []driver.Scissor) {
	cb.record(Cmd{Op: OpScissor, Scissors: append([]driver.Scissor(nil), sciss...)})
}

func (cb *cmdBuffer) SetVertexBuf(start int, buf []driver.Buffer, off []int64) {
	cb.record(Cmd{
		Op:    OpVertexBuf,
		Start: start,
		Bufs:  append([]driver.Buffer(nil), buf...),
		Offs:  append([]int64(nil), off...),
	})
}

func (cb *cmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	cb.record(Cmd{Op: OpIndexBuf, IndexFmt: format, Bufs: []driver.Buffer{buf}, Offs: []int64{off}})
}

func (cb *cmdBuffer) SetDescSet(set driver.DescSet, start int) {
	cb.record(Cmd{Op: OpDescSet, DescSet: set, Start: start})
}

func (cb *cmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	if !cb.inPass {
		panic("soft: Draw outside render pass")
	}
	cb.record(Cmd{Op: OpDraw, Args: [5]int{vertCount, instCount, baseVert, baseInst}})
}

func (cb *cmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	if !cb.inPass {
		panic("soft: DrawIndexed outside render pass")
	}
	cb.record(Cmd{Op: OpDrawIndexed, Args: [5]int{idxCount, instCount, baseIdx, vertOff, baseInst}})
}

func (cb *cmdBuffer) CopyBuffer(param *driver.BufferCopy) {
	p := *param
	cb.record(Cmd{Op: OpCopyBuffer, BufCopy: &p})
}

func (cb *cmdBuffer) CopyBufToImg(param *driver.BufImgCopy) {
	p := *param
	cb.record(Cmd{Op: OpCopyBufToImg, BufImg: &p})
}

func (cb *cmdBuffer) CopyImgToBuf(param *driver.BufImgCopy) {
	p := *param
	cb.record(Cmd{Op: OpCopyImgToBuf, BufImg: &p})
}

func (cb *cmdBuffer) Blit(param *driver.ImageBlit) {
	p := *param
	cb.record(Cmd{Op: OpBlit, ImgBlit: &p})
}

func (cb *cmdBuffer) Fill(buf driver.Buffer, off int64, value byte, size int64) {
	if off&3 != 0 || size&3 != 0 {
		panic("soft: misaligned Fill")
	}
	cb.record(Cmd{Op: OpFill, FillBuf: buf, FillOff: off, FillVal: value, FillSize: size})
}

// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"testing"

	vulkan "github.com/goki/vulkan"

	"github.com/gviegas/rgraph/driver"
)

func TestStages(t *testing.T) {
	for _, x := range [...]struct {
		s    driver.Sync
		src  bool
		want vulkan.PipelineStageFlagBits
	}{
		{driver.SNone, true, vulkan.PipelineStageTopOfPipeBit},
		{driver.SNone, false, vulkan.PipelineStageBottomOfPipeBit},
		{driver.SAll, false, vulkan.PipelineStageAllCommandsBit},
		{driver.SAll | driver.SCopy, true, vulkan.PipelineStageAllCommandsBit},
		{driver.SCopy, true, vulkan.PipelineStageTransferBit},
		{driver.SVertexInput | driver.SVertexShading, false, vulkan.PipelineStageVertexInputBit | vulkan.PipelineStageVertexShaderBit},
		{driver.SColorOutput, true, vulkan.PipelineStageColorAttachmentOutputBit},
		{driver.SDSOutput, false, vulkan.PipelineStageEarlyFragmentTestsBit | vulkan.PipelineStageLateFragmentTestsBit},
	} {
		if f := Stages(x.s, x.src); f != vulkan.PipelineStageFlags(x.want) {
			t.Fatalf("Stages(%#x, %t):\nhave %#x\nwant %#x", x.s, x.src, f, x.want)
		}
	}
}

func TestAccessFlags(t *testing.T) {
	if f := AccessFlags(driver.ANone); f != 0 {
		t.Fatalf("AccessFlags(ANone):\nhave %#x\nwant 0", f)
	}
	a := driver.ACopyWrite | driver.AShaderRead | driver.AConstRead
	want := vulkan.AccessFlags(vulkan.AccessTransferWriteBit | vulkan.AccessShaderReadBit | vulkan.AccessUniformReadBit)
	if f := AccessFlags(a); f != want {
		t.Fatalf("AccessFlags(%#x):\nhave %#x\nwant %#x", a, f, want)
	}
}

func TestImageLayout(t *testing.T) {
	for _, x := range [...]struct {
		l    driver.Layout
		want vulkan.ImageLayout
	}{
		{driver.LUndefined, vulkan.ImageLayoutUndefined},
		{driver.LCommon, vulkan.ImageLayoutGeneral},
		{driver.LColorTarget, vulkan.ImageLayoutColorAttachmentOptimal},
		{driver.LDSTarget, vulkan.ImageLayoutDepthStencilAttachmentOptimal},
		{driver.LCopySrc, vulkan.ImageLayoutTransferSrcOptimal},
		{driver.LCopyDst, vulkan.ImageLayoutTransferDstOptimal},
		{driver.LShaderRead, vulkan.ImageLayoutShaderReadOnlyOptimal},
		{driver.LPresent, vulkan.ImageLayoutPresentSrc},
	} {
		if l := ImageLayout(x.l); l != x.want {
			t.Fatalf("ImageLayout(%d):\nhave %d\nwant %d", x.l, l, x.want)
		}
	}
}

func TestFamily(t *testing.T) {
	if q := Family(driver.QIgnored); q != vulkan.QueueFamilyIgnored {
		t.Fatalf("Family(QIgnored):\nhave %d\nwant %d", q, uint32(vulkan.QueueFamilyIgnored))
	}
	if q := Family(2); q != 2 {
		t.Fatalf("Family(2):\nhave %d\nwant 2", q)
	}
}

func TestImageBarriers(t *testing.T) {
	img := NewImage(vulkan.Image(vulkan.NullHandle), driver.D24unS8ui, driver.Dim3D{Width: 64, Height: 64}, 1, 1)
	// Release half of an ownership transfer.
	src, dst, imb := ImageBarriers([]driver.Transition{{
		Barrier: driver.Barrier{
			SyncBefore:   driver.SCopy,
			AccessBefore: driver.ACopyWrite,
		},
		LayoutBefore: driver.LCopyDst,
		LayoutAfter:  driver.LDSRead,
		QueueBefore:  1,
		QueueAfter:   0,
		Img:          img,
	}})
	if src != vulkan.PipelineStageFlags(vulkan.PipelineStageTransferBit) {
		t.Fatalf("ImageBarriers: src:\nhave %#x\nwant TRANSFER", src)
	}
	if dst != vulkan.PipelineStageFlags(vulkan.PipelineStageBottomOfPipeBit) {
		t.Fatalf("ImageBarriers: dst:\nhave %#x\nwant BOTTOM_OF_PIPE", dst)
	}
	b := imb[0]
	if b.SrcQueueFamilyIndex != 1 || b.DstQueueFamilyIndex != 0 {
		t.Fatalf("ImageBarriers: queue families:\nhave %d, %d\nwant 1, 0", b.SrcQueueFamilyIndex, b.DstQueueFamilyIndex)
	}
	if b.DstAccessMask != 0 {
		t.Fatalf("ImageBarriers: DstAccessMask:\nhave %#x\nwant 0", b.DstAccessMask)
	}
	if b.OldLayout != vulkan.ImageLayoutTransferDstOptimal || b.NewLayout != vulkan.ImageLayoutDepthStencilReadOnlyOptimal {
		t.Fatalf("ImageBarriers: layouts:\nhave %d, %d", b.OldLayout, b.NewLayout)
	}
	wantAsp := vulkan.ImageAspectFlags(vulkan.ImageAspectDepthBit | vulkan.ImageAspectStencilBit)
	if r := b.SubresourceRange; r.AspectMask != wantAsp || r.LayerCount != remaining || r.LevelCount != remaining {
		t.Fatalf("ImageBarriers: SubresourceRange:\nhave %+v", r)
	}

	// Same family: no ownership transfer.
	_, _, imb = ImageBarriers([]driver.Transition{{QueueBefore: 0, QueueAfter: 0, Img: img, Layers: 1, Levels: 1}})
	if b := imb[0]; b.SrcQueueFamilyIndex != vulkan.QueueFamilyIgnored || b.DstQueueFamilyIndex != vulkan.QueueFamilyIgnored {
		t.Fatalf("ImageBarriers: same family:\nhave %d, %d\nwant ignored", b.SrcQueueFamilyIndex, b.DstQueueFamilyIndex)
	}
	if r := imb[0].SubresourceRange; r.LayerCount != 1 || r.LevelCount != 1 {
		t.Fatalf("ImageBarriers: SubresourceRange:\nhave %+v", r)
	}
}

func TestBufferBarriers(t *testing.T) {
	buf := NewBuffer(vulkan.Buffer(vulkan.NullHandle), 1024, nil)
	src, dst, bmb := BufferBarriers([]driver.BufBarrier{
		{
			Barrier: driver.Barrier{
				SyncAfter:   driver.SVertexInput,
				AccessAfter: driver.AVertexBufRead,
			},
			QueueBefore: 1,
			QueueAfter:  0,
			Buf:         buf,
		},
		{
			Barrier: driver.Barrier{
				SyncBefore:   driver.SCopy,
				SyncAfter:    driver.SVertexShading,
				AccessBefore: driver.ACopyWrite,
				AccessAfter:  driver.AConstRead,
			},
			QueueBefore: driver.QIgnored,
			QueueAfter:  driver.QIgnored,
			Buf:         buf,
			Off:         256,
			Size:        256,
		},
	})
	if src != vulkan.PipelineStageFlags(vulkan.PipelineStageTransferBit) {
		t.Fatalf("BufferBarriers: src:\nhave %#x\nwant TRANSFER", src)
	}
	wantDst := vulkan.PipelineStageFlags(vulkan.PipelineStageVertexInputBit | vulkan.PipelineStageVertexShaderBit)
	if dst != wantDst {
		t.Fatalf("BufferBarriers: dst:\nhave %#x\nwant %#x", dst, wantDst)
	}
	if bmb[0].Size != vulkan.DeviceSize(vulkan.WholeSize) || bmb[0].SrcQueueFamilyIndex != 1 {
		t.Fatalf("BufferBarriers: acquire:\nhave %+v", bmb[0])
	}
	if bmb[1].Offset != 256 || bmb[1].Size != 256 || bmb[1].SrcQueueFamilyIndex != vulkan.QueueFamilyIgnored {
		t.Fatalf("BufferBarriers: range:\nhave %+v", bmb[1])
	}
}

func TestRecorder(t *testing.T) {
	type call struct {
		src, dst    vulkan.PipelineStageFlags
		nm, nb, nim uint32
	}
	var calls []call
	cmdPipelineBarrier = func(_ vulkan.CommandBuffer, src, dst vulkan.PipelineStageFlags, _ vulkan.DependencyFlags, nm uint32, _ []vulkan.MemoryBarrier, nb uint32, _ []vulkan.BufferMemoryBarrier, nim uint32, _ []vulkan.ImageMemoryBarrier) {
		calls = append(calls, call{src, dst, nm, nb, nim})
	}
	defer func() { cmdPipelineBarrier = vulkan.CmdPipelineBarrier }()

	var r driver.Syncer = Recorder{}
	r.Barrier(nil)
	r.Transition(nil)
	r.BufBarrier(nil)
	if len(calls) != 0 {
		t.Fatalf("Recorder: empty batches:\nhave %d calls\nwant 0", len(calls))
	}
	r.Barrier([]driver.Barrier{{SyncBefore: driver.SCopy, SyncAfter: driver.SAll}})
	r.Transition(make([]driver.Transition, 3))
	r.BufBarrier(make([]driver.BufBarrier, 2))
	want := []call{
		{vulkan.PipelineStageFlags(vulkan.PipelineStageTransferBit), vulkan.PipelineStageFlags(vulkan.PipelineStageAllCommandsBit), 1, 0, 0},
		{vulkan.PipelineStageFlags(vulkan.PipelineStageTopOfPipeBit), vulkan.PipelineStageFlags(vulkan.PipelineStageBottomOfPipeBit), 0, 0, 3},
		{vulkan.PipelineStageFlags(vulkan.PipelineStageTopOfPipeBit), vulkan.PipelineStageFlags(vulkan.PipelineStageBottomOfPipeBit), 0, 2, 0},
	}
	if len(calls) != len(want) {
		t.Fatalf("Recorder:\nhave %d calls\nwant %d", len(calls), len(want))
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("Recorder: call %d:\nhave %+v\nwant %+v", i, calls[i], want[i])
		}
	}
}

func TestSubmitInfo(t *testing.T) {
	wk := &driver.WorkItem{
		Wait:     []driver.Semaphore{&Semaphore{}, &Semaphore{}},
		WaitSync: []driver.Sync{driver.SAll, driver.SColorOutput},
		Signal:   []driver.Semaphore{&Semaphore{}},
	}
	info := WorkSubmitInfo(wk, make([]vulkan.CommandBuffer, 1))
	if info.SType != vulkan.StructureTypeSubmitInfo {
		t.Fatalf("SubmitInfo: SType:\nhave %d\nwant %d", info.SType, vulkan.StructureTypeSubmitInfo)
	}
	if info.CommandBufferCount != 1 || info.WaitSemaphoreCount != 2 || info.SignalSemaphoreCount != 1 {
		t.Fatalf("SubmitInfo: counts:\nhave %d, %d, %d\nwant 1, 2, 1", info.CommandBufferCount, info.WaitSemaphoreCount, info.SignalSemaphoreCount)
	}
	if m := info.PWaitDstStageMask[0]; m != vulkan.PipelineStageFlags(vulkan.PipelineStageAllCommandsBit) {
		t.Fatalf("SubmitInfo: PWaitDstStageMask[0]:\nhave %#x\nwant ALL_COMMANDS", m)
	}
	if m := info.PWaitDstStageMask[1]; m != vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit) {
		t.Fatalf("SubmitInfo: PWaitDstStageMask[1]:\nhave %#x\nwant COLOR_ATTACHMENT_OUTPUT", m)
	}
}

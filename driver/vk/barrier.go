// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vulkan "github.com/goki/vulkan"

	"github.com/gviegas/rgraph/driver"
)

// remaining stands for VK_REMAINING_MIP_LEVELS and
// VK_REMAINING_ARRAY_LAYERS.
const remaining = ^uint32(0)

// cmdPipelineBarrier is replaced in tests.
var cmdPipelineBarrier = vulkan.CmdPipelineBarrier

// Recorder records synchronization commands into a
// VkCommandBuffer.
// It implements driver.Syncer.
type Recorder struct {
	CB vulkan.CommandBuffer
}

// Barrier records a single vkCmdPipelineBarrier with
// global memory barriers.
func (r Recorder) Barrier(b []driver.Barrier) {
	if len(b) == 0 {
		return
	}
	src, dst, mb := MemoryBarriers(b)
	cmdPipelineBarrier(r.CB, src, dst, 0, uint32(len(mb)), mb, 0, nil, 0, nil)
}

// Transition records a single vkCmdPipelineBarrier with
// image memory barriers.
func (r Recorder) Transition(t []driver.Transition) {
	if len(t) == 0 {
		return
	}
	src, dst, imb := ImageBarriers(t)
	cmdPipelineBarrier(r.CB, src, dst, 0, 0, nil, 0, nil, uint32(len(imb)), imb)
}

// BufBarrier records a single vkCmdPipelineBarrier with
// buffer memory barriers.
func (r Recorder) BufBarrier(b []driver.BufBarrier) {
	if len(b) == 0 {
		return
	}
	src, dst, bmb := BufferBarriers(b)
	cmdPipelineBarrier(r.CB, src, dst, 0, 0, nil, uint32(len(bmb)), bmb, 0, nil)
}

// stages accumulates the stage masks of a batch.
type stages struct {
	src, dst driver.Sync
}

func (s *stages) add(b *driver.Barrier) {
	s.src |= b.SyncBefore
	s.dst |= b.SyncAfter
}

func (s *stages) flags() (src, dst vulkan.PipelineStageFlags) {
	return Stages(s.src, true), Stages(s.dst, false)
}

// MemoryBarriers converts a batch of global barriers.
// The stage masks are the union of the batch's scopes.
func MemoryBarriers(b []driver.Barrier) (src, dst vulkan.PipelineStageFlags, mb []vulkan.MemoryBarrier) {
	var s stages
	mb = make([]vulkan.MemoryBarrier, len(b))
	for i := range b {
		s.add(&b[i])
		mb[i] = vulkan.MemoryBarrier{
			SType:         vulkan.StructureTypeMemoryBarrier,
			SrcAccessMask: AccessFlags(b[i].AccessBefore),
			DstAccessMask: AccessFlags(b[i].AccessAfter),
		}
	}
	src, dst = s.flags()
	return
}

// ImageBarriers converts a batch of image barriers.
// Queue family indices are set only for ownership
// transfers.
func ImageBarriers(t []driver.Transition) (src, dst vulkan.PipelineStageFlags, imb []vulkan.ImageMemoryBarrier) {
	var s stages
	imb = make([]vulkan.ImageMemoryBarrier, len(t))
	for i := range t {
		x := &t[i]
		s.add(&x.Barrier)
		qb, qa := families(x.QueueBefore, x.QueueAfter)
		layers, levels := remaining, remaining
		if x.Layers > 0 {
			layers = uint32(x.Layers)
		}
		if x.Levels > 0 {
			levels = uint32(x.Levels)
		}
		asp := vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit)
		if x.Img != nil {
			asp = aspect(x.Img.Format())
		}
		imb[i] = vulkan.ImageMemoryBarrier{
			SType:               vulkan.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       AccessFlags(x.AccessBefore),
			DstAccessMask:       AccessFlags(x.AccessAfter),
			OldLayout:           ImageLayout(x.LayoutBefore),
			NewLayout:           ImageLayout(x.LayoutAfter),
			SrcQueueFamilyIndex: qb,
			DstQueueFamilyIndex: qa,
			Image:               imageHandle(x.Img),
			SubresourceRange: vulkan.ImageSubresourceRange{
				AspectMask:     asp,
				BaseMipLevel:   uint32(x.Level),
				LevelCount:     levels,
				BaseArrayLayer: uint32(x.Layer),
				LayerCount:     layers,
			},
		}
	}
	src, dst = s.flags()
	return
}

// BufferBarriers converts a batch of buffer barriers.
// A zero size covers the rest of the buffer.
func BufferBarriers(b []driver.BufBarrier) (src, dst vulkan.PipelineStageFlags, bmb []vulkan.BufferMemoryBarrier) {
	var s stages
	bmb = make([]vulkan.BufferMemoryBarrier, len(b))
	for i := range b {
		x := &b[i]
		s.add(&x.Barrier)
		qb, qa := families(x.QueueBefore, x.QueueAfter)
		size := vulkan.DeviceSize(vulkan.WholeSize)
		if x.Size > 0 {
			size = vulkan.DeviceSize(x.Size)
		}
		bmb[i] = vulkan.BufferMemoryBarrier{
			SType:               vulkan.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       AccessFlags(x.AccessBefore),
			DstAccessMask:       AccessFlags(x.AccessAfter),
			SrcQueueFamilyIndex: qb,
			DstQueueFamilyIndex: qa,
			Buffer:              bufferHandle(x.Buf),
			Offset:              vulkan.DeviceSize(x.Off),
			Size:                size,
		}
	}
	src, dst = s.flags()
	return
}

// families returns the queue family indices of a barrier.
// Both are ignored unless the barrier transfers ownership.
func families(before, after driver.Queue) (uint32, uint32) {
	if before == after || before == driver.QIgnored || after == driver.QIgnored {
		return vulkan.QueueFamilyIgnored, vulkan.QueueFamilyIgnored
	}
	return Family(before), Family(after)
}

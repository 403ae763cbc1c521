// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vulkan "github.com/goki/vulkan"

	"github.com/gviegas/rgraph/driver"
)

// SubmitInfo builds a VkSubmitInfo that executes cbs after
// waiting on wait, at the stages given by the matching
// element of waitSync, and then signals signal.
// Semaphores must be of type *Semaphore.
func SubmitInfo(cbs []vulkan.CommandBuffer, wait []driver.Semaphore, waitSync []driver.Sync, signal []driver.Semaphore) vulkan.SubmitInfo {
	if len(wait) != len(waitSync) {
		panic("wait/waitSync length mismatch")
	}
	info := vulkan.SubmitInfo{
		SType:              vulkan.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(cbs)),
		PCommandBuffers:    cbs,
	}
	if n := len(wait); n > 0 {
		info.WaitSemaphoreCount = uint32(n)
		info.PWaitSemaphores = make([]vulkan.Semaphore, n)
		info.PWaitDstStageMask = make([]vulkan.PipelineStageFlags, n)
		for i := range wait {
			info.PWaitSemaphores[i] = semaphoreHandle(wait[i])
			info.PWaitDstStageMask[i] = Stages(waitSync[i], false)
		}
	}
	if n := len(signal); n > 0 {
		info.SignalSemaphoreCount = uint32(n)
		info.PSignalSemaphores = make([]vulkan.Semaphore, n)
		for i := range signal {
			info.PSignalSemaphores[i] = semaphoreHandle(signal[i])
		}
	}
	return info
}

// WorkSubmitInfo builds a VkSubmitInfo from the
// synchronization parameters of wk.
// cbs are the Vulkan command buffers that wk.Work was
// recorded into.
func WorkSubmitInfo(wk *driver.WorkItem, cbs []vulkan.CommandBuffer) vulkan.SubmitInfo {
	return SubmitInfo(cbs, wk.Wait, wk.WaitSync, wk.Signal)
}

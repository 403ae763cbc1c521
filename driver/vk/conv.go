// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package vk translates driver synchronization and
// submission parameters to the Vulkan API.
//
// It does not create devices. Resources are wrapped from
// handles owned by the caller (see Image, Buffer and
// Semaphore), and barriers are recorded into an existing
// VkCommandBuffer through Recorder.
package vk

import (
	vulkan "github.com/goki/vulkan"

	"github.com/gviegas/rgraph/driver"
)

// Stages converts a driver.Sync to pipeline stage flags.
// An empty scope is converted to TOP_OF_PIPE when src is
// true and to BOTTOM_OF_PIPE otherwise.
func Stages(s driver.Sync, src bool) vulkan.PipelineStageFlags {
	if s == driver.SNone {
		if src {
			return vulkan.PipelineStageFlags(vulkan.PipelineStageTopOfPipeBit)
		}
		return vulkan.PipelineStageFlags(vulkan.PipelineStageBottomOfPipeBit)
	}
	if s&driver.SAll != 0 {
		return vulkan.PipelineStageFlags(vulkan.PipelineStageAllCommandsBit)
	}
	var f vulkan.PipelineStageFlagBits
	if s&driver.SVertexInput != 0 {
		f |= vulkan.PipelineStageVertexInputBit
	}
	if s&driver.SVertexShading != 0 {
		f |= vulkan.PipelineStageVertexShaderBit
	}
	if s&driver.SFragmentShading != 0 {
		f |= vulkan.PipelineStageFragmentShaderBit
	}
	if s&driver.SComputeShading != 0 {
		f |= vulkan.PipelineStageComputeShaderBit
	}
	if s&(driver.SColorOutput|driver.SResolve) != 0 {
		f |= vulkan.PipelineStageColorAttachmentOutputBit
	}
	if s&driver.SDSOutput != 0 {
		f |= vulkan.PipelineStageEarlyFragmentTestsBit | vulkan.PipelineStageLateFragmentTestsBit
	}
	if s&driver.SDraw != 0 {
		f |= vulkan.PipelineStageAllGraphicsBit
	}
	if s&driver.SCopy != 0 {
		f |= vulkan.PipelineStageTransferBit
	}
	return vulkan.PipelineStageFlags(f)
}

// AccessFlags converts a driver.Access to access flags.
func AccessFlags(a driver.Access) vulkan.AccessFlags {
	var f vulkan.AccessFlagBits
	for _, x := range [...]struct {
		a driver.Access
		f vulkan.AccessFlagBits
	}{
		{driver.AVertexBufRead, vulkan.AccessVertexAttributeReadBit},
		{driver.AIndexBufRead, vulkan.AccessIndexReadBit},
		{driver.AConstRead, vulkan.AccessUniformReadBit},
		{driver.AColorRead, vulkan.AccessColorAttachmentReadBit},
		{driver.AColorWrite, vulkan.AccessColorAttachmentWriteBit},
		{driver.ADSRead, vulkan.AccessDepthStencilAttachmentReadBit},
		{driver.ADSWrite, vulkan.AccessDepthStencilAttachmentWriteBit},
		{driver.AResolveRead, vulkan.AccessColorAttachmentReadBit},
		{driver.AResolveWrite, vulkan.AccessColorAttachmentWriteBit},
		{driver.ACopyRead, vulkan.AccessTransferReadBit},
		{driver.ACopyWrite, vulkan.AccessTransferWriteBit},
		{driver.AShaderRead, vulkan.AccessShaderReadBit},
		{driver.AShaderWrite, vulkan.AccessShaderWriteBit},
		{driver.AAnyRead, vulkan.AccessMemoryReadBit},
		{driver.AAnyWrite, vulkan.AccessMemoryWriteBit},
	} {
		if a&x.a != 0 {
			f |= x.f
		}
	}
	return vulkan.AccessFlags(f)
}

// ImageLayout converts a driver.Layout to an image layout.
func ImageLayout(l driver.Layout) vulkan.ImageLayout {
	switch l {
	case driver.LUndefined:
		return vulkan.ImageLayoutUndefined
	case driver.LCommon:
		return vulkan.ImageLayoutGeneral
	case driver.LColorTarget, driver.LResolveSrc, driver.LResolveDst:
		return vulkan.ImageLayoutColorAttachmentOptimal
	case driver.LDSTarget:
		return vulkan.ImageLayoutDepthStencilAttachmentOptimal
	case driver.LDSRead:
		return vulkan.ImageLayoutDepthStencilReadOnlyOptimal
	case driver.LCopySrc:
		return vulkan.ImageLayoutTransferSrcOptimal
	case driver.LCopyDst:
		return vulkan.ImageLayoutTransferDstOptimal
	case driver.LShaderRead:
		return vulkan.ImageLayoutShaderReadOnlyOptimal
	case driver.LPresent:
		return vulkan.ImageLayoutPresentSrc
	}
	panic("undefined layout")
}

// Family converts a driver.Queue to a queue family index.
func Family(q driver.Queue) uint32 {
	if q == driver.QIgnored {
		return vulkan.QueueFamilyIgnored
	}
	return uint32(q)
}

// aspect returns the aspect flags of a pixel format.
func aspect(pf driver.PixelFmt) vulkan.ImageAspectFlags {
	switch pf {
	case driver.D16un, driver.D32f:
		return vulkan.ImageAspectFlags(vulkan.ImageAspectDepthBit)
	case driver.D24unS8ui:
		return vulkan.ImageAspectFlags(vulkan.ImageAspectDepthBit | vulkan.ImageAspectStencilBit)
	}
	return vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit)
}

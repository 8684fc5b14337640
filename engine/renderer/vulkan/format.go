package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
)

// Every depth target is stored as D32, whichever precision was asked for.
const depthFormat = vk.FormatD32Sfloat

func textureFormat(pf metadata.PixelFormat, srgb, depth bool) (vk.Format, error) {
	if depth {
		return depthFormat, nil
	}
	switch pf.Channel {
	case metadata.ChannelFormatByte:
		switch pf.NumChannels {
		case 1:
			return vk.FormatR8Unorm, nil
		case 2:
			return vk.FormatR8g8Unorm, nil
		case 4:
			if srgb {
				return vk.FormatR8g8b8a8Srgb, nil
			}
			return vk.FormatR8g8b8a8Unorm, nil
		}
	case metadata.ChannelFormatFloat32:
		switch pf.NumChannels {
		case 1:
			return vk.FormatR32Sfloat, nil
		case 2:
			return vk.FormatR32g32Sfloat, nil
		case 3:
			return vk.FormatR32g32b32Sfloat, nil
		case 4:
			return vk.FormatR32g32b32a32Sfloat, nil
		}
	}
	return vk.FormatUndefined, fmt.Errorf("pixel format %d channels of kind %d: %w", pf.NumChannels, pf.Channel, core.ErrResourceCreation)
}

func bufferFormat(f metadata.BufferFormat) vk.Format {
	switch f {
	case metadata.BufferFormatSRGBA8:
		return vk.FormatR8g8b8a8Srgb
	case metadata.BufferFormatRGBA32:
		return vk.FormatR32g32b32a32Sfloat
	case metadata.BufferFormatDepth24, metadata.BufferFormatDepth32:
		return depthFormat
	}
	return vk.FormatR8g8b8a8Unorm
}

func isDepthFormat(f vk.Format) bool {
	switch f {
	case vk.FormatD32Sfloat, vk.FormatD32SfloatS8Uint, vk.FormatD24UnormS8Uint, vk.FormatD16Unorm:
		return true
	}
	return false
}

func sampleCount(samples uint32) vk.SampleCountFlagBits {
	switch {
	case samples >= 8:
		return vk.SampleCount8Bit
	case samples >= 4:
		return vk.SampleCount4Bit
	case samples >= 2:
		return vk.SampleCount2Bit
	}
	return vk.SampleCount1Bit
}

func vertexAttributeFormat(f metadata.VertexFormat) vk.Format {
	switch f {
	case metadata.VertexFormatVec2:
		return vk.FormatR32g32Sfloat
	case metadata.VertexFormatVec3:
		return vk.FormatR32g32b32Sfloat
	}
	return vk.FormatR32g32b32a32Sfloat
}

func samplerFilter(f metadata.SamplerFilter) vk.Filter {
	if f == metadata.SamplerFilterLinear {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

func samplerAddressMode(w metadata.SamplerWrap) vk.SamplerAddressMode {
	if w == metadata.SamplerWrapClamp {
		return vk.SamplerAddressModeClampToEdge
	}
	return vk.SamplerAddressModeRepeat
}

func imageUsage(depth bool) vk.ImageUsageFlags {
	if depth {
		return vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit | vk.ImageUsageSampledBit | vk.ImageUsageTransferSrcBit)
	}
	return vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageSampledBit |
		vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit)
}

func aspectMask(depth bool) vk.ImageAspectFlags {
	if depth {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

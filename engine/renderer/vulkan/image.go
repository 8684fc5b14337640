package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
)

/**
 * @brief A device local image, its memory and a 2d view covering every mip level.
 * Images live in the general layout so they can be attached and sampled in the
 * same frame.
 */
type VulkanImage struct {
	Handle  vk.Image
	Memory  vk.DeviceMemory
	View    vk.ImageView
	Width   uint32
	Height  uint32
	Format  vk.Format
	Samples vk.SampleCountFlagBits
	Depth   bool
	Sampler metadata.TextureSampler
}

func NewImage(context *VulkanContext, desc metadata.TextureDescriptor) (*VulkanImage, error) {
	format, err := textureFormat(desc.PixelFormat, desc.SRGB, desc.Depth)
	if err != nil {
		return nil, err
	}
	mipLevels := max(desc.MipLevels, 1)
	img := &VulkanImage{
		Width:   desc.Size.X,
		Height:  desc.Size.Y,
		Format:  format,
		Samples: sampleCount(desc.Samples),
		Depth:   desc.Depth,
		Sampler: desc.Sampler,
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Size.X,
			Height: desc.Size.Y,
			Depth:  1,
		},
		MipLevels:     mipLevels,
		ArrayLayers:   1,
		Samples:       img.Samples,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         imageUsage(desc.Depth),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	device := context.Device.LogicalDevice
	var handle vk.Image
	if err := resultError("vkCreateImage", vk.CreateImage(device, &imageCreateInfo, context.Allocator, &handle)); err != nil {
		return nil, err
	}
	img.Handle = handle

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, handle, &reqs)
	memory, err := context.allocateMemory(reqs, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		img.Destroy(context)
		return nil, err
	}
	img.Memory = memory
	if err := resultError("vkBindImageMemory", vk.BindImageMemory(device, handle, memory, 0)); err != nil {
		img.Destroy(context)
		return nil, err
	}

	var view vk.ImageView
	res := vk.CreateImageView(device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    handle,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspectMask(desc.Depth),
			LevelCount: mipLevels,
			LayerCount: 1,
		},
	}, context.Allocator, &view)
	if err := resultError("vkCreateImageView", res); err != nil {
		img.Destroy(context)
		return nil, err
	}
	img.View = view

	if err := img.transitionToGeneral(context, mipLevels); err != nil {
		img.Destroy(context)
		return nil, err
	}
	return img, nil
}

func (img *VulkanImage) transitionToGeneral(context *VulkanContext, mipLevels uint32) error {
	cb, err := AllocateAndBeginSingleUse(context, context.Device.GraphicsCommandPool)
	if err != nil {
		return err
	}
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       0,
		DstAccessMask:       vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
		OldLayout:           vk.ImageLayoutUndefined,
		NewLayout:           vk.ImageLayoutGeneral,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspectMask(img.Depth),
			LevelCount: mipLevels,
			LayerCount: 1,
		},
	}
	vk.CmdPipelineBarrier(cb.Handle,
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	return cb.EndSingleUse(context, context.Device.GraphicsCommandPool, context.Device.GraphicsQueue)
}

func (img *VulkanImage) Destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if img.View != vk.NullImageView {
		vk.DestroyImageView(device, img.View, context.Allocator)
		img.View = vk.NullImageView
	}
	if img.Handle != vk.NullImage {
		vk.DestroyImage(device, img.Handle, context.Allocator)
		img.Handle = vk.NullImage
	}
	if img.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, img.Memory, context.Allocator)
		img.Memory = vk.NullDeviceMemory
	}
}

func NewSampler(context *VulkanContext, desc metadata.SamplerDescriptor) (vk.Sampler, error) {
	anisotropy := vk.Bool32(vk.False)
	maxAnisotropy := float32(1)
	if context.Device.Features.SamplerAnisotropy == vk.True {
		anisotropy = vk.True
		context.Device.Properties.Limits.Deref()
		maxAnisotropy = context.Device.Properties.Limits.MaxSamplerAnisotropy
	}
	var sampler vk.Sampler
	res := vk.CreateSampler(context.Device.LogicalDevice, &vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               samplerFilter(desc.Filter),
		MinFilter:               samplerFilter(desc.Filter),
		AddressModeU:            samplerAddressMode(desc.WrapS),
		AddressModeV:            samplerAddressMode(desc.WrapT),
		AddressModeW:            samplerAddressMode(desc.WrapT),
		AnisotropyEnable:        anisotropy,
		MaxAnisotropy:           maxAnisotropy,
		BorderColor:             vk.BorderColorFloatOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		MaxLod:                  1000,
	}, context.Allocator, &sampler)
	if err := resultError("vkCreateSampler", res); err != nil {
		return vk.NullSampler, err
	}
	return sampler, nil
}

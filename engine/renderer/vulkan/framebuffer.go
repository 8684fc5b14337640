package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
)

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Width       uint32
	Height      uint32
	Attachments []vk.ImageView
	// NumColor is the number of leading color attachments.
	NumColor   int
	HasDepth   bool
	Renderpass *VulkanRenderpass
}

// framebufferKey derives the render pass layout from the attached images.
// Color attachments come first, the depth attachment last.
func framebufferKey(images []*VulkanImage) (renderPassKey, error) {
	var key renderPassKey
	for i, img := range images {
		if i == 0 {
			key.samples = img.Samples
		} else if img.Samples != key.samples {
			return key, fmt.Errorf("attachments with %d and %d samples: %w", key.samples, img.Samples, core.ErrResourceCreation)
		}
		if img.Depth {
			if key.hasDepth {
				return key, fmt.Errorf("two depth attachments: %w", core.ErrResourceCreation)
			}
			key.hasDepth = true
			key.depth = img.Format
			continue
		}
		if key.numColors == maxColorAttachments {
			return key, fmt.Errorf("more than %d color attachments: %w", maxColorAttachments, core.ErrResourceCreation)
		}
		key.colors[key.numColors] = img.Format
		key.numColors++
	}
	return key, nil
}

func FramebufferCreate(context *VulkanContext, passes *renderPassCache, desc metadata.FrameBufferDescriptor, images []*VulkanImage) (*VulkanFramebuffer, error) {
	key, err := framebufferKey(images)
	if err != nil {
		return nil, err
	}
	renderpass, err := passes.get(context, key)
	if err != nil {
		return nil, err
	}

	outFramebuffer := &VulkanFramebuffer{
		Width:      images[0].Width,
		Height:     images[0].Height,
		NumColor:   key.numColors,
		HasDepth:   key.hasDepth,
		Renderpass: renderpass,
	}
	var depthView vk.ImageView
	for _, img := range images {
		outFramebuffer.Width = min(outFramebuffer.Width, img.Width)
		outFramebuffer.Height = min(outFramebuffer.Height, img.Height)
		if img.Depth {
			depthView = img.View
			continue
		}
		outFramebuffer.Attachments = append(outFramebuffer.Attachments, img.View)
	}
	if key.hasDepth {
		outFramebuffer.Attachments = append(outFramebuffer.Attachments, depthView)
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(outFramebuffer.Attachments)),
		PAttachments:    outFramebuffer.Attachments,
		Width:           outFramebuffer.Width,
		Height:          outFramebuffer.Height,
		Layers:          1,
	}

	var pFramebuffer vk.Framebuffer
	if err := resultError("vkCreateFramebuffer "+desc.Name, vk.CreateFramebuffer(context.Device.LogicalDevice, &framebufferCreateInfo, context.Allocator, &pFramebuffer)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	outFramebuffer.Handle = pFramebuffer
	return outFramebuffer, nil
}

func (vfb *VulkanFramebuffer) Destroy(context *VulkanContext) {
	if vfb.Handle != vk.NullFramebuffer {
		vk.DestroyFramebuffer(context.Device.LogicalDevice, vfb.Handle, context.Allocator)
		vfb.Handle = vk.NullFramebuffer
	}
	vfb.Attachments = nil
	vfb.Renderpass = nil
}

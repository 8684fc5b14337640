package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/revolution/engine/core"
)

const maxColorAttachments = 8

// renderPassKey describes the attachments a render pass is compatible with.
type renderPassKey struct {
	colors    [maxColorAttachments]vk.Format
	numColors int
	depth     vk.Format
	hasDepth  bool
	samples   vk.SampleCountFlagBits
}

func (k renderPassKey) String() string {
	return fmt.Sprintf("%d color, depth %t, %d samples", k.numColors, k.hasDepth, k.samples)
}

/**
 * @brief A single subpass render pass over images kept in the general layout.
 * Attachments are loaded and stored so clears are explicit commands.
 */
type VulkanRenderpass struct {
	Handle vk.RenderPass
	Key    renderPassKey
}

func RenderpassCreate(context *VulkanContext, key renderPassKey) (*VulkanRenderpass, error) {
	core.Assert(key.numColors <= maxColorAttachments, "render pass with %d color attachments", key.numColors)

	attachmentDescriptions := make([]vk.AttachmentDescription, 0, key.numColors+1)
	colorReferences := make([]vk.AttachmentReference, 0, key.numColors)
	for i := 0; i < key.numColors; i++ {
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         key.colors[i],
			Samples:        key.samples,
			LoadOp:         vk.AttachmentLoadOpLoad,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutGeneral,
			FinalLayout:    vk.ImageLayoutGeneral,
		})
		colorReferences = append(colorReferences, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutGeneral,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorReferences)),
		PColorAttachments:    colorReferences,
	}

	if key.hasDepth {
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         key.depth,
			Samples:        key.samples,
			LoadOp:         vk.AttachmentLoadOpLoad,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutGeneral,
			FinalLayout:    vk.ImageLayoutGeneral,
		})
		depthReference := vk.AttachmentReference{
			Attachment: uint32(key.numColors),
			Layout:     vk.ImageLayoutGeneral,
		}
		subpass.PDepthStencilAttachment = &depthReference
	}

	dependency := externalDependency()

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var pRenderPass vk.RenderPass
	if err := resultError("vkCreateRenderPass", vk.CreateRenderPass(context.Device.LogicalDevice, &renderpassCreateInfo, context.Allocator, &pRenderPass)); err != nil {
		return nil, err
	}
	return &VulkanRenderpass{Handle: pRenderPass, Key: key}, nil
}

func (vr *VulkanRenderpass) RenderpassDestroy(context *VulkanContext) {
	if vr.Handle != vk.NullRenderPass {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Handle, context.Allocator)
		vr.Handle = vk.NullRenderPass
	}
}

func (vr *VulkanRenderpass) RenderpassBegin(commandBuffer *VulkanCommandBuffer, frameBuffer *VulkanFramebuffer) {
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: frameBuffer.Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: frameBuffer.Width, Height: frameBuffer.Height},
		},
	}
	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsInline)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (vr *VulkanRenderpass) RenderpassEnd(commandBuffer *VulkanCommandBuffer) {
	vk.CmdEndRenderPass(commandBuffer.Handle)
	commandBuffer.State = COMMAND_BUFFER_STATE_RECORDING
}

// renderPassCache creates one render pass per attachment layout.
type renderPassCache struct {
	passes map[renderPassKey]*VulkanRenderpass
}

func newRenderPassCache() *renderPassCache {
	return &renderPassCache{passes: make(map[renderPassKey]*VulkanRenderpass)}
}

func (c *renderPassCache) get(context *VulkanContext, key renderPassKey) (*VulkanRenderpass, error) {
	if rp, ok := c.passes[key]; ok {
		return rp, nil
	}
	rp, err := RenderpassCreate(context, key)
	if err != nil {
		return nil, err
	}
	core.LogDebug("render pass created for %s", key)
	c.passes[key] = rp
	return rp, nil
}

func (c *renderPassCache) destroy(context *VulkanContext) {
	for key, rp := range c.passes {
		rp.RenderpassDestroy(context)
		delete(c.passes, key)
	}
}

// externalDependency orders a render pass after everything earlier passes did
// to its attachments: attachment and transfer writes it may read, and shader
// reads of a cached texture it is about to render into.
func externalDependency() vk.SubpassDependency {
	return vk.SubpassDependency{
		SrcSubpass: vk.SubpassExternal,
		DstSubpass: 0,
		SrcStageMask: vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit | vk.PipelineStageColorAttachmentOutputBit |
			vk.PipelineStageLateFragmentTestsBit | vk.PipelineStageTransferBit),
		SrcAccessMask: vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessColorAttachmentWriteBit |
			vk.AccessDepthStencilAttachmentWriteBit | vk.AccessTransferWriteBit),
		DstStageMask: vk.PipelineStageFlags(vk.PipelineStageVertexInputBit | vk.PipelineStageFragmentShaderBit |
			vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessVertexAttributeReadBit | vk.AccessIndexReadBit |
			vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit |
			vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit),
	}
}

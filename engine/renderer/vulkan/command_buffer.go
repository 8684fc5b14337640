package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState

	device      *Device
	frameBuffer *VulkanFramebuffer
	pipeline    *VulkanPipeline
}

func NewVulkanCommandBuffer(context *VulkanContext, pool vk.CommandPool, isPrimary bool) (*VulkanCommandBuffer, error) {
	vCommandBuffer := &VulkanCommandBuffer{
		State: COMMAND_BUFFER_STATE_NOT_ALLOCATED,
	}

	level := vk.CommandBufferLevelPrimary
	if !isPrimary {
		level = vk.CommandBufferLevelSecondary
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              level,
	}

	handles := make([]vk.CommandBuffer, 1)
	if err := resultError("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	vCommandBuffer.Handle = handles[0]
	vCommandBuffer.State = COMMAND_BUFFER_STATE_READY
	return vCommandBuffer, nil
}

func (v *VulkanCommandBuffer) Free(context *VulkanContext, pool vk.CommandPool) {
	if v.Handle != nil {
		vk.FreeCommandBuffers(context.Device.LogicalDevice, pool, 1, []vk.CommandBuffer{v.Handle})
	}
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Begin(isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if isSingleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if isSimultaneousUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if err := resultError("vkBeginCommandBuffer", vk.BeginCommandBuffer(v.Handle, beginInfo)); err != nil {
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

// End closes an open render pass and finishes recording.
func (v *VulkanCommandBuffer) End() error {
	if v.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		v.frameBuffer.Renderpass.RenderpassEnd(v)
		v.frameBuffer = nil
	}
	if err := resultError("vkEndCommandBuffer", vk.EndCommandBuffer(v.Handle)); err != nil {
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (v *VulkanCommandBuffer) Reset() {
	v.State = COMMAND_BUFFER_STATE_READY
}

/**
 * Allocates and begins recording to out_command_buffer.
 */
func AllocateAndBeginSingleUse(context *VulkanContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(context, pool, true)
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(true, false, false); err != nil {
		cb.Free(context, pool)
		return nil, err
	}
	return cb, nil
}

/**
 * Ends recording, submits to and waits for queue operation and frees the provided command buffer.
 */
func (v *VulkanCommandBuffer) EndSingleUse(context *VulkanContext, pool vk.CommandPool, queue vk.Queue) error {
	defer v.Free(context, pool)
	if err := v.End(); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}
	if err := resultError("vkQueueSubmit", vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence)); err != nil {
		core.LogError(err.Error())
		return err
	}
	return resultError("vkQueueWaitIdle", vk.QueueWaitIdle(queue))
}

func (v *VulkanCommandBuffer) BindFrameBuffer(fb metadata.FrameBuffer) {
	target := v.device.frameBuffers.Ptr(fb.ID)
	core.Assert(target != nil, "bind of unknown framebuffer %d", fb.ID)
	if v.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		v.frameBuffer.Renderpass.RenderpassEnd(v)
	}
	v.frameBuffer = *target
	v.frameBuffer.Renderpass.RenderpassBegin(v, v.frameBuffer)
}

func (v *VulkanCommandBuffer) SetViewport(pos, size math.Vec2u) {
	vk.CmdSetViewport(v.Handle, 0, 1, []vk.Viewport{{
		X:        float32(pos.X),
		Y:        float32(pos.Y),
		Width:    float32(size.X),
		Height:   float32(size.Y),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}})
}

func (v *VulkanCommandBuffer) SetScissor(pos, size math.Vec2u) {
	vk.CmdSetScissor(v.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: int32(pos.X), Y: int32(pos.Y)},
		Extent: vk.Extent2D{Width: size.X, Height: size.Y},
	}})
}

func (v *VulkanCommandBuffer) clearRect() []vk.ClearRect {
	return []vk.ClearRect{{
		Rect: vk.Rect2D{
			Extent: vk.Extent2D{Width: v.frameBuffer.Width, Height: v.frameBuffer.Height},
		},
		LayerCount: 1,
	}}
}

func (v *VulkanCommandBuffer) ClearColor(color math.Vec4) {
	core.Assert(v.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS, "clear without a bound framebuffer")
	if v.frameBuffer.NumColor == 0 {
		return
	}
	attachments := make([]vk.ClearAttachment, v.frameBuffer.NumColor)
	for i := range attachments {
		attachments[i] = vk.ClearAttachment{
			AspectMask:      vk.ImageAspectFlags(vk.ImageAspectColorBit),
			ColorAttachment: uint32(i),
			ClearValue:      vk.NewClearValue([]float32{color.X, color.Y, color.Z, color.W}),
		}
	}
	vk.CmdClearAttachments(v.Handle, uint32(len(attachments)), attachments, 1, v.clearRect())
}

func (v *VulkanCommandBuffer) ClearDepth(depth float32) {
	core.Assert(v.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS, "clear without a bound framebuffer")
	if !v.frameBuffer.HasDepth {
		return
	}
	attachments := []vk.ClearAttachment{{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectDepthBit),
		ClearValue: vk.NewClearDepthStencil(depth, 0),
	}}
	vk.CmdClearAttachments(v.Handle, 1, attachments, 1, v.clearRect())
}

func (v *VulkanCommandBuffer) BindPipeline(pipeline metadata.Pipeline) {
	p := v.device.pipelines.Ptr(pipeline.ID)
	core.Assert(p != nil, "bind of unknown pipeline %d", pipeline.ID)
	v.pipeline = *p
	(*p).Bind(v, vk.PipelineBindPointGraphics)
}

func (v *VulkanCommandBuffer) BindDescriptorSet(pipeline metadata.Pipeline, set metadata.DescriptorSet) {
	p := v.device.pipelines.Ptr(pipeline.ID)
	core.Assert(p != nil, "descriptor bind with unknown pipeline %d", pipeline.ID)
	handle, ok := v.device.sets.Get(set.ID)
	core.Assert(ok, "bind of unknown descriptor set %d", set.ID)
	vk.CmdBindDescriptorSets(v.Handle, vk.PipelineBindPointGraphics, (*p).PipelineLayout,
		0, 1, []vk.DescriptorSet{handle}, 0, nil)
}

func (v *VulkanCommandBuffer) PushConstants(pipeline metadata.Pipeline, data []byte) {
	if len(data) == 0 {
		return
	}
	p := v.device.pipelines.Ptr(pipeline.ID)
	core.Assert(p != nil, "push constants with unknown pipeline %d", pipeline.ID)
	vk.CmdPushConstants(v.Handle, (*p).PipelineLayout, pushConstantStages,
		0, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (v *VulkanCommandBuffer) BindVertexBuffers(bindings []metadata.VertexBinding) {
	if len(bindings) == 0 {
		return
	}
	buffers := make([]vk.Buffer, len(bindings))
	offsets := make([]vk.DeviceSize, len(bindings))
	for i, b := range bindings {
		buffers[i] = v.device.allocator.handle(b.Buffer)
		offsets[i] = vk.DeviceSize(b.Offset)
	}
	vk.CmdBindVertexBuffers(v.Handle, 0, uint32(len(bindings)), buffers, offsets)
}

func (v *VulkanCommandBuffer) BindIndexBuffer(buffer metadata.GPUBuffer, offset uint64) {
	vk.CmdBindIndexBuffer(v.Handle, v.device.allocator.handle(buffer), vk.DeviceSize(offset), vk.IndexTypeUint32)
}

func (v *VulkanCommandBuffer) DrawIndexed(numIndices, firstIndex uint32, vertexOffset int32) {
	vk.CmdDrawIndexed(v.Handle, numIndices, 1, firstIndex, vertexOffset, 0)
}

func (v *VulkanCommandBuffer) Draw(numVertices uint32) {
	vk.CmdDraw(v.Handle, numVertices, 1, 0, 0)
}

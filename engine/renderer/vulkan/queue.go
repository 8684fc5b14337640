package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/renderer"
)

type submission struct {
	cb    *VulkanCommandBuffer
	fence *VulkanFence
}

// Queue submits command buffers on the graphics queue. There is no surface,
// so Present only closes the frame and reclaims finished command buffers.
type Queue struct {
	device *Device

	FrameNumber uint64
	inFlight    []submission
}

func (q *Queue) SubmitCommandBuffer(commandBuffer renderer.CommandBuffer) error {
	cb, ok := commandBuffer.(*VulkanCommandBuffer)
	if !ok || cb.device != q.device {
		return fmt.Errorf("command buffer %T was not created by this device: %w", commandBuffer, core.ErrInvalidHandle)
	}
	context := q.device.context
	if err := cb.End(); err != nil {
		return err
	}

	fence, err := NewFence(context)
	if err != nil {
		return err
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb.Handle},
	}
	if err := resultError("vkQueueSubmit", vk.QueueSubmit(context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle)); err != nil {
		fence.FenceDestroy(context)
		return err
	}
	cb.UpdateSubmitted()
	cb.fence = fence
	q.inFlight = append(q.inFlight, submission{cb: cb, fence: fence})
	return nil
}

// Present waits for the frame's submissions and advances the frame counter.
func (q *Queue) Present() error {
	context := q.device.context
	var firstErr error
	for _, s := range q.inFlight {
		if err := s.fence.FenceWait(context, ^uint64(0)); err != nil && firstErr == nil {
			firstErr = err
		}
		s.fence.FenceDestroy(context)
		s.cb.fence = nil
		s.cb.Free(context, context.Device.GraphicsCommandPool)
	}
	q.inFlight = q.inFlight[:0]
	q.FrameNumber++

	if err := q.device.allocator.poll(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

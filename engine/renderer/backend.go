package renderer

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
)

// Device is the boundary between the render graph core and a graphics API.
// Creation failures are returned as errors together with an invalid handle.
type Device interface {
	RenderContext
	DescriptorAllocator

	CreateFrameBuffer(desc metadata.FrameBufferDescriptor) (metadata.FrameBuffer, error)
	DestroyFrameBuffer(fb metadata.FrameBuffer)
	CreateTexture2d(desc metadata.TextureDescriptor) (metadata.Texture2d, error)
	DestroyTexture2d(tex metadata.Texture2d)
	CreateTextureSampler(desc metadata.SamplerDescriptor) (metadata.TextureSampler, error)
	DestroyTextureSampler(sampler metadata.TextureSampler)
	CreatePipeline(desc metadata.PipelineDescriptor) (metadata.Pipeline, error)
	DestroyPipeline(pipeline metadata.Pipeline)

	CreateCommandBuffer() (CommandBuffer, error)
	Allocator() Allocator
	RenderQueue() RenderQueue

	WaitIdle() error
	Destroy()
}

// RenderContext exposes the queue layout of the device.
type RenderContext interface {
	GraphicsQueueFamily() uint32
}

// Allocator owns GPU buffers and streams data into them. Transfers complete
// in the order they were issued, so a finished token implies every earlier
// token is finished too.
type Allocator interface {
	CreateGpuBuffer(size uint64, usage vk.BufferUsageFlags, queueFamily uint32) (metadata.GPUBuffer, error)
	DestroyGpuBuffer(buffer metadata.GPUBuffer)
	ReserveStreamingBuffer(size uint64) error
	AsyncTransfer(dst metadata.GPUBuffer, data []byte, offset uint64) (metadata.StreamToken, error)
	IsTransferFinished(token metadata.StreamToken) bool
	// SubmitTransfers hands every transfer recorded since the last call to the GPU.
	SubmitTransfers() error
}

// RenderQueue executes recorded command buffers.
type RenderQueue interface {
	SubmitCommandBuffer(cb CommandBuffer) error
	// Present closes the frame.
	Present() error
}

// CommandBuffer records rendering commands. BindFrameBuffer starts a new
// target; every other command applies to the bound target.
type CommandBuffer interface {
	BindFrameBuffer(fb metadata.FrameBuffer)
	SetViewport(pos, size math.Vec2u)
	SetScissor(pos, size math.Vec2u)
	ClearColor(color math.Vec4)
	ClearDepth(depth float32)
	BindPipeline(pipeline metadata.Pipeline)
	BindDescriptorSet(pipeline metadata.Pipeline, set metadata.DescriptorSet)
	PushConstants(pipeline metadata.Pipeline, data []byte)
	BindVertexBuffers(bindings []metadata.VertexBinding)
	BindIndexBuffer(buffer metadata.GPUBuffer, offset uint64)
	DrawIndexed(numIndices, firstIndex uint32, vertexOffset int32)
	Draw(numVertices uint32)
}

// DescriptorAllocator creates native descriptor objects. Bindings and pool
// sizes use the Vulkan vocabulary directly.
type DescriptorAllocator interface {
	CreateDescriptorSetLayout(bindings []vk.DescriptorSetLayoutBinding) (metadata.DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout metadata.DescriptorSetLayout)
	CreateDescriptorPool(maxSets uint32, sizes []vk.DescriptorPoolSize) (metadata.DescriptorPool, error)
	DestroyDescriptorPool(pool metadata.DescriptorPool)
	AllocateDescriptorSets(pool metadata.DescriptorPool, layout metadata.DescriptorSetLayout, count uint32) ([]metadata.DescriptorSet, error)
	UpdateDescriptorSets(writes []metadata.DescriptorWrite)
}

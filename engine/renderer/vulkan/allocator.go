package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/revolution/engine/containers"
	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
)

const (
	maxTransferBatches     = 16
	defaultStagingCapacity = 1 << 20
)

type stagedCopy struct {
	dst    vk.Buffer
	region vk.BufferCopy
}

/**
 * @brief A group of copies submitted together. Every token up to last is
 * complete once the fence signals.
 */
type transferBatch struct {
	fence *VulkanFence
	cb    *VulkanCommandBuffer
	last  metadata.StreamToken
}

// Allocator streams uploads through a persistently mapped staging buffer.
// Batches retire in submission order, so completion is a single token.
type Allocator struct {
	context *VulkanContext
	buffers *core.HandleTable[*VulkanBuffer]

	staging       *VulkanBuffer
	stagingMemory []byte
	cursor        uint64

	pending   []stagedCopy
	batches   *containers.RingQueue[transferBatch]
	lastToken metadata.StreamToken
	completed metadata.StreamToken
}

func newAllocator(context *VulkanContext) *Allocator {
	return &Allocator{
		context: context,
		buffers: core.NewHandleTable[*VulkanBuffer](16),
		batches: containers.NewRingQueue[transferBatch](maxTransferBatches),
	}
}

func (a *Allocator) CreateGpuBuffer(size uint64, usage vk.BufferUsageFlags, queueFamily uint32) (metadata.GPUBuffer, error) {
	if size == 0 {
		return metadata.GPUBuffer{}, fmt.Errorf("gpu buffer of size 0: %w", core.ErrResourceCreation)
	}
	if queueFamily != a.context.Device.GraphicsQueueIndex {
		core.LogWarn("gpu buffer requested for queue family %d, using graphics family %d",
			queueFamily, a.context.Device.GraphicsQueueIndex)
	}
	usage |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	buffer, err := NewBuffer(a.context, size, usage, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return metadata.GPUBuffer{}, fmt.Errorf("create gpu buffer of %d bytes: %w", size, err)
	}
	return metadata.GPUBuffer{ID: a.buffers.Acquire(buffer), Size: size}, nil
}

// DestroyGpuBuffer drops the copies still staged for buffer and waits for the
// submitted batches, which may write into it, before releasing it.
func (a *Allocator) DestroyGpuBuffer(buffer metadata.GPUBuffer) {
	b, err := a.buffers.Release(buffer.ID)
	if err != nil {
		core.LogWarn("destroy gpu buffer: %s", err)
		return
	}
	a.pending = dropCopies(a.pending, b.Handle)
	for !a.batches.IsEmpty() {
		if err := a.waitOldest(); err != nil {
			core.LogError("wait for transfers into buffer %d: %s", buffer.ID, err)
			break
		}
	}
	if a.batches.IsEmpty() && len(a.pending) == 0 {
		a.completed = a.lastToken
		a.cursor = 0
	}
	b.Destroy(a.context)
}

// dropCopies removes the copies targeting dst, keeping the order of the rest.
func dropCopies(copies []stagedCopy, dst vk.Buffer) []stagedCopy {
	kept := copies[:0]
	for _, c := range copies {
		if c.dst != dst {
			kept = append(kept, c)
		}
	}
	return kept
}

// ReserveStreamingBuffer grows the staging buffer to at least size bytes.
// Outstanding transfers are flushed before the old buffer is released.
func (a *Allocator) ReserveStreamingBuffer(size uint64) error {
	if a.staging != nil && a.staging.Size >= size {
		return nil
	}
	if err := a.drain(); err != nil {
		return err
	}
	if a.staging != nil {
		a.staging.Destroy(a.context)
		a.staging = nil
		a.stagingMemory = nil
	}

	staging, err := NewBuffer(a.context, size,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return fmt.Errorf("create staging buffer of %d bytes: %w", size, err)
	}
	ptr, err := staging.Map(a.context)
	if err != nil {
		staging.Destroy(a.context)
		return err
	}
	a.staging = staging
	a.stagingMemory = unsafe.Slice((*byte)(ptr), size)
	a.cursor = 0
	core.LogDebug("staging buffer reserved (%d bytes)", size)
	return nil
}

func (a *Allocator) AsyncTransfer(dst metadata.GPUBuffer, data []byte, offset uint64) (metadata.StreamToken, error) {
	buffer, ok := a.buffers.Get(dst.ID)
	if !ok {
		return 0, fmt.Errorf("transfer into buffer %d: %w", dst.ID, core.ErrInvalidHandle)
	}
	size := uint64(len(data))
	if offset+size > buffer.Size {
		return 0, fmt.Errorf("transfer of %d bytes at offset %d overflows buffer of %d bytes: %w",
			size, offset, buffer.Size, core.ErrOutOfMemory)
	}
	if err := a.makeRoom(size); err != nil {
		return 0, err
	}

	copy(a.stagingMemory[a.cursor:], data)
	a.pending = append(a.pending, stagedCopy{
		dst: buffer.Handle,
		region: vk.BufferCopy{
			SrcOffset: vk.DeviceSize(a.cursor),
			DstOffset: vk.DeviceSize(offset),
			Size:      vk.DeviceSize(size),
		},
	})
	a.cursor += size
	a.lastToken++
	return a.lastToken, nil
}

// makeRoom guarantees size free bytes past the staging cursor.
func (a *Allocator) makeRoom(size uint64) error {
	if a.staging == nil {
		return a.ReserveStreamingBuffer(max(size, defaultStagingCapacity))
	}
	if a.cursor+size <= a.staging.Size {
		return nil
	}
	if size > a.staging.Size {
		return a.ReserveStreamingBuffer(max(size, 2*a.staging.Size))
	}
	// Staging is linear, so it can only be rewound once every copy out of it has executed.
	return a.drain()
}

func (a *Allocator) IsTransferFinished(token metadata.StreamToken) bool {
	if token <= a.completed {
		return true
	}
	if err := a.poll(); err != nil {
		core.LogError("poll transfers: %s", err)
	}
	return token <= a.completed
}

func (a *Allocator) SubmitTransfers() error {
	if len(a.pending) == 0 {
		return a.poll()
	}
	if a.batches.IsFull() {
		if err := a.waitOldest(); err != nil {
			return err
		}
	}

	device := a.context.Device
	cb, err := NewVulkanCommandBuffer(a.context, device.GraphicsCommandPool, true)
	if err != nil {
		return err
	}
	if err := cb.Begin(true, false, false); err != nil {
		cb.Free(a.context, device.GraphicsCommandPool)
		return err
	}
	for _, c := range a.pending {
		vk.CmdCopyBuffer(cb.Handle, a.staging.Handle, c.dst, 1, []vk.BufferCopy{c.region})
	}
	// Later vertex, index and uniform reads wait for the copies.
	vk.CmdPipelineBarrier(cb.Handle,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.PipelineStageFlags(vk.PipelineStageVertexInputBit|vk.PipelineStageVertexShaderBit|vk.PipelineStageFragmentShaderBit),
		0,
		1, []vk.MemoryBarrier{{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
			DstAccessMask: vk.AccessFlags(vk.AccessVertexAttributeReadBit | vk.AccessIndexReadBit | vk.AccessUniformReadBit | vk.AccessShaderReadBit),
		}},
		0, nil, 0, nil)
	if err := cb.End(); err != nil {
		cb.Free(a.context, device.GraphicsCommandPool)
		return err
	}

	fence, err := NewFence(a.context)
	if err != nil {
		cb.Free(a.context, device.GraphicsCommandPool)
		return err
	}
	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb.Handle},
	}
	if err := resultError("vkQueueSubmit", vk.QueueSubmit(device.GraphicsQueue, 1, []vk.SubmitInfo{submit}, fence.Handle)); err != nil {
		fence.FenceDestroy(a.context)
		cb.Free(a.context, device.GraphicsCommandPool)
		return err
	}
	cb.UpdateSubmitted()

	core.LogDebug("submitted %d transfers up to token %d", len(a.pending), a.lastToken)
	a.pending = a.pending[:0]
	return a.batches.Enqueue(transferBatch{fence: fence, cb: cb, last: a.lastToken})
}

// PendingTransfers is the number of batches submitted but not yet retired.
func (a *Allocator) PendingTransfers() int {
	return a.batches.Len()
}

// poll retires every batch whose fence has signaled, oldest first.
func (a *Allocator) poll() error {
	for !a.batches.IsEmpty() {
		batch, _ := a.batches.Peek()
		done, err := batch.fence.FenceIsDone(a.context)
		if err != nil {
			return err
		}
		if !done {
			return nil
		}
		a.retire()
	}
	return nil
}

func (a *Allocator) waitOldest() error {
	batch, err := a.batches.Peek()
	if err != nil {
		return nil
	}
	if err := batch.fence.FenceWait(a.context, ^uint64(0)); err != nil {
		return err
	}
	a.retire()
	return nil
}

func (a *Allocator) retire() {
	batch, err := a.batches.Dequeue()
	if err != nil {
		return
	}
	batch.fence.FenceDestroy(a.context)
	batch.cb.Free(a.context, a.context.Device.GraphicsCommandPool)
	a.completed = batch.last
	if a.batches.IsEmpty() && len(a.pending) == 0 {
		a.cursor = 0
	}
}

// drain submits everything recorded and waits for all of it.
func (a *Allocator) drain() error {
	if err := a.SubmitTransfers(); err != nil {
		return err
	}
	for !a.batches.IsEmpty() {
		if err := a.waitOldest(); err != nil {
			return err
		}
	}
	a.cursor = 0
	return nil
}

// handle resolves a buffer for command recording.
func (a *Allocator) handle(buffer metadata.GPUBuffer) vk.Buffer {
	b, ok := a.buffers.Get(buffer.ID)
	core.Assert(ok, "use of unknown gpu buffer %d", buffer.ID)
	return b.Handle
}

func (a *Allocator) destroy() {
	if err := a.drain(); err != nil {
		core.LogError("drain transfers: %s", err)
	}
	a.buffers.Each(func(id uint32, b **VulkanBuffer) {
		(*b).Destroy(a.context)
	})
	a.buffers = core.NewHandleTable[*VulkanBuffer](0)
	if a.staging != nil {
		a.staging.Destroy(a.context)
		a.staging = nil
		a.stagingMemory = nil
	}
}

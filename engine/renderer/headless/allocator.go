package headless

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/revolution/engine/containers"
	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
)

type gpuBuffer struct {
	usage       vk.BufferUsageFlags
	queueFamily uint32
	data        []byte
}

type transfer struct {
	token  metadata.StreamToken
	dst    uint32
	offset uint64
	data   []byte
	doneAt uint64
}

// Allocator keeps buffers in host memory. Transfers are staged on
// AsyncTransfer, submitted in batches and land in the destination buffer
// when they complete, strictly in issue order.
type Allocator struct {
	device  *Device
	buffers *core.HandleTable[gpuBuffer]

	latency   uint64
	pending   []transfer
	inFlight  *containers.RingQueue[transfer]
	lastToken metadata.StreamToken
	completed metadata.StreamToken

	streamingCapacity uint64
	streamingUsed     uint64
}

func newAllocator(d *Device, latency uint64, maxPending int) *Allocator {
	return &Allocator{
		device:   d,
		buffers:  core.NewHandleTable[gpuBuffer](16),
		latency:  latency,
		inFlight: containers.NewRingQueue[transfer](maxPending),
	}
}

func (a *Allocator) CreateGpuBuffer(size uint64, usage vk.BufferUsageFlags, queueFamily uint32) (metadata.GPUBuffer, error) {
	if size == 0 {
		return metadata.GPUBuffer{}, fmt.Errorf("gpu buffer of size 0: %w", core.ErrResourceCreation)
	}
	a.device.stats.BuffersCreated++
	id := a.buffers.Acquire(gpuBuffer{usage: usage, queueFamily: queueFamily, data: make([]byte, size)})
	return metadata.GPUBuffer{ID: id, Size: size}, nil
}

// DestroyGpuBuffer releases buffer. Its outstanding transfers still complete
// in token order but no longer copy anything, so a buffer reusing the id is
// never written by them.
func (a *Allocator) DestroyGpuBuffer(buffer metadata.GPUBuffer) {
	if _, err := a.buffers.Release(buffer.ID); err != nil {
		core.LogWarn("destroy gpu buffer: %s", err)
		return
	}
	for i := range a.pending {
		if a.pending[i].dst == buffer.ID {
			a.pending[i].dst = 0
		}
	}
	a.updateInFlight(func(t *transfer) {
		if t.dst == buffer.ID {
			t.dst = 0
		}
	})
}

// ReserveStreamingBuffer grows the staging capacity to at least size bytes.
func (a *Allocator) ReserveStreamingBuffer(size uint64) error {
	a.streamingCapacity = max(a.streamingCapacity, size)
	return nil
}

func (a *Allocator) AsyncTransfer(dst metadata.GPUBuffer, data []byte, offset uint64) (metadata.StreamToken, error) {
	buf, ok := a.buffers.Get(dst.ID)
	if !ok {
		return 0, fmt.Errorf("transfer into buffer %d: %w", dst.ID, core.ErrInvalidHandle)
	}
	if offset+uint64(len(data)) > uint64(len(buf.data)) {
		return 0, fmt.Errorf("transfer of %d bytes at offset %d overflows buffer of %d bytes: %w",
			len(data), offset, len(buf.data), core.ErrOutOfMemory)
	}
	staged := make([]byte, len(data))
	copy(staged, data)
	a.lastToken++
	a.pending = append(a.pending, transfer{token: a.lastToken, dst: dst.ID, offset: offset, data: staged})
	a.streamingUsed += uint64(len(data))
	a.streamingCapacity = max(a.streamingCapacity, a.streamingUsed)
	return a.lastToken, nil
}

func (a *Allocator) IsTransferFinished(token metadata.StreamToken) bool {
	return token <= a.completed
}

func (a *Allocator) SubmitTransfers() error {
	doneAt := a.device.queue.frame + a.latency
	for _, t := range a.pending {
		t.doneAt = doneAt
		if err := a.inFlight.Enqueue(t); err != nil {
			return fmt.Errorf("submit transfer %d: %w", t.token, err)
		}
	}
	a.pending = a.pending[:0]
	a.streamingUsed = 0
	a.retire(a.device.queue.frame)
	return nil
}

// PendingTransfers is the number of transfers issued but not yet complete.
func (a *Allocator) PendingTransfers() int {
	return len(a.pending) + a.inFlight.Len()
}

// BufferData returns the current device-side contents of buffer.
func (a *Allocator) BufferData(buffer metadata.GPUBuffer) ([]byte, bool) {
	b, ok := a.buffers.Get(buffer.ID)
	return b.data, ok
}

// retire completes every in-flight transfer due at or before frame, in order.
func (a *Allocator) retire(frame uint64) {
	for !a.inFlight.IsEmpty() {
		t, _ := a.inFlight.Peek()
		if t.doneAt > frame {
			return
		}
		_, _ = a.inFlight.Dequeue()
		buf := a.buffers.Ptr(t.dst)
		switch {
		case t.dst == 0 || buf == nil:
		case t.offset+uint64(len(t.data)) > uint64(len(buf.data)):
			core.LogError("transfer %d of %d bytes at offset %d overflows buffer %d", t.token, len(t.data), t.offset, t.dst)
		default:
			copy(buf.data[t.offset:], t.data)
		}
		a.completed = t.token
		core.LogDebug("transfer %d complete (%d bytes)", t.token, len(t.data))
	}
}

// drain submits and completes everything outstanding.
func (a *Allocator) drain() error {
	if err := a.SubmitTransfers(); err != nil {
		return err
	}
	a.retire(^uint64(0))
	return nil
}

// pendingFor reports whether buffer still has transfers that have not landed.
func (a *Allocator) pendingFor(buffer uint32) bool {
	if buffer == 0 {
		return false
	}
	for _, t := range a.pending {
		if t.dst == buffer {
			return true
		}
	}
	pending := false
	a.updateInFlight(func(t *transfer) {
		if t.dst == buffer {
			pending = true
		}
	})
	return pending
}

// updateInFlight visits the in-flight transfers in order, keeping any change fn makes.
func (a *Allocator) updateInFlight(fn func(t *transfer)) {
	n := a.inFlight.Len()
	for i := 0; i < n; i++ {
		t, _ := a.inFlight.Dequeue()
		fn(&t)
		_ = a.inFlight.Enqueue(t)
	}
}

func (a *Allocator) reset() {
	a.buffers = core.NewHandleTable[gpuBuffer](0)
	a.pending = nil
	for !a.inFlight.IsEmpty() {
		_, _ = a.inFlight.Dequeue()
	}
}
